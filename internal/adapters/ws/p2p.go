package ws

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"peerchat/internal/core"
	"peerchat/internal/protocol"
)

func (ctl *Controller) handleP2PReady(cl *client, seq int64) {
	if err := ctl.Orch.P2PReady(cl.cid); err != nil {
		ctl.fail(cl, seq, err)
		return
	}
	if seq != 0 {
		ctl.ack(cl.conn, protocol.Ack{Seq: seq, OK: true})
	}
}

// handleP2PSignal is deliberately fire and forget: malformed or
// misaddressed payloads are dropped, never surfaced as protocol errors.
func (ctl *Controller) handleP2PSignal(cl *client, data []byte) {
	var p protocol.SignalPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Target == "" {
		log.Debug().Str("module", "ws").Str("cid", string(cl.cid)).Msg("dropping malformed signal")
		return
	}
	ctl.Orch.P2PSignal(cl.cid, core.ConnID(p.Target), p.Data)
}

func (ctl *Controller) handleP2PConnected(cl *client, data []byte) {
	var p protocol.PeerPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Target == "" {
		return
	}
	ctl.Orch.P2PConnected(cl.cid, core.ConnID(p.Target))
}

func (ctl *Controller) handleP2PTeardown(cl *client, seq int64) {
	ctl.Orch.P2PTeardown(cl.cid)
	if seq != 0 {
		ctl.ack(cl.conn, protocol.Ack{Seq: seq, OK: true})
	}
}
