package orch

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"peerchat/internal/core"
	"peerchat/internal/protocol"
)

// P2PReady pairs the announcing connection with every other connection in
// its room. The announcer initiates toward each pre-existing peer; both
// sides receive the introduction with their role, so exactly one offer is
// produced per pair.
func (o *Orchestrator) P2PReady(cid core.ConnID) error {
	room, ok := o.Presence.RoomOf(cid)
	if !ok {
		return core.ErrRoomNotFound
	}
	peers := o.Presence.Connections(room)
	for _, intro := range o.Signals.Announce(cid, room, peers) {
		_ = o.Cast.SendTo(cid, protocol.P2PIntro{
			Type:      protocol.EvtP2PReady,
			Peer:      string(intro.Peer),
			Initiator: true,
		})
		_ = o.Cast.SendTo(intro.Peer, protocol.P2PIntro{
			Type:      protocol.EvtP2PReady,
			Peer:      string(cid),
			Initiator: false,
		})
	}
	return nil
}

// P2PSignal relays one opaque negotiation payload. Fire and forget: a
// payload toward a departed or unrelated peer is dropped without error.
func (o *Orchestrator) P2PSignal(from, target core.ConnID, data json.RawMessage) {
	if !o.Presence.SameRoom(from, target) {
		log.Debug().Str("module", "app.orch").Str("from", string(from)).
			Str("target", string(target)).Msg("dropping cross-room signal")
		return
	}
	if !o.Signals.Signal(from, target) {
		return
	}
	_ = o.Cast.SendTo(target, protocol.P2PSignal{
		Type: protocol.EvtP2PSignal,
		From: string(from),
		Data: data,
	})
}

// P2PConnected records that the pair's data channel came up.
func (o *Orchestrator) P2PConnected(from, target core.ConnID) {
	o.Signals.Connected(from, target)
}

// P2PTeardown closes the caller's sessions, e.g. on a switch back to
// relay mode, and notifies the affected peers.
func (o *Orchestrator) P2PTeardown(cid core.ConnID) {
	o.notifyTeardown(cid, o.Signals.Teardown(cid))
}
