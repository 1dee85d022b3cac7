// Package orch wires the realtime components together. Cross-component
// cascades (a leave tearing down signaling, a disconnect clearing typing
// state) happen here through explicit calls; components never reach into
// each other's tables.
package orch

import (
	"github.com/rs/zerolog/log"

	"peerchat/internal/app"
	"peerchat/internal/core"
	"peerchat/internal/protocol"
	"peerchat/internal/storage"
)

type Orchestrator struct {
	Registry *app.Registry
	Presence *app.Presence
	Typing   *app.Typing
	Signals  *app.Signaling
	Cast     *app.Broadcaster
	Ledger   *storage.Ledger
	Channels core.ChannelDirectory

	// HistoryLimit bounds the catch-up read sent on join.
	HistoryLimit int
}

// kickSlow applies the slow-consumer policy: a connection that cannot
// keep up with room fan-out is disconnected rather than silently starved.
func (o *Orchestrator) kickSlow(dropped []core.ConnID) {
	for _, cid := range dropped {
		log.Warn().Str("module", "app.orch").Str("cid", string(cid)).Msg("kicking slow consumer")
		o.Registry.Cancel(cid)
	}
}

// notifyTeardown tells every peer that had a session with cid to discard
// its local negotiation state. Best effort.
func (o *Orchestrator) notifyTeardown(cid core.ConnID, peers []core.ConnID) {
	for _, peer := range peers {
		_ = o.Cast.SendTo(peer, protocol.P2PTeardown{
			Type: protocol.EvtP2PTeardown,
			Peer: string(cid),
		})
	}
}
