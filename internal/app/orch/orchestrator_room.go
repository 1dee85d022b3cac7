package orch

import (
	"context"

	"github.com/rs/zerolog/log"

	"peerchat/internal/app"
	"peerchat/internal/core"
	"peerchat/internal/domain"
	"peerchat/internal/protocol"
)

// JoinAck is what the joining connection gets back: the membership
// snapshot and the bounded catch-up history.
type JoinAck struct {
	Room    domain.Room
	Members []domain.Identity
	History []domain.Message
}

// Join places the connection into room. The connection is implicitly
// removed from any previous room first; user-joined fires only when this
// is the user's first live connection in the room.
func (o *Orchestrator) Join(ctx context.Context, cid core.ConnID, room domain.Room) (JoinAck, error) {
	identity, err := o.Registry.Resolve(cid)
	if err != nil {
		return JoinAck{}, err
	}
	known, err := o.Channels.Exists(ctx, room.ServerID, room.ChannelID)
	if err != nil {
		return JoinAck{}, err
	}
	if !known {
		return JoinAck{}, core.ErrChannelNotFound
	}

	res := o.Presence.Join(cid, identity.ID, room)
	if res.Displaced != nil {
		o.afterLeave(cid, identity, *res.Displaced)
	}

	if res.FirstJoinForUser {
		o.kickSlow(o.Cast.Emit(room, protocol.ChannelEvent{
			Type: protocol.EvtChannelEvent,
			Room: room,
			Kind: protocol.ChannelUserJoined,
			User: identity,
		}))
	}
	members := o.Presence.Snapshot(room)
	o.kickSlow(o.Cast.Emit(room, protocol.PresenceUpdate{
		Type:    protocol.EvtPresenceUpdate,
		Room:    room,
		Members: members,
	}))

	history, err := o.Ledger.Read(ctx, room, o.HistoryLimit)
	if err != nil {
		log.Error().Err(err).Str("module", "app.orch").Str("room", room.Key()).Msg("history read failed")
		history = nil
	}
	return JoinAck{Room: room, Members: members, History: history}, nil
}

// Leave removes the connection from its current room. Idempotent.
func (o *Orchestrator) Leave(cid core.ConnID, reason string) {
	identity, _ := o.Registry.Resolve(cid)
	left, ok := o.Presence.Leave(cid, reason)
	if !ok {
		return
	}
	o.afterLeave(cid, identity, left)
}

// Disconnect runs the full teardown path for a dying connection:
// membership, typing state, signaling sessions, then the registry entry.
// All of it happens synchronously before the connection is forgotten.
func (o *Orchestrator) Disconnect(cid core.ConnID) {
	o.Leave(cid, "disconnect")
	// Sessions may exist even when the connection never joined a room in
	// this registry's view; teardown is idempotent either way.
	o.notifyTeardown(cid, o.Signals.Teardown(cid))
	o.Registry.Unbind(cid)
}

// afterLeave cascades one presence removal into signaling teardown,
// typing cleanup, and presence events for the departed room.
func (o *Orchestrator) afterLeave(cid core.ConnID, identity domain.Identity, left app.LeaveResult) {
	o.notifyTeardown(cid, o.Signals.Teardown(cid))

	if left.LastForUser {
		o.Typing.Stop(left.Room, left.User)

		user := identity
		if user.ID == "" {
			user = domain.Identity{ID: left.User}
		}
		o.kickSlow(o.Cast.Emit(left.Room, protocol.ChannelEvent{
			Type: protocol.EvtChannelEvent,
			Room: left.Room,
			Kind: protocol.ChannelUserLeft,
			User: user,
		}))
	}
	o.kickSlow(o.Cast.Emit(left.Room, protocol.PresenceUpdate{
		Type:    protocol.EvtPresenceUpdate,
		Room:    left.Room,
		Members: o.Presence.Snapshot(left.Room),
	}))
}
