package orch

import (
	"context"

	"peerchat/internal/core"
	"peerchat/internal/domain"
	"peerchat/internal/protocol"
)

// SendMessage persists a relayed send and fans it out to the room. The
// sender must currently be a member of the addressed room.
func (o *Orchestrator) SendMessage(ctx context.Context, cid core.ConnID, room domain.Room, draft domain.Draft) (domain.Message, error) {
	identity, err := o.Registry.Resolve(cid)
	if err != nil {
		return domain.Message{}, err
	}
	current, ok := o.Presence.RoomOf(cid)
	if !ok || current != room {
		return domain.Message{}, core.ErrRoomNotFound
	}

	draft.Transport = domain.TransportServer
	msg, err := o.Ledger.Append(ctx, room, domain.AuthorOf(identity), draft)
	if err != nil {
		return domain.Message{}, err
	}

	o.kickSlow(o.Cast.Emit(room, protocol.MessageEvent{
		Type:    protocol.EvtMessage,
		Message: msg,
	}))
	return msg, nil
}

// StoreMessage persists a message that was already delivered peer to
// peer. No fan-out: the peers have it, this write exists for catch-up
// reads. A temp id already accepted through SendMessage makes this a
// replace, never a duplicate.
func (o *Orchestrator) StoreMessage(ctx context.Context, cid core.ConnID, room domain.Room, draft domain.Draft) (domain.Message, error) {
	identity, err := o.Registry.Resolve(cid)
	if err != nil {
		return domain.Message{}, err
	}
	current, ok := o.Presence.RoomOf(cid)
	if !ok || current != room {
		return domain.Message{}, core.ErrRoomNotFound
	}

	draft.Transport = domain.TransportP2P
	return o.Ledger.Append(ctx, room, domain.AuthorOf(identity), draft)
}

// TypingStart refreshes the caller's typing timer in its current room.
// The coordinator broadcasts only when the typing set actually changes.
func (o *Orchestrator) TypingStart(cid core.ConnID) error {
	identity, err := o.Registry.Resolve(cid)
	if err != nil {
		return err
	}
	room, ok := o.Presence.RoomOf(cid)
	if !ok {
		return core.ErrRoomNotFound
	}
	o.Typing.Start(room, identity.ID)
	return nil
}

func (o *Orchestrator) TypingStop(cid core.ConnID) error {
	identity, err := o.Registry.Resolve(cid)
	if err != nil {
		return err
	}
	room, ok := o.Presence.RoomOf(cid)
	if !ok {
		return core.ErrRoomNotFound
	}
	o.Typing.Stop(room, identity.ID)
	return nil
}
