package app

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"peerchat/internal/core"
	"peerchat/internal/domain"
)

// ConnSource is the slice of Registry the broadcaster needs.
type ConnSource interface {
	Conn(core.ConnID) (core.SignalConnection, bool)
}

// Broadcaster fans events out to every connection currently present in a
// room. It is stateless; membership comes from presence at emit time.
// Enqueueing happens synchronously in the submitting goroutine, so events
// from one source reach all members in submission order.
type Broadcaster struct {
	presence *Presence
	conns    ConnSource
}

func NewBroadcaster(presence *Presence, conns ConnSource) *Broadcaster {
	return &Broadcaster{presence: presence, conns: conns}
}

// Emit delivers v to every member of room, best effort. Connections whose
// send buffer is full are returned so the orchestrator can apply its slow
// consumer policy.
func (b *Broadcaster) Emit(room domain.Room, v any) []core.ConnID {
	frame, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.broadcast").Msg("marshal event")
		return nil
	}
	var dropped []core.ConnID
	for _, cid := range b.presence.Connections(room) {
		conn, ok := b.conns.Conn(cid)
		if !ok {
			continue
		}
		if err := conn.TrySend(frame); err != nil {
			dropped = append(dropped, cid)
		}
	}
	if len(dropped) > 0 {
		log.Warn().Str("module", "app.broadcast").Str("room", room.Key()).
			Int("dropped", len(dropped)).Msg("slow consumers")
	}
	return dropped
}

// SendTo delivers v to a single connection.
func (b *Broadcaster) SendTo(cid core.ConnID, v any) error {
	conn, ok := b.conns.Conn(cid)
	if !ok {
		return fmt.Errorf("no connection %s", cid)
	}
	frame, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.TrySend(frame)
}
