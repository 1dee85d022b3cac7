package core

import (
	"context"

	"peerchat/internal/domain"
)

// Frame is a raw outbound payload, already encoded for the wire.
type Frame []byte

// ConnID identifies one live connection. A user may hold several.
type ConnID string

// SignalConnection abstracts the system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// IdentityProvider is the external auth collaborator. Resolve must return
// the current identity for a token on every call so profile updates are
// picked up without reconnecting.
type IdentityProvider interface {
	Resolve(token string) (domain.Identity, error)
}

// ChannelDirectory is the channel-management collaborator. This layer
// only asks whether a room's channel exists.
type ChannelDirectory interface {
	Exists(ctx context.Context, serverID, channelID string) (bool, error)
}
