// Package protocol defines the realtime wire contract: one JSON object
// per frame, dispatched on its "type" field. client→server frames may
// carry a seq echoed back in the ack.
package protocol

import (
	"encoding/json"

	"peerchat/internal/domain"
)

// Client→server event types.
const (
	EvtRegister     = "register"
	EvtJoinChannel  = "join-channel"
	EvtLeaveChannel = "leave-channel"
	EvtServerMsg    = "server-message"
	EvtStoreMsg     = "store-message"
	EvtP2PReady     = "p2p-ready"
	EvtP2PSignal    = "p2p-signal"
	EvtP2PConnected = "p2p-connected"
	EvtP2PTeardown  = "p2p-teardown"
	EvtTypingStart  = "typing-start"
	EvtTypingStop   = "typing-stop"
)

// Server→client event types.
const (
	EvtAck            = "ack"
	EvtPresenceUpdate = "presence-update"
	EvtChannelEvent   = "channel-event"
	EvtMessage        = "message"
	EvtTypingUpdate   = "typing-update"
	EvtHistory        = "channel-history"
)

// Envelope is the minimal view decoded first to pick a handler.
type Envelope struct {
	Type string `json:"type"`
	Seq  int64  `json:"seq,omitempty"`
}

type RegisterPayload struct {
	Token string `json:"token" validate:"required"`
}

type RoomPayload struct {
	ServerID  string `json:"serverId" validate:"required"`
	ChannelID string `json:"channelId" validate:"required"`
}

func (p RoomPayload) Room() domain.Room {
	return domain.Room{ServerID: p.ServerID, ChannelID: p.ChannelID}
}

type MessagePayload struct {
	ServerID    string                 `json:"serverId" validate:"required"`
	ChannelID   string                 `json:"channelId" validate:"required"`
	Content     string                 `json:"content" validate:"required_without=Blocks,max=4000"`
	Blocks      []domain.ContentBlock  `json:"blocks,omitempty" validate:"max=64"`
	Attachments []domain.AttachmentRef `json:"attachments,omitempty" validate:"max=10"`
	Mentions    []domain.UserID        `json:"mentions,omitempty" validate:"max=50"`
	TempID      string                 `json:"tempId,omitempty" validate:"max=64"`
	Transport   domain.Transport       `json:"transport,omitempty" validate:"omitempty,oneof=server p2p"`
}

func (p MessagePayload) Room() domain.Room {
	return domain.Room{ServerID: p.ServerID, ChannelID: p.ChannelID}
}

func (p MessagePayload) Draft() domain.Draft {
	return domain.Draft{
		TempID:      p.TempID,
		Text:        p.Content,
		Blocks:      p.Blocks,
		Attachments: p.Attachments,
		Mentions:    p.Mentions,
		Transport:   p.Transport,
	}
}

// SignalPayload carries one opaque negotiation payload toward target.
// Data is relayed verbatim; the server never parses it.
type SignalPayload struct {
	Target string          `json:"target" validate:"required"`
	Data   json.RawMessage `json:"data"`
}

type PeerPayload struct {
	Target string `json:"target" validate:"required"`
}

// Ack is the per-operation result frame. Seq and TempID echo the request.
type Ack struct {
	Type    string           `json:"type"`
	Seq     int64            `json:"seq,omitempty"`
	OK      bool             `json:"ok"`
	Error   string           `json:"error,omitempty"`
	TempID  string           `json:"tempId,omitempty"`
	Message *domain.Message  `json:"message,omitempty"`
	User    *domain.Identity `json:"user,omitempty"`
}

type PresenceUpdate struct {
	Type    string            `json:"type"`
	Room    domain.Room       `json:"room"`
	Members []domain.Identity `json:"members"`
}

const (
	ChannelUserJoined = "user-joined"
	ChannelUserLeft   = "user-left"
)

type ChannelEvent struct {
	Type string          `json:"type"`
	Room domain.Room     `json:"room"`
	Kind string          `json:"kind"`
	User domain.Identity `json:"user"`
}

type MessageEvent struct {
	Type    string         `json:"type"`
	Message domain.Message `json:"message"`
}

type TypingUpdate struct {
	Type   string          `json:"type"`
	Room   domain.Room     `json:"room"`
	Typers []domain.UserID `json:"typers"`
}

type HistoryEvent struct {
	Type     string           `json:"type"`
	Room     domain.Room      `json:"room"`
	Messages []domain.Message `json:"messages"`
}

// P2PIntro introduces a peer and fixes which side initiates the offer.
type P2PIntro struct {
	Type      string `json:"type"`
	Peer      string `json:"peer"`
	Initiator bool   `json:"initiator"`
}

type P2PSignal struct {
	Type string          `json:"type"`
	From string          `json:"from"`
	Data json.RawMessage `json:"data"`
}

type P2PTeardown struct {
	Type string `json:"type"`
	Peer string `json:"peer"`
}
