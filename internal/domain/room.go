package domain

import "fmt"

// Room is the addressable scope for presence, messages, typing and
// signaling. It has no lifecycle of its own; the channel directory owns
// channel existence.
type Room struct {
	ServerID  string `json:"serverId"`
	ChannelID string `json:"channelId"`
}

func (r Room) Key() string {
	return fmt.Sprintf("%s:%s", r.ServerID, r.ChannelID)
}

func (r Room) IsZero() bool {
	return r.ServerID == "" && r.ChannelID == ""
}
