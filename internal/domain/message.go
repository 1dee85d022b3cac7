package domain

import "time"

type Transport string

const (
	TransportServer Transport = "server"
	TransportP2P    Transport = "p2p"
)

type BlockKind string

const (
	BlockParagraph BlockKind = "paragraph"
	BlockCode      BlockKind = "code"
	BlockQuote     BlockKind = "quote"
)

// ContentBlock is one structured piece of a message body.
type ContentBlock struct {
	Kind BlockKind `json:"kind"`
	Text string    `json:"text"`
}

// AttachmentRef points at a file owned by the upload collaborator.
// This layer only binds the reference to a message, never the bytes.
type AttachmentRef struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	URL        string `json:"url,omitempty"`
	UploaderID UserID `json:"uploaderId"`
}

// Message is immutable once persisted. ID is unique per channel; a
// client-submitted temp id that gets accepted becomes the canonical id.
type Message struct {
	ID          string          `json:"id"`
	Room        Room            `json:"room"`
	Author      Author          `json:"author"`
	Blocks      []ContentBlock  `json:"blocks"`
	Attachments []AttachmentRef `json:"attachments,omitempty"`
	Mentions    []UserID        `json:"mentions,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Transport   Transport       `json:"transport"`
	System      bool            `json:"system,omitempty"`
}

// Draft is a message as submitted by a client, before the ledger assigns
// id, timestamp, and normalized blocks.
type Draft struct {
	TempID      string
	Text        string
	Blocks      []ContentBlock
	Attachments []AttachmentRef
	Mentions    []UserID
	Transport   Transport
	System      bool
}

// NormalizedBlocks returns the draft's block list, defaulting to a single
// paragraph built from the raw text when no block list was given.
func (d Draft) NormalizedBlocks() []ContentBlock {
	if len(d.Blocks) > 0 {
		return d.Blocks
	}
	if d.Text == "" {
		return nil
	}
	return []ContentBlock{{Kind: BlockParagraph, Text: d.Text}}
}
