package protocol

import "github.com/pion/webrtc/v4"

// Typed shapes for the opaque p2p-signal data field. The relay never
// decodes these; they exist so clients and tests agree on what travels
// inside Data.

const (
	SignalSDP = "sdp"
	SignalICE = "ice"
)

type SDPSignal struct {
	Kind        string                    `json:"kind"`
	Description webrtc.SessionDescription `json:"description"`
}

type ICESignal struct {
	Kind      string                  `json:"kind"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}
