package core

import "errors"

// Failure taxonomy for the realtime layer. Only ErrAuthRequired is fatal
// to a connection; everything else is rejected through the operation's ack.
var (
	ErrAuthRequired       = errors.New("auth required")
	ErrRoomNotFound       = errors.New("room not found")
	ErrChannelNotFound    = errors.New("channel not found")
	ErrInvalidPayload     = errors.New("invalid payload")
	ErrAttachmentConflict = errors.New("attachment conflict")
	ErrStorageFailure     = errors.New("storage failure")
)

// Kind maps an error onto the wire-level error code carried in acks.
// Unknown errors are reported as a generic storage failure rather than
// leaking internals to the client.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrAuthRequired):
		return "auth-required"
	case errors.Is(err, ErrRoomNotFound):
		return "room-not-found"
	case errors.Is(err, ErrChannelNotFound):
		return "channel-not-found"
	case errors.Is(err, ErrInvalidPayload):
		return "invalid-payload"
	case errors.Is(err, ErrAttachmentConflict):
		return "attachment-conflict"
	default:
		return "storage-failure"
	}
}

// Fatal reports whether the connection must be terminated after this error.
func Fatal(err error) bool {
	return errors.Is(err, ErrAuthRequired)
}
