package ingress

import "errors"

var (
	// ErrMessageTooSmall is returned when a buffer is too short to hold a
	// Header.
	ErrMessageTooSmall = errors.New("ingress: message smaller than header")
	// ErrMessageTooLarge is returned when a declared payload length
	// exceeds MaxPayloadSize.
	ErrMessageTooLarge = errors.New("ingress: message payload too large")
	// ErrUnexpectedTag is returned for a frame whose tag is neither ping
	// nor push_transaction.
	ErrUnexpectedTag = errors.New("ingress: unexpected tag for op")
	// ErrUnexpectedPacket is returned for a known tag arriving with an op
	// that has no defined handling for it (e.g. push_transaction sent as a
	// response).
	ErrUnexpectedPacket = errors.New("ingress: unexpected packet")
)
