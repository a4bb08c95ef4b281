package store

import "errors"

var (
	// ErrEnvelopeCorrupt is returned when a stored value is too short to carry
	// the expiry header the TTL layer expects. It can only surface when a TTL
	// store is pointed at data written without one.
	ErrEnvelopeCorrupt = errors.New("expiry envelope corrupt")
	// ErrSweepUnsupported is returned when background sweeping is requested on
	// a store that cannot enumerate its keys.
	ErrSweepUnsupported = errors.New("store does not support background sweeping")
	// ErrValueParseFailed indicates parsing a stored value failed.
	ErrValueParseFailed = errors.New("value parse failed")
)
