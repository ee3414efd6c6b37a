package detector

import "errors"

var (
	// ErrInvalidReferencePrice marks a tick whose closing price is not
	// positive. The tick is dropped, logged, and never retried.
	ErrInvalidReferencePrice = errors.New("invalid reference price")

	// ErrDuplicateTick marks a tick whose source sequence is at or below
	// the last seen sequence for its instrument. Silently discarded.
	ErrDuplicateTick = errors.New("duplicate tick")

	// ErrStateUnavailable wraps state-store failures. The owning partition
	// fails closed: the tick is NAK'd and processing pauses rather than
	// guessing breach status.
	ErrStateUnavailable = errors.New("breach state store unavailable")
)
