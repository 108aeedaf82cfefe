package outbox

import "errors"

// Sentinel kinds for outbox errors.
var (
	ErrDuplicateEntry = errors.New("entry already enqueued")
	ErrEntryNotFound  = errors.New("entry not found")
	ErrNotConfirmed   = errors.New("entry not confirmed")
)
