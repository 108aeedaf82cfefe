package ingest

import "errors"

// Sentinel kinds for ingestion errors. Validation kinds are permanent:
// the sync worker must not retry them.
var (
	ErrClosed            = errors.New("sequencer closed")
	ErrBackpressure      = errors.New("ingest mailbox full")
	ErrMatchNotOpen      = errors.New("match not open for events")
	ErrValidation        = errors.New("validation rejected")
	ErrUnknownCorrection = errors.New("correction_of references unknown sequence")
	ErrTenantMismatch    = errors.New("match does not belong to club")
)
