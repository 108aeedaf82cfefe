package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrMatchExists      = errors.New("match already exists")
	ErrMatchNotFound    = errors.New("match not found")
	ErrEventNotFound    = errors.New("event not found")
	ErrStateNotFound    = errors.New("state not found")
	ErrSequenceConflict = errors.New("sequence conflicts with log tail")
)
