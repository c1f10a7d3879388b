package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidSpec         = errors.New("invalid generation spec")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidTaskState    = errors.New("invalid task state")
	ErrProviderFailure     = errors.New("provider failure")
)
