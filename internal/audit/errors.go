package audit

import "errors"

// Errors surfaced by the lifecycle controller. Stores return ErrNotFound
// (optionally wrapped) and the controller translates it to ErrUnknownReport.
var (
	ErrInvalidURL           = errors.New("invalid url")
	ErrNoActiveSubscription = errors.New("no active subscription")
	ErrQuotaExhausted       = errors.New("quota exhausted")
	ErrUnauthenticated      = errors.New("unauthenticated")
	ErrUnknownReport        = errors.New("unknown report")
	ErrInvalidTransition    = errors.New("invalid transition")
	ErrInvalidPayload       = errors.New("invalid report payload")
	ErrNotFound             = errors.New("not found")
	ErrAlreadyExists        = errors.New("already exists")
	ErrQueueClosed          = errors.New("queue closed")
)
