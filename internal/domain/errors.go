package domain

import "errors"

var (
	// ErrRequestNotFound is returned when no request carries the given token.
	ErrRequestNotFound = errors.New("request not found")
	// ErrRequestNotActive is returned for actions on a request that is no longer SELECTING.
	ErrRequestNotActive = errors.New("request is not selecting")
	// ErrNothingSelected is returned by send when no candidate is SELECTING.
	ErrNothingSelected = errors.New("no candidate is selecting")
	// ErrQueueContended is returned when concurrent refills kept superseding each other.
	ErrQueueContended = errors.New("candidate queue contended")
)
