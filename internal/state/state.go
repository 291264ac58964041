// Package state defines the allowed status transitions of requests and candidates.
package state

import (
	"errors"
	"fmt"

	"github.com/Proton-105/gifpick-bot/internal/domain"
)

// Kind names the entity whose status changed, used as a metrics label.
type Kind string

const (
	KindRequest   Kind = "request"
	KindCandidate Kind = "candidate"
)

// ErrInvalidTransition indicates that a requested status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid state transition")

var transitionRecorder = func(kind Kind, from, to string) {}

// RegisterTransitionRecorder allows external packages to observe committed transitions.
func RegisterTransitionRecorder(recorder func(kind Kind, from, to string)) {
	if recorder == nil {
		transitionRecorder = func(Kind, string, string) {}
		return
	}

	transitionRecorder = recorder
}

// RecordRequest reports a committed request transition.
func RecordRequest(from, to domain.RequestStatus) {
	transitionRecorder(KindRequest, string(from), string(to))
}

// RecordCandidate reports a committed candidate transition.
func RecordCandidate(from, to domain.CandidateStatus) {
	transitionRecorder(KindCandidate, string(from), string(to))
}

// CheckRequest returns ErrInvalidTransition wrapped with context when from→to is not allowed.
func CheckRequest(from, to domain.RequestStatus) error {
	if !IsRequestTransitionAllowed(from, to) {
		return fmt.Errorf("request %s -> %s: %w", from, to, ErrInvalidTransition)
	}
	return nil
}

// CheckCandidate returns ErrInvalidTransition wrapped with context when from→to is not allowed.
func CheckCandidate(from, to domain.CandidateStatus) error {
	if !IsCandidateTransitionAllowed(from, to) {
		return fmt.Errorf("candidate %s -> %s: %w", from, to, ErrInvalidTransition)
	}
	return nil
}
