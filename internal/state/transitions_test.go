package state

import (
	"errors"
	"testing"

	"github.com/Proton-105/gifpick-bot/internal/domain"
)

func TestIsRequestTransitionAllowed(t *testing.T) {
	testCases := []struct {
		name     string
		from     domain.RequestStatus
		to       domain.RequestStatus
		expected bool
	}{
		{name: "selecting to posted", from: domain.RequestSelecting, to: domain.RequestPosted, expected: true},
		{name: "selecting to cancelled", from: domain.RequestSelecting, to: domain.RequestCancelled, expected: true},
		{name: "posted twice", from: domain.RequestPosted, to: domain.RequestPosted, expected: false},
		{name: "cancelled twice", from: domain.RequestCancelled, to: domain.RequestCancelled, expected: false},
		{name: "posted to cancelled", from: domain.RequestPosted, to: domain.RequestCancelled, expected: false},
		{name: "cancelled to posted", from: domain.RequestCancelled, to: domain.RequestPosted, expected: false},
		{name: "back to selecting", from: domain.RequestPosted, to: domain.RequestSelecting, expected: false},
		{name: "unknown status", from: domain.RequestStatus("DRAFT"), to: domain.RequestPosted, expected: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if actual := IsRequestTransitionAllowed(tc.from, tc.to); actual != tc.expected {
				t.Errorf("IsRequestTransitionAllowed(%s -> %s) = %t, expected %t", tc.from, tc.to, actual, tc.expected)
			}
		})
	}
}

func TestIsCandidateTransitionAllowed(t *testing.T) {
	testCases := []struct {
		name     string
		from     domain.CandidateStatus
		to       domain.CandidateStatus
		expected bool
	}{
		{name: "fetched to selecting", from: domain.CandidateFetched, to: domain.CandidateSelecting, expected: true},
		{name: "selecting to used", from: domain.CandidateSelecting, to: domain.CandidateUsed, expected: true},
		{name: "fetched to used skips selecting", from: domain.CandidateFetched, to: domain.CandidateUsed, expected: false},
		{name: "used to selecting reverse", from: domain.CandidateUsed, to: domain.CandidateSelecting, expected: false},
		{name: "selecting to fetched reverse", from: domain.CandidateSelecting, to: domain.CandidateFetched, expected: false},
		{name: "used is terminal", from: domain.CandidateUsed, to: domain.CandidateUsed, expected: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if actual := IsCandidateTransitionAllowed(tc.from, tc.to); actual != tc.expected {
				t.Errorf("IsCandidateTransitionAllowed(%s -> %s) = %t, expected %t", tc.from, tc.to, actual, tc.expected)
			}
		})
	}
}

func TestCheckRequest(t *testing.T) {
	if err := CheckRequest(domain.RequestSelecting, domain.RequestPosted); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	err := CheckRequest(domain.RequestPosted, domain.RequestPosted)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestRegisterTransitionRecorder(t *testing.T) {
	var got []string
	RegisterTransitionRecorder(func(kind Kind, from, to string) {
		got = append(got, string(kind)+":"+from+"->"+to)
	})
	t.Cleanup(func() { RegisterTransitionRecorder(nil) })

	RecordCandidate(domain.CandidateFetched, domain.CandidateSelecting)
	RecordRequest(domain.RequestSelecting, domain.RequestCancelled)

	want := []string{"candidate:FETCHED->SELECTING", "request:SELECTING->CANCELLED"}
	if len(got) != len(want) {
		t.Fatalf("expected %d recorded transitions, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, got[i], want[i])
		}
	}
}
