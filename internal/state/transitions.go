package state

import "github.com/Proton-105/gifpick-bot/internal/domain"

// requestTransitions lists the only forward moves of a request. Terminal statuses have no entry.
var requestTransitions = map[domain.RequestStatus][]domain.RequestStatus{
	domain.RequestSelecting: {
		domain.RequestPosted,
		domain.RequestCancelled,
	},
}

// candidateTransitions is strictly monotonic: no reverse moves and no skipping SELECTING.
var candidateTransitions = map[domain.CandidateStatus][]domain.CandidateStatus{
	domain.CandidateFetched: {
		domain.CandidateSelecting,
	},
	domain.CandidateSelecting: {
		domain.CandidateUsed,
	},
}

// IsRequestTransitionAllowed reports whether a request may move from one status to another.
func IsRequestTransitionAllowed(from, to domain.RequestStatus) bool {
	return contains(requestTransitions[from], to)
}

// IsCandidateTransitionAllowed reports whether a candidate may move from one status to another.
func IsCandidateTransitionAllowed(from, to domain.CandidateStatus) bool {
	return contains(candidateTransitions[from], to)
}

func contains[T comparable](allowed []T, target T) bool {
	for _, s := range allowed {
		if s == target {
			return true
		}
	}

	return false
}
