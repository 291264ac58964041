package engine

import (
	"context"
	"sort"
	"sync"

	"github.com/Proton-105/gifpick-bot/internal/domain"
)

// memStore is an in-memory Store with the same locking semantics as the SQL store:
// every operation runs under one mutex, standing in for the request row lock.
type memStore struct {
	mu         sync.Mutex
	nextID     int64
	requests   map[string]*domain.Request
	candidates map[int64][]*domain.Candidate
}

func newMemStore() *memStore {
	return &memStore{
		requests:   make(map[string]*domain.Request),
		candidates: make(map[int64][]*domain.Candidate),
	}
}

func (s *memStore) CreateRequest(_ context.Context, req *domain.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	req.ID = s.nextID
	stored := *req
	s.requests[req.Token] = &stored

	return nil
}

func (s *memStore) FindRequest(_ context.Context, token string) (*domain.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[token]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	out := *req

	return &out, nil
}

func (s *memStore) UpdateRequestStatus(_ context.Context, token string, from, to domain.RequestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[token]
	if !ok {
		return domain.ErrRequestNotFound
	}
	if req.Status != from {
		return domain.ErrRequestNotActive
	}
	req.Status = to

	return nil
}

func (s *memStore) AdvanceSelection(_ context.Context, token string) (*domain.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, err := s.activeLocked(token)
	if err != nil {
		return nil, err
	}

	return s.advanceLocked(req.ID), nil
}

func (s *memStore) NextCursor(_ context.Context, token string) (domain.Continuation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[token]
	if !ok {
		return domain.Continuation{}, domain.ErrRequestNotFound
	}

	cands := s.candidates[req.ID]
	if len(cands) == 0 {
		return domain.Continuation{}, nil
	}
	last := cands[len(cands)-1]

	return domain.Continuation{LastPosition: last.Position, Cursor: last.NextPos}, nil
}

func (s *memStore) AppendPageAndAdvance(_ context.Context, token string, after int, objects [][]byte, next string) (*domain.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, err := s.activeLocked(token)
	if err != nil {
		return nil, err
	}

	cands := s.candidates[req.ID]
	maxPos := 0
	hasFetched := false
	for _, c := range cands {
		if c.Position > maxPos {
			maxPos = c.Position
		}
		if c.Status == domain.CandidateFetched {
			hasFetched = true
		}
	}

	if maxPos == after && !hasFetched {
		for i, obj := range objects {
			s.nextID++
			c := &domain.Candidate{
				ID:        s.nextID,
				RequestID: req.ID,
				Position:  maxPos + i + 1,
				Object:    append([]byte(nil), obj...),
				Status:    domain.CandidateFetched,
			}
			if i == len(objects)-1 {
				cursor := next
				c.NextPos = &cursor
			}
			cands = append(cands, c)
		}
		s.candidates[req.ID] = cands
	}

	return s.advanceLocked(req.ID), nil
}

func (s *memStore) SendSelection(_ context.Context, token string) (*domain.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, err := s.activeLocked(token)
	if err != nil {
		return nil, err
	}

	selected := s.firstLocked(req.ID, domain.CandidateSelecting)
	if selected == nil {
		return nil, domain.ErrNothingSelected
	}
	selected.Status = domain.CandidateUsed

	kept := s.candidates[req.ID][:0]
	for _, c := range s.candidates[req.ID] {
		if c.Status != domain.CandidateFetched {
			kept = append(kept, c)
		}
	}
	s.candidates[req.ID] = kept

	out := *selected
	return &out, nil
}

func (s *memStore) activeLocked(token string) (*domain.Request, error) {
	req, ok := s.requests[token]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	if req.Status != domain.RequestSelecting {
		return nil, domain.ErrRequestNotActive
	}

	return req, nil
}

func (s *memStore) advanceLocked(requestID int64) *domain.Candidate {
	next := s.firstLocked(requestID, domain.CandidateFetched)
	if next == nil {
		return nil
	}

	if current := s.firstLocked(requestID, domain.CandidateSelecting); current != nil {
		current.Status = domain.CandidateUsed
	}
	next.Status = domain.CandidateSelecting

	out := *next
	return &out
}

func (s *memStore) firstLocked(requestID int64, status domain.CandidateStatus) *domain.Candidate {
	for _, c := range s.candidates[requestID] {
		if c.Status == status {
			return c
		}
	}

	return nil
}

// snapshot returns copies of the request's candidates ordered by position.
func (s *memStore) snapshot(token string) []domain.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[token]
	if !ok {
		return nil
	}

	out := make([]domain.Candidate, 0, len(s.candidates[req.ID]))
	for _, c := range s.candidates[req.ID] {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })

	return out
}

// corruptCursor clears next_pos on the highest-position candidate.
func (s *memStore) corruptCursor(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cands := s.candidates[s.requests[token].ID]
	cands[len(cands)-1].NextPos = nil
}
