package domain

// CandidateStatus is the lifecycle status of one fetched upstream object.
type CandidateStatus string

const (
	CandidateFetched   CandidateStatus = "FETCHED"
	CandidateSelecting CandidateStatus = "SELECTING"
	CandidateUsed      CandidateStatus = "USED"
)

// Candidate is one upstream object queued for a request, stored in tenor_result.
type Candidate struct {
	ID        int64
	RequestID int64
	// Position is the 1-based rank within the request, continued across pages.
	Position int
	// Object is the upstream JSON exactly as received. It is never modified.
	Object []byte
	Status CandidateStatus
	// NextPos is set only on the last candidate of each fetched page.
	NextPos *string
}

// Cursor returns the continuation cursor, or "" when the candidate carries none.
func (c *Candidate) Cursor() string {
	if c == nil || c.NextPos == nil {
		return ""
	}
	return *c.NextPos
}

// Continuation tells where the next upstream page of a request starts.
type Continuation struct {
	// LastPosition is the highest stored position, 0 when nothing was fetched yet.
	LastPosition int
	// Cursor is the next_pos of the candidate at LastPosition.
	Cursor *string
}
