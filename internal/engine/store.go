package engine

import (
	"context"

	"github.com/Proton-105/gifpick-bot/internal/domain"
	"github.com/Proton-105/gifpick-bot/internal/tenor"
)

// Store is the transactional persistence the engine drives. Every method that
// changes candidate status locks the owning request for its whole transaction.
//
// Implementations return domain.ErrRequestNotFound, domain.ErrRequestNotActive and
// domain.ErrNothingSelected (possibly wrapped) for the corresponding conditions.
type Store interface {
	CreateRequest(ctx context.Context, req *domain.Request) error
	FindRequest(ctx context.Context, token string) (*domain.Request, error)
	// UpdateRequestStatus moves the request from one status to another, failing when it is not in from.
	UpdateRequestStatus(ctx context.Context, token string, from, to domain.RequestStatus) error
	// AdvanceSelection marks the SELECTING candidate USED and promotes the lowest FETCHED one.
	// It returns nil and changes nothing when no FETCHED candidate exists.
	AdvanceSelection(ctx context.Context, token string) (*domain.Candidate, error)
	NextCursor(ctx context.Context, token string) (domain.Continuation, error)
	// AppendPageAndAdvance stores objects as FETCHED after position `after`, the last one
	// carrying next, then advances like AdvanceSelection. The page is skipped when the
	// request has moved past `after` or still holds FETCHED candidates.
	AppendPageAndAdvance(ctx context.Context, token string, after int, objects [][]byte, next string) (*domain.Candidate, error)
	// SendSelection marks the SELECTING candidate USED and deletes the remaining FETCHED ones.
	SendSelection(ctx context.Context, token string) (*domain.Candidate, error)
}

// Upstream is the paginated image search.
type Upstream interface {
	Search(ctx context.Context, query, pos string) (*tenor.Page, error)
}

// ShareRegistrar reports a posted image back to the provider.
type ShareRegistrar interface {
	RegisterShare(ctx context.Context, id, query string) error
}
