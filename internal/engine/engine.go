// Package engine drives the per-request candidate queue: refill from upstream,
// promotion to SELECTING, consumption and the final send.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Proton-105/gifpick-bot/internal/domain"
	apperrors "github.com/Proton-105/gifpick-bot/internal/errors"
	"github.com/Proton-105/gifpick-bot/internal/state"
	"github.com/Proton-105/gifpick-bot/internal/tenor"
	"github.com/Proton-105/gifpick-bot/pkg/metrics"
)

// ErrNothingSelected is matched with errors.Is on the error returned by SelectForSend.
var ErrNothingSelected = domain.ErrNothingSelected

// Selection is a promoted candidate together with its decoded image.
type Selection struct {
	Candidate domain.Candidate
	Image     *tenor.Image
}

// Option customises an Engine.
type Option func(*Engine)

// WithShareRegistrar routes share registration elsewhere, e.g. to a job queue.
func WithShareRegistrar(r ShareRegistrar) Option {
	return func(e *Engine) {
		if r != nil {
			e.shares = r
		}
	}
}

// WithClock overrides the request timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

type Engine struct {
	store    Store
	upstream Upstream
	shares   ShareRegistrar
	log      *slog.Logger
	now      func() time.Time
}

// New builds an Engine. When upstream also implements ShareRegistrar it is used
// for share registration unless WithShareRegistrar says otherwise.
func New(store Store, upstream Upstream, log *slog.Logger, opts ...Option) *Engine {
	if log == nil {
		log = slog.Default()
	}

	e := &Engine{
		store:    store,
		upstream: upstream,
		log:      log,
		now:      time.Now,
	}
	if r, ok := upstream.(ShareRegistrar); ok {
		e.shares = r
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Create stores a new SELECTING request with a fresh token.
func (e *Engine) Create(ctx context.Context, userID, conversationID, search string) (*domain.Request, error) {
	req := &domain.Request{
		Timestamp:      e.now().UTC(),
		UserID:         userID,
		ConversationID: conversationID,
		Token:          uuid.NewString(),
		SearchString:   search,
		Status:         domain.RequestSelecting,
	}

	if err := e.store.CreateRequest(ctx, req); err != nil {
		return nil, e.storeError(err)
	}

	e.log.InfoContext(ctx, "request created",
		slog.String("block_uid", req.Token),
		slog.String("user_id", userID),
		slog.String("conversation_id", conversationID),
		slog.String("query", search),
	)

	return req, nil
}

// FetchRequestMeta returns the stored request.
func (e *Engine) FetchRequestMeta(ctx context.Context, token string) (*domain.Request, error) {
	req, err := e.store.FindRequest(ctx, token)
	if err != nil {
		return nil, e.storeError(err)
	}

	return req, nil
}

// maxRefills bounds how often Advance fetches again after a concurrent event
// refilled and drained the queue between its read and its append.
const maxRefills = 3

// Advance consumes the shown candidate and selects the next one, fetching a new
// upstream page when the local queue is empty. If the fetch fails or yields nothing
// the current selection is left untouched.
func (e *Engine) Advance(ctx context.Context, token string) (*Selection, error) {
	cand, err := e.store.AdvanceSelection(ctx, token)
	if err != nil {
		return nil, e.storeError(err)
	}
	if cand != nil {
		return e.selection(ctx, token, cand)
	}

	req, err := e.store.FindRequest(ctx, token)
	if err != nil {
		return nil, e.storeError(err)
	}

	for attempt := 1; attempt <= maxRefills; attempt++ {
		cand, err = e.refill(ctx, req)
		if err != nil {
			return nil, err
		}
		if cand != nil {
			return e.selection(ctx, token, cand)
		}

		e.log.InfoContext(ctx, "fetched page superseded by a concurrent refill",
			slog.String("block_uid", token),
			slog.Int("attempt", attempt),
		)
	}

	return nil, apperrors.NewStateError(
		fmt.Sprintf("request %s: queue kept changing during refill", token),
		domain.ErrQueueContended,
	)
}

// refill fetches the page after the highest stored candidate and appends it.
// A nil candidate without error means another event refilled the queue first
// and nothing was left to promote.
func (e *Engine) refill(ctx context.Context, req *domain.Request) (*domain.Candidate, error) {
	token := req.Token

	cont, err := e.store.NextCursor(ctx, token)
	if err != nil {
		return nil, e.storeError(err)
	}

	var pos string
	if cont.LastPosition > 0 {
		if cont.Cursor == nil {
			e.log.ErrorContext(ctx, "last candidate carries no cursor",
				slog.String("block_uid", token),
				slog.Int("position", cont.LastPosition),
			)
			return nil, apperrors.NewConsistencyError(
				fmt.Sprintf("request %s: candidate at position %d has no next_pos", token, cont.LastPosition),
			)
		}
		if *cont.Cursor == "" {
			// upstream reported no further pages
			return nil, apperrors.NewExhaustedError(req.SearchString)
		}
		pos = *cont.Cursor
	}

	page, err := e.upstream.Search(ctx, req.SearchString, pos)
	if err != nil {
		return nil, err
	}

	objects := e.usable(ctx, token, page.Results)
	if len(objects) == 0 {
		e.log.InfoContext(ctx, "upstream exhausted",
			slog.String("block_uid", token),
			slog.String("query", req.SearchString),
			slog.String("pos", pos),
		)
		return nil, apperrors.NewExhaustedError(req.SearchString)
	}

	cand, err := e.store.AppendPageAndAdvance(ctx, token, cont.LastPosition, objects, page.Next)
	if err != nil {
		return nil, e.storeError(err)
	}
	if cand != nil {
		metrics.AddCandidatesFetched(len(objects))
	}

	return cand, nil
}

// SelectForSend consumes the shown candidate for posting and drops the rest of the queue.
func (e *Engine) SelectForSend(ctx context.Context, token string) (*Selection, error) {
	cand, err := e.store.SendSelection(ctx, token)
	if err != nil {
		return nil, e.storeError(err)
	}

	return e.selection(ctx, token, cand)
}

// MarkPosted concludes the request after its image was posted.
func (e *Engine) MarkPosted(ctx context.Context, token string) error {
	return e.conclude(ctx, token, domain.RequestPosted)
}

// MarkCancelled concludes the request without posting.
func (e *Engine) MarkCancelled(ctx context.Context, token string) error {
	return e.conclude(ctx, token, domain.RequestCancelled)
}

// RegisterShare reports the posted image upstream. Failures are logged and never returned.
func (e *Engine) RegisterShare(ctx context.Context, req *domain.Request, img *tenor.Image) {
	if e.shares == nil || req == nil || img == nil {
		return
	}

	if err := e.shares.RegisterShare(ctx, img.ID(), req.SearchString); err != nil {
		e.log.WarnContext(ctx, "share registration failed",
			slog.String("block_uid", req.Token),
			slog.String("image_id", img.ID()),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) conclude(ctx context.Context, token string, to domain.RequestStatus) error {
	if err := e.store.UpdateRequestStatus(ctx, token, domain.RequestSelecting, to); err != nil {
		return e.storeError(err)
	}

	e.log.InfoContext(ctx, "request concluded",
		slog.String("block_uid", token),
		slog.String("status", string(to)),
	)

	return nil
}

// usable keeps the objects that decode and have a displayable GIF variant.
func (e *Engine) usable(ctx context.Context, token string, results []json.RawMessage) [][]byte {
	objects := make([][]byte, 0, len(results))
	discarded := map[string]int{}

	for _, raw := range results {
		img, err := tenor.NewImage(raw)
		if err != nil {
			discarded["decode"]++
			continue
		}
		if _, err := img.BestVariant(); err != nil {
			discarded["no_media"]++
			e.log.WarnContext(ctx, "discarding upstream object",
				slog.String("block_uid", token),
				slog.String("image_id", img.ID()),
				slog.String("error", err.Error()),
			)
			continue
		}
		objects = append(objects, []byte(raw))
	}

	for reason, n := range discarded {
		metrics.AddCandidatesDiscarded(reason, n)
	}

	return objects
}

func (e *Engine) selection(ctx context.Context, token string, cand *domain.Candidate) (*Selection, error) {
	img, err := tenor.NewImage(cand.Object)
	if err != nil {
		return nil, apperrors.NewDataQualityError(fmt.Sprintf("candidate %d is not a valid object", cand.ID), err)
	}

	v, err := img.BestVariant()
	if err != nil {
		return nil, apperrors.NewDataQualityError(fmt.Sprintf("candidate %d has no displayable media", cand.ID), err)
	}

	e.log.InfoContext(ctx, "candidate selected",
		slog.String("block_uid", token),
		slog.Int("position", cand.Position),
		slog.String("status", string(cand.Status)),
		slog.String("image_id", img.ID()),
		slog.String("media_format", v.Format),
		slog.Int64("media_size", v.Size),
	)

	return &Selection{Candidate: *cand, Image: img}, nil
}

// storeError maps store sentinels to state errors and wraps anything untyped as a database error.
func (e *Engine) storeError(err error) error {
	var appErr *apperrors.AppError
	switch {
	case errors.Is(err, domain.ErrRequestNotFound):
		return apperrors.NewStateError("unknown request", err)
	case errors.Is(err, domain.ErrRequestNotActive):
		return apperrors.NewStateError("request is no longer selecting", err)
	case errors.Is(err, domain.ErrNothingSelected):
		return apperrors.NewStateError("nothing selected to send", err)
	case errors.Is(err, state.ErrInvalidTransition):
		return apperrors.NewStateError("transition not allowed", err)
	case errors.As(err, &appErr):
		return err
	default:
		return apperrors.NewDatabaseError(err)
	}
}
