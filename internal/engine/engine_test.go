package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/gifpick-bot/internal/domain"
	apperrors "github.com/Proton-105/gifpick-bot/internal/errors"
	"github.com/Proton-105/gifpick-bot/internal/tenor"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func gifObject(id string, size int64) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"id":%q,"content_description":"%s GIF","media":[{"gif":{"url":"https://media.example/%s.gif","size":%d}}]}`,
		id, id, id, size,
	))
}

type fakeUpstream struct {
	mu    sync.Mutex
	pages func(query, pos string) (*tenor.Page, error)
	calls []string
}

func (f *fakeUpstream) Search(_ context.Context, query, pos string) (*tenor.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, pos)
	f.mu.Unlock()

	return f.pages(query, pos)
}

func (f *fakeUpstream) positions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// infinitePages serves pages of size objects forever; page n is requested with pos "p<n>".
func infinitePages(size int) func(string, string) (*tenor.Page, error) {
	return func(_ string, pos string) (*tenor.Page, error) {
		n := 0
		if pos != "" {
			if _, err := fmt.Sscanf(pos, "p%d", &n); err != nil {
				return nil, err
			}
		}

		page := &tenor.Page{Next: fmt.Sprintf("p%d", n+1)}
		for i := 0; i < size; i++ {
			page.Results = append(page.Results, gifObject(fmt.Sprintf("p%d-%d", n, i), 1024))
		}

		return page, nil
	}
}

// fixedPages serves the given pages keyed by pos; unknown positions return an empty page.
func fixedPages(pages map[string]*tenor.Page) func(string, string) (*tenor.Page, error) {
	return func(_ string, pos string) (*tenor.Page, error) {
		if p, ok := pages[pos]; ok {
			return p, nil
		}
		return &tenor.Page{}, nil
	}
}

type shareMock struct {
	mock.Mock
}

func (m *shareMock) RegisterShare(ctx context.Context, id, query string) error {
	args := m.Called(ctx, id, query)
	return args.Error(0)
}

func setup(t *testing.T, pages func(string, string) (*tenor.Page, error), opts ...Option) (*Engine, *memStore, *fakeUpstream) {
	t.Helper()

	store := newMemStore()
	upstream := &fakeUpstream{pages: pages}

	return New(store, upstream, testLogger(), opts...), store, upstream
}

func assertQueueInvariants(t *testing.T, cands []domain.Candidate) {
	t.Helper()

	selecting := 0
	for i, c := range cands {
		assert.Equal(t, i+1, c.Position, "positions must be gapless from 1")
		if c.Status == domain.CandidateSelecting {
			selecting++
		}
	}
	assert.LessOrEqual(t, selecting, 1, "at most one SELECTING candidate")
}

func countStatus(cands []domain.Candidate, status domain.CandidateStatus) int {
	n := 0
	for _, c := range cands {
		if c.Status == status {
			n++
		}
	}
	return n
}

func TestEngine_CreateStoresSelectingRequest(t *testing.T) {
	created := time.Date(2024, 3, 9, 14, 30, 0, 0, time.FixedZone("CET", 3600))
	eng, _, upstream := setup(t, infinitePages(5), WithClock(func() time.Time { return created }))
	ctx := context.Background()

	req, err := eng.Create(ctx, "u1", "c1", "cats")
	require.NoError(t, err)
	assert.NotZero(t, req.ID)
	assert.NotEmpty(t, req.Token)
	assert.Equal(t, domain.RequestSelecting, req.Status)
	assert.Equal(t, created.UTC(), req.Timestamp)
	assert.Equal(t, time.UTC, req.Timestamp.Location())

	stored, err := eng.FetchRequestMeta(ctx, req.Token)
	require.NoError(t, err)
	assert.Equal(t, "cats", stored.SearchString)
	assert.Equal(t, "u1", stored.UserID)
	assert.Equal(t, "c1", stored.ConversationID)
	assert.Empty(t, upstream.positions(), "creating a request does not fetch")
}

func TestEngine_EndToEndSinglePage(t *testing.T) {
	eng, store, upstream := setup(t, fixedPages(map[string]*tenor.Page{
		"": {
			Results: []json.RawMessage{
				gifObject("a", 1024), gifObject("b", 1024), gifObject("c", 1024),
				gifObject("d", 1024), gifObject("e", 1024),
			},
			Next: "5",
		},
	}))
	ctx := context.Background()

	req, err := eng.Create(ctx, "u1", "c1", "cats")
	require.NoError(t, err)

	for want := 1; want <= 5; want++ {
		sel, err := eng.Advance(ctx, req.Token)
		require.NoError(t, err)
		assert.Equal(t, want, sel.Candidate.Position)
		assert.Equal(t, domain.CandidateSelecting, sel.Candidate.Status)
		assertQueueInvariants(t, store.snapshot(req.Token))
	}
	assert.Equal(t, []string{""}, upstream.positions())

	sent, err := eng.SelectForSend(ctx, req.Token)
	require.NoError(t, err)
	assert.Equal(t, 5, sent.Candidate.Position)
	assert.Equal(t, domain.CandidateUsed, sent.Candidate.Status)
	assert.Equal(t, "e", sent.Image.ID())

	cands := store.snapshot(req.Token)
	require.Len(t, cands, 5)
	assert.Equal(t, 5, countStatus(cands, domain.CandidateUsed))
	assert.Equal(t, "5", cands[4].Cursor())

	meta, err := eng.FetchRequestMeta(ctx, req.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestSelecting, meta.Status, "status changes only when marked")

	require.NoError(t, eng.MarkPosted(ctx, req.Token))
	meta, err = eng.FetchRequestMeta(ctx, req.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestPosted, meta.Status)
}

func TestEngine_SendDeletesRemainingFetched(t *testing.T) {
	eng, store, _ := setup(t, infinitePages(5))
	ctx := context.Background()

	req, err := eng.Create(ctx, "u1", "c1", "cats")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := eng.Advance(ctx, req.Token)
		require.NoError(t, err)
	}

	sent, err := eng.SelectForSend(ctx, req.Token)
	require.NoError(t, err)
	assert.Equal(t, 4, sent.Candidate.Position)

	cands := store.snapshot(req.Token)
	assert.Len(t, cands, 4)
	assert.Equal(t, 0, countStatus(cands, domain.CandidateFetched))
	assert.Equal(t, 0, countStatus(cands, domain.CandidateSelecting))
	assert.Equal(t, 4, countStatus(cands, domain.CandidateUsed))
}

func TestEngine_AdvanceVisitsIncreasingPositionsAcrossPages(t *testing.T) {
	eng, store, upstream := setup(t, infinitePages(5))
	ctx := context.Background()

	req, err := eng.Create(ctx, "u1", "c1", "dogs")
	require.NoError(t, err)

	seen := map[string]bool{}
	last := 0
	for i := 0; i < 23; i++ {
		sel, err := eng.Advance(ctx, req.Token)
		require.NoError(t, err)
		assert.Greater(t, sel.Candidate.Position, last)
		last = sel.Candidate.Position

		assert.False(t, seen[sel.Image.ID()], "image %s shown twice", sel.Image.ID())
		seen[sel.Image.ID()] = true

		cands := store.snapshot(req.Token)
		assertQueueInvariants(t, cands)
		assert.Equal(t, i, countStatus(cands, domain.CandidateUsed))
	}

	assert.Equal(t, []string{"", "p1", "p2", "p3", "p4"}, upstream.positions())

	cands := store.snapshot(req.Token)
	require.Len(t, cands, 25)
	for _, c := range cands {
		if c.Position%5 == 0 {
			assert.NotNil(t, c.NextPos, "last of page at %d carries the cursor", c.Position)
		} else {
			assert.Nil(t, c.NextPos, "position %d carries no cursor", c.Position)
		}
	}
}

func TestEngine_ExhaustionKeepsCurrentSelection(t *testing.T) {
	eng, store, upstream := setup(t, fixedPages(map[string]*tenor.Page{
		"": {Results: []json.RawMessage{gifObject("a", 1024), gifObject("b", 1024)}, Next: "p1"},
	}))
	ctx := context.Background()

	req, err := eng.Create(ctx, "u1", "c1", "rare")
	require.NoError(t, err)

	_, err = eng.Advance(ctx, req.Token)
	require.NoError(t, err)
	_, err = eng.Advance(ctx, req.Token)
	require.NoError(t, err)

	_, err = eng.Advance(ctx, req.Token)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeExhausted))
	assert.Equal(t, []string{"", "p1"}, upstream.positions())

	// repeated next fetches again with the same cursor and does not loop or consume
	_, err = eng.Advance(ctx, req.Token)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeExhausted))
	assert.Equal(t, []string{"", "p1", "p1"}, upstream.positions())

	cands := store.snapshot(req.Token)
	require.Len(t, cands, 2)
	assert.Equal(t, domain.CandidateSelecting, cands[1].Status)

	sent, err := eng.SelectForSend(ctx, req.Token)
	require.NoError(t, err)
	assert.Equal(t, 2, sent.Candidate.Position)
}

func TestEngine_EmptyCursorEndsWithoutFetching(t *testing.T) {
	eng, _, upstream := setup(t, fixedPages(map[string]*tenor.Page{
		"": {Results: []json.RawMessage{gifObject("a", 1024)}, Next: ""},
	}))
	ctx := context.Background()

	req, err := eng.Create(ctx, "u1", "c1", "one")
	require.NoError(t, err)

	_, err = eng.Advance(ctx, req.Token)
	require.NoError(t, err)

	_, err = eng.Advance(ctx, req.Token)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeExhausted))
	assert.Equal(t, []string{""}, upstream.positions())
}

func TestEngine_FirstFetchEmptyIsExhaustion(t *testing.T) {
	eng, store, _ := setup(t, fixedPages(nil))
	ctx := context.Background()

	req, err := eng.Create(ctx, "u1", "c1", "zzzz")
	require.NoError(t, err)

	_, err = eng.Advance(ctx, req.Token)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeExhausted))
	assert.Empty(t, store.snapshot(req.Token))
}

func TestEngine_MissingCursorIsConsistencyError(t *testing.T) {
	eng, store, upstream := setup(t, infinitePages(2))
	ctx := context.Background()

	req, err := eng.Create(ctx, "u1", "c1", "cats")
	require.NoError(t, err)

	_, err = eng.Advance(ctx, req.Token)
	require.NoError(t, err)
	_, err = eng.Advance(ctx, req.Token)
	require.NoError(t, err)

	store.corruptCursor(req.Token)

	_, err = eng.Advance(ctx, req.Token)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConsistency))
	assert.Equal(t, []string{""}, upstream.positions(), "no fetch without a cursor")
}

func TestEngine_UpstreamFailureKeepsCurrentSelection(t *testing.T) {
	fail := false
	eng, store, _ := setup(t, func(q, pos string) (*tenor.Page, error) {
		if fail {
			return nil, apperrors.NewExternalAPIError("tenor search", errors.New("unexpected status 500"))
		}
		return infinitePages(1)(q, pos)
	})
	ctx := context.Background()

	req, err := eng.Create(ctx, "u1", "c1", "cats")
	require.NoError(t, err)
	_, err = eng.Advance(ctx, req.Token)
	require.NoError(t, err)

	fail = true
	_, err = eng.Advance(ctx, req.Token)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUpstream))

	cands := store.snapshot(req.Token)
	require.Len(t, cands, 1)
	assert.Equal(t, domain.CandidateSelecting, cands[0].Status)

	fail = false
	sel, err := eng.Advance(ctx, req.Token)
	require.NoError(t, err)
	assert.Equal(t, 2, sel.Candidate.Position)
}

func TestEngine_FiltersObjectsWithoutUsableMedia(t *testing.T) {
	eng, store, _ := setup(t, fixedPages(map[string]*tenor.Page{
		"": {
			Results: []json.RawMessage{
				gifObject("small", 1024),
				gifObject("huge", 3<<20),
				json.RawMessage(`{"id":`),
				gifObject("medium", 1<<20),
			},
			Next: "p1",
		},
	}))
	ctx := context.Background()

	req, err := eng.Create(ctx, "u1", "c1", "cats")
	require.NoError(t, err)

	sel, err := eng.Advance(ctx, req.Token)
	require.NoError(t, err)
	assert.Equal(t, "small", sel.Image.ID())

	cands := store.snapshot(req.Token)
	require.Len(t, cands, 2)
	assertQueueInvariants(t, cands)
	assert.Nil(t, cands[0].NextPos)
	assert.Equal(t, "p1", cands[1].Cursor())

	sel, err = eng.Advance(ctx, req.Token)
	require.NoError(t, err)
	assert.Equal(t, "medium", sel.Image.ID())
}

func TestEngine_PageWithoutUsableObjectsIsExhaustion(t *testing.T) {
	eng, store, _ := setup(t, fixedPages(map[string]*tenor.Page{
		"": {Results: []json.RawMessage{gifObject("huge", 3<<20)}, Next: "p1"},
	}))
	ctx := context.Background()

	req, err := eng.Create(ctx, "u1", "c1", "cats")
	require.NoError(t, err)

	_, err = eng.Advance(ctx, req.Token)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeExhausted))
	assert.Empty(t, store.snapshot(req.Token))
}

func TestEngine_SendWithoutSelection(t *testing.T) {
	eng, _, _ := setup(t, infinitePages(5))
	ctx := context.Background()

	req, err := eng.Create(ctx, "u1", "c1", "cats")
	require.NoError(t, err)

	_, err = eng.SelectForSend(ctx, req.Token)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNothingSelected)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeState))
	assert.False(t, apperrors.IsCode(err, apperrors.CodeExhausted))
}

func TestEngine_DoubleSend(t *testing.T) {
	eng, _, _ := setup(t, infinitePages(5))
	ctx := context.Background()

	req, err := eng.Create(ctx, "u1", "c1", "cats")
	require.NoError(t, err)
	_, err = eng.Advance(ctx, req.Token)
	require.NoError(t, err)

	_, err = eng.SelectForSend(ctx, req.Token)
	require.NoError(t, err)

	_, err = eng.SelectForSend(ctx, req.Token)
	assert.ErrorIs(t, err, ErrNothingSelected)

	require.NoError(t, eng.MarkPosted(ctx, req.Token))

	_, err = eng.SelectForSend(ctx, req.Token)
	assert.ErrorIs(t, err, domain.ErrRequestNotActive)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeState))
}

func TestEngine_ConcludeOnlyOnce(t *testing.T) {
	eng, _, _ := setup(t, infinitePages(5))
	ctx := context.Background()

	posted, err := eng.Create(ctx, "u1", "c1", "cats")
	require.NoError(t, err)
	require.NoError(t, eng.MarkPosted(ctx, posted.Token))
	assert.True(t, apperrors.IsCode(eng.MarkPosted(ctx, posted.Token), apperrors.CodeState))
	assert.True(t, apperrors.IsCode(eng.MarkCancelled(ctx, posted.Token), apperrors.CodeState))

	cancelled, err := eng.Create(ctx, "u1", "c1", "dogs")
	require.NoError(t, err)
	require.NoError(t, eng.MarkCancelled(ctx, cancelled.Token))
	assert.True(t, apperrors.IsCode(eng.MarkCancelled(ctx, cancelled.Token), apperrors.CodeState))
	assert.True(t, apperrors.IsCode(eng.MarkPosted(ctx, cancelled.Token), apperrors.CodeState))

	meta, err := eng.FetchRequestMeta(ctx, cancelled.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestCancelled, meta.Status)

	_, err = eng.Advance(ctx, cancelled.Token)
	assert.ErrorIs(t, err, domain.ErrRequestNotActive)
}

func TestEngine_UnknownToken(t *testing.T) {
	eng, _, _ := setup(t, infinitePages(5))
	ctx := context.Background()

	_, err := eng.Advance(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrRequestNotFound)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeState))

	_, err = eng.FetchRequestMeta(ctx, "missing")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeState))
}

func TestEngine_ConcurrentAdvances(t *testing.T) {
	eng, store, _ := setup(t, infinitePages(3))
	ctx := context.Background()

	req, err := eng.Create(ctx, "u1", "c1", "cats")
	require.NoError(t, err)

	const workers = 12
	positions := make(chan int, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sel, err := eng.Advance(ctx, req.Token)
			if assert.NoError(t, err) {
				positions <- sel.Candidate.Position
			}
		}()
	}
	wg.Wait()
	close(positions)

	seen := map[int]bool{}
	for p := range positions {
		assert.False(t, seen[p], "position %d returned twice", p)
		seen[p] = true
	}

	cands := store.snapshot(req.Token)
	assertQueueInvariants(t, cands)
	assert.Equal(t, 1, countStatus(cands, domain.CandidateSelecting))
	assert.Equal(t, workers-1, countStatus(cands, domain.CandidateUsed))
}

func TestEngine_RefillSupersededByConcurrentRefill(t *testing.T) {
	// both callers must read the cursor before either appends
	var arrived sync.WaitGroup
	arrived.Add(2)
	pages := infinitePages(1)

	eng, store, upstream := setup(t, func(q, pos string) (*tenor.Page, error) {
		if pos == "p1" {
			arrived.Done()
			arrived.Wait()
		}
		return pages(q, pos)
	})
	ctx := context.Background()

	req, err := eng.Create(ctx, "u1", "c1", "cats")
	require.NoError(t, err)
	first, err := eng.Advance(ctx, req.Token)
	require.NoError(t, err)
	require.Equal(t, 1, first.Candidate.Position)

	var wg sync.WaitGroup
	results := make([]*Selection, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = eng.Advance(ctx, req.Token)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.ElementsMatch(t, []int{2, 3}, []int{results[0].Candidate.Position, results[1].Candidate.Position})

	cands := store.snapshot(req.Token)
	assertQueueInvariants(t, cands)
	assert.Len(t, cands, 3)
	assert.Equal(t, 2, countStatus(cands, domain.CandidateUsed))
	assert.Equal(t, 1, countStatus(cands, domain.CandidateSelecting))
	assert.ElementsMatch(t, []string{"", "p1", "p1", "p2"}, upstream.positions())
}

// droppingStore discards every appended page, as if another event always refilled first.
type droppingStore struct {
	*memStore
}

func (droppingStore) AppendPageAndAdvance(context.Context, string, int, [][]byte, string) (*domain.Candidate, error) {
	return nil, nil
}

func TestEngine_RefillGivesUpWhenAlwaysSuperseded(t *testing.T) {
	store := droppingStore{newMemStore()}
	upstream := &fakeUpstream{pages: infinitePages(1)}
	eng := New(store, upstream, testLogger())
	ctx := context.Background()

	req, err := eng.Create(ctx, "u1", "c1", "cats")
	require.NoError(t, err)

	_, err = eng.Advance(ctx, req.Token)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeState))
	assert.False(t, apperrors.IsCode(err, apperrors.CodeExhausted))
	assert.ErrorIs(t, err, domain.ErrQueueContended)
	assert.Len(t, upstream.positions(), maxRefills)
}

func TestEngine_RegisterShare(t *testing.T) {
	shares := &shareMock{}
	eng, _, _ := setup(t, infinitePages(1), WithShareRegistrar(shares))
	ctx := context.Background()

	req, err := eng.Create(ctx, "u1", "c1", "cats")
	require.NoError(t, err)
	sel, err := eng.Advance(ctx, req.Token)
	require.NoError(t, err)

	shares.On("RegisterShare", mock.Anything, "p0-0", "cats").Return(errors.New("boom")).Once()

	assert.NotPanics(t, func() {
		eng.RegisterShare(ctx, req, sel.Image)
	})
	shares.AssertExpectations(t)
}

func TestEngine_LogsSelectedVariant(t *testing.T) {
	var buf strings.Builder
	store := newMemStore()
	eng := New(store, &fakeUpstream{pages: infinitePages(1)}, slog.New(slog.NewJSONHandler(&buf, nil)))
	ctx := context.Background()

	req, err := eng.Create(ctx, "u1", "c1", "cats")
	require.NoError(t, err)
	_, err = eng.Advance(ctx, req.Token)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"block_uid":"`+req.Token+`"`)
	assert.Contains(t, out, `"media_format":"gif"`)
}
