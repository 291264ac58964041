package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/Proton-105/gifpick-bot/internal/domain"
	apperrors "github.com/Proton-105/gifpick-bot/internal/errors"
	"github.com/Proton-105/gifpick-bot/internal/state"
)

const candidateColumns = `id, slack_request_id, position, gif_object, status, next_pos`

// RequestStore persists requests and their candidate queues in PostgreSQL.
// Every candidate mutation runs in one transaction holding the request row lock.
type RequestStore struct {
	db  *sql.DB
	log *slog.Logger
}

// NewRequestStore creates a new SQL-backed request store.
func NewRequestStore(db *sql.DB, log *slog.Logger) *RequestStore {
	if log == nil {
		log = slog.Default()
	}

	return &RequestStore{
		db:  db,
		log: log,
	}
}

// CreateRequest inserts req and sets its ID.
func (s *RequestStore) CreateRequest(ctx context.Context, req *domain.Request) error {
	const query = `
		INSERT INTO slack_request (timestamp, user_id, conversation_id, block_uid, search_string, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	if err := s.db.QueryRowContext(
		ctx,
		query,
		req.Timestamp,
		req.UserID,
		req.ConversationID,
		req.Token,
		req.SearchString,
		string(req.Status),
	).Scan(&req.ID); err != nil {
		s.log.Error("failed to create request", slog.String("block_uid", req.Token), slog.Any("error", err))
		return mapError("insert request", err)
	}

	return nil
}

// FindRequest loads the request identified by token.
func (s *RequestStore) FindRequest(ctx context.Context, token string) (*domain.Request, error) {
	const query = `
		SELECT id, timestamp, user_id, conversation_id, block_uid, search_string, status
		FROM slack_request
		WHERE block_uid = $1
	`

	var (
		req    domain.Request
		status string
	)
	if err := s.db.QueryRowContext(ctx, query, token).Scan(
		&req.ID,
		&req.Timestamp,
		&req.UserID,
		&req.ConversationID,
		&req.Token,
		&req.SearchString,
		&status,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("block_uid %s: %w", token, domain.ErrRequestNotFound)
		}
		return nil, mapError("select request", err)
	}
	req.Status = domain.RequestStatus(status)

	return &req, nil
}

// UpdateRequestStatus moves the request from one status to another in a single conditional update.
func (s *RequestStore) UpdateRequestStatus(ctx context.Context, token string, from, to domain.RequestStatus) error {
	if err := state.CheckRequest(from, to); err != nil {
		return err
	}

	const query = `
		UPDATE slack_request
		SET status = $1
		WHERE block_uid = $2 AND status = $3
	`

	res, err := s.db.ExecContext(ctx, query, string(to), token, string(from))
	if err != nil {
		return mapError("update request status", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return mapError("update request status", err)
	}

	switch affected {
	case 1:
		state.RecordRequest(from, to)
		return nil
	case 0:
		if _, err := s.FindRequest(ctx, token); err != nil {
			return err
		}
		return fmt.Errorf("block_uid %s to %s: %w", token, to, domain.ErrRequestNotActive)
	default:
		return apperrors.NewConstraintError(fmt.Sprintf("update request status: %d rows for block_uid %s", affected, token), nil)
	}
}

// AdvanceSelection marks the SELECTING candidate USED and promotes the lowest FETCHED one.
// When nothing is FETCHED it returns nil and leaves the queue untouched.
func (s *RequestStore) AdvanceSelection(ctx context.Context, token string) (*domain.Candidate, error) {
	var (
		cand     *domain.Candidate
		consumed bool
	)

	err := s.withTx(ctx, nil, func(tx *sql.Tx) error {
		requestID, err := lockActive(ctx, tx, token)
		if err != nil {
			return err
		}

		cand, consumed, err = advance(ctx, tx, requestID)
		return err
	})
	if err != nil {
		return nil, err
	}

	recordAdvance(cand, consumed)

	return cand, nil
}

// NextCursor reads the highest-position candidate of the request.
func (s *RequestStore) NextCursor(ctx context.Context, token string) (domain.Continuation, error) {
	const query = `
		SELECT tr.position, tr.next_pos
		FROM tenor_result tr
		WHERE tr.slack_request_id = $1
		ORDER BY tr.position DESC
		LIMIT 1
	`

	var cont domain.Continuation

	err := s.withTx(ctx, &sql.TxOptions{ReadOnly: true}, func(tx *sql.Tx) error {
		requestID, _, err := findRequestID(ctx, tx, token, false)
		if err != nil {
			return err
		}

		var next sql.NullString
		err = tx.QueryRowContext(ctx, query, requestID).Scan(&cont.LastPosition, &next)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return mapError("select last candidate", err)
		}

		if next.Valid {
			cursor := next.String
			cont.Cursor = &cursor
		}

		return nil
	})
	if err != nil {
		return domain.Continuation{}, err
	}

	return cont, nil
}

// AppendPageAndAdvance stores objects as FETCHED candidates after position `after` and advances.
// The page is skipped if another event already refilled the queue since `after` was read.
func (s *RequestStore) AppendPageAndAdvance(ctx context.Context, token string, after int, objects [][]byte, next string) (*domain.Candidate, error) {
	const stateQuery = `
		SELECT COALESCE(MAX(position), 0), COUNT(*) FILTER (WHERE status = 'FETCHED')
		FROM tenor_result
		WHERE slack_request_id = $1
	`
	const insertQuery = `
		INSERT INTO tenor_result (slack_request_id, position, gif_object, status, next_pos)
		VALUES ($1, $2, $3, 'FETCHED', $4)
	`

	var (
		cand     *domain.Candidate
		consumed bool
		inserted int
	)

	err := s.withTx(ctx, nil, func(tx *sql.Tx) error {
		requestID, err := lockActive(ctx, tx, token)
		if err != nil {
			return err
		}

		var (
			maxPos  int
			fetched int
		)
		if err := tx.QueryRowContext(ctx, stateQuery, requestID).Scan(&maxPos, &fetched); err != nil {
			return mapError("select queue state", err)
		}

		if maxPos == after && fetched == 0 {
			stmt, err := tx.PrepareContext(ctx, insertQuery)
			if err != nil {
				return mapError("prepare candidate insert", err)
			}
			defer stmt.Close()

			for i, obj := range objects {
				var nextPos sql.NullString
				if i == len(objects)-1 {
					nextPos = sql.NullString{String: next, Valid: true}
				}

				res, err := stmt.ExecContext(ctx, requestID, maxPos+i+1, string(obj), nextPos)
				if err != nil {
					return mapError("insert candidate", err)
				}
				if n, err := res.RowsAffected(); err != nil || n != 1 {
					return apperrors.NewConstraintError(
						fmt.Sprintf("insert candidate at position %d for block_uid %s: %d rows", maxPos+i+1, token, n),
						err,
					)
				}
			}
			inserted = len(objects)
		} else {
			s.log.InfoContext(ctx, "queue refilled concurrently, dropping fetched page",
				slog.String("block_uid", token),
				slog.Int("expected_position", after),
				slog.Int("max_position", maxPos),
				slog.Int("fetched", fetched),
			)
		}

		cand, consumed, err = advance(ctx, tx, requestID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if inserted > 0 {
		s.log.InfoContext(ctx, "stored fetched page",
			slog.String("block_uid", token),
			slog.Int("count", inserted),
			slog.Int("first_position", after+1),
		)
	}
	recordAdvance(cand, consumed)

	return cand, nil
}

// SendSelection marks the SELECTING candidate USED and deletes every FETCHED one.
func (s *RequestStore) SendSelection(ctx context.Context, token string) (*domain.Candidate, error) {
	const deleteQuery = `
		DELETE FROM tenor_result
		WHERE slack_request_id = $1 AND status = 'FETCHED'
	`

	var (
		cand    *domain.Candidate
		deleted int64
	)

	err := s.withTx(ctx, nil, func(tx *sql.Tx) error {
		requestID, err := lockActive(ctx, tx, token)
		if err != nil {
			return err
		}

		cand, err = transition(ctx, tx, requestID, domain.CandidateSelecting, domain.CandidateUsed)
		if err != nil {
			return err
		}
		if cand == nil {
			return fmt.Errorf("block_uid %s: %w", token, domain.ErrNothingSelected)
		}

		res, err := tx.ExecContext(ctx, deleteQuery, requestID)
		if err != nil {
			return mapError("delete unused candidates", err)
		}
		deleted, err = res.RowsAffected()
		if err != nil {
			return mapError("delete unused candidates", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	state.RecordCandidate(domain.CandidateSelecting, domain.CandidateUsed)
	s.log.InfoContext(ctx, "deleted unused candidates",
		slog.String("block_uid", token),
		slog.Int64("deleted", deleted),
	)

	return cand, nil
}

// CancelStale cancels requests still SELECTING that were created before olderThan.
// It returns the number of requests cancelled.
func (s *RequestStore) CancelStale(ctx context.Context, olderThan time.Time) (int64, error) {
	if err := state.CheckRequest(domain.RequestSelecting, domain.RequestCancelled); err != nil {
		return 0, err
	}

	const query = `
		UPDATE slack_request
		SET status = $1
		WHERE status = $2 AND timestamp < $3
	`

	res, err := s.db.ExecContext(ctx, query, string(domain.RequestCancelled), string(domain.RequestSelecting), olderThan.UTC())
	if err != nil {
		return 0, mapError("cancel stale requests", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, mapError("cancel stale requests", err)
	}

	for i := int64(0); i < affected; i++ {
		state.RecordRequest(domain.RequestSelecting, domain.RequestCancelled)
	}

	return affected, nil
}

// CountByStatus returns the number of requests per status.
func (s *RequestStore) CountByStatus(ctx context.Context) (map[domain.RequestStatus]int, error) {
	const query = `SELECT status, COUNT(*) FROM slack_request GROUP BY status`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, mapError("count requests", err)
	}
	defer rows.Close()

	counts := map[domain.RequestStatus]int{
		domain.RequestSelecting: 0,
		domain.RequestPosted:    0,
		domain.RequestCancelled: 0,
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, mapError("scan request count", err)
		}
		counts[domain.RequestStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("count requests", err)
	}

	return counts, nil
}

func (s *RequestStore) withTx(ctx context.Context, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return mapError("begin transaction", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.log.Error("rollback error", slog.Any("error", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapError("commit transaction", err)
	}

	return nil
}

// findRequestID resolves token, optionally taking the row lock that serializes
// every event for the request.
func findRequestID(ctx context.Context, tx *sql.Tx, token string, lock bool) (int64, domain.RequestStatus, error) {
	query := `SELECT id, status FROM slack_request WHERE block_uid = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	var (
		id     int64
		status string
	)
	if err := tx.QueryRowContext(ctx, query, token).Scan(&id, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, "", fmt.Errorf("block_uid %s: %w", token, domain.ErrRequestNotFound)
		}
		return 0, "", mapError("select request", err)
	}

	return id, domain.RequestStatus(status), nil
}

func lockActive(ctx context.Context, tx *sql.Tx, token string) (int64, error) {
	id, status, err := findRequestID(ctx, tx, token, true)
	if err != nil {
		return 0, err
	}
	if status.Terminal() {
		return 0, fmt.Errorf("block_uid %s is %s: %w", token, status, domain.ErrRequestNotActive)
	}

	return id, nil
}

// advance performs SELECTING→USED then FETCHED→SELECTING, or nothing when no FETCHED candidate exists.
func advance(ctx context.Context, tx *sql.Tx, requestID int64) (*domain.Candidate, bool, error) {
	const existsQuery = `
		SELECT EXISTS (
			SELECT 1 FROM tenor_result
			WHERE slack_request_id = $1 AND status = 'FETCHED'
		)
	`

	var hasFetched bool
	if err := tx.QueryRowContext(ctx, existsQuery, requestID).Scan(&hasFetched); err != nil {
		return nil, false, mapError("check fetched candidates", err)
	}
	if !hasFetched {
		return nil, false, nil
	}

	used, err := transition(ctx, tx, requestID, domain.CandidateSelecting, domain.CandidateUsed)
	if err != nil {
		return nil, false, err
	}

	next, err := transition(ctx, tx, requestID, domain.CandidateFetched, domain.CandidateSelecting)
	if err != nil {
		return nil, false, err
	}
	if next == nil {
		return nil, false, apperrors.NewConstraintError(fmt.Sprintf("request %d: fetched candidate vanished under lock", requestID), nil)
	}

	return next, used != nil, nil
}

// transition moves the lowest-position candidate in status from to status to, returning
// the re-read row, or nil when no candidate is in from.
func transition(ctx context.Context, tx *sql.Tx, requestID int64, from, to domain.CandidateStatus) (*domain.Candidate, error) {
	if err := state.CheckCandidate(from, to); err != nil {
		return nil, err
	}

	const selectQuery = `
		SELECT id FROM tenor_result
		WHERE slack_request_id = $1 AND status = $2
		ORDER BY position ASC
		LIMIT 1
	`
	const updateQuery = `UPDATE tenor_result SET status = $1 WHERE id = $2 AND status = $3`
	const rereadQuery = `SELECT ` + candidateColumns + ` FROM tenor_result WHERE id = $1`

	var id int64
	err := tx.QueryRowContext(ctx, selectQuery, requestID, string(from)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError("select candidate", err)
	}

	res, err := tx.ExecContext(ctx, updateQuery, string(to), id, string(from))
	if err != nil {
		return nil, mapError("update candidate status", err)
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		return nil, apperrors.NewConstraintError(fmt.Sprintf("update candidate %d %s->%s: %d rows", id, from, to, n), err)
	}

	cand, err := scanCandidate(tx.QueryRowContext(ctx, rereadQuery, id))
	if err != nil {
		return nil, mapError("reread candidate", err)
	}

	return cand, nil
}

func scanCandidate(row *sql.Row) (*domain.Candidate, error) {
	var (
		cand    domain.Candidate
		object  string
		status  string
		nextPos sql.NullString
	)
	if err := row.Scan(&cand.ID, &cand.RequestID, &cand.Position, &object, &status, &nextPos); err != nil {
		return nil, err
	}

	cand.Object = []byte(object)
	cand.Status = domain.CandidateStatus(status)
	if nextPos.Valid {
		cursor := nextPos.String
		cand.NextPos = &cursor
	}

	return &cand, nil
}

func recordAdvance(cand *domain.Candidate, consumed bool) {
	if cand == nil {
		return
	}
	if consumed {
		state.RecordCandidate(domain.CandidateSelecting, domain.CandidateUsed)
	}
	state.RecordCandidate(domain.CandidateFetched, domain.CandidateSelecting)
}

// mapError turns driver errors into application errors. Constraint violations signal
// a race or a bug and are reported distinctly from connectivity failures.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "unique_violation", "check_violation", "foreign_key_violation", "not_null_violation":
			return apperrors.NewConstraintError(fmt.Sprintf("%s: %s", op, pqErr.Code.Name()), err)
		}
	}

	return apperrors.NewDatabaseError(fmt.Errorf("%s: %w", op, err))
}
