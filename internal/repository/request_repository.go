package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-intake/internal/domain"
)

// Sentinel errors returned by the store accessor.
var (
	// ErrNotFound indicates no request exists for the given id.
	ErrNotFound = errors.New("support request not found")
	// ErrAlreadyClaimed indicates another worker holds the request in
	// processing, or the request already reached a terminal status.
	ErrAlreadyClaimed = errors.New("support request already claimed")
	// ErrInvalidTransition indicates a commit was attempted from a state the
	// contract forbids. Callers must treat this as a programming error, not a
	// retryable condition.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// RequestFilter narrows List results.
type RequestFilter struct {
	Status *domain.ProcessingStatus
}

// Aggregation is a consistent snapshot of store contents.
type Aggregation struct {
	Total             int64
	StatusBreakdown   map[domain.ProcessingStatus]int64
	CategoryBreakdown map[domain.Category]int64
}

// RequestStore is the only component permitted to mutate a request's
// persisted state. All mutations are atomic guarded updates; workers never
// read-then-write.
type RequestStore interface {
	Create(ctx context.Context, req *domain.SupportRequest) error
	Claim(ctx context.Context, id string) (*domain.SupportRequest, error)
	CommitSuccess(ctx context.Context, id string, category domain.Category, summary string) error
	CommitFailure(ctx context.Context, id, reason string) error
	MarkNotified(ctx context.Context, id string) error
	Requeue(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	ReclaimStale(ctx context.Context, olderThan time.Duration) ([]string, error)
	GetByID(ctx context.Context, id string) (*domain.SupportRequest, error)
	List(ctx context.Context, filter RequestFilter, offset, limit int) ([]domain.SupportRequest, error)
	Aggregate(ctx context.Context) (*Aggregation, error)
}

type requestRepository struct {
	pool *pgxpool.Pool
}

// NewRequestRepository instantiates the pgx-backed store accessor.
func NewRequestRepository(pool *pgxpool.Pool) RequestStore {
	return &requestRepository{pool: pool}
}

const requestColumns = `id, customer_name, email, subject, description,
       category, ai_summary, failure_reason, processing_status, notification_sent,
       created_at, updated_at, processed_at`

func (r *requestRepository) Create(ctx context.Context, req *domain.SupportRequest) error {
	const query = `
        INSERT INTO support_requests (id, customer_name, email, subject, description, processing_status)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		req.ID,
		req.CustomerName,
		req.Email,
		req.Subject,
		req.Description,
		domain.StatusPending,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
}

// Claim atomically transitions pending to processing via compare-and-set on
// the status column, establishing single-owner mutation for the caller.
func (r *requestRepository) Claim(ctx context.Context, id string) (*domain.SupportRequest, error) {
	query := fmt.Sprintf(`
        UPDATE support_requests
        SET processing_status=$2, updated_at=NOW()
        WHERE id=$1 AND processing_status=$3
        RETURNING %s`, requestColumns)

	req, err := r.scanOne(r.pool.QueryRow(ctx, query, id, domain.StatusProcessing, domain.StatusPending))
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	// CAS missed: either the row is gone or someone else owns it.
	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrAlreadyClaimed
}

// CommitSuccess finalizes a classified request. Category and summary are set
// together with the terminal status in one statement; processed_at is written
// exactly once here.
func (r *requestRepository) CommitSuccess(ctx context.Context, id string, category domain.Category, summary string) error {
	const query = `
        UPDATE support_requests
        SET processing_status=$2, category=$3, ai_summary=$4,
            processed_at=NOW(), updated_at=NOW()
        WHERE id=$1 AND processing_status=$5`
	cmd, err := r.pool.Exec(ctx, query, id, domain.StatusCompleted, category, summary, domain.StatusProcessing)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return r.transitionError(ctx, id)
	}
	return nil
}

// CommitFailure marks a request terminally failed after exhausted attempts.
// Category and summary stay unset; the status is the sole externally visible
// signal of the failure.
func (r *requestRepository) CommitFailure(ctx context.Context, id, reason string) error {
	const query = `
        UPDATE support_requests
        SET processing_status=$2, failure_reason=$3,
            processed_at=NOW(), updated_at=NOW()
        WHERE id=$1 AND processing_status=$4`
	cmd, err := r.pool.Exec(ctx, query, id, domain.StatusFailed, reason, domain.StatusProcessing)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return r.transitionError(ctx, id)
	}
	return nil
}

// MarkNotified flips notification_sent false to true, valid only for
// completed requests. The guard makes a second flip impossible.
func (r *requestRepository) MarkNotified(ctx context.Context, id string) error {
	const query = `
        UPDATE support_requests
        SET notification_sent=TRUE, updated_at=NOW()
        WHERE id=$1 AND processing_status=$2 AND notification_sent=FALSE`
	cmd, err := r.pool.Exec(ctx, query, id, domain.StatusCompleted)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return r.transitionError(ctx, id)
	}
	return nil
}

// Requeue returns a failed request to pending so the external retry policy
// can resubmit it. Derived fields are cleared so the completed-state
// invariants hold on the next pass.
func (r *requestRepository) Requeue(ctx context.Context, id string) error {
	const query = `
        UPDATE support_requests
        SET processing_status=$2, category=NULL, ai_summary=NULL,
            failure_reason=NULL, processed_at=NULL, updated_at=NOW()
        WHERE id=$1 AND processing_status=$3`
	cmd, err := r.pool.Exec(ctx, query, id, domain.StatusPending, domain.StatusFailed)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return r.transitionError(ctx, id)
	}
	return nil
}

// Delete removes a request outright. Used only to roll back a submission
// whose queue handoff failed.
func (r *requestRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM support_requests WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReclaimStale returns requests that have sat in processing longer than
// olderThan to pending. The ids come back so the caller can re-enqueue them.
func (r *requestRepository) ReclaimStale(ctx context.Context, olderThan time.Duration) ([]string, error) {
	const query = `
        UPDATE support_requests
        SET processing_status=$1, updated_at=NOW()
        WHERE processing_status=$2 AND updated_at < NOW() - $3
        RETURNING id`
	rows, err := r.pool.Query(ctx, query, domain.StatusPending, domain.StatusProcessing, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// transitionError distinguishes a missing row from a contract violation after
// a guarded update matched nothing.
func (r *requestRepository) transitionError(ctx context.Context, id string) error {
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return ErrInvalidTransition
}

func (r *requestRepository) GetByID(ctx context.Context, id string) (*domain.SupportRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM support_requests WHERE id=$1`, requestColumns)
	req, err := r.scanOne(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return req, err
}

func (r *requestRepository) List(ctx context.Context, filter RequestFilter, offset, limit int) ([]domain.SupportRequest, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("processing_status=$%d", len(args)))
	}

	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM support_requests WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		requestColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SupportRequest
	for rows.Next() {
		req, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *req)
	}
	return result, rows.Err()
}

// Aggregate computes status and category breakdowns inside one RepeatableRead
// read-only transaction so both scans observe the same snapshot.
func (r *requestRepository) Aggregate(ctx context.Context) (*Aggregation, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	agg := &Aggregation{
		StatusBreakdown:   make(map[domain.ProcessingStatus]int64),
		CategoryBreakdown: make(map[domain.Category]int64),
	}

	rows, err := tx.Query(ctx, `SELECT processing_status, COUNT(*) FROM support_requests GROUP BY processing_status`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var status domain.ProcessingStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, err
		}
		agg.StatusBreakdown[status] = count
		agg.Total += count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = tx.Query(ctx, `SELECT category, COUNT(*) FROM support_requests WHERE category IS NOT NULL GROUP BY category`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var category domain.Category
		var count int64
		if err := rows.Scan(&category, &count); err != nil {
			rows.Close()
			return nil, err
		}
		agg.CategoryBreakdown[category] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return agg, tx.Commit(ctx)
}

func (r *requestRepository) scanOne(row pgx.Row) (*domain.SupportRequest, error) {
	var req domain.SupportRequest
	if err := row.Scan(
		&req.ID,
		&req.CustomerName,
		&req.Email,
		&req.Subject,
		&req.Description,
		&req.Category,
		&req.AISummary,
		&req.FailureReason,
		&req.Status,
		&req.NotificationSent,
		&req.CreatedAt,
		&req.UpdatedAt,
		&req.ProcessedAt,
	); err != nil {
		return nil, err
	}
	return &req, nil
}
