package expense

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/expenseflow/internal/platform/db"
)

const selectRecord = `SELECT id, amount::text, expense_item, expense_group, comment, period, payment_method,
	approvals_needed, approvals_received, status, COALESCE(approved_by, ''), COALESCE(rejected_by, ''),
	initiator_id, created_at, updated_at
FROM expense_records`

// Repository provides PostgreSQL backed persistence for expense records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores a new record and returns the assigned id.
func (r *Repository) Insert(ctx context.Context, rec Record) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO expense_records (amount, expense_item, expense_group, comment, period,
	payment_method, approvals_needed, approvals_received, status, initiator_id)
VALUES ($1::numeric, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id`,
		rec.Amount.String(), rec.Item, rec.Group, rec.Comment, rec.Period,
		string(rec.PaymentMethod), rec.ApprovalsNeeded, rec.ApprovalsReceived, string(rec.Status), rec.InitiatorID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("expense: insert: %w", err)
	}
	return id, nil
}

// Get loads a record by id.
func (r *Repository) Get(ctx context.Context, id int64) (Record, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, selectRecord+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("expense: get %d: %w", id, err)
	}
	return rec, nil
}

// Update applies patch after re-reading the row under a lock. It fails with
// ErrConcurrentUpdate when the row no longer matches the patch expectations.
func (r *Repository) Update(ctx context.Context, id int64, patch Patch) (Record, error) {
	var updated Record
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := scanRecord(tx.QueryRow(ctx, selectRecord+` WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("expense: lock %d: %w", id, err)
		}
		if !patch.Matches(current) {
			return ErrConcurrentUpdate
		}
		next := patch.Apply(current)
		updated, err = scanRecord(tx.QueryRow(ctx, `UPDATE expense_records
SET status = $2, approvals_received = $3, approved_by = NULLIF($4, ''), rejected_by = NULLIF($5, ''), updated_at = NOW()
WHERE id = $1
RETURNING id, amount::text, expense_item, expense_group, comment, period, payment_method,
	approvals_needed, approvals_received, status, COALESCE(approved_by, ''), COALESCE(rejected_by, ''),
	initiator_id, created_at, updated_at`,
			id, string(next.Status), next.ApprovalsReceived, next.ApprovedBy, next.RejectedBy))
		if err != nil {
			return fmt.Errorf("expense: update %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	return updated, nil
}

// ListUnfinalized returns records that are neither paid nor rejected.
func (r *Repository) ListUnfinalized(ctx context.Context) ([]Record, error) {
	rows, err := r.pool.Query(ctx, selectRecord+` WHERE status NOT IN ($1, $2) ORDER BY id`, string(StatusPaid), string(StatusRejected))
	if err != nil {
		return nil, fmt.Errorf("expense: list unfinalized: %w", err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("expense: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec    Record
		amount string
		method string
		status string
	)
	if err := row.Scan(&rec.ID, &amount, &rec.Item, &rec.Group, &rec.Comment, &rec.Period, &method,
		&rec.ApprovalsNeeded, &rec.ApprovalsReceived, &status, &rec.ApprovedBy, &rec.RejectedBy,
		&rec.InitiatorID, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return Record{}, err
	}
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return Record{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	rec.Amount = value
	rec.PaymentMethod = PaymentMethod(method)
	rec.Status = Status(status)
	return rec, nil
}
