package shared

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ApprovalAction enumerates approval history actions.
type ApprovalAction string

const (
	// ApprovalSubmit marks a submitted record.
	ApprovalSubmit ApprovalAction = "SUBMIT"
	// ApprovalApprove marks an approval.
	ApprovalApprove ApprovalAction = "APPROVE"
	// ApprovalReject marks a rejection.
	ApprovalReject ApprovalAction = "REJECT"
	// ApprovalPay marks the payment.
	ApprovalPay ApprovalAction = "PAY"
)

// ApprovalLog is one row of a record's decision history.
type ApprovalLog struct {
	ID      int64
	Module  string
	RefID   int64
	ActorID int64
	Action  ApprovalAction
	Note    string
	At      time.Time
}

// ApprovalRecorder persists approval history.
type ApprovalRecorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewApprovalRecorder constructs ApprovalRecorder.
func NewApprovalRecorder(pool *pgxpool.Pool, logger *slog.Logger) *ApprovalRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &ApprovalRecorder{pool: pool, logger: logger}
}

// Validate checks the mandatory fields of an entry.
func (l ApprovalLog) Validate() error {
	switch {
	case l.Module == "":
		return errors.New("approval module required")
	case l.ActorID == 0:
		return errors.New("approval actor required")
	case l.RefID <= 0:
		return errors.New("approval ref id required")
	case l.Action == "":
		return errors.New("approval action required")
	}
	return nil
}

// Record writes an approval entry.
func (r *ApprovalRecorder) Record(ctx context.Context, log ApprovalLog) error {
	if r == nil {
		return errors.New("approval recorder not initialised")
	}
	if err := log.Validate(); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO approvals (module, ref_id, actor_id, action, note, at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`, log.Module, log.RefID, log.ActorID, string(log.Action), log.Note, nullableTime(log.At))
	if err != nil {
		r.logger.Error("record approval", slog.Int64("record_id", log.RefID), slog.String("action", string(log.Action)), slog.Any("error", err))
		return fmt.Errorf("approvals: insert: %w", err)
	}
	return nil
}

// List returns the history of module/ref in chronological order. Note holds
// the acting role for decisions.
func (r *ApprovalRecorder) List(ctx context.Context, module string, ref int64) ([]ApprovalLog, error) {
	if r == nil {
		return nil, errors.New("approval recorder not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, module, ref_id, actor_id, action, note, at
FROM approvals WHERE module = $1 AND ref_id = $2 ORDER BY at, id`, module, ref)
	if err != nil {
		return nil, fmt.Errorf("approvals: list %s/%d: %w", module, ref, err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[ApprovalLog])
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
