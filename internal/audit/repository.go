package audit

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const selectTimeline = `SELECT occurred_at, actor_id, action, entity, entity_id, meta FROM audit_logs`

// PgRepository reads audit_logs through pgx.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the pgx backed repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Window returns q.Limit rows starting at q.Offset.
func (r *PgRepository) Window(ctx context.Context, q Query) ([]TimelineRow, error) {
	sql, args := buildTimelineSQL(q, true)
	return r.query(ctx, sql, args)
}

// All returns every matching row.
func (r *PgRepository) All(ctx context.Context, q Query) ([]TimelineRow, error) {
	sql, args := buildTimelineSQL(q, false)
	return r.query(ctx, sql, args)
}

func (r *PgRepository) query(ctx context.Context, sql string, args []any) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var out TimelineRow
		err := row.Scan(&out.At, &out.ActorID, &out.Action, &out.Entity, &out.EntityID, &out.Meta)
		return out, err
	})
}

func buildTimelineSQL(q Query, window bool) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, value any) {
		args = append(args, value)
		where = append(where, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if !q.From.IsZero() {
		add("occurred_at >= ?", q.From)
	}
	if !q.To.IsZero() {
		add("occurred_at < ?", q.To)
	}
	if q.ActorID != 0 {
		add("actor_id = ?", q.ActorID)
	}
	if q.Action != "" {
		add("action = ?", q.Action)
	}
	if q.EntityID != "" {
		add("entity_id = ?", q.EntityID)
	}

	var b strings.Builder
	b.WriteString(selectTimeline)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY occurred_at DESC, id DESC")
	if window {
		args = append(args, q.Limit, q.Offset)
		fmt.Fprintf(&b, " LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	return b.String(), args
}
