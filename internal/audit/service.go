// Package audit serves the expense audit timeline recorded in audit_logs.
package audit

import (
	"context"
	"fmt"
	"strings"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// Repository reads audit_logs rows.
type Repository interface {
	Window(ctx context.Context, q Query) ([]TimelineRow, error)
	All(ctx context.Context, q Query) ([]TimelineRow, error)
}

// Service coordinates timeline reads.
type Service struct {
	repo  Repository
	names func(int64) string
}

// Option configures Service.
type Option func(*Service)

// WithActorNames resolves actor ids to display names.
func WithActorNames(fn func(int64) string) Option {
	return func(s *Service) { s.names = fn }
}

// NewService builds the timeline service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Timeline returns one page of audit rows, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	q := toQuery(filters)
	q.Offset = (page - 1) * pageSize
	q.Limit = pageSize + 1
	rows, err := s.repo.Window(ctx, q)
	if err != nil {
		return Result{}, fmt.Errorf("audit timeline: %w", err)
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: s.named(rows), Paging: paging}, nil
}

// Export returns every row matching filters without paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	rows, err := s.repo.All(ctx, toQuery(filters))
	if err != nil {
		return nil, fmt.Errorf("audit export: %w", err)
	}
	return s.named(rows), nil
}

func (s *Service) named(rows []TimelineRow) []TimelineRow {
	if rows == nil {
		return []TimelineRow{}
	}
	if s.names == nil {
		return rows
	}
	for i := range rows {
		if rows[i].Actor == "" {
			rows[i].Actor = s.names(rows[i].ActorID)
		}
	}
	return rows
}

func toQuery(filters TimelineFilters) Query {
	return Query{
		From:     filters.From,
		To:       filters.To,
		ActorID:  filters.ActorID,
		Action:   strings.ToUpper(strings.TrimSpace(filters.Action)),
		EntityID: strings.TrimSpace(filters.EntityID),
	}
}
