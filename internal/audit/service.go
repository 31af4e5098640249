package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/loomledger/loomledger/internal/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// RepositoryPort abstracts audit storage.
type RepositoryPort interface {
	Timeline(ctx context.Context, q Query) ([]TimelineRow, error)
}

// Service exposes the audit trail of committed ledger mutations.
type Service struct {
	repo RepositoryPort
}

// NewService constructs the audit service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of entries, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	filters, err := normalise(filters)
	if err != nil {
		return Result{}, err
	}
	q := toQuery(filters)
	q.Offset = (filters.Page - 1) * filters.PageSize
	q.Limit = filters.PageSize + 1
	rows, err := s.repo.Timeline(ctx, q)
	if err != nil {
		return Result{}, fmt.Errorf("audit: timeline: %w", err)
	}
	paging := PagingInfo{Page: filters.Page, PageSize: filters.PageSize}
	if len(rows) > filters.PageSize {
		rows = rows[:filters.PageSize]
		paging.HasNext = true
		paging.NextPage = filters.Page + 1
	}
	if filters.Page > 1 {
		paging.PrevPage = filters.Page - 1
	}
	if rows == nil {
		rows = []TimelineRow{}
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every entry matching filters, ignoring paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	filters, err := normalise(filters)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.Timeline(ctx, toQuery(filters))
	if err != nil {
		return nil, fmt.Errorf("audit: export: %w", err)
	}
	return rows, nil
}

func normalise(f TimelineFilters) (TimelineFilters, error) {
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return f, fmt.Errorf("%w: to must not be before from", shared.ErrValidation)
	}
	f.Entity = strings.TrimSpace(f.Entity)
	f.EntityID = strings.TrimSpace(f.EntityID)
	f.Action = strings.TrimSpace(f.Action)
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
	return f, nil
}

func toQuery(f TimelineFilters) Query {
	return Query{From: f.From, To: f.To, Entity: f.Entity, EntityID: f.EntityID, Action: f.Action}
}
