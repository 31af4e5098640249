package reports

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/loomledger/loomledger/internal/shared"
)

// RepositoryPort abstracts the report queries.
type RepositoryPort interface {
	CurrentlyHeld(ctx context.Context, contractorID int64) ([]HeldStock, error)
	IssueHistory(ctx context.Context, contractorID int64) ([]IssueTotal, error)
}

// Service serves stock reports through a versioned cache.
type Service struct {
	repo   RepositoryPort
	cache  *Cache
	logger *slog.Logger
}

// NewService builds Service. A nil cache serves every request from the repository.
func NewService(repo RepositoryPort, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger}
}

// CurrentlyHeld returns stock held on open orders, grouped by contractor.
func (s *Service) CurrentlyHeld(ctx context.Context) ([]ContractorGroup[HeldStock], error) {
	rows, err := s.ContractorHeld(ctx, 0)
	if err != nil {
		return nil, err
	}
	return groupByContractor(rows, func(h HeldStock) (int64, string) { return h.ContractorID, h.ContractorName }), nil
}

// ContractorHeld returns stock held by one contractor; 0 means everyone.
func (s *Service) ContractorHeld(ctx context.Context, contractorID int64) ([]HeldStock, error) {
	var rows []HeldStock
	err := s.cached(ctx, "held", contractorID, &rows, func(ctx context.Context) (any, error) {
		return s.repo.CurrentlyHeld(ctx, contractorID)
	})
	return rows, err
}

// IssueHistory returns total issued weight, grouped by contractor.
func (s *Service) IssueHistory(ctx context.Context) ([]ContractorGroup[IssueTotal], error) {
	rows, err := s.ContractorIssueHistory(ctx, 0)
	if err != nil {
		return nil, err
	}
	return groupByContractor(rows, func(t IssueTotal) (int64, string) { return t.ContractorID, t.ContractorName }), nil
}

// ContractorIssueHistory returns total issued weight of one contractor; 0 means everyone.
func (s *Service) ContractorIssueHistory(ctx context.Context, contractorID int64) ([]IssueTotal, error) {
	var rows []IssueTotal
	err := s.cached(ctx, "issued", contractorID, &rows, func(ctx context.Context) (any, error) {
		return s.repo.IssueHistory(ctx, contractorID)
	})
	return rows, err
}

// Committed invalidates cached reports after any ledger write.
func (s *Service) Committed(ctx context.Context, evt shared.CommitEvent) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("report cache bump failed", slog.String("entity", evt.Entity), slog.Any("error", err))
	}
}

func (s *Service) cached(ctx context.Context, report string, contractorID int64, dest any, load func(context.Context) (any, error)) error {
	key, err := s.cache.BuildKey(ctx, "reports", report, strconv.FormatInt(contractorID, 10))
	if err != nil {
		s.logger.Warn("report cache unavailable", slog.String("report", report), slog.Any("error", err))
		value, err := load(ctx)
		if err != nil {
			return err
		}
		return roundTrip(value, dest)
	}
	return s.cache.FetchJSON(ctx, key, dest, load)
}

func groupByContractor[T any](rows []T, key func(T) (int64, string)) []ContractorGroup[T] {
	groups := []ContractorGroup[T]{}
	for _, row := range rows {
		id, name := key(row)
		if n := len(groups); n == 0 || groups[n-1].ContractorID != id {
			groups = append(groups, ContractorGroup[T]{ContractorID: id, ContractorName: name})
		}
		g := &groups[len(groups)-1]
		g.Items = append(g.Items, row)
	}
	return groups
}
