package contractors

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/loomledger/loomledger/internal/orders"
	"github.com/loomledger/loomledger/internal/payments"
	"github.com/loomledger/loomledger/internal/reports"
	"github.com/loomledger/loomledger/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListContractors(ctx context.Context) ([]Contractor, error)
	GetContractor(ctx context.Context, id int64) (Contractor, error)
}

// OrderLedgers loads orders together with their derived financials.
type OrderLedgers interface {
	Ledgers(ctx context.Context, filter orders.ListFilter) ([]orders.LedgerView, error)
}

// PaymentHistory lists a contractor's payments.
type PaymentHistory interface {
	ListByContractor(ctx context.Context, contractorID int64) ([]payments.Payment, error)
}

// StockReports serves per-contractor stock reports.
type StockReports interface {
	ContractorHeld(ctx context.Context, contractorID int64) ([]reports.HeldStock, error)
	ContractorIssueHistory(ctx context.Context, contractorID int64) ([]reports.IssueTotal, error)
}

// Service registers contractors and assembles their ledgers.
type Service struct {
	repo     RepositoryPort
	orders   OrderLedgers
	payments PaymentHistory
	reports  StockReports
	observer shared.CommitObserver
}

// NewService builds Service.
func NewService(repo RepositoryPort, orderLedgers OrderLedgers, paymentHistory PaymentHistory, stockReports StockReports, observer shared.CommitObserver) *Service {
	return &Service{
		repo:     repo,
		orders:   orderLedgers,
		payments: paymentHistory,
		reports:  stockReports,
		observer: observer,
	}
}

// Register creates a contractor.
func (s *Service) Register(ctx context.Context, input RegisterInput) (int64, error) {
	c := Contractor{
		Name:        strings.TrimSpace(input.Name),
		ContactInfo: strings.TrimSpace(input.ContactInfo),
	}
	if c.Name == "" {
		return 0, fmt.Errorf("%w: contractor name is required", shared.ErrValidation)
	}
	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		id, err = tx.InsertContractor(ctx, c)
		return err
	})
	if err != nil {
		return 0, err
	}
	shared.NotifyCommitted(ctx, s.observer, shared.CommitEvent{
		Entity:   EntityContractor,
		EntityID: id,
		Action:   ActionRegistered,
		Meta:     map[string]any{"name": c.Name},
	})
	return id, nil
}

// List returns every contractor ordered by name.
func (s *Service) List(ctx context.Context) ([]Contractor, error) {
	return s.repo.ListContractors(ctx)
}

// Get loads one contractor.
func (s *Service) Get(ctx context.Context, id int64) (Contractor, error) {
	return s.repo.GetContractor(ctx, id)
}

// Ledger assembles the full read model of one contractor. The independent
// reads run concurrently; the first failure cancels the rest.
func (s *Service) Ledger(ctx context.Context, id int64) (Ledger, error) {
	c, err := s.repo.GetContractor(ctx, id)
	if err != nil {
		return Ledger{}, err
	}
	l := Ledger{Contractor: c}

	var views []orders.LedgerView
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		views, err = s.orders.Ledgers(gctx, orders.ListFilter{ContractorID: id})
		return err
	})
	g.Go(func() error {
		var err error
		l.Payments, err = s.payments.ListByContractor(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		l.CurrentlyHeld, err = s.reports.ContractorHeld(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		l.IssueHistory, err = s.reports.ContractorIssueHistory(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return Ledger{}, fmt.Errorf("contractors: ledger %d: %w", id, err)
	}

	l.Orders = make([]OrderEntry, 0, len(views))
	l.Transactions = []orders.StockTransaction{}
	for _, v := range views {
		l.Orders = append(l.Orders, OrderEntry{Order: v.Order, Financials: v.Financials, AmountOwed: v.Financials.AmountPending})
		l.Transactions = append(l.Transactions, v.Transactions...)
	}
	sort.Slice(l.Transactions, func(i, j int) bool { return l.Transactions[i].ID < l.Transactions[j].ID })
	if l.Payments == nil {
		l.Payments = []payments.Payment{}
	}
	if l.CurrentlyHeld == nil {
		l.CurrentlyHeld = []reports.HeldStock{}
	}
	if l.IssueHistory == nil {
		l.IssueHistory = []reports.IssueTotal{}
	}

	l.Summary, l.ByQuality, l.GeneralPayments = summarize(l.Orders, l.Payments)
	return l, nil
}

func summarize(entries []OrderEntry, all []payments.Payment) (Summary, []QualitySummary, GeneralPayments) {
	sum := Summary{
		TotalWage:       decimal.Zero,
		IssuedValue:     decimal.Zero,
		ReturnedValue:   decimal.Zero,
		NetStockValue:   decimal.Zero,
		TotalDeductions: decimal.Zero,
		OrderPayments:   decimal.Zero,
		TotalFine:       decimal.Zero,
		AmountOwed:      decimal.Zero,
		GeneralPayments: decimal.Zero,
	}
	buckets := map[string]*QualitySummary{}
	for _, e := range entries {
		f := e.Financials
		sum.Orders++
		sum.TotalWage = sum.TotalWage.Add(f.Wage)
		sum.IssuedValue = sum.IssuedValue.Add(f.IssuedValue)
		sum.ReturnedValue = sum.ReturnedValue.Add(f.ReturnedValue)
		sum.NetStockValue = sum.NetStockValue.Add(f.NetStockValue)
		sum.TotalDeductions = sum.TotalDeductions.Add(f.TotalDeductions)
		sum.OrderPayments = sum.OrderPayments.Add(f.AmountPaid)
		sum.TotalFine = sum.TotalFine.Add(f.TotalFine)
		sum.AmountOwed = sum.AmountOwed.Add(e.AmountOwed)

		key := strings.TrimSpace(e.Quality)
		if key == "" {
			key = UnspecifiedQuality
		}
		b, ok := buckets[key]
		if !ok {
			b = &QualitySummary{
				Quality:         key,
				TotalWage:       decimal.Zero,
				NetStockValue:   decimal.Zero,
				TotalDeductions: decimal.Zero,
				Payments:        decimal.Zero,
				TotalFine:       decimal.Zero,
				AmountOwed:      decimal.Zero,
			}
			buckets[key] = b
		}
		b.Orders++
		b.TotalWage = b.TotalWage.Add(f.Wage)
		b.NetStockValue = b.NetStockValue.Add(f.NetStockValue)
		b.TotalDeductions = b.TotalDeductions.Add(f.TotalDeductions)
		b.Payments = b.Payments.Add(f.AmountPaid)
		b.TotalFine = b.TotalFine.Add(f.TotalFine)
		b.AmountOwed = b.AmountOwed.Add(e.AmountOwed)
	}

	general := GeneralPayments{Amount: decimal.Zero}
	for _, p := range all {
		if p.General() {
			general.Count++
			general.Amount = general.Amount.Add(p.Amount)
		}
	}
	sum.GeneralPayments = general.Amount
	sum.Balance = sum.AmountOwed.Sub(general.Amount)

	byQuality := make([]QualitySummary, 0, len(buckets))
	for _, b := range buckets {
		byQuality = append(byQuality, *b)
	}
	sort.Slice(byQuality, func(i, j int) bool {
		a, b := byQuality[i].Quality, byQuality[j].Quality
		if (a == UnspecifiedQuality) != (b == UnspecifiedQuality) {
			return b == UnspecifiedQuality
		}
		return a < b
	})
	return sum, byQuality, general
}
