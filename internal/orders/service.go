package orders

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/loomledger/loomledger/internal/payments"
	"github.com/loomledger/loomledger/internal/shared"
	"github.com/loomledger/loomledger/internal/stock"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]Order, error)
	ListTransactions(ctx context.Context, orderID int64) ([]StockTransaction, error)
	ListPayments(ctx context.Context, orderID int64) ([]payments.Payment, error)
	ListDeductions(ctx context.Context, orderID int64) ([]Deduction, error)
	ListReassignments(ctx context.Context, orderID int64) ([]Reassignment, error)
	ListLedgers(ctx context.Context, filter ListFilter) ([]Ledger, error)
}

// IdempotencyPort guards order creation against replays.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

const idempotencyModule = "orders"

// Config groups engine settings.
type Config struct {
	Strategy PendingStrategy
	// Location decides which calendar day "today" is for penalties.
	Location *time.Location
	Clock    shared.Clock
}

// Service is the order engine: creation, issuance, completion, post-closure
// returns, reassignment and financial derivation.
type Service struct {
	repo     RepositoryPort
	observer shared.CommitObserver
	idem     IdempotencyPort
	strategy PendingStrategy
	loc      *time.Location
	clock    shared.Clock
}

// NewService builds Service.
func NewService(repo RepositoryPort, observer shared.CommitObserver, idem IdempotencyPort, cfg Config) *Service {
	strategy := cfg.Strategy
	if strategy == "" {
		strategy = PendingWage
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, observer: observer, idem: idem, strategy: strategy, loc: loc, clock: cfg.Clock}
}

// Today is the ledger's current calendar day.
func (s *Service) Today() shared.Date {
	return s.clock.Today(s.loc)
}

// Strategy reports the configured pending-amount formula.
func (s *Service) Strategy() PendingStrategy {
	return s.strategy
}

// CreateOrder opens an order and reserves every initial issuance in one
// transaction. Any failing issuance leaves no order behind.
func (s *Service) CreateOrder(ctx context.Context, input CreateInput) (int64, error) {
	order, err := newOrder(input)
	if err != nil {
		return 0, err
	}
	for _, is := range input.Issuances {
		if err := validateIssuance(is); err != nil {
			return 0, err
		}
	}

	key := strings.TrimSpace(input.IdempotencyKey)
	if key != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			return 0, err
		}
	}

	var id int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := requireContractor(ctx, tx, order.ContractorID); err != nil {
			return err
		}
		var err error
		id, err = tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		if err := lockStock(ctx, tx, input.Issuances); err != nil {
			return err
		}
		for _, is := range input.Issuances {
			if _, err := issue(ctx, tx, id, is, ""); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if key != "" && s.idem != nil {
			_ = s.idem.Delete(ctx, key, idempotencyModule)
		}
		return 0, err
	}
	s.notify(ctx, id, ActionCreated, map[string]any{
		"contractor_id": order.ContractorID,
		"issuances":     len(input.Issuances),
		"wage":          order.Wage.String(),
	})
	return id, nil
}

// IssueStock issues additional stock to an open order at the current price.
func (s *Service) IssueStock(ctx context.Context, orderID int64, is Issuance) (int64, error) {
	if err := validateIssuance(is); err != nil {
		return 0, err
	}
	var txID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.Open() {
			return fmt.Errorf("%w: stock can only be issued to an open order", shared.ErrInvalidState)
		}
		t, err := issue(ctx, tx, orderID, is, NoteAdditionalIssue)
		txID = t.ID
		return err
	})
	if err != nil {
		return 0, err
	}
	s.notify(ctx, orderID, ActionIssued, map[string]any{"stock_id": is.StockID, "weight_kg": is.WeightKg.String()})
	return txID, nil
}

// UpdateOrder edits due date, notes or penalty rate of an open order.
func (s *Service) UpdateOrder(ctx context.Context, orderID int64, input UpdateInput) (Order, error) {
	if input.Empty() {
		return Order{}, fmt.Errorf("%w: nothing to update for order %d", shared.ErrNoOp, orderID)
	}
	if input.PenaltyPerDay != nil && input.PenaltyPerDay.IsNegative() {
		return Order{}, fmt.Errorf("%w: penalty per day cannot be negative", shared.ErrValidation)
	}
	var updated Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.Open() {
			return fmt.Errorf("%w: only open orders can be edited", shared.ErrInvalidState)
		}
		if input.DateDue != nil {
			o.DateDue = *input.DateDue
		}
		if input.Notes != nil {
			o.Notes = strings.TrimSpace(*input.Notes)
		}
		if input.PenaltyPerDay != nil {
			o.PenaltyPerDay = *input.PenaltyPerDay
		}
		updated = o
		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		return Order{}, err
	}
	s.notify(ctx, orderID, ActionUpdated, nil)
	return updated, nil
}

// CompleteOrder closes an open order, reconciles outstanding stock, records
// deductions and the final payment. Everything happens in one transaction.
func (s *Service) CompleteOrder(ctx context.Context, orderID int64, input CompleteInput) error {
	if err := validateCompletion(input); err != nil {
		return err
	}
	var finalLength, finalWidth decimal.Decimal
	finalDims := input.FinalLength != nil && input.FinalWidth != nil
	if finalDims {
		var err error
		if finalLength, err = input.FinalLength.Feet(); err != nil {
			return err
		}
		if finalWidth, err = input.FinalWidth.Feet(); err != nil {
			return err
		}
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.Open() {
			return fmt.Errorf("%w: order %d is already closed", shared.ErrInvalidState, orderID)
		}
		txs, err := tx.ListTransactions(ctx, orderID)
		if err != nil {
			return err
		}

		if finalDims {
			o.LengthFt, o.WidthFt = finalLength, finalWidth
		}
		if input.FinalPricePerSqft != nil {
			o.PricePerSqft = *input.FinalPricePerSqft
		}
		switch {
		case input.FinalWage != nil:
			o.Wage = *input.FinalWage
		case finalDims || input.FinalPricePerSqft != nil:
			if wage := ComputeWage(o.LengthFt, o.WidthFt, o.PricePerSqft); wage.IsPositive() {
				o.Wage = wage
			}
		}
		o.Status = StatusClosed
		o.DateCompleted = input.DateCompleted
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}

		if err := reconcile(ctx, tx, orderID, txs, input.Reconciliations); err != nil {
			return err
		}
		for _, d := range input.Deductions {
			if d.Amount.IsZero() {
				continue
			}
			if _, err := tx.InsertDeduction(ctx, Deduction{OrderID: orderID, Amount: d.Amount, Reason: strings.TrimSpace(d.Reason)}); err != nil {
				return err
			}
		}
		if input.FinalPayment.IsPositive() {
			_, err := tx.InsertPayment(ctx, payments.Payment{
				OrderID:      &orderID,
				ContractorID: o.ContractorID,
				PaymentDate:  input.DateCompleted,
				Amount:       input.FinalPayment,
				Notes:        NoteFinalPayment,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notify(ctx, orderID, ActionCompleted, map[string]any{"date_completed": input.DateCompleted.String()})
	return nil
}

// ReturnStockForOrder takes stock back from a closed order. The stock goes
// back on hand and the contractor is refunded at the frozen issue price.
func (s *Service) ReturnStockForOrder(ctx context.Context, orderID, stockID int64, weight decimal.Decimal) error {
	if !weight.IsPositive() {
		return fmt.Errorf("%w: return weight must be greater than zero", shared.ErrValidation)
	}
	today := s.Today()
	var refund decimal.Decimal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Open() {
			return fmt.Errorf("%w: order %d is open, reconcile stock on completion", shared.ErrInvalidState, orderID)
		}
		txs, err := tx.ListTransactions(ctx, orderID)
		if err != nil {
			return err
		}
		price, ok := FrozenPrice(txs, stockID)
		if !ok {
			return fmt.Errorf("%w: stock item %d was not issued for order %d", shared.ErrNoPriorIssuance, stockID, orderID)
		}
		if held := Outstanding(txs)[stockID]; weight.GreaterThan(held.Add(OutstandingEpsilon)) {
			return fmt.Errorf("%w: contractor holds %s kg of stock item %d, cannot return %s kg",
				shared.ErrValidation, held.StringFixed(2), stockID, weight.StringFixed(2))
		}
		if _, err := stock.Release(ctx, tx, stockID, weight); err != nil {
			return err
		}
		_, err = tx.InsertTransaction(ctx, StockTransaction{
			OrderID:          orderID,
			StockID:          stockID,
			Type:             TxReturned,
			WeightKg:         weight,
			PricePerKg:       price,
			AffectsInventory: true,
			Notes:            NotePostClosure,
		})
		if err != nil {
			return err
		}
		refund = weight.Mul(price)
		_, err = tx.InsertPayment(ctx, payments.Payment{
			OrderID:      &orderID,
			ContractorID: o.ContractorID,
			PaymentDate:  today,
			Amount:       refund.Neg(),
			Notes:        fmt.Sprintf("Refund for post-closure return of %skg stock", weight.String()),
		})
		return err
	})
	if err != nil {
		return err
	}
	s.notify(ctx, orderID, ActionReturned, map[string]any{
		"stock_id":  stockID,
		"weight_kg": weight.String(),
		"refund":    refund.Neg().String(),
	})
	return nil
}

// ReassignOrder hands an open order to another contractor. Outstanding stock
// is moved with a paired Returned/Issued entry at the frozen price and
// inventory is left untouched.
func (s *Service) ReassignOrder(ctx context.Context, orderID, newContractorID int64, reason string) error {
	if newContractorID <= 0 {
		return fmt.Errorf("%w: new contractor is required", shared.ErrValidation)
	}
	var oldContractorID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.Open() {
			return fmt.Errorf("%w: only open orders can be reassigned", shared.ErrInvalidState)
		}
		if o.ContractorID == newContractorID {
			return fmt.Errorf("%w: order %d already belongs to contractor %d", shared.ErrNoOp, orderID, newContractorID)
		}
		if err := requireContractor(ctx, tx, newContractorID); err != nil {
			return err
		}
		oldContractorID = o.ContractorID

		if _, err := tx.InsertReassignment(ctx, Reassignment{
			OrderID:         orderID,
			OldContractorID: oldContractorID,
			NewContractorID: newContractorID,
			Reason:          strings.TrimSpace(reason),
		}); err != nil {
			return err
		}
		o.ContractorID = newContractorID
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}

		txs, err := tx.ListTransactions(ctx, orderID)
		if err != nil {
			return err
		}
		held := Outstanding(txs)
		for _, stockID := range sortedKeys(held) {
			price, _ := FrozenPrice(txs, stockID)
			weight := held[stockID]
			moves := []StockTransaction{
				{Type: TxReturned, Notes: fmt.Sprintf("Reassigned to contractor %d", newContractorID)},
				{Type: TxIssued, Notes: fmt.Sprintf("Reassigned from contractor %d", oldContractorID)},
			}
			for _, m := range moves {
				m.OrderID, m.StockID, m.WeightKg, m.PricePerKg = orderID, stockID, weight, price
				if _, err := tx.InsertTransaction(ctx, m); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notify(ctx, orderID, ActionReassigned, map[string]any{"from": oldContractorID, "to": newContractorID})
	return nil
}

// GetOrder loads an order.
func (s *Service) GetOrder(ctx context.Context, id int64) (Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// ListOrders lists orders. The status filter is case-insensitive.
func (s *Service) ListOrders(ctx context.Context, filter ListFilter) ([]Order, error) {
	status, err := NormalizeStatus(string(filter.Status))
	if err != nil {
		return nil, err
	}
	filter.Status = status
	filter.DesignNumber = strings.TrimSpace(filter.DesignNumber)
	filter.ShadeCard = strings.TrimSpace(filter.ShadeCard)
	filter.Quality = strings.TrimSpace(filter.Quality)
	return s.repo.ListOrders(ctx, filter)
}

// Transactions lists an order's stock movements.
func (s *Service) Transactions(ctx context.Context, orderID int64) ([]StockTransaction, error) {
	if _, err := s.repo.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, orderID)
}

// Payments lists an order's payments.
func (s *Service) Payments(ctx context.Context, orderID int64) ([]payments.Payment, error) {
	if _, err := s.repo.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, orderID)
}

// Deductions lists an order's deductions.
func (s *Service) Deductions(ctx context.Context, orderID int64) ([]Deduction, error) {
	if _, err := s.repo.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListDeductions(ctx, orderID)
}

// Reassignments lists an order's reassignment log.
func (s *Service) Reassignments(ctx context.Context, orderID int64) ([]Reassignment, error) {
	if _, err := s.repo.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListReassignments(ctx, orderID)
}

// Ledger loads an order with every row its financials derive from.
func (s *Service) Ledger(ctx context.Context, orderID int64) (Ledger, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Ledger{}, err
	}
	l := Ledger{Order: o}
	if l.Transactions, err = s.repo.ListTransactions(ctx, orderID); err != nil {
		return Ledger{}, err
	}
	if l.Payments, err = s.repo.ListPayments(ctx, orderID); err != nil {
		return Ledger{}, err
	}
	if l.Deductions, err = s.repo.ListDeductions(ctx, orderID); err != nil {
		return Ledger{}, err
	}
	return l, nil
}

// Financials derives an order's financial view as of today. It never writes.
func (s *Service) Financials(ctx context.Context, orderID int64) (Financials, error) {
	l, err := s.Ledger(ctx, orderID)
	if err != nil {
		return Financials{}, err
	}
	return Derive(l, s.Today(), s.strategy), nil
}

// LedgerView pairs a ledger with its derived financials.
type LedgerView struct {
	Ledger
	Financials Financials
}

// Ledgers loads and derives every order matching filter.
func (s *Service) Ledgers(ctx context.Context, filter ListFilter) ([]LedgerView, error) {
	ledgers, err := s.repo.ListLedgers(ctx, filter)
	if err != nil {
		return nil, err
	}
	today := s.Today()
	views := make([]LedgerView, len(ledgers))
	for i, l := range ledgers {
		views[i] = LedgerView{Ledger: l, Financials: Derive(l, today, s.strategy)}
	}
	return views, nil
}

// NormalizeStatus maps a case-insensitive status name to a Status. Empty
// means no filter.
func NormalizeStatus(value string) (Status, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	status := Status(cases.Title(language.Und).String(value))
	switch status {
	case StatusOpen, StatusClosed:
		return status, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", shared.ErrValidation, value)
	}
}

func (s *Service) notify(ctx context.Context, orderID int64, action string, meta map[string]any) {
	shared.NotifyCommitted(ctx, s.observer, shared.CommitEvent{Entity: EntityOrder, EntityID: orderID, Action: action, Meta: meta})
}

func newOrder(input CreateInput) (Order, error) {
	if input.ContractorID <= 0 {
		return Order{}, fmt.Errorf("%w: contractor is required", shared.ErrValidation)
	}
	design := strings.TrimSpace(input.DesignNumber)
	if design == "" {
		return Order{}, fmt.Errorf("%w: design number is required", shared.ErrValidation)
	}
	if input.DateIssued.IsZero() {
		return Order{}, fmt.Errorf("%w: issue date is required", shared.ErrValidation)
	}
	if input.PenaltyPerDay.IsNegative() {
		return Order{}, fmt.Errorf("%w: penalty per day cannot be negative", shared.ErrValidation)
	}
	if input.PricePerSqft.IsNegative() {
		return Order{}, fmt.Errorf("%w: price per square foot cannot be negative", shared.ErrValidation)
	}
	length, err := input.Length.Feet()
	if err != nil {
		return Order{}, err
	}
	width, err := input.Width.Feet()
	if err != nil {
		return Order{}, err
	}
	return Order{
		ContractorID:  input.ContractorID,
		DesignNumber:  design,
		ShadeCard:     strings.TrimSpace(input.ShadeCard),
		Quality:       strings.TrimSpace(input.Quality),
		Size:          strings.TrimSpace(input.Size),
		DateIssued:    input.DateIssued,
		DateDue:       input.DateDue,
		PenaltyPerDay: input.PenaltyPerDay,
		Notes:         strings.TrimSpace(input.Notes),
		Status:        StatusOpen,
		LengthFt:      length,
		WidthFt:       width,
		PricePerSqft:  input.PricePerSqft,
		Wage:          ComputeWage(length, width, input.PricePerSqft),
	}, nil
}

func validateIssuance(is Issuance) error {
	if is.StockID <= 0 {
		return fmt.Errorf("%w: stock item is required", shared.ErrValidation)
	}
	if !is.WeightKg.IsPositive() {
		return fmt.Errorf("%w: issued weight must be greater than zero", shared.ErrValidation)
	}
	return nil
}

func validateCompletion(input CompleteInput) error {
	if input.DateCompleted.IsZero() {
		return fmt.Errorf("%w: completion date is required", shared.ErrValidation)
	}
	if (input.FinalLength == nil) != (input.FinalWidth == nil) {
		return fmt.Errorf("%w: final length and width must be given together", shared.ErrValidation)
	}
	if input.FinalWage != nil && input.FinalWage.IsNegative() {
		return fmt.Errorf("%w: final wage cannot be negative", shared.ErrValidation)
	}
	if input.FinalPricePerSqft != nil && input.FinalPricePerSqft.IsNegative() {
		return fmt.Errorf("%w: price per square foot cannot be negative", shared.ErrValidation)
	}
	for _, r := range input.Reconciliations {
		if r.StockID <= 0 {
			return fmt.Errorf("%w: reconciliation needs a stock item", shared.ErrValidation)
		}
		if r.WeightReturned.IsNegative() || r.WeightKept.IsNegative() {
			return fmt.Errorf("%w: reconciled weights cannot be negative", shared.ErrValidation)
		}
	}
	for _, d := range input.Deductions {
		if d.Amount.IsNegative() {
			return fmt.Errorf("%w: deduction amount cannot be negative", shared.ErrValidation)
		}
	}
	if input.FinalPayment.IsNegative() {
		return fmt.Errorf("%w: final payment cannot be negative", shared.ErrValidation)
	}
	return nil
}

func requireContractor(ctx context.Context, tx TxRepository, id int64) error {
	ok, err := tx.ContractorExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: contractor %d", shared.ErrNotFound, id)
	}
	return nil
}

// lockStock takes row locks on every requested item in ascending id order so
// concurrent orders over the same items cannot deadlock.
func lockStock(ctx context.Context, tx TxRepository, issuances []Issuance) error {
	seen := make(map[int64]decimal.Decimal, len(issuances))
	for _, is := range issuances {
		seen[is.StockID] = decimal.Zero
	}
	for _, id := range sortedKeys(seen) {
		if _, err := tx.GetItemForUpdate(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func issue(ctx context.Context, tx TxRepository, orderID int64, is Issuance, note string) (StockTransaction, error) {
	item, err := stock.Reserve(ctx, tx, is.StockID, is.WeightKg)
	if err != nil {
		return StockTransaction{}, err
	}
	t := StockTransaction{
		OrderID:          orderID,
		StockID:          is.StockID,
		Type:             TxIssued,
		WeightKg:         is.WeightKg,
		PricePerKg:       item.PricePerKg,
		AffectsInventory: true,
		Notes:            note,
	}
	t.ID, err = tx.InsertTransaction(ctx, t)
	return t, err
}

func reconcile(ctx context.Context, tx TxRepository, orderID int64, txs []StockTransaction, entries []Reconciliation) error {
	held := Outstanding(txs)
	for _, r := range entries {
		total := r.WeightReturned.Add(r.WeightKept)
		if total.IsZero() {
			continue
		}
		price, ok := FrozenPrice(txs, r.StockID)
		if !ok {
			return fmt.Errorf("%w: stock item %d was not issued for order %d", shared.ErrNoPriorIssuance, r.StockID, orderID)
		}
		outstanding := held[r.StockID]
		if total.GreaterThan(outstanding.Add(OutstandingEpsilon)) {
			return fmt.Errorf("%w: contractor holds %s kg of stock item %d, cannot reconcile %s kg",
				shared.ErrValidation, outstanding.StringFixed(2), r.StockID, total.StringFixed(2))
		}
		held[r.StockID] = outstanding.Sub(total)

		if r.WeightReturned.IsPositive() {
			if _, err := stock.Release(ctx, tx, r.StockID, r.WeightReturned); err != nil {
				return err
			}
			if _, err := tx.InsertTransaction(ctx, StockTransaction{
				OrderID: orderID, StockID: r.StockID, Type: TxReturned, WeightKg: r.WeightReturned,
				PricePerKg: price, AffectsInventory: true, Notes: NoteReturnedToStock,
			}); err != nil {
				return err
			}
		}
		if r.WeightKept.IsPositive() {
			if _, err := tx.InsertTransaction(ctx, StockTransaction{
				OrderID: orderID, StockID: r.StockID, Type: TxReturned, WeightKg: r.WeightKept,
				PricePerKg: price, AffectsInventory: false, Notes: NoteKeptByContractor,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
