package orders

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/loomledger/loomledger/internal/payments"
	"github.com/loomledger/loomledger/internal/shared"
	"github.com/loomledger/loomledger/internal/stock"
)

type memoryState struct {
	contractors   map[int64]string
	items         map[int64]stock.Item
	orders        map[int64]Order
	transactions  []StockTransaction
	payments      []payments.Payment
	deductions    []Deduction
	reassignments []Reassignment
	nextID        int64
}

type memoryRepo struct {
	state memoryState
	// failOn makes the named tx method fail, to exercise rollback.
	failOn string
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: memoryState{
		contractors: map[int64]string{},
		items:       map[int64]stock.Item{},
		orders:      map[int64]Order{},
	}}
}

func (s memoryState) clone() memoryState {
	c := s
	c.contractors = make(map[int64]string, len(s.contractors))
	for k, v := range s.contractors {
		c.contractors[k] = v
	}
	c.items = make(map[int64]stock.Item, len(s.items))
	for k, v := range s.items {
		c.items[k] = v
	}
	c.orders = make(map[int64]Order, len(s.orders))
	for k, v := range s.orders {
		c.orders[k] = v
	}
	c.transactions = append([]StockTransaction(nil), s.transactions...)
	c.payments = append([]payments.Payment(nil), s.payments...)
	c.deductions = append([]Deduction(nil), s.deductions...)
	c.reassignments = append([]Reassignment(nil), s.reassignments...)
	return c
}

func (r *memoryRepo) id() int64 {
	r.state.nextID++
	return r.state.nextID
}

func (r *memoryRepo) addContractor(name string) int64 {
	id := r.id()
	r.state.contractors[id] = name
	return id
}

func (r *memoryRepo) addItem(typ, quality string, price, qty string) int64 {
	id := r.id()
	r.state.items[id] = stock.Item{ID: id, Type: typ, Quality: quality,
		PricePerKg: decimal.RequireFromString(price), QuantityKg: decimal.RequireFromString(qty)}
	return id
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := r.state.clone()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.state = snapshot
		return err
	}
	return nil
}

func (r *memoryRepo) GetOrder(ctx context.Context, id int64) (Order, error) {
	o, ok := r.state.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("%w: order %d", shared.ErrNotFound, id)
	}
	o.ContractorName = r.state.contractors[o.ContractorID]
	return o, nil
}

func (r *memoryRepo) ListOrders(ctx context.Context, filter ListFilter) ([]Order, error) {
	var out []Order
	for id := range r.state.orders {
		o, _ := r.GetOrder(ctx, id)
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.ContractorID != 0 && o.ContractorID != filter.ContractorID {
			continue
		}
		if !containsFold(o.DesignNumber, filter.DesignNumber) || !containsFold(o.ShadeCard, filter.ShadeCard) || !containsFold(o.Quality, filter.Quality) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DateIssued.Equal(out[j].DateIssued.Time) {
			return out[i].DateIssued.After(out[j].DateIssued.Time)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func containsFold(value, sub string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(sub))
}

func (r *memoryRepo) ListTransactions(ctx context.Context, orderID int64) ([]StockTransaction, error) {
	var out []StockTransaction
	for _, t := range r.state.transactions {
		if t.OrderID == orderID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListPayments(ctx context.Context, orderID int64) ([]payments.Payment, error) {
	var out []payments.Payment
	for _, p := range r.state.payments {
		if p.OrderID != nil && *p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListDeductions(ctx context.Context, orderID int64) ([]Deduction, error) {
	var out []Deduction
	for _, d := range r.state.deductions {
		if d.OrderID == orderID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListReassignments(ctx context.Context, orderID int64) ([]Reassignment, error) {
	var out []Reassignment
	for _, re := range r.state.reassignments {
		if re.OrderID == orderID {
			out = append(out, re)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListLedgers(ctx context.Context, filter ListFilter) ([]Ledger, error) {
	list, _ := r.ListOrders(ctx, filter)
	out := make([]Ledger, 0, len(list))
	for _, o := range list {
		l := Ledger{Order: o}
		l.Transactions, _ = r.ListTransactions(ctx, o.ID)
		l.Payments, _ = r.ListPayments(ctx, o.ID)
		l.Deductions, _ = r.ListDeductions(ctx, o.ID)
		out = append(out, l)
	}
	return out, nil
}

func (tx *memoryTx) fail(op string) error {
	if tx.repo.failOn == op {
		return fmt.Errorf("memory: injected failure in %s", op)
	}
	return nil
}

func (tx *memoryTx) InsertItem(ctx context.Context, item stock.Item) (int64, error) {
	item.ID = tx.repo.id()
	tx.repo.state.items[item.ID] = item
	return item.ID, nil
}

func (tx *memoryTx) GetItemForUpdate(ctx context.Context, id int64) (stock.Item, error) {
	item, ok := tx.repo.state.items[id]
	if !ok {
		return stock.Item{}, fmt.Errorf("%w: stock item %d", shared.ErrNotFound, id)
	}
	return item, nil
}

func (tx *memoryTx) UpdateItem(ctx context.Context, item stock.Item) error {
	if item.QuantityKg.IsNegative() {
		return shared.ErrInsufficientStock
	}
	tx.repo.state.items[item.ID] = item
	return nil
}

func (tx *memoryTx) InsertPayment(ctx context.Context, p payments.Payment) (int64, error) {
	if err := tx.fail("InsertPayment"); err != nil {
		return 0, err
	}
	p.ID = tx.repo.id()
	tx.repo.state.payments = append(tx.repo.state.payments, p)
	return p.ID, nil
}

func (tx *memoryTx) ContractorExists(ctx context.Context, id int64) (bool, error) {
	_, ok := tx.repo.state.contractors[id]
	return ok, nil
}

func (tx *memoryTx) OrderContractor(ctx context.Context, orderID int64) (int64, error) {
	o, ok := tx.repo.state.orders[orderID]
	if !ok {
		return 0, shared.ErrNotFound
	}
	return o.ContractorID, nil
}

func (tx *memoryTx) GetPaymentForUpdate(ctx context.Context, id int64) (payments.Payment, error) {
	for _, p := range tx.repo.state.payments {
		if p.ID == id {
			return p, nil
		}
	}
	return payments.Payment{}, shared.ErrNotFound
}

func (tx *memoryTx) UpdatePayment(ctx context.Context, p payments.Payment) error {
	for i := range tx.repo.state.payments {
		if tx.repo.state.payments[i].ID == p.ID {
			tx.repo.state.payments[i] = p
			return nil
		}
	}
	return shared.ErrNotFound
}

func (tx *memoryTx) DeletePayment(ctx context.Context, id int64) error {
	for i, p := range tx.repo.state.payments {
		if p.ID == id {
			tx.repo.state.payments = append(tx.repo.state.payments[:i], tx.repo.state.payments[i+1:]...)
			return nil
		}
	}
	return shared.ErrNotFound
}

func (tx *memoryTx) InsertOrder(ctx context.Context, o Order) (int64, error) {
	o.ID = tx.repo.id()
	tx.repo.state.orders[o.ID] = o
	return o.ID, nil
}

func (tx *memoryTx) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	return tx.repo.GetOrder(ctx, id)
}

func (tx *memoryTx) UpdateOrder(ctx context.Context, o Order) error {
	o.ContractorName = ""
	tx.repo.state.orders[o.ID] = o
	return nil
}

func (tx *memoryTx) ListTransactions(ctx context.Context, orderID int64) ([]StockTransaction, error) {
	return tx.repo.ListTransactions(ctx, orderID)
}

func (tx *memoryTx) InsertTransaction(ctx context.Context, t StockTransaction) (int64, error) {
	if err := tx.fail("InsertTransaction"); err != nil {
		return 0, err
	}
	t.ID = tx.repo.id()
	tx.repo.state.transactions = append(tx.repo.state.transactions, t)
	return t.ID, nil
}

func (tx *memoryTx) InsertDeduction(ctx context.Context, d Deduction) (int64, error) {
	d.ID = tx.repo.id()
	tx.repo.state.deductions = append(tx.repo.state.deductions, d)
	return d.ID, nil
}

func (tx *memoryTx) InsertReassignment(ctx context.Context, re Reassignment) (int64, error) {
	re.ID = tx.repo.id()
	tx.repo.state.reassignments = append(tx.repo.state.reassignments, re)
	return re.ID, nil
}

type memoryIdempotency struct {
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys[module+":"+key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[module+":"+key] = true
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key, module string) error {
	delete(m.keys, module+":"+key)
	return nil
}
