package orders

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loomledger/loomledger/internal/payments"
	"github.com/loomledger/loomledger/internal/shared"
)

func sampleLedger() Ledger {
	return Ledger{
		Order: Order{
			ID:            7,
			Status:        StatusOpen,
			Wage:          dec("3000"),
			DateDue:       shared.MustDate("2024-02-01"),
			PenaltyPerDay: dec("15"),
		},
		Transactions: []StockTransaction{
			{ID: 1, StockID: 1, Type: TxIssued, WeightKg: dec("10"), PricePerKg: dec("100")},
			{ID: 2, StockID: 1, Type: TxReturned, WeightKg: dec("2.5"), PricePerKg: dec("100")},
		},
		Payments:   []payments.Payment{{Amount: dec("400")}, {Amount: dec("-100")}},
		Deductions: []Deduction{{Amount: dec("20")}},
	}
}

func TestDeriveWageStrategy(t *testing.T) {
	f := Derive(sampleLedger(), shared.MustDate("2024-02-05"), PendingWage)
	requireDec(t, "1000", f.IssuedValue)
	requireDec(t, "250", f.ReturnedValue)
	requireDec(t, "750", f.NetStockValue)
	requireDec(t, "300", f.AmountPaid)
	requireDec(t, "20", f.TotalDeductions)
	require.Equal(t, 4, f.DaysOverdue)
	requireDec(t, "60", f.TotalFine)
	// 3000 - 750 - 20 - 300 + 60
	requireDec(t, "1990", f.AmountPending)
}

func TestDeriveStockValueStrategy(t *testing.T) {
	f := Derive(sampleLedger(), shared.MustDate("2024-02-05"), PendingStockValue)
	// 750 - 300 + 60
	requireDec(t, "510", f.AmountPending)
}

func TestDeriveFineRules(t *testing.T) {
	l := sampleLedger()
	f := Derive(l, shared.MustDate("2024-01-20"), PendingWage)
	require.Zero(t, f.DaysOverdue)
	require.True(t, f.TotalFine.IsZero())

	l.Order.Status = StatusClosed
	f = Derive(l, shared.MustDate("2024-03-01"), PendingWage)
	require.True(t, f.TotalFine.IsZero())

	l = sampleLedger()
	l.Order.DateDue = shared.Date{}
	f = Derive(l, shared.MustDate("2024-03-01"), PendingWage)
	require.True(t, f.TotalFine.IsZero())

	l = sampleLedger()
	l.Order.PenaltyPerDay = dec("0")
	f = Derive(l, shared.MustDate("2024-03-01"), PendingWage)
	require.True(t, f.TotalFine.IsZero())
}

func TestRoundedKeepsSourcePrecision(t *testing.T) {
	l := sampleLedger()
	l.Transactions = append(l.Transactions, StockTransaction{ID: 3, StockID: 2, Type: TxIssued, WeightKg: dec("0.333"), PricePerKg: dec("10.01")})
	f := Derive(l, shared.MustDate("2024-02-01"), PendingWage)
	requireDec(t, "1003.33333", f.IssuedValue)
	requireDec(t, "1003.33", f.Rounded().IssuedValue)
	requireDec(t, "1003.33333", f.IssuedValue)
}

func TestOutstandingAndFrozenPrice(t *testing.T) {
	txs := []StockTransaction{
		{ID: 1, StockID: 1, Type: TxIssued, WeightKg: dec("5"), PricePerKg: dec("100")},
		{ID: 2, StockID: 1, Type: TxIssued, WeightKg: dec("5"), PricePerKg: dec("120")},
		{ID: 3, StockID: 1, Type: TxReturned, WeightKg: dec("9.9995"), PricePerKg: dec("120")},
		{ID: 4, StockID: 2, Type: TxIssued, WeightKg: dec("1"), PricePerKg: dec("50")},
	}
	held := Outstanding(txs)
	require.NotContains(t, held, int64(1))
	requireDec(t, "1", held[2])

	price, ok := FrozenPrice(txs, 1)
	require.True(t, ok)
	requireDec(t, "120", price)
	_, ok = FrozenPrice(txs, 3)
	require.False(t, ok)
}

func TestParsePendingStrategy(t *testing.T) {
	s, err := ParsePendingStrategy("")
	require.NoError(t, err)
	require.Equal(t, PendingWage, s)
	s, err = ParsePendingStrategy("Stock_Value")
	require.NoError(t, err)
	require.Equal(t, PendingStockValue, s)
	_, err = ParsePendingStrategy("lending")
	require.Error(t, err)
}
