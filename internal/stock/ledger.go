package stock

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/loomledger/loomledger/internal/shared"
)

// Reserve locks the item and decrements its quantity by weight inside the
// caller's transaction. The returned item carries the price in effect before
// the decrement, which callers freeze onto the Issued transaction.
func Reserve(ctx context.Context, tx TxRepository, stockID int64, weight decimal.Decimal) (Item, error) {
	if !weight.IsPositive() {
		return Item{}, fmt.Errorf("%w: issued weight must be greater than zero", shared.ErrValidation)
	}
	item, err := tx.GetItemForUpdate(ctx, stockID)
	if err != nil {
		return Item{}, err
	}
	if weight.GreaterThan(item.QuantityKg) {
		return Item{}, fmt.Errorf("%w: stock item %d has %s kg, requested %s kg",
			shared.ErrInsufficientStock, stockID, item.QuantityKg.StringFixed(2), weight.StringFixed(2))
	}
	reserved := item
	reserved.QuantityKg = item.QuantityKg.Sub(weight)
	if err := tx.UpdateItem(ctx, reserved); err != nil {
		return Item{}, err
	}
	return item, nil
}

// Release locks the item and restores weight to its quantity inside the
// caller's transaction.
func Release(ctx context.Context, tx TxRepository, stockID int64, weight decimal.Decimal) (Item, error) {
	if !weight.IsPositive() {
		return Item{}, fmt.Errorf("%w: returned weight must be greater than zero", shared.ErrValidation)
	}
	item, err := tx.GetItemForUpdate(ctx, stockID)
	if err != nil {
		return Item{}, err
	}
	item.QuantityKg = item.QuantityKg.Add(weight)
	if err := tx.UpdateItem(ctx, item); err != nil {
		return Item{}, err
	}
	return item, nil
}
