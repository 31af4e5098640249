package stock

import (
	"context"
	"fmt"
	"strings"

	"github.com/loomledger/loomledger/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListItems(ctx context.Context, filter ListFilter) ([]Item, error)
	GetItem(ctx context.Context, id int64) (Item, error)
}

// Service coordinates stock item maintenance.
type Service struct {
	repo     RepositoryPort
	observer shared.CommitObserver
}

// NewService builds Service.
func NewService(repo RepositoryPort, observer shared.CommitObserver) *Service {
	return &Service{repo: repo, observer: observer}
}

// AddItem registers a new stock item and returns its id.
func (s *Service) AddItem(ctx context.Context, input AddItemInput) (int64, error) {
	item := Item{
		Type:       strings.TrimSpace(input.Type),
		Quality:    strings.TrimSpace(input.Quality),
		ColorShade: strings.TrimSpace(input.ColorShade),
		PricePerKg: input.PricePerKg,
		QuantityKg: input.QuantityKg,
	}
	if item.Type == "" || item.Quality == "" {
		return 0, fmt.Errorf("%w: type and quality are required", shared.ErrValidation)
	}
	if item.PricePerKg.IsNegative() || item.QuantityKg.IsNegative() {
		return 0, fmt.Errorf("%w: price and quantity cannot be negative", shared.ErrValidation)
	}

	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		id, err = tx.InsertItem(ctx, item)
		return err
	})
	if err != nil {
		return 0, err
	}
	shared.NotifyCommitted(ctx, s.observer, shared.CommitEvent{
		Entity:   EntityStockItem,
		EntityID: id,
		Action:   ActionCreated,
		Meta:     map[string]any{"type": item.Type, "quality": item.Quality, "quantity_kg": item.QuantityKg.String()},
	})
	return id, nil
}

// UpdateItem applies an additive quantity delta and/or a replacement price.
func (s *Service) UpdateItem(ctx context.Context, id int64, input UpdateItemInput) (Item, error) {
	if input.Empty() {
		return Item{}, fmt.Errorf("%w: nothing to update for stock item %d", shared.ErrNoOp, id)
	}
	if input.NewPricePerKg != nil && input.NewPricePerKg.IsNegative() {
		return Item{}, fmt.Errorf("%w: price cannot be negative", shared.ErrValidation)
	}

	var updated Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if input.AddQuantity != nil {
			next := item.QuantityKg.Add(*input.AddQuantity)
			if next.IsNegative() {
				return fmt.Errorf("%w: stock item %d has %s kg, cannot remove %s kg",
					shared.ErrInsufficientStock, id, item.QuantityKg.StringFixed(2), input.AddQuantity.Neg().StringFixed(2))
			}
			item.QuantityKg = next
		}
		if input.NewPricePerKg != nil {
			item.PricePerKg = *input.NewPricePerKg
		}
		updated = item
		return tx.UpdateItem(ctx, item)
	})
	if err != nil {
		return Item{}, err
	}
	meta := map[string]any{}
	if input.AddQuantity != nil {
		meta["add_quantity"] = input.AddQuantity.String()
	}
	if input.NewPricePerKg != nil {
		meta["price_per_kg"] = input.NewPricePerKg.String()
	}
	shared.NotifyCommitted(ctx, s.observer, shared.CommitEvent{Entity: EntityStockItem, EntityID: id, Action: ActionUpdated, Meta: meta})
	return updated, nil
}

// ListItems lists items, filtered by substring.
func (s *Service) ListItems(ctx context.Context, filter ListFilter) ([]Item, error) {
	filter.Type = strings.TrimSpace(filter.Type)
	filter.Quality = strings.TrimSpace(filter.Quality)
	filter.ColorShade = strings.TrimSpace(filter.ColorShade)
	return s.repo.ListItems(ctx, filter)
}

// GetItem loads a single item.
func (s *Service) GetItem(ctx context.Context, id int64) (Item, error) {
	return s.repo.GetItem(ctx, id)
}
