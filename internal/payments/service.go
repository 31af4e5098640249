package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/loomledger/loomledger/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListByContractor(ctx context.Context, contractorID int64) ([]Payment, error)
	ListByOrder(ctx context.Context, orderID int64) ([]Payment, error)
}

// Service records payments and refunds.
type Service struct {
	repo     RepositoryPort
	observer shared.CommitObserver
	clock    shared.Clock
	loc      *time.Location
}

// NewService builds Service. A nil clock uses time.Now.
func NewService(repo RepositoryPort, observer shared.CommitObserver, clock shared.Clock, loc *time.Location) *Service {
	return &Service{repo: repo, observer: observer, clock: clock, loc: loc}
}

// AddPayment records a payment, optionally tied to an order of the same contractor.
func (s *Service) AddPayment(ctx context.Context, input AddInput) (int64, error) {
	if input.ContractorID <= 0 {
		return 0, fmt.Errorf("%w: contractor is required", shared.ErrValidation)
	}
	if input.Amount.IsZero() {
		return 0, fmt.Errorf("%w: payment amount cannot be zero", shared.ErrValidation)
	}
	payment := Payment{
		OrderID:      input.OrderID,
		ContractorID: input.ContractorID,
		PaymentDate:  input.Date,
		Amount:       input.Amount,
		Notes:        strings.TrimSpace(input.Notes),
	}
	if payment.PaymentDate.IsZero() {
		payment.PaymentDate = s.clock.Today(s.loc)
	}

	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.ContractorExists(ctx, input.ContractorID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: contractor %d", shared.ErrNotFound, input.ContractorID)
		}
		if input.OrderID != nil {
			owner, err := tx.OrderContractor(ctx, *input.OrderID)
			if err != nil {
				return err
			}
			if owner != input.ContractorID {
				return fmt.Errorf("%w: order %d does not belong to contractor %d", shared.ErrValidation, *input.OrderID, input.ContractorID)
			}
		}
		id, err = tx.InsertPayment(ctx, payment)
		return err
	})
	if err != nil {
		return 0, err
	}
	shared.NotifyCommitted(ctx, s.observer, shared.CommitEvent{
		Entity:   EntityPayment,
		EntityID: id,
		Action:   ActionCreated,
		Meta:     map[string]any{"contractor_id": input.ContractorID, "amount": input.Amount.String()},
	})
	return id, nil
}

// UpdatePayment replaces amount, date and notes of an existing payment.
func (s *Service) UpdatePayment(ctx context.Context, id int64, input UpdateInput) (Payment, error) {
	if input.Amount.IsZero() {
		return Payment{}, fmt.Errorf("%w: payment amount cannot be zero", shared.ErrValidation)
	}
	var updated Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPaymentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		p.Amount = input.Amount
		if !input.Date.IsZero() {
			p.PaymentDate = input.Date
		}
		p.Notes = strings.TrimSpace(input.Notes)
		updated = p
		return tx.UpdatePayment(ctx, p)
	})
	if err != nil {
		return Payment{}, err
	}
	shared.NotifyCommitted(ctx, s.observer, shared.CommitEvent{
		Entity:   EntityPayment,
		EntityID: id,
		Action:   ActionUpdated,
		Meta:     map[string]any{"amount": input.Amount.String()},
	})
	return updated, nil
}

// DeletePayment removes a payment.
func (s *Service) DeletePayment(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeletePayment(ctx, id)
	})
	if err != nil {
		return err
	}
	shared.NotifyCommitted(ctx, s.observer, shared.CommitEvent{Entity: EntityPayment, EntityID: id, Action: ActionDeleted})
	return nil
}

// ListByContractor lists a contractor's payments, newest first.
func (s *Service) ListByContractor(ctx context.Context, contractorID int64) ([]Payment, error) {
	return s.repo.ListByContractor(ctx, contractorID)
}

// ListByOrder lists an order's payments, newest first.
func (s *Service) ListByOrder(ctx context.Context, orderID int64) ([]Payment, error) {
	return s.repo.ListByOrder(ctx, orderID)
}
