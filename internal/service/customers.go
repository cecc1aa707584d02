package service

import (
	"context"
	"strings"

	"ledgerpos/backend/internal/domain"
	"ledgerpos/backend/internal/store"
	"ledgerpos/backend/internal/xid"
)

const defaultCreditLimitCents int64 = 500000

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Customer{}, validationError("customer name is required")
	}
	limit := defaultCreditLimitCents
	if req.CreditLimitCents != nil {
		if *req.CreditLimitCents < 0 {
			return domain.Customer{}, validationError("credit limit must not be negative")
		}
		limit = *req.CreditLimitCents
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		ID:               xid.New("cus"),
		Name:             name,
		Phone:            strings.TrimSpace(req.Phone),
		CreditLimitCents: limit,
		CreatedAt:        s.now(),
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return *created, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

// SettleDebt takes a payment against outstanding debt outside of any sale.
func (s *Service) SettleDebt(ctx context.Context, customerID string, req domain.SettleDebtRequest) (domain.Customer, error) {
	if req.AmountCents <= 0 {
		return domain.Customer{}, validationError("settlement amount must be positive")
	}
	method := defaultString(strings.ToLower(strings.TrimSpace(req.Method)), "cash")

	var updated domain.Customer
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		customer, err := tx.LockCustomer(ctx, customerID)
		if err != nil {
			return err
		}
		if req.AmountCents > customer.DebtCents {
			return validationError("settlement of %d exceeds outstanding debt of %d", req.AmountCents, customer.DebtCents)
		}

		customer.DebtCents -= req.AmountCents
		if err := tx.UpdateCustomerBalances(ctx, *customer); err != nil {
			return err
		}
		if err := tx.InsertCustomerPayment(ctx, domain.CustomerPayment{
			ID:          xid.New("cpay"),
			CustomerID:  customer.ID,
			AmountCents: req.AmountCents,
			Method:      method,
			Notes:       "Debt settlement",
			PaidAt:      s.now(),
		}); err != nil {
			return err
		}
		updated = *customer
		return nil
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.logActivity(ctx, ActionDebtSettled, "customer", updated.ID, map[string]any{
		"amount_cents":    req.AmountCents,
		"method":          method,
		"remaining_cents": updated.DebtCents,
	})
	return updated, nil
}

func (s *Service) CustomerStatement(ctx context.Context, customerID string) (domain.CustomerStatement, error) {
	customer, err := s.repo.GetCustomer(ctx, customerID)
	if err != nil {
		return domain.CustomerStatement{}, err
	}
	payments, err := s.repo.ListCustomerPayments(ctx, customerID)
	if err != nil {
		return domain.CustomerStatement{}, err
	}
	entries, err := s.repo.ListWalletEntries(ctx, customerID)
	if err != nil {
		return domain.CustomerStatement{}, err
	}
	return domain.CustomerStatement{Customer: *customer, Payments: payments, WalletEntries: entries}, nil
}
