package service

import (
	"context"
	"strings"

	"ledgerpos/backend/internal/domain"
	"ledgerpos/backend/internal/store"
)

// dispatchTransitions lists the statuses reachable from each state.
var dispatchTransitions = map[string][]string{
	domain.DispatchPending:    {domain.DispatchProcessing, domain.DispatchCancelled},
	domain.DispatchProcessing: {domain.DispatchReleased, domain.DispatchCancelled},
	domain.DispatchReleased:   {domain.DispatchDelivered, domain.DispatchCancelled},
}

func canTransition(from, to string) bool {
	for _, next := range dispatchTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// UpdateDispatch moves a dispatch order along its delivery lifecycle.
func (s *Service) UpdateDispatch(ctx context.Context, orderID string, req domain.DispatchUpdateRequest) (domain.Order, error) {
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if status == "" {
		return domain.Order{}, validationError("dispatch status is required")
	}

	var order domain.Order
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		existing, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if existing.DispatchStatus == "" {
			return conflictError("order %s is not a dispatch order", orderID)
		}
		if existing.Status == domain.OrderStatusVoided {
			return conflictError("order %s is voided", orderID)
		}
		if !canTransition(existing.DispatchStatus, status) {
			return conflictError("dispatch cannot move from %s to %s", existing.DispatchStatus, status)
		}

		details := existing.DeliveryDetails
		if req.DeliveryDetails != nil {
			details = req.DeliveryDetails
		}
		if method := strings.TrimSpace(req.DeliveryMethod); method != "" {
			merged := domain.DeliveryDetails{}
			if details != nil {
				merged = *details
			}
			merged.Method = method
			details = &merged
		}

		if err := tx.UpdateDispatch(ctx, existing.ID, status, details); err != nil {
			return err
		}
		existing.DispatchStatus = status
		existing.DeliveryDetails = details
		order = *existing
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.logActivity(ctx, ActionDispatchUpdated, "order", order.ID, map[string]any{
		"dispatch_status": order.DispatchStatus,
	})
	return order, nil
}

func (s *Service) ListDispatchQueue(ctx context.Context, branchID int64) ([]domain.Order, error) {
	return s.repo.ListDispatchQueue(ctx, s.resolveBranch(ctx, branchID))
}
