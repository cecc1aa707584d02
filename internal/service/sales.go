package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"ledgerpos/backend/internal/domain"
	"ledgerpos/backend/internal/metrics"
	"ledgerpos/backend/internal/store"
	"ledgerpos/backend/internal/xid"
)

// ProcessSale records a new order and applies its stock, customer and payment effects
// in one unit of work.
func (s *Service) ProcessSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error) {
	req = normalizeSaleRequest(req)
	if err := validateSaleRequest(req); err != nil {
		return domain.SaleResponse{}, err
	}
	branchID := s.resolveBranch(ctx, req.BranchID)

	var order domain.Order
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		order, err = s.applySale(ctx, tx, xid.New("ord"), req, branchID, nil)
		return err
	})
	if err != nil {
		return domain.SaleResponse{}, err
	}

	metrics.SalesTotal.WithLabelValues("process", order.Status).Inc()
	if !order.IsHold {
		s.invalidateReports(ctx, branchID)
	}
	s.logActivity(ctx, ActionSaleCreated, "order", order.ID, map[string]any{
		"branch_id":   branchID,
		"customer_id": order.CustomerID,
		"total_cents": order.TotalCents,
		"paid_cents":  order.PaidCents,
		"status":      order.Status,
	})
	return domain.SaleResponse{Order: order, BalanceCents: order.BalanceCents()}, nil
}

// EditSale reverses everything the stored order did and applies the new cart in its place.
// Re-submitting an unchanged cart leaves stock and customer balances where they were.
func (s *Service) EditSale(ctx context.Context, orderID string, req domain.SaleRequest) (domain.SaleResponse, error) {
	req = normalizeSaleRequest(req)
	if err := validateSaleRequest(req); err != nil {
		return domain.SaleResponse{}, err
	}

	var (
		order     domain.Order
		oldBranch int64
	)
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		existing, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if existing.Status == domain.OrderStatusVoided {
			return conflictError("order %s is voided and cannot be edited", orderID)
		}
		oldBranch = existing.BranchID

		if err := s.reverseSale(ctx, tx, existing); err != nil {
			return err
		}

		branchID := existing.BranchID
		if req.BranchID > 0 {
			branchID = req.BranchID
		}
		order, err = s.applySale(ctx, tx, existing.ID, req, branchID, existing)
		return err
	})
	if err != nil {
		return domain.SaleResponse{}, err
	}

	metrics.SalesTotal.WithLabelValues("edit", order.Status).Inc()
	s.invalidateReports(ctx, oldBranch, order.BranchID)
	s.logActivity(ctx, ActionSaleEdited, "order", order.ID, map[string]any{
		"branch_id":   order.BranchID,
		"total_cents": order.TotalCents,
		"paid_cents":  order.PaidCents,
		"status":      order.Status,
	})
	return domain.SaleResponse{Order: order, BalanceCents: order.BalanceCents()}, nil
}

// VoidSale closes the order for good and puts sold stock back into the newest batches.
// Debt, points, wallet and payments stay as recorded.
func (s *Service) VoidSale(ctx context.Context, orderID string, reason string) (domain.Order, error) {
	reason = defaultString(strings.TrimSpace(reason), "unspecified")

	var order domain.Order
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		existing, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if existing.Status == domain.OrderStatusVoided {
			return conflictError("order %s is already voided", orderID)
		}

		if !existing.IsHold {
			movementReason := "Void order: " + reason
			for _, item := range existing.Items {
				if item.Type != domain.ProductRetail && item.Type != domain.ProductRawMaterial {
					continue
				}
				if item.Qty > 0 {
					if _, err := s.restockNewest(ctx, tx, item.ProductID, existing.BranchID, item.Qty,
						domain.MovementAdjustment, movementReason, existing.ID, "VOID"); err != nil {
						return err
					}
					continue
				}
				if _, err := s.consumeFIFO(ctx, tx, consumeRequest{
					ProductID:   item.ProductID,
					BranchID:    existing.BranchID,
					Qty:         -item.Qty,
					Policy:      BestEffortConsumption,
					Movement:    domain.MovementAdjustment,
					Reason:      movementReason,
					ReferenceID: existing.ID,
				}); err != nil {
					return err
				}
			}
		}

		if err := tx.UpdateOrderStatus(ctx, existing.ID, domain.OrderStatusVoided); err != nil {
			return err
		}
		existing.Status = domain.OrderStatusVoided
		order = *existing
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	metrics.SalesTotal.WithLabelValues("void", order.Status).Inc()
	s.invalidateReports(ctx, order.BranchID)
	s.logActivity(ctx, ActionSaleVoided, "order", order.ID, map[string]any{
		"reason":      reason,
		"total_cents": order.TotalCents,
	})
	return order, nil
}

func (s *Service) GetSale(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

func normalizeSaleRequest(req domain.SaleRequest) domain.SaleRequest {
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.DiscountReason = strings.TrimSpace(req.DiscountReason)
	for i := range req.Items {
		req.Items[i].ProductID = strings.TrimSpace(req.Items[i].ProductID)
	}
	for i := range req.Payments {
		req.Payments[i].Method = defaultString(strings.ToLower(strings.TrimSpace(req.Payments[i].Method)), "cash")
	}
	return req
}

func validateSaleRequest(req domain.SaleRequest) error {
	if len(req.Items) == 0 {
		return validationError("cart is empty")
	}
	for i, item := range req.Items {
		if item.ProductID == "" {
			return validationError("line %d: product is required", i+1)
		}
		if math.Abs(item.Qty) <= qtyEpsilon {
			return validationError("line %d: quantity must not be zero", i+1)
		}
		if item.UnitPriceCents < 0 || item.DepositCents < 0 {
			return validationError("line %d: price and deposit must not be negative", i+1)
		}
	}
	if req.DiscountCents < 0 {
		return validationError("discount must not be negative")
	}
	if req.TaxCents < 0 {
		return validationError("tax must not be negative")
	}
	for i, payment := range req.Payments {
		if payment.AmountCents <= 0 {
			return validationError("payment %d: amount must be positive", i+1)
		}
	}
	if !req.IsHold && len(req.Payments) == 0 && req.CustomerID == "" {
		return validationError("a customer is required for a sale without payment")
	}
	return nil
}

// buildItems resolves every cart line against the product catalogue and picks the
// inventory effect for it. Archived products are refused unless listed in carried,
// the products an edited order already held.
func buildItems(ctx context.Context, tx store.Tx, orderID string, lines []domain.SaleItemRequest, carried map[string]bool) ([]domain.OrderItem, []inventoryEffect, error) {
	items := make([]domain.OrderItem, 0, len(lines))
	effects := make([]inventoryEffect, 0, len(lines))
	for _, line := range lines {
		item := domain.OrderItem{
			OrderID:        orderID,
			ProductID:      line.ProductID,
			Qty:            line.Qty,
			UnitPriceCents: line.UnitPriceCents,
		}

		var product *domain.Product
		if line.ProductID != domain.CustomItemProductID {
			var err error
			product, err = tx.GetProduct(ctx, line.ProductID)
			if err != nil {
				return nil, nil, err
			}
			if product.Archived && !carried[product.ID] {
				return nil, nil, validationError("product %s is archived", product.ID)
			}
			item.Type = product.Type
			if product.Type == domain.ProductAssetRental {
				item.RentalDepositCents = line.DepositCents
				item.RentalSerial = strings.TrimSpace(line.SerialNumber)
			}
		}

		item.SubtotalCents = lineSubtotal(item.Qty, item.UnitPriceCents) + item.RentalDepositCents
		items = append(items, item)
		effects = append(effects, effectFor(product))
	}
	return items, effects, nil
}

// applySale writes the order and every effect it has. existing is nil for new orders;
// for edits it is the order as stored before reversal.
func (s *Service) applySale(ctx context.Context, tx store.Tx, orderID string, req domain.SaleRequest, branchID int64, existing *domain.Order) (domain.Order, error) {
	var carried map[string]bool
	if existing != nil {
		carried = make(map[string]bool, len(existing.Items))
		for _, item := range existing.Items {
			carried[item.ProductID] = true
		}
	}
	items, effects, err := buildItems(ctx, tx, orderID, req.Items, carried)
	if err != nil {
		return domain.Order{}, err
	}

	payments := req.Payments
	if req.IsHold {
		payments = nil
	}
	totals := computeTotals(items, req.TaxCents, req.DiscountCents, payments)
	if !req.IsHold && totals.balance() > paymentToleranceCents && req.CustomerID == "" {
		return domain.Order{}, validationError("unpaid balance of %d cents needs a customer", totals.balance())
	}

	now := s.now()
	order := domain.Order{
		ID:             orderID,
		CustomerID:     req.CustomerID,
		BranchID:       branchID,
		TotalCents:     totals.TotalCents,
		DepositCents:   totals.DepositCents,
		TaxCents:       totals.TaxCents,
		DiscountCents:  totals.DiscountCents,
		DiscountReason: req.DiscountReason,
		PaidCents:      totals.PaidCents,
		Status:         selectStatus(req.IsHold, totals),
		IsHold:         req.IsHold,
		DepositChange:  req.DepositChange,
		CreatedBy:      actorName(ctx),
		CreatedAt:      now,
		UpdatedAt:      now,
		Items:          items,
	}
	if existing != nil {
		order.CreatedBy = existing.CreatedBy
		order.CreatedAt = existing.CreatedAt
	}
	if req.IsDispatch {
		order.DispatchStatus = domain.DispatchPending
		if existing != nil && existing.DispatchStatus != "" {
			order.DispatchStatus = existing.DispatchStatus
		}
		order.DeliveryDetails = req.Delivery
		if order.DeliveryDetails == nil && existing != nil {
			order.DeliveryDetails = existing.DeliveryDetails
		}
	}

	var customer *domain.Customer
	if req.CustomerID != "" {
		customer, err = tx.LockCustomer(ctx, req.CustomerID)
		if err != nil {
			return domain.Order{}, err
		}
		if !req.IsHold {
			order.Effect = planSettlement(customer.DebtCents, totals, req.DepositChange)
		}
	}

	if existing == nil {
		err = tx.InsertOrder(ctx, order)
	} else {
		err = tx.UpdateOrder(ctx, order)
	}
	if err != nil {
		return domain.Order{}, err
	}
	if req.IsHold {
		return order, nil
	}

	lc := &lineContext{tx: tx, orderID: orderID, branchID: branchID}
	for i, item := range items {
		if err := effects[i].apply(ctx, s, lc, item); err != nil {
			return domain.Order{}, fmt.Errorf("line %d (%s): %w", i+1, item.ProductID, err)
		}
	}
	if err := tx.ReplaceAllocations(ctx, orderID, lc.allocations); err != nil {
		return domain.Order{}, err
	}
	order.Allocations = lc.allocations

	if customer != nil {
		applyEffect(customer, order.Effect)
		if err := tx.UpdateCustomerBalances(ctx, *customer); err != nil {
			return domain.Order{}, err
		}
		if order.Effect.WalletDeltaCents > 0 {
			entry := domain.WalletEntry{
				ID:          xid.New("wal"),
				CustomerID:  customer.ID,
				OrderID:     orderID,
				Kind:        domain.WalletDepositChange,
				AmountCents: order.Effect.WalletDeltaCents,
				CreatedAt:   now,
			}
			if err := tx.ReplaceWalletEntries(ctx, orderID, []domain.WalletEntry{entry}); err != nil {
				return domain.Order{}, err
			}
		}
	}

	rows := make([]domain.Payment, 0, len(payments))
	mirrored := make([]domain.CustomerPayment, 0, len(payments))
	for _, payment := range payments {
		row := domain.Payment{
			ID:          xid.New("pay"),
			OrderID:     orderID,
			Method:      payment.Method,
			AmountCents: payment.AmountCents,
			Reference:   strings.TrimSpace(payment.Reference),
			CreatedAt:   now,
		}
		rows = append(rows, row)
		if customer != nil {
			mirrored = append(mirrored, domain.CustomerPayment{
				ID:          xid.New("cpay"),
				CustomerID:  customer.ID,
				OrderID:     orderID,
				AmountCents: payment.AmountCents,
				Method:      payment.Method,
				Notes:       "POS sale " + orderID,
				PaidAt:      now,
			})
		}
	}
	if err := tx.ReplacePayments(ctx, orderID, rows, mirrored); err != nil {
		return domain.Order{}, err
	}
	order.Payments = rows
	return order, nil
}

// reverseSale undoes the stock and customer effects a stored order applied. Held orders
// never applied any.
func (s *Service) reverseSale(ctx context.Context, tx store.Tx, order *domain.Order) error {
	if order.IsHold {
		return nil
	}

	const reason = "Order edit reversal"
	if len(order.Allocations) == 0 {
		if err := s.reverseUntracked(ctx, tx, order, reason); err != nil {
			return err
		}
	}
	for _, allocation := range order.Allocations {
		var err error
		if allocation.Qty > 0 {
			err = s.restoreToBatch(ctx, tx, allocation.ProductID, order.BranchID, allocation.BatchID, allocation.Qty,
				domain.MovementCorrectionIn, reason, order.ID)
		} else {
			err = s.withdrawFromBatch(ctx, tx, allocation.ProductID, order.BranchID, allocation.BatchID, -allocation.Qty,
				domain.MovementCorrectionOut, reason, order.ID)
		}
		if err != nil {
			return err
		}
	}
	if err := tx.ReplaceAllocations(ctx, order.ID, nil); err != nil {
		return err
	}

	if order.CustomerID != "" {
		customer, err := tx.LockCustomer(ctx, order.CustomerID)
		if err != nil {
			return err
		}
		reverseEffect(customer, order.Effect)
		if err := tx.UpdateCustomerBalances(ctx, *customer); err != nil {
			return err
		}
	}
	if err := tx.ReplaceWalletEntries(ctx, order.ID, nil); err != nil {
		return err
	}
	return tx.ReplacePayments(ctx, order.ID, nil, nil)
}

// reverseUntracked handles orders stored without batch allocations. Sold stock goes back
// to the newest batch and returned stock is drawn oldest first.
func (s *Service) reverseUntracked(ctx context.Context, tx store.Tx, order *domain.Order, reason string) error {
	for _, item := range order.Items {
		if item.Type != domain.ProductRetail && item.Type != domain.ProductRawMaterial {
			continue
		}
		if item.Qty > 0 {
			if _, err := s.restockNewest(ctx, tx, item.ProductID, order.BranchID, item.Qty,
				domain.MovementCorrectionIn, reason, order.ID, "CORR"); err != nil {
				return err
			}
			continue
		}
		if _, err := s.consumeFIFO(ctx, tx, consumeRequest{
			ProductID:   item.ProductID,
			BranchID:    order.BranchID,
			Qty:         -item.Qty,
			Policy:      BestEffortConsumption,
			Movement:    domain.MovementCorrectionOut,
			Reason:      reason,
			ReferenceID: order.ID,
		}); err != nil {
			return err
		}
	}
	return nil
}
