package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"ledgerpos/backend/internal/domain"
	"ledgerpos/backend/internal/store"
	"ledgerpos/backend/internal/xid"
)

// paymentToleranceCents absorbs rounding when comparing money amounts.
const paymentToleranceCents int64 = 1

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Supplier{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Supplier{}, validationError("supplier name is required")
	}

	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		ID:        xid.New("sup"),
		Name:      name,
		Phone:     strings.TrimSpace(req.Phone),
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.Supplier{}, err
	}
	return *created, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) GetPurchaseOrder(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	po, err := s.repo.GetPurchaseOrder(ctx, id)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	return *po, nil
}

// ReceiveStock books a supplier delivery: one purchase order, one batch per line at its
// landed unit cost, and a restock movement for each batch.
func (s *Service) ReceiveStock(ctx context.Context, req domain.ReceiveStockRequest) (domain.PurchaseOrder, error) {
	if strings.TrimSpace(req.SupplierID) == "" {
		return domain.PurchaseOrder{}, validationError("supplier is required")
	}
	if len(req.Items) == 0 {
		return domain.PurchaseOrder{}, validationError("at least one line is required")
	}
	if req.TransportCostCents < 0 || req.PackagingCostCents < 0 {
		return domain.PurchaseOrder{}, validationError("extra costs must not be negative")
	}

	inputs := make([]landedInput, len(req.Items))
	expiries := make([]*time.Time, len(req.Items))
	for i, line := range req.Items {
		if strings.TrimSpace(line.ProductID) == "" {
			return domain.PurchaseOrder{}, validationError("line %d: product is required", i+1)
		}
		if line.Qty <= 0 {
			return domain.PurchaseOrder{}, validationError("line %d: quantity must be positive", i+1)
		}
		if line.UnitPriceCents < 0 {
			return domain.PurchaseOrder{}, validationError("line %d: unit price must not be negative", i+1)
		}
		if line.ExpiryDate != "" {
			expiry, err := time.Parse("2006-01-02", line.ExpiryDate)
			if err != nil {
				return domain.PurchaseOrder{}, validationError("line %d: expiry date must be YYYY-MM-DD", i+1)
			}
			expiries[i] = &expiry
		}
		inputs[i] = landedInput{Qty: line.Qty, UnitPriceCents: line.UnitPriceCents}
	}

	landed, total := allocateLandedCost(inputs, req.TransportCostCents+req.PackagingCostCents)
	if total.Sign() <= 0 {
		return domain.PurchaseOrder{}, validationError("total product value must be positive")
	}

	branchID := s.resolveBranch(ctx, req.BranchID)
	now := s.now()
	po := domain.PurchaseOrder{
		ID:                 xid.New("po"),
		SupplierID:         req.SupplierID,
		BranchID:           branchID,
		ProductCostCents:   roundHalfUp(total),
		TransportCostCents: req.TransportCostCents,
		PackagingCostCents: req.PackagingCostCents,
		Status:             domain.POStatusReceived,
		PaymentStatus:      domain.POPaymentUnpaid,
		CreatedAt:          now,
		Items:              make([]domain.PurchaseOrderItem, 0, len(req.Items)),
	}

	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetSupplier(ctx, req.SupplierID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return validationError("supplier %s does not exist", req.SupplierID)
			}
			return err
		}

		for i, line := range req.Items {
			product, err := tx.GetProduct(ctx, line.ProductID)
			if err != nil {
				return err
			}
			if product.Archived {
				return validationError("product %s is archived", product.ID)
			}

			batch := domain.InventoryBatch{
				ID:            xid.New("bat"),
				ProductID:     product.ID,
				BranchID:      branchID,
				Label:         "PO-" + po.ID,
				QtyInitial:    line.Qty,
				QtyRemaining:  line.Qty,
				UnitCostCents: landed[i].LandedCostCents,
				ExpiryDate:    expiries[i],
				ReceivedAt:    now,
			}
			if err := tx.InsertBatch(ctx, batch); err != nil {
				return err
			}
			if err := s.recordMovement(ctx, tx, product.ID, branchID, batch.ID, domain.MovementRestock, line.Qty,
				"Purchase order receipt", po.ID); err != nil {
				return err
			}

			po.Items = append(po.Items, domain.PurchaseOrderItem{
				PurchaseOrderID:    po.ID,
				ProductID:          product.ID,
				BatchID:            batch.ID,
				Qty:                line.Qty,
				SupplierPriceCents: line.UnitPriceCents,
				LandedCostCents:    landed[i].LandedCostCents,
				ExpiryDate:         expiries[i],
			})
		}
		return tx.InsertPurchaseOrder(ctx, po)
	})
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	s.invalidateReports(ctx, branchID)
	s.logActivity(ctx, ActionStockReceived, "purchase_order", po.ID, map[string]any{
		"supplier_id": po.SupplierID,
		"branch_id":   branchID,
		"lines":       len(po.Items),
		"total_cents": po.TotalCents(),
	})
	return po, nil
}

// RecordSupplierPayment pays down a purchase order. The order flips to paid once the
// running total is within a cent of what is owed.
func (s *Service) RecordSupplierPayment(ctx context.Context, poID string, req domain.SupplierPaymentRequest) (domain.PurchaseOrder, error) {
	if req.AmountCents <= 0 {
		return domain.PurchaseOrder{}, validationError("payment amount must be positive")
	}
	method := defaultString(strings.TrimSpace(req.Method), "cash")

	var updated domain.PurchaseOrder
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		po, err := tx.LockPurchaseOrder(ctx, poID)
		if err != nil {
			return err
		}

		if err := tx.InsertSupplierPayment(ctx, domain.SupplierPayment{
			ID:              xid.New("spay"),
			PurchaseOrderID: po.ID,
			AmountCents:     req.AmountCents,
			Method:          method,
			Reference:       strings.TrimSpace(req.Reference),
			Notes:           strings.TrimSpace(req.Notes),
			CreatedBy:       actorName(ctx),
			CreatedAt:       s.now(),
		}); err != nil {
			return err
		}

		po.TotalPaidCents += req.AmountCents
		po.PaymentStatus = domain.POPaymentPartial
		if po.TotalPaidCents >= po.TotalCents()-paymentToleranceCents {
			po.PaymentStatus = domain.POPaymentPaid
		}
		if err := tx.UpdatePurchaseOrderPayment(ctx, po.ID, po.TotalPaidCents, po.PaymentStatus); err != nil {
			return err
		}
		updated = *po
		return nil
	})
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	s.logActivity(ctx, ActionBillPayment, "purchase_order", updated.ID, map[string]any{
		"amount_cents":   req.AmountCents,
		"method":         method,
		"payment_status": updated.PaymentStatus,
	})
	return updated, nil
}
