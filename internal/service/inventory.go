package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"ledgerpos/backend/internal/domain"
	"ledgerpos/backend/internal/store"
	"ledgerpos/backend/internal/xid"
)

// CreateTransfer moves stock between branches. Every source batch drawn opens a matching
// batch at the destination with the same unit cost and expiry. Either all lines move or none.
func (s *Service) CreateTransfer(ctx context.Context, req domain.TransferRequest) (domain.Transfer, error) {
	if req.FromBranchID <= 0 || req.ToBranchID <= 0 {
		return domain.Transfer{}, validationError("source and destination branches are required")
	}
	if req.FromBranchID == req.ToBranchID {
		return domain.Transfer{}, validationError("source and destination branch must differ")
	}
	if len(req.Items) == 0 {
		return domain.Transfer{}, validationError("at least one item is required")
	}
	for i, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return domain.Transfer{}, validationError("item %d: product is required", i+1)
		}
		if item.Qty <= 0 {
			return domain.Transfer{}, validationError("item %d: quantity must be positive", i+1)
		}
	}

	now := s.now()
	transfer := domain.Transfer{
		ID:           xid.New("trf"),
		ReferenceNo:  xid.New("TRF"),
		FromBranchID: req.FromBranchID,
		ToBranchID:   req.ToBranchID,
		Status:       domain.TransferStatusCompleted,
		Notes:        strings.TrimSpace(req.Notes),
		CreatedAt:    now,
		Items:        make([]domain.TransferItem, 0, len(req.Items)),
	}

	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		for _, item := range req.Items {
			product, err := tx.GetProduct(ctx, item.ProductID)
			if err != nil {
				return err
			}

			result, err := s.consumeFIFO(ctx, tx, consumeRequest{
				ProductID:   product.ID,
				BranchID:    req.FromBranchID,
				Qty:         item.Qty,
				Policy:      StrictConsumption,
				Movement:    domain.MovementTransferOut,
				Reason:      fmt.Sprintf("Transfer to branch %d", req.ToBranchID),
				ReferenceID: transfer.ID,
			})
			if err != nil {
				return err
			}

			for _, draw := range result.Draws {
				batch := domain.InventoryBatch{
					ID:            xid.New("bat"),
					ProductID:     product.ID,
					BranchID:      req.ToBranchID,
					Label:         fmt.Sprintf("TRF-%s-%s", transfer.ID, draw.Batch.ID),
					QtyInitial:    draw.Qty,
					QtyRemaining:  draw.Qty,
					UnitCostCents: draw.Batch.UnitCostCents,
					ExpiryDate:    draw.Batch.ExpiryDate,
					ReceivedAt:    now,
				}
				if err := tx.InsertBatch(ctx, batch); err != nil {
					return err
				}
				if err := s.recordMovement(ctx, tx, product.ID, req.ToBranchID, batch.ID, domain.MovementTransferIn, draw.Qty,
					fmt.Sprintf("Transfer from branch %d", req.FromBranchID), transfer.ID); err != nil {
					return err
				}
			}

			transfer.Items = append(transfer.Items, domain.TransferItem{
				TransferID: transfer.ID,
				ProductID:  product.ID,
				Qty:        item.Qty,
			})
		}
		return tx.InsertTransfer(ctx, transfer)
	})
	if err != nil {
		return domain.Transfer{}, err
	}

	s.invalidateReports(ctx, req.FromBranchID, req.ToBranchID)
	s.logActivity(ctx, ActionStockTransfer, "transfer", transfer.ID, map[string]any{
		"reference_no":   transfer.ReferenceNo,
		"from_branch_id": transfer.FromBranchID,
		"to_branch_id":   transfer.ToBranchID,
		"lines":          len(transfer.Items),
	})
	return transfer, nil
}

// AdjustStock corrects stock after a count. Negative changes drain oldest batches and
// report what could not be found; positive changes open a new batch.
func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustmentRequest) (domain.StockAdjustmentResponse, error) {
	productID := strings.TrimSpace(req.ProductID)
	if productID == "" {
		return domain.StockAdjustmentResponse{}, validationError("product is required")
	}
	if math.Abs(req.QuantityChange) <= qtyEpsilon {
		return domain.StockAdjustmentResponse{}, validationError("quantity change must not be zero")
	}
	if req.UnitCostCents < 0 {
		return domain.StockAdjustmentResponse{}, validationError("unit cost must not be negative")
	}
	reason := defaultString(strings.TrimSpace(req.Reason), "Stock adjustment")
	branchID := s.resolveBranch(ctx, req.BranchID)

	resp := domain.StockAdjustmentResponse{ProductID: productID, BranchID: branchID}
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetProduct(ctx, productID); err != nil {
			return err
		}

		if req.QuantityChange < 0 {
			result, err := s.consumeFIFO(ctx, tx, consumeRequest{
				ProductID: productID,
				BranchID:  branchID,
				Qty:       -req.QuantityChange,
				Policy:    BestEffortConsumption,
				Movement:  domain.MovementAdjustment,
				Reason:    reason,
			})
			if err != nil {
				return err
			}
			resp.Applied = -result.Deducted
			resp.Shortfall = result.Shortfall
			return nil
		}

		now := s.now()
		batch := domain.InventoryBatch{
			ID:            xid.New("bat"),
			ProductID:     productID,
			BranchID:      branchID,
			Label:         xid.New("ADJ"),
			QtyInitial:    req.QuantityChange,
			QtyRemaining:  req.QuantityChange,
			UnitCostCents: req.UnitCostCents,
			ReceivedAt:    now,
		}
		if err := tx.InsertBatch(ctx, batch); err != nil {
			return err
		}
		if err := s.recordMovement(ctx, tx, productID, branchID, batch.ID, domain.MovementAdjustment, req.QuantityChange,
			reason, ""); err != nil {
			return err
		}
		resp.Applied = req.QuantityChange
		resp.BatchID = batch.ID
		return nil
	})
	if err != nil {
		return domain.StockAdjustmentResponse{}, err
	}

	s.invalidateReports(ctx, branchID)
	s.logActivity(ctx, ActionStockAdjustment, "product", productID, map[string]any{
		"branch_id": branchID,
		"requested": req.QuantityChange,
		"applied":   resp.Applied,
		"shortfall": resp.Shortfall,
		"reason":    reason,
	})
	return resp, nil
}
