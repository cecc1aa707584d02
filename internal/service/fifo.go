package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"ledgerpos/backend/internal/domain"
	"ledgerpos/backend/internal/metrics"
	"ledgerpos/backend/internal/store"
	"ledgerpos/backend/internal/xid"
)

const qtyEpsilon = 1e-9

// ConsumptionPolicy decides what happens when the batches cannot cover a request.
type ConsumptionPolicy int

const (
	// StrictConsumption fails with store.ErrInsufficientStock and touches nothing.
	StrictConsumption ConsumptionPolicy = iota
	// BestEffortConsumption takes what exists and reports the rest as shortfall.
	BestEffortConsumption
)

func (p ConsumptionPolicy) String() string {
	if p == StrictConsumption {
		return "strict"
	}
	return "best_effort"
}

type batchDraw struct {
	Batch domain.InventoryBatch
	Qty   float64
}

// planFIFO walks batches in the given order and takes from each until qty is met.
func planFIFO(batches []domain.InventoryBatch, qty float64) ([]batchDraw, float64) {
	draws := make([]batchDraw, 0, len(batches))
	need := qty
	for _, batch := range batches {
		if need <= qtyEpsilon {
			break
		}
		if batch.QtyRemaining <= qtyEpsilon {
			continue
		}
		take := math.Min(batch.QtyRemaining, need)
		draws = append(draws, batchDraw{Batch: batch, Qty: take})
		need -= take
	}
	if need <= qtyEpsilon {
		need = 0
	}
	return draws, need
}

type consumeRequest struct {
	ProductID   string
	BranchID    int64
	Qty         float64
	Policy      ConsumptionPolicy
	Movement    domain.MovementType
	Reason      string
	ReferenceID string
}

type consumeResult struct {
	Draws     []batchDraw
	Deducted  float64
	Shortfall float64
}

// consumeFIFO deducts stock oldest batch first and writes one movement per batch touched.
func (s *Service) consumeFIFO(ctx context.Context, tx store.Tx, req consumeRequest) (consumeResult, error) {
	if req.Qty <= 0 {
		return consumeResult{}, nil
	}

	batches, err := tx.LockAvailableBatches(ctx, req.ProductID, req.BranchID)
	if err != nil {
		return consumeResult{}, err
	}

	draws, shortfall := planFIFO(batches, req.Qty)
	if shortfall > 0 && req.Policy == StrictConsumption {
		return consumeResult{}, fmt.Errorf("%w: product %s at branch %d needs %v, available %v",
			store.ErrInsufficientStock, req.ProductID, req.BranchID, req.Qty, req.Qty-shortfall)
	}

	result := consumeResult{Draws: draws, Shortfall: shortfall}
	for _, draw := range draws {
		if err := tx.AdjustBatch(ctx, draw.Batch.ID, -draw.Qty); err != nil {
			return consumeResult{}, err
		}
		if err := s.recordMovement(ctx, tx, req.ProductID, req.BranchID, draw.Batch.ID, req.Movement, -draw.Qty, req.Reason, req.ReferenceID); err != nil {
			return consumeResult{}, err
		}
		result.Deducted += draw.Qty
	}

	if shortfall > 0 {
		metrics.StockShortfalls.WithLabelValues(string(req.Movement)).Inc()
		s.logger.Warn("stock shortfall during best-effort consumption",
			zap.String("product_id", req.ProductID),
			zap.Int64("branch_id", req.BranchID),
			zap.Float64("requested", req.Qty),
			zap.Float64("shortfall", shortfall),
			zap.String("reference", req.ReferenceID))
	}
	return result, nil
}

type batchAddition struct {
	BatchID string
	Qty     float64
}

// restockNewest adds qty to the most recent batch of the product at the branch. Whatever
// exceeds that batch's original quantity goes into a new batch labelled labelPrefix-ref at
// the same unit cost. With no batch at all a new zero-cost batch is opened.
func (s *Service) restockNewest(ctx context.Context, tx store.Tx, productID string, branchID int64, qty float64,
	movement domain.MovementType, reason string, ref string, labelPrefix string) ([]batchAddition, error) {
	if qty <= qtyEpsilon {
		return nil, nil
	}

	newest, err := tx.LockNewestBatch(ctx, productID, branchID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	additions := make([]batchAddition, 0, 2)
	rest := qty
	var template domain.InventoryBatch
	if newest != nil {
		template = *newest
		if headroom := newest.QtyInitial - newest.QtyRemaining; headroom > qtyEpsilon {
			add := math.Min(headroom, rest)
			if err := tx.AdjustBatch(ctx, newest.ID, add); err != nil {
				return nil, err
			}
			if err := s.recordMovement(ctx, tx, productID, branchID, newest.ID, movement, add, reason, ref); err != nil {
				return nil, err
			}
			additions = append(additions, batchAddition{BatchID: newest.ID, Qty: add})
			rest -= add
		}
	}
	if rest <= qtyEpsilon {
		return additions, nil
	}

	batch := domain.InventoryBatch{
		ID:            xid.New("bat"),
		ProductID:     productID,
		BranchID:      branchID,
		Label:         fmt.Sprintf("%s-%s", labelPrefix, ref),
		QtyInitial:    rest,
		QtyRemaining:  rest,
		UnitCostCents: template.UnitCostCents,
		ExpiryDate:    template.ExpiryDate,
		ReceivedAt:    s.now(),
	}
	if err := tx.InsertBatch(ctx, batch); err != nil {
		return nil, err
	}
	if err := s.recordMovement(ctx, tx, productID, branchID, batch.ID, movement, rest, reason, ref); err != nil {
		return nil, err
	}
	return append(additions, batchAddition{BatchID: batch.ID, Qty: rest}), nil
}

// restoreToBatch puts qty back into a specific batch, spilling into the newest batch
// when the original no longer has room.
func (s *Service) restoreToBatch(ctx context.Context, tx store.Tx, productID string, branchID int64, batchID string, qty float64,
	movement domain.MovementType, reason string, ref string) error {
	batch, err := tx.LockBatch(ctx, batchID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	rest := qty
	if batch != nil {
		if headroom := batch.QtyInitial - batch.QtyRemaining; headroom > qtyEpsilon {
			add := math.Min(headroom, rest)
			if err := tx.AdjustBatch(ctx, batch.ID, add); err != nil {
				return err
			}
			if err := s.recordMovement(ctx, tx, productID, branchID, batch.ID, movement, add, reason, ref); err != nil {
				return err
			}
			rest -= add
		}
	}
	_, err = s.restockNewest(ctx, tx, productID, branchID, rest, movement, reason, ref, "RET")
	return err
}

// withdrawFromBatch removes qty from a specific batch, falling back to FIFO for what the
// batch no longer holds. It never fails for lack of stock.
func (s *Service) withdrawFromBatch(ctx context.Context, tx store.Tx, productID string, branchID int64, batchID string, qty float64,
	movement domain.MovementType, reason string, ref string) error {
	batch, err := tx.LockBatch(ctx, batchID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	rest := qty
	if batch != nil && batch.QtyRemaining > qtyEpsilon {
		take := math.Min(batch.QtyRemaining, rest)
		if err := tx.AdjustBatch(ctx, batch.ID, -take); err != nil {
			return err
		}
		if err := s.recordMovement(ctx, tx, productID, branchID, batch.ID, movement, -take, reason, ref); err != nil {
			return err
		}
		rest -= take
	}
	if rest <= qtyEpsilon {
		return nil
	}
	_, err = s.consumeFIFO(ctx, tx, consumeRequest{
		ProductID:   productID,
		BranchID:    branchID,
		Qty:         rest,
		Policy:      BestEffortConsumption,
		Movement:    movement,
		Reason:      reason,
		ReferenceID: ref,
	})
	return err
}

func (s *Service) recordMovement(ctx context.Context, tx store.Tx, productID string, branchID int64, batchID string,
	movementType domain.MovementType, qty float64, reason string, ref string) error {
	metrics.StockMovedUnits.WithLabelValues(string(movementType)).Add(math.Abs(qty))
	return tx.InsertMovement(ctx, domain.StockMovement{
		ID:          xid.New("mov"),
		ProductID:   productID,
		BranchID:    branchID,
		BatchID:     batchID,
		Type:        movementType,
		Qty:         qty,
		Reason:      reason,
		ReferenceID: ref,
		CreatedAt:   s.now(),
	})
}
