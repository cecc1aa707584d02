package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"ledgerpos/backend/internal/domain"
	"ledgerpos/backend/internal/store"
)

// Paper stock consumed by print jobs.
const (
	paperEdibleSKU    = "MAT-EDIBLE-A4"
	paperNonEdibleSKU = "MAT-GLOSSY-A4"
)

// lineContext is what an inventory effect needs to know about the sale it belongs to.
type lineContext struct {
	tx       store.Tx
	orderID  string
	branchID int64
	// allocations collects every batch the order touched, for later reversal.
	allocations []domain.StockAllocation
}

func (lc *lineContext) allocate(productID string, batchID string, qty float64) {
	lc.allocations = append(lc.allocations, domain.StockAllocation{
		OrderID:   lc.orderID,
		ProductID: productID,
		BatchID:   batchID,
		Qty:       qty,
	})
}

// inventoryEffect is the stock behaviour of one product kind when it appears on a sale line.
type inventoryEffect interface {
	apply(ctx context.Context, s *Service, lc *lineContext, item domain.OrderItem) error
}

// effectFor selects the effect from the stored product, never from what the client sent.
// A nil product is the custom-item sentinel.
func effectFor(product *domain.Product) inventoryEffect {
	if product == nil {
		return customItemEffect{}
	}
	switch product.Type {
	case domain.ProductRetail:
		return retailEffect{}
	case domain.ProductRawMaterial:
		return rawMaterialEffect{}
	case domain.ProductServicePrint:
		return printEffect{sku: product.SKU}
	default:
		return rentalEffect{}
	}
}

// rentalEffect: the asset goes out and comes back, the line only carries price and deposit.
type rentalEffect struct{}

func (rentalEffect) apply(context.Context, *Service, *lineContext, domain.OrderItem) error {
	return nil
}

type customItemEffect struct{}

func (customItemEffect) apply(context.Context, *Service, *lineContext, domain.OrderItem) error {
	return nil
}

// retailEffect sells from batches oldest first and takes returns back into the newest batch.
type retailEffect struct{}

func (retailEffect) apply(ctx context.Context, s *Service, lc *lineContext, item domain.OrderItem) error {
	if item.Qty > 0 {
		result, err := s.consumeFIFO(ctx, lc.tx, consumeRequest{
			ProductID:   item.ProductID,
			BranchID:    lc.branchID,
			Qty:         item.Qty,
			Policy:      StrictConsumption,
			Movement:    domain.MovementSale,
			Reason:      "POS sale",
			ReferenceID: lc.orderID,
		})
		if err != nil {
			return err
		}
		for _, draw := range result.Draws {
			lc.allocate(item.ProductID, draw.Batch.ID, draw.Qty)
		}
		return nil
	}

	additions, err := s.restockNewest(ctx, lc.tx, item.ProductID, lc.branchID, -item.Qty,
		domain.MovementReturn, "POS return", lc.orderID, "RET")
	if err != nil {
		return err
	}
	for _, add := range additions {
		lc.allocate(item.ProductID, add.BatchID, -add.Qty)
	}
	return nil
}

// rawMaterialEffect sells raw stock over the counter exactly like retail.
type rawMaterialEffect struct {
	retailEffect
}

// printEffect consumes paper for each printed sheet. Missing paper never blocks the sale.
type printEffect struct {
	sku string
}

func (e printEffect) apply(ctx context.Context, s *Service, lc *lineContext, item domain.OrderItem) error {
	if item.Qty <= 0 {
		return nil
	}
	paperSKU, perSheet := paperUsage(e.sku)

	paper, err := lc.tx.GetProductBySKU(ctx, paperSKU)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("paper stock product missing, print consumes nothing",
				zap.String("print_sku", e.sku), zap.String("paper_sku", paperSKU))
			return nil
		}
		return err
	}

	result, err := s.consumeFIFO(ctx, lc.tx, consumeRequest{
		ProductID:   paper.ID,
		BranchID:    lc.branchID,
		Qty:         item.Qty * perSheet,
		Policy:      BestEffortConsumption,
		Movement:    domain.MovementSale,
		Reason:      "Print material",
		ReferenceID: lc.orderID,
	})
	if err != nil {
		return err
	}
	for _, draw := range result.Draws {
		lc.allocate(paper.ID, draw.Batch.ID, draw.Qty)
	}
	return nil
}

// paperUsage maps a print SKU to the paper it uses and the fraction of an A4 sheet per unit.
func paperUsage(printSKU string) (string, float64) {
	sku := strings.ToUpper(printSKU)

	paperSKU := paperEdibleSKU
	if strings.Contains(sku, "NON") {
		paperSKU = paperNonEdibleSKU
	}

	perSheet := 1.0
	switch {
	case strings.HasSuffix(sku, "A5"):
		perSheet = 0.5
	case strings.HasSuffix(sku, "A6"):
		perSheet = 0.25
	}
	return paperSKU, perSheet
}
