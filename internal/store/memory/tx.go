package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"ledgerpos/backend/internal/domain"
	"ledgerpos/backend/internal/store"
)

// memTx operates directly on the store state. The owning Store holds the write
// lock for the lifetime of the unit of work.
type memTx struct {
	st *state
}

func (t *memTx) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	product, ok := t.st.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, id)
	}
	return &product, nil
}

func (t *memTx) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	for _, product := range t.st.products {
		if strings.EqualFold(product.SKU, sku) {
			found := product
			return &found, nil
		}
	}
	return nil, fmt.Errorf("%w: product sku %s", store.ErrNotFound, sku)
}

func (t *memTx) LockAvailableBatches(_ context.Context, productID string, branchID int64) ([]domain.InventoryBatch, error) {
	result := make([]domain.InventoryBatch, 0, 4)
	for _, batch := range t.st.batches {
		if batch.ProductID == productID && batch.BranchID == branchID && batch.QtyRemaining > qtyEpsilon {
			result = append(result, cloneBatch(batch))
		}
	}
	t.st.sortOldestFirst(result)
	return result, nil
}

func (t *memTx) LockNewestBatch(_ context.Context, productID string, branchID int64) (*domain.InventoryBatch, error) {
	candidates := make([]domain.InventoryBatch, 0, 4)
	for _, batch := range t.st.batches {
		if batch.ProductID == productID && batch.BranchID == branchID {
			candidates = append(candidates, batch)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no batch for product %s at branch %d", store.ErrNotFound, productID, branchID)
	}
	t.st.sortOldestFirst(candidates)
	newest := cloneBatch(candidates[len(candidates)-1])
	return &newest, nil
}

func (t *memTx) LockBatch(_ context.Context, id string) (*domain.InventoryBatch, error) {
	batch, ok := t.st.batches[id]
	if !ok {
		return nil, fmt.Errorf("%w: batch %s", store.ErrNotFound, id)
	}
	cloned := cloneBatch(batch)
	return &cloned, nil
}

func (t *memTx) AdjustBatch(_ context.Context, batchID string, delta float64) error {
	batch, ok := t.st.batches[batchID]
	if !ok {
		return fmt.Errorf("%w: batch %s", store.ErrNotFound, batchID)
	}
	next := batch.QtyRemaining + delta
	if next < -qtyEpsilon || next > batch.QtyInitial+qtyEpsilon {
		return fmt.Errorf("%w: batch %s remaining would become %v of %v", store.ErrIntegrity, batchID, next, batch.QtyInitial)
	}
	if next < 0 {
		next = 0
	}
	batch.QtyRemaining = next
	t.st.batches[batchID] = batch
	return nil
}

func (t *memTx) InsertBatch(_ context.Context, batch domain.InventoryBatch) error {
	if _, exists := t.st.batches[batch.ID]; exists {
		return fmt.Errorf("%w: batch %s already exists", store.ErrIntegrity, batch.ID)
	}
	if batch.QtyRemaining < 0 || batch.QtyRemaining > batch.QtyInitial+qtyEpsilon {
		return fmt.Errorf("%w: batch %s remaining out of range", store.ErrIntegrity, batch.ID)
	}
	t.st.nextSeq++
	t.st.batchSeq[batch.ID] = t.st.nextSeq
	t.st.batches[batch.ID] = cloneBatch(batch)
	return nil
}

func (t *memTx) InsertMovement(_ context.Context, movement domain.StockMovement) error {
	t.st.movements = append(t.st.movements, movement)
	return nil
}

func (t *memTx) GetSupplier(_ context.Context, id string) (*domain.Supplier, error) {
	supplier, ok := t.st.suppliers[id]
	if !ok {
		return nil, fmt.Errorf("%w: supplier %s", store.ErrNotFound, id)
	}
	return &supplier, nil
}

func (t *memTx) InsertPurchaseOrder(_ context.Context, po domain.PurchaseOrder) error {
	if _, exists := t.st.purchaseOrders[po.ID]; exists {
		return fmt.Errorf("%w: purchase order %s already exists", store.ErrIntegrity, po.ID)
	}
	t.st.purchaseOrders[po.ID] = clonePurchaseOrder(po)
	return nil
}

func (t *memTx) LockPurchaseOrder(_ context.Context, id string) (*domain.PurchaseOrder, error) {
	po, ok := t.st.purchaseOrders[id]
	if !ok {
		return nil, fmt.Errorf("%w: purchase order %s", store.ErrNotFound, id)
	}
	cloned := clonePurchaseOrder(po)
	return &cloned, nil
}

func (t *memTx) UpdatePurchaseOrderPayment(_ context.Context, id string, totalPaidCents int64, paymentStatus string) error {
	po, ok := t.st.purchaseOrders[id]
	if !ok {
		return fmt.Errorf("%w: purchase order %s", store.ErrNotFound, id)
	}
	po.TotalPaidCents = totalPaidCents
	po.PaymentStatus = paymentStatus
	t.st.purchaseOrders[id] = po
	return nil
}

func (t *memTx) InsertSupplierPayment(_ context.Context, payment domain.SupplierPayment) error {
	t.st.supplierPayments = append(t.st.supplierPayments, payment)
	return nil
}

func (t *memTx) InsertTransfer(_ context.Context, transfer domain.Transfer) error {
	if _, exists := t.st.transfers[transfer.ID]; exists {
		return fmt.Errorf("%w: transfer %s already exists", store.ErrIntegrity, transfer.ID)
	}
	t.st.transfers[transfer.ID] = cloneTransfer(transfer)
	return nil
}

func (t *memTx) LockCustomer(_ context.Context, id string) (*domain.Customer, error) {
	customer, ok := t.st.customers[id]
	if !ok {
		return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, id)
	}
	return &customer, nil
}

func (t *memTx) UpdateCustomerBalances(_ context.Context, customer domain.Customer) error {
	existing, ok := t.st.customers[customer.ID]
	if !ok {
		return fmt.Errorf("%w: customer %s", store.ErrNotFound, customer.ID)
	}
	existing.DebtCents = customer.DebtCents
	existing.Points = customer.Points
	existing.WalletCents = customer.WalletCents
	t.st.customers[customer.ID] = existing
	return nil
}

func (t *memTx) InsertCustomerPayment(_ context.Context, payment domain.CustomerPayment) error {
	t.st.customerPayments = append(t.st.customerPayments, payment)
	return nil
}

func (t *memTx) LockOrder(_ context.Context, id string) (*domain.Order, error) {
	order, ok := t.st.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", store.ErrNotFound, id)
	}
	cloned := cloneOrder(order)
	return &cloned, nil
}

func (t *memTx) InsertOrder(_ context.Context, order domain.Order) error {
	if _, exists := t.st.orders[order.ID]; exists {
		return fmt.Errorf("%w: order %s already exists", store.ErrIntegrity, order.ID)
	}
	if order.CustomerID != "" {
		if _, ok := t.st.customers[order.CustomerID]; !ok {
			return fmt.Errorf("%w: customer %s does not exist", store.ErrIntegrity, order.CustomerID)
		}
	}
	stored := cloneOrder(order)
	stored.Payments = nil
	stored.Allocations = nil
	t.st.orders[order.ID] = stored
	return nil
}

func (t *memTx) UpdateOrder(_ context.Context, order domain.Order) error {
	existing, ok := t.st.orders[order.ID]
	if !ok {
		return fmt.Errorf("%w: order %s", store.ErrNotFound, order.ID)
	}
	stored := cloneOrder(order)
	stored.Payments = existing.Payments
	stored.Allocations = existing.Allocations
	stored.CreatedAt = existing.CreatedAt
	t.st.orders[order.ID] = stored
	return nil
}

func (t *memTx) UpdateOrderStatus(_ context.Context, id string, status string) error {
	order, ok := t.st.orders[id]
	if !ok {
		return fmt.Errorf("%w: order %s", store.ErrNotFound, id)
	}
	order.Status = status
	t.st.orders[id] = order
	return nil
}

func (t *memTx) UpdateDispatch(_ context.Context, id string, status string, details *domain.DeliveryDetails) error {
	order, ok := t.st.orders[id]
	if !ok {
		return fmt.Errorf("%w: order %s", store.ErrNotFound, id)
	}
	order.DispatchStatus = status
	if details != nil {
		cloned := *details
		cloned.Fees = slices.Clone(details.Fees)
		order.DeliveryDetails = &cloned
	}
	t.st.orders[id] = order
	return nil
}

func (t *memTx) ReplaceAllocations(_ context.Context, orderID string, allocations []domain.StockAllocation) error {
	order, ok := t.st.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: order %s", store.ErrNotFound, orderID)
	}
	order.Allocations = slices.Clone(allocations)
	t.st.orders[orderID] = order
	return nil
}

func (t *memTx) ReplacePayments(_ context.Context, orderID string, payments []domain.Payment, mirrored []domain.CustomerPayment) error {
	order, ok := t.st.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: order %s", store.ErrNotFound, orderID)
	}
	order.Payments = slices.Clone(payments)
	t.st.orders[orderID] = order

	kept := make([]domain.CustomerPayment, 0, len(t.st.customerPayments)+len(mirrored))
	for _, payment := range t.st.customerPayments {
		if payment.OrderID != orderID {
			kept = append(kept, payment)
		}
	}
	t.st.customerPayments = append(kept, mirrored...)
	return nil
}

func (t *memTx) ReplaceWalletEntries(_ context.Context, orderID string, entries []domain.WalletEntry) error {
	kept := make([]domain.WalletEntry, 0, len(t.st.walletEntries)+len(entries))
	for _, entry := range t.st.walletEntries {
		if entry.OrderID != orderID {
			kept = append(kept, entry)
		}
	}
	t.st.walletEntries = append(kept, entries...)
	return nil
}
