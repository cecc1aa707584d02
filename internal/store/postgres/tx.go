package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"ledgerpos/backend/internal/domain"
	"ledgerpos/backend/internal/store"
)

const qtyEpsilon = 1e-9

const batchColumns = `id, product_id, branch_id, label, qty_initial, qty_remaining, unit_cost_cents, expiry_date, received_at`

// pgTx implements store.Tx on one read-committed transaction. Every Lock* query
// takes FOR UPDATE row locks that are released on commit or rollback.
type pgTx struct {
	tx *sqlx.Tx
}

func (t *pgTx) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return getProduct(ctx, t.tx, `WHERE id = $1`, id)
}

func (t *pgTx) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	return getProduct(ctx, t.tx, `WHERE upper(sku) = upper($1)`, sku)
}

func (t *pgTx) LockAvailableBatches(ctx context.Context, productID string, branchID int64) ([]domain.InventoryBatch, error) {
	batches := make([]domain.InventoryBatch, 0, 4)
	err := t.tx.SelectContext(ctx, &batches, `
		SELECT `+batchColumns+`
		FROM inventory_batches
		WHERE product_id = $1 AND branch_id = $2 AND qty_remaining > 0
		ORDER BY received_at, seq
		FOR UPDATE
	`, productID, branchID)
	return batches, err
}

func (t *pgTx) LockNewestBatch(ctx context.Context, productID string, branchID int64) (*domain.InventoryBatch, error) {
	var batch domain.InventoryBatch
	err := t.tx.GetContext(ctx, &batch, `
		SELECT `+batchColumns+`
		FROM inventory_batches
		WHERE product_id = $1 AND branch_id = $2
		ORDER BY received_at DESC, seq DESC
		LIMIT 1
		FOR UPDATE
	`, productID, branchID)
	if err != nil {
		return nil, notFound(err, "batch for product", fmt.Sprintf("%s at branch %d", productID, branchID))
	}
	return &batch, nil
}

func (t *pgTx) LockBatch(ctx context.Context, id string) (*domain.InventoryBatch, error) {
	var batch domain.InventoryBatch
	err := t.tx.GetContext(ctx, &batch, `SELECT `+batchColumns+` FROM inventory_batches WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, notFound(err, "batch", id)
	}
	return &batch, nil
}

func (t *pgTx) AdjustBatch(ctx context.Context, batchID string, delta float64) error {
	batch, err := t.LockBatch(ctx, batchID)
	if err != nil {
		return err
	}
	next := batch.QtyRemaining + delta
	if next < -qtyEpsilon || next > batch.QtyInitial+qtyEpsilon {
		return fmt.Errorf("%w: batch %s remaining would become %v of %v", store.ErrIntegrity, batchID, next, batch.QtyInitial)
	}
	next = min(max(next, 0), batch.QtyInitial)

	_, err = t.tx.ExecContext(ctx, `UPDATE inventory_batches SET qty_remaining = $2 WHERE id = $1`, batchID, next)
	return err
}

func (t *pgTx) InsertBatch(ctx context.Context, batch domain.InventoryBatch) error {
	if batch.ReceivedAt.IsZero() {
		batch.ReceivedAt = time.Now().UTC()
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO inventory_batches (id, product_id, branch_id, label, qty_initial, qty_remaining, unit_cost_cents, expiry_date, received_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, batch.ID, batch.ProductID, batch.BranchID, batch.Label, batch.QtyInitial, batch.QtyRemaining,
		batch.UnitCostCents, nullDate(batch.ExpiryDate), batch.ReceivedAt)
	return err
}

func (t *pgTx) InsertMovement(ctx context.Context, movement domain.StockMovement) error {
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO stock_movements (id, product_id, branch_id, batch_id, type, qty, reason, reference_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, movement.ID, movement.ProductID, movement.BranchID, nullIfEmpty(movement.BatchID), string(movement.Type),
		movement.Qty, movement.Reason, movement.ReferenceID, movement.CreatedAt)
	return err
}

func (t *pgTx) GetSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	var supplier domain.Supplier
	err := t.tx.GetContext(ctx, &supplier, `SELECT id, name, phone, created_at FROM suppliers WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, "supplier", id)
	}
	return &supplier, nil
}

func (t *pgTx) InsertPurchaseOrder(ctx context.Context, po domain.PurchaseOrder) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO purchase_orders (`+purchaseOrderColumns+`)
		VALUES (:id, :supplier_id, :branch_id, :product_cost_cents, :transport_cost_cents, :packaging_cost_cents,
		        :total_paid_cents, :status, :payment_status, :created_at)
	`, po)
	if err != nil {
		return err
	}

	for _, item := range po.Items {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO purchase_order_items (purchase_order_id, product_id, batch_id, qty, supplier_price_cents, landed_cost_cents, expiry_date)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, po.ID, item.ProductID, item.BatchID, item.Qty, item.SupplierPriceCents, item.LandedCostCents, nullDate(item.ExpiryDate))
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) LockPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	return getPurchaseOrder(ctx, t.tx, id, true)
}

func (t *pgTx) UpdatePurchaseOrderPayment(ctx context.Context, id string, totalPaidCents int64, paymentStatus string) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE purchase_orders SET total_paid_cents = $2, payment_status = $3 WHERE id = $1
	`, id, totalPaidCents, paymentStatus)
	if err != nil {
		return err
	}
	return expectRow(res, "purchase order", id)
}

func (t *pgTx) InsertSupplierPayment(ctx context.Context, payment domain.SupplierPayment) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO supplier_payments (id, purchase_order_id, amount_cents, method, reference, notes, created_by, created_at)
		VALUES (:id, :purchase_order_id, :amount_cents, :method, :reference, :notes, :created_by, :created_at)
	`, payment)
	return err
}

func (t *pgTx) InsertTransfer(ctx context.Context, transfer domain.Transfer) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO transfers (id, reference_no, from_branch_id, to_branch_id, status, notes, created_at)
		VALUES (:id, :reference_no, :from_branch_id, :to_branch_id, :status, :notes, :created_at)
	`, transfer)
	if err != nil {
		return err
	}
	for _, item := range transfer.Items {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO transfer_items (transfer_id, product_id, qty) VALUES ($1,$2,$3)
		`, transfer.ID, item.ProductID, item.Qty)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) LockCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	var customer domain.Customer
	err := t.tx.GetContext(ctx, &customer, `SELECT `+customerColumns+` FROM customers WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, notFound(err, "customer", id)
	}
	return &customer, nil
}

func (t *pgTx) UpdateCustomerBalances(ctx context.Context, customer domain.Customer) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE customers SET debt_cents = $2, points = $3, wallet_cents = $4 WHERE id = $1
	`, customer.ID, customer.DebtCents, customer.Points, customer.WalletCents)
	if err != nil {
		return err
	}
	return expectRow(res, "customer", customer.ID)
}

func (t *pgTx) InsertCustomerPayment(ctx context.Context, payment domain.CustomerPayment) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO customer_payments (id, customer_id, order_id, amount_cents, method, notes, paid_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, payment.ID, payment.CustomerID, nullIfEmpty(payment.OrderID), payment.AmountCents, payment.Method, payment.Notes, payment.PaidAt)
	return err
}

func (t *pgTx) LockOrder(ctx context.Context, id string) (*domain.Order, error) {
	return getOrder(ctx, t.tx, id, true)
}

func (t *pgTx) InsertOrder(ctx context.Context, order domain.Order) error {
	delivery, err := marshalDelivery(order.DeliveryDetails)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO orders (id, customer_id, branch_id, total_cents, deposit_cents, tax_cents, discount_cents,
		                    discount_reason, paid_cents, status, is_hold, deposit_change, dispatch_status, delivery_details,
		                    debt_delta_cents, wallet_delta_cents, points_awarded, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14::jsonb,$15,$16,$17,$18,$19,$20)
	`, order.ID, nullIfEmpty(order.CustomerID), order.BranchID, order.TotalCents, order.DepositCents, order.TaxCents,
		order.DiscountCents, order.DiscountReason, order.PaidCents, order.Status, order.IsHold, order.DepositChange,
		order.DispatchStatus, delivery, order.Effect.DebtDeltaCents, order.Effect.WalletDeltaCents,
		order.Effect.PointsAwarded, order.CreatedBy, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return err
	}
	return t.insertOrderItems(ctx, order.ID, order.Items)
}

func (t *pgTx) UpdateOrder(ctx context.Context, order domain.Order) error {
	delivery, err := marshalDelivery(order.DeliveryDetails)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE orders
		SET customer_id = $2, branch_id = $3, total_cents = $4, deposit_cents = $5, tax_cents = $6,
		    discount_cents = $7, discount_reason = $8, paid_cents = $9, status = $10, is_hold = $11,
		    deposit_change = $12, dispatch_status = $13, delivery_details = $14::jsonb,
		    debt_delta_cents = $15, wallet_delta_cents = $16, points_awarded = $17, updated_at = $18
		WHERE id = $1
	`, order.ID, nullIfEmpty(order.CustomerID), order.BranchID, order.TotalCents, order.DepositCents, order.TaxCents,
		order.DiscountCents, order.DiscountReason, order.PaidCents, order.Status, order.IsHold, order.DepositChange,
		order.DispatchStatus, delivery, order.Effect.DebtDeltaCents, order.Effect.WalletDeltaCents,
		order.Effect.PointsAwarded, order.UpdatedAt)
	if err != nil {
		return err
	}
	if err := expectRow(res, "order", order.ID); err != nil {
		return err
	}

	if _, err := t.tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, order.ID); err != nil {
		return err
	}
	return t.insertOrderItems(ctx, order.ID, order.Items)
}

func (t *pgTx) insertOrderItems(ctx context.Context, orderID string, items []domain.OrderItem) error {
	for _, item := range items {
		item.OrderID = orderID
		_, err := t.tx.NamedExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, type, qty, unit_price_cents, subtotal_cents, rental_serial, rental_deposit_cents)
			VALUES (:order_id, :product_id, :type, :qty, :unit_price_cents, :subtotal_cents, :rental_serial, :rental_deposit_cents)
		`, item)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) UpdateOrderStatus(ctx context.Context, id string, status string) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	return expectRow(res, "order", id)
}

func (t *pgTx) UpdateDispatch(ctx context.Context, id string, status string, details *domain.DeliveryDetails) error {
	delivery, err := marshalDelivery(details)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE orders
		SET dispatch_status = $2, delivery_details = COALESCE($3::jsonb, delivery_details), updated_at = now()
		WHERE id = $1
	`, id, status, delivery)
	if err != nil {
		return err
	}
	return expectRow(res, "order", id)
}

func (t *pgTx) ReplaceAllocations(ctx context.Context, orderID string, allocations []domain.StockAllocation) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM stock_allocations WHERE order_id = $1`, orderID); err != nil {
		return err
	}
	for _, allocation := range allocations {
		allocation.OrderID = orderID
		_, err := t.tx.NamedExecContext(ctx, `
			INSERT INTO stock_allocations (order_id, product_id, batch_id, qty)
			VALUES (:order_id, :product_id, :batch_id, :qty)
		`, allocation)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) ReplacePayments(ctx context.Context, orderID string, payments []domain.Payment, mirrored []domain.CustomerPayment) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM payments WHERE order_id = $1`, orderID); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM customer_payments WHERE order_id = $1`, orderID); err != nil {
		return err
	}

	for _, payment := range payments {
		payment.OrderID = orderID
		_, err := t.tx.NamedExecContext(ctx, `
			INSERT INTO payments (id, order_id, method, amount_cents, reference, created_at)
			VALUES (:id, :order_id, :method, :amount_cents, :reference, :created_at)
		`, payment)
		if err != nil {
			return err
		}
	}
	for _, payment := range mirrored {
		if err := t.InsertCustomerPayment(ctx, payment); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) ReplaceWalletEntries(ctx context.Context, orderID string, entries []domain.WalletEntry) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM wallet_entries WHERE order_id = $1`, orderID); err != nil {
		return err
	}
	for _, entry := range entries {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO wallet_entries (id, customer_id, order_id, kind, amount_cents, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, entry.ID, entry.CustomerID, nullIfEmpty(entry.OrderID), entry.Kind, entry.AmountCents, entry.CreatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}
