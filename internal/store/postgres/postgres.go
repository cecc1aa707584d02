package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"ledgerpos/backend/internal/domain"
	"ledgerpos/backend/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Store struct {
	db *sqlx.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sqlx.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, s.db.DB, "migrations")
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&pgTx{tx: sqlTx}); err != nil {
		return mapError(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return mapError(err)
	}
	return nil
}

const productColumns = `id, name, sku, type, price_cents, rental_deposit_cents, reorder_threshold, archived, created_at`

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (:id, :name, :sku, :type, :price_cents, :rental_deposit_cents, :reorder_threshold, :archived, :created_at)
	`, product)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: sku %s already exists", store.ErrIntegrity, product.SKU)
		}
		return nil, mapError(err)
	}
	return &product, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return getProduct(ctx, s.db, `WHERE id = $1`, id)
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products := make([]domain.Product, 0, 64)
	err := s.db.SelectContext(ctx, &products, `
		SELECT `+productColumns+`
		FROM products
		WHERE archived = false
		ORDER BY sku
	`)
	return products, err
}

func (s *Store) ArchiveProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE products SET archived = true WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectRow(res, "product", id)
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO suppliers (id, name, phone, created_at)
		VALUES (:id, :name, :phone, :created_at)
	`, supplier)
	if err != nil {
		return nil, mapError(err)
	}
	return &supplier, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	suppliers := make([]domain.Supplier, 0, 16)
	err := s.db.SelectContext(ctx, &suppliers, `SELECT id, name, phone, created_at FROM suppliers ORDER BY name`)
	return suppliers, err
}

func (s *Store) GetPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	return getPurchaseOrder(ctx, s.db, id, false)
}

const customerColumns = `id, name, phone, credit_limit_cents, debt_cents, points, wallet_cents, created_at`

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO customers (`+customerColumns+`)
		VALUES (:id, :name, :phone, :credit_limit_cents, :debt_cents, :points, :wallet_cents, :created_at)
	`, customer)
	if err != nil {
		return nil, mapError(err)
	}
	return &customer, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	var customer domain.Customer
	err := s.db.GetContext(ctx, &customer, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, "customer", id)
	}
	return &customer, nil
}

func (s *Store) ListCustomerPayments(ctx context.Context, customerID string) ([]domain.CustomerPayment, error) {
	payments := make([]domain.CustomerPayment, 0, 16)
	err := s.db.SelectContext(ctx, &payments, `
		SELECT id, customer_id, COALESCE(order_id, '') AS order_id, amount_cents, method, notes, paid_at
		FROM customer_payments
		WHERE customer_id = $1
		ORDER BY paid_at, id
	`, customerID)
	return payments, err
}

func (s *Store) ListWalletEntries(ctx context.Context, customerID string) ([]domain.WalletEntry, error) {
	entries := make([]domain.WalletEntry, 0, 8)
	err := s.db.SelectContext(ctx, &entries, `
		SELECT id, customer_id, COALESCE(order_id, '') AS order_id, kind, amount_cents, created_at
		FROM wallet_entries
		WHERE customer_id = $1
		ORDER BY created_at, id
	`, customerID)
	return entries, err
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return getOrder(ctx, s.db, id, false)
}

func (s *Store) ListDispatchQueue(ctx context.Context, branchID int64) ([]domain.Order, error) {
	rows := make([]orderRow, 0, 16)
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE branch_id = $1
		  AND status <> 'voided'
		  AND dispatch_status IN ('pending', 'processing', 'released')
		ORDER BY created_at
	`, branchID)
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		order, err := row.toOrder()
		if err != nil {
			return nil, err
		}
		if err := loadOrderChildren(ctx, s.db, &order); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (s *Store) ListBatches(ctx context.Context, productID string, branchID int64) ([]domain.InventoryBatch, error) {
	batches := make([]domain.InventoryBatch, 0, 16)
	err := s.db.SelectContext(ctx, &batches, `
		SELECT `+batchColumns+`
		FROM inventory_batches
		WHERE ($1 = '' OR product_id = $1)
		  AND ($2 = 0 OR branch_id = $2)
		ORDER BY received_at, seq
	`, productID, branchID)
	return batches, err
}

func (s *Store) ListMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 100
	}
	movements := make([]domain.StockMovement, 0, limit)
	err := s.db.SelectContext(ctx, &movements, `
		SELECT id, product_id, branch_id, COALESCE(batch_id, '') AS batch_id, type, qty, reason, reference_id, created_at
		FROM stock_movements
		WHERE ($1 = '' OR product_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, productID, limit)
	return movements, err
}

func (s *Store) StockValuation(ctx context.Context, branchID int64) ([]domain.ValuationLine, error) {
	lines := make([]domain.ValuationLine, 0, 32)
	err := s.db.SelectContext(ctx, &lines, `
		SELECT b.product_id, p.sku, p.name, b.branch_id,
		       SUM(b.qty_remaining) AS qty,
		       ROUND(SUM(b.qty_remaining * b.unit_cost_cents))::bigint AS value_cents
		FROM inventory_batches b
		JOIN products p ON p.id = b.product_id
		WHERE b.branch_id = $1 AND b.qty_remaining > 0
		GROUP BY b.product_id, p.sku, p.name, b.branch_id
		ORDER BY p.sku
	`, branchID)
	return lines, err
}

func (s *Store) LowStock(ctx context.Context, branchID int64, defaultThreshold float64) ([]domain.LowStockItem, error) {
	items := make([]domain.LowStockItem, 0, 16)
	err := s.db.SelectContext(ctx, &items, `
		SELECT product_id, sku, name, qty, threshold
		FROM (
			SELECT p.id AS product_id, p.sku, p.name,
			       COALESCE(SUM(b.qty_remaining), 0) AS qty,
			       CASE WHEN p.reorder_threshold > 0 THEN p.reorder_threshold ELSE $2::double precision END AS threshold
			FROM products p
			LEFT JOIN inventory_batches b ON b.product_id = p.id AND b.branch_id = $1
			WHERE p.archived = false AND p.type IN ('retail', 'raw_material')
			GROUP BY p.id, p.sku, p.name, p.reorder_threshold
		) levels
		WHERE qty <= threshold
		ORDER BY qty, sku
	`, branchID, defaultThreshold)
	return items, err
}

func (s *Store) CreateActivity(ctx context.Context, entry domain.ActivityLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Details == "" {
		entry.Details = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_logs (id, actor, action, entity_type, entity_id, details, created_at)
		VALUES ($1,$2,$3,$4,$5,$6::jsonb,$7)
	`, entry.ID, entry.Actor, entry.Action, entry.EntityType, entry.EntityID, entry.Details, entry.CreatedAt)
	return err
}

func (s *Store) ListActivity(ctx context.Context, limit int) ([]domain.ActivityLog, error) {
	if limit < 1 {
		limit = 100
	}
	entries := make([]domain.ActivityLog, 0, limit)
	err := s.db.SelectContext(ctx, &entries, `
		SELECT id, actor, action, entity_type, entity_id, details::text AS details, created_at
		FROM activity_logs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	return entries, err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	users := make([]domain.UserAccount, 0, 8)
	err := s.db.SelectContext(ctx, &users, `
		SELECT username, password, role, branch_id, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	return users, err
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	res, err := s.db.ExecContext(ctx, `UPDATE app_users SET password = $2 WHERE username = $1`, username, password)
	if err != nil {
		return err
	}
	return expectRow(res, "user", username)
}

// mapError folds constraint violations into store.ErrIntegrity.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23503", "23514":
			return fmt.Errorf("%w: %s", store.ErrIntegrity, pgErr.Message)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func notFound(err error, entity string, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", store.ErrNotFound, entity, id)
	}
	return err
}

func expectRow(res sql.Result, entity string, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s %s", store.ErrNotFound, entity, id)
	}
	return nil
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullDate(val *time.Time) any {
	if val == nil {
		return nil
	}
	t := val.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

const orderColumns = `id, COALESCE(customer_id, '') AS customer_id, branch_id, total_cents, deposit_cents, tax_cents,
	discount_cents, discount_reason, paid_cents, status, is_hold, deposit_change, dispatch_status, delivery_details,
	debt_delta_cents, wallet_delta_cents, points_awarded, created_by, created_at, updated_at`

// orderRow carries the columns that domain.Order keeps outside its db tags.
type orderRow struct {
	domain.Order
	DeliveryJSON     []byte `db:"delivery_details"`
	DebtDeltaCents   int64  `db:"debt_delta_cents"`
	WalletDeltaCents int64  `db:"wallet_delta_cents"`
	PointsAwarded    int64  `db:"points_awarded"`
}

func (r orderRow) toOrder() (domain.Order, error) {
	order := r.Order
	order.Effect = domain.OrderEffect{
		DebtDeltaCents:   r.DebtDeltaCents,
		WalletDeltaCents: r.WalletDeltaCents,
		PointsAwarded:    r.PointsAwarded,
	}
	if len(r.DeliveryJSON) > 0 {
		var details domain.DeliveryDetails
		if err := json.Unmarshal(r.DeliveryJSON, &details); err != nil {
			return domain.Order{}, fmt.Errorf("decode delivery details for order %s: %w", r.ID, err)
		}
		order.DeliveryDetails = &details
	}
	return order, nil
}

func marshalDelivery(details *domain.DeliveryDetails) (any, error) {
	if details == nil {
		return nil, nil
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func getOrder(ctx context.Context, q sqlx.QueryerContext, id string, lock bool) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	var row orderRow
	if err := sqlx.GetContext(ctx, q, &row, query, id); err != nil {
		return nil, notFound(err, "order", id)
	}
	order, err := row.toOrder()
	if err != nil {
		return nil, err
	}
	if err := loadOrderChildren(ctx, q, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func loadOrderChildren(ctx context.Context, q sqlx.QueryerContext, order *domain.Order) error {
	order.Items = make([]domain.OrderItem, 0, 8)
	if err := sqlx.SelectContext(ctx, q, &order.Items, `
		SELECT order_id, product_id, type, qty, unit_price_cents, subtotal_cents, rental_serial, rental_deposit_cents
		FROM order_items
		WHERE order_id = $1
		ORDER BY ctid
	`, order.ID); err != nil {
		return err
	}

	order.Payments = make([]domain.Payment, 0, 2)
	if err := sqlx.SelectContext(ctx, q, &order.Payments, `
		SELECT id, order_id, method, amount_cents, reference, created_at
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at, id
	`, order.ID); err != nil {
		return err
	}

	order.Allocations = make([]domain.StockAllocation, 0, 8)
	return sqlx.SelectContext(ctx, q, &order.Allocations, `
		SELECT order_id, product_id, batch_id, qty
		FROM stock_allocations
		WHERE order_id = $1
		ORDER BY ctid
	`, order.ID)
}

func getProduct(ctx context.Context, q sqlx.QueryerContext, where string, arg any) (*domain.Product, error) {
	var product domain.Product
	err := sqlx.GetContext(ctx, q, &product, `SELECT `+productColumns+` FROM products `+where, arg)
	if err != nil {
		return nil, notFound(err, "product", fmt.Sprint(arg))
	}
	return &product, nil
}

const purchaseOrderColumns = `id, supplier_id, branch_id, product_cost_cents, transport_cost_cents, packaging_cost_cents,
	total_paid_cents, status, payment_status, created_at`

func getPurchaseOrder(ctx context.Context, q sqlx.QueryerContext, id string, lock bool) (*domain.PurchaseOrder, error) {
	query := `SELECT ` + purchaseOrderColumns + ` FROM purchase_orders WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	var po domain.PurchaseOrder
	if err := sqlx.GetContext(ctx, q, &po, query, id); err != nil {
		return nil, notFound(err, "purchase order", id)
	}
	po.Items = make([]domain.PurchaseOrderItem, 0, 8)
	err := sqlx.SelectContext(ctx, q, &po.Items, `
		SELECT purchase_order_id, product_id, batch_id, qty, supplier_price_cents, landed_cost_cents, expiry_date
		FROM purchase_order_items
		WHERE purchase_order_id = $1
		ORDER BY ctid
	`, id)
	if err != nil {
		return nil, err
	}
	return &po, nil
}
