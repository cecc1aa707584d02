package store

import (
	"context"
	"errors"

	"ledgerpos/backend/internal/domain"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrIntegrity         = errors.New("integrity violation")
)

// KindOf maps an error to its stable kind name, or "internal" for anything unclassified.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrIntegrity):
		return "integrity"
	default:
		return "internal"
	}
}

// Repository is the durable store. Multi-step mutations go through WithinTx;
// the remaining methods are single-statement reads and writes.
type Repository interface {
	// WithinTx runs fn in one unit of work. If fn returns an error nothing it did survives.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	ArchiveProduct(ctx context.Context, id string) error

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	GetPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	ListCustomerPayments(ctx context.Context, customerID string) ([]domain.CustomerPayment, error)
	ListWalletEntries(ctx context.Context, customerID string) ([]domain.WalletEntry, error)

	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListDispatchQueue(ctx context.Context, branchID int64) ([]domain.Order, error)

	ListBatches(ctx context.Context, productID string, branchID int64) ([]domain.InventoryBatch, error)
	ListMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error)
	StockValuation(ctx context.Context, branchID int64) ([]domain.ValuationLine, error)
	LowStock(ctx context.Context, branchID int64, defaultThreshold float64) ([]domain.LowStockItem, error)

	CreateActivity(ctx context.Context, entry domain.ActivityLog) error
	ListActivity(ctx context.Context, limit int) ([]domain.ActivityLog, error)

	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// Tx is the set of operations available inside a unit of work. Lock* methods
// hold the returned rows until the unit of work ends.
type Tx interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)

	// LockAvailableBatches returns batches with stock left, oldest received first.
	LockAvailableBatches(ctx context.Context, productID string, branchID int64) ([]domain.InventoryBatch, error)
	// LockNewestBatch returns the most recently received batch, ErrNotFound if there is none.
	LockNewestBatch(ctx context.Context, productID string, branchID int64) (*domain.InventoryBatch, error)
	LockBatch(ctx context.Context, id string) (*domain.InventoryBatch, error)
	AdjustBatch(ctx context.Context, batchID string, delta float64) error
	InsertBatch(ctx context.Context, batch domain.InventoryBatch) error
	InsertMovement(ctx context.Context, movement domain.StockMovement) error

	GetSupplier(ctx context.Context, id string) (*domain.Supplier, error)
	InsertPurchaseOrder(ctx context.Context, po domain.PurchaseOrder) error
	LockPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error)
	UpdatePurchaseOrderPayment(ctx context.Context, id string, totalPaidCents int64, paymentStatus string) error
	InsertSupplierPayment(ctx context.Context, payment domain.SupplierPayment) error

	InsertTransfer(ctx context.Context, transfer domain.Transfer) error

	LockCustomer(ctx context.Context, id string) (*domain.Customer, error)
	UpdateCustomerBalances(ctx context.Context, customer domain.Customer) error
	InsertCustomerPayment(ctx context.Context, payment domain.CustomerPayment) error

	// LockOrder loads the order with its items, payments and allocations.
	LockOrder(ctx context.Context, id string) (*domain.Order, error)
	InsertOrder(ctx context.Context, order domain.Order) error
	// UpdateOrder rewrites the header and replaces the items wholesale.
	UpdateOrder(ctx context.Context, order domain.Order) error
	UpdateOrderStatus(ctx context.Context, id string, status string) error
	UpdateDispatch(ctx context.Context, id string, status string, details *domain.DeliveryDetails) error
	ReplaceAllocations(ctx context.Context, orderID string, allocations []domain.StockAllocation) error
	// ReplacePayments swaps the order's payment rows and their customer-ledger mirrors together.
	ReplacePayments(ctx context.Context, orderID string, payments []domain.Payment, mirrored []domain.CustomerPayment) error
	ReplaceWalletEntries(ctx context.Context, orderID string, entries []domain.WalletEntry) error
}
