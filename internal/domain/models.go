package domain

import "time"

// DefaultBranchID is the head-office branch used when a caller does not resolve one.
const DefaultBranchID int64 = 1

// CustomItemProductID marks ad-hoc cart lines that have no product record and no stock.
const CustomItemProductID = "custom"

type ProductType string

const (
	ProductRetail       ProductType = "retail"
	ProductAssetRental  ProductType = "asset_rental"
	ProductServicePrint ProductType = "service_print"
	ProductRawMaterial  ProductType = "raw_material"
)

func (t ProductType) Valid() bool {
	switch t {
	case ProductRetail, ProductAssetRental, ProductServicePrint, ProductRawMaterial:
		return true
	}
	return false
}

type Product struct {
	ID                 string      `json:"id" db:"id"`
	Name               string      `json:"name" db:"name"`
	SKU                string      `json:"sku" db:"sku"`
	Type               ProductType `json:"type" db:"type"`
	PriceCents         int64       `json:"price_cents" db:"price_cents"`
	RentalDepositCents int64       `json:"rental_deposit_cents" db:"rental_deposit_cents"`
	ReorderThreshold   float64     `json:"reorder_threshold" db:"reorder_threshold"`
	Archived           bool        `json:"archived" db:"archived"`
	CreatedAt          time.Time   `json:"created_at" db:"created_at"`
}

type ProductCreateRequest struct {
	Name               string      `json:"name"`
	SKU                string      `json:"sku"`
	Type               ProductType `json:"type"`
	PriceCents         int64       `json:"price_cents"`
	RentalDepositCents int64       `json:"rental_deposit_cents"`
	ReorderThreshold   float64     `json:"reorder_threshold"`
}

type InventoryBatch struct {
	ID            string     `json:"id" db:"id"`
	ProductID     string     `json:"product_id" db:"product_id"`
	BranchID      int64      `json:"branch_id" db:"branch_id"`
	Label         string     `json:"label" db:"label"`
	QtyInitial    float64    `json:"qty_initial" db:"qty_initial"`
	QtyRemaining  float64    `json:"qty_remaining" db:"qty_remaining"`
	UnitCostCents int64      `json:"unit_cost_cents" db:"unit_cost_cents"`
	ExpiryDate    *time.Time `json:"expiry_date,omitempty" db:"expiry_date"`
	ReceivedAt    time.Time  `json:"received_at" db:"received_at"`
}

type MovementType string

const (
	MovementRestock       MovementType = "restock"
	MovementSale          MovementType = "sale"
	MovementReturn        MovementType = "return"
	MovementAdjustment    MovementType = "adjustment"
	MovementTransferOut   MovementType = "transfer_out"
	MovementTransferIn    MovementType = "transfer_in"
	MovementCorrectionIn  MovementType = "correction_in"
	MovementCorrectionOut MovementType = "correction_out"
)

// StockMovement is append-only. Qty is signed: positive adds stock, negative removes it.
type StockMovement struct {
	ID          string       `json:"id" db:"id"`
	ProductID   string       `json:"product_id" db:"product_id"`
	BranchID    int64        `json:"branch_id" db:"branch_id"`
	BatchID     string       `json:"batch_id,omitempty" db:"batch_id"`
	Type        MovementType `json:"type" db:"type"`
	Qty         float64      `json:"qty" db:"qty"`
	Reason      string       `json:"reason" db:"reason"`
	ReferenceID string       `json:"reference_id,omitempty" db:"reference_id"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
}

type Supplier struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Phone     string    `json:"phone" db:"phone"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type SupplierCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

const (
	POStatusReceived = "received"

	POPaymentUnpaid  = "unpaid"
	POPaymentPartial = "partial"
	POPaymentPaid    = "paid"
)

type PurchaseOrder struct {
	ID                 string              `json:"id" db:"id"`
	SupplierID         string              `json:"supplier_id" db:"supplier_id"`
	BranchID           int64               `json:"branch_id" db:"branch_id"`
	ProductCostCents   int64               `json:"product_cost_cents" db:"product_cost_cents"`
	TransportCostCents int64               `json:"transport_cost_cents" db:"transport_cost_cents"`
	PackagingCostCents int64               `json:"packaging_cost_cents" db:"packaging_cost_cents"`
	TotalPaidCents     int64               `json:"total_paid_cents" db:"total_paid_cents"`
	Status             string              `json:"status" db:"status"`
	PaymentStatus      string              `json:"payment_status" db:"payment_status"`
	CreatedAt          time.Time           `json:"created_at" db:"created_at"`
	Items              []PurchaseOrderItem `json:"items" db:"-"`
}

func (po PurchaseOrder) TotalCents() int64 {
	return po.ProductCostCents + po.TransportCostCents + po.PackagingCostCents
}

type PurchaseOrderItem struct {
	PurchaseOrderID    string     `json:"-" db:"purchase_order_id"`
	ProductID          string     `json:"product_id" db:"product_id"`
	BatchID            string     `json:"batch_id" db:"batch_id"`
	Qty                float64    `json:"qty" db:"qty"`
	SupplierPriceCents int64      `json:"supplier_price_cents" db:"supplier_price_cents"`
	LandedCostCents    int64      `json:"landed_cost_cents" db:"landed_cost_cents"`
	ExpiryDate         *time.Time `json:"expiry_date,omitempty" db:"expiry_date"`
}

type ReceiveLine struct {
	ProductID      string  `json:"product_id"`
	Qty            float64 `json:"qty"`
	UnitPriceCents int64   `json:"unit_price_cents"`
	ExpiryDate     string  `json:"expiry_date,omitempty"`
}

type ReceiveStockRequest struct {
	SupplierID         string        `json:"supplier_id"`
	BranchID           int64         `json:"branch_id"`
	TransportCostCents int64         `json:"transport_cost_cents"`
	PackagingCostCents int64         `json:"packaging_cost_cents"`
	Items              []ReceiveLine `json:"items"`
}

type SupplierPayment struct {
	ID              string    `json:"id" db:"id"`
	PurchaseOrderID string    `json:"purchase_order_id" db:"purchase_order_id"`
	AmountCents     int64     `json:"amount_cents" db:"amount_cents"`
	Method          string    `json:"method" db:"method"`
	Reference       string    `json:"reference,omitempty" db:"reference"`
	Notes           string    `json:"notes,omitempty" db:"notes"`
	CreatedBy       string    `json:"created_by" db:"created_by"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

type SupplierPaymentRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Method      string `json:"method"`
	Reference   string `json:"reference,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

type StockAdjustmentRequest struct {
	BranchID       int64   `json:"branch_id"`
	ProductID      string  `json:"product_id"`
	QuantityChange float64 `json:"quantity_change"`
	UnitCostCents  int64   `json:"unit_cost_cents"`
	Reason         string  `json:"reason"`
}

type StockAdjustmentResponse struct {
	ProductID string  `json:"product_id"`
	BranchID  int64   `json:"branch_id"`
	Applied   float64 `json:"applied"`
	Shortfall float64 `json:"shortfall"`
	BatchID   string  `json:"batch_id,omitempty"`
}

const TransferStatusCompleted = "completed"

type Transfer struct {
	ID           string         `json:"id" db:"id"`
	ReferenceNo  string         `json:"reference_no" db:"reference_no"`
	FromBranchID int64          `json:"from_branch_id" db:"from_branch_id"`
	ToBranchID   int64          `json:"to_branch_id" db:"to_branch_id"`
	Status       string         `json:"status" db:"status"`
	Notes        string         `json:"notes,omitempty" db:"notes"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	Items        []TransferItem `json:"items" db:"-"`
}

type TransferItem struct {
	TransferID string  `json:"-" db:"transfer_id"`
	ProductID  string  `json:"product_id" db:"product_id"`
	Qty        float64 `json:"qty" db:"qty"`
}

type TransferRequest struct {
	FromBranchID int64          `json:"from_branch_id"`
	ToBranchID   int64          `json:"to_branch_id"`
	Notes        string         `json:"notes,omitempty"`
	Items        []TransferItem `json:"items"`
}

type Customer struct {
	ID               string    `json:"id" db:"id"`
	Name             string    `json:"name" db:"name"`
	Phone            string    `json:"phone" db:"phone"`
	CreditLimitCents int64     `json:"credit_limit_cents" db:"credit_limit_cents"`
	DebtCents        int64     `json:"debt_cents" db:"debt_cents"`
	Points           int64     `json:"points" db:"points"`
	WalletCents      int64     `json:"wallet_cents" db:"wallet_cents"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

type CustomerCreateRequest struct {
	Name             string `json:"name"`
	Phone            string `json:"phone"`
	CreditLimitCents *int64 `json:"credit_limit_cents,omitempty"`
}

type SettleDebtRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Method      string `json:"method"`
}

// CustomerPayment is the unified customer statement row. OrderID is empty for debt settlements.
type CustomerPayment struct {
	ID          string    `json:"id" db:"id"`
	CustomerID  string    `json:"customer_id" db:"customer_id"`
	OrderID     string    `json:"order_id,omitempty" db:"order_id"`
	AmountCents int64     `json:"amount_cents" db:"amount_cents"`
	Method      string    `json:"method" db:"method"`
	Notes       string    `json:"notes,omitempty" db:"notes"`
	PaidAt      time.Time `json:"paid_at" db:"paid_at"`
}

// CustomerStatement is the customer's balances with every payment and wallet movement.
type CustomerStatement struct {
	Customer      Customer          `json:"customer"`
	Payments      []CustomerPayment `json:"payments"`
	WalletEntries []WalletEntry     `json:"wallet_entries"`
}

const WalletDepositChange = "deposit_change"

type WalletEntry struct {
	ID          string    `json:"id" db:"id"`
	CustomerID  string    `json:"customer_id" db:"customer_id"`
	OrderID     string    `json:"order_id,omitempty" db:"order_id"`
	Kind        string    `json:"kind" db:"kind"`
	AmountCents int64     `json:"amount_cents" db:"amount_cents"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

const (
	OrderStatusHeld           = "held"
	OrderStatusCompleted      = "completed"
	OrderStatusPartialPayment = "partial_payment"
	OrderStatusPendingPayment = "pending_payment"
	OrderStatusVoided         = "voided"
)

const (
	DispatchPending    = "pending"
	DispatchProcessing = "processing"
	DispatchReleased   = "released"
	DispatchDelivered  = "delivered"
	DispatchCancelled  = "cancelled"
)

type DeliveryFee struct {
	Label       string `json:"label"`
	AmountCents int64  `json:"amount_cents"`
}

type DeliveryDetails struct {
	Method  string        `json:"method,omitempty"`
	Address string        `json:"address,omitempty"`
	Driver  string        `json:"driver,omitempty"`
	Notes   string        `json:"notes,omitempty"`
	Fees    []DeliveryFee `json:"fees,omitempty"`
}

// OrderEffect is the financial effect a settled order applied to its customer.
// Reversal on edit subtracts exactly these amounts.
type OrderEffect struct {
	DebtDeltaCents   int64 `json:"debt_delta_cents" db:"debt_delta_cents"`
	WalletDeltaCents int64 `json:"wallet_delta_cents" db:"wallet_delta_cents"`
	PointsAwarded    int64 `json:"points_awarded" db:"points_awarded"`
}

type Order struct {
	ID              string            `json:"id" db:"id"`
	CustomerID      string            `json:"customer_id,omitempty" db:"customer_id"`
	BranchID        int64             `json:"branch_id" db:"branch_id"`
	TotalCents      int64             `json:"total_cents" db:"total_cents"`
	DepositCents    int64             `json:"deposit_cents" db:"deposit_cents"`
	TaxCents        int64             `json:"tax_cents" db:"tax_cents"`
	DiscountCents   int64             `json:"discount_cents" db:"discount_cents"`
	DiscountReason  string            `json:"discount_reason,omitempty" db:"discount_reason"`
	PaidCents       int64             `json:"paid_cents" db:"paid_cents"`
	Status          string            `json:"status" db:"status"`
	IsHold          bool              `json:"is_hold" db:"is_hold"`
	DepositChange   bool              `json:"deposit_change" db:"deposit_change"`
	DispatchStatus  string            `json:"dispatch_status,omitempty" db:"dispatch_status"`
	DeliveryDetails *DeliveryDetails  `json:"delivery_details,omitempty" db:"-"`
	Effect          OrderEffect       `json:"effect" db:"-"`
	CreatedBy       string            `json:"created_by" db:"created_by"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at" db:"updated_at"`
	Items           []OrderItem       `json:"items" db:"-"`
	Payments        []Payment         `json:"payments" db:"-"`
	Allocations     []StockAllocation `json:"allocations,omitempty" db:"-"`
}

// BalanceCents is what the customer still owes. Negative means overpaid.
func (o Order) BalanceCents() int64 {
	return o.TotalCents - o.PaidCents
}

type OrderItem struct {
	OrderID            string      `json:"-" db:"order_id"`
	ProductID          string      `json:"product_id" db:"product_id"`
	Type               ProductType `json:"type" db:"type"`
	Qty                float64     `json:"qty" db:"qty"`
	UnitPriceCents     int64       `json:"unit_price_cents" db:"unit_price_cents"`
	SubtotalCents      int64       `json:"subtotal_cents" db:"subtotal_cents"`
	RentalSerial       string      `json:"rental_serial,omitempty" db:"rental_serial"`
	RentalDepositCents int64       `json:"rental_deposit_cents" db:"rental_deposit_cents"`
}

type Payment struct {
	ID          string    `json:"id" db:"id"`
	OrderID     string    `json:"order_id" db:"order_id"`
	Method      string    `json:"method" db:"method"`
	AmountCents int64     `json:"amount_cents" db:"amount_cents"`
	Reference   string    `json:"reference,omitempty" db:"reference"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// StockAllocation records which batch a sale line touched. Positive Qty was drawn
// from the batch, negative Qty was added to it (returns).
type StockAllocation struct {
	OrderID   string  `json:"-" db:"order_id"`
	ProductID string  `json:"product_id" db:"product_id"`
	BatchID   string  `json:"batch_id" db:"batch_id"`
	Qty       float64 `json:"qty" db:"qty"`
}

type SaleItemRequest struct {
	ProductID      string  `json:"product_id"`
	Qty            float64 `json:"qty"`
	UnitPriceCents int64   `json:"unit_price_cents"`
	DepositCents   int64   `json:"deposit_cents,omitempty"`
	SerialNumber   string  `json:"serial_number,omitempty"`
}

type PaymentRequest struct {
	Method      string `json:"method"`
	AmountCents int64  `json:"amount_cents"`
	Reference   string `json:"reference,omitempty"`
}

type SaleRequest struct {
	BranchID       int64             `json:"branch_id"`
	CustomerID     string            `json:"customer_id,omitempty"`
	Items          []SaleItemRequest `json:"items"`
	Payments       []PaymentRequest  `json:"payments"`
	DiscountCents  int64             `json:"discount_cents"`
	DiscountReason string            `json:"discount_reason,omitempty"`
	TaxCents       int64             `json:"tax_cents"`
	IsHold         bool              `json:"is_hold"`
	IsDispatch     bool              `json:"is_dispatch"`
	Delivery       *DeliveryDetails  `json:"delivery,omitempty"`
	DepositChange  bool              `json:"deposit_change"`
}

type SaleResponse struct {
	Order        Order `json:"order"`
	BalanceCents int64 `json:"balance_cents"`
}

type VoidSaleRequest struct {
	Reason     string `json:"reason"`
	ManagerPIN string `json:"manager_pin"`
}

type DispatchUpdateRequest struct {
	Status          string           `json:"status"`
	DeliveryMethod  string           `json:"delivery_method,omitempty"`
	DeliveryDetails *DeliveryDetails `json:"delivery_details,omitempty"`
}

type ValuationLine struct {
	ProductID  string  `json:"product_id" db:"product_id"`
	SKU        string  `json:"sku" db:"sku"`
	Name       string  `json:"name" db:"name"`
	BranchID   int64   `json:"branch_id" db:"branch_id"`
	Qty        float64 `json:"qty" db:"qty"`
	ValueCents int64   `json:"value_cents" db:"value_cents"`
}

type ValuationReport struct {
	BranchID   int64           `json:"branch_id"`
	Lines      []ValuationLine `json:"lines"`
	TotalCents int64           `json:"total_cents"`
}

type LowStockItem struct {
	ProductID string  `json:"product_id" db:"product_id"`
	SKU       string  `json:"sku" db:"sku"`
	Name      string  `json:"name" db:"name"`
	Qty       float64 `json:"qty" db:"qty"`
	Threshold float64 `json:"threshold" db:"threshold"`
}

type ActivityLog struct {
	ID         string    `json:"id" db:"id"`
	Actor      string    `json:"actor" db:"actor"`
	Action     string    `json:"action" db:"action"`
	EntityType string    `json:"entity_type" db:"entity_type"`
	EntityID   string    `json:"entity_id" db:"entity_id"`
	Details    string    `json:"details" db:"details"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	BranchID    int64  `json:"branch_id"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
	BranchID int64
}

type UserAccount struct {
	Username  string    `json:"username" db:"username"`
	Password  string    `json:"-" db:"password"`
	Role      string    `json:"role" db:"role"`
	BranchID  int64     `json:"branch_id" db:"branch_id"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
