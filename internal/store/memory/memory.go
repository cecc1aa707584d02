package memory

import (
	"context"
	"fmt"
	"math"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"ledgerpos/backend/internal/domain"
	"ledgerpos/backend/internal/store"
)

const qtyEpsilon = 1e-9

// Store keeps everything in process. WithinTx serialises units of work behind
// the write lock and restores a snapshot when the unit fails or panics.
type Store struct {
	mu sync.RWMutex
	st state
}

type state struct {
	products         map[string]domain.Product
	suppliers        map[string]domain.Supplier
	customers        map[string]domain.Customer
	batches          map[string]domain.InventoryBatch
	batchSeq         map[string]int64
	nextSeq          int64
	movements        []domain.StockMovement
	purchaseOrders   map[string]domain.PurchaseOrder
	supplierPayments []domain.SupplierPayment
	transfers        map[string]domain.Transfer
	orders           map[string]domain.Order
	customerPayments []domain.CustomerPayment
	walletEntries    []domain.WalletEntry
	activity         []domain.ActivityLog
	users            map[string]domain.UserAccount
}

func newState() state {
	return state{
		products:       make(map[string]domain.Product),
		suppliers:      make(map[string]domain.Supplier),
		customers:      make(map[string]domain.Customer),
		batches:        make(map[string]domain.InventoryBatch),
		batchSeq:       make(map[string]int64),
		purchaseOrders: make(map[string]domain.PurchaseOrder),
		transfers:      make(map[string]domain.Transfer),
		orders:         make(map[string]domain.Order),
		users:          make(map[string]domain.UserAccount),
	}
}

func (s state) clone() state {
	out := state{
		products:         cloneMap(s.products, identity[domain.Product]),
		suppliers:        cloneMap(s.suppliers, identity[domain.Supplier]),
		customers:        cloneMap(s.customers, identity[domain.Customer]),
		batches:          cloneMap(s.batches, cloneBatch),
		batchSeq:         cloneMap(s.batchSeq, identity[int64]),
		nextSeq:          s.nextSeq,
		movements:        slices.Clone(s.movements),
		purchaseOrders:   cloneMap(s.purchaseOrders, clonePurchaseOrder),
		supplierPayments: slices.Clone(s.supplierPayments),
		transfers:        cloneMap(s.transfers, cloneTransfer),
		orders:           cloneMap(s.orders, cloneOrder),
		customerPayments: slices.Clone(s.customerPayments),
		walletEntries:    slices.Clone(s.walletEntries),
		activity:         slices.Clone(s.activity),
		users:            cloneMap(s.users, identity[domain.UserAccount]),
	}
	return out
}

// New returns an empty store.
func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	committed := false
	defer func() {
		if !committed {
			s.st = snapshot
		}
	}()

	if err := fn(&memTx{st: &s.st}); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.st.products {
		if strings.EqualFold(existing.SKU, product.SKU) {
			return nil, fmt.Errorf("%w: sku %s already exists", store.ErrIntegrity, product.SKU)
		}
	}
	if _, exists := s.st.products[product.ID]; exists {
		return nil, fmt.Errorf("%w: product %s already exists", store.ErrIntegrity, product.ID)
	}
	s.st.products[product.ID] = product
	return &product, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.st.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, id)
	}
	return &product, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, len(s.st.products))
	for _, product := range s.st.products {
		if product.Archived {
			continue
		}
		result = append(result, product)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SKU < result[j].SKU
	})
	return result, nil
}

func (s *Store) ArchiveProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.st.products[id]
	if !ok {
		return fmt.Errorf("%w: product %s", store.ErrNotFound, id)
	}
	product.Archived = true
	s.st.products[id] = product
	return nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.st.suppliers[supplier.ID]; exists {
		return nil, fmt.Errorf("%w: supplier %s already exists", store.ErrIntegrity, supplier.ID)
	}
	s.st.suppliers[supplier.ID] = supplier
	return &supplier, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Supplier, 0, len(s.st.suppliers))
	for _, supplier := range s.st.suppliers {
		result = append(result, supplier)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (s *Store) GetPurchaseOrder(_ context.Context, id string) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, ok := s.st.purchaseOrders[id]
	if !ok {
		return nil, fmt.Errorf("%w: purchase order %s", store.ErrNotFound, id)
	}
	cloned := clonePurchaseOrder(po)
	return &cloned, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.st.customers[customer.ID]; exists {
		return nil, fmt.Errorf("%w: customer %s already exists", store.ErrIntegrity, customer.ID)
	}
	s.st.customers[customer.ID] = customer
	return &customer, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.st.customers[id]
	if !ok {
		return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, id)
	}
	return &customer, nil
}

func (s *Store) ListCustomerPayments(_ context.Context, customerID string) ([]domain.CustomerPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CustomerPayment, 0, 8)
	for _, payment := range s.st.customerPayments {
		if payment.CustomerID == customerID {
			result = append(result, payment)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].PaidAt.Before(result[j].PaidAt)
	})
	return result, nil
}

func (s *Store) ListWalletEntries(_ context.Context, customerID string) ([]domain.WalletEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.WalletEntry, 0, 4)
	for _, entry := range s.st.walletEntries {
		if entry.CustomerID == customerID {
			result = append(result, entry)
		}
	}
	return result, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.st.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", store.ErrNotFound, id)
	}
	cloned := cloneOrder(order)
	return &cloned, nil
}

func (s *Store) ListDispatchQueue(_ context.Context, branchID int64) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, 8)
	for _, order := range s.st.orders {
		if order.BranchID != branchID || order.Status == domain.OrderStatusVoided {
			continue
		}
		switch order.DispatchStatus {
		case domain.DispatchPending, domain.DispatchProcessing, domain.DispatchReleased:
			result = append(result, cloneOrder(order))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) ListBatches(_ context.Context, productID string, branchID int64) ([]domain.InventoryBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.InventoryBatch, 0, 8)
	for _, batch := range s.st.batches {
		if productID != "" && batch.ProductID != productID {
			continue
		}
		if branchID > 0 && batch.BranchID != branchID {
			continue
		}
		result = append(result, cloneBatch(batch))
	}
	s.st.sortOldestFirst(result)
	return result, nil
}

func (s *Store) ListMovements(_ context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockMovement, 0, 16)
	for i := len(s.st.movements) - 1; i >= 0; i-- {
		movement := s.st.movements[i]
		if productID != "" && movement.ProductID != productID {
			continue
		}
		result = append(result, movement)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) StockValuation(_ context.Context, branchID int64) ([]domain.ValuationLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := make(map[string]*domain.ValuationLine)
	values := make(map[string]float64)
	for _, batch := range s.st.batches {
		if batch.BranchID != branchID || batch.QtyRemaining <= qtyEpsilon {
			continue
		}
		line, ok := lines[batch.ProductID]
		if !ok {
			product := s.st.products[batch.ProductID]
			line = &domain.ValuationLine{ProductID: batch.ProductID, SKU: product.SKU, Name: product.Name, BranchID: branchID}
			lines[batch.ProductID] = line
		}
		line.Qty += batch.QtyRemaining
		values[batch.ProductID] += batch.QtyRemaining * float64(batch.UnitCostCents)
	}

	result := make([]domain.ValuationLine, 0, len(lines))
	for id, line := range lines {
		line.ValueCents = int64(math.Round(values[id]))
		result = append(result, *line)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SKU < result[j].SKU
	})
	return result, nil
}

func (s *Store) LowStock(_ context.Context, branchID int64, defaultThreshold float64) ([]domain.LowStockItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[string]float64)
	for _, batch := range s.st.batches {
		if batch.BranchID == branchID {
			totals[batch.ProductID] += batch.QtyRemaining
		}
	}

	result := make([]domain.LowStockItem, 0, 8)
	for _, product := range s.st.products {
		if product.Archived || !tracksStock(product.Type) {
			continue
		}
		threshold := product.ReorderThreshold
		if threshold <= 0 {
			threshold = defaultThreshold
		}
		qty := totals[product.ID]
		if qty <= threshold {
			result = append(result, domain.LowStockItem{
				ProductID: product.ID,
				SKU:       product.SKU,
				Name:      product.Name,
				Qty:       qty,
				Threshold: threshold,
			})
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Qty == result[j].Qty {
			return result[i].SKU < result[j].SKU
		}
		return result[i].Qty < result[j].Qty
	})
	return result, nil
}

func (s *Store) CreateActivity(_ context.Context, entry domain.ActivityLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.st.activity = append(s.st.activity, entry)
	return nil
}

func (s *Store) ListActivity(_ context.Context, limit int) ([]domain.ActivityLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ActivityLog, 0, 16)
	for i := len(s.st.activity) - 1; i >= 0; i-- {
		result = append(result, s.st.activity[i])
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.UserAccount, 0, len(s.st.users))
	for _, user := range s.st.users {
		result = append(result, user)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Username < result[j].Username
	})
	return result, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(strings.TrimSpace(username))
	user, ok := s.st.users[key]
	if !ok {
		return fmt.Errorf("%w: user %s", store.ErrNotFound, key)
	}
	user.Password = password
	s.st.users[key] = user
	return nil
}

// sortOldestFirst orders batches by receipt time, breaking ties by insertion order.
func (s *state) sortOldestFirst(batches []domain.InventoryBatch) {
	sort.SliceStable(batches, func(i, j int) bool {
		if !batches[i].ReceivedAt.Equal(batches[j].ReceivedAt) {
			return batches[i].ReceivedAt.Before(batches[j].ReceivedAt)
		}
		return s.batchSeq[batches[i].ID] < s.batchSeq[batches[j].ID]
	})
}

func tracksStock(t domain.ProductType) bool {
	return t == domain.ProductRetail || t == domain.ProductRawMaterial
}

// seedUsers builds the initial in-memory accounts for dev/demo mode. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD, falling back to dev defaults.
func seedUsers(logger *zap.Logger) (map[string]domain.UserAccount, error) {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logger.Warn("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
		branchID int64
	}{
		{"admin", adminPwd, "admin", domain.DefaultBranchID},
		{"cashier", cashierPwd, "cashier", domain.DefaultBranchID},
		{"cashier2", cashierPwd, "cashier", 2},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.MinCost)
		if err != nil {
			return nil, fmt.Errorf("hash seed password for %s: %w", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			BranchID:  u.branchID,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with demo products, paper stock, a supplier, a walk-in
// customer and the default accounts.
func NewSeeded(logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	users, err := seedUsers(logger.Named("memory"))
	if err != nil {
		return nil, err
	}

	s := New()
	now := time.Now().UTC()

	products := []domain.Product{
		{ID: "prd-rice-5kg", Name: "Rice 5kg", SKU: "RICE-5KG", Type: domain.ProductRetail, PriceCents: 85000, ReorderThreshold: 10},
		{ID: "prd-cake-box", Name: "Cake Box", SKU: "BOX-CAKE-10", Type: domain.ProductRetail, PriceCents: 12000, ReorderThreshold: 20},
		{ID: "prd-paper-edible", Name: "Edible Paper A4", SKU: "MAT-EDIBLE-A4", Type: domain.ProductRawMaterial, PriceCents: 25000, ReorderThreshold: 15},
		{ID: "prd-paper-glossy", Name: "Glossy Paper A4", SKU: "MAT-GLOSSY-A4", Type: domain.ProductRawMaterial, PriceCents: 4000, ReorderThreshold: 15},
		{ID: "prd-print-edible-a4", Name: "Edible Print A4", SKU: "PRINT-EDIBLE-A4", Type: domain.ProductServicePrint, PriceCents: 50000},
		{ID: "prd-print-edible-a5", Name: "Edible Print A5", SKU: "PRINT-EDIBLE-A5", Type: domain.ProductServicePrint, PriceCents: 30000},
		{ID: "prd-print-non-a6", Name: "Photo Print A6", SKU: "PRINT-NON-A6", Type: domain.ProductServicePrint, PriceCents: 5000},
		{ID: "prd-mixer-rental", Name: "Stand Mixer Rental", SKU: "RENT-MIXER", Type: domain.ProductAssetRental, PriceCents: 150000, RentalDepositCents: 500000},
	}
	for _, product := range products {
		product.CreatedAt = now
		s.st.products[product.ID] = product
	}

	seedBatches := []domain.InventoryBatch{
		{ID: "bat-seed-rice-1", ProductID: "prd-rice-5kg", Label: "SEED-1", QtyInitial: 40, UnitCostCents: 70000},
		{ID: "bat-seed-box-1", ProductID: "prd-cake-box", Label: "SEED-1", QtyInitial: 100, UnitCostCents: 8000},
		{ID: "bat-seed-edible-1", ProductID: "prd-paper-edible", Label: "SEED-1", QtyInitial: 50, UnitCostCents: 18000},
		{ID: "bat-seed-glossy-1", ProductID: "prd-paper-glossy", Label: "SEED-1", QtyInitial: 200, UnitCostCents: 2500},
	}
	for _, batch := range seedBatches {
		batch.BranchID = domain.DefaultBranchID
		batch.QtyRemaining = batch.QtyInitial
		batch.ReceivedAt = now.Add(-24 * time.Hour)
		s.st.nextSeq++
		s.st.batchSeq[batch.ID] = s.st.nextSeq
		s.st.batches[batch.ID] = batch
	}

	s.st.suppliers["sup-default"] = domain.Supplier{ID: "sup-default", Name: "Default Supplier", Phone: "0700000000", CreatedAt: now}
	s.st.customers["cus-walk-in"] = domain.Customer{ID: "cus-walk-in", Name: "Walk-in", CreditLimitCents: 500000, CreatedAt: now}
	s.st.users = users
	return s, nil
}

func identity[T any](v T) T { return v }

func cloneMap[K comparable, V any](src map[K]V, cloneValue func(V) V) map[K]V {
	out := make(map[K]V, len(src))
	for k, v := range src {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneBatch(src domain.InventoryBatch) domain.InventoryBatch {
	out := src
	if src.ExpiryDate != nil {
		expiry := *src.ExpiryDate
		out.ExpiryDate = &expiry
	}
	return out
}

func clonePurchaseOrder(src domain.PurchaseOrder) domain.PurchaseOrder {
	out := src
	out.Items = slices.Clone(src.Items)
	return out
}

func cloneTransfer(src domain.Transfer) domain.Transfer {
	out := src
	out.Items = slices.Clone(src.Items)
	return out
}

func cloneOrder(src domain.Order) domain.Order {
	out := src
	out.Items = slices.Clone(src.Items)
	out.Payments = slices.Clone(src.Payments)
	out.Allocations = slices.Clone(src.Allocations)
	if src.DeliveryDetails != nil {
		details := *src.DeliveryDetails
		details.Fees = slices.Clone(src.DeliveryDetails.Fees)
		out.DeliveryDetails = &details
	}
	return out
}
