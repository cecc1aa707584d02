package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/big"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"ledgerpos/backend/internal/cache"
	"ledgerpos/backend/internal/domain"
	"ledgerpos/backend/internal/store"
	"ledgerpos/backend/internal/store/memory"
)

var testClock = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc  *Service
	repo *memory.Store
	ctx  context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithCache(t, nil)
}

func newFixtureWithCache(t *testing.T, reports cache.ReportCache) *fixture {
	t.Helper()
	repo := memory.New()
	svc := New(repo, reports, zap.NewNop(), Options{DefaultBranchID: 1})
	svc.now = func() time.Time { return testClock }
	ctx := WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin", BranchID: 1})
	return &fixture{svc: svc, repo: repo, ctx: ctx}
}

func (f *fixture) product(t *testing.T, id string, sku string, productType domain.ProductType) {
	t.Helper()
	if _, err := f.repo.CreateProduct(f.ctx, domain.Product{ID: id, Name: id, SKU: sku, Type: productType, CreatedAt: testClock}); err != nil {
		t.Fatalf("create product %s: %v", id, err)
	}
}

func (f *fixture) batch(t *testing.T, id string, productID string, branchID int64, qty float64, costCents int64, age time.Duration) {
	t.Helper()
	err := f.repo.WithinTx(f.ctx, func(tx store.Tx) error {
		return tx.InsertBatch(f.ctx, domain.InventoryBatch{
			ID:            id,
			ProductID:     productID,
			BranchID:      branchID,
			Label:         "TEST",
			QtyInitial:    qty,
			QtyRemaining:  qty,
			UnitCostCents: costCents,
			ReceivedAt:    testClock.Add(-age),
		})
	})
	if err != nil {
		t.Fatalf("insert batch %s: %v", id, err)
	}
}

func (f *fixture) customer(t *testing.T, id string, debtCents int64) {
	t.Helper()
	if _, err := f.repo.CreateCustomer(f.ctx, domain.Customer{ID: id, Name: id, CreditLimitCents: 500000, DebtCents: debtCents, CreatedAt: testClock}); err != nil {
		t.Fatalf("create customer %s: %v", id, err)
	}
}

func (f *fixture) batches(t *testing.T, productID string, branchID int64) []domain.InventoryBatch {
	t.Helper()
	batches, err := f.repo.ListBatches(f.ctx, productID, branchID)
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	return batches
}

func (f *fixture) remaining(t *testing.T, batchID string) float64 {
	t.Helper()
	for _, batch := range f.batches(t, "", 0) {
		if batch.ID == batchID {
			return batch.QtyRemaining
		}
	}
	t.Fatalf("batch %s not found", batchID)
	return 0
}

func (f *fixture) onHand(t *testing.T, productID string, branchID int64) float64 {
	t.Helper()
	total := 0.0
	for _, batch := range f.batches(t, productID, branchID) {
		total += batch.QtyRemaining
	}
	return total
}

func (f *fixture) getCustomer(t *testing.T, id string) domain.Customer {
	t.Helper()
	customer, err := f.svc.GetCustomer(f.ctx, id)
	if err != nil {
		t.Fatalf("get customer %s: %v", id, err)
	}
	return customer
}

// seedTwoBatches gives prd-rice an older batch of 8 and a newer batch of 10 at branch 1.
func seedTwoBatches(t *testing.T, f *fixture) {
	t.Helper()
	f.product(t, "prd-rice", "RICE-5KG", domain.ProductRetail)
	f.batch(t, "bat-a", "prd-rice", 1, 8, 700, 48*time.Hour)
	f.batch(t, "bat-b", "prd-rice", 1, 10, 750, 24*time.Hour)
}

func riceSale(qty float64, paid int64, customerID string) domain.SaleRequest {
	req := domain.SaleRequest{
		BranchID:   1,
		CustomerID: customerID,
		Items:      []domain.SaleItemRequest{{ProductID: "prd-rice", Qty: qty, UnitPriceCents: 1000}},
	}
	if paid > 0 {
		req.Payments = []domain.PaymentRequest{{Method: "cash", AmountCents: paid}}
	}
	return req
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestAllocateLandedCostSpreadsExtrasByValue(t *testing.T) {
	lines, total := allocateLandedCost([]landedInput{
		{Qty: 10, UnitPriceCents: 10000},
		{Qty: 5, UnitPriceCents: 20000},
	}, 15000)

	if total.Cmp(big.NewRat(200000, 1)) != 0 {
		t.Fatalf("expected product value 200000, got %s", total.RatString())
	}
	if lines[0].LandedCostCents != 10750 || lines[1].LandedCostCents != 21500 {
		t.Fatalf("unexpected landed costs %d and %d", lines[0].LandedCostCents, lines[1].LandedCostCents)
	}
	if lines[0].AllocatedExtraCents+lines[1].AllocatedExtraCents != 15000 {
		t.Fatalf("extra costs not conserved: %d + %d", lines[0].AllocatedExtraCents, lines[1].AllocatedExtraCents)
	}

	var landedTotal float64
	for _, line := range lines {
		landedTotal += line.Qty * float64(line.LandedCostCents)
	}
	if landedTotal != 215000 {
		t.Fatalf("landed value should equal product value plus extras, got %v", landedTotal)
	}
}

func TestRoundHalfUp(t *testing.T) {
	cases := []struct {
		in   *big.Rat
		want int64
	}{
		{big.NewRat(5, 2), 3},
		{big.NewRat(3, 2), 2},
		{big.NewRat(1, 3), 0},
		{big.NewRat(2, 3), 1},
		{big.NewRat(42, 1), 42},
	}
	for _, tc := range cases {
		if got := roundHalfUp(tc.in); got != tc.want {
			t.Fatalf("roundHalfUp(%s) = %d, want %d", tc.in.RatString(), got, tc.want)
		}
	}
}

func TestPlanFIFOSkipsEmptyBatchesAndReportsShortfall(t *testing.T) {
	batches := []domain.InventoryBatch{
		{ID: "a", QtyRemaining: 0},
		{ID: "b", QtyRemaining: 3},
		{ID: "c", QtyRemaining: 4},
	}
	draws, shortfall := planFIFO(batches, 9)
	if len(draws) != 2 || draws[0].Batch.ID != "b" || draws[1].Batch.ID != "c" {
		t.Fatalf("unexpected draws %+v", draws)
	}
	if !almostEqual(shortfall, 2) {
		t.Fatalf("expected shortfall 2, got %v", shortfall)
	}
}

func TestPaperUsage(t *testing.T) {
	cases := []struct {
		sku      string
		paper    string
		perSheet float64
	}{
		{"PRINT-EDIBLE-A4", paperEdibleSKU, 1},
		{"PRINT-EDIBLE-A5", paperEdibleSKU, 0.5},
		{"print-non-a6", paperNonEdibleSKU, 0.25},
		{"PRINT-NON-A4", paperNonEdibleSKU, 1},
	}
	for _, tc := range cases {
		paper, perSheet := paperUsage(tc.sku)
		if paper != tc.paper || perSheet != tc.perSheet {
			t.Fatalf("paperUsage(%s) = %s/%v, want %s/%v", tc.sku, paper, perSheet, tc.paper, tc.perSheet)
		}
	}
}

func TestPlanSettlement(t *testing.T) {
	cases := []struct {
		name          string
		debt          int64
		total         int64
		paid          int64
		depositChange bool
		want          domain.OrderEffect
	}{
		{"unpaid adds debt", 0, 500000, 0, false, domain.OrderEffect{DebtDeltaCents: 500000}},
		{"partial adds remainder", 0, 30000, 10000, false, domain.OrderEffect{DebtDeltaCents: 20000}},
		{"exact pays points", 0, 25000, 25000, false, domain.OrderEffect{PointsAwarded: 2}},
		{"overpay clears debt", 300, 1000, 1500, true, domain.OrderEffect{DebtDeltaCents: -300, WalletDeltaCents: 200}},
		{"overpay without wallet", 300, 1000, 1500, false, domain.OrderEffect{DebtDeltaCents: -300}},
		{"within tolerance", 0, 1000, 999, false, domain.OrderEffect{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			totals := saleTotals{TotalCents: tc.total, PaidCents: tc.paid}
			if got := planSettlement(tc.debt, totals, tc.depositChange); got != tc.want {
				t.Fatalf("planSettlement = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestSelectStatus(t *testing.T) {
	if got := selectStatus(true, saleTotals{TotalCents: 100}); got != domain.OrderStatusHeld {
		t.Fatalf("expected held, got %s", got)
	}
	if got := selectStatus(false, saleTotals{TotalCents: 100, PaidCents: 100}); got != domain.OrderStatusCompleted {
		t.Fatalf("expected completed, got %s", got)
	}
	if got := selectStatus(false, saleTotals{TotalCents: 100, PaidCents: 40}); got != domain.OrderStatusPartialPayment {
		t.Fatalf("expected partial_payment, got %s", got)
	}
	if got := selectStatus(false, saleTotals{TotalCents: 100}); got != domain.OrderStatusPendingPayment {
		t.Fatalf("expected pending_payment, got %s", got)
	}
}

func TestProcessSaleConsumesOldestBatchesFirst(t *testing.T) {
	f := newFixture(t)
	seedTwoBatches(t, f)

	resp, err := f.svc.ProcessSale(f.ctx, riceSale(12, 12000, ""))
	if err != nil {
		t.Fatalf("process sale: %v", err)
	}
	if resp.Order.Status != domain.OrderStatusCompleted {
		t.Fatalf("expected completed, got %s", resp.Order.Status)
	}
	if got := f.remaining(t, "bat-a"); got != 0 {
		t.Fatalf("expected older batch drained, got %v", got)
	}
	if got := f.remaining(t, "bat-b"); got != 6 {
		t.Fatalf("expected newer batch at 6, got %v", got)
	}

	allocations := resp.Order.Allocations
	if len(allocations) != 2 || allocations[0].BatchID != "bat-a" || allocations[0].Qty != 8 || allocations[1].Qty != 4 {
		t.Fatalf("unexpected allocations %+v", allocations)
	}

	movements, err := f.svc.ListMovements(f.ctx, "prd-rice", 10)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if len(movements) != 2 {
		t.Fatalf("expected one movement per batch, got %d", len(movements))
	}
	for _, movement := range movements {
		if movement.Type != domain.MovementSale || movement.Qty >= 0 || movement.ReferenceID != resp.Order.ID {
			t.Fatalf("unexpected movement %+v", movement)
		}
	}
}

func TestProcessSaleFailsWholeOrderOnInsufficientStock(t *testing.T) {
	f := newFixture(t)
	seedTwoBatches(t, f)

	_, err := f.svc.ProcessSale(f.ctx, riceSale(20, 20000, ""))
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if f.remaining(t, "bat-a") != 8 || f.remaining(t, "bat-b") != 10 {
		t.Fatalf("failed sale must not touch batches")
	}
	movements, _ := f.svc.ListMovements(f.ctx, "prd-rice", 10)
	if len(movements) != 0 {
		t.Fatalf("failed sale must not record movements, got %d", len(movements))
	}
}

func TestProcessSaleValidation(t *testing.T) {
	f := newFixture(t)
	seedTwoBatches(t, f)

	cases := map[string]domain.SaleRequest{
		"empty cart":     {BranchID: 1, Payments: []domain.PaymentRequest{{Method: "cash", AmountCents: 100}}},
		"zero quantity":  riceSale(0, 1000, ""),
		"negative price": {BranchID: 1, Items: []domain.SaleItemRequest{{ProductID: "prd-rice", Qty: 1, UnitPriceCents: -5}}, Payments: []domain.PaymentRequest{{AmountCents: 1}}},
		"anonymous credit":  riceSale(2, 0, ""),
		"anonymous partial": riceSale(2, 500, ""),
		"negative discount": {BranchID: 1, CustomerID: "x", DiscountCents: -1, Items: []domain.SaleItemRequest{{ProductID: "prd-rice", Qty: 1}}},
	}
	for name, req := range cases {
		if _, err := f.svc.ProcessSale(f.ctx, req); !errors.Is(err, store.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestProcessSaleUnknownProduct(t *testing.T) {
	f := newFixture(t)
	req := domain.SaleRequest{
		BranchID: 1,
		Items:    []domain.SaleItemRequest{{ProductID: "prd-missing", Qty: 1, UnitPriceCents: 100}},
		Payments: []domain.PaymentRequest{{Method: "cash", AmountCents: 100}},
	}
	if _, err := f.svc.ProcessSale(f.ctx, req); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestProcessSaleOnCreditAddsDebt(t *testing.T) {
	f := newFixture(t)
	f.product(t, "prd-mixer", "RENT-MIXER", domain.ProductAssetRental)
	f.customer(t, "cus-1", 0)

	resp, err := f.svc.ProcessSale(f.ctx, domain.SaleRequest{
		BranchID:   1,
		CustomerID: "cus-1",
		Items:      []domain.SaleItemRequest{{ProductID: "prd-mixer", Qty: 1, UnitPriceCents: 500000}},
	})
	if err != nil {
		t.Fatalf("process sale: %v", err)
	}
	if resp.Order.Status != domain.OrderStatusPendingPayment || resp.BalanceCents != 500000 {
		t.Fatalf("unexpected order %s balance %d", resp.Order.Status, resp.BalanceCents)
	}
	customer := f.getCustomer(t, "cus-1")
	if customer.DebtCents != 500000 || customer.Points != 0 {
		t.Fatalf("expected debt 500000 and no points, got %+v", customer)
	}
}

func TestProcessSaleOverpaymentClearsDebtThenWallet(t *testing.T) {
	f := newFixture(t)
	f.product(t, "prd-box", "BOX-CAKE", domain.ProductRetail)
	f.batch(t, "bat-box", "prd-box", 1, 10, 500, time.Hour)
	f.customer(t, "cus-1", 300)

	resp, err := f.svc.ProcessSale(f.ctx, domain.SaleRequest{
		BranchID:      1,
		CustomerID:    "cus-1",
		DepositChange: true,
		Items:         []domain.SaleItemRequest{{ProductID: "prd-box", Qty: 1, UnitPriceCents: 1000}},
		Payments:      []domain.PaymentRequest{{Method: "cash", AmountCents: 1500}},
	})
	if err != nil {
		t.Fatalf("process sale: %v", err)
	}
	if resp.Order.Status != domain.OrderStatusCompleted {
		t.Fatalf("expected completed, got %s", resp.Order.Status)
	}

	customer := f.getCustomer(t, "cus-1")
	if customer.DebtCents != 0 || customer.WalletCents != 200 {
		t.Fatalf("expected debt 0 wallet 200, got debt %d wallet %d", customer.DebtCents, customer.WalletCents)
	}

	statement, err := f.svc.CustomerStatement(f.ctx, "cus-1")
	if err != nil {
		t.Fatalf("statement: %v", err)
	}
	if len(statement.WalletEntries) != 1 {
		t.Fatalf("expected one wallet entry, got %+v", statement.WalletEntries)
	}
	deposit := statement.WalletEntries[0]
	if deposit.Kind != domain.WalletDepositChange || deposit.AmountCents != 200 || deposit.OrderID != resp.Order.ID {
		t.Fatalf("expected a 200 deposit_change entry for the order, got %+v", deposit)
	}
	if len(statement.Payments) != 1 || statement.Payments[0].OrderID != resp.Order.ID {
		t.Fatalf("expected sale payment mirrored to the customer ledger, got %+v", statement.Payments)
	}
}

func TestProcessSaleAwardsPointsWhenSettled(t *testing.T) {
	f := newFixture(t)
	seedTwoBatches(t, f)
	f.customer(t, "cus-1", 0)

	req := riceSale(2, 25000, "cus-1")
	req.Items[0].UnitPriceCents = 12500
	if _, err := f.svc.ProcessSale(f.ctx, req); err != nil {
		t.Fatalf("process sale: %v", err)
	}
	if got := f.getCustomer(t, "cus-1").Points; got != 2 {
		t.Fatalf("expected 2 points, got %d", got)
	}
}

func TestHeldOrderHasNoEffects(t *testing.T) {
	f := newFixture(t)
	seedTwoBatches(t, f)

	req := riceSale(3, 0, "")
	req.IsHold = true
	resp, err := f.svc.ProcessSale(f.ctx, req)
	if err != nil {
		t.Fatalf("hold order: %v", err)
	}
	if resp.Order.Status != domain.OrderStatusHeld {
		t.Fatalf("expected held, got %s", resp.Order.Status)
	}
	if f.onHand(t, "prd-rice", 1) != 18 {
		t.Fatalf("held order must not consume stock")
	}
}

func TestPrintSaleConsumesFractionalPaper(t *testing.T) {
	f := newFixture(t)
	f.product(t, "prd-paper", paperEdibleSKU, domain.ProductRawMaterial)
	f.product(t, "prd-print-a5", "PRINT-EDIBLE-A5", domain.ProductServicePrint)
	f.product(t, "prd-photo-a6", "PRINT-NON-A6", domain.ProductServicePrint)
	f.batch(t, "bat-paper", "prd-paper", 1, 10, 18000, time.Hour)

	resp, err := f.svc.ProcessSale(f.ctx, domain.SaleRequest{
		BranchID: 1,
		Items: []domain.SaleItemRequest{
			{ProductID: "prd-print-a5", Qty: 3, UnitPriceCents: 30000},
			{ProductID: "prd-photo-a6", Qty: 2, UnitPriceCents: 5000},
		},
		Payments: []domain.PaymentRequest{{Method: "qris", AmountCents: 100000}},
	})
	if err != nil {
		t.Fatalf("print sale: %v", err)
	}
	if got := f.remaining(t, "bat-paper"); !almostEqual(got, 8.5) {
		t.Fatalf("expected 8.5 sheets left, got %v", got)
	}
	if len(resp.Order.Allocations) != 1 || resp.Order.Allocations[0].ProductID != "prd-paper" {
		t.Fatalf("expected one paper allocation, got %+v", resp.Order.Allocations)
	}
}

func TestPrintSaleNeverBlockedByMissingPaper(t *testing.T) {
	f := newFixture(t)
	f.product(t, "prd-paper", paperEdibleSKU, domain.ProductRawMaterial)
	f.product(t, "prd-print-a4", "PRINT-EDIBLE-A4", domain.ProductServicePrint)
	f.batch(t, "bat-paper", "prd-paper", 1, 1, 18000, time.Hour)

	_, err := f.svc.ProcessSale(f.ctx, domain.SaleRequest{
		BranchID: 1,
		Items:    []domain.SaleItemRequest{{ProductID: "prd-print-a4", Qty: 4, UnitPriceCents: 50000}},
		Payments: []domain.PaymentRequest{{Method: "cash", AmountCents: 200000}},
	})
	if err != nil {
		t.Fatalf("print sale should succeed with short paper: %v", err)
	}
	if got := f.remaining(t, "bat-paper"); got != 0 {
		t.Fatalf("expected the available sheet consumed, got %v", got)
	}
}

func TestReturnLineRestocksIntoNewBatch(t *testing.T) {
	f := newFixture(t)
	seedTwoBatches(t, f)
	f.customer(t, "cus-1", 0)

	resp, err := f.svc.ProcessSale(f.ctx, riceSale(-2, 0, "cus-1"))
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if resp.Order.TotalCents != -2000 {
		t.Fatalf("expected negative total, got %d", resp.Order.TotalCents)
	}
	if got := f.onHand(t, "prd-rice", 1); got != 20 {
		t.Fatalf("expected 20 on hand after return, got %v", got)
	}

	var found bool
	for _, batch := range f.batches(t, "prd-rice", 1) {
		if batch.Label == "RET-"+resp.Order.ID {
			found = batch.QtyInitial == 2 && batch.UnitCostCents == 750
		}
	}
	if !found {
		t.Fatalf("expected a RET batch of 2 at the newest batch's cost")
	}
	if f.getCustomer(t, "cus-1").DebtCents != 0 {
		t.Fatalf("return without refund must not change debt")
	}
}

func TestCustomItemTouchesNoStock(t *testing.T) {
	f := newFixture(t)
	resp, err := f.svc.ProcessSale(f.ctx, domain.SaleRequest{
		BranchID: 1,
		Items:    []domain.SaleItemRequest{{ProductID: domain.CustomItemProductID, Qty: 1, UnitPriceCents: 5000}},
		Payments: []domain.PaymentRequest{{Method: "cash", AmountCents: 5000}},
	})
	if err != nil {
		t.Fatalf("custom sale: %v", err)
	}
	if resp.Order.Status != domain.OrderStatusCompleted || len(resp.Order.Allocations) != 0 {
		t.Fatalf("unexpected custom order %+v", resp.Order)
	}
	movements, _ := f.svc.ListMovements(f.ctx, "", 10)
	if len(movements) != 0 {
		t.Fatalf("custom items record no movements")
	}
}

func TestRentalDepositCountsOnlyOnRentalLines(t *testing.T) {
	f := newFixture(t)
	seedTwoBatches(t, f)
	f.product(t, "prd-mixer", "RENT-MIXER", domain.ProductAssetRental)

	resp, err := f.svc.ProcessSale(f.ctx, domain.SaleRequest{
		BranchID: 1,
		Items: []domain.SaleItemRequest{
			{ProductID: "prd-mixer", Qty: 1, UnitPriceCents: 150000, DepositCents: 500000, SerialNumber: "MX-01"},
			{ProductID: "prd-rice", Qty: 1, UnitPriceCents: 1000, DepositCents: 9999},
		},
		Payments: []domain.PaymentRequest{{Method: "cash", AmountCents: 651000}},
	})
	if err != nil {
		t.Fatalf("rental sale: %v", err)
	}
	if resp.Order.DepositCents != 500000 || resp.Order.TotalCents != 651000 {
		t.Fatalf("unexpected deposit %d total %d", resp.Order.DepositCents, resp.Order.TotalCents)
	}
	if resp.Order.Items[0].RentalSerial != "MX-01" {
		t.Fatalf("expected rental serial kept")
	}
}

func TestEditSaleWithSameCartIsIdempotent(t *testing.T) {
	f := newFixture(t)
	seedTwoBatches(t, f)
	f.customer(t, "cus-1", 0)

	req := riceSale(12, 5000, "cus-1")
	created, err := f.svc.ProcessSale(f.ctx, req)
	if err != nil {
		t.Fatalf("process sale: %v", err)
	}
	before := f.getCustomer(t, "cus-1")

	edited, err := f.svc.EditSale(f.ctx, created.Order.ID, req)
	if err != nil {
		t.Fatalf("edit sale: %v", err)
	}
	if edited.Order.ID != created.Order.ID {
		t.Fatalf("edit must keep the order id")
	}
	if f.remaining(t, "bat-a") != 0 || f.remaining(t, "bat-b") != 6 {
		t.Fatalf("batches drifted after edit: a=%v b=%v", f.remaining(t, "bat-a"), f.remaining(t, "bat-b"))
	}
	after := f.getCustomer(t, "cus-1")
	if after != before {
		t.Fatalf("customer drifted after edit: before %+v after %+v", before, after)
	}

	statement, _ := f.svc.CustomerStatement(f.ctx, "cus-1")
	if len(statement.Payments) != 1 {
		t.Fatalf("expected payments replaced not duplicated, got %d", len(statement.Payments))
	}
}

func TestEditSaleKeepsArchivedProductsAlreadyOnTheOrder(t *testing.T) {
	f := newFixture(t)
	seedTwoBatches(t, f)
	f.customer(t, "cus-1", 0)
	f.product(t, "prd-box", "BOX-CAKE", domain.ProductRetail)
	f.batch(t, "bat-box", "prd-box", 1, 10, 500, time.Hour)

	req := riceSale(12, 5000, "cus-1")
	created, err := f.svc.ProcessSale(f.ctx, req)
	if err != nil {
		t.Fatalf("process sale: %v", err)
	}
	before := f.getCustomer(t, "cus-1")

	if err := f.svc.ArchiveProduct(f.ctx, "prd-rice"); err != nil {
		t.Fatalf("archive rice: %v", err)
	}
	if err := f.svc.ArchiveProduct(f.ctx, "prd-box"); err != nil {
		t.Fatalf("archive box: %v", err)
	}

	if _, err := f.svc.EditSale(f.ctx, created.Order.ID, req); err != nil {
		t.Fatalf("re-submitting the stored cart must succeed: %v", err)
	}
	if f.remaining(t, "bat-a") != 0 || f.remaining(t, "bat-b") != 6 {
		t.Fatalf("batches drifted after edit: a=%v b=%v", f.remaining(t, "bat-a"), f.remaining(t, "bat-b"))
	}
	if after := f.getCustomer(t, "cus-1"); after != before {
		t.Fatalf("customer drifted after edit: before %+v after %+v", before, after)
	}

	withBox := riceSale(12, 5000, "cus-1")
	withBox.Items = append(withBox.Items, domain.SaleItemRequest{ProductID: "prd-box", Qty: 1, UnitPriceCents: 1000})
	if _, err := f.svc.EditSale(f.ctx, created.Order.ID, withBox); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error adding an archived product, got %v", err)
	}
	if _, err := f.svc.ProcessSale(f.ctx, riceSale(1, 1000, "")); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error selling an archived product, got %v", err)
	}
	if f.remaining(t, "bat-box") != 10 {
		t.Fatalf("rejected edit must not touch stock, box remaining %v", f.remaining(t, "bat-box"))
	}
}

func TestEditSaleReplacesCart(t *testing.T) {
	f := newFixture(t)
	seedTwoBatches(t, f)
	f.customer(t, "cus-1", 0)

	created, err := f.svc.ProcessSale(f.ctx, riceSale(12, 5000, "cus-1"))
	if err != nil {
		t.Fatalf("process sale: %v", err)
	}
	edited, err := f.svc.EditSale(f.ctx, created.Order.ID, riceSale(5, 5000, "cus-1"))
	if err != nil {
		t.Fatalf("edit sale: %v", err)
	}
	if edited.Order.Status != domain.OrderStatusCompleted {
		t.Fatalf("expected completed, got %s", edited.Order.Status)
	}
	if f.remaining(t, "bat-a") != 3 || f.remaining(t, "bat-b") != 10 {
		t.Fatalf("unexpected batches a=%v b=%v", f.remaining(t, "bat-a"), f.remaining(t, "bat-b"))
	}
	if debt := f.getCustomer(t, "cus-1").DebtCents; debt != 0 {
		t.Fatalf("expected debt cleared by edit, got %d", debt)
	}
}

func TestEditVoidedSaleConflicts(t *testing.T) {
	f := newFixture(t)
	seedTwoBatches(t, f)

	created, err := f.svc.ProcessSale(f.ctx, riceSale(2, 2000, ""))
	if err != nil {
		t.Fatalf("process sale: %v", err)
	}
	if _, err := f.svc.VoidSale(f.ctx, created.Order.ID, "wrong item"); err != nil {
		t.Fatalf("void: %v", err)
	}
	if _, err := f.svc.EditSale(f.ctx, created.Order.ID, riceSale(1, 1000, "")); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestVoidSaleRestoresStockAndKeepsLedger(t *testing.T) {
	f := newFixture(t)
	seedTwoBatches(t, f)
	f.customer(t, "cus-1", 0)

	created, err := f.svc.ProcessSale(f.ctx, riceSale(12, 2000, "cus-1"))
	if err != nil {
		t.Fatalf("process sale: %v", err)
	}
	debt := f.getCustomer(t, "cus-1").DebtCents

	voided, err := f.svc.VoidSale(f.ctx, created.Order.ID, "customer cancelled")
	if err != nil {
		t.Fatalf("void: %v", err)
	}
	if voided.Status != domain.OrderStatusVoided {
		t.Fatalf("expected voided, got %s", voided.Status)
	}
	if got := f.onHand(t, "prd-rice", 1); got != 18 {
		t.Fatalf("expected stock restored to 18, got %v", got)
	}
	if got := f.getCustomer(t, "cus-1").DebtCents; got != debt {
		t.Fatalf("void must leave debt at %d, got %d", debt, got)
	}
	if _, err := f.svc.VoidSale(f.ctx, created.Order.ID, "again"); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on second void, got %v", err)
	}
}

func TestTransferCarriesBatchCost(t *testing.T) {
	f := newFixture(t)
	f.product(t, "prd-rice", "RICE-5KG", domain.ProductRetail)
	f.batch(t, "bat-old", "prd-rice", 1, 5, 700, 48*time.Hour)
	f.batch(t, "bat-new", "prd-rice", 1, 5, 900, 24*time.Hour)

	transfer, err := f.svc.CreateTransfer(f.ctx, domain.TransferRequest{
		FromBranchID: 1,
		ToBranchID:   2,
		Items:        []domain.TransferItem{{ProductID: "prd-rice", Qty: 7}},
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if !strings.HasPrefix(transfer.ReferenceNo, "TRF-") {
		t.Fatalf("unexpected reference %s", transfer.ReferenceNo)
	}

	dest := f.batches(t, "prd-rice", 2)
	if len(dest) != 2 {
		t.Fatalf("expected one destination batch per source batch, got %d", len(dest))
	}
	costs := map[string]int64{}
	for _, batch := range dest {
		costs[batch.Label] = batch.UnitCostCents
		if batch.Label == "TRF-"+transfer.ID+"-bat-old" && batch.QtyInitial != 5 {
			t.Fatalf("expected 5 from the old batch, got %v", batch.QtyInitial)
		}
	}
	if costs["TRF-"+transfer.ID+"-bat-old"] != 700 || costs["TRF-"+transfer.ID+"-bat-new"] != 900 {
		t.Fatalf("destination batches must keep source cost, got %+v", costs)
	}
	if got := f.onHand(t, "prd-rice", 1); got != 3 {
		t.Fatalf("expected 3 left at source, got %v", got)
	}
}

func TestTransferIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	f.product(t, "prd-rice", "RICE-5KG", domain.ProductRetail)
	f.product(t, "prd-box", "BOX-CAKE", domain.ProductRetail)
	f.batch(t, "bat-rice", "prd-rice", 1, 5, 700, time.Hour)
	f.batch(t, "bat-box", "prd-box", 1, 1, 100, time.Hour)

	_, err := f.svc.CreateTransfer(f.ctx, domain.TransferRequest{
		FromBranchID: 1,
		ToBranchID:   2,
		Items: []domain.TransferItem{
			{ProductID: "prd-rice", Qty: 2},
			{ProductID: "prd-box", Qty: 3},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if f.remaining(t, "bat-rice") != 5 || len(f.batches(t, "", 2)) != 0 {
		t.Fatalf("failed transfer must leave both branches untouched")
	}
}

func TestTransferValidation(t *testing.T) {
	f := newFixture(t)
	cases := []domain.TransferRequest{
		{FromBranchID: 1, ToBranchID: 1, Items: []domain.TransferItem{{ProductID: "p", Qty: 1}}},
		{FromBranchID: 1, ToBranchID: 2},
		{FromBranchID: 0, ToBranchID: 2, Items: []domain.TransferItem{{ProductID: "p", Qty: 1}}},
		{FromBranchID: 1, ToBranchID: 2, Items: []domain.TransferItem{{ProductID: "p", Qty: 0}}},
	}
	for i, req := range cases {
		if _, err := f.svc.CreateTransfer(f.ctx, req); !errors.Is(err, store.ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestAdjustStock(t *testing.T) {
	f := newFixture(t)
	f.product(t, "prd-rice", "RICE-5KG", domain.ProductRetail)
	f.batch(t, "bat-rice", "prd-rice", 1, 3, 700, time.Hour)

	down, err := f.svc.AdjustStock(f.ctx, domain.StockAdjustmentRequest{BranchID: 1, ProductID: "prd-rice", QuantityChange: -5, Reason: "stock count"})
	if err != nil {
		t.Fatalf("negative adjustment: %v", err)
	}
	if down.Applied != -3 || down.Shortfall != 2 {
		t.Fatalf("expected applied -3 shortfall 2, got %+v", down)
	}

	up, err := f.svc.AdjustStock(f.ctx, domain.StockAdjustmentRequest{BranchID: 1, ProductID: "prd-rice", QuantityChange: 4, UnitCostCents: 650})
	if err != nil {
		t.Fatalf("positive adjustment: %v", err)
	}
	if up.Applied != 4 || up.BatchID == "" {
		t.Fatalf("unexpected positive adjustment %+v", up)
	}
	for _, batch := range f.batches(t, "prd-rice", 1) {
		if batch.ID == up.BatchID && (!strings.HasPrefix(batch.Label, "ADJ-") || batch.UnitCostCents != 650) {
			t.Fatalf("unexpected adjustment batch %+v", batch)
		}
	}

	if _, err := f.svc.AdjustStock(f.ctx, domain.StockAdjustmentRequest{ProductID: "prd-rice"}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for zero change, got %v", err)
	}
}

func TestStockReferencesStayUniqueWithinOneInstant(t *testing.T) {
	f := newFixture(t)
	f.product(t, "prd-rice", "RICE-5KG", domain.ProductRetail)
	f.batch(t, "bat-rice", "prd-rice", 1, 10, 700, time.Hour)

	labels := map[string]bool{}
	for i := 0; i < 2; i++ {
		resp, err := f.svc.AdjustStock(f.ctx, domain.StockAdjustmentRequest{BranchID: 1, ProductID: "prd-rice", QuantityChange: 1})
		if err != nil {
			t.Fatalf("adjustment %d: %v", i+1, err)
		}
		for _, batch := range f.batches(t, "prd-rice", 1) {
			if batch.ID == resp.BatchID {
				labels[batch.Label] = true
			}
		}
	}
	if len(labels) != 2 {
		t.Fatalf("expected two distinct adjustment labels at a fixed clock, got %v", labels)
	}

	refs := map[string]bool{}
	for i := 0; i < 2; i++ {
		transfer, err := f.svc.CreateTransfer(f.ctx, domain.TransferRequest{
			FromBranchID: 1,
			ToBranchID:   2,
			Items:        []domain.TransferItem{{ProductID: "prd-rice", Qty: 1}},
		})
		if err != nil {
			t.Fatalf("transfer %d: %v", i+1, err)
		}
		if !strings.HasPrefix(transfer.ReferenceNo, "TRF-") {
			t.Fatalf("unexpected reference %s", transfer.ReferenceNo)
		}
		refs[transfer.ReferenceNo] = true
	}
	if len(refs) != 2 {
		t.Fatalf("expected two distinct transfer references at a fixed clock, got %v", refs)
	}
}

func TestReceiveStockAndPaySupplier(t *testing.T) {
	f := newFixture(t)
	f.product(t, "prd-flour", "FLOUR-1KG", domain.ProductRawMaterial)
	f.product(t, "prd-sugar", "SUGAR-1KG", domain.ProductRawMaterial)
	if _, err := f.svc.CreateSupplier(f.ctx, domain.SupplierCreateRequest{Name: "Mill"}); err != nil {
		t.Fatalf("create supplier: %v", err)
	}
	suppliers, _ := f.svc.ListSuppliers(f.ctx)

	po, err := f.svc.ReceiveStock(f.ctx, domain.ReceiveStockRequest{
		SupplierID:         suppliers[0].ID,
		BranchID:           1,
		TransportCostCents: 15000,
		Items: []domain.ReceiveLine{
			{ProductID: "prd-flour", Qty: 10, UnitPriceCents: 10000, ExpiryDate: "2026-12-31"},
			{ProductID: "prd-sugar", Qty: 5, UnitPriceCents: 20000},
		},
	})
	if err != nil {
		t.Fatalf("receive stock: %v", err)
	}
	if po.Items[0].LandedCostCents != 10750 || po.Items[1].LandedCostCents != 21500 {
		t.Fatalf("unexpected landed costs %+v", po.Items)
	}
	if po.TotalCents() != 215000 || po.PaymentStatus != domain.POPaymentUnpaid {
		t.Fatalf("unexpected purchase order %+v", po)
	}
	if got := f.onHand(t, "prd-flour", 1); got != 10 {
		t.Fatalf("expected 10 flour on hand, got %v", got)
	}

	partial, err := f.svc.RecordSupplierPayment(f.ctx, po.ID, domain.SupplierPaymentRequest{AmountCents: 100000})
	if err != nil {
		t.Fatalf("partial payment: %v", err)
	}
	if partial.PaymentStatus != domain.POPaymentPartial {
		t.Fatalf("expected partial, got %s", partial.PaymentStatus)
	}
	paid, err := f.svc.RecordSupplierPayment(f.ctx, po.ID, domain.SupplierPaymentRequest{AmountCents: 114999, Method: "transfer"})
	if err != nil {
		t.Fatalf("final payment: %v", err)
	}
	if paid.PaymentStatus != domain.POPaymentPaid {
		t.Fatalf("expected paid within tolerance, got %s", paid.PaymentStatus)
	}
}

func TestReceiveStockIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	f.product(t, "prd-flour", "FLOUR-1KG", domain.ProductRawMaterial)
	supplier, err := f.svc.CreateSupplier(f.ctx, domain.SupplierCreateRequest{Name: "Mill"})
	if err != nil {
		t.Fatalf("create supplier: %v", err)
	}

	_, err = f.svc.ReceiveStock(f.ctx, domain.ReceiveStockRequest{
		SupplierID: supplier.ID,
		BranchID:   1,
		Items: []domain.ReceiveLine{
			{ProductID: "prd-flour", Qty: 10, UnitPriceCents: 10000},
			{ProductID: "prd-missing", Qty: 5, UnitPriceCents: 20000},
		},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for the second line, got %v", err)
	}

	if batches := f.batches(t, "prd-flour", 0); len(batches) != 0 {
		t.Fatalf("expected no batch from the first line, got %+v", batches)
	}
	movements, err := f.svc.ListMovements(f.ctx, "", 100)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if len(movements) != 0 {
		t.Fatalf("expected no movements, got %+v", movements)
	}
	if entries, _ := f.svc.ListActivity(f.ctx, 10); len(entries) != 0 {
		t.Fatalf("a failed receipt must not be logged, got %+v", entries)
	}
}

func TestReceiveStockRejectsUnknownSupplier(t *testing.T) {
	f := newFixture(t)
	f.product(t, "prd-flour", "FLOUR-1KG", domain.ProductRawMaterial)
	_, err := f.svc.ReceiveStock(f.ctx, domain.ReceiveStockRequest{
		SupplierID: "sup-missing",
		Items:      []domain.ReceiveLine{{ProductID: "prd-flour", Qty: 1, UnitPriceCents: 100}},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDispatchUpdateRejectsCounterSale(t *testing.T) {
	f := newFixture(t)
	seedTwoBatches(t, f)

	resp, err := f.svc.ProcessSale(f.ctx, riceSale(1, 1000, ""))
	if err != nil {
		t.Fatalf("sale: %v", err)
	}
	_, err = f.svc.UpdateDispatch(f.ctx, resp.Order.ID, domain.DispatchUpdateRequest{Status: domain.DispatchProcessing})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict for an order without dispatch, got %v", err)
	}
}

func TestDispatchLifecycle(t *testing.T) {
	f := newFixture(t)
	seedTwoBatches(t, f)

	req := riceSale(1, 1000, "")
	req.IsDispatch = true
	req.Delivery = &domain.DeliveryDetails{Address: "Jl. Mawar 1", Fees: []domain.DeliveryFee{{Label: "courier", AmountCents: 2000}}}
	resp, err := f.svc.ProcessSale(f.ctx, req)
	if err != nil {
		t.Fatalf("dispatch sale: %v", err)
	}
	if resp.Order.DispatchStatus != domain.DispatchPending {
		t.Fatalf("expected pending dispatch, got %s", resp.Order.DispatchStatus)
	}

	queue, _ := f.svc.ListDispatchQueue(f.ctx, 1)
	if len(queue) != 1 {
		t.Fatalf("expected order in dispatch queue, got %d", len(queue))
	}

	if _, err := f.svc.UpdateDispatch(f.ctx, resp.Order.ID, domain.DispatchUpdateRequest{Status: domain.DispatchReleased}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict skipping processing, got %v", err)
	}
	for _, status := range []string{domain.DispatchProcessing, domain.DispatchReleased, domain.DispatchDelivered} {
		if _, err := f.svc.UpdateDispatch(f.ctx, resp.Order.ID, domain.DispatchUpdateRequest{Status: status, DeliveryMethod: "courier"}); err != nil {
			t.Fatalf("move to %s: %v", status, err)
		}
	}
	if _, err := f.svc.UpdateDispatch(f.ctx, resp.Order.ID, domain.DispatchUpdateRequest{Status: domain.DispatchCancelled}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("delivered is terminal, got %v", err)
	}

	order, _ := f.svc.GetSale(f.ctx, resp.Order.ID)
	if order.DeliveryDetails == nil || order.DeliveryDetails.Method != "courier" || order.DeliveryDetails.Address != "Jl. Mawar 1" {
		t.Fatalf("unexpected delivery details %+v", order.DeliveryDetails)
	}
}

func TestSettleDebt(t *testing.T) {
	f := newFixture(t)
	f.customer(t, "cus-1", 7000)

	if _, err := f.svc.SettleDebt(f.ctx, "cus-1", domain.SettleDebtRequest{AmountCents: 8000}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error when paying more than owed, got %v", err)
	}
	customer, err := f.svc.SettleDebt(f.ctx, "cus-1", domain.SettleDebtRequest{AmountCents: 3000})
	if err != nil {
		t.Fatalf("settle debt: %v", err)
	}
	if customer.DebtCents != 4000 {
		t.Fatalf("expected 4000 left, got %d", customer.DebtCents)
	}
	statement, _ := f.svc.CustomerStatement(f.ctx, "cus-1")
	if len(statement.Payments) != 1 || statement.Payments[0].Method != "cash" || statement.Payments[0].OrderID != "" {
		t.Fatalf("unexpected settlement rows %+v", statement.Payments)
	}
}

func TestCreateCustomerDefaultsCreditLimit(t *testing.T) {
	f := newFixture(t)
	customer, err := f.svc.CreateCustomer(f.ctx, domain.CustomerCreateRequest{Name: " Sari "})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	if customer.Name != "Sari" || customer.CreditLimitCents != defaultCreditLimitCents {
		t.Fatalf("unexpected customer %+v", customer)
	}
	if _, err := f.svc.CreateCustomer(f.ctx, domain.CustomerCreateRequest{}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCatalogueWritesRequireAdmin(t *testing.T) {
	f := newFixture(t)
	cashier := WithActor(context.Background(), domain.Actor{Username: "cashier", Role: "cashier"})

	req := domain.ProductCreateRequest{Name: "Rice", SKU: "rice-5kg", Type: domain.ProductRetail, PriceCents: 85000}
	if _, err := f.svc.CreateProduct(cashier, req); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	product, err := f.svc.CreateProduct(f.ctx, req)
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if product.SKU != "RICE-5KG" {
		t.Fatalf("expected upper-cased sku, got %s", product.SKU)
	}
	if _, err := f.svc.CreateProduct(f.ctx, req); !errors.Is(err, store.ErrIntegrity) {
		t.Fatalf("expected duplicate sku to fail, got %v", err)
	}
	if _, err := f.svc.CreateProduct(f.ctx, domain.ProductCreateRequest{Name: "X", SKU: "X", Type: "gadget"}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected unknown type rejected, got %v", err)
	}
	if err := f.svc.ArchiveProduct(f.ctx, product.ID); err != nil {
		t.Fatalf("archive: %v", err)
	}
	products, _ := f.svc.ListProducts(f.ctx)
	if len(products) != 0 {
		t.Fatalf("archived products are hidden, got %d", len(products))
	}
}

type recordingCache struct {
	values  map[string][]byte
	deleted []string
}

func newRecordingCache() *recordingCache {
	return &recordingCache{values: map[string][]byte{}}
}

func (c *recordingCache) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	raw, ok := c.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *recordingCache) SetJSON(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.values[key] = raw
	return nil
}

func (c *recordingCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(c.values, key)
		c.deleted = append(c.deleted, key)
	}
	return nil
}

func TestValuationIsCachedAndInvalidatedByStockChanges(t *testing.T) {
	reports := newRecordingCache()
	f := newFixtureWithCache(t, reports)
	f.product(t, "prd-rice", "RICE-5KG", domain.ProductRetail)
	f.batch(t, "bat-rice", "prd-rice", 1, 4, 700, time.Hour)

	first, err := f.svc.StockValuation(f.ctx, 1)
	if err != nil {
		t.Fatalf("valuation: %v", err)
	}
	if first.TotalCents != 2800 {
		t.Fatalf("expected 2800, got %d", first.TotalCents)
	}
	if _, ok := reports.values[cache.ValuationKey(1)]; !ok {
		t.Fatalf("expected valuation cached")
	}

	if _, err := f.svc.AdjustStock(f.ctx, domain.StockAdjustmentRequest{BranchID: 1, ProductID: "prd-rice", QuantityChange: 1, UnitCostCents: 700}); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if _, ok := reports.values[cache.ValuationKey(1)]; ok {
		t.Fatalf("expected valuation invalidated after adjustment")
	}

	second, err := f.svc.StockValuation(f.ctx, 1)
	if err != nil {
		t.Fatalf("valuation: %v", err)
	}
	if second.TotalCents != 3500 {
		t.Fatalf("expected 3500 after adjustment, got %d", second.TotalCents)
	}

	workbook, err := f.svc.ExportValuationXLSX(f.ctx, 1)
	if err != nil || len(workbook) == 0 {
		t.Fatalf("export: %v", err)
	}
}

func TestActivityIsRecorded(t *testing.T) {
	f := newFixture(t)
	seedTwoBatches(t, f)
	if _, err := f.svc.ProcessSale(f.ctx, riceSale(1, 1000, "")); err != nil {
		t.Fatalf("process sale: %v", err)
	}
	entries, err := f.svc.ListActivity(f.ctx, 10)
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	if len(entries) == 0 || entries[0].Action != ActionSaleCreated || entries[0].Actor != "admin" {
		t.Fatalf("unexpected activity %+v", entries)
	}
}

// unavailableActivityRepo fails every audit write and delegates everything else.
type unavailableActivityRepo struct {
	store.Repository
}

func (unavailableActivityRepo) CreateActivity(context.Context, domain.ActivityLog) error {
	return errors.New("activity table unavailable")
}

func TestActivityFailureDoesNotFailTheSale(t *testing.T) {
	f := newFixture(t)
	seedTwoBatches(t, f)
	svc := New(unavailableActivityRepo{Repository: f.repo}, nil, zap.NewNop(), Options{DefaultBranchID: 1})
	svc.now = func() time.Time { return testClock }

	resp, err := svc.ProcessSale(f.ctx, riceSale(3, 3000, ""))
	if err != nil {
		t.Fatalf("sale must survive an activity failure: %v", err)
	}
	if resp.Order.ID == "" || resp.Order.Status != domain.OrderStatusCompleted {
		t.Fatalf("unexpected order %+v", resp.Order)
	}
	if _, err := svc.GetSale(f.ctx, resp.Order.ID); err != nil {
		t.Fatalf("order must be committed: %v", err)
	}
	if got := f.onHand(t, "prd-rice", 1); got != 15 {
		t.Fatalf("expected stock deducted to 15, got %v", got)
	}
	if entries, _ := svc.ListActivity(f.ctx, 10); len(entries) != 0 {
		t.Fatalf("expected no activity rows, got %+v", entries)
	}
}
