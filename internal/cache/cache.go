package cache

import (
	"context"
	"fmt"
	"time"
)

// ReportCache stores JSON-encoded report payloads keyed by branch.
type ReportCache interface {
	// GetJSON decodes the cached value into dest and reports whether it was present.
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

func ValuationKey(branchID int64) string {
	return fmt.Sprintf("reports:valuation:%d", branchID)
}

func LowStockKey(branchID int64) string {
	return fmt.Sprintf("reports:low-stock:%d", branchID)
}

// BranchKeys lists every report key that depends on the branch's stock.
func BranchKeys(branchID int64) []string {
	return []string{ValuationKey(branchID), LowStockKey(branchID)}
}

type NoopReportCache struct{}

func (NoopReportCache) GetJSON(_ context.Context, _ string, _ any) (bool, error) {
	return false, nil
}

func (NoopReportCache) SetJSON(_ context.Context, _ string, _ any, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Delete(_ context.Context, _ ...string) error {
	return nil
}
