package service

import (
	"context"

	"go.uber.org/zap"

	"ledgerpos/backend/internal/cache"
	"ledgerpos/backend/internal/domain"
	"ledgerpos/backend/internal/metrics"
	"ledgerpos/backend/internal/report"
)

// StockValuation values remaining stock at batch cost. Results are cached per branch
// until stock at that branch changes.
func (s *Service) StockValuation(ctx context.Context, branchID int64) (domain.ValuationReport, error) {
	branchID = s.resolveBranch(ctx, branchID)
	key := cache.ValuationKey(branchID)

	var cached domain.ValuationReport
	if s.cachedReport(ctx, "valuation", key, &cached) {
		return cached, nil
	}

	lines, err := s.repo.StockValuation(ctx, branchID)
	if err != nil {
		return domain.ValuationReport{}, err
	}
	rep := domain.ValuationReport{BranchID: branchID, Lines: lines}
	for _, line := range lines {
		rep.TotalCents += line.ValueCents
	}
	s.storeReport(ctx, key, rep)
	return rep, nil
}

func (s *Service) LowStock(ctx context.Context, branchID int64) ([]domain.LowStockItem, error) {
	branchID = s.resolveBranch(ctx, branchID)
	key := cache.LowStockKey(branchID)

	var cached []domain.LowStockItem
	if s.cachedReport(ctx, "low_stock", key, &cached) {
		return cached, nil
	}

	items, err := s.repo.LowStock(ctx, branchID, s.lowStockThreshold)
	if err != nil {
		return nil, err
	}
	s.storeReport(ctx, key, items)
	return items, nil
}

func (s *Service) ExportValuationXLSX(ctx context.Context, branchID int64) ([]byte, error) {
	rep, err := s.StockValuation(ctx, branchID)
	if err != nil {
		return nil, err
	}
	return report.ValuationWorkbook(rep)
}

func (s *Service) ListBatches(ctx context.Context, productID string, branchID int64) ([]domain.InventoryBatch, error) {
	return s.repo.ListBatches(ctx, productID, branchID)
}

func (s *Service) ListMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	if limit < 1 || limit > 1000 {
		limit = 200
	}
	return s.repo.ListMovements(ctx, productID, limit)
}

// cachedReport reads a cached report. Cache errors count as a miss.
func (s *Service) cachedReport(ctx context.Context, name string, key string, dest any) bool {
	found, err := s.reports.GetJSON(ctx, key, dest)
	if err != nil {
		metrics.ReportCacheLookups.WithLabelValues(name, "error").Inc()
		s.logger.Warn("report cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if !found {
		metrics.ReportCacheLookups.WithLabelValues(name, "miss").Inc()
		return false
	}
	metrics.ReportCacheLookups.WithLabelValues(name, "hit").Inc()
	return true
}

func (s *Service) storeReport(ctx context.Context, key string, value any) {
	if err := s.reports.SetJSON(ctx, key, value, s.reportTTL); err != nil {
		s.logger.Warn("report cache write failed", zap.String("key", key), zap.Error(err))
	}
}
