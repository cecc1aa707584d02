package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"ledgerpos/backend/internal/cache"
	"ledgerpos/backend/internal/domain"
	"ledgerpos/backend/internal/metrics"
	"ledgerpos/backend/internal/store"
	"ledgerpos/backend/internal/xid"
)

// ErrForbidden is returned when the actor's role does not allow the operation.
var ErrForbidden = errors.New("forbidden")

// Activity log actions.
const (
	ActionSaleCreated     = "SALE_CREATED"
	ActionSaleEdited      = "SALE_EDITED"
	ActionSaleVoided      = "SALE_VOIDED"
	ActionStockReceived   = "STOCK_RECEIVED"
	ActionStockAdjustment = "STOCK_ADJUSTMENT"
	ActionStockTransfer   = "STOCK_TRANSFER"
	ActionDispatchUpdated = "DISPATCH_UPDATED"
	ActionBillPayment     = "BILL_PAYMENT"
	ActionDebtSettled     = "DEBT_SETTLED"
	ActionProductCreated  = "PRODUCT_CREATED"
	ActionProductArchived = "PRODUCT_ARCHIVED"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	DefaultBranchID   int64
	ReportTTL         time.Duration
	LowStockThreshold float64
}

type Service struct {
	repo              store.Repository
	reports           cache.ReportCache
	logger            *zap.Logger
	defaultBranchID   int64
	reportTTL         time.Duration
	lowStockThreshold float64
	now               func() time.Time
}

func New(repo store.Repository, reports cache.ReportCache, logger *zap.Logger, opts Options) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DefaultBranchID < 1 {
		opts.DefaultBranchID = domain.DefaultBranchID
	}
	if opts.ReportTTL <= 0 {
		opts.ReportTTL = time.Minute
	}
	if opts.LowStockThreshold <= 0 {
		opts.LowStockThreshold = 10
	}

	return &Service{
		repo:              repo,
		reports:           reports,
		logger:            logger.Named("service"),
		defaultBranchID:   opts.DefaultBranchID,
		reportTTL:         opts.ReportTTL,
		lowStockThreshold: opts.LowStockThreshold,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// resolveBranch picks the explicit branch, then the actor's branch, then the configured default.
func (s *Service) resolveBranch(ctx context.Context, requested int64) int64 {
	if requested > 0 {
		return requested
	}
	if actor, ok := ActorFromContext(ctx); ok && actor.BranchID > 0 {
		return actor.BranchID
	}
	return s.defaultBranchID
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.Username != "" {
		return actor.Username
	}
	return "system"
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	return nil
}

// logActivity writes the audit trail after the unit of work has committed. A failure
// here never fails the caller.
func (s *Service) logActivity(ctx context.Context, action string, entityType string, entityID string, details map[string]any) {
	payload, err := json.Marshal(details)
	if err != nil {
		payload = []byte("{}")
	}

	entry := domain.ActivityLog{
		ID:         xid.New("act"),
		Actor:      actorName(ctx),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    string(payload),
		CreatedAt:  s.now(),
	}
	if err := s.repo.CreateActivity(context.WithoutCancel(ctx), entry); err != nil {
		metrics.ActivityLogFailures.Inc()
		s.logger.Warn("failed to write activity log",
			zap.String("action", action),
			zap.String("entity", entityType+"/"+entityID),
			zap.Error(err))
	}
}

func (s *Service) invalidateReports(ctx context.Context, branchIDs ...int64) {
	keys := make([]string, 0, 2*len(branchIDs))
	for _, branchID := range branchIDs {
		keys = append(keys, cache.BranchKeys(branchID)...)
	}
	if err := s.reports.Delete(context.WithoutCancel(ctx), keys...); err != nil {
		s.logger.Warn("failed to invalidate report cache", zap.Int64s("branches", branchIDs), zap.Error(err))
	}
}

func (s *Service) ListActivity(ctx context.Context, limit int) ([]domain.ActivityLog, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListActivity(ctx, limit)
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrValidation, fmt.Sprintf(format, args...))
}

func conflictError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrConflict, fmt.Sprintf(format, args...))
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
