package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ledgerpos/backend/internal/metrics"
	"ledgerpos/backend/internal/service"
	"ledgerpos/backend/internal/store"
)

const maxBodyBytes = 1 << 20

type API struct {
	service        *service.Service
	auth           *AuthManager
	logger         *zap.Logger
	allowedOrigin  string
	metricsEnabled bool
	loginLimiter   *attemptLimiter
	pinLimiter     *attemptLimiter
}

type Options struct {
	AllowedOrigin  string
	MetricsEnabled bool
}

func New(svc *service.Service, auth *AuthManager, logger *zap.Logger, opts Options) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		service:        svc,
		auth:           auth,
		logger:         logger.Named("http"),
		allowedOrigin:  opts.AllowedOrigin,
		metricsEnabled: opts.MetricsEnabled,
		loginLimiter:   newAttemptLimiter(5, time.Minute),
		pinLimiter:     newAttemptLimiter(8, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(a.securityHeaders)
	r.Use(a.observe)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.handleHealth)
	if a.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth("cashier", "admin"))

			r.Get("/products", a.handleListProducts)
			r.Get("/suppliers", a.handleListSuppliers)

			r.Post("/customers", a.handleCreateCustomer)
			r.Get("/customers/{id}", a.handleGetCustomer)
			r.Post("/customers/{id}/settle", a.handleSettleDebt)
			r.Get("/customers/{id}/payments", a.handleCustomerStatement)

			r.Post("/sales", a.handleProcessSale)
			r.Get("/sales/{id}", a.handleGetSale)
			r.Put("/sales/{id}", a.handleEditSale)
			r.Post("/sales/{id}/void", a.handleVoidSale)

			r.Get("/dispatch/pending", a.handleDispatchQueue)
			r.Patch("/dispatch/{id}", a.handleUpdateDispatch)

			r.Get("/inventory/batches", a.handleListBatches)
			r.Get("/inventory/movements", a.handleListMovements)
			r.Get("/inventory/low-stock", a.handleLowStock)
			r.Get("/reports/valuation", a.handleValuation)
			r.Get("/reports/valuation.xlsx", a.handleValuationExport)
		})

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth("admin"))

			r.Post("/products", a.handleCreateProduct)
			r.Post("/products/{id}/archive", a.handleArchiveProduct)
			r.Post("/suppliers", a.handleCreateSupplier)
			r.Post("/purchases/receive", a.handleReceiveStock)
			r.Get("/purchases/{id}", a.handleGetPurchaseOrder)
			r.Post("/purchases/{id}/payments", a.handleSupplierPayment)
			r.Post("/inventory/adjustments", a.handleAdjustStock)
			r.Post("/inventory/transfers", a.handleCreateTransfer)
			r.Get("/activity", a.handleActivity)
		})
	})
	return r
}

func (a *API) requireAuth(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorization := strings.TrimSpace(r.Header.Get("Authorization"))
			if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
				writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
				return
			}

			token := strings.TrimSpace(authorization[len("Bearer "):])
			actor, err := a.auth.ParseToken(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err)
				return
			}

			if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
				writeError(w, http.StatusForbidden, errors.New("forbidden role"))
				return
			}

			next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
		})
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// observe records request latency by route pattern and logs one line per request.
func (a *API) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(startedAt)
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
		a.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", elapsed))
	})
}

// statusFor maps service and store errors onto HTTP status codes.
func statusFor(err error) int {
	if errors.Is(err, service.ErrForbidden) {
		return http.StatusForbidden
	}
	switch store.KindOf(err) {
	case "validation":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "insufficient_stock", "conflict":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		a.logger.Error("request failed", zap.Error(err))
		writeJSON(w, status, map[string]any{"error": "internal server error", "kind": store.KindOf(err)})
		return
	}
	writeJSON(w, status, map[string]any{"error": err.Error(), "kind": store.KindOf(err)})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// parseBranch reads the optional branch_id query parameter. Zero means the caller's branch.
func parseBranch(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("branch_id"))
	if raw == "" {
		return 0, nil
	}
	branchID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || branchID < 1 {
		return 0, errors.New("branch_id must be a positive integer")
	}
	return branchID, nil
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{
		"error": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
