package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"ledgerpos/backend/internal/domain"
	"ledgerpos/backend/internal/service"
	"ledgerpos/backend/internal/store/memory"
)

const testManagerPIN = "739154"

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo, err := memory.NewSeeded(zap.NewNop())
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	svc := service.New(repo, nil, zap.NewNop(), service.Options{})
	auth := NewAuthManager("test-secret-key-0123456789abcdef", time.Hour, testManagerPIN, repo)

	return New(svc, auth, zap.NewNop(), Options{AllowedOrigin: "*", MetricsEnabled: true})
}

func loginAs(t *testing.T, api *API, username, password string) string {
	t.Helper()

	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("%s login failed, status %d", username, res.Code)
	}

	var payload domain.LoginResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode login response failed: %v", err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		t.Fatalf("expected access token in login response")
	}
	return payload.AccessToken
}

func loginAsAdmin(t *testing.T, api *API) string {
	t.Helper()
	return loginAs(t, api, "admin", "admin123")
}

// doJSON sends an authenticated request and returns the recorder.
func doJSON(t *testing.T, api *API, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	return res
}

func decodeBody(t *testing.T, res *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(res.Body).Decode(dest); err != nil {
		t.Fatalf("decode body: %v (raw: %s)", err, res.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	res := doJSON(t, api, http.MethodGet, "/healthz", "", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var body map[string]any
	decodeBody(t, res, &body)
	if body["ok"] != true {
		t.Fatalf("expected ok=true, got %v", body)
	}
}

func TestMetricsEndpointExposed(t *testing.T) {
	api := newTestAPI(t)
	res := doJSON(t, api, http.MethodGet, "/metrics", "", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", res.Code)
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)
	res := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "admin", Password: "admin123"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}

	var body domain.LoginResponse
	decodeBody(t, res, &body)
	if body.AccessToken == "" || body.Role != "admin" || body.BranchID != 1 {
		t.Fatalf("unexpected login response %+v", body)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	res := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "admin", Password: "wrongpassword"})
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", res.Code, res.Body.String())
	}
}

func TestHandleLogin_UnknownFieldRejected(t *testing.T) {
	api := newTestAPI(t)
	res := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "admin",
		"password": "admin123",
		"role":     "admin",
	})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", res.Code)
	}
}

func TestHandleProducts_WithValidToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	res := doJSON(t, api, http.MethodGet, "/api/v1/products", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}

	var body struct {
		Products []domain.Product `json:"products"`
	}
	decodeBody(t, res, &body)
	if len(body.Products) == 0 {
		t.Fatalf("expected seeded products in response")
	}
}

func TestSaleLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	sale := domain.SaleRequest{
		Items:    []domain.SaleItemRequest{{ProductID: "prd-rice-5kg", Qty: 2, UnitPriceCents: 85000}},
		Payments: []domain.PaymentRequest{{Method: "cash", AmountCents: 170000}},
	}
	res := doJSON(t, api, http.MethodPost, "/api/v1/sales", token, sale)
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}
	var created domain.SaleResponse
	decodeBody(t, res, &created)
	if created.Order.Status != domain.OrderStatusCompleted || created.BalanceCents != 0 {
		t.Fatalf("unexpected sale response %+v", created)
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/sales/"+created.Order.ID, token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 on get sale, got %d", res.Code)
	}

	res = doJSON(t, api, http.MethodPost, "/api/v1/sales/"+created.Order.ID+"/void", token, domain.VoidSaleRequest{
		Reason:     "customer changed mind",
		ManagerPIN: testManagerPIN,
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 on void, got %d (body: %s)", res.Code, res.Body.String())
	}

	res = doJSON(t, api, http.MethodPost, "/api/v1/sales/"+created.Order.ID+"/void", token, domain.VoidSaleRequest{
		Reason:     "again",
		ManagerPIN: testManagerPIN,
	})
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409 on second void, got %d", res.Code)
	}
}

func TestSaleErrorsMapToStatusCodes(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	cases := map[string]struct {
		req  domain.SaleRequest
		want int
	}{
		"empty cart": {
			req:  domain.SaleRequest{Payments: []domain.PaymentRequest{{Method: "cash", AmountCents: 100}}},
			want: http.StatusBadRequest,
		},
		"unknown product": {
			req: domain.SaleRequest{
				Items:    []domain.SaleItemRequest{{ProductID: "prd-missing", Qty: 1, UnitPriceCents: 100}},
				Payments: []domain.PaymentRequest{{Method: "cash", AmountCents: 100}},
			},
			want: http.StatusNotFound,
		},
		"insufficient stock": {
			req: domain.SaleRequest{
				Items:    []domain.SaleItemRequest{{ProductID: "prd-rice-5kg", Qty: 1000, UnitPriceCents: 85000}},
				Payments: []domain.PaymentRequest{{Method: "cash", AmountCents: 85000000}},
			},
			want: http.StatusConflict,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			res := doJSON(t, api, http.MethodPost, "/api/v1/sales", token, tc.req)
			if res.Code != tc.want {
				t.Fatalf("expected %d, got %d (body: %s)", tc.want, res.Code, res.Body.String())
			}
		})
	}

	res := doJSON(t, api, http.MethodGet, "/api/v1/sales/ord-missing", token, nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown sale, got %d", res.Code)
	}
}

func TestCreditSaleThenSettleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	res := doJSON(t, api, http.MethodPost, "/api/v1/customers", token, domain.CustomerCreateRequest{Name: "Bu Sari"})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating customer, got %d (body: %s)", res.Code, res.Body.String())
	}
	var created struct {
		Customer domain.Customer `json:"customer"`
	}
	decodeBody(t, res, &created)

	res = doJSON(t, api, http.MethodPost, "/api/v1/sales", token, domain.SaleRequest{
		CustomerID: created.Customer.ID,
		Items:      []domain.SaleItemRequest{{ProductID: "prd-cake-box", Qty: 2, UnitPriceCents: 12000}},
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201 for credit sale, got %d (body: %s)", res.Code, res.Body.String())
	}

	res = doJSON(t, api, http.MethodPost, "/api/v1/customers/"+created.Customer.ID+"/settle", token, domain.SettleDebtRequest{AmountCents: 24000})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 settling debt, got %d (body: %s)", res.Code, res.Body.String())
	}
	var settled struct {
		Customer domain.Customer `json:"customer"`
	}
	decodeBody(t, res, &settled)
	if settled.Customer.DebtCents != 0 {
		t.Fatalf("expected debt cleared, got %d", settled.Customer.DebtCents)
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/customers/"+created.Customer.ID+"/payments", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 for statement, got %d", res.Code)
	}
	var statement domain.CustomerStatement
	decodeBody(t, res, &statement)
	if len(statement.Payments) != 1 {
		t.Fatalf("expected one settlement payment, got %d", len(statement.Payments))
	}
}

func TestValuationReportAndExport(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	res := doJSON(t, api, http.MethodGet, "/api/v1/reports/valuation", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}
	var report domain.ValuationReport
	decodeBody(t, res, &report)
	if report.TotalCents <= 0 {
		t.Fatalf("expected positive valuation for seeded stock, got %d", report.TotalCents)
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/reports/valuation.xlsx", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 for export, got %d", res.Code)
	}
	if !strings.Contains(res.Header().Get("Content-Disposition"), ".xlsx") {
		t.Fatalf("expected xlsx attachment, got %q", res.Header().Get("Content-Disposition"))
	}
	if res.Body.Len() == 0 {
		t.Fatalf("expected workbook bytes")
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/reports/valuation?branch_id=abc", token, nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad branch_id, got %d", res.Code)
	}
}

func TestStatusForMapsErrorKinds(t *testing.T) {
	if got := statusFor(service.ErrForbidden); got != http.StatusForbidden {
		t.Fatalf("expected 403 for forbidden, got %d", got)
	}
	if got := statusFor(http.ErrBodyNotAllowed); got != http.StatusInternalServerError {
		t.Fatalf("expected 500 for unknown errors, got %d", got)
	}
}
