package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"nexora/internal/billing"
	"nexora/internal/core"
	"nexora/internal/types"
)

// ---------------------------------------------------------------------------
// Mock Implementations
// ---------------------------------------------------------------------------

// mockCheckoutManager implements CheckoutManager for testing.
type mockCheckoutManager struct {
	checkoutCalls []billing.CheckoutRequest
	signupCalls   []billing.SignupCheckoutRequest
	contextCalls  []string

	session *types.CheckoutSession
	billCtx *billing.BillingContext
	err     error
}

func (m *mockCheckoutManager) CreateCheckout(ctx context.Context, req billing.CheckoutRequest) (*types.CheckoutSession, error) {
	m.checkoutCalls = append(m.checkoutCalls, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.session, nil
}

func (m *mockCheckoutManager) CreateSignupCheckout(ctx context.Context, req billing.SignupCheckoutRequest) (*types.CheckoutSession, error) {
	m.signupCalls = append(m.signupCalls, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.session, nil
}

func (m *mockCheckoutManager) GetBillingContext(ctx context.Context, tenantID string) (*billing.BillingContext, error) {
	m.contextCalls = append(m.contextCalls, tenantID)
	if m.err != nil {
		return nil, m.err
	}
	return m.billCtx, nil
}

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type billingFixture struct {
	handler *BillingHandler
	service *mockCheckoutManager
	router  chi.Router
}

// passthroughAuth stands in for the service auth middleware in tests that
// only exercise handler behavior.
func passthroughAuth(next http.Handler) http.Handler {
	return next
}

func newBillingFixture() *billingFixture {
	f := &billingFixture{
		service: &mockCheckoutManager{},
	}
	logger := testLogger()
	f.handler = NewBillingHandler(f.service, core.NewValidator(logger), logger)
	f.router = chi.NewRouter()
	f.handler.RegisterRoutes(passthroughAuth)(f.router)
	return f
}

func (f *billingFixture) postJSON(t *testing.T, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp["data"]
}

func decodeErrorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	code, _ := resp["error"]["code"].(string)
	return code
}

// ---------------------------------------------------------------------------
// Tests: POST /billing/checkout
// ---------------------------------------------------------------------------

func TestBillingHandler_CreateCheckout_Success(t *testing.T) {
	f := newBillingFixture()
	f.service.session = &types.CheckoutSession{
		IntentID:  "ci_1",
		TenantID:  "ten_1",
		PlanID:    "pro",
		InitPoint: "https://www.mercadopago.com.br/subscriptions/checkout?preapproval_id=pre-1",
	}

	rr := f.postJSON(t, "/billing/checkout", map[string]string{
		"tenant_id":   "ten_1",
		"plan":        "pro",
		"payer_email": "owner@acme.com",
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rr.Code, rr.Body.String())
	}

	data := decodeData(t, rr)
	if data["intent_id"] != "ci_1" {
		t.Errorf("expected intent_id ci_1, got %v", data["intent_id"])
	}
	if data["init_point"] == "" {
		t.Error("expected init_point in response")
	}

	if len(f.service.checkoutCalls) != 1 {
		t.Fatalf("expected 1 service call, got %d", len(f.service.checkoutCalls))
	}
	call := f.service.checkoutCalls[0]
	if call.TenantID != "ten_1" || call.PlanTier != "pro" || call.PayerEmail != "owner@acme.com" {
		t.Errorf("unexpected service request: %+v", call)
	}
}

func TestBillingHandler_CreateCheckout_MissingFields(t *testing.T) {
	f := newBillingFixture()

	rr := f.postJSON(t, "/billing/checkout", map[string]string{
		"plan": "pro",
	})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rr.Code)
	}
	if code := decodeErrorCode(t, rr); code != string(types.ErrCodeValidationMissingField) {
		t.Errorf("expected error code %q, got %q", types.ErrCodeValidationMissingField, code)
	}
	if len(f.service.checkoutCalls) != 0 {
		t.Errorf("expected no service calls, got %d", len(f.service.checkoutCalls))
	}
}

func TestBillingHandler_CreateCheckout_UnknownPlan(t *testing.T) {
	f := newBillingFixture()

	rr := f.postJSON(t, "/billing/checkout", map[string]string{
		"tenant_id":   "ten_1",
		"plan":        "enterprise",
		"payer_email": "owner@acme.com",
	})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rr.Code)
	}
}

func TestBillingHandler_CreateCheckout_TenantNotFound(t *testing.T) {
	f := newBillingFixture()
	f.service.err = types.NewAppError(types.ErrCodeNotFoundTenant, "tenant not found", nil)

	rr := f.postJSON(t, "/billing/checkout", map[string]string{
		"tenant_id":   "ten_missing",
		"plan":        "starter",
		"payer_email": "owner@acme.com",
	})

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rr.Code)
	}
	if code := decodeErrorCode(t, rr); code != string(types.ErrCodeNotFoundTenant) {
		t.Errorf("expected error code %q, got %q", types.ErrCodeNotFoundTenant, code)
	}
}

func TestBillingHandler_CreateCheckout_ProviderDown(t *testing.T) {
	f := newBillingFixture()
	f.service.err = types.NewAppError(types.ErrCodeUpstreamProvider, "provider rejected request", nil)

	rr := f.postJSON(t, "/billing/checkout", map[string]string{
		"tenant_id":   "ten_1",
		"plan":        "starter",
		"payer_email": "owner@acme.com",
	})

	if rr.Code != http.StatusBadGateway {
		t.Errorf("expected status %d, got %d", http.StatusBadGateway, rr.Code)
	}
}

// ---------------------------------------------------------------------------
// Tests: POST /signup/checkout
// ---------------------------------------------------------------------------

func TestBillingHandler_CreateSignupCheckout_Success(t *testing.T) {
	f := newBillingFixture()
	f.service.session = &types.CheckoutSession{
		IntentID:  "ci_2",
		TenantID:  "ten_prospective",
		PlanID:    "starter",
		InitPoint: "https://www.mercadopago.com.br/subscriptions/checkout?preapproval_id=pre-2",
	}

	rr := f.postJSON(t, "/signup/checkout", map[string]string{
		"plan":        "starter",
		"payer_email": "new@user.com",
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rr.Code, rr.Body.String())
	}

	if len(f.service.signupCalls) != 1 {
		t.Fatalf("expected 1 signup call, got %d", len(f.service.signupCalls))
	}
	call := f.service.signupCalls[0]
	if call.PlanTier != "starter" || call.PayerEmail != "new@user.com" {
		t.Errorf("unexpected signup request: %+v", call)
	}
}

func TestBillingHandler_CreateSignupCheckout_InvalidEmail(t *testing.T) {
	f := newBillingFixture()

	rr := f.postJSON(t, "/signup/checkout", map[string]string{
		"plan":        "starter",
		"payer_email": "not-an-email",
	})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rr.Code)
	}
	if len(f.service.signupCalls) != 0 {
		t.Errorf("expected no signup calls, got %d", len(f.service.signupCalls))
	}
}

// ---------------------------------------------------------------------------
// Tests: GET /billing/subscription
// ---------------------------------------------------------------------------

func TestBillingHandler_GetBillingContext_Success(t *testing.T) {
	f := newBillingFixture()
	pro := "pro"
	f.service.billCtx = &billing.BillingContext{
		Tenant: &types.Tenant{ID: "ten_1", Name: "Acme"},
		Subscription: &types.Subscription{
			TenantID: "ten_1",
			PlanID:   &pro,
			Provider: types.ProviderMercadoPago,
			Status:   types.SubStatusActive,
		},
		Limits:   types.PlanLimits{FinancialModule: true},
		Entitled: true,
	}

	req := httptest.NewRequest(http.MethodGet, "/billing/subscription?tenant_id=ten_1", nil)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}

	data := decodeData(t, rr)
	if data["entitled"] != true {
		t.Errorf("expected entitled true, got %v", data["entitled"])
	}

	if len(f.service.contextCalls) != 1 || f.service.contextCalls[0] != "ten_1" {
		t.Errorf("expected context lookup for ten_1, got %v", f.service.contextCalls)
	}
}

func TestBillingHandler_GetBillingContext_MissingTenantID(t *testing.T) {
	f := newBillingFixture()

	req := httptest.NewRequest(http.MethodGet, "/billing/subscription", nil)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rr.Code)
	}
	if code := decodeErrorCode(t, rr); code != string(types.ErrCodeValidationMissingField) {
		t.Errorf("expected error code %q, got %q", types.ErrCodeValidationMissingField, code)
	}
	if len(f.service.contextCalls) != 0 {
		t.Errorf("expected no context lookups, got %d", len(f.service.contextCalls))
	}
}

func TestBillingHandler_GetBillingContext_TenantNotFound(t *testing.T) {
	f := newBillingFixture()
	f.service.err = types.NewAppError(types.ErrCodeNotFoundTenant, "tenant not found", nil)

	req := httptest.NewRequest(http.MethodGet, "/billing/subscription?tenant_id=ten_missing", nil)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rr.Code)
	}
}
