package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"nexora/internal/types"
)

// mercadoPagoAPIBase is the default Mercado Pago API base URL.
// Overridable in tests via MercadoPagoClientConfig.BaseURL.
const mercadoPagoAPIBase = "https://api.mercadopago.com"

// MercadoPagoClientConfig holds the configuration for creating a MercadoPagoClient.
type MercadoPagoClientConfig struct {
	AccessToken string
	BaseURL     string // Override for testing; defaults to mercadoPagoAPIBase
	Logger      *slog.Logger
}

// MercadoPagoClient implements PaymentGateway by making direct HTTP calls to
// the Mercado Pago REST API through BaseClient. Requests go through the
// shared resilience infrastructure (circuit breaker, trace propagation,
// error mapping), but with zero local retries: a failed fetch surfaces as an
// error so the webhook request fails and the provider redelivers. Provider
// redelivery is the recovery mechanism.
type MercadoPagoClient struct {
	base        *BaseClient
	accessToken string
	baseURL     string
	logger      *slog.Logger
}

// Compile-time assertion that MercadoPagoClient satisfies PaymentGateway.
var _ PaymentGateway = (*MercadoPagoClient)(nil)

// NewMercadoPagoClient creates a new MercadoPagoClient. The httpClient
// timeout bounds each call; there is no retry loop on top of it.
func NewMercadoPagoClient(httpClient *http.Client, cfg MercadoPagoClientConfig) *MercadoPagoClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = mercadoPagoAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"mercadopago",
		RetryPolicy{
			MaxRetries: 0,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"Nexora/1.0",
	)

	return &MercadoPagoClient{
		base:        base,
		accessToken: cfg.AccessToken,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		logger:      logger,
	}
}

// NewMercadoPagoClientWithBase creates a MercadoPagoClient with a
// pre-configured BaseClient. Useful for testing.
func NewMercadoPagoClientWithBase(base *BaseClient, cfg MercadoPagoClientConfig) *MercadoPagoClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = mercadoPagoAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &MercadoPagoClient{
		base:        base,
		accessToken: cfg.AccessToken,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		logger:      logger,
	}
}

// ---------------------------------------------------------------------------
// PaymentGateway Implementation
// ---------------------------------------------------------------------------

// GetPreapproval fetches the subscription snapshot for a preapproval id.
func (c *MercadoPagoClient) GetPreapproval(ctx context.Context, id string) (*types.PreapprovalSnapshot, error) {
	resp, err := c.doGet(ctx, "/preapproval/"+id)
	if err != nil {
		return nil, c.wrapTransportError("GetPreapproval", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp, "GetPreapproval")
	}

	var pre mpPreapproval
	if err := json.NewDecoder(resp.Body).Decode(&pre); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Mercado Pago preapproval response",
			err,
		)
	}

	return mapPreapproval(&pre), nil
}

// GetAuthorizedPayment fetches a recurring payment record by id.
func (c *MercadoPagoClient) GetAuthorizedPayment(ctx context.Context, id string) (*AuthorizedPayment, error) {
	resp, err := c.doGet(ctx, "/authorized_payments/"+id)
	if err != nil {
		return nil, c.wrapTransportError("GetAuthorizedPayment", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp, "GetAuthorizedPayment")
	}

	var payment mpAuthorizedPayment
	if err := json.NewDecoder(resp.Body).Decode(&payment); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Mercado Pago authorized payment response",
			err,
		)
	}

	return &AuthorizedPayment{
		ID:            payment.ID.String(),
		PreapprovalID: payment.PreapprovalID,
		Status:        payment.Status,
	}, nil
}

// CreatePreapproval creates a pending preapproval (checkout) and returns the
// init_point URL. Amounts are converted from cents to currency units, which
// is what the provider expects.
func (c *MercadoPagoClient) CreatePreapproval(ctx context.Context, req CreatePreapprovalRequest) (*PreapprovalCheckout, error) {
	currency := req.CurrencyID
	if currency == "" {
		currency = "BRL"
	}

	body := mpCreatePreapprovalRequest{
		Reason:            req.Reason,
		ExternalReference: req.ExternalReference,
		PayerEmail:        req.PayerEmail,
		BackURL:           req.BackURL,
		Status:            "pending",
		AutoRecurring: mpAutoRecurringRequest{
			Frequency:         1,
			FrequencyType:     "months",
			TransactionAmount: float64(req.AmountCents) / 100,
			CurrencyID:        currency,
		},
	}

	resp, err := c.doPost(ctx, "/preapproval", body)
	if err != nil {
		return nil, c.wrapTransportError("CreatePreapproval", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, c.handleErrorResponse(resp, "CreatePreapproval")
	}

	var checkout PreapprovalCheckout
	if err := json.NewDecoder(resp.Body).Decode(&checkout); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Mercado Pago preapproval creation response",
			err,
		)
	}

	if checkout.InitPoint == "" {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamProvider,
			"CreatePreapproval: provider returned no init_point",
			nil,
		)
	}

	return &checkout, nil
}

// ---------------------------------------------------------------------------
// HTTP Helpers
// ---------------------------------------------------------------------------

// doGet performs an authenticated GET request to the Mercado Pago API.
func (c *MercadoPagoClient) doGet(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	c.setAuthHeaders(req)

	return c.base.Do(req)
}

// doPost performs an authenticated POST request with a JSON body.
func (c *MercadoPagoClient) doPost(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuthHeaders(req)

	return c.base.Do(req)
}

// setAuthHeaders sets the Mercado Pago bearer authentication header.
func (c *MercadoPagoClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

// mpErrorResponse represents the JSON error body returned by the Mercado Pago API.
type mpErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Status  int    `json:"status"`
}

// handleErrorResponse reads a provider error response and maps it to a
// types.AppError.
func (c *MercadoPagoClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamProvider,
			fmt.Sprintf("%s: Mercado Pago returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var mpErr mpErrorResponse
	message := strings.TrimSpace(string(body))
	if jsonErr := json.Unmarshal(body, &mpErr); jsonErr == nil && mpErr.Message != "" {
		message = mpErr.Message
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("%s: Mercado Pago rate limit exceeded", operation),
			nil,
		)
	case resp.StatusCode >= 500:
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s: Mercado Pago server error (%d): %s", operation, resp.StatusCode, message),
			nil,
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamProvider,
			fmt.Sprintf("%s: Mercado Pago error (%d): %s", operation, resp.StatusCode, message),
			nil,
		)
	}
}

// wrapTransportError wraps a BaseClient transport error with context.
func (c *MercadoPagoClient) wrapTransportError(operation string, err error) error {
	// AppErrors from BaseClient (circuit breaker open, upstream failure)
	// already carry the right error code.
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamProvider,
		fmt.Sprintf("%s: Mercado Pago request failed: %v", operation, err),
		err,
	)
}

// ---------------------------------------------------------------------------
// Mercado Pago Response Types (for JSON deserialization)
// ---------------------------------------------------------------------------

type mpPreapproval struct {
	ID                string          `json:"id"`
	Status            string          `json:"status"`
	PayerEmail        string          `json:"payer_email"`
	ExternalReference string          `json:"external_reference"`
	InitPoint         string          `json:"init_point"`
	AutoRecurring     mpAutoRecurring `json:"auto_recurring"`
}

type mpAutoRecurring struct {
	StartDate         string  `json:"start_date"`
	EndDate           string  `json:"end_date"`
	TransactionAmount float64 `json:"transaction_amount"`
	CurrencyID        string  `json:"currency_id"`
}

type mpAuthorizedPayment struct {
	ID            json.Number `json:"id"`
	PreapprovalID string      `json:"preapproval_id"`
	Status        string      `json:"status"`
}

type mpCreatePreapprovalRequest struct {
	Reason            string                 `json:"reason"`
	ExternalReference string                 `json:"external_reference,omitempty"`
	PayerEmail        string                 `json:"payer_email"`
	AutoRecurring     mpAutoRecurringRequest `json:"auto_recurring"`
	BackURL           string                 `json:"back_url"`
	Status            string                 `json:"status"`
}

type mpAutoRecurringRequest struct {
	Frequency         int     `json:"frequency"`
	FrequencyType     string  `json:"frequency_type"`
	TransactionAmount float64 `json:"transaction_amount"`
	CurrencyID        string  `json:"currency_id"`
}

// ---------------------------------------------------------------------------
// Mapping Functions
// ---------------------------------------------------------------------------

// mapPreapproval converts a provider preapproval into the domain snapshot.
// Unparseable or absent dates map to nil; the reconciler applies defaults.
func mapPreapproval(pre *mpPreapproval) *types.PreapprovalSnapshot {
	return &types.PreapprovalSnapshot{
		ID:                pre.ID,
		Status:            pre.Status,
		PayerEmail:        pre.PayerEmail,
		ExternalReference: pre.ExternalReference,
		PeriodStart:       parseProviderTime(pre.AutoRecurring.StartDate),
		PeriodEnd:         parseProviderTime(pre.AutoRecurring.EndDate),
	}
}

// parseProviderTime parses the provider's ISO-8601 timestamps. Returns nil
// for empty or malformed values.
func parseProviderTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000-07:00"} {
		if t, err := time.Parse(layout, value); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}
