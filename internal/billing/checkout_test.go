package billing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"nexora/internal/external"
	"nexora/internal/types"
)

type mockTenantStore struct {
	mock.Mock
}

func (m *mockTenantStore) GetByID(ctx context.Context, id string) (*types.Tenant, error) {
	args := m.Called(ctx, id)
	if t := args.Get(0); t != nil {
		return t.(*types.Tenant), args.Error(1)
	}
	return nil, args.Error(1)
}

func setupCheckout() (*CheckoutService, *mockGateway, *mockIntentStore, *mockSubStore, *mockTenantStore) {
	gateway := new(mockGateway)
	intents := new(mockIntentStore)
	subs := new(mockSubStore)
	tenants := new(mockTenantStore)

	svc := NewCheckoutService(
		gateway,
		NewStaticPlanRegistry(),
		intents,
		subs,
		tenants,
		"https://app.example.com/billing/return",
		nil,
	)
	return svc, gateway, intents, subs, tenants
}

func TestCreateCheckout_Success(t *testing.T) {
	svc, gateway, intents, _, tenants := setupCheckout()

	tenants.On("GetByID", mock.Anything, "tenant-9").Return(&types.Tenant{ID: "tenant-9"}, nil)
	gateway.On("CreatePreapproval", mock.Anything, mock.Anything).Return(&external.PreapprovalCheckout{
		ID:        "pre-new",
		InitPoint: "https://mp.example/checkout/pre-new",
	}, nil)
	intents.On("Create", mock.Anything, mock.Anything).Return(nil)

	session, err := svc.CreateCheckout(context.Background(), CheckoutRequest{
		TenantID:   "tenant-9",
		PlanTier:   "pro",
		PayerEmail: "Owner@Example.com",
	})
	require.NoError(t, err)

	req := gateway.Calls[0].Arguments.Get(1).(external.CreatePreapprovalRequest)
	assert.Equal(t, "tenant-9", req.ExternalReference)
	assert.Equal(t, "owner@example.com", req.PayerEmail)
	assert.Equal(t, int64(14900), req.AmountCents)
	assert.Equal(t, "Nexora Pro", req.Reason)
	assert.Equal(t, "https://app.example.com/billing/return", req.BackURL)

	intent := intents.Calls[0].Arguments.Get(1).(*types.CheckoutIntent)
	assert.Equal(t, "tenant-9", intent.TenantID)
	assert.Equal(t, "pro", intent.PlanID)
	assert.Equal(t, "owner@example.com", intent.PayerEmail)
	assert.Equal(t, types.IntentPending, intent.Status)
	_, parseErr := uuid.Parse(intent.ID)
	assert.NoError(t, parseErr)

	assert.Equal(t, "https://mp.example/checkout/pre-new", session.InitPoint)
	assert.Equal(t, "tenant-9", session.TenantID)
	assert.Equal(t, intent.ID, session.IntentID)
}

func TestCreateCheckout_UnknownPlan(t *testing.T) {
	svc, gateway, _, _, _ := setupCheckout()

	_, err := svc.CreateCheckout(context.Background(), CheckoutRequest{
		TenantID:   "tenant-9",
		PlanTier:   "enterprise",
		PayerEmail: "owner@example.com",
	})
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationInvalidPlan, appErr.Code)
	gateway.AssertNotCalled(t, "CreatePreapproval", mock.Anything, mock.Anything)
}

func TestCreateCheckout_InvalidEmail(t *testing.T) {
	svc, _, _, _, _ := setupCheckout()

	_, err := svc.CreateCheckout(context.Background(), CheckoutRequest{
		TenantID:   "tenant-9",
		PlanTier:   "starter",
		PayerEmail: "not-an-email",
	})
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationInvalidEmail, appErr.Code)
}

func TestCreateCheckout_MissingTenant(t *testing.T) {
	svc, _, _, _, _ := setupCheckout()

	_, err := svc.CreateCheckout(context.Background(), CheckoutRequest{
		PlanTier:   "starter",
		PayerEmail: "owner@example.com",
	})
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationMissingField, appErr.Code)
}

func TestCreateCheckout_TenantNotFound(t *testing.T) {
	svc, gateway, _, _, tenants := setupCheckout()

	tenants.On("GetByID", mock.Anything, "ghost").Return(nil, notFound(types.ErrCodeNotFoundTenant))

	_, err := svc.CreateCheckout(context.Background(), CheckoutRequest{
		TenantID:   "ghost",
		PlanTier:   "starter",
		PayerEmail: "owner@example.com",
	})
	require.Error(t, err)
	gateway.AssertNotCalled(t, "CreatePreapproval", mock.Anything, mock.Anything)
}

func TestCreateSignupCheckout_NoExternalReference(t *testing.T) {
	svc, gateway, intents, _, tenants := setupCheckout()

	gateway.On("CreatePreapproval", mock.Anything, mock.Anything).Return(&external.PreapprovalCheckout{
		ID:        "pre-new",
		InitPoint: "https://mp.example/checkout/pre-new",
	}, nil)
	intents.On("Create", mock.Anything, mock.Anything).Return(nil)

	session, err := svc.CreateSignupCheckout(context.Background(), SignupCheckoutRequest{
		PlanTier:   "starter",
		PayerEmail: "signup@example.com",
	})
	require.NoError(t, err)

	req := gateway.Calls[0].Arguments.Get(1).(external.CreatePreapprovalRequest)
	assert.Empty(t, req.ExternalReference)
	assert.Equal(t, int64(7900), req.AmountCents)

	// A prospective tenant id is minted locally for the intent row.
	_, parseErr := uuid.Parse(session.TenantID)
	assert.NoError(t, parseErr)
	tenants.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestCreateSignupCheckout_GatewayFailure(t *testing.T) {
	svc, gateway, intents, _, _ := setupCheckout()

	upstream := types.NewAppError(types.ErrCodeUpstreamProvider, "provider rejected", nil)
	gateway.On("CreatePreapproval", mock.Anything, mock.Anything).Return(nil, upstream)

	_, err := svc.CreateSignupCheckout(context.Background(), SignupCheckoutRequest{
		PlanTier:   "pro",
		PayerEmail: "signup@example.com",
	})
	require.Error(t, err)
	assert.Equal(t, upstream, err)
	intents.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestGetBillingContext_ActiveSubscription(t *testing.T) {
	svc, _, _, subs, tenants := setupCheckout()

	planID := "pro"
	tenants.On("GetByID", mock.Anything, "tenant-9").Return(&types.Tenant{ID: "tenant-9"}, nil)
	subs.On("GetByTenant", mock.Anything, "tenant-9").Return(&types.Subscription{
		TenantID: "tenant-9",
		PlanID:   &planID,
		Status:   types.SubStatusActive,
	}, nil)

	bctx, err := svc.GetBillingContext(context.Background(), "tenant-9")
	require.NoError(t, err)

	assert.True(t, bctx.Entitled)
	assert.True(t, bctx.Limits.FinancialModule)
	assert.Equal(t, 0, bctx.Limits.MaxMembers)
	require.NotNil(t, bctx.Subscription)
}

func TestGetBillingContext_NoSubscriptionRow(t *testing.T) {
	svc, _, _, subs, tenants := setupCheckout()

	tenants.On("GetByID", mock.Anything, "tenant-9").Return(&types.Tenant{ID: "tenant-9"}, nil)
	subs.On("GetByTenant", mock.Anything, "tenant-9").Return(nil, notFound(types.ErrCodeNotFoundSubscription))

	bctx, err := svc.GetBillingContext(context.Background(), "tenant-9")
	require.NoError(t, err)

	assert.False(t, bctx.Entitled)
	assert.Nil(t, bctx.Subscription)
	assert.Equal(t, 2, bctx.Limits.MaxMembers)
	assert.False(t, bctx.Limits.FinancialModule)
}

func TestGetBillingContext_PastDueNotEntitled(t *testing.T) {
	svc, _, _, subs, tenants := setupCheckout()

	tenants.On("GetByID", mock.Anything, "tenant-9").Return(&types.Tenant{ID: "tenant-9"}, nil)
	subs.On("GetByTenant", mock.Anything, "tenant-9").Return(&types.Subscription{
		TenantID: "tenant-9",
		Status:   types.SubStatusPastDue,
	}, nil)

	bctx, err := svc.GetBillingContext(context.Background(), "tenant-9")
	require.NoError(t, err)
	assert.False(t, bctx.Entitled)
}

func TestGetBillingContext_TenantNotFound(t *testing.T) {
	svc, _, _, subs, tenants := setupCheckout()

	tenants.On("GetByID", mock.Anything, "ghost").Return(nil, notFound(types.ErrCodeNotFoundTenant))
	subs.On("GetByTenant", mock.Anything, "ghost").Return(nil, notFound(types.ErrCodeNotFoundSubscription))

	_, err := svc.GetBillingContext(context.Background(), "ghost")
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundTenant, appErr.Code)
}
