package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fullmeo/aimastery-billing/internal/domain/catalog"
	domainErrors "github.com/fullmeo/aimastery-billing/internal/domain/errors"
	"github.com/fullmeo/aimastery-billing/internal/domain/provider"
	"github.com/fullmeo/aimastery-billing/internal/usecase"
)

// MockPaymentProvider is a mock implementation of PaymentProvider
type MockPaymentProvider struct {
	mock.Mock
}

func (m *MockPaymentProvider) CreateCheckoutSession(ctx context.Context, req *provider.CheckoutSessionRequest) (*provider.CheckoutSessionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.CheckoutSessionResponse), args.Error(1)
}

func (m *MockPaymentProvider) VerifyWebhook(payload []byte, signature string) (*provider.WebhookEvent, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.WebhookEvent), args.Error(1)
}

func (m *MockPaymentProvider) GetProviderName() string {
	return "mock"
}

func TestCheckoutService_CreateSession(t *testing.T) {
	ctx := context.Background()

	t.Run("social pack with trial", func(t *testing.T) {
		mockProvider := new(MockPaymentProvider)
		svc := usecase.NewCheckoutService(mockProvider, "https://app.example", time.Second, zap.NewNop())

		var captured *provider.CheckoutSessionRequest
		mockProvider.On("CreateCheckoutSession", mock.Anything, mock.AnythingOfType("*provider.CheckoutSessionRequest")).
			Run(func(args mock.Arguments) {
				captured = args.Get(1).(*provider.CheckoutSessionRequest)
				_, hasDeadline := args.Get(0).(context.Context).Deadline()
				assert.True(t, hasDeadline)
			}).
			Return(&provider.CheckoutSessionResponse{SessionID: "cs_1", RedirectURL: "https://checkout.example/cs_1"}, nil)

		session, err := svc.CreateSession(ctx, catalog.PlanSocialPack, "u1", "")
		require.NoError(t, err)
		assert.Equal(t, "cs_1", session.SessionID)
		assert.Equal(t, "https://checkout.example/cs_1", session.RedirectURL)
		assert.Equal(t, catalog.PlanSocialPack, session.Plan.ID)

		require.NotNil(t, captured)
		assert.Equal(t, int64(900), captured.Amount)
		assert.Equal(t, "eur", captured.Currency)
		assert.Equal(t, 7, captured.TrialDays)
		assert.Equal(t, "https://app.example/success?session_id={CHECKOUT_SESSION_ID}&plan=social_pack", captured.SuccessURL)
		assert.Equal(t, "https://app.example/cancel?plan=social_pack", captured.CancelURL)
		assert.Equal(t, usecase.CheckoutSource, captured.Metadata[provider.MetadataSource])
		assert.NotEmpty(t, captured.IdempotencyKey)

		planID, userID, err := usecase.ParseSessionMetadata(captured.Metadata)
		require.NoError(t, err)
		assert.Equal(t, catalog.PlanSocialPack, planID)
		assert.Equal(t, "u1", userID)

		mockProvider.AssertExpectations(t)
	})

	t.Run("origin override", func(t *testing.T) {
		mockProvider := new(MockPaymentProvider)
		svc := usecase.NewCheckoutService(mockProvider, "https://app.example", time.Second, zap.NewNop())

		mockProvider.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(req *provider.CheckoutSessionRequest) bool {
			return req.CancelURL == "https://vscode.example/cancel?plan=pro_vincien" && req.TrialDays == 14
		})).Return(&provider.CheckoutSessionResponse{SessionID: "cs_2"}, nil)

		_, err := svc.CreateSession(ctx, catalog.PlanProVincien, "u1", "https://vscode.example/")
		require.NoError(t, err)
		mockProvider.AssertExpectations(t)
	})

	t.Run("invalid input makes no provider call", func(t *testing.T) {
		mockProvider := new(MockPaymentProvider)
		svc := usecase.NewCheckoutService(mockProvider, "https://app.example", time.Second, zap.NewNop())

		_, err := svc.CreateSession(ctx, "gold", "u1", "")
		assert.ErrorIs(t, err, domainErrors.ErrInvalidPlan)

		_, err = svc.CreateSession(ctx, catalog.PlanFree, "u1", "")
		assert.ErrorIs(t, err, domainErrors.ErrInvalidPlan)

		_, err = svc.CreateSession(ctx, catalog.PlanSocialPack, " ", "")
		assert.ErrorIs(t, err, domainErrors.ErrMissingIdentity)

		mockProvider.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
	})

	t.Run("provider failure", func(t *testing.T) {
		mockProvider := new(MockPaymentProvider)
		svc := usecase.NewCheckoutService(mockProvider, "https://app.example", time.Second, zap.NewNop())

		mockProvider.On("CreateCheckoutSession", mock.Anything, mock.Anything).
			Return(nil, &provider.ProviderError{Code: "NETWORK_ERROR", Message: "stripe request failed"})

		_, err := svc.CreateSession(ctx, catalog.PlanSocialPack, "u1", "")
		assert.ErrorIs(t, err, domainErrors.ErrUpstreamUnavailable)
	})
}

func TestParseSessionMetadata(t *testing.T) {
	for _, planID := range []string{catalog.PlanSocialPack, catalog.PlanProVincien} {
		planOut, userOut, err := usecase.ParseSessionMetadata(map[string]string{
			provider.MetadataPlanID: planID,
			provider.MetadataUserID: "user-" + planID,
		})
		require.NoError(t, err)
		assert.Equal(t, planID, planOut)
		assert.Equal(t, "user-"+planID, userOut)
	}

	_, _, err := usecase.ParseSessionMetadata(map[string]string{provider.MetadataPlanID: catalog.PlanSocialPack})
	assert.True(t, errors.Is(err, domainErrors.ErrMissingIdentity))

	_, _, err = usecase.ParseSessionMetadata(map[string]string{provider.MetadataUserID: "u1", provider.MetadataPlanID: "gold"})
	assert.ErrorIs(t, err, domainErrors.ErrInvalidPlan)
}
