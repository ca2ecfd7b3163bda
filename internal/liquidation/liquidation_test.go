package liquidation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"liquidation-api/internal/compliance"
	"liquidation-api/internal/pricing"
	"liquidation-api/internal/provider"
	"liquidation-api/internal/types"
)

func testGormDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&types.LiquidationRequest{}, &types.IdempotencyRecord{}))
	return db
}

// stubEligibility answers intake checks from fixed values.
type stubEligibility struct {
	eligible bool
	rule     *types.AssetEligibility
}

func (s *stubEligibility) IsEligible(string, float64, string, string) (bool, error) {
	return s.eligible, nil
}

func (s *stubEligibility) GetEligibility(string) (*types.AssetEligibility, error) {
	return s.rule, nil
}

// stubQuoter serves a fixed price with the slippage tier applied.
type stubQuoter struct {
	price    float64
	suitable bool
	err      error
}

func (s *stubQuoter) GetCurrentPrice(asset, output string) (*pricing.MarketPriceSnapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &pricing.MarketPriceSnapshot{
		AssetSymbol: asset, OutputSymbol: output,
		Price: s.price, Confidence: 95, Suitable: true,
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}, nil
}

func (s *stubQuoter) GetPriceWithSlippage(asset, output string, amount float64) (*pricing.MarketPriceSnapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	slippage := pricing.SlippagePercent(amount)
	return &pricing.MarketPriceSnapshot{
		AssetSymbol: asset, OutputSymbol: output,
		Price: s.price, Confidence: 85,
		Suitable:          s.suitable,
		EstimatedSlippage: slippage,
		SlippageAdjusted:  true,
		ExpiresAt:         time.Now().Add(2 * time.Minute),
	}, nil
}

// stubSelector returns a fixed provider and records outcome calls.
type stubSelector struct {
	provider *provider.LiquidityProvider
	err      error
	outcomes []bool
	fees     []float64
}

func (s *stubSelector) FindBest(string, string, float64) (*provider.LiquidityProvider, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.provider, nil
}

func (s *stubSelector) RecordOutcome(_ string, success bool, feesEarned float64) error {
	s.outcomes = append(s.outcomes, success)
	s.fees = append(s.fees, feesEarned)
	return nil
}

// stubGate approves or denies without running real checkers.
type stubGate struct {
	approved bool
	err      error
	calls    int
}

func (s *stubGate) RunChecks(context.Context, compliance.CheckInput) (*compliance.GateResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &compliance.GateResult{Approved: s.approved}, nil
}

type fixture struct {
	svc         *Service
	db          *gorm.DB
	eligibility *stubEligibility
	quoter      *stubQuoter
	selector    *stubSelector
	gate        *stubGate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testGormDB(t)
	f := &fixture{
		db: db,
		eligibility: &stubEligibility{
			eligible: true,
			rule:     &types.AssetEligibility{AssetSymbol: "ETH", Enabled: true, RiskLevel: types.RiskLow},
		},
		quoter: &stubQuoter{price: 3000, suitable: true},
		selector: &stubSelector{
			provider: &provider.LiquidityProvider{ProviderID: "LP_1", Name: "Alpha", FeePercentage: 0.5},
		},
		gate: &stubGate{approved: true},
	}
	f.svc = NewService(db, f.eligibility, f.gate, f.quoter, f.selector)
	return f
}

func defaultParams() CreateParams {
	return CreateParams{
		UserID:       "user-1",
		AssetSymbol:  "ETH",
		Amount:       2,
		OutputType:   "FIAT",
		OutputSymbol: "USD",
		Destination:  "acct-1",
	}
}

func TestCreatePendingRequest(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f.svc.WithClock(func() time.Time { return now })
	f.eligibility.rule = &types.AssetEligibility{
		AssetSymbol: "ETH", Enabled: true,
		RiskLevel: types.RiskMedium, RequiresMultiSig: true,
	}

	request, err := f.svc.Create(defaultParams(), "")
	require.NoError(t, err)

	assert.Equal(t, types.StatusPending, request.Status)
	assert.Contains(t, request.RequestID, "LIQ_")
	assert.Equal(t, 3000.0, request.MarketPriceAtRequest)
	assert.Equal(t, 6000.0, request.EstimatedOutput)
	assert.Equal(t, types.RiskMedium, request.RiskLevel)
	assert.True(t, request.RequiresMultiSig)
	assert.Equal(t, now.Add(24*time.Hour), request.ExpiresAt)

	persisted, err := f.svc.db.GetRequest(request.RequestID)
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, types.StatusPending, persisted.Status)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)

	params := defaultParams()
	params.Amount = 0
	_, err := f.svc.Create(params, "")
	assert.ErrorIs(t, err, types.ErrInvalidOperation)

	params = defaultParams()
	params.Destination = ""
	_, err = f.svc.Create(params, "")
	assert.ErrorIs(t, err, types.ErrInvalidOperation)
}

func TestCreateIneligibleNeverPersisted(t *testing.T) {
	f := newFixture(t)
	f.eligibility.eligible = false

	_, err := f.svc.Create(defaultParams(), "")
	assert.ErrorIs(t, err, types.ErrInvalidOperation)

	var count int64
	require.NoError(t, f.db.Model(&types.LiquidationRequest{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateIdempotency(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.Create(defaultParams(), "key-1")
	require.NoError(t, err)

	second, err := f.svc.Create(defaultParams(), "key-1")
	require.NoError(t, err)
	assert.Equal(t, first.RequestID, second.RequestID)

	var count int64
	require.NoError(t, f.db.Model(&types.LiquidationRequest{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// A different key creates a fresh request
	third, err := f.svc.Create(defaultParams(), "key-2")
	require.NoError(t, err)
	assert.NotEqual(t, first.RequestID, third.RequestID)
}

func TestProcessSettlesRequest(t *testing.T) {
	f := newFixture(t)

	request, err := f.svc.Create(defaultParams(), "")
	require.NoError(t, err)

	processed, err := f.svc.Process(context.Background(), request.RequestID)
	require.NoError(t, err)

	// 2 ETH at 3000 with a 0.5% provider fee
	assert.Equal(t, types.StatusCompleted, processed.Status)
	assert.True(t, processed.ComplianceApproved)
	assert.Equal(t, "LP_1", processed.ProviderID)
	assert.Equal(t, 3000.0, processed.ExchangeRate)
	assert.InDelta(t, 30.0, processed.Fees, 1e-9)
	assert.InDelta(t, 5970.0, processed.ActualOutput, 1e-9)
	assert.Contains(t, processed.TransactionRef, "TXN_")
	require.NotNil(t, processed.CompletedAt)

	// The provider's counters were credited with the earned fees
	require.Len(t, f.selector.outcomes, 1)
	assert.True(t, f.selector.outcomes[0])
	assert.InDelta(t, 30.0, f.selector.fees[0], 1e-9)

	persisted, err := f.svc.db.GetRequest(request.RequestID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, persisted.Status)
}

func TestProcessDefaultFeeWhenProviderHasNone(t *testing.T) {
	f := newFixture(t)
	f.selector.provider = &provider.LiquidityProvider{ProviderID: "LP_2", Name: "NoFee"}

	request, err := f.svc.Create(defaultParams(), "")
	require.NoError(t, err)

	processed, err := f.svc.Process(context.Background(), request.RequestID)
	require.NoError(t, err)
	assert.InDelta(t, 30.0, processed.Fees, 1e-9) // default 0.5%
}

func TestProcessComplianceDenied(t *testing.T) {
	f := newFixture(t)
	f.gate.approved = false

	request, err := f.svc.Create(defaultParams(), "")
	require.NoError(t, err)

	_, err = f.svc.Process(context.Background(), request.RequestID)
	require.Error(t, err)
	assert.Equal(t, "Compliance check failed", err.Error())

	// The compensating write landed: FAILED with the reason, and no
	// settlement fields were ever stamped
	persisted, err := f.svc.db.GetRequest(request.RequestID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, persisted.Status)
	assert.Equal(t, "Compliance check failed", persisted.RejectionReason)
	assert.Empty(t, persisted.ProviderID)
	assert.Empty(t, persisted.TransactionRef)
	assert.Zero(t, persisted.ActualOutput)
	assert.Empty(t, f.selector.outcomes)
}

func TestProcessGateErrorCompensates(t *testing.T) {
	f := newFixture(t)
	f.gate.err = context.Canceled

	request, err := f.svc.Create(defaultParams(), "")
	require.NoError(t, err)

	_, err = f.svc.Process(context.Background(), request.RequestID)
	require.Error(t, err)

	// A gate infrastructure failure lands in the same compensation path
	// as a denial; the request never stays EXECUTING
	persisted, err := f.svc.db.GetRequest(request.RequestID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, persisted.Status)
	assert.Contains(t, persisted.RejectionReason, "compliance gate error")
	assert.Empty(t, persisted.ProviderID)
}

func TestMarkFailedClearsSettlementFields(t *testing.T) {
	f := newFixture(t)

	request, err := f.svc.Create(defaultParams(), "")
	require.NoError(t, err)

	// Stage settlement fields in memory as the pipeline does just before
	// its final write, then fail
	request.Status = types.StatusExecuting
	request.ProviderID = "LP_1"
	request.TransactionRef = "TXN_abc"
	request.ExchangeRate = 3000
	request.Fees = 30
	request.ActualOutput = 5970

	f.svc.markFailed(request, "settlement write failed")

	persisted, err := f.svc.db.GetRequest(request.RequestID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, persisted.Status)
	assert.Empty(t, persisted.ProviderID)
	assert.Empty(t, persisted.TransactionRef)
	assert.Zero(t, persisted.ExchangeRate)
	assert.Zero(t, persisted.Fees)
	assert.Zero(t, persisted.ActualOutput)
}

func TestProcessUnsuitablePrice(t *testing.T) {
	f := newFixture(t)

	request, err := f.svc.Create(defaultParams(), "")
	require.NoError(t, err)

	f.quoter.suitable = false
	_, err = f.svc.Process(context.Background(), request.RequestID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "price not suitable")

	persisted, err := f.svc.db.GetRequest(request.RequestID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, persisted.Status)
}

func TestProcessNoProvider(t *testing.T) {
	f := newFixture(t)
	f.selector.err = fmt.Errorf("%w: no eligible provider", types.ErrInvalidOperation)

	request, err := f.svc.Create(defaultParams(), "")
	require.NoError(t, err)

	_, err = f.svc.Process(context.Background(), request.RequestID)
	require.Error(t, err)

	persisted, err := f.svc.db.GetRequest(request.RequestID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, persisted.Status)
}

func TestProcessRejectsNonPending(t *testing.T) {
	f := newFixture(t)

	request, err := f.svc.Create(defaultParams(), "")
	require.NoError(t, err)
	_, err = f.svc.Process(context.Background(), request.RequestID)
	require.NoError(t, err)

	// A second Process on the completed request fails without touching it
	_, err = f.svc.Process(context.Background(), request.RequestID)
	assert.ErrorIs(t, err, types.ErrInvalidOperation)
	assert.Equal(t, 1, f.gate.calls)

	persisted, err := f.svc.db.GetRequest(request.RequestID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, persisted.Status)
}

func TestProcessUnknownRequest(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Process(context.Background(), "LIQ_missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)

	request, err := f.svc.Create(defaultParams(), "")
	require.NoError(t, err)

	// Owner mismatch is rejected
	_, err = f.svc.Cancel(request.RequestID, "someone-else", "nope")
	assert.ErrorIs(t, err, types.ErrInvalidOperation)

	cancelled, err := f.svc.Cancel(request.RequestID, "user-1", "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, cancelled.Status)
	assert.Equal(t, "changed my mind", cancelled.RejectionReason)
	require.NotNil(t, cancelled.CompletedAt)

	// Terminal requests cannot be cancelled again
	_, err = f.svc.Cancel(request.RequestID, "user-1", "twice")
	assert.ErrorIs(t, err, types.ErrInvalidOperation)
}

func TestCancelTransitionRequiresObservedStatus(t *testing.T) {
	f := newFixture(t)

	request, err := f.svc.Create(defaultParams(), "")
	require.NoError(t, err)

	// A cancel that observed EXECUTING writes nothing once the pipeline
	// has moved the request on
	moved, err := f.svc.db.CancelTransition(request.RequestID, types.StatusExecuting, "too late", time.Now())
	require.NoError(t, err)
	assert.False(t, moved)

	persisted, err := f.svc.db.GetRequest(request.RequestID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, persisted.Status)
	assert.Empty(t, persisted.RejectionReason)

	// Matching status lands the full cancellation stamp
	moved, err = f.svc.db.CancelTransition(request.RequestID, types.StatusPending, "user request", time.Now())
	require.NoError(t, err)
	assert.True(t, moved)

	persisted, err = f.svc.db.GetRequest(request.RequestID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, persisted.Status)
	assert.Equal(t, "user request", persisted.RejectionReason)
	require.NotNil(t, persisted.CompletedAt)
}

func TestCancelCompletedRequest(t *testing.T) {
	f := newFixture(t)

	request, err := f.svc.Create(defaultParams(), "")
	require.NoError(t, err)
	_, err = f.svc.Process(context.Background(), request.RequestID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(request.RequestID, "user-1", "too late")
	assert.ErrorIs(t, err, types.ErrInvalidOperation)
}

func TestRetryAfterComplianceFailure(t *testing.T) {
	f := newFixture(t)
	f.gate.approved = false

	request, err := f.svc.Create(defaultParams(), "")
	require.NoError(t, err)
	_, err = f.svc.Process(context.Background(), request.RequestID)
	require.Error(t, err)

	// Checks pass on the second attempt
	f.gate.approved = true
	retried, err := f.svc.Retry(context.Background(), request.RequestID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, retried.Status)
	assert.Empty(t, retried.RejectionReason)
	assert.InDelta(t, 5970.0, retried.ActualOutput, 1e-9)
	assert.Equal(t, 2, f.gate.calls)
}

func TestRetryOnlyFailedRequests(t *testing.T) {
	f := newFixture(t)

	request, err := f.svc.Create(defaultParams(), "")
	require.NoError(t, err)

	// PENDING is not retryable
	_, err = f.svc.Retry(context.Background(), request.RequestID)
	assert.ErrorIs(t, err, types.ErrInvalidOperation)

	_, err = f.svc.Retry(context.Background(), "LIQ_missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestUpdateStatusHonorsStateMachine(t *testing.T) {
	f := newFixture(t)

	request, err := f.svc.Create(defaultParams(), "")
	require.NoError(t, err)

	// PENDING cannot jump straight to COMPLETED
	_, err = f.svc.UpdateStatus(request.RequestID, types.StatusCompleted, "", "")
	assert.ErrorIs(t, err, types.ErrInvalidOperation)

	updated, err := f.svc.UpdateStatus(request.RequestID, types.StatusFailed, "manual fail", "")
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, updated.Status)
	assert.Equal(t, "manual fail", updated.RejectionReason)
	require.NotNil(t, updated.CompletedAt)

	// FAILED back to PENDING clears the failure bookkeeping
	updated, err = f.svc.UpdateStatus(request.RequestID, types.StatusPending, "", "")
	require.NoError(t, err)
	assert.Empty(t, updated.RejectionReason)
	assert.Nil(t, updated.CompletedAt)
}

func TestGetIsOwnerScoped(t *testing.T) {
	f := newFixture(t)

	request, err := f.svc.Create(defaultParams(), "")
	require.NoError(t, err)

	got, err := f.svc.Get(request.RequestID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, request.RequestID, got.RequestID)

	// Another user's lookup reads as not found, not forbidden
	_, err = f.svc.Get(request.RequestID, "user-2")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestListFiltersAndPaginates(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 5; i++ {
		params := defaultParams()
		if i%2 == 1 {
			params.UserID = "user-2"
		}
		_, err := f.svc.Create(params, "")
		require.NoError(t, err)
	}

	page, err := f.svc.List(types.RequestFilter{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Len(t, page.Requests, 3)

	page, err = f.svc.List(types.RequestFilter{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	assert.Len(t, page.Requests, 2)

	page, err = f.svc.List(types.RequestFilter{Status: types.StatusCompleted})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestEstimate(t *testing.T) {
	f := newFixture(t)

	estimate, err := f.svc.Estimate("ETH", 2, "USD")
	require.NoError(t, err)
	assert.Equal(t, 6000.0, estimate.GrossOutput)
	assert.InDelta(t, 30.0, estimate.Fees, 1e-9)
	assert.InDelta(t, 5970.0, estimate.NetOutput, 1e-9)
	assert.Equal(t, "LP_1", estimate.ProviderID)
	assert.Equal(t, 0.1, estimate.SlippagePercent)

	// No request row is created by an estimate
	var count int64
	require.NoError(t, f.db.Model(&types.LiquidationRequest{}).Count(&count).Error)
	assert.Zero(t, count)

	_, err = f.svc.Estimate("ETH", 0, "USD")
	assert.ErrorIs(t, err, types.ErrInvalidOperation)
}

func TestExpirySweepFailsStalePending(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f.svc.WithClock(func() time.Time { return now })

	stale, err := f.svc.Create(defaultParams(), "")
	require.NoError(t, err)

	// A second request created just before the sweep is still fresh
	now = now.Add(23 * time.Hour)
	fresh, err := f.svc.Create(defaultParams(), "")
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	sweep := NewProcessor(f.svc, time.Minute)
	require.NoError(t, sweep.sweepExpired())

	persisted, err := f.svc.db.GetRequest(stale.RequestID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, persisted.Status)
	assert.Equal(t, "request expired", persisted.RejectionReason)

	persisted, err = f.svc.db.GetRequest(fresh.RequestID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, persisted.Status)
}
