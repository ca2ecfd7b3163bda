package liquidation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"liquidation-api/internal/compliance"
	"liquidation-api/internal/pricing"
	"liquidation-api/internal/provider"
	"liquidation-api/internal/types"
)

const (
	// Requests are stamped with a 24 hour expiry at creation; the sweep
	// fails pending requests past it.
	requestTTL = 24 * time.Hour

	// Applied when a provider has no fee configured
	defaultFeePercent = 0.5

	complianceFailedReason = "Compliance check failed"
)

// EligibilityChecker is the rule-table collaborator consulted at intake.
type EligibilityChecker interface {
	IsEligible(assetSymbol string, amount float64, userID, country string) (bool, error)
	GetEligibility(assetSymbol string) (*types.AssetEligibility, error)
}

// PriceQuoter supplies current and slippage-adjusted quotes.
type PriceQuoter interface {
	GetCurrentPrice(assetSymbol, outputSymbol string) (*pricing.MarketPriceSnapshot, error)
	GetPriceWithSlippage(assetSymbol, outputSymbol string, amount float64) (*pricing.MarketPriceSnapshot, error)
}

// ProviderSelector picks the counterparty that executes the liquidation.
type ProviderSelector interface {
	FindBest(assetSymbol, outputSymbol string, amount float64) (*provider.LiquidityProvider, error)
	RecordOutcome(providerID string, success bool, feesEarned float64) error
}

// ComplianceGate runs the verification checks for a request.
type ComplianceGate interface {
	RunChecks(ctx context.Context, input compliance.CheckInput) (*compliance.GateResult, error)
}

// Service owns the liquidation request state machine and sequences
// eligibility, compliance, pricing, provider selection and settlement.
type Service struct {
	db          *Database
	eligibility EligibilityChecker
	gate        ComplianceGate
	quoter      PriceQuoter
	selector    ProviderSelector
	now         func() time.Time
	newID       func() string
}

func NewService(gormDB *gorm.DB, eligibility EligibilityChecker, gate ComplianceGate, quoter PriceQuoter, selector ProviderSelector) *Service {
	return &Service{
		db:          NewDatabase(gormDB),
		eligibility: eligibility,
		gate:        gate,
		quoter:      quoter,
		selector:    selector,
		now:         time.Now,
		newID:       func() string { return "LIQ_" + uuid.New().String() },
	}
}

// WithClock overrides the service clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateParams carries the intake fields for a new request.
type CreateParams struct {
	UserID       string
	AssetSymbol  string
	Amount       float64
	OutputType   string
	OutputSymbol string
	Destination  string
	Country      string
	Notes        string
}

// Create validates intake against the eligibility rules, captures an
// initial price estimate and persists the request in PENDING status.
// Ineligible requests are never persisted.
func (s *Service) Create(params CreateParams, idempotencyKey string) (*types.LiquidationRequest, error) {
	logger := log.With().
		Str("user_id", params.UserID).
		Str("asset", params.AssetSymbol).
		Float64("amount", params.Amount).
		Str("service", "liquidation").
		Logger()

	if params.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", types.ErrInvalidOperation)
	}
	if params.UserID == "" || params.AssetSymbol == "" || params.OutputSymbol == "" || params.Destination == "" {
		return nil, fmt.Errorf("%w: user, asset, output and destination are required", types.ErrInvalidOperation)
	}

	// Idempotent create: return the original request for a known key
	if idempotencyKey != "" {
		record, err := s.db.GetIdempotencyRecord(idempotencyKey)
		if err != nil {
			return nil, err
		}
		if record != nil && record.ExpiresAt.After(s.now()) {
			existing, err := s.db.GetRequest(record.ResourceID)
			if err != nil {
				return nil, err
			}
			if existing != nil {
				logger.Debug().Str("request_id", existing.RequestID).Msg("returning request for existing idempotency key")
				return existing, nil
			}
		}
	}

	eligible, err := s.eligibility.IsEligible(params.AssetSymbol, params.Amount, params.UserID, params.Country)
	if err != nil {
		logger.Error().Err(err).Msg("eligibility lookup failed")
		return nil, fmt.Errorf("eligibility lookup failed: %w", err)
	}
	if !eligible {
		logger.Info().Msg("asset not eligible for liquidation")
		return nil, fmt.Errorf("%w: asset %s is not eligible for liquidation at this amount", types.ErrInvalidOperation, params.AssetSymbol)
	}

	rule, err := s.eligibility.GetEligibility(params.AssetSymbol)
	if err != nil {
		return nil, fmt.Errorf("eligibility lookup failed: %w", err)
	}

	current, err := s.quoter.GetCurrentPrice(params.AssetSymbol, params.OutputSymbol)
	if err != nil {
		logger.Error().Err(err).Msg("initial price estimate failed")
		return nil, fmt.Errorf("initial price estimate failed: %w", err)
	}
	estimate, err := s.quoter.GetPriceWithSlippage(params.AssetSymbol, params.OutputSymbol, params.Amount)
	if err != nil {
		return nil, fmt.Errorf("initial price estimate failed: %w", err)
	}

	now := s.now()
	request := &types.LiquidationRequest{
		RequestID:            s.newID(),
		UserID:               params.UserID,
		AssetSymbol:          params.AssetSymbol,
		Amount:               params.Amount,
		OutputType:           params.OutputType,
		OutputSymbol:         params.OutputSymbol,
		Destination:          params.Destination,
		Status:               types.StatusPending,
		MarketPriceAtRequest: current.Price,
		EstimatedOutput:      params.Amount * estimate.Price,
		Notes:                params.Notes,
		CreatedAt:            now,
		UpdatedAt:            now,
		ExpiresAt:            now.Add(requestTTL),
	}
	if rule != nil {
		request.RiskLevel = rule.RiskLevel
		request.RequiresMultiSig = rule.RequiresMultiSig
	}

	if idempotencyKey != "" {
		err = s.db.CreateRequestWithIdempotency(request, idempotencyKey, now.Add(requestTTL))
	} else {
		err = s.db.CreateRequest(request)
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to persist liquidation request")
		return nil, fmt.Errorf("failed to persist liquidation request: %w", err)
	}

	logger.Info().
		Str("request_id", request.RequestID).
		Float64("market_price", request.MarketPriceAtRequest).
		Float64("estimated_output", request.EstimatedOutput).
		Msg("created liquidation request")

	return request, nil
}

// Process drives a pending request through the full pipeline. The
// transition to EXECUTING is persisted up front so a crash mid-pipeline
// leaves an observable EXECUTING record. Any stage failure lands a
// compensating FAILED write before the error propagates; the request is
// never left EXECUTING after Process returns.
func (s *Service) Process(ctx context.Context, requestID string) (*types.LiquidationRequest, error) {
	logger := log.With().
		Str("request_id", requestID).
		Str("service", "liquidation").
		Logger()

	request, err := s.db.GetRequest(requestID)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, fmt.Errorf("%w: request %s", types.ErrNotFound, requestID)
	}

	now := s.now()
	moved, err := s.db.TransitionStatus(requestID, types.StatusPending, types.StatusExecuting, now)
	if err != nil {
		return nil, fmt.Errorf("failed to transition request to executing: %w", err)
	}
	if !moved {
		logger.Warn().Str("status", request.Status).Msg("process rejected, request not pending")
		return nil, fmt.Errorf("%w: request is not pending", types.ErrInvalidOperation)
	}
	request.Status = types.StatusExecuting
	request.UpdatedAt = now

	logger.Info().Msg("processing liquidation request")

	if err := s.runPipeline(ctx, request); err != nil {
		s.markFailed(request, err.Error())
		return nil, err
	}

	return request, nil
}

// runPipeline executes the post-transition stages: compliance gate,
// pricing, provider selection and settlement stamping.
func (s *Service) runPipeline(ctx context.Context, request *types.LiquidationRequest) error {
	logger := log.With().
		Str("request_id", request.RequestID).
		Str("service", "liquidation").
		Logger()

	privacyCoin := false
	if rule, err := s.eligibility.GetEligibility(request.AssetSymbol); err == nil && rule != nil {
		privacyCoin = rule.PrivacyCoin
	}

	gateResult, err := s.gate.RunChecks(ctx, compliance.CheckInput{
		RequestID:   request.RequestID,
		UserID:      request.UserID,
		AssetSymbol: request.AssetSymbol,
		Amount:      request.Amount,
		PrivacyCoin: privacyCoin,
	})
	if err != nil {
		return fmt.Errorf("compliance gate error: %w", err)
	}
	if !gateResult.Approved {
		return errors.New(complianceFailedReason)
	}
	request.ComplianceApproved = true

	quote, err := s.quoter.GetPriceWithSlippage(request.AssetSymbol, request.OutputSymbol, request.Amount)
	if err != nil {
		return fmt.Errorf("pricing unavailable: %w", err)
	}
	if !quote.Suitable {
		return fmt.Errorf("price not suitable for liquidation: slippage %.2f%%", quote.EstimatedSlippage)
	}

	best, err := s.selector.FindBest(request.AssetSymbol, request.OutputSymbol, request.Amount)
	if err != nil {
		return err
	}

	feePercent := best.FeePercentage
	if feePercent == 0 {
		feePercent = defaultFeePercent
	}

	grossOutput := request.Amount * quote.Price
	fees := grossOutput * feePercent / 100
	netOutput := grossOutput - fees

	now := s.now()
	request.Status = types.StatusCompleted
	request.ProviderID = best.ProviderID
	request.ExchangeRate = quote.Price
	request.Fees = fees
	request.ActualOutput = netOutput
	request.TransactionRef = "TXN_" + uuid.New().String()
	request.CompletedAt = &now
	request.UpdatedAt = now

	if err := s.db.UpdateRequest(request); err != nil {
		return fmt.Errorf("failed to persist settlement: %w", err)
	}

	if err := s.selector.RecordOutcome(best.ProviderID, true, fees); err != nil {
		// Settlement already landed; counter drift is logged, not fatal
		log.Warn().Err(err).Str("provider_id", best.ProviderID).Msg("failed to record provider outcome")
	}

	logger.Info().
		Str("provider_id", best.ProviderID).
		Float64("exchange_rate", quote.Price).
		Float64("fees", fees).
		Float64("net_output", netOutput).
		Msg("liquidation request settled")

	return nil
}

// markFailed is the single compensation path: it persists the FAILED
// state with the captured reason before the error leaves the service.
// Settlement fields exist only on settled requests, so anything staged
// in memory before the failure is cleared.
func (s *Service) markFailed(request *types.LiquidationRequest, reason string) {
	now := s.now()
	request.Status = types.StatusFailed
	request.RejectionReason = reason
	request.ProviderID = ""
	request.TransactionRef = ""
	request.ExchangeRate = 0
	request.Fees = 0
	request.ActualOutput = 0
	request.CompletedAt = &now
	request.UpdatedAt = now

	if err := s.db.UpdateRequest(request); err != nil {
		log.Error().
			Err(err).
			Str("request_id", request.RequestID).
			Str("service", "liquidation").
			Msg("failed to persist failed request state")
		return
	}

	log.Info().
		Str("request_id", request.RequestID).
		Str("reason", reason).
		Str("service", "liquidation").
		Msg("liquidation request failed")
}

// Cancel aborts a pending or executing request on behalf of its owner.
func (s *Service) Cancel(requestID, userID, reason string) (*types.LiquidationRequest, error) {
	request, err := s.db.GetRequest(requestID)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, fmt.Errorf("%w: request %s", types.ErrNotFound, requestID)
	}
	if request.UserID != userID {
		return nil, fmt.Errorf("%w: request does not belong to caller", types.ErrInvalidOperation)
	}
	if request.Status != types.StatusPending && request.Status != types.StatusExecuting {
		return nil, fmt.Errorf("%w: cannot cancel request in status %s", types.ErrInvalidOperation, request.Status)
	}

	// Conditional write on the observed status so a cancel racing the
	// pipeline cannot clobber a request that just reached a terminal state
	now := s.now()
	moved, err := s.db.CancelTransition(request.RequestID, request.Status, reason, now)
	if err != nil {
		return nil, fmt.Errorf("failed to persist cancellation: %w", err)
	}
	if !moved {
		return nil, fmt.Errorf("%w: request state changed during cancellation", types.ErrInvalidOperation)
	}

	request.Status = types.StatusCancelled
	request.RejectionReason = reason
	request.CompletedAt = &now
	request.UpdatedAt = now

	log.Info().
		Str("request_id", requestID).
		Str("user_id", userID).
		Str("reason", reason).
		Str("service", "liquidation").
		Msg("liquidation request cancelled")

	return request, nil
}

// Retry resets a failed request to PENDING and immediately re-enters
// the pipeline.
func (s *Service) Retry(ctx context.Context, requestID string) (*types.LiquidationRequest, error) {
	request, err := s.db.GetRequest(requestID)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, fmt.Errorf("%w: request %s", types.ErrNotFound, requestID)
	}
	if request.Status != types.StatusFailed {
		return nil, fmt.Errorf("%w: only failed requests can be retried", types.ErrInvalidOperation)
	}

	request.Status = types.StatusPending
	request.RejectionReason = ""
	request.CompletedAt = nil
	request.UpdatedAt = s.now()

	if err := s.db.UpdateRequest(request); err != nil {
		return nil, fmt.Errorf("failed to reset request for retry: %w", err)
	}

	log.Info().
		Str("request_id", requestID).
		Str("service", "liquidation").
		Msg("retrying failed liquidation request")

	return s.Process(ctx, requestID)
}

// UpdateStatus is the generic transition entry point. Transitions not in
// the state machine table are rejected without mutating state.
func (s *Service) UpdateStatus(requestID, newStatus, reason, notes string) (*types.LiquidationRequest, error) {
	request, err := s.db.GetRequest(requestID)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, fmt.Errorf("%w: request %s", types.ErrNotFound, requestID)
	}
	if !types.CanTransition(request.Status, newStatus) {
		return nil, fmt.Errorf("%w: cannot transition from %s to %s", types.ErrInvalidOperation, request.Status, newStatus)
	}

	now := s.now()
	request.Status = newStatus
	request.UpdatedAt = now
	if reason != "" {
		request.RejectionReason = reason
	}
	if notes != "" {
		request.Notes = notes
	}
	switch newStatus {
	case types.StatusCompleted, types.StatusFailed, types.StatusCancelled:
		request.CompletedAt = &now
	case types.StatusPending:
		request.RejectionReason = ""
		request.CompletedAt = nil
	}

	if err := s.db.UpdateRequest(request); err != nil {
		return nil, fmt.Errorf("failed to persist status update: %w", err)
	}
	return request, nil
}

// Get returns a request scoped to its owner.
func (s *Service) Get(requestID, userID string) (*types.LiquidationRequest, error) {
	request, err := s.db.GetRequest(requestID)
	if err != nil {
		return nil, err
	}
	if request == nil || request.UserID != userID {
		return nil, fmt.Errorf("%w: request %s", types.ErrNotFound, requestID)
	}
	return request, nil
}

// List returns a filtered, paginated page of requests.
func (s *Service) List(filter types.RequestFilter) (*types.RequestPage, error) {
	requests, total, err := s.db.ListRequests(filter)
	if err != nil {
		return nil, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	return &types.RequestPage{
		Requests: requests,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// Estimate quotes a liquidation without persisting a request.
func (s *Service) Estimate(assetSymbol string, amount float64, outputSymbol string) (*types.EstimateResponse, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", types.ErrInvalidOperation)
	}

	quote, err := s.quoter.GetPriceWithSlippage(assetSymbol, outputSymbol, amount)
	if err != nil {
		return nil, fmt.Errorf("pricing unavailable: %w", err)
	}

	best, err := s.selector.FindBest(assetSymbol, outputSymbol, amount)
	if err != nil {
		return nil, err
	}

	feePercent := best.FeePercentage
	if feePercent == 0 {
		feePercent = defaultFeePercent
	}

	grossOutput := amount * quote.Price
	fees := grossOutput * feePercent / 100

	return &types.EstimateResponse{
		AssetSymbol:     assetSymbol,
		Amount:          amount,
		OutputSymbol:    outputSymbol,
		Price:           quote.Price,
		GrossOutput:     grossOutput,
		Fees:            fees,
		NetOutput:       grossOutput - fees,
		SlippagePercent: quote.EstimatedSlippage,
		ProviderID:      best.ProviderID,
		ProviderName:    best.Name,
		QuoteExpiresAt:  quote.ExpiresAt,
	}, nil
}
