package provider

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"liquidation-api/internal/types"
	"liquidation-api/pkg/response"
)

// Service manages the liquidity provider registry and selects the best
// provider for a liquidation.
type Service struct {
	db  *Database
	now func() time.Time
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db:  NewDatabase(gormDB),
		now: time.Now,
	}
}

// RegistrationRequest carries the fields a provider submits on signup.
type RegistrationRequest struct {
	OwnerID                string  `json:"owner_id" binding:"required"`
	Name                   string  `json:"name" binding:"required"`
	ContactEmail           string  `json:"contact_email"`
	MinTransactionAmount   float64 `json:"min_transaction_amount"`
	MaxTransactionAmount   float64 `json:"max_transaction_amount"`
	SupportedAssets        string  `json:"supported_assets"`
	SupportedCurrencies    string  `json:"supported_currencies"`
	FeePercentage          float64 `json:"fee_percentage"`
	AvgResponseTimeSeconds float64 `json:"avg_response_time_seconds"`
}

// Register creates a new provider in PENDING status.
func (s *Service) Register(req *RegistrationRequest) (*LiquidityProvider, error) {
	if req.FeePercentage < 0 {
		return nil, fmt.Errorf("%w: fee percentage cannot be negative", types.ErrInvalidOperation)
	}
	if req.MaxTransactionAmount > 0 && req.MaxTransactionAmount < req.MinTransactionAmount {
		return nil, fmt.Errorf("%w: max transaction amount below min", types.ErrInvalidOperation)
	}

	now := s.now()
	provider := &LiquidityProvider{
		ProviderID:             "LP_" + uuid.New().String(),
		OwnerID:                req.OwnerID,
		Name:                   req.Name,
		ContactEmail:           req.ContactEmail,
		Status:                 StatusPending,
		MinTransactionAmount:   req.MinTransactionAmount,
		MaxTransactionAmount:   req.MaxTransactionAmount,
		SupportedAssets:        req.SupportedAssets,
		SupportedCurrencies:    req.SupportedCurrencies,
		FeePercentage:          req.FeePercentage,
		AvgResponseTimeSeconds: req.AvgResponseTimeSeconds,
		Available:              false,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	if err := s.db.CreateProvider(provider); err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	log.Info().
		Str("provider_id", provider.ProviderID).
		Str("name", provider.Name).
		Float64("fee_percentage", provider.FeePercentage).
		Str("service", "provider").
		Msg("registered new liquidity provider")

	return provider, nil
}

// SetStatus moves a provider between PENDING, ACTIVE and SUSPENDED.
func (s *Service) SetStatus(providerID, status string) (*LiquidityProvider, error) {
	if status != StatusPending && status != StatusActive && status != StatusSuspended {
		return nil, fmt.Errorf("%w: unknown provider status %s", types.ErrInvalidOperation, status)
	}

	provider, err := s.db.GetProvider(providerID)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, fmt.Errorf("%w: provider %s", types.ErrNotFound, providerID)
	}

	provider.Status = status
	provider.UpdatedAt = s.now()
	if err := s.db.UpdateProvider(provider); err != nil {
		return nil, fmt.Errorf("failed to update provider status: %w", err)
	}

	log.Info().
		Str("provider_id", providerID).
		Str("status", status).
		Str("service", "provider").
		Msg("updated provider status")

	return provider, nil
}

// SetAvailability toggles whether the provider currently has liquidity.
// Availability is independent of status.
func (s *Service) SetAvailability(providerID string, available bool) (*LiquidityProvider, error) {
	provider, err := s.db.GetProvider(providerID)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, fmt.Errorf("%w: provider %s", types.ErrNotFound, providerID)
	}

	provider.Available = available
	provider.UpdatedAt = s.now()
	if err := s.db.UpdateProvider(provider); err != nil {
		return nil, fmt.Errorf("failed to update provider availability: %w", err)
	}
	return provider, nil
}

// FindBest returns the single best provider for the pair and amount:
// active, available, supporting both symbols, amount within bounds,
// ranked by fee ascending, then rating descending, then response time
// ascending. An empty result is a hard stop for the orchestrator.
func (s *Service) FindBest(assetSymbol, outputSymbol string, amount float64) (*LiquidityProvider, error) {
	logger := log.With().
		Str("asset", assetSymbol).
		Str("output", outputSymbol).
		Float64("amount", amount).
		Str("service", "provider").
		Logger()

	candidates, err := s.db.GetSelectableProviders()
	if err != nil {
		logger.Error().Err(err).Msg("failed to fetch selectable providers")
		return nil, fmt.Errorf("failed to fetch selectable providers: %w", err)
	}

	for i := range candidates {
		p := &candidates[i]
		if !p.SupportsAsset(assetSymbol) || !p.SupportsCurrency(outputSymbol) {
			continue
		}
		if !p.WithinBounds(amount) {
			continue
		}

		logger.Info().
			Str("provider_id", p.ProviderID).
			Str("name", p.Name).
			Float64("fee_percentage", p.FeePercentage).
			Float64("rating", p.Rating).
			Msg("selected liquidity provider")
		return p, nil
	}

	logger.Warn().Int("candidates", len(candidates)).Msg("no eligible provider for request")
	return nil, fmt.Errorf("%w: no eligible provider", types.ErrInvalidOperation)
}

// RecordOutcome updates a provider's usage counters after a settlement
// attempt.
func (s *Service) RecordOutcome(providerID string, success bool, feesEarned float64) error {
	provider, err := s.db.GetProvider(providerID)
	if err != nil {
		return err
	}
	if provider == nil {
		return fmt.Errorf("%w: provider %s", types.ErrNotFound, providerID)
	}

	if success {
		provider.SuccessfulLiquidations++
		provider.TotalFeesEarned += feesEarned
	} else {
		provider.FailedLiquidations++
	}
	provider.UpdatedAt = s.now()

	return s.db.UpdateProvider(provider)
}

// GinHandlers contains HTTP handlers for provider endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// RegisterProviderHandler handles POST requests to register providers
func (h *GinHandlers) RegisterProviderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegistrationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		provider, err := h.service.Register(&req)
		response.Handle(c, provider, err)
	}
}

// UpdateProviderStatusHandler handles PUT requests to change provider status
func (h *GinHandlers) UpdateProviderStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		providerID := c.Param("provider_id")

		var req struct {
			Status string `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		provider, err := h.service.SetStatus(providerID, req.Status)
		response.Handle(c, provider, err)
	}
}

// UpdateAvailabilityHandler handles PUT requests to toggle availability
func (h *GinHandlers) UpdateAvailabilityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		providerID := c.Param("provider_id")

		var req struct {
			Available *bool `json:"available" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		provider, err := h.service.SetAvailability(providerID, *req.Available)
		response.Handle(c, provider, err)
	}
}

// ListProvidersHandler handles GET requests to list all providers
func (h *GinHandlers) ListProvidersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		providers, err := h.service.db.ListProviders()
		response.Handle(c, providers, err)
	}
}
