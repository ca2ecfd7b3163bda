package eligibility

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"liquidation-api/internal/types"
	"liquidation-api/pkg/response"
)

// Service answers whether an asset may be liquidated at a given amount,
// backed by a keyed rule table maintained by operators.
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

// IsEligible reports whether the asset can be liquidated at this amount
// for this user and country. Assets without a rule are not eligible.
func (s *Service) IsEligible(assetSymbol string, amount float64, userID, country string) (bool, error) {
	logger := log.With().
		Str("asset", assetSymbol).
		Float64("amount", amount).
		Str("user_id", userID).
		Str("service", "eligibility").
		Logger()

	rule, err := s.db.GetRule(assetSymbol)
	if err != nil {
		logger.Error().Err(err).Msg("failed to fetch eligibility rule")
		return false, fmt.Errorf("failed to fetch eligibility rule: %w", err)
	}
	if rule == nil || !rule.Enabled {
		logger.Debug().Bool("rule_exists", rule != nil).Msg("asset not enabled for liquidation")
		return false, nil
	}

	if rule.MinAmount > 0 && amount < rule.MinAmount {
		logger.Debug().Float64("min_amount", rule.MinAmount).Msg("amount below minimum")
		return false, nil
	}
	if rule.MaxAmount > 0 && amount > rule.MaxAmount {
		logger.Debug().Float64("max_amount", rule.MaxAmount).Msg("amount above maximum")
		return false, nil
	}

	if country != "" && rule.BlockedCountries != "" {
		for _, blocked := range strings.Split(rule.BlockedCountries, ",") {
			if strings.EqualFold(strings.TrimSpace(blocked), country) {
				logger.Info().Str("country", country).Msg("country blocked for asset")
				return false, nil
			}
		}
	}

	return true, nil
}

// GetEligibility returns the rule record for an asset, or nil when the
// asset has no rule.
func (s *Service) GetEligibility(assetSymbol string) (*types.AssetEligibility, error) {
	return s.db.GetRule(assetSymbol)
}

// UpsertRule creates or replaces the rule for an asset.
func (s *Service) UpsertRule(rule *types.AssetEligibility) (*types.AssetEligibility, error) {
	if rule.AssetSymbol == "" {
		return nil, fmt.Errorf("%w: asset symbol is required", types.ErrInvalidOperation)
	}
	if rule.RiskLevel == "" {
		rule.RiskLevel = types.RiskLow
	}

	existing, err := s.db.GetRule(rule.AssetSymbol)
	if err != nil {
		return nil, err
	}

	now := s.now()
	rule.UpdatedAt = now
	if existing != nil {
		rule.Model = existing.Model
		rule.CreatedAt = existing.CreatedAt
		if err := s.db.UpdateRule(rule); err != nil {
			return nil, fmt.Errorf("failed to update eligibility rule: %w", err)
		}
	} else {
		rule.CreatedAt = now
		if err := s.db.CreateRule(rule); err != nil {
			return nil, fmt.Errorf("failed to create eligibility rule: %w", err)
		}
	}

	log.Info().
		Str("asset", rule.AssetSymbol).
		Bool("enabled", rule.Enabled).
		Str("risk_level", rule.RiskLevel).
		Str("service", "eligibility").
		Msg("upserted eligibility rule")

	return rule, nil
}

// GinHandlers contains HTTP handlers for eligibility endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// UpsertRuleHandler handles PUT requests to create or replace a rule
func (h *GinHandlers) UpsertRuleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var rule types.AssetEligibility
		if err := c.ShouldBindJSON(&rule); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		saved, err := h.service.UpsertRule(&rule)
		response.Handle(c, saved, err)
	}
}

// GetRuleHandler handles GET requests for a single asset rule
func (h *GinHandlers) GetRuleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rule, err := h.service.GetEligibility(c.Param("asset"))
		if err == nil && rule == nil {
			response.NotFound(c, "No eligibility rule for asset")
			return
		}
		response.Handle(c, rule, err)
	}
}

// ListRulesHandler handles GET requests for all rules
func (h *GinHandlers) ListRulesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rules, err := h.service.db.ListRules()
		response.Handle(c, rules, err)
	}
}
