package pricing

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"liquidation-api/pkg/response"
)

const (
	// Freshness windows for persisted snapshots
	baseSnapshotTTL     = 5 * time.Minute
	slippageSnapshotTTL = 2 * time.Minute

	// Quotes with slippage beyond this are marked unsuitable for liquidation
	maxSuitableSlippage = 5.0

	minConfidence = 70
)

// Service produces current and slippage-adjusted prices for asset pairs
// and owns snapshot caching and expiry.
type Service struct {
	db     *Database
	source PriceSource
	now    func() time.Time
	newID  func() string
}

func NewService(gormDB *gorm.DB, source PriceSource) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		source: source,
		now:    time.Now,
		newID:  func() string { return "SNAP_" + uuid.New().String() },
	}
}

// WithClock overrides the service clock. Used by tests and callers that
// need reproducible expiry behavior.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// SlippagePercent maps a requested amount to its slippage tier. The
// function is a monotonically non-decreasing step function of amount.
func SlippagePercent(amount float64) float64 {
	switch {
	case amount <= 1_000:
		return 0.1
	case amount <= 10_000:
		return 0.3
	case amount <= 50_000:
		return 0.8
	case amount <= 100_000:
		return 1.5
	case amount <= 500_000:
		return 3.0
	case amount <= 1_000_000:
		return 5.0
	default:
		return 8.0
	}
}

// GetCurrentPrice returns the latest unexpired snapshot for the pair,
// synthesizing and persisting a new one from the price source when the
// cache is stale. Two callers racing on a stale pair may both write a
// snapshot; last write wins.
func (s *Service) GetCurrentPrice(assetSymbol, outputSymbol string) (*MarketPriceSnapshot, error) {
	logger := log.With().
		Str("asset", assetSymbol).
		Str("output", outputSymbol).
		Str("service", "pricing").
		Logger()

	cached, err := s.db.GetLatestUnexpired(assetSymbol, outputSymbol, s.now())
	if err != nil {
		logger.Error().Err(err).Msg("failed to query cached snapshot")
		return nil, fmt.Errorf("failed to query cached snapshot: %w", err)
	}
	if cached != nil {
		logger.Debug().
			Str("snapshot_id", cached.SnapshotID).
			Float64("price", cached.Price).
			Time("expires_at", cached.ExpiresAt).
			Msg("returning cached price snapshot")
		return cached, nil
	}

	quote, err := s.source.Quote(assetSymbol, outputSymbol)
	if err != nil {
		logger.Error().Err(err).Msg("price source quote failed")
		return nil, fmt.Errorf("price source quote failed: %w", err)
	}

	now := s.now()
	snapshot := &MarketPriceSnapshot{
		SnapshotID:       s.newID(),
		AssetSymbol:      assetSymbol,
		OutputSymbol:     outputSymbol,
		Price:            quote.Price,
		Bid:              quote.Bid,
		Ask:              quote.Ask,
		Volume24h:        quote.Volume24h,
		ChangePercent24h: quote.ChangePercent24h,
		Confidence:       quote.Confidence,
		Suitable:         true,
		Source:           quote.Source,
		CreatedAt:        now,
		ExpiresAt:        now.Add(baseSnapshotTTL),
	}

	if err := s.db.CreateSnapshot(snapshot); err != nil {
		logger.Error().Err(err).Msg("failed to persist price snapshot")
		return nil, fmt.Errorf("failed to persist price snapshot: %w", err)
	}

	logger.Info().
		Str("snapshot_id", snapshot.SnapshotID).
		Str("source", snapshot.Source).
		Float64("price", snapshot.Price).
		Int("confidence", snapshot.Confidence).
		Msg("created price snapshot")

	return snapshot, nil
}

// GetPriceWithSlippage folds size-dependent slippage into the current
// price and persists a short-lived adjusted snapshot.
func (s *Service) GetPriceWithSlippage(assetSymbol, outputSymbol string, amount float64) (*MarketPriceSnapshot, error) {
	base, err := s.GetCurrentPrice(assetSymbol, outputSymbol)
	if err != nil {
		return nil, err
	}
	return s.adjustForSlippage(base.Price, base.Confidence, base.Source, assetSymbol, outputSymbol, amount)
}

func (s *Service) adjustForSlippage(price float64, confidence int, source, assetSymbol, outputSymbol string, amount float64) (*MarketPriceSnapshot, error) {
	logger := log.With().
		Str("asset", assetSymbol).
		Str("output", outputSymbol).
		Float64("amount", amount).
		Str("service", "pricing").
		Logger()

	slippage := SlippagePercent(amount)
	adjustedPrice := price * (1 - slippage/100)

	adjustedConfidence := confidence - 10
	if adjustedConfidence < minConfidence {
		adjustedConfidence = minConfidence
	}

	now := s.now()
	snapshot := &MarketPriceSnapshot{
		SnapshotID:        s.newID(),
		AssetSymbol:       assetSymbol,
		OutputSymbol:      outputSymbol,
		Price:             adjustedPrice,
		Bid:               adjustedPrice,
		Ask:               adjustedPrice,
		Confidence:        adjustedConfidence,
		Suitable:          slippage <= maxSuitableSlippage,
		EstimatedSlippage: slippage,
		SlippageAdjusted:  true,
		Source:            source,
		CreatedAt:         now,
		ExpiresAt:         now.Add(slippageSnapshotTTL),
	}

	if err := s.db.CreateSnapshot(snapshot); err != nil {
		logger.Error().Err(err).Msg("failed to persist slippage-adjusted snapshot")
		return nil, fmt.Errorf("failed to persist slippage-adjusted snapshot: %w", err)
	}

	logger.Debug().
		Str("snapshot_id", snapshot.SnapshotID).
		Float64("base_price", price).
		Float64("adjusted_price", adjustedPrice).
		Float64("slippage_percent", slippage).
		Bool("suitable", snapshot.Suitable).
		Msg("applied slippage adjustment")

	return snapshot, nil
}

// ValidatePriceForLiquidation reports whether a slippage-adjusted quote
// for the pair and amount is good enough to settle against.
func (s *Service) ValidatePriceForLiquidation(assetSymbol, outputSymbol string, amount, maxSlippage float64) (bool, error) {
	if maxSlippage <= 0 {
		maxSlippage = maxSuitableSlippage
	}

	snapshot, err := s.GetPriceWithSlippage(assetSymbol, outputSymbol, amount)
	if err != nil {
		return false, err
	}

	ok := snapshot.Suitable &&
		snapshot.EstimatedSlippage <= maxSlippage &&
		snapshot.Confidence >= minConfidence
	return ok, nil
}

// GetBestPrice queries every simulated source, prefers quotes clearing
// the confidence bar by maximizing price weighted by confidence, falls
// back to the highest raw price, then applies the slippage adjustment
// for the requested amount.
func (s *Service) GetBestPrice(assetSymbol, outputSymbol string, amount float64) (*MarketPriceSnapshot, error) {
	logger := log.With().
		Str("asset", assetSymbol).
		Str("output", outputSymbol).
		Str("service", "pricing").
		Logger()

	quotes, err := s.source.Quotes(assetSymbol, outputSymbol)
	if err != nil {
		logger.Error().Err(err).Msg("failed to fetch source quotes")
		return nil, fmt.Errorf("failed to fetch source quotes: %w", err)
	}
	if len(quotes) == 0 {
		return nil, fmt.Errorf("no price sources available for %s/%s", assetSymbol, outputSymbol)
	}

	var best *SourceQuote
	bestScore := -1.0
	for i := range quotes {
		q := &quotes[i]
		if q.Confidence < minConfidence {
			continue
		}
		score := q.Price * float64(q.Confidence) / 100
		if score > bestScore {
			best = q
			bestScore = score
		}
	}

	if best == nil {
		// No source cleared the confidence bar; take the highest raw price
		best = &quotes[0]
		for i := range quotes {
			if quotes[i].Price > best.Price {
				best = &quotes[i]
			}
		}
		logger.Warn().
			Str("source", best.Source).
			Int("confidence", best.Confidence).
			Msg("no source cleared confidence bar, falling back to highest raw price")
	}

	logger.Info().
		Str("source", best.Source).
		Float64("price", best.Price).
		Int("confidence", best.Confidence).
		Int("sources_queried", len(quotes)).
		Msg("selected best price source")

	return s.adjustForSlippage(best.Price, best.Confidence, best.Source, assetSymbol, outputSymbol, amount)
}

// GinHandlers contains HTTP handlers for pricing endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// GetPriceHandler handles GET requests for a current pair price.
// An optional amount query parameter returns the slippage-adjusted quote.
func (h *GinHandlers) GetPriceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		assetSymbol := c.Param("asset")
		outputSymbol := c.Param("output")

		if amountParam := c.Query("amount"); amountParam != "" {
			amount, err := strconv.ParseFloat(amountParam, 64)
			if err != nil || amount <= 0 {
				response.BadRequest(c, "amount must be a positive number")
				return
			}
			snapshot, err := h.service.GetPriceWithSlippage(assetSymbol, outputSymbol, amount)
			response.Handle(c, snapshot, err)
			return
		}

		snapshot, err := h.service.GetCurrentPrice(assetSymbol, outputSymbol)
		response.Handle(c, snapshot, err)
	}
}

// GetBestPriceHandler handles GET requests for the best multi-source price.
func (h *GinHandlers) GetBestPriceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		assetSymbol := c.Param("asset")
		outputSymbol := c.Param("output")

		amount, err := strconv.ParseFloat(c.Query("amount"), 64)
		if err != nil || amount <= 0 {
			response.BadRequest(c, "amount must be a positive number")
			return
		}

		snapshot, err := h.service.GetBestPrice(assetSymbol, outputSymbol, amount)
		response.Handle(c, snapshot, err)
	}
}
