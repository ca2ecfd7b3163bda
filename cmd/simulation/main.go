package main

import (
	"context"
	"math/rand"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"liquidation-api/internal/compliance"
	"liquidation-api/internal/database"
	"liquidation-api/internal/eligibility"
	"liquidation-api/internal/liquidation"
	"liquidation-api/internal/pricing"
	"liquidation-api/internal/provider"
	"liquidation-api/internal/types"
)

const numRequests = 25

var (
	assets  = []string{"BTC", "ETH", "SOL", "XMR"}
	outputs = []string{"USD", "USDT", "EUR"}
	users   = []string{"user-alice", "user-bob", "user-carol"}
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// main drives the full liquidation pipeline in process: it seeds
// eligibility rules and providers, creates a batch of requests, runs
// them through the orchestrator and exercises the cancel and retry
// paths.
func main() {
	db, err := gorm.Open(sqlite.Open("simulation.db"), &gorm.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open simulation database")
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate simulation database")
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	eligibilityService := eligibility.NewService(db)
	pricingService := pricing.NewService(db, pricing.NewSimulatedSource(rng))
	providerService := provider.NewService(db)
	complianceService := compliance.NewService(db, compliance.DefaultCheckers(rng))
	liquidationService := liquidation.NewService(db, eligibilityService, complianceService, pricingService, providerService)

	seedEligibilityRules(eligibilityService)
	seedProviders(providerService)

	ctx := context.Background()

	var completed, failed, cancelled int
	var failedIDs []string

	for i := 0; i < numRequests; i++ {
		asset := assets[rng.Intn(len(assets))]
		user := users[rng.Intn(len(users))]
		amount := float64(1+rng.Intn(2000)) / 10

		request, err := liquidationService.Create(liquidation.CreateParams{
			UserID:       user,
			AssetSymbol:  asset,
			Amount:       amount,
			OutputType:   "FIAT",
			OutputSymbol: outputs[rng.Intn(len(outputs))],
			Destination:  "acct-" + user,
		}, "")
		if err != nil {
			log.Warn().Err(err).Str("asset", asset).Msg("request rejected at intake")
			continue
		}

		// Cancel a slice of requests before processing to exercise that path
		if rng.Float64() < 0.1 {
			if _, err := liquidationService.Cancel(request.RequestID, user, "user changed their mind"); err == nil {
				cancelled++
				continue
			}
		}

		processed, err := liquidationService.Process(ctx, request.RequestID)
		if err != nil {
			failed++
			failedIDs = append(failedIDs, request.RequestID)
			continue
		}
		if processed.Status == types.StatusCompleted {
			completed++
		}
	}

	// Retry everything that failed; some will clear compliance this time
	var retried int
	for _, id := range failedIDs {
		if _, err := liquidationService.Retry(ctx, id); err == nil {
			retried++
		}
	}

	log.Info().
		Int("requests", numRequests).
		Int("completed", completed).
		Int("failed", failed).
		Int("retried_to_completion", retried).
		Int("cancelled", cancelled).
		Msg("simulation finished")
}

func seedEligibilityRules(svc *eligibility.Service) {
	rules := []types.AssetEligibility{
		{AssetSymbol: "BTC", Enabled: true, MinAmount: 0.001, RiskLevel: types.RiskLow},
		{AssetSymbol: "ETH", Enabled: true, MinAmount: 0.01, RiskLevel: types.RiskLow},
		{AssetSymbol: "SOL", Enabled: true, MinAmount: 0.1, RiskLevel: types.RiskMedium},
		{AssetSymbol: "XMR", Enabled: true, MinAmount: 0.1, RiskLevel: types.RiskHigh, RequiresMultiSig: true, PrivacyCoin: true},
	}
	for i := range rules {
		if _, err := svc.UpsertRule(&rules[i]); err != nil {
			log.Fatal().Err(err).Str("asset", rules[i].AssetSymbol).Msg("failed to seed eligibility rule")
		}
	}
}

func seedProviders(svc *provider.Service) {
	registrations := []provider.RegistrationRequest{
		{OwnerID: "op-1", Name: "Global Liquidity Partners", FeePercentage: 0.5, AvgResponseTimeSeconds: 2.5},
		{OwnerID: "op-2", Name: "FastBlock OTC", FeePercentage: 0.8, AvgResponseTimeSeconds: 1.2, MinTransactionAmount: 10},
		{OwnerID: "op-3", Name: "Harbor Digital Markets", FeePercentage: 0.4, AvgResponseTimeSeconds: 4.0, SupportedAssets: "BTC,ETH"},
	}
	for i := range registrations {
		p, err := svc.Register(&registrations[i])
		if err != nil {
			log.Fatal().Err(err).Msg("failed to register provider")
		}
		if _, err := svc.SetStatus(p.ProviderID, provider.StatusActive); err != nil {
			log.Fatal().Err(err).Msg("failed to activate provider")
		}
		if _, err := svc.SetAvailability(p.ProviderID, true); err != nil {
			log.Fatal().Err(err).Msg("failed to set provider availability")
		}
	}
}
