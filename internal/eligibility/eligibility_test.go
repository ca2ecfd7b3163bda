package eligibility

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"liquidation-api/internal/types"
)

func testService(t *testing.T) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&types.AssetEligibility{}))
	return NewService(db)
}

func TestIsEligible(t *testing.T) {
	svc := testService(t)

	_, err := svc.UpsertRule(&types.AssetEligibility{
		AssetSymbol:      "BTC",
		Enabled:          true,
		MinAmount:        0.01,
		MaxAmount:        100,
		BlockedCountries: "KP, IR",
	})
	require.NoError(t, err)
	_, err = svc.UpsertRule(&types.AssetEligibility{AssetSymbol: "DOGE", Enabled: false})
	require.NoError(t, err)

	tests := []struct {
		name     string
		asset    string
		amount   float64
		country  string
		eligible bool
	}{
		{"within bounds", "BTC", 1, "US", true},
		{"at minimum", "BTC", 0.01, "US", true},
		{"below minimum", "BTC", 0.001, "US", false},
		{"at maximum", "BTC", 100, "US", true},
		{"above maximum", "BTC", 101, "US", false},
		{"blocked country", "BTC", 1, "KP", false},
		{"blocked country case insensitive", "BTC", 1, "ir", false},
		{"empty country skips the block list", "BTC", 1, "", true},
		{"disabled asset", "DOGE", 1, "US", false},
		{"no rule at all", "SHIB", 1, "US", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := svc.IsEligible(tt.asset, tt.amount, "user-1", tt.country)
			require.NoError(t, err)
			assert.Equal(t, tt.eligible, ok)
		})
	}
}

func TestUpsertRuleReplacesExisting(t *testing.T) {
	svc := testService(t)

	created, err := svc.UpsertRule(&types.AssetEligibility{AssetSymbol: "ETH", Enabled: true, MinAmount: 0.1})
	require.NoError(t, err)

	updated, err := svc.UpsertRule(&types.AssetEligibility{
		AssetSymbol:      "ETH",
		Enabled:          true,
		MinAmount:        0.5,
		RiskLevel:        types.RiskMedium,
		RequiresMultiSig: true,
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)

	rule, err := svc.GetEligibility("ETH")
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, 0.5, rule.MinAmount)
	assert.Equal(t, types.RiskMedium, rule.RiskLevel)
	assert.True(t, rule.RequiresMultiSig)
}

func TestUpsertRuleDefaults(t *testing.T) {
	svc := testService(t)

	rule, err := svc.UpsertRule(&types.AssetEligibility{AssetSymbol: "SOL", Enabled: true})
	require.NoError(t, err)
	assert.Equal(t, types.RiskLow, rule.RiskLevel)

	_, err = svc.UpsertRule(&types.AssetEligibility{})
	assert.ErrorIs(t, err, types.ErrInvalidOperation)
}

func TestGetEligibilityUnknownAsset(t *testing.T) {
	svc := testService(t)

	rule, err := svc.GetEligibility("UNKNOWN")
	require.NoError(t, err)
	assert.Nil(t, rule)
}
