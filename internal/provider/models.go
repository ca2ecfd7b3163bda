package provider

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	StatusPending   = "PENDING"
	StatusActive    = "ACTIVE"
	StatusSuspended = "SUSPENDED"
)

// LiquidityProvider is a counterparty capable of executing a liquidation.
// Registration starts PENDING; only ACTIVE and available providers are
// selectable.
type LiquidityProvider struct {
	gorm.Model              `json:"-"`
	ProviderID              string    `gorm:"uniqueIndex" json:"provider_id"`
	OwnerID                 string    `json:"owner_id"`
	Name                    string    `json:"name"`
	ContactEmail            string    `json:"contact_email,omitempty"`
	Status                  string    `gorm:"index" json:"status"` // PENDING, ACTIVE, SUSPENDED
	MinTransactionAmount    float64   `json:"min_transaction_amount"`
	MaxTransactionAmount    float64   `json:"max_transaction_amount"` // 0 means no upper bound
	SupportedAssets         string    `json:"supported_assets,omitempty"`     // comma separated, empty means all
	SupportedCurrencies     string    `json:"supported_currencies,omitempty"` // comma separated, empty means all
	FeePercentage           float64   `json:"fee_percentage"`
	Rating                  float64   `json:"rating"`
	AvgResponseTimeSeconds  float64   `json:"avg_response_time_seconds"`
	Available               bool      `json:"available"`
	SuccessfulLiquidations  int64     `json:"successful_liquidations"`
	FailedLiquidations      int64     `json:"failed_liquidations"`
	TotalFeesEarned         float64   `json:"total_fees_earned"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// SupportsAsset reports whether the provider handles the asset. An empty
// list means no restriction.
func (p *LiquidityProvider) SupportsAsset(symbol string) bool {
	return supportsSymbol(p.SupportedAssets, symbol)
}

// SupportsCurrency reports whether the provider pays out in the currency.
func (p *LiquidityProvider) SupportsCurrency(symbol string) bool {
	return supportsSymbol(p.SupportedCurrencies, symbol)
}

// WithinBounds reports whether amount falls inside the provider's
// [min, max] transaction bounds. Unset bounds do not constrain.
func (p *LiquidityProvider) WithinBounds(amount float64) bool {
	if p.MinTransactionAmount > 0 && amount < p.MinTransactionAmount {
		return false
	}
	if p.MaxTransactionAmount > 0 && amount > p.MaxTransactionAmount {
		return false
	}
	return true
}

func supportsSymbol(list, symbol string) bool {
	if strings.TrimSpace(list) == "" {
		return true
	}
	for _, s := range strings.Split(list, ",") {
		if strings.EqualFold(strings.TrimSpace(s), symbol) {
			return true
		}
	}
	return false
}
