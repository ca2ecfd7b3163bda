package types

import (
	"time"

	"gorm.io/gorm"
)

// LiquidationRequest is the unit of work flowing through the pipeline.
// It is created on intake and mutated exclusively by the orchestrator
// as the pipeline advances; terminal requests are marked, never deleted.
type LiquidationRequest struct {
	gorm.Model           `json:"-"`
	RequestID            string     `gorm:"uniqueIndex" json:"request_id"`
	UserID               string     `gorm:"index" json:"user_id"`
	AssetSymbol          string     `gorm:"index" json:"asset_symbol"`
	Amount               float64    `json:"amount"`
	OutputType           string     `json:"output_type"` // FIAT or CRYPTO
	OutputSymbol         string     `json:"output_symbol"`
	Destination          string     `json:"destination"`
	Status               string     `gorm:"index" json:"status"` // PENDING, EXECUTING, COMPLETED, FAILED, CANCELLED
	MarketPriceAtRequest float64    `json:"market_price_at_request"`
	EstimatedOutput      float64    `json:"estimated_output"`
	ActualOutput         float64    `json:"actual_output"`
	Fees                 float64    `json:"fees"`
	ExchangeRate         float64    `json:"exchange_rate"`
	ProviderID           string     `json:"provider_id,omitempty"`
	TransactionRef       string     `json:"transaction_ref,omitempty"`
	ComplianceApproved   bool       `json:"compliance_approved"`
	RiskLevel            string     `json:"risk_level"`
	RequiresMultiSig     bool       `json:"requires_multi_sig"`
	Notes                string     `json:"notes,omitempty"`
	RejectionReason      string     `json:"rejection_reason,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	ExpiresAt            time.Time  `json:"expires_at"`
}

// AssetEligibility is the rule record controlling which assets may be
// liquidated, at what sizes, and with what handling requirements.
type AssetEligibility struct {
	gorm.Model       `json:"-"`
	AssetSymbol      string    `gorm:"uniqueIndex" json:"asset_symbol"`
	Enabled          bool      `json:"enabled"`
	MinAmount        float64   `json:"min_amount"`
	MaxAmount        float64   `json:"max_amount"` // 0 means no upper bound
	BlockedCountries string    `json:"blocked_countries,omitempty"` // comma separated ISO codes
	RiskLevel        string    `json:"risk_level"`
	RequiresMultiSig bool      `json:"requires_multi_sig"`
	PrivacyCoin      bool      `json:"privacy_coin"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// IdempotencyRecord maps an idempotency key to a created resource so
// repeated creates return the original resource.
type IdempotencyRecord struct {
	gorm.Model     `json:"-"`
	IdempotencyKey string    `gorm:"uniqueIndex" json:"idempotency_key"`
	ResourceID     string    `json:"resource_id"`
	ResourceType   string    `json:"resource_type"`
	ExpiresAt      time.Time `json:"expires_at"`
}
