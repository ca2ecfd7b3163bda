package pricing

import (
	"time"

	"gorm.io/gorm"
)

// MarketPriceSnapshot is a priced quote for an asset pair at a point in
// time. Base snapshots stay usable for five minutes; slippage-adjusted
// snapshots carry a shorter two-minute window.
type MarketPriceSnapshot struct {
	gorm.Model        `json:"-"`
	SnapshotID        string    `gorm:"uniqueIndex" json:"snapshot_id"`
	AssetSymbol       string    `gorm:"index" json:"asset_symbol"`
	OutputSymbol      string    `gorm:"index" json:"output_symbol"`
	Price             float64   `json:"price"`
	Bid               float64   `json:"bid"`
	Ask               float64   `json:"ask"`
	Volume24h         float64   `json:"volume_24h"`
	ChangePercent24h  float64   `json:"change_percent_24h"`
	Confidence        int       `json:"confidence"` // 0-100
	Suitable          bool      `json:"suitable"`
	EstimatedSlippage float64   `json:"estimated_slippage"`
	SlippageAdjusted  bool      `json:"slippage_adjusted"`
	Source            string    `json:"source"`
	CreatedAt         time.Time `json:"created_at"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// SourceQuote is a raw quote from a single price source, before any
// snapshot bookkeeping or slippage adjustment.
type SourceQuote struct {
	Source           string  `json:"source"`
	Price            float64 `json:"price"`
	Bid              float64 `json:"bid"`
	Ask              float64 `json:"ask"`
	Volume24h        float64 `json:"volume_24h"`
	ChangePercent24h float64 `json:"change_percent_24h"`
	Confidence       int     `json:"confidence"`
}
