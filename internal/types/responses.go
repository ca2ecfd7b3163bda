package types

import "time"

// EstimateResponse is the quote returned by the estimate endpoint.
// Nothing is persisted when producing it.
type EstimateResponse struct {
	AssetSymbol     string    `json:"asset_symbol"`
	Amount          float64   `json:"amount"`
	OutputSymbol    string    `json:"output_symbol"`
	Price           float64   `json:"price"`
	GrossOutput     float64   `json:"gross_output"`
	Fees            float64   `json:"fees"`
	NetOutput       float64   `json:"net_output"`
	SlippagePercent float64   `json:"slippage_percent"`
	ProviderID      string    `json:"provider_id,omitempty"`
	ProviderName    string    `json:"provider_name,omitempty"`
	QuoteExpiresAt  time.Time `json:"quote_expires_at"`
}

// RequestPage is a paginated listing of liquidation requests.
type RequestPage struct {
	Requests []LiquidationRequest `json:"requests"`
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
}

// RequestFilter narrows list queries. Zero values mean "no constraint".
type RequestFilter struct {
	UserID       string
	AssetSymbol  string
	OutputSymbol string
	Status       string
	ProviderID   string
	MinAmount    float64
	MaxAmount    float64
	CreatedFrom  time.Time
	CreatedTo    time.Time
	SortDesc     bool
	Page         int
	PageSize     int
}
