package pricing

import (
	"fmt"
	"math/rand"
	"strings"
)

// PriceSource supplies raw market quotes. Production wires a real market
// data feed behind this interface; the simulated source below and test
// fakes satisfy the same contract.
type PriceSource interface {
	// Quote returns a single quote for the pair.
	Quote(assetSymbol, outputSymbol string) (SourceQuote, error)
	// Quotes returns one quote per venue for best-price selection.
	Quotes(assetSymbol, outputSymbol string) ([]SourceQuote, error)
}

// venue models a simulated market data venue with its own spread and
// confidence characteristics.
type venue struct {
	Name          string
	PriceBias     float64 // multiplicative bias applied to the base price
	SpreadPercent float64
	MinConfidence int
	MaxConfidence int
}

var simulatedVenues = []venue{
	{Name: "AggregatedFeed", PriceBias: 1.0, SpreadPercent: 0.1, MinConfidence: 90, MaxConfidence: 100},
	{Name: "PrimaryExchange", PriceBias: 1.001, SpreadPercent: 0.15, MinConfidence: 85, MaxConfidence: 98},
	{Name: "SecondaryExchange", PriceBias: 0.998, SpreadPercent: 0.25, MinConfidence: 75, MaxConfidence: 95},
	{Name: "OTCDesk", PriceBias: 0.995, SpreadPercent: 0.5, MinConfidence: 55, MaxConfidence: 85},
}

// basePrices is the reference price table keyed by asset then output symbol.
var basePrices = map[string]map[string]float64{
	"BTC": {"USD": 97000, "EUR": 89000, "USDT": 97000, "ETH": 29.5},
	"ETH": {"USD": 3000, "EUR": 2760, "USDT": 3000, "BTC": 0.034},
	"SOL": {"USD": 150, "USDT": 150},
	"XMR": {"USD": 160, "USDT": 160},
	"USDT": {"USD": 1.0, "EUR": 0.92},
	"USDC": {"USD": 1.0, "EUR": 0.92},
}

// SimulatedSource synthesizes quotes from the base price table with
// bounded jitter. The random source is injected so tests stay
// reproducible.
type SimulatedSource struct {
	rng *rand.Rand
}

func NewSimulatedSource(rng *rand.Rand) *SimulatedSource {
	return &SimulatedSource{rng: rng}
}

// basePrice resolves the reference price for a pair, falling back to the
// documented defaults for unlisted pairs: stablecoin outputs quote at
// 100, BTC output at 0.002, ETH output at 0.03, anything else 1:1.
func basePrice(assetSymbol, outputSymbol string) float64 {
	if outputs, ok := basePrices[assetSymbol]; ok {
		if price, ok := outputs[outputSymbol]; ok {
			return price
		}
	}

	switch strings.ToUpper(outputSymbol) {
	case "USD", "USDT", "USDC", "EUR", "DAI":
		return 100
	case "BTC":
		return 0.002
	case "ETH":
		return 0.03
	default:
		return 1.0
	}
}

func (s *SimulatedSource) quoteForVenue(v venue, assetSymbol, outputSymbol string) SourceQuote {
	base := basePrice(assetSymbol, outputSymbol) * v.PriceBias

	// Bounded jitter of up to ±2% around the biased base price
	price := base * (1 + (s.rng.Float64()*0.04 - 0.02))
	halfSpread := price * v.SpreadPercent / 200

	confidence := v.MinConfidence + s.rng.Intn(v.MaxConfidence-v.MinConfidence+1)

	return SourceQuote{
		Source:           v.Name,
		Price:            price,
		Bid:              price - halfSpread,
		Ask:              price + halfSpread,
		Volume24h:        float64(1000+s.rng.Intn(9000)) * base,
		ChangePercent24h: s.rng.Float64()*10 - 5,
		Confidence:       confidence,
	}
}

func (s *SimulatedSource) Quote(assetSymbol, outputSymbol string) (SourceQuote, error) {
	if assetSymbol == "" || outputSymbol == "" {
		return SourceQuote{}, fmt.Errorf("asset and output symbols are required")
	}
	return s.quoteForVenue(simulatedVenues[0], assetSymbol, outputSymbol), nil
}

func (s *SimulatedSource) Quotes(assetSymbol, outputSymbol string) ([]SourceQuote, error) {
	if assetSymbol == "" || outputSymbol == "" {
		return nil, fmt.Errorf("asset and output symbols are required")
	}
	quotes := make([]SourceQuote, 0, len(simulatedVenues))
	for _, v := range simulatedVenues {
		quotes = append(quotes, s.quoteForVenue(v, assetSymbol, outputSymbol))
	}
	return quotes, nil
}
