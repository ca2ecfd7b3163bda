package compliance

import (
	"context"
	"math/rand"

	"liquidation-api/internal/types"
)

// CheckInput carries the request fields a check needs. Everything is
// passed by value so concurrent checks share no mutable state.
type CheckInput struct {
	RequestID   string
	UserID      string
	AssetSymbol string
	Amount      float64
	PrivacyCoin bool
}

// CheckOutcome is what a single checker resolves to.
type CheckOutcome struct {
	Result       string
	RiskScore    int
	Reason       string
	ManualReview bool
}

// Checker is one independent verification unit. Production plugs real
// KYC/AML/sanctions providers behind this interface; the simulated
// checkers below parameterize a pass-rate model by amount tier.
type Checker interface {
	Kind() string
	Run(ctx context.Context, input CheckInput) (CheckOutcome, error)
}

// RiskScore accumulates the amount-and-asset risk score: amount tiers
// add 30/20/10/5 points above 1M/500K/100K/50K, privacy coins add 25,
// clamped to [0, 100].
func RiskScore(amount float64, privacyCoin bool) int {
	score := 0
	switch {
	case amount > 1_000_000:
		score += 30
	case amount > 500_000:
		score += 20
	case amount > 100_000:
		score += 10
	case amount > 50_000:
		score += 5
	}
	if privacyCoin {
		score += 25
	}
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

// riskChecker scores the transaction by amount tier and asset category.
// Only a CRITICAL band denies; HIGH passes but is flagged for enhanced
// monitoring.
type riskChecker struct{}

func (riskChecker) Kind() string { return CheckRisk }

func (riskChecker) Run(_ context.Context, input CheckInput) (CheckOutcome, error) {
	score := RiskScore(input.Amount, input.PrivacyCoin)
	band := types.RiskBand(score)

	outcome := CheckOutcome{Result: ResultPassed, RiskScore: score}
	switch band {
	case types.RiskCritical:
		outcome.Result = ResultFailed
		outcome.Reason = "risk band critical"
	case types.RiskHigh:
		outcome.ManualReview = true
		outcome.Reason = "flagged for enhanced monitoring"
	}
	return outcome, nil
}

// screeningChecker simulates an external screening provider with a
// pass-rate model that tightens as the amount grows. The random source
// is injected so runs are reproducible.
type screeningChecker struct {
	kind         string
	basePassRate float64
	rng          *rand.Rand
}

func (c *screeningChecker) Kind() string { return c.kind }

func (c *screeningChecker) Run(ctx context.Context, input CheckInput) (CheckOutcome, error) {
	if err := ctx.Err(); err != nil {
		return CheckOutcome{}, err
	}

	passRate := c.basePassRate
	switch {
	case input.Amount > 1_000_000:
		passRate -= 0.10
	case input.Amount > 100_000:
		passRate -= 0.05
	}

	roll := c.rng.Float64()
	switch {
	case roll < passRate:
		return CheckOutcome{Result: ResultPassed, RiskScore: int(roll * 20)}, nil
	case roll < passRate+0.03:
		return CheckOutcome{
			Result:       ResultRequiresReview,
			RiskScore:    55,
			Reason:       c.kind + " screening requires manual review",
			ManualReview: true,
		}, nil
	default:
		return CheckOutcome{
			Result:    ResultFailed,
			RiskScore: 80,
			Reason:    c.kind + " screening failed",
		}, nil
	}
}

// DefaultCheckers returns the production check set: three simulated
// screening providers plus the deterministic risk assessment. Each
// screening checker gets its own derived random source because checks
// run concurrently and rand.Rand is not safe for concurrent use.
func DefaultCheckers(rng *rand.Rand) []Checker {
	derive := func() *rand.Rand { return rand.New(rand.NewSource(rng.Int63())) }
	return []Checker{
		&screeningChecker{kind: CheckKYC, basePassRate: 0.97, rng: derive()},
		&screeningChecker{kind: CheckAML, basePassRate: 0.96, rng: derive()},
		&screeningChecker{kind: CheckSanctions, basePassRate: 0.99, rng: derive()},
		riskChecker{},
	}
}
