package types

// Liquidation request statuses
const (
	StatusPending   = "PENDING"
	StatusExecuting = "EXECUTING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
)

// Risk levels shared by eligibility rules, compliance scoring and requests
const (
	RiskLow      = "LOW"
	RiskMedium   = "MEDIUM"
	RiskHigh     = "HIGH"
	RiskCritical = "CRITICAL"
)

// statusTransitions is the allowed state machine for a request.
// COMPLETED and CANCELLED are terminal; FAILED may only go back to
// PENDING via an explicit retry.
var statusTransitions = map[string][]string{
	StatusPending:   {StatusExecuting, StatusCancelled, StatusFailed},
	StatusExecuting: {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {StatusPending},
	StatusCancelled: {},
}

// CanTransition reports whether a request may move from one status to another.
func CanTransition(from, to string) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether a status admits no further transitions
// other than the explicit retry path.
func IsTerminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}

// RiskBand maps a numeric risk score to its band using fixed breakpoints.
func RiskBand(score int) string {
	switch {
	case score <= 25:
		return RiskLow
	case score <= 50:
		return RiskMedium
	case score <= 75:
		return RiskHigh
	default:
		return RiskCritical
	}
}
