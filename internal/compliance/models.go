package compliance

import (
	"time"

	"gorm.io/gorm"
)

// Check kinds
const (
	CheckKYC       = "KYC"
	CheckAML       = "AML"
	CheckSanctions = "SANCTIONS"
	CheckRisk      = "RISK_ASSESSMENT"
)

// Check results
const (
	ResultPending        = "PENDING"
	ResultPassed         = "PASSED"
	ResultFailed         = "FAILED"
	ResultRequiresReview = "REQUIRES_REVIEW"
	ResultSkipped        = "SKIPPED"
)

// ComplianceCheck is one verification outcome belonging to exactly one
// liquidation request. After reaching a terminal result the only
// mutation path is an administrative override.
type ComplianceCheck struct {
	gorm.Model     `json:"-"`
	CheckID        string     `gorm:"uniqueIndex" json:"check_id"`
	RequestID      string     `gorm:"index" json:"request_id"`
	CheckKind      string     `json:"check_kind"`
	Result         string     `json:"result"`
	RiskScore      int        `json:"risk_score"` // 0-100
	RiskBand       string     `json:"risk_band"`
	FailureReason  string     `json:"failure_reason,omitempty"`
	ManualReview   bool       `json:"manual_review"`
	OverriddenBy   string     `json:"overridden_by,omitempty"`
	OverrideReason string     `json:"override_reason,omitempty"`
	OverriddenAt   *time.Time `json:"overridden_at,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	DurationMs     int64      `json:"duration_ms"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
