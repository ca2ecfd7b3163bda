package compliance

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"liquidation-api/internal/types"
	"liquidation-api/pkg/response"
)

// GateResult aggregates one full gate run for a request.
type GateResult struct {
	Approved bool              `json:"approved"`
	Checks   []ComplianceCheck `json:"checks"`
}

// Service runs the fixed set of verification checks concurrently and
// aggregates them into a single approve/deny decision.
type Service struct {
	db       *Database
	checkers []Checker
	now      func() time.Time
}

func NewService(gormDB *gorm.DB, checkers []Checker) *Service {
	return &Service{
		db:       NewDatabase(gormDB),
		checkers: checkers,
		now:      time.Now,
	}
}

// Approved is the gate's approval predicate: true iff every check is
// PASSED or SKIPPED.
func Approved(checks []ComplianceCheck) bool {
	for _, check := range checks {
		if check.Result != ResultPassed && check.Result != ResultSkipped {
			return false
		}
	}
	return true
}

// RunChecks fans out every configured check for the request, waits for
// all of them (no short-circuit on first failure), and persists every
// result for audit regardless of the overall outcome. The returned
// error covers infrastructure failures only; a denied check is a normal
// outcome reflected in the decision.
func (s *Service) RunChecks(ctx context.Context, input CheckInput) (*GateResult, error) {
	logger := log.With().
		Str("request_id", input.RequestID).
		Str("user_id", input.UserID).
		Float64("amount", input.Amount).
		Str("service", "compliance").
		Logger()

	logger.Info().Int("checks", len(s.checkers)).Msg("starting compliance gate")

	started := s.now()
	checks := make([]ComplianceCheck, len(s.checkers))
	outcomes := make([]CheckOutcome, len(s.checkers))

	g, ctx := errgroup.WithContext(ctx)
	for i, checker := range s.checkers {
		checks[i] = ComplianceCheck{
			CheckID:   "CHK_" + uuid.New().String(),
			RequestID: input.RequestID,
			CheckKind: checker.Kind(),
			Result:    ResultPending,
			StartedAt: started,
			CreatedAt: started,
			UpdatedAt: started,
		}

		i, checker := i, checker
		g.Go(func() error {
			outcome, err := checker.Run(ctx, input)
			if err != nil {
				return fmt.Errorf("%s check failed to run: %w", checker.Kind(), err)
			}
			outcomes[i] = outcome
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("compliance fan-out aborted")
		return nil, err
	}

	// All checks finished; stamp and persist each result row
	completed := s.now()
	for i := range checks {
		outcome := outcomes[i]
		check := &checks[i]
		check.Result = outcome.Result
		check.RiskScore = outcome.RiskScore
		check.RiskBand = types.RiskBand(outcome.RiskScore)
		check.FailureReason = outcome.Reason
		check.ManualReview = outcome.ManualReview
		check.CompletedAt = &completed
		check.DurationMs = completed.Sub(started).Milliseconds()
		check.UpdatedAt = completed

		if err := s.db.CreateCheck(check); err != nil {
			logger.Error().Err(err).Str("check_kind", check.CheckKind).Msg("failed to persist check result")
			return nil, fmt.Errorf("failed to persist %s check result: %w", check.CheckKind, err)
		}

		logger.Debug().
			Str("check_id", check.CheckID).
			Str("check_kind", check.CheckKind).
			Str("result", check.Result).
			Int("risk_score", check.RiskScore).
			Str("risk_band", check.RiskBand).
			Msg("persisted check result")
	}

	result := &GateResult{
		Approved: Approved(checks),
		Checks:   checks,
	}

	logger.Info().
		Bool("approved", result.Approved).
		Int("checks", len(checks)).
		Msg("compliance gate completed")

	return result, nil
}

// OverrideCheck is the only way to flip a terminal check result. The
// override is recorded with reviewer, reason and timestamp.
func (s *Service) OverrideCheck(checkID, newResult, reason, reviewer string) (*ComplianceCheck, error) {
	logger := log.With().
		Str("check_id", checkID).
		Str("reviewer", reviewer).
		Str("service", "compliance").
		Logger()

	switch newResult {
	case ResultPassed, ResultFailed, ResultRequiresReview, ResultSkipped:
	default:
		return nil, fmt.Errorf("%w: invalid override result %s", types.ErrInvalidOperation, newResult)
	}
	if reviewer == "" || reason == "" {
		return nil, fmt.Errorf("%w: override requires reviewer and reason", types.ErrInvalidOperation)
	}

	check, err := s.db.GetCheck(checkID)
	if err != nil {
		return nil, err
	}
	if check == nil {
		return nil, fmt.Errorf("%w: check %s", types.ErrNotFound, checkID)
	}
	if check.Result == ResultPending {
		return nil, fmt.Errorf("%w: cannot override a check that has not resolved", types.ErrInvalidOperation)
	}

	now := s.now()
	check.Result = newResult
	check.OverriddenBy = reviewer
	check.OverrideReason = reason
	check.OverriddenAt = &now
	check.UpdatedAt = now

	if err := s.db.UpdateCheck(check); err != nil {
		logger.Error().Err(err).Msg("failed to persist check override")
		return nil, fmt.Errorf("failed to persist check override: %w", err)
	}

	logger.Info().
		Str("request_id", check.RequestID).
		Str("check_kind", check.CheckKind).
		Str("new_result", newResult).
		Str("reason", reason).
		Msg("compliance check overridden")

	return check, nil
}

// GetChecks returns all persisted check results for a request.
func (s *Service) GetChecks(requestID string) ([]ComplianceCheck, error) {
	return s.db.GetChecksByRequest(requestID)
}

// GinHandlers contains HTTP handlers for compliance endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// GetChecksHandler handles GET requests for a request's check results
func (h *GinHandlers) GetChecksHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		checks, err := h.service.GetChecks(c.Param("request_id"))
		response.Handle(c, checks, err)
	}
}

// OverrideCheckHandler handles POST requests to override a check result
func (h *GinHandlers) OverrideCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		checkID := c.Param("check_id")

		var req struct {
			Result   string `json:"result" binding:"required"`
			Reason   string `json:"reason" binding:"required"`
			Reviewer string `json:"reviewer" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		check, err := h.service.OverrideCheck(checkID, req.Result, req.Reason, req.Reviewer)
		response.Handle(c, check, err)
	}
}
