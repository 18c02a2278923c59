// Package executor turns a selected hedge into orders on both venues. The
// live engine places real orders; the simulated engine models fills locally.
package executor

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Status is the outcome class of one execution.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	// StatusPartial means one leg holds fills the other leg does not cover.
	StatusPartial Status = "partial"
)

// Request is one hedge to execute.
type Request struct {
	Pair        domain.VerifiedPair
	Strategy    domain.ArbitrageStrategy
	Opportunity domain.ArbitrageOpportunity
	// Size is the number of contracts to buy on each leg.
	Size float64
}

// Result describes how an execution ended. Venue failures are reported here,
// never as errors.
type Result struct {
	Success     bool          `json:"success"`
	Status      Status        `json:"status"`
	Reason      string        `json:"reason"`
	LegA        *domain.Order `json:"leg_a,omitempty"`
	LegB        *domain.Order `json:"leg_b,omitempty"`
	RealizedPnL float64       `json:"realized_pnl"`
}

// Engine executes hedges. Execute returns an error only for internal
// failures such as an unavailable store.
type Engine interface {
	Name() string
	Execute(ctx context.Context, req Request) (Result, error)
}

// FillRecorder receives final leg fills. service.PositionService satisfies it.
type FillRecorder interface {
	ApplyFill(ctx context.Context, order domain.Order) (domain.Position, error)
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// hedgePnL is the locked-in profit of the matched quantity after fees.
func hedgePnL(legA, legB domain.Order, feeRate float64) float64 {
	matched := min(legA.FilledSize, legB.FilledSize)
	if matched <= 0 {
		return 0
	}
	cost := (legA.FillPrice() + legB.FillPrice()) * matched
	return matched - cost - feeRate*cost
}

// publishResult pushes the outcome onto the executions channel and stream.
func publishResult(ctx context.Context, bus domain.SignalBus, engine string, req Request, res Result, logger *slog.Logger) {
	if bus == nil {
		return
	}
	evt, _ := json.Marshal(map[string]any{
		"event":          "execution_completed",
		"engine":         engine,
		"opportunity_id": req.Opportunity.ID,
		"pair_id":        req.Pair.ID,
		"status":         res.Status,
		"success":        res.Success,
		"reason":         res.Reason,
		"realized_pnl":   res.RealizedPnL,
	})
	if err := bus.Publish(ctx, domain.ChannelExecutions, evt); err != nil {
		logger.WarnContext(ctx, "executor: publish event failed", slog.String("error", err.Error()))
	}
	if err := bus.StreamAppend(ctx, domain.StreamExecutions, evt); err != nil {
		logger.WarnContext(ctx, "executor: stream append failed", slog.String("error", err.Error()))
	}
}
