package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Sink is the typed alert surface the core posts to.
type Sink interface {
	PostMatchCandidate(ctx context.Context, c domain.MatchCandidate) error
	PostArbitrageAlert(ctx context.Context, pairID string, kind domain.StrategyKind, spread, expectedProfit float64) error
	PostExecutionUpdate(ctx context.Context, pairID, status, message string) error
}

var _ Sink = (*Notifier)(nil)

// PostMatchCandidate announces a proposed pairing for review.
func (n *Notifier) PostMatchCandidate(ctx context.Context, c domain.MatchCandidate) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Similarity: %d\n", c.Similarity)
	fmt.Fprintf(&b, "%s: %s\n%s\n", c.EventA.Venue, c.EventA.Title, c.EventA.URL)
	fmt.Fprintf(&b, "%s: %s\n%s", c.EventB.Venue, c.EventB.Title, c.EventB.URL)
	if c.CloseTimeGap != nil {
		fmt.Fprintf(&b, "\nClose time gap: %s", c.CloseTimeGap.Round(time.Second))
	}
	fmt.Fprintf(&b, "\nApprove: event_a=%s event_b=%s", c.EventA.ID, c.EventB.ID)
	return n.Notify(ctx, EventMatchCandidate, "Match candidate", b.String())
}

// PostArbitrageAlert announces a detected opportunity.
func (n *Notifier) PostArbitrageAlert(ctx context.Context, pairID string, kind domain.StrategyKind, spread, expectedProfit float64) error {
	a, b := kind.Sides()
	msg := fmt.Sprintf("Pair: %s\nStrategy: buy %s on A, %s on B\nSpread: %.2f%%\nExpected profit: $%.2f",
		pairID, strings.ToUpper(string(a)), strings.ToUpper(string(b)), spread*100, expectedProfit)
	return n.Notify(ctx, EventArbAlert, "Arbitrage opportunity", msg)
}

// PostExecutionUpdate reports the outcome of an execution attempt.
func (n *Notifier) PostExecutionUpdate(ctx context.Context, pairID, status, message string) error {
	title := "Execution " + status
	msg := fmt.Sprintf("Pair: %s\n%s", pairID, message)
	return n.Notify(ctx, EventExecution, title, msg)
}
