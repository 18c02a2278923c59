package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Archiver copies aged opportunities, orders and audit rows into cold storage
// on a cron schedule.
type Archiver struct {
	target    domain.Archiver
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewArchiver creates an Archiver. Records older than retention are archived
// on each run.
func NewArchiver(target domain.Archiver, retention time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		target:    target,
		retention: retention,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveReport counts what a single run archived.
type ArchiveReport struct {
	Cutoff        time.Time
	Opportunities int64
	Orders        int64
	Audit         int64
}

// Run executes a single archive pass with cutoff = now - retention. Each
// record kind is attempted even when an earlier one fails; the first error is
// returned.
func (a *Archiver) Run(ctx context.Context) (ArchiveReport, error) {
	report := ArchiveReport{Cutoff: a.now().UTC().Add(-a.retention)}
	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", report.Cutoff),
		slog.Duration("retention", a.retention),
	)

	steps := []struct {
		kind string
		fn   func(context.Context, time.Time) (int64, error)
		dst  *int64
	}{
		{"opportunities", a.target.ArchiveOpportunities, &report.Opportunities},
		{"orders", a.target.ArchiveOrders, &report.Orders},
		{"audit", a.target.ArchiveAudit, &report.Audit},
	}

	var firstErr error
	for _, step := range steps {
		n, err := step.fn(ctx, report.Cutoff)
		if err != nil {
			a.logger.ErrorContext(ctx, "archive step failed",
				slog.String("kind", step.kind),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("archiver: %s before %s: %w", step.kind, report.Cutoff.Format(time.RFC3339), err)
			}
			continue
		}
		*step.dst = n
	}

	a.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("opportunities", report.Opportunities),
		slog.Int64("orders", report.Orders),
		slog.Int64("audit", report.Audit),
	)
	return report, firstErr
}

// RunCron runs the archiver on a 5-field cron schedule
// ("minute hour day-of-month month day-of-week") until ctx is cancelled.
// Fields accept "*", single values, comma lists, ranges ("1-5") and steps
// ("*/15", "0-30/10"). Day-of-month and day-of-week must both match.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	sched, err := parseCron(cronExpr)
	if err != nil {
		return fmt.Errorf("archiver: cron %q: %w", cronExpr, err)
	}
	a.logger.InfoContext(ctx, "archiver cron started", slog.String("cron", cronExpr))

	for {
		next, ok := sched.next(a.now().UTC())
		if !ok {
			return fmt.Errorf("archiver: cron %q never fires", cronExpr)
		}
		wait := time.Until(next)
		a.logger.DebugContext(ctx, "archiver waiting",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
			// Errors are logged inside Run.
			_, _ = a.Run(ctx)
		}
	}
}

// cronField is the set of values a single cron field accepts.
type cronField struct {
	all    bool
	values map[int]bool
}

func (f cronField) matches(v int) bool {
	return f.all || f.values[v]
}

// parseCronField parses one field bounded by [lo, hi].
func parseCronField(field string, lo, hi int) (cronField, error) {
	if field == "*" {
		return cronField{all: true}, nil
	}

	out := cronField{values: make(map[int]bool)}
	for _, part := range strings.Split(field, ",") {
		part = strings.TrimSpace(part)
		step := 1
		if base, s, ok := strings.Cut(part, "/"); ok {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 {
				return cronField{}, fmt.Errorf("invalid step %q", s)
			}
			step = n
			part = base
		}

		from, to := lo, hi
		switch {
		case part == "*":
		case strings.Contains(part, "-"):
			a, b, _ := strings.Cut(part, "-")
			var err error
			if from, err = strconv.Atoi(a); err != nil {
				return cronField{}, fmt.Errorf("invalid range start %q", a)
			}
			if to, err = strconv.Atoi(b); err != nil {
				return cronField{}, fmt.Errorf("invalid range end %q", b)
			}
		default:
			v, err := strconv.Atoi(part)
			if err != nil {
				return cronField{}, fmt.Errorf("invalid value %q", part)
			}
			from, to = v, v
		}
		if from < lo || to > hi || from > to {
			return cronField{}, fmt.Errorf("value %q out of range [%d-%d]", part, lo, hi)
		}
		for v := from; v <= to; v += step {
			out.values[v] = true
		}
	}
	return out, nil
}

type cronSchedule struct {
	minute, hour, dom, month, dow cronField
}

func parseCron(expr string) (cronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return cronSchedule{}, fmt.Errorf("expected 5 fields, got %d", len(fields))
	}

	bounds := [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}
	names := [5]string{"minute", "hour", "day-of-month", "month", "day-of-week"}
	var parsed [5]cronField
	for i, f := range fields {
		cf, err := parseCronField(f, bounds[i][0], bounds[i][1])
		if err != nil {
			return cronSchedule{}, fmt.Errorf("%s: %w", names[i], err)
		}
		parsed[i] = cf
	}
	return cronSchedule{
		minute: parsed[0],
		hour:   parsed[1],
		dom:    parsed[2],
		month:  parsed[3],
		dow:    parsed[4],
	}, nil
}

// next returns the first minute strictly after `after` that matches, searching
// up to one year ahead.
func (c cronSchedule) next(after time.Time) (time.Time, bool) {
	t := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.AddDate(1, 0, 0)
	for t.Before(limit) {
		if !c.month.matches(int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
			continue
		}
		if !c.dom.matches(t.Day()) || !c.dow.matches(int(t.Weekday())) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
			continue
		}
		if !c.hour.matches(t.Hour()) {
			t = t.Truncate(time.Hour).Add(time.Hour)
			continue
		}
		if c.minute.matches(t.Minute()) {
			return t, true
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}, false
}
