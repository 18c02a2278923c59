package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeArchiver struct {
	cutoffs []time.Time
	failOn  string
}

func (f *fakeArchiver) step(kind string, before time.Time, n int64) (int64, error) {
	f.cutoffs = append(f.cutoffs, before)
	if f.failOn == kind {
		return 0, errors.New("bucket unavailable")
	}
	return n, nil
}

func (f *fakeArchiver) ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error) {
	return f.step("opportunities", before, 3)
}

func (f *fakeArchiver) ArchiveOrders(ctx context.Context, before time.Time) (int64, error) {
	return f.step("orders", before, 6)
}

func (f *fakeArchiver) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	return f.step("audit", before, 9)
}

func TestArchiverRunUsesRetentionCutoff(t *testing.T) {
	target := &fakeArchiver{}
	a := NewArchiver(target, 30*24*time.Hour, discardLogger())
	now := time.Date(2025, 3, 31, 3, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	report, err := a.Run(context.Background())
	require.NoError(t, err)

	want := time.Date(2025, 3, 1, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, want, report.Cutoff)
	assert.Equal(t, int64(3), report.Opportunities)
	assert.Equal(t, int64(6), report.Orders)
	assert.Equal(t, int64(9), report.Audit)
	assert.Equal(t, []time.Time{want, want, want}, target.cutoffs)
}

func TestArchiverRunContinuesAfterFailure(t *testing.T) {
	target := &fakeArchiver{failOn: "orders"}
	a := NewArchiver(target, time.Hour, discardLogger())

	report, err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orders")
	assert.Len(t, target.cutoffs, 3)
	assert.Equal(t, int64(3), report.Opportunities)
	assert.Zero(t, report.Orders)
	assert.Equal(t, int64(9), report.Audit)
}

func TestRunCronRejectsBadExpression(t *testing.T) {
	a := NewArchiver(&fakeArchiver{}, time.Hour, discardLogger())
	err := a.RunCron(context.Background(), "0 3 * *")
	require.Error(t, err)
}

func TestParseCronField(t *testing.T) {
	cases := []struct {
		field string
		lo    int
		hi    int
		in    []int
		out   []int
		bad   bool
	}{
		{field: "*", lo: 0, hi: 59, in: []int{0, 30, 59}},
		{field: "5", lo: 0, hi: 59, in: []int{5}, out: []int{4, 6}},
		{field: "1,15", lo: 1, hi: 31, in: []int{1, 15}, out: []int{2}},
		{field: "*/15", lo: 0, hi: 59, in: []int{0, 15, 30, 45}, out: []int{10}},
		{field: "1-5", lo: 0, hi: 6, in: []int{1, 3, 5}, out: []int{0, 6}},
		{field: "0-30/10", lo: 0, hi: 59, in: []int{0, 10, 30}, out: []int{40}},
		{field: "60", lo: 0, hi: 59, bad: true},
		{field: "x", lo: 0, hi: 59, bad: true},
		{field: "*/0", lo: 0, hi: 59, bad: true},
		{field: "5-1", lo: 0, hi: 59, bad: true},
	}
	for _, tc := range cases {
		f, err := parseCronField(tc.field, tc.lo, tc.hi)
		if tc.bad {
			assert.Error(t, err, tc.field)
			continue
		}
		require.NoError(t, err, tc.field)
		for _, v := range tc.in {
			assert.True(t, f.matches(v), "%s should match %d", tc.field, v)
		}
		for _, v := range tc.out {
			assert.False(t, f.matches(v), "%s should not match %d", tc.field, v)
		}
	}
}

func TestCronNext(t *testing.T) {
	sched, err := parseCron("0 3 * * *")
	require.NoError(t, err)

	after := time.Date(2025, 5, 10, 3, 0, 0, 0, time.UTC)
	next, ok := sched.next(after)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 5, 11, 3, 0, 0, 0, time.UTC), next)

	after = time.Date(2025, 5, 10, 1, 17, 42, 0, time.UTC)
	next, ok = sched.next(after)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 5, 10, 3, 0, 0, 0, time.UTC), next)

	// First of the month, Mondays only: 2025-09-01 is a Monday.
	sched, err = parseCron("30 4 1 * 1")
	require.NoError(t, err)
	next, ok = sched.next(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 9, 1, 4, 30, 0, 0, time.UTC), next)

	sched, err = parseCron("0 0 31 2 *")
	require.NoError(t, err)
	_, ok = sched.next(after)
	assert.False(t, ok)
}
