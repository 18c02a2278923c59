package matcher

import (
	"sort"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Defaults used when Options leave a field zero.
const (
	DefaultMinSimilarity = 75
	DefaultTimeWindow    = 24 * time.Hour
)

// PairKey identifies an ordered (venue A event, venue B event) pair.
type PairKey struct {
	EventAID string
	EventBID string
}

// Options tune candidate selection.
type Options struct {
	MinSimilarity int
	TimeWindow    time.Duration
	// Exclude lists pairs an operator already rejected.
	Exclude map[PairKey]struct{}
}

func (o Options) withDefaults() Options {
	if o.MinSimilarity <= 0 {
		o.MinSimilarity = DefaultMinSimilarity
	}
	if o.TimeWindow <= 0 {
		o.TimeWindow = DefaultTimeWindow
	}
	return o
}

// FindCandidates scores the cross product of eventsA and eventsB and returns
// the pairs that clear the similarity threshold and whose close times fall
// within the window. An event with no close time is never rejected on time.
// Results are ordered by similarity, highest first; ties keep input order.
func FindCandidates(eventsA, eventsB []domain.Event, opts Options) []domain.MatchCandidate {
	opts = opts.withDefaults()

	normB := make([]string, len(eventsB))
	for i, e := range eventsB {
		normB[i] = Normalize(e.Title)
	}

	var out []domain.MatchCandidate
	for _, a := range eventsA {
		na := Normalize(a.Title)
		for j, b := range eventsB {
			if _, skip := opts.Exclude[PairKey{a.ID, b.ID}]; skip {
				continue
			}
			score := ratio(na, normB[j])
			if score < opts.MinSimilarity {
				continue
			}
			gap, ok := closeTimeGap(a.CloseTime, b.CloseTime)
			if ok && *gap > opts.TimeWindow {
				continue
			}
			out = append(out, domain.MatchCandidate{
				EventA:       a,
				EventB:       b,
				Similarity:   score,
				CloseTimeGap: gap,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	return out
}

// closeTimeGap returns the absolute difference between two close times and
// whether both were known.
func closeTimeGap(a, b *time.Time) (*time.Duration, bool) {
	if a == nil || b == nil {
		return nil, false
	}
	d := a.Sub(*b)
	if d < 0 {
		d = -d
	}
	return &d, true
}
