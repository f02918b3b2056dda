package meter

import (
	"math"
	"sort"
	"time"
)

// ConsumptionSince computes the net consumption for one meter within the
// current billing period: the difference between the latest and earliest
// readings taken at or after periodStart, rounded to two decimal places.
// Fewer than two readings in the period means no delta can be derived yet,
// which reports as 0 rather than an error.
//
// The input order does not matter. Readings with equal timestamps are
// tie-broken by ID, which is assigned in creation order, so the result is
// deterministic.
func ConsumptionSince(readings []*Reading, periodStart time.Time) float64 {
	inPeriod := make([]*Reading, 0, len(readings))
	for _, r := range readings {
		if !r.TakenAt.Before(periodStart) {
			inPeriod = append(inPeriod, r)
		}
	}
	if len(inPeriod) < 2 {
		return 0
	}

	sort.Slice(inPeriod, func(i, j int) bool {
		if inPeriod[i].TakenAt.Equal(inPeriod[j].TakenAt) {
			return inPeriod[i].ID < inPeriod[j].ID
		}
		return inPeriod[i].TakenAt.Before(inPeriod[j].TakenAt)
	})

	delta := inPeriod[len(inPeriod)-1].Value - inPeriod[0].Value
	return math.Round(delta*100) / 100
}

// LatestReading returns the most recently taken reading, or nil when the
// meter has none.
func LatestReading(readings []*Reading) *Reading {
	var latest *Reading
	for _, r := range readings {
		if latest == nil || r.TakenAt.After(latest.TakenAt) {
			latest = r
		}
	}
	return latest
}
