// Package history holds read-side projections over archive query results.
// Nothing here is persisted; views derive what they need on every read.
package history

import (
	"sort"

	"titra/internal/domain"
)

// GroupByDay buckets archive records by calendar day, newest day first.
// Records inside a day keep the query's ordering.
func GroupByDay(records []domain.ArchiveRecord) []domain.DayHistory {
	byDay := map[string][]domain.ArchiveRecord{}
	for _, rec := range records {
		if rec.Day == "" {
			continue
		}
		byDay[rec.Day] = append(byDay[rec.Day], rec)
	}
	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))
	out := make([]domain.DayHistory, 0, len(days))
	for _, day := range days {
		out = append(out, domain.DayHistory{Day: day, Records: byDay[day]})
	}
	return out
}

// recentPairs is how many paired checks the blood-pressure view shows.
const recentPairs = 5

// PairReadings joins sitting/standing readings sharing a correlation id into
// logical checks. Readings without a counterpart are dropped. The result is
// the five most recent pairs, ordered oldest to newest for charting.
func PairReadings(readings []domain.BPReading) []domain.BPPair {
	byCorrelation := map[string][]domain.BPReading{}
	for _, r := range readings {
		if r.CorrelationID == "" {
			continue
		}
		byCorrelation[r.CorrelationID] = append(byCorrelation[r.CorrelationID], r)
	}
	var pairs []domain.BPPair
	for id, group := range byCorrelation {
		var sitting, standing *domain.BPReading
		for i := range group {
			switch group[i].Position {
			case "sitting":
				sitting = &group[i]
			case "standing":
				standing = &group[i]
			}
		}
		if sitting == nil || standing == nil {
			continue
		}
		pairs = append(pairs, domain.BPPair{
			CorrelationID:     id,
			Timestamp:         sitting.Timestamp,
			SittingSystolic:   sitting.Systolic,
			SittingDiastolic:  sitting.Diastolic,
			StandingSystolic:  standing.Systolic,
			StandingDiastolic: standing.Diastolic,
		})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Timestamp > pairs[j].Timestamp })
	if len(pairs) > recentPairs {
		pairs = pairs[:recentPairs]
	}
	// Reverse so charts read oldest to newest.
	for i, j := 0, len(pairs)-1; i < j; i, j = i+1, j-1 {
		pairs[i], pairs[j] = pairs[j], pairs[i]
	}
	return pairs
}
