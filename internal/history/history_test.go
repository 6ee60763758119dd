package history_test

import (
	"fmt"
	"testing"

	"titra/internal/domain"
	"titra/internal/history"
)

func TestGroupByDay(t *testing.T) {
	records := []domain.ArchiveRecord{
		{EventID: "a", Day: "2024-01-02", Timestamp: "2024-01-02T12:00:00Z"},
		{EventID: "b", Day: "2024-01-01", Timestamp: "2024-01-01T08:00:00Z"},
		{EventID: "c", Day: "2024-01-02", Timestamp: "2024-01-02T08:00:00Z"},
		{EventID: "skip", Day: ""},
	}
	days := history.GroupByDay(records)
	if len(days) != 2 {
		t.Fatalf("days = %d, want 2", len(days))
	}
	if days[0].Day != "2024-01-02" || days[1].Day != "2024-01-01" {
		t.Fatalf("day order = %s, %s", days[0].Day, days[1].Day)
	}
	if len(days[0].Records) != 2 || days[0].Records[0].EventID != "a" {
		t.Fatalf("day records = %+v", days[0].Records)
	}
}

func TestGroupByDayEmpty(t *testing.T) {
	if got := history.GroupByDay(nil); len(got) != 0 {
		t.Fatalf("expected no groups, got %d", len(got))
	}
}

func pairFixture(n int) []domain.BPReading {
	correlation := fmt.Sprintf("c-%02d", n)
	ts := fmt.Sprintf("2024-01-%02dT08:05:00Z", n)
	return []domain.BPReading{
		{ID: correlation + "-sit", CorrelationID: correlation, Timestamp: ts, Position: "sitting", Systolic: 120 + n, Diastolic: 80},
		{ID: correlation + "-sta", CorrelationID: correlation, Timestamp: ts, Position: "standing", Systolic: 110 + n, Diastolic: 75},
	}
}

func TestPairReadingsRecentWindow(t *testing.T) {
	// Seven checks on seven days; only the five most recent survive, ordered
	// oldest to newest.
	var readings []domain.BPReading
	for n := 1; n <= 7; n++ {
		readings = append(readings, pairFixture(n)...)
	}
	pairs := history.PairReadings(readings)
	if len(pairs) != 5 {
		t.Fatalf("pairs = %d, want 5", len(pairs))
	}
	for i, wantDay := range []int{3, 4, 5, 6, 7} {
		if pairs[i].CorrelationID != fmt.Sprintf("c-%02d", wantDay) {
			t.Fatalf("pair %d = %s, want c-%02d", i, pairs[i].CorrelationID, wantDay)
		}
	}
	if pairs[4].SittingSystolic != 127 || pairs[4].StandingSystolic != 117 {
		t.Fatalf("newest pair values = %d/%d", pairs[4].SittingSystolic, pairs[4].StandingSystolic)
	}
}

func TestPairReadingsDropsIncomplete(t *testing.T) {
	readings := pairFixture(1)
	// A sitting reading with no standing counterpart.
	readings = append(readings, domain.BPReading{
		ID: "lone", CorrelationID: "c-lone", Timestamp: "2024-01-09T08:05:00Z",
		Position: "sitting", Systolic: 140, Diastolic: 90,
	})
	pairs := history.PairReadings(readings)
	if len(pairs) != 1 {
		t.Fatalf("pairs = %d, want 1", len(pairs))
	}
	if pairs[0].CorrelationID != "c-01" {
		t.Fatalf("pair = %s, want c-01", pairs[0].CorrelationID)
	}
}

func TestPairReadingsEmpty(t *testing.T) {
	if got := history.PairReadings(nil); len(got) != 0 {
		t.Fatalf("expected no pairs, got %d", len(got))
	}
}
