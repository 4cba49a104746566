package models

import (
	"testing"
	"time"
)

func TestDateSet_DayGranularityIgnoresTime(t *testing.T) {
	morning := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	evening := time.Date(2024, 3, 4, 15, 55, 0, 0, time.UTC)

	set := NewDateSet(GranularityDay, morning)
	if !set.Contains(evening) {
		t.Errorf("expected %v to match %v at day granularity", evening, morning)
	}
	if set.Contains(morning.AddDate(0, 0, 1)) {
		t.Error("next day should not match")
	}
}

func TestDateSet_TimestampGranularity(t *testing.T) {
	morning := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	evening := time.Date(2024, 3, 4, 15, 55, 0, 0, time.UTC)

	set := NewDateSet(GranularityTimestamp, morning)
	if set.Contains(evening) {
		t.Error("different intraday bars should not match at timestamp granularity")
	}
	if !set.Contains(morning) {
		t.Error("identical timestamp should match")
	}
}

func TestDateSet_ZeroValue(t *testing.T) {
	var set DateSet
	set.Add(time.Now())
	if set.Contains(time.Now()) {
		t.Error("zero DateSet should be empty")
	}
	if set.Len() != 0 {
		t.Errorf("expected len 0, got %d", set.Len())
	}
	if set.Granularity() != GranularityDay {
		t.Errorf("expected day granularity, got %s", set.Granularity())
	}
}

func TestDateSet_InvalidGranularityFallsBackToDay(t *testing.T) {
	set := NewDateSet(DateGranularity("weekly"))
	if set.Granularity() != GranularityDay {
		t.Errorf("expected day granularity, got %s", set.Granularity())
	}
}

func TestDateSet_DayKeyUsesBarLocation(t *testing.T) {
	est := time.FixedZone("EST", -5*60*60)
	lateSession := time.Date(2024, 3, 4, 22, 0, 0, 0, est) // 2024-03-05 03:00 UTC
	set := NewDateSet(GranularityDay, time.Date(2024, 3, 4, 0, 0, 0, 0, est))
	if !set.Contains(lateSession) {
		t.Error("day keys should follow the bar's own calendar date")
	}
}

func TestDateSet_TimestampKeyComparesInstants(t *testing.T) {
	est := time.FixedZone("EST", -5*60*60)
	a := time.Date(2024, 3, 4, 10, 0, 0, 0, est)
	b := a.UTC()
	set := NewDateSet(GranularityTimestamp, a)
	if !set.Contains(b) {
		t.Error("the same instant in different zones should match")
	}
}
