package utils

import (
	"time"
)

// MarketLocation is the exchange timezone for US equities.
var MarketLocation *time.Location

func init() {
	var err error
	MarketLocation, err = time.LoadLocation("America/New_York")
	if err != nil {
		// Fallback to EST without DST
		MarketLocation = time.FixedZone("EST", -5*60*60)
	}
}

// IsTradingDay reports whether t falls on a weekday. Exchange holidays are
// not modelled.
func IsTradingDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// CalendarDate truncates t to midnight in its own location.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// TradingDaysBefore returns the calendar date that lies n weekdays before t.
// With n == 0 it returns t's own calendar date.
func TradingDaysBefore(t time.Time, n int) time.Time {
	date := CalendarDate(t)
	for count := 0; count < n; {
		date = date.AddDate(0, 0, -1)
		if IsTradingDay(date) {
			count++
		}
	}
	return date
}

// MostRecentTradingDay returns the most recent weekday on or before from
// after stepping back daysBack trading days.
func MostRecentTradingDay(from time.Time, daysBack int) time.Time {
	date := TradingDaysBefore(from, daysBack)
	for !IsTradingDay(date) {
		date = date.AddDate(0, 0, -1)
	}
	return date
}

// ScanStartDate returns the first calendar date to request when a scan
// needs roughly bars trading days of history.
func ScanStartDate(now time.Time, bars int) time.Time {
	// 7 calendar days per 5 trading days, plus a week of slack for holidays
	days := bars*7/5 + 7
	return CalendarDate(now.In(MarketLocation)).AddDate(0, 0, -days)
}

// FormatMDY renders t as M/d/yyyy, the form used in report subjects.
func FormatMDY(t time.Time) string {
	return t.Format("1/2/2006")
}
