package analytics

import (
	"sort"
	"strings"
	"time"

	"github.com/starford/wellbeing/internal/apperr"
	"github.com/starford/wellbeing/internal/models"
)

// Period selects a reporting window.
type Period string

const (
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodAll   Period = "all"
)

// ParsePeriod parses a period name; an empty string means week.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PeriodWeek, nil
	case PeriodWeek, PeriodMonth, PeriodAll:
		return p, nil
	}
	return "", apperr.NewValidationError("period", "must be one of week, month, all")
}

// weekStart returns the Monday of the week containing day.
func weekStart(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// calendarDay drops the clock part of t while keeping its own location, so
// the calendar date the caller sees is the one compared.
func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// PeriodRange returns the inclusive date bounds of the period containing
// anchor. ok is false for PeriodAll, which is unbounded.
func PeriodRange(p Period, anchor time.Time) (start, end string, ok bool) {
	day := calendarDay(anchor)
	switch p {
	case PeriodWeek:
		s := weekStart(day)
		return models.FormatDate(s), models.FormatDate(s.AddDate(0, 0, 6)), true
	case PeriodMonth:
		s := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
		return models.FormatDate(s), models.FormatDate(s.AddDate(0, 1, -1)), true
	}
	return "", "", false
}

func inRange(entries []models.Entry, start, end string) []models.Entry {
	out := []models.Entry{}
	for _, e := range entries {
		if e.Date >= start && e.Date <= end {
			out = append(out, e)
		}
	}
	return out
}

// FilterByPeriod returns the entries whose date falls in the period
// containing anchor. PeriodAll returns a copy of entries.
func FilterByPeriod(entries []models.Entry, p Period, anchor time.Time) []models.Entry {
	start, end, ok := PeriodRange(p, anchor)
	if !ok {
		return append([]models.Entry{}, entries...)
	}
	return inRange(entries, start, end)
}

// PreviousPeriod returns the entries of the period immediately before the
// one containing anchor. For PeriodAll it returns the chronologically first
// half (rounded down) of entries.
func PreviousPeriod(entries []models.Entry, p Period, anchor time.Time) []models.Entry {
	day := calendarDay(anchor)
	switch p {
	case PeriodWeek:
		return FilterByPeriod(entries, PeriodWeek, weekStart(day).AddDate(0, 0, -7))
	case PeriodMonth:
		first := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
		return FilterByPeriod(entries, PeriodMonth, first.AddDate(0, -1, 0))
	}
	sorted := Chronological(entries)
	return sorted[:len(sorted)/2]
}

// Chronological returns a copy of entries sorted by date ascending.
func Chronological(entries []models.Entry) []models.Entry {
	out := append([]models.Entry{}, entries...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date == out[j].Date {
			return out[i].ID < out[j].ID
		}
		return out[i].Date < out[j].Date
	})
	return out
}

// FormatLongDate renders a stored date as "Monday, 2 January". Unparseable
// dates are returned unchanged.
func FormatLongDate(date string) string {
	t, err := models.ParseDate(date)
	if err != nil {
		return date
	}
	return t.Format("Monday, 2 January")
}

// FormatShortDate renders a stored date as "Jan 2, 2006".
func FormatShortDate(date string) string {
	t, err := models.ParseDate(date)
	if err != nil {
		return date
	}
	return t.Format("Jan 2, 2006")
}
