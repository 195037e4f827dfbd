// Package analytics computes averages, period windows, trends and search
// results over entry collections. Every function is pure: inputs are never
// modified and results never contain NaN or Inf.
package analytics

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/starford/wellbeing/internal/models"
)

// AverageForMetric returns the mean of key over the entries that define it,
// or 0 when none do.
func AverageForMetric(entries []models.Entry, key models.MetricKey) float64 {
	var sum float64
	n := 0
	for _, e := range entries {
		if v, ok := e.Metrics.Get(key); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// EntryScore returns the mean of the metrics present on e, or 0 when none are.
func EntryScore(e models.Entry) float64 {
	vals := e.Metrics.Values()
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// AverageScore returns the mean entry score over entries with at least one
// metric, or 0.
func AverageScore(entries []models.Entry) float64 {
	var sum float64
	n := 0
	for _, e := range entries {
		if e.Metrics.Answered() == 0 {
			continue
		}
		sum += EntryScore(e)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Round1 rounds v to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Direction is the sign of a trend.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// Trend compares a value against the previous period. Percent is nil when no
// comparison is possible, which is distinct from a zero change.
type Trend struct {
	Direction Direction `json:"direction"`
	Percent   *float64  `json:"percent"`
}

// Available reports whether a percent change was computed.
func (t Trend) Available() bool { return t.Percent != nil }

// TrendDelta computes (current-previous)/previous*100. When previous is 0
// or either input is not finite the percent is absent.
func TrendDelta(current, previous float64) Trend {
	if !isFinite(current) || !isFinite(previous) {
		return Trend{Direction: DirectionFlat}
	}
	t := Trend{Direction: DirectionFlat}
	switch {
	case current > previous:
		t.Direction = DirectionUp
	case current < previous:
		t.Direction = DirectionDown
	}
	if previous == 0 {
		return t
	}
	pct := Round1((current - previous) / previous * 100)
	t.Percent = &pct
	return t
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// SearchEntries returns the entries whose long date, phase or score text
// contains query, ignoring case. A blank query returns entries unfiltered.
func SearchEntries(entries []models.Entry, query string) []models.Entry {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return append([]models.Entry{}, entries...)
	}
	out := []models.Entry{}
	for _, e := range entries {
		if matches(e, q) {
			out = append(out, e)
		}
	}
	return out
}

func matches(e models.Entry, q string) bool {
	score := EntryScore(e)
	fields := []string{
		FormatLongDate(e.Date),
		e.Date,
		string(e.Phase),
		e.Phase.Label(),
		strconv.FormatFloat(score, 'f', -1, 64),
		fmt.Sprintf("%.1f", score),
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

// MetricSummary is one metric's figures for a period.
type MetricSummary struct {
	Key      models.MetricKey `json:"id"`
	Label    string           `json:"name"`
	Average  float64          `json:"average"`
	Previous float64          `json:"previous"`
	Trend    Trend            `json:"trend"`
}

// Summary reports a period's averages and how they moved against the
// previous period.
type Summary struct {
	Period          Period          `json:"period"`
	Start           string          `json:"start,omitempty"`
	End             string          `json:"end,omitempty"`
	Entries         int             `json:"entries"`
	PreviousEntries int             `json:"previousEntries"`
	Score           float64         `json:"score"`
	ScoreTrend      Trend           `json:"scoreTrend"`
	Metrics         []MetricSummary `json:"metrics"`
}

// Summarize builds the period summary shown on the trends page. Averages are
// rounded to one decimal; trends use the unrounded values.
func Summarize(entries []models.Entry, p Period, anchor time.Time) Summary {
	current := FilterByPeriod(entries, p, anchor)
	previous := PreviousPeriod(entries, p, anchor)

	s := Summary{
		Period:          p,
		Entries:         len(current),
		PreviousEntries: len(previous),
		Metrics:         make([]MetricSummary, 0, models.MetricCount),
	}
	s.Start, s.End, _ = PeriodRange(p, anchor)

	cur, prev := AverageScore(current), AverageScore(previous)
	s.Score = Round1(cur)
	s.ScoreTrend = TrendDelta(cur, prev)

	for _, m := range models.MetricCatalog() {
		a := AverageForMetric(current, m.Key)
		b := AverageForMetric(previous, m.Key)
		s.Metrics = append(s.Metrics, MetricSummary{
			Key:      m.Key,
			Label:    m.Label,
			Average:  Round1(a),
			Previous: Round1(b),
			Trend:    TrendDelta(a, b),
		})
	}
	return s
}

// RecentLimit is how many entries the dashboard lists.
const RecentLimit = 5

// Overview is the dashboard digest.
type Overview struct {
	TotalEntries int            `json:"totalEntries"`
	ThisWeek     int            `json:"thisWeek"`
	LastWeek     int            `json:"lastWeek"`
	AverageScore float64        `json:"averageScore"`
	EntriesTrend Trend          `json:"entriesTrend"`
	ScoreTrend   Trend          `json:"scoreTrend"`
	Recent       []models.Entry `json:"recent"`
}

// Dashboard summarises all entries and compares the week containing anchor
// with the week before it.
func Dashboard(entries []models.Entry, anchor time.Time) Overview {
	thisWeek := FilterByPeriod(entries, PeriodWeek, anchor)
	lastWeek := PreviousPeriod(entries, PeriodWeek, anchor)

	recent := append([]models.Entry{}, entries...)
	SortNewestFirst(recent)
	if len(recent) > RecentLimit {
		recent = recent[:RecentLimit]
	}

	return Overview{
		TotalEntries: len(entries),
		ThisWeek:     len(thisWeek),
		LastWeek:     len(lastWeek),
		AverageScore: Round1(AverageScore(entries)),
		EntriesTrend: TrendDelta(float64(len(thisWeek)), float64(len(lastWeek))),
		ScoreTrend:   TrendDelta(AverageScore(thisWeek), AverageScore(lastWeek)),
		Recent:       recent,
	}
}

// Point is one chart sample.
type Point struct {
	Date    string  `json:"date"`
	Label   string  `json:"label"`
	Value   float64 `json:"value"`
	Present bool    `json:"present"`
}

// Series returns key's values in date order. An entry missing the metric
// contributes a zero point with Present false. An empty key plots the entry
// score.
func Series(entries []models.Entry, key models.MetricKey) []Point {
	sorted := Chronological(entries)
	out := make([]Point, 0, len(sorted))
	for _, e := range sorted {
		p := Point{Date: e.Date, Label: FormatShortDate(e.Date)}
		if key == "" {
			p.Value, p.Present = Round1(EntryScore(e)), e.Metrics.Answered() > 0
		} else {
			p.Value, p.Present = e.Metrics.Get(key)
		}
		out = append(out, p)
	}
	return out
}

// SortNewestFirst orders entries by date descending in place.
func SortNewestFirst(entries []models.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Date == entries[j].Date {
			return entries[i].ID > entries[j].ID
		}
		return entries[i].Date > entries[j].Date
	})
}
