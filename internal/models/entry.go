// Package models defines the wellbeing domain types and the static catalog.
package models

import (
	"errors"
	"math"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/wellbeing/internal/apperr"
)

// DateLayout is the calendar-date format used as the natural key of an entry.
const DateLayout = "2006-01-02"

// Entry is one day's recorded wellbeing scores.
type Entry struct {
	ID        int64     `json:"id"`
	Date      string    `json:"date"`
	Phase     Phase     `json:"phase"`
	Metrics   Metrics   `json:"metrics"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Candidate is the input of a save: the entry fields a caller wants stored.
// ID is informational; saves are keyed by Date.
type Candidate struct {
	ID      *int64  `json:"id,omitempty"`
	Date    string  `json:"date"`
	Phase   Phase   `json:"phase"`
	Metrics Metrics `json:"metrics"`
}

// Metrics holds the six scores. A nil field is absent, not zero.
type Metrics struct {
	RelationalTone       *float64 `json:"relationalTone,omitempty"`
	OperationalReadiness *float64 `json:"operationalReadiness,omitempty"`
	BoundaryPressure     *float64 `json:"boundaryPressure,omitempty"`
	BoundaryIntegrity    *float64 `json:"boundaryIntegrity,omitempty"`
	Agency               *float64 `json:"agency,omitempty"`
	Clarity              *float64 `json:"clarity,omitempty"`
}

// Score returns a pointer to v, for building Metrics literals.
func Score(v float64) *float64 { return &v }

// Uniform returns Metrics with every score set to v.
func Uniform(v float64) Metrics {
	var m Metrics
	for _, k := range MetricKeys() {
		m.Set(k, v)
	}
	return m
}

func (m *Metrics) field(key MetricKey) **float64 {
	switch key {
	case MetricRelationalTone:
		return &m.RelationalTone
	case MetricOperationalReadiness:
		return &m.OperationalReadiness
	case MetricBoundaryPressure:
		return &m.BoundaryPressure
	case MetricBoundaryIntegrity:
		return &m.BoundaryIntegrity
	case MetricAgency:
		return &m.Agency
	case MetricClarity:
		return &m.Clarity
	}
	return nil
}

// Get returns the value of key and whether it is present.
func (m Metrics) Get(key MetricKey) (float64, bool) {
	f := m.field(key)
	if f == nil || *f == nil {
		return 0, false
	}
	return **f, true
}

// Set stores v under key. Unknown keys are ignored.
func (m *Metrics) Set(key MetricKey, v float64) {
	if f := m.field(key); f != nil {
		*f = Score(v)
	}
}

// Clear marks key as absent.
func (m *Metrics) Clear(key MetricKey) {
	if f := m.field(key); f != nil {
		*f = nil
	}
}

// Answered counts the metrics that are present.
func (m Metrics) Answered() int {
	n := 0
	for _, k := range MetricKeys() {
		if _, ok := m.Get(k); ok {
			n++
		}
	}
	return n
}

// Values returns the present scores in catalog order.
func (m Metrics) Values() []float64 {
	out := make([]float64, 0, MetricCount)
	for _, k := range MetricKeys() {
		if v, ok := m.Get(k); ok {
			out = append(out, v)
		}
	}
	return out
}

// Merge returns m with every score defined in over replacing the one in m.
// Scores absent from over are kept from m.
func (m Metrics) Merge(over Metrics) Metrics {
	out := m.Clone()
	for _, k := range MetricKeys() {
		if v, ok := over.Get(k); ok {
			out.Set(k, v)
		}
	}
	return out
}

// Clone returns a deep copy so callers never share score pointers.
func (m Metrics) Clone() Metrics {
	var out Metrics
	for _, k := range MetricKeys() {
		if v, ok := m.Get(k); ok {
			out.Set(k, v)
		}
	}
	return out
}

// Equal reports whether both sets define the same keys with the same values.
func (m Metrics) Equal(o Metrics) bool {
	for _, k := range MetricKeys() {
		a, aok := m.Get(k)
		b, bok := o.Get(k)
		if aok != bok || a != b {
			return false
		}
	}
	return true
}

// Validate checks every present score lies within [MinScore, MaxScore].
func (m Metrics) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.RelationalTone, scoreRules...),
		validation.Field(&m.OperationalReadiness, scoreRules...),
		validation.Field(&m.BoundaryPressure, scoreRules...),
		validation.Field(&m.BoundaryIntegrity, scoreRules...),
		validation.Field(&m.Agency, scoreRules...),
		validation.Field(&m.Clarity, scoreRules...),
	)
}

var scoreRules = []validation.Rule{
	validation.By(finite),
	validation.Min(MinScore),
	validation.Max(MaxScore),
}

func finite(value any) error {
	p, _ := value.(*float64)
	if p == nil {
		return nil
	}
	if math.IsNaN(*p) || math.IsInf(*p, 0) {
		return errors.New("must be a finite number")
	}
	return nil
}

var phaseRule = validation.In(PhaseAwareness, PhaseClarity, PhaseStrength, PhaseOwnership).
	Error("must be one of awareness, clarity, strength, ownership")

// Validate checks the candidate's date, phase and scores.
// It returns an *apperr.ValidationError on failure.
func (c Candidate) Validate() error {
	return apperr.Validation(validation.ValidateStruct(&c,
		validation.Field(&c.Date, validation.Required, validation.Date(DateLayout).Error("must be a YYYY-MM-DD date")),
		validation.Field(&c.Phase, validation.Required, phaseRule),
		validation.Field(&c.Metrics),
	))
}

// Validate checks a stored or imported entry with the same rules as a candidate.
func (e Entry) Validate() error {
	return Candidate{Date: e.Date, Phase: e.Phase, Metrics: e.Metrics}.Validate()
}

// Candidate returns the writable fields of e.
func (e Entry) Candidate() Candidate {
	c := Candidate{Date: e.Date, Phase: e.Phase, Metrics: e.Metrics.Clone()}
	if e.ID != 0 {
		id := e.ID
		c.ID = &id
	}
	return c
}

// ParseDate parses a calendar date in DateLayout.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// FormatDate renders t's calendar date in its own location.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
