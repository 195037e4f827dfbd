package models

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/starford/wellbeing/internal/apperr"
)

func candidate(m Metrics) Candidate {
	return Candidate{Date: "2024-01-08", Phase: PhaseClarity, Metrics: m}
}

func TestValidate_ScoreBounds(t *testing.T) {
	tests := []struct {
		value float64
		ok    bool
	}{
		{0, true},
		{10, true},
		{5.5, true},
		{10.5, false},
		{-1, false},
		{math.NaN(), false},
		{math.Inf(1), false},
	}
	for _, tt := range tests {
		err := candidate(Metrics{Agency: Score(tt.value)}).Validate()
		if tt.ok && err != nil {
			t.Errorf("value %v: unexpected error %v", tt.value, err)
		}
		if !tt.ok {
			var ve *apperr.ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("value %v: expected *ValidationError, got %v", tt.value, err)
				continue
			}
			if _, ok := ve.Fields["metrics.agency"]; !ok {
				t.Errorf("value %v: fields = %v, want metrics.agency", tt.value, ve.Fields)
			}
		}
	}
}

func TestValidate_BoundaryValuesNotClamped(t *testing.T) {
	c := candidate(Metrics{Agency: Score(10), Clarity: Score(0)})
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if *c.Metrics.Agency != 10 || *c.Metrics.Clarity != 0 {
		t.Errorf("values changed: %v %v", *c.Metrics.Agency, *c.Metrics.Clarity)
	}
}

func TestValidate_MissingMetricsAllowed(t *testing.T) {
	if err := candidate(Metrics{}).Validate(); err != nil {
		t.Errorf("empty metrics should validate: %v", err)
	}
}

func TestValidate_DateAndPhase(t *testing.T) {
	tests := []struct {
		name  string
		c     Candidate
		field string
	}{
		{"missing date", Candidate{Phase: PhaseClarity}, "date"},
		{"bad date", Candidate{Date: "08/01/2024", Phase: PhaseClarity}, "date"},
		{"impossible date", Candidate{Date: "2024-02-30", Phase: PhaseClarity}, "date"},
		{"missing phase", Candidate{Date: "2024-01-08"}, "phase"},
		{"unknown phase", Candidate{Date: "2024-01-08", Phase: "mastery"}, "phase"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			if !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			var ve *apperr.ValidationError
			errors.As(err, &ve)
			if _, ok := ve.Fields[tt.field]; !ok {
				t.Errorf("fields = %v, want %s", ve.Fields, tt.field)
			}
		})
	}
}

func TestMerge_DefinedValuesWin(t *testing.T) {
	base := Metrics{Agency: Score(3), Clarity: Score(4), BoundaryPressure: Score(5)}
	over := Metrics{Agency: Score(9), RelationalTone: Score(0)}

	got := base.Merge(over)
	want := Metrics{Agency: Score(9), Clarity: Score(4), BoundaryPressure: Score(5), RelationalTone: Score(0)}
	if !got.Equal(want) {
		t.Errorf("merge = %+v, want %+v", got, want)
	}
	if *base.Agency != 3 {
		t.Error("Merge modified its receiver")
	}
	*got.Clarity = 1
	if *base.Clarity != 4 {
		t.Error("merged metrics share pointers with the receiver")
	}
}

func TestAnsweredAndValues(t *testing.T) {
	m := Metrics{Clarity: Score(2), RelationalTone: Score(1)}
	if m.Answered() != 2 {
		t.Errorf("answered = %d, want 2", m.Answered())
	}
	vals := m.Values()
	if len(vals) != 2 || vals[0] != 1 || vals[1] != 2 {
		t.Errorf("values = %v, want catalog order [1 2]", vals)
	}
	if DefaultMetrics().Answered() != MetricCount {
		t.Error("defaults should answer every metric")
	}
}

func TestEntryJSON_FieldOrderAndAbsentMetrics(t *testing.T) {
	e := Entry{ID: 1, Date: "2024-01-08", Phase: PhaseStrength, Metrics: Metrics{Agency: Score(7)}}
	out, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	s := string(out)
	order := []string{`"id"`, `"date"`, `"phase"`, `"metrics"`, `"createdAt"`, `"updatedAt"`}
	last := -1
	for _, key := range order {
		i := strings.Index(s, key)
		if i <= last {
			t.Fatalf("field %s out of order in %s", key, s)
		}
		last = i
	}
	if strings.Contains(s, "boundaryPressure") {
		t.Errorf("absent metric serialized: %s", s)
	}
}

func TestCatalog(t *testing.T) {
	if len(Phases()) != 4 || Phases()[0].ID != PhaseAwareness {
		t.Errorf("phases = %+v", Phases())
	}
	if PhaseOwnership.Label() != "Ownership" || Phase("x").Label() != "x" {
		t.Error("unexpected phase labels")
	}
	if info, ok := MetricByKey(MetricBoundaryIntegrity); !ok || info.Label != "Boundary Integrity" {
		t.Errorf("metric = %+v", info)
	}
	if len(MetricKeys()) != MetricCount {
		t.Errorf("keys = %d", len(MetricKeys()))
	}
}
