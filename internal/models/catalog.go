package models

// Score bounds for every metric.
const (
	MinScore = 0.0
	MaxScore = 10.0
)

// Phase identifies one stage of the programme an entry is recorded against.
type Phase string

// Known phases, in programme order.
const (
	PhaseAwareness Phase = "awareness"
	PhaseClarity   Phase = "clarity"
	PhaseStrength  Phase = "strength"
	PhaseOwnership Phase = "ownership"
)

// PhaseInfo is the catalog description of a phase.
type PhaseInfo struct {
	ID    Phase  `json:"id"`
	Label string `json:"name"`
	Weeks string `json:"weeks"`
}

var phases = []PhaseInfo{
	{ID: PhaseAwareness, Label: "Awareness", Weeks: "1–6"},
	{ID: PhaseClarity, Label: "Clarity", Weeks: "7–12"},
	{ID: PhaseStrength, Label: "Strength", Weeks: "13–18"},
	{ID: PhaseOwnership, Label: "Ownership", Weeks: "19–25"},
}

// Phases returns the phase catalog in programme order.
func Phases() []PhaseInfo {
	out := make([]PhaseInfo, len(phases))
	copy(out, phases)
	return out
}

// PhaseByID looks up a phase in the catalog.
func PhaseByID(id Phase) (PhaseInfo, bool) {
	for _, p := range phases {
		if p.ID == id {
			return p, true
		}
	}
	return PhaseInfo{}, false
}

// Valid reports whether p is one of the catalog phases.
func (p Phase) Valid() bool {
	_, ok := PhaseByID(p)
	return ok
}

// Label returns the human-readable phase name, or the raw value for unknown phases.
func (p Phase) Label() string {
	if info, ok := PhaseByID(p); ok {
		return info.Label
	}
	return string(p)
}

// MetricKey names one of the six tracked scores.
type MetricKey string

// Tracked metrics, in display order.
const (
	MetricRelationalTone       MetricKey = "relationalTone"
	MetricOperationalReadiness MetricKey = "operationalReadiness"
	MetricBoundaryPressure     MetricKey = "boundaryPressure"
	MetricBoundaryIntegrity    MetricKey = "boundaryIntegrity"
	MetricAgency               MetricKey = "agency"
	MetricClarity              MetricKey = "clarity"
)

// MetricInfo is the catalog description of a metric.
type MetricInfo struct {
	Key   MetricKey `json:"id"`
	Label string    `json:"name"`
	Icon  string    `json:"icon"`
}

var metrics = []MetricInfo{
	{Key: MetricRelationalTone, Label: "Relational Tone", Icon: "groups"},
	{Key: MetricOperationalReadiness, Label: "Operational Readiness", Icon: "task_alt"},
	{Key: MetricBoundaryPressure, Label: "Boundary Pressure", Icon: "compress"},
	{Key: MetricBoundaryIntegrity, Label: "Boundary Integrity", Icon: "shield"},
	{Key: MetricAgency, Label: "Agency", Icon: "pan_tool"},
	{Key: MetricClarity, Label: "Clarity", Icon: "lightbulb"},
}

// MetricCount is the number of tracked metrics.
const MetricCount = 6

// MetricCatalog returns the metric catalog in display order.
func MetricCatalog() []MetricInfo {
	out := make([]MetricInfo, len(metrics))
	copy(out, metrics)
	return out
}

// MetricKeys returns the metric keys in display order.
func MetricKeys() []MetricKey {
	out := make([]MetricKey, len(metrics))
	for i, m := range metrics {
		out[i] = m.Key
	}
	return out
}

// MetricByKey looks up a metric in the catalog.
func MetricByKey(key MetricKey) (MetricInfo, bool) {
	for _, m := range metrics {
		if m.Key == key {
			return m, true
		}
	}
	return MetricInfo{}, false
}

// DefaultMetrics returns the starting values offered for a day with no stored entry.
func DefaultMetrics() Metrics {
	return Metrics{
		RelationalTone:       Score(8),
		OperationalReadiness: Score(6),
		BoundaryPressure:     Score(5),
		BoundaryIntegrity:    Score(7),
		Agency:               Score(8),
		Clarity:              Score(6),
	}
}
