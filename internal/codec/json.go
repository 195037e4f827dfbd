// Package codec converts entries to and from their export formats.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/starford/wellbeing/internal/apperr"
	"github.com/starford/wellbeing/internal/models"
)

// Record is one decoded import element. Timestamps are nil when the payload
// omitted them.
type Record struct {
	ID        int64
	Date      string
	Phase     models.Phase
	Metrics   models.Metrics
	CreatedAt *time.Time
	UpdatedAt *time.Time
}

// Entry converts r to an entry, filling missing timestamps with now.
func (r Record) Entry(now time.Time) models.Entry {
	e := models.Entry{
		ID:        r.ID,
		Date:      r.Date,
		Phase:     r.Phase,
		Metrics:   r.Metrics,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if r.CreatedAt != nil {
		e.CreatedAt = *r.CreatedAt
	}
	if r.UpdatedAt != nil {
		e.UpdatedAt = *r.UpdatedAt
	}
	return e
}

type wireEntry struct {
	ID        *int64          `json:"id"`
	Date      string          `json:"date"`
	Phase     models.Phase    `json:"phase"`
	Metrics   *models.Metrics `json:"metrics"`
	CreatedAt *time.Time      `json:"createdAt"`
	UpdatedAt *time.Time      `json:"updatedAt"`
}

// EncodeJSON renders entries as a JSON array indented by two spaces, one
// element per entry with fields in wire order.
func EncodeJSON(entries []models.Entry) ([]byte, error) {
	if entries == nil {
		entries = []models.Entry{}
	}
	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("codec: encode entries: %w", err)
	}
	return out, nil
}

// DecodeJSON parses an export payload. Anything other than a JSON array of
// entry objects is rejected as a whole with *apperr.ImportFormatError.
func DecodeJSON(data []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &apperr.ImportFormatError{Reason: "payload is empty"}
	}
	if trimmed[0] != '[' {
		return nil, &apperr.ImportFormatError{Reason: "payload must be a JSON array of entries"}
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, &apperr.ImportFormatError{Reason: "malformed JSON", Err: err}
	}

	out := make([]Record, 0, len(raw))
	for i, elem := range raw {
		elem = bytes.TrimSpace(elem)
		if len(elem) == 0 || elem[0] != '{' {
			return nil, &apperr.ImportFormatError{Reason: fmt.Sprintf("element %d is not an entry object", i)}
		}
		var w wireEntry
		if err := json.Unmarshal(elem, &w); err != nil {
			return nil, &apperr.ImportFormatError{Reason: fmt.Sprintf("element %d", i), Err: err}
		}
		if w.Metrics == nil {
			return nil, &apperr.ImportFormatError{Reason: fmt.Sprintf("element %d has no metrics object", i)}
		}
		r := Record{
			Date:      w.Date,
			Phase:     w.Phase,
			Metrics:   *w.Metrics,
			CreatedAt: w.CreatedAt,
			UpdatedAt: w.UpdatedAt,
		}
		if w.ID != nil {
			if *w.ID <= 0 {
				return nil, &apperr.ImportFormatError{Reason: fmt.Sprintf("element %d has non-positive id %d", i, *w.ID)}
			}
			r.ID = *w.ID
		}
		out = append(out, r)
	}
	return out, nil
}

// ExportFilename names an export file for the given day.
func ExportFilename(day time.Time, ext string) string {
	return fmt.Sprintf("wellbeing-data-%s.%s", models.FormatDate(day), ext)
}
