package codec

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/starford/wellbeing/internal/analytics"
	"github.com/starford/wellbeing/internal/models"
)

const sheetName = "Entries"

// xlsxHeader returns the spreadsheet columns: identity, then one column per
// metric in catalog order, then the derived score and timestamps.
func xlsxHeader() []string {
	h := []string{"ID", "Date", "Phase"}
	for _, m := range models.MetricCatalog() {
		h = append(h, m.Label)
	}
	return append(h, "Score", "Created At", "Updated At")
}

// EncodeXLSX renders entries as a single-sheet workbook with a frozen header row.
func EncodeXLSX(entries []models.Entry) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("codec: create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("codec: drop default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("codec: header style: %w", err)
	}

	header := xlsxHeader()
	for col, title := range header {
		if err := setCell(f, col+1, 1, title); err != nil {
			return nil, err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(sheetName, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("codec: apply header style: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(header))
	if err := f.SetColWidth(sheetName, "A", lastCol, 18); err != nil {
		return nil, fmt.Errorf("codec: column width: %w", err)
	}

	for i, e := range entries {
		row := i + 2
		values := []any{e.ID, e.Date, e.Phase.Label()}
		for _, k := range models.MetricKeys() {
			if v, ok := e.Metrics.Get(k); ok {
				values = append(values, v)
			} else {
				values = append(values, nil)
			}
		}
		values = append(values,
			analytics.Round1(analytics.EntryScore(e)),
			e.CreatedAt.UTC().Format(time.RFC3339),
			e.UpdatedAt.UTC().Format(time.RFC3339),
		)
		for col, v := range values {
			if v == nil {
				continue
			}
			if err := setCell(f, col+1, row, v); err != nil {
				return nil, err
			}
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("codec: freeze header: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("codec: write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func setCell(f *excelize.File, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("codec: cell name: %w", err)
	}
	if err := f.SetCellValue(sheetName, cell, value); err != nil {
		return fmt.Errorf("codec: set %s: %w", cell, err)
	}
	return nil
}
