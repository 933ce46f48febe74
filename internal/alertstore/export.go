package alertstore

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// ExportHeader is the header row of the alert spreadsheet
var ExportHeader = []string{
	"Alert ID",
	"Timestamp",
	"Hive",
	"Category",
	"Type",
	"Priority",
	"Message",
	"Probability",
	"Level",
	"Recommended Actions",
	"Acknowledged By",
	"Resolved",
	"Resolved At",
	"Resolution Notes",
}

var exportColumnWidths = []float64{38, 22, 8, 13, 30, 10, 60, 12, 8, 80, 18, 10, 22, 40}

const exportSheet = "Alerts"

// ExportXLSX writes the fast-access list, newest first, as a spreadsheet
func (s *Store) ExportXLSX(w io.Writer) error {
	return WriteXLSX(w, s.Recent())
}

// WriteXLSX writes alerts as a single-sheet workbook
func WriteXLSX(w io.Writer, alerts []*Alert) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#FFF4D6"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range ExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(exportSheet, cell, header); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(exportSheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
	}

	for i, width := range exportColumnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(exportSheet, col, col, width); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, a := range alerts {
		row := exportRow(a)
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func exportRow(a *Alert) []any {
	var probability, level any
	if a.Probability != nil {
		probability = *a.Probability
	}
	if a.Level != nil {
		level = *a.Level
	}

	var actions string
	if a.Recommendations != nil {
		actions = strings.Join(a.Recommendations.Actions, "\n")
	}

	resolved := "No"
	var resolvedAt string
	if a.Resolved {
		resolved = "Yes"
	}
	if a.ResolvedAt != nil {
		resolvedAt = a.ResolvedAt.Format(time.RFC3339)
	}

	return []any{
		a.ID,
		a.Timestamp.Format(time.RFC3339),
		a.HiveID,
		string(a.Category),
		a.AlertType,
		string(a.Priority),
		a.Message,
		probability,
		level,
		actions,
		a.AcknowledgedBy,
		resolved,
		resolvedAt,
		a.ResolutionNotes,
	}
}
