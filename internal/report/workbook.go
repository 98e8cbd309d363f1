// Package report renders maintenance data as spreadsheets and printable
// work orders.
package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/garnizeh/medequip/pkg/models"
)

const (
	LedgerSheet     = "Ledger"
	StatisticsSheet = "Statistics"
	dateLayout      = "2006-01-02 15:04"
)

var ledgerHeader = []any{"Maintenance ID", "Equipment", "Type", "Location", "Issue", "Description", "Resolution", "Technician", "Date", "Failure Report"}

// MaintenanceWorkbook writes the ledger and its per-type issue counts to an
// xlsx workbook.
func MaintenanceWorkbook(entries []models.MaintenanceRecord, stats []models.MaintenanceStatistics, generated time.Time) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", LedgerSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(StatisticsSheet); err != nil {
		return nil, fmt.Errorf("add sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	if err := writeLedger(f, header, entries); err != nil {
		return nil, err
	}
	if err := writeStatistics(f, header, stats, generated); err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf, nil
}

func writeLedger(f *excelize.File, header int, entries []models.MaintenanceRecord) error {
	if err := f.SetSheetRow(LedgerSheet, "A1", &ledgerHeader); err != nil {
		return fmt.Errorf("ledger header: %w", err)
	}
	last, _ := excelize.ColumnNumberToName(len(ledgerHeader))
	if err := f.SetCellStyle(LedgerSheet, "A1", last+"1", header); err != nil {
		return fmt.Errorf("ledger header style: %w", err)
	}

	for i, m := range entries {
		var typ, location string
		if d := m.EquipmentDetails; d != nil {
			typ, location = string(d.Type), d.Location
		}
		row := []any{
			m.MaintenanceID, m.Equipment, typ, location, m.Issue, m.Description,
			m.Resolution, m.Technician, m.MaintenanceDate.UTC().Format(dateLayout), m.FailureID,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(LedgerSheet, cell, &row); err != nil {
			return fmt.Errorf("ledger row %d: %w", i+2, err)
		}
	}

	_ = f.SetColWidth(LedgerSheet, "A", "A", 26)
	_ = f.SetColWidth(LedgerSheet, "B", "D", 18)
	_ = f.SetColWidth(LedgerSheet, "E", "G", 30)
	_ = f.SetColWidth(LedgerSheet, "H", "J", 20)
	return f.SetPanes(LedgerSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func writeStatistics(f *excelize.File, header int, stats []models.MaintenanceStatistics, generated time.Time) error {
	if err := f.SetCellValue(StatisticsSheet, "A1", "Generated "+generated.UTC().Format(dateLayout)); err != nil {
		return err
	}
	if err := f.SetSheetRow(StatisticsSheet, "A3", &[]any{"Equipment Type", "Issue", "Count"}); err != nil {
		return err
	}
	if err := f.SetCellStyle(StatisticsSheet, "A3", "C3", header); err != nil {
		return err
	}

	row := 4
	for _, st := range stats {
		for _, ic := range st.Issues {
			cell, _ := excelize.CoordinatesToCellName(1, row)
			if err := f.SetSheetRow(StatisticsSheet, cell, &[]any{st.EquipmentType, ic.Issue, ic.Count}); err != nil {
				return err
			}
			row++
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(StatisticsSheet, cell, &[]any{st.EquipmentType, "Total", st.Total}); err != nil {
			return err
		}
		row++
	}

	_ = f.SetColWidth(StatisticsSheet, "A", "B", 28)
	return nil
}
