package report

import (
	"github.com/xuri/excelize/v2"

	"ledgerpos/backend/internal/domain"
)

var valuationHeader = []any{"SKU", "Product", "Branch", "Quantity", "Value"}

// ValuationWorkbook renders the valuation report as a single-sheet xlsx file.
// Money columns are written in currency units, not cents.
func ValuationWorkbook(rep domain.ValuationReport) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if err := writeRow(f, sheet, 1, valuationHeader); err != nil {
		return nil, err
	}

	row := 2
	for _, line := range rep.Lines {
		values := []any{line.SKU, line.Name, line.BranchID, line.Qty, centsToUnits(line.ValueCents)}
		if err := writeRow(f, sheet, row, values); err != nil {
			return nil, err
		}
		row++
	}
	if err := writeRow(f, sheet, row, []any{"TOTAL", "", "", "", centsToUnits(rep.TotalCents)}); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func centsToUnits(cents int64) float64 {
	return float64(cents) / 100
}
