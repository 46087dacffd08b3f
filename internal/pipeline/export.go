package pipeline

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"zilazol/internal"
)

func ExportCanonicalNamesToXLSX(rows []internal.CanonicalNameRow, outputPath string) error {
	headers := []string{"code", "canonical_name", "variants", "updated_at"}
	return writeSheet(headers, len(rows), outputPath, func(i int, set func(col int, value any)) {
		row := rows[i]
		set(1, row.Code)
		set(2, row.Name)
		set(3, row.Variants)
		set(4, row.UpdatedAt)
	})
}

func ExportStoresToXLSX(rows []internal.StoreRow, outputPath string) error {
	headers := []string{"chain_id", "subchain_id", "subchain_name", "store_id", "type", "name", "address", "city", "zip_code"}
	return writeSheet(headers, len(rows), outputPath, func(i int, set func(col int, value any)) {
		row := rows[i]
		set(1, row.ChainID)
		set(2, derefString(row.SubchainID))
		set(3, derefString(row.SubchainName))
		set(4, derefString(row.StoreID))
		set(5, row.Type)
		set(6, derefString(row.Name))
		set(7, derefString(row.Address))
		set(8, derefString(row.City))
		set(9, derefString(row.ZipCode))
	})
}

func writeSheet(headers []string, n int, outputPath string, fill func(i int, set func(col int, value any))) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i := 0; i < n; i++ {
		r := i + 2
		fill(i, func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		})
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
