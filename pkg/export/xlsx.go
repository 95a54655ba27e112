// Package export writes fetched records to spreadsheet files.
package export

import (
	"io"
	"sort"

	"atlas/pkg/fastjson"
	"atlas/pkg/keys"

	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// Columns is the sorted union of the columns of rows.
func Columns(rows []keys.Record) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, rec := range rows {
		for col := range rec {
			if !seen[col] {
				seen[col] = true
				cols = append(cols, col)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

// WriteXLSX writes rows as a single sheet with a header row. Loaded relations
// are stored as JSON text in their column.
func WriteXLSX(w io.Writer, sheet string, rows []keys.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = defaultSheet
	}
	if sheet != defaultSheet {
		if err := f.SetSheetName(defaultSheet, sheet); err != nil {
			return err
		}
	}

	cols := Columns(rows)
	for i, col := range cols {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, col); err != nil {
			return err
		}
	}

	for r, rec := range rows {
		for i, col := range cols {
			v, ok := rec[col]
			if !ok || v == nil {
				continue
			}
			value, err := cellValue(v)
			if err != nil {
				return err
			}
			cell, err := excelize.CoordinatesToCellName(i+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
	}

	_, err := f.WriteTo(w)
	return err
}

func cellValue(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case []byte:
		return string(t), nil
	case keys.Record, []keys.Record, []interface{}:
		out, err := fastjson.Marshal(t)
		if err != nil {
			return nil, err
		}
		return string(out), nil
	default:
		return t, nil
	}
}
