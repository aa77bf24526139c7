// Package spreadsheet reads the GTIN input list and writes the price
// records found to an xlsx workbook.
package spreadsheet

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
)

// IdentifierColumn is the header of the input column holding GTINs.
const IdentifierColumn = "GTIN"

// Errors returned by the spreadsheet functions.
var (
	// ErrFileNotFound indicates the input workbook does not exist.
	ErrFileNotFound = errors.New("input file not found")

	// ErrColumnNotFound indicates the header row has no GTIN column.
	ErrColumnNotFound = errors.New("GTIN column not found")

	// ErrNoRecords indicates WriteRecords was given nothing to write.
	ErrNoRecords = errors.New("no records to write")
)

// ReadIdentifiers returns the non-blank values of the GTIN column of the
// first sheet, in row order. Values are returned as stored; normalization
// and validation happen upstream.
func ReadIdentifiers(path string) ([]string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: %s has no sheets", ErrColumnNotFound, path)
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: sheet %q is empty", ErrColumnNotFound, sheets[0])
	}

	col := columnIndex(rows[0], IdentifierColumn)
	if col < 0 {
		return nil, fmt.Errorf("%w: sheet %q", ErrColumnNotFound, sheets[0])
	}

	ids := make([]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if col >= len(row) {
			continue
		}
		if v := strings.TrimSpace(row[col]); v != "" {
			ids = append(ids, v)
		}
	}
	return ids, nil
}

func columnIndex(header []string, name string) int {
	for i, cell := range header {
		if strings.EqualFold(strings.TrimSpace(cell), name) {
			return i
		}
	}
	return -1
}
