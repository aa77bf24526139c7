package spreadsheet

import (
	"fmt"

	"github.com/Sternrassler/sefaz-price-client/pkg/pricequery"
	"github.com/xuri/excelize/v2"
)

// SheetName is the name of the output sheet.
const SheetName = "Precos"

// Header is the output column header row.
var Header = []string{
	"GTIN",
	"Descrição",
	"Valor da Venda",
	"Data da Venda",
	"Estabelecimento",
	"Município",
	"Código IBGE",
}

// WriteRecords writes records to a new workbook at path, replacing any
// existing file.
func WriteRecords(path string, records []pricequery.PriceRecord) error {
	if len(records) == 0 {
		return ErrNoRecords
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := recordRow(rec)
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// recordRow lays out one record in Header order. A missing sale value
// leaves the cell empty.
func recordRow(rec pricequery.PriceRecord) []any {
	var value any
	if rec.SaleValue.Valid {
		value = rec.SaleValue.Decimal.InexactFloat64()
	}

	return []any{
		rec.GTIN,
		rec.Description,
		value,
		rec.SaleDate,
		rec.Establishment,
		rec.Municipality,
		rec.RegionCode,
	}
}
