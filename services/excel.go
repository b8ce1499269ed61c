package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"gym-agent-server-go/models"
)

// Report sheets, in workbook order.
var reportSheets = []struct {
	name    string
	leading []string
}{
	{"Alumnos", []string{models.FieldID, models.FieldNombre, models.FieldApellido}},
	{"Pagos", []string{models.FieldID, models.FieldAlumnoID, models.FieldFecha, models.FieldMonto}},
	{"Notas", []string{models.FieldID, models.FieldAlumnoID, models.FieldFecha, models.FieldContenido}},
	{"Asistencias", []string{models.FieldID, models.FieldAlumnoID, models.FieldFecha, models.FieldEstado}},
}

// ExcelService moves records in and out of .xlsx workbooks.
type ExcelService struct {
	svc *Services
}

// NewExcelService creates an ExcelService over the entity services.
func NewExcelService(svc *Services) *ExcelService {
	return &ExcelService{svc: svc}
}

// ImportStudentsFromExcel reads the first sheet of an Excel stream and
// creates one student per row. The first row holds field names and must
// include nombre and apellido; other named columns become extra fields.
func (x *ExcelService) ImportStudentsFromExcel(ctx context.Context, file io.Reader) (int, error) {
	f, err := excelize.OpenReader(file)
	if err != nil {
		log.Printf("Error opening Excel reader: %v", err)
		return 0, fmt.Errorf("failed to open excel file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("Error closing excel file: %v", err)
		}
	}()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return 0, errors.New("excel file does not contain any sheets")
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		log.Printf("Error getting rows from sheet '%s': %v", sheetName, err)
		return 0, fmt.Errorf("failed to get rows from sheet %s: %w", sheetName, err)
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("sheet %s is empty", sheetName)
	}

	header := make([]string, len(rows[0]))
	for i, cell := range rows[0] {
		header[i] = strings.ToLower(strings.TrimSpace(cell))
	}
	if !contains(header, models.FieldNombre) || !contains(header, models.FieldApellido) {
		return 0, fmt.Errorf("header row of sheet %s must name the %q and %q columns", sheetName, models.FieldNombre, models.FieldApellido)
	}

	importedCount := 0
	for i, row := range rows[1:] {
		payload := models.Record{}
		for col, cell := range row {
			cell = strings.TrimSpace(cell)
			if col >= len(header) || header[col] == "" || header[col] == models.FieldID || cell == "" {
				continue
			}
			payload[header[col]] = cell
		}

		if !payload.HasValue(models.FieldNombre) || !payload.HasValue(models.FieldApellido) {
			log.Printf("Skipping row %d due to missing nombre or apellido", i+2)
			continue
		}

		result := x.svc.Students.Execute(ctx, ActionCreate, payload)
		if !result.OK() {
			log.Printf("Error adding student %s during import: %s", payload.FullName(), result.Message)
			continue
		}
		importedCount++
	}

	log.Printf("Successfully imported %d students from sheet %s", importedCount, sheetName)
	return importedCount, nil
}

// ExportReport writes every collection to w as a workbook with one sheet per
// entity. Columns are the entity's main fields followed by any extra field
// found in the records, sorted by name.
func (x *ExcelService) ExportReport(ctx context.Context, w io.Writer) error {
	collections := [][]models.Record{
		recordsOf(x.svc.Students.Execute(ctx, ActionRead, nil)),
		recordsOf(x.svc.Payments.Execute(ctx, ActionRead, nil)),
		recordsOf(x.svc.Notes.Execute(ctx, ActionRead, nil)),
		recordsOf(x.svc.Attendance.Execute(ctx, ActionRead, nil)),
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("Error closing excel file: %v", err)
		}
	}()

	for i, sheet := range reportSheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sheet.name); err != nil {
				return fmt.Errorf("failed to name sheet %s: %w", sheet.name, err)
			}
		} else if _, err := f.NewSheet(sheet.name); err != nil {
			return fmt.Errorf("failed to add sheet %s: %w", sheet.name, err)
		}
		if err := writeSheet(f, sheet.name, sheet.leading, collections[i]); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, leading []string, records []models.Record) error {
	columns := reportColumns(leading, records)
	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header of sheet %s: %w", sheet, err)
	}

	for r, rec := range records {
		row := make([]interface{}, len(columns))
		for i, c := range columns {
			row[i] = cellValue(rec, c)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d of sheet %s: %w", r+2, sheet, err)
		}
	}
	return nil
}

func reportColumns(leading []string, records []models.Record) []string {
	seen := make(map[string]bool, len(leading))
	for _, c := range leading {
		seen[c] = true
	}
	var extra []string
	for _, rec := range records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	return append(append([]string(nil), leading...), extra...)
}

func cellValue(rec models.Record, field string) interface{} {
	switch v := rec[field].(type) {
	case nil:
		return ""
	case string, float64, bool:
		return v
	default:
		return rec.Text(field)
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
