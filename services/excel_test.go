package services

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"gym-agent-server-go/models"
)

func buildWorkbook(t *testing.T, rows [][]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow(sheet, cell, &r))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestImportStudentsFromExcel(t *testing.T) {
	svc, _ := newTestServices(t)
	x := NewExcelService(svc)

	file := buildWorkbook(t, [][]interface{}{
		{"Nombre", "Apellido", "Telefono", "id"},
		{"Ana", "Lopez", "555-1", "ignored"},
		{"", "SinNombre", "555-2"},
		{"Juan", "Perez"},
	})

	count, err := x.ImportStudentsFromExcel(context.Background(), file)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	students := recordsOf(svc.Students.Execute(context.Background(), ActionRead, nil))
	require.Len(t, students, 2)
	assert.Equal(t, "Ana", students[0]["nombre"])
	assert.Equal(t, "555-1", students[0]["telefono"])
	assert.NotEqual(t, "ignored", students[0]["id"])
	assert.Equal(t, "Perez", students[1]["apellido"])
	assert.False(t, students[1].Has("telefono"))
}

func TestImportStudentsRequiresHeader(t *testing.T) {
	svc, _ := newTestServices(t)
	x := NewExcelService(svc)

	file := buildWorkbook(t, [][]interface{}{{"Ana", "Lopez"}})
	_, err := x.ImportStudentsFromExcel(context.Background(), file)
	assert.Error(t, err)

	_, err = x.ImportStudentsFromExcel(context.Background(), bytes.NewBufferString("not a workbook"))
	assert.Error(t, err)
}

func TestExportReport(t *testing.T) {
	svc, _ := newTestServices(t)
	x := NewExcelService(svc)
	ctx := context.Background()

	ana := mustCreate(t, svc.Students, models.Record{"nombre": "Ana", "apellido": "Lopez", "telefono": "555"})
	mustCreate(t, svc.Payments, models.Record{"alumno_id": ana["id"], "fecha": "2024-05-01", "monto": float64(100)})

	var buf bytes.Buffer
	require.NoError(t, x.ExportReport(ctx, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Alumnos", "Pagos", "Notas", "Asistencias"}, f.GetSheetList())

	rows, err := f.GetRows("Alumnos")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"id", "nombre", "apellido", "telefono"}, rows[0])
	assert.Equal(t, []string{ana.Text("id"), "Ana", "Lopez", "555"}, rows[1])

	payments, err := f.GetRows("Pagos")
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, "100", payments[1][3])

	notes, err := f.GetRows("Notas")
	require.NoError(t, err)
	assert.Len(t, notes, 1, "header only")
}
