package services

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"gym-agent-server-go/models"
)

// AggregationService answers questions that span several collections.
type AggregationService struct {
	svc *Services
}

// NewAggregationService builds on the entity services in svc.
func NewAggregationService(svc *Services) *AggregationService {
	return &AggregationService{svc: svc}
}

// Summarize renders the payments, notes and attendance of one student as text.
func (a *AggregationService) Summarize(ctx context.Context, alumnoID string) models.SummaryEnvelope {
	if alumnoID == "" {
		return models.SummaryEnvelope{Status: models.StatusError, Message: "Falta el alumno_id."}
	}

	found := a.svc.Students.Execute(ctx, ActionRead, models.Record{models.FieldID: alumnoID})
	student, ok := found.Data.(models.Record)
	if !found.OK() || !ok {
		return models.SummaryEnvelope{Status: models.StatusError, Message: "Alumno no encontrado para el resumen."}
	}

	byStudent := models.Record{models.FieldAlumnoID: alumnoID}
	payments := recordsOf(a.svc.Payments.Execute(ctx, ActionRead, byStudent))
	notes := recordsOf(a.svc.Notes.Execute(ctx, ActionRead, byStudent))
	attendance := recordsOf(a.svc.Attendance.Execute(ctx, ActionRead, byStudent))

	name := student.FullName()
	text := fmt.Sprintf("Resumen para %s:\n\nPagos:\n%s\n\nNotas:\n%s\n\nAsistencias:\n%s\n",
		name,
		renderBlock(payments, "No hay registros de pagos para "+name+".", paymentLine),
		renderBlock(notes, "No hay notas para "+name+".", noteLine),
		renderBlock(attendance, "No hay registros de asistencias para "+name+".", attendanceLine),
	)

	log.WithFields(log.Fields{
		"alumno_id":   alumnoID,
		"pagos":       len(payments),
		"notas":       len(notes),
		"asistencias": len(attendance),
	}).Debug("Summary rendered")

	return models.SummaryEnvelope{
		Status:  models.StatusSuccess,
		Message: "Resumen generado para " + name + ".",
		Resumen: &text,
	}
}

// LatestPaymentByName resolves a student by name and returns their most
// recent payment, or null data when they have none.
func (a *AggregationService) LatestPaymentByName(ctx context.Context, nombre, apellido string) models.Envelope {
	if nombre == "" || apellido == "" {
		return models.Failure("Faltan nombre o apellido.")
	}

	found := a.svc.Students.Execute(ctx, ActionRead, models.Record{
		models.FieldNombre:   nombre,
		models.FieldApellido: apellido,
	})
	student, ok := found.Data.(models.Record)
	if !found.OK() || !ok {
		return models.Failure(fmt.Sprintf("Alumno %s %s no encontrado para verificar el último pago.", nombre, apellido))
	}
	if !student.HasValue(models.FieldID) {
		return models.Failure(fmt.Sprintf("No se pudo obtener el ID del alumno %s %s.", nombre, apellido))
	}

	payments := recordsOf(a.svc.Payments.Execute(ctx, ActionRead, models.Record{
		models.FieldAlumnoID: student[models.FieldID],
	}))
	if len(payments) == 0 {
		return models.Success(fmt.Sprintf("No se encontraron pagos para el alumno %s %s.", nombre, apellido), nil)
	}
	return models.Success(fmt.Sprintf("Último pago encontrado para %s %s.", nombre, apellido), payments[0])
}

// recordsOf extracts a record list from a successful read envelope.
func recordsOf(env models.Envelope) []models.Record {
	if !env.OK() {
		return nil
	}
	records, _ := env.Data.([]models.Record)
	return records
}

func renderBlock(records []models.Record, empty string, line func(models.Record) string) string {
	if len(records) == 0 {
		return empty
	}
	lines := make([]string, len(records))
	for i, rec := range records {
		lines[i] = line(rec)
	}
	return strings.Join(lines, "\n")
}

func paymentLine(p models.Record) string {
	fecha := p.Text(models.FieldFechaPago)
	if fecha == "" {
		fecha = p.Text(models.FieldFecha)
	}
	line := fmt.Sprintf("- Fecha: %s, Monto: $%s", fecha, p.Text(models.FieldMonto))
	if p.HasValue(models.FieldEstado) {
		line += ", Estado: " + p.Text(models.FieldEstado)
	}
	return line
}

func noteLine(n models.Record) string {
	return fmt.Sprintf("- Fecha: %s: %s", n.Text(models.FieldFecha), n.Text(models.FieldContenido))
}

func attendanceLine(a models.Record) string {
	line := fmt.Sprintf("- Fecha: %s, Estado: %s", a.Text(models.FieldFecha), a.Text(models.FieldEstado))
	if a.HasValue(models.FieldSede) {
		line += ", Sede: " + a.Text(models.FieldSede)
	}
	return line
}
