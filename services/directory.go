package services

import (
	"context"
	"fmt"
	"time"

	"gym-agent-server-go/db"
	"gym-agent-server-go/models"
)

const (
	defaultAbsenceDays = 7
	fechaLayout        = "2006-01-02"
	monthLayout        = "2006-01"
)

// DirectoryService holds the read-only lookups around the entity services:
// name listing, privileged users and greeting alerts.
type DirectoryService struct {
	svc           *Services
	sudoUsersPath string
	absenceDays   int
	now           func() time.Time
}

// NewDirectoryService creates a DirectoryService. absenceDays <= 0 uses 7.
func NewDirectoryService(svc *Services, sudoUsersPath string, absenceDays int) *DirectoryService {
	if absenceDays <= 0 {
		absenceDays = defaultAbsenceDays
	}
	return &DirectoryService{
		svc:           svc,
		sudoUsersPath: sudoUsersPath,
		absenceDays:   absenceDays,
		now:           time.Now,
	}
}

// SetClock overrides the time source used for alerts.
func (d *DirectoryService) SetClock(now func() time.Time) {
	d.now = now
}

// ListStudentNames returns "nombre apellido" for every student in storage order.
func (d *DirectoryService) ListStudentNames(ctx context.Context) models.NamesEnvelope {
	students := recordsOf(d.svc.Students.Execute(ctx, ActionRead, nil))
	if len(students) == 0 {
		return models.NamesEnvelope{Status: models.StatusSuccess, Message: "No hay alumnos registrados.", Nombres: []string{}}
	}
	names := make([]string, len(students))
	for i, s := range students {
		names[i] = s.FullName()
	}
	return models.NamesEnvelope{
		Status:  models.StatusSuccess,
		Message: fmt.Sprintf("Listado de %d nombres de alumnos.", len(names)),
		Nombres: names,
	}
}

// SudoUsers returns the static privileged users file as-is.
func (d *DirectoryService) SudoUsers(_ context.Context) models.Envelope {
	users := db.ReadJSONFile(d.sudoUsersPath)
	return models.Success(fmt.Sprintf("Listado de %d usuarios SUDO.", len(users)), users)
}

// GreetingAlerts flags students whose last attendance is older than the
// absence threshold and students with no payment dated in the current month.
func (d *DirectoryService) GreetingAlerts(ctx context.Context) models.AlertsEnvelope {
	now := d.now()
	students := recordsOf(d.svc.Students.Execute(ctx, ActionRead, nil))
	payments := groupByAlumno(recordsOf(d.svc.Payments.Execute(ctx, ActionRead, nil)))
	attendance := groupByAlumno(recordsOf(d.svc.Attendance.Execute(ctx, ActionRead, nil)))

	alerts := make([]models.Alert, 0)
	absent, unpaid := 0, 0
	for _, student := range students {
		id := student.Text(models.FieldID)
		if last, ok := latestFecha(attendance[id]); ok {
			days := int(now.Sub(last).Hours() / 24)
			if days >= d.absenceDays {
				absent++
				alerts = append(alerts, models.Alert{
					AlumnoID: id,
					Nombre:   student.FullName(),
					Tipo:     "asistencia",
					Mensaje:  fmt.Sprintf("No asiste hace %d días", days),
				})
			}
		}
		if !paidInMonth(payments[id], now) {
			unpaid++
			alerts = append(alerts, models.Alert{
				AlumnoID: id,
				Nombre:   student.FullName(),
				Tipo:     "pago",
				Mensaje:  "Pago del mes pendiente",
			})
		}
	}

	alerta := "¡Hola! No hay alertas pendientes."
	if len(alerts) > 0 {
		alerta = fmt.Sprintf("¡Hola! Aquí hay algunas alertas pendientes: %d personas no asistieron recientemente y %d deben el pago del mes.", absent, unpaid)
	}
	return models.AlertsEnvelope{
		Status:  models.StatusSuccess,
		Alerta:  alerta,
		Mensaje: "¿En qué puedo ayudarte hoy?",
		Alertas: alerts,
	}
}

func groupByAlumno(records []models.Record) map[string][]models.Record {
	out := make(map[string][]models.Record)
	for _, rec := range records {
		if id := rec.Text(models.FieldAlumnoID); id != "" {
			out[id] = append(out[id], rec)
		}
	}
	return out
}

// latestFecha returns the newest parseable fecha. Only the leading
// YYYY-MM-DD part is read so timestamps work too.
func latestFecha(records []models.Record) (time.Time, bool) {
	var latest time.Time
	found := false
	for _, rec := range records {
		fecha := rec.Text(models.FieldFecha)
		if len(fecha) < len(fechaLayout) {
			continue
		}
		t, err := time.Parse(fechaLayout, fecha[:len(fechaLayout)])
		if err != nil {
			continue
		}
		if !found || t.After(latest) {
			latest, found = t, true
		}
	}
	return latest, found
}

func paidInMonth(payments []models.Record, now time.Time) bool {
	month := now.Format(monthLayout)
	for _, p := range payments {
		fecha := p.Text(models.FieldFechaPago)
		if fecha == "" {
			fecha = p.Text(models.FieldFecha)
		}
		if len(fecha) >= len(monthLayout) && fecha[:len(monthLayout)] == month {
			return true
		}
	}
	return false
}
