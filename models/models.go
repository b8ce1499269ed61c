package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Collection names. The file store uses them as file base names and the
// redis store as key suffixes.
const (
	StudentsCollection   = "alumnos"
	PaymentsCollection   = "pagos"
	NotesCollection      = "notas"
	AttendanceCollection = "asistencias"
)

// Field names used by the services. Any other field sent by a caller is
// stored as-is.
const (
	FieldID        = "id"
	FieldNombre    = "nombre"
	FieldApellido  = "apellido"
	FieldAlumnoID  = "alumno_id"
	FieldFecha     = "fecha"
	FieldFechaPago = "fecha_pago"
	FieldMonto     = "monto"
	FieldContenido = "contenido"
	FieldEstado    = "estado"
	FieldSede      = "sede"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Record is one student, payment, note or attendance entry.
type Record map[string]interface{}

// Has reports whether key is present, whatever its value.
func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// HasValue reports whether key is present with a non-empty value.
func (r Record) HasValue(key string) bool {
	v, ok := r[key]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return s != ""
	}
	return true
}

// Text renders the value under key for human-readable output. Missing and
// null values render as "".
func (r Record) Text(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// FullName is "nombre apellido" trimmed.
func (r Record) FullName() string {
	return strings.TrimSpace(r.Text(FieldNombre) + " " + r.Text(FieldApellido))
}

// Clone returns a deep copy so that callers can mutate the result without
// touching stored data.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return map[string]interface{}(Record(t).Clone())
	case Record:
		return t.Clone()
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// CloneRecords deep-copies a slice of records.
func CloneRecords(records []Record) []Record {
	out := make([]Record, len(records))
	for i, rec := range records {
		out[i] = rec.Clone()
	}
	return out
}

// Envelope is the result of every CRUD and aggregation operation.
type Envelope struct {
	Status  string      `json:"status"`  // "success" or "error"
	Message string      `json:"message"` // Human-readable, Spanish
	Data    interface{} `json:"data"`    // Record, []Record, or nil
}

// OK reports whether the envelope carries a success status.
func (e Envelope) OK() bool {
	return e.Status == StatusSuccess
}

// Success builds a success envelope.
func Success(message string, data interface{}) Envelope {
	return Envelope{Status: StatusSuccess, Message: message, Data: data}
}

// Failure builds an error envelope with null data.
func Failure(message string) Envelope {
	return Envelope{Status: StatusError, Message: message, Data: nil}
}

// SummaryEnvelope is the result of a student summary.
type SummaryEnvelope struct {
	Status  string  `json:"status"`
	Message string  `json:"message,omitempty"`
	Resumen *string `json:"resumen"`
}

// NamesEnvelope lists full student names.
type NamesEnvelope struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Nombres []string `json:"nombres"`
}

// Alert is one pending item shown when the operator says hello.
type Alert struct {
	AlumnoID string `json:"alumno_id"`
	Nombre   string `json:"nombre"`
	Tipo     string `json:"tipo"` // "asistencia" or "pago"
	Mensaje  string `json:"mensaje"`
}

// AlertsEnvelope is the greeting response with the computed alerts.
type AlertsEnvelope struct {
	Status  string  `json:"status"`
	Alerta  string  `json:"alerta"`
	Mensaje string  `json:"mensaje"`
	Alertas []Alert `json:"alertas"`
}
