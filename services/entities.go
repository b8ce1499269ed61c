package services

import (
	"strings"

	"gym-agent-server-go/db"
	"gym-agent-server-go/models"
)

func matchAlumnoID(rec, payload models.Record) bool {
	return rec.Has(models.FieldAlumnoID) && sameValue(rec[models.FieldAlumnoID], payload[models.FieldAlumnoID])
}

func matchFullName(rec, payload models.Record) bool {
	return strings.EqualFold(rec.Text(models.FieldNombre), payload.Text(models.FieldNombre)) &&
		strings.EqualFold(rec.Text(models.FieldApellido), payload.Text(models.FieldApellido))
}

// NewStudentService manages alumnos. Reads by nombre+apellido are
// case-insensitive and return the first match.
func NewStudentService(store db.Store) *EntityService {
	return &EntityService{
		store: store,
		def: entityDef{
			collection: models.StudentsCollection,
			required:   []string{models.FieldNombre, models.FieldApellido},
			secondary: secondaryKey{
				fields: []string{models.FieldNombre, models.FieldApellido},
				match:  matchFullName,
				single: true,
			},
			msgs: messages{
				missingFields:  "Faltan nombre o apellido para crear el alumno.",
				created:        "Alumno creado con éxito.",
				found:          "Alumno encontrado.",
				notFound:       "Alumno no encontrado.",
				foundBy:        "Alumno encontrado por nombre: %s.",
				notFoundBy:     "Alumno no encontrado por nombre.",
				listed:         "Listado de alumnos.",
				missingID:      "Se requiere el ID del alumno.",
				updated:        "Alumno actualizado con éxito.",
				updateNotFound: "Alumno a actualizar no encontrado.",
				deleted:        "Alumno eliminado con éxito.",
				deleteNotFound: "Alumno a eliminar no encontrado.",
				invalidRead:    "Datos de lectura de alumnos inválidos.",
				unrecognized:   "Acción no reconocida para alumnos.",
				storageFailed:  "No se pudieron guardar los alumnos.",
			},
		},
	}
}

// NewPaymentService manages pagos. Reads by alumno_id come back newest first.
func NewPaymentService(store db.Store) *EntityService {
	return &EntityService{
		store: store,
		def: entityDef{
			collection: models.PaymentsCollection,
			required:   []string{models.FieldAlumnoID, models.FieldFecha, models.FieldMonto},
			secondary: secondaryKey{
				fields:      []string{models.FieldAlumnoID},
				match:       matchAlumnoID,
				sortByFecha: true,
			},
			msgs: messages{
				missingFields:  "Faltan datos requeridos ('alumno_id', 'fecha', 'monto') para crear el pago.",
				created:        "Pago creado.",
				found:          "Pago encontrado.",
				notFound:       "Pago no encontrado.",
				foundBy:        "Pagos encontrados para el alumno %s.",
				unsortedBy:     "Pagos encontrados para el alumno %s (sin ordenar por fecha).",
				listed:         "Lista de todos los pagos.",
				missingID:      "Se requiere el ID del pago.",
				updated:        "Pago actualizado.",
				updateNotFound: "Pago no encontrado para actualizar.",
				deleted:        "Pago eliminado.",
				deleteNotFound: "Pago no encontrado para eliminar.",
				invalidRead:    "Datos de lectura de pagos inválidos.",
				unrecognized:   "Acción no reconocida para pagos.",
				storageFailed:  "No se pudieron guardar los pagos.",
			},
		},
	}
}

// NewNoteService manages notas.
func NewNoteService(store db.Store) *EntityService {
	return &EntityService{
		store: store,
		def: entityDef{
			collection: models.NotesCollection,
			required:   []string{models.FieldAlumnoID, models.FieldFecha, models.FieldContenido},
			secondary: secondaryKey{
				fields: []string{models.FieldAlumnoID},
				match:  matchAlumnoID,
			},
			msgs: messages{
				missingFields:  "Faltan datos requeridos ('alumno_id', 'fecha', 'contenido') para crear la nota.",
				created:        "Nota creada con éxito.",
				found:          "Nota encontrada.",
				notFound:       "Nota no encontrada.",
				foundBy:        "Notas encontradas para el alumno %s.",
				listed:         "Lista de todas las notas.",
				missingID:      "Se requiere el ID de la nota.",
				updated:        "Nota actualizada con éxito.",
				updateNotFound: "Nota no encontrada para actualizar.",
				deleted:        "Nota eliminada con éxito.",
				deleteNotFound: "Nota no encontrada para eliminar.",
				invalidRead:    "Datos de lectura de notas inválidos.",
				unrecognized:   "Acción no reconocida para notas.",
				storageFailed:  "No se pudieron guardar las notas.",
			},
		},
	}
}

// NewAttendanceService manages asistencias.
func NewAttendanceService(store db.Store) *EntityService {
	return &EntityService{
		store: store,
		def: entityDef{
			collection: models.AttendanceCollection,
			required:   []string{models.FieldAlumnoID, models.FieldFecha, models.FieldEstado},
			secondary: secondaryKey{
				fields: []string{models.FieldAlumnoID},
				match:  matchAlumnoID,
			},
			msgs: messages{
				missingFields:  "Faltan datos requeridos ('alumno_id', 'fecha', 'estado') para registrar la asistencia.",
				created:        "Asistencia registrada con éxito.",
				found:          "Asistencia encontrada.",
				notFound:       "Asistencia no encontrada.",
				foundBy:        "Asistencias encontradas para el alumno %s.",
				listed:         "Lista de todas las asistencias.",
				missingID:      "Se requiere el ID de la asistencia.",
				updated:        "Asistencia actualizada con éxito.",
				updateNotFound: "Asistencia no encontrada para actualizar.",
				deleted:        "Asistencia eliminada con éxito.",
				deleteNotFound: "Asistencia no encontrada para eliminar.",
				invalidRead:    "Datos de lectura de asistencias inválidos.",
				unrecognized:   "Acción no reconocida para asistencias.",
				storageFailed:  "No se pudieron guardar las asistencias.",
			},
		},
	}
}

// Services bundles the four entity services over one store.
type Services struct {
	Students   *EntityService
	Payments   *EntityService
	Notes      *EntityService
	Attendance *EntityService
}

// NewServices wires every entity service to store.
func NewServices(store db.Store) *Services {
	return &Services{
		Students:   NewStudentService(store),
		Payments:   NewPaymentService(store),
		Notes:      NewNoteService(store),
		Attendance: NewAttendanceService(store),
	}
}
