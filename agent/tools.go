package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"gym-agent-server-go/metrics"
	"gym-agent-server-go/models"
	"gym-agent-server-go/services"
)

// ErrUnknownTool is returned by Registry.Call for names that were never registered.
var ErrUnknownTool = errors.New("unknown tool")

// Tool is one operation the agent (or any HTTP caller) can invoke by name.
type Tool struct {
	Name        string
	Description string
	Parameters  *genai.Schema // nil when the tool takes no arguments
	Call        func(ctx context.Context, args map[string]any) any
}

// Registry is the catalog of tools in registration order.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry returns an empty catalog.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds t. Names must be unique.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" || t.Call == nil {
		return errors.New("tool needs a name and a call function")
	}
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %s already registered", t.Name)
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// Tools lists every tool in registration order.
func (r *Registry) Tools() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Lookup finds a tool by name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Call runs the named tool and counts the result status.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	t, ok := r.tools[name]
	if !ok {
		metrics.RecordOperation("unknown", models.StatusError)
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	result := t.Call(ctx, args)
	metrics.RecordOperation(name, statusOf(result))
	return result, nil
}

// Declarations describes the catalog to Gemini.
func (r *Registry) Declarations() []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(r.order))
	for _, t := range r.Tools() {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return decls
}

func statusOf(result any) string {
	switch v := result.(type) {
	case models.Envelope:
		return v.Status
	case models.SummaryEnvelope:
		return v.Status
	case models.NamesEnvelope:
		return v.Status
	case models.AlertsEnvelope:
		return v.Status
	default:
		return "unknown"
	}
}

// ToResponse converts a tool result into the JSON object Gemini expects.
func ToResponse(result any) map[string]any {
	data, err := json.Marshal(result)
	if err != nil {
		return map[string]any{"status": models.StatusError, "message": "Resultado no serializable."}
	}
	out := make(map[string]any)
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"result": json.RawMessage(data)}
	}
	return out
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func recordArg(args map[string]any, key string) models.Record {
	switch v := args[key].(type) {
	case map[string]any:
		return models.Record(v)
	case models.Record:
		return v
	default:
		return nil
	}
}

func stringSchema(description string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: description}
}

// crudSchema is shared by the four crud_* tools. data lists the common fields
// but callers may send any other field too.
func crudSchema(entity string) *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"action": {
				Type:        genai.TypeString,
				Description: "Operación a realizar sobre " + entity + ".",
				Enum:        []string{services.ActionCreate, services.ActionRead, services.ActionUpdate, services.ActionDelete},
			},
			"data": {
				Type:        genai.TypeObject,
				Description: "Campos del registro. Vacío en 'read' devuelve todos los registros.",
				Properties: map[string]*genai.Schema{
					models.FieldID:        stringSchema("ID del registro (read/update/delete)."),
					models.FieldNombre:    stringSchema("Nombre del alumno."),
					models.FieldApellido:  stringSchema("Apellido del alumno."),
					models.FieldAlumnoID:  stringSchema("ID del alumno al que pertenece el registro."),
					models.FieldFecha:     stringSchema("Fecha en formato YYYY-MM-DD."),
					models.FieldMonto:     {Type: genai.TypeNumber, Description: "Monto del pago."},
					models.FieldContenido: stringSchema("Texto de la nota."),
					models.FieldEstado:    stringSchema("Estado de la asistencia o del pago."),
				},
			},
		},
		Required: []string{"action"},
	}
}

func crudTool(name, entity, description string, s *services.EntityService) Tool {
	return Tool{
		Name:        name,
		Description: description,
		Parameters:  crudSchema(entity),
		Call: func(ctx context.Context, args map[string]any) any {
			return s.Execute(ctx, stringArg(args, "action"), recordArg(args, "data"))
		},
	}
}

// NewGymRegistry registers every operation of the gym services under the
// names the agent and the HTTP routes use.
func NewGymRegistry(svc *services.Services, agg *services.AggregationService, dir *services.DirectoryService) *Registry {
	r := NewRegistry()
	tools := []Tool{
		crudTool("crud_alumnos", "alumnos",
			"Crea, lee, actualiza o elimina alumnos. 'create' requiere nombre y apellido. "+
				"'read' busca por id, por nombre y apellido, o devuelve todos si data está vacío.", svc.Students),
		crudTool("crud_pagos", "pagos",
			"Crea, lee, actualiza o elimina pagos. 'create' requiere alumno_id, fecha y monto. "+
				"'read' con alumno_id devuelve los pagos del alumno, el más reciente primero. "+
				"Si solo se conoce el nombre del alumno, obtener antes su id con crud_alumnos.", svc.Payments),
		crudTool("crud_notas", "notas",
			"Crea, lee, actualiza o elimina notas. 'create' requiere alumno_id, fecha y contenido.", svc.Notes),
		crudTool("crud_asistencias", "asistencias",
			"Registra, lee, actualiza o elimina asistencias. 'create' requiere alumno_id, fecha y estado.", svc.Attendance),
		{
			Name:        "resumen_alumno",
			Description: "Genera un resumen de pagos, notas y asistencias de un alumno.",
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: map[string]*genai.Schema{models.FieldAlumnoID: stringSchema("ID del alumno.")},
				Required:   []string{models.FieldAlumnoID},
			},
			Call: func(ctx context.Context, args map[string]any) any {
				return agg.Summarize(ctx, stringArg(args, models.FieldAlumnoID))
			},
		},
		{
			Name:        "ultimo_pago_alumno",
			Description: "Devuelve el último pago registrado de un alumno dado su nombre y apellido.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					models.FieldNombre:   stringSchema("Nombre del alumno."),
					models.FieldApellido: stringSchema("Apellido del alumno."),
				},
				Required: []string{models.FieldNombre, models.FieldApellido},
			},
			Call: func(ctx context.Context, args map[string]any) any {
				return agg.LatestPaymentByName(ctx, stringArg(args, models.FieldNombre), stringArg(args, models.FieldApellido))
			},
		},
		{
			Name:        "listar_nombres_alumnos",
			Description: "Lista los nombres completos de todos los alumnos.",
			Call: func(ctx context.Context, _ map[string]any) any {
				return dir.ListStudentNames(ctx)
			},
		},
		{
			Name:        "saludo_alerta",
			Description: "Al saludar, devuelve las alertas pendientes: ausencias prolongadas y pagos del mes sin registrar.",
			Call: func(ctx context.Context, _ map[string]any) any {
				return dir.GreetingAlerts(ctx)
			},
		},
		{
			Name:        "get_sudo_users",
			Description: "Devuelve la lista de usuarios SUDO.",
			Call: func(ctx context.Context, _ map[string]any) any {
				return dir.SudoUsers(ctx)
			},
		},
	}
	for _, t := range tools {
		// Names above are distinct literals.
		_ = r.Register(t)
	}
	return r
}
