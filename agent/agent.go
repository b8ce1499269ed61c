package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"gym-agent-server-go/metrics"
	"gym-agent-server-go/models"
)

const (
	defaultMaxSteps = 8
	maxTurns        = 20 // conversation turns kept as context
)

const instruction = `Sos un asistente para la gestión de un gimnasio.
Usá las herramientas para crear, consultar, modificar o borrar alumnos, pagos, notas y asistencias,
para generar resúmenes de un alumno, listar nombres, mostrar alertas al saludar y buscar el último pago de un alumno.
Cuando una operación necesite el alumno_id y solo tengas el nombre, buscá primero al alumno con crud_alumnos (action "read", nombre y apellido).
Si el pedido tiene varios pasos, ejecutalos en orden. Respondé en español, de forma breve y cordial.`

// ErrTooManySteps is returned when the model keeps calling tools past the step limit.
var ErrTooManySteps = errors.New("agent exceeded the tool call limit")

// ContentGenerator is the part of the genai client the agent needs.
// *genai.Models satisfies it.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Agent answers free-text requests by letting Gemini pick tools from a
// Registry. It keeps a single in-memory conversation; turns are serialized.
type Agent struct {
	gen      ContentGenerator
	model    string
	registry *Registry
	maxSteps int

	mu    sync.Mutex
	turns [][]*genai.Content
}

// New creates an Agent. maxSteps <= 0 uses the default.
func New(gen ContentGenerator, model string, registry *Registry, maxSteps int) *Agent {
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	return &Agent{
		gen:      gen,
		model:    model,
		registry: registry,
		maxSteps: maxSteps,
	}
}

// NewGeminiClient creates a genai client for the Gemini API, or Vertex AI
// when useVertex is set (project and location then come from the environment).
func NewGeminiClient(ctx context.Context, apiKey string, useVertex bool) (*genai.Client, error) {
	cfg := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if useVertex {
		cfg = &genai.ClientConfig{Backend: genai.BackendVertexAI}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return client, nil
}

// Run sends message to the model, executes the tool calls it asks for and
// returns its final text answer.
func (a *Agent) Run(ctx context.Context, message string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(instruction, genai.RoleUser),
		Tools:             []*genai.Tool{{FunctionDeclarations: a.registry.Declarations()}},
	}

	history := a.history()
	turn := []*genai.Content{genai.NewContentFromText(message, genai.RoleUser)}

	for step := 0; step < a.maxSteps; step++ {
		resp, err := a.gen.GenerateContent(ctx, a.model, append(history, turn...), config)
		if err != nil {
			metrics.RecordAgentRun(models.StatusError)
			return "", fmt.Errorf("GenAI generate failed: %w", err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			metrics.RecordAgentRun(models.StatusError)
			return "", errors.New("GenAI returned no candidates")
		}
		turn = append(turn, resp.Candidates[0].Content)

		calls := resp.FunctionCalls()
		if len(calls) == 0 {
			a.remember(turn)
			metrics.RecordAgentRun(models.StatusSuccess)
			return strings.TrimSpace(resp.Text()), nil
		}

		parts := make([]*genai.Part, 0, len(calls))
		for _, call := range calls {
			parts = append(parts, a.invoke(ctx, call))
		}
		turn = append(turn, genai.NewContentFromParts(parts, genai.RoleUser))
	}

	metrics.RecordAgentRun(models.StatusError)
	return "", ErrTooManySteps
}

// Reset forgets the conversation.
func (a *Agent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.turns = nil
}

func (a *Agent) invoke(ctx context.Context, call *genai.FunctionCall) *genai.Part {
	entry := log.WithFields(log.Fields{"tool": call.Name, "args": call.Args})
	entry.Info("Agent calling tool")

	result, err := a.registry.Call(ctx, call.Name, call.Args)
	response := ToResponse(result)
	if err != nil {
		entry.WithError(err).Warn("Agent requested an unknown tool")
		response = map[string]any{"status": models.StatusError, "message": "Herramienta desconocida: " + call.Name}
	}

	part := genai.NewPartFromFunctionResponse(call.Name, response)
	part.FunctionResponse.ID = call.ID
	return part
}

func (a *Agent) history() []*genai.Content {
	var out []*genai.Content
	for _, t := range a.turns {
		out = append(out, t...)
	}
	return out
}

func (a *Agent) remember(turn []*genai.Content) {
	a.turns = append(a.turns, turn)
	if len(a.turns) > maxTurns {
		a.turns = a.turns[len(a.turns)-maxTurns:]
	}
}
