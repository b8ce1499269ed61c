package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"gym-agent-server-go/agent"
	"gym-agent-server-go/db"
	"gym-agent-server-go/models"
	"gym-agent-server-go/services"
)

const reportContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// collectionLister is implemented by stores that can enumerate what they hold.
type collectionLister interface {
	Collections(ctx context.Context) ([]string, error)
}

// APIHandler holds the dependencies for API handlers.
type APIHandler struct {
	Store     db.Store
	StoreName string
	Tools     *agent.Registry
	Excel     *services.ExcelService
	Agent     *agent.Agent // nil when no model credentials are configured
}

// NewAPIHandler creates a new APIHandler
func NewAPIHandler(store db.Store, storeName string, tools *agent.Registry, excel *services.ExcelService, ag *agent.Agent) *APIHandler {
	return &APIHandler{
		Store:     store,
		StoreName: storeName,
		Tools:     tools,
		Excel:     excel,
		Agent:     ag,
	}
}

type crudRequest struct {
	Action string        `json:"action"`
	Data   models.Record `json:"data"`
}

type summaryRequest struct {
	AlumnoID string `json:"alumno_id"`
}

type nameRequest struct {
	Nombre   string `json:"nombre"`
	Apellido string `json:"apellido"`
}

type agentRequest struct {
	Message string `json:"message"`
}

// --- Tool Handlers ---

// Crud handles POST /crud_alumnos/, /crud_pagos/, /crud_notas/ and
// /crud_asistencias/ for the given tool.
func (h *APIHandler) Crud(tool string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req crudRequest
		if !bindJSON(c, &req) {
			return
		}
		h.callTool(c, tool, map[string]any{"action": req.Action, "data": map[string]any(req.Data)})
	}
}

// Summary handles POST /resumen_alumno/
func (h *APIHandler) Summary(c *gin.Context) {
	var req summaryRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.AlumnoID == "" {
		c.JSON(http.StatusOK, models.SummaryEnvelope{Status: models.StatusError, Message: "Falta el alumno_id"})
		return
	}
	h.callTool(c, "resumen_alumno", map[string]any{models.FieldAlumnoID: req.AlumnoID})
}

// LatestPayment handles POST /ultimo_pago_alumno/
func (h *APIHandler) LatestPayment(c *gin.Context) {
	var req nameRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Nombre == "" || req.Apellido == "" {
		c.JSON(http.StatusOK, models.Failure("Faltan nombre o apellido"))
		return
	}
	h.callTool(c, "ultimo_pago_alumno", map[string]any{
		models.FieldNombre:   req.Nombre,
		models.FieldApellido: req.Apellido,
	})
}

// NoArgs handles the tools that take no body, such as POST /listar_nombres_alumnos/.
func (h *APIHandler) NoArgs(tool string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.callTool(c, tool, nil)
	}
}

// ListTools handles GET /tools
func (h *APIHandler) ListTools(c *gin.Context) {
	tools := h.Tools.Tools()
	out := make([]gin.H, 0, len(tools))
	for _, t := range tools {
		out = append(out, gin.H{
			"name":        t.Name,
			"description": t.Description,
			"parameters":  t.Parameters,
		})
	}
	c.JSON(http.StatusOK, out)
}

// InvokeTool handles POST /tools/:name with a JSON object of arguments.
func (h *APIHandler) InvokeTool(c *gin.Context) {
	name := c.Param("name")
	if _, ok := h.Tools.Lookup(name); !ok {
		c.JSON(http.StatusNotFound, models.Failure(fmt.Sprintf("Herramienta desconocida: %s", name)))
		return
	}
	args := map[string]any{}
	if c.Request.ContentLength != 0 {
		if !bindJSON(c, &args) {
			return
		}
	}
	h.callTool(c, name, args)
}

func (h *APIHandler) callTool(c *gin.Context, name string, args map[string]any) {
	result, err := h.Tools.Call(c.Request.Context(), name, args)
	if err != nil {
		log.Printf("Error calling tool %s: %v", name, err)
		status := http.StatusInternalServerError
		if errors.Is(err, agent.ErrUnknownTool) {
			status = http.StatusNotFound
		}
		c.JSON(status, models.Failure("No se pudo ejecutar la operación."))
		return
	}
	c.JSON(http.StatusOK, result)
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, models.Failure("Cuerpo de la solicitud inválido: "+err.Error()))
		return false
	}
	return true
}

// --- Agent Handler ---

// RunAgent handles POST /agente_ia/
func (h *APIHandler) RunAgent(c *gin.Context) {
	if h.Agent == nil {
		c.JSON(http.StatusOK, models.Failure("El agente no pudo ser inicializado"))
		return
	}
	var req agentRequest
	if !bindJSON(c, &req) {
		return
	}

	log.Printf("Processing agent message: %s", req.Message)
	answer, err := h.Agent.Run(c.Request.Context(), req.Message)
	if err != nil {
		log.Printf("Error running agent: %v", err)
		c.JSON(http.StatusOK, gin.H{
			"status":   models.StatusError,
			"message":  "Error procesando solicitud",
			"response": "Lo siento, ocurrió un error procesando tu solicitud.",
		})
		return
	}
	if answer == "" {
		answer = "No se recibió respuesta del agente."
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   models.StatusSuccess,
		"response": answer,
		"message":  "Procesado exitosamente",
	})
}

// --- Excel Handlers ---

// ImportStudents handles POST /import/students
func (h *APIHandler) ImportStudents(c *gin.Context) {
	file, header, err := c.Request.FormFile("file") // "file" is the name attribute in the form
	if err != nil {
		log.Printf("Error getting form file: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"message": "Error retrieving uploaded file: " + err.Error()})
		return
	}
	defer file.Close()

	log.Printf("Received file upload: %s", header.Filename)

	importedCount, err := h.Excel.ImportStudentsFromExcel(c.Request.Context(), file)
	if err != nil {
		log.Printf("Error importing students from file %s: %v", header.Filename, err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to import students: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "Import successful",
		"importedCount": importedCount,
	})
}

// ExportReport handles GET /reports/export
func (h *APIHandler) ExportReport(c *gin.Context) {
	filename := fmt.Sprintf("reporte-%s.xlsx", time.Now().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Header("Content-Type", reportContentType)
	if err := h.Excel.ExportReport(c.Request.Context(), c.Writer); err != nil {
		log.Printf("Error exporting report: %v", err)
		if !c.Writer.Written() {
			c.Header("Content-Disposition", "")
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to export report"})
		}
		return
	}
	c.Status(http.StatusOK)
}

// --- Status Handlers ---

// Root handles GET /
func (h *APIHandler) Root(c *gin.Context) {
	mode := "sin agente"
	if h.Agent != nil {
		mode = "con agente"
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Gym server running with agent tools exposed as endpoints (%s)", mode)})
}

// Health handles GET /health
func (h *APIHandler) Health(c *gin.Context) {
	body := gin.H{
		"status":            "healthy",
		"store":             h.StoreName,
		"agent_initialized": h.Agent != nil,
	}
	if lister, ok := h.Store.(collectionLister); ok {
		collections, err := lister.Collections(c.Request.Context())
		if err != nil {
			log.Printf("Error listing collections for health check: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "store": h.StoreName})
			return
		}
		body["collections"] = collections
	}
	c.JSON(http.StatusOK, body)
}

// PingHandler handles GET /api/ping
func PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Pong!"})
}
