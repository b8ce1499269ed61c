package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"google.golang.org/genai"

	"gym-agent-server-go/agent"
	"gym-agent-server-go/db"
	"gym-agent-server-go/models"
	"gym-agent-server-go/services"
)

type cannedGenerator struct {
	answer string
	err    error
}

func (g cannedGenerator) GenerateContent(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText(g.answer, genai.RoleModel)}},
	}, nil
}

type testServer struct {
	router  *gin.Engine
	handler *APIHandler
	svc     *services.Services
}

func newTestServer(t *testing.T, store db.Store) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sudoPath := filepath.Join(t.TempDir(), "sudo-users.json")
	require.NoError(t, os.WriteFile(sudoPath, []byte(`[{"nombre":"Admin"}]`), 0o644))

	svc := services.NewServices(store)
	agg := services.NewAggregationService(svc)
	dir := services.NewDirectoryService(svc, sudoPath, 0)
	h := NewAPIHandler(store, "memory", agent.NewGymRegistry(svc, agg, dir), services.NewExcelService(svc), nil)
	return &testServer{router: NewRouter(h, nil), handler: h, svc: svc}
}

func (s *testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func TestCrudEndpoints(t *testing.T) {
	s := newTestServer(t, db.NewMemoryStore())

	w, created := s.do(t, http.MethodPost, "/crud_alumnos/", `{"action":"create","data":{"nombre":"Ana","apellido":"Lopez"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, models.StatusSuccess, created["status"])
	id := created["data"].(map[string]any)["id"].(string)

	_, pago := s.do(t, http.MethodPost, "/crud_pagos/", `{"action":"create","data":{"alumno_id":"`+id+`","fecha":"2024-05-01","monto":100}}`)
	assert.Equal(t, models.StatusSuccess, pago["status"])

	_, read := s.do(t, http.MethodPost, "/crud_alumnos/", `{"action":"read","data":{"nombre":"ana","apellido":"LOPEZ"}}`)
	assert.Equal(t, id, read["data"].(map[string]any)["id"])

	w, missing := s.do(t, http.MethodPost, "/crud_notas/", `{"action":"create","data":{"alumno_id":"`+id+`"}}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StatusError, missing["status"])

	_, unknown := s.do(t, http.MethodPost, "/crud_asistencias/", `{"action":"archive"}`)
	assert.Equal(t, models.StatusError, unknown["status"])
}

func TestMalformedBodyIsBadRequest(t *testing.T) {
	s := newTestServer(t, db.NewMemoryStore())

	w, out := s.do(t, http.MethodPost, "/crud_alumnos/", `{"action":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, models.StatusError, out["status"])
}

func TestAggregationEndpoints(t *testing.T) {
	s := newTestServer(t, db.NewMemoryStore())
	ctx := context.Background()
	student := s.svc.Students.Execute(ctx, services.ActionCreate, models.Record{"nombre": "Ana", "apellido": "Lopez"})
	id := student.Data.(models.Record)["id"].(string)
	s.svc.Payments.Execute(ctx, services.ActionCreate, models.Record{"alumno_id": id, "fecha": "2024-03-01", "monto": 10.0})
	s.svc.Payments.Execute(ctx, services.ActionCreate, models.Record{"alumno_id": id, "fecha": "2024-04-01", "monto": 20.0})

	_, out := s.do(t, http.MethodPost, "/resumen_alumno/", `{}`)
	assert.Equal(t, models.StatusError, out["status"])
	assert.Equal(t, "Falta el alumno_id", out["message"])
	assert.Contains(t, out, "resumen")
	assert.Nil(t, out["resumen"])

	_, out = s.do(t, http.MethodPost, "/resumen_alumno/", `{"alumno_id":"`+id+`"}`)
	assert.Equal(t, models.StatusSuccess, out["status"])
	assert.Contains(t, out["resumen"], "Resumen para Ana Lopez:")

	_, out = s.do(t, http.MethodPost, "/ultimo_pago_alumno/", `{"nombre":"Ana"}`)
	assert.Equal(t, "Faltan nombre o apellido", out["message"])

	_, out = s.do(t, http.MethodPost, "/ultimo_pago_alumno/", `{"nombre":"Ana","apellido":"Lopez"}`)
	assert.Equal(t, "2024-04-01", out["data"].(map[string]any)["fecha"])

	_, out = s.do(t, http.MethodPost, "/listar_nombres_alumnos/", "")
	assert.Equal(t, []any{"Ana Lopez"}, out["nombres"])

	_, out = s.do(t, http.MethodPost, "/saludo_alerta/", "")
	assert.Equal(t, models.StatusSuccess, out["status"])

	_, out = s.do(t, http.MethodPost, "/get_sudo_users/", "")
	assert.Equal(t, []any{map[string]any{"nombre": "Admin"}}, out["data"])
}

func TestToolCatalogEndpoints(t *testing.T) {
	s := newTestServer(t, db.NewMemoryStore())

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tools", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var catalog []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &catalog))
	require.Len(t, catalog, 9)
	assert.Equal(t, "crud_alumnos", catalog[0]["name"])

	w, out := s.do(t, http.MethodPost, "/tools/crud_alumnos", `{"action":"create","data":{"nombre":"Ana","apellido":"Lopez"}}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StatusSuccess, out["status"])

	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/tools/listar_nombres_alumnos", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Ana Lopez")

	w, _ = s.do(t, http.MethodPost, "/tools/borrar_todo", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAgentEndpoint(t *testing.T) {
	s := newTestServer(t, db.NewMemoryStore())

	_, out := s.do(t, http.MethodPost, "/agente_ia/", `{"message":"hola"}`)
	assert.Equal(t, models.StatusError, out["status"])
	assert.Equal(t, "El agente no pudo ser inicializado", out["message"])

	s.handler.Agent = agent.New(cannedGenerator{answer: "¡Hola! ¿En qué te ayudo?"}, "test-model", s.handler.Tools, 0)
	_, out = s.do(t, http.MethodPost, "/agente_ia/", `{"message":"hola"}`)
	assert.Equal(t, models.StatusSuccess, out["status"])
	assert.Equal(t, "¡Hola! ¿En qué te ayudo?", out["response"])
	assert.Equal(t, "Procesado exitosamente", out["message"])

	s.handler.Agent = agent.New(cannedGenerator{err: errors.New("api key=secret rejected")}, "test-model", s.handler.Tools, 0)
	w, out := s.do(t, http.MethodPost, "/agente_ia/", `{"message":"hola"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StatusError, out["status"])
	assert.NotContains(t, w.Body.String(), "secret")
}

func TestImportAndExportExcel(t *testing.T) {
	s := newTestServer(t, db.NewMemoryStore())

	book := excelize.NewFile()
	sheet := book.GetSheetName(0)
	require.NoError(t, book.SetSheetRow(sheet, "A1", &[]interface{}{"nombre", "apellido"}))
	require.NoError(t, book.SetSheetRow(sheet, "A2", &[]interface{}{"Ana", "Lopez"}))
	require.NoError(t, book.SetSheetRow(sheet, "A3", &[]interface{}{"Juan", "Perez"}))
	xlsx, err := book.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, book.Close())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "alumnos.xlsx")
	require.NoError(t, err)
	_, err = part.Write(xlsx.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/import/students", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Import successful","importedCount":2}`, w.Body.String())

	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/import/students", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/reports/export", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, reportContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")

	report, err := excelize.OpenReader(w.Body)
	require.NoError(t, err)
	defer report.Close()
	assert.Equal(t, []string{"Alumnos", "Pagos", "Notas", "Asistencias"}, report.GetSheetList())
	rows, err := report.GetRows("Alumnos")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, db.NewMemoryStore())

	w, out := s.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", out["status"])
	assert.Equal(t, false, out["agent_initialized"])
	assert.NotContains(t, out, "collections")

	_, out = s.do(t, http.MethodGet, "/api/ping", "")
	assert.Equal(t, "Pong!", out["message"])

	_, out = s.do(t, http.MethodGet, "/", "")
	assert.Contains(t, out["message"], "sin agente")
}

func TestHealthListsRedisCollections(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s := newTestServer(t, db.NewRedisStore(client, ""))

	s.do(t, http.MethodPost, "/crud_alumnos/", `{"action":"create","data":{"nombre":"Ana","apellido":"Lopez"}}`)

	w, out := s.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"alumnos"}, out["collections"])

	mr.Close()
	w, _ = s.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCORSAllowsConfiguredOrigins(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:3000"}))
	r.POST("/crud_alumnos/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for origin, allowed := range map[string]bool{
		"http://localhost:3000": true,
		"http://evil.example":   false,
	} {
		req := httptest.NewRequest(http.MethodOptions, "/crud_alumnos/", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if allowed {
			assert.Equal(t, http.StatusNoContent, w.Code, origin)
			assert.Equal(t, origin, w.Header().Get("Access-Control-Allow-Origin"))
		} else {
			assert.Equal(t, http.StatusForbidden, w.Code, origin)
			assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
		}
	}
}
