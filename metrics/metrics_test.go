package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareUsesRouteTemplates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.POST("/tools/:name", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, name := range []string{"crud_alumnos", "crud_pagos"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/tools/"+name, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	body := scrape(t)
	assert.Contains(t, body, `gym_http_requests_total{method="POST",path="/tools/:name",status="200"} 2`)
	assert.Contains(t, body, `gym_http_requests_total{method="GET",path="unmatched",status="404"} 1`)
	assert.NotContains(t, body, "crud_pagos\"")
}

func TestHandlerExposesCounters(t *testing.T) {
	RecordOperation("crud_notas", "success")
	RecordAgentRun("error")

	body := scrape(t)
	assert.Contains(t, body, `gym_records_operations_total{status="success",tool="crud_notas"}`)
	assert.Contains(t, body, `gym_agent_runs_total{status="error"}`)
	assert.Contains(t, body, "go_goroutines")
}

func scrape(t *testing.T) string {
	t.Helper()
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}
