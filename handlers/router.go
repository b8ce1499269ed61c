package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"gym-agent-server-go/metrics"
)

// NewRouter wires every route onto a gin engine. An empty origins list or
// one containing "*" allows any origin.
func NewRouter(h *APIHandler, origins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(metrics.Middleware())
	router.Use(CORS(origins))

	router.GET("/", h.Root)
	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	router.POST("/crud_alumnos/", h.Crud("crud_alumnos"))
	router.POST("/crud_pagos/", h.Crud("crud_pagos"))
	router.POST("/crud_notas/", h.Crud("crud_notas"))
	router.POST("/crud_asistencias/", h.Crud("crud_asistencias"))
	router.POST("/resumen_alumno/", h.Summary)
	router.POST("/ultimo_pago_alumno/", h.LatestPayment)
	router.POST("/listar_nombres_alumnos/", h.NoArgs("listar_nombres_alumnos"))
	router.POST("/saludo_alerta/", h.NoArgs("saludo_alerta"))
	router.POST("/get_sudo_users/", h.NoArgs("get_sudo_users"))
	router.POST("/agente_ia/", h.RunAgent)

	router.GET("/tools", h.ListTools)
	router.POST("/tools/:name", h.InvokeTool)

	router.POST("/import/students", h.ImportStudents)
	router.GET("/reports/export", h.ExportReport)

	api := router.Group("/api")
	{
		api.GET("/ping", PingHandler)
	}
	return router
}

// CORS allows browser clients from the configured origins.
func CORS(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization", "X-Requested-With"},
		MaxAge:       12 * time.Hour,
	}
	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// RequestLogger writes one access log line per request through logrus.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		entry := log.WithFields(log.Fields{
			"method":      strings.ToUpper(c.Request.Method),
			"path":        path,
			"status":      status,
			"duration_ms": time.Since(start).Milliseconds(),
			"client_ip":   c.ClientIP(),
		})
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("HTTP request")
		case status >= http.StatusBadRequest:
			entry.Warn("HTTP request")
		default:
			entry.Info("HTTP request")
		}
	}
}
