package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"gym-agent-server-go/agent"
	"gym-agent-server-go/config"
	"gym-agent-server-go/db"
	"gym-agent-server-go/handlers"
	"gym-agent-server-go/models"
	"gym-agent-server-go/services"
)

const shutdownTimeout = 10 * time.Second

var cfg config.Config

// rootCmd runs the server when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "gym-agent-server",
	Short: "Gym management server with CRUD tools and a Gemini agent",
	Long: `Serves students, payments, notes and attendance over HTTP, both as
individual tool endpoints and through a conversational agent.

Run without arguments to start the server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		cfg.SetupLogging()
		return nil
	},
	RunE: runServer,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Args:  cobra.NoArgs,
	RunE:  runServer,
}

var importCmd = &cobra.Command{
	Use:   "import-students [file.xlsx]",
	Short: "Import students from the first sheet of an Excel file",
	Long: `Reads the first sheet of the workbook. The first row names the fields and
must include "nombre" and "apellido"; every other named column is stored as
an extra field of the student.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var exportCmd = &cobra.Command{
	Use:   "export-report [out.xlsx]",
	Short: "Write every collection to an Excel report",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func init() {
	rootCmd.AddCommand(serveCmd, importCmd, exportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app is everything a command needs, built from cfg.
type app struct {
	store     db.Store
	svc       *services.Services
	excel     *services.ExcelService
	tools     *agent.Registry
	closeFunc func()
}

func newApp(ctx context.Context) (*app, error) {
	store, closeStore, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	svc := services.NewServices(store)
	agg := services.NewAggregationService(svc)
	dir := services.NewDirectoryService(svc, cfg.SudoUsersPath, cfg.AbsenceDays)
	return &app{
		store:     store,
		svc:       svc,
		excel:     services.NewExcelService(svc),
		tools:     agent.NewGymRegistry(svc, agg, dir),
		closeFunc: closeStore,
	}, nil
}

func openStore(ctx context.Context) (db.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		client, err := db.InitializeRedisClient(ctx, db.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}
		return db.NewRedisStore(client, cfg.RedisPrefix), func() { closeRedis(client) }, nil
	case config.BackendMemory:
		log.Warn("Using the in-memory store; data is lost on exit")
		return db.NewMemoryStore(), func() {}, nil
	default:
		store, err := db.NewFileStore(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("Storing collections as JSON files under %s", store.Dir)
		return store, func() {}, nil
	}
}

func closeRedis(client *redis.Client) {
	if err := client.Close(); err != nil {
		log.Printf("Error closing Redis client: %v", err)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.closeFunc()

	if cfg.SeedData {
		checkAndSeedData(ctx, a.svc)
	}

	var gymAgent *agent.Agent
	if cfg.AgentEnabled() {
		client, err := agent.NewGeminiClient(ctx, cfg.GoogleAPIKey, cfg.UseVertexAI)
		if err != nil {
			log.Printf("Agent disabled: %v", err)
		} else {
			gymAgent = agent.New(client.Models, cfg.GeminiModel, a.tools, cfg.AgentMaxSteps)
			log.Printf("Agent ready with model %s and %d tools", cfg.GeminiModel, len(a.tools.Tools()))
		}
	} else {
		log.Warn("GOOGLE_API_KEY is not set; /agente_ia/ will answer with an error")
	}

	if log.GetLevel() < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	apiHandler := handlers.NewAPIHandler(a.store, cfg.StoreBackend, a.tools, a.excel, gymAgent)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(apiHandler, cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on port %s", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to run server: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.closeFunc()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer f.Close()

	count, err := a.excel.ImportStudentsFromExcel(cmd.Context(), f)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d students from %s\n", count, args[0])
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.closeFunc()

	f, err := os.Create(args[0])
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", args[0], err)
	}
	if err := a.excel.ExportReport(cmd.Context(), f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", args[0])
	return nil
}

// checkAndSeedData adds sample students and payments when there are no students yet.
func checkAndSeedData(ctx context.Context, svc *services.Services) {
	existing := svc.Students.Execute(ctx, services.ActionRead, nil)
	if students, ok := existing.Data.([]models.Record); !ok || len(students) > 0 {
		log.Printf("Found existing students in collection '%s'. Skipping seed data.", models.StudentsCollection)
		return
	}
	log.Printf("No students found in collection '%s'. Adding seed data...", models.StudentsCollection)
	seedInitialData(ctx, svc)
}

// seedInitialData adds sample students, each with one payment for the current month.
func seedInitialData(ctx context.Context, svc *services.Services) {
	today := time.Now().Format("2006-01-02")
	students := []models.Record{
		{models.FieldNombre: "Juan", models.FieldApellido: "Pérez"},
		{models.FieldNombre: "María", models.FieldApellido: "Gómez"},
		{models.FieldNombre: "Lucía", models.FieldApellido: "Fernández"},
	}

	for _, s := range students {
		created := svc.Students.Execute(ctx, services.ActionCreate, s)
		if !created.OK() {
			log.Printf("Error adding seed student %s: %s", s.FullName(), created.Message)
			continue
		}
		id := created.Data.(models.Record)[models.FieldID]
		payment := svc.Payments.Execute(ctx, services.ActionCreate, models.Record{
			models.FieldAlumnoID: id,
			models.FieldFecha:    today,
			models.FieldMonto:    15000.0,
			models.FieldEstado:   "pagado",
		})
		if !payment.OK() {
			log.Printf("Error adding seed payment for %s: %s", s.FullName(), payment.Message)
		}
	}

	log.Println("Seed data added.")
}
