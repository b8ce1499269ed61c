package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config is the server configuration. Values come from defaults, then the
// optional YAML file named by CONFIG_FILE, then environment variables
// (including a .env file in the working directory).
type Config struct {
	Port          string   `yaml:"port"`
	DataDir       string   `yaml:"data_dir"`
	StoreBackend  string   `yaml:"store_backend"`
	RedisAddr     string   `yaml:"redis_addr"`
	RedisPassword string   `yaml:"redis_password"`
	RedisDB       int      `yaml:"redis_db"`
	RedisPrefix   string   `yaml:"redis_prefix"`
	SudoUsersPath string   `yaml:"sudo_users_path"`
	GoogleAPIKey  string   `yaml:"google_api_key"`
	GeminiModel   string   `yaml:"gemini_model"`
	UseVertexAI   bool     `yaml:"use_vertexai"`
	AgentMaxSteps int      `yaml:"agent_max_steps"`
	CORSOrigins   []string `yaml:"cors_origins"`
	LogLevel      string   `yaml:"log_level"`
	LogFormat     string   `yaml:"log_format"`
	SeedData      bool     `yaml:"seed_data"`
	AbsenceDays   int      `yaml:"alert_absence_days"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:          "8080",
		DataDir:       "data",
		StoreBackend:  BackendFile,
		RedisAddr:     "127.0.0.1:6379",
		RedisPrefix:   "gym",
		SudoUsersPath: "sudo-users.json",
		GeminiModel:   "gemini-1.5-flash-latest",
		AgentMaxSteps: 8,
		CORSOrigins:   []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		LogLevel:      "info",
		LogFormat:     "text",
		AbsenceDays:   7,
	}
}

// Load builds the configuration. A missing .env file is not an error.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Port, "PORT")
	setString(&c.DataDir, "DATA_DIR")
	setString(&c.StoreBackend, "STORE_BACKEND")
	setString(&c.RedisAddr, "REDIS_ADDR")
	setString(&c.RedisPassword, "REDIS_PASSWORD")
	setString(&c.RedisPrefix, "REDIS_PREFIX")
	setString(&c.SudoUsersPath, "SUDO_USERS_PATH")
	setString(&c.GoogleAPIKey, "GOOGLE_API_KEY")
	setString(&c.GeminiModel, "GEMINI_MODEL")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")

	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = splitList(v)
	}

	for _, b := range []struct {
		dst *bool
		key string
	}{
		{&c.UseVertexAI, "GOOGLE_GENAI_USE_VERTEXAI"},
		{&c.SeedData, "SEED_DATA"},
	} {
		if err := setBool(b.dst, b.key); err != nil {
			return err
		}
	}
	for _, n := range []struct {
		dst *int
		key string
	}{
		{&c.RedisDB, "REDIS_DB"},
		{&c.AbsenceDays, "ALERT_ABSENCE_DAYS"},
		{&c.AgentMaxSteps, "AGENT_MAX_STEPS"},
	} {
		if err := setInt(n.dst, n.key); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks values that would otherwise fail later at startup.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendFile, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (want %s, %s or %s)", c.StoreBackend, BackendFile, BackendRedis, BackendMemory)
	}
	if c.Port == "" {
		return errors.New("PORT cannot be empty")
	}
	if c.StoreBackend == BackendFile && c.DataDir == "" {
		return errors.New("DATA_DIR cannot be empty with the file backend")
	}
	return nil
}

// AgentEnabled reports whether the Gemini agent can be started.
func (c Config) AgentEnabled() bool {
	return c.GoogleAPIKey != "" || c.UseVertexAI
}

// SetupLogging applies LogLevel and LogFormat to the global logger.
func (c Config) SetupLogging() {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.Warnf("Unknown LOG_LEVEL %q, using info", c.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if strings.EqualFold(c.LogFormat, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = b
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
