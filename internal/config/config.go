// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// DefaultReportSchedule runs the batch at 18:00 on weekdays (cron with seconds).
const DefaultReportSchedule = "0 0 18 * * MON-FRI"

// Config holds application configuration
type Config struct {
	DataDir           string // Base directory for all databases (always absolute)
	LogLevel          string
	Port              int
	DevMode           bool
	PortfoliosFile    string
	ReportSchedule    string // Empty disables the scheduler
	SimulationWorkers int    // 0 = one per logical CPU
	MaxSimulations    int
	DefaultRiskFree   float64 // Used by portfolios that omit risk_free
	R2                *R2Config
}

// R2Config holds object-storage publishing settings. Publishing is disabled
// unless endpoint, bucket and both keys are set.
type R2Config struct {
	Endpoint        string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	RetentionDays   int // Published reports older than this are rotated out
}

// Enabled reports whether every required field is present
func (c *R2Config) Enabled() bool {
	return c != nil && c.Endpoint != "" && c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("FINREPORT_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:           absDataDir,
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		Port:              getEnvAsInt("GO_PORT", 8001),
		DevMode:           getEnvAsBool("DEV_MODE", false),
		PortfoliosFile:    getEnv("PORTFOLIOS_FILE", filepath.Join(absDataDir, "portfolios.json")),
		ReportSchedule:    getEnv("REPORT_SCHEDULE", DefaultReportSchedule),
		SimulationWorkers: getEnvAsInt("SIMULATION_WORKERS", 0),
		MaxSimulations:    getEnvAsInt("MAX_SIMULATIONS", 200000),
		DefaultRiskFree:   getEnvAsFloat("DEFAULT_RISK_FREE", 0),
		R2: &R2Config{
			Endpoint:        getEnv("R2_ENDPOINT", ""),
			Bucket:          getEnv("R2_BUCKET", ""),
			AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
			Region:          getEnv("R2_REGION", "auto"),
			RetentionDays:   getEnvAsInt("R2_RETENTION_DAYS", 90),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid GO_PORT %d", c.Port)
	}
	if c.SimulationWorkers < 0 {
		return fmt.Errorf("SIMULATION_WORKERS must be >= 0, got %d", c.SimulationWorkers)
	}
	if c.MaxSimulations <= 0 {
		return fmt.Errorf("MAX_SIMULATIONS must be positive, got %d", c.MaxSimulations)
	}
	if c.ReportSchedule != "" {
		parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(c.ReportSchedule); err != nil {
			return fmt.Errorf("invalid REPORT_SCHEDULE %q: %w", c.ReportSchedule, err)
		}
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
