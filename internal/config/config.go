package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Source exports
	DataDir        string
	CSVEncoding    string
	PaymentPeriods string
	VenuesFile     string

	// Dashboard selection
	FeriasYears []int
	DefaultYear int

	// Backend selection
	DataBackend string

	// Database
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string
	GoogleOAuthClientFile    string
	GoogleOAuthTokenFile     string

	// Imports and worker
	UploadMaxBytes       int64
	WorkerPrefetch       int
	PendingSweepInterval time.Duration
	PendingMinAge        time.Duration
	ShutdownGrace        time.Duration

	// Uploads allowed per client and minute
	RateLimitPerMinute int

	LogLevel  string
	LogFormat string
}

// Backends lists the accepted DATA_BACKEND values.
var Backends = []string{"csv", "sheets", "sqlite"}

func Load() *Config {
	years := getEnvIntList("FERIAS_YEARS", []int{2023, 2024, 2025})
	cfg := &Config{
		Port: getEnv("PORT", "8081"),

		DataDir:        getEnv("DATA_DIR", "./data"),
		CSVEncoding:    strings.ToLower(getEnv("CSV_ENCODING", "utf-8")),
		PaymentPeriods: strings.ToLower(getEnv("PAYMENT_PERIODS", "columns")),
		VenuesFile:     getEnv("VENUES_FILE", ""),

		FeriasYears: years,
		DefaultYear: getEnvInt("DEFAULT_YEAR", 0),

		DataBackend:  getEnv("DATA_BACKEND", "csv"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/tablero.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "tablero"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "imports"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleOAuthClientFile:    getEnv("GOOGLE_OAUTH_CLIENT_FILE", ""),
		GoogleOAuthTokenFile:     getEnv("GOOGLE_OAUTH_TOKEN_FILE", ""),

		UploadMaxBytes:       int64(getEnvInt("UPLOAD_MAX_BYTES", 10<<20)),
		WorkerPrefetch:       getEnvInt("WORKER_PREFETCH", 1),
		PendingSweepInterval: getEnvDuration("PENDING_SWEEP_INTERVAL", time.Minute),
		PendingMinAge:        getEnvDuration("PENDING_MIN_AGE", 2*time.Minute),
		ShutdownGrace:        getEnvDuration("SHUTDOWN_GRACE", 10*time.Second),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 20),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}
	return cfg
}

// SelectedYear is the fair year shown when a request names none: DEFAULT_YEAR,
// or the newest configured year.
func (c *Config) SelectedYear() int {
	if c.DefaultYear != 0 || len(c.FeriasYears) == 0 {
		return c.DefaultYear
	}
	return slices.Max(c.FeriasYears)
}

// FixedPeriods reports whether the payment classifier uses twelve periods for every year.
func (c *Config) FixedPeriods() bool {
	return c.PaymentPeriods == "fixed"
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if strings.TrimSpace(c.DataDir) == "" {
		errors = append(errors, "data directory cannot be empty")
	}
	if c.CSVEncoding != "utf-8" && c.CSVEncoding != "latin1" {
		errors = append(errors, fmt.Sprintf("invalid CSV encoding '%s': must be 'utf-8' or 'latin1'", c.CSVEncoding))
	}
	if c.PaymentPeriods != "columns" && c.PaymentPeriods != "fixed" {
		errors = append(errors, fmt.Sprintf("invalid payment periods '%s': must be 'columns' or 'fixed'", c.PaymentPeriods))
	}
	if c.VenuesFile != "" {
		if _, err := os.Stat(c.VenuesFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("venues file does not exist: %s", c.VenuesFile))
		}
	}

	// Validate years
	if len(c.FeriasYears) == 0 {
		errors = append(errors, "at least one fair year must be configured")
	}
	for _, y := range c.FeriasYears {
		if y < 2000 || y > 2100 {
			errors = append(errors, fmt.Sprintf("invalid fair year %d: must be between 2000 and 2100", y))
		}
	}
	if c.DefaultYear != 0 && !slices.Contains(c.FeriasYears, c.DefaultYear) {
		errors = append(errors, fmt.Sprintf("default year %d is not one of the fair years %v", c.DefaultYear, c.FeriasYears))
	}

	// Validate data backend
	if !slices.Contains(Backends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, Backends))
	}

	// Validate SQLite configuration if backend is sqlite
	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			// Check if directory exists or can be created
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate Google Sheets configuration if backend is sheets
	if c.DataBackend == "sheets" {
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.GoogleOAuthTokenFile != "" {
			if c.GoogleOAuthClientFile == "" {
				errors = append(errors, "GOOGLE_OAUTH_CLIENT_FILE is required with GOOGLE_OAUTH_TOKEN_FILE")
			}
		} else if c.GoogleServiceAccountFile == "" && c.GoogleServiceAccountJSON == "" && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for sheets backend")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if c.UploadMaxBytes < 1<<10 {
		errors = append(errors, fmt.Sprintf("invalid upload limit %d: must be at least 1024 bytes", c.UploadMaxBytes))
	}
	if c.WorkerPrefetch < 1 || c.WorkerPrefetch > 100 {
		errors = append(errors, fmt.Sprintf("invalid worker prefetch %d: must be between 1 and 100", c.WorkerPrefetch))
	}
	if c.PendingSweepInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid pending sweep interval %v: must be at least 1 second", c.PendingSweepInterval))
	}
	if c.PendingMinAge < 0 {
		errors = append(errors, fmt.Sprintf("invalid pending min age %v: cannot be negative", c.PendingMinAge))
	}
	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}
	if c.ShutdownGrace < time.Second {
		errors = append(errors, fmt.Sprintf("invalid shutdown grace %v: must be at least 1 second", c.ShutdownGrace))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvIntList reads a comma-separated list. Any malformed entry makes the
// whole value fall back to the default.
func getEnvIntList(key string, defaultValue []int) []int {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}
	var out []int
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		i, err := strconv.Atoi(part)
		if err != nil {
			return defaultValue
		}
		out = append(out, i)
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
