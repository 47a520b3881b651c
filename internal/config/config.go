package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	applog "finassist/internal/log"
)

type Config struct {
	// Database
	SQLiteDBPath string

	// Logging
	LogLevel string

	// AMQP; an empty URL disables queueing and event publishing
	AMQPURL         string
	AMQPExchange    string
	AMQPQueue       string
	AMQPMirrorQueue string

	// AI collaborator (Gemini on Vertex AI); an empty project runs offline
	GeminiProject  string
	GeminiLocation string
	GeminiModel    string
	AITimeout      time.Duration

	// Analytics cache
	CacheTTL        time.Duration
	CacheMaxEntries int

	// Optional TOML file overriding the default policy
	PolicyFile string

	// Google Sheets mirror; an empty spreadsheet id disables it
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

func Load() *Config {
	cfg := &Config{
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/finassist.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		AMQPURL:         getEnv("AMQP_URL", ""),
		AMQPExchange:    getEnv("AMQP_EXCHANGE", "finassist"),
		AMQPQueue:       getEnv("AMQP_QUEUE", "ingest_requests"),
		AMQPMirrorQueue: getEnv("AMQP_MIRROR_QUEUE", "sheets_mirror"),

		GeminiProject:  getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GeminiLocation: getEnv("GOOGLE_CLOUD_LOCATION", "global"),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		AITimeout:      getEnvDuration("AI_TIMEOUT", 20*time.Second),

		CacheTTL:        getEnvDuration("CACHE_TTL", 5*time.Minute),
		CacheMaxEntries: getEnvInt("CACHE_MAX_ENTRIES", 10000),

		PolicyFile: getEnv("POLICY_FILE", ""),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Expenses"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),
	}

	return cfg
}

// AMQPEnabled reports whether a broker is configured.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// AIEnabled reports whether a Gemini project is configured.
func (c *Config) AIEnabled() bool {
	return c.GeminiProject != ""
}

// SheetsEnabled reports whether the spreadsheet mirror is configured.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate SQLite configuration
	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
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

	if _, err := applog.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
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
		if c.AMQPMirrorQueue == "" {
			errors = append(errors, "AMQP mirror queue name cannot be empty when AMQP URL is provided")
		} else if c.AMQPMirrorQueue == c.AMQPQueue {
			errors = append(errors, fmt.Sprintf("AMQP mirror queue '%s' must differ from the ingest queue", c.AMQPMirrorQueue))
		}
	}

	// Validate AI configuration
	if c.GeminiProject != "" {
		if strings.TrimSpace(c.GeminiModel) == "" {
			errors = append(errors, "Gemini model cannot be empty when GOOGLE_CLOUD_PROJECT is provided")
		}
		if strings.TrimSpace(c.GeminiLocation) == "" {
			errors = append(errors, "Gemini location cannot be empty when GOOGLE_CLOUD_PROJECT is provided")
		}
	}
	if c.AITimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid AI timeout %v: must be at least 1 second", c.AITimeout))
	} else if c.AITimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid AI timeout %v: must be at most 5 minutes", c.AITimeout))
	}

	// Validate cache configuration
	if c.CacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be at least 1 second", c.CacheTTL))
	} else if c.CacheTTL > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be at most 24 hours", c.CacheTTL))
	}
	if c.CacheMaxEntries < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheMaxEntries))
	}

	if c.PolicyFile != "" {
		if _, err := os.Stat(c.PolicyFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("policy file does not exist: %s", c.PolicyFile))
		}
	}

	// Validate Google Sheets configuration if the mirror is enabled
	if c.GoogleSpreadsheetID != "" {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when GOOGLE_SPREADSHEET_ID is set")
		}

		hasFile := c.GoogleServiceAccountFile != ""
		hasJSON := c.GoogleServiceAccountJSON != ""
		if !hasFile && !hasJSON {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for the sheets mirror")
		}
		if hasFile && !hasJSON {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
