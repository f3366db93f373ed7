package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// This function will Load the ENVIORNMENT VARIABLES from .env if GO_ENV variable is not set
func LoadENV() error {
	goEnv := os.Getenv("GO_ENV")

	if goEnv == "" || goEnv == "development" {
		err := godotenv.Load()
		if err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	return nil
}

type EnviornmentVariable struct {
	GO_ENV       string
	DB_USER_NAME string
	DB_PASSWORD  string
	DB_NAME      string
	DB_HOST      string
	DB_PORT      string
	DB_SSL_MODE  string
	PORT         int
	LOG_LEVEL    string
	// Auth
	JWT_SECRET    string
	JWT_ISSUER    string
	AUTH_DISABLED bool
	// Redis / events
	REDIS_URL string
	EVENT_BUS string
	// Folder layout
	BASE_FOLDER string
	TASK_ROOT   string
	// PDF handling
	PDF_PARSE_TIMEOUT time.Duration
	RENDER_DPI        float64
	RENDER_WORKERS    int
	// Background work
	CRON_ENABLED    bool
	WATCHER_ENABLED bool
	// Report archive (S3 compatible)
	REPORT_BUCKET     string
	REPORT_REGION     string
	REPORT_ENDPOINT   string
	REPORT_ACCESS_KEY string
	REPORT_SECRET_KEY string
	// HTTP
	ALLOWED_ORIGINS     string
	RATE_LIMIT_REQUESTS int
}

func Get() (*EnviornmentVariable, error) {

	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err != nil {
		port = 8080
	}

	baseFolder := getEnv("BASE_FOLDER", "./data")

	envVariables := &EnviornmentVariable{
		GO_ENV:       os.Getenv("GO_ENV"),
		DB_USER_NAME: os.Getenv("DB_USER_NAME"),
		DB_PASSWORD:  os.Getenv("DB_PASSWORD"),
		DB_NAME:      os.Getenv("DB_NAME"),
		DB_HOST:      getEnv("DB_HOST", "localhost"),
		DB_PORT:      getEnv("DB_PORT", "5432"),
		DB_SSL_MODE:  getEnv("DB_SSL_MODE", "disable"),
		PORT:         port,
		LOG_LEVEL:    getEnv("LOG_LEVEL", "info"),
		// Auth
		JWT_SECRET:    os.Getenv("JWT_SECRET"),
		JWT_ISSUER:    os.Getenv("JWT_ISSUER"),
		AUTH_DISABLED: os.Getenv("AUTH_DISABLED") == "true",
		// Redis / events
		REDIS_URL: os.Getenv("REDIS_URL"),
		EVENT_BUS: getEnv("EVENT_BUS", "memory"),
		// Folder layout
		BASE_FOLDER: baseFolder,
		TASK_ROOT:   getEnv("TASK_ROOT", baseFolder),
		// PDF handling
		PDF_PARSE_TIMEOUT: getDuration("PDF_PARSE_TIMEOUT", 30*time.Second),
		RENDER_DPI:        getFloat("RENDER_DPI", 150),
		RENDER_WORKERS:    getInt("RENDER_WORKERS", 4),
		// Background work, enabled unless explicitly turned off
		CRON_ENABLED:    os.Getenv("CRON_ENABLED") != "false",
		WATCHER_ENABLED: os.Getenv("WATCHER_ENABLED") != "false",
		// Report archive
		REPORT_BUCKET:     os.Getenv("REPORT_BUCKET"),
		REPORT_REGION:     os.Getenv("REPORT_REGION"),
		REPORT_ENDPOINT:   os.Getenv("REPORT_ENDPOINT"),
		REPORT_ACCESS_KEY: os.Getenv("REPORT_ACCESS_KEY"),
		REPORT_SECRET_KEY: os.Getenv("REPORT_SECRET_KEY"),
		// HTTP
		ALLOWED_ORIGINS:     getEnv("ALLOWED_ORIGINS", "*"),
		RATE_LIMIT_REQUESTS: getInt("RATE_LIMIT_REQUESTS", 300),
	}

	return envVariables, nil
}

// Layout returns the folder layout rooted at BASE_FOLDER.
func (e *EnviornmentVariable) Layout() Layout {
	return Layout{Base: e.BASE_FOLDER}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func getFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
