// Package config turns the process environment and the optional endpoint
// file into explicit values for the pipeline.
package config

import (
	"errors"
	"os"
	"strconv"
)

const (
	DefaultDatabase      = "nvd"
	DefaultConnectorName = "nvd_connector"
)

// Config holds all configuration for the application,
// typically loaded from environment variables.
type Config struct {
	MongoURI string
	// MongoDB receives the legacy 1.0 collections; CVEDB and CVEHistoryDB
	// receive the 2.0 ones and default to MongoDB.
	MongoDB      string
	CVEDB        string
	CVEHistoryDB string

	APIKey            string
	ConnectorName     string
	UserAgent         string
	RequestsPerSecond float64

	// Optional sinks.
	SQLConnString  string
	PushgatewayURL string

	LogLevel  string
	LogFormat string
}

// LoadConfig loads application settings from environment variables
// (which should be populated by the .env file in main.go).
func LoadConfig() (*Config, error) {
	mongoURI := firstEnv("MONGO_URI", "MONGO_CONNECTION_STRING")
	if mongoURI == "" {
		return nil, errors.New("MONGO_URI environment variable not set")
	}

	rps, err := getEnvFloat("NVD_REQUESTS_PER_SECOND", 0)
	if err != nil {
		return nil, err
	}

	db := getEnv("MONGO_DB_NAME", DefaultDatabase)
	return &Config{
		MongoURI:          mongoURI,
		MongoDB:           db,
		CVEDB:             getEnv("CVE_DB", db),
		CVEHistoryDB:      getEnv("CVE_HISTORY_DB", db),
		APIKey:            os.Getenv("NVD_API_KEY"),
		ConnectorName:     getEnv("CONNECTOR_NAME", DefaultConnectorName),
		UserAgent:         os.Getenv("NVD_USER_AGENT"),
		RequestsPerSecond: rps,
		SQLConnString:     os.Getenv("SQL_CONNECTION_STRING"),
		PushgatewayURL:    os.Getenv("PUSHGATEWAY_URL"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "text"),
	}, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil || f < 0 {
		return 0, errors.New(key + " must be a non-negative number")
	}
	return f, nil
}
