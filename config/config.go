// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"os"
	"strconv"
)

// Config はアプリケーション設定を表す。
type Config struct {
	Port               string
	DatabaseURL        string
	LedgerURL          string
	MetadataStoreURL   string
	MetadataStoreToken string
	KMSKeyName         string
	GoogleCloudProject string
	LogLevel           string
	RotationDays       int
	InitialCryptoState string
	OtelEnabled        bool
	OtelEndpoint       string
	OtelServiceName    string
	OtelSamplingRate   float64
}

// Load は環境変数から設定を読み込む。
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		LedgerURL:          os.Getenv("LEDGER_URL"),
		MetadataStoreURL:   os.Getenv("METADATA_STORE_URL"),
		MetadataStoreToken: os.Getenv("METADATA_STORE_TOKEN"),
		KMSKeyName:         os.Getenv("KMS_KEY_NAME"),
		GoogleCloudProject: os.Getenv("GOOGLE_CLOUD_PROJECT"),
		LogLevel:           getEnv("LOG_LEVEL", "INFO"),
		RotationDays:       getEnvInt("KEY_ROTATION_DAYS", 365),
		InitialCryptoState: getEnv("CRYPTO_STATE", "HYBRID_SIGN"),
		OtelEnabled:        getEnvBool("OTEL_ENABLED", false),
		OtelEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OtelServiceName:    getEnv("OTEL_SERVICE_NAME", "quantum-shield-service"),
		OtelSamplingRate:   getEnvFloat("OTEL_SAMPLING_RATE", 0.1),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
