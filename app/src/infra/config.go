package infra

import (
	"context"
	"os"
	"strconv"
	"strings"

	"airflow-service/app/src/domain"
	"airflow-service/app/src/infra/utils"
)

type Config struct {
	HTTPPort                string
	GRPCPort                string
	MetricsPort             string
	LogLevel                string
	DatabaseDSN             string
	DatabaseHost            string
	DatabasePort            string
	DatabaseUser            string
	DatabasePassword        string
	DatabaseName            string
	DatabaseBatchSize       int
	DatabaseBatchTimeoutMS  int
	DatabaseBatchBufferSize int
	RoomsFile               string
	DefaultRoomVolumeM3     float64
	AutoRegisterRooms       bool
	FitMaxIterations        int
	ReportIntervalMillis    int
	IngestWorkerCount       int
	ReadingBufferSize       int
	SimulatorEnabled        bool
	SimulatorIntervalMillis int
	KafkaBrokers            []string
	KafkaTopic              string
	KafkaGroupID            string
}

func LoadConfig() Config {
	return Config{
		HTTPPort:                getEnv("HTTP_PORT", "8080"),
		GRPCPort:                getEnv("GRPC_PORT", "50051"),
		MetricsPort:             getEnv("METRICS_PORT", "2112"),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		DatabaseDSN:             os.Getenv("DB_DSN"),
		DatabaseHost:            os.Getenv("DB_HOST"),
		DatabasePort:            os.Getenv("DB_PORT"),
		DatabaseUser:            os.Getenv("DB_USER"),
		DatabasePassword:        os.Getenv("DB_PASSWORD"),
		DatabaseName:            os.Getenv("DB_NAME"),
		DatabaseBatchSize:       getEnvInt("DB_BATCH_SIZE", 32),
		DatabaseBatchTimeoutMS:  getEnvInt("DB_BATCH_TIMEOUT_MS", 250),
		DatabaseBatchBufferSize: getEnvInt("DB_BATCH_BUFFER", 128),
		RoomsFile:               os.Getenv("ROOMS_FILE"),
		DefaultRoomVolumeM3:     getEnvFloat("DEFAULT_ROOM_VOLUME_M3", domain.DefaultRoomVolumeM3),
		AutoRegisterRooms:       getEnvBool("AUTO_REGISTER_ROOMS", false),
		FitMaxIterations:        getEnvInt("FIT_MAX_ITERATIONS", 200),
		ReportIntervalMillis:    getEnvInt("REPORT_INTERVAL_MS", 30000),
		IngestWorkerCount:       getEnvInt("INGEST_WORKERS", 4),
		ReadingBufferSize:       getEnvInt("READING_BUFFER", 100),
		SimulatorEnabled:        getEnvBool("SIMULATOR_ENABLED", false),
		SimulatorIntervalMillis: getEnvInt("SIMULATOR_INTERVAL_MS", 1000),
		KafkaBrokers:            getEnvList("KAFKA_BROKERS"),
		KafkaTopic:              getEnv("KAFKA_TOPIC", "co-readings"),
		KafkaGroupID:            getEnv("KAFKA_GROUP_ID", "airflow-service"),
	}
}

func LogConfig(ctx context.Context, logger *Logger, cfg Config) {
	logger.Printf(ctx, "HTTP_PORT=%s", cfg.HTTPPort)
	logger.Printf(ctx, "GRPC_PORT=%s", cfg.GRPCPort)
	logger.Printf(ctx, "METRICS_PORT=%s", utils.EmptyFallback(cfg.MetricsPort, "(disabled)"))
	logger.Printf(ctx, "LOG_LEVEL=%s", cfg.LogLevel)
	if cfg.DatabaseDSN != "" {
		logger.Printf(ctx, "DB_DSN set (length %d)", len(cfg.DatabaseDSN))
	} else {
		logger.Println(ctx, "DB_DSN not provided")
	}
	logger.Printf(ctx, "DB_HOST=%s", utils.EmptyFallback(cfg.DatabaseHost, "(not set)"))
	logger.Printf(ctx, "DB_PORT=%s", utils.EmptyFallback(cfg.DatabasePort, "(not set)"))
	logger.Printf(ctx, "DB_USER=%s", utils.EmptyFallback(cfg.DatabaseUser, "(not set)"))
	if cfg.DatabasePassword != "" {
		logger.Println(ctx, "DB_PASSWORD set (redacted)")
	} else {
		logger.Println(ctx, "DB_PASSWORD not provided")
	}
	logger.Printf(ctx, "DB_NAME=%s", utils.EmptyFallback(cfg.DatabaseName, "(not set)"))
	logger.Printf(ctx, "DB_BATCH_SIZE=%d", cfg.DatabaseBatchSize)
	logger.Printf(ctx, "DB_BATCH_TIMEOUT_MS=%d", cfg.DatabaseBatchTimeoutMS)
	logger.Printf(ctx, "DB_BATCH_BUFFER=%d", cfg.DatabaseBatchBufferSize)
	logger.Printf(ctx, "ROOMS_FILE=%s", utils.EmptyFallback(cfg.RoomsFile, "(not set)"))
	logger.Printf(ctx, "DEFAULT_ROOM_VOLUME_M3=%g", cfg.DefaultRoomVolumeM3)
	logger.Printf(ctx, "AUTO_REGISTER_ROOMS=%t", cfg.AutoRegisterRooms)
	logger.Printf(ctx, "FIT_MAX_ITERATIONS=%d", cfg.FitMaxIterations)
	logger.Printf(ctx, "REPORT_INTERVAL_MS=%d", cfg.ReportIntervalMillis)
	logger.Printf(ctx, "INGEST_WORKERS=%d", cfg.IngestWorkerCount)
	logger.Printf(ctx, "READING_BUFFER=%d", cfg.ReadingBufferSize)
	logger.Printf(ctx, "SIMULATOR_ENABLED=%t", cfg.SimulatorEnabled)
	logger.Printf(ctx, "SIMULATOR_INTERVAL_MS=%d", cfg.SimulatorIntervalMillis)
	logger.Printf(ctx, "KAFKA_BROKERS=%s", utils.EmptyFallback(strings.Join(cfg.KafkaBrokers, ","), "(not set)"))
	logger.Printf(ctx, "KAFKA_TOPIC=%s", cfg.KafkaTopic)
	logger.Printf(ctx, "KAFKA_GROUP_ID=%s", cfg.KafkaGroupID)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
