package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"airflow-service/app/src/core"
	"airflow-service/app/src/database"
	"airflow-service/app/src/domain"
	"airflow-service/app/src/infra"
	"airflow-service/app/src/ingest/kafka"
)

const simulatedRoomID = "simulated-room"

func provideConfig() infra.Config {
	return infra.LoadConfig()
}

func provideServiceName() string {
	return "airflow-service"
}

func provideLogger(out io.Writer, serviceName string, cfg infra.Config) *infra.Logger {
	return infra.NewLeveledLogger(out, serviceName, cfg.LogLevel)
}

func provideRooms(ctx context.Context, cfg infra.Config, logger *infra.Logger) ([]domain.RoomContext, error) {
	if cfg.RoomsFile == "" {
		logger.Println(ctx, "no ROOMS_FILE configured, rooms are registered on first measurement")
		return nil, nil
	}

	rooms, err := infra.LoadRooms(cfg.RoomsFile)
	if err != nil {
		return nil, err
	}
	logger.Printf(ctx, "loaded %d rooms from %s", len(rooms), cfg.RoomsFile)
	return rooms, nil
}

func provideRegistry(rooms []domain.RoomContext, cfg infra.Config, logger *infra.Logger) (*core.Registry, error) {
	return core.NewRegistry(rooms, core.RegistryConfig{
		DefaultVolumeM3:  cfg.DefaultRoomVolumeM3,
		AutoRegister:     cfg.AutoRegisterRooms || len(rooms) == 0,
		FitMaxIterations: cfg.FitMaxIterations,
	}, logger)
}

func provideAirflowService(registry *core.Registry) domain.AirflowService {
	return registry
}

func provideEstimateStore(ctx context.Context, cfg infra.Config, logger *infra.Logger) (database.EstimateStore, func(), error) {
	if database.ShouldCheckDatabase(cfg) {
		if err := database.WaitForDatabase(ctx, cfg, logger); err != nil {
			logger.Printf(ctx, "database connectivity check failed: %v", err)
		} else {
			logger.Println(ctx, "database connectivity check succeeded")
		}
	}

	return database.SetupRepository(ctx, cfg, logger)
}

func provideEstimateReader(store database.EstimateStore) domain.EstimateReader {
	return store
}

func provideEstimateWriter(store database.EstimateStore) domain.EstimateWriter {
	return store
}

func provideReporter(cfg infra.Config, service domain.AirflowService, writer domain.EstimateWriter, logger *infra.Logger) domain.Reporter {
	return core.NewReporter(service, writer, core.ReporterConfig{
		Interval:            time.Duration(cfg.ReportIntervalMillis) * time.Millisecond,
		FitFailureThreshold: core.DefaultFitFailureThreshold,
	}, logger)
}

// providePipelines builds one pipeline per enabled reading source.
func providePipelines(ctx context.Context, cfg infra.Config, service domain.AirflowService, logger *infra.Logger) (pipelines, func(), error) {
	var result pipelines
	cleanup := func() {}

	if cfg.SimulatorEnabled {
		rooms := roomIDs(service.Rooms())
		if len(rooms) == 0 {
			rooms = []string{simulatedRoomID}
		}
		sim := core.NewSimulator(core.SimulatorConfig{
			Interval: time.Duration(cfg.SimulatorIntervalMillis) * time.Millisecond,
			Rooms:    rooms,
		}, logger)
		result = append(result, ingestPipeline{
			Name:   "simulator",
			Source: sim,
			Pool:   core.NewWorkerPool(cfg.IngestWorkerCount, service, logger),
		})
		logger.Printf(ctx, "simulator enabled for %d rooms", len(rooms))
	}

	if len(cfg.KafkaBrokers) > 0 {
		source, err := kafka.NewSource(kafka.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("kafka source: %w", err)
		}
		result = append(result, ingestPipeline{
			Name:   "kafka",
			Source: source,
			Pool:   core.NewWorkerPool(cfg.IngestWorkerCount, service, logger),
		})
		cleanup = func() {
			if err := source.Close(); err != nil {
				logger.Errorf(context.Background(), "kafka source close: %v", err)
			}
		}
	}

	if len(result) == 0 {
		logger.Println(ctx, "no reading source enabled, measurements arrive over HTTP and gRPC only")
	}
	return result, cleanup, nil
}

func roomIDs(rooms []domain.RoomContext) []string {
	ids := make([]string, len(rooms))
	for i, room := range rooms {
		ids[i] = room.ID
	}
	return ids
}
