package domain

import (
	"context"
	"time"
)

// EstimateRecord is a persisted airflow estimate.
type EstimateRecord struct {
	RoomID     string
	ACH        float64
	AirflowM3H float64
	AirflowCFM float64
	Confidence float64
	Samples    int
	ComputedAt time.Time
}

// EstimateWriter persists estimates produced by the reporter.
type EstimateWriter interface {
	Add(ctx context.Context, record EstimateRecord) error
}

// EstimateReader exposes the estimate history to transports.
type EstimateReader interface {
	History(ctx context.Context, roomID string, limit int) ([]EstimateRecord, error)
}

// EstimateRepository aggregates the write and read capabilities of the history store.
type EstimateRepository interface {
	EstimateWriter
	EstimateReader
}

// AirflowService describes the behaviour exposed to transport layers.
type AirflowService interface {
	RecordMeasurement(ctx context.Context, roomID string, measurement Measurement) error
	CalculateAirflow(ctx context.Context, roomID string) (AirflowEstimate, error)
	Rooms() []RoomContext
}

// ReadingSource produces reading batches that will be recorded by the ingest pool.
type ReadingSource interface {
	Run(ctx context.Context, out chan<- ReadingBatch)
}

// IngestPool consumes reading batches and records them through the service.
type IngestPool interface {
	Run(ctx context.Context, batches <-chan ReadingBatch)
}

// Reporter periodically computes estimates for every room.
type Reporter interface {
	Run(ctx context.Context)
}

// EstimateRecordFrom converts a calculation result into its persisted form.
func EstimateRecordFrom(estimate AirflowEstimate) EstimateRecord {
	return EstimateRecord{
		RoomID:     estimate.RoomID,
		ACH:        estimate.ACH,
		AirflowM3H: estimate.AirflowM3H,
		AirflowCFM: estimate.AirflowCFM,
		Confidence: estimate.Confidence,
		Samples:    estimate.Samples,
		ComputedAt: estimate.ComputedAt,
	}
}
