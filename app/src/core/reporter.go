package core

import (
	"context"
	"time"

	"airflow-service/app/src/domain"
)

const DefaultFitFailureThreshold = 3

type ReporterConfig struct {
	Interval time.Duration
	// FitFailureThreshold is the number of consecutive fit failures of one room
	// after which every further failure is logged as a possible sensor fault.
	FitFailureThreshold int
}

// PeriodicReporter computes an estimate for every room on each tick and hands
// the successful ones to the writer.
type PeriodicReporter struct {
	service  domain.AirflowService
	writer   domain.EstimateWriter
	cfg      ReporterConfig
	logger   Logger
	failures map[string]int
}

func NewReporter(service domain.AirflowService, writer domain.EstimateWriter, cfg ReporterConfig, logger Logger) *PeriodicReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.FitFailureThreshold <= 0 {
		cfg.FitFailureThreshold = DefaultFitFailureThreshold
	}
	return &PeriodicReporter{
		service:  service,
		writer:   writer,
		cfg:      cfg,
		logger:   logger,
		failures: make(map[string]int),
	}
}

func (r *PeriodicReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.printf(ctx, "reporter: stopped: %v", ctx.Err())
			return
		case <-ticker.C:
			r.ReportOnce(ctx)
		}
	}
}

// ReportOnce runs a single reporting pass and returns the number of estimates
// written. It is not safe for concurrent use.
func (r *PeriodicReporter) ReportOnce(ctx context.Context) int {
	written := 0
	for _, room := range r.service.Rooms() {
		if ctx.Err() != nil {
			return written
		}

		estimate, err := r.service.CalculateAirflow(ctx, room.ID)
		if err != nil {
			r.noResult(ctx, room.ID, err)
			continue
		}
		r.failures[room.ID] = 0

		if r.writer == nil {
			continue
		}
		if err := r.writer.Add(ctx, domain.EstimateRecordFrom(estimate)); err != nil {
			r.errorf(ctx, "reporter: store estimate room=%s: %v", room.ID, err)
			continue
		}
		written++
		r.printf(ctx, "reporter: room=%s ach=%.3f airflow_m3h=%.1f airflow_cfm=%.1f confidence=%.2f samples=%d",
			room.ID, estimate.ACH, estimate.AirflowM3H, estimate.AirflowCFM, estimate.Confidence, estimate.Samples)
	}
	return written
}

func (r *PeriodicReporter) noResult(ctx context.Context, roomID string, err error) {
	reason := domain.ReasonOf(err)
	if reason != domain.ReasonFitFailed {
		r.failures[roomID] = 0
		if r.logger != nil {
			r.logger.Debugf(ctx, "reporter: room=%s no result reason=%s", roomID, reason)
		}
		return
	}

	r.failures[roomID]++
	if count := r.failures[roomID]; count >= r.cfg.FitFailureThreshold {
		r.errorf(ctx, "reporter: room=%s fit failed %d times in a row, check the sensor: %v", roomID, count, err)
		return
	}
	r.printf(ctx, "reporter: room=%s no result reason=%s: %v", roomID, reason, err)
}

func (r *PeriodicReporter) printf(ctx context.Context, format string, v ...any) {
	if r.logger != nil {
		r.logger.Printf(ctx, format, v...)
	}
}

func (r *PeriodicReporter) errorf(ctx context.Context, format string, v ...any) {
	if r.logger != nil {
		r.logger.Errorf(ctx, format, v...)
	}
}

var _ domain.Reporter = (*PeriodicReporter)(nil)
