package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"airflow-service/app/src/domain"
	"airflow-service/app/src/infra"
)

const (
	// WindowSize is the number of most recent measurements used per fit.
	WindowSize            = 10
	MinSamples            = 2
	HighConfidenceSamples = 5
)

var ErrNonFiniteEstimate = errors.New("non-finite estimate")

// Calculator is the airflow engine of a single room.
type Calculator struct {
	room   domain.RoomContext
	log    *MeasurementLog
	fitter DecayFitter
	logger Logger
	now    func() time.Time
}

func NewCalculator(room domain.RoomContext, fitter DecayFitter, logger Logger) *Calculator {
	if fitter.MaxIterations <= 0 {
		fitter = NewDecayFitter(fitter.MaxIterations)
	}
	return &Calculator{
		room:   room,
		log:    NewMeasurementLog(),
		fitter: fitter,
		logger: logger,
		now:    time.Now,
	}
}

func (c *Calculator) Room() domain.RoomContext {
	return c.room
}

func (c *Calculator) Record(timestamp, concentrationPPM float64) {
	c.log.Record(timestamp, concentrationPPM)
}

func (c *Calculator) Len() int {
	return c.log.Len()
}

// Calculate fits the latest window. A non-nil error always matches one of
// domain.ErrInsufficientData, domain.ErrNotDecaying or domain.ErrFitFailed.
func (c *Calculator) Calculate(ctx context.Context) (domain.AirflowEstimate, error) {
	window := c.log.LatestWindow(WindowSize)
	if err := ValidateDecay(window); err != nil {
		c.debugf(ctx, "calculator: room=%s no result: %v", c.room.ID, err)
		return domain.AirflowEstimate{}, fmt.Errorf("calculator: room %s: %w", c.room.ID, err)
	}

	start := time.Now()
	fit, err := c.fitter.Fit(window)
	infra.ObserveFit(time.Since(start))
	if err != nil {
		c.errorf(ctx, "calculator: room=%s samples=%d: %v", c.room.ID, len(window), err)
		return domain.AirflowEstimate{}, fmt.Errorf("calculator: room %s: %w", c.room.ID, err)
	}
	c.debugf(ctx, "calculator: room=%s c0=%g lambda=%g iterations=%d rss=%g r2=%.4f",
		c.room.ID, fit.C0, fit.Lambda, fit.Iterations, fit.RSS, fit.RSquared)

	airflow, err := DeriveAirflow(fit.Lambda, c.room.VolumeM3)
	if err != nil {
		c.errorf(ctx, "calculator: room=%s: %v", c.room.ID, err)
		return domain.AirflowEstimate{}, fmt.Errorf("calculator: room %s: %w", c.room.ID, err)
	}

	bucket := ConfidenceBucketFor(len(window))
	estimate := domain.AirflowEstimate{
		RoomID:     c.room.ID,
		ACH:        airflow.ACH,
		AirflowM3H: airflow.M3H,
		AirflowCFM: airflow.CFM,
		Confidence: ScoreConfidence(bucket, c.room),
		Samples:    len(window),
		Bucket:     bucket,
		ComputedAt: c.now().UTC(),
	}
	if !finite(estimate.AirflowM3H, estimate.AirflowCFM, estimate.Confidence) {
		err := fitFailed(ErrNonFiniteEstimate)
		c.errorf(ctx, "calculator: room=%s m3h=%g cfm=%g confidence=%g: %v",
			c.room.ID, estimate.AirflowM3H, estimate.AirflowCFM, estimate.Confidence, err)
		return domain.AirflowEstimate{}, fmt.Errorf("calculator: room %s: %w", c.room.ID, err)
	}
	return estimate, nil
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (c *Calculator) debugf(ctx context.Context, format string, v ...any) {
	if c.logger != nil {
		c.logger.Debugf(ctx, format, v...)
	}
}

func (c *Calculator) errorf(ctx context.Context, format string, v ...any) {
	if c.logger != nil {
		c.logger.Errorf(ctx, format, v...)
	}
}
