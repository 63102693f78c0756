package core

import (
	"context"
	"math"
	"math/rand"
	"time"

	"airflow-service/app/src/domain"
	"airflow-service/app/src/infra"
	"airflow-service/app/src/shared/constants"
)

const (
	simulatorReleasePPM = 50
	simulatorNoisePPM   = 1.5
)

type SimulatorConfig struct {
	Interval        time.Duration
	Rooms           []string
	SamplesPerBatch int
	// SampleStep is the simulated time between two readings of one room.
	SampleStep time.Duration
	RandSource rand.Source
	Clock      func() time.Time
}

type roomDecay struct {
	concentration float64
	lambda        float64
	timestamp     float64
}

// Simulator emits noisy exponentially decaying CO readings for each room. Below
// 50 ppm a new CO release is simulated.
type Simulator struct {
	cfg    SimulatorConfig
	logger Logger
	rnd    *rand.Rand
	state  map[string]*roomDecay
}

func NewSimulator(cfg SimulatorConfig, logger Logger) *Simulator {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.SamplesPerBatch <= 0 {
		cfg.SamplesPerBatch = 1
	}
	if cfg.SampleStep <= 0 {
		cfg.SampleStep = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	source := cfg.RandSource
	if source == nil {
		source = rand.NewSource(time.Now().UnixNano())
	}
	cfg.RandSource = source

	return &Simulator{
		cfg:    cfg,
		logger: logger,
		rnd:    rand.New(source),
		state:  make(map[string]*roomDecay, len(cfg.Rooms)),
	}
}

func (s *Simulator) Run(ctx context.Context, out chan<- domain.ReadingBatch) {
	defer close(out)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log(ctx, "simulator: stopped (context cancelled): %v", ctx.Err())
			return
		case <-ticker.C:
		}

		for _, room := range s.cfg.Rooms {
			batch := s.generateBatch(room)
			infra.IncReadingBatches("simulator")

			if !s.sendBatch(ctx, out, batch) {
				return
			}
		}
	}
}

func (s *Simulator) generateBatch(room string) domain.ReadingBatch {
	state, ok := s.state[room]
	if !ok {
		state = s.release(float64(s.cfg.Clock().UnixNano()) / float64(time.Second))
		s.state[room] = state
	}

	step := s.cfg.SampleStep.Seconds()
	measurements := make([]domain.Measurement, s.cfg.SamplesPerBatch)
	for i := range measurements {
		if state.concentration < simulatorReleasePPM {
			*state = *s.release(state.timestamp)
		}

		noise := s.rnd.NormFloat64() * simulatorNoisePPM
		measurements[i] = domain.Measurement{
			Timestamp:        state.timestamp,
			ConcentrationPPM: math.Max(0, state.concentration+noise),
		}

		state.timestamp += step
		state.concentration *= math.Exp(-state.lambda * step)
	}

	return domain.ReadingBatch{ID: constants.GenerateUUID(), RoomID: room, Measurements: measurements}
}

// release starts a new decay between 300 and 500 ppm at 1 to 8 air changes per hour.
func (s *Simulator) release(timestamp float64) *roomDecay {
	ach := 1 + s.rnd.Float64()*7
	return &roomDecay{
		concentration: 300 + s.rnd.Float64()*200,
		lambda:        ach / SecondsPerHour,
		timestamp:     timestamp,
	}
}

func (s *Simulator) sendBatch(ctx context.Context, out chan<- domain.ReadingBatch, batch domain.ReadingBatch) bool {
	select {
	case <-ctx.Done():
		s.log(ctx, "simulator: stopping before sending batch: %v", ctx.Err())
		return false
	case out <- batch:
		return true
	}
}

func (s *Simulator) log(ctx context.Context, format string, v ...any) {
	if s.logger != nil {
		s.logger.Printf(ctx, format, v...)
	}
}

var _ domain.ReadingSource = (*Simulator)(nil)
