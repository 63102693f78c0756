package core

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airflow-service/app/src/domain"
)

type stubLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *stubLogger) add(level, msg string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, level+": "+msg)
}

func (l *stubLogger) Printf(_ context.Context, format string, v ...any) {
	l.add("info", fmt.Sprintf(format, v...))
}

func (l *stubLogger) Println(_ context.Context, v ...any) {
	l.add("info", strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l *stubLogger) Debugf(_ context.Context, format string, v ...any) {
	l.add("debug", fmt.Sprintf(format, v...))
}

func (l *stubLogger) Errorf(_ context.Context, format string, v ...any) {
	l.add("error", fmt.Sprintf(format, v...))
}

func (l *stubLogger) messages() []string {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

func (l *stubLogger) count(level string) int {
	n := 0
	for _, entry := range l.messages() {
		if strings.HasPrefix(entry, level+": ") {
			n++
		}
	}
	return n
}

func TestNewSimulatorAppliesDefaults(t *testing.T) {
	logger := &stubLogger{}
	sim := NewSimulator(SimulatorConfig{}, logger)

	assert.Equal(t, time.Second, sim.cfg.Interval)
	assert.Equal(t, 1, sim.cfg.SamplesPerBatch)
	assert.Equal(t, 30*time.Second, sim.cfg.SampleStep)
	assert.NotNil(t, sim.cfg.RandSource)
	assert.NotNil(t, sim.cfg.Clock)
	assert.NotNil(t, sim.rnd)
	assert.Equal(t, logger, sim.logger)
}

func TestNewSimulatorUsesProvidedConfig(t *testing.T) {
	source := rand.NewSource(1)
	cfg := SimulatorConfig{
		Interval:        5 * time.Millisecond,
		Rooms:           []string{"lab"},
		SamplesPerBatch: 3,
		SampleStep:      10 * time.Second,
		RandSource:      source,
	}

	sim := NewSimulator(cfg, nil)

	assert.Equal(t, cfg.Interval, sim.cfg.Interval)
	assert.Equal(t, 3, sim.cfg.SamplesPerBatch)
	assert.Equal(t, 10*time.Second, sim.cfg.SampleStep)
	assert.Equal(t, source, sim.cfg.RandSource)
}

func TestSimulatorGenerateBatchDecays(t *testing.T) {
	clock := func() time.Time { return time.Unix(1_700_000_000, 0) }
	sim := NewSimulator(SimulatorConfig{
		SamplesPerBatch: 6,
		SampleStep:      30 * time.Second,
		RandSource:      rand.NewSource(7),
		Clock:           clock,
	}, nil)

	batch := sim.generateBatch("lab")

	t.Log("Step 1: the batch carries the room and fresh id")
	assert.Equal(t, "lab", batch.RoomID)
	assert.NotEmpty(t, batch.ID)
	require.Len(t, batch.Measurements, 6)

	t.Log("Step 2: readings are spaced by the sample step from the clock")
	assert.Equal(t, 1_700_000_000.0, batch.Measurements[0].Timestamp)
	for i := 1; i < len(batch.Measurements); i++ {
		assert.InDelta(t, 30.0, batch.Measurements[i].Timestamp-batch.Measurements[i-1].Timestamp, 1e-6)
	}

	t.Log("Step 3: the window decays and fits to a positive rate")
	first := batch.Measurements[0].ConcentrationPPM
	last := batch.Measurements[len(batch.Measurements)-1].ConcentrationPPM
	assert.Greater(t, first, last)
	assert.NoError(t, ValidateDecay(batch.Measurements))

	t.Log("Step 4: the next batch continues the same decay")
	next := sim.generateBatch("lab")
	assert.InDelta(t, batch.Measurements[5].Timestamp+30, next.Measurements[0].Timestamp, 1e-6)
}

func TestSimulatorRunProducesBatches(t *testing.T) {
	cfg := SimulatorConfig{Interval: time.Millisecond, Rooms: []string{"a", "b"}, SamplesPerBatch: 2, RandSource: rand.NewSource(123)}
	sim := NewSimulator(cfg, &stubLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan domain.ReadingBatch, 2)
	done := make(chan struct{})

	go func() {
		sim.Run(ctx, out)
		close(done)
	}()

	var batches []domain.ReadingBatch
	for len(batches) < 2 {
		select {
		case batch := <-out:
			batches = append(batches, batch)
		case <-time.After(time.Second):
			t.Fatal("no batch received in time")
		}
	}

	cancel()
	<-done

	assert.Equal(t, "a", batches[0].RoomID)
	assert.Equal(t, "b", batches[1].RoomID)
	for _, batch := range batches {
		assert.Len(t, batch.Measurements, 2)
	}

	for range out {
	}
}

func TestSimulatorLog(t *testing.T) {
	logger := &stubLogger{}
	sim := NewSimulator(SimulatorConfig{}, logger)

	sim.log(context.Background(), "hello %s", "world")

	assert.Len(t, logger.messages(), 1)
	assert.Contains(t, logger.messages()[0], "hello world")
}

func TestSimulatorLogWithNilLogger(t *testing.T) {
	sim := &Simulator{}
	assert.NotPanics(t, func() {
		sim.log(context.Background(), "ignored")
	})
}
