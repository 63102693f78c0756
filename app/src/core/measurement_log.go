package core

import (
	"sync"

	"airflow-service/app/src/domain"
)

// MeasurementLog is the append-only reading history of one room. Appends are
// trusted to arrive in timestamp order and are not validated.
type MeasurementLog struct {
	mu      sync.RWMutex
	entries []domain.Measurement
}

func NewMeasurementLog() *MeasurementLog {
	return &MeasurementLog{}
}

func (l *MeasurementLog) Record(timestamp, concentrationPPM float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, domain.Measurement{
		Timestamp:        timestamp,
		ConcentrationPPM: concentrationPPM,
	})
}

// LatestWindow returns a copy of the last n entries, oldest first.
func (l *MeasurementLog) LatestWindow(n int) []domain.Measurement {
	if n <= 0 {
		return nil
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	start := len(l.entries) - n
	if start < 0 {
		start = 0
	}
	window := make([]domain.Measurement, len(l.entries)-start)
	copy(window, l.entries[start:])
	return window
}

func (l *MeasurementLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
