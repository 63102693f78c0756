package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airflow-service/app/src/domain"
)

func TestMeasurementLogLatestWindow(t *testing.T) {
	log := NewMeasurementLog()
	assert.Empty(t, log.LatestWindow(WindowSize))

	for i := 0; i < 25; i++ {
		log.Record(float64(i), float64(100-i))
	}
	require.Equal(t, 25, log.Len())

	t.Log("Step 1: the window holds only the last entries, oldest first")
	window := log.LatestWindow(WindowSize)
	require.Len(t, window, WindowSize)
	assert.Equal(t, domain.Measurement{Timestamp: 15, ConcentrationPPM: 85}, window[0])
	assert.Equal(t, domain.Measurement{Timestamp: 24, ConcentrationPPM: 76}, window[9])

	t.Log("Step 2: shorter logs return every entry")
	assert.Len(t, log.LatestWindow(100), 25)
	assert.Nil(t, log.LatestWindow(0))
}

func TestMeasurementLogWindowIsCopy(t *testing.T) {
	log := NewMeasurementLog()
	log.Record(0, 400)
	log.Record(30, 380)

	window := log.LatestWindow(2)
	window[0].ConcentrationPPM = -1

	assert.Equal(t, 400.0, log.LatestWindow(2)[0].ConcentrationPPM)
}

func TestMeasurementLogAcceptsAnyValue(t *testing.T) {
	log := NewMeasurementLog()
	log.Record(10, -5)
	log.Record(5, 1e9)

	assert.Equal(t, []domain.Measurement{{Timestamp: 10, ConcentrationPPM: -5}, {Timestamp: 5, ConcentrationPPM: 1e9}}, log.LatestWindow(2))
}

func TestMeasurementLogConcurrentAccess(t *testing.T) {
	log := NewMeasurementLog()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				log.Record(float64(i), float64(i))
			}
		}()
	}

	for i := 0; i < 100; i++ {
		assert.LessOrEqual(t, len(log.LatestWindow(WindowSize)), WindowSize)
	}
	wg.Wait()

	assert.Equal(t, 1000, log.Len())
}
