package core

import (
	"errors"
	"fmt"
	"math"
)

const (
	SecondsPerHour = 3600
	// M3HToCFM converts m³/h to ft³/min.
	M3HToCFM = 0.588
)

var ErrNonPhysicalRate = errors.New("non-physical decay rate")

// Airflow is the ventilation derived from a decay rate.
type Airflow struct {
	ACH float64
	M3H float64
	CFM float64
}

// DeriveAirflow converts a per-second decay rate into air changes per hour and
// volumetric airflow for a room of volumeM3.
func DeriveAirflow(lambda, volumeM3 float64) (Airflow, error) {
	if math.IsNaN(lambda) || math.IsInf(lambda, 0) || lambda <= 0 {
		return Airflow{}, fitFailed(fmt.Errorf("%w: lambda=%g", ErrNonPhysicalRate, lambda))
	}

	ach := lambda * SecondsPerHour
	m3h := ach * volumeM3
	return Airflow{
		ACH: ach,
		M3H: m3h,
		CFM: m3h * M3HToCFM,
	}, nil
}
