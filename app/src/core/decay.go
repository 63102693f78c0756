package core

import (
	"fmt"

	"airflow-service/app/src/domain"
)

// ValidateDecay accepts a window only when its first concentration is strictly
// greater than its last.
func ValidateDecay(window []domain.Measurement) error {
	if len(window) < MinSamples {
		return fmt.Errorf("decay: %d samples: %w", len(window), domain.ErrInsufficientData)
	}

	first := window[0].ConcentrationPPM
	last := window[len(window)-1].ConcentrationPPM
	if !(first > last) {
		return fmt.Errorf("decay: first=%g last=%g: %w", first, last, domain.ErrNotDecaying)
	}
	return nil
}
