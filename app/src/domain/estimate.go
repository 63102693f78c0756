package domain

import "time"

// ConfidenceBucket classifies a fitting window by sample adequacy.
type ConfidenceBucket string

const (
	ConfidenceLow  ConfidenceBucket = "low"
	ConfidenceHigh ConfidenceBucket = "high"
)

// AirflowEstimate is the result of a successful airflow calculation.
type AirflowEstimate struct {
	RoomID     string
	ACH        float64
	AirflowM3H float64
	AirflowCFM float64
	Confidence float64
	Samples    int
	Bucket     ConfidenceBucket
	ComputedAt time.Time
}
