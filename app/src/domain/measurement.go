package domain

// Measurement is a single CO concentration sample. Timestamp is in seconds.
type Measurement struct {
	Timestamp        float64
	ConcentrationPPM float64
}

// ReadingBatch groups measurements produced for one room by a reading source.
type ReadingBatch struct {
	ID           string
	RoomID       string
	Measurements []Measurement
}
