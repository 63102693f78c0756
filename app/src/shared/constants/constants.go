package constants

import "time"

const (
	// TimeFormat defines the canonical timestamp format used across transports.
	TimeFormat = time.RFC3339Nano

	// MaxRoomIDLength bounds room identifiers accepted by transports and the catalogue.
	MaxRoomIDLength = 64
)
