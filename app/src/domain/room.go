package domain

import (
	"fmt"
	"math"
)

// InhibitorWeights are the fixed per-factor weights of the confidence heuristic.
type InhibitorWeights struct {
	Furniture      float64
	Fans           float64
	ResidentialCFM float64
}

// DefaultInhibitorWeights returns the weights the confidence heuristic was tuned with.
func DefaultInhibitorWeights() InhibitorWeights {
	return InhibitorWeights{
		Furniture:      3,
		Fans:           2,
		ResidentialCFM: 15,
	}
}

const (
	DefaultRoomVolumeM3    = 48
	DefaultFurnitureCount  = 6
	DefaultIndoorVentSpeed = 0.5
	DefaultOccupantCount   = 4
)

// RoomContext holds the static parameters of a single room.
type RoomContext struct {
	ID              string
	VolumeM3        float64
	FurnitureCount  float64
	IndoorVentSpeed float64
	OccupantCount   float64
	Weights         InhibitorWeights
}

// NewRoomContext returns a room with the default inhibitor factors.
func NewRoomContext(id string, volumeM3 float64) RoomContext {
	return RoomContext{
		ID:              id,
		VolumeM3:        volumeM3,
		FurnitureCount:  DefaultFurnitureCount,
		IndoorVentSpeed: DefaultIndoorVentSpeed,
		OccupantCount:   DefaultOccupantCount,
		Weights:         DefaultInhibitorWeights(),
	}
}

// Validate requires a positive finite volume and finite inhibitor inputs.
func (r RoomContext) Validate() error {
	if math.IsNaN(r.VolumeM3) || math.IsInf(r.VolumeM3, 0) || r.VolumeM3 <= 0 {
		return fmt.Errorf("%w: room %q: volume_m3 must be a positive finite number, got %v", ErrInvalidRoom, r.ID, r.VolumeM3)
	}
	for _, field := range []struct {
		name  string
		value float64
	}{
		{"furniture_count", r.FurnitureCount},
		{"indoor_vent_speed", r.IndoorVentSpeed},
		{"occupant_count", r.OccupantCount},
		{"weights.furniture", r.Weights.Furniture},
		{"weights.fans", r.Weights.Fans},
		{"weights.residential_cfm", r.Weights.ResidentialCFM},
	} {
		if math.IsNaN(field.value) || math.IsInf(field.value, 0) {
			return fmt.Errorf("%w: room %q: %s must be finite, got %v", ErrInvalidRoom, r.ID, field.name, field.value)
		}
	}
	return nil
}
