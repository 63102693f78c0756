package core

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"airflow-service/app/src/domain"
)

func TestConfidenceBucketFor(t *testing.T) {
	assert.Equal(t, domain.ConfidenceLow, ConfidenceBucketFor(2))
	assert.Equal(t, domain.ConfidenceLow, ConfidenceBucketFor(4))
	assert.Equal(t, domain.ConfidenceHigh, ConfidenceBucketFor(5))
	assert.Equal(t, domain.ConfidenceHigh, ConfidenceBucketFor(10))
}

func TestScoreConfidenceSaturatesForDefaultRoom(t *testing.T) {
	room := domain.NewRoomContext("lab", 48)

	assert.Equal(t, 1.0, ScoreConfidence(domain.ConfidenceHigh, room))
	assert.Equal(t, 1.0, ScoreConfidence(domain.ConfidenceLow, room))
}

func TestScoreConfidenceFormula(t *testing.T) {
	unit := domain.InhibitorWeights{Furniture: 1}

	tests := []struct {
		name      string
		bucket    domain.ConfidenceBucket
		furniture float64
		want      float64
	}{
		{"low bucket centred", domain.ConfidenceLow, -25, 0.5},
		{"high bucket centred", domain.ConfidenceHigh, -75, 0.5},
		{"one above centre", domain.ConfidenceLow, -24, 0.73},
		{"two below centre", domain.ConfidenceHigh, -77, 0.12},
		{"far below", domain.ConfidenceLow, -1000, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			room := domain.RoomContext{ID: "r", VolumeM3: 1, FurnitureCount: tc.furniture, Weights: unit}
			assert.Equal(t, tc.want, ScoreConfidence(tc.bucket, room))
		})
	}
}

func TestScoreConfidenceUsesEveryWeight(t *testing.T) {
	room := domain.RoomContext{
		FurnitureCount:  1,
		IndoorVentSpeed: 1,
		OccupantCount:   1,
		Weights:         domain.InhibitorWeights{Furniture: -10, Fans: -10, ResidentialCFM: -5},
	}

	// 25 - 10 - 10 - 5 = 0
	assert.Equal(t, 0.5, ScoreConfidence(domain.ConfidenceLow, room))
}

func TestScoreConfidenceStaysInUnitInterval(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < 1000; i++ {
		room := domain.RoomContext{
			FurnitureCount:  rnd.NormFloat64() * 50,
			IndoorVentSpeed: rnd.NormFloat64() * 50,
			OccupantCount:   rnd.NormFloat64() * 50,
			Weights:         domain.DefaultInhibitorWeights(),
		}
		bucket := ConfidenceBucketFor(rnd.Intn(11))

		score := ScoreConfidence(bucket, room)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	}
}
