package core

import (
	"math"

	"airflow-service/app/src/domain"
	"airflow-service/app/src/infra/utils"
)

const (
	baseConfidenceScore   = 50
	bucketScoreAdjustment = 25
)

// ConfidenceBucketFor classifies a window by its sample count.
func ConfidenceBucketFor(samples int) domain.ConfidenceBucket {
	if samples >= HighConfidenceSamples {
		return domain.ConfidenceHigh
	}
	return domain.ConfidenceLow
}

// ScoreConfidence is a heuristic, not a physical quantity: a bucket-adjusted base
// plus the weighted inhibitor factors of the room, squashed by a logistic sigmoid
// and rounded to two decimals. Realistic rooms saturate near 1.
func ScoreConfidence(bucket domain.ConfidenceBucket, room domain.RoomContext) float64 {
	raw := float64(baseConfidenceScore)
	if bucket == domain.ConfidenceHigh {
		raw += bucketScoreAdjustment
	} else {
		raw -= bucketScoreAdjustment
	}

	w := room.Weights
	raw += room.FurnitureCount*w.Furniture + room.IndoorVentSpeed*w.Fans + room.OccupantCount*w.ResidentialCFM

	return utils.Round(sigmoid(raw), 2)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
