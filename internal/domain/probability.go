package domain

import "time"

// ModelProbability is the blended win-probability estimate for a game.
// HomeProb and AwayProb always sum to 1.
type ModelProbability struct {
	GameID     string
	HomeProb   float64
	AwayProb   float64
	Confidence float64 // 0-100
	ComputedAt time.Time
}

// GenerationParams are the knobs a pick-generation request runs with.
// The safety gate may adjust them before generation proceeds.
type GenerationParams struct {
	MaxLegs       int
	MinConfidence float64
}
