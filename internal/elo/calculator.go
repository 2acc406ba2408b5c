package elo

import (
	"math"
)

// Outcome is the result of a match from player A's point of view.
type Outcome int

const (
	AWins Outcome = iota
	BWins
	Draw
)

func (o Outcome) String() string {
	switch o {
	case AWins:
		return "a_wins"
	case BWins:
		return "b_wins"
	default:
		return "draw"
	}
}

const (
	// KFactor is applied to every player regardless of games played
	KFactor = 32
)

type Calculator struct {
	k float64
}

func NewCalculator() *Calculator {
	return &Calculator{k: KFactor}
}

// ComputeDelta returns the rating changes for A and B.
// Each side is rounded independently, so the sum is zero within rounding.
// Ratings are not clamped and may go negative.
func (c *Calculator) ComputeDelta(ratingA, ratingB int, outcome Outcome) (int, int) {
	expectedA := c.expectedScore(ratingA, ratingB)
	expectedB := 1.0 - expectedA

	scoreA := actualScore(outcome)
	scoreB := 1.0 - scoreA

	// ΔR = K × (S - E)
	deltaA := int(math.Round(c.k * (scoreA - expectedA)))
	deltaB := int(math.Round(c.k * (scoreB - expectedB)))
	return deltaA, deltaB
}

// expectedScore calculates the expected score using the Elo formula
// E = 1 / (1 + 10^((OpponentRating - PlayerRating) / 400))
func (c *Calculator) expectedScore(playerRating, opponentRating int) float64 {
	exponent := float64(opponentRating-playerRating) / 400.0
	return 1.0 / (1.0 + math.Pow(10, exponent))
}

func actualScore(o Outcome) float64 {
	switch o {
	case AWins:
		return 1.0
	case BWins:
		return 0.0
	default:
		return 0.5
	}
}

// OutcomeFor maps a winner id (nil for a draw) onto the A/B outcome.
func OutcomeFor(playerA string, winnerID *string) Outcome {
	switch {
	case winnerID == nil:
		return Draw
	case *winnerID == playerA:
		return AWins
	default:
		return BWins
	}
}
