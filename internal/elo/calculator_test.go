package elo

import (
	"testing"
)

func TestComputeDeltaEqualRatings(t *testing.T) {
	c := NewCalculator()
	a, b := c.ComputeDelta(1000, 1000, AWins)
	if a != 16 || b != -16 {
		t.Fatalf("deltas = (%d, %d), want (16, -16)", a, b)
	}

	a, b = c.ComputeDelta(1000, 1000, Draw)
	if a != 0 || b != 0 {
		t.Fatalf("draw deltas = (%d, %d), want (0, 0)", a, b)
	}
}

func TestComputeDeltaZeroSum(t *testing.T) {
	c := NewCalculator()
	ratings := []int{-200, 0, 450, 999, 1000, 1001, 1337, 1600, 2400, 3100}
	for _, ra := range ratings {
		for _, rb := range ratings {
			for _, o := range []Outcome{AWins, BWins, Draw} {
				a, b := c.ComputeDelta(ra, rb, o)
				if sum := a + b; sum < -1 || sum > 1 {
					t.Fatalf("ComputeDelta(%d, %d, %s) = (%d, %d), sum %d not zero within rounding", ra, rb, o, a, b, sum)
				}
			}
		}
	}
}

func TestComputeDeltaFavoriteGainsLess(t *testing.T) {
	c := NewCalculator()
	favWin, _ := c.ComputeDelta(1400, 1000, AWins)
	upsetWin, _ := c.ComputeDelta(1000, 1400, AWins)
	if favWin >= upsetWin {
		t.Fatalf("favorite gained %d, underdog gained %d; want favorite < underdog", favWin, upsetWin)
	}
	if favWin <= 0 {
		t.Fatalf("winner delta = %d, want positive", favWin)
	}
}

func TestComputeDeltaNoClamping(t *testing.T) {
	c := NewCalculator()
	_, b := c.ComputeDelta(10, 5, AWins)
	if 5+b >= 0 {
		t.Fatalf("expected rating to go negative, got %d", 5+b)
	}
}

func TestOutcomeFor(t *testing.T) {
	a, b := "alice", "bob"
	if got := OutcomeFor(a, &a); got != AWins {
		t.Fatalf("OutcomeFor(a, a) = %s, want a_wins", got)
	}
	if got := OutcomeFor(a, &b); got != BWins {
		t.Fatalf("OutcomeFor(a, b) = %s, want b_wins", got)
	}
	if got := OutcomeFor(a, nil); got != Draw {
		t.Fatalf("OutcomeFor(a, nil) = %s, want draw", got)
	}
}
