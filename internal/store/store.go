package store

import (
	"context"
	"errors"
	"time"

	"card-arena/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrInsufficientCards means an offered card was no longer held at commit time.
	ErrInsufficientCards = errors.New("insufficient cards")
	// ErrMatchClosed means the match was already finished or aborted.
	ErrMatchClosed = errors.New("match already closed")
)

// Store is the persistent store the session engine consults.
// Implementations must make SwapCards all-or-nothing.
type Store interface {
	// ActiveLoadout returns the user's active cards in slot order.
	ActiveLoadout(ctx context.Context, userID string) ([]models.Card, error)
	// Card fetches a card's stat row.
	Card(ctx context.Context, cardID string) (*models.Card, error)

	// Rating returns the user's current rating, creating the default record if absent.
	Rating(ctx context.Context, userID string) (int, error)
	// AdjustRating adds delta to the user's rating and returns the new value.
	AdjustRating(ctx context.Context, userID string, delta int) (int, error)

	CreateMatch(ctx context.Context, match *models.Match) error
	InsertRound(ctx context.Context, round *models.Round) error
	// FinishMatch closes an active match and applies result.RatingDeltas
	// atomically: either the match and every rating change, or nothing.
	FinishMatch(ctx context.Context, result models.MatchResult) error
	// AbortStaleMatches marks matches still active and started before the cutoff as aborted.
	AbortStaleMatches(ctx context.Context, startedBefore time.Time) (int64, error)

	// CardQuantity returns how many copies of a card the user holds (0 if none).
	CardQuantity(ctx context.Context, userID, cardID string) (int, error)
	// SwapCards moves one copy of a.CardID to b.UserID and one copy of b.CardID to a.UserID.
	// It returns ErrInsufficientCards and changes nothing if either side lacks its card.
	SwapCards(ctx context.Context, a, b models.Offer) error

	Close(ctx context.Context) error
}

// lockOrder returns the offers sorted so row locks are always taken in the same order.
func lockOrder(a, b models.Offer) (models.Offer, models.Offer) {
	if b.UserID < a.UserID || (b.UserID == a.UserID && b.CardID < a.CardID) {
		return b, a
	}
	return a, b
}
