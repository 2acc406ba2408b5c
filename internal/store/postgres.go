package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"card-arena/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostgresStore implements Store on a relational database through gorm.
type PostgresStore struct {
	DB *gorm.DB
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{DB: db}
}

func (s *PostgresStore) ActiveLoadout(ctx context.Context, userID string) ([]models.Card, error) {
	var cards []models.Card
	err := s.DB.WithContext(ctx).
		Table("cards").
		Select("cards.*").
		Joins("JOIN loadout_slots ON loadout_slots.card_id = cards.id").
		Where("loadout_slots.user_id = ?", userID).
		Order("loadout_slots.slot ASC").
		Find(&cards).Error
	if err != nil {
		return nil, fmt.Errorf("load loadout: %w", err)
	}
	return cards, nil
}

func (s *PostgresStore) Card(ctx context.Context, cardID string) (*models.Card, error) {
	var card models.Card
	err := s.DB.WithContext(ctx).First(&card, "id = ?", cardID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find card %s: %w", cardID, err)
	}
	return &card, nil
}

func (s *PostgresStore) Rating(ctx context.Context, userID string) (int, error) {
	player := models.Player{ID: userID, Rating: models.DefaultRating, UpdatedAt: time.Now()}
	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&player).Error
	if err != nil {
		return 0, fmt.Errorf("ensure player %s: %w", userID, err)
	}
	if err := s.DB.WithContext(ctx).First(&player, "id = ?", userID).Error; err != nil {
		return 0, fmt.Errorf("load rating for %s: %w", userID, err)
	}
	return player.Rating, nil
}

func (s *PostgresStore) AdjustRating(ctx context.Context, userID string, delta int) (int, error) {
	var player models.Player
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Player{}).
			Where("id = ?", userID).
			Updates(map[string]interface{}{
				"rating":     gorm.Expr("rating + ?", delta),
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.First(&player, "id = ?", userID).Error
	})
	if errors.Is(err, ErrNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("adjust rating for %s: %w", userID, err)
	}
	return player.Rating, nil
}

func (s *PostgresStore) CreateMatch(ctx context.Context, match *models.Match) error {
	if err := s.DB.WithContext(ctx).Create(match).Error; err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertRound(ctx context.Context, round *models.Round) error {
	if err := s.DB.WithContext(ctx).Create(round).Error; err != nil {
		return fmt.Errorf("insert round: %w", err)
	}
	return nil
}

func (s *PostgresStore) FinishMatch(ctx context.Context, result models.MatchResult) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var match models.Match
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&match, "id = ?", result.MatchID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("find match: %w", err)
		}
		if match.Status != models.MatchStatusActive {
			return ErrMatchClosed
		}
		if err := tx.Model(&match).Updates(map[string]interface{}{
			"player1_score": result.Scores[match.Player1ID],
			"player2_score": result.Scores[match.Player2ID],
			"winner_id":     result.WinnerID,
			"end_reason":    result.EndReason,
			"status":        models.MatchStatusFinished,
			"finished_at":   result.FinishedAt,
		}).Error; err != nil {
			return fmt.Errorf("update match: %w", err)
		}

		for userID, delta := range result.RatingDeltas {
			res := tx.Model(&models.Player{}).
				Where("id = ?", userID).
				Updates(map[string]interface{}{
					"rating":     gorm.Expr("rating + ?", delta),
					"updated_at": time.Now(),
				})
			if res.Error != nil {
				return fmt.Errorf("adjust rating for %s: %w", userID, res.Error)
			}
			if res.RowsAffected == 0 {
				return ErrNotFound
			}
		}
		return nil
	})
}

func (s *PostgresStore) AbortStaleMatches(ctx context.Context, startedBefore time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&models.Match{}).
		Where("status = ? AND started_at < ?", models.MatchStatusActive, startedBefore).
		Updates(map[string]interface{}{
			"status":     models.MatchStatusAborted,
			"end_reason": models.EndReasonAborted,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("abort stale matches: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *PostgresStore) CardQuantity(ctx context.Context, userID, cardID string) (int, error) {
	var entry models.CollectionEntry
	err := s.DB.WithContext(ctx).
		First(&entry, "user_id = ? AND card_id = ?", userID, cardID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("find collection entry: %w", err)
	}
	return entry.Quantity, nil
}

func (s *PostgresStore) SwapCards(ctx context.Context, a, b models.Offer) error {
	first, second := lockOrder(a, b)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, offer := range []models.Offer{first, second} {
			if err := takeOne(tx, offer); err != nil {
				return err
			}
		}
		if err := giveOne(tx, a.UserID, b.CardID); err != nil {
			return err
		}
		return giveOne(tx, b.UserID, a.CardID)
	})
	if errors.Is(err, ErrInsufficientCards) {
		return ErrInsufficientCards
	}
	if err != nil {
		return fmt.Errorf("swap transaction: %w", err)
	}
	return nil
}

// takeOne locks the offered row, then decrements it or deletes it at the last copy.
func takeOne(tx *gorm.DB, offer models.Offer) error {
	var entry models.CollectionEntry
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&entry, "user_id = ? AND card_id = ?", offer.UserID, offer.CardID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrInsufficientCards
	}
	if err != nil {
		return err
	}
	if entry.Quantity < 1 {
		return ErrInsufficientCards
	}

	if entry.Quantity == 1 {
		return tx.Where("user_id = ? AND card_id = ?", offer.UserID, offer.CardID).
			Delete(&models.CollectionEntry{}).Error
	}
	return tx.Model(&models.CollectionEntry{}).
		Where("user_id = ? AND card_id = ?", offer.UserID, offer.CardID).
		Update("quantity", gorm.Expr("quantity - 1")).Error
}

func giveOne(tx *gorm.DB, userID, cardID string) error {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "card_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"quantity": gorm.Expr("user_cards.quantity + 1"),
		}),
	}).Create(&models.CollectionEntry{UserID: userID, CardID: cardID, Quantity: 1}).Error
}

func (s *PostgresStore) Close(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
