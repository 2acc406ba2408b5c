package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"card-arena/internal/db"
	"card-arena/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store on MongoDB. SwapCards needs a replica set
// because it runs inside a multi-document transaction.
type MongoStore struct {
	db *db.MongoDB
}

func NewMongoStore(database *db.MongoDB) *MongoStore {
	return &MongoStore{db: database}
}

func (s *MongoStore) ActiveLoadout(ctx context.Context, userID string) ([]models.Card, error) {
	cursor, err := s.db.LoadoutSlots().Find(ctx, bson.M{"userId": userID},
		options.Find().SetSort(bson.M{"slot": 1}))
	if err != nil {
		return nil, fmt.Errorf("find loadout: %w", err)
	}
	var slots []models.LoadoutSlot
	if err := cursor.All(ctx, &slots); err != nil {
		return nil, fmt.Errorf("decode loadout: %w", err)
	}
	if len(slots) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(slots))
	for _, slot := range slots {
		ids = append(ids, slot.CardID)
	}
	cursor, err = s.db.Cards().Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("find loadout cards: %w", err)
	}
	var found []models.Card
	if err := cursor.All(ctx, &found); err != nil {
		return nil, fmt.Errorf("decode loadout cards: %w", err)
	}

	byID := make(map[string]models.Card, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}
	cards := make([]models.Card, 0, len(slots))
	for _, slot := range slots {
		if c, ok := byID[slot.CardID]; ok {
			cards = append(cards, c)
		}
	}
	return cards, nil
}

func (s *MongoStore) Card(ctx context.Context, cardID string) (*models.Card, error) {
	var card models.Card
	err := s.db.Cards().FindOne(ctx, bson.M{"_id": cardID}).Decode(&card)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find card %s: %w", cardID, err)
	}
	return &card, nil
}

func (s *MongoStore) Rating(ctx context.Context, userID string) (int, error) {
	var player models.Player
	err := s.db.Players().FindOneAndUpdate(ctx,
		bson.M{"_id": userID},
		bson.M{"$setOnInsert": bson.M{"rating": models.DefaultRating, "updatedAt": time.Now()}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&player)
	if err != nil {
		return 0, fmt.Errorf("load rating for %s: %w", userID, err)
	}
	return player.Rating, nil
}

func (s *MongoStore) AdjustRating(ctx context.Context, userID string, delta int) (int, error) {
	var player models.Player
	err := s.db.Players().FindOneAndUpdate(ctx,
		bson.M{"_id": userID},
		bson.M{
			"$inc": bson.M{"rating": delta},
			"$set": bson.M{"updatedAt": time.Now()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&player)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("adjust rating for %s: %w", userID, err)
	}
	return player.Rating, nil
}

func (s *MongoStore) CreateMatch(ctx context.Context, match *models.Match) error {
	if _, err := s.db.Matches().InsertOne(ctx, match); err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	return nil
}

func (s *MongoStore) InsertRound(ctx context.Context, round *models.Round) error {
	if _, err := s.db.Rounds().InsertOne(ctx, round); err != nil {
		return fmt.Errorf("insert round: %w", err)
	}
	return nil
}

func (s *MongoStore) FinishMatch(ctx context.Context, result models.MatchResult) error {
	session, err := s.db.Client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, s.finishMatch(sc, result)
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, ErrMatchClosed) {
		return ErrMatchClosed
	}
	if err != nil {
		return fmt.Errorf("finish match transaction: %w", err)
	}
	return nil
}

func (s *MongoStore) finishMatch(sc mongo.SessionContext, result models.MatchResult) error {
	var match models.Match
	if err := s.db.Matches().FindOne(sc, bson.M{"_id": result.MatchID}).Decode(&match); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return fmt.Errorf("find match: %w", err)
	}
	if match.Status != models.MatchStatusActive {
		return ErrMatchClosed
	}

	set := bson.M{
		"player1Score": result.Scores[match.Player1ID],
		"player2Score": result.Scores[match.Player2ID],
		"endReason":    result.EndReason,
		"status":       models.MatchStatusFinished,
		"finishedAt":   result.FinishedAt,
	}
	if result.WinnerID != nil {
		set["winnerId"] = *result.WinnerID
	}
	if _, err := s.db.Matches().UpdateOne(sc, bson.M{"_id": result.MatchID}, bson.M{"$set": set}); err != nil {
		return fmt.Errorf("finish match: %w", err)
	}

	for userID, delta := range result.RatingDeltas {
		res, err := s.db.Players().UpdateOne(sc,
			bson.M{"_id": userID},
			bson.M{
				"$inc": bson.M{"rating": delta},
				"$set": bson.M{"updatedAt": time.Now()},
			},
		)
		if err != nil {
			return fmt.Errorf("adjust rating for %s: %w", userID, err)
		}
		if res.MatchedCount == 0 {
			return ErrNotFound
		}
	}
	return nil
}

func (s *MongoStore) AbortStaleMatches(ctx context.Context, startedBefore time.Time) (int64, error) {
	res, err := s.db.Matches().UpdateMany(ctx, bson.M{
		"status":    models.MatchStatusActive,
		"startedAt": bson.M{"$lt": startedBefore},
	}, bson.M{
		"$set": bson.M{"status": models.MatchStatusAborted, "endReason": models.EndReasonAborted},
	})
	if err != nil {
		return 0, fmt.Errorf("abort stale matches: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) CardQuantity(ctx context.Context, userID, cardID string) (int, error) {
	var entry models.CollectionEntry
	err := s.db.UserCards().FindOne(ctx, bson.M{"userId": userID, "cardId": cardID}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("find collection entry: %w", err)
	}
	return entry.Quantity, nil
}

func (s *MongoStore) SwapCards(ctx context.Context, a, b models.Offer) error {
	session, err := s.db.Client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	first, second := lockOrder(a, b)
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		for _, offer := range []models.Offer{first, second} {
			if err := s.takeOne(sc, offer); err != nil {
				return nil, err
			}
		}
		if err := s.giveOne(sc, a.UserID, b.CardID); err != nil {
			return nil, err
		}
		if err := s.giveOne(sc, b.UserID, a.CardID); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if errors.Is(err, ErrInsufficientCards) {
		return ErrInsufficientCards
	}
	if err != nil {
		return fmt.Errorf("swap transaction: %w", err)
	}
	return nil
}

// takeOne decrements the offered card, deleting the row instead of leaving it at zero.
func (s *MongoStore) takeOne(sc mongo.SessionContext, offer models.Offer) error {
	res, err := s.db.UserCards().UpdateOne(sc,
		bson.M{"userId": offer.UserID, "cardId": offer.CardID, "quantity": bson.M{"$gte": 1}},
		bson.M{"$inc": bson.M{"quantity": -1}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrInsufficientCards
	}
	_, err = s.db.UserCards().DeleteOne(sc, bson.M{
		"userId":   offer.UserID,
		"cardId":   offer.CardID,
		"quantity": bson.M{"$lte": 0},
	})
	return err
}

func (s *MongoStore) giveOne(sc mongo.SessionContext, userID, cardID string) error {
	_, err := s.db.UserCards().UpdateOne(sc,
		bson.M{"userId": userID, "cardId": cardID},
		bson.M{"$inc": bson.M{"quantity": 1}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.db.Close(ctx)
}
