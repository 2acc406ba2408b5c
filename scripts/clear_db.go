package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"card-arena/internal/config"
	"card-arena/internal/db"
	"card-arena/internal/models"
	"card-arena/internal/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Clears match history from the MongoDB store and optionally seeds
// cards, players, collections and loadouts from a fixtures file.
//
//	go run scripts/clear_db.go -seed configs/fixtures.dev.json
func main() {
	seed := flag.String("seed", "", "fixtures file to load after clearing")
	flag.Parse()

	cfg, err := config.Load(config.GetEnv())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	mongodb, err := db.NewMongoDB(cfg.MongoDB.URI, cfg.MongoDB.Database)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mongodb.Close(ctx)
	}()

	ctx := context.Background()

	for name, coll := range map[string]*mongo.Collection{
		"matches":   mongodb.Matches(),
		"rounds":    mongodb.Rounds(),
		"ws_events": mongodb.WSEvents(),
	} {
		res, err := coll.DeleteMany(ctx, bson.M{})
		if err != nil {
			log.Fatalf("Failed to delete %s: %v", name, err)
		}
		fmt.Printf("Deleted %d %s\n", res.DeletedCount, name)
	}

	if *seed != "" {
		if err := seedFixtures(ctx, mongodb, *seed); err != nil {
			log.Fatalf("Failed to seed: %v", err)
		}
		fmt.Printf("Seeded fixtures from %s\n", *seed)
	}

	fmt.Println("Database cleared successfully")
}

func seedFixtures(ctx context.Context, mongodb *db.MongoDB, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fx store.Fixtures
	if err := json.Unmarshal(data, &fx); err != nil {
		return err
	}

	upsert := options.Replace().SetUpsert(true)
	for _, c := range fx.Cards {
		if _, err := mongodb.Cards().ReplaceOne(ctx, bson.M{"_id": c.ID}, c, upsert); err != nil {
			return fmt.Errorf("card %s: %w", c.ID, err)
		}
	}
	for _, p := range fx.Players {
		player := models.Player{ID: p.ID, Username: p.ID, Rating: p.Rating, UpdatedAt: time.Now()}
		if _, err := mongodb.Players().ReplaceOne(ctx, bson.M{"_id": p.ID}, player, upsert); err != nil {
			return fmt.Errorf("player %s: %w", p.ID, err)
		}
	}
	for _, e := range fx.Collections {
		filter := bson.M{"userId": e.UserID, "cardId": e.CardID}
		if _, err := mongodb.UserCards().ReplaceOne(ctx, filter, e, upsert); err != nil {
			return fmt.Errorf("collection %s/%s: %w", e.UserID, e.CardID, err)
		}
	}
	for userID, cardIDs := range fx.Loadouts {
		if _, err := mongodb.LoadoutSlots().DeleteMany(ctx, bson.M{"userId": userID}); err != nil {
			return err
		}
		for i, cardID := range cardIDs {
			slot := models.LoadoutSlot{UserID: userID, Slot: i, CardID: cardID}
			if _, err := mongodb.LoadoutSlots().InsertOne(ctx, slot); err != nil {
				return fmt.Errorf("loadout %s: %w", userID, err)
			}
		}
	}
	return nil
}
