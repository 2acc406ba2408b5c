package db

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
}

func NewMongoDB(uri, database string) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(200).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(5 * time.Minute)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := &MongoDB{
		Client:   client,
		Database: client.Database(database),
	}

	// Create indexes in the background (non-blocking)
	go db.ensureIndexes()

	return db, nil
}

// ensureIndexes creates all required indexes. Called once on startup.
func (m *MongoDB) ensureIndexes() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	indexes := []struct {
		collection string
		models     []mongo.IndexModel
	}{
		{
			"user_cards",
			[]mongo.IndexModel{
				{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "cardId", Value: 1}}, Options: options.Index().SetUnique(true)},
			},
		},
		{
			"loadout_slots",
			[]mongo.IndexModel{
				{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "slot", Value: 1}}, Options: options.Index().SetUnique(true)},
			},
		},
		{
			"matches",
			[]mongo.IndexModel{
				{Keys: bson.D{{Key: "status", Value: 1}, {Key: "startedAt", Value: 1}}},
				{Keys: bson.D{{Key: "player1Id", Value: 1}, {Key: "startedAt", Value: -1}}},
				{Keys: bson.D{{Key: "player2Id", Value: 1}, {Key: "startedAt", Value: -1}}},
			},
		},
		{
			"rounds",
			[]mongo.IndexModel{
				{Keys: bson.D{{Key: "matchId", Value: 1}, {Key: "roundNumber", Value: 1}}, Options: options.Index().SetUnique(true)},
			},
		},
		{
			"players",
			[]mongo.IndexModel{
				{Keys: bson.D{{Key: "rating", Value: -1}}},
			},
		},
		{
			"ws_events",
			[]mongo.IndexModel{
				{Keys: bson.D{{Key: "createdAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(60)},
			},
		},
		{
			"audit_log",
			[]mongo.IndexModel{
				{Keys: bson.D{{Key: "createdAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(90 * 24 * 3600)}, // 90-day retention
				{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
			},
		},
	}

	for _, idx := range indexes {
		coll := m.Database.Collection(idx.collection)
		_, err := coll.Indexes().CreateMany(ctx, idx.models)
		if err != nil {
			log.Printf("Warning: failed to create indexes on %s: %v", idx.collection, err)
		}
	}

	log.Println("Database indexes ensured")
}

func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

func (m *MongoDB) Players() *mongo.Collection {
	return m.Database.Collection("players")
}

func (m *MongoDB) Cards() *mongo.Collection {
	return m.Database.Collection("cards")
}

func (m *MongoDB) UserCards() *mongo.Collection {
	return m.Database.Collection("user_cards")
}

func (m *MongoDB) LoadoutSlots() *mongo.Collection {
	return m.Database.Collection("loadout_slots")
}

func (m *MongoDB) Matches() *mongo.Collection {
	return m.Database.Collection("matches")
}

func (m *MongoDB) Rounds() *mongo.Collection {
	return m.Database.Collection("rounds")
}

func (m *MongoDB) WSEvents() *mongo.Collection {
	return m.Database.Collection("ws_events")
}

func (m *MongoDB) AuditLog() *mongo.Collection {
	return m.Database.Collection("audit_log")
}
