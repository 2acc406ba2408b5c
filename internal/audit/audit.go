package audit

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Event types for audit logging
const (
	EventTradeCompleted = "trade_completed"
	EventTradeFailed    = "trade_failed"
	EventMatchForfeit   = "match_forfeit"
	EventMatchAborted   = "match_aborted"
)

// Event is one audit record.
type Event struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	EventType string             `bson:"eventType"`
	UserID    string             `bson:"userId,omitempty"`
	SubjectID string             `bson:"subjectId,omitempty"` // match or exchange id
	Details   string             `bson:"details,omitempty"`
	CreatedAt time.Time          `bson:"createdAt"`
}

// Logger writes audit events. With no collection, events only go to the log.
// A nil *Logger discards everything.
type Logger struct {
	collection *mongo.Collection
	sink       func(Event)
}

func New(collection *mongo.Collection) *Logger {
	return &Logger{collection: collection}
}

// Record writes an audit event (fire-and-forget).
func (l *Logger) Record(eventType, userID, subjectID, details string) {
	if l == nil {
		return
	}
	event := Event{
		EventType: eventType,
		UserID:    userID,
		SubjectID: subjectID,
		Details:   details,
		CreatedAt: time.Now(),
	}
	if l.sink != nil {
		l.sink(event)
	}

	if l.collection == nil {
		log.Printf("[Audit] %s user=%s subject=%s %s", eventType, userID, subjectID, details)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := l.collection.InsertOne(ctx, event); err != nil {
			log.Printf("Audit log write failed: %v", err)
		}
	}()
}
