package models

import (
	"time"
)

// Player is the rating record the engine reads and settles.
type Player struct {
	ID        string    `json:"id" bson:"_id" gorm:"primaryKey;type:varchar(64)"`
	Username  string    `json:"username" bson:"username"`
	Rating    int       `json:"rating" bson:"rating" gorm:"not null;default:1000"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

func (Player) TableName() string { return "players" }

// Default values
const (
	DefaultRating = 1000
)
