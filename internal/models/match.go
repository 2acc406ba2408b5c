package models

import (
	"time"
)

type MatchStatus string

const (
	MatchStatusActive   MatchStatus = "active"   // Rounds in progress
	MatchStatusFinished MatchStatus = "finished" // Winner or draw settled
	MatchStatusAborted  MatchStatus = "aborted"  // Orphaned by a restart
)

// End reasons
const (
	EndReasonScore   = "score"   // a player reached the winning score
	EndReasonRounds  = "rounds"  // round limit reached
	EndReasonForfeit = "forfeit" // a player disconnected
	EndReasonAborted = "aborted" // orphaned, closed by cleanup
)

// Match is the persisted record of a duel.
type Match struct {
	ID            string      `json:"id" bson:"_id" gorm:"primaryKey;type:varchar(64)"`
	Player1ID     string      `json:"player1Id" bson:"player1Id" gorm:"index;not null"`
	Player2ID     string      `json:"player2Id" bson:"player2Id" gorm:"index;not null"`
	Player1Rating int         `json:"player1Rating" bson:"player1Rating"` // rating at match start
	Player2Rating int         `json:"player2Rating" bson:"player2Rating"`
	Player1Score  int         `json:"player1Score" bson:"player1Score"`
	Player2Score  int         `json:"player2Score" bson:"player2Score"`
	WinnerID      *string     `json:"winnerId,omitempty" bson:"winnerId,omitempty"` // nil for a draw
	EndReason     string      `json:"endReason,omitempty" bson:"endReason,omitempty"`
	Status        MatchStatus `json:"status" bson:"status" gorm:"index;type:varchar(16)"`
	StartedAt     time.Time   `json:"startedAt" bson:"startedAt"`
	FinishedAt    *time.Time  `json:"finishedAt,omitempty" bson:"finishedAt,omitempty"`
}

// MatchResult is written once when a duel ends.
type MatchResult struct {
	MatchID    string
	Scores     map[string]int
	WinnerID   *string
	EndReason  string
	FinishedAt time.Time
	// RatingDeltas are applied in the same write that closes the match.
	RatingDeltas map[string]int
}

// Round is one resolved selection/response exchange. Immutable once written.
type Round struct {
	ID          string    `json:"id" bson:"_id" gorm:"primaryKey;type:varchar(64)"`
	MatchID     string    `json:"matchId" bson:"matchId" gorm:"uniqueIndex:idx_match_round;not null"`
	RoundNumber int       `json:"roundNumber" bson:"roundNumber" gorm:"uniqueIndex:idx_match_round"`
	Card1ID     string    `json:"card1Id,omitempty" bson:"card1Id,omitempty"` // player1; empty on timeout
	Skill1      Skill     `json:"skill1,omitempty" bson:"skill1,omitempty"`
	Card2ID     string    `json:"card2Id,omitempty" bson:"card2Id,omitempty"`
	Skill2      Skill     `json:"skill2,omitempty" bson:"skill2,omitempty"`
	WinnerID    *string   `json:"winnerId,omitempty" bson:"winnerId,omitempty"` // nil for a draw
	TimedOut    bool      `json:"timedOut,omitempty" bson:"timedOut,omitempty"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
}
