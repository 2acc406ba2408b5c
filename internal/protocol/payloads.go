package protocol

import (
	"card-arena/internal/models"
)

// Duel requests

// CardChoice is the payload of select_card and select_response.
type CardChoice struct {
	CardID string `json:"cardId"`
	Skill  string `json:"skill"`
}

// Exchange requests

type ExchangeInvite struct {
	ReceptorID          string `json:"receptorId"`
	SolicitanteUsername string `json:"solicitanteUsername"`
}

// ExchangeRef carries just the exchange id (accept, reject, confirm, cancel).
type ExchangeRef struct {
	ExchangeID string `json:"exchangeId"`
}

type ExchangeCardPick struct {
	ExchangeID string `json:"exchangeId"`
	CardID     string `json:"cardId"`
}

// Duel events

type MatchmakingStatusPayload struct {
	InQueue bool `json:"inQueue"`
}

type MatchFoundPayload struct {
	MatchID         string         `json:"matchId"`
	RoomID          string         `json:"roomId"`
	OpponentID      string         `json:"opponentId"`
	OpponentRatings map[string]int `json:"opponentRatings"`
}

type RoundStartPayload struct {
	MatchID     string `json:"matchId"`
	RoundNumber int    `json:"roundNumber"`
	StarterID   string `json:"starterId"`
	Phase       string `json:"phase"`
	Timer       int    `json:"timer"` // seconds
}

type OpponentSelectionPayload struct {
	MatchID     string      `json:"matchId"`
	RoundNumber int         `json:"roundNumber"`
	Skill       string      `json:"skill"`
	Card        models.Card `json:"card"`
	Timer       int         `json:"timer"`
}

// Play is one side's move in a resolved round.
type Play struct {
	CardID string `json:"cardId,omitempty"`
	Skill  string `json:"skill,omitempty"`
	Value  int    `json:"value"`
}

type RoundDetails struct {
	Plays    map[string]Play `json:"plays"`
	TimedOut string          `json:"timedOut,omitempty"` // user who let the window expire
}

type RoundResultPayload struct {
	MatchID     string         `json:"matchId"`
	RoundNumber int            `json:"roundNumber"`
	WinnerID    *string        `json:"winnerId"`
	Draw        bool           `json:"draw"`
	Scores      map[string]int `json:"scores"`
	Details     RoundDetails   `json:"details"`
}

type MatchEndedPayload struct {
	MatchID      string         `json:"matchId"`
	WinnerID     *string        `json:"winnerId"`
	IsDraw       bool           `json:"isDraw"`
	Reason       string         `json:"reason"`
	Scores       map[string]int `json:"scores"`
	RatingDeltas map[string]int `json:"ratingDeltas"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Exchange events

type ExchangeReceivedPayload struct {
	ExchangeID          string `json:"exchangeId"`
	SolicitanteID       string `json:"solicitanteId"`
	SolicitanteUsername string `json:"solicitanteUsername"`
	Timestamp           int64  `json:"timestamp"` // unix millis
}

type ExchangeAcceptedPayload struct {
	ExchangeID string            `json:"exchangeId"`
	RoomID     string            `json:"roomId"`
	Usernames  map[string]string `json:"usernames"`
}

type CardsSelectedPayload struct {
	ExchangeID string      `json:"exchangeId"`
	UserID     string      `json:"userId"`
	Card       models.Card `json:"card"`
}

type ConfirmationUpdatedPayload struct {
	ExchangeID    string          `json:"exchangeId"`
	Confirmations map[string]bool `json:"confirmations"`
}

type ExchangeCompletedPayload struct {
	ExchangeID string `json:"exchangeId"`
	User1ID    string `json:"user1Id"`
	User1Card  string `json:"user1Card"` // card user1 gave away
	User2ID    string `json:"user2Id"`
	User2Card  string `json:"user2Card"`
}

type ExchangeCancelledPayload struct {
	ExchangeID  string `json:"exchangeId"`
	CancelledBy string `json:"cancelledBy,omitempty"`
	Reason      string `json:"reason"`
}

type ExchangeErrorPayload struct {
	ExchangeID string `json:"exchangeId,omitempty"`
	Message    string `json:"message"`
}

// Generic notifications

type NotificationData struct {
	RequestID string `json:"requestId,omitempty"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type NotificationPayload struct {
	Message string           `json:"message"`
	Data    NotificationData `json:"data"`
}
