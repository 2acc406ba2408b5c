// Package protocol defines the event names and payloads exchanged over the
// persistent connection. Every frame is {"event": name, "data": payload}.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Client to server
const (
	JoinMatchmaking  = "join_matchmaking"
	LeaveMatchmaking = "leave_matchmaking"
	SelectCard       = "select_card"
	SelectResponse   = "select_response"

	RequestExchange    = "request_exchange"
	AcceptExchange     = "accept_exchange"
	RejectExchange     = "reject_exchange"
	SelectCards        = "select_cards"
	ConfirmExchange    = "confirm_exchange"
	CancelConfirmation = "cancel_confirmation"
	CancelExchange     = "cancel_exchange"
)

// Server to client
const (
	MatchmakingStatus = "matchmaking_status"
	MatchFound        = "match_found"
	RoundStart        = "round_start"
	OpponentSelection = "opponent_selection"
	RoundResult       = "round_result"
	MatchEnded        = "match_ended"
	MatchError        = "match_error"

	RequestExchangeReceived = "request_exchange_received"
	ExchangeAccepted        = "exchange_accepted"
	ExchangeRejected        = "exchange_rejected"
	CardsSelected           = "cards_selected"
	ConfirmationUpdated     = "confirmation_updated"
	ExchangeCompleted       = "exchange_completed"
	ExchangeCancelled       = "exchange_cancelled"
	ExchangeError           = "exchange_error"

	Notification = "notification"
	Error        = "error"
)

// Inbound is a frame received from a client. Data is decoded once the
// event name has picked the payload type.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound is a frame sent to a client.
type Outbound struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// Encode marshals an outbound frame.
func Encode(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(Outbound{Event: event, Data: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return data, nil
}

// Decode parses the envelope of an inbound frame.
func Decode(raw []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return Inbound{}, fmt.Errorf("malformed frame: %w", err)
	}
	if in.Event == "" {
		return Inbound{}, fmt.Errorf("malformed frame: missing event")
	}
	return in, nil
}

// DecodeData unmarshals the frame payload into v. A missing payload is an error.
func (in Inbound) DecodeData(v interface{}) error {
	if len(in.Data) == 0 || string(in.Data) == "null" {
		return fmt.Errorf("%s: missing payload", in.Event)
	}
	if err := json.Unmarshal(in.Data, v); err != nil {
		return fmt.Errorf("%s: malformed payload: %w", in.Event, err)
	}
	return nil
}
