package engine

import (
	"context"
	"errors"
	"log"
	"time"

	"card-arena/internal/duel"
	"card-arena/internal/errs"
	"card-arena/internal/exchange"
	"card-arena/internal/matchmaking"
	"card-arena/internal/protocol"
	"card-arena/internal/store"
)

const pairTimeout = 10 * time.Second

// Notifier delivers events to connected users.
type Notifier interface {
	Emit(userID, event string, payload interface{}) bool
	IsOnline(userID string) bool
}

// Client is the authenticated sender of an inbound frame.
type Client struct {
	UserID   string
	Username string
}

// Engine routes inbound frames to matchmaking, duels and exchanges, and
// cleans up after a user disconnects.
type Engine struct {
	store     store.Store
	notifier  Notifier
	queue     *matchmaking.Queue
	duels     *duel.Manager
	exchanges *exchange.Manager
}

// New wires the engine and installs it as the queue's pair handler.
func New(st store.Store, notifier Notifier, queue *matchmaking.Queue, duels *duel.Manager, exchanges *exchange.Manager) *Engine {
	e := &Engine{
		store:     st,
		notifier:  notifier,
		queue:     queue,
		duels:     duels,
		exchanges: exchanges,
	}
	queue.SetPairHandler(e.onPair)
	return e
}

// HandleEvent decodes and dispatches one frame. Failures are reported to
// the sender as error events; nothing is returned.
func (e *Engine) HandleEvent(ctx context.Context, c Client, raw []byte) {
	in, err := protocol.Decode(raw)
	if err != nil {
		e.notifier.Emit(c.UserID, protocol.Error, protocol.ErrorPayload{
			Message: err.Error(),
			Code:    string(errs.CodeValidation),
		})
		return
	}

	switch in.Event {
	case protocol.JoinMatchmaking:
		e.reportMatch(c, e.joinMatchmaking(ctx, c))
	case protocol.LeaveMatchmaking:
		e.queue.Dequeue(c.UserID)
		e.notifier.Emit(c.UserID, protocol.MatchmakingStatus, protocol.MatchmakingStatusPayload{InQueue: false})

	case protocol.SelectCard, protocol.SelectResponse:
		var choice protocol.CardChoice
		if err := in.DecodeData(&choice); err != nil {
			e.reportMatch(c, errs.Wrap(errs.CodeValidation, "malformed payload", err))
			return
		}
		if in.Event == protocol.SelectCard {
			err = e.duels.SubmitSelection(ctx, c.UserID, choice.CardID, choice.Skill)
		} else {
			err = e.duels.SubmitResponse(ctx, c.UserID, choice.CardID, choice.Skill)
		}
		e.reportMatch(c, err)

	case protocol.RequestExchange:
		var invite protocol.ExchangeInvite
		if err := in.DecodeData(&invite); err != nil {
			e.reportExchange(c, "", errs.Wrap(errs.CodeValidation, "malformed payload", err))
			return
		}
		username := invite.SolicitanteUsername
		if username == "" {
			username = c.Username
		}
		_, err := e.exchanges.Request(ctx, exchange.Participant{UserID: c.UserID, Username: username}, invite.ReceptorID)
		e.reportExchange(c, "", err)

	case protocol.SelectCards:
		var pick protocol.ExchangeCardPick
		if err := in.DecodeData(&pick); err != nil {
			e.reportExchange(c, "", errs.Wrap(errs.CodeValidation, "malformed payload", err))
			return
		}
		e.reportExchange(c, pick.ExchangeID, e.exchanges.SelectCard(ctx, c.UserID, pick.ExchangeID, pick.CardID))

	case protocol.AcceptExchange, protocol.RejectExchange, protocol.ConfirmExchange,
		protocol.CancelConfirmation, protocol.CancelExchange:
		var ref protocol.ExchangeRef
		if err := in.DecodeData(&ref); err != nil {
			e.reportExchange(c, "", errs.Wrap(errs.CodeValidation, "malformed payload", err))
			return
		}
		e.reportExchange(c, ref.ExchangeID, e.exchangeAction(ctx, c, in.Event, ref.ExchangeID))

	default:
		e.notifier.Emit(c.UserID, protocol.Error, protocol.ErrorPayload{
			Message: "unknown event: " + in.Event,
			Code:    string(errs.CodeValidation),
		})
	}
}

func (e *Engine) exchangeAction(ctx context.Context, c Client, event, exchangeID string) error {
	switch event {
	case protocol.AcceptExchange:
		return e.exchanges.Accept(ctx, exchange.Participant{UserID: c.UserID, Username: c.Username}, exchangeID)
	case protocol.RejectExchange:
		return e.exchanges.Reject(ctx, c.UserID, exchangeID)
	case protocol.ConfirmExchange:
		return e.exchanges.Confirm(ctx, c.UserID, exchangeID)
	case protocol.CancelConfirmation:
		return e.exchanges.CancelConfirmation(ctx, c.UserID, exchangeID)
	default:
		return e.exchanges.Cancel(ctx, c.UserID, exchangeID)
	}
}

func (e *Engine) joinMatchmaking(ctx context.Context, c Client) error {
	if e.duels.InMatch(c.UserID) {
		return errs.Conflict("already in a match")
	}
	loadout, err := e.store.ActiveLoadout(ctx, c.UserID)
	if err != nil {
		return errs.Infrastructure("failed to load loadout", err)
	}
	if len(loadout) == 0 {
		return errs.Validation("you have no active loadout")
	}
	rating, err := e.store.Rating(ctx, c.UserID)
	if err != nil {
		return errs.Infrastructure("failed to load rating", err)
	}
	e.queue.Enqueue(c.UserID, rating)
	e.notifier.Emit(c.UserID, protocol.MatchmakingStatus, protocol.MatchmakingStatusPayload{InQueue: true})
	return nil
}

// Disconnect releases everything the user held: queue slot, duel, exchange.
func (e *Engine) Disconnect(userID string) {
	if e.queue.Dequeue(userID) {
		log.Printf("Removed %s from matchmaking on disconnect", userID)
	}
	if e.duels.Forfeit(userID) {
		log.Printf("%s forfeited their match on disconnect", userID)
	}
	e.exchanges.LeaveAll(userID)
}

// onPair turns a matchmaking pair into a duel.
func (e *Engine) onPair(a, b matchmaking.QueuedPlayer) {
	// A player may have dropped between the tick and now; put the other back.
	for _, pair := range [][2]matchmaking.QueuedPlayer{{a, b}, {b, a}} {
		if !e.notifier.IsOnline(pair[0].UserID) {
			e.requeue(pair[1])
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), pairTimeout)
	defer cancel()
	if _, err := e.duels.Create(ctx, a.UserID, b.UserID); err != nil {
		e.pairFailed(a, b, err)
		return
	}

	// A disconnect that landed while the duel was being created found no
	// session to forfeit. The session is registered now, so settle it here.
	for _, p := range []matchmaking.QueuedPlayer{a, b} {
		if !e.notifier.IsOnline(p.UserID) && e.duels.Forfeit(p.UserID) {
			log.Printf("[Matchmaking] %s left while their match was starting; forfeited", p.UserID)
			return
		}
	}
}

// pairFailed reports a failed duel start. When one side lacks a loadout
// only that side is told; the other goes back in the queue with its wait.
func (e *Engine) pairFailed(a, b matchmaking.QueuedPlayer, err error) {
	log.Printf("[Matchmaking] Failed to start match %s vs %s: %v", a.UserID, b.UserID, err)

	var noLoadout *duel.NoLoadoutError
	if errors.As(err, &noLoadout) {
		for _, p := range []matchmaking.QueuedPlayer{a, b} {
			if p.UserID != noLoadout.UserID {
				e.requeue(p)
				continue
			}
			e.reportMatch(Client{UserID: p.UserID}, errs.Validation("you have no active loadout"))
			e.notifier.Emit(p.UserID, protocol.MatchmakingStatus, protocol.MatchmakingStatusPayload{InQueue: false})
		}
		return
	}

	for _, id := range []string{a.UserID, b.UserID} {
		e.reportMatch(Client{UserID: id}, err)
		e.notifier.Emit(id, protocol.MatchmakingStatus, protocol.MatchmakingStatusPayload{InQueue: false})
	}
}

func (e *Engine) requeue(p matchmaking.QueuedPlayer) {
	if e.notifier.IsOnline(p.UserID) && !e.duels.InMatch(p.UserID) {
		e.queue.Requeue(p)
	}
}

func (e *Engine) reportMatch(c Client, err error) {
	if err == nil {
		return
	}
	if errs.CodeOf(err) == errs.CodeInfrastructure || errs.CodeOf(err) == errs.CodeUnknown {
		log.Printf("Match request from %s failed: %v", c.UserID, err)
	}
	e.notifier.Emit(c.UserID, protocol.MatchError, protocol.ErrorPayload{
		Message: errs.Message(err),
		Code:    string(errs.CodeOf(err)),
	})
}

func (e *Engine) reportExchange(c Client, exchangeID string, err error) {
	if err == nil {
		return
	}
	if errs.CodeOf(err) == errs.CodeInfrastructure || errs.CodeOf(err) == errs.CodeUnknown {
		log.Printf("Exchange request from %s failed: %v", c.UserID, err)
	}
	e.notifier.Emit(c.UserID, protocol.ExchangeError, protocol.ExchangeErrorPayload{
		ExchangeID: exchangeID,
		Message:    errs.Message(err),
	})
}
