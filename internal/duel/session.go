package duel

import (
	"context"
	"log"
	"time"

	"card-arena/internal/errs"
	"card-arena/internal/models"
	"card-arena/internal/protocol"
	"card-arena/internal/services"

	"github.com/google/uuid"
)

// Round phases
const (
	PhaseSelection = "selection"
	PhaseResponse  = "response"
)

// ErrMatchOver is returned for commands that reach a session after it ended.
var ErrMatchOver = errs.Conflict("match is over")

type commandKind int

const (
	cmdSelect commandKind = iota
	cmdRespond
	cmdTimeout
	cmdForfeit
	cmdShutdown
)

type command struct {
	kind   commandKind
	userID string
	cardID string
	skill  string
	round  int    // cmdTimeout only
	phase  string // cmdTimeout only
	reply  chan error
}

type playerState struct {
	userID  string
	rating  int // at match start
	score   int
	loadout map[string]models.Card
}

func newPlayerState(userID string, rating int, cards []models.Card) *playerState {
	loadout := make(map[string]models.Card, len(cards))
	for _, c := range cards {
		loadout[c.ID] = c
	}
	return &playerState{userID: userID, rating: rating, loadout: loadout}
}

type play struct {
	card  models.Card
	skill models.Skill
}

type roundState struct {
	number    int
	phase     string
	starterID string
	plays     map[string]play
}

// Session is one duel. Its state is owned by the goroutine started in
// run; everything else talks to it through the inbox.
type Session struct {
	MatchID   string
	RoomID    string
	StartedAt time.Time

	manager *Manager
	players [2]*playerState
	round   roundState
	ended   bool

	inbox chan command
	done  chan struct{}
}

func newSession(m *Manager, match *models.Match, p1, p2 *playerState) *Session {
	return &Session{
		MatchID:   match.ID,
		RoomID:    "match_" + match.ID,
		StartedAt: match.StartedAt,
		manager:   m,
		players:   [2]*playerState{p1, p2},
		inbox:     make(chan command),
		done:      make(chan struct{}),
	}
}

// Done is closed once the session has been destroyed and unregistered.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// PlayerIDs returns both participants, the first paired player first.
func (s *Session) PlayerIDs() [2]string {
	return [2]string{s.players[0].userID, s.players[1].userID}
}

func (s *Session) run() {
	for cmd := range s.inbox {
		err := s.handle(cmd)
		if cmd.reply != nil {
			cmd.reply <- err
		}
		if s.ended {
			s.manager.remove(s)
			close(s.done)
			return
		}
	}
}

// do hands a command to the session goroutine and waits for its result.
func (s *Session) do(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case s.inbox <- cmd:
	case <-s.done:
		return ErrMatchOver
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-s.done:
		// The reply is written before done closes.
		select {
		case err := <-cmd.reply:
			return err
		default:
			return ErrMatchOver
		}
	}
}

// post delivers a command without waiting for a reply.
func (s *Session) post(cmd command) {
	select {
	case s.inbox <- cmd:
	case <-s.done:
	}
}

func (s *Session) handle(cmd command) error {
	if s.ended {
		return ErrMatchOver
	}
	switch cmd.kind {
	case cmdSelect:
		return s.handleSelect(cmd)
	case cmdRespond:
		return s.handleRespond(cmd)
	case cmdTimeout:
		s.handleTimeout(cmd.round, cmd.phase)
		return nil
	case cmdForfeit:
		return s.handleForfeit(cmd.userID)
	case cmdShutdown:
		s.stopTimer()
		s.ended = true
		return nil
	}
	return errs.Validation("unknown command")
}

func (s *Session) player(userID string) *playerState {
	for _, p := range s.players {
		if p.userID == userID {
			return p
		}
	}
	return nil
}

func (s *Session) opponent(userID string) *playerState {
	if s.players[0].userID == userID {
		return s.players[1]
	}
	return s.players[0]
}

func (s *Session) responderID() string {
	return s.opponent(s.round.starterID).userID
}

func (s *Session) timerKey() string {
	return "duel:" + s.MatchID
}

func (s *Session) turnSeconds() int {
	return int(s.manager.opts.TurnTimeout / time.Second)
}

func (s *Session) startTimer() {
	round, phase := s.round.number, s.round.phase
	s.manager.timers.Start(s.timerKey(), s.manager.opts.TurnTimeout, func() {
		s.post(command{kind: cmdTimeout, round: round, phase: phase})
	})
}

func (s *Session) stopTimer() {
	s.manager.timers.Stop(s.timerKey())
}

func (s *Session) emitBoth(event string, payload interface{}) {
	for _, p := range s.players {
		s.manager.notifier.Emit(p.userID, event, payload)
	}
}

func (s *Session) beginRound(number int, starterID string) {
	s.round = roundState{
		number:    number,
		phase:     PhaseSelection,
		starterID: starterID,
		plays:     make(map[string]play, 2),
	}
	s.emitBoth(protocol.RoundStart, protocol.RoundStartPayload{
		MatchID:     s.MatchID,
		RoundNumber: number,
		StarterID:   starterID,
		Phase:       PhaseSelection,
		Timer:       s.turnSeconds(),
	})
	s.startTimer()
}

// validatePlay checks a submission against the player's loadout and
// fetches the card's stat row.
func (s *Session) validatePlay(p *playerState, cardID, rawSkill string) (play, error) {
	skill, err := models.ParseSkill(rawSkill)
	if err != nil {
		return play{}, errs.Validation("invalid skill")
	}
	if _, ok := p.loadout[cardID]; !ok {
		return play{}, errs.Validation("card not in your active loadout")
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	card, err := s.manager.store.Card(ctx, cardID)
	if err != nil {
		return play{}, errs.Infrastructure("failed to load card", err)
	}
	return play{card: *card, skill: skill}, nil
}

func (s *Session) handleSelect(cmd command) error {
	p := s.player(cmd.userID)
	if p == nil {
		return errs.Authorization("not a participant of this match")
	}
	if s.round.phase != PhaseSelection || cmd.userID != s.round.starterID {
		return errs.Authorization("not your turn")
	}
	pl, err := s.validatePlay(p, cmd.cardID, cmd.skill)
	if err != nil {
		return err
	}

	s.stopTimer()
	s.round.plays[cmd.userID] = pl
	s.round.phase = PhaseResponse

	s.manager.notifier.Emit(s.responderID(), protocol.OpponentSelection, protocol.OpponentSelectionPayload{
		MatchID:     s.MatchID,
		RoundNumber: s.round.number,
		Skill:       string(pl.skill),
		Card:        pl.card,
		Timer:       s.turnSeconds(),
	})
	s.startTimer()
	return nil
}

func (s *Session) handleRespond(cmd command) error {
	p := s.player(cmd.userID)
	if p == nil {
		return errs.Authorization("not a participant of this match")
	}
	if s.round.phase != PhaseResponse || cmd.userID != s.responderID() {
		return errs.Authorization("not your turn")
	}
	pl, err := s.validatePlay(p, cmd.cardID, cmd.skill)
	if err != nil {
		return err
	}

	starterPlay := s.round.plays[s.round.starterID]
	starterValue := starterPlay.card.Stat(starterPlay.skill)
	responderValue := pl.card.Stat(pl.skill)

	var winnerID *string
	switch {
	case starterValue > responderValue:
		id := s.round.starterID
		winnerID = &id
	case responderValue > starterValue:
		id := cmd.userID
		winnerID = &id
	}

	plays := map[string]play{s.round.starterID: starterPlay, cmd.userID: pl}
	if err := s.persistRound(plays, winnerID, false); err != nil {
		// Nothing changed yet; the responder may resubmit within the window.
		return errs.Infrastructure("failed to record round", err)
	}
	s.stopTimer()
	s.round.plays[cmd.userID] = pl
	s.resolve(winnerID, "")
	return nil
}

// handleTimeout forfeits the round for whoever owed the move when the
// window expired. Timeouts for an earlier round or phase are ignored.
func (s *Session) handleTimeout(round int, phase string) {
	if round != s.round.number || phase != s.round.phase {
		return
	}
	late := s.round.starterID
	if phase == PhaseResponse {
		late = s.responderID()
	}
	winner := s.opponent(late).userID

	if err := s.persistRound(s.round.plays, &winner, true); err != nil {
		log.Printf("[Duel] Match %s: failed to record timed out round %d: %v", s.MatchID, round, err)
	}
	log.Printf("[Duel] Match %s: %s timed out in round %d (%s)", s.MatchID, late, round, phase)
	s.resolve(&winner, late)
}

func (s *Session) handleForfeit(userID string) error {
	if s.player(userID) == nil {
		return errs.Authorization("not a participant of this match")
	}
	s.stopTimer()
	winner := s.opponent(userID).userID
	log.Printf("[Duel] Match %s: %s forfeited", s.MatchID, userID)
	s.finish(&winner, models.EndReasonForfeit)
	return nil
}

func (s *Session) persistRound(plays map[string]play, winnerID *string, timedOut bool) error {
	p1, p2 := plays[s.players[0].userID], plays[s.players[1].userID]
	round := &models.Round{
		ID:          uuid.NewString(),
		MatchID:     s.MatchID,
		RoundNumber: s.round.number,
		Card1ID:     p1.card.ID,
		Skill1:      p1.skill,
		Card2ID:     p2.card.ID,
		Skill2:      p2.skill,
		WinnerID:    winnerID,
		TimedOut:    timedOut,
		CreatedAt:   time.Now(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	return s.manager.store.InsertRound(ctx, round)
}

// resolve applies a round outcome, announces it, then either starts the
// next round or ends the match.
func (s *Session) resolve(winnerID *string, timedOut string) {
	if winnerID != nil {
		s.player(*winnerID).score++
	}

	details := protocol.RoundDetails{Plays: make(map[string]protocol.Play, 2), TimedOut: timedOut}
	for id, pl := range s.round.plays {
		details.Plays[id] = protocol.Play{
			CardID: pl.card.ID,
			Skill:  string(pl.skill),
			Value:  pl.card.Stat(pl.skill),
		}
	}
	s.emitBoth(protocol.RoundResult, protocol.RoundResultPayload{
		MatchID:     s.MatchID,
		RoundNumber: s.round.number,
		WinnerID:    winnerID,
		Draw:        winnerID == nil,
		Scores:      s.scores(),
		Details:     details,
	})

	opts := s.manager.opts
	p1, p2 := s.players[0], s.players[1]
	switch {
	case p1.score >= opts.WinningScore || p2.score >= opts.WinningScore:
		s.finish(s.leader(), models.EndReasonScore)
	case s.round.number >= opts.MaxRounds:
		s.finish(s.leader(), models.EndReasonRounds)
	default:
		// The starter alternates every round.
		s.beginRound(s.round.number+1, s.responderID())
	}
}

// leader returns the player with the strictly higher score, nil on a tie.
func (s *Session) leader() *string {
	p1, p2 := s.players[0], s.players[1]
	switch {
	case p1.score > p2.score:
		return &p1.userID
	case p2.score > p1.score:
		return &p2.userID
	}
	return nil
}

func (s *Session) scores() map[string]int {
	return map[string]int{
		s.players[0].userID: s.players[0].score,
		s.players[1].userID: s.players[1].score,
	}
}

func (s *Session) finish(winnerID *string, reason string) {
	s.stopTimer()
	s.ended = true

	p1, p2 := s.players[0], s.players[1]
	ctx, cancel := context.WithTimeout(context.Background(), 2*storeTimeout)
	defer cancel()
	deltas, err := s.manager.settler.Settle(ctx, services.Settlement{
		Result: models.MatchResult{
			MatchID:    s.MatchID,
			Scores:     s.scores(),
			WinnerID:   winnerID,
			EndReason:  reason,
			FinishedAt: time.Now(),
		},
		Player1ID:     p1.userID,
		Player2ID:     p2.userID,
		Player1Rating: p1.rating,
		Player2Rating: p2.rating,
	})
	if err != nil {
		log.Printf("[Duel] Match %s: settlement failed: %v", s.MatchID, err)
		for _, p := range s.players {
			s.manager.notifier.Emit(p.userID, protocol.MatchError, protocol.ErrorPayload{
				Message: "match result could not be recorded",
				Code:    string(errs.CodeInfrastructure),
			})
		}
		deltas = map[string]int{}
	}

	s.emitBoth(protocol.MatchEnded, protocol.MatchEndedPayload{
		MatchID:      s.MatchID,
		WinnerID:     winnerID,
		IsDraw:       winnerID == nil,
		Reason:       reason,
		Scores:       s.scores(),
		RatingDeltas: deltas,
	})

	winner := "draw"
	if winnerID != nil {
		winner = *winnerID
	}
	log.Printf("[Duel] Match %s ended (%s): winner=%s score=%d-%d",
		s.MatchID, reason, winner, p1.score, p2.score)
}
