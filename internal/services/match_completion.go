package services

import (
	"context"
	"fmt"
	"log"

	"card-arena/internal/audit"
	"card-arena/internal/elo"
	"card-arena/internal/models"
	"card-arena/internal/store"
	"card-arena/internal/telemetry"

	"go.opentelemetry.io/otel/attribute"
)

// Settlement is everything needed to close a match.
type Settlement struct {
	Result        models.MatchResult
	Player1ID     string
	Player2ID     string
	Player1Rating int // rating recorded at match start
	Player2Rating int
}

// MatchCompletionService persists a finished match and settles ratings.
type MatchCompletionService struct {
	store      store.Store
	calculator *elo.Calculator
	audit      *audit.Logger
}

func NewMatchCompletionService(st store.Store, auditLog *audit.Logger) *MatchCompletionService {
	return &MatchCompletionService{
		store:      st,
		calculator: elo.NewCalculator(),
		audit:      auditLog,
	}
}

// Settle computes Elo deltas from the start-of-match ratings and writes
// them together with the final match record in one store write. Returns
// the delta per user.
func (s *MatchCompletionService) Settle(ctx context.Context, st Settlement) (map[string]int, error) {
	ctx, span := telemetry.StartSpan(ctx, "match.settle")
	defer span.End()
	span.SetAttributes(
		attribute.String("match.id", st.Result.MatchID),
		attribute.String("match.end_reason", st.Result.EndReason),
	)

	outcome := elo.OutcomeFor(st.Player1ID, st.Result.WinnerID)
	delta1, delta2 := s.calculator.ComputeDelta(st.Player1Rating, st.Player2Rating, outcome)
	deltas := map[string]int{st.Player1ID: delta1, st.Player2ID: delta2}

	result := st.Result
	result.RatingDeltas = deltas
	if err := s.store.FinishMatch(ctx, result); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("finish match %s: %w", st.Result.MatchID, err)
	}

	log.Printf("Match %s Elo update (%s): %s %d -> %d (%+d), %s %d -> %d (%+d)",
		st.Result.MatchID, outcome,
		st.Player1ID, st.Player1Rating, st.Player1Rating+delta1, delta1,
		st.Player2ID, st.Player2Rating, st.Player2Rating+delta2, delta2)

	if st.Result.EndReason == models.EndReasonForfeit && st.Result.WinnerID != nil {
		loser := st.Player1ID
		if *st.Result.WinnerID == st.Player1ID {
			loser = st.Player2ID
		}
		s.audit.Record(audit.EventMatchForfeit, loser, st.Result.MatchID, "disconnected mid-match")
	}

	return deltas, nil
}
