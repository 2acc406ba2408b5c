package audit

import (
	"testing"
)

func TestRecordWithoutCollection(t *testing.T) {
	var got []Event
	l := New(nil)
	l.sink = func(e Event) { got = append(got, e) }

	l.Record(EventTradeCompleted, "u1", "ex-1", "dragon<->golem")
	if len(got) != 1 {
		t.Fatalf("recorded %d events, want 1", len(got))
	}
	if got[0].EventType != EventTradeCompleted || got[0].SubjectID != "ex-1" {
		t.Fatalf("event = %+v", got[0])
	}
	if got[0].CreatedAt.IsZero() {
		t.Fatal("CreatedAt not set")
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Record(EventMatchForfeit, "u1", "m1", "")
}
