package realtime

import (
	"io"
	"log/slog"
	"testing"

	applog "github.com/abhisheksenku/paisatrack/internal/log"
)

func testLogger() *applog.Logger {
	return applog.New(applog.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
}

func drain(s *Session) []Envelope {
	var out []Envelope
	for {
		select {
		case env := <-s.send:
			out = append(out, env)
		default:
			return out
		}
	}
}

func TestBroadcastReachesGroupMembersOnly(t *testing.T) {
	r := NewRouter()
	hub := NewHub(r, testLogger())

	a := testSession("u1", false)
	b := testSession("u1", false)
	other := testSession("u2", false)
	r.Register(a)
	r.Register(b)
	r.Register(other)

	hub.Broadcast(PersonalGroup("u1"), EventExpenseAdded, ExpensePayload{ID: 7})

	for _, s := range []*Session{a, b} {
		got := drain(s)
		if len(got) != 1 || got[0].Event != EventExpenseAdded {
			t.Fatalf("session %s got %v", s.ID, got)
		}
	}
	if got := drain(other); len(got) != 0 {
		t.Fatalf("other user received %v", got)
	}
}

func TestBroadcastEmptyGroupIsNoOp(t *testing.T) {
	r := NewRouter()
	hub := NewHub(r, testLogger())

	// Must not panic or error.
	hub.Broadcast(PersonalGroup("nobody"), EventLeaderboardRefresh, nil)
	hub.Broadcast(Premium, EventLeaderboardRefresh, nil)
}

func TestSlowSessionDoesNotBlockOthers(t *testing.T) {
	r := NewRouter()
	hub := NewHub(r, testLogger())

	slow := testSession("u1", false)
	fast := testSession("u1", false)
	r.Register(slow)
	r.Register(fast)

	// Fill the slow session's buffer; further sends to it are dropped.
	for i := 0; i < sendBuffer; i++ {
		if !slow.queue(Envelope{Event: EventLeaderboardRefresh}) {
			t.Fatalf("buffer filled early at %d", i)
		}
	}

	hub.Broadcast(PersonalGroup("u1"), EventExpenseAdded, ExpensePayload{ID: 1})

	if got := drain(fast); len(got) != 1 {
		t.Fatalf("fast session got %d messages, want 1", len(got))
	}
	if got := drain(slow); len(got) != sendBuffer {
		t.Fatalf("slow session got %d messages, want %d (overflow dropped)", len(got), sendBuffer)
	}
}

func TestQueueAfterCloseIsDropped(t *testing.T) {
	s := testSession("u1", false)
	s.close()
	s.close() // second close is safe

	// A broadcast that snapshotted this session before it disconnected
	// still holds it; the send must be dropped, never a panic.
	if s.queue(Envelope{Event: EventLeaderboardRefresh}) {
		t.Fatal("queue on closed session should report dropped")
	}
}
