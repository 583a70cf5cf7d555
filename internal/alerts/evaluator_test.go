package alerts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abhisheksenku/paisatrack/internal/core"
	applog "github.com/abhisheksenku/paisatrack/internal/log"
	"github.com/abhisheksenku/paisatrack/internal/realtime"
)

func testLogger() *applog.Logger {
	return applog.New(applog.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
}

type fakeAccounts struct {
	mu        sync.Mutex
	user      core.User
	getErr    error
	markErr   error
	markCalls int
}

func (f *fakeAccounts) GetUser(_ context.Context, id string) (core.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return core.User{}, f.getErr
	}
	if f.user.ID != id {
		return core.User{}, errors.New("user not found")
	}
	return f.user, nil
}

func (f *fakeAccounts) MarkAlerted(_ context.Context, userID, monthKey string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls++
	if f.markErr != nil {
		return false, f.markErr
	}
	if f.user.LastAlertMonth == monthKey {
		return false, nil
	}
	f.user.LastAlertMonth = monthKey
	return true, nil
}

type fakeTotals struct {
	expense int64
	err     error
	calls   atomic.Int64
}

func (f *fakeTotals) MonthlyTotals(_ context.Context, _ string, _, _ int) (core.MonthlyTotals, error) {
	f.calls.Add(1)
	if f.err != nil {
		return core.MonthlyTotals{}, f.err
	}
	return core.MonthlyTotals{Expense: core.Money{Cents: f.expense}}, nil
}

type broadcastCall struct {
	group   realtime.Group
	event   string
	payload interface{}
}

type fakeHub struct {
	mu    sync.Mutex
	calls []broadcastCall
}

func (f *fakeHub) Broadcast(g realtime.Group, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, broadcastCall{group: g, event: event, payload: payload})
}

func (f *fakeHub) snapshot() []broadcastCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]broadcastCall(nil), f.calls...)
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (f *fakeNotifier) Notify(_ context.Context, alert Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	return f.err
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var feb15 = time.Date(2025, 2, 15, 10, 0, 0, 0, time.UTC)

func overspentUser() core.User {
	return core.User{
		ID:             "u1",
		Name:           "Abhishek",
		Email:          "u1@example.com",
		AlertThreshold: core.Money{Cents: 100000},
	}
}

func TestEvaluateFiresOnceUnderConcurrency(t *testing.T) {
	accounts := &fakeAccounts{user: overspentUser()}
	totals := &fakeTotals{expense: 120000}
	hub := &fakeHub{}
	notifier := &fakeNotifier{}

	e := NewEvaluator(accounts, totals, hub, testLogger(),
		WithNotifier(notifier), WithClock(fixedClock(feb15)))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Evaluate(context.Background(), "u1")
		}()
	}
	wg.Wait()

	calls := hub.snapshot()
	if len(calls) != 1 {
		t.Fatalf("broadcasts = %d, want exactly 1", len(calls))
	}
	if calls[0].group != realtime.PersonalGroup("u1") {
		t.Errorf("group = %v, want personal group of u1", calls[0].group)
	}
	if calls[0].event != realtime.EventBudgetAlert {
		t.Errorf("event = %q, want %q", calls[0].event, realtime.EventBudgetAlert)
	}
	payload, ok := calls[0].payload.(realtime.AlertPayload)
	if !ok {
		t.Fatalf("payload type %T", calls[0].payload)
	}
	want := "You have spent ₹1200.00 this month, exceeding your alert threshold ₹1000.00."
	if payload.Message != want {
		t.Errorf("message = %q, want %q", payload.Message, want)
	}

	if accounts.markCalls != 1 {
		t.Errorf("markCalls = %d, want 1 (later evaluations stop at the month check)", accounts.markCalls)
	}
	if len(notifier.alerts) != 1 {
		t.Errorf("notifications = %d, want 1", len(notifier.alerts))
	}
}

func TestEvaluateZeroThresholdNeverReadsTotals(t *testing.T) {
	user := overspentUser()
	user.AlertThreshold = core.Money{}
	accounts := &fakeAccounts{user: user}
	totals := &fakeTotals{expense: 999999}
	hub := &fakeHub{}

	e := NewEvaluator(accounts, totals, hub, testLogger(), WithClock(fixedClock(feb15)))
	e.Evaluate(context.Background(), "u1")

	if n := totals.calls.Load(); n != 0 {
		t.Errorf("totals read %d times, want 0 for disabled threshold", n)
	}
	if len(hub.snapshot()) != 0 {
		t.Error("no broadcast expected for disabled threshold")
	}
}

func TestEvaluateUnderThresholdIsQuiet(t *testing.T) {
	accounts := &fakeAccounts{user: overspentUser()}
	totals := &fakeTotals{expense: 99999}
	hub := &fakeHub{}

	e := NewEvaluator(accounts, totals, hub, testLogger(), WithClock(fixedClock(feb15)))
	e.Evaluate(context.Background(), "u1")

	if len(hub.snapshot()) != 0 {
		t.Error("no broadcast expected under threshold")
	}
	if accounts.markCalls != 0 {
		t.Errorf("markCalls = %d, want 0", accounts.markCalls)
	}
}

func TestEvaluateExactThresholdFires(t *testing.T) {
	accounts := &fakeAccounts{user: overspentUser()}
	totals := &fakeTotals{expense: 100000}
	hub := &fakeHub{}

	e := NewEvaluator(accounts, totals, hub, testLogger(), WithClock(fixedClock(feb15)))
	e.Evaluate(context.Background(), "u1")

	if len(hub.snapshot()) != 1 {
		t.Fatal("spending equal to the threshold should fire")
	}
}

func TestEvaluateSameMonthIsNoOp(t *testing.T) {
	user := overspentUser()
	user.LastAlertMonth = "2025-02"
	accounts := &fakeAccounts{user: user}
	totals := &fakeTotals{expense: 500000}
	hub := &fakeHub{}

	e := NewEvaluator(accounts, totals, hub, testLogger(), WithClock(fixedClock(feb15)))
	e.Evaluate(context.Background(), "u1")

	if n := totals.calls.Load(); n != 0 {
		t.Errorf("totals read %d times, want 0 when month already alerted", n)
	}
	if len(hub.snapshot()) != 0 {
		t.Error("no broadcast expected for already-alerted month")
	}
}

func TestEvaluateNewMonthFiresAgain(t *testing.T) {
	user := overspentUser()
	user.LastAlertMonth = "2025-02"
	accounts := &fakeAccounts{user: user}
	totals := &fakeTotals{expense: 150000}
	hub := &fakeHub{}

	mar1 := time.Date(2025, 3, 1, 0, 5, 0, 0, time.UTC)
	e := NewEvaluator(accounts, totals, hub, testLogger(), WithClock(fixedClock(mar1)))
	e.Evaluate(context.Background(), "u1")

	calls := hub.snapshot()
	if len(calls) != 1 {
		t.Fatalf("broadcasts = %d, want 1 after month rollover", len(calls))
	}
	if accounts.user.LastAlertMonth != "2025-03" {
		t.Errorf("LastAlertMonth = %q, want 2025-03", accounts.user.LastAlertMonth)
	}
}

func TestEvaluateSwallowsFailures(t *testing.T) {
	t.Run("user lookup error", func(t *testing.T) {
		accounts := &fakeAccounts{getErr: errors.New("db closed")}
		hub := &fakeHub{}
		e := NewEvaluator(accounts, &fakeTotals{}, hub, testLogger(), WithClock(fixedClock(feb15)))
		e.Evaluate(context.Background(), "u1")
		if len(hub.snapshot()) != 0 {
			t.Error("no broadcast expected on lookup failure")
		}
	})

	t.Run("totals error", func(t *testing.T) {
		accounts := &fakeAccounts{user: overspentUser()}
		hub := &fakeHub{}
		e := NewEvaluator(accounts, &fakeTotals{err: errors.New("db closed")}, hub, testLogger(), WithClock(fixedClock(feb15)))
		e.Evaluate(context.Background(), "u1")
		if len(hub.snapshot()) != 0 {
			t.Error("no broadcast expected on totals failure")
		}
	})

	t.Run("mark error", func(t *testing.T) {
		accounts := &fakeAccounts{user: overspentUser(), markErr: errors.New("db closed")}
		hub := &fakeHub{}
		e := NewEvaluator(accounts, &fakeTotals{expense: 200000}, hub, testLogger(), WithClock(fixedClock(feb15)))
		e.Evaluate(context.Background(), "u1")
		if len(hub.snapshot()) != 0 {
			t.Error("no broadcast expected when the mark cannot be recorded")
		}
	})

	t.Run("notifier error still broadcasts", func(t *testing.T) {
		accounts := &fakeAccounts{user: overspentUser()}
		hub := &fakeHub{}
		notifier := &fakeNotifier{err: errors.New("smtp down")}
		e := NewEvaluator(accounts, &fakeTotals{expense: 200000}, hub, testLogger(),
			WithNotifier(notifier), WithClock(fixedClock(feb15)))
		e.Evaluate(context.Background(), "u1")
		if len(hub.snapshot()) != 1 {
			t.Error("broadcast should land even when notification delivery fails")
		}
	})
}

func TestComposeAlertMail(t *testing.T) {
	subject, body := ComposeAlertMail("Abhishek", core.Money{Cents: 120050}, core.Money{Cents: 100000}, "2025-02")

	if subject != "Budget alert for 2025-02" {
		t.Errorf("subject = %q", subject)
	}
	for _, want := range []string{"Hi Abhishek", "₹1200.50", "₹1000.00", "2025-02"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestComposeAlertMailAnonymous(t *testing.T) {
	_, body := ComposeAlertMail("", core.Money{Cents: 5000}, core.Money{Cents: 4000}, "2025-06")
	if !strings.HasPrefix(body, "Hi,") {
		t.Errorf("body should open with a plain greeting:\n%s", body)
	}
}
