// Package alerts decides when a user has crossed their monthly spending
// threshold and makes sure each crossing is announced at most once per
// calendar month, no matter how many mutations race past it.
package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/abhisheksenku/paisatrack/internal/core"
	applog "github.com/abhisheksenku/paisatrack/internal/log"
	"github.com/abhisheksenku/paisatrack/internal/realtime"
)

// AccountStore is the slice of user storage the evaluator needs.
type AccountStore interface {
	GetUser(ctx context.Context, id string) (core.User, error)
	MarkAlerted(ctx context.Context, userID, monthKey string) (bool, error)
}

// TotalsReader aggregates the month's activity.
type TotalsReader interface {
	MonthlyTotals(ctx context.Context, userID string, month, year int) (core.MonthlyTotals, error)
}

// Alert is one threshold crossing, ready for out-of-band delivery.
type Alert struct {
	UserID    string
	Email     string
	Name      string
	Spent     core.Money
	Threshold core.Money
	MonthKey  string
	Message   string
}

// Notifier delivers an alert outside the realtime channel. Delivery is
// best-effort; a failure never undoes the once-per-month mark.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// Evaluator checks spending against the user's threshold after each
// expense commit. Evaluation never affects the commit that triggered
// it; every failure here is logged and swallowed.
type Evaluator struct {
	accounts AccountStore
	totals   TotalsReader
	hub      realtime.Broadcaster
	notifier Notifier
	logger   *applog.Logger
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type Option func(*Evaluator)

// WithNotifier adds out-of-band delivery (queue or mail) on top of the
// realtime broadcast.
func WithNotifier(n Notifier) Option {
	return func(e *Evaluator) { e.notifier = n }
}

// WithClock overrides the wall clock used to derive the month key.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

func NewEvaluator(accounts AccountStore, totals TotalsReader, hub realtime.Broadcaster, logger *applog.Logger, opts ...Option) *Evaluator {
	e := &Evaluator{
		accounts: accounts,
		totals:   totals,
		hub:      hub,
		logger:   logger.WithComponent(applog.ComponentAlerts),
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// userLock serializes evaluations for one user so that concurrent
// mutations cannot both pass the month check before either marks it.
func (e *Evaluator) userLock(userID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[userID] = lock
	}
	return lock
}

// Evaluate runs one threshold check for userID.
func (e *Evaluator) Evaluate(ctx context.Context, userID string) {
	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	user, err := e.accounts.GetUser(ctx, userID)
	if err != nil {
		e.logger.WarnContext(ctx, "alert evaluation skipped, user lookup failed",
			applog.FieldUserID, userID,
			applog.FieldError, err)
		return
	}

	if user.AlertThreshold.Cents <= 0 {
		return
	}

	now := e.now()
	monthKey := core.MonthKey(now)
	if user.LastAlertMonth == monthKey {
		return
	}

	totals, err := e.totals.MonthlyTotals(ctx, userID, int(now.Month()), now.Year())
	if err != nil {
		e.logger.WarnContext(ctx, "alert evaluation skipped, totals read failed",
			applog.FieldUserID, userID,
			applog.FieldMonthKey, monthKey,
			applog.FieldError, err)
		return
	}

	if totals.Expense.Cents < user.AlertThreshold.Cents {
		return
	}

	marked, err := e.accounts.MarkAlerted(ctx, userID, monthKey)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to mark alert month",
			applog.FieldUserID, userID,
			applog.FieldMonthKey, monthKey,
			applog.FieldError, err)
		return
	}
	if !marked {
		// Another writer landed the mark first.
		return
	}

	alert := Alert{
		UserID:    userID,
		Email:     user.Email,
		Name:      user.Name,
		Spent:     totals.Expense,
		Threshold: user.AlertThreshold,
		MonthKey:  monthKey,
		Message: fmt.Sprintf("You have spent %s this month, exceeding your alert threshold %s.",
			core.FormatRupees(totals.Expense),
			core.FormatRupees(user.AlertThreshold)),
	}

	e.hub.Broadcast(realtime.PersonalGroup(userID), realtime.EventBudgetAlert,
		realtime.AlertPayload{Message: alert.Message})

	e.logger.InfoContext(ctx, "budget alert fired",
		applog.FieldUserID, userID,
		applog.FieldMonthKey, monthKey,
		applog.FieldAmountCents, totals.Expense.Cents)

	if e.notifier != nil {
		if err := e.notifier.Notify(ctx, alert); err != nil {
			e.logger.ErrorContext(ctx, "alert notification delivery failed",
				applog.FieldUserID, userID,
				applog.FieldMonthKey, monthKey,
				applog.FieldError, err)
		}
	}
}
