// Package services orchestrates expense mutations across SQLite, the
// realtime fan-out, and the budget alert evaluator.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/abhisheksenku/paisatrack/internal/core"
	applog "github.com/abhisheksenku/paisatrack/internal/log"
	"github.com/abhisheksenku/paisatrack/internal/realtime"
)

// Store is the storage surface the service writes through. Implemented
// by storage.SQLiteRepository.
type Store interface {
	GetUser(ctx context.Context, id string) (core.User, error)
	CreateRecord(ctx context.Context, rec core.Record) (int64, error)
	GetRecord(ctx context.Context, userID string, id int64) (core.Record, error)
	UpdateRecord(ctx context.Context, rec core.Record) error
	SoftDeleteRecord(ctx context.Context, userID string, id int64) error
	BulkSoftDeleteRecords(ctx context.Context, userID string, ids []int64) (int64, error)
	ListRecords(ctx context.Context, userID string) ([]core.Record, error)
	MonthlyTotals(ctx context.Context, userID string, month, year int) (core.MonthlyTotals, error)
	Leaderboard(ctx context.Context) ([]core.LeaderboardEntry, error)
}

// ErrNotPremium marks reads that are gated behind a premium account.
var ErrNotPremium = errors.New("premium subscription required")

// Evaluator runs the post-commit budget check. Implemented by
// alerts.Evaluator; nil disables alerting.
type Evaluator interface {
	Evaluate(ctx context.Context, userID string)
}

// ExpenseService is the write path behind the realtime handlers and the
// read path behind the HTTP API. Every mutation commits to SQLite
// first, then broadcasts, then (for spending) runs the alert check, in
// that order.
type ExpenseService struct {
	store     Store
	hub       realtime.Broadcaster
	router    *realtime.Router
	evaluator Evaluator
	logger    *applog.Logger
}

func NewExpenseService(store Store, hub realtime.Broadcaster, router *realtime.Router, evaluator Evaluator, logger *applog.Logger) *ExpenseService {
	return &ExpenseService{
		store:     store,
		hub:       hub,
		router:    router,
		evaluator: evaluator,
		logger:    logger.WithComponent(applog.ComponentApp),
	}
}

// AddExpense commits a new record and fans it out.
func (s *ExpenseService) AddExpense(ctx context.Context, rec core.Record) (core.Record, error) {
	if err := rec.Validate(); err != nil {
		return core.Record{}, err
	}

	id, err := s.store.CreateRecord(ctx, rec)
	if err != nil {
		return core.Record{}, fmt.Errorf("save record: %w", err)
	}
	rec.ID = id

	s.hub.Broadcast(realtime.PersonalGroup(rec.UserID), realtime.EventExpenseAdded,
		realtime.NewExpensePayload(rec))
	s.hub.Broadcast(realtime.Premium, realtime.EventLeaderboardRefresh, nil)

	s.evaluateIfSpending(ctx, rec)

	return rec, nil
}

// UpdateExpense rewrites an existing record owned by rec.UserID.
func (s *ExpenseService) UpdateExpense(ctx context.Context, rec core.Record) (core.Record, error) {
	if rec.ID <= 0 {
		return core.Record{}, fmt.Errorf("invalid record id %d", rec.ID)
	}
	if err := rec.Validate(); err != nil {
		return core.Record{}, err
	}

	if err := s.store.UpdateRecord(ctx, rec); err != nil {
		return core.Record{}, fmt.Errorf("update record: %w", err)
	}

	// Broadcast the stored row, not the inbound request, so every
	// session sees what actually committed.
	stored, err := s.store.GetRecord(ctx, rec.UserID, rec.ID)
	if err != nil {
		return core.Record{}, fmt.Errorf("reload record: %w", err)
	}

	s.hub.Broadcast(realtime.PersonalGroup(stored.UserID), realtime.EventExpenseUpdated,
		realtime.NewExpensePayload(stored))
	s.hub.Broadcast(realtime.Premium, realtime.EventLeaderboardRefresh, nil)

	s.evaluateIfSpending(ctx, stored)

	return stored, nil
}

// DeleteExpense soft deletes one record. Deletions only lower the
// month's spending, so no alert check runs.
func (s *ExpenseService) DeleteExpense(ctx context.Context, userID string, id int64) error {
	if err := s.store.SoftDeleteRecord(ctx, userID, id); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}

	s.hub.Broadcast(realtime.PersonalGroup(userID), realtime.EventExpenseDeleted,
		realtime.DeletePayload{ID: id})
	s.hub.Broadcast(realtime.Premium, realtime.EventLeaderboardRefresh, nil)

	return nil
}

// BulkDeleteExpenses soft deletes a batch in one transaction. Records
// not owned by userID are left untouched.
func (s *ExpenseService) BulkDeleteExpenses(ctx context.Context, userID string, ids []int64) error {
	if len(ids) == 0 {
		return fmt.Errorf("no record ids given")
	}

	n, err := s.store.BulkSoftDeleteRecords(ctx, userID, ids)
	if err != nil {
		return fmt.Errorf("bulk delete records: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("no matching records for user %s", userID)
	}
	if n < int64(len(ids)) {
		s.logger.WarnContext(ctx, "bulk delete skipped foreign or missing records",
			applog.FieldUserID, userID,
			"requested", len(ids),
			"deleted", n)
	}

	s.hub.Broadcast(realtime.PersonalGroup(userID), realtime.EventExpensesBulkDeleted,
		realtime.BulkDeletePayload{IDs: ids})
	s.hub.Broadcast(realtime.Premium, realtime.EventLeaderboardRefresh, nil)

	return nil
}

// RefreshPremiumStatus re-reads the account record and moves the user's
// live sessions in or out of the premium group to match it.
func (s *ExpenseService) RefreshPremiumStatus(ctx context.Context, userID string) error {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	if user.IsPremium {
		s.router.PromoteToPremium(userID)
	} else {
		s.router.DemoteFromPremium(userID)
	}

	s.hub.Broadcast(realtime.PersonalGroup(userID), realtime.EventPremiumStatusChanged,
		realtime.PremiumStatusPayload{UserID: userID, IsPremium: user.IsPremium})
	s.hub.Broadcast(realtime.Premium, realtime.EventLeaderboardRefresh, nil)

	s.logger.InfoContext(ctx, "premium status refreshed",
		applog.FieldUserID, userID,
		"premium", user.IsPremium)

	return nil
}

// PremiumLeaderboard ranks all users by lifetime spending, highest
// first. The premium check reads the account fresh rather than trusting
// the caller's token, which may predate a downgrade.
func (s *ExpenseService) PremiumLeaderboard(ctx context.Context, userID string) ([]core.LeaderboardEntry, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.IsPremium {
		return nil, ErrNotPremium
	}
	return s.store.Leaderboard(ctx)
}

// ListExpenses returns the user's records, newest first.
func (s *ExpenseService) ListExpenses(ctx context.Context, userID string) ([]core.Record, error) {
	return s.store.ListRecords(ctx, userID)
}

// MonthlyReport is the analytics read model for one calendar month.
type MonthlyReport struct {
	MonthKey  string
	Totals    core.MonthlyTotals
	Threshold core.Money
}

// MonthlyReport aggregates one month of the user's activity plus their
// alert threshold for context.
func (s *ExpenseService) MonthlyReport(ctx context.Context, userID string, month, year int) (MonthlyReport, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return MonthlyReport{}, fmt.Errorf("load user: %w", err)
	}

	totals, err := s.store.MonthlyTotals(ctx, userID, month, year)
	if err != nil {
		return MonthlyReport{}, fmt.Errorf("aggregate month: %w", err)
	}

	return MonthlyReport{
		MonthKey:  fmt.Sprintf("%04d-%02d", year, month),
		Totals:    totals,
		Threshold: user.AlertThreshold,
	}, nil
}

func (s *ExpenseService) evaluateIfSpending(ctx context.Context, rec core.Record) {
	if s.evaluator == nil || rec.Kind != core.Expense {
		return
	}
	s.evaluator.Evaluate(ctx, rec.UserID)
}
