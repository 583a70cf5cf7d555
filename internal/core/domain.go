package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Income  Kind = "income"
	Expense Kind = "expense"
)

type (
	// Kind distinguishes money coming in from money going out.
	Kind string

	Money struct {
		Cents int64
	}

	// Record is a single committed financial entry for a user.
	Record struct {
		ID          int64
		UserID      string
		Kind        Kind
		Category    string
		Description string
		Note        string
		Amount      Money
		Date        time.Time // date component only, stored as YYYY-MM-DD
	}

	// User is the account record the realtime layer and the alert
	// evaluator feed on. AlertThreshold of zero means alerting is
	// disabled; LastAlertMonth holds the YYYY-MM key of the most
	// recent month an alert was sent for, empty if never.
	User struct {
		ID             string
		Name           string
		Email          string
		IsPremium      bool
		AlertThreshold Money
		LastAlertMonth string
	}

	// MonthlyTotals is a derived value, never persisted.
	MonthlyTotals struct {
		Income  Money
		Expense Money
	}

	// LeaderboardEntry ranks one user by lifetime spending. Derived,
	// never persisted.
	LeaderboardEntry struct {
		UserID        string
		Name          string
		TotalExpenses Money
	}
)

var (
	ErrInvalidKind      = errors.New("invalid record kind")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidDate      = errors.New("invalid date")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptyUserID      = errors.New("empty user id")
)

func (k Kind) Validate() error {
	switch k {
	case Income, Expense:
		return nil
	}
	return ErrInvalidKind
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (r Record) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return ErrEmptyUserID
	}
	if err := r.Kind.Validate(); err != nil {
		return err
	}
	if err := r.Amount.Validate(); err != nil {
		return err
	}
	if r.Date.IsZero() {
		return ErrInvalidDate
	}
	if len(strings.TrimSpace(r.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(r.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if strings.TrimSpace(r.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

// Remaining is income minus expense for the month.
func (t MonthlyTotals) Remaining() Money {
	return Money{Cents: t.Income.Cents - t.Expense.Cents}
}

// MonthKey renders t's calendar month as YYYY-MM. The alert evaluator
// uses it as the dedup key, so the same clock must feed every call site.
func MonthKey(t time.Time) string {
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}

// MonthWindow returns the half-open interval [first of month, first of
// next month). Month values outside 1-12 are normalized by time.Date.
func MonthWindow(year, month int) (start, end time.Time) {
	start = time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0)
	return start, end
}
