package realtime

import (
	"encoding/json"

	"github.com/abhisheksenku/paisatrack/internal/core"
)

// Inbound event names (client to server).
const (
	EventAddExpense                = "add_expense"
	EventEditExpense               = "edit_expense"
	EventDeleteExpense             = "delete_expense"
	EventBulkDeleteExpenses        = "bulk_delete_expenses"
	EventPremiumStatusChanged      = "premium_status_changed"
	EventLeaderboardRefreshRequest = "leaderboard_refresh_request"
)

// Outbound event names (server to client).
const (
	EventExpenseAdded        = "expense_added"
	EventExpenseUpdated      = "expense_updated"
	EventExpenseDeleted      = "expense_deleted"
	EventExpensesBulkDeleted = "expenses_bulk_deleted"
	EventLeaderboardRefresh  = "leaderboard_refresh"
	EventBudgetAlert         = "budget_alert"
	EventExpenseError        = "expense_error"
	// EventPremiumStatusChanged is reused on the outbound side.
)

// Envelope is the wire frame for every message in both directions.
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// inboundMessage defers payload decoding until the event is known.
type inboundMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ExpensePayload is the full post-mutation record pushed to the user's
// personal group. It carries everything a client needs to render the
// change without a re-read.
type ExpensePayload struct {
	ID          int64  `json:"id"`
	UserID      string `json:"userId"`
	Kind        string `json:"kind"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Note        string `json:"note,omitempty"`
	AmountCents int64  `json:"amountCents"`
	Date        string `json:"date"`
}

// NewExpensePayload renders a committed record into its wire shape.
func NewExpensePayload(rec core.Record) ExpensePayload {
	return ExpensePayload{
		ID:          rec.ID,
		UserID:      rec.UserID,
		Kind:        string(rec.Kind),
		Category:    rec.Category,
		Description: rec.Description,
		Note:        rec.Note,
		AmountCents: rec.Amount.Cents,
		Date:        rec.Date.Format("2006-01-02"),
	}
}

type DeletePayload struct {
	ID int64 `json:"id"`
}

type BulkDeletePayload struct {
	IDs []int64 `json:"ids"`
}

type PremiumStatusPayload struct {
	UserID    string `json:"userId"`
	IsPremium bool   `json:"isPremium"`
}

type AlertPayload struct {
	Message string `json:"message"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// addExpenseRequest is the inbound shape for add_expense and the field
// set for edit_expense. Amounts arrive as decimal strings ("123.45").
type addExpenseRequest struct {
	Kind        string `json:"kind"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Note        string `json:"note"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
}

type editExpenseRequest struct {
	ID int64 `json:"id"`
	addExpenseRequest
}
