package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	applog "github.com/abhisheksenku/paisatrack/internal/log"
	"github.com/abhisheksenku/paisatrack/internal/realtime"
	"github.com/abhisheksenku/paisatrack/internal/services"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).String(),
	})
}

// handleReady reports readiness; the process serves traffic as soon as
// storage migrations have run, which happens before the listener opens.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
	})
}

// handleMonthlyAnalytics returns the caller's income, expense, and
// remaining balance for one calendar month.
func (s *Server) handleMonthlyAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity := identityFrom(r)
	year, month := parseYearMonth(r)
	if month < 1 || month > 12 {
		http.Error(w, "month out of range", http.StatusBadRequest)
		return
	}

	report, err := s.svc.MonthlyReport(r.Context(), identity.UserID, month, year)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "monthly report failed",
			applog.FieldUserID, identity.UserID,
			applog.FieldYear, year,
			applog.FieldMonth, month,
			applog.FieldError, err)
		http.Error(w, "failed to aggregate month", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"month":          report.MonthKey,
		"incomeCents":    report.Totals.Income.Cents,
		"expenseCents":   report.Totals.Expense.Cents,
		"remainingCents": report.Totals.Remaining().Cents,
		"thresholdCents": report.Threshold.Cents,
	})
}

// handleListExpenses returns the caller's records, newest first, in the
// same shape the realtime channel pushes them.
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity := identityFrom(r)
	records, err := s.svc.ListExpenses(r.Context(), identity.UserID)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "list expenses failed",
			applog.FieldUserID, identity.UserID,
			applog.FieldError, err)
		http.Error(w, "failed to list expenses", http.StatusInternalServerError)
		return
	}

	payloads := make([]realtime.ExpensePayload, len(records))
	for i, rec := range records {
		payloads[i] = realtime.NewExpensePayload(rec)
	}
	writeJSON(w, http.StatusOK, payloads)
}

// handleLeaderboard ranks all users by lifetime spending. Premium
// accounts only; the gate re-reads the account rather than trusting
// the token's snapshot.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity := identityFrom(r)
	entries, err := s.svc.PremiumLeaderboard(r.Context(), identity.UserID)
	if errors.Is(err, services.ErrNotPremium) {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	if err != nil {
		s.logger.ErrorContext(r.Context(), "leaderboard failed",
			applog.FieldUserID, identity.UserID,
			applog.FieldError, err)
		http.Error(w, "failed to build leaderboard", http.StatusInternalServerError)
		return
	}

	users := make([]map[string]interface{}, len(entries))
	for i, e := range entries {
		users[i] = map[string]interface{}{
			"userId":            e.UserID,
			"name":              e.Name,
			"totalExpenseCents": e.TotalExpenses.Cents,
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

// parseYearMonth extracts year and month from query parameters.
// Returns current year/month as defaults if not provided or invalid.
func parseYearMonth(r *http.Request) (year, month int) {
	now := time.Now()
	year = now.Year()
	month = int(now.Month())

	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil {
			year = y
		}
	}
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		if m, err := strconv.Atoi(v); err == nil {
			month = m
		}
	}

	return year, month
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
