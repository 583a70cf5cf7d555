package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/abhisheksenku/paisatrack/internal/auth"
	"github.com/abhisheksenku/paisatrack/internal/core"
	applog "github.com/abhisheksenku/paisatrack/internal/log"
	"github.com/abhisheksenku/paisatrack/internal/realtime"
	"github.com/abhisheksenku/paisatrack/internal/services"
	"github.com/abhisheksenku/paisatrack/internal/storage"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testLogger() *applog.Logger {
	return applog.New(applog.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
}

type apiFixture struct {
	ts       *httptest.Server
	repo     *storage.SQLiteRepository
	verifier *auth.Verifier
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	verifier, err := auth.NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	logger := testLogger()
	router := realtime.NewRouter()
	hub := realtime.NewHub(router, logger)
	svc := services.NewExpenseService(repo, hub, router, nil, logger)
	ws := realtime.NewServer(verifier, router, hub, svc, logger)

	srv := NewServer("127.0.0.1:0", ws, svc, verifier, logger)
	ts := httptest.NewServer(srv.Server.Handler)
	t.Cleanup(ts.Close)
	t.Cleanup(func() { srv.rateLimiter.stop() })

	if err := repo.CreateUser(context.Background(), core.User{
		ID: "u1", Name: "Abhishek", Email: "u1@example.com",
	}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	return &apiFixture{ts: ts, repo: repo, verifier: verifier}
}

func (f *apiFixture) get(t *testing.T, path, userID string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.ts.URL+path, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if userID != "" {
		token, err := f.verifier.Issue(auth.Identity{UserID: userID}, time.Hour)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *apiFixture) seedRecord(t *testing.T, rec core.Record) {
	t.Helper()
	if _, err := f.repo.CreateRecord(context.Background(), rec); err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.get(t, "/healthz", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
}

func TestAnalyticsRequiresAuth(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.get(t, "/api/analytics/monthly", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestAnalyticsMonthly(t *testing.T) {
	f := newAPIFixture(t)

	feb := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	f.seedRecord(t, core.Record{
		UserID: "u1", Kind: core.Income, Category: "Salary",
		Description: "salary", Amount: core.Money{Cents: 500000}, Date: feb,
	})
	f.seedRecord(t, core.Record{
		UserID: "u1", Kind: core.Expense, Category: "Food",
		Description: "groceries", Amount: core.Money{Cents: 120000}, Date: feb,
	})
	// Another user's spending stays out.
	f.seedRecord(t, core.Record{
		UserID: "u2", Kind: core.Expense, Category: "Food",
		Description: "groceries", Amount: core.Money{Cents: 999900}, Date: feb,
	})

	resp := f.get(t, "/api/analytics/monthly?year=2025&month=2", "u1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		Month          string `json:"month"`
		IncomeCents    int64  `json:"incomeCents"`
		ExpenseCents   int64  `json:"expenseCents"`
		RemainingCents int64  `json:"remainingCents"`
		ThresholdCents int64  `json:"thresholdCents"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Month != "2025-02" {
		t.Errorf("month = %q", body.Month)
	}
	if body.IncomeCents != 500000 || body.ExpenseCents != 120000 || body.RemainingCents != 380000 {
		t.Errorf("totals = %+v", body)
	}
}

func TestAnalyticsMonthOutOfRange(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.get(t, "/api/analytics/monthly?year=2025&month=13", "u1")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestListExpenses(t *testing.T) {
	f := newAPIFixture(t)

	for day := 1; day <= 3; day++ {
		f.seedRecord(t, core.Record{
			UserID: "u1", Kind: core.Expense, Category: "Food",
			Description: "groceries", Amount: core.Money{Cents: 1000},
			Date: time.Date(2025, 2, day, 0, 0, 0, 0, time.UTC),
		})
	}

	resp := f.get(t, "/api/expenses", "u1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var payloads []realtime.ExpensePayload
	if err := json.NewDecoder(resp.Body).Decode(&payloads); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payloads) != 3 {
		t.Fatalf("records = %d, want 3", len(payloads))
	}
	// Newest first.
	if payloads[0].Date != "2025-02-03" {
		t.Errorf("first record date = %q, want newest", payloads[0].Date)
	}
}

func TestLeaderboardRequiresPremium(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.get(t, "/api/leaderboard", "u1")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 for a free account", resp.StatusCode)
	}
}

func TestLeaderboardRankedForPremium(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	if err := f.repo.CreateUser(ctx, core.User{
		ID: "u2", Name: "Bala", Email: "u2@example.com",
	}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := f.repo.SetPremium(ctx, "u1", true); err != nil {
		t.Fatalf("SetPremium: %v", err)
	}

	feb := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	f.seedRecord(t, core.Record{
		UserID: "u1", Kind: core.Expense, Category: "Food",
		Description: "groceries", Amount: core.Money{Cents: 20000}, Date: feb,
	})
	f.seedRecord(t, core.Record{
		UserID: "u2", Kind: core.Expense, Category: "Travel",
		Description: "flights", Amount: core.Money{Cents: 90000}, Date: feb,
	})

	resp := f.get(t, "/api/leaderboard", "u1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		Users []struct {
			UserID            string `json:"userId"`
			Name              string `json:"name"`
			TotalExpenseCents int64  `json:"totalExpenseCents"`
		} `json:"users"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Users) != 2 {
		t.Fatalf("users = %d, want 2", len(body.Users))
	}
	if body.Users[0].UserID != "u2" || body.Users[0].TotalExpenseCents != 90000 {
		t.Fatalf("top user = %+v, want u2 with 90000", body.Users[0])
	}
	if body.Users[1].Name != "Abhishek" || body.Users[1].TotalExpenseCents != 20000 {
		t.Fatalf("second user = %+v, want Abhishek with 20000", body.Users[1])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newAPIFixture(t)

	token, err := f.verifier.Issue(auth.Identity{UserID: "u1"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, f.ts.URL+"/api/expenses", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}
