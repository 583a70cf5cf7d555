package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/abhisheksenku/paisatrack/internal/core"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrRecordNotFound = errors.New("record not found")
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// ---- users ----

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, is_premium, alert_threshold_cents, last_alert_month)
		 VALUES (?, ?, ?, ?, ?, NULLIF(?, ''))`,
		u.ID, u.Name, u.Email, boolToInt(u.IsPremium), u.AlertThreshold.Cents, u.LastAlertMonth)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	var (
		u          core.User
		premium    int64
		alertMonth sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, is_premium, alert_threshold_cents, last_alert_month
		 FROM users WHERE id = ? AND deleted_at IS NULL`, id).
		Scan(&u.ID, &u.Name, &u.Email, &premium, &u.AlertThreshold.Cents, &alertMonth)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, ErrUserNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	u.IsPremium = premium != 0
	u.LastAlertMonth = alertMonth.String
	return u, nil
}

func (r *SQLiteRepository) SetPremium(ctx context.Context, id string, premium bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_premium = ?, updated_at = datetime('now')
		 WHERE id = ? AND deleted_at IS NULL`, boolToInt(premium), id)
	if err != nil {
		return fmt.Errorf("set premium: %w", err)
	}
	return requireRow(res, ErrUserNotFound)
}

func (r *SQLiteRepository) SetAlertThreshold(ctx context.Context, id string, threshold core.Money) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET alert_threshold_cents = ?, updated_at = datetime('now')
		 WHERE id = ? AND deleted_at IS NULL`, threshold.Cents, id)
	if err != nil {
		return fmt.Errorf("set alert threshold: %w", err)
	}
	return requireRow(res, ErrUserNotFound)
}

// MarkAlerted records monthKey as the most recent alerted month for the
// user. It returns false when the month was already marked, which makes
// the write a second dedup gate underneath the evaluator's per-user lock.
func (r *SQLiteRepository) MarkAlerted(ctx context.Context, userID, monthKey string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_alert_month = ?, updated_at = datetime('now')
		 WHERE id = ? AND deleted_at IS NULL
		   AND (last_alert_month IS NULL OR last_alert_month <> ?)`,
		monthKey, userID, monthKey)
	if err != nil {
		return false, fmt.Errorf("mark alerted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark alerted rows: %w", err)
	}
	return n > 0, nil
}

// ---- records ----

func (r *SQLiteRepository) CreateRecord(ctx context.Context, rec core.Record) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO records (user_id, kind, category, description, note, amount_cents, record_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.UserID, string(rec.Kind), rec.Category, rec.Description, rec.Note,
		rec.Amount.Cents, rec.Date.Format(dateLayout))
	if err != nil {
		return 0, fmt.Errorf("create record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("record id: %w", err)
	}

	slog.InfoContext(ctx, "Record saved",
		"id", id,
		"user_id", rec.UserID,
		"kind", rec.Kind,
		"amount_cents", rec.Amount.Cents)

	return id, nil
}

func (r *SQLiteRepository) GetRecord(ctx context.Context, userID string, id int64) (core.Record, error) {
	var (
		rec     core.Record
		kind    string
		rawDate string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, kind, category, description, note, amount_cents, record_date
		 FROM records WHERE id = ? AND user_id = ? AND deleted_at IS NULL`, id, userID).
		Scan(&rec.ID, &rec.UserID, &kind, &rec.Category, &rec.Description, &rec.Note,
			&rec.Amount.Cents, &rawDate)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Record{}, ErrRecordNotFound
	}
	if err != nil {
		return core.Record{}, fmt.Errorf("get record: %w", err)
	}
	rec.Kind = core.Kind(kind)
	rec.Date, err = time.Parse(dateLayout, rawDate)
	if err != nil {
		return core.Record{}, fmt.Errorf("parse record date %q: %w", rawDate, err)
	}
	return rec, nil
}

func (r *SQLiteRepository) UpdateRecord(ctx context.Context, rec core.Record) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE records SET kind = ?, category = ?, description = ?, note = ?,
		        amount_cents = ?, record_date = ?, updated_at = datetime('now')
		 WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		string(rec.Kind), rec.Category, rec.Description, rec.Note,
		rec.Amount.Cents, rec.Date.Format(dateLayout), rec.ID, rec.UserID)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	return requireRow(res, ErrRecordNotFound)
}

func (r *SQLiteRepository) SoftDeleteRecord(ctx context.Context, userID string, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE records SET deleted_at = datetime('now')
		 WHERE id = ? AND user_id = ? AND deleted_at IS NULL`, id, userID)
	if err != nil {
		return fmt.Errorf("soft delete record: %w", err)
	}
	return requireRow(res, ErrRecordNotFound)
}

// BulkSoftDeleteRecords soft-deletes the given ids owned by userID and
// returns how many rows were actually deleted. IDs belonging to other
// users or already deleted are silently skipped.
func (r *SQLiteRepository) BulkSoftDeleteRecords(ctx context.Context, userID string, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, userID)

	res, err := r.db.ExecContext(ctx,
		`UPDATE records SET deleted_at = datetime('now')
		 WHERE id IN (`+placeholders+`) AND user_id = ? AND deleted_at IS NULL`, args...)
	if err != nil {
		return 0, fmt.Errorf("bulk soft delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bulk soft delete rows: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) ListRecords(ctx context.Context, userID string) ([]core.Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, kind, category, description, note, amount_cents, record_date
		 FROM records WHERE user_id = ? AND deleted_at IS NULL
		 ORDER BY record_date DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []core.Record
	for rows.Next() {
		var (
			rec     core.Record
			kind    string
			rawDate string
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &kind, &rec.Category, &rec.Description,
			&rec.Note, &rec.Amount.Cents, &rawDate); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Kind = core.Kind(kind)
		rec.Date, err = time.Parse(dateLayout, rawDate)
		if err != nil {
			return nil, fmt.Errorf("parse record date %q: %w", rawDate, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MonthlyTotals sums income and expense over the user's non-deleted
// records dated within [first of month, first of next month). An empty
// month yields zero totals, not an error.
func (r *SQLiteRepository) MonthlyTotals(ctx context.Context, userID string, month, year int) (core.MonthlyTotals, error) {
	start, end := core.MonthWindow(year, month)

	var totals core.MonthlyTotals
	err := r.db.QueryRowContext(ctx,
		`SELECT
		    COALESCE(SUM(CASE WHEN kind = 'income' THEN amount_cents ELSE 0 END), 0),
		    COALESCE(SUM(CASE WHEN kind = 'expense' THEN amount_cents ELSE 0 END), 0)
		 FROM records
		 WHERE user_id = ? AND deleted_at IS NULL
		   AND record_date >= ? AND record_date < ?`,
		userID, start.Format(dateLayout), end.Format(dateLayout)).
		Scan(&totals.Income.Cents, &totals.Expense.Cents)
	if err != nil {
		return core.MonthlyTotals{}, fmt.Errorf("monthly totals: %w", err)
	}
	return totals, nil
}

// Leaderboard ranks every active user by lifetime expense total,
// highest spender first. Ties break on user id so the order is stable.
func (r *SQLiteRepository) Leaderboard(ctx context.Context) ([]core.LeaderboardEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT u.id, u.name,
		    COALESCE(SUM(CASE WHEN r.kind = 'expense' AND r.deleted_at IS NULL
		                      THEN r.amount_cents ELSE 0 END), 0) AS total
		 FROM users u
		 LEFT JOIN records r ON r.user_id = u.id
		 WHERE u.deleted_at IS NULL
		 GROUP BY u.id, u.name
		 ORDER BY total DESC, u.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	var out []core.LeaderboardEntry
	for rows.Next() {
		var entry core.LeaderboardEntry
		if err := rows.Scan(&entry.UserID, &entry.Name, &entry.TotalExpenses.Cents); err != nil {
			return nil, fmt.Errorf("scan leaderboard entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return missing
	}
	return nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
