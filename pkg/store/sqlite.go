package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/keralanet/floodwatch/pkg/model"

	_ "modernc.org/sqlite"
)

const dayFormat = "2006-01-02"

// SQLite implements the Store interface using an SQLite database.
type SQLite struct {
	db    *sql.DB
	clock clockwork.Clock
}

// NewSQLite opens or creates an SQLite database at the given path.
func NewSQLite(dbPath string) (*SQLite, error) {
	return NewSQLiteWithClock(dbPath, clockwork.NewRealClock())
}

// NewSQLiteWithClock opens a store with an injected time source, letting
// tests freeze the cool-down clock.
func NewSQLiteWithClock(dbPath string, clock clockwork.Clock) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db, clock: clock}, nil
}

func (s *SQLite) Record(ctx context.Context, alert *model.Alert) (*model.Alert, bool, error) {
	if !alert.Level.Valid() {
		return nil, false, fmt.Errorf("invalid alert level %q", alert.Level)
	}

	asOf := model.DayKey(alert.AsOfDate).Format(dayFormat)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin record: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanAlert(tx.QueryRowContext(ctx,
		selectAlert+` WHERE district = ? AND alert_level = ? AND as_of_date = ?`,
		alert.District, alert.Level, asOf))
	if err != nil && err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("check existing alert: %w", err)
	}
	if err == nil {
		return existing, false, tx.Commit()
	}

	stored := *alert
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.clock.Now().UTC()
	}
	stored.AsOfDate = model.DayKey(alert.AsOfDate)
	stored.Notified = false

	_, err = tx.ExecContext(ctx,
		`INSERT INTO alerts (id, district, alert_level, confidence, latitude, longitude, as_of_date, created_at, notified)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		stored.ID, stored.District, stored.Level, stored.Confidence,
		stored.Latitude, stored.Longitude, asOf, stored.CreatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert alert: %w", err)
	}
	return &stored, true, tx.Commit()
}

func (s *SQLite) Latest(ctx context.Context, district model.District) (*model.Alert, error) {
	alert, err := scanAlert(s.db.QueryRowContext(ctx,
		selectAlert+` WHERE district = ? ORDER BY created_at DESC, as_of_date DESC LIMIT 1`,
		district))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest alert for %s: %w", district, err)
	}
	return alert, nil
}

func (s *SQLite) ShouldNotify(ctx context.Context, district model.District, level model.AlertLevel, cooldown time.Duration) (bool, error) {
	last, err := scanAlert(s.db.QueryRowContext(ctx,
		selectAlert+` WHERE district = ? AND notified = 1 ORDER BY created_at DESC LIMIT 1`,
		district))
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("last notified alert for %s: %w", district, err)
	}

	if s.clock.Now().UTC().Sub(last.CreatedAt) >= cooldown {
		return true, nil
	}

	// Inside the cool-down window only a severity escalation may notify;
	// repeats and downgrades are suppressed to avoid flapping.
	return level.Severity() > last.Level.Severity(), nil
}

func (s *SQLite) MarkNotified(ctx context.Context, alertID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET notified = 1 WHERE id = ?`, alertID)
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("alert %q not found", alertID)
	}
	return nil
}

func (s *SQLite) RecordAttempt(ctx context.Context, attempt *model.DeliveryAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}
	if attempt.AttemptedAt.IsZero() {
		attempt.AttemptedAt = s.clock.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO delivery_attempts (id, alert_id, channel, success, error, attempted_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		attempt.ID, attempt.AlertID, attempt.Channel, attempt.Success, attempt.Error, attempt.AttemptedAt,
	)
	if err != nil {
		return fmt.Errorf("insert delivery attempt: %w", err)
	}
	return nil
}

func (s *SQLite) Attempts(ctx context.Context, alertID string) ([]model.DeliveryAttempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, alert_id, channel, success, error, attempted_at
		 FROM delivery_attempts WHERE alert_id = ? ORDER BY attempted_at ASC`, alertID)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []model.DeliveryAttempt
	for rows.Next() {
		var a model.DeliveryAttempt
		if err := rows.Scan(&a.ID, &a.AlertID, &a.Channel, &a.Success, &a.Error, &a.AttemptedAt); err != nil {
			return nil, fmt.Errorf("scan attempt row: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func (s *SQLite) List(ctx context.Context, filter Filter) ([]model.Alert, error) {
	query := selectAlert
	where, args := buildWhereClause(filter)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

func (s *SQLite) Current(ctx context.Context) ([]model.Alert, error) {
	rows, err := s.db.QueryContext(ctx, selectAlert+`
		 WHERE id IN (
			SELECT id FROM alerts a
			WHERE created_at = (SELECT MAX(created_at) FROM alerts b WHERE b.district = a.district)
		 )
		 ORDER BY district ASC`)
	if err != nil {
		return nil, fmt.Errorf("current alerts: %w", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

func (s *SQLite) CountByLevel(ctx context.Context, since time.Time) (map[model.AlertLevel]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT alert_level, COUNT(*) FROM alerts WHERE created_at >= ? GROUP BY alert_level`,
		since.UTC())
	if err != nil {
		return nil, fmt.Errorf("count alerts by level: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.AlertLevel]int64)
	for rows.Next() {
		var level model.AlertLevel
		var n int64
		if err := rows.Scan(&level, &n); err != nil {
			return nil, fmt.Errorf("scan level count: %w", err)
		}
		counts[level] = n
	}
	return counts, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

const selectAlert = `SELECT id, district, alert_level, confidence, latitude, longitude, as_of_date, created_at, notified FROM alerts`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*model.Alert, error) {
	var a model.Alert
	var asOf string
	if err := row.Scan(&a.ID, &a.District, &a.Level, &a.Confidence,
		&a.Latitude, &a.Longitude, &asOf, &a.CreatedAt, &a.Notified); err != nil {
		return nil, err
	}
	day, err := time.Parse(dayFormat, asOf)
	if err != nil {
		return nil, fmt.Errorf("parse as_of_date %q: %w", asOf, err)
	}
	a.AsOfDate = day
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

func scanAlerts(rows *sql.Rows) ([]model.Alert, error) {
	var alerts []model.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// buildWhereClause constructs a SQL WHERE clause from a Filter.
func buildWhereClause(filter Filter) (string, []any) {
	var conditions []string
	var args []any

	if filter.District != "" {
		conditions = append(conditions, "district = ?")
		args = append(args, filter.District)
	}
	if filter.Level != "" {
		conditions = append(conditions, "alert_level = ?")
		args = append(args, filter.Level)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.Since.UTC())
	}

	return strings.Join(conditions, " AND "), args
}
