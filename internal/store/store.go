package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"weatherpro/internal/models"

	_ "modernc.org/sqlite"
)

// MaxLocationsPerUser caps how many places one account may save.
const MaxLocationsPerUser = 5

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrLocationLimit is returned when a user already holds the maximum
	// number of saved locations.
	ErrLocationLimit = errors.New("location limit reached")
)

// Store wraps the SQLite database connection and schema lifecycle.
type Store struct {
	db *sql.DB
}

// Open initializes the database connection, creating directories as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks database reachability. Used by the health handler.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InitSchema ensures baseline tables exist.
func (s *Store) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		);`,
		`CREATE TABLE IF NOT EXISTS user_locations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			location TEXT NOT NULL,
			display_name TEXT NOT NULL,
			latitude REAL,
			longitude REAL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		);`,
		`CREATE TABLE IF NOT EXISTS weather_alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			location TEXT NOT NULL,
			alert_type TEXT NOT NULL,
			condition_type TEXT NOT NULL,
			threshold_value REAL NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			last_triggered TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		);`,
		`CREATE INDEX IF NOT EXISTS idx_weather_alerts_location ON weather_alerts(location, is_active);`,
		`CREATE TABLE IF NOT EXISTS weather_cache (
			location TEXT PRIMARY KEY,
			weather_data TEXT NOT NULL,
			cached_at TEXT NOT NULL
		);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// CreateUser inserts a new account and returns its id. Username and email
// are unique; violations surface as an error.
func (s *Store) CreateUser(ctx context.Context, username, email, passwordHash string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash) VALUES (?, ?, ?)`,
		username, email, passwordHash)
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create user id: %w", err)
	}
	return id, nil
}

// GetUserByUsername returns the account for username, or ErrNotFound.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	var u models.User
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, created_at FROM users WHERE username = ?`,
		username).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = parseTime(created)
	return u, nil
}

// SaveLocation inserts a saved location for a user, enforcing the per-user
// cap. Returns ErrLocationLimit when the cap is already reached.
func (s *Store) SaveLocation(ctx context.Context, loc models.Location) (int64, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_locations WHERE user_id = ?`, loc.UserID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count locations: %w", err)
	}
	if count >= MaxLocationsPerUser {
		return 0, ErrLocationLimit
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO user_locations (user_id, location, display_name, latitude, longitude) VALUES (?, ?, ?, ?, ?)`,
		loc.UserID, loc.Name, loc.DisplayName, loc.Latitude, loc.Longitude)
	if err != nil {
		return 0, fmt.Errorf("save location: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("save location id: %w", err)
	}
	return id, nil
}

// ListLocations returns a user's saved locations, newest first.
func (s *Store) ListLocations(ctx context.Context, userID int64) ([]models.Location, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, location, display_name, latitude, longitude
		 FROM user_locations WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	var out []models.Location
	for rows.Next() {
		var l models.Location
		if err := rows.Scan(&l.ID, &l.UserID, &l.Name, &l.DisplayName, &l.Latitude, &l.Longitude); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeleteLocation removes a saved location by id.
func (s *Store) DeleteLocation(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_locations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete location: %w", err)
	}
	return nil
}

// ListTrackedLocations returns the distinct location names any user has
// saved. Feeds the periodic refresh sweep.
func (s *Store) ListTrackedLocations(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT location FROM user_locations`)
	if err != nil {
		return nil, fmt.Errorf("list tracked locations: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan tracked location: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// CreateAlert inserts an active alert rule and returns its id.
func (s *Store) CreateAlert(ctx context.Context, rule models.AlertRule) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO weather_alerts (user_id, location, alert_type, condition_type, threshold_value, is_active) VALUES (?, ?, ?, ?, ?, 1)`,
		rule.UserID, rule.Location, string(rule.Metric), string(rule.Comparator), rule.Threshold)
	if err != nil {
		return 0, fmt.Errorf("create alert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create alert id: %w", err)
	}
	return id, nil
}

// ListAlertsByUser returns a user's active alert rules, newest first.
func (s *Store) ListAlertsByUser(ctx context.Context, userID int64) ([]models.AlertRule, error) {
	return s.queryAlerts(ctx,
		`SELECT id, user_id, location, alert_type, condition_type, threshold_value, is_active, last_triggered
		 FROM weather_alerts WHERE user_id = ? AND is_active = 1 ORDER BY created_at DESC`, userID)
}

// ListActiveAlerts returns the active rules scoped to a location, in
// insertion order. This is the evaluator's read path.
func (s *Store) ListActiveAlerts(ctx context.Context, location string) ([]models.AlertRule, error) {
	return s.queryAlerts(ctx,
		`SELECT id, user_id, location, alert_type, condition_type, threshold_value, is_active, last_triggered
		 FROM weather_alerts WHERE location = ? AND is_active = 1 ORDER BY id`, location)
}

func (s *Store) queryAlerts(ctx context.Context, query string, arg any) ([]models.AlertRule, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []models.AlertRule
	for rows.Next() {
		var r models.AlertRule
		var metric, comparator string
		var active int
		var triggered sql.NullString
		if err := rows.Scan(&r.ID, &r.UserID, &r.Location, &metric, &comparator, &r.Threshold, &active, &triggered); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		r.Metric = models.Metric(metric)
		r.Comparator = models.Comparator(comparator)
		r.Active = active != 0
		if triggered.Valid {
			ts := parseTime(triggered.String)
			r.LastTriggered = &ts
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeactivateAlert soft-deletes an alert rule by clearing is_active.
func (s *Store) DeactivateAlert(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE weather_alerts SET is_active = 0 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deactivate alert: %w", err)
	}
	return nil
}

// MarkTriggered stamps last_triggered for a rule. Called only by the alert
// evaluator; concurrent stamps race benignly (both write "now").
func (s *Store) MarkTriggered(ctx context.Context, id int64, ts time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE weather_alerts SET last_triggered = ? WHERE id = ?`,
		formatTime(ts), id); err != nil {
		return fmt.Errorf("mark triggered: %w", err)
	}
	return nil
}

// GetCache returns the cache row for a location. The freshness decision
// belongs to the caller; this is a plain lookup.
func (s *Store) GetCache(ctx context.Context, location string) (json.RawMessage, time.Time, bool, error) {
	var data string
	var cached string
	err := s.db.QueryRowContext(ctx,
		`SELECT weather_data, cached_at FROM weather_cache WHERE location = ?`,
		location).Scan(&data, &cached)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("get cache: %w", err)
	}
	return json.RawMessage(data), parseTime(cached), true, nil
}

// PutCache upserts the cache row for a location. Last write wins; there is
// no version check and no history.
func (s *Store) PutCache(ctx context.Context, location string, payload json.RawMessage, fetchedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO weather_cache (location, weather_data, cached_at) VALUES (?, ?, ?)
		 ON CONFLICT(location) DO UPDATE SET weather_data = excluded.weather_data, cached_at = excluded.cached_at`,
		location, string(payload), formatTime(fetchedAt))
	if err != nil {
		return fmt.Errorf("put cache: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
