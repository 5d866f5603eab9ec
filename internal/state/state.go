package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/japanese-wolf/brain-stream/internal/core"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists bandit arms, the action log and per-source fetch state in a
// single SQLite database (state.db under the data directory).
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the state database under dataDir.
func NewStore(dataDir string) (*Store, error) {
	// Ensure data directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "state.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{
		db:   db,
		path: dbPath,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

// initialize creates the necessary tables
func (s *Store) initialize() error {
	armsTable := `
	CREATE TABLE IF NOT EXISTS cluster_arms (
		cluster_id INTEGER PRIMARY KEY,
		alpha REAL NOT NULL DEFAULT 1.0,
		beta REAL NOT NULL DEFAULT 1.0,
		article_count INTEGER NOT NULL DEFAULT 0,
		label TEXT NOT NULL DEFAULT '',
		updated_at DATETIME
	);`

	actionsTable := `
	CREATE TABLE IF NOT EXISTS action_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		article_id TEXT NOT NULL,
		action TEXT NOT NULL,
		cluster_id INTEGER NOT NULL,
		created_at DATETIME
	);`

	sourcesTable := `
	CREATE TABLE IF NOT EXISTS data_sources (
		plugin_name TEXT PRIMARY KEY,
		last_fetched_at DATETIME,
		fetch_status TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		updated_at DATETIME
	);`

	tables := []string{armsTable, actionsTable, sourcesTable}
	for _, table := range tables {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertArm creates the arm for a cluster with uniform priors (alpha=1,
// beta=1) if it does not exist, and refreshes its article count. Existing
// alpha/beta values are preserved so reclustering never resets rewards.
func (s *Store) UpsertArm(clusterID int, articleCount int) error {
	query := `
	INSERT INTO cluster_arms (cluster_id, alpha, beta, article_count, label, updated_at)
	VALUES (?, 1.0, 1.0, ?, '', ?)
	ON CONFLICT(cluster_id) DO UPDATE SET
		article_count = excluded.article_count,
		updated_at = excluded.updated_at`

	_, err := s.db.Exec(query, clusterID, articleCount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert arm %d: %w", clusterID, err)
	}
	return nil
}

// Arm returns the arm for a cluster, or (nil, nil) when none exists.
func (s *Store) Arm(clusterID int) (*core.ClusterArm, error) {
	query := `
	SELECT cluster_id, alpha, beta, article_count, label, updated_at
	FROM cluster_arms
	WHERE cluster_id = ?`

	row := s.db.QueryRow(query, clusterID)

	arm, err := scanArm(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan arm: %w", err)
	}
	return arm, nil
}

// Arms returns all arms ordered by cluster id.
func (s *Store) Arms() ([]core.ClusterArm, error) {
	query := `
	SELECT cluster_id, alpha, beta, article_count, label, updated_at
	FROM cluster_arms
	ORDER BY cluster_id`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query arms: %w", err)
	}
	defer rows.Close()

	var arms []core.ClusterArm
	for rows.Next() {
		arm, err := scanArm(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan arm: %w", err)
		}
		arms = append(arms, *arm)
	}
	return arms, rows.Err()
}

// RewardArm applies one Bernoulli observation to a cluster's arm: alpha+1 on
// a positive action, beta+1 on a negative one. An arm missing from the table
// is created with uniform priors first.
func (s *Store) RewardArm(clusterID int, positive bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	insert := `
	INSERT INTO cluster_arms (cluster_id, alpha, beta, article_count, label, updated_at)
	VALUES (?, 1.0, 1.0, 0, '', ?)
	ON CONFLICT(cluster_id) DO NOTHING`
	if _, err := tx.Exec(insert, clusterID, now); err != nil {
		return fmt.Errorf("failed to ensure arm %d: %w", clusterID, err)
	}

	column := "beta"
	if positive {
		column = "alpha"
	}
	update := fmt.Sprintf(`UPDATE cluster_arms SET %s = %s + 1.0, updated_at = ? WHERE cluster_id = ?`, column, column)
	if _, err := tx.Exec(update, now, clusterID); err != nil {
		return fmt.Errorf("failed to reward arm %d: %w", clusterID, err)
	}

	return tx.Commit()
}

// SetArmLabel attaches a human-readable topic label to an arm.
func (s *Store) SetArmLabel(clusterID int, label string) error {
	_, err := s.db.Exec(`UPDATE cluster_arms SET label = ?, updated_at = ? WHERE cluster_id = ?`,
		label, time.Now().UTC(), clusterID)
	if err != nil {
		return fmt.Errorf("failed to label arm %d: %w", clusterID, err)
	}
	return nil
}

// LogAction appends one entry to the action log and returns its row id.
// Callers must log before touching the arm so the history stays complete.
func (s *Store) LogAction(articleID string, action string, clusterID int) (int64, error) {
	res, err := s.db.Exec(`
	INSERT INTO action_logs (article_id, action, cluster_id, created_at)
	VALUES (?, ?, ?, ?)`,
		articleID, action, clusterID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to log action: %w", err)
	}
	return res.LastInsertId()
}

// RecentActions returns the newest action log entries, most recent first.
func (s *Store) RecentActions(limit int) ([]core.ActionLogEntry, error) {
	rows, err := s.db.Query(`
	SELECT id, article_id, action, cluster_id, created_at
	FROM action_logs
	ORDER BY id DESC
	LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer rows.Close()

	var entries []core.ActionLogEntry
	for rows.Next() {
		var e core.ActionLogEntry
		var created sql.NullTime
		if err := rows.Scan(&e.ID, &e.ArticleID, &e.Action, &e.ClusterID, &created); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		e.CreatedAt = created.Time
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ActionCount returns the total number of logged actions.
func (s *Store) ActionCount() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM action_logs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count actions: %w", err)
	}
	return n, nil
}

// MarkSourceFetched records a successful fetch for a plugin.
func (s *Store) MarkSourceFetched(pluginName string, at time.Time) error {
	query := `
	INSERT INTO data_sources (plugin_name, last_fetched_at, fetch_status, error_message, updated_at)
	VALUES (?, ?, 'healthy', '', ?)
	ON CONFLICT(plugin_name) DO UPDATE SET
		last_fetched_at = excluded.last_fetched_at,
		fetch_status = 'healthy',
		error_message = '',
		updated_at = excluded.updated_at`

	_, err := s.db.Exec(query, pluginName, at.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark source fetched: %w", err)
	}
	return nil
}

// MarkSourceError records a failed fetch for a plugin. The last successful
// fetch time is kept so the next run still gets a sensible since value.
func (s *Store) MarkSourceError(pluginName string, message string) error {
	query := `
	INSERT INTO data_sources (plugin_name, last_fetched_at, fetch_status, error_message, updated_at)
	VALUES (?, NULL, 'error', ?, ?)
	ON CONFLICT(plugin_name) DO UPDATE SET
		fetch_status = 'error',
		error_message = excluded.error_message,
		updated_at = excluded.updated_at`

	_, err := s.db.Exec(query, pluginName, message, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark source error: %w", err)
	}
	return nil
}

// LastFetched returns the last successful fetch time for a plugin, zero when
// it never fetched.
func (s *Store) LastFetched(pluginName string) (time.Time, error) {
	var t sql.NullTime
	err := s.db.QueryRow(`SELECT last_fetched_at FROM data_sources WHERE plugin_name = ?`, pluginName).Scan(&t)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query last fetch: %w", err)
	}
	if !t.Valid {
		return time.Time{}, nil
	}
	return t.Time, nil
}

// SourceStatuses returns the persisted fetch state of all known plugins.
func (s *Store) SourceStatuses() ([]core.SourceStatus, error) {
	rows, err := s.db.Query(`
	SELECT plugin_name, last_fetched_at, fetch_status, error_message, updated_at
	FROM data_sources
	ORDER BY plugin_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var statuses []core.SourceStatus
	for rows.Next() {
		var st core.SourceStatus
		var fetched, updated sql.NullTime
		if err := rows.Scan(&st.PluginName, &fetched, &st.FetchStatus, &st.ErrorMessage, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		st.LastFetchedAt = fetched.Time
		st.UpdatedAt = updated.Time
		statuses = append(statuses, st)
	}
	return statuses, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArm(row rowScanner) (*core.ClusterArm, error) {
	var arm core.ClusterArm
	var updated sql.NullTime
	if err := row.Scan(&arm.ClusterID, &arm.Alpha, &arm.Beta, &arm.ArticleCount, &arm.Label, &updated); err != nil {
		return nil, err
	}
	arm.UpdatedAt = updated.Time
	return &arm, nil
}
