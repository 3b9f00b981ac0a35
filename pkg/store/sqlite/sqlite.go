// Package sqlite implements store.SessionStore on SQLite.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jxucoder/latexgen/pkg/model"
	"github.com/jxucoder/latexgen/pkg/store"
)

// Store persists sessions, versions and events in a SQLite database.
type Store struct {
	db *sql.DB
}

var _ store.SessionStore = (*Store)(nil)

// New opens (or creates) a SQLite database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id              TEXT PRIMARY KEY,
			document_name   TEXT NOT NULL,
			original_prompt TEXT NOT NULL DEFAULT '',
			current_version INTEGER NOT NULL DEFAULT 0,
			created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
			updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS versions (
			session_id         TEXT NOT NULL,
			number             INTEGER NOT NULL,
			latex              TEXT NOT NULL,
			change_description TEXT NOT NULL DEFAULT '',
			created_at         DATETIME NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY (session_id, number),
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		);

		CREATE TABLE IF NOT EXISTS session_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			type       TEXT NOT NULL,
			data       TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT (datetime('now')),
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		);

		CREATE INDEX IF NOT EXISTS idx_events_session_id
			ON session_events(session_id);
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession inserts a new session.
func (s *Store) CreateSession(sess *model.Session) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, document_name, original_prompt, current_version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.DocumentName, sess.OriginalPrompt, sess.CurrentVersion,
		sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting session %s: %w", sess.ID, err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(id string) (*model.Session, error) {
	row := s.db.QueryRow(
		`SELECT id, document_name, original_prompt, current_version, created_at, updated_at
		 FROM sessions WHERE id = ?`, id,
	)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	return sess, err
}

// ListSessions returns all sessions, most recently updated first.
func (s *Store) ListSessions() ([]*model.Session, error) {
	rows, err := s.db.Query(
		`SELECT id, document_name, original_prompt, current_version, created_at, updated_at
		 FROM sessions ORDER BY updated_at DESC, id ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// UpdateSession updates the mutable fields of a session and bumps UpdatedAt.
func (s *Store) UpdateSession(sess *model.Session) error {
	sess.UpdatedAt = time.Now().UTC()
	res, err := s.db.Exec(
		`UPDATE sessions SET document_name = ?, current_version = ?, updated_at = ?
		 WHERE id = ?`,
		sess.DocumentName, sess.CurrentVersion, sess.UpdatedAt, sess.ID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %s: %w", sess.ID, store.ErrNotFound)
	}
	return nil
}

// AddVersion inserts a version. Numbers are unique per session.
func (s *Store) AddVersion(v *model.Version) error {
	_, err := s.db.Exec(
		`INSERT INTO versions (session_id, number, latex, change_description, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		v.SessionID, v.Number, v.LaTeX, v.ChangeDescription, v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting version %d of %s: %w", v.Number, v.SessionID, err)
	}
	return nil
}

// AppendVersion inserts v and advances the session to it atomically.
func (s *Store) AppendVersion(v *model.Version) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var current int
	err = tx.QueryRow(`SELECT current_version FROM sessions WHERE id = ?`, v.SessionID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("session %s: %w", v.SessionID, store.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if v.Number != current+1 {
		return fmt.Errorf("session %s is at version %d, cannot append %d: %w",
			v.SessionID, current, v.Number, store.ErrVersionConflict)
	}

	if _, err := tx.Exec(
		`INSERT INTO versions (session_id, number, latex, change_description, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		v.SessionID, v.Number, v.LaTeX, v.ChangeDescription, v.CreatedAt,
	); err != nil {
		return fmt.Errorf("inserting version %d of %s: %w", v.Number, v.SessionID, err)
	}
	if _, err := tx.Exec(
		`UPDATE sessions SET current_version = ?, updated_at = ? WHERE id = ?`,
		v.Number, v.CreatedAt, v.SessionID,
	); err != nil {
		return fmt.Errorf("advancing session %s: %w", v.SessionID, err)
	}
	return tx.Commit()
}

// GetVersion retrieves one version of a session.
func (s *Store) GetVersion(sessionID string, number int) (*model.Version, error) {
	row := s.db.QueryRow(
		`SELECT session_id, number, latex, change_description, created_at
		 FROM versions WHERE session_id = ? AND number = ?`,
		sessionID, number,
	)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("version %d of %s: %w", number, sessionID, store.ErrNotFound)
	}
	return v, err
}

// ListVersions returns a session's versions in ascending order.
func (s *Store) ListVersions(sessionID string) ([]*model.Version, error) {
	rows, err := s.db.Query(
		`SELECT session_id, number, latex, change_description, created_at
		 FROM versions WHERE session_id = ? ORDER BY number ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []*model.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// AddEvent inserts a new event and sets its ID.
func (s *Store) AddEvent(event *model.Event) error {
	result, err := s.db.Exec(
		`INSERT INTO session_events (session_id, type, data, created_at)
		 VALUES (?, ?, ?, ?)`,
		event.SessionID, event.Type, event.Data, event.CreatedAt,
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	event.ID = id
	return nil
}

// GetEvents returns events for a session with an ID greater than afterID.
func (s *Store) GetEvents(sessionID string, afterID int64) ([]*model.Event, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, type, data, created_at
		 FROM session_events
		 WHERE session_id = ? AND id > ?
		 ORDER BY id ASC`,
		sessionID, afterID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		e := &model.Event{}
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Type, &e.Data, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Scan helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanSession(row scannable) (*model.Session, error) {
	sess := &model.Session{}
	err := row.Scan(
		&sess.ID, &sess.DocumentName, &sess.OriginalPrompt, &sess.CurrentVersion,
		&sess.CreatedAt, &sess.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func scanVersion(row scannable) (*model.Version, error) {
	v := &model.Version{}
	if err := row.Scan(&v.SessionID, &v.Number, &v.LaTeX, &v.ChangeDescription, &v.CreatedAt); err != nil {
		return nil, err
	}
	return v, nil
}
