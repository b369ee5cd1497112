package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nvandessel/neurodemo/internal/neuron"

	_ "modernc.org/sqlite" // SQLite driver
)

// DBFile is the session database file name.
const DBFile = "sessions.db"

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

var (
	// ErrSessionNotFound is returned when a session ID does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNoActiveSession is returned when recording without a started session.
	ErrNoActiveSession = errors.New("no active session")
)

// Event kinds stored in the events table.
const (
	KindStimulate  = "stimulate"
	KindBlocked    = "blocked"
	KindFire       = "fire"
	KindDeactivate = "deactivate"
	KindReset      = "reset"
	KindParams     = "params"
)

// Session is one recorded run. Params are the values the session started
// with; later changes are stored as params events.
type Session struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
	Params    neuron.Params `json:"params"`
	Events    int           `json:"events"`
}

// Event is one recorded model event.
type Event struct {
	Seq   int64         `json:"seq"`
	At    time.Time     `json:"at"`
	Kind  string        `json:"kind"`
	Node  neuron.NodeID `json:"node,omitempty"`
	Level float64       `json:"level"`

	// Params is set on params events only.
	Params *neuron.Params `json:"params,omitempty"`
}

// SessionStore persists session traces in SQLite. It records into one
// active session at a time and is safe for concurrent use.
type SessionStore struct {
	mu      sync.Mutex
	db      *sql.DB
	path    string
	current string
	seq     int64
}

// Open opens (creating if needed) dir/sessions.db.
func Open(dir string) (*SessionStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dir, DBFile)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with single writer
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SessionStore{db: db, path: dbPath}, nil
}

// Path returns the database file path.
func (s *SessionStore) Path() string {
	return s.path
}

// StartSession begins a new session and makes it the recording target.
func (s *SessionStore) StartSession(ctx context.Context, at time.Time, params neuron.Params) (string, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode params: %w", err)
	}

	id := uuid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, started_at, params) VALUES (?, ?, ?)`,
		id, formatTime(at), string(paramsJSON))
	if err != nil {
		return "", fmt.Errorf("failed to insert session: %w", err)
	}

	s.current = id
	s.seq = 0
	return id, nil
}

// EndSession stamps the active session's end time and stops recording.
func (s *SessionStore) EndSession(ctx context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == "" {
		return ErrNoActiveSession
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ? WHERE id = ?`, formatTime(at), s.current)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}

	s.current = ""
	return nil
}

// RecordStimulus stores a stimulation outcome in the active session.
func (s *SessionStore) RecordStimulus(ctx context.Context, at time.Time, res neuron.StimulusResult) error {
	kind := KindStimulate
	if !res.Applied {
		kind = KindBlocked
	}
	return s.insert(ctx, []Event{{At: at, Kind: kind, Node: res.Node, Level: res.Level}})
}

// RecordTick stores what a tick changed: a firing, each deactivation, and a
// reset, in that order. Ticks that changed nothing store nothing.
func (s *SessionStore) RecordTick(ctx context.Context, at time.Time, res neuron.TickResult) error {
	var events []Event
	if res.Fired {
		events = append(events, Event{At: at, Kind: KindFire, Node: neuron.Output, Level: res.Level})
	}
	for _, id := range res.Deactivated {
		events = append(events, Event{At: at, Kind: KindDeactivate, Node: id, Level: res.Level})
	}
	if res.Reset {
		events = append(events, Event{At: at, Kind: KindReset, Node: neuron.Output, Level: res.Level})
	}
	if len(events) == 0 {
		return nil
	}
	return s.insert(ctx, events)
}

// RecordParams stores a mid-session parameter change. Level holds the new
// activation threshold and the event carries the full parameter set.
func (s *SessionStore) RecordParams(ctx context.Context, at time.Time, params neuron.Params) error {
	return s.insert(ctx, []Event{{At: at, Kind: KindParams, Level: params.ActivationThreshold, Params: &params}})
}

func (s *SessionStore) insert(ctx context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == "" {
		return ErrNoActiveSession
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	seq := s.seq
	for _, e := range events {
		var detail sql.NullString
		if e.Params != nil {
			data, err := json.Marshal(e.Params)
			if err != nil {
				return fmt.Errorf("failed to encode event params: %w", err)
			}
			detail = nullString(string(data))
		}

		seq++
		_, err := tx.ExecContext(ctx,
			`INSERT INTO events (session_id, seq, at, kind, node, level, detail) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			s.current, seq, formatTime(e.At), e.Kind, nullString(string(e.Node)), e.Level, detail)
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit events: %w", err)
	}
	s.seq = seq
	return nil
}

// ListSessions returns all sessions, newest first, with their event counts.
func (s *SessionStore) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.started_at, s.ended_at, s.params,
		       (SELECT COUNT(*) FROM events e WHERE e.session_id = s.id)
		FROM sessions s
		ORDER BY s.started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// GetSession returns one session by ID.
func (s *SessionStore) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.started_at, s.ended_at, s.params,
		       (SELECT COUNT(*) FROM events e WHERE e.session_id = s.id)
		FROM sessions s
		WHERE s.id = ?`, id)

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, err
}

// Events returns a session's events in recording order.
func (s *SessionStore) Events(ctx context.Context, sessionID string) ([]Event, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, at, kind, node, level, detail FROM events WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e      Event
			at     string
			node   sql.NullString
			detail sql.NullString
		)
		if err := rows.Scan(&e.Seq, &at, &e.Kind, &node, &e.Level, &detail); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if e.At, err = parseTime(at); err != nil {
			return nil, err
		}
		e.Node = neuron.NodeID(node.String)
		if detail.Valid {
			e.Params = &neuron.Params{}
			if err := json.Unmarshal([]byte(detail.String), e.Params); err != nil {
				return nil, fmt.Errorf("failed to decode event params: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close closes the database.
func (s *SessionStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		sess      Session
		startedAt string
		endedAt   sql.NullString
		params    string
	)
	if err := row.Scan(&sess.ID, &startedAt, &endedAt, &params, &sess.Events); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	var err error
	if sess.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		t, err := parseTime(endedAt.String)
		if err != nil {
			return nil, err
		}
		sess.EndedAt = &t
	}
	if err := json.Unmarshal([]byte(params), &sess.Params); err != nil {
		return nil, fmt.Errorf("failed to decode session params: %w", err)
	}
	return &sess, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
