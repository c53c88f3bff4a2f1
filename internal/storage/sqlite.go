// Package storage persists call records, transcript turns, and post-call
// summaries in SQLite.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/callweave/callweave/internal/session"
)

const (
	SummaryPending   = "pending"
	SummaryRunning   = "running"
	SummaryCompleted = "completed"
	SummaryFailed    = "failed"
)

// Call is one persisted call record.
type Call struct {
	CallSID        string     `json:"call_sid"`
	ConversationID string     `json:"conversation_id"`
	FromNumber     string     `json:"from_number"`
	ToNumber       string     `json:"to_number"`
	CallerName     string     `json:"caller_name"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	Status         string     `json:"status"`
	Summary        string     `json:"summary"`
	SummaryStatus  string     `json:"summary_status"`
}

// TranscriptTurn is one persisted transcript entry.
type TranscriptTurn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "callweave.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS calls (
			call_sid TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			from_number TEXT NOT NULL DEFAULT '',
			to_number TEXT NOT NULL DEFAULT '',
			caller_name TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			ended_at TEXT,
			status TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			summary_status TEXT NOT NULL DEFAULT 'pending'
		);
	`); err != nil {
		return fmt.Errorf("create calls table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transcript_turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			call_sid TEXT NOT NULL,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			FOREIGN KEY(call_sid) REFERENCES calls(call_sid) ON DELETE CASCADE
		);
	`); err != nil {
		return fmt.Errorf("create transcript_turns table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS summary_requests (
			call_sid TEXT NOT NULL,
			prompt_hash TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(call_sid, prompt_hash)
		);
	`); err != nil {
		return fmt.Errorf("create summary_requests table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_calls_started_at ON calls(started_at)"); err != nil {
		return fmt.Errorf("create calls index: %w", err)
	}
	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_turns_call_sid ON transcript_turns(call_sid, id)"); err != nil {
		return fmt.Errorf("create transcript index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RegisterCallStart creates the call record and returns its conversation
// handle. Implements session.CallStore.
func (s *SQLiteStore) RegisterCallStart(callSID string, caller session.CallerIdentity) (string, error) {
	if strings.TrimSpace(callSID) == "" {
		return "", errors.New("call sid is required")
	}

	conversationID := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO calls(call_sid, conversation_id, from_number, to_number, started_at, status, summary_status)
		 VALUES(?, ?, ?, ?, ?, 'active', ?)`,
		callSID,
		conversationID,
		caller.From,
		caller.To,
		time.Now().UTC().Format(time.RFC3339Nano),
		SummaryPending,
	)
	if err != nil {
		return "", fmt.Errorf("register call %s: %w", callSID, err)
	}

	return conversationID, nil
}

// AppendTranscriptTurn persists one transcript entry in arrival order.
func (s *SQLiteStore) AppendTranscriptTurn(callSID, role, text string) error {
	_, err := s.db.Exec(
		`INSERT INTO transcript_turns(call_sid, role, text, timestamp) VALUES(?, ?, ?, ?)`,
		callSID,
		role,
		strings.TrimSpace(text),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append turn for call %s: %w", callSID, err)
	}
	return nil
}

// SetCallerName records a name learned during the call.
func (s *SQLiteStore) SetCallerName(callSID, name string) error {
	res, err := s.db.Exec(
		`UPDATE calls SET caller_name = ? WHERE call_sid = ?`,
		strings.TrimSpace(name),
		callSID,
	)
	if err != nil {
		return fmt.Errorf("set caller name for call %s: %w", callSID, err)
	}
	return requireRow(res)
}

// RegisterCallEnd marks the call record ended.
func (s *SQLiteStore) RegisterCallEnd(callSID string) error {
	res, err := s.db.Exec(
		`UPDATE calls SET ended_at = ?, status = 'ended' WHERE call_sid = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		callSID,
	)
	if err != nil {
		return fmt.Errorf("end call %s: %w", callSID, err)
	}
	return requireRow(res)
}

// UpdateSummary stores the summary text and status for a call.
func (s *SQLiteStore) UpdateSummary(callSID, summary, status string) error {
	res, err := s.db.Exec(
		`UPDATE calls SET summary = ?, summary_status = ? WHERE call_sid = ?`,
		summary,
		status,
		callSID,
	)
	if err != nil {
		return fmt.Errorf("update summary for call %s: %w", callSID, err)
	}
	return requireRow(res)
}

// ClaimSummaryRequest returns true if this caller won the right to summarize
// the given transcript. Duplicate claims for the same call and prompt hash
// are rejected by the unique index.
func (s *SQLiteStore) ClaimSummaryRequest(callSID, promptHash string) (bool, error) {
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO summary_requests(call_sid, prompt_hash) VALUES(?, ?)`,
		callSID,
		promptHash,
	)
	if err != nil {
		return false, fmt.Errorf("claim summary request for call %s: %w", callSID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim summary rows affected: %w", err)
	}
	return rows > 0, nil
}

// GetCall returns one call record.
func (s *SQLiteStore) GetCall(callSID string) (Call, error) {
	row := s.db.QueryRow(
		`SELECT call_sid, conversation_id, from_number, to_number, caller_name, started_at, ended_at, status, summary, summary_status
		 FROM calls WHERE call_sid = ?`,
		callSID,
	)
	return scanCall(row)
}

// GetCallsByDate lists calls started on the given UTC date (YYYY-MM-DD),
// newest first.
func (s *SQLiteStore) GetCallsByDate(date string) ([]Call, error) {
	rows, err := s.db.Query(
		`SELECT call_sid, conversation_id, from_number, to_number, caller_name, started_at, ended_at, status, summary, summary_status
		 FROM calls
		 WHERE substr(started_at, 1, 10) = ?
		 ORDER BY started_at DESC`,
		date,
	)
	if err != nil {
		return nil, fmt.Errorf("query calls by date %s: %w", date, err)
	}
	defer func() { _ = rows.Close() }()

	calls := make([]Call, 0, 16)
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call rows: %w", err)
	}
	return calls, nil
}

// GetDates lists the distinct UTC dates with at least one call, newest first.
func (s *SQLiteStore) GetDates() ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT substr(started_at, 1, 10) AS day FROM calls ORDER BY day DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query call dates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	dates := make([]string, 0, 8)
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("scan call date: %w", err)
		}
		dates = append(dates, day)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate date rows: %w", err)
	}
	return dates, nil
}

// GetTranscript returns the persisted turns for a call in insertion order.
func (s *SQLiteStore) GetTranscript(callSID string) ([]TranscriptTurn, error) {
	rows, err := s.db.Query(
		`SELECT role, text, timestamp FROM transcript_turns WHERE call_sid = ? ORDER BY id ASC`,
		callSID,
	)
	if err != nil {
		return nil, fmt.Errorf("query transcript for call %s: %w", callSID, err)
	}
	defer func() { _ = rows.Close() }()

	turns := make([]TranscriptTurn, 0, 32)
	for rows.Next() {
		var turn TranscriptTurn
		var ts string
		if err := rows.Scan(&turn.Role, &turn.Text, &ts); err != nil {
			return nil, fmt.Errorf("scan turn for call %s: %w", callSID, err)
		}

		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse turn timestamp for call %s: %w", callSID, err)
		}
		turn.Timestamp = parsed
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows for call %s: %w", callSID, err)
	}
	return turns, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (Call, error) {
	var call Call
	var startedAt string
	var endedAt sql.NullString
	if err := row.Scan(&call.CallSID, &call.ConversationID, &call.FromNumber, &call.ToNumber, &call.CallerName,
		&startedAt, &endedAt, &call.Status, &call.Summary, &call.SummaryStatus); err != nil {
		return Call{}, fmt.Errorf("scan call: %w", err)
	}

	parsedStart, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return Call{}, fmt.Errorf("parse started_at: %w", err)
	}
	call.StartedAt = parsedStart

	if endedAt.Valid {
		parsedEnd, err := time.Parse(time.RFC3339Nano, endedAt.String)
		if err != nil {
			return Call{}, fmt.Errorf("parse ended_at: %w", err)
		}
		call.EndedAt = &parsedEnd
	}

	return call, nil
}

func requireRow(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
