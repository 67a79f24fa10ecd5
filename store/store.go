// Package store persists sessions, messages, plan proposals, and mentor
// progress in sqlite. The message log is append-only; content is sealed
// before insert when a Sealer is configured.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lumen-mentor/lumen/errors"
	"github.com/lumen-mentor/lumen/logging"
	"github.com/lumen-mentor/lumen/session"
)

// Stages a user progresses through, in order.
var Stages = []string{"foundation", "discipline", "flow", "mastery"}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		mode TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content BLOB NOT NULL,
		is_error INTEGER NOT NULL DEFAULT 0,
		tool_calls TEXT,
		prompt_tokens INTEGER,
		completion_tokens INTEGER,
		cost_usd REAL,
		elapsed_ms INTEGER,
		domains TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id)`,
	`CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		summary TEXT NOT NULL,
		steps TEXT NOT NULL,
		resources TEXT NOT NULL,
		state TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		decided_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS profiles (
		user_id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		stage TEXT NOT NULL DEFAULT 'foundation'
	)`,
	`CREATE TABLE IF NOT EXISTS insights (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		domain TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS habits (
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		cadence TEXT NOT NULL,
		streak INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS reviews (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		summary TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
}

// Store wraps the sqlite database. Safe for use from concurrent turns:
// writes are append-only inserts or atomic single-row updates.
type Store struct {
	db     *sql.DB
	sealer *Sealer
}

// Open opens (creating if needed) the database at path and runs migrations.
// sealer may be nil for plaintext content.
func Open(path string, sealer *Sealer) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open store at '%s'", path)
	}
	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "migration failed")
		}
	}
	return &Store{db: db, sealer: sealer}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession inserts the session row if it does not already exist.
func (s *Store) CreateSession(sess *session.Session) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO sessions (id, user_id, mode, created_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.Mode, time.Now().UTC(),
	)
	return errors.Wrapf(err, "failed to create session '%s'", sess.ID)
}

// AppendMessage appends one message to the session log. Content is sealed
// first; tel carries telemetry metadata for a sealed assistant message and
// is nil for every other append.
func (s *Store) AppendMessage(sessionID string, msg session.Message, tel *session.Telemetry) error {
	content, err := s.sealer.Seal([]byte(msg.Content))
	if err != nil {
		return errors.Wrapf(err, "failed to seal message content")
	}

	var toolCalls any
	if len(msg.ToolCalls) > 0 {
		data, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return errors.Wrapf(err, "failed to encode tool calls")
		}
		toolCalls = string(data)
	}

	var promptTokens, completionTokens, elapsedMs any
	var costUSD any
	var domains any
	if tel != nil {
		promptTokens = tel.PromptTokens
		completionTokens = tel.CompletionTokens
		costUSD = tel.CostUSD
		elapsedMs = tel.Elapsed.Milliseconds()
		if len(tel.Domains) > 0 {
			domains = strings.Join(tel.Domains, ",")
		}
	}

	_, err = s.db.Exec(
		`INSERT INTO messages (session_id, role, content, is_error, tool_calls, prompt_tokens, completion_tokens, cost_usd, elapsed_ms, domains, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, msg.Role, content, msg.IsError, toolCalls, promptTokens, completionTokens, costUSD, elapsedMs, domains, time.Now().UTC(),
	)
	return errors.Wrapf(err, "failed to append message")
}

// AttachTelemetry records turn telemetry on the session's most recent
// assistant message. The loop controller calls this once per finished turn,
// after tool dispatch has settled the domain list.
func (s *Store) AttachTelemetry(sessionID string, tel session.Telemetry) error {
	var domains any
	if len(tel.Domains) > 0 {
		domains = strings.Join(tel.Domains, ",")
	}
	res, err := s.db.Exec(
		`UPDATE messages SET prompt_tokens = ?, completion_tokens = ?, cost_usd = ?, elapsed_ms = ?, domains = ?
		 WHERE id = (SELECT MAX(id) FROM messages WHERE session_id = ? AND role = ?)`,
		tel.PromptTokens, tel.CompletionTokens, tel.CostUSD, tel.Elapsed.Milliseconds(), domains,
		sessionID, session.RoleAssistant,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to record turn telemetry")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("no assistant message to attach telemetry to in session '%s'", sessionID)
	}
	return nil
}

// LoadSession reloads a session and its decrypted history.
func (s *Store) LoadSession(id string) (*session.Session, error) {
	sess := &session.Session{ID: id}
	err := s.db.QueryRow(`SELECT user_id, mode FROM sessions WHERE id = ?`, id).
		Scan(&sess.UserID, &sess.Mode)
	if err == sql.ErrNoRows {
		return nil, errors.New("session '%s' not found", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load session '%s'", id)
	}

	rows, err := s.db.Query(
		`SELECT role, content, is_error, tool_calls FROM messages WHERE session_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load messages for session '%s'", id)
	}
	defer rows.Close()

	for rows.Next() {
		var msg session.Message
		var content []byte
		var toolCalls sql.NullString
		if err := rows.Scan(&msg.Role, &content, &msg.IsError, &toolCalls); err != nil {
			return nil, errors.Wrapf(err, "failed to scan message row")
		}
		plaintext, err := s.sealer.Open(content)
		if err != nil {
			return nil, err
		}
		msg.Content = string(plaintext)
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
				return nil, errors.Wrapf(err, "failed to decode tool calls")
			}
		}
		sess.AddMessage(msg)
	}
	return sess, rows.Err()
}

// ---- Plan proposals ----

// PlanRow is the persisted form of a plan proposal.
type PlanRow struct {
	ID        string
	UserID    string
	Title     string
	Summary   string
	Steps     []string
	Resources []string
	State     string
}

// InsertPlan stores a new proposal in the pending state.
func (s *Store) InsertPlan(p PlanRow) error {
	steps, err := json.Marshal(p.Steps)
	if err != nil {
		return errors.Wrapf(err, "failed to encode plan steps")
	}
	resources, err := json.Marshal(p.Resources)
	if err != nil {
		return errors.Wrapf(err, "failed to encode plan resources")
	}
	_, err = s.db.Exec(
		`INSERT INTO plans (id, user_id, title, summary, steps, resources, state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Title, p.Summary, string(steps), string(resources), p.State, time.Now().UTC(),
	)
	return errors.Wrapf(err, "failed to insert plan '%s'", p.ID)
}

// UpdatePlanState records an approval decision for a specific proposal.
// Returns an error when the proposal id is unknown.
func (s *Store) UpdatePlanState(id, state string) error {
	res, err := s.db.Exec(
		`UPDATE plans SET state = ?, decided_at = ? WHERE id = ?`,
		state, time.Now().UTC(), id,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to update plan '%s'", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("no plan with id '%s'", id)
	}
	return nil
}

// PlansByState returns a user's proposals in the given state, oldest first.
func (s *Store) PlansByState(userID, state string) ([]PlanRow, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, title, summary, steps, resources, state
		 FROM plans WHERE user_id = ? AND state = ? ORDER BY created_at`, userID, state)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query plans")
	}
	defer rows.Close()

	var out []PlanRow
	for rows.Next() {
		var p PlanRow
		var steps, resources string
		if err := rows.Scan(&p.ID, &p.UserID, &p.Title, &p.Summary, &steps, &resources, &p.State); err != nil {
			return nil, errors.Wrapf(err, "failed to scan plan row")
		}
		if err := json.Unmarshal([]byte(steps), &p.Steps); err != nil {
			return nil, errors.Wrapf(err, "failed to decode plan steps")
		}
		if err := json.Unmarshal([]byte(resources), &p.Resources); err != nil {
			return nil, errors.Wrapf(err, "failed to decode plan resources")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ---- Mentor progress ----

// Profile returns a user's display name and current stage, creating the
// profile row on first use.
func (s *Store) Profile(userID string) (name, stage string, err error) {
	err = s.db.QueryRow(`SELECT name, stage FROM profiles WHERE user_id = ?`, userID).
		Scan(&name, &stage)
	if err == sql.ErrNoRows {
		_, err = s.db.Exec(`INSERT OR IGNORE INTO profiles (user_id) VALUES (?)`, userID)
		return "", Stages[0], err
	}
	return name, stage, errors.Wrapf(err, "failed to load profile")
}

// AdvanceStage moves the user to the next stage. Monotone: the final stage
// is a fixed point.
func (s *Store) AdvanceStage(userID string) (string, error) {
	_, stage, err := s.Profile(userID)
	if err != nil {
		return "", err
	}
	next := stage
	for i, name := range Stages {
		if name == stage && i+1 < len(Stages) {
			next = Stages[i+1]
			break
		}
	}
	if next != stage {
		if _, err := s.db.Exec(`UPDATE profiles SET stage = ? WHERE user_id = ?`, next, userID); err != nil {
			return "", errors.Wrapf(err, "failed to advance stage")
		}
	}
	return next, nil
}

// AddInsight appends an insight for a user in a growth domain.
func (s *Store) AddInsight(userID, domain, content string) error {
	_, err := s.db.Exec(
		`INSERT INTO insights (user_id, domain, content, created_at) VALUES (?, ?, ?, ?)`,
		userID, domain, content, time.Now().UTC(),
	)
	return errors.Wrapf(err, "failed to record insight")
}

// RecentInsights returns up to limit most recent insight texts.
func (s *Store) RecentInsights(userID string, limit int) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT content FROM insights WHERE user_id = ? ORDER BY id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query insights")
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetHabit creates or replaces a habit definition, keeping any streak.
func (s *Store) SetHabit(userID, name, cadence string) error {
	_, err := s.db.Exec(
		`INSERT INTO habits (user_id, name, cadence, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, name) DO UPDATE SET cadence = excluded.cadence`,
		userID, name, cadence, time.Now().UTC(),
	)
	return errors.Wrapf(err, "failed to set habit")
}

// TickHabit atomically increments a habit's streak. Atomic increment keeps
// interleaved turns from losing counts.
func (s *Store) TickHabit(userID, name string) error {
	res, err := s.db.Exec(
		`UPDATE habits SET streak = streak + 1 WHERE user_id = ? AND name = ?`,
		userID, name,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to tick habit")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errors.New("no habit named '%s'", name)
	}
	return nil
}

// Habits returns a user's habits as "name (cadence, streak N)" lines.
func (s *Store) Habits(userID string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT name, cadence, streak FROM habits WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query habits")
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name, cadence string
		var streak int
		if err := rows.Scan(&name, &cadence, &streak); err != nil {
			return nil, err
		}
		out = append(out, fmt.Sprintf("%s (%s, streak %d)", name, cadence, streak))
	}
	return out, rows.Err()
}

// EraseProgress removes all of a user's insights and habits and resets the
// stage. The message log is untouched: conversations are append-only.
func (s *Store) EraseProgress(userID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrapf(err, "failed to begin erase")
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM insights WHERE user_id = ?`, userID); err != nil {
		return errors.Wrapf(err, "failed to erase insights")
	}
	if _, err := tx.Exec(`DELETE FROM habits WHERE user_id = ?`, userID); err != nil {
		return errors.Wrapf(err, "failed to erase habits")
	}
	if _, err := tx.Exec(`UPDATE profiles SET stage = ? WHERE user_id = ?`, Stages[0], userID); err != nil {
		return errors.Wrapf(err, "failed to reset stage")
	}
	return tx.Commit()
}

// ---- Operator query access ----

// ReadQuery runs a read-only query and renders the rows as text. The caller
// is responsible for having vetted the query; this applies a row cap only.
func (s *Store) ReadQuery(query string) (string, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return "", errors.Wrapf(err, "query failed")
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(strings.Join(cols, " | "))
	b.WriteString("\n")

	const maxRows = 100
	count := 0
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() && count < maxRows {
		if err := rows.Scan(ptrs...); err != nil {
			return "", err
		}
		parts := make([]string, len(values))
		for i, v := range values {
			switch val := v.(type) {
			case nil:
				parts[i] = "NULL"
			case []byte:
				parts[i] = string(val)
			default:
				parts[i] = fmt.Sprintf("%v", val)
			}
		}
		b.WriteString(strings.Join(parts, " | "))
		b.WriteString("\n")
		count++
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return b.String(), nil
}

// InsertReview stores the output of a background session review.
func (s *Store) InsertReview(sessionID, summary string) error {
	_, err := s.db.Exec(
		`INSERT INTO reviews (session_id, summary, created_at) VALUES (?, ?, ?)`,
		sessionID, summary, time.Now().UTC(),
	)
	if err != nil {
		logging.For("store").Warnw("failed to insert review", "session", sessionID, "error", err)
	}
	return errors.Wrapf(err, "failed to insert review")
}

// MessageCount returns how many messages a session holds.
func (s *Store) MessageCount(sessionID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&n)
	return n, errors.Wrapf(err, "failed to count messages")
}
