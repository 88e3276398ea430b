package offline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"pickline/internal/config"
	"pickline/internal/picking"
)

// Queue is the device-side durable FIFO of actions awaiting delivery.
type Queue struct {
	db     *sql.DB
	path   string
	signal chan int
	now    func() time.Time
}

// Open initializes or connects to the device queue database.
func Open(cfg *config.Config) (*Queue, error) {
	if err := cfg.EnsureDeviceDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.QueuePath())
}

// OpenPath opens the queue at an explicit SQLite file path.
func OpenPath(dbPath string) (*Queue, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	q := &Queue{db: db, path: dbPath, signal: make(chan int, 1), now: time.Now}
	if err := q.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return q, nil
}

// Close closes the underlying database connection.
func (q *Queue) Close() error {
	if q == nil || q.db == nil {
		return nil
	}
	return q.db.Close()
}

// Path returns the SQLite file backing the queue.
func (q *Queue) Path() string {
	return q.path
}

// Signal delivers the pending count after every enqueue. Only the latest
// count is retained when the consumer lags.
func (q *Queue) Signal() <-chan int {
	return q.signal
}

// Enqueue appends an action to the tail of the queue. A missing idempotency
// key is generated here so every retry of the entry carries the same key.
func (q *Queue) Enqueue(ctx context.Context, action picking.Action) (*Entry, error) {
	if strings.TrimSpace(action.SessionID) == "" {
		return nil, errors.New("enqueue: session id is required")
	}
	if strings.TrimSpace(action.IdempotencyKey) == "" {
		action.IdempotencyKey = uuid.NewString()
	}
	payload, err := json.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("marshal action: %w", err)
	}
	created := q.now().UTC()
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO pending_actions (idempotency_key, session_id, action_json, created_at)
         VALUES (?, ?, ?, ?)`,
		action.IdempotencyKey,
		action.SessionID,
		string(payload),
		created.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert action: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if count, err := q.Len(ctx); err == nil {
		q.publish(count)
	}
	return &Entry{Seq: seq, Action: action, CreatedAt: created}, nil
}

func (q *Queue) publish(count int) {
	select {
	case <-q.signal:
	default:
	}
	select {
	case q.signal <- count:
	default:
	}
}

// Head returns the oldest pending entry, or nil when the queue is empty.
func (q *Queue) Head(ctx context.Context) (*Entry, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT seq, action_json, attempts, next_attempt_at, last_error, created_at
         FROM pending_actions ORDER BY seq LIMIT 1`)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query head: %w", err)
	}
	return entry, nil
}

// List returns every pending entry in submission order.
func (q *Queue) List(ctx context.Context) ([]Entry, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT seq, action_json, attempts, next_attempt_at, last_error, created_at
         FROM pending_actions ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// Len returns the number of pending entries.
func (q *Queue) Len(ctx context.Context) (int, error) {
	var count int
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM pending_actions").Scan(&count); err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return count, nil
}

// Delete removes a delivered entry.
func (q *Queue) Delete(ctx context.Context, seq int64) error {
	if _, err := q.db.ExecContext(ctx, "DELETE FROM pending_actions WHERE seq = ?", seq); err != nil {
		return fmt.Errorf("delete pending %d: %w", seq, err)
	}
	return nil
}

// MarkFailed records a retryable failure and the earliest next attempt.
func (q *Queue) MarkFailed(ctx context.Context, seq int64, cause error, next time.Time) error {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	_, err := q.db.ExecContext(ctx,
		`UPDATE pending_actions
         SET attempts = attempts + 1, next_attempt_at = ?, last_error = ?
         WHERE seq = ?`,
		next.UTC().Format(time.RFC3339Nano),
		nullableString(message),
		seq,
	)
	if err != nil {
		return fmt.Errorf("mark pending %d failed: %w", seq, err)
	}
	return nil
}

// DeadLetter moves an entry out of the FIFO into the dead-letter sink.
func (q *Queue) DeadLetter(ctx context.Context, entry Entry, status int, reason string) error {
	payload, err := json.Marshal(entry.Action)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin dead letter tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO dead_letters (
            original_seq, idempotency_key, session_id, action_json,
            attempts, status_code, reason, created_at, failed_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Seq,
		entry.Action.IdempotencyKey,
		entry.Action.SessionID,
		string(payload),
		entry.Attempts+1,
		status,
		reason,
		entry.CreatedAt.UTC().Format(time.RFC3339Nano),
		q.now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM pending_actions WHERE seq = ?", entry.Seq); err != nil {
		return fmt.Errorf("delete pending %d: %w", entry.Seq, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit dead letter: %w", err)
	}
	return nil
}

// DeadLetters returns every permanently rejected action, oldest first.
func (q *Queue) DeadLetters(ctx context.Context) ([]DeadLetter, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, original_seq, action_json, attempts, status_code, reason, created_at, failed_at
         FROM dead_letters ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var letters []DeadLetter
	for rows.Next() {
		var (
			letter              DeadLetter
			actionJSON          string
			createdAt, failedAt string
		)
		if err := rows.Scan(&letter.ID, &letter.OriginalSeq, &actionJSON, &letter.Attempts,
			&letter.StatusCode, &letter.Reason, &createdAt, &failedAt); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		if err := json.Unmarshal([]byte(actionJSON), &letter.Action); err != nil {
			return nil, fmt.Errorf("decode dead letter %d: %w", letter.ID, err)
		}
		letter.CreatedAt = parseTime(createdAt)
		letter.FailedAt = parseTime(failedAt)
		letters = append(letters, letter)
	}
	return letters, rows.Err()
}

// Wipe discards every pending entry and reports how many were dropped.
// Dead letters are kept for inspection.
func (q *Queue) Wipe(ctx context.Context) (int, error) {
	res, err := q.db.ExecContext(ctx, "DELETE FROM pending_actions")
	if err != nil {
		return 0, fmt.Errorf("wipe pending: %w", err)
	}
	dropped, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	q.publish(0)
	return int(dropped), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		entry      Entry
		actionJSON string
		nextAt     sql.NullString
		lastError  sql.NullString
		createdAt  string
	)
	if err := row.Scan(&entry.Seq, &actionJSON, &entry.Attempts, &nextAt, &lastError, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(actionJSON), &entry.Action); err != nil {
		return nil, fmt.Errorf("decode action %d: %w", entry.Seq, err)
	}
	if nextAt.Valid {
		entry.NextAttemptAt = parseTime(nextAt.String)
	}
	entry.LastError = lastError.String
	entry.CreatedAt = parseTime(createdAt)
	return &entry, nil
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
