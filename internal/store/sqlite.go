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

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/studyloop/reminder-service/internal/models"
)

// SQLite implements Store on an embedded SQLite database.
type SQLite struct{ db *sql.DB }

// Open opens (or creates) the database at path, applies PRAGMAs, runs
// the embedded migrations and returns the store. ":memory:" is
// supported for tests.
func Open(ctx context.Context, path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// SQLite is a single-writer engine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (s *SQLite) Close() error { return s.db.Close() }

func toNullInt64(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UTC().Unix(), Valid: true}
}

func fromNullInt64(ns sql.NullInt64) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := time.Unix(ns.Int64, 0).UTC()
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalPayload(p map[string]any) (string, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(b), nil
}

func unmarshalPayload(s string) (map[string]any, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var p map[string]any
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return p, nil
}

const reminderCols = `id, user_id, type, channel, title, message, payload,
	send_at, sent_at, read_at, status, email_sent, email_sent_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (*models.Reminder, error) {
	var (
		r         models.Reminder
		payload   string
		sentNS    sql.NullInt64
		readNS    sql.NullInt64
		emailNS   sql.NullInt64
		sendAt    int64
		createdAt int64
		emailSent int
	)
	if err := row.Scan(
		&r.ID, &r.UserID, &r.Type, &r.Channel, &r.Title, &r.Message, &payload,
		&sendAt, &sentNS, &readNS, &r.Status, &emailSent, &emailNS, &createdAt,
	); err != nil {
		return nil, err
	}
	p, err := unmarshalPayload(payload)
	if err != nil {
		return nil, err
	}
	r.Payload = p
	r.SendAt = time.Unix(sendAt, 0).UTC()
	r.SentAt = fromNullInt64(sentNS)
	r.ReadAt = fromNullInt64(readNS)
	r.EmailSent = emailSent != 0
	r.EmailSentAt = fromNullInt64(emailNS)
	r.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &r, nil
}

// CreateReminder inserts a new reminder row.
func (s *SQLite) CreateReminder(ctx context.Context, r *models.Reminder) error {
	if r == nil {
		return errors.New("nil reminder")
	}
	payload, err := marshalPayload(r.Payload)
	if err != nil {
		return err
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
		r.CreatedAt = created
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reminders (
			id, user_id, type, channel, title, message, payload,
			send_at, sent_at, read_at, status, email_sent, email_sent_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.Type, r.Channel, r.Title, r.Message, payload,
		r.SendAt.UTC().Unix(), toNullInt64(r.SentAt), toNullInt64(r.ReadAt),
		r.Status, boolToInt(r.EmailSent), toNullInt64(r.EmailSentAt),
		created.UTC().Unix(),
	)
	return err
}

// GetReminder returns one reminder or models.ErrNotFound.
func (s *SQLite) GetReminder(ctx context.Context, id string) (*models.Reminder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reminderCols+` FROM reminders WHERE id = ?`, id)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	return r, err
}

// ListReminders returns a user's reminders, newest first, optionally
// filtered by status.
func (s *SQLite) ListReminders(ctx context.Context, userID string, status models.Status) ([]models.Reminder, error) {
	q := `SELECT ` + reminderCols + ` FROM reminders WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		q += ` AND status = ?`
		args = append(args, status)
	}
	q += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReminders(rows)
}

func collectReminders(rows *sql.Rows) ([]models.Reminder, error) {
	var res []models.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *r)
	}
	return res, rows.Err()
}

// UnreadCount counts delivered-but-unread reminders (status sent).
func (s *SQLite) UnreadCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reminders WHERE user_id = ? AND status = ?`,
		userID, models.StatusSent,
	).Scan(&n)
	return n, err
}

// ListDue returns up to limit pending reminders with send_at <= now,
// oldest first.
func (s *SQLite) ListDue(ctx context.Context, now time.Time, limit int) ([]models.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reminderCols+` FROM reminders
		 WHERE status = ? AND send_at <= ?
		 ORDER BY send_at ASC
		 LIMIT ?`,
		models.StatusPending, now.UTC().Unix(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReminders(rows)
}

// ClaimSent advances pending→sent with a status guard so that two
// overlapping sweeps cannot both deliver the same reminder.
func (s *SQLite) ClaimSent(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET status = ?, sent_at = ? WHERE id = ? AND status = ?`,
		models.StatusSent, now.UTC().Unix(), id, models.StatusPending,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkEmailSent records successful email delivery for a reminder.
func (s *SQLite) MarkEmailSent(ctx context.Context, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET email_sent = 1, email_sent_at = ? WHERE id = ?`,
		now.UTC().Unix(), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return models.ErrNotFound
	}
	return err
}

// SaveLifecycle persists status and read_at after an in-memory
// transition on the model.
func (s *SQLite) SaveLifecycle(ctx context.Context, r *models.Reminder) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET status = ?, read_at = ? WHERE id = ?`,
		r.Status, toNullInt64(r.ReadAt), r.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return models.ErrNotFound
	}
	return err
}

// DismissAll moves every non-dismissed reminder of a user to dismissed
// and returns how many rows changed.
func (s *SQLite) DismissAll(ctx context.Context, userID string, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET status = ? WHERE user_id = ? AND status != ?`,
		models.StatusDismissed, userID, models.StatusDismissed,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListRecentByType returns a user's reminders of one type created at or
// after since, newest first.
func (s *SQLite) ListRecentByType(ctx context.Context, userID string, t models.ReminderType, since time.Time) ([]models.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reminderCols+` FROM reminders
		 WHERE user_id = ? AND type = ? AND created_at >= ?
		 ORDER BY created_at DESC`,
		userID, t, since.UTC().Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReminders(rows)
}

// PurgeDismissed deletes dismissed reminders created before olderThan.
func (s *SQLite) PurgeDismissed(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM reminders WHERE status = ? AND created_at < ?`,
		models.StatusDismissed, olderThan.UTC().Unix(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const userCols = `id, email, timezone, reminders_enabled, email_opt_in,
	reminder_window, window_explicit, study_streak, last_study_date, onboarded`

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u         models.User
		enabled   int
		optIn     int
		windowNS  sql.NullString
		explicit  int
		lastNS    sql.NullString
		onboarded int
	)
	if err := row.Scan(
		&u.ID, &u.Email, &u.Timezone, &enabled, &optIn,
		&windowNS, &explicit, &u.StudyStreak, &lastNS, &onboarded,
	); err != nil {
		return nil, err
	}
	u.RemindersEnabled = enabled != 0
	u.EmailOptIn = optIn != 0
	u.ReminderWindow = models.Window(windowNS.String)
	u.WindowExplicit = explicit != 0
	u.LastStudyDate = lastNS.String
	u.Onboarded = onboarded != 0
	return &u, nil
}

// GetUser returns one user or models.ErrNotFound.
func (s *SQLite) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	return u, err
}

// UpsertUser inserts or updates a user's reminder preferences.
func (s *SQLite) UpsertUser(ctx context.Context, u *models.User) error {
	if u == nil {
		return errors.New("nil user")
	}
	window := sql.NullString{String: string(u.ReminderWindow), Valid: u.ReminderWindow != ""}
	last := sql.NullString{String: u.LastStudyDate, Valid: u.LastStudyDate != ""}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (
			id, email, timezone, reminders_enabled, email_opt_in,
			reminder_window, window_explicit, study_streak, last_study_date, onboarded
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email             = excluded.email,
			timezone          = excluded.timezone,
			reminders_enabled = excluded.reminders_enabled,
			email_opt_in      = excluded.email_opt_in,
			reminder_window   = excluded.reminder_window,
			window_explicit   = excluded.window_explicit,
			study_streak      = excluded.study_streak,
			last_study_date   = excluded.last_study_date,
			onboarded         = excluded.onboarded`,
		u.ID, u.Email, u.Timezone, boolToInt(u.RemindersEnabled), boolToInt(u.EmailOptIn),
		window, boolToInt(u.WindowExplicit), u.StudyStreak, last, boolToInt(u.Onboarded),
	)
	return err
}

// ListReminderUsers returns onboarded users with reminders enabled.
func (s *SQLite) ListReminderUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userCols+` FROM users
		 WHERE reminders_enabled = 1 AND onboarded = 1
		 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *u)
	}
	return res, rows.Err()
}

// SetInferredWindow records an inferred window unless the user picked
// one explicitly.
func (s *SQLite) SetInferredWindow(ctx context.Context, userID string, w models.Window) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET reminder_window = ? WHERE id = ? AND window_explicit = 0`,
		string(w), userID,
	)
	return err
}

// AddActivity appends one qualifying study action to the activity log.
func (s *SQLite) AddActivity(ctx context.Context, e *models.ActivityEvent) error {
	if e == nil {
		return errors.New("nil activity event")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity_events (user_id, kind, occurred_at) VALUES (?, ?, ?)`,
		e.UserID, e.Kind, e.OccurredAt.UTC().Unix(),
	)
	return err
}

// ListActivitySince returns a user's activity events at or after since,
// oldest first.
func (s *SQLite) ListActivitySince(ctx context.Context, userID string, since time.Time) ([]models.ActivityEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, kind, occurred_at FROM activity_events
		 WHERE user_id = ? AND occurred_at >= ?
		 ORDER BY occurred_at ASC`,
		userID, since.UTC().Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []models.ActivityEvent
	for rows.Next() {
		var (
			e  models.ActivityEvent
			at int64
		)
		if err := rows.Scan(&e.UserID, &e.Kind, &at); err != nil {
			return nil, err
		}
		e.OccurredAt = time.Unix(at, 0).UTC()
		res = append(res, e)
	}
	return res, rows.Err()
}

// AddTask records a study task for a logical day.
func (s *SQLite) AddTask(ctx context.Context, id, userID, title, dueDate string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO study_tasks (id, user_id, title, due_date, completed) VALUES (?, ?, ?, ?, 0)`,
		id, userID, title, dueDate,
	)
	return err
}

// CompleteTask marks a study task done.
func (s *SQLite) CompleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE study_tasks SET completed = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return models.ErrNotFound
	}
	return err
}

// CountOpenTasks counts a user's incomplete tasks due on a logical day.
func (s *SQLite) CountOpenTasks(ctx context.Context, userID, dueDate string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM study_tasks WHERE user_id = ? AND due_date = ? AND completed = 0`,
		userID, dueDate,
	).Scan(&n)
	return n, err
}

// AddQuizAttempt records one quiz outcome.
func (s *SQLite) AddQuizAttempt(ctx context.Context, a *models.QuizAttempt) error {
	if a == nil {
		return errors.New("nil quiz attempt")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quiz_attempts (id, user_id, percentage, passed, attempted_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Percentage, boolToInt(a.Passed), a.AttemptedAt.UTC().Unix(),
	)
	return err
}

// LatestQuizAttempt returns a user's most recent quiz outcome, or
// models.ErrNotFound when they never attempted one.
func (s *SQLite) LatestQuizAttempt(ctx context.Context, userID string) (*models.QuizAttempt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, percentage, passed, attempted_at FROM quiz_attempts
		 WHERE user_id = ?
		 ORDER BY attempted_at DESC
		 LIMIT 1`,
		userID,
	)
	var (
		a      models.QuizAttempt
		passed int
		at     int64
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.Percentage, &passed, &at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	a.Passed = passed != 0
	a.AttemptedAt = time.Unix(at, 0).UTC()
	return &a, nil
}
