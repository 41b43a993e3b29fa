package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/Numbzin/Logzito/internal/domain"
)

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct{ db *sql.DB }

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
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
	if err := RunSQLiteMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

// applyPragmas configures the SQLite connection for durability and concurrency.
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
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

const sqliteUserColumns = `chat_id, created_at, remind_active, remind_at_m, tz, last_sent_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteUser(row rowScanner) (*domain.User, error) {
	var (
		u         domain.User
		createdAt int64
		active    int
		atM       int
		lastNS    sql.NullInt64
	)
	if err := row.Scan(&u.ChatID, &createdAt, &active, &atM, &u.TZ, &lastNS); err != nil {
		return nil, err
	}
	u.Active = active != 0
	u.LocalTime = domain.LocalTime(atM)
	u.LastSentAt = fromNullInt64(lastNS)
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &u, nil
}

// EnsureUser inserts the user with defaults unless the row already exists.
func (r *SQLiteRepo) EnsureUser(ctx context.Context, chatID int64, defaults domain.Subscription) (*domain.User, bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users (chat_id, created_at, remind_active, remind_at_m, tz, last_sent_at)
		VALUES (?, ?, ?, ?, ?, NULL)
		ON CONFLICT(chat_id) DO NOTHING`,
		chatID, time.Now().UTC().Unix(), boolToInt(defaults.Active), int(defaults.LocalTime), defaults.TZ,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	u, err := r.GetUser(ctx, chatID)
	if err != nil {
		return nil, false, err
	}
	return u, n > 0, nil
}

// GetUser returns a user's profile by chatID or ErrNotFound.
func (r *SQLiteRepo) GetUser(ctx context.Context, chatID int64) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sqliteUserColumns+` FROM users WHERE chat_id = ?`, chatID)
	u, err := scanSQLiteUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// SetReminder updates the reminder preference for a user.
func (r *SQLiteRepo) SetReminder(ctx context.Context, chatID int64, active bool, at domain.LocalTime, tz string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET remind_active = ?, remind_at_m = ?, tz = ?
		WHERE chat_id = ?`,
		boolToInt(active), int(at), tz, chatID,
	)
	if err != nil {
		return fmt.Errorf("set reminder: %w", err)
	}
	return requireAffected(res)
}

// ListActiveSubscriptions returns every active subscription ordered by chat id.
func (r *SQLiteRepo) ListActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sqliteUserColumns+` FROM users WHERE remind_active = 1 ORDER BY chat_id`)
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}
	defer rows.Close()

	var res []domain.Subscription
	for rows.Next() {
		u, err := scanSQLiteUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u.Subscription)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// UpdateSubscription applies a partial update keyed by chat id.
func (r *SQLiteRepo) UpdateSubscription(ctx context.Context, chatID int64, patch domain.SubscriptionPatch) error {
	if patch.Empty() {
		return nil
	}
	var (
		sets []string
		args []any
	)
	if patch.LastSentAt != nil {
		ts := patch.LastSentAt.UTC().Unix()
		sets = append(sets, `last_sent_at = CASE WHEN last_sent_at IS NULL OR last_sent_at < ? THEN ? ELSE last_sent_at END`)
		args = append(args, ts, ts)
	}
	if patch.Active != nil {
		sets = append(sets, `remind_active = ?`)
		args = append(args, boolToInt(*patch.Active))
	}
	args = append(args, chatID)

	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE chat_id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	return requireAffected(res)
}

const sqliteEntryColumns = `id, chat_id, local_id, title, body, tags, link, created_at`

func scanSQLiteEntry(row rowScanner) (*domain.Entry, error) {
	var (
		e         domain.Entry
		tags      string
		createdAt int64
	)
	if err := row.Scan(&e.ID, &e.ChatID, &e.LocalID, &e.Title, &e.Body, &tags, &e.Link, &createdAt); err != nil {
		return nil, err
	}
	e.Tags = decodeTags(tags)
	e.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &e, nil
}

func (r *SQLiteRepo) queryEntries(ctx context.Context, query string, args ...any) ([]domain.Entry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Entry
	for rows.Next() {
		e, err := scanSQLiteEntry(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// AddEntry inserts a journal entry with the next per-user local id.
func (r *SQLiteRepo) AddEntry(ctx context.Context, e *domain.Entry) error {
	if e == nil {
		return errors.New("nil entry")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO entries (chat_id, local_id, title, body, tags, link, created_at)
		SELECT ?, COALESCE(MAX(local_id), 0) + 1, ?, ?, ?, ?, ?
		FROM entries WHERE chat_id = ?
		RETURNING id, local_id`,
		e.ChatID, e.Title, e.Body, encodeTags(e.Tags), e.Link, e.CreatedAt.UTC().Unix(), e.ChatID,
	)
	if err := row.Scan(&e.ID, &e.LocalID); err != nil {
		return fmt.Errorf("add entry: %w", err)
	}
	return nil
}

// GetEntry returns one entry by its per-user id or ErrNotFound.
func (r *SQLiteRepo) GetEntry(ctx context.Context, chatID int64, localID int) (*domain.Entry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sqliteEntryColumns+` FROM entries WHERE chat_id = ? AND local_id = ?`,
		chatID, localID)
	e, err := scanSQLiteEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}

// ListEntries pages through a user's entries, newest first.
func (r *SQLiteRepo) ListEntries(ctx context.Context, chatID int64, offset, limit int) ([]domain.Entry, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM entries WHERE chat_id = ?`, chatID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count entries: %w", err)
	}
	entries, err := r.queryEntries(ctx,
		`SELECT `+sqliteEntryColumns+` FROM entries
		 WHERE chat_id = ?
		 ORDER BY local_id DESC
		 LIMIT ? OFFSET ?`,
		chatID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list entries: %w", err)
	}
	return entries, total, nil
}

// ListEntriesByTag returns a user's entries carrying tag, newest first.
func (r *SQLiteRepo) ListEntriesByTag(ctx context.Context, chatID int64, tag string) ([]domain.Entry, error) {
	entries, err := r.queryEntries(ctx,
		`SELECT `+sqliteEntryColumns+` FROM entries
		 WHERE chat_id = ? AND instr(tags, ',' || ? || ',') > 0
		 ORDER BY local_id DESC`,
		chatID, tag)
	if err != nil {
		return nil, fmt.Errorf("list entries by tag: %w", err)
	}
	return entries, nil
}

// ListEntriesBetween returns entries created in [from, to), oldest first.
func (r *SQLiteRepo) ListEntriesBetween(ctx context.Context, chatID int64, from, to time.Time) ([]domain.Entry, error) {
	upper := int64(1<<63 - 1)
	if !to.IsZero() {
		upper = to.UTC().Unix()
	}
	entries, err := r.queryEntries(ctx,
		`SELECT `+sqliteEntryColumns+` FROM entries
		 WHERE chat_id = ? AND created_at >= ? AND created_at < ?
		 ORDER BY created_at ASC, local_id ASC`,
		chatID, from.UTC().Unix(), upper)
	if err != nil {
		return nil, fmt.Errorf("list entries between: %w", err)
	}
	return entries, nil
}

// UpdateEntry rewrites the editable fields of an entry.
func (r *SQLiteRepo) UpdateEntry(ctx context.Context, e *domain.Entry) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE entries
		SET title = ?, body = ?, tags = ?, link = ?
		WHERE chat_id = ? AND local_id = ?`,
		e.Title, e.Body, encodeTags(e.Tags), e.Link, e.ChatID, e.LocalID,
	)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	return requireAffected(res)
}

// DeleteEntry removes an entry. Local ids of other entries do not change.
func (r *SQLiteRepo) DeleteEntry(ctx context.Context, chatID int64, localID int) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM entries WHERE chat_id = ? AND local_id = ?`, chatID, localID)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return requireAffected(res)
}

// EntryStats returns the count plus first and last entries of a user.
func (r *SQLiteRepo) EntryStats(ctx context.Context, chatID int64) (domain.EntryStats, error) {
	var st domain.EntryStats
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM entries WHERE chat_id = ?`, chatID,
	).Scan(&st.Total); err != nil {
		return st, fmt.Errorf("count entries: %w", err)
	}
	if st.Total == 0 {
		return st, nil
	}
	for _, q := range []struct {
		order string
		dst   **domain.Entry
	}{
		{"ASC", &st.First},
		{"DESC", &st.Last},
	} {
		row := r.db.QueryRowContext(ctx,
			`SELECT `+sqliteEntryColumns+` FROM entries WHERE chat_id = ? ORDER BY created_at `+q.order+`, local_id `+q.order+` LIMIT 1`,
			chatID)
		e, err := scanSQLiteEntry(row)
		if err != nil {
			return st, fmt.Errorf("entry stats: %w", err)
		}
		*q.dst = e
	}
	return st, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
