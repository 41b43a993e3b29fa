package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Numbzin/Logzito/internal/domain"
)

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	URL             string
	MaxConns        int32
	ConnectAttempts int
}

// PostgresRepo implements Repo on a pgx connection pool.
type PostgresRepo struct{ db *pgxpool.Pool }

// OpenPostgres applies migrations and connects a pool with retries.
func OpenPostgres(ctx context.Context, cfg PostgresConfig, log *zap.Logger) (*PostgresRepo, error) {
	if err := MigratePostgres(cfg.URL); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}
	pool, err := ConnectPostgres(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return &PostgresRepo{db: pool}, nil
}

// NewPostgresRepo wraps an existing pool.
func NewPostgresRepo(pool *pgxpool.Pool) *PostgresRepo {
	return &PostgresRepo{db: pool}
}

// ConnectPostgres establishes a connection pool, retrying with exponential
// backoff until ConnectAttempts is exhausted or ctx is done.
func ConnectPostgres(ctx context.Context, cfg PostgresConfig, log *zap.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}

	attempts := max(cfg.ConnectAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				log.Info("connected to database", zap.Int("attempts", attempt))
				return pool, nil
			}
			pool.Close()
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		backoff := calcBackoff(attempt)
		log.Warn("database not ready, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
		}
	}
	return nil, fmt.Errorf("connect to database after %d attempts: %w", attempts, lastErr)
}

// calcBackoff returns exponential backoff capped at 16 seconds.
func calcBackoff(attempt int) time.Duration {
	return min(time.Duration(1<<(attempt-1))*time.Second, 16*time.Second)
}

// Close releases the pool.
func (r *PostgresRepo) Close() error {
	r.db.Close()
	return nil
}

const pgUserColumns = `chat_id, created_at, remind_active, remind_at_m, tz, last_sent_at`

func scanPGUser(row pgx.Row) (*domain.User, error) {
	var (
		u   domain.User
		atM int
	)
	if err := row.Scan(&u.ChatID, &u.CreatedAt, &u.Active, &atM, &u.TZ, &u.LastSentAt); err != nil {
		return nil, err
	}
	u.LocalTime = domain.LocalTime(atM)
	u.CreatedAt = u.CreatedAt.UTC()
	if u.LastSentAt != nil {
		t := u.LastSentAt.UTC()
		u.LastSentAt = &t
	}
	return &u, nil
}

func (r *PostgresRepo) EnsureUser(ctx context.Context, chatID int64, defaults domain.Subscription) (*domain.User, bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO users (chat_id, remind_active, remind_at_m, tz)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (chat_id) DO NOTHING`,
		chatID, defaults.Active, int(defaults.LocalTime), defaults.TZ,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert user: %w", err)
	}
	u, err := r.GetUser(ctx, chatID)
	if err != nil {
		return nil, false, err
	}
	return u, tag.RowsAffected() > 0, nil
}

func (r *PostgresRepo) GetUser(ctx context.Context, chatID int64) (*domain.User, error) {
	u, err := scanPGUser(r.db.QueryRow(ctx,
		`SELECT `+pgUserColumns+` FROM users WHERE chat_id = $1`, chatID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *PostgresRepo) SetReminder(ctx context.Context, chatID int64, active bool, at domain.LocalTime, tz string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users SET remind_active = $2, remind_at_m = $3, tz = $4
		WHERE chat_id = $1`,
		chatID, active, int(at), tz,
	)
	if err != nil {
		return fmt.Errorf("set reminder: %w", err)
	}
	return pgAffected(tag)
}

func (r *PostgresRepo) ListActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+pgUserColumns+` FROM users WHERE remind_active ORDER BY chat_id`)
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		u, err := scanPGUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, u.Subscription)
	}
	return subs, rows.Err()
}

func (r *PostgresRepo) UpdateSubscription(ctx context.Context, chatID int64, patch domain.SubscriptionPatch) error {
	if patch.Empty() {
		return nil
	}
	var (
		sets []string
		args = []any{chatID}
	)
	if patch.LastSentAt != nil {
		args = append(args, patch.LastSentAt.UTC())
		n := "$" + strconv.Itoa(len(args))
		sets = append(sets, `last_sent_at = GREATEST(COALESCE(last_sent_at, `+n+`), `+n+`)`)
	}
	if patch.Active != nil {
		args = append(args, *patch.Active)
		sets = append(sets, `remind_active = $`+strconv.Itoa(len(args)))
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE chat_id = $1`, args...)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	return pgAffected(tag)
}

const pgEntryColumns = `id, chat_id, local_id, title, body, tags, link, created_at`

func scanPGEntry(row pgx.Row) (*domain.Entry, error) {
	var e domain.Entry
	if err := row.Scan(&e.ID, &e.ChatID, &e.LocalID, &e.Title, &e.Body, &e.Tags, &e.Link, &e.CreatedAt); err != nil {
		return nil, err
	}
	if len(e.Tags) == 0 {
		e.Tags = nil
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

func (r *PostgresRepo) queryEntries(ctx context.Context, query string, args ...any) ([]domain.Entry, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		e, err := scanPGEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// AddEntry locks the user row so concurrent inserts get distinct local ids.
func (r *PostgresRepo) AddEntry(ctx context.Context, e *domain.Entry) error {
	if e == nil {
		return errors.New("nil entry")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}

	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT 1 FROM users WHERE chat_id = $1 FOR UPDATE`, e.ChatID); err != nil {
			return fmt.Errorf("lock user: %w", err)
		}
		err := tx.QueryRow(ctx, `
			INSERT INTO entries (chat_id, local_id, title, body, tags, link, created_at)
			SELECT $1, COALESCE(MAX(local_id), 0) + 1, $2, $3, $4, $5, $6
			FROM entries WHERE chat_id = $1
			RETURNING id, local_id`,
			e.ChatID, e.Title, e.Body, tags, e.Link, e.CreatedAt.UTC(),
		).Scan(&e.ID, &e.LocalID)
		if err != nil {
			return fmt.Errorf("add entry: %w", err)
		}
		return nil
	})
}

func (r *PostgresRepo) GetEntry(ctx context.Context, chatID int64, localID int) (*domain.Entry, error) {
	e, err := scanPGEntry(r.db.QueryRow(ctx,
		`SELECT `+pgEntryColumns+` FROM entries WHERE chat_id = $1 AND local_id = $2`,
		chatID, localID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}

func (r *PostgresRepo) ListEntries(ctx context.Context, chatID int64, offset, limit int) ([]domain.Entry, int, error) {
	var total int
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM entries WHERE chat_id = $1`, chatID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count entries: %w", err)
	}
	entries, err := r.queryEntries(ctx,
		`SELECT `+pgEntryColumns+` FROM entries
		 WHERE chat_id = $1
		 ORDER BY local_id DESC
		 LIMIT $2 OFFSET $3`,
		chatID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list entries: %w", err)
	}
	return entries, total, nil
}

func (r *PostgresRepo) ListEntriesByTag(ctx context.Context, chatID int64, tag string) ([]domain.Entry, error) {
	entries, err := r.queryEntries(ctx,
		`SELECT `+pgEntryColumns+` FROM entries
		 WHERE chat_id = $1 AND $2 = ANY(tags)
		 ORDER BY local_id DESC`,
		chatID, tag)
	if err != nil {
		return nil, fmt.Errorf("list entries by tag: %w", err)
	}
	return entries, nil
}

func (r *PostgresRepo) ListEntriesBetween(ctx context.Context, chatID int64, from, to time.Time) ([]domain.Entry, error) {
	query := `SELECT ` + pgEntryColumns + ` FROM entries WHERE chat_id = $1 AND created_at >= $2`
	args := []any{chatID, from.UTC()}
	if !to.IsZero() {
		query += ` AND created_at < $3`
		args = append(args, to.UTC())
	}
	query += ` ORDER BY created_at, local_id`

	entries, err := r.queryEntries(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries between: %w", err)
	}
	return entries, nil
}

func (r *PostgresRepo) UpdateEntry(ctx context.Context, e *domain.Entry) error {
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE entries SET title = $3, body = $4, tags = $5, link = $6
		WHERE chat_id = $1 AND local_id = $2`,
		e.ChatID, e.LocalID, e.Title, e.Body, tags, e.Link,
	)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	return pgAffected(tag)
}

func (r *PostgresRepo) DeleteEntry(ctx context.Context, chatID int64, localID int) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM entries WHERE chat_id = $1 AND local_id = $2`, chatID, localID)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return pgAffected(tag)
}

func (r *PostgresRepo) EntryStats(ctx context.Context, chatID int64) (domain.EntryStats, error) {
	var st domain.EntryStats
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM entries WHERE chat_id = $1`, chatID,
	).Scan(&st.Total); err != nil {
		return st, fmt.Errorf("count entries: %w", err)
	}
	if st.Total == 0 {
		return st, nil
	}

	first, err := scanPGEntry(r.db.QueryRow(ctx,
		`SELECT `+pgEntryColumns+` FROM entries WHERE chat_id = $1 ORDER BY created_at, local_id LIMIT 1`, chatID))
	if err != nil {
		return st, fmt.Errorf("first entry: %w", err)
	}
	last, err := scanPGEntry(r.db.QueryRow(ctx,
		`SELECT `+pgEntryColumns+` FROM entries WHERE chat_id = $1 ORDER BY created_at DESC, local_id DESC LIMIT 1`, chatID))
	if err != nil {
		return st, fmt.Errorf("last entry: %w", err)
	}
	st.First, st.Last = first, last
	return st, nil
}

func pgAffected(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
