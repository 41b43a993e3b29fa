package store

import (
	"context"
	"errors"
	"time"

	"github.com/Numbzin/Logzito/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
)

// Repo defines storage operations for user profiles, reminder subscriptions and journal entries.
type Repo interface {
	// EnsureUser returns the user row, inserting one built from defaults when
	// absent. created reports whether a row was inserted.
	EnsureUser(ctx context.Context, chatID int64, defaults domain.Subscription) (u *domain.User, created bool, err error)
	GetUser(ctx context.Context, chatID int64) (*domain.User, error)
	// SetReminder stores the reminder preference without touching last_sent_at.
	SetReminder(ctx context.Context, chatID int64, active bool, at domain.LocalTime, tz string) error

	// ListActiveSubscriptions returns every subscription with active = true, ordered by chat id.
	ListActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error)
	// UpdateSubscription applies a partial update. LastSentAt is applied only
	// when it is later than the stored value.
	UpdateSubscription(ctx context.Context, chatID int64, patch domain.SubscriptionPatch) error

	// AddEntry inserts e, assigning ID and the next per-user LocalID.
	AddEntry(ctx context.Context, e *domain.Entry) error
	GetEntry(ctx context.Context, chatID int64, localID int) (*domain.Entry, error)
	// ListEntries pages through entries newest first and returns the total count.
	ListEntries(ctx context.Context, chatID int64, offset, limit int) ([]domain.Entry, int, error)
	ListEntriesByTag(ctx context.Context, chatID int64, tag string) ([]domain.Entry, error)
	// ListEntriesBetween returns entries created in [from, to), oldest first.
	// A zero to means no upper bound.
	ListEntriesBetween(ctx context.Context, chatID int64, from, to time.Time) ([]domain.Entry, error)
	UpdateEntry(ctx context.Context, e *domain.Entry) error
	DeleteEntry(ctx context.Context, chatID int64, localID int) error
	EntryStats(ctx context.Context, chatID int64) (domain.EntryStats, error)

	Close() error
}
