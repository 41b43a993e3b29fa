package domain

import "time"

// Subscription is a user's daily reminder configuration.
type Subscription struct {
	ChatID     int64      // Telegram chat id, stable per user
	Active     bool       // false suspends evaluation; the dispatcher only clears it
	LocalTime  LocalTime  // time of day in TZ
	TZ         string     // IANA name
	LastSentAt *time.Time // UTC, nullable; only moves forward
}

// SubscriptionPatch is a partial update keyed by chat id. Nil fields are left untouched.
type SubscriptionPatch struct {
	LastSentAt *time.Time
	Active     *bool
}

// Empty reports whether the patch would change nothing.
func (p SubscriptionPatch) Empty() bool {
	return p.LastSentAt == nil && p.Active == nil
}

// User is the profile row. Its reminder columns form the Subscription.
type User struct {
	Subscription
	CreatedAt time.Time // UTC
}
