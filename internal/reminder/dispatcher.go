// Package reminder runs the daily reminder dispatcher: once per tick it reads
// every active subscription, decides which are due and delivers them.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Numbzin/Logzito/assets"
	"github.com/Numbzin/Logzito/internal/clock"
	"github.com/Numbzin/Logzito/internal/domain"
)

// ErrPassInProgress is returned by RunOnce when another pass still holds the lock.
var ErrPassInProgress = errors.New("reminder pass already in progress")

// Store is the slice of the repository the dispatcher needs.
type Store interface {
	ListActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error)
	UpdateSubscription(ctx context.Context, chatID int64, patch domain.SubscriptionPatch) error
}

// Deliverer sends one reminder text to a chat.
type Deliverer interface {
	Deliver(ctx context.Context, chatID int64, text string) error
}

// Config controls pass cadence and failure handling.
type Config struct {
	Tick        time.Duration
	PassTimeout time.Duration
	Rules       FailureRules
}

func (c Config) withDefaults() Config {
	if c.Tick <= 0 {
		c.Tick = time.Minute
	}
	if c.PassTimeout <= 0 {
		c.PassTimeout = 50 * time.Second
	}
	if c.Rules == nil {
		c.Rules = DefaultFailureRules
	}
	return c
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// WithMessages overrides how the reminder text is chosen.
func WithMessages(pick func() string) Option {
	return func(d *Dispatcher) { d.pick = pick }
}

// PassStats summarizes one pass.
type PassStats struct {
	Active    int
	Due       int
	Delivered int
	Transient int
	Permanent int
	Invalid   int
}

// Dispatcher evaluates subscriptions and delivers reminders.
type Dispatcher struct {
	store     Store
	deliverer Deliverer
	log       *zap.Logger
	clock     clock.Clock
	pick      func() string
	cfg       Config

	mu sync.Mutex
}

// New creates a dispatcher with the system clock and the embedded message pool.
func New(store Store, deliverer Deliverer, log *zap.Logger, cfg Config, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:     store,
		deliverer: deliverer,
		log:       log.Named("reminder"),
		clock:     clock.SystemClock{},
		pick:      randomPicker(assets.Reminders()),
		cfg:       cfg.withDefaults(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func randomPicker(pool []string) func() string {
	if len(pool) == 0 {
		pool = []string{"🔔 Time to write in your journal!"}
	}
	return func() string { return pool[rand.IntN(len(pool))] }
}

// Run evaluates a pass immediately and then on every tick until ctx is done.
// A pass in flight when ctx is cancelled runs to completion before Run returns.
func (d *Dispatcher) Run(ctx context.Context) {
	d.log.Info("dispatcher started",
		zap.Duration("tick", d.cfg.Tick),
		zap.Duration("pass_timeout", d.cfg.PassTimeout),
	)
	ticker := time.NewTicker(d.cfg.Tick)
	defer ticker.Stop()

	for {
		if _, err := d.RunOnce(ctx, d.clock.Now()); err != nil {
			d.log.Warn("reminder pass failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			d.log.Info("dispatcher stopping")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs one evaluation pass at now. The pass is detached from ctx
// cancellation and bounded by the pass timeout. It returns ErrPassInProgress
// without doing anything if a previous pass has not finished.
func (d *Dispatcher) RunOnce(ctx context.Context, now time.Time) (PassStats, error) {
	var st PassStats
	if !d.mu.TryLock() {
		passesTotal.WithLabelValues("skipped").Inc()
		return st, ErrPassInProgress
	}
	defer d.mu.Unlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.PassTimeout)
	defer cancel()

	log := d.log.With(zap.String("pass_id", uuid.NewString()))
	now = now.UTC()

	subs, err := d.store.ListActiveSubscriptions(ctx)
	if err != nil {
		recordPass("store_error", time.Since(start))
		return st, fmt.Errorf("list active subscriptions: %w", err)
	}
	st.Active = len(subs)

	for i := range subs {
		if ctx.Err() != nil {
			log.Warn("pass timeout reached, remaining subscriptions wait for the next tick",
				zap.Int("processed", i), zap.Int("total", len(subs)))
			break
		}
		d.process(ctx, log, subs[i], now, &st)
	}

	recordPass("ok", time.Since(start))
	if st.Due > 0 || st.Invalid > 0 {
		log.Info("reminder pass done",
			zap.Int("active", st.Active),
			zap.Int("due", st.Due),
			zap.Int("delivered", st.Delivered),
			zap.Int("transient", st.Transient),
			zap.Int("permanent", st.Permanent),
			zap.Int("invalid", st.Invalid),
			zap.Duration("took", time.Since(start)),
		)
	}
	return st, nil
}

// process handles one subscription. Nothing it does can abort the pass.
func (d *Dispatcher) process(ctx context.Context, log *zap.Logger, sub domain.Subscription, now time.Time, st *PassStats) {
	log = log.With(zap.Int64("chat_id", sub.ChatID))

	due, err := domain.IsDue(&sub, now)
	if err != nil {
		st.Invalid++
		evaluationErrorsTotal.Inc()
		log.Warn("cannot evaluate subscription", zap.String("tz", sub.TZ), zap.Error(err))
		return
	}
	if !due {
		return
	}
	st.Due++

	switch outcome, err := d.deliver(ctx, sub.ChatID); outcome {
	case Delivered:
		st.Delivered++
		if err := d.store.UpdateSubscription(ctx, sub.ChatID, domain.SubscriptionPatch{LastSentAt: &now}); err != nil {
			log.Error("record delivery failed", zap.Error(err))
		}
	case Permanent:
		st.Permanent++
		log.Warn("permanent delivery failure, deactivating reminder", zap.Error(err))
		off := false
		if err := d.store.UpdateSubscription(ctx, sub.ChatID, domain.SubscriptionPatch{Active: &off}); err != nil {
			log.Error("deactivate subscription failed", zap.Error(err))
			return
		}
		deactivationsTotal.Inc()
	default:
		st.Transient++
		log.Warn("transient delivery failure", zap.Error(err))
	}
}

// deliver calls the Deliverer once and classifies the result. A panic is
// reported as a transient failure.
func (d *Dispatcher) deliver(ctx context.Context, chatID int64) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome, err = Transient, fmt.Errorf("panic during delivery: %v", r)
		}
		recordDelivery(outcome)
	}()
	err = d.deliverer.Deliver(ctx, chatID, d.pick())
	return d.cfg.Rules.Classify(err), err
}
