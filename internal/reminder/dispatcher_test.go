package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Numbzin/Logzito/internal/clock"
	"github.com/Numbzin/Logzito/internal/domain"
)

type fakeStore struct {
	mu      sync.Mutex
	subs    []domain.Subscription
	listErr error
	// updErr fails every UpdateSubscription call.
	updErr  error
	patches map[int64][]domain.SubscriptionPatch
}

func newFakeStore(subs ...domain.Subscription) *fakeStore {
	return &fakeStore{subs: subs, patches: make(map[int64][]domain.SubscriptionPatch)}
}

func (s *fakeStore) ListActiveSubscriptions(context.Context) ([]domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []domain.Subscription
	for _, sub := range s.subs {
		if sub.Active {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateSubscription(_ context.Context, chatID int64, p domain.SubscriptionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patches[chatID] = append(s.patches[chatID], p)
	if s.updErr != nil {
		return s.updErr
	}
	for i := range s.subs {
		if s.subs[i].ChatID != chatID {
			continue
		}
		if p.LastSentAt != nil && (s.subs[i].LastSentAt == nil || p.LastSentAt.After(*s.subs[i].LastSentAt)) {
			t := *p.LastSentAt
			s.subs[i].LastSentAt = &t
		}
		if p.Active != nil {
			s.subs[i].Active = *p.Active
		}
		return nil
	}
	return errors.New("not found")
}

func (s *fakeStore) get(chatID int64) domain.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.ChatID == chatID {
			return sub
		}
	}
	return domain.Subscription{}
}

func (s *fakeStore) patchesFor(chatID int64) []domain.SubscriptionPatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.patches[chatID]
}

type fakeDeliverer struct {
	mu    sync.Mutex
	calls []int64
	errs  map[int64]error
	panic map[int64]bool
	hook  func(ctx context.Context, chatID int64)
}

func (f *fakeDeliverer) Deliver(ctx context.Context, chatID int64, text string) error {
	if f.hook != nil {
		f.hook(ctx, chatID)
	}
	f.mu.Lock()
	f.calls = append(f.calls, chatID)
	err, doPanic := f.errs[chatID], f.panic[chatID]
	f.mu.Unlock()
	if doPanic {
		panic("deliverer exploded")
	}
	return err
}

func (f *fakeDeliverer) callsSnapshot() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.calls...)
}

func localUTC(t *testing.T, tz string, y int, m time.Month, d, hh, mm int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation(tz)
	require.NoError(t, err)
	return time.Date(y, m, d, hh, mm, 0, 0, loc).UTC()
}

func newTestDispatcher(store Store, d Deliverer, opts ...Option) (*Dispatcher, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	opts = append([]Option{WithMessages(func() string { return "ping" })}, opts...)
	return New(store, d, zap.New(core), Config{}, opts...), logs
}

const saoPaulo = "America/Sao_Paulo"

func eightPM() domain.LocalTime { return domain.LocalTime(20 * 60) }

func TestRunOnce_DeliversAndRecords(t *testing.T) {
	store := newFakeStore(domain.Subscription{ChatID: 1, Active: true, LocalTime: eightPM(), TZ: saoPaulo})
	del := &fakeDeliverer{}
	disp, _ := newTestDispatcher(store, del)

	now := localUTC(t, saoPaulo, 2025, time.August, 14, 20, 0)
	st, err := disp.RunOnce(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, PassStats{Active: 1, Due: 1, Delivered: 1}, st)
	assert.Equal(t, []int64{1}, del.callsSnapshot())

	got := store.get(1)
	require.NotNil(t, got.LastSentAt)
	assert.True(t, got.LastSentAt.Equal(now))
}

func TestRunOnce_NoDoubleFire(t *testing.T) {
	store := newFakeStore(domain.Subscription{ChatID: 1, Active: true, LocalTime: eightPM(), TZ: saoPaulo})
	del := &fakeDeliverer{}
	disp, _ := newTestDispatcher(store, del)

	now := localUTC(t, saoPaulo, 2025, time.August, 14, 20, 0)
	for _, offset := range []time.Duration{0, 15 * time.Second, 40 * time.Second} {
		_, err := disp.RunOnce(context.Background(), now.Add(offset))
		require.NoError(t, err)
	}
	assert.Len(t, del.callsSnapshot(), 1)
}

func TestRunOnce_PermanentFailureDeactivates(t *testing.T) {
	store := newFakeStore(domain.Subscription{ChatID: 7, Active: true, LocalTime: eightPM(), TZ: saoPaulo})
	del := &fakeDeliverer{errs: map[int64]error{
		7: &DeliveryError{Code: 403, Description: "Forbidden: bot was blocked by the user"},
	}}
	disp, logs := newTestDispatcher(store, del)

	now := localUTC(t, saoPaulo, 2025, time.August, 14, 20, 0)
	st, err := disp.RunOnce(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Permanent)

	got := store.get(7)
	assert.False(t, got.Active)
	assert.Nil(t, got.LastSentAt, "permanent failure must not record a delivery")

	entries := logs.FilterMessage("permanent delivery failure, deactivating reminder").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(7), entries[0].ContextMap()["chat_id"])

	// The next day it is no longer listed.
	_, err = disp.RunOnce(context.Background(), localUTC(t, saoPaulo, 2025, time.August, 15, 20, 0))
	require.NoError(t, err)
	assert.Len(t, del.callsSnapshot(), 1)
}

func TestRunOnce_TransientFailureIsInert(t *testing.T) {
	store := newFakeStore(domain.Subscription{ChatID: 3, Active: true, LocalTime: eightPM(), TZ: saoPaulo})
	del := &fakeDeliverer{errs: map[int64]error{
		3: &DeliveryError{Code: 429, Description: "Too Many Requests: retry after 3"},
	}}
	disp, logs := newTestDispatcher(store, del)

	now := localUTC(t, saoPaulo, 2025, time.August, 14, 20, 0)
	st, err := disp.RunOnce(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Transient)
	assert.Empty(t, store.patchesFor(3))
	assert.True(t, store.get(3).Active)
	assert.Equal(t, 1, logs.FilterMessage("transient delivery failure").Len())

	// Another tick inside the same minute retries.
	del.mu.Lock()
	del.errs = nil
	del.mu.Unlock()
	st, err = disp.RunOnce(context.Background(), now.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, st.Delivered)
}

func TestRunOnce_IsolatesSubscriptions(t *testing.T) {
	store := newFakeStore(
		domain.Subscription{ChatID: 1, Active: true, LocalTime: eightPM(), TZ: "Mars/Olympus_Mons"},
		domain.Subscription{ChatID: 2, Active: true, LocalTime: eightPM(), TZ: saoPaulo},
		domain.Subscription{ChatID: 3, Active: true, LocalTime: eightPM(), TZ: saoPaulo},
		domain.Subscription{ChatID: 4, Active: true, LocalTime: eightPM(), TZ: saoPaulo},
		domain.Subscription{ChatID: 5, Active: true, LocalTime: eightPM(), TZ: saoPaulo},
	)
	del := &fakeDeliverer{
		panic: map[int64]bool{2: true},
		errs: map[int64]error{
			3: &DeliveryError{Code: 400, Description: "Bad Request: chat not found"},
			4: errors.New("dial tcp: i/o timeout"),
		},
	}
	disp, logs := newTestDispatcher(store, del)

	now := localUTC(t, saoPaulo, 2025, time.August, 14, 20, 0)
	st, err := disp.RunOnce(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, PassStats{Active: 5, Due: 4, Delivered: 1, Transient: 2, Permanent: 1, Invalid: 1}, st)
	assert.Equal(t, []int64{2, 3, 4, 5}, del.callsSnapshot(), "processed in input order")

	assert.True(t, store.get(2).Active)
	assert.Nil(t, store.get(2).LastSentAt)
	assert.False(t, store.get(3).Active)
	assert.Nil(t, store.get(4).LastSentAt)
	require.NotNil(t, store.get(5).LastSentAt)

	invalid := logs.FilterMessage("cannot evaluate subscription").All()
	require.Len(t, invalid, 1)
	assert.Equal(t, int64(1), invalid[0].ContextMap()["chat_id"])
}

func TestRunOnce_StoreReadFailureAbortsPass(t *testing.T) {
	store := newFakeStore(domain.Subscription{ChatID: 1, Active: true, LocalTime: eightPM(), TZ: saoPaulo})
	store.listErr = errors.New("database is locked")
	del := &fakeDeliverer{}
	disp, _ := newTestDispatcher(store, del)

	_, err := disp.RunOnce(context.Background(), localUTC(t, saoPaulo, 2025, time.August, 14, 20, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.Empty(t, del.callsSnapshot())
	assert.Empty(t, store.patchesFor(1))
}

func TestRunOnce_SkipsOverlappingPass(t *testing.T) {
	store := newFakeStore(domain.Subscription{ChatID: 1, Active: true, LocalTime: eightPM(), TZ: saoPaulo})
	entered := make(chan struct{})
	release := make(chan struct{})
	del := &fakeDeliverer{hook: func(context.Context, int64) {
		close(entered)
		<-release
	}}
	disp, _ := newTestDispatcher(store, del)
	now := localUTC(t, saoPaulo, 2025, time.August, 14, 20, 0)

	done := make(chan error, 1)
	go func() {
		_, err := disp.RunOnce(context.Background(), now)
		done <- err
	}()
	<-entered

	_, err := disp.RunOnce(context.Background(), now)
	assert.ErrorIs(t, err, ErrPassInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.Len(t, del.callsSnapshot(), 1)
}

func TestRun_FinishesInFlightPassOnShutdown(t *testing.T) {
	store := newFakeStore(domain.Subscription{ChatID: 1, Active: true, LocalTime: eightPM(), TZ: saoPaulo})
	now := localUTC(t, saoPaulo, 2025, time.August, 14, 20, 0)

	entered := make(chan struct{})
	release := make(chan struct{})
	var deliverCtxErr error
	del := &fakeDeliverer{hook: func(ctx context.Context, _ int64) {
		close(entered)
		<-release
		deliverCtxErr = ctx.Err()
	}}
	disp, _ := newTestDispatcher(store, del, WithClock(clock.Func(func() time.Time { return now })))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		disp.Run(ctx)
		close(stopped)
	}()

	<-entered
	cancel()
	select {
	case <-stopped:
		t.Fatalf("Run returned while a delivery was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after the pass finished")
	}

	assert.NoError(t, deliverCtxErr, "delivery must not see shutdown cancellation")
	require.NotNil(t, store.get(1).LastSentAt, "delivery must be recorded")
}

func TestDispatcher_SaoPauloScenario(t *testing.T) {
	store := newFakeStore(domain.Subscription{ChatID: 1, Active: true, LocalTime: eightPM(), TZ: saoPaulo})
	del := &fakeDeliverer{}
	disp, _ := newTestDispatcher(store, del)
	ctx := context.Background()

	dayD := localUTC(t, saoPaulo, 2025, time.August, 14, 20, 0)
	nextDay := localUTC(t, saoPaulo, 2025, time.August, 15, 20, 0)
	ticks := []time.Time{
		dayD.Add(-time.Minute),     // 19:59
		dayD,                       // 20:00, delivered
		dayD.Add(20 * time.Second), // same minute
		dayD.Add(time.Minute),      // 20:01
		dayD.Add(3 * time.Hour),    // 23:00 local, already the next UTC day
		nextDay,                    // D+1 20:00, delivered
	}
	for _, now := range ticks {
		_, err := disp.RunOnce(ctx, now)
		require.NoError(t, err)
	}

	assert.Equal(t, []int64{1, 1}, del.callsSnapshot())
	got := store.get(1)
	require.NotNil(t, got.LastSentAt)
	assert.True(t, got.LastSentAt.Equal(nextDay))
}

func TestDispatcher_TokyoLateEveningRearmsNextLocalDay(t *testing.T) {
	const tz = "Asia/Tokyo"
	store := newFakeStore(domain.Subscription{ChatID: 9, Active: true, LocalTime: domain.LocalTime(23*60 + 45), TZ: tz})
	del := &fakeDeliverer{}
	disp, _ := newTestDispatcher(store, del)
	ctx := context.Background()

	first := localUTC(t, tz, 2025, time.May, 10, 23, 45) // 14:45 UTC
	_, err := disp.RunOnce(ctx, first)
	require.NoError(t, err)
	_, err = disp.RunOnce(ctx, localUTC(t, tz, 2025, time.May, 11, 23, 45))
	require.NoError(t, err)

	assert.Len(t, del.callsSnapshot(), 2)
}

func TestRunOnce_OutOfRangeLocalTimeIsSkipped(t *testing.T) {
	store := newFakeStore(
		domain.Subscription{ChatID: 1, Active: true, LocalTime: domain.LocalTime(24 * 60), TZ: saoPaulo},
		domain.Subscription{ChatID: 2, Active: true, LocalTime: eightPM(), TZ: saoPaulo},
	)
	del := &fakeDeliverer{}
	disp, logs := newTestDispatcher(store, del)

	st, err := disp.RunOnce(context.Background(), localUTC(t, saoPaulo, 2025, time.August, 14, 20, 0))
	require.NoError(t, err)
	assert.Equal(t, PassStats{Active: 2, Due: 1, Delivered: 1, Invalid: 1}, st)
	assert.Equal(t, []int64{2}, del.callsSnapshot())
	assert.Empty(t, store.patchesFor(1))

	invalid := logs.FilterMessage("cannot evaluate subscription").All()
	require.Len(t, invalid, 1)
	assert.Equal(t, int64(1), invalid[0].ContextMap()["chat_id"])
}

// A delivery whose bookkeeping write fails is still counted as delivered.
// Nothing is recorded, so a second pass inside the same minute sends again;
// a tick of at least one minute keeps that to one send per day.
func TestRunOnce_RecordFailureIsLoggedAndNotRetriedAsFailure(t *testing.T) {
	store := newFakeStore(domain.Subscription{ChatID: 1, Active: true, LocalTime: eightPM(), TZ: saoPaulo})
	store.updErr = errors.New("disk I/O error")
	del := &fakeDeliverer{}
	disp, logs := newTestDispatcher(store, del)

	now := localUTC(t, saoPaulo, 2025, time.August, 14, 20, 0)
	st, err := disp.RunOnce(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, PassStats{Active: 1, Due: 1, Delivered: 1}, st)
	assert.Nil(t, store.get(1).LastSentAt)
	assert.True(t, store.get(1).Active)

	failed := logs.FilterMessage("record delivery failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, int64(1), failed[0].ContextMap()["chat_id"])

	// The next tick, one minute later, is no longer on target.
	st, err = disp.RunOnce(context.Background(), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, st.Due)
	assert.Len(t, del.callsSnapshot(), 1)
}
