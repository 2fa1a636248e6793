package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cppla/dailyink/config"
	"github.com/cppla/dailyink/models"
)

type recorder struct {
	mu   sync.Mutex
	got  []Event
	fail error
}

func (r *recorder) FeedbackUnlocked(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, ev)
	return r.fail
}

func (r *recorder) events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.got...)
}

func event(id string) Event {
	return Event{Type: EventFeedbackUnlocked, SubmissionID: id, UserID: "u1", Category: models.CategoryA, LocalDay: "2025-01-06"}
}

func TestDispatcherDedupesThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	rec := &recorder{}
	// Two dispatchers sharing Redis behave like two service instances.
	d1 := NewDispatcher(rec, NewDeduper(rc, "test:"), time.Second, zap.NewNop())
	d2 := NewDispatcher(rec, NewDeduper(rc, "test:"), time.Second, zap.NewNop())

	d1.Dispatch(event("s1"))
	d2.Dispatch(event("s1"))
	d1.Dispatch(event("s2"))
	d1.Wait()
	d2.Wait()

	got := rec.events()
	require.Len(t, got, 2)
	assert.True(t, mr.Exists("test:feedback.unlocked:s1"))
	ttl := mr.TTL("test:feedback.unlocked:s1")
	assert.Equal(t, dedupeTTL, ttl)
}

func TestDeduperFallsBackToMemory(t *testing.T) {
	d := NewDeduper(nil, "")
	ctx := context.Background()
	assert.True(t, d.Claim(ctx, "k", time.Minute))
	assert.False(t, d.Claim(ctx, "k", time.Minute))
	assert.True(t, d.Claim(ctx, "other", time.Minute))

	assert.True(t, d.Claim(ctx, "short", time.Nanosecond))
	time.Sleep(time.Millisecond)
	assert.True(t, d.Claim(ctx, "short", time.Minute))
}

func TestDeduperSurvivesRedisOutage(t *testing.T) {
	// Nothing listens on port 1.
	rc := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = rc.Close() })

	d := NewDeduper(rc, "test:")
	ctx := context.Background()
	assert.True(t, d.Claim(ctx, "k", time.Minute))
	assert.False(t, d.Claim(ctx, "k", time.Minute))
}

func TestDispatcherSwallowsFailures(t *testing.T) {
	rec := &recorder{fail: errors.New("smtp down")}
	d := NewDispatcher(rec, nil, time.Second, zap.NewNop())

	assert.NotPanics(t, func() {
		d.Dispatch(event("s1"))
		d.Wait()
	})
	assert.Len(t, rec.events(), 1)
}

func TestNilDispatcherIsNoop(t *testing.T) {
	var d *Dispatcher
	d.Dispatch(event("s1"))
	d.Wait()
}

func TestMailerRequiresConfig(t *testing.T) {
	_, err := NewMailer(config.SMTPSection{})
	assert.Error(t, err)

	m, err := NewMailer(config.SMTPSection{Host: "localhost", Port: 2525, From: "noreply@example.com"})
	require.NoError(t, err)
	assert.ErrorIs(t, m.FeedbackUnlocked(context.Background(), event("s1")), ErrNoRecipient)
}

func TestPublisherRequiresURL(t *testing.T) {
	_, err := NewPublisher("", "dailyink.events")
	assert.Error(t, err)
}
