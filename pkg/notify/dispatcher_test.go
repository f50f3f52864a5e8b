package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock"
	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type flakyNotifier struct {
	mu       sync.Mutex
	failures int
	calls    int
	sent     []Notification
}

func (f *flakyNotifier) Notify(_ context.Context, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures != 0 {
		if f.failures > 0 {
			f.failures--
		}
		return errors.New("relay unavailable")
	}
	f.sent = append(f.sent, n)
	return nil
}

func (f *flakyNotifier) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *flakyNotifier) Sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestDispatcher(n Notifier, maxRetries int, clk clock.Clock) *Dispatcher {
	return NewDispatcher(n, DispatcherConfig{
		MaxRetries: maxRetries,
		BaseDelay:  time.Second,
		MaxDelay:   time.Minute,
		Clock:      clk,
	}, zap.NewNop())
}

func TestDispatcherDeliversImmediately(t *testing.T) {
	clk := testclock.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	notifier := &flakyNotifier{}
	d := newTestDispatcher(notifier, 3, clk)

	d.Dispatch(testNotification())
	assert.Equal(t, 1, d.ProcessDue(context.Background()))
	assert.Equal(t, 1, notifier.Sent())
	assert.Equal(t, 0, d.Pending())
}

func TestDispatcherRetriesWithBackoff(t *testing.T) {
	ctx := context.Background()
	clk := testclock.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	notifier := &flakyNotifier{failures: 2}
	d := newTestDispatcher(notifier, 3, clk)

	d.Dispatch(testNotification())
	assert.Equal(t, 1, d.ProcessDue(ctx))
	assert.Equal(t, 1, d.Pending())

	// first retry waits the base delay
	assert.Equal(t, 0, d.ProcessDue(ctx))
	clk.Advance(time.Second)
	assert.Equal(t, 1, d.ProcessDue(ctx))

	// second retry waits twice as long
	clk.Advance(time.Second)
	assert.Equal(t, 0, d.ProcessDue(ctx))
	clk.Advance(time.Second)
	assert.Equal(t, 1, d.ProcessDue(ctx))

	assert.Equal(t, 3, notifier.Calls())
	assert.Equal(t, 1, notifier.Sent())
	assert.Equal(t, 0, d.Pending())
}

func TestDispatcherDropsAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	clk := testclock.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	notifier := &flakyNotifier{failures: -1}
	d := newTestDispatcher(notifier, 2, clk)

	d.Dispatch(testNotification())
	for i := 0; i < 10; i++ {
		d.ProcessDue(ctx)
		clk.Advance(time.Minute)
	}

	assert.Equal(t, 3, notifier.Calls())
	assert.Equal(t, 0, notifier.Sent())
	assert.Equal(t, 0, d.Pending())
}

func TestDispatcherNotifyNeverFails(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	d := newTestDispatcher(&flakyNotifier{failures: -1}, 0, clk)

	assert.NoError(t, d.Notify(context.Background(), testNotification()))
	assert.Equal(t, 1, d.Pending())
}

func TestDispatcherBackoffCapped(t *testing.T) {
	d := newTestDispatcher(&flakyNotifier{}, 0, clock.WallClock)

	assert.Equal(t, time.Second, d.backoff(0))
	assert.Equal(t, 4*time.Second, d.backoff(2))
	assert.Equal(t, time.Minute, d.backoff(10))
}

func TestDispatcherWorkers(t *testing.T) {
	notifier := &flakyNotifier{}
	d := NewDispatcher(notifier, DispatcherConfig{Workers: 2, MaxRetries: 1}, zap.NewNop())

	d.Start(context.Background())
	defer d.Stop()

	for i := 0; i < 5; i++ {
		d.Dispatch(testNotification())
	}

	assert.Eventually(t, func() bool { return notifier.Sent() == 5 }, 2*time.Second, 10*time.Millisecond)
}

func TestDispatcherOpenBreakerDefersWithoutSpendingRetries(t *testing.T) {
	ctx := context.Background()
	clk := testclock.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	notifier := &flakyNotifier{failures: -1}
	d := NewDispatcher(notifier, DispatcherConfig{
		MaxRetries: 20,
		BaseDelay:  time.Second,
		MaxDelay:   time.Second,
		Clock:      clk,
	}, zap.NewNop())

	d.Dispatch(testNotification())
	for i := 0; i < 6; i++ {
		assert.Equal(t, 1, d.ProcessDue(ctx))
		clk.Advance(time.Second)
	}
	assert.Equal(t, 6, notifier.Calls())

	// the channel is now considered down; the item keeps waiting
	for i := 0; i < 10; i++ {
		d.ProcessDue(ctx)
		clk.Advance(time.Second)
	}
	assert.Equal(t, 6, notifier.Calls())

	pending := d.queue.GetAll()
	if assert.Len(t, pending, 1) {
		assert.Equal(t, 6, pending[0].RetryCount)
	}
}

func TestDispatcherStopReportsUndelivered(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	clk := testclock.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	d := NewDispatcher(&flakyNotifier{}, DispatcherConfig{Clock: clk}, zap.New(core))

	d.Dispatch(testNotification())
	d.Dispatch(testNotification())
	d.Stop()

	assert.Equal(t, 2, logs.FilterMessage("Discarding undelivered notification").Len())
	assert.Equal(t, 1, logs.FilterMessage("Notification dispatcher stopped with pending items").Len())
}

func TestDispatcherWaitTracksNextRetry(t *testing.T) {
	clk := testclock.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	d := newTestDispatcher(&flakyNotifier{failures: -1}, 3, clk)

	assert.Equal(t, defaultPollInterval, d.wait())

	d.Dispatch(testNotification())
	assert.Equal(t, time.Millisecond, d.wait())

	d.ProcessDue(context.Background())
	clk.Advance(400 * time.Millisecond)
	assert.Equal(t, 600*time.Millisecond, d.wait())
}
