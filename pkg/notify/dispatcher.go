package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"lms/pkg/circuitbreaker"
	"lms/pkg/queue"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"go.uber.org/zap"
)

const (
	defaultBaseDelay    = time.Second
	defaultMaxDelay     = 5 * time.Minute
	defaultPollInterval = time.Second
	deliveryTimeout     = 10 * time.Second
)

type DispatcherConfig struct {
	Workers    int
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Clock      clock.Clock
}

// Dispatcher delivers notifications in the background. Failed deliveries
// are retried with exponential backoff until MaxRetries is exhausted, after
// which they are logged and dropped. Callers never see delivery errors.
type Dispatcher struct {
	notifier Notifier
	queue    *queue.Queue[Notification]
	breaker  *circuitbreaker.CircuitBreaker
	clock    clock.Clock
	logger   *zap.Logger

	workers    int
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDispatcher(notifier Notifier, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		notifier:   notifier,
		queue:      queue.NewQueue[Notification](),
		breaker:    circuitbreaker.NewCircuitBreaker(5, 30*time.Second, time.Minute, cfg.Clock),
		clock:      cfg.Clock,
		logger:     logger,
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		maxDelay:   cfg.MaxDelay,
	}
}

// Dispatch schedules n for immediate delivery.
func (d *Dispatcher) Dispatch(n Notification) {
	d.queue.Enqueue(&queue.Item[Notification]{
		ID:         uuid.New().String(),
		Value:      n,
		RetryAt:    d.clock.Now(),
		MaxRetries: d.maxRetries,
	})
}

// Notify lets the dispatcher stand in for a synchronous Notifier. It only
// queues, so it never fails.
func (d *Dispatcher) Notify(_ context.Context, n Notification) error {
	d.Dispatch(n)
	return nil
}

func (d *Dispatcher) Pending() int {
	return d.queue.Size()
}

// Start launches the worker goroutines. They run until ctx is cancelled or
// Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run(ctx)
	}
	d.logger.Info("Notification dispatcher started", zap.Int("workers", d.workers))
}

func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()

	// Pending items live only in memory and are lost here.
	pending := d.queue.GetAll()
	for _, item := range pending {
		d.logger.Warn("Discarding undelivered notification",
			zap.String("to", item.Value.To),
			zap.Uint("request_id", item.Value.Body.RequestID),
			zap.Int("retries", item.RetryCount),
		)
	}
	if len(pending) > 0 {
		d.logger.Warn("Notification dispatcher stopped with pending items", zap.Int("pending", len(pending)))
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for {
		d.ProcessDue(ctx)

		select {
		case <-ctx.Done():
			return
		case <-d.queue.Signal():
		case <-d.clock.After(d.wait()):
		}
	}
}

// wait is the time until the next queued retry, capped at the poll interval.
func (d *Dispatcher) wait() time.Duration {
	next, ok := d.queue.NextDue()
	if !ok {
		return defaultPollInterval
	}
	w := next.Sub(d.clock.Now())
	switch {
	case w <= 0:
		return time.Millisecond
	case w > defaultPollInterval:
		return defaultPollInterval
	}
	return w
}

// ProcessDue attempts every item whose retry time has passed and returns
// how many were attempted.
func (d *Dispatcher) ProcessDue(ctx context.Context) int {
	attempted := 0
	for ctx.Err() == nil {
		item := d.queue.Dequeue(d.clock.Now())
		if item == nil {
			break
		}
		attempted++
		d.deliver(ctx, item)
	}
	return attempted
}

func (d *Dispatcher) deliver(ctx context.Context, item *queue.Item[Notification]) {
	err := d.breaker.Execute(func() error {
		sendCtx, cancel := context.WithTimeout(ctx, deliveryTimeout)
		defer cancel()
		return d.notifier.Notify(sendCtx, item.Value)
	}, func(err error) error {
		// An open breaker is not the recipient's fault; wait it out
		// without spending a retry.
		item.RetryAt = d.clock.Now().Add(d.baseDelay)
		d.queue.Enqueue(item)
		d.logger.Debug("Notification deferred, channel circuit open",
			zap.Uint("request_id", item.Value.Body.RequestID),
			zap.Time("retry_at", item.RetryAt),
		)
		return err
	})
	if err == nil {
		d.logger.Info("Notification delivered",
			zap.String("to", item.Value.To),
			zap.Uint("request_id", item.Value.Body.RequestID),
			zap.Int("attempt", item.RetryCount+1),
		)
		return
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return
	}

	if item.Exhausted() {
		d.logger.Error("Dropping notification after max retries",
			zap.String("to", item.Value.To),
			zap.Uint("request_id", item.Value.Body.RequestID),
			zap.Int("retries", item.RetryCount),
			zap.Error(err),
		)
		return
	}

	delay := d.backoff(item.RetryCount)
	item.RetryCount++
	item.RetryAt = d.clock.Now().Add(delay)
	d.queue.Enqueue(item)

	d.logger.Warn("Notification delivery failed, retrying",
		zap.String("to", item.Value.To),
		zap.Uint("request_id", item.Value.Body.RequestID),
		zap.Int("retry", item.RetryCount),
		zap.Duration("delay", delay),
		zap.Error(err),
	)
}

func (d *Dispatcher) backoff(retry int) time.Duration {
	delay := d.baseDelay
	for i := 0; i < retry; i++ {
		delay *= 2
		if delay >= d.maxDelay {
			return d.maxDelay
		}
	}
	return delay
}
