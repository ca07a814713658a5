package notify

import (
	"context"
	"sync"
	"time"

	"wagerboard/internal/metrics"

	"github.com/rs/zerolog/log"
)

type DispatcherConfig struct {
	QueueSize   int
	RetryMax    int
	RetryBase   time.Duration
	SendTimeout time.Duration
}

type job struct {
	msg     Message
	attempt int
}

// Dispatcher decouples callers from the publisher: Publish only enqueues,
// a worker goroutine delivers and retries with exponential backoff.
type Dispatcher struct {
	pub    Publisher
	cfg    DispatcherConfig
	jobs   chan job
	retryQ *retryQueue
	done   chan struct{}

	mu      sync.Mutex
	started bool
	stopped sync.WaitGroup
}

func NewDispatcher(pub Publisher, cfg DispatcherConfig) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	d := &Dispatcher{
		pub:  pub,
		cfg:  cfg,
		jobs: make(chan job, cfg.QueueSize),
		done: make(chan struct{}),
	}
	d.retryQ = newRetryQueue(d.jobs, d.done)
	return d
}

// Start launches the worker. It stops when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	d.stopped.Add(1)
	go d.worker(ctx)
	go func() {
		<-ctx.Done()
		close(d.done)
	}()
}

// Wait blocks until the worker has exited.
func (d *Dispatcher) Wait() {
	d.stopped.Wait()
}

// Publish never blocks and never fails; a full queue drops the message.
func (d *Dispatcher) Publish(_ context.Context, msg Message) error {
	if msg.At.IsZero() {
		msg.At = time.Now().UTC()
	}
	select {
	case d.jobs <- job{msg: msg}:
		metrics.NotifyQueueLen.Set(float64(len(d.jobs)))
	default:
		metrics.NotifyDeliveries.WithLabelValues("dropped").Inc()
		log.Warn().Str("type", msg.Type).Str("scope_id", msg.ScopeID).Msg("notify queue full, message dropped")
	}
	return nil
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.stopped.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-d.jobs:
			metrics.NotifyQueueLen.Set(float64(len(d.jobs)))
			d.deliver(ctx, j)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, j job) {
	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	err := d.pub.Publish(sendCtx, j.msg)
	cancel()
	if err == nil {
		metrics.NotifyDeliveries.WithLabelValues("sent").Inc()
		return
	}
	metrics.NotifyDeliveries.WithLabelValues("failed").Inc()
	if !d.retryOrDrop(j) {
		log.Error().Err(err).Str("type", j.msg.Type).Int("attempt", j.attempt).Msg("notify delivery abandoned")
		return
	}
	log.Debug().Err(err).Str("type", j.msg.Type).Int("attempt", j.attempt).Msg("notify delivery failed, retrying")
}

func (d *Dispatcher) retryOrDrop(j job) bool {
	if j.attempt >= d.cfg.RetryMax {
		metrics.NotifyDeliveries.WithLabelValues("dropped").Inc()
		return false
	}
	j.attempt++
	metrics.NotifyDeliveries.WithLabelValues("retried").Inc()
	delay := d.cfg.RetryBase * time.Duration(1<<(j.attempt-1))
	d.retryQ.Enqueue(j, delay)
	return true
}

// Close releases the wrapped publisher's resources, if it holds any.
func (d *Dispatcher) Close() error {
	if c, ok := d.pub.(Closer); ok {
		return c.Close()
	}
	return nil
}

type retryQueue struct {
	out  chan<- job
	done <-chan struct{}
}

func newRetryQueue(out chan<- job, done <-chan struct{}) *retryQueue {
	return &retryQueue{out: out, done: done}
}

func (q *retryQueue) Enqueue(j job, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	time.AfterFunc(delay, func() {
		select {
		case <-q.done:
		case q.out <- j:
		}
	})
}
