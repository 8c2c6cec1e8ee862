// Package notify delivers account notifications, currently the TOTP
// enrollment material, out of band.
//
// Delivery is asynchronous through [Queue]. A failed or dropped delivery is
// logged and counted; it never propagates back into the operation that
// produced the material.
package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ErrQueueFull is returned by Queue.Enqueue when the buffer has no room.
var ErrQueueFull = errors.New("notification queue full")

// ErrQueueClosed is returned by Queue.Enqueue after Close.
var ErrQueueClosed = errors.New("notification queue closed")

// Material is the enrollment payload sent to the account holder.
type Material struct {
	AccountID string
	Issuer    string
	URI       string
	QRCode    []byte
}

// Notifier sends material to email.
type Notifier interface {
	Deliver(ctx context.Context, email string, m Material) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, email string, m Material) error

func (f NotifierFunc) Deliver(ctx context.Context, email string, m Material) error {
	return f(ctx, email, m)
}

// LogNotifier records deliveries in the log without sending anything. It is
// the default when no mail transport is configured.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) Deliver(_ context.Context, email string, m Material) error {
	n.Logger.Info().
		Str("account_id", m.AccountID).
		Str("email", email).
		Int("qr_bytes", len(m.QRCode)).
		Msg("totp enrollment material ready")
	return nil
}

// QueueConfig sizes the delivery queue.
type QueueConfig struct {
	BufferSize int
	Timeout    time.Duration
}

type job struct {
	email    string
	material Material
}

// Queue hands deliveries to one background worker.
type Queue struct {
	notifier Notifier
	logger   zerolog.Logger
	timeout  time.Duration

	ch   chan job
	done chan struct{}
	wg   sync.WaitGroup
	// mu orders sends against Close so every accepted job is drained.
	mu     sync.RWMutex
	closed bool

	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// NewQueue starts the worker.
func NewQueue(n Notifier, cfg QueueConfig, logger zerolog.Logger) *Queue {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	q := &Queue{
		notifier: n,
		logger:   logger.With().Str("component", "notify").Logger(),
		timeout:  cfg.Timeout,
		ch:       make(chan job, cfg.BufferSize),
		done:     make(chan struct{}),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

// Enqueue never blocks. A full or closed queue reports an error and counts
// the drop.
func (q *Queue) Enqueue(email string, m Material) error {
	if q == nil {
		return ErrQueueClosed
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- job{email: email, material: m}:
		return nil
	default:
		q.dropped.Add(1)
		q.logger.Warn().Str("account_id", m.AccountID).Msg("notification dropped, queue full")
		return ErrQueueFull
	}
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case j := <-q.ch:
			q.deliver(j)
		case <-q.done:
			for {
				select {
				case j := <-q.ch:
					q.deliver(j)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) deliver(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	if err := q.notifier.Deliver(ctx, j.email, j.material); err != nil {
		q.failed.Add(1)
		q.logger.Error().Err(err).Str("account_id", j.material.AccountID).Msg("notification delivery failed")
		return
	}
	q.delivered.Add(1)
}

// Close drains pending jobs and stops the worker.
func (q *Queue) Close() {
	if q == nil {
		return
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()
	q.wg.Wait()
}

// Stats is a point-in-time view of the queue counters.
type Stats struct {
	Delivered uint64
	Failed    uint64
	Dropped   uint64
}

func (q *Queue) Stats() Stats {
	if q == nil {
		return Stats{}
	}
	return Stats{
		Delivered: q.delivered.Load(),
		Failed:    q.failed.Load(),
		Dropped:   q.dropped.Load(),
	}
}
