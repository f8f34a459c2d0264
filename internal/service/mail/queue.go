package mail

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nkiryanov/kaizen/internal/logger"
)

const (
	defaultQueueWorkers = 4   // Number of workers delivering messages
	defaultQueueSize    = 100 // Messages waiting for delivery
	defaultRetryAfter   = 60 * time.Second
	maxAttempts         = 3
)

var ErrQueueFull = errors.New("mail queue is full")

// Sender is throttled and asks to wait before next attempt
type RetryError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("retry after %s: %v", e.RetryAfter, e.Err)
}

func (e *RetryError) Unwrap() error {
	return e.Err
}

// Build RetryError from Retry-After header value in seconds
func NewRetryError(header string, err error) *RetryError {
	retryAfter := defaultRetryAfter
	if seconds, perr := strconv.Atoi(strings.TrimSpace(header)); perr == nil && seconds >= 0 {
		retryAfter = time.Duration(seconds) * time.Second
	}
	return &RetryError{RetryAfter: retryAfter, Err: err}
}

type queued struct {
	msg      Message
	attempts int
}

// Queue delivers messages in background with a pool of workers
// If the sender is throttled all workers wait until the time is up
type Queue struct {
	countWorkers int
	messages     chan queued

	// Unix nanoseconds
	waitUntil atomic.Int64

	// Closed by Shutdown: workers deliver what is buffered and exit
	draining  chan struct{}
	drainOnce sync.Once
	cancel    context.CancelFunc
	stopped   chan struct{}

	sender Sender
	logger logger.Logger
}

// Zero workers or size means defaults
func NewQueue(sender Sender, l logger.Logger, workers int, size int) *Queue {
	if workers <= 0 {
		workers = defaultQueueWorkers
	}
	if size <= 0 {
		size = defaultQueueSize
	}

	return &Queue{
		countWorkers: workers,
		messages:     make(chan queued, size),
		draining:     make(chan struct{}),
		sender:       sender,
		logger:       l,
	}
}

// Enqueue message; never blocks
func (q *Queue) Send(_ context.Context, msg Message) error {
	select {
	case q.messages <- queued{msg: msg}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start workers. Returned channel is closed when all of them stopped
// Cancelling ctx stops workers at once, use Shutdown to deliver buffered messages first
func (q *Queue) Run(ctx context.Context) <-chan struct{} {
	ctx, q.cancel = context.WithCancel(ctx)
	q.stopped = make(chan struct{})

	var wg sync.WaitGroup
	for range q.countWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.worker(ctx)
		}()
	}

	go func() {
		defer close(q.stopped)
		wg.Wait()
		q.cancel()
		if left := len(q.messages); left > 0 {
			q.logger.Warn("Mail queue stopped with undelivered messages", "count", left)
		}
		q.logger.Debug("Mail queue stopped")
	}()

	return q.stopped
}

// Deliver buffered messages and stop workers
// If ctx is done first, in-flight sends are cancelled and the rest is dropped; ctx error is returned
func (q *Queue) Shutdown(ctx context.Context) error {
	q.drainOnce.Do(func() { close(q.draining) })
	if q.stopped == nil {
		return nil
	}

	select {
	case <-q.stopped:
		return nil
	case <-ctx.Done():
		q.cancel()
		<-q.stopped
		return ctx.Err()
	}
}

func (q *Queue) worker(ctx context.Context) {
	for {
		// Wait until throttling is over or context is done
		waitUntil := time.Unix(0, q.waitUntil.Load())
		if waitUntil.After(time.Now()) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Until(waitUntil)):
				continue
			}
		}

		select {
		case <-ctx.Done():
			return

		case item := <-q.messages:
			q.deliver(ctx, item)

		case <-q.draining:
			select {
			case item := <-q.messages:
				q.deliver(ctx, item)
			default:
				return
			}
		}
	}
}

func (q *Queue) deliver(ctx context.Context, item queued) {
	item.attempts++
	err := q.sender.Send(ctx, item.msg)

	var retryErr *RetryError
	switch {
	case err == nil:
		q.logger.Debug("Email sent", "subject", item.msg.Subject)

	case errors.As(err, &retryErr) && item.attempts < maxAttempts:
		q.logger.Warn("Mail service throttled, waiting", "retry_after", retryErr.RetryAfter)
		q.waitUntil.Store(time.Now().Add(retryErr.RetryAfter).UnixNano())
		q.requeue(item)

	default:
		q.logger.Error("Email not delivered", "subject", item.msg.Subject, "attempts", item.attempts, "error", err)
	}
}

func (q *Queue) requeue(item queued) {
	select {
	case q.messages <- item:
	default:
		q.logger.Error("Email dropped, mail queue is full", "subject", item.msg.Subject)
	}
}
