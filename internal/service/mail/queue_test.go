package mail

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/kaizen/internal/logger"
)

// Fails with errs one by one, then delivers to the channel
type flakySender struct {
	calls     atomic.Int32
	errs      []error
	delivered chan Message
}

func (s *flakySender) Send(_ context.Context, msg Message) error {
	n := int(s.calls.Add(1))
	if n <= len(s.errs) {
		return s.errs[n-1]
	}
	s.delivered <- msg
	return nil
}

func Test_Queue(t *testing.T) {
	t.Parallel()

	waitDelivered := func(t *testing.T, ch <-chan Message) Message {
		t.Helper()
		select {
		case msg := <-ch:
			return msg
		case <-time.After(2 * time.Second):
			t.Fatal("message not delivered in time")
			return Message{}
		}
	}

	t.Run("deliver", func(t *testing.T) {
		sender := &flakySender{delivered: make(chan Message, 1)}
		q := NewQueue(sender, logger.NewNoOpLogger(), 2, 10)
		ctx, cancel := context.WithCancel(t.Context())
		stopped := q.Run(ctx)

		err := q.Send(t.Context(), Message{Subject: "hello"})

		require.NoError(t, err)
		assert.Equal(t, "hello", waitDelivered(t, sender.delivered).Subject)
		cancel()
		<-stopped
	})

	t.Run("retry when throttled", func(t *testing.T) {
		sender := &flakySender{
			errs:      []error{&RetryError{RetryAfter: 10 * time.Millisecond}},
			delivered: make(chan Message, 1),
		}
		q := NewQueue(sender, logger.NewNoOpLogger(), 1, 10)
		ctx, cancel := context.WithCancel(t.Context())
		stopped := q.Run(ctx)

		require.NoError(t, q.Send(t.Context(), Message{Subject: "hello"}))

		assert.Equal(t, "hello", waitDelivered(t, sender.delivered).Subject)
		assert.EqualValues(t, 2, sender.calls.Load())
		cancel()
		<-stopped
	})

	t.Run("give up after attempts", func(t *testing.T) {
		throttled := &RetryError{RetryAfter: time.Millisecond}
		sender := &flakySender{
			errs:      []error{throttled, throttled, throttled, errors.New("never reached")},
			delivered: make(chan Message, 1),
		}
		q := NewQueue(sender, logger.NewNoOpLogger(), 1, 10)
		ctx, cancel := context.WithCancel(t.Context())
		stopped := q.Run(ctx)

		require.NoError(t, q.Send(t.Context(), Message{Subject: "hello"}))

		require.Eventually(t, func() bool { return sender.calls.Load() == maxAttempts }, time.Second, 5*time.Millisecond)
		time.Sleep(20 * time.Millisecond)
		assert.EqualValues(t, maxAttempts, sender.calls.Load(), "message must not be retried endlessly")
		cancel()
		<-stopped
	})

	t.Run("full queue", func(t *testing.T) {
		q := NewQueue(&flakySender{}, logger.NewNoOpLogger(), 1, 1)

		require.NoError(t, q.Send(t.Context(), Message{}))
		err := q.Send(t.Context(), Message{})

		require.ErrorIs(t, err, ErrQueueFull)
	})

	t.Run("shutdown delivers buffered messages", func(t *testing.T) {
		sender := &flakySender{delivered: make(chan Message, 5)}
		q := NewQueue(sender, logger.NewNoOpLogger(), 2, 10)
		for _, subject := range []string{"one", "two", "three", "four", "five"} {
			require.NoError(t, q.Send(t.Context(), Message{Subject: subject}))
		}
		q.Run(t.Context())

		err := q.Shutdown(t.Context())

		require.NoError(t, err)
		assert.Len(t, sender.delivered, 5, "all buffered messages delivered before stop")
		assert.Empty(t, q.messages)
	})

	t.Run("shutdown deadline while throttled", func(t *testing.T) {
		sender := &flakySender{delivered: make(chan Message, 1)}
		q := NewQueue(sender, logger.NewNoOpLogger(), 1, 1)
		q.waitUntil.Store(time.Now().Add(time.Hour).UnixNano())
		require.NoError(t, q.Send(t.Context(), Message{Subject: "hello"}))
		q.Run(t.Context())
		ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
		defer cancel()

		err := q.Shutdown(ctx)

		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Zero(t, sender.calls.Load(), "throttled message never sent")
	})

	t.Run("shutdown without run", func(t *testing.T) {
		q := NewQueue(&flakySender{}, logger.NewNoOpLogger(), 1, 1)

		require.NoError(t, q.Shutdown(t.Context()))
	})

	t.Run("stop while throttled", func(t *testing.T) {
		q := NewQueue(&flakySender{}, logger.NewNoOpLogger(), 3, 1)
		q.waitUntil.Store(time.Now().Add(time.Hour).UnixNano())
		ctx, cancel := context.WithCancel(t.Context())
		stopped := q.Run(ctx)

		cancel()

		select {
		case <-stopped:
		case <-time.After(time.Second):
			t.Fatal("workers must stop on context cancel")
		}
	})
}

func Test_NewRetryError(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"30", 30 * time.Second},
		{" 5 ", 5 * time.Second},
		{"", defaultRetryAfter},
		{"Wed, 21 Oct 2015 07:28:00 GMT", defaultRetryAfter},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			err := NewRetryError(tt.header, errors.New("throttled"))

			assert.Equal(t, tt.want, err.RetryAfter)
		})
	}
}
