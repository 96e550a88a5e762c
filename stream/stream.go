package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrClosed is returned by Emit after Close.
	ErrClosed = errors.New("stream closed")
	// ErrCancelled is returned by Emit once the stream context is done.
	ErrCancelled = errors.New("stream cancelled")
)

// Stream is an ordered, cancellable sequence of immutable values with one
// producer and one consumer.
type Stream[T any] struct {
	ch     chan T
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	err    error
	done   chan struct{}
}

// New creates a stream bound to ctx. buffer is the number of values the
// producer may run ahead of the consumer; zero makes every Emit a handoff.
func New[T any](ctx context.Context, buffer int) *Stream[T] {
	if buffer < 0 {
		buffer = 0
	}
	sctx, cancel := context.WithCancel(ctx)
	return &Stream[T]{
		ch:     make(chan T, buffer),
		ctx:    sctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Emit delivers v after every previously emitted value. It blocks until the
// value is buffered or accepted, or the stream is cancelled.
func (s *Stream[T]) Emit(v T) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	// Check cancellation first so a cancelled stream never accepts values
	// even when buffer space is available.
	if err := s.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	select {
	case s.ch <- v:
		return nil
	case <-s.ctx.Done():
		return fmt.Errorf("%w: %w", ErrCancelled, s.ctx.Err())
	}
}

// Close ends the sequence. err is reported by Err once the consumer drains
// the channel. Only the first call has an effect. Close must be called by the
// producer after its last Emit.
func (s *Stream[T]) Close(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.ch)
	close(s.done)
}

// C returns the receive side of the stream.
func (s *Stream[T]) C() <-chan T {
	return s.ch
}

// Done is closed when the producer has closed the stream.
func (s *Stream[T]) Done() <-chan struct{} {
	return s.done
}

// Context returns the stream context. It is cancelled by Cancel or when the
// parent context ends.
func (s *Stream[T]) Context() context.Context {
	return s.ctx
}

// Cancel abandons the stream from the consumer side. A blocked producer
// returns ErrCancelled.
func (s *Stream[T]) Cancel() {
	s.cancel()
}

// Err returns the error passed to Close.
func (s *Stream[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Drain delivers every value to fn in emission order, waiting delay between
// deliveries. It returns when the stream is closed, fn fails, or ctx ends.
// On early return the stream is cancelled so the producer does not block.
func Drain[T any](ctx context.Context, s *Stream[T], delay time.Duration, fn func(T) error) error {
	var timer *time.Timer
	if delay > 0 {
		timer = time.NewTimer(0)
		defer timer.Stop()
		<-timer.C
	}

	first := true
	for {
		select {
		case <-ctx.Done():
			s.Cancel()
			return ctx.Err()
		case v, ok := <-s.C():
			if !ok {
				return s.Err()
			}
			if !first && timer != nil {
				timer.Reset(delay)
				select {
				case <-timer.C:
				case <-ctx.Done():
					s.Cancel()
					return ctx.Err()
				}
			}
			first = false
			if err := fn(v); err != nil {
				s.Cancel()
				return err
			}
		}
	}
}

// Collect reads every value until the stream is closed.
func Collect[T any](s *Stream[T]) []T {
	var out []T
	for v := range s.C() {
		out = append(out, v)
	}
	return out
}
