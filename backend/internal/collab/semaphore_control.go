package collab

import (
	"context"
	"errors"
)

// MaxSemaphore is the default number of concurrent Kafka sends.
var MaxSemaphore int = 100

var (
	ErrAcquireTimeout = errors.New("semaphore acquire reached time limit")
	ErrNotAcquired    = errors.New("semaphore release failed, not acquired")
)

type SemaphoreControl struct {
	ch chan struct{}
}

// NewSemaphoreControl returns a semaphore of size n, or MaxSemaphore when n <= 0.
func NewSemaphoreControl(n int) *SemaphoreControl {
	if n <= 0 {
		n = MaxSemaphore
	}
	return &SemaphoreControl{ch: make(chan struct{}, n)}
}

func (s *SemaphoreControl) Acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ErrAcquireTimeout
	}
}

func (s *SemaphoreControl) Release() error {
	select {
	case <-s.ch:
		return nil
	default:
		return ErrNotAcquired
	}
}

// InUse reports how many slots are held.
func (s *SemaphoreControl) InUse() int { return len(s.ch) }
