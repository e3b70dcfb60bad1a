package etl

import (
	"sync"
	"time"
)

// Clock is the time source for ingestion stamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock.
var SystemClock Clock = systemClock{}

// Sleeper pauses the caller. Tests substitute a recorder.
type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// RealSleeper blocks on time.Sleep.
var RealSleeper Sleeper = realSleeper{}

// Stamper hands out UTC ingestion times that never go backwards, even if the
// wall clock is stepped during a run.
type Stamper struct {
	mu    sync.Mutex
	clock Clock
	last  time.Time
}

func NewStamper(c Clock) *Stamper {
	if c == nil {
		c = SystemClock
	}
	return &Stamper{clock: c}
}

func (s *Stamper) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now().UTC().Truncate(time.Millisecond)
	if now.Before(s.last) {
		now = s.last
	}
	s.last = now
	return now
}
