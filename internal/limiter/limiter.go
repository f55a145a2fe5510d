// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package limiter bounds the number of in-flight external calls for a single
// research request.
package limiter

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gauge receives in-flight changes. prometheus.Gauge satisfies it.
type Gauge interface {
	Inc()
	Dec()
}

// Limiter is a counting permit pool with in-flight and peak accounting.
type Limiter struct {
	sem      *semaphore.Weighted
	size     int64
	inflight atomic.Int64
	peak     atomic.Int64
	gauge    Gauge
}

// New returns a limiter with n permits. n below 1 is treated as 1.
// gauge may be nil.
func New(n int, gauge Gauge) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{
		sem:   semaphore.NewWeighted(int64(n)),
		size:  int64(n),
		gauge: gauge,
	}
}

// Acquire blocks until a permit is free or ctx is done. The returned release
// function is safe to call more than once; only the first call frees the permit.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return func() {}, err
	}
	cur := l.inflight.Add(1)
	for {
		p := l.peak.Load()
		if cur <= p || l.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	if l.gauge != nil {
		l.gauge.Inc()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.inflight.Add(-1)
			if l.gauge != nil {
				l.gauge.Dec()
			}
			l.sem.Release(1)
		})
	}, nil
}

// Size returns the number of permits.
func (l *Limiter) Size() int { return int(l.size) }

// InFlight returns the number of permits currently held.
func (l *Limiter) InFlight() int64 { return l.inflight.Load() }

// Peak returns the largest InFlight value observed.
func (l *Limiter) Peak() int64 { return l.peak.Load() }
