// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package resilient wraps every external call with a concurrency permit, a
// per-attempt timeout, bounded retries with exponential backoff, and failure
// classification. Callers get either a value or a *Failure; nothing external
// escapes as a panic or an unclassified error.
package resilient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/gtm-research/internal/limiter"
	"github.com/pdiddy/gtm-research/pkg/types"
)

// ErrUnparseable marks a response that arrived but could not be decoded.
// It is never retried.
var ErrUnparseable = errors.New("unparseable response")

// ErrPermanent marks an error that retrying cannot fix.
var ErrPermanent = errors.New("permanent failure")

// Failure is the classified result of an external call that did not succeed.
type Failure struct {
	Kind     types.ErrorKind
	Attempts int
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s after %d attempt(s): %v", f.Kind, f.Attempts, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Recorder observes calls. *metrics.Metrics implements it.
type Recorder interface {
	ExternalCall(name string)
	FailedCall(name string, kind types.ErrorKind)
}

// Caller holds the shared policy for one research request.
type Caller struct {
	lim   *limiter.Limiter
	cfg   types.CallerConfig
	rec   Recorder
	log   *zap.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Caller.
type Option func(*Caller)

// WithRecorder reports calls and failures to r.
func WithRecorder(r Recorder) Option {
	return func(c *Caller) { c.rec = r }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(c *Caller) { c.log = l }
}

// WithSleep replaces the backoff wait, for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Caller) { c.sleep = fn }
}

// New returns a Caller that draws permits from lim.
func New(lim *limiter.Limiter, cfg types.CallerConfig, opts ...Option) *Caller {
	c := &Caller{
		lim:   lim,
		cfg:   cfg,
		log:   zap.NewNop(),
		sleep: sleepCtx,
	}
	for _, o := range opts {
		o(c)
	}
	if c.cfg.MaxRetries < 0 {
		c.cfg.MaxRetries = 0
	}
	return c
}

// Limiter returns the permit pool shared by every call through c.
func (c *Caller) Limiter() *limiter.Limiter { return c.lim }

// Do runs op under the caller's policy and returns its value or a *Failure.
func Do[T any](ctx context.Context, c *Caller, name string, op func(context.Context) (T, error)) (T, *Failure) {
	v, _, f := DoAttempts(ctx, c, name, op)
	return v, f
}

// DoAttempts is Do that also reports how many times op ran.
func DoAttempts[T any](ctx context.Context, c *Caller, name string, op func(context.Context) (T, error)) (T, int, *Failure) {
	var zero T
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return zero, attempts, c.fail(name, parentKind(err), attempts, err)
		}

		release, err := c.lim.Acquire(ctx)
		if err != nil {
			return zero, attempts, c.fail(name, parentKind(err), attempts, err)
		}
		attempts++
		if c.rec != nil {
			c.rec.ExternalCall(name)
		}
		v, err := runAttempt(ctx, c.cfg.Timeout, op)
		release()

		if err == nil {
			return v, attempts, nil
		}

		if perr := ctx.Err(); perr != nil {
			return zero, attempts, c.fail(name, parentKind(perr), attempts, err)
		}

		kind, retryable := Classify(err)
		if !retryable || attempts > c.cfg.MaxRetries {
			return zero, attempts, c.fail(name, kind, attempts, err)
		}

		delay := c.backoff(attempts-1, retryAfter(err))
		c.log.Debug("retrying external call",
			zap.String("call", name),
			zap.Int("attempt", attempts),
			zap.String("kind", string(kind)),
			zap.Duration("backoff", delay),
			zap.Error(err))

		if serr := c.sleep(ctx, delay); serr != nil {
			return zero, attempts, c.fail(name, parentKind(serr), attempts, err)
		}
	}
}

func (c *Caller) fail(name string, kind types.ErrorKind, attempts int, err error) *Failure {
	if c.rec != nil {
		c.rec.FailedCall(name, kind)
	}
	return &Failure{Kind: kind, Attempts: attempts, Err: err}
}

// backoff returns base·2^retry capped at the configured maximum, raised to
// any server Retry-After hint.
func (c *Caller) backoff(retry int, hint time.Duration) time.Duration {
	d := time.Duration(float64(c.cfg.BackoffBase) * math.Pow(2, float64(retry)))
	if c.cfg.BackoffMax > 0 && d > c.cfg.BackoffMax {
		d = c.cfg.BackoffMax
	}
	if hint > d {
		d = hint
	}
	return d
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(context.Context) (T, error)) (v T, err error) {
	actx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic in external call: %v", ErrPermanent, r)
		}
	}()
	v, err = op(actx)
	if err == nil && actx.Err() != nil {
		// The op ignored its deadline; treat the late value as a timeout.
		err = actx.Err()
	}
	return v, err
}

// Classify maps an attempt error to an ErrorKind and reports whether another
// attempt may succeed.
func Classify(err error) (types.ErrorKind, bool) {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.ErrorTimeout, true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return types.ErrorTimeout, true
	}

	var rl interface{ RateLimited() bool }
	if errors.As(err, &rl) && rl.RateLimited() {
		return types.ErrorRateLimited, true
	}

	var syn *json.SyntaxError
	var typ *json.UnmarshalTypeError
	var up interface{ Unparseable() bool }
	if errors.Is(err, ErrUnparseable) || errors.As(err, &syn) || errors.As(err, &typ) ||
		(errors.As(err, &up) && up.Unparseable()) {
		return types.ErrorUnparseable, false
	}

	var perm interface{ Permanent() bool }
	if errors.Is(err, ErrPermanent) || (errors.As(err, &perm) && perm.Permanent()) {
		return types.ErrorUnknown, false
	}
	return types.ErrorUnknown, true
}

func retryAfter(err error) time.Duration {
	var ra interface{ RetryAfter() time.Duration }
	if errors.As(err, &ra) {
		return ra.RetryAfter()
	}
	return 0
}

func parentKind(err error) types.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.ErrorTimeout
	}
	return types.ErrorUnknown
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
