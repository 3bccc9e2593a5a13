package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Policy describes a bounded retry: how many tries, how the delay grows
// between them, and which errors are worth another attempt. The zero
// value is unusable; start from DefaultPolicy and override fields.
type Policy struct {
	Attempts   int // total tries including the first
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     float64 // 0..1, fraction of each delay randomized
	RetryIf    func(error) bool
}

// DefaultPolicy retries transient failures three times with a short
// exponential backoff.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:   3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.1,
		RetryIf:    func(err error) bool { return !IsPermanent(err) },
	}
}

// ErrExhausted wraps the last error once every attempt has failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Do runs fn under the policy, sleeping between failed attempts. It
// returns nil on the first success, the error unchanged when RetryIf
// rules it out, and the last error joined with ErrExhausted otherwise.
func Do(ctx context.Context, p Policy, fn func() error) error {
	_, err := DoValue(ctx, p, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoValue is Do for functions that produce a value. On failure the
// zero value is returned alongside the error.
func DoValue[T any](ctx context.Context, p Policy, fn func() (T, error)) (T, error) {
	var zero T
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	for attempt := 1; ; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if p.RetryIf != nil && !p.RetryIf(err) {
			return zero, err
		}
		if attempt >= p.Attempts {
			return zero, errors.Join(ErrExhausted, err)
		}
		select {
		case <-ctx.Done():
			return zero, errors.Join(ctx.Err(), err)
		case <-time.After(p.delay(attempt)):
		}
	}
}

// delay grows exponentially from BaseDelay, jittered and clamped.
func (p Policy) delay(attempt int) time.Duration {
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2.0
	}
	d := float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1))
	if p.Jitter > 0 {
		spread := d * p.Jitter
		d = d - spread + rand.Float64()*2*spread
	}
	if p.MaxDelay > 0 && time.Duration(d) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// PermanentError marks an error no retry can fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the default policy stops retrying it. A nil
// err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err is (or wraps) a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
