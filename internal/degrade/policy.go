// Package degrade decides how remote failures are retried and, once retries
// are spent, whether a task completes from a fallback template or fails.
package degrade

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/fentz26/ntbk/internal/agent"
)

// Defaults for the retry schedule.
const (
	DefaultMaxAttempts = 3
	DefaultBackoffBase = time.Second
	DefaultBackoffCap  = 10 * time.Second
)

// ErrKnownDown is reported when the health tracker short-circuits a dispatch.
var ErrKnownDown = errors.New("remote agent known to be down")

// Policy configures retries around remote calls.
type Policy struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// Health, when set, lets a known-down remote skip the attempt loop.
	Health *HealthTracker
}

// DefaultPolicy returns the standard schedule: 3 attempts, 1s base, doubling, 10s cap.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts: DefaultMaxAttempts,
		BackoffBase: DefaultBackoffBase,
		BackoffCap:  DefaultBackoffCap,
	}
}

// Attempt records the outcome of one remote call.
type Attempt struct {
	Number int
	Err    error
	Wait   time.Duration
}

// Outcome summarizes an Execute call.
type Outcome struct {
	Attempts []Attempt
	// Err is the last remote error, nil on success.
	Err error
}

// Log renders attempts one per line for the task's logs field.
func (o *Outcome) Log() string {
	var b strings.Builder
	for _, a := range o.Attempts {
		if a.Err == nil {
			fmt.Fprintf(&b, "attempt %d: ok\n", a.Number)
			continue
		}
		fmt.Fprintf(&b, "attempt %d: %v", a.Number, a.Err)
		if a.Wait > 0 {
			fmt.Fprintf(&b, " (retry in %s)", a.Wait)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func (p *Policy) normalized() Policy {
	out := *p
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = DefaultMaxAttempts
	}
	if out.BackoffBase <= 0 {
		out.BackoffBase = DefaultBackoffBase
	}
	if out.BackoffCap <= 0 {
		out.BackoffCap = DefaultBackoffCap
	}
	if out.BackoffCap < out.BackoffBase {
		out.BackoffCap = out.BackoffBase
	}
	return out
}

// MaxWait is the longest total backoff the policy can sleep across one Execute.
func (p *Policy) MaxWait() time.Duration {
	n := p.normalized()
	return time.Duration(n.MaxAttempts-1) * n.BackoffCap
}

// Execute runs fn until it succeeds, returns a non-retryable error, or the
// attempt ceiling is reached. waitCtx bounds only the sleeps between attempts
// so a cancel interrupts backoff without aborting a call in flight.
func Execute[T any](waitCtx context.Context, p *Policy, fn func() (T, error)) (T, *Outcome) {
	var zero T
	out := &Outcome{}
	n := p.normalized()

	if n.Health != nil && n.Health.ShortCircuit(waitCtx) {
		out.Err = &agent.RemoteError{Kind: agent.KindUnavailable, Err: ErrKnownDown}
		return zero, out
	}

	var hint time.Duration
	exp := retry.WithCappedDuration(n.BackoffCap, retry.NewExponential(n.BackoffBase))
	backoff := retry.WithMaxRetries(uint64(n.MaxAttempts-1), retry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := exp.Next()
		if stop {
			return 0, true
		}
		if hint > 0 {
			d = min(hint, n.BackoffCap)
			hint = 0
		}
		if len(out.Attempts) > 0 {
			out.Attempts[len(out.Attempts)-1].Wait = d
		}
		return d, false
	}))

	var result T
	err := retry.Do(waitCtx, backoff, func(context.Context) error {
		v, callErr := fn()
		out.Attempts = append(out.Attempts, Attempt{Number: len(out.Attempts) + 1, Err: callErr})
		if callErr == nil {
			result = v
			return nil
		}
		if agent.Retryable(callErr) {
			var re *agent.RemoteError
			if errors.As(callErr, &re) {
				hint = re.RetryAfter
			}
			return retry.RetryableError(callErr)
		}
		return callErr
	})

	if err == nil {
		if n.Health != nil {
			n.Health.MarkUp()
		}
		return result, out
	}

	out.Err = lastErr(out, err)
	if n.Health != nil && agent.Retryable(out.Err) && waitCtx.Err() == nil {
		n.Health.Confirm(waitCtx)
	}
	return zero, out
}

// lastErr prefers the last remote error over a context error from an interrupted wait.
func lastErr(out *Outcome, err error) error {
	if len(out.Attempts) > 0 {
		if e := out.Attempts[len(out.Attempts)-1].Err; e != nil {
			return e
		}
	}
	return err
}
