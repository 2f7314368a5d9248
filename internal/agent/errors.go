package agent

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Sentinel errors matched by RemoteError via errors.Is.
var (
	ErrRemoteUnavailable = errors.New("remote agent unavailable")
	ErrRemoteRejected    = errors.New("remote agent rejected request")
)

// Kind classifies a remote failure for the degradation policy.
type Kind int

const (
	// KindUnavailable covers network errors, timeouts, 5xx and 429; these are retried.
	KindUnavailable Kind = iota + 1
	// KindRejected covers 4xx, malformed bodies and remote-reported failures; never retried.
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// RemoteError describes one failed exchange with the remote agent.
type RemoteError struct {
	Kind       Kind
	StatusCode int
	// RetryAfter is the server's requested delay, zero when absent.
	RetryAfter time.Duration
	Err        error
}

func (e *RemoteError) Error() string {
	var b strings.Builder
	b.WriteString("remote ")
	b.WriteString(e.Kind.String())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Is matches the package sentinels by kind.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrRemoteUnavailable:
		return e.Kind == KindUnavailable
	case ErrRemoteRejected:
		return e.Kind == KindRejected
	}
	return false
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Kind == KindUnavailable
	}
	return false
}

func unavailable(err error) *RemoteError {
	return &RemoteError{Kind: KindUnavailable, Err: err}
}

func rejected(format string, args ...any) *RemoteError {
	return &RemoteError{Kind: KindRejected, Err: fmt.Errorf(format, args...)}
}

// classifyStatus maps a non-2xx HTTP response onto a RemoteError.
func classifyStatus(code int, header http.Header, body []byte, now time.Time) *RemoteError {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		msg = http.StatusText(code)
	}
	re := &RemoteError{StatusCode: code, Err: errors.New(msg)}

	switch {
	case code == http.StatusTooManyRequests:
		re.Kind = KindUnavailable
		re.RetryAfter = parseRetryAfter(header.Get("Retry-After"), now)
	case code >= 500:
		re.Kind = KindUnavailable
		re.RetryAfter = parseRetryAfter(header.Get("Retry-After"), now)
	default:
		re.Kind = KindRejected
	}
	return re
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
