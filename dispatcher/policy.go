package dispatcher

import (
	"math/rand/v2"
	"net/http"
	"time"
)

// Decision is the outcome of evaluating a delivery attempt.
type Decision int

const (
	// Delivered means the subscriber answered 2xx.
	Delivered Decision = iota

	// Retry means another attempt should be queued.
	Retry

	// GiveUp means the failure is permanent or attempts are exhausted.
	GiveUp
)

func (d Decision) String() string {
	switch d {
	case Delivered:
		return "delivered"
	case Retry:
		return "retry"
	default:
		return "give_up"
	}
}

// Policy decides whether a failed attempt is retried and when.
type Policy struct {
	// MaxAttempts bounds the attempts per (webhook, event) pair, first try
	// included. Values below 1 mean a single attempt.
	MaxAttempts int

	// Base is the delay before the second attempt. It doubles per attempt.
	Base time.Duration

	// Max caps the delay.
	Max time.Duration
}

// Decide determines what happens after an attempt.
//
// Decision matrix:
//   - 2xx → Delivered
//   - 408, 429, 5xx, 0 (no response) → Retry while attempt < MaxAttempts
//   - any other status → GiveUp (client errors won't self-correct)
func (p Policy) Decide(res Result, attempt int) Decision {
	code := res.StatusCode

	if res.OK() {
		return Delivered
	}

	switch {
	case code == 0, code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		if attempt < p.MaxAttempts {
			return Retry
		}
	}
	return GiveUp
}

// Backoff returns the delay before the attempt that follows attempt.
// The window grows as Base * 2^(attempt-1), capped at Max, and the delay
// is drawn from the upper half of the window.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	window := p.Base
	for i := 1; i < attempt && window < p.Max; i++ {
		window *= 2
	}
	if p.Max > 0 && window > p.Max {
		window = p.Max
	}
	if window <= 0 {
		return 0
	}

	half := window / 2
	return half + time.Duration(rand.Int64N(int64(window-half)+1))
}
