package dispatcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/arelis/hub/event"
	"github.com/arelis/hub/signature"
	"github.com/arelis/hub/webhook"
)

const (
	maxResponseBody = 1024
	userAgent       = "arelis-hub/1"
)

// Result holds the outcome of a single delivery attempt.
type Result struct {
	StatusCode int
	LatencyMs  int64

	// Err is a *DeliveryError when the attempt failed.
	Err error
}

// OK reports whether the subscriber answered 2xx.
func (r Result) OK() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// DeliveryError describes one failed subscriber call. It is recorded on the
// delivery record, never returned to the producer.
type DeliveryError struct {
	StatusCode int
	Timeout    bool
	Cause      error
}

func (e *DeliveryError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("timeout: %v", e.Cause)
	case e.StatusCode != 0:
		return fmt.Sprintf("http %d: %v", e.StatusCode, e.Cause)
	default:
		return e.Cause.Error()
	}
}

func (e *DeliveryError) Unwrap() error { return e.Cause }

// Sender performs signed HTTP webhook delivery.
type Sender struct {
	client  *http.Client
	timeout time.Duration
}

// NewSender creates a sender. A nil client uses a dedicated http.Client.
// The timeout bounds each attempt including reading the response.
func NewSender(client *http.Client, timeout time.Duration) *Sender {
	if client == nil {
		client = &http.Client{}
	}
	return &Sender{client: client, timeout: timeout}
}

// Send POSTs the event's wire payload to the webhook URL, signed with the
// webhook secret.
func (s *Sender) Send(ctx context.Context, wh *webhook.Webhook, evt *event.Event) Result {
	body, err := evt.Body()
	if err != nil {
		return Result{Err: &DeliveryError{Cause: fmt.Errorf("marshal payload: %w", err)}}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return Result{Err: &DeliveryError{Cause: fmt.Errorf("create request: %w", err)}}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(signature.Header, signature.Sign(body, wh.Secret))

	start := time.Now()
	resp, err := s.client.Do(req) //nolint:gosec // URL is a registered subscriber destination.
	if err != nil {
		return Result{
			LatencyMs: time.Since(start).Milliseconds(),
			Err:       &DeliveryError{Timeout: isTimeout(err), Cause: err},
		}
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	latency := time.Since(start).Milliseconds()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		cause := errors.New(http.StatusText(resp.StatusCode))
		if msg := strings.TrimSpace(string(snippet)); msg != "" {
			cause = errors.New(msg)
		}
		return Result{
			StatusCode: resp.StatusCode,
			LatencyMs:  latency,
			Err:        &DeliveryError{StatusCode: resp.StatusCode, Cause: cause},
		}
	}

	return Result{StatusCode: resp.StatusCode, LatencyMs: latency}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
