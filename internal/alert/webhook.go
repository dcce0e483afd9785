package alert

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	requestTimeout = 5 * time.Second
	maxRetryAfter  = 30 * time.Second
)

var (
	httpClient   = &http.Client{Timeout: requestTimeout}
	retryBackoff = time.Second
)

// delivery is the retry policy of one event type. A lockdown means a
// session stopped serving and nobody has seen it yet; a veto was already
// reported to the client in the turn stream.
type delivery struct {
	attempts int
}

var deliveries = map[string]delivery{
	EventLockdown: {attempts: 5},
	EventVeto:     {attempts: 3},
}

func deliveryFor(eventType string) delivery {
	if d, ok := deliveries[eventType]; ok {
		return d
	}
	return delivery{attempts: 1}
}

// DeliveryError reports a webhook that did not accept an event.
type DeliveryError struct {
	Type     string
	Status   int // last HTTP status, 0 on transport errors
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s webhook failed after %d attempt(s): HTTP %d", e.Type, e.Attempts, e.Status)
	}
	return fmt.Sprintf("%s webhook failed after %d attempt(s): %v", e.Type, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// DedupKey identifies an incident: one lockdown per session, one veto per
// turn and gate. Receivers use it to drop retried deliveries.
func DedupKey(event Event) string {
	if event.Type == EventVeto {
		return event.Type + "/" + event.Session + "/" + event.TurnID + "/" + event.Gate
	}
	return event.Type + "/" + event.Session
}

// Send posts an alert event to a webhook endpoint. Transport errors, 5xx
// and 429 are retried up to the event type's attempt budget; other 4xx
// fail at once.
func Send(ctx context.Context, cfg Config, event Event) error {
	body, err := FormatPayload(cfg.Format, event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	pol := deliveryFor(event.Type)
	derr := &DeliveryError{Type: event.Type}
	wait := time.Duration(0)
	for attempt := 1; attempt <= pol.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		derr.Attempts = attempt
		wait = time.Duration(attempt) * retryBackoff

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", DedupKey(event))
		req.Header.Set("X-Affectgate-Event", event.Type)
		if event.Severity != "" {
			req.Header.Set("X-Affectgate-Severity", event.Severity)
		}
		for k, v := range cfg.Headers {
			req.Header.Set(k, v)
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			derr.Status, derr.Err = 0, err
			continue
		}
		resp.Body.Close()
		derr.Status, derr.Err = resp.StatusCode, nil

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			if d, ok := retryAfter(resp.Header.Get("Retry-After")); ok {
				wait = d
			}
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return derr
		}
	}
	return derr
}

// retryAfter parses a Retry-After header in seconds, capped.
func retryAfter(v string) (time.Duration, bool) {
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	return min(time.Duration(secs)*time.Second, maxRetryAfter), true
}
