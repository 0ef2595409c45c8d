package pagerduty

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/target/transcode-dispatch/internal/observability/notify"
)

// APIEndpoint is the Events API v2 ingest URL for the US service region.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

// maxErrorBody caps how much of an error response is read back into the
// returned error message.
const maxErrorBody = 4 << 10

// Config captures runtime configuration for the PagerDuty sink. Endpoint
// defaults to APIEndpoint when empty.
type Config struct {
	RoutingKey string
	Endpoint   string
	Source     string
	Component  string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

// Client publishes events via PagerDuty's Events API v2.
type Client struct {
	routingKey string
	endpoint   string
	source     string
	component  string
	retryLimit int
	client     *http.Client
}

// NewClient constructs a PagerDuty events client from config. Callers must
// provide a routing key.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		routingKey: key,
		endpoint:   fallbackString(strings.TrimSpace(cfg.Endpoint), APIEndpoint),
		source:     fallbackString(strings.TrimSpace(cfg.Source), "dispatch"),
		component:  fallbackString(strings.TrimSpace(cfg.Component), "dispatch"),
		retryLimit: max(cfg.RetryLimit, 0),
		client:     hc,
	}, nil
}

// triggerEvent is the Events API v2 envelope for event_action "trigger".
type triggerEvent struct {
	RoutingKey  string       `json:"routing_key"`
	EventAction string       `json:"event_action"`
	DedupKey    string       `json:"dedup_key,omitempty"`
	Payload     eventPayload `json:"payload"`
}

type eventPayload struct {
	Summary       string            `json:"summary"`
	Severity      string            `json:"severity"`
	Source        string            `json:"source"`
	Component     string            `json:"component,omitempty"`
	Timestamp     string            `json:"timestamp"`
	CustomDetails map[string]string `json:"custom_details,omitempty"`
}

// SendJobFailure submits a trigger event to PagerDuty.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	body, err := json.Marshal(c.buildEvent(payload))
	if err != nil {
		return fmt.Errorf("encode pagerduty payload: %w", err)
	}

	attempts := c.retryLimit + 1
	var lastErr error
	for attempt := range attempts {
		err = c.enqueue(ctx, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < attempts-1 {
			delay := time.Duration(attempt+1) * 200 * time.Millisecond
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				if !timer.Stop() {
					<-timer.C
				}
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	return lastErr
}

func (c *Client) buildEvent(payload notify.JobFailurePayload) triggerEvent {
	occurredAt := payload.OccurredAt.UTC()
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return triggerEvent{
		RoutingKey:  c.routingKey,
		EventAction: "trigger",
		DedupKey:    dedupKey(payload),
		Payload: eventPayload{
			Summary: fmt.Sprintf(
				"Transcode job %s (%s) failed",
				fallbackString(payload.JobID, "unknown"),
				fallbackString(payload.TargetCodec, "unknown"),
			),
			Severity:      normalizeSeverity(payload.Severity),
			Source:        c.source,
			Component:     c.component,
			Timestamp:     occurredAt.Format(time.RFC3339),
			CustomDetails: customDetails(payload),
		},
	}
}

// dedupKey folds repeated failures of the same job into one incident.
func dedupKey(payload notify.JobFailurePayload) string {
	return strings.Trim(payload.TargetCodec+":"+payload.JobID, ":")
}

// normalizeSeverity maps free-form severity onto the values the Events API
// accepts. Unrecognised values page as critical.
func normalizeSeverity(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "critical":
		return "critical"
	case "error":
		return "error"
	case "warning", "warn":
		return "warning"
	case "info":
		return "info"
	default:
		return notify.SeverityCritical
	}
}

func customDetails(payload notify.JobFailurePayload) map[string]string {
	details := map[string]string{
		"job_id":       payload.JobID,
		"source_url":   payload.SourceURL,
		"target_codec": payload.TargetCodec,
		"engine_id":    payload.EngineID,
		"error":        payload.Error,
		"error_class":  payload.ErrorClass,
	}

	// Caller metadata may not shadow the canonical fields.
	for k, v := range payload.Metadata {
		if _, exists := details[k]; !exists {
			details[k] = v
		}
	}

	return details
}

func fallbackString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func (c *Client) enqueue(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create pagerduty request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("pagerduty request failed: %w", err)
	}

	return checkResponse(resp)
}

// checkResponse consumes and closes the response body. Events API rejections
// carry a short JSON explanation that belongs in the returned error.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var drainErr error
		if _, err := io.Copy(io.Discard, resp.Body); err != nil {
			drainErr = fmt.Errorf("drain pagerduty response body: %w", err)
		}
		return errors.Join(drainErr, closeBody(resp))
	}

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if readErr != nil {
		return errors.Join(fmt.Errorf("read pagerduty error response: %w", readErr), closeBody(resp))
	}
	if err := closeBody(resp); err != nil {
		return err
	}

	return fmt.Errorf("pagerduty api %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
}

func closeBody(resp *http.Response) error {
	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}
	return nil
}
