// Package dispatch delivers webhook envelopes to the ingestion service.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"treasure-monitor/internal/domain"
	"treasure-monitor/internal/observability"
	"treasure-monitor/internal/storage"
)

// Endpoint paths by event type. Unknown types are not dispatchable.
var endpointByType = map[domain.EventType]string{
	domain.EventHideTreasure:   "/webhook/treasure",
	domain.EventSearchTreasure: "/webhook/search",
	domain.EventClueRequest:    "/webhook/clue",
}

// ErrNoEndpoint is returned for event types with no webhook endpoint.
var ErrNoEndpoint = fmt.Errorf("dispatch: no endpoint for event type")

// Options configures a Dispatcher.
type Options struct {
	// BaseURL of the ingestion service, without a trailing slash.
	BaseURL string

	// AuthSecret is sent verbatim in the Authorization header. Empty
	// means no header is set.
	AuthSecret string

	// Timeout bounds each delivery. Defaults to 10s.
	Timeout time.Duration

	// HTTPClient overrides the default client; used in tests.
	HTTPClient *http.Client

	// DeliveryLog, when set, records every attempt.
	DeliveryLog storage.DeliveryLogStore

	Logger *log.Logger
}

// Dispatcher POSTs envelopes to the ingestion service. Each envelope is
// wrapped in a one-element JSON array, matching the batch format the
// ingestion endpoints accept. Delivery is at-most-once: failures are
// reported to the caller and logged, never retried here.
type Dispatcher struct {
	baseURL     string
	authSecret  string
	client      *http.Client
	deliveryLog storage.DeliveryLogStore
	logger      *log.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(opts Options) *Dispatcher {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[dispatch] ", log.LstdFlags)
	}
	return &Dispatcher{
		baseURL:     opts.BaseURL,
		authSecret:  opts.AuthSecret,
		client:      client,
		deliveryLog: opts.DeliveryLog,
		logger:      logger,
	}
}

// Dispatch delivers one envelope. A non-2xx response is a delivery failure.
func (d *Dispatcher) Dispatch(ctx context.Context, env *domain.WebhookEnvelope) error {
	path, ok := endpointByType[env.Type]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoEndpoint, env.Type)
	}

	start := time.Now()
	statusCode, err := d.post(ctx, path, env)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.RecordWebhookDispatched(string(env.Type), outcome, time.Since(start).Seconds())
	d.record(ctx, env, path, statusCode, err)
	return err
}

func (d *Dispatcher) post(ctx context.Context, path string, env *domain.WebhookEnvelope) (int, error) {
	// One-element array: the ingestion service accepts batches.
	body, err := json.Marshal([]*domain.WebhookEnvelope{env})
	if err != nil {
		return 0, fmt.Errorf("marshal envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.authSecret != "" {
		req.Header.Set("Authorization", d.authSecret)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("deliver webhook %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a bounded amount for the error message.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("deliver webhook %s: status %d: %s", path, resp.StatusCode, snippet)
	}
	return resp.StatusCode, nil
}

// record writes the attempt to the delivery log when one is configured.
// Log failures are warnings; they never mask the delivery outcome.
func (d *Dispatcher) record(ctx context.Context, env *domain.WebhookEnvelope, path string, statusCode int, deliverErr error) {
	if d.deliveryLog == nil {
		return
	}

	attempt := &storage.DeliveryAttempt{
		Signature:   env.Signature,
		EventType:   env.Type,
		Endpoint:    path,
		StatusCode:  statusCode,
		Success:     deliverErr == nil,
		AttemptedAt: time.Now().UTC(),
	}
	if deliverErr != nil {
		attempt.Error = deliverErr.Error()
	}
	if err := d.deliveryLog.Record(ctx, attempt); err != nil {
		d.logger.Printf("WARN failed to record delivery attempt sig=%s: %v", env.Signature, err)
	}
}
