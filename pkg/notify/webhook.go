package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/taskflow/pkg/async"
	"github.com/platinummonkey/taskflow/pkg/observability"
)

// WebhookConfig configures a WebhookNotifier
type WebhookConfig struct {
	URL       string
	Secret    string
	Workers   int
	QueueSize int
	Timeout   time.Duration
	Retry     RetryConfig
}

// WebhookNotifier POSTs events to one URL through a bounded worker pool.
// When a secret is set each body is signed with HMAC-SHA256 in
// X-Taskflow-Signature.
type WebhookNotifier struct {
	url     string
	secret  string
	client  *http.Client
	pool    *async.WorkerPool
	retry   *RetryPolicy
	metrics *observability.Metrics
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewWebhookNotifier starts the delivery workers
func NewWebhookNotifier(cfg WebhookConfig, metrics *observability.Metrics) *WebhookNotifier {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 50
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	retry := NewRetryPolicy(cfg.Retry)
	// one job covers every attempt and the waits between them
	jobTimeout := time.Duration(retry.config.MaxAttempts)*cfg.Timeout + retry.config.MaxDelay*time.Duration(retry.config.MaxAttempts)

	return &WebhookNotifier{
		url:     cfg.URL,
		secret:  cfg.Secret,
		client:  &http.Client{Timeout: cfg.Timeout},
		pool:    async.NewWorkerPool(cfg.Workers, cfg.QueueSize, "webhook delivery", jobTimeout, nil),
		retry:   retry,
		metrics: metrics,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// Notify queues event for delivery. A full queue drops the event.
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = n.now().UTC()
	}

	err := n.pool.Submit(ctx, func(ctx context.Context) error {
		return n.deliver(ctx, event)
	})
	if err != nil {
		n.metrics.RecordNotification(string(event.Type), "dropped")
		observability.FromContext(ctx).WithError(err).
			WithField("event", string(event.Type)).
			Warn("Dropped notification")
	}
}

// Close stops accepting events and waits for queued deliveries
func (n *WebhookNotifier) Close(ctx context.Context) error {
	return n.pool.Shutdown(ctx)
}

func (n *WebhookNotifier) deliver(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	for attempt := 1; ; attempt++ {
		err = n.send(ctx, event, payload)
		if err == nil {
			n.metrics.RecordNotification(string(event.Type), "ok")
			return nil
		}
		if !n.retry.ShouldRetry(attempt, err) || errors.Is(err, errPermanent) {
			break
		}
		if sleepErr := n.sleep(ctx, n.retry.NextRetryDelay(attempt)); sleepErr != nil {
			break
		}
	}

	n.metrics.RecordNotification(string(event.Type), "failed")
	return fmt.Errorf("webhook delivery of %s failed: %w", event.ID, err)
}

var errPermanent = errors.New("permanent delivery failure")

func (n *WebhookNotifier) send(ctx context.Context, event Event, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %v", errPermanent, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "taskflow-webhooks/1")
	req.Header.Set("X-Taskflow-Event", string(event.Type))
	req.Header.Set("X-Taskflow-Event-ID", event.ID)
	if n.secret != "" {
		req.Header.Set("X-Taskflow-Signature", Sign(payload, n.secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return fmt.Errorf("%w: webhook returned %d", errPermanent, resp.StatusCode)
	default:
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
}

// Sign returns "sha256=" + hex(HMAC-SHA256(secret, payload))
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a signature produced by Sign
func VerifySignature(payload []byte, signature, secret string) bool {
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
