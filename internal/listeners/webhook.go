package listeners

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/cockroachdb/errors"

	cfgstore "github.com/smykla-skalski/vigil/internal/config"
	"github.com/smykla-skalski/vigil/pkg/config"
	"github.com/smykla-skalski/vigil/pkg/event"
	"github.com/smykla-skalski/vigil/pkg/logger"
	"github.com/smykla-skalski/vigil/pkg/plugin"
)

// WebhookName is the webhook listener's registry name.
const WebhookName = "webhook"

// ErrMissingURL is returned when the webhook document has no URL.
var ErrMissingURL = errors.New("webhook url is not configured")

// Webhook POSTs each delivered event as a JSON document to a configured
// endpoint.
type Webhook struct {
	store  *cfgstore.Store
	logger logger.Logger

	mu         sync.Mutex
	url        string
	eventTypes map[string]bool
	client     *http.Client
	delivered  uint64
	failed     uint64
}

// NewWebhook constructs the webhook listener.
func NewWebhook(store *cfgstore.Store, log logger.Logger) (plugin.Plugin, error) {
	return &Webhook{
		store:  store,
		logger: log,
	}, nil
}

// Name implements plugin.Plugin.
func (w *Webhook) Name() string {
	return WebhookName
}

// RequiresElevation implements plugin.Plugin.
func (*Webhook) RequiresElevation() bool {
	return false
}

// Initialize reads the listener's document; a missing or invalid URL is
// an initialization failure.
func (w *Webhook) Initialize(context.Context) error {
	cfg, err := cfgstore.LoadPluginConfig(
		w.store, "listener", WebhookName, config.DefaultWebhookConfig(),
	)
	if err != nil {
		return err
	}

	if cfg.URL == "" {
		return ErrMissingURL
	}

	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return errors.Wrapf(err, "invalid webhook url %q", cfg.URL)
	}

	eventTypes := make(map[string]bool, len(cfg.EventTypes))
	for _, eventType := range cfg.EventTypes {
		eventTypes[eventType] = true
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.url = cfg.URL
	w.eventTypes = eventTypes
	w.client = &http.Client{Timeout: cfg.GetTimeout()}

	return nil
}

// Start implements plugin.Plugin; the webhook has no background work.
func (*Webhook) Start(context.Context) error {
	return nil
}

// Stop implements plugin.Plugin.
func (w *Webhook) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.client != nil {
		w.client.CloseIdleConnections()
	}

	return nil
}

// DebugSnapshot implements plugin.Plugin.
func (w *Webhook) DebugSnapshot() map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()

	return map[string]any{
		"url":       w.url,
		"delivered": w.delivered,
		"failed":    w.failed,
	}
}

// Handle POSTs the event. Types outside the configured filter are
// skipped silently.
func (w *Webhook) Handle(ctx context.Context, evt *event.Event) error {
	w.mu.Lock()
	endpoint := w.url
	client := w.client
	filtered := len(w.eventTypes) > 0 && !w.eventTypes[evt.Type]
	w.mu.Unlock()

	if filtered {
		return nil
	}

	if client == nil {
		return errors.New("webhook is not initialized")
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		w.countFailure()

		return errors.Wrapf(err, "failed to deliver to %s", endpoint)
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		w.countFailure()

		return errors.Newf("endpoint %s answered %s", endpoint, resp.Status)
	}

	w.mu.Lock()
	w.delivered++
	w.mu.Unlock()

	return nil
}

func (w *Webhook) countFailure() {
	w.mu.Lock()
	w.failed++
	w.mu.Unlock()
}
