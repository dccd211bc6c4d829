// Package ssechannel implements livechannel.Provider over Server-Sent
// Events. Each subscription holds one streaming GET to the realtime
// gateway; dropped streams are re-dialled until the handle is closed.
package ssechannel

import (
	"bufio"
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	interrors "github.com/attendhq/go-session-coordinator/internal/errors"
	"github.com/attendhq/go-session-coordinator/livechannel"
)

const defaultRetryInterval = 5 * time.Second

// Provider dials SSE streams on the realtime gateway.
type Provider struct {
	baseURL       string
	authToken     string
	client        *http.Client
	retryInterval time.Duration
	logger        zerolog.Logger
}

// Option modifies the Provider instance.
type Option func(*Provider)

// WithLogger sets the provider's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// WithHTTPClient overrides the default HTTP client (primarily for testing).
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.client = client
	}
}

// WithRetryInterval overrides the delay before a dropped stream is
// re-dialled.
func WithRetryInterval(interval time.Duration) Option {
	return func(p *Provider) {
		p.retryInterval = interval
	}
}

// New initializes a Provider for the given gateway base URL.
func New(baseURL, authToken string, options ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("[ssechannel.New] base URL is required")
	}

	p := &Provider{
		baseURL:       baseURL,
		authToken:     authToken,
		client:        &http.Client{}, // No timeout: streams are long-lived
		retryInterval: defaultRetryInterval,
		logger:        zerolog.Nop(),
	}
	for _, opt := range options {
		opt(p)
	}
	return p, nil
}

// Subscribe opens a stream for topic and starts pumping events. The stream
// keeps re-dialling on failure until the returned handle is closed;
// per-connection failures go to onError and never close the handle.
func (p *Provider) Subscribe(ctx context.Context, topic string, filter *livechannel.Filter, onEvent livechannel.OnEvent, onError livechannel.OnError) (livechannel.Handle, error) {
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	handle := &sseHandle{topic: topic, cancel: cancel}

	go p.pump(streamCtx, topic, filter, onEvent, onError)
	return handle, nil
}

type sseHandle struct {
	topic     string
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (h *sseHandle) Topic() string { return h.topic }

func (h *sseHandle) Close() {
	h.closeOnce.Do(h.cancel)
}

func (p *Provider) pump(ctx context.Context, topic string, filter *livechannel.Filter, onEvent livechannel.OnEvent, onError livechannel.OnError) {
	for {
		if err := p.stream(ctx, topic, filter, onEvent); err != nil && ctx.Err() == nil {
			p.logger.Warn().Err(err).Str("topic", topic).Msg("live channel dropped, re-dialling")
			onError(err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.retryInterval):
		}
	}
}

func (p *Provider) stream(ctx context.Context, topic string, filter *livechannel.Filter, onEvent livechannel.OnEvent) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.streamURL(topic, filter), nil)
	if err != nil {
		return errors.Wrap(err, "[Provider.stream] building request")
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if p.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.authToken)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return interrors.Wrapf(interrors.ErrChannelUnavailable, "dialling %q: %v", topic, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return interrors.Wrapf(interrors.ErrChannelUnavailable, "dialling %q: status %d", topic, resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if data, ok := strings.CutPrefix(line, "data:"); ok {
			payload := strings.TrimSpace(data)
			if payload != "" {
				onEvent(livechannel.Event{Topic: topic, Payload: []byte(payload)})
			}
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return interrors.Wrapf(interrors.ErrChannelUnavailable, "stream %q: %v", topic, err)
	}
	return nil
}

func (p *Provider) streamURL(topic string, filter *livechannel.Filter) string {
	query := url.Values{"topic": {topic}}
	if filter != nil {
		query.Set("filter", filter.Column+"=eq."+filter.Equals)
	}
	return p.baseURL + "/v1/stream?" + query.Encode()
}

var _ livechannel.Provider = (*Provider)(nil)
