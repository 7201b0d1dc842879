package synthflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chat-relay/internal/domain"
)

const (
	DefaultBaseURL = "https://api.synthflow.ai/v2"
	DefaultTimeout = 12 * time.Second

	tracerName = "chat-relay/synthflow"
)

// createSessionRequest binds a new session to an agent.
type createSessionRequest struct {
	ModelID string `json:"model_id"`
}

// sendMessageRequest carries one user turn.
type sendMessageRequest struct {
	Message string `json:"message"`
}

// CredentialProvider supplies the API key and agent id for each call.
type CredentialProvider interface {
	Credentials(ctx context.Context) (domain.Credentials, error)
}

// Client talks to the Synthflow chat API. Every call is bounded by the
// configured timeout, independent of the caller's deadline.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      CredentialProvider
	timeout    time.Duration
	tracer     trace.Tracer
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the per-call budget. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func NewClient(creds CredentialProvider, opts ...Option) (*Client, error) {
	if creds == nil {
		return nil, errors.New("synthflow: credential provider must not be nil")
	}
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
		creds:      creds,
		timeout:    DefaultTimeout,
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return http.DefaultClient
}

func sessionURL(baseURL string, key domain.SessionKey) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return base + "/session/" + url.PathEscape(key.String())
}

func messagesURL(baseURL string, key domain.SessionKey) string {
	return sessionURL(baseURL, key) + "/messages"
}

// CreateSession initializes the remote session addressed by key for the
// configured agent.
func (c *Client) CreateSession(ctx context.Context, key domain.SessionKey) error {
	creds, err := c.creds.Credentials(ctx)
	if err != nil {
		return fmt.Errorf("synthflow: resolve credentials: %w", err)
	}
	_, err = c.post(ctx, "synthflow.create_session", key, sessionURL(c.baseURL, key), creds.APIKey,
		createSessionRequest{ModelID: creds.AgentID})
	return err
}

// SendMessage delivers text to the session addressed by key and returns the
// agent's reply.
func (c *Client) SendMessage(ctx context.Context, key domain.SessionKey, text string) (string, error) {
	creds, err := c.creds.Credentials(ctx)
	if err != nil {
		return "", fmt.Errorf("synthflow: resolve credentials: %w", err)
	}
	target := messagesURL(c.baseURL, key)
	raw, err := c.post(ctx, "synthflow.send_message", key, target, creds.APIKey, sendMessageRequest{Message: text})
	if err != nil {
		return "", err
	}
	reply, err := extractReply(raw)
	if err != nil {
		return "", &RemoteError{Kind: KindOther, StatusCode: http.StatusOK, URL: target, Body: truncate(raw), Err: err}
	}
	return reply, nil
}

func (c *Client) post(ctx context.Context, spanName string, key domain.SessionKey, target, apiKey string, payload any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("synthflow.session_key", key.String()),
	))
	defer span.End()

	raw, err := c.doPost(ctx, target, apiKey, payload)
	if err != nil {
		var remoteErr *RemoteError
		if errors.As(err, &remoteErr) {
			span.SetAttributes(
				attribute.Int("http.response.status_code", remoteErr.StatusCode),
				attribute.String("synthflow.error_kind", remoteErr.Kind.String()),
			)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "synthflow request failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", http.StatusOK))
	return raw, nil
}

func (c *Client) doPost(ctx context.Context, target, apiKey string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("synthflow: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("synthflow: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return nil, &RemoteError{Kind: KindOther, URL: target, Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &RemoteError{
			Kind:       Classify(res.StatusCode, buf),
			StatusCode: res.StatusCode,
			URL:        target,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, &RemoteError{Kind: KindOther, StatusCode: res.StatusCode, URL: target, Err: fmt.Errorf("read response body: %w", err)}
	}
	return buf, nil
}

func truncate(raw []byte) string {
	if len(raw) > 4096 {
		raw = raw[:4096]
	}
	return string(raw)
}
