package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"chat-relay/internal/domain"
	"chat-relay/internal/platform/logging"
	"chat-relay/internal/usecase"
)

const (
	WebhookPath = "/whatsapp"
	HealthPath  = "/"

	healthBody        = "chat-relay is running!"
	correlationHeader = "X-Correlation-Id"
	maxBodyBytes      = 64 << 10
)

// Relayer is the use case behind the webhook.
type Relayer interface {
	Relay(ctx context.Context, in domain.InboundMessage) domain.Outcome
}

// Handler serves the messaging-platform webhook over net/http and as an API
// Gateway Lambda handler. A well-formed webhook call always gets HTTP 200
// with a TwiML body.
type Handler struct {
	relay  Relayer
	logger *slog.Logger
	mux    *http.ServeMux
}

func NewHandler(r Relayer, logger *slog.Logger) (*Handler, error) {
	if r == nil {
		return nil, errors.New("handler: relayer must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{relay: r, logger: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc("POST "+WebhookPath, h.serveWebhook)
	h.mux.HandleFunc("GET /{$}", h.serveHealth)
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) serveHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, healthBody)
}

func (h *Handler) serveWebhook(w http.ResponseWriter, r *http.Request) {
	corrID := correlationID(r.Header.Get(correlationHeader))
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		body = nil
	}

	reply := h.process(r.Context(), corrID, r.Header.Get("Content-Type"), body, err)

	w.Header().Set("Content-Type", twimlContentType)
	w.Header().Set(correlationHeader, corrID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(renderTwiML(reply))
}

// Handle adapts API Gateway proxy events to the same routes.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	method := strings.ToUpper(event.HTTPMethod)
	path := event.Path
	if path == "" {
		path = HealthPath
	}

	switch {
	case method == http.MethodGet && path == HealthPath:
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusOK,
			Headers:    map[string]string{"Content-Type": "text/plain; charset=utf-8"},
			Body:       healthBody,
		}, nil
	case method == http.MethodPost && path == WebhookPath:
	default:
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusNotFound,
			Headers:    map[string]string{"Content-Type": "text/plain; charset=utf-8"},
			Body:       "not found",
		}, nil
	}

	corrID := correlationID(headerValue(event.Headers, correlationHeader))
	body := []byte(event.Body)
	var readErr error
	if event.IsBase64Encoded {
		body, readErr = base64.StdEncoding.DecodeString(event.Body)
	}

	reply := h.process(ctx, corrID, headerValue(event.Headers, "Content-Type"), body, readErr)
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers: map[string]string{
			"Content-Type":    twimlContentType,
			correlationHeader: corrID,
		},
		Body: string(renderTwiML(reply)),
	}, nil
}

// process turns a raw webhook body into reply text. Every failure, including
// a panic further down, becomes the transient-issue reply.
func (h *Handler) process(ctx context.Context, corrID, contentType string, body []byte, readErr error) (reply string) {
	logger := h.logger.With("correlation_id", corrID)
	ctx = logging.WithLogger(ctx, logger)

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("panic while relaying message", "panic", fmt.Sprint(rec))
			reply = usecase.TransientIssueReply
		}
	}()

	if readErr != nil {
		logger.Warn("read webhook body failed", "err", readErr)
		return usecase.TransientIssueReply
	}
	in, err := parseInbound(contentType, body)
	if err != nil {
		logger.Warn("invalid webhook payload", "err", err)
		return usecase.TransientIssueReply
	}
	logger.Info("inbound message", "from", string(in.Sender), "chars", len(in.Text), "media", in.NumMedia)

	out := h.relay.Relay(ctx, in)
	if out.OK() {
		logger.Info("reply delivered", "chars", len(out.Reply))
	}
	return usecase.FormatReply(out)
}

func correlationID(given string) string {
	if given = strings.TrimSpace(given); given != "" {
		return given
	}
	return uuid.NewString()
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
