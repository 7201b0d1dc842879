package handler

import (
	"context"
	"encoding/base64"
	"encoding/xml"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"chat-relay/internal/domain"
	"chat-relay/internal/usecase"
)

type stubRelayer struct {
	out    domain.Outcome
	panics bool
	in     domain.InboundMessage
	calls  int
}

func (s *stubRelayer) Relay(_ context.Context, in domain.InboundMessage) domain.Outcome {
	s.calls++
	s.in = in
	if s.panics {
		panic("boom")
	}
	return s.out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler(t *testing.T, r Relayer) *Handler {
	t.Helper()
	h, err := NewHandler(r, quietLogger())
	require.NoError(t, err)
	return h
}

func parseTwiML(t *testing.T, body string) string {
	t.Helper()
	require.True(t, strings.HasPrefix(body, xml.Header), "missing xml header: %q", body)
	var resp twimlResponse
	require.NoError(t, xml.Unmarshal([]byte(body), &resp))
	return resp.Message
}

func postForm(h http.Handler, values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil, nil)
	require.Error(t, err)
}

func TestServeHTTP_FormHappyPath(t *testing.T) {
	r := &stubRelayer{out: domain.Delivered("Hello from the agent")}
	h := newTestHandler(t, r)

	rec := postForm(h, url.Values{"Body": {" hi "}, "From": {"whatsapp:+15551234567"}, "NumMedia": {"0"}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/xml", rec.Header().Get("Content-Type"))
	require.NotEmpty(t, rec.Header().Get(correlationHeader))
	require.Equal(t, "Hello from the agent", parseTwiML(t, rec.Body.String()))
	require.Equal(t, domain.InboundMessage{Sender: "whatsapp:+15551234567", Text: "hi"}, r.in)
}

func TestServeHTTP_JSONBody(t *testing.T) {
	r := &stubRelayer{out: domain.Delivered("ok")}
	h := newTestHandler(t, r)

	req := httptest.NewRequest(http.MethodPost, WebhookPath,
		strings.NewReader(`{"Body":"hello","From":"whatsapp:+1","NumMedia":"1"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, domain.InboundMessage{Sender: "whatsapp:+1", Text: "hello", NumMedia: 1}, r.in)
}

func TestServeHTTP_EmptyBodyStillRelayed(t *testing.T) {
	r := &stubRelayer{out: domain.Delivered("What can I do for you?")}
	h := newTestHandler(t, r)

	rec := postForm(h, url.Values{"From": {"whatsapp:+1"}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, r.calls)
	require.Equal(t, "", r.in.Text)
}

func TestServeHTTP_SetupIssueReply(t *testing.T) {
	r := &stubRelayer{out: domain.Failed(&usecase.Error{Code: usecase.ErrorConfigMissing, Reason: "credentials_missing"})}
	h := newTestHandler(t, r)

	rec := postForm(h, url.Values{"Body": {"hi"}, "From": {"whatsapp:+1"}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, usecase.SetupIssueReply, parseTwiML(t, rec.Body.String()))
}

func TestServeHTTP_FailureNeverLeaksDetail(t *testing.T) {
	r := &stubRelayer{out: domain.Failed(&usecase.Error{Code: usecase.ErrorRemoteOther, Reason: "send_failed: 500 internal secret"})}
	h := newTestHandler(t, r)

	rec := postForm(h, url.Values{"Body": {"hi"}, "From": {"whatsapp:+1"}})
	require.Equal(t, http.StatusOK, rec.Code)
	msg := parseTwiML(t, rec.Body.String())
	require.Equal(t, usecase.TransientIssueReply, msg)
	require.NotContains(t, rec.Body.String(), "secret")
}

func TestServeHTTP_PanicBecomesFallback(t *testing.T) {
	h := newTestHandler(t, &stubRelayer{panics: true})

	rec := postForm(h, url.Values{"Body": {"hi"}, "From": {"whatsapp:+1"}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, usecase.TransientIssueReply, parseTwiML(t, rec.Body.String()))
}

func TestServeHTTP_MalformedJSON(t *testing.T) {
	r := &stubRelayer{}
	h := newTestHandler(t, r)

	req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(`{"Body":`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, usecase.TransientIssueReply, parseTwiML(t, rec.Body.String()))
	require.Zero(t, r.calls)
}

func TestServeHTTP_EscapesReply(t *testing.T) {
	h := newTestHandler(t, &stubRelayer{out: domain.Delivered(`1 < 2 & "3" > 0`)})

	rec := postForm(h, url.Values{"Body": {"hi"}, "From": {"whatsapp:+1"}})
	require.NotContains(t, rec.Body.String(), "1 < 2 &")
	require.Equal(t, `1 < 2 & "3" > 0`, parseTwiML(t, rec.Body.String()))
}

func TestServeHTTP_UsesProvidedCorrelationID(t *testing.T) {
	h := newTestHandler(t, &stubRelayer{out: domain.Delivered("ok")})

	req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader("From=whatsapp%3A%2B1&Body=hi"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("x-correlation-id", "corr-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, "corr-123", rec.Header().Get(correlationHeader))
}

func TestServeHTTP_Health(t *testing.T) {
	r := &stubRelayer{}
	h := newTestHandler(t, r)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "running")
	require.Zero(t, r.calls)
}

// ---------------------------------------------------------------------------
// Lambda adapter
// ---------------------------------------------------------------------------

func makeEvent(method, path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Headers:    map[string]string{"content-type": "application/x-www-form-urlencoded"},
		Body:       body,
	}
}

func TestHandle_Webhook(t *testing.T) {
	r := &stubRelayer{out: domain.Delivered("lambda reply")}
	h := newTestHandler(t, r)

	event := makeEvent(http.MethodPost, WebhookPath, "From=whatsapp%3A%2B1&Body=hey")
	event.Headers["X-CORRELATION-ID"] = "corr-9"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/xml", resp.Headers["Content-Type"])
	require.Equal(t, "corr-9", resp.Headers[correlationHeader])
	require.Equal(t, "lambda reply", parseTwiML(t, resp.Body))
	require.Equal(t, domain.InboundMessage{Sender: "whatsapp:+1", Text: "hey"}, r.in)
}

func TestHandle_Base64Body(t *testing.T) {
	r := &stubRelayer{out: domain.Delivered("ok")}
	h := newTestHandler(t, r)

	event := makeEvent(http.MethodPost, WebhookPath, base64.StdEncoding.EncodeToString([]byte("From=whatsapp%3A%2B2&Body=yo")))
	event.IsBase64Encoded = true
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, domain.SenderIdentity("whatsapp:+2"), r.in.Sender)
}

func TestHandle_BadBase64(t *testing.T) {
	r := &stubRelayer{}
	h := newTestHandler(t, r)

	event := makeEvent(http.MethodPost, WebhookPath, "%%%")
	event.IsBase64Encoded = true
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, usecase.TransientIssueReply, parseTwiML(t, resp.Body))
	require.Zero(t, r.calls)
}

func TestHandle_HealthAndUnknownRoute(t *testing.T) {
	h := newTestHandler(t, &stubRelayer{})

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Body, "running")

	resp, err = h.Handle(context.Background(), makeEvent(http.MethodGet, "/nope", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
