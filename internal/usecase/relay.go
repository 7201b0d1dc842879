package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chat-relay/internal/credentials"
	"chat-relay/internal/domain"
	"chat-relay/internal/integrations/synthflow"
	"chat-relay/internal/platform/logging"
)

// DefaultHintTimeout bounds each hint-store call.
const DefaultHintTimeout = 2 * time.Second

const (
	emptyMessagePlaceholder = "[The user sent an empty message.]"
	mediaMessagePlaceholder = "[The user sent %d attachment(s) without any text.]"
)

// SessionClient is the remote conversational backend.
type SessionClient interface {
	CreateSession(ctx context.Context, key domain.SessionKey) error
	SendMessage(ctx context.Context, key domain.SessionKey, text string) (string, error)
}

// KeyDeriver maps senders to session keys.
type KeyDeriver interface {
	DeriveSessionKey(sender domain.SenderIdentity, salt string) domain.SessionKey
	Rotate(sender domain.SenderIdentity) domain.SessionKey
}

// CredentialChecker reports whether the backend is configured.
type CredentialChecker interface {
	Credentials(ctx context.Context) (domain.Credentials, error)
}

// SessionHints remembers the last session key that worked for a sender.
// Implementations may lose entries at any time.
type SessionHints interface {
	Lookup(ctx context.Context, sender domain.SenderIdentity) (domain.SessionKey, bool, error)
	Remember(ctx context.Context, sender domain.SenderIdentity, key domain.SessionKey) error
	Forget(ctx context.Context, sender domain.SenderIdentity) error
}

// RelayService forwards one inbound message to the backend and reconciles
// the remote session on the way. It keeps no per-sender state of its own and
// is safe for concurrent use.
type RelayService struct {
	client SessionClient
	keys   KeyDeriver
	creds  CredentialChecker
	hints  SessionHints

	hintTimeout time.Duration
}

type Option func(*RelayService)

// WithHints enables the session hint store.
func WithHints(h SessionHints) Option {
	return func(s *RelayService) {
		s.hints = h
	}
}

// WithHintTimeout sets the budget for each hint-store call. Non-positive
// values keep DefaultHintTimeout.
func WithHintTimeout(d time.Duration) Option {
	return func(s *RelayService) {
		if d > 0 {
			s.hintTimeout = d
		}
	}
}

func NewRelayService(client SessionClient, keys KeyDeriver, creds CredentialChecker, opts ...Option) (*RelayService, error) {
	if client == nil {
		return nil, errors.New("usecase: session client must not be nil")
	}
	if keys == nil {
		return nil, errors.New("usecase: key deriver must not be nil")
	}
	if creds == nil {
		return nil, errors.New("usecase: credential checker must not be nil")
	}
	s := &RelayService{client: client, keys: keys, creds: creds, hintTimeout: DefaultHintTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Relay delivers in to the backend and returns the terminal outcome. It
// issues at most three remote calls: the first send, one recovery action and
// one retried send.
func (s *RelayService) Relay(ctx context.Context, in domain.InboundMessage) domain.Outcome {
	logger := logging.FromContext(ctx)

	sender := domain.SenderIdentity(strings.TrimSpace(string(in.Sender)))
	if sender == "" {
		return s.fail(logger, newError(ErrorInvalidInput, "missing_sender", nil))
	}

	if _, err := s.creds.Credentials(ctx); err != nil {
		if errors.Is(err, credentials.ErrMissing) {
			return s.fail(logger, newError(ErrorConfigMissing, "credentials_missing", err))
		}
		return s.fail(logger, newError(ErrorInternal, "credentials_error", err))
	}

	text := normalizeText(in)
	key, hinted := s.currentKey(ctx, logger, sender)
	logger = logger.With("session_key", key.String())

	reply, err := s.client.SendMessage(ctx, key, text)
	if err == nil {
		return domain.Delivered(reply)
	}

	outcome := s.recover(ctx, logger, sender, key, hinted, text, err)
	// A hint is only suspect when the backend complained about the session.
	if !outcome.OK() && hinted && synthflow.KindOf(err) != synthflow.KindOther {
		s.forget(ctx, logger, sender)
	}
	return outcome
}

func (s *RelayService) recover(ctx context.Context, logger *slog.Logger, sender domain.SenderIdentity, key domain.SessionKey, hinted bool, text string, sendErr error) domain.Outcome {
	kind := synthflow.KindOf(sendErr)
	logger.Info("send failed, reconciling session", "kind", kind.String())

	switch kind {
	case synthflow.KindNotFound:
		// A vanished hinted session is recreated on the sender's stable key,
		// so no time-salted key outlives its session.
		if hinted {
			s.forget(ctx, logger, sender)
			key = s.keys.DeriveSessionKey(sender, "")
			logger = logger.With("fallback_key", key.String())
		}
		if err := s.create(ctx, key); err != nil {
			return s.fail(logger, remoteError("create_session_failed", err))
		}
		return s.resend(ctx, logger, key, text)

	case synthflow.KindEnded:
		rotated := s.keys.Rotate(sender)
		logger = logger.With("rotated_key", rotated.String())
		if err := s.create(ctx, rotated); err != nil {
			return s.fail(logger, remoteError("rotate_create_failed", err))
		}
		outcome := s.resend(ctx, logger, rotated, text)
		if outcome.OK() {
			s.remember(ctx, logger, sender, rotated)
		}
		return outcome

	case synthflow.KindConfigConflict:
		return s.resend(ctx, logger, key, text)

	default:
		return s.fail(logger, remoteError("send_failed", sendErr))
	}
}

// create initializes key. A conflict means the session already exists, which
// is all the following send needs.
func (s *RelayService) create(ctx context.Context, key domain.SessionKey) error {
	err := s.client.CreateSession(ctx, key)
	if err != nil && synthflow.KindOf(err) == synthflow.KindConfigConflict {
		return nil
	}
	return err
}

// resend is the single retried send; its failure is terminal.
func (s *RelayService) resend(ctx context.Context, logger *slog.Logger, key domain.SessionKey, text string) domain.Outcome {
	reply, err := s.client.SendMessage(ctx, key, text)
	if err != nil {
		return s.fail(logger, remoteError("retry_send_failed", err))
	}
	return domain.Delivered(reply)
}

func (s *RelayService) currentKey(ctx context.Context, logger *slog.Logger, sender domain.SenderIdentity) (domain.SessionKey, bool) {
	if s.hints != nil {
		hintCtx, cancel := context.WithTimeout(ctx, s.hintTimeout)
		key, ok, err := s.hints.Lookup(hintCtx, sender)
		cancel()
		if err != nil {
			logger.Warn("session hint lookup failed", "err", err)
		} else if ok && key != "" {
			return key, true
		}
	}
	return s.keys.DeriveSessionKey(sender, ""), false
}

func (s *RelayService) remember(ctx context.Context, logger *slog.Logger, sender domain.SenderIdentity, key domain.SessionKey) {
	if s.hints == nil {
		return
	}
	hintCtx, cancel := context.WithTimeout(ctx, s.hintTimeout)
	defer cancel()
	if err := s.hints.Remember(hintCtx, sender, key); err != nil {
		logger.Warn("session hint write failed", "err", err)
	}
}

func (s *RelayService) forget(ctx context.Context, logger *slog.Logger, sender domain.SenderIdentity) {
	hintCtx, cancel := context.WithTimeout(ctx, s.hintTimeout)
	defer cancel()
	if err := s.hints.Forget(hintCtx, sender); err != nil {
		logger.Warn("session hint delete failed", "err", err)
	}
}

func (s *RelayService) fail(logger *slog.Logger, err *Error) domain.Outcome {
	attrs := []any{"code", string(err.Code), "reason", err.Reason, "err", err.Err}
	if status, ok := upstreamStatusCode(err); ok && status != 0 {
		attrs = append(attrs, "status", status)
	}
	var remoteErr *synthflow.RemoteError
	if errors.As(err, &remoteErr) && remoteErr.Body != "" {
		attrs = append(attrs, "body", remoteErr.Body)
	}
	logger.Error("relay failed", attrs...)
	return domain.Failed(err)
}

// normalizeText never returns an empty string.
func normalizeText(in domain.InboundMessage) string {
	text := strings.TrimSpace(in.Text)
	if text != "" {
		return text
	}
	if in.NumMedia > 0 {
		return fmt.Sprintf(mediaMessagePlaceholder, in.NumMedia)
	}
	return emptyMessagePlaceholder
}
