package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"chat-relay/internal/domain"
)

// DefaultLoadTimeout bounds a parameter-store lookup.
const DefaultLoadTimeout = 5 * time.Second

const (
	apiKeyParam  = "/synthflow_api_key"
	agentIDParam = "/synthflow_agent_id"
)

// ErrMissing means the backend API key or agent id is not configured anywhere.
var ErrMissing = errors.New("credentials: backend api key or agent id not configured")

// ParamsGetter loads several parameters at once; missing names are absent
// from the returned map.
type ParamsGetter interface {
	GetParameters(ctx context.Context, names ...string) (map[string]string, error)
}

// Source resolves backend credentials. Static values (from the environment)
// take precedence; gaps are filled from the parameter store under prefix.
// A successful parameter-store lookup is cached for the process lifetime.
type Source struct {
	static  domain.Credentials
	params  ParamsGetter
	prefix  string
	timeout time.Duration

	mu     sync.RWMutex
	loaded bool
	cached domain.Credentials
}

type Option func(*Source)

// WithLoadTimeout sets the parameter-store budget. Non-positive values keep
// DefaultLoadTimeout.
func WithLoadTimeout(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewSource builds a Source. params may be nil, in which case only the static
// values are consulted.
func NewSource(static domain.Credentials, params ParamsGetter, prefix string, opts ...Option) *Source {
	static.APIKey = strings.TrimSpace(static.APIKey)
	static.AgentID = strings.TrimSpace(static.AgentID)
	s := &Source{
		static:  static,
		params:  params,
		prefix:  strings.TrimRight(strings.TrimSpace(prefix), "/"),
		timeout: DefaultLoadTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Source) Credentials(ctx context.Context) (domain.Credentials, error) {
	if s.static.Complete() {
		return s.static, nil
	}
	if s.params == nil || s.prefix == "" {
		return domain.Credentials{}, ErrMissing
	}

	s.mu.RLock()
	if s.loaded {
		creds := s.cached
		s.mu.RUnlock()
		return creds, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.cached, nil
	}

	creds, err := s.load(ctx)
	if err != nil {
		return domain.Credentials{}, err
	}
	s.cached = creds
	s.loaded = true
	return creds, nil
}

func (s *Source) load(ctx context.Context) (domain.Credentials, error) {
	keyName := s.prefix + apiKeyParam
	agentName := s.prefix + agentIDParam

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	vals, err := s.params.GetParameters(ctx, keyName, agentName)
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("credentials: load from parameter store: %w", err)
	}

	creds := s.static
	if creds.APIKey == "" {
		creds.APIKey = strings.TrimSpace(vals[keyName])
	}
	if creds.AgentID == "" {
		creds.AgentID = strings.TrimSpace(vals[agentName])
	}
	if !creds.Complete() {
		return domain.Credentials{}, ErrMissing
	}
	return creds, nil
}
