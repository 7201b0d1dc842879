package credentials

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-relay/internal/domain"
)

type fakeParams struct {
	vals  map[string]string
	err   error
	calls int
	names []string
}

func (f *fakeParams) GetParameters(_ context.Context, names ...string) (map[string]string, error) {
	f.calls++
	f.names = names
	return f.vals, f.err
}

func TestSource_StaticComplete(t *testing.T) {
	p := &fakeParams{}
	s := NewSource(domain.Credentials{APIKey: " sk ", AgentID: "agent"}, p, "/relay")

	creds, err := s.Credentials(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.Credentials{APIKey: "sk", AgentID: "agent"}, creds)
	require.Zero(t, p.calls)
}

func TestSource_MissingWithoutParams(t *testing.T) {
	s := NewSource(domain.Credentials{APIKey: "sk"}, nil, "")
	_, err := s.Credentials(context.Background())
	require.ErrorIs(t, err, ErrMissing)
}

func TestSource_FillsGapsFromParams(t *testing.T) {
	p := &fakeParams{vals: map[string]string{
		"/relay/synthflow_api_key":  "sk-ssm",
		"/relay/synthflow_agent_id": "agent-ssm",
	}}
	s := NewSource(domain.Credentials{APIKey: "sk-env"}, p, "/relay/")

	creds, err := s.Credentials(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-env", creds.APIKey, "environment value must win")
	require.Equal(t, "agent-ssm", creds.AgentID)
	require.Equal(t, []string{"/relay/synthflow_api_key", "/relay/synthflow_agent_id"}, p.names)
}

func TestSource_CachesSuccessfulLoad(t *testing.T) {
	p := &fakeParams{vals: map[string]string{
		"/relay/synthflow_api_key":  "sk",
		"/relay/synthflow_agent_id": "agent",
	}}
	s := NewSource(domain.Credentials{}, p, "/relay")

	for i := 0; i < 3; i++ {
		_, err := s.Credentials(context.Background())
		require.NoError(t, err)
	}
	require.Equal(t, 1, p.calls)
}

func TestSource_RetriesAfterFailure(t *testing.T) {
	p := &fakeParams{err: errors.New("ssm unavailable")}
	s := NewSource(domain.Credentials{}, p, "/relay")

	_, err := s.Credentials(context.Background())
	require.ErrorContains(t, err, "ssm unavailable")
	require.NotErrorIs(t, err, ErrMissing)

	p.err = nil
	p.vals = map[string]string{
		"/relay/synthflow_api_key":  "sk",
		"/relay/synthflow_agent_id": "agent",
	}
	creds, err := s.Credentials(context.Background())
	require.NoError(t, err)
	require.True(t, creds.Complete())
	require.Equal(t, 2, p.calls)
}

func TestSource_IncompleteAfterLoad(t *testing.T) {
	p := &fakeParams{vals: map[string]string{"/relay/synthflow_api_key": "sk"}}
	s := NewSource(domain.Credentials{}, p, "/relay")
	_, err := s.Credentials(context.Background())
	require.ErrorIs(t, err, ErrMissing)
}

// hangingParams answers only when its context is done.
type hangingParams struct{}

func (hangingParams) GetParameters(ctx context.Context, _ ...string) (map[string]string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSource_LoadIsBounded(t *testing.T) {
	s := NewSource(domain.Credentials{}, hangingParams{}, "/relay", WithLoadTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := s.Credentials(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotErrorIs(t, err, ErrMissing)
	require.Less(t, time.Since(start), 2*time.Second)
}
