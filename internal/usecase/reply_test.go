package usecase

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-relay/internal/domain"
)

func TestFormatReply(t *testing.T) {
	cases := []struct {
		name    string
		outcome domain.Outcome
		want    string
	}{
		{"delivered verbatim", domain.Delivered("  Hi *there*  "), "  Hi *there*  "},
		{"config missing", domain.Failed(newError(ErrorConfigMissing, "credentials_missing", nil)), SetupIssueReply},
		{"remote other", domain.Failed(newError(ErrorRemoteOther, "send_failed", errors.New("500 secret"))), TransientIssueReply},
		{"remote ended", domain.Failed(newError(ErrorRemoteEnded, "retry_send_failed", nil)), TransientIssueReply},
		{"plain error", domain.Failed(errors.New("panic recovered")), TransientIssueReply},
		{"nil reason", domain.Failed(nil), TransientIssueReply},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, FormatReply(tc.outcome))
		})
	}
}

func TestCodeOf(t *testing.T) {
	require.Equal(t, ErrorInternal, CodeOf(errors.New("x")))
	require.Equal(t, ErrorRemoteEnded, CodeOf(newError(ErrorRemoteEnded, "r", nil)))
}

func TestError_Message(t *testing.T) {
	require.Equal(t, "usecase: CONFIG_MISSING (credentials_missing)", newError(ErrorConfigMissing, "credentials_missing", nil).Error())
	wrapped := newError(ErrorRemoteOther, "send_failed", errors.New("boom"))
	require.Equal(t, "usecase: REMOTE_OTHER (send_failed): boom", wrapped.Error())
	require.ErrorContains(t, errors.Unwrap(wrapped), "boom")
}
