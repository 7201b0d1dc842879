package usecase

import "chat-relay/internal/domain"

// Fallback replies. They are constant so that no backend detail can reach
// the end user.
const (
	SetupIssueReply     = "Setup issue: this assistant is not configured yet. Please try again later."
	TransientIssueReply = "Sorry, I had a small technical issue. Please try again in a moment 🙂"
)

// FormatReply turns an outcome into the text sent back to the user.
func FormatReply(o domain.Outcome) string {
	if o.OK() {
		return o.Reply
	}
	if CodeOf(o.Reason) == ErrorConfigMissing {
		return SetupIssueReply
	}
	return TransientIssueReply
}
