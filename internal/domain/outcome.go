package domain

import "errors"

var errUnknownFailure = errors.New("domain: unknown failure")

// Outcome is the terminal result of relaying one inbound message: either the
// agent's reply was delivered, or the request failed with Reason.
type Outcome struct {
	Reply  string
	Reason error
}

// Delivered returns a successful outcome carrying the agent reply.
func Delivered(reply string) Outcome {
	return Outcome{Reply: reply}
}

// Failed returns a failed outcome. A nil reason is replaced so that OK stays
// false for every value built through Failed.
func Failed(reason error) Outcome {
	if reason == nil {
		reason = errUnknownFailure
	}
	return Outcome{Reason: reason}
}

func (o Outcome) OK() bool {
	return o.Reason == nil
}
