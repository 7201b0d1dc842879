package synthflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DefaultReply is used when a successful response carries no reply text.
const DefaultReply = "Sorry, I had a small technical issue. Please try again."

// replyExtractor returns the reply text from one known response shape.
type replyExtractor func(payload map[string]any) (string, bool)

// replyExtractors are tried in order; the first hit wins.
var replyExtractors = []replyExtractor{
	stringAt("response", "agent_message"),
	stringAt("agent_message"),
	stringAt("message"),
}

func stringAt(path ...string) replyExtractor {
	return func(payload map[string]any) (string, bool) {
		var cur any = payload
		for _, key := range path {
			obj, ok := cur.(map[string]any)
			if !ok {
				return "", false
			}
			cur = obj[key]
		}
		s, ok := cur.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return "", false
		}
		return s, true
	}
}

// extractReply decodes a send-message response. A body that is not a JSON
// object is an error; an object without any reply field yields DefaultReply.
func extractReply(raw []byte) (string, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if payload == nil {
		return "", errors.New("decode response: not a JSON object")
	}
	for _, extract := range replyExtractors {
		if s, ok := extract(payload); ok {
			return s, nil
		}
	}
	return DefaultReply, nil
}
