package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/url"
	"strconv"
	"strings"

	"chat-relay/internal/domain"
)

// inboundPayload mirrors the Twilio webhook fields we use when the body
// arrives as JSON.
type inboundPayload struct {
	Body     string   `json:"Body"`
	From     string   `json:"From"`
	NumMedia mediaNum `json:"NumMedia"`
}

// mediaNum accepts NumMedia as either a JSON number or a numeric string.
type mediaNum int

func (n *mediaNum) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("NumMedia: %w", err)
	}
	*n = mediaNum(v)
	return nil
}

// parseInbound decodes a form-encoded or JSON webhook body. An empty Body
// field is valid; a missing From is left for the use case to reject.
func parseInbound(contentType string, body []byte) (domain.InboundMessage, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	isJSON := mediaType == "application/json" ||
		(mediaType == "" && bytes.HasPrefix(bytes.TrimSpace(body), []byte("{")))

	if isJSON {
		var p inboundPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return domain.InboundMessage{}, fmt.Errorf("decode json body: %w", err)
		}
		return domain.InboundMessage{
			Sender:   domain.SenderIdentity(strings.TrimSpace(p.From)),
			Text:     strings.TrimSpace(p.Body),
			NumMedia: int(p.NumMedia),
		}, nil
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		return domain.InboundMessage{}, fmt.Errorf("decode form body: %w", err)
	}
	numMedia, _ := strconv.Atoi(strings.TrimSpace(form.Get("NumMedia")))
	return domain.InboundMessage{
		Sender:   domain.SenderIdentity(strings.TrimSpace(form.Get("From"))),
		Text:     strings.TrimSpace(form.Get("Body")),
		NumMedia: numMedia,
	}, nil
}
