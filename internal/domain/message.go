package domain

// SenderIdentity identifies the human on the messaging platform, in the
// platform's own notation (e.g. "whatsapp:+15551234567").
type SenderIdentity string

// SessionKey addresses one remote conversation session.
type SessionKey string

func (k SessionKey) String() string { return string(k) }

// InboundMessage is a single webhook delivery from the messaging platform.
type InboundMessage struct {
	Sender   SenderIdentity
	Text     string
	NumMedia int
}

// Credentials authenticate calls to the conversational backend and select the
// agent that answers them.
type Credentials struct {
	APIKey  string
	AgentID string
}

// Complete reports whether both values are present.
func (c Credentials) Complete() bool {
	return c.APIKey != "" && c.AgentID != ""
}
