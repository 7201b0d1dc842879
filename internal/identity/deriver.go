package identity

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"chat-relay/internal/domain"
)

// DefaultNamespace scopes session keys when no namespace is configured.
const DefaultNamespace = "chat-relay.sessions"

// Deriver maps sender identities to session keys using name-based (v5) UUIDs.
// It holds no mutable state and is safe for concurrent use.
type Deriver struct {
	namespace uuid.UUID
	now       func() time.Time
}

type Option func(*Deriver)

// WithClock overrides the time source used for rotation salts.
func WithClock(now func() time.Time) Option {
	return func(d *Deriver) {
		d.now = now
	}
}

// NewDeriver builds a Deriver for the given namespace constant. A namespace
// that is itself a UUID is used as-is; any other string is hashed into one.
func NewDeriver(namespace string, opts ...Option) (*Deriver, error) {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		return nil, errors.New("identity: namespace must not be empty")
	}
	ns, err := uuid.Parse(namespace)
	if err != nil {
		ns = uuid.NewSHA1(uuid.NameSpaceURL, []byte(namespace))
	}
	d := &Deriver{namespace: ns, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// DeriveSessionKey returns the key for sender. Without a salt the result is
// the sender's stable key; a salt yields a distinct key for rotation.
func (d *Deriver) DeriveSessionKey(sender domain.SenderIdentity, salt string) domain.SessionKey {
	name := string(sender)
	if salt != "" {
		name += "#" + salt
	}
	return domain.SessionKey(uuid.NewSHA1(d.namespace, []byte(name)).String())
}

// Rotate derives a fresh key for sender salted with the current time.
func (d *Deriver) Rotate(sender domain.SenderIdentity) domain.SessionKey {
	return d.DeriveSessionKey(sender, strconv.FormatInt(d.now().UnixNano(), 10))
}
