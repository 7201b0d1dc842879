// Package hintcache keeps an in-process record of the last session key that
// worked for each sender. Entries are hints: losing one only costs an extra
// round trip to the backend.
package hintcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"chat-relay/internal/domain"
)

const (
	DefaultSize = 1024
	DefaultTTL  = 24 * time.Hour
)

// Memory is a size-bounded, TTL-expiring hint store. It is safe for
// concurrent use and never blocks on I/O.
type Memory struct {
	lru *expirable.LRU[domain.SenderIdentity, domain.SessionKey]
}

// NewMemory returns a store holding at most size entries for ttl each.
// Non-positive arguments fall back to the defaults.
func NewMemory(size int, ttl time.Duration) *Memory {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{lru: expirable.NewLRU[domain.SenderIdentity, domain.SessionKey](size, nil, ttl)}
}

func (m *Memory) Lookup(_ context.Context, sender domain.SenderIdentity) (domain.SessionKey, bool, error) {
	key, ok := m.lru.Get(sender)
	return key, ok, nil
}

func (m *Memory) Remember(_ context.Context, sender domain.SenderIdentity, key domain.SessionKey) error {
	m.lru.Add(sender, key)
	return nil
}

func (m *Memory) Forget(_ context.Context, sender domain.SenderIdentity) error {
	m.lru.Remove(sender)
	return nil
}

func (m *Memory) Len() int {
	return m.lru.Len()
}
