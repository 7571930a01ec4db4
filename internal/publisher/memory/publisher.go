// Package memory contains an in-memory publisher for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/wikitide/sitemapindex/internal/publisher"
)

// Publisher stores published notifications for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []publisher.Notification
	// Err, when set, fails every Publish call.
	Err error
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the notification and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, n publisher.Notification) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return "", p.Err
	}
	p.messages = append(p.messages, n)
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns the recorded notifications.
func (p *Publisher) Messages() []publisher.Notification {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]publisher.Notification, len(p.messages))
	copy(out, p.messages)
	return out
}
