// Package publisher announces a freshly published sitemap index to downstream consumers.
package publisher

import (
	"context"
	"time"
)

// EventType identifies the notification on the wire.
const EventType = "sitemap_index.published"

// Notification describes one successful upload.
type Notification struct {
	Event       string    `json:"event"`
	RunID       string    `json:"run_id"`
	URI         string    `json:"uri"`
	SHA256      string    `json:"sha256,omitempty"`
	Locations   int       `json:"locations"`
	Sites       int       `json:"sites"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Publisher delivers notifications and returns a message identifier.
type Publisher interface {
	Publish(ctx context.Context, n Notification) (string, error)
}
