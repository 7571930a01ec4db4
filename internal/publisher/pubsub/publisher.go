// Package pubsub implements a Google Cloud Pub/Sub publisher.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/wikitide/sitemapindex/internal/publisher"
)

// Publisher wraps a Pub/Sub topic.
type Publisher struct {
	topic *pubsub.Topic
}

// New creates a Publisher for the named topic on client.
func New(client *pubsub.Client, topicID string) (*Publisher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	if topicID == "" {
		return nil, fmt.Errorf("topic is required")
	}
	return &Publisher{topic: client.Topic(topicID)}, nil
}

// Publish marshals the notification to JSON and waits for the server to acknowledge it.
func (p *Publisher) Publish(ctx context.Context, n publisher.Notification) (string, error) {
	if p.topic == nil {
		return "", fmt.Errorf("pubsub topic is not configured")
	}
	if n.Event == "" {
		n.Event = publisher.EventType
	}
	data, err := json.Marshal(n)
	if err != nil {
		return "", fmt.Errorf("marshal notification: %w", err)
	}

	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event":  n.Event,
			"run_id": n.RunID,
		},
	}
	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Close flushes pending messages and stops the topic's background goroutines.
func (p *Publisher) Close() {
	if p.topic != nil {
		p.topic.Stop()
	}
}
