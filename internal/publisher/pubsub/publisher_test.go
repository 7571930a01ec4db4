package pubsub_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/wikitide/sitemapindex/internal/publisher"
	"github.com/wikitide/sitemapindex/internal/publisher/pubsub"
)

func newFakeClient(t *testing.T) (*gpubsub.Client, *pstest.Server) {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := gpubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestPublishDeliversNotification(t *testing.T) {
	ctx := context.Background()
	client, srv := newFakeClient(t)

	_, err := client.CreateTopic(ctx, "sitemap-published")
	require.NoError(t, err)

	pub, err := pubsub.New(client, "sitemap-published")
	require.NoError(t, err)
	defer pub.Close()

	generated := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	id, err := pub.Publish(ctx, publisher.Notification{
		RunID:       "run-1",
		URI:         "s3://sitemaps/sitemap-wikitide.xml",
		Locations:   42,
		Sites:       7,
		GeneratedAt: generated,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "run-1", msgs[0].Attributes["run_id"])
	assert.Equal(t, publisher.EventType, msgs[0].Attributes["event"])

	var got publisher.Notification
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, publisher.EventType, got.Event)
	assert.Equal(t, 42, got.Locations)
	assert.Equal(t, 7, got.Sites)
	assert.True(t, generated.Equal(got.GeneratedAt))
}

func TestPublishMissingTopic(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, _ := newFakeClient(t)

	pub, err := pubsub.New(client, "does-not-exist")
	require.NoError(t, err)
	defer pub.Close()

	_, err = pub.Publish(ctx, publisher.Notification{RunID: "run-2"})
	assert.Error(t, err)
}

func TestNewValidation(t *testing.T) {
	_, err := pubsub.New(nil, "topic")
	assert.Error(t, err)

	client, _ := newFakeClient(t)
	_, err = pubsub.New(client, "")
	assert.Error(t, err)
}
