//go:build integration

package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testcontainers "hccpipe.dev/containers/testing"
)

func setupBus(t *testing.T) *Bus {
	amqpURL, _, cleanup, err := testcontainers.SetupRabbitMQ(context.Background(), t, nil)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	b, err := New(DefaultConfig(amqpURL), nil)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestBus_PublishIsDeliveredToBoundQueue(t *testing.T) {
	b := setupBus(t)
	require.NoError(t, b.DeclareQueue("test.uploaded", RoutingUploaded))

	require.NoError(t, b.Publish(RoutingUploaded, map[string]string{"document_id": "abc"}, 0))

	deliveries, err := b.Consume("test.uploaded", "integration-test")
	require.NoError(t, err)

	select {
	case msg := <-deliveries:
		var payload map[string]string
		require.NoError(t, json.Unmarshal(msg.Body, &payload))
		assert.Equal(t, "abc", payload["document_id"])
		require.NoError(t, msg.Ack(false))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestBus_RoutingKeyIsolatesQueues(t *testing.T) {
	b := setupBus(t)
	require.NoError(t, b.DeclareQueue("test.extraction", RoutingExtractionCompleted))
	require.NoError(t, b.DeclareQueue("test.analysis", RoutingAnalysisCompleted))

	require.NoError(t, b.Publish(RoutingExtractionCompleted, map[string]string{"k": "v"}, 0))

	extractionDeliveries, err := b.Consume("test.extraction", "extraction-consumer")
	require.NoError(t, err)
	analysisDeliveries, err := b.Consume("test.analysis", "analysis-consumer")
	require.NoError(t, err)

	select {
	case msg := <-extractionDeliveries:
		require.NoError(t, msg.Ack(false))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery on the bound queue")
	}

	select {
	case <-analysisDeliveries:
		t.Fatal("message leaked into a queue bound to a different routing key")
	case <-time.After(500 * time.Millisecond):
	}
}
