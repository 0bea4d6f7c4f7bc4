package rabbitmq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inbox-service/internal/telemetry"
)

func TestNewPublisherWithoutURLIsNoop(t *testing.T) {
	p := NewPublisher("", "inbox")

	assert.Equal(t, "noop", PublisherMode(p))
	assert.Equal(t, "empty amqp url", PublisherNoopReason(p))
	require.NoError(t, p.Publish(context.Background(), "audit.inbox", telemetry.AuditEnvelope{EventType: "audit_log"}, nil))
	require.NoError(t, p.Publish(context.Background(), "chat_events.message_sent", map[string]string{"a": "b"}, map[string]string{"x-request-id": "r"}))
	require.NoError(t, p.Close())
}
