package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	routingKey string
	event      any
	headers    map[string]string
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	p.routingKey = routingKey
	p.event = event
	p.headers = headers
	return nil
}

func TestAuditEmitterEmit(t *testing.T) {
	pub := &recordingPublisher{}
	emitter := NewAuditEmitter(pub, "audit.inbox", "inbox-service", "test")
	emitter.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	user := "alice"
	emitter.Emit(context.Background(), "INFO", "Message sent", "req-1", &user)

	require.Equal(t, "audit.inbox", pub.routingKey)
	envelope, ok := pub.event.(AuditEnvelope)
	require.True(t, ok)
	assert.Equal(t, "audit_log", envelope.EventType)
	assert.Equal(t, "2024-01-02T03:04:05Z", envelope.OccurredAt)
	assert.Equal(t, "inbox-service", envelope.Service)
	assert.Equal(t, "Message sent", envelope.Payload.Text)
	assert.Equal(t, &user, envelope.UserID)
	assert.Equal(t, "req-1", pub.headers["x-request-id"])
}

func TestAuditEmitterNilIsNoop(t *testing.T) {
	var emitter *AuditEmitter
	emitter.Emit(context.Background(), "INFO", "ignored", "", nil)

	NewAuditEmitter(nil, "k", "s", "e").Emit(context.Background(), "INFO", "ignored", "", nil)
}
