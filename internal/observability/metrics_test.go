package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHTTPMetricsMiddlewareCountsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(HTTPMetricsMiddleware())
	router.GET("/conversations/:user_id/messages", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "/conversations/:user_id/messages", "200")
	before := testutil.ToFloat64(counter)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/conversations/bob/messages", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/conversations/carol/messages", nil))

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}

func TestSplitFullMethod(t *testing.T) {
	service, method := splitFullMethod("/grpc.health.v1.Health/Check")
	assert.Equal(t, "grpc.health.v1.Health", service)
	assert.Equal(t, "Check", method)

	service, method = splitFullMethod("bogus")
	assert.Equal(t, "unknown", service)
	assert.Equal(t, "unknown", method)
}

type failingPublisher struct{}

func (failingPublisher) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	return errors.New("broker down")
}

func TestPublishEventCountsFailures(t *testing.T) {
	SetPublisher(failingPublisher{})
	t.Cleanup(func() { SetPublisher(nil) })

	before := testutil.ToFloat64(amqpPublishErrorsTotal)
	err := PublishEvent(context.Background(), RoutingMessageSent, EventEnvelope{EventType: "chat_events"}, nil)
	assert.Error(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(amqpPublishErrorsTotal))
}
