package pubsub

import (
	"context"
	"testing"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestResourceName(t *testing.T) {
	assert.Equal(t, "projects/p1/topics/orders", resourceName("p1", "topics", " orders "))
	assert.Equal(t, "projects/x/topics/t", resourceName("p1", "topics", "projects/x/topics/t"))
	assert.Equal(t, "projects/p1/subscriptions/sub", resourceName("p1", "subscriptions", "sub"))
	assert.Equal(t, "", resourceName("", "topics", "orders"))
	assert.Equal(t, "", resourceName("p1", "topics", ""))
}

func TestTopicNamesSkipsBlank(t *testing.T) {
	names := topicNames(config.PubSubConfig{OrdersTopic: "orders", PaymentsTopic: " "})
	assert.Equal(t, []string{"orders"}, names)
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("orders"))
	assert.NoError(t, c.Close())
	assert.Error(t, c.Ping(context.Background()))
}
