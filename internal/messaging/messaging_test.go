package messaging

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeMC777/storefront/internal/order"
)

func testEvent() order.Event {
	return order.Event{
		ID:         "ev-1",
		Type:       order.EventPaid,
		OrderID:    "o-1",
		UserID:     "u-1",
		Status:     order.StatusPaid,
		TotalPrice: decimal.RequireFromString("109.98"),
		OccurredAt: time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092 "))
	assert.Empty(t, ParseBrokers(""))
}

func TestKafkaMessageIsKeyedByOrder(t *testing.T) {
	msg, err := kafkaMessage(testEvent())
	require.NoError(t, err)
	assert.Equal(t, "o-1", string(msg.Key))

	var back order.Event
	require.NoError(t, json.Unmarshal(msg.Value, &back))
	assert.Equal(t, order.EventPaid, back.Type)
	assert.True(t, back.TotalPrice.Equal(decimal.RequireFromString("109.98")))
}

func TestAMQPPublishingIsPersistentJSON(t *testing.T) {
	msg, err := publishing(testEvent())
	require.NoError(t, err)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, uint8(amqp.Persistent), msg.DeliveryMode)
	assert.Equal(t, "ev-1", msg.MessageId)
	assert.Equal(t, "o-1", msg.Headers["order_id"])
	assert.Equal(t, "order.paid", msg.Type)
}
