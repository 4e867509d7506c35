package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/salesbot/internal/gateway"
)

func TestEventMessage_Exhausted(t *testing.T) {
	assert.False(t, EventMessage{Attempt: 0}.Exhausted(3))
	assert.False(t, EventMessage{Attempt: 1}.Exhausted(3))
	assert.True(t, EventMessage{Attempt: 2}.Exhausted(3))
	assert.True(t, EventMessage{Attempt: 0}.Exhausted(1))
}

func TestQueueNames(t *testing.T) {
	assert.Equal(t, "inbound_events.retry", RetryQueue("inbound_events"))
	assert.Equal(t, "inbound_events.dlq", DeadQueue("inbound_events"))
}

func TestPublishRetryDeadLetter(t *testing.T) {
	url := os.Getenv("RABBIT_TEST_URL")
	if url == "" {
		t.Skip("RABBIT_TEST_URL not set")
	}
	queue := "salesbot_test_" + time.Now().Format("150405.000")
	pub, err := NewPublisher(url, queue, 200*time.Millisecond)
	require.NoError(t, err)
	defer pub.Close()
	cons, err := NewConsumer(url, queue, 1)
	require.NoError(t, err)
	defer cons.Close()

	ctx := context.Background()
	ev := gateway.ChangeValue{Metadata: gateway.Metadata{PhoneNumberID: "pn-1"}}
	id, err := pub.Publish(ctx, ev)
	require.NoError(t, err)
	require.Len(t, id, 26)

	deliveries, err := cons.Deliveries()
	require.NoError(t, err)

	next := func() EventMessage {
		select {
		case d := <-deliveries:
			require.NoError(t, d.Ack(false))
			var m EventMessage
			require.NoError(t, json.Unmarshal(d.Body, &m))
			return m
		case <-time.After(5 * time.Second):
			t.Fatal("no delivery")
		}
		return EventMessage{}
	}

	first := next()
	assert.Equal(t, id, first.JobID)
	assert.Equal(t, 0, first.Attempt)
	assert.Equal(t, "pn-1", first.Event.Metadata.PhoneNumberID)

	require.NoError(t, pub.Retry(ctx, first, errors.New("db down")))
	second := next()
	assert.Equal(t, 1, second.Attempt)
	assert.Equal(t, "db down", second.LastError)

	require.NoError(t, pub.DeadLetter(ctx, second, errors.New("gave up")))
}
