package kafka

import (
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestDLQTopic(t *testing.T) {
	assert.Equal(t, "natours.dlq", DLQTopicPrefix)
	assert.Equal(t, "natours.dlq.natours.ratings.recompute_requested", DLQTopic("natours.ratings.recompute_requested"))
}

func TestDLQMessage_KeepsPayloadAndOriginalHeaders(t *testing.T) {
	orig := kafka.Message{
		Topic:     "natours.ratings.recompute_requested",
		Partition: 2,
		Offset:    41,
		Key:       []byte("t-1"),
		Value:     []byte(`{"event_id":"e"}`),
		Headers:   []kafka.Header{{Key: "event_type", Value: []byte("ratings.recompute_requested")}},
	}

	msg := dlqMessage(orig, errors.New("boom"), "natours-api")

	assert.Equal(t, orig.Key, msg.Key)
	assert.Equal(t, orig.Value, msg.Value)
	hc := headerCarrier{headers: &msg.Headers}
	assert.Equal(t, "ratings.recompute_requested", hc.Get("event_type"))
	assert.Equal(t, "2", hc.Get("dlq.original_partition"))
	assert.Equal(t, "41", hc.Get("dlq.original_offset"))
	assert.Equal(t, "boom", hc.Get("dlq.error"))
}

func TestDLQMessage_NilErrorOmitsHeader(t *testing.T) {
	msg := dlqMessage(kafka.Message{Topic: "t"}, nil, "g")
	hc := headerCarrier{headers: &msg.Headers}
	assert.Empty(t, hc.Get("dlq.error"))
}
