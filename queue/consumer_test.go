package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prilive-com/despacho"
)

type fakeAcker struct {
	acks     int
	nacks    int
	requeued bool
}

func (f *fakeAcker) Ack(uint64, bool) error { f.acks++; return nil }

func (f *fakeAcker) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacks++
	f.requeued = requeue
	return nil
}

func (f *fakeAcker) Reject(uint64, bool) error { return nil }

type fakeDispatcher struct {
	err      error
	payloads []despacho.Payload
}

func (f *fakeDispatcher) Dispatch(_ context.Context, p despacho.Payload) error {
	f.payloads = append(f.payloads, p)
	return f.err
}

func delivery(t *testing.T, acker *fakeAcker, p despacho.Payload, redelivered bool) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(p)
	require.NoError(t, err)
	return amqp.Delivery{
		Acknowledger: acker,
		DeliveryTag:  1,
		Redelivered:  redelivered,
		Body:         body,
	}
}

func TestHandle_SuccessAcks(t *testing.T) {
	acker := &fakeAcker{}
	dispatcher := &fakeDispatcher{}
	c := NewConsumer("amqp://unused", "q", dispatcher)

	c.handle(context.Background(), delivery(t, acker, despacho.Payload{Title: "post"}, false))

	require.Len(t, dispatcher.payloads, 1)
	assert.Equal(t, "post", dispatcher.payloads[0].Title)
	assert.Equal(t, 1, acker.acks)
	assert.Zero(t, acker.nacks)
}

func TestHandle_MalformedPayloadDropped(t *testing.T) {
	acker := &fakeAcker{}
	dispatcher := &fakeDispatcher{}
	c := NewConsumer("amqp://unused", "q", dispatcher)

	c.handle(context.Background(), amqp.Delivery{
		Acknowledger: acker,
		DeliveryTag:  1,
		Body:         []byte("{not json"),
	})

	assert.Empty(t, dispatcher.payloads, "malformed payload must not reach the dispatcher")
	assert.Equal(t, 1, acker.acks)
}

func TestHandle_RateLimitedRequeuedOnce(t *testing.T) {
	acker := &fakeAcker{}
	dispatcher := &fakeDispatcher{
		err: &despacho.DispatchError{Kind: despacho.FailRateLimited, Wait: 30 * time.Second},
	}
	c := NewConsumer("amqp://unused", "q", dispatcher)

	c.handle(context.Background(), delivery(t, acker, despacho.Payload{Title: "post"}, false))

	assert.Zero(t, acker.acks)
	assert.Equal(t, 1, acker.nacks)
	assert.True(t, acker.requeued)
}

func TestHandle_RateLimitedRedeliveryDropped(t *testing.T) {
	acker := &fakeAcker{}
	dispatcher := &fakeDispatcher{
		err: &despacho.DispatchError{Kind: despacho.FailRateLimited},
	}
	c := NewConsumer("amqp://unused", "q", dispatcher)

	c.handle(context.Background(), delivery(t, acker, despacho.Payload{Title: "post"}, true))

	assert.Equal(t, 1, acker.acks, "second rate-limited failure is dropped, not looped")
	assert.Zero(t, acker.nacks)
}

func TestHandle_RejectedDropped(t *testing.T) {
	acker := &fakeAcker{}
	dispatcher := &fakeDispatcher{
		err: &despacho.DispatchError{Kind: despacho.FailRejected},
	}
	c := NewConsumer("amqp://unused", "q", dispatcher)

	c.handle(context.Background(), delivery(t, acker, despacho.Payload{Title: "post"}, false))

	assert.Equal(t, 1, acker.acks, "rejection is permanent, requeueing cannot help")
	assert.Zero(t, acker.nacks)
}
