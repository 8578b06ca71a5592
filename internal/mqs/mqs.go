// Package mqs wraps gocloud.dev/pubsub so the rest of the system depends on
// a small Queue/Subscription interface rather than a specific broker.
// RabbitMQ is the only backend wired today, via rabbitpubsub. Outside this
// package only internal/app imports amqp091-go, to dial the connection and
// open the channel passed to Declare.
package mqs

import (
	"context"
	"time"

	"gocloud.dev/pubsub"
)

// publishTimeout bounds how long a single publish waits for the broker's
// durable-accept acknowledgment, per spec §5's "broker publish 5s" default.
const publishTimeout = 5 * time.Second

// Message is an outgoing payload plus routing metadata.
type Message struct {
	Body     []byte
	Metadata map[string]string
}

// IncomingMessage is a received message the consumer must resolve exactly
// once, by calling either Ack or Nack.
type IncomingMessage struct {
	Body     []byte
	Metadata map[string]string

	msg *pubsub.Message
}

// Ack acknowledges successful processing; the broker will not redeliver it.
func (m *IncomingMessage) Ack() {
	m.msg.Ack()
}

// Nack signals failed processing; the broker redelivers per its own retry
// and dead-lettering policy.
func (m *IncomingMessage) Nack() {
	if m.msg.Nackable() {
		m.msg.Nack()
	}
}

// Queue publishes messages to one named topic.
type Queue interface {
	Publish(ctx context.Context, msg Message) error
	Shutdown(ctx context.Context) error
}

// Subscription receives messages from one named queue.
type Subscription interface {
	Receive(ctx context.Context) (*IncomingMessage, error)
	Shutdown(ctx context.Context) error
}

type topicQueue struct {
	topic *pubsub.Topic
}

func (q *topicQueue) Publish(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return q.topic.Send(ctx, &pubsub.Message{
		Body:     msg.Body,
		Metadata: msg.Metadata,
	})
}

func (q *topicQueue) Shutdown(ctx context.Context) error {
	return q.topic.Shutdown(ctx)
}

type subscription struct {
	sub *pubsub.Subscription
}

func (s *subscription) Receive(ctx context.Context) (*IncomingMessage, error) {
	msg, err := s.sub.Receive(ctx)
	if err != nil {
		return nil, err
	}
	return &IncomingMessage{Body: msg.Body, Metadata: msg.Metadata, msg: msg}, nil
}

func (s *subscription) Shutdown(ctx context.Context) error {
	return s.sub.Shutdown(ctx)
}
