package mqs

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"gocloud.dev/pubsub"
	"gocloud.dev/pubsub/rabbitpubsub"
)

// Topology names the exchange/queue layout for one message type's pipeline:
// a primary delivery queue and its dead-letter queue, per spec §4.6/§6.
type Topology struct {
	Exchange   string
	Queue      string
	DLQ        string
	RoutingKey string
}

// DefaultTopology derives the conventional exchange/queue/DLQ names for a
// message type, mirroring the one-exchange-per-domain, one-queue-per-type
// layout the reference delivery pipeline uses.
func DefaultTopology(messageType string) Topology {
	return Topology{
		Exchange:   "greetday.delivery",
		Queue:      fmt.Sprintf("greetday.delivery.%s", messageType),
		DLQ:        fmt.Sprintf("greetday.delivery.%s.dlq", messageType),
		RoutingKey: messageType,
	}
}

// Declare asserts the exchange, primary queue, and DLQ exist, with the
// primary queue's dead-letter-exchange pointed at the DLQ so a worker Nack
// without explicit DLQ routing still lands messages somewhere inspectable.
func Declare(ch *amqp.Channel, topo Topology) error {
	if err := ch.ExchangeDeclare(topo.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("mqs: declare exchange: %w", err)
	}
	dlExchange := topo.Exchange + ".dlx"
	if err := ch.ExchangeDeclare(dlExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("mqs: declare dead-letter exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(topo.DLQ, true, false, false, false, nil); err != nil {
		return fmt.Errorf("mqs: declare dlq: %w", err)
	}
	if err := ch.QueueBind(topo.DLQ, topo.RoutingKey, dlExchange, false, nil); err != nil {
		return fmt.Errorf("mqs: bind dlq: %w", err)
	}
	args := amqp.Table{"x-dead-letter-exchange": dlExchange, "x-dead-letter-routing-key": topo.RoutingKey}
	if _, err := ch.QueueDeclare(topo.Queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("mqs: declare queue: %w", err)
	}
	if err := ch.QueueBind(topo.Queue, topo.RoutingKey, topo.Exchange, false, nil); err != nil {
		return fmt.Errorf("mqs: bind queue: %w", err)
	}
	return nil
}

// NewQueue returns a Queue that publishes to topo's exchange. Each message's
// AMQP routing key is read from its "routing_key" metadata entry;
// topo.RoutingKey is not used.
func NewQueue(conn *amqp.Connection, topo Topology) (Queue, error) {
	topic := rabbitpubsub.OpenTopic(conn, topo.Exchange, &rabbitpubsub.TopicOptions{
		KeyName: "routing_key",
	})
	return &topicQueue{topic: topic}, nil
}

// NewSubscription returns a Subscription that receives from topo's primary
// queue.
func NewSubscription(conn *amqp.Connection, topo Topology) (Subscription, error) {
	sub := rabbitpubsub.OpenSubscription(conn, topo.Queue, nil)
	return &subscription{sub: sub}, nil
}

// Shutdown is a convenience for draining a gocloud pubsub resource that
// does not fit the Queue/Subscription interfaces (used at process exit).
func Shutdown(ctx context.Context, topic *pubsub.Topic, sub *pubsub.Subscription) error {
	var errs []error
	if topic != nil {
		if err := topic.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if sub != nil {
		if err := sub.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("mqs: shutdown: %v", errs)
	}
	return nil
}
