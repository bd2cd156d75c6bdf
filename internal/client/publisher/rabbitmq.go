package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/viperadnan-git/tubestash/internal/core/event"
)

// Forwarded are the event types sent to the broker by default.
var Forwarded = []event.EventType{
	event.EventDownloadCompleted,
	event.EventDownloadFailed,
	event.EventDownloadCancelled,
	event.EventConnectionRestored,
	event.EventConnectionLost,
}

const publishTimeout = 5 * time.Second

type Config struct {
	URL      string
	Exchange string
	// Queue, when set, is declared durable and bound to every routing key
	// in RoutingKeys.
	Queue       string
	RoutingKeys []event.EventType
}

type RabbitMQ struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func NewRabbitMQ(cfg Config) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	if cfg.Queue != "" {
		q, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil)
		if err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("declare queue: %w", err)
		}
		for _, key := range cfg.RoutingKeys {
			if err := ch.QueueBind(q.Name, string(key), cfg.Exchange, false, nil); err != nil {
				ch.Close()
				conn.Close()
				return nil, fmt.Errorf("bind queue to %s: %w", key, err)
			}
		}
	}

	log.Info().
		Str("exchange", cfg.Exchange).
		Str("queue", cfg.Queue).
		Msg("connected to rabbitmq")

	return &RabbitMQ{
		conn:     conn,
		channel:  ch,
		exchange: cfg.Exchange,
	}, nil
}

// Publish sends e to the exchange with its type as the routing key.
func (r *RabbitMQ) Publish(ctx context.Context, e event.Event) error {
	msg, err := message(e)
	if err != nil {
		return err
	}

	if err := r.channel.PublishWithContext(ctx, r.exchange, string(e.Type), false, false, msg); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	log.Debug().Str("event", string(e.Type)).Str("message_id", msg.MessageId).Msg("published event")
	return nil
}

func message(e event.Event) (amqp.Publishing, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	body, err := json.Marshal(e)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}

	return amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    e.ID,
		Type:         string(e.Type),
		Timestamp:    e.Timestamp.UTC(),
		Body:         body,
	}, nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// Sink receives forwarded events.
type Sink interface {
	Publish(ctx context.Context, e event.Event) error
}

// Attach forwards every event of the given types from bus to sink and
// returns a function that detaches it again. Publish failures are logged
// and never block the bus.
func Attach(bus event.Bus, sink Sink, types ...event.EventType) (detach func()) {
	unsubs := make([]func(), 0, len(types))
	for _, t := range types {
		unsubs = append(unsubs, bus.Subscribe(t, func(ctx context.Context, e event.Event) error {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
			defer cancel()
			if err := sink.Publish(ctx, e); err != nil {
				log.Warn().Err(err).Str("event", string(e.Type)).Msg("forward event failed")
			}
			return nil
		}))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
