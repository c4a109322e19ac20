package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"daw-agent-be/internal/pkg/logger"
	"daw-agent-be/pkg/events"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// EventHandler processes one decoded agent event. A returned error naks the message.
type EventHandler func(ctx context.Context, event events.Event) error

type Subscriber struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	log logger.ILogger
}

func NewSubscriber(url string, log logger.ILogger) (*Subscriber, error) {
	nc, js, err := connect(url)
	if err != nil {
		return nil, err
	}
	return &Subscriber{nc: nc, js: js, log: log}, nil
}

// Decode turns a bus message body back into an event.
func Decode(data []byte) (events.Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Type == "" {
		return nil, fmt.Errorf("event envelope without type")
	}
	if env.Data == nil {
		env.Data = map[string]interface{}{}
	}
	return events.BaseEvent{Type: env.Type, Data: env.Data, OccurredAt: env.OccurredAt}, nil
}

// Subscribe consumes subject with a consumer named durable. An empty durable
// creates an ephemeral consumer that starts at new messages. The returned
// stop function ends consumption.
func (s *Subscriber) Subscribe(ctx context.Context, subject, durable string, handler EventHandler) (stop func(), err error) {
	cfg := jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}
	if durable == "" {
		cfg.DeliverPolicy = jetstream.DeliverNewPolicy
	}

	consumer, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		event, err := Decode(msg.Data())
		if err != nil {
			s.log.Error(module, "Dropping undecodable event", map[string]interface{}{
				"subject": msg.Subject(),
				"error":   err.Error(),
			})
			msg.Term()
			return
		}

		if err := handler(ctx, event); err != nil {
			s.log.Warn(module, "Handler failed", map[string]interface{}{
				"event": event.EventType(),
				"error": err.Error(),
			})
			msg.Nak()
			return
		}
		msg.Ack()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	s.log.Info(module, "Subscribed", map[string]interface{}{"subject": subject, "durable": durable})
	return cc.Stop, nil
}

func (s *Subscriber) Close() {
	if s.nc != nil {
		s.nc.Close()
	}
}
