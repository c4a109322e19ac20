package service

import (
	"context"
	"encoding/json"

	"daw-agent-be/internal/dto"
	"daw-agent-be/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill/message"
)

const consumerModule = "CONSUMER"

// SnapshotPersister writes the current memory snapshot to durable storage.
type SnapshotPersister interface {
	Persist(ctx context.Context) error
}

type IConsumerService interface {
	Consume(ctx context.Context) error
}

type consumerService struct {
	subscriber message.Subscriber
	topicName  string
	persister  SnapshotPersister
	logger     logger.ILogger
}

func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	persister SnapshotPersister,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		subscriber: subscriber,
		topicName:  topicName,
		persister:  persister,
		logger:     log,
	}
}

// Consume subscribes and processes messages on a background goroutine until
// ctx ends.
func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.PersistSnapshotMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error(consumerModule, "Failed to unmarshal message", map[string]interface{}{"error": err.Error()})
		msg.Ack()
		return
	}

	// Every snapshot is a full overwrite, so a failed write is simply
	// superseded by the next request. Redelivery would only repeat it.
	if err := cs.persister.Persist(ctx); err != nil {
		cs.logger.Error(consumerModule, "Memory snapshot failed", map[string]interface{}{
			"reason":     payload.Reason,
			"session_id": payload.SessionID,
			"error":      err.Error(),
		})
		msg.Ack()
		return
	}

	cs.logger.Debug(consumerModule, "Memory snapshot persisted", map[string]interface{}{
		"reason":     payload.Reason,
		"session_id": payload.SessionID,
	})
	msg.Ack()
}
