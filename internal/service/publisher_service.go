package service

import (
	"context"
	"encoding/json"
	"time"

	"daw-agent-be/internal/dto"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

type IPublisherService interface {
	RequestSnapshot(ctx context.Context, reason, sessionID string) error
}

type publisherService struct {
	topicName string
	publisher message.Publisher
}

func NewPublisherService(topicName string, publisher message.Publisher) IPublisherService {
	return &publisherService{
		topicName: topicName,
		publisher: publisher,
	}
}

func (ps *publisherService) RequestSnapshot(ctx context.Context, reason, sessionID string) error {
	payload, err := json.Marshal(dto.PersistSnapshotMessage{
		Reason:      reason,
		SessionID:   sessionID,
		RequestedAt: time.Now(),
	})
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	return ps.publisher.Publish(ps.topicName, msg)
}
