package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/layer-3/tapthat/core"
	"github.com/layer-3/tapthat/ports"
)

const (
	TopicBridgeRequested = "tapthat.bridge.requested"
	TopicBridgeCompleted = "tapthat.bridge.completed"
)

// BridgeRequestedEvent is published when a sentinel tap creates a bridge request
type BridgeRequestedEvent struct {
	RequestID   string    `json:"request_id"`
	UserAddress string    `json:"user_address"`
	SourceChain uint64    `json:"source_chain"`
	DestChain   uint64    `json:"dest_chain"`
	Amount      string    `json:"amount"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// BridgeCompletedEvent is published when a bridge request is marked completed
type BridgeCompletedEvent struct {
	RequestID string `json:"request_id"`
	TxHash    string `json:"tx_hash"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{
		publisher: publisher,
	}
}

// PublishBridgeRequested publishes a bridge requested event
func (p *WatermillPublisher) PublishBridgeRequested(ctx context.Context, req *core.BridgeRequest) error {
	return p.publish(ctx, TopicBridgeRequested, BridgeRequestedEvent{
		RequestID:   req.RequestID,
		UserAddress: req.UserAddress,
		SourceChain: req.SourceChain,
		DestChain:   req.DestChain,
		Amount:      req.Amount,
		ExpiresAt:   req.ExpiresAt,
	})
}

// PublishBridgeCompleted publishes a bridge completed event
func (p *WatermillPublisher) PublishBridgeCompleted(ctx context.Context, requestID, txHash string) error {
	return p.publish(ctx, TopicBridgeCompleted, BridgeCompletedEvent{
		RequestID: requestID,
		TxHash:    txHash,
	})
}

func (p *WatermillPublisher) publish(ctx context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishBridgeRequested(context.Context, *core.BridgeRequest) error { return nil }
func (NopPublisher) PublishBridgeCompleted(context.Context, string, string) error      { return nil }
