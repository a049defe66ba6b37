package jwks

import (
	"context"
	"encoding/json"

	"github.com/sing3demons/jwks-server/pkg/kafka"
	"github.com/sing3demons/jwks-server/pkg/logAction"
	"github.com/sing3demons/jwks-server/pkg/mlog"
)

const EventKeyCreated = "key.created"

type KeyEvent struct {
	Event      string `json:"event"`
	Kid        string `json:"kid"`
	Exp        int64  `json:"exp"`
	Valid      bool   `json:"valid"`
	OccurredAt int64  `json:"occurred_at"`
}

type KeyEventPublisher interface {
	PublishKeyEvent(ctx context.Context, event KeyEvent) error
}

type kafkaKeyEventPublisher struct {
	client kafka.Client
	topic  string
}

func NewKafkaKeyEventPublisher(client kafka.Client, topic string) KeyEventPublisher {
	return &kafkaKeyEventPublisher{client: client, topic: topic}
}

// PublishKeyEvent sends the event keyed by kid so a partition sees one key's history in order.
func (p *kafkaKeyEventPublisher) PublishKeyEvent(ctx context.Context, event KeyEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	mlog.L(ctx).Info(logAction.PUBLISH(p.topic, event.Event), event)
	return p.client.Publish(ctx, p.topic, []byte(event.Kid), payload)
}

type noopKeyEventPublisher struct{}

func NewNoopKeyEventPublisher() KeyEventPublisher {
	return noopKeyEventPublisher{}
}

func (noopKeyEventPublisher) PublishKeyEvent(context.Context, KeyEvent) error {
	return nil
}
