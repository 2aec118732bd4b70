package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/fathima-sithara/history-service/internal/domain"
	"github.com/fathima-sithara/history-service/internal/kafka"
)

// Publisher emits domain events after successful writes and compactions.
// Publishing is best-effort: a broker hiccup is logged, never propagated,
// because the store mutation has already committed.
type Publisher struct {
	prod *kafka.Producer
	log  *zap.SugaredLogger
}

func NewPublisher(prod *kafka.Producer, log *zap.SugaredLogger) *Publisher {
	return &Publisher{prod: prod, log: log}
}

func (p *Publisher) MessageCreated(ctx context.Context, conversationID string, msg *domain.Message) {
	ev := struct {
		Type           string          `json:"type"`
		ConversationID string          `json:"conversationId"`
		Message        *domain.Message `json:"message"`
	}{Type: "message.created", ConversationID: conversationID, Message: msg}

	if err := p.prod.Publish(ctx, conversationID, ev); err != nil {
		p.log.Warnw("publish message.created failed", "conversation", conversationID, "error", err)
	}
}

func (p *Publisher) ConversationArchived(ctx context.Context, conversationID string, meta domain.ArchiveMetadata) {
	ev := struct {
		Type           string                 `json:"type"`
		ConversationID string                 `json:"conversationId"`
		Archive        domain.ArchiveMetadata `json:"archive"`
	}{Type: "conversation.archived", ConversationID: conversationID, Archive: meta}

	if err := p.prod.Publish(ctx, conversationID, ev); err != nil {
		p.log.Warnw("publish conversation.archived failed", "conversation", conversationID, "error", err)
	}
}
