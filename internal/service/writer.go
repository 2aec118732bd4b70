package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathima-sithara/history-service/internal/domain"
	"github.com/fathima-sithara/history-service/internal/events"
	"github.com/fathima-sithara/history-service/internal/store"
)

// Writer appends messages to a conversation's current hot batch, rolling
// over to a new batch every BatchSize messages. The batch mutation and the
// conversation's denormalized counters commit in one transaction: a reader
// can never observe lastMessage without the message itself, or a counter
// bump without the write.
type Writer struct {
	store store.Store
	pub   *events.Publisher
	log   *zap.SugaredLogger
	now   func() time.Time
}

func NewWriter(st store.Store, pub *events.Publisher, log *zap.SugaredLogger) *Writer {
	return &Writer{store: st, pub: pub, log: log, now: time.Now}
}

// Append stores one message. The timestamp is assigned here, not by the
// client, so ordering does not depend on device clocks.
func (w *Writer) Append(ctx context.Context, conversationID string, msg domain.Message) (*domain.Message, error) {
	if msg.Text == "" {
		return nil, ErrEmptyMessage
	}
	msg.Timestamp = w.now().UTC()
	msg.Read = false

	err := w.store.RunTransaction(ctx, func(tx store.Tx) error {
		conv, err := tx.GetConversation(conversationID)
		if err != nil {
			return err
		}
		if !conv.HasParticipant(msg.SenderID) {
			return ErrNotParticipant
		}

		upd := store.ConversationUpdate{
			IncMessageCount: 1,
			SetLastMessage:  &domain.LastMessage{Text: msg.Text, Timestamp: msg.Timestamp},
			IncUnread:       map[string]int64{},
		}
		for _, p := range conv.Participants {
			if p != msg.SenderID {
				upd.IncUnread[p] = 1
			}
		}

		// Rollover when there is no open batch yet or the open batch has
		// just reached capacity. The read of CurrentBatchID and the write
		// below share the transaction, so two concurrent writers cannot
		// both create a batch for the same boundary.
		if conv.CurrentBatchID == "" || conv.MessageCount%domain.BatchSize == 0 {
			b := &domain.Batch{
				ID:             uuid.NewString(),
				ConversationID: conversationID,
				Messages:       []domain.Message{msg},
				StartTime:      msg.Timestamp,
				EndTime:        msg.Timestamp,
			}
			if err := tx.InsertBatch(b); err != nil {
				return err
			}
			upd.SetCurrentBatchID = &b.ID
		} else {
			if err := tx.AppendToBatch(conv.CurrentBatchID, msg); err != nil {
				return err
			}
		}
		return tx.UpdateConversation(conversationID, upd)
	})
	if err != nil {
		if errors.Is(err, store.ErrConversationNotFound) || errors.Is(err, ErrNotParticipant) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	if w.pub != nil {
		w.pub.MessageCreated(ctx, conversationID, &msg)
	}
	return &msg, nil
}

// MarkRead zeroes the unread counter for one participant.
func (w *Writer) MarkRead(ctx context.Context, conversationID, userID string) error {
	return w.store.RunTransaction(ctx, func(tx store.Tx) error {
		conv, err := tx.GetConversation(conversationID)
		if err != nil {
			return err
		}
		if !conv.HasParticipant(userID) {
			return ErrNotParticipant
		}
		return tx.UpdateConversation(conversationID, store.ConversationUpdate{
			ResetUnread: []string{userID},
		})
	})
}

// EnsureConversation lazily creates the conversation document for a pair of
// participants. Safe to call on every send; an existing conversation is
// left untouched.
func (w *Writer) EnsureConversation(ctx context.Context, id string, participants []string, display map[string]domain.ParticipantDisplay) error {
	if len(participants) != 2 {
		return fmt.Errorf("conversation requires exactly two participants, got %d", len(participants))
	}
	return w.store.EnsureConversation(ctx, &domain.Conversation{
		ID:                 id,
		Participants:       participants,
		ParticipantDisplay: display,
		UnreadCounts:       map[string]int64{},
		Archives:           []domain.ArchiveMetadata{},
		CreatedAt:          w.now().UTC(),
	})
}
