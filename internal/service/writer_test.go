package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/history-service/internal/domain"
	"github.com/fathima-sithara/history-service/internal/store"
)

func TestAppendRollsOverAtBatchSize(t *testing.T) {
	e := newTestEnv(t)
	e.seedConversation(t, "c1", "alice", "bob")

	e.sendN(t, "c1", 0, domain.BatchSize+1)

	batches, err := e.store.ListBatchesAsc(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0].Messages, domain.BatchSize)
	assert.Len(t, batches[1].Messages, 1)

	conv, err := e.store.GetConversation(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, batches[1].ID, conv.CurrentBatchID)
	assert.Equal(t, int64(domain.BatchSize+1), conv.MessageCount)
}

func TestAppendUpdatesDenormalizedFields(t *testing.T) {
	e := newTestEnv(t)
	e.seedConversation(t, "c1", "alice", "bob")

	msg, err := e.writer.Append(context.Background(), "c1", domain.Message{
		SenderID: "alice", SenderName: "Alice", Text: "hello",
	})
	require.NoError(t, err)
	require.False(t, msg.Timestamp.IsZero())

	conv, err := e.store.GetConversation(context.Background(), "c1")
	require.NoError(t, err)
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, "hello", conv.LastMessage.Text)
	assert.Equal(t, msg.Timestamp, conv.LastMessage.Timestamp)
	assert.Equal(t, int64(1), conv.UnreadCounts["bob"])
	assert.Equal(t, int64(0), conv.UnreadCounts["alice"])

	require.NoError(t, e.writer.MarkRead(context.Background(), "c1", "bob"))
	conv, err = e.store.GetConversation(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), conv.UnreadCounts["bob"])
}

func TestAppendValidation(t *testing.T) {
	e := newTestEnv(t)
	e.seedConversation(t, "c1", "alice", "bob")

	_, err := e.writer.Append(context.Background(), "c1", domain.Message{SenderID: "alice"})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = e.writer.Append(context.Background(), "c1", domain.Message{SenderID: "mallory", Text: "hi"})
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = e.writer.Append(context.Background(), "nope", domain.Message{SenderID: "alice", Text: "hi"})
	assert.ErrorIs(t, err, store.ErrConversationNotFound)
}

func TestAppendFailureLeavesNoPartialState(t *testing.T) {
	e := newTestEnv(t)
	e.seedConversation(t, "c1", "alice", "bob")
	e.sendN(t, "c1", 0, 3)

	e.store.FailNextTx = errors.New("connection reset")
	_, err := e.writer.Append(context.Background(), "c1", domain.Message{SenderID: "alice", Text: "lost"})
	require.ErrorIs(t, err, ErrWriteFailed)

	conv, err := e.store.GetConversation(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), conv.MessageCount)
	assert.NotEqual(t, "lost", conv.LastMessage.Text)

	batches, err := e.store.ListBatchesAsc(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].Messages, 3)
}

func TestEnsureConversationIsIdempotent(t *testing.T) {
	e := newTestEnv(t)
	e.seedConversation(t, "c1", "alice", "bob")
	e.sendN(t, "c1", 0, 2)

	// A second ensure must not reset counters.
	e.seedConversation(t, "c1", "alice", "bob")
	conv, err := e.store.GetConversation(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), conv.MessageCount)

	err = e.writer.EnsureConversation(context.Background(), "c2", []string{"alice"}, nil)
	assert.Error(t, err)
}
