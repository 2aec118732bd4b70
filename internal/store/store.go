package store

import (
	"context"
	"errors"
	"time"

	"github.com/fathima-sithara/history-service/internal/domain"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrBatchNotFound        = errors.New("batch not found")
)

// ConversationUpdate describes a partial mutation of a conversation
// document. Zero-valued fields are left untouched, so one update can carry
// any combination of counter increments and field sets in a single write.
type ConversationUpdate struct {
	SetCurrentBatchID *string
	SetLastMessage    *domain.LastMessage
	IncMessageCount   int64
	IncArchivedCount  int64
	IncUnread         map[string]int64
	ResetUnread       []string
	AppendArchive     *domain.ArchiveMetadata
}

// Tx is the set of operations available inside a transaction. All reads and
// writes through a Tx are isolated by the backing store; in particular the
// writer's read-then-rollover decision and the compactor's metadata-plus-
// delete step each run against a single Tx.
type Tx interface {
	GetConversation(id string) (*domain.Conversation, error)
	InsertBatch(b *domain.Batch) error
	AppendToBatch(batchID string, m domain.Message) error
	UpdateConversation(id string, u ConversationUpdate) error
	// DeleteBatch removes one batch, returning ErrBatchNotFound if it is
	// already gone. Callers deleting a batch set chosen outside the
	// transaction rely on that error to detect a concurrent pass that beat
	// them to it.
	DeleteBatch(batchID string) error
}

// Store is the transactional document store behind the hot tier.
type Store interface {
	// EnsureConversation creates the conversation if it does not exist yet.
	// An existing document is left untouched.
	EnsureConversation(ctx context.Context, c *domain.Conversation) error

	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)

	// ListBatchesAsc returns every batch of a conversation ordered by
	// end time ascending (oldest first).
	ListBatchesAsc(ctx context.Context, conversationID string) ([]domain.Batch, error)

	// ListBatchesDesc returns up to limit batches ordered by end time
	// descending, ties broken by id descending. A non-zero before acts as an
	// exclusive pagination cursor: only batches sorting strictly after
	// (before, beforeID) are returned. The id tiebreak matters because two
	// batches can share an end time once the store truncates timestamps.
	ListBatchesDesc(ctx context.Context, conversationID string, limit int, before time.Time, beforeID string) ([]domain.Batch, error)

	// ListEligibleConversations returns the ids of conversations whose hot
	// message count is at or above threshold.
	ListEligibleConversations(ctx context.Context, threshold int64) ([]string, error)

	// RunTransaction executes fn atomically. If fn returns an error every
	// mutation made through its Tx is rolled back.
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error

	// DeleteConversation removes the conversation document. Callers must
	// have deleted all batches first; the cascade ordering lives in the
	// cleanup service, not here.
	DeleteConversation(ctx context.Context, id string) error

	// DeleteAllBatches removes every hot-tier batch of a conversation.
	DeleteAllBatches(ctx context.Context, conversationID string) error
}
