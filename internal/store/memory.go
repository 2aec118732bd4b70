package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fathima-sithara/history-service/internal/domain"
)

// MemoryStore keeps the full hot tier in process memory. It backs the core
// tests and local development; transactions are emulated by mutating a deep
// copy of the state and swapping it in only when the callback succeeds.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*domain.Conversation
	batches       map[string]*domain.Batch

	// FailNextTx, when set, aborts the next RunTransaction with this error
	// after the callback ran. Test hook for partial-failure semantics.
	FailNextTx error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*domain.Conversation),
		batches:       make(map[string]*domain.Batch),
	}
}

func (s *MemoryStore) EnsureConversation(ctx context.Context, c *domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[c.ID]; ok {
		return nil
	}
	cp := cloneConversation(c)
	if cp.UnreadCounts == nil {
		cp.UnreadCounts = map[string]int64{}
	}
	if cp.Archives == nil {
		cp.Archives = []domain.ArchiveMetadata{}
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.conversations[c.ID] = cp
	return nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return cloneConversation(c), nil
}

func (s *MemoryStore) ListBatchesAsc(ctx context.Context, conversationID string) ([]domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.collectBatches(conversationID)
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.Before(out[j].EndTime) })
	return out, nil
}

func (s *MemoryStore) ListBatchesDesc(ctx context.Context, conversationID string, limit int, before time.Time, beforeID string) ([]domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.collectBatches(conversationID)
	sort.Slice(all, func(i, j int) bool {
		if !all[i].EndTime.Equal(all[j].EndTime) {
			return all[i].EndTime.After(all[j].EndTime)
		}
		return all[i].ID > all[j].ID
	})

	out := []domain.Batch{}
	for _, b := range all {
		if !before.IsZero() {
			if b.EndTime.After(before) {
				continue
			}
			if b.EndTime.Equal(before) && b.ID >= beforeID {
				continue
			}
		}
		out = append(out, b)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) collectBatches(conversationID string) []domain.Batch {
	out := []domain.Batch{}
	for _, b := range s.batches {
		if b.ConversationID == conversationID {
			out = append(out, *cloneBatch(b))
		}
	}
	return out
}

func (s *MemoryStore) ListEligibleConversations(ctx context.Context, threshold int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := []string{}
	for id, c := range s.conversations {
		if c.HotMessageCount() >= threshold {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		conversations: make(map[string]*domain.Conversation, len(s.conversations)),
		batches:       make(map[string]*domain.Batch, len(s.batches)),
	}
	for id, c := range s.conversations {
		tx.conversations[id] = cloneConversation(c)
	}
	for id, b := range s.batches {
		tx.batches[id] = cloneBatch(b)
	}

	if err := fn(tx); err != nil {
		return err
	}
	if err := s.FailNextTx; err != nil {
		s.FailNextTx = nil
		return err
	}

	s.conversations = tx.conversations
	s.batches = tx.batches
	return nil
}

func (s *MemoryStore) DeleteConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, id)
	return nil
}

func (s *MemoryStore) DeleteAllBatches(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, b := range s.batches {
		if b.ConversationID == conversationID {
			delete(s.batches, id)
		}
	}
	return nil
}

// BatchCount reports how many hot batches a conversation currently holds.
func (s *MemoryStore) BatchCount(conversationID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, b := range s.batches {
		if b.ConversationID == conversationID {
			n++
		}
	}
	return n
}

type memoryTx struct {
	conversations map[string]*domain.Conversation
	batches       map[string]*domain.Batch
}

func (t *memoryTx) GetConversation(id string) (*domain.Conversation, error) {
	c, ok := t.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return cloneConversation(c), nil
}

func (t *memoryTx) InsertBatch(b *domain.Batch) error {
	t.batches[b.ID] = cloneBatch(b)
	return nil
}

func (t *memoryTx) AppendToBatch(batchID string, m domain.Message) error {
	b, ok := t.batches[batchID]
	if !ok {
		return ErrBatchNotFound
	}
	b.Messages = append(b.Messages, m)
	b.EndTime = m.Timestamp
	return nil
}

func (t *memoryTx) UpdateConversation(id string, u ConversationUpdate) error {
	c, ok := t.conversations[id]
	if !ok {
		return ErrConversationNotFound
	}
	if u.SetCurrentBatchID != nil {
		c.CurrentBatchID = *u.SetCurrentBatchID
	}
	if u.SetLastMessage != nil {
		lm := *u.SetLastMessage
		c.LastMessage = &lm
	}
	c.MessageCount += u.IncMessageCount
	c.ArchivedMessageCount += u.IncArchivedCount
	if c.UnreadCounts == nil {
		c.UnreadCounts = map[string]int64{}
	}
	for userID, n := range u.IncUnread {
		c.UnreadCounts[userID] += n
	}
	for _, userID := range u.ResetUnread {
		c.UnreadCounts[userID] = 0
	}
	if u.AppendArchive != nil {
		c.Archives = append(c.Archives, *u.AppendArchive)
	}
	return nil
}

func (t *memoryTx) DeleteBatch(batchID string) error {
	if _, ok := t.batches[batchID]; !ok {
		return ErrBatchNotFound
	}
	delete(t.batches, batchID)
	return nil
}

func cloneConversation(c *domain.Conversation) *domain.Conversation {
	cp := *c
	cp.Participants = append([]string(nil), c.Participants...)
	cp.Archives = append([]domain.ArchiveMetadata(nil), c.Archives...)
	cp.UnreadCounts = make(map[string]int64, len(c.UnreadCounts))
	for k, v := range c.UnreadCounts {
		cp.UnreadCounts[k] = v
	}
	if c.ParticipantDisplay != nil {
		cp.ParticipantDisplay = make(map[string]domain.ParticipantDisplay, len(c.ParticipantDisplay))
		for k, v := range c.ParticipantDisplay {
			cp.ParticipantDisplay[k] = v
		}
	}
	if c.LastMessage != nil {
		lm := *c.LastMessage
		cp.LastMessage = &lm
	}
	return &cp
}

func cloneBatch(b *domain.Batch) *domain.Batch {
	cp := *b
	cp.Messages = append([]domain.Message(nil), b.Messages...)
	return &cp
}
