package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fathima-sithara/history-service/internal/blob"
	"github.com/fathima-sithara/history-service/internal/cache"
	"github.com/fathima-sithara/history-service/internal/domain"
	"github.com/fathima-sithara/history-service/internal/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type testEnv struct {
	store     *store.MemoryStore
	blobs     *blob.MemoryStore
	kv        *cache.MemoryKV
	cache     *cache.ArchiveCache
	writer    *Writer
	compactor *Compactor
	reader    *Reader
	cleaner   *Cleaner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zap.NewNop().Sugar()
	st := store.NewMemoryStore()
	blobs := blob.NewMemoryStore()
	kv := cache.NewMemoryKV()
	ac := cache.NewArchiveCache(kv, domain.CacheTTL, log)

	clock := &fakeClock{t: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	writer := NewWriter(st, nil, log)
	writer.now = clock.Now
	compactor := NewCompactor(st, blobs, nil, log)
	compactor.now = clock.Now
	reader := NewReader(st, blobs, ac, log)
	reader.retryDelay = 0

	return &testEnv{
		store:     st,
		blobs:     blobs,
		kv:        kv,
		cache:     ac,
		writer:    writer,
		compactor: compactor,
		reader:    reader,
		cleaner:   NewCleaner(st, blobs, ac, log),
	}
}

func (e *testEnv) seedConversation(t *testing.T, id string, participants ...string) {
	t.Helper()
	require.NoError(t, e.writer.EnsureConversation(context.Background(), id, participants, nil))
}

// sendN appends n messages alternating senders and returns their texts in
// send order.
func (e *testEnv) sendN(t *testing.T, convID string, start, n int) []string {
	t.Helper()
	texts := make([]string, 0, n)
	senders := []string{"alice", "bob"}
	for i := 0; i < n; i++ {
		text := fmt.Sprintf("msg-%04d", start+i)
		_, err := e.writer.Append(context.Background(), convID, domain.Message{
			SenderID:   senders[i%2],
			SenderName: senders[i%2],
			Text:       text,
		})
		require.NoError(t, err)
		texts = append(texts, text)
	}
	return texts
}

// readAll drains a fresh cursor and returns all messages newest-first plus
// the number of pages that reported a soft failure.
func (e *testEnv) readAll(t *testing.T, convID string) ([]domain.Message, int) {
	t.Helper()
	cur := e.reader.OpenCursor(convID)
	out := []domain.Message{}
	partialPages := 0
	for i := 0; i < 1000; i++ {
		page, err := cur.NextPage(context.Background())
		require.NoError(t, err)
		out = append(out, page.Messages...)
		if page.Partial {
			partialPages++
		}
		if page.Done {
			return out, partialPages
		}
	}
	t.Fatal("cursor never finished")
	return nil, 0
}

// TestFullHistoryRoundTrip interleaves writes and compactions, then checks
// that a full backward read returns every message exactly once in strictly
// descending timestamp order.
func TestFullHistoryRoundTrip(t *testing.T) {
	e := newTestEnv(t)
	e.seedConversation(t, "c1", "alice", "bob")

	var sent []string
	for round := 0; round < 5; round++ {
		sent = append(sent, e.sendN(t, "c1", len(sent), 37)...)
		_, err := e.compactor.Compact(context.Background(), "c1")
		require.NoError(t, err)
	}

	got, partial := e.readAll(t, "c1")
	require.Equal(t, 0, partial)
	require.Len(t, got, len(sent))

	for i := 1; i < len(got); i++ {
		require.False(t, got[i-1].Timestamp.Before(got[i].Timestamp),
			"messages out of order at index %d", i)
	}

	seen := map[string]bool{}
	for _, m := range got {
		require.False(t, seen[m.Text], "duplicate message %s", m.Text)
		seen[m.Text] = true
	}
	// Newest-first read means the last sent message comes out first.
	require.Equal(t, sent[len(sent)-1], got[0].Text)
	require.Equal(t, sent[0], got[len(got)-1].Text)
}

func TestCascadeDeleteRemovesEverything(t *testing.T) {
	e := newTestEnv(t)
	e.seedConversation(t, "c1", "alice", "bob")
	e.sendN(t, "c1", 0, 100)
	_, err := e.compactor.Compact(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, 1, e.blobs.Len())

	require.NoError(t, e.cleaner.DeleteConversation(context.Background(), "c1"))

	require.Equal(t, 0, e.store.BatchCount("c1"))
	require.Equal(t, 0, e.blobs.Len())
	_, err = e.store.GetConversation(context.Background(), "c1")
	require.ErrorIs(t, err, store.ErrConversationNotFound)
}
