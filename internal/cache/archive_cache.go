package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/history-service/internal/domain"
)

const keyPrefix = "archive:"

// ArchiveCache keeps decoded archive blobs close to the reader. Entries
// carry a write timestamp and are treated as misses once older than the
// TTL; because blobs are immutable this bounds storage, not staleness.
// The cache is also the single chokepoint that normalizes timestamp
// encodings before a blob reaches the reader.
type ArchiveCache struct {
	kv  KV
	ttl time.Duration
	log *zap.SugaredLogger
	now func() time.Time
}

type envelope struct {
	StoredAt time.Time       `json:"storedAt"`
	Blob     json.RawMessage `json:"blob"`
}

func NewArchiveCache(kv KV, ttl time.Duration, log *zap.SugaredLogger) *ArchiveCache {
	if ttl <= 0 {
		ttl = domain.CacheTTL
	}
	return &ArchiveCache{kv: kv, ttl: ttl, log: log, now: time.Now}
}

func cacheKey(conversationID, path string) string {
	return keyPrefix + conversationID + ":" + path
}

// Get returns the cached blob for (conversationID, path), or found=false on
// a miss or an expired entry. Expired entries are removed on the way out.
func (c *ArchiveCache) Get(ctx context.Context, conversationID, path string) (*domain.ArchiveBlob, bool) {
	key := cacheKey(conversationID, path)
	raw, found, err := c.kv.Get(ctx, key)
	if err != nil || !found {
		return nil, false
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		c.log.Warnw("dropping undecodable cache entry", "key", key, "error", err)
		_ = c.kv.Remove(ctx, key)
		return nil, false
	}
	if c.now().Sub(env.StoredAt) > c.ttl {
		_ = c.kv.Remove(ctx, key)
		return nil, false
	}
	return c.decode(env.Blob, path), true
}

// Put stores the raw blob JSON and returns the decoded, normalized blob, so
// a fresh download is decoded exactly once and through the same path as a
// cache hit.
func (c *ArchiveCache) Put(ctx context.Context, conversationID, path string, data []byte) *domain.ArchiveBlob {
	env := envelope{StoredAt: c.now(), Blob: json.RawMessage(data)}
	if b, err := json.Marshal(env); err == nil {
		if err := c.kv.Set(ctx, cacheKey(conversationID, path), string(b)); err != nil {
			c.log.Warnw("archive cache write failed", "path", path, "error", err)
		}
	}
	return c.decode(data, path)
}

// Invalidate drops every cached entry for a conversation.
func (c *ArchiveCache) Invalidate(ctx context.Context, conversationID string) error {
	return c.kv.RemoveAllWithPrefix(ctx, keyPrefix+conversationID+":")
}

type blobMessage struct {
	SenderID   string   `json:"senderId"`
	SenderName string   `json:"senderName"`
	Text       string   `json:"text"`
	Timestamp  flexTime `json:"timestamp"`
	Read       bool     `json:"read"`
}

type blobBatch struct {
	ID        string        `json:"id"`
	Messages  []blobMessage `json:"messages"`
	StartTime flexTime      `json:"startTime"`
	EndTime   flexTime      `json:"endTime"`
}

type blobDoc struct {
	ConversationID  string      `json:"conversationId"`
	Batches         []blobBatch `json:"batches"`
	TotalMessages   int64       `json:"totalMessages"`
	OldestTimestamp flexTime    `json:"oldestTimestamp"`
	NewestTimestamp flexTime    `json:"newestTimestamp"`
	ArchivedAt      flexTime    `json:"archivedAt"`
}

// decode is total: malformed timestamps resolve to the current time with a
// logged anomaly, and a blob that is not JSON at all decodes to an empty
// blob rather than failing the read.
func (c *ArchiveCache) decode(data []byte, path string) *domain.ArchiveBlob {
	var doc blobDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		c.log.Warnw("malformed archive blob", "path", path, "error", err)
		return &domain.ArchiveBlob{}
	}

	out := &domain.ArchiveBlob{
		ConversationID:  doc.ConversationID,
		TotalMessages:   doc.TotalMessages,
		OldestTimestamp: c.normalize(doc.OldestTimestamp, path),
		NewestTimestamp: c.normalize(doc.NewestTimestamp, path),
		ArchivedAt:      c.normalize(doc.ArchivedAt, path),
		Batches:         make([]domain.Batch, 0, len(doc.Batches)),
	}
	for _, b := range doc.Batches {
		nb := domain.Batch{
			ID:        b.ID,
			StartTime: c.normalize(b.StartTime, path),
			EndTime:   c.normalize(b.EndTime, path),
			Messages:  make([]domain.Message, 0, len(b.Messages)),
		}
		for _, m := range b.Messages {
			nb.Messages = append(nb.Messages, domain.Message{
				SenderID:   m.SenderID,
				SenderName: m.SenderName,
				Text:       m.Text,
				Timestamp:  c.normalize(m.Timestamp, path),
				Read:       m.Read,
			})
		}
		out.Batches = append(out.Batches, nb)
	}
	return out
}

func (c *ArchiveCache) normalize(f flexTime, path string) time.Time {
	if f.ok {
		return f.t
	}
	c.log.Warnw("malformed timestamp in archive blob", "path", path)
	return c.now().UTC()
}
