package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCache(ttl time.Duration) (*ArchiveCache, *MemoryKV) {
	kv := NewMemoryKV()
	return NewArchiveCache(kv, ttl, zap.NewNop().Sugar()), kv
}

const blobJSON = `{
	"conversationId": "c1",
	"batches": [{
		"id": "b1",
		"messages": [{"senderId": "alice", "senderName": "Alice", "text": "hi", "timestamp": "2025-06-01T10:00:00Z", "read": false}],
		"startTime": "2025-06-01T10:00:00Z",
		"endTime": "2025-06-01T10:00:00Z"
	}],
	"totalMessages": 1,
	"oldestTimestamp": "2025-06-01T10:00:00Z",
	"newestTimestamp": "2025-06-01T10:00:00Z",
	"archivedAt": "2025-06-01T11:00:00Z"
}`

func TestPutThenGet(t *testing.T) {
	c, _ := newTestCache(time.Hour)
	ctx := context.Background()

	decoded := c.Put(ctx, "c1", "archives/c1/1.json", []byte(blobJSON))
	require.NotNil(t, decoded)
	assert.Equal(t, int64(1), decoded.TotalMessages)

	got, found := c.Get(ctx, "c1", "archives/c1/1.json")
	require.True(t, found)
	require.Len(t, got.Batches, 1)
	assert.Equal(t, "hi", got.Batches[0].Messages[0].Text)
	assert.Equal(t, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), got.Batches[0].Messages[0].Timestamp)
}

func TestExpiredEntryBehavesAsMiss(t *testing.T) {
	c, kv := newTestCache(time.Hour)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }
	c.Put(ctx, "c1", "p", []byte(blobJSON))

	c.now = func() time.Time { return base.Add(59 * time.Minute) }
	_, found := c.Get(ctx, "c1", "p")
	assert.True(t, found)

	c.now = func() time.Time { return base.Add(61 * time.Minute) }
	_, found = c.Get(ctx, "c1", "p")
	assert.False(t, found)

	// Expired entries are evicted, not just ignored.
	_, present, err := kv.Get(ctx, cacheKey("c1", "p"))
	require.NoError(t, err)
	assert.False(t, present)
}

func TestInvalidateDropsOnlyTargetConversation(t *testing.T) {
	c, _ := newTestCache(time.Hour)
	ctx := context.Background()

	c.Put(ctx, "c1", "p1", []byte(blobJSON))
	c.Put(ctx, "c1", "p2", []byte(blobJSON))
	c.Put(ctx, "c2", "p1", []byte(blobJSON))

	require.NoError(t, c.Invalidate(ctx, "c1"))

	_, found := c.Get(ctx, "c1", "p1")
	assert.False(t, found)
	_, found = c.Get(ctx, "c1", "p2")
	assert.False(t, found)
	_, found = c.Get(ctx, "c2", "p1")
	assert.True(t, found)
}

func TestTimestampNormalization(t *testing.T) {
	want := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		raw  string
	}{
		{"rfc3339", `"2025-06-01T10:00:00Z"`},
		{"iso no zone", `"2025-06-01T10:00:00"`},
		{"epoch seconds", `1748772000`},
		{"epoch millis", `1748772000000`},
		{"seconds nanos pair", `{"seconds": 1748772000, "nanos": 0}`},
		{"underscore pair", `{"_seconds": 1748772000, "_nanoseconds": 0}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestCache(time.Hour)
			raw := `{"conversationId":"c1","batches":[],"totalMessages":0,` +
				`"oldestTimestamp":` + tc.raw + `,"newestTimestamp":` + tc.raw + `,"archivedAt":` + tc.raw + `}`
			b := c.Put(context.Background(), "c1", "p", []byte(raw))
			assert.True(t, b.OldestTimestamp.Equal(want), "got %v", b.OldestTimestamp)
		})
	}
}

func TestUnrecognizedTimestampFallsBackToNow(t *testing.T) {
	c, _ := newTestCache(time.Hour)
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	raw := `{"conversationId":"c1","batches":[],"totalMessages":0,` +
		`"oldestTimestamp":true,"newestTimestamp":[1,2],"archivedAt":"gibberish"}`
	b := c.Put(context.Background(), "c1", "p", []byte(raw))
	require.NotNil(t, b)
	assert.True(t, b.OldestTimestamp.Equal(now))
	assert.True(t, b.NewestTimestamp.Equal(now))
	assert.True(t, b.ArchivedAt.Equal(now))
}

func TestMalformedBlobDecodesEmpty(t *testing.T) {
	c, _ := newTestCache(time.Hour)
	b := c.Put(context.Background(), "c1", "p", []byte("not json at all"))
	require.NotNil(t, b)
	assert.Empty(t, b.Batches)
}
