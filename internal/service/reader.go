package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/history-service/internal/blob"
	"github.com/fathima-sithara/history-service/internal/cache"
	"github.com/fathima-sithara/history-service/internal/domain"
	"github.com/fathima-sithara/history-service/internal/store"
)

// Reader serves a conversation's history as a backward-in-time sequence of
// pages. A cursor drains the hot tier first, then walks the archive list
// newest-to-oldest, fetching and caching each cold blob on demand. Cursors
// hold no locks and need no cleanup; abandon one by not calling NextPage.
type Reader struct {
	store store.Store
	blobs blob.Store
	cache *cache.ArchiveCache
	log   *zap.SugaredLogger

	pageSize   int
	maxRetries int
	retryDelay time.Duration
}

func NewReader(st store.Store, blobs blob.Store, ac *cache.ArchiveCache, log *zap.SugaredLogger) *Reader {
	return &Reader{
		store:      st,
		blobs:      blobs,
		cache:      ac,
		log:        log,
		pageSize:   domain.PageSize,
		maxRetries: 2,
		retryDelay: 250 * time.Millisecond,
	}
}

// Page is one step of a backward scroll. Partial marks that some older
// messages were unreachable on this step (an unreadable archive was
// skipped); Done marks that both tiers are exhausted.
type Page struct {
	Messages []domain.Message `json:"messages"`
	Partial  bool             `json:"partial"`
	Done     bool             `json:"done"`
}

type cursorState int

const (
	stateHot cursorState = iota
	stateCold
	stateDone
)

// Cursor is a caller-owned pagination handle. Each NextPage call advances
// strictly; re-reading from the start requires a fresh cursor.
type Cursor struct {
	r              *Reader
	conversationID string
	state          cursorState
	before         time.Time
	beforeID       string
	archives       []domain.ArchiveMetadata
	idx            int
}

func (r *Reader) OpenCursor(conversationID string) *Cursor {
	return &Cursor{r: r, conversationID: conversationID}
}

func (c *Cursor) NextPage(ctx context.Context) (Page, error) {
	switch c.state {
	case stateHot:
		return c.nextHot(ctx)
	case stateCold:
		return c.nextCold(ctx)
	default:
		return Page{Done: true}, nil
	}
}

func (c *Cursor) nextHot(ctx context.Context) (Page, error) {
	batches, err := c.r.store.ListBatchesDesc(ctx, c.conversationID, c.r.pageSize, c.before, c.beforeID)
	if err != nil {
		return Page{}, err
	}
	if len(batches) > 0 {
		last := batches[len(batches)-1]
		c.before = last.EndTime
		c.beforeID = last.ID
	}

	// A short page means the hot tier is exhausted, not that it should be
	// retried: fall through to the archives, or finish.
	if len(batches) < c.r.pageSize {
		conv, err := c.r.store.GetConversation(ctx, c.conversationID)
		if err != nil {
			return Page{}, err
		}
		c.archives = sortArchivesDesc(conv.Archives)
		if len(c.archives) > 0 {
			c.state = stateCold
		} else {
			c.state = stateDone
		}
	}

	msgs := flattenDesc(batches)
	if len(msgs) == 0 && c.state == stateCold {
		return c.nextCold(ctx)
	}
	return Page{Messages: msgs, Done: c.state == stateDone}, nil
}

func (c *Cursor) nextCold(ctx context.Context) (Page, error) {
	partial := false
	for c.idx < len(c.archives) {
		meta := c.archives[c.idx]
		c.idx++

		b, ok := c.r.cache.Get(ctx, c.conversationID, meta.Path)
		if !ok {
			data, err := c.r.fetchWithRetry(ctx, meta.Path)
			if err != nil {
				// Soft failure: skip this archive, keep the scroll alive.
				partial = true
				c.r.log.Warnw("archive unreadable, skipping",
					"conversation", c.conversationID, "path", meta.Path, "error", err)
				continue
			}
			b = c.r.cache.Put(ctx, c.conversationID, meta.Path, data)
		}

		if c.idx >= len(c.archives) {
			c.state = stateDone
		}
		return Page{Messages: flattenDesc(b.Batches), Partial: partial, Done: c.state == stateDone}, nil
	}
	c.state = stateDone
	return Page{Partial: partial, Done: true}, nil
}

func (r *Reader) fetchWithRetry(ctx context.Context, path string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(r.retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		data, err := r.blobs.DownloadAll(ctx, path)
		if err == nil {
			return data, nil
		}
		if errors.Is(err, blob.ErrNotFound) {
			// A missing object will not appear on retry.
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func sortArchivesDesc(archives []domain.ArchiveMetadata) []domain.ArchiveMetadata {
	out := append([]domain.ArchiveMetadata(nil), archives...)
	sort.Slice(out, func(i, j int) bool {
		return out[i].NewestTimestamp.After(out[j].NewestTimestamp)
	})
	return out
}

func flattenDesc(batches []domain.Batch) []domain.Message {
	msgs := []domain.Message{}
	for _, b := range batches {
		msgs = append(msgs, b.Messages...)
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.After(msgs[j].Timestamp)
	})
	return msgs
}
