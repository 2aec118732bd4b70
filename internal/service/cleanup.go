package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/fathima-sithara/history-service/internal/blob"
	"github.com/fathima-sithara/history-service/internal/cache"
	"github.com/fathima-sithara/history-service/internal/store"
)

// Cleaner cascade-deletes a conversation. Ordering matters: batches and
// archive objects go first, the conversation record last, so a crash can
// never leave batches or blobs pointing at a deleted conversation.
type Cleaner struct {
	store store.Store
	blobs blob.Store
	cache *cache.ArchiveCache
	log   *zap.SugaredLogger
}

func NewCleaner(st store.Store, blobs blob.Store, ac *cache.ArchiveCache, log *zap.SugaredLogger) *Cleaner {
	return &Cleaner{store: st, blobs: blobs, cache: ac, log: log}
}

func (c *Cleaner) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := c.store.DeleteAllBatches(ctx, conversationID); err != nil {
		return err
	}
	if err := c.blobs.DeleteFolder(ctx, "archives/"+conversationID+"/"); err != nil {
		return err
	}
	if err := c.store.DeleteConversation(ctx, conversationID); err != nil {
		return err
	}
	if err := c.cache.Invalidate(ctx, conversationID); err != nil {
		c.log.Warnw("cache invalidation failed", "conversation", conversationID, "error", err)
	}
	c.log.Infow("conversation deleted", "conversation", conversationID)
	return nil
}
