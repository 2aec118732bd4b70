package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathima-sithara/history-service/internal/blob"
	"github.com/fathima-sithara/history-service/internal/domain"
	"github.com/fathima-sithara/history-service/internal/events"
	"github.com/fathima-sithara/history-service/internal/store"
)

// Compactor moves the oldest hot batches of an over-threshold conversation
// into a single immutable cold-store object. The blob upload happens before
// any metadata mutation, so an interrupted run leaves at worst an orphaned,
// unreferenced object; the hot tier is only touched in the final
// transaction, which also appends the archive pointer and bumps the
// archived counter.
type Compactor struct {
	store store.Store
	blobs blob.Store
	pub   *events.Publisher
	log   *zap.SugaredLogger
	now   func() time.Time
}

func NewCompactor(st store.Store, blobs blob.Store, pub *events.Publisher, log *zap.SugaredLogger) *Compactor {
	return &Compactor{store: st, blobs: blobs, pub: pub, log: log, now: time.Now}
}

// Compact archives the oldest eligible batches of one conversation.
// Idempotent: a rerun right after a successful pass finds the hot count
// below threshold and skips. Two passes racing on the same conversation
// commit at most once; the loser finds its batches already deleted inside
// the transaction and skips, leaving only an orphaned blob.
func (c *Compactor) Compact(ctx context.Context, conversationID string) (CompactionResult, error) {
	skipped := CompactionResult{Status: CompactionSkipped}

	conv, err := c.store.GetConversation(ctx, conversationID)
	if err != nil {
		return skipped, err
	}
	if conv.HotMessageCount() < domain.ArchiveThreshold {
		return skipped, nil
	}

	batches, err := c.store.ListBatchesAsc(ctx, conversationID)
	if err != nil {
		return skipped, err
	}
	n := len(batches) - domain.BatchesToKeep
	if n <= 0 {
		return skipped, nil
	}

	// Oldest-first eviction; the BatchesToKeep newest batches, which
	// include the currently open one, are never candidates.
	toArchive := batches[:n]
	archiveBlob := buildBlob(conversationID, toArchive, c.now().UTC())

	data, err := json.Marshal(archiveBlob)
	if err != nil {
		return skipped, err
	}
	path := archivePath(conversationID, archiveBlob.ArchivedAt)
	if err := c.blobs.Upload(ctx, path, data, "application/json"); err != nil {
		return skipped, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	meta := domain.ArchiveMetadata{
		Path:            path,
		Count:           archiveBlob.TotalMessages,
		OldestTimestamp: archiveBlob.OldestTimestamp,
		NewestTimestamp: archiveBlob.NewestTimestamp,
		CreatedAt:       archiveBlob.ArchivedAt,
	}
	err = c.store.RunTransaction(ctx, func(tx store.Tx) error {
		// The batch set was selected outside this transaction, so a
		// concurrent pass (sweep racing the manual trigger) may already
		// have archived it. Deleting first surfaces that as
		// ErrBatchNotFound before any metadata is written.
		for _, b := range toArchive {
			if err := tx.DeleteBatch(b.ID); err != nil {
				return err
			}
		}
		return tx.UpdateConversation(conversationID, store.ConversationUpdate{
			AppendArchive:    &meta,
			IncArchivedCount: archiveBlob.TotalMessages,
		})
	})
	if errors.Is(err, store.ErrBatchNotFound) {
		c.log.Infow("batches archived by a concurrent pass, skipping",
			"conversation", conversationID, "path", path)
		return skipped, nil
	}
	if err != nil {
		// The uploaded blob is now an orphan. It is unreferenced and
		// harmless: the batches are still hot and the next run re-archives
		// them under a fresh path.
		c.log.Warnw("archive commit failed, blob orphaned",
			"conversation", conversationID, "path", path, "error", err)
		return skipped, err
	}

	c.log.Infow("compacted conversation",
		"conversation", conversationID,
		"batches", len(toArchive),
		"messages", archiveBlob.TotalMessages,
		"path", path)
	if c.pub != nil {
		c.pub.ConversationArchived(ctx, conversationID, meta)
	}
	return CompactionResult{Status: CompactionSuccess, MovedCount: archiveBlob.TotalMessages}, nil
}

func buildBlob(conversationID string, batches []domain.Batch, archivedAt time.Time) *domain.ArchiveBlob {
	out := &domain.ArchiveBlob{
		ConversationID: conversationID,
		Batches:        batches,
		ArchivedAt:     archivedAt,
	}
	for i, b := range batches {
		out.TotalMessages += int64(len(b.Messages))
		if i == 0 || b.StartTime.Before(out.OldestTimestamp) {
			out.OldestTimestamp = b.StartTime
		}
		if i == 0 || b.EndTime.After(out.NewestTimestamp) {
			out.NewestTimestamp = b.EndTime
		}
	}
	return out
}

// archivePath derives a collision-free object key from the conversation and
// the archival time. The uuid suffix keeps retried runs from colliding with
// an orphan written in the same millisecond.
func archivePath(conversationID string, t time.Time) string {
	return fmt.Sprintf("archives/%s/%d-%s.json", conversationID, t.UnixMilli(), uuid.NewString()[:8])
}
