package sweep

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/history-service/internal/domain"
	"github.com/fathima-sithara/history-service/internal/service"
	"github.com/fathima-sithara/history-service/internal/store"
)

// Sweeper periodically compacts every conversation whose hot message count
// has crossed the archive threshold. It shares the compaction entry point
// with the on-demand HTTP trigger; racing with one is safe because Compact
// is idempotent.
type Sweeper struct {
	store     store.Store
	compactor *service.Compactor
	interval  time.Duration
	log       *zap.SugaredLogger
}

func NewSweeper(st store.Store, c *service.Compactor, interval time.Duration, log *zap.SugaredLogger) *Sweeper {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Sweeper{store: st, compactor: c, interval: interval, log: log}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	s.log.Infow("compaction sweeper started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("compaction sweeper stopped")
			return
		case <-t.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over all eligible conversations.
func (s *Sweeper) Sweep(ctx context.Context) {
	ids, err := s.store.ListEligibleConversations(ctx, domain.ArchiveThreshold)
	if err != nil {
		s.log.Errorw("eligible conversation scan failed", "error", err)
		return
	}
	for _, id := range ids {
		res, err := s.compactor.Compact(ctx, id)
		if err != nil {
			s.log.Warnw("scheduled compaction failed", "conversation", id, "error", err)
			continue
		}
		if res.Status == service.CompactionSuccess {
			s.log.Infow("scheduled compaction done", "conversation", id, "moved", res.MovedCount)
		}
	}
}
