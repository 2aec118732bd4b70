package sweep

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fathima-sithara/history-service/internal/blob"
	"github.com/fathima-sithara/history-service/internal/domain"
	"github.com/fathima-sithara/history-service/internal/service"
	"github.com/fathima-sithara/history-service/internal/store"
)

func TestSweepCompactsOnlyEligibleConversations(t *testing.T) {
	log := zap.NewNop().Sugar()
	st := store.NewMemoryStore()
	blobs := blob.NewMemoryStore()
	writer := service.NewWriter(st, nil, log)
	compactor := service.NewCompactor(st, blobs, nil, log)
	s := NewSweeper(st, compactor, 0, log)

	ctx := context.Background()
	for _, id := range []string{"big", "small"} {
		require.NoError(t, writer.EnsureConversation(ctx, id, []string{"alice", "bob"}, nil))
	}
	send := func(convID string, n int) {
		for i := 0; i < n; i++ {
			_, err := writer.Append(ctx, convID, domain.Message{
				SenderID: "alice", SenderName: "Alice", Text: fmt.Sprintf("m%d", i),
			})
			require.NoError(t, err)
		}
	}
	send("big", 100)
	send("small", 10)

	s.Sweep(ctx)

	big, err := st.GetConversation(ctx, "big")
	require.NoError(t, err)
	assert.Equal(t, int64(40), big.ArchivedMessageCount)
	assert.Len(t, big.Archives, 1)

	small, err := st.GetConversation(ctx, "small")
	require.NoError(t, err)
	assert.Equal(t, int64(0), small.ArchivedMessageCount)
	assert.Empty(t, small.Archives)

	// A second pass finds nothing left to do.
	s.Sweep(ctx)
	big2, err := st.GetConversation(ctx, "big")
	require.NoError(t, err)
	assert.Equal(t, big, big2)
}
