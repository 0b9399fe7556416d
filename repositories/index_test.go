package repositories

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"bananachat/domain"

	"github.com/blugelabs/bluge"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newMessageIndex(t *testing.T) *MessageIndex {
	t.Helper()
	req := require.New(t)
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	req.NoError(err)
	t.Cleanup(func() { _ = writer.Close() })
	return NewMessageIndex(writer, logs.GetLoggerFromLevel(slog.LevelDebug))
}

func TestMessageIndex_SearchRankedByContent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	index := newMessageIndex(t)

	events := []domain.ChatEvent{
		{ID: 1, Kind: domain.KindChat, Sender: "alice", Content: "deploying the payment service today", Timestamp: time.Now()},
		{ID: 2, Kind: domain.KindChat, Sender: "bob", Content: "lunch anyone?", Timestamp: time.Now()},
		{ID: 3, Kind: domain.KindChat, Sender: "carol", GroupID: 7, Content: "payment gateway is flaky again", Timestamp: time.Now()},
	}
	for _, e := range events {
		req.NoError(index.Index(e))
	}

	hits, err := index.Search(ctx, "payment", 0, 10)
	req.NoError(err)
	req.Len(hits, 2)
	for _, hit := range hits {
		req.Contains(hit.Content, "payment")
		req.NotZero(hit.EventID)
		req.NotZero(hit.Score)
	}
}

func TestMessageIndex_GroupRestriction(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	index := newMessageIndex(t)

	req.NoError(index.Index(domain.ChatEvent{ID: 1, Sender: "alice", Content: "release notes ready", Timestamp: time.Now()}))
	req.NoError(index.Index(domain.ChatEvent{ID: 2, Sender: "bob", GroupID: 7, Content: "release blocked on review", Timestamp: time.Now()}))

	hits, err := index.Search(ctx, "release", 7, 10)
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal(domain.EventID(2), hits[0].EventID)
	req.Equal(domain.GroupID(7), hits[0].GroupID)
}

func TestMessageIndex_EditReindexesAndRemoveDrops(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	index := newMessageIndex(t)

	event := domain.ChatEvent{ID: 9, Sender: "alice", Content: "original wording", Timestamp: time.Now()}
	req.NoError(index.Index(event))

	event.Content = "amended wording"
	req.NoError(index.Index(event))

	stale, err := index.Search(ctx, "original", 0, 10)
	req.NoError(err)
	req.Empty(stale, "the edit replaces the document under the same id")

	current, err := index.Search(ctx, "amended", 0, 10)
	req.NoError(err)
	req.Len(current, 1)

	req.NoError(index.Remove(event.ID))
	gone, err := index.Search(ctx, "amended", 0, 10)
	req.NoError(err)
	req.Empty(gone)
}
