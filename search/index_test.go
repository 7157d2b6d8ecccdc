package search

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-relay/repositories"
)

func openTestIndex(t *testing.T) *MessageIndex {
	t.Helper()
	index, err := Open(t.TempDir(), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	return index
}

func record(author, body string) repositories.MessageRecord {
	return repositories.MessageRecord{
		ID:       author + "-" + body,
		AuthorID: author + "-id",
		Author:   author,
		Body:     body,
		SentAt:   time.Now().UTC().UnixNano(),
	}
}

func TestMessageIndex_IndexAndSearch(t *testing.T) {
	req := require.New(t)
	index := openTestIndex(t)
	ctx := context.Background()

	req.NoError(index.Index(record("alice", "the deployment failed again")))
	req.NoError(index.Index(record("bob", "lunch anyone")))
	req.NoError(index.Index(record("clara", "deployment is green now")))

	hits, err := index.Search(ctx, "deployment", 10)
	req.NoError(err)
	req.Len(hits, 2)
	for _, hit := range hits {
		req.Contains(hit.Body, "deployment")
		req.NotEmpty(hit.Author)
		req.False(hit.SentAt.IsZero())
	}
}

func TestMessageIndex_SearchHonorsLimit(t *testing.T) {
	req := require.New(t)
	index := openTestIndex(t)
	ctx := context.Background()

	for _, body := range []string{"alert one", "alert two", "alert three"} {
		req.NoError(index.Index(record("ops", body)))
	}

	hits, err := index.Search(ctx, "alert", 2)
	req.NoError(err)
	req.Len(hits, 2)
}

func TestMessageIndex_NoMatches(t *testing.T) {
	req := require.New(t)
	index := openTestIndex(t)

	hits, err := index.Search(context.Background(), "nothing", 5)

	req.NoError(err)
	req.Empty(hits)
}
