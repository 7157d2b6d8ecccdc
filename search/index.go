// Package search maintains a full-text index over message bodies so the
// external console can search history without scanning the durable store.
// The index is a live view, rebuildable from the store; losing it never
// loses a message.
package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/blugelabs/bluge"

	"chat-relay/repositories"
)

type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

type Hit struct {
	ID     string
	Author string
	Body   string
	SentAt time.Time
	Score  float64
}

func Open(path string, log *slog.Logger) (*MessageIndex, error) {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(path))
	if err != nil {
		return nil, err
	}
	return &MessageIndex{writer: writer, log: log}, nil
}

func (i *MessageIndex) Close() error {
	return i.writer.Close()
}

// Index upserts one message document, keyed by the message id.
func (i *MessageIndex) Index(rec repositories.MessageRecord) error {
	sentAt := time.Unix(0, rec.SentAt).UTC()
	doc := bluge.NewDocument(rec.ID).
		AddField(bluge.NewTextField("body", rec.Body).StoreValue()).
		AddField(bluge.NewKeywordField("author", rec.Author).StoreValue()).
		AddField(bluge.NewDateTimeField("sent_at", sentAt)).
		AddField(bluge.NewStoredOnlyField("sent_at_rfc3339", []byte(sentAt.Format(time.RFC3339Nano))))
	return i.writer.Update(doc.ID(), doc)
}

// Search matches terms against message bodies and returns the best hits,
// highest score first.
func (i *MessageIndex) Search(ctx context.Context, terms string, limit int) ([]Hit, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			i.log.Warn("closing index reader failed", "error", err)
		}
	}()

	query := bluge.NewMatchQuery(terms).SetField("body")
	request := bluge.NewTopNSearch(limit, query).SortBy([]string{"-_score"})

	iterator, err := reader.Search(ctx, request)
	if err != nil {
		return nil, err
	}

	var hits []Hit
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			break
		}

		hit := Hit{Score: match.Score}
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				hit.ID = string(value)
			case "author":
				hit.Author = string(value)
			case "body":
				hit.Body = string(value)
			case "sent_at_rfc3339":
				if ts, err := time.Parse(time.RFC3339Nano, string(value)); err == nil {
					hit.SentAt = ts
				}
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
