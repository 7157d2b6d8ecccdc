package repositories

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"chat-relay/errors"
	"chat-relay/metrics"
)

type IMessageRepository interface {
	AppendMessage(ctx context.Context, authorID, body, lang string) (MessageRecord, error)
	RecentMessages(ctx context.Context, limit int) ([]MessageRecord, error)
}

// MessageRecord is the stored representation of a chat message. Records are
// append-only and immutable once written.
type MessageRecord struct {
	ID       string `json:"id"`
	AuthorID string `json:"author_id"`
	Author   string `json:"author"`
	Body     string `json:"body"`
	Lang     string `json:"lang,omitempty"`
	SentAt   int64  `json:"sent_at"` // unix nanoseconds
}

type MessageRepository struct {
	store
}

func NewMessageRepository(db *badger.DB, m *metrics.Registry) MessageRepository {
	return MessageRepository{store: store{db: db, metrics: m}}
}

// AppendMessage writes one message. The author lookup and the insert share a
// transaction: a message never references a user that did not exist at write
// time, and the author login is resolved from the same snapshot.
func (r MessageRepository) AppendMessage(ctx context.Context, authorID, body, lang string) (MessageRecord, error) {
	rec := MessageRecord{
		ID:       uuid.NewString(),
		AuthorID: authorID,
		Body:     body,
		Lang:     lang,
		SentAt:   time.Now().UTC().UnixNano(),
	}

	err := r.update(ctx, func(txn *badger.Txn) error {
		login, err := resolveLogin(txn, authorID)
		if err != nil {
			return err
		}
		rec.Author = login

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		key := fmt.Sprintf("%s%019d:%s", messagePrefix, rec.SentAt, rec.ID)
		return txn.Set([]byte(key), data)
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return MessageRecord{}, errors.ErrUserNotFound
	}
	if err != nil {
		return MessageRecord{}, err
	}
	return rec, nil
}

// RecentMessages returns at most limit records ordered newest last. The
// reverse iteration collects the newest keys first; the slice is flipped
// before returning so callers read history top to bottom.
func (r MessageRepository) RecentMessages(ctx context.Context, limit int) ([]MessageRecord, error) {
	if limit <= 0 {
		return nil, nil
	}

	var records []MessageRecord
	err := r.view(ctx, func(txn *badger.Txn) error {
		prefix := []byte(messagePrefix)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the newest possible key, then walk backwards.
		seekKey := append([]byte{}, prefix...)
		seekKey = append(seekKey, []byte("9999999999999999999:")...)

		for it.Seek(seekKey); it.ValidForPrefix(prefix) && len(records) < limit; it.Next() {
			var rec MessageRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}
