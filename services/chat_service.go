package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"chat-relay/domain"
	"chat-relay/domain/mimetypes"
	"chat-relay/errors"
	"chat-relay/moderation"
	"chat-relay/repositories"
	"chat-relay/search"
)

type IChatService interface {
	AppendMessage(ctx context.Context, authorID, body string) (domain.Message, error)
	AppendAttachment(ctx context.Context, authorID, name string, payload []byte) (domain.Message, error)
	RecentMessages(ctx context.Context, limit int) ([]domain.Message, error)
	SearchMessages(ctx context.Context, terms string, limit int) ([]search.Hit, error)
}

type ChatService struct {
	messages  repositories.IMessageRepository
	index     *search.MessageIndex
	moderator *moderation.Moderator
	log       *slog.Logger
}

func NewChatService(messages repositories.IMessageRepository, index *search.MessageIndex,
	moderator *moderation.Moderator, log *slog.Logger) *ChatService {
	return &ChatService{messages: messages, index: index, moderator: moderator, log: log}
}

// AppendMessage moderates and persists one message. Persistence must
// succeed before the caller may broadcast: a failed append yields no
// broadcast and history stays consistent with the live view.
func (s *ChatService) AppendMessage(ctx context.Context, authorID, body string) (domain.Message, error) {
	censored := body
	if s.moderator != nil {
		var found []string
		censored, found = s.moderator.Censor(body)
		if len(found) > 0 {
			s.log.Info("censored message content", "author_id", authorID, "matches", len(found))
		}
	}

	rec, err := s.messages.AppendMessage(ctx, authorID, censored, moderation.DetectLanguage(censored))
	if err != nil {
		return domain.Message{}, err
	}

	// The search index is a rebuildable view. An indexing failure is worth
	// a log line, not a failed send.
	if s.index != nil {
		if err := s.index.Index(rec); err != nil {
			s.log.Warn("indexing message failed", "message_id", rec.ID, "error", err)
		}
	}
	return toMessage(rec)
}

// AppendAttachment stores a shared file as a placeholder message carrying
// the attachment name, sniffed mime type and size. The type is sniffed
// server-side, never trusted from the client, and raw payload bytes never
// reach the durable store in this scope.
func (s *ChatService) AppendAttachment(ctx context.Context, authorID, name string, payload []byte) (domain.Message, error) {
	mtype := mimetype.Detect(payload)
	if !mimetypes.Shareable(mtype.String()) {
		return domain.Message{}, fmt.Errorf("%w: attachment type %s not shareable",
			errors.ErrProtocolViolation, mtype.String())
	}
	body := fmt.Sprintf("[shared file %q, %s, %d bytes]", name, mtype.String(), len(payload))
	return s.AppendMessage(ctx, authorID, body)
}

// RecentMessages is the bounded, read-only history view, newest last.
func (s *ChatService) RecentMessages(ctx context.Context, limit int) ([]domain.Message, error) {
	records, err := s.messages.RecentMessages(ctx, limit)
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(records))
	for _, rec := range records {
		msg, err := toMessage(rec)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *ChatService) SearchMessages(ctx context.Context, terms string, limit int) ([]search.Hit, error) {
	if s.index == nil {
		return nil, nil
	}
	return s.index.Search(ctx, terms, limit)
}

func toMessage(rec repositories.MessageRecord) (domain.Message, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:        id,
		AuthorID:  rec.AuthorID,
		Author:    rec.Author,
		Body:      rec.Body,
		Lang:      rec.Lang,
		CreatedAt: time.Unix(0, rec.SentAt).UTC(),
	}, nil
}
