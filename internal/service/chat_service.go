package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"pawhaven/internal/cache"
	"pawhaven/internal/models"
	"pawhaven/internal/permissions"
	"pawhaven/internal/repository"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// ReactionSummary is one emoji's aggregate on a message.
type ReactionSummary struct {
	Emoji   string `json:"emoji"`
	Count   int    `json:"count"`
	UserIDs []uint `json:"user_ids"`
}

// ChatService manages rooms, message history and reactions. Admission of new
// messages belongs to AdmissionPipeline; this service owns everything after
// a message exists.
type ChatService struct {
	chatRepo  repository.ChatRepository
	roles     *RoleService
	publisher RoomPublisher
}

// NewChatService returns a new ChatService. publisher may be nil.
func NewChatService(chatRepo repository.ChatRepository, roles *RoleService, publisher RoomPublisher) *ChatService {
	return &ChatService{chatRepo: chatRepo, roles: roles, publisher: publisher}
}

// CreateRoom creates a room. Requires manage_room.
func (s *ChatService) CreateRoom(ctx context.Context, actorID uint, name, slug, description string) (*models.ChatRoom, error) {
	allowed, err := s.roles.HasPermission(ctx, actorID, permissions.ManageRoom)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, models.NewPermissionDeniedError("creating rooms requires the manage_room permission")
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.NewValidationError("room name cannot be empty")
	}
	if !slugPattern.MatchString(slug) {
		return nil, models.NewValidationError("room slug must be lowercase words separated by hyphens")
	}

	room := &models.ChatRoom{
		Name:        name,
		Slug:        slug,
		Description: description,
		IsActive:    true,
	}
	if err := s.chatRepo.CreateRoom(ctx, room); err != nil {
		return nil, models.NewStorageError(err)
	}
	return room, nil
}

// Rooms lists the active rooms.
func (s *ChatService) Rooms(ctx context.Context) ([]*models.ChatRoom, error) {
	rooms, err := s.chatRepo.ListRooms(ctx)
	if err != nil {
		return nil, models.NewStorageError(err)
	}
	return rooms, nil
}

// Room fetches one room through the cache.
func (s *ChatService) Room(ctx context.Context, roomID uint) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := cache.CacheAside(ctx, cache.RoomKey(roomID), &room, cache.RoomTTL, func() error {
		fetched, err := s.chatRepo.GetRoom(ctx, roomID)
		if err != nil {
			return err
		}
		room = *fetched
		return nil
	})
	if err != nil {
		return nil, models.NewNotFoundError("room", roomID)
	}
	return &room, nil
}

// History returns a page of room messages, ascending, ending just before
// beforeID (or at the newest message when beforeID is zero).
func (s *ChatService) History(ctx context.Context, roomID, beforeID uint, limit int) ([]*models.RoomMessage, error) {
	if _, err := s.Room(ctx, roomID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	msgs, err := s.chatRepo.GetMessages(ctx, roomID, beforeID, limit)
	if err != nil {
		return nil, models.NewStorageError(err)
	}
	return msgs, nil
}

// DeleteMessage soft-deletes a message. Authors may delete their own; anyone
// else needs delete_message.
func (s *ChatService) DeleteMessage(ctx context.Context, actorID, messageID uint) error {
	msg, err := s.chatRepo.GetMessage(ctx, messageID)
	if err != nil {
		return models.NewNotFoundError("message", messageID)
	}

	if msg.AuthorID != actorID {
		allowed, err := s.roles.HasPermission(ctx, actorID, permissions.DeleteMessage)
		if err != nil {
			return err
		}
		if !allowed {
			return models.NewPermissionDeniedError("deleting another user's message requires the delete_message permission")
		}
	}

	if err := s.chatRepo.SoftDeleteMessage(ctx, messageID); err != nil {
		return models.NewStorageError(err)
	}
	cache.Invalidate(ctx, cache.MessageHistoryKey(msg.RoomID))

	s.publishEvent(ctx, msg.RoomID, map[string]interface{}{
		"type":       "message_deleted",
		"room_id":    msg.RoomID,
		"message_id": messageID,
	})
	return nil
}

// React adds a reaction. Repeating the same reaction is a no-op.
func (s *ChatService) React(ctx context.Context, userID, messageID uint, emoji string) error {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || len(emoji) > 32 {
		return models.NewValidationError("invalid reaction emoji")
	}
	msg, err := s.chatRepo.GetMessage(ctx, messageID)
	if err != nil {
		return models.NewNotFoundError("message", messageID)
	}

	err = s.chatRepo.AddReaction(ctx, &models.MessageReaction{
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
	})
	if err != nil {
		return models.NewStorageError(err)
	}

	s.publishEvent(ctx, msg.RoomID, map[string]interface{}{
		"type":       "reaction_added",
		"room_id":    msg.RoomID,
		"message_id": messageID,
		"user_id":    userID,
		"emoji":      emoji,
	})
	return nil
}

// Unreact removes a reaction. Removing one that does not exist is a no-op.
func (s *ChatService) Unreact(ctx context.Context, userID, messageID uint, emoji string) error {
	msg, err := s.chatRepo.GetMessage(ctx, messageID)
	if err != nil {
		return models.NewNotFoundError("message", messageID)
	}

	if err := s.chatRepo.RemoveReaction(ctx, messageID, userID, emoji); err != nil {
		return models.NewStorageError(err)
	}

	s.publishEvent(ctx, msg.RoomID, map[string]interface{}{
		"type":       "reaction_removed",
		"room_id":    msg.RoomID,
		"message_id": messageID,
		"user_id":    userID,
		"emoji":      emoji,
	})
	return nil
}

// Reactions aggregates a message's reactions per emoji.
func (s *ChatService) Reactions(ctx context.Context, messageID uint) ([]ReactionSummary, error) {
	rows, err := s.chatRepo.ListReactions(ctx, messageID)
	if err != nil {
		return nil, models.NewStorageError(err)
	}

	byEmoji := map[string]*ReactionSummary{}
	var order []string
	for _, r := range rows {
		summary, ok := byEmoji[r.Emoji]
		if !ok {
			summary = &ReactionSummary{Emoji: r.Emoji}
			byEmoji[r.Emoji] = summary
			order = append(order, r.Emoji)
		}
		summary.Count++
		summary.UserIDs = append(summary.UserIDs, r.UserID)
	}

	out := make([]ReactionSummary, 0, len(order))
	for _, emoji := range order {
		out = append(out, *byEmoji[emoji])
	}
	return out, nil
}

func (s *ChatService) publishEvent(ctx context.Context, roomID uint, event map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.publisher.PublishRoomMessage(ctx, roomID, string(payload)); err != nil {
		slog.WarnContext(ctx, "failed to publish room event",
			"room_id", roomID, "event", fmt.Sprintf("%v", event["type"]), "error", err)
	}
}
