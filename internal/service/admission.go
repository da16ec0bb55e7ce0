package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"pawhaven/internal/contentfilter"
	"pawhaven/internal/middleware"
	"pawhaven/internal/models"
	"pawhaven/internal/observability"
	"pawhaven/internal/presence"
	"pawhaven/internal/repository"
)

// RoomPublisher fans accepted messages out to room subscribers.
type RoomPublisher interface {
	PublishRoomMessage(ctx context.Context, roomID uint, payload string) error
}

// AdmissionConfig carries the tunables for the admission pipeline.
type AdmissionConfig struct {
	RateLimit        int
	RateWindow       time.Duration
	MaxMessageLength int
}

// SubmitRequest is one message submission.
type SubmitRequest struct {
	AuthorID  uint
	RoomID    uint
	Content   string
	ImageURL  string
	ReplyToID *uint
}

// AdmissionPipeline runs every room message through the fixed check sequence:
// identity, room, sanctions, rate limit, shape, content filter, persistence.
// Checks run in that order so the caller always gets the most specific error.
type AdmissionPipeline struct {
	cfg        AdmissionConfig
	rdb        *redis.Client
	chatRepo   repository.ChatRepository
	userRepo   repository.UserRepository
	moderation *ModerationEngine
	filter     *contentfilter.Filter
	tracker    *presence.Tracker
	publisher  RoomPublisher
	metrics    *observability.MessageMetrics
}

// NewAdmissionPipeline returns a new AdmissionPipeline. tracker and publisher
// may be nil; the corresponding side effects are skipped.
func NewAdmissionPipeline(
	cfg AdmissionConfig,
	rdb *redis.Client,
	chatRepo repository.ChatRepository,
	userRepo repository.UserRepository,
	moderation *ModerationEngine,
	filter *contentfilter.Filter,
	tracker *presence.Tracker,
	publisher RoomPublisher,
) *AdmissionPipeline {
	return &AdmissionPipeline{
		cfg:        cfg,
		rdb:        rdb,
		chatRepo:   chatRepo,
		userRepo:   userRepo,
		moderation: moderation,
		filter:     filter,
		tracker:    tracker,
		publisher:  publisher,
		metrics:    observability.NewMessageMetrics(),
	}
}

// Submit runs the pipeline for one message. On success the stored message is
// returned with its author preloaded and already broadcast to the room.
func (p *AdmissionPipeline) Submit(ctx context.Context, req SubmitRequest) (*models.RoomMessage, error) {
	now := time.Now()

	if req.AuthorID == 0 {
		observability.RecordAdmission("unauthenticated")
		return nil, models.NewUnauthenticatedError("posting requires an authenticated user")
	}
	author, err := p.userRepo.GetByID(ctx, req.AuthorID)
	if err != nil {
		observability.RecordAdmission("unauthenticated")
		return nil, models.NewUnauthenticatedError("posting requires an authenticated user")
	}

	room, err := p.chatRepo.GetRoom(ctx, req.RoomID)
	if err != nil || !room.IsActive {
		observability.RecordAdmission("invalid")
		return nil, models.NewNotFoundError("room", req.RoomID)
	}

	status, err := p.moderation.IsBlocked(ctx, req.AuthorID, req.RoomID, now)
	if err != nil {
		observability.RecordAdmission("storage_error")
		return nil, err
	}
	if status.Banned {
		observability.RecordAdmission("banned")
		return nil, models.NewBannedError(blockMessage("banned", status))
	}
	if status.Silenced {
		observability.RecordAdmission("silenced")
		return nil, models.NewSilencedError(blockMessage("silenced", status))
	}

	// The posting limit holds in every environment, unlike the HTTP
	// middleware limiter which test profiles bypass.
	withinLimit, err := middleware.CheckRateLimitStrict(ctx, p.rdb, "chat:post",
		fmt.Sprintf("%d", req.AuthorID), p.cfg.RateLimit, p.cfg.RateWindow)
	if err != nil {
		slog.WarnContext(ctx, "rate limit check failed, refusing message",
			"author_id", req.AuthorID, "error", err)
		observability.RecordAdmission("storage_error")
		return nil, models.NewStorageError(err)
	}
	if !withinLimit {
		observability.RecordAdmission("rate_limited")
		return nil, models.NewRateLimitedError(
			fmt.Sprintf("limit of %d messages per %s exceeded", p.cfg.RateLimit, p.cfg.RateWindow))
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		observability.RecordAdmission("invalid")
		return nil, models.NewValidationError("message content cannot be empty")
	}
	if utf8.RuneCountInString(content) > p.cfg.MaxMessageLength {
		observability.RecordAdmission("invalid")
		return nil, models.NewValidationError(
			fmt.Sprintf("message exceeds the %d character limit", p.cfg.MaxMessageLength))
	}

	outcome := p.filter.Check(content)
	observability.RecordFilterResult(string(outcome.Result))

	if outcome.Result == contentfilter.ResultBlocked {
		entry := p.logEntry(req.AuthorID, content, outcome, models.LogBlocked)
		if err := p.moderation.modRepo.CreateLogEntry(ctx, entry); err != nil {
			observability.RecordAdmission("storage_error")
			return nil, models.NewStorageError(err)
		}
		observability.RecordAdmission("blocked")
		return nil, models.NewContentBlockedError("message rejected by the content filter")
	}

	msg := &models.RoomMessage{
		RoomID:    req.RoomID,
		AuthorID:  req.AuthorID,
		Content:   outcome.Content,
		ImageURL:  req.ImageURL,
		ReplyToID: req.ReplyToID,
	}

	if outcome.Result == contentfilter.ResultFiltered {
		entry := p.logEntry(req.AuthorID, content, outcome, models.LogFiltered)
		err = p.chatRepo.CreateMessageWithLog(ctx, msg, entry)
	} else {
		err = p.chatRepo.CreateMessage(ctx, msg)
	}
	if err != nil {
		observability.RecordAdmission("storage_error")
		return nil, models.NewStorageError(err)
	}
	msg.Author = author

	p.recordMentions(ctx, msg)

	if p.tracker != nil {
		p.tracker.Heartbeat(ctx, req.AuthorID, req.RoomID)
	}

	observability.RecordAdmission("admitted")
	p.metrics.RecordMessage(fmt.Sprintf("%d", req.RoomID), "room")
	p.broadcast(ctx, msg)

	return msg, nil
}

func (p *AdmissionPipeline) logEntry(authorID uint, original string, outcome contentfilter.Outcome, action models.LogAction) *models.ModerationLogEntry {
	entry := &models.ModerationLogEntry{
		ID:             uuid.NewString(),
		UserID:         authorID,
		ContentType:    "room_message",
		ContentPreview: contentfilter.Preview(original, 256),
		ActionTaken:    action,
	}
	entry.SetFlags(outcome.Flags)
	return entry
}

// recordMentions extracts @username tokens and stores mention rows for the
// ones that resolve to real users. Best effort; a failure never rejects the
// already-persisted message.
func (p *AdmissionPipeline) recordMentions(ctx context.Context, msg *models.RoomMessage) {
	usernames := extractMentions(msg.Content)
	if len(usernames) == 0 {
		return
	}

	var mentions []models.MessageMention
	for _, username := range usernames {
		user, err := p.userRepo.GetByUsername(ctx, username)
		if err != nil {
			continue
		}
		mentions = append(mentions, models.MessageMention{
			MessageID:       msg.ID,
			RoomID:          msg.RoomID,
			MentionedUserID: user.ID,
		})
	}
	if len(mentions) == 0 {
		return
	}
	if err := p.chatRepo.CreateMentions(ctx, mentions); err != nil {
		slog.WarnContext(ctx, "failed to store mentions",
			"message_id", msg.ID, "error", err)
	}
}

func extractMentions(content string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, field := range strings.Fields(content) {
		if !strings.HasPrefix(field, "@") || len(field) < 2 {
			continue
		}
		name := strings.TrimFunc(field[1:], func(r rune) bool {
			return !isUsernameRune(r)
		})
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func isUsernameRune(r rune) bool {
	return r == '_' || r == '-' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func (p *AdmissionPipeline) broadcast(ctx context.Context, msg *models.RoomMessage) {
	if p.publisher == nil {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"type":    "room_message",
		"message": msg,
	})
	if err != nil {
		return
	}
	if err := p.publisher.PublishRoomMessage(ctx, msg.RoomID, string(payload)); err != nil {
		slog.WarnContext(ctx, "failed to publish room message",
			"room_id", msg.RoomID, "message_id", msg.ID, "error", err)
	}
}

func blockMessage(kind string, status BlockStatus) string {
	if status.ExpiresAt == nil {
		return "you are " + kind + " from posting"
	}
	return fmt.Sprintf("you are %s from posting until %s", kind, status.ExpiresAt.Format(time.RFC3339))
}
