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

	"pawhaven/internal/cache"
	"pawhaven/internal/contentfilter"
	"pawhaven/internal/dmcrypto"
	"pawhaven/internal/models"
	"pawhaven/internal/observability"
	"pawhaven/internal/repository"
)

// DMPublisher fans direct-message events out to conversation subscribers.
type DMPublisher interface {
	PublishDMMessage(ctx context.Context, conversationID uint, payload string) error
}

// DMView is a direct message as seen by one participant: sealed payloads are
// already opened (or replaced by the decrypt-failure sentinel).
type DMView struct {
	ID             uint       `json:"id"`
	ConversationID uint       `json:"conversation_id"`
	SenderID       uint       `json:"sender_id"`
	Content        string     `json:"content"`
	Encrypted      bool       `json:"encrypted"`
	IsRead         bool       `json:"is_read"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// DMService sends and reads direct messages, sealing them opportunistically:
// encryption happens when both participants have published public keys and the
// caller's private key is locally available, plaintext otherwise.
type DMService struct {
	dmRepo   repository.DMRepository
	keyRepo  repository.KeyRepository
	userRepo repository.UserRepository
	modRepo  repository.ModerationRepository
	keys     dmcrypto.KeyStore
	filter   *contentfilter.Filter
	notifier DMPublisher

	maxMessageLength int
}

// NewDMService returns a new DMService. notifier may be nil.
func NewDMService(
	dmRepo repository.DMRepository,
	keyRepo repository.KeyRepository,
	userRepo repository.UserRepository,
	modRepo repository.ModerationRepository,
	keys dmcrypto.KeyStore,
	filter *contentfilter.Filter,
	notifier DMPublisher,
	maxMessageLength int,
) *DMService {
	return &DMService{
		dmRepo:           dmRepo,
		keyRepo:          keyRepo,
		userRepo:         userRepo,
		modRepo:          modRepo,
		keys:             keys,
		filter:           filter,
		notifier:         notifier,
		maxMessageLength: maxMessageLength,
	}
}

// EnrollKey provisions DM encryption for the user on this node: it generates
// a fresh X25519 keypair, keeps the private half in the local key store, and
// publishes the public half to the directory. Re-enrolling rotates the pair,
// which orphans payloads sealed under the old one; callers opt into that.
func (s *DMService) EnrollKey(ctx context.Context, userID uint) ([]byte, error) {
	priv, pub, err := dmcrypto.GenerateKeypair()
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := s.keys.StorePrivateKey(userID, priv); err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := s.RegisterPublicKey(ctx, userID, pub); err != nil {
		return nil, err
	}
	return pub, nil
}

// RegisterPublicKey stores (or replaces) the user's X25519 public key in the
// shared directory. Private keys never pass through here.
func (s *DMService) RegisterPublicKey(ctx context.Context, userID uint, publicKey []byte) error {
	if len(publicKey) != dmcrypto.KeySize {
		return models.NewValidationError(
			fmt.Sprintf("public key must be %d bytes, got %d", dmcrypto.KeySize, len(publicKey)))
	}
	err := s.keyRepo.Upsert(ctx, &models.UserPublicKey{
		UserID:    userID,
		PublicKey: publicKey,
	})
	if err != nil {
		return models.NewStorageError(err)
	}
	cache.Invalidate(ctx, cache.PublicKeyKey(userID))
	return nil
}

// PublicKey returns a user's published key, or nil when none exists.
func (s *DMService) PublicKey(ctx context.Context, userID uint) ([]byte, error) {
	row, err := s.keyRepo.Get(ctx, userID)
	if err != nil {
		return nil, models.NewStorageError(err)
	}
	if row == nil {
		return nil, nil
	}
	return row.PublicKey, nil
}

// OpenConversation returns the conversation between the caller and the peer,
// creating it on first contact.
func (s *DMService) OpenConversation(ctx context.Context, userID, peerID uint) (*models.DMConversation, error) {
	if userID == peerID {
		return nil, models.NewValidationError("cannot open a conversation with yourself")
	}
	if _, err := s.userRepo.GetByID(ctx, peerID); err != nil {
		return nil, models.NewNotFoundError("user", peerID)
	}
	conv, err := s.dmRepo.GetOrCreateConversation(ctx, userID, peerID)
	if err != nil {
		return nil, models.NewStorageError(err)
	}
	return conv, nil
}

// Conversations lists the caller's conversations, most recently active first.
func (s *DMService) Conversations(ctx context.Context, userID uint) ([]*models.DMConversation, error) {
	convs, err := s.dmRepo.ListConversations(ctx, userID)
	if err != nil {
		return nil, models.NewStorageError(err)
	}
	return convs, nil
}

// Send filters and stores one direct message, sealing it when key material
// allows. The returned view reports whether the stored copy is encrypted so
// the client can surface a plaintext downgrade.
func (s *DMService) Send(ctx context.Context, senderID, conversationID uint, content string) (*DMView, error) {
	conv, err := s.conversationFor(ctx, senderID, conversationID)
	if err != nil {
		return nil, err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, models.NewValidationError("message content cannot be empty")
	}
	if utf8.RuneCountInString(content) > s.maxMessageLength {
		return nil, models.NewValidationError(
			fmt.Sprintf("message exceeds the %d character limit", s.maxMessageLength))
	}

	// Filtering happens on plaintext, before any sealing, so the moderation
	// log never depends on key material.
	outcome := s.filter.Check(content)
	observability.RecordFilterResult(string(outcome.Result))
	var entry *models.ModerationLogEntry
	if outcome.Result != contentfilter.ResultAllowed {
		entry = &models.ModerationLogEntry{
			ID:             uuid.NewString(),
			UserID:         senderID,
			ContentType:    "dm_message",
			ContentPreview: contentfilter.Preview(content, 256),
			ActionTaken:    models.LogAction(outcome.Result),
		}
		entry.SetFlags(outcome.Flags)
		if outcome.Result == contentfilter.ResultBlocked {
			if err := s.modRepo.CreateLogEntry(ctx, entry); err != nil {
				return nil, models.NewStorageError(err)
			}
			return nil, models.NewContentBlockedError("message rejected by the content filter")
		}
	}

	msg := &models.DMMessage{
		ConversationID: conv.ID,
		SenderID:       senderID,
	}

	key := s.conversationKey(ctx, senderID, conv)
	if key != nil {
		sealed, err := dmcrypto.Seal(key, []byte(outcome.Content))
		if err != nil {
			return nil, models.NewInternalError(err)
		}
		msg.EncryptedContent = sealed
	} else {
		msg.Content = outcome.Content
	}

	// A filtered message and its audit row land in one transaction, matching
	// the room path.
	if err := s.dmRepo.CreateMessageWithLog(ctx, msg, entry); err != nil {
		return nil, models.NewStorageError(err)
	}

	view := &DMView{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        outcome.Content,
		Encrypted:      msg.Encrypted(),
		CreatedAt:      msg.CreatedAt,
	}

	s.publish(ctx, conv.ID, view)
	return view, nil
}

// Messages returns a page of the conversation for one participant, newest
// page first within ascending order, with sealed payloads opened. A payload
// that fails to open is shown as the decrypt-failure sentinel, never an error.
func (s *DMService) Messages(ctx context.Context, userID, conversationID, beforeID uint, limit int) ([]*DMView, error) {
	conv, err := s.conversationFor(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	msgs, err := s.dmRepo.GetMessages(ctx, conversationID, beforeID, limit)
	if err != nil {
		return nil, models.NewStorageError(err)
	}

	var key []byte
	views := make([]*DMView, 0, len(msgs))
	for _, m := range msgs {
		view := &DMView{
			ID:             m.ID,
			ConversationID: m.ConversationID,
			SenderID:       m.SenderID,
			Content:        m.Content,
			Encrypted:      m.Encrypted(),
			IsRead:         m.IsRead,
			ReadAt:         m.ReadAt,
			CreatedAt:      m.CreatedAt,
		}
		if m.Encrypted() {
			if key == nil {
				key = s.conversationKey(ctx, userID, conv)
			}
			if key == nil {
				view.Content = dmcrypto.DecryptFailedSentinel
				observability.DMDecryptFailures.Inc()
			} else {
				view.Content = dmcrypto.OpenOrSentinel(key, m.EncryptedContent)
				if view.Content == dmcrypto.DecryptFailedSentinel {
					observability.DMDecryptFailures.Inc()
				}
			}
		}
		views = append(views, view)
	}
	return views, nil
}

// MarkRead flags every message from the peer as read.
func (s *DMService) MarkRead(ctx context.Context, userID, conversationID uint) error {
	if _, err := s.conversationFor(ctx, userID, conversationID); err != nil {
		return err
	}
	if err := s.dmRepo.MarkRead(ctx, conversationID, userID, time.Now()); err != nil {
		return models.NewStorageError(err)
	}
	return nil
}

// conversationFor loads the conversation and enforces membership.
func (s *DMService) conversationFor(ctx context.Context, userID, conversationID uint) (*models.DMConversation, error) {
	conv, err := s.dmRepo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, models.NewNotFoundError("conversation", conversationID)
	}
	if !conv.Includes(userID) {
		return nil, models.NewPermissionDeniedError("not a participant in this conversation")
	}
	return conv, nil
}

// conversationKey derives the caller's key for the conversation, or nil when
// any key material is missing (the plaintext-fallback case).
func (s *DMService) conversationKey(ctx context.Context, userID uint, conv *models.DMConversation) []byte {
	priv, err := s.keys.PrivateKey(userID)
	if err != nil {
		return nil
	}

	peerRow, err := s.keyRepo.Get(ctx, conv.Peer(userID))
	if err != nil || peerRow == nil {
		return nil
	}
	// Sealing with only the peer's key published would strand the sender's
	// own copy, so both directory entries must exist.
	ownRow, err := s.keyRepo.Get(ctx, userID)
	if err != nil || ownRow == nil {
		return nil
	}

	key, err := dmcrypto.DeriveConversationKey(priv, peerRow.PublicKey, conv.ID)
	if err != nil {
		slog.WarnContext(ctx, "conversation key derivation failed",
			"conversation_id", conv.ID, "error", err)
		return nil
	}
	return key
}

func (s *DMService) publish(ctx context.Context, conversationID uint, view *DMView) {
	if s.notifier == nil {
		return
	}
	// The relayed copy never carries plaintext of a sealed message; receivers
	// fetch and decrypt locally.
	event := map[string]interface{}{
		"type":            "dm_message",
		"conversation_id": conversationID,
		"message_id":      view.ID,
		"sender_id":       view.SenderID,
		"encrypted":       view.Encrypted,
	}
	if !view.Encrypted {
		event["content"] = view.Content
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.notifier.PublishDMMessage(ctx, conversationID, string(payload)); err != nil {
		slog.WarnContext(ctx, "failed to publish dm event",
			"conversation_id", conversationID, "error", err)
	}
}
