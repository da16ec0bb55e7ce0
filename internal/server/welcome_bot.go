package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"pawhaven/internal/models"
)

const (
	welcomeBotUsername = "welcomebot"
	welcomeBotEmail    = "welcomebot@pawhaven.local"
)

// welcomeOnce tracks (user, room) pairs already greeted by this process.
// The greeting is a courtesy, not durable state; a restart greeting someone
// twice is acceptable.
type welcomeOnce struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func (w *welcomeOnce) first(userID, roomID uint) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seen == nil {
		w.seen = make(map[string]struct{})
	}
	key := fmt.Sprintf("%d:%d", userID, roomID)
	if _, ok := w.seen[key]; ok {
		return false
	}
	w.seen[key] = struct{}{}
	return true
}

// maybeWelcomeJoined posts a bot greeting for users newly joined to a room,
// fed by the presence tracker's activity summaries.
func (s *Server) maybeWelcomeJoined(roomID uint, joined []uint) {
	if s.db == nil || len(joined) == 0 {
		return
	}
	ctx := context.Background()

	bot, err := s.ensureWelcomeBotUser(ctx)
	if err != nil || bot == nil {
		return
	}

	names := make([]string, 0, len(joined))
	for _, userID := range joined {
		if userID == bot.ID || !s.welcomed.first(userID, roomID) {
			continue
		}
		user, err := s.userRepo.GetByID(ctx, userID)
		if err != nil {
			continue
		}
		names = append(names, "@"+user.Username)
	}
	if len(names) == 0 {
		return
	}

	msg := &models.RoomMessage{
		RoomID:   roomID,
		AuthorID: bot.ID,
		Content: fmt.Sprintf("Welcome %s! Say hi and tell us about your pets. Use reports for anything unsafe.",
			strings.Join(names, ", ")),
	}
	if err := s.chatRepo.CreateMessage(ctx, msg); err != nil {
		slog.Warn("welcome bot message failed", "room_id", roomID, "error", err)
		return
	}
	msg.Author = bot

	if s.notifier != nil {
		payload, err := json.Marshal(map[string]interface{}{
			"type":    "room_message",
			"message": msg,
		})
		if err == nil {
			_ = s.notifier.PublishRoomMessage(ctx, roomID, string(payload))
		}
	}
}

func (s *Server) ensureWelcomeBotUser(ctx context.Context) (*models.User, error) {
	s.welcomeBotMu.Lock()
	defer s.welcomeBotMu.Unlock()
	if s.welcomeBot != nil {
		return s.welcomeBot, nil
	}

	user, err := s.userRepo.GetByUsername(ctx, welcomeBotUsername)
	if err == nil {
		s.welcomeBot = user
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hash, herr := bcrypt.GenerateFromPassword([]byte("welcome-bot-internal"), bcrypt.DefaultCost)
	if herr != nil {
		return nil, herr
	}

	created := &models.User{
		Username:     welcomeBotUsername,
		Email:        welcomeBotEmail,
		PasswordHash: string(hash),
		DisplayName:  "Pawhaven Bot",
	}
	if cerr := s.userRepo.Create(ctx, created); cerr != nil {
		// A concurrent node may have created it first.
		if user, rerr := s.userRepo.GetByUsername(ctx, welcomeBotUsername); rerr == nil {
			s.welcomeBot = user
			return user, nil
		}
		return nil, cerr
	}
	s.welcomeBot = created
	return created, nil
}
