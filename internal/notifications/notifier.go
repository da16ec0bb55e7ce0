// Package notifications provides real-time delivery of chat events.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"runtime/debug"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Notifier provides helpers to publish chat events into Redis channels so
// every API node sees them, regardless of which node holds the socket.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PublishUser sends a notification payload to a user's channel.
func (n *Notifier) PublishUser(
	ctx context.Context, userID uint, payload string,
) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, UserChannel(userID), payload).Err()
}

// PublishRoomMessage publishes a chat message to a room channel.
func (n *Notifier) PublishRoomMessage(
	ctx context.Context, roomID uint, payload string,
) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, RoomChannel(roomID), payload).Err()
}

// PublishDMMessage publishes a direct message event to a conversation channel.
func (n *Notifier) PublishDMMessage(
	ctx context.Context, conversationID uint, payload string,
) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, ConversationChannel(conversationID), payload).Err()
}

// PublishTypingIndicator publishes a typing indicator to a room.
func (n *Notifier) PublishTypingIndicator(
	ctx context.Context, roomID, userID uint, username string, isTyping bool,
) error {
	if n.rdb == nil {
		return nil
	}
	channel := fmt.Sprintf("typing:room:%d", roomID)
	payload := map[string]interface{}{
		"user_id":       userID,
		"username":      username,
		"is_typing":     isTyping,
		"expires_in_ms": 5000,
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return n.rdb.Publish(ctx, channel, string(payloadJSON)).Err()
}

// PublishPresence publishes a room presence update.
func (n *Notifier) PublishPresence(
	ctx context.Context, roomID uint, payload string,
) error {
	if n.rdb == nil {
		return nil
	}
	channel := fmt.Sprintf("presence:room:%d", roomID)
	return n.rdb.Publish(ctx, channel, payload).Err()
}

// PublishModeration publishes a moderation event (kick, ban, silence, revoke)
// to the target user's channel so every node can act on it.
func (n *Notifier) PublishModeration(
	ctx context.Context, targetUserID uint, payload string,
) error {
	if n.rdb == nil {
		return nil
	}
	channel := fmt.Sprintf("moderation:user:%d", targetUserID)
	return n.rdb.Publish(ctx, channel, payload).Err()
}

// StartRoomSubscriber subscribes to room-related patterns and calls onMessage
// for each incoming message. Subscribes to: chat:room:*, typing:room:*,
// presence:room:*, dm:conv:*, moderation:user:*.
func (n *Notifier) StartRoomSubscriber(
	ctx context.Context, onMessage func(channel string, payload string),
) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, "chat:room:*", "typing:room:*", "presence:room:*", "dm:conv:*", "moderation:user:*")
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Printf("PANIC in RoomSubscriber: %v\n%s", r, debug.Stack())
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}

// UserChannel derives the Redis channel name for a user.
func UserChannel(userID uint) string {
	return "notifications:user:" + strconv.FormatUint(uint64(userID), 10)
}

// RoomChannel derives the Redis channel name for a chat room.
func RoomChannel(roomID uint) string {
	return "chat:room:" + strconv.FormatUint(uint64(roomID), 10)
}

// ConversationChannel derives the Redis channel name for a DM conversation.
func ConversationChannel(conversationID uint) string {
	return "dm:conv:" + strconv.FormatUint(uint64(conversationID), 10)
}
