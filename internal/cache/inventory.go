package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	UserKeyPrefix        = "user:%d"
	RoomKeyPrefix        = "room:%d"
	MessageHistoryPrefix = "room:%d:messages"
	RolesKeyPrefix       = "user:%d:roles"
	RoomOnlinePrefix     = "presence:room:%d:online"
	LastSeenPrefix       = "presence:room:%d:user:%d:lastseen"
	PublicKeyPrefix      = "dm:pubkey:%d"
)

const (
	UserTTL           = 5 * time.Minute
	RoomTTL           = 10 * time.Minute
	MessageHistoryTTL = 2 * time.Minute
	RolesTTL          = 1 * time.Minute
	PublicKeyTTL      = 30 * time.Minute
)

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func RoomKey(roomID uint) string {
	return fmt.Sprintf(RoomKeyPrefix, roomID)
}

func MessageHistoryKey(roomID uint) string {
	return fmt.Sprintf(MessageHistoryPrefix, roomID)
}

func RolesKey(userID uint) string {
	return fmt.Sprintf(RolesKeyPrefix, userID)
}

func RoomOnlineKey(roomID uint) string {
	return fmt.Sprintf(RoomOnlinePrefix, roomID)
}

func LastSeenKey(roomID, userID uint) string {
	return fmt.Sprintf(LastSeenPrefix, roomID, userID)
}

func PublicKeyKey(userID uint) string {
	return fmt.Sprintf(PublicKeyPrefix, userID)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateUser(ctx context.Context, userID uint) {
	Invalidate(ctx, UserKey(userID))
}

func InvalidateRoom(ctx context.Context, roomID uint) {
	Invalidate(ctx, RoomKey(roomID))
	Invalidate(ctx, MessageHistoryKey(roomID))
}

func InvalidateRoles(ctx context.Context, userID uint) {
	Invalidate(ctx, RolesKey(userID))
}
