package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pawhaven/internal/models"
)

func newChatService(e *env) *ChatService {
	return NewChatService(e.rooms, e.roles, nil)
}

func TestCreateRoomRequiresManageRoom(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := newChatService(e)
	pleb := e.user(t, "pleb")

	_, err := svc.CreateRoom(ctx, pleb.ID, "Dog Training", "dog-training", "")
	require.Error(t, err)
	assert.Equal(t, models.CodePermissionDenied, models.CodeOf(err))

	admin := e.admin(t, "root")
	room, err := svc.CreateRoom(ctx, admin.ID, "Dog Training", "dog-training", "tips and tricks")
	require.NoError(t, err)
	assert.True(t, room.IsActive)
}

func TestCreateRoomValidatesSlug(t *testing.T) {
	e := newEnv(t)
	admin := e.admin(t, "root")
	svc := newChatService(e)

	for _, slug := range []string{"", "Dog Training", "UPPER", "trailing-", "-leading"} {
		_, err := svc.CreateRoom(context.Background(), admin.ID, "name", slug, "")
		require.Error(t, err, "slug %q should be rejected", slug)
		assert.Equal(t, models.CodeValidation, models.CodeOf(err))
	}
}

func TestHistoryPagination(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	author := e.user(t, "writer")
	room := e.room(t, "general")
	svc := newChatService(e)

	for i := 1; i <= 5; i++ {
		require.NoError(t, e.rooms.CreateMessage(ctx, &models.RoomMessage{
			RoomID: room.ID, AuthorID: author.ID, Content: fmt.Sprintf("message %d", i),
		}))
	}

	page, err := svc.History(ctx, room.ID, 0, 3)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, "message 3", page[0].Content)
	assert.Equal(t, "message 5", page[2].Content)

	older, err := svc.History(ctx, room.ID, page[0].ID, 3)
	require.NoError(t, err)
	require.Len(t, older, 2)
	assert.Equal(t, "message 1", older[0].Content)
}

func TestDeleteMessageAuthorOrPermission(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	author := e.user(t, "writer")
	stranger := e.user(t, "stranger")
	admin := e.admin(t, "root")
	mod := e.moderator(t, "mod", admin.ID)
	room := e.room(t, "general")
	svc := newChatService(e)

	mine := &models.RoomMessage{RoomID: room.ID, AuthorID: author.ID, Content: "mine"}
	require.NoError(t, e.rooms.CreateMessage(ctx, mine))

	err := svc.DeleteMessage(ctx, stranger.ID, mine.ID)
	require.Error(t, err)
	assert.Equal(t, models.CodePermissionDenied, models.CodeOf(err))

	// The author may always delete their own message.
	require.NoError(t, svc.DeleteMessage(ctx, author.ID, mine.ID))

	other := &models.RoomMessage{RoomID: room.ID, AuthorID: author.ID, Content: "other"}
	require.NoError(t, e.rooms.CreateMessage(ctx, other))

	// delete_message lets a moderator remove someone else's message.
	require.NoError(t, svc.DeleteMessage(ctx, mod.ID, other.ID))

	msgs, err := svc.History(ctx, room.ID, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs, "soft-deleted messages drop out of history")
}

func TestReactionsAggregate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	author := e.user(t, "writer")
	fan1 := e.user(t, "fan1")
	fan2 := e.user(t, "fan2")
	room := e.room(t, "general")
	svc := newChatService(e)

	msg := &models.RoomMessage{RoomID: room.ID, AuthorID: author.ID, Content: "puppy pics"}
	require.NoError(t, e.rooms.CreateMessage(ctx, msg))

	require.NoError(t, svc.React(ctx, fan1.ID, msg.ID, "🐶"))
	require.NoError(t, svc.React(ctx, fan2.ID, msg.ID, "🐶"))
	require.NoError(t, svc.React(ctx, fan1.ID, msg.ID, "❤️"))
	// Duplicate reaction is a no-op.
	require.NoError(t, svc.React(ctx, fan1.ID, msg.ID, "🐶"))

	summaries, err := svc.Reactions(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	byEmoji := map[string]ReactionSummary{}
	for _, s := range summaries {
		byEmoji[s.Emoji] = s
	}
	assert.Equal(t, 2, byEmoji["🐶"].Count)
	assert.Equal(t, 1, byEmoji["❤️"].Count)

	require.NoError(t, svc.Unreact(ctx, fan2.ID, msg.ID, "🐶"))
	summaries, err = svc.Reactions(ctx, msg.ID)
	require.NoError(t, err)
	byEmoji = map[string]ReactionSummary{}
	for _, s := range summaries {
		byEmoji[s.Emoji] = s
	}
	assert.Equal(t, 1, byEmoji["🐶"].Count)
}
