package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pawhaven/internal/contentfilter"
	"pawhaven/internal/models"
)

func newPipeline(t *testing.T, e *env) (*AdmissionPipeline, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := AdmissionConfig{RateLimit: 10, RateWindow: 60 * time.Second, MaxMessageLength: 2000}
	return NewAdmissionPipeline(cfg, client, e.rooms, e.users, e.moderation, contentfilter.New(), nil, nil), mr
}

func TestSubmitHappyPath(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	author := e.user(t, "writer")
	room := e.room(t, "general")
	pipeline, _ := newPipeline(t, e)

	msg, err := pipeline.Submit(ctx, SubmitRequest{
		AuthorID: author.ID, RoomID: room.ID, Content: "  anyone up for a walk at the dog park?  ",
	})
	require.NoError(t, err)
	assert.Equal(t, "anyone up for a walk at the dog park?", msg.Content)
	require.NotNil(t, msg.Author)
	assert.Equal(t, "writer", msg.Author.Username)

	stored, err := e.rooms.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.Content, stored.Content)
}

func TestSubmitRequiresIdentity(t *testing.T) {
	e := newEnv(t)
	room := e.room(t, "general")
	pipeline, _ := newPipeline(t, e)

	_, err := pipeline.Submit(context.Background(), SubmitRequest{
		AuthorID: 0, RoomID: room.ID, Content: "hello",
	})
	require.Error(t, err)
	assert.Equal(t, models.CodeUnauthenticated, models.CodeOf(err))

	_, err = pipeline.Submit(context.Background(), SubmitRequest{
		AuthorID: 9999, RoomID: room.ID, Content: "hello",
	})
	require.Error(t, err)
	assert.Equal(t, models.CodeUnauthenticated, models.CodeOf(err))
}

func TestSubmitUnknownOrInactiveRoom(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	author := e.user(t, "writer")
	pipeline, _ := newPipeline(t, e)

	_, err := pipeline.Submit(ctx, SubmitRequest{AuthorID: author.ID, RoomID: 404, Content: "hello"})
	require.Error(t, err)
	assert.Equal(t, models.CodeNotFound, models.CodeOf(err))

	archived := e.room(t, "archived")
	require.NoError(t, testDB.Model(&models.ChatRoom{}).
		Where("id = ?", archived.ID).Update("is_active", false).Error)

	_, err = pipeline.Submit(ctx, SubmitRequest{AuthorID: author.ID, RoomID: archived.ID, Content: "hello"})
	require.Error(t, err)
	assert.Equal(t, models.CodeNotFound, models.CodeOf(err))
}

func TestSubmitBannedBeforeSilenced(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	admin := e.admin(t, "root")
	mod := e.moderator(t, "mod", admin.ID)
	author := e.user(t, "rowdy")
	room := e.room(t, "general")
	pipeline, _ := newPipeline(t, e)

	_, err := e.moderation.Apply(ctx, mod.ID, ApplyRequest{
		ActionType: models.ActionSilence, TargetUserID: author.ID, Duration: "1h",
	})
	require.NoError(t, err)

	_, err = pipeline.Submit(ctx, SubmitRequest{AuthorID: author.ID, RoomID: room.ID, Content: "hello"})
	require.Error(t, err)
	assert.Equal(t, models.CodeSilenced, models.CodeOf(err))

	_, err = e.moderation.Apply(ctx, mod.ID, ApplyRequest{
		ActionType: models.ActionBan, TargetUserID: author.ID, Duration: "1h",
	})
	require.NoError(t, err)

	_, err = pipeline.Submit(ctx, SubmitRequest{AuthorID: author.ID, RoomID: room.ID, Content: "hello"})
	require.Error(t, err)
	assert.Equal(t, models.CodeBanned, models.CodeOf(err), "ban outranks silence")
}

func TestSubmitRateLimit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	author := e.user(t, "chatty")
	room := e.room(t, "general")
	pipeline, mr := newPipeline(t, e)

	for i := 0; i < 10; i++ {
		_, err := pipeline.Submit(ctx, SubmitRequest{
			AuthorID: author.ID, RoomID: room.ID, Content: fmt.Sprintf("message %d", i),
		})
		require.NoError(t, err)
	}

	_, err := pipeline.Submit(ctx, SubmitRequest{AuthorID: author.ID, RoomID: room.ID, Content: "one too many"})
	require.Error(t, err)
	assert.Equal(t, models.CodeRateLimited, models.CodeOf(err))

	// A different author has an independent budget.
	other := e.user(t, "quiet")
	_, err = pipeline.Submit(ctx, SubmitRequest{AuthorID: other.ID, RoomID: room.ID, Content: "hello"})
	require.NoError(t, err)

	// The window expiring restores the budget.
	mr.FastForward(61 * time.Second)
	_, err = pipeline.Submit(ctx, SubmitRequest{AuthorID: author.ID, RoomID: room.ID, Content: "back again"})
	require.NoError(t, err)
}

func TestSubmitShapeChecks(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	author := e.user(t, "writer")
	room := e.room(t, "general")
	pipeline, _ := newPipeline(t, e)

	_, err := pipeline.Submit(ctx, SubmitRequest{AuthorID: author.ID, RoomID: room.ID, Content: "   "})
	require.Error(t, err)
	assert.Equal(t, models.CodeValidation, models.CodeOf(err))

	_, err = pipeline.Submit(ctx, SubmitRequest{
		AuthorID: author.ID, RoomID: room.ID, Content: strings.Repeat("a", 2001),
	})
	require.Error(t, err)
	assert.Equal(t, models.CodeValidation, models.CodeOf(err))

	// Exactly at the limit passes.
	_, err = pipeline.Submit(ctx, SubmitRequest{
		AuthorID: author.ID, RoomID: room.ID, Content: strings.Repeat("a", 2000),
	})
	require.NoError(t, err)
}

func TestSubmitBlockedContentNeverPersisted(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	author := e.user(t, "abuser")
	room := e.room(t, "general")
	pipeline, _ := newPipeline(t, e)

	_, err := pipeline.Submit(ctx, SubmitRequest{AuthorID: author.ID, RoomID: room.ID, Content: "kys loser"})
	require.Error(t, err)
	assert.Equal(t, models.CodeContentBlocked, models.CodeOf(err))

	msgs, err := e.rooms.GetMessages(ctx, room.ID, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	entries, err := e.modRepo.PendingLogEntries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.LogBlocked, entries[0].ActionTaken)
	assert.Contains(t, entries[0].FlagList(), "abusive_content")
}

func TestSubmitFilteredContentMaskedAndLogged(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	author := e.user(t, "salty")
	room := e.room(t, "general")
	pipeline, _ := newPipeline(t, e)

	msg, err := pipeline.Submit(ctx, SubmitRequest{
		AuthorID: author.ID, RoomID: room.ID, Content: "that vet bill was damn expensive",
	})
	require.NoError(t, err)
	assert.Equal(t, "that vet bill was **** expensive", msg.Content)

	var entries []models.ModerationLogEntry
	require.NoError(t, testDB.Where("user_id = ?", author.ID).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, models.LogFiltered, entries[0].ActionTaken)
	// The log preview keeps the original text; the stored message does not.
	assert.Contains(t, entries[0].ContentPreview, "damn")
}

func TestSubmitRecordsMentions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	author := e.user(t, "writer")
	friend := e.user(t, "buddy")
	room := e.room(t, "general")
	pipeline, _ := newPipeline(t, e)

	msg, err := pipeline.Submit(ctx, SubmitRequest{
		AuthorID: author.ID, RoomID: room.ID, Content: "hey @buddy, check this out! also @ghost",
	})
	require.NoError(t, err)

	var mentions []models.MessageMention
	require.NoError(t, testDB.Where("message_id = ?", msg.ID).Find(&mentions).Error)
	require.Len(t, mentions, 1, "only mentions of real users are stored")
	assert.Equal(t, friend.ID, mentions[0].MentionedUserID)
}
