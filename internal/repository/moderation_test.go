package repository

import (
	"context"
	"testing"
	"time"

	"pawhaven/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModerationRepository_ActiveActions(t *testing.T) {
	truncateTables(t)
	ctx := context.Background()
	repo := NewModerationRepository(testDB)

	target := createTestUser(t, "troublemaker")
	actor := createTestUser(t, "moderator")
	now := time.Now()

	expired := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	// Expired silence, active ban, revoked warn.
	require.NoError(t, repo.Insert(ctx, &models.ModerationAction{
		ActionType: models.ActionSilence, TargetUserID: target.ID, ActorUserID: actor.ID, ExpiresAt: &expired,
	}))
	require.NoError(t, repo.Insert(ctx, &models.ModerationAction{
		ActionType: models.ActionBan, TargetUserID: target.ID, ActorUserID: actor.ID, ExpiresAt: &future,
	}))
	revoked := &models.ModerationAction{
		ActionType: models.ActionWarn, TargetUserID: target.ID, ActorUserID: actor.ID, RevokedAt: &now,
	}
	require.NoError(t, repo.Insert(ctx, revoked))

	active, err := repo.ActiveActionsFor(ctx, target.ID, now)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, models.ActionBan, active[0].ActionType)
}

func TestModerationRepository_PermanentActionStaysActive(t *testing.T) {
	truncateTables(t)
	ctx := context.Background()
	repo := NewModerationRepository(testDB)

	target := createTestUser(t, "lifer")
	actor := createTestUser(t, "admin")

	require.NoError(t, repo.Insert(ctx, &models.ModerationAction{
		ActionType: models.ActionBan, TargetUserID: target.ID, ActorUserID: actor.ID,
	}))

	active, err := repo.ActiveActionsFor(ctx, target.ID, time.Now().Add(365*24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestModerationRepository_RevokeActive_Idempotent(t *testing.T) {
	truncateTables(t)
	ctx := context.Background()
	repo := NewModerationRepository(testDB)

	target := createTestUser(t, "revokee")
	actor := createTestUser(t, "revoker")
	now := time.Now()

	require.NoError(t, repo.Insert(ctx, &models.ModerationAction{
		ActionType: models.ActionSilence, TargetUserID: target.ID, ActorUserID: actor.ID,
	}))

	n, err := repo.RevokeActive(ctx, models.ActionSilence, target.ID, nil, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Second revoke matches nothing and is still fine.
	n, err = repo.RevokeActive(ctx, models.ActionSilence, target.ID, nil, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	active, err := repo.ActiveActionsFor(ctx, target.ID, now.Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestModerationRepository_RevokeActive_RoomScoped(t *testing.T) {
	truncateTables(t)
	ctx := context.Background()
	repo := NewModerationRepository(testDB)

	target := createTestUser(t, "scoped")
	actor := createTestUser(t, "scoper")
	now := time.Now()
	roomID := uint(7)

	require.NoError(t, repo.Insert(ctx, &models.ModerationAction{
		ActionType: models.ActionSilence, TargetUserID: target.ID, ActorUserID: actor.ID, RoomID: &roomID,
	}))
	require.NoError(t, repo.Insert(ctx, &models.ModerationAction{
		ActionType: models.ActionSilence, TargetUserID: target.ID, ActorUserID: actor.ID,
	}))

	// Revoking the room-scoped silence leaves the global one in force.
	n, err := repo.RevokeActive(ctx, models.ActionSilence, target.ID, &roomID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	active, err := repo.ActiveActionsFor(ctx, target.ID, now)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Nil(t, active[0].RoomID)
}

func TestModerationRepository_ReviewQueue(t *testing.T) {
	truncateTables(t)
	ctx := context.Background()
	repo := NewModerationRepository(testDB)

	author := createTestUser(t, "blocked-author")
	reviewer := createTestUser(t, "reviewer")

	blocked := &models.ModerationLogEntry{
		ID:          uuid.NewString(),
		UserID:      author.ID,
		ContentType: "chat_message",
		ActionTaken: models.LogBlocked,
	}
	require.NoError(t, repo.CreateLogEntry(ctx, blocked))

	filtered := &models.ModerationLogEntry{
		ID:          uuid.NewString(),
		UserID:      author.ID,
		ContentType: "chat_message",
		ActionTaken: models.LogFiltered,
	}
	require.NoError(t, repo.CreateLogEntry(ctx, filtered))

	pending, err := repo.PendingLogEntries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, blocked.ID, pending[0].ID)

	require.NoError(t, repo.FinalizeReview(ctx, blocked.ID, reviewer.ID, models.LogAllowed, time.Now()))

	pending, err = repo.PendingLogEntries(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	reviewed, err := repo.GetLogEntry(ctx, blocked.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LogAllowed, reviewed.ActionTaken)
	require.NotNil(t, reviewed.ReviewedBy)
	assert.Equal(t, reviewer.ID, *reviewed.ReviewedBy)
}
