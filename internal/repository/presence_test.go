package repository

import (
	"context"
	"testing"
	"time"

	"pawhaven/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceRepository_UpsertAndListOnline(t *testing.T) {
	truncateTables(t)
	ctx := context.Background()
	repo := NewPresenceRepository(testDB)

	user := createTestUser(t, "present")
	now := time.Now()
	staleness := 90 * time.Second

	require.NoError(t, repo.Upsert(ctx, &models.PresenceRecord{
		UserID: user.ID, RoomID: 1, LastSeenAt: now, IsOnline: true,
	}))

	online, err := repo.ListOnline(ctx, 1, now, staleness)
	require.NoError(t, err)
	require.Len(t, online, 1)

	// A later heartbeat updates the same row rather than inserting.
	require.NoError(t, repo.Upsert(ctx, &models.PresenceRecord{
		UserID: user.ID, RoomID: 1, LastSeenAt: now.Add(time.Minute), IsOnline: true,
	}))
	online, err = repo.ListOnline(ctx, 1, now.Add(time.Minute), staleness)
	require.NoError(t, err)
	assert.Len(t, online, 1)
}

func TestPresenceRepository_StaleHeartbeatAgesOut(t *testing.T) {
	truncateTables(t)
	ctx := context.Background()
	repo := NewPresenceRepository(testDB)

	user := createTestUser(t, "ghost")
	now := time.Now()
	staleness := 90 * time.Second

	require.NoError(t, repo.Upsert(ctx, &models.PresenceRecord{
		UserID: user.ID, RoomID: 2, LastSeenAt: now.Add(-2 * time.Minute), IsOnline: true,
	}))

	online, err := repo.ListOnline(ctx, 2, now, staleness)
	require.NoError(t, err)
	assert.Empty(t, online, "a crashed client should age out without an explicit leave")
}

func TestPresenceRepository_SetOffline(t *testing.T) {
	truncateTables(t)
	ctx := context.Background()
	repo := NewPresenceRepository(testDB)

	user := createTestUser(t, "leaver")
	now := time.Now()

	require.NoError(t, repo.Upsert(ctx, &models.PresenceRecord{
		UserID: user.ID, RoomID: 3, LastSeenAt: now, IsOnline: true,
	}))
	require.NoError(t, repo.SetOffline(ctx, user.ID, 3, now))

	online, err := repo.ListOnline(ctx, 3, now, 90*time.Second)
	require.NoError(t, err)
	assert.Empty(t, online)

	record, err := repo.Get(ctx, user.ID, 3)
	require.NoError(t, err)
	assert.False(t, record.IsOnline)
}
