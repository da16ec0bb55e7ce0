package repository

import (
	"context"
	"testing"

	"pawhaven/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyRepository_UpsertReplacesKey(t *testing.T) {
	truncateTables(t)
	ctx := context.Background()
	repo := NewKeyRepository(testDB)

	user := createTestUser(t, "keyed")

	require.NoError(t, repo.Upsert(ctx, &models.UserPublicKey{UserID: user.ID, PublicKey: []byte("old-key")}))
	require.NoError(t, repo.Upsert(ctx, &models.UserPublicKey{UserID: user.ID, PublicKey: []byte("new-key")}))

	key, err := repo.Get(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, key)
	assert.Equal(t, []byte("new-key"), key.PublicKey)
}

func TestKeyRepository_AbsentKeyIsNotAnError(t *testing.T) {
	truncateTables(t)
	repo := NewKeyRepository(testDB)

	key, err := repo.Get(context.Background(), 99999)
	require.NoError(t, err)
	assert.Nil(t, key)
}
