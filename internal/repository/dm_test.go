package repository

import (
	"context"
	"testing"
	"time"

	"pawhaven/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDMRepository_GetOrCreateConversation_OrderIndependent(t *testing.T) {
	truncateTables(t)
	ctx := context.Background()
	repo := NewDMRepository(testDB)

	alice := createTestUser(t, "alice")
	bob := createTestUser(t, "bob")

	c1, err := repo.GetOrCreateConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	c2, err := repo.GetOrCreateConversation(ctx, bob.ID, alice.ID)
	require.NoError(t, err)

	assert.Equal(t, c1.ID, c2.ID)
	assert.True(t, c1.Includes(alice.ID))
	assert.True(t, c1.Includes(bob.ID))
	assert.Equal(t, bob.ID, c1.Peer(alice.ID))
}

func TestDMRepository_CreateMessage_BumpsLastMessageAt(t *testing.T) {
	truncateTables(t)
	ctx := context.Background()
	repo := NewDMRepository(testDB)

	alice := createTestUser(t, "alice2")
	bob := createTestUser(t, "bob2")
	conv, err := repo.GetOrCreateConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	require.Nil(t, conv.LastMessageAt)

	msg := &models.DMMessage{ConversationID: conv.ID, SenderID: alice.ID, Content: "hi bob"}
	require.NoError(t, repo.CreateMessage(ctx, msg))

	reloaded, err := repo.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.NotNil(t, reloaded.LastMessageAt)
}

func TestDMRepository_CreateMessageWithLog_AtomicPair(t *testing.T) {
	truncateTables(t)
	ctx := context.Background()
	repo := NewDMRepository(testDB)
	modRepo := NewModerationRepository(testDB)

	alice := createTestUser(t, "alice5")
	bob := createTestUser(t, "bob5")
	conv, err := repo.GetOrCreateConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	msg := &models.DMMessage{ConversationID: conv.ID, SenderID: alice.ID, Content: "**** that vet bill"}
	entry := &models.ModerationLogEntry{
		ID:             "dm-log-1",
		UserID:         alice.ID,
		ContentType:    "dm_message",
		ContentPreview: "damn that vet bill",
		ActionTaken:    models.LogFiltered,
	}
	entry.SetFlags([]string{"profanity"})
	require.NoError(t, repo.CreateMessageWithLog(ctx, msg, entry))

	msgs, err := repo.GetMessages(ctx, conv.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	got, err := modRepo.GetLogEntry(ctx, "dm-log-1")
	require.NoError(t, err)
	assert.Equal(t, models.LogFiltered, got.ActionTaken)

	reloaded, err := repo.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.NotNil(t, reloaded.LastMessageAt)

	// A nil entry is the clean-message case; only the message lands.
	clean := &models.DMMessage{ConversationID: conv.ID, SenderID: bob.ID, Content: "poor maple"}
	require.NoError(t, repo.CreateMessageWithLog(ctx, clean, nil))
	msgs, err = repo.GetMessages(ctx, conv.ID, 0, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestDMRepository_MarkRead_OnlyPeerMessages(t *testing.T) {
	truncateTables(t)
	ctx := context.Background()
	repo := NewDMRepository(testDB)

	alice := createTestUser(t, "alice3")
	bob := createTestUser(t, "bob3")
	conv, err := repo.GetOrCreateConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	fromAlice := &models.DMMessage{ConversationID: conv.ID, SenderID: alice.ID, Content: "sent by alice"}
	fromBob := &models.DMMessage{ConversationID: conv.ID, SenderID: bob.ID, Content: "sent by bob"}
	require.NoError(t, repo.CreateMessage(ctx, fromAlice))
	require.NoError(t, repo.CreateMessage(ctx, fromBob))

	// Alice reads: only Bob's message flips.
	require.NoError(t, repo.MarkRead(ctx, conv.ID, alice.ID, time.Now()))

	msgs, err := repo.GetMessages(ctx, conv.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		if m.SenderID == bob.ID {
			assert.True(t, m.IsRead)
		} else {
			assert.False(t, m.IsRead)
		}
	}
}

func TestDMRepository_EncryptedPayloadRoundTrips(t *testing.T) {
	truncateTables(t)
	ctx := context.Background()
	repo := NewDMRepository(testDB)

	alice := createTestUser(t, "alice4")
	bob := createTestUser(t, "bob4")
	conv, err := repo.GetOrCreateConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	sealed := []byte{0x01, 0xde, 0xad, 0xbe, 0xef}
	msg := &models.DMMessage{ConversationID: conv.ID, SenderID: alice.ID, EncryptedContent: sealed}
	require.NoError(t, repo.CreateMessage(ctx, msg))

	msgs, err := repo.GetMessages(ctx, conv.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Encrypted())
	assert.Equal(t, sealed, msgs[0].EncryptedContent)
	assert.Empty(t, msgs[0].Content)
}
