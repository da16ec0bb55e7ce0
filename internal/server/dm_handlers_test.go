package server

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pawhaven/internal/dmcrypto"
	"pawhaven/internal/models"
	"pawhaven/internal/service"
)

// enrollKeys generates a keypair for a user, stores the private half in the
// node's key store and publishes the public half through the API.
func (ts *testServer) enrollKeys(t *testing.T, userID uint, token string) {
	t.Helper()
	priv, pub, err := dmcrypto.GenerateKeypair()
	require.NoError(t, err)
	require.NoError(t, ts.keys.StorePrivateKey(userID, priv))

	resp := ts.request(t, http.MethodPost, "/api/keys/public", token,
		map[string]string{"public_key": base64.StdEncoding.EncodeToString(pub)})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestPublicKeyRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	alice, aliceToken := ts.user(t, "alice", false)
	_, bobToken := ts.user(t, "bob", false)

	// No key published yet.
	resp := ts.request(t, http.MethodGet,
		fmt.Sprintf("/api/keys/public/%d", alice.ID), bobToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	ts.enrollKeys(t, alice.ID, aliceToken)

	resp = ts.request(t, http.MethodGet,
		fmt.Sprintf("/api/keys/public/%d", alice.ID), bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		UserID    uint   `json:"user_id"`
		PublicKey string `json:"public_key"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, alice.ID, body.UserID)
	raw, err := base64.StdEncoding.DecodeString(body.PublicKey)
	require.NoError(t, err)
	assert.Len(t, raw, dmcrypto.KeySize)
}

func TestUploadPublicKey_WrongSize(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.user(t, "alice", false)

	resp := ts.request(t, http.MethodPost, "/api/keys/public", token,
		map[string]string{"public_key": base64.StdEncoding.EncodeToString([]byte("short"))})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEnrollKeyProvisionsEncryption(t *testing.T) {
	ts := newTestServer(t)
	alice, aliceToken := ts.user(t, "alice", false)
	bob, bobToken := ts.user(t, "bob", false)

	// Enrollment alone provisions both key halves; no client-side upload.
	for _, token := range []string{aliceToken, bobToken} {
		resp := ts.request(t, http.MethodPost, "/api/keys/enroll", token, nil)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var body struct {
			PublicKey string `json:"public_key"`
		}
		decodeBody(t, resp, &body)
		raw, err := base64.StdEncoding.DecodeString(body.PublicKey)
		require.NoError(t, err)
		assert.Len(t, raw, dmcrypto.KeySize)
	}

	resp := ts.request(t, http.MethodGet,
		fmt.Sprintf("/api/keys/public/%d", alice.ID), bobToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.request(t, http.MethodPost, "/api/conversations/", aliceToken,
		map[string]interface{}{"peer_id": bob.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var conv models.DMConversation
	decodeBody(t, resp, &conv)

	resp = ts.request(t, http.MethodPost,
		fmt.Sprintf("/api/conversations/%d/messages", conv.ID), aliceToken,
		map[string]string{"content": "biscuit chewed another leash"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sent service.DMView
	decodeBody(t, resp, &sent)
	assert.True(t, sent.Encrypted)
}

func TestDMConversationFlow_Encrypted(t *testing.T) {
	ts := newTestServer(t)
	alice, aliceToken := ts.user(t, "alice", false)
	bob, bobToken := ts.user(t, "bob", false)
	ts.enrollKeys(t, alice.ID, aliceToken)
	ts.enrollKeys(t, bob.ID, bobToken)

	resp := ts.request(t, http.MethodPost, "/api/conversations/", aliceToken,
		map[string]interface{}{"peer_id": bob.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var conv models.DMConversation
	decodeBody(t, resp, &conv)

	resp = ts.request(t, http.MethodPost,
		fmt.Sprintf("/api/conversations/%d/messages", conv.ID), aliceToken,
		map[string]string{"content": "maple needs her shots this week"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sent service.DMView
	decodeBody(t, resp, &sent)
	assert.True(t, sent.Encrypted)
	assert.Equal(t, "maple needs her shots this week", sent.Content)

	// The peer reads the same plaintext back.
	resp = ts.request(t, http.MethodGet,
		fmt.Sprintf("/api/conversations/%d/messages", conv.ID), bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page struct {
		Messages []service.DMView `json:"messages"`
	}
	decodeBody(t, resp, &page)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "maple needs her shots this week", page.Messages[0].Content)
	assert.True(t, page.Messages[0].Encrypted)

	resp = ts.request(t, http.MethodPost,
		fmt.Sprintf("/api/conversations/%d/read", conv.ID), bobToken, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestDMConversationFlow_PlaintextFallback(t *testing.T) {
	ts := newTestServer(t)
	alice, aliceToken := ts.user(t, "alice", false)
	bob, bobToken := ts.user(t, "bob", false)
	// Only alice enrolls; messages fall back to plaintext.
	ts.enrollKeys(t, alice.ID, aliceToken)

	resp := ts.request(t, http.MethodPost, "/api/conversations/", aliceToken,
		map[string]interface{}{"peer_id": bob.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var conv models.DMConversation
	decodeBody(t, resp, &conv)

	resp = ts.request(t, http.MethodPost,
		fmt.Sprintf("/api/conversations/%d/messages", conv.ID), aliceToken,
		map[string]string{"content": "is the shelter open saturday?"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sent service.DMView
	decodeBody(t, resp, &sent)
	assert.False(t, sent.Encrypted)

	resp = ts.request(t, http.MethodGet,
		fmt.Sprintf("/api/conversations/%d/messages", conv.ID), bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page struct {
		Messages []service.DMView `json:"messages"`
	}
	decodeBody(t, resp, &page)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "is the shelter open saturday?", page.Messages[0].Content)
}

func TestDMMembershipEnforced(t *testing.T) {
	ts := newTestServer(t)
	_, aliceToken := ts.user(t, "alice", false)
	bob, _ := ts.user(t, "bob", false)
	_, eveToken := ts.user(t, "eve", false)

	resp := ts.request(t, http.MethodPost, "/api/conversations/", aliceToken,
		map[string]interface{}{"peer_id": bob.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var conv models.DMConversation
	decodeBody(t, resp, &conv)

	resp = ts.request(t, http.MethodGet,
		fmt.Sprintf("/api/conversations/%d/messages", conv.ID), eveToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.request(t, http.MethodPost,
		fmt.Sprintf("/api/conversations/%d/messages", conv.ID), eveToken,
		map[string]string{"content": "let me in"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDMBlockedContent(t *testing.T) {
	ts := newTestServer(t)
	_, aliceToken := ts.user(t, "alice", false)
	bob, _ := ts.user(t, "bob", false)

	resp := ts.request(t, http.MethodPost, "/api/conversations/", aliceToken,
		map[string]interface{}{"peer_id": bob.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var conv models.DMConversation
	decodeBody(t, resp, &conv)

	resp = ts.request(t, http.MethodPost,
		fmt.Sprintf("/api/conversations/%d/messages", conv.ID), aliceToken,
		map[string]string{"content": "kys"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var body models.ErrorResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, models.CodeContentBlocked, body.Code)
}
