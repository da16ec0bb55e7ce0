package server

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pawhaven/internal/models"
	"pawhaven/internal/permissions"
)

func TestPostRoomMessage_RequiresAuth(t *testing.T) {
	ts := newTestServer(t)
	room := ts.room(t, "general")

	resp := ts.request(t, http.MethodPost,
		fmt.Sprintf("/api/rooms/%d/messages", room.ID), "",
		map[string]string{"content": "hello"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPostRoomMessage_HappyPath(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.user(t, "writer", false)
	room := ts.room(t, "general")

	resp := ts.request(t, http.MethodPost,
		fmt.Sprintf("/api/rooms/%d/messages", room.ID), token,
		map[string]string{"content": "hello from the dog park"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var msg models.RoomMessage
	decodeBody(t, resp, &msg)
	assert.Equal(t, "hello from the dog park", msg.Content)
	assert.Equal(t, room.ID, msg.RoomID)
}

func TestPostRoomMessage_ErrorTaxonomy(t *testing.T) {
	ts := newTestServer(t)
	_, adminToken := ts.user(t, "root", true)
	author, token := ts.user(t, "writer", false)
	room := ts.room(t, "general")

	// Unknown room -> 404.
	resp := ts.request(t, http.MethodPost, "/api/rooms/9999/messages", token,
		map[string]string{"content": "hello"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Empty content -> 400 VALIDATION_ERROR.
	resp = ts.request(t, http.MethodPost,
		fmt.Sprintf("/api/rooms/%d/messages", room.ID), token,
		map[string]string{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Blocked content -> 422 CONTENT_BLOCKED.
	resp = ts.request(t, http.MethodPost,
		fmt.Sprintf("/api/rooms/%d/messages", room.ID), token,
		map[string]string{"content": "kys"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var body models.ErrorResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, models.CodeContentBlocked, body.Code)

	// Banned author -> 403 BANNED.
	resp = ts.request(t, http.MethodPost, "/api/moderation/actions", adminToken,
		map[string]interface{}{
			"action_type": "ban", "target_user_id": author.ID, "duration": "1h",
		})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = ts.request(t, http.MethodPost,
		fmt.Sprintf("/api/rooms/%d/messages", room.ID), token,
		map[string]string{"content": "hello"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	decodeBody(t, resp, &body)
	assert.Equal(t, models.CodeBanned, body.Code)
}

func TestPostRoomMessage_RateLimited(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.user(t, "chatty", false)
	room := ts.room(t, "general")
	path := fmt.Sprintf("/api/rooms/%d/messages", room.ID)

	for i := 0; i < 10; i++ {
		resp := ts.request(t, http.MethodPost, path, token,
			map[string]string{"content": fmt.Sprintf("message %d", i)})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp := ts.request(t, http.MethodPost, path, token,
		map[string]string{"content": "one too many"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestGetRoomMessages_Pagination(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.user(t, "writer", false)
	room := ts.room(t, "general")
	path := fmt.Sprintf("/api/rooms/%d/messages", room.ID)

	for i := 1; i <= 5; i++ {
		resp := ts.request(t, http.MethodPost, path, token,
			map[string]string{"content": fmt.Sprintf("message %d", i)})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp := ts.request(t, http.MethodGet, path+"?limit=3", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Messages []models.RoomMessage          `json:"messages"`
		Badges   map[string][]permissions.Role `json:"badges"`
	}
	decodeBody(t, resp, &body)
	require.Len(t, body.Messages, 3)
	assert.Equal(t, "message 3", body.Messages[0].Content)
	assert.Equal(t, "message 5", body.Messages[2].Content)
	assert.Contains(t, body.Badges, fmt.Sprintf("%d", body.Messages[0].AuthorID))

	resp = ts.request(t, http.MethodGet,
		fmt.Sprintf("%s?limit=3&before=%d", path, body.Messages[0].ID), token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &body)
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "message 1", body.Messages[0].Content)
}

func TestCreateRoom_PermissionGate(t *testing.T) {
	ts := newTestServer(t)
	_, plebToken := ts.user(t, "pleb", false)
	_, adminToken := ts.user(t, "root", true)

	resp := ts.request(t, http.MethodPost, "/api/rooms/", plebToken,
		map[string]string{"name": "Cat Corner", "slug": "cat-corner"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.request(t, http.MethodPost, "/api/rooms/", adminToken,
		map[string]string{"name": "Cat Corner", "slug": "cat-corner"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestReactionRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.user(t, "writer", false)
	room := ts.room(t, "general")

	resp := ts.request(t, http.MethodPost,
		fmt.Sprintf("/api/rooms/%d/messages", room.ID), token,
		map[string]string{"content": "look at this pup"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var msg models.RoomMessage
	decodeBody(t, resp, &msg)

	base := fmt.Sprintf("/api/rooms/%d/messages/%d/reactions", room.ID, msg.ID)
	resp = ts.request(t, http.MethodPost, base, token, map[string]string{"emoji": "🐶"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.request(t, http.MethodGet, base, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var reactions struct {
		Reactions []struct {
			Emoji string `json:"emoji"`
			Count int    `json:"count"`
		} `json:"reactions"`
	}
	decodeBody(t, resp, &reactions)
	require.Len(t, reactions.Reactions, 1)
	assert.Equal(t, 1, reactions.Reactions[0].Count)
}
