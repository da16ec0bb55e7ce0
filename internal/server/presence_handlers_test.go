package server

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceHeartbeatAndLeave(t *testing.T) {
	ts := newTestServer(t)
	alice, aliceToken := ts.user(t, "alice", false)
	_, bobToken := ts.user(t, "bob", false)
	room := ts.room(t, "general")

	for _, token := range []string{aliceToken, bobToken} {
		resp := ts.request(t, http.MethodPost, "/api/presence/", token,
			map[string]interface{}{"room_id": room.ID})
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
	}

	resp := ts.request(t, http.MethodGet,
		fmt.Sprintf("/api/presence/?room=%d", room.ID), aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		RoomID uint   `json:"room_id"`
		Online []uint `json:"online"`
	}
	decodeBody(t, resp, &body)
	assert.Len(t, body.Online, 2)

	resp = ts.request(t, http.MethodPost, "/api/presence/", aliceToken,
		map[string]interface{}{"room_id": room.ID, "event": "leave"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.request(t, http.MethodGet,
		fmt.Sprintf("/api/presence/?room=%d", room.ID), aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &body)
	require.Len(t, body.Online, 1)
	assert.NotContains(t, body.Online, alice.ID)
}

func TestPostPresence_Validation(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.user(t, "alice", false)
	room := ts.room(t, "general")

	// room_id is required.
	resp := ts.request(t, http.MethodPost, "/api/presence/", token,
		map[string]interface{}{"event": "heartbeat"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown room.
	resp = ts.request(t, http.MethodPost, "/api/presence/", token,
		map[string]interface{}{"room_id": 9999})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Unknown event verb.
	resp = ts.request(t, http.MethodPost, "/api/presence/", token,
		map[string]interface{}{"room_id": room.ID, "event": "vanish"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// The room query parameter is required on reads.
	resp = ts.request(t, http.MethodGet, "/api/presence/", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
