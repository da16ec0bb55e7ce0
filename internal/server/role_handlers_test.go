package server

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pawhaven/internal/permissions"
)

func TestGetRoleCatalog(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.user(t, "viewer", false)

	resp := ts.request(t, http.MethodGet, "/api/roles/", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Roles []permissions.Role `json:"roles"`
	}
	decodeBody(t, resp, &body)

	names := make([]string, 0, len(body.Roles))
	for _, r := range body.Roles {
		names = append(names, r.Name)
	}
	assert.Contains(t, names, "moderator")
	assert.Contains(t, names, "vet_expert")
	assert.NotContains(t, names, permissions.AdminRoleName)
}

func TestAssignRole_EndToEnd(t *testing.T) {
	ts := newTestServer(t)
	_, adminToken := ts.user(t, "root", true)
	target, _ := ts.user(t, "helper", false)

	resp := ts.request(t, http.MethodPost, "/api/roles/assign", adminToken,
		map[string]interface{}{"user_id": target.ID, "role_name": "vet_expert"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.request(t, http.MethodGet,
		fmt.Sprintf("/api/users/%d/roles", target.ID), adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Badges      []permissions.Role `json:"badges"`
		Permissions []string           `json:"permissions"`
	}
	decodeBody(t, resp, &body)
	require.Len(t, body.Badges, 1)
	assert.Equal(t, "vet_expert", body.Badges[0].Name)
	assert.Contains(t, body.Permissions, permissions.PinMessage)

	resp = ts.request(t, http.MethodDelete, "/api/roles/assign", adminToken,
		map[string]interface{}{"user_id": target.ID, "role_name": "vet_expert"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.request(t, http.MethodGet,
		fmt.Sprintf("/api/users/%d/roles", target.ID), adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &body)
	assert.Empty(t, body.Badges)
}

func TestAssignRole_Rejections(t *testing.T) {
	ts := newTestServer(t)
	_, plebToken := ts.user(t, "pleb", false)
	_, adminToken := ts.user(t, "root", true)
	target, _ := ts.user(t, "helper", false)

	// No AssignRoles permission.
	resp := ts.request(t, http.MethodPost, "/api/roles/assign", plebToken,
		map[string]interface{}{"user_id": target.ID, "role_name": "moderator"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// The admin role is derived from the site-admin flag, never assigned.
	resp = ts.request(t, http.MethodPost, "/api/roles/assign", adminToken,
		map[string]interface{}{"user_id": target.ID, "role_name": permissions.AdminRoleName})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown role.
	resp = ts.request(t, http.MethodPost, "/api/roles/assign", adminToken,
		map[string]interface{}{"user_id": target.ID, "role_name": "grand_poobah"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetUserBadges_SiteAdmin(t *testing.T) {
	ts := newTestServer(t)
	admin, adminToken := ts.user(t, "root", true)

	resp := ts.request(t, http.MethodGet,
		fmt.Sprintf("/api/users/%d/roles", admin.ID), adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Badges []permissions.Role `json:"badges"`
	}
	decodeBody(t, resp, &body)
	require.NotEmpty(t, body.Badges)
	assert.Equal(t, permissions.AdminRoleName, body.Badges[0].Name)
}
