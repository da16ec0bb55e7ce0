package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pawhaven/internal/config"
	"pawhaven/internal/database"
	"pawhaven/internal/dmcrypto"
	"pawhaven/internal/middleware"
	"pawhaven/internal/models"
)

var (
	testDB  *gorm.DB
	testCfg *config.Config
)

func TestMain(m *testing.M) {
	os.Setenv("APP_ENV", "test")

	var err error
	testDB, err = gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Printf("Server tests skipped: sqlite unavailable: %v", err)
		os.Exit(0)
	}
	if err := database.Migrate(testDB); err != nil {
		log.Fatalf("failed to migrate test database: %v", err)
	}

	testCfg = &config.Config{
		JWTSecret:             "test-secret",
		Env:                   "test",
		ChatRateLimit:         10,
		ChatRateWindowSeconds: 60,
		MaxMessageLength:      2000,
		HeartbeatSeconds:      30,
		PresenceStaleMultiple: 3,
	}
	middleware.InitMiddleware(testCfg)

	os.Exit(m.Run())
}

type testServer struct {
	srv  *Server
	app  *fiber.App
	mr   *miniredis.Miniredis
	keys *dmcrypto.MemoryKeyStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	for _, table := range []string{
		"message_mentions", "message_reactions", "room_messages", "chat_rooms",
		"moderation_actions", "moderation_log_entries", "role_assignments",
		"presence_records", "dm_messages", "dm_conversations",
		"user_public_keys", "users",
	} {
		testDB.Exec("DELETE FROM " + table)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	keys := dmcrypto.NewMemoryKeyStore()
	srv, err := NewServerWithDeps(testCfg, testDB, rdb, keys)
	require.NoError(t, err)
	t.Cleanup(func() { srv.tracker.Stop() })

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	srv.SetupRoutes(app)

	return &testServer{srv: srv, app: app, mr: mr, keys: keys}
}

func (ts *testServer) user(t *testing.T, username string, siteAdmin bool) (*models.User, string) {
	t.Helper()
	u := &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		IsSiteAdmin:  siteAdmin,
	}
	require.NoError(t, ts.srv.userRepo.Create(context.Background(), u))
	if siteAdmin {
		require.NoError(t, ts.srv.userRepo.SetSiteAdmin(context.Background(), u.ID, true))
	}
	token, err := middleware.GenerateToken(u.ID, time.Hour)
	require.NoError(t, err)
	return u, token
}

func (ts *testServer) room(t *testing.T, slug string) *models.ChatRoom {
	t.Helper()
	room := &models.ChatRoom{Name: slug, Slug: slug, IsActive: true}
	require.NoError(t, ts.srv.chatRepo.CreateRoom(context.Background(), room))
	return room
}

func (ts *testServer) request(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dest interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}
