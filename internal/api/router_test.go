package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/internal/chat"
	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/handlers"
	"github.com/parleychat/parley/internal/hub"
	"github.com/parleychat/parley/internal/store"
	"github.com/parleychat/parley/internal/ws"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := &config.Config{
		Env:            "development",
		JWTSecret:      "test-secret",
		AccessTokenTTL: time.Hour,
		PublicBaseURL:  "http://parley.test",
	}

	st := store.NewMemoryStore()
	registry := chat.NewRegistry(st)
	messageLog := chat.NewMessageLog(st)
	invites := chat.NewInvites(st, registry)
	eventHub := hub.NewHub(zerolog.Nop(), nil)

	h := handlers.NewHandler(st, nil, registry, messageLog, invites, eventHub, nil, cfg, zerolog.Nop())
	wsServer := ws.NewServer(st, nil, eventHub, messageLog, zerolog.Nop())

	srv := httptest.NewServer(NewRouter(zerolog.Nop(), cfg, st, nil, h, wsServer))
	t.Cleanup(srv.Close)
	return srv
}

// doJSON issues a request and decodes the JSON response into a generic map.
func doJSON(t *testing.T, srv *httptest.Server, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}
	return resp.StatusCode, decoded
}

// registerUser creates an account and returns its token and id.
func registerUser(t *testing.T, srv *httptest.Server, name string) (string, int64) {
	t.Helper()
	status, body := doJSON(t, srv, http.MethodPost, "/register", "", map[string]string{
		"username": name,
		"email":    name + "@example.com",
		"password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusCreated, status)
	token := body["token"].(string)
	user := body["user"].(map[string]interface{})
	return token, int64(user["id"].(float64))
}

func TestRegisterAndLogin(t *testing.T) {
	srv := newTestServer(t)

	token, _ := registerUser(t, srv, "alice")
	require.NotEmpty(t, token)

	// Duplicate registration conflicts.
	status, _ := doJSON(t, srv, http.MethodPost, "/register", "", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "hunter2hunter2",
	})
	assert.Equal(t, http.StatusConflict, status)

	status, body := doJSON(t, srv, http.MethodPost, "/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["token"])

	status, _ = doJSON(t, srv, http.MethodPost, "/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "wrong password",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRegisterValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"missing username", map[string]string{"email": "a@example.com", "password": "hunter2hunter2"}},
		{"bad email", map[string]string{"username": "a", "email": "nope", "password": "hunter2hunter2"}},
		{"short password", map[string]string{"username": "a", "email": "a@example.com", "password": "short"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := doJSON(t, srv, http.MethodPost, "/register", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
		})
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/users", "/rooms"} {
		status, _ := doJSON(t, srv, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, status, path)
	}

	status, _ := doJSON(t, srv, http.MethodGet, "/users", "not-a-real-token", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestPrivateChatFlow(t *testing.T) {
	srv := newTestServer(t)

	aliceToken, _ := registerUser(t, srv, "alice")
	bobToken, bobID := registerUser(t, srv, "bob")

	status, body := doJSON(t, srv, http.MethodPost, "/chats/private", aliceToken, map[string]int64{"user_id": bobID})
	require.Equal(t, http.StatusOK, status)
	room := body["room"].(map[string]interface{})
	roomID := int64(room["id"].(float64))
	assert.Equal(t, "private", room["type"])

	path := fmt.Sprintf("/rooms/%d/messages", roomID)
	status, body = doJSON(t, srv, http.MethodPost, path, aliceToken, map[string]string{"content": "hello bob"})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "hello bob", body["content"])

	// Blank content is dropped without an error.
	status, _ = doJSON(t, srv, http.MethodPost, path, aliceToken, map[string]string{"content": "   "})
	assert.Equal(t, http.StatusNoContent, status)

	status, body = doJSON(t, srv, http.MethodGet, path, bobToken, nil)
	require.Equal(t, http.StatusOK, status)
	msgs := body["messages"].([]interface{})
	require.Len(t, msgs, 1)

	// An outsider is shut out of both directions.
	malloryToken, _ := registerUser(t, srv, "mallory")
	status, _ = doJSON(t, srv, http.MethodGet, path, malloryToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = doJSON(t, srv, http.MethodPost, path, malloryToken, map[string]string{"content": "hi"})
	assert.Equal(t, http.StatusForbidden, status)
}

func TestStartPrivateChatByUsername(t *testing.T) {
	srv := newTestServer(t)

	aliceToken, _ := registerUser(t, srv, "alice")
	_, bobID := registerUser(t, srv, "bob")

	status, body := doJSON(t, srv, http.MethodPost, "/chats/private", aliceToken, map[string]string{"username": "bob"})
	require.Equal(t, http.StatusOK, status)
	room := body["room"].(map[string]interface{})
	roomID := int64(room["id"].(float64))

	// The handle resolves to the same room an id-based start would reach.
	status, body = doJSON(t, srv, http.MethodPost, "/chats/private", aliceToken, map[string]int64{"user_id": bobID})
	require.Equal(t, http.StatusOK, status)
	sameRoom := body["room"].(map[string]interface{})
	assert.Equal(t, float64(roomID), sameRoom["id"])

	status, _ = doJSON(t, srv, http.MethodPost, "/chats/private", aliceToken, map[string]string{"username": "nobody"})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = doJSON(t, srv, http.MethodPost, "/chats/private", aliceToken, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestGroupRoomLifecycle(t *testing.T) {
	srv := newTestServer(t)

	aliceToken, _ := registerUser(t, srv, "alice")
	bobToken, bobID := registerUser(t, srv, "bob")
	_, carolID := registerUser(t, srv, "carol")

	status, body := doJSON(t, srv, http.MethodPost, "/rooms", aliceToken, map[string]interface{}{
		"name":       "standup",
		"member_ids": []int64{bobID},
	})
	require.Equal(t, http.StatusCreated, status)
	roomID := int64(body["id"].(float64))

	// Any member may add others.
	status, body = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/rooms/%d/members", roomID), bobToken, map[string]interface{}{
		"member_ids": []int64{carolID},
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["added"])

	status, body = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/rooms/%d/members", roomID), aliceToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["members"].([]interface{}), 3)

	// Only the creator removes members.
	status, _ = doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/rooms/%d/members/%d", roomID, carolID), bobToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/rooms/%d/members/%d", roomID, carolID), aliceToken, nil)
	assert.Equal(t, http.StatusNoContent, status)

	// The creator cannot leave; members can.
	status, _ = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/rooms/%d/leave", roomID), aliceToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/rooms/%d/leave", roomID), bobToken, nil)
	assert.Equal(t, http.StatusNoContent, status)

	// Creator deletes; the room is gone.
	status, _ = doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/rooms/%d", roomID), aliceToken, nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/rooms/%d/members", roomID), aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestInviteFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	aliceToken, _ := registerUser(t, srv, "alice")
	_, bobID := registerUser(t, srv, "bob")
	carolToken, _ := registerUser(t, srv, "carol")

	status, body := doJSON(t, srv, http.MethodPost, "/rooms", aliceToken, map[string]interface{}{
		"name":       "standup",
		"member_ids": []int64{bobID},
	})
	require.Equal(t, http.StatusCreated, status)
	roomID := int64(body["id"].(float64))

	status, body = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/rooms/%d/invites", roomID), aliceToken, nil)
	require.Equal(t, http.StatusCreated, status)
	token := body["token"].(string)
	assert.Contains(t, body["link"], token)

	status, body = doJSON(t, srv, http.MethodPost, "/invites/"+token+"/redeem", carolToken, nil)
	require.Equal(t, http.StatusOK, status)
	room := body["room"].(map[string]interface{})
	assert.Equal(t, float64(roomID), room["id"])

	// Single use.
	status, _ = doJSON(t, srv, http.MethodPost, "/invites/"+token+"/redeem", carolToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestPrivateInviteFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	aliceToken, _ := registerUser(t, srv, "alice")
	bobToken, _ := registerUser(t, srv, "bob")

	status, body := doJSON(t, srv, http.MethodPost, "/invites/private", aliceToken, nil)
	require.Equal(t, http.StatusCreated, status)
	token := body["token"].(string)

	// Issuer following their own link is a no-op with a null room.
	status, body = doJSON(t, srv, http.MethodPost, "/invites/"+token+"/redeem", aliceToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Nil(t, body["room"])

	status, body = doJSON(t, srv, http.MethodPost, "/invites/"+token+"/redeem", bobToken, nil)
	require.Equal(t, http.StatusOK, status)
	room := body["room"].(map[string]interface{})
	assert.Equal(t, "private", room["type"])
}

func TestAssistantWithoutBackend(t *testing.T) {
	srv := newTestServer(t)

	aliceToken, _ := registerUser(t, srv, "alice")

	status, _ := doJSON(t, srv, http.MethodPost, "/assistant", aliceToken, map[string]string{"prompt": "hello"})
	assert.Equal(t, http.StatusBadGateway, status)

	status, _ = doJSON(t, srv, http.MethodPost, "/assistant", aliceToken, map[string]string{"prompt": "  "})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	status, body := doJSON(t, srv, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
}
