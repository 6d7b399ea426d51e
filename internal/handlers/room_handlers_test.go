package handlers_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dotchat/internal/chat"
	"dotchat/internal/handlers"
)

func newApp(t *testing.T) *fiber.App {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := chat.NewRegistry(logger, chat.Options{
		HeartbeatInterval: time.Hour,
		IdleTimeout:       time.Hour,
	})
	t.Cleanup(registry.Close)

	h := handlers.New(registry, 10*time.Second)
	app := fiber.New()
	app.Post("/rooms/:id", h.CreateRoom)
	app.Get("/rooms/:id/ping", h.Ping)
	app.Get("/rooms/:id", h.Poll)
	app.Post("/rooms/:id/players", h.Join)
	app.Delete("/rooms/:id/players", h.Leave)
	app.Post("/rooms/:id/messages", h.PostMessage)
	app.Post("/rooms/:id/channels", h.OpenChannel)
	app.Delete("/rooms/:id/channels", h.CloseChannel)
	app.Get("/rooms/:id/channels/:channelId", h.Snoop)
	return app
}

func do(t *testing.T, app *fiber.App, method, target, body string, header ...string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	return resp
}

func decodePayload(t *testing.T, resp *http.Response) chat.PollPayload {
	t.Helper()
	var payload chat.PollPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload
}

func TestCreateRoomHTTP(t *testing.T) {
	app := newApp(t)

	assert.Equal(t, 201, do(t, app, "POST", "/rooms/alpha", "").StatusCode)
	assert.Equal(t, 409, do(t, app, "POST", "/rooms/alpha", "").StatusCode)
	assert.Equal(t, 400, do(t, app, "POST", "/rooms/bad_name", "").StatusCode)
}

func TestJoinLeaveHTTP(t *testing.T) {
	app := newApp(t)
	do(t, app, "POST", "/rooms/alpha", "")

	assert.Equal(t, 409, do(t, app, "POST", "/rooms/nowhere/players", "bob").StatusCode)
	assert.Equal(t, 201, do(t, app, "POST", "/rooms/alpha/players", "bob").StatusCode)
	assert.Equal(t, 409, do(t, app, "POST", "/rooms/alpha/players", "bob").StatusCode)

	assert.Equal(t, 200, do(t, app, "DELETE", "/rooms/alpha/players", "bob").StatusCode)
	// the emptied room is gone
	assert.Equal(t, 409, do(t, app, "DELETE", "/rooms/alpha/players", "bob").StatusCode)
}

func TestRosterPreviewHTTP(t *testing.T) {
	app := newApp(t)
	do(t, app, "POST", "/rooms/alpha", "")
	do(t, app, "POST", "/rooms/alpha/players", "bob")
	do(t, app, "POST", "/rooms/alpha/players", "amy")

	resp := do(t, app, "GET", "/rooms/alpha", "")
	require.Equal(t, 200, resp.StatusCode)
	payload := decodePayload(t, resp)
	assert.Equal(t, chat.PayloadRoster, payload.Type)
	assert.Equal(t, []string{"amy", "bob"}, payload.Players)

	assert.Equal(t, 409, do(t, app, "GET", "/rooms/nowhere", "").StatusCode)
}

func TestPingHTTP(t *testing.T) {
	app := newApp(t)
	do(t, app, "POST", "/rooms/alpha", "")

	assert.Equal(t, 200, do(t, app, "GET", "/rooms/alpha/ping", "").StatusCode)
	assert.Equal(t, 409, do(t, app, "GET", "/rooms/nowhere/ping", "").StatusCode)
}

// The canonical flow: two players join, one posts to everyone, the other
// sees the alert first and the message on the next read.
func TestBroadcastScenarioHTTP(t *testing.T) {
	app := newApp(t)
	do(t, app, "POST", "/rooms/alpha", "")
	require.Equal(t, 201, do(t, app, "POST", "/rooms/alpha/players", "bob").StatusCode)
	require.Equal(t, 201, do(t, app, "POST", "/rooms/alpha/players", "amy").StatusCode)

	// bob's pending PLAYER_JOIN alert for amy comes out first
	resp := do(t, app, "GET", "/rooms/alpha?from=bob&channels=public:2", "")
	require.Equal(t, 200, resp.StatusCode)
	payload := decodePayload(t, resp)
	require.Equal(t, chat.PayloadAlert, payload.Type)
	require.Len(t, payload.Alerts, 1)
	assert.Equal(t, chat.AlertPlayerJoin, payload.Alerts[0].Code)
	assert.Equal(t, "amy", payload.Alerts[0].Name)

	require.Equal(t, 201,
		do(t, app, "POST", "/rooms/alpha/messages", `{"text":"hi","from":"amy","to":"everyone","kind":"HUMAN"}`).StatusCode)

	// cursor 2 skips the two join messages
	resp = do(t, app, "GET", "/rooms/alpha?from=bob&channels=public:2", "")
	require.Equal(t, 200, resp.StatusCode)
	payload = decodePayload(t, resp)
	require.Equal(t, chat.PayloadNewMessages, payload.Type)
	messages := payload.Channels["public"]
	require.Len(t, messages, 1)
	assert.Equal(t, "hi", messages[0].Text)
	assert.Equal(t, "amy", messages[0].From)

	// nothing new and no wait budget: 204
	resp = do(t, app, "GET", "/rooms/alpha?from=bob&channels=public:3", "")
	assert.Equal(t, 204, resp.StatusCode)
}

func TestParkedPollWakesOnMessage(t *testing.T) {
	app := newApp(t)
	do(t, app, "POST", "/rooms/alpha", "")
	do(t, app, "POST", "/rooms/alpha/players", "bob")
	do(t, app, "POST", "/rooms/alpha/players", "amy")
	// consume bob's join alert
	do(t, app, "GET", "/rooms/alpha?from=bob", "")

	type result struct {
		resp *http.Response
		err  error
	}
	got := make(chan result, 1)
	go func() {
		req := httptest.NewRequest("GET", "/rooms/alpha?from=bob&channels=public:2", nil)
		req.Header.Set("Prefer", "wait=3")
		resp, err := app.Test(req, 5000)
		got <- result{resp, err}
	}()

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 201,
		do(t, app, "POST", "/rooms/alpha/messages", `{"text":"hi","from":"amy","to":"everyone","kind":"HUMAN"}`).StatusCode)

	select {
	case r := <-got:
		require.NoError(t, r.err)
		require.Equal(t, 200, r.resp.StatusCode)
		payload := decodePayload(t, r.resp)
		require.Equal(t, chat.PayloadNewMessages, payload.Type)
		require.Len(t, payload.Channels["public"], 1)
		assert.Equal(t, "hi", payload.Channels["public"][0].Text)
	case <-time.After(4 * time.Second):
		t.Fatal("parked poll never resolved")
	}
}

func TestParkedPollTimesOut(t *testing.T) {
	app := newApp(t)
	do(t, app, "POST", "/rooms/alpha", "")
	do(t, app, "POST", "/rooms/alpha/players", "bob")

	resp := do(t, app, "GET", "/rooms/alpha?from=bob&channels=public:1", "", "Prefer", "wait=1")
	assert.Equal(t, 204, resp.StatusCode)
}

func TestPrivateChannelHTTP(t *testing.T) {
	app := newApp(t)
	do(t, app, "POST", "/rooms/alpha", "")
	do(t, app, "POST", "/rooms/alpha/players", "bob")
	do(t, app, "POST", "/rooms/alpha/players", "amy")

	assert.Equal(t, 201, do(t, app, "POST", "/rooms/alpha/channels?from=bob&to=amy", "").StatusCode)
	assert.Equal(t, 409, do(t, app, "POST", "/rooms/alpha/channels?from=amy&to=bob", "").StatusCode)
	assert.Equal(t, 409, do(t, app, "POST", "/rooms/alpha/channels?from=bob&to=nobody", "").StatusCode)

	// private traffic reaches the pair channel, not public
	require.Equal(t, 201,
		do(t, app, "POST", "/rooms/alpha/messages", `{"text":"psst","from":"bob","to":"amy","kind":"HUMAN"}`).StatusCode)
	resp := do(t, app, "GET", "/rooms/alpha?from=amy&channels=amy|bob:0,public:2", "")
	require.Equal(t, 200, resp.StatusCode)
	payload := decodePayload(t, resp)
	// skip amy's pending NEW_CHANNEL alert if it came first
	if payload.Type == chat.PayloadAlert {
		resp = do(t, app, "GET", "/rooms/alpha?from=amy&channels=amy|bob:0,public:2", "")
		require.Equal(t, 200, resp.StatusCode)
		payload = decodePayload(t, resp)
	}
	require.Equal(t, chat.PayloadNewMessages, payload.Type)
	require.Len(t, payload.Channels["amy|bob"], 1)
	assert.Equal(t, "psst", payload.Channels["amy|bob"][0].Text)
	assert.Empty(t, payload.Channels["public"])

	assert.Equal(t, 201, do(t, app, "DELETE", "/rooms/alpha/channels?from=amy&to=bob", "").StatusCode)
	assert.Equal(t, 409, do(t, app, "DELETE", "/rooms/alpha/channels?from=bob&to=amy", "").StatusCode)
}

func TestSnoopHTTP(t *testing.T) {
	app := newApp(t)
	do(t, app, "POST", "/rooms/alpha", "")
	do(t, app, "POST", "/rooms/alpha/players", "bob")
	do(t, app, "POST", "/rooms/alpha/players", "amy")
	do(t, app, "POST", "/rooms/alpha/players", "eve")
	do(t, app, "POST", "/rooms/alpha/channels?from=bob&to=amy", "")

	assert.Equal(t, 201, do(t, app, "GET", "/rooms/alpha/channels/amy|bob?from=eve", "").StatusCode)
	assert.Equal(t, 409, do(t, app, "GET", "/rooms/alpha/channels/nochannel?from=eve", "").StatusCode)
}

func TestMalformedInputsHTTP(t *testing.T) {
	app := newApp(t)
	do(t, app, "POST", "/rooms/alpha", "")
	do(t, app, "POST", "/rooms/alpha/players", "bob")

	assert.Equal(t, 400, do(t, app, "GET", "/rooms/alpha?from=bob&channels=public", "").StatusCode)
	assert.Equal(t, 400, do(t, app, "POST", "/rooms/alpha/messages", "not json").StatusCode)
	assert.Equal(t, 400, do(t, app, "POST", "/rooms/alpha/players", "no spaces").StatusCode)
}
