package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	"github.com/scrypster/forumlens/internal/notify"
	"github.com/scrypster/forumlens/web/handlers"
)

func upgradeRequest(origin, user string) *http.Request {
	req := httptest.NewRequest("GET", "/api/events", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	return req
}

func TestWebSocketHub_ValidatesOrigin(t *testing.T) {
	hub := handlers.NewWebSocketHub(nil, "", []string{"*.forumlens.test"})
	defer hub.Stop()

	w := httptest.NewRecorder()
	hub.ServeHTTP(w, upgradeRequest("http://evil.com", "1"))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Forbidden")
}

func TestWebSocketHub_RejectsAnonymous(t *testing.T) {
	hub := handlers.NewWebSocketHub(nil, "", nil)
	defer hub.Stop()

	w := httptest.NewRecorder()
	hub.ServeHTTP(w, upgradeRequest("", ""))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "not signed in")
}

func TestWebSocketHub_PublishScopesByUser(t *testing.T) {
	hub := handlers.NewWebSocketHub(nil, "", nil)
	go hub.Run()
	defer hub.Stop()

	mine := &handlers.MockClient{SendChan: make(chan []byte, 4), UserID: 1}
	theirs := &handlers.MockClient{SendChan: make(chan []byte, 4), UserID: 2}
	hub.Register(mine)
	hub.Register(theirs)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Publish(notify.Event{Type: notify.UploadCommitted, UserID: 1, UploadID: 9, Posts: 3}))

	select {
	case msg := <-mine.SendChan:
		var evt notify.Event
		require.NoError(t, json.Unmarshal(msg, &evt))
		assert.Equal(t, notify.UploadCommitted, evt.Type)
		assert.Equal(t, int64(9), evt.UploadID)
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for broadcast message")
	}

	// The hub handles events in order, so user 2 would have received it by now.
	require.NoError(t, hub.Publish(notify.Event{Type: notify.UploadPurged, UserID: 1}))
	<-mine.SendChan
	assert.Empty(t, theirs.SendChan)
}

func TestWebSocketHub_DropsSlowClients(t *testing.T) {
	hub := handlers.NewWebSocketHub(nil, "", nil)
	go hub.Run()
	defer hub.Stop()

	slow := &handlers.MockClient{SendChan: make(chan []byte), UserID: 1}
	hub.Register(slow)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Publish(notify.Event{Type: notify.UploadCommitted, UserID: 1}))
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestWebSocketHub_EndToEnd(t *testing.T) {
	hub := handlers.NewWebSocketHub(nil, "", nil)
	go hub.Run()
	defer hub.Stop()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{ //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		HTTPHeader: http.Header{"X-User-ID": []string{"5"}},
	})
	require.NoError(t, err)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }() //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, hub.Publish(notify.Event{Type: notify.UploadStatusChanged, UserID: 5, UploadID: 2, Status: "archived"}))

	_, data, err := conn.Read(ctx) //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	require.NoError(t, err)
	var evt notify.Event
	require.NoError(t, json.Unmarshal(data, &evt))
	assert.Equal(t, notify.UploadStatusChanged, evt.Type)
	assert.Equal(t, "archived", evt.Status)
}
