package handler_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/codefile/internal/handler"
	"github.com/sakif/codefile/internal/model"
	"github.com/sakif/codefile/internal/pubsub"
	"github.com/sakif/codefile/internal/repository/sqlite"
	"github.com/sakif/codefile/internal/service"
)

// liveTestStack is everything the WebSocket bridge test needs: a real HTTP
// server (the recorder can't hijack connections, so httptest.Server it is),
// a miniredis-backed broker, and the service to drive mutations through.
type liveTestStack struct {
	server  *httptest.Server
	service *service.SnippetService
}

func newLiveStack(t *testing.T) *liveTestStack {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	mr := miniredis.RunT(t)
	broker, err := pubsub.NewRedisBroker(context.Background(), mr.Addr(), "", logger)
	require.NoError(t, err)
	t.Cleanup(func() { broker.Close() })

	svc := service.NewSnippetService(db, broker, logger)
	live := handler.NewLiveHandler(svc, broker, logger)

	router := chi.NewRouter()
	router.Get("/api/snippets/{id}/live", live.HandleLive)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &liveTestStack{server: srv, service: svc}
}

func (s *liveTestStack) wsURL(id string) string {
	return strings.Replace(s.server.URL, "http://", "ws://", 1) + "/api/snippets/" + id + "/live"
}

func strp(s string) *string { return &s }

func TestHandleLive_StreamsDeltas(t *testing.T) {
	stack := newLiveStack(t)

	snippet, err := stack.service.Create(context.Background(), model.SnippetPatch{})
	require.NoError(t, err)

	conn, resp, err := websocket.DefaultDialer.Dial(stack.wsURL(snippet.ID), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	// A mutation through the gateway must surface on the socket.
	_, err = stack.service.Update(context.Background(), snippet.ID, model.SnippetPatch{
		Code:     strp("updated over http"),
		Language: strp("go"),
	})
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev pubsub.Event
	require.NoError(t, conn.ReadJSON(&ev))

	assert.Equal(t, pubsub.EventCodeUpdate, ev.Event)

	var delta pubsub.Delta
	require.NoError(t, json.Unmarshal(ev.Data, &delta))
	assert.Equal(t, "updated over http", delta.Code)
	assert.Equal(t, "go", delta.Language)
}

func TestHandleLive_TwoSocketsSeeTheSameDelta(t *testing.T) {
	stack := newLiveStack(t)

	snippet, err := stack.service.Create(context.Background(), model.SnippetPatch{})
	require.NoError(t, err)

	dial := func() *websocket.Conn {
		conn, resp, err := websocket.DefaultDialer.Dial(stack.wsURL(snippet.ID), nil)
		require.NoError(t, err)
		resp.Body.Close()
		t.Cleanup(func() { conn.Close() })
		return conn
	}

	conn1 := dial()
	conn2 := dial()

	_, err = stack.service.Update(context.Background(), snippet.ID, model.SnippetPatch{Code: strp("shared")})
	require.NoError(t, err)

	for _, conn := range []*websocket.Conn{conn1, conn2} {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var ev pubsub.Event
		require.NoError(t, conn.ReadJSON(&ev))

		var delta pubsub.Delta
		require.NoError(t, json.Unmarshal(ev.Data, &delta))
		assert.Equal(t, "shared", delta.Code)
	}
}

func TestHandleLive_UnknownSnippet(t *testing.T) {
	stack := newLiveStack(t)

	conn, resp, err := websocket.DefaultDialer.Dial(stack.wsURL("does-not-exist"), nil)
	if conn != nil {
		conn.Close()
	}

	// The handler 404s before upgrading, so the handshake must fail.
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
