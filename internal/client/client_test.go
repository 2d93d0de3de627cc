package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heirloom-restoration/workshop/internal/apperr"
	"github.com/heirloom-restoration/workshop/internal/model"
	"github.com/heirloom-restoration/workshop/internal/retry"
	"github.com/heirloom-restoration/workshop/pkg/logger"
)

const convID = "0190c6f2-0000-7000-8000-000000000001"

func newTestClient(t *testing.T, h http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts = append([]Option{
		WithLogger(logger.NewNop()),
		WithRetry(retry.Config{MaxAttempts: 2, Delay: time.Millisecond}),
	}, opts...)
	return New(srv.URL, opts...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestCreateConversation(t *testing.T) {
	var got model.StartConversationRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/chat/conversations", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusCreated, model.Conversation{ID: convID, CustomerEmail: "ada@example.com"})
	}))

	conv, err := c.CreateConversation(context.Background(), model.StartConversationRequest{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, convID, conv.ID)
	assert.Equal(t, "Ada", got.Name)
}

func TestErrorEnvelopeBecomesCodedError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"success": false,
			"error":   "too many requests, please try again later",
			"code":    "RATE_LIMITED",
		})
	}))

	_, err := c.CreateConversation(context.Background(), model.StartConversationRequest{Name: "Ada", Email: "ada@example.com"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeRateLimited))
	assert.Equal(t, "too many requests, please try again later", apperr.Message(err))
}

func TestListConversationsWithoutToken(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))

	convs, err := c.ListConversations(context.Background())
	require.NoError(t, err)
	assert.Nil(t, convs)
	assert.Zero(t, calls.Load())
}

func TestStaffUsesAdminRoutes(t *testing.T) {
	var paths []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer admin-token", r.Header.Get("Authorization"))
		paths = append(paths, r.Method+" "+r.URL.Path)
		switch r.URL.Path {
		case "/api/v1/admin/conversations":
			writeJSON(w, http.StatusOK, model.ListConversationsResponse{
				Conversations: []model.Conversation{{ID: convID}},
				Total:         1,
			})
		case "/api/v1/admin/conversations/" + convID + "/messages":
			writeJSON(w, http.StatusCreated, model.Message{ID: "m1", ConversationID: convID})
		case "/api/v1/admin/conversations/" + convID + "/read":
			writeJSON(w, http.StatusOK, map[string]int{"marked": 1})
		default:
			http.NotFound(w, r)
		}
	}), WithToken("admin-token"))

	ctx := context.Background()
	convs, err := c.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)

	_, err = c.SendMessage(ctx, convID, model.SendMessageRequest{Content: "hi"})
	require.NoError(t, err)
	require.NoError(t, c.MarkRead(ctx, convID, "staff-1"))

	assert.Equal(t, []string{
		"GET /api/v1/admin/conversations",
		"POST /api/v1/admin/conversations/" + convID + "/messages",
		"POST /api/v1/admin/conversations/" + convID + "/read",
	}, paths)
}

func TestCustomerMarkReadSendsViewer(t *testing.T) {
	var got model.MarkReadRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chat/conversations/"+convID+"/read", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, map[string]int{"marked": 2})
	}))

	require.NoError(t, c.MarkRead(context.Background(), convID, "ada@example.com"))
	assert.Equal(t, "ada@example.com", got.ViewerID)
}

func TestListMessagesRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": "failed to read messages", "code": "DATABASE_ERROR"})
			return
		}
		writeJSON(w, http.StatusOK, model.ListMessagesResponse{Messages: []model.Message{{ID: "m1"}, {ID: "m2"}}})
	}))

	msgs, err := c.ListMessages(context.Background(), convID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.EqualValues(t, 2, calls.Load())
}

func TestListMessagesDoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "conversation not found", "code": "NOT_FOUND"})
	}))

	_, err := c.ListMessages(context.Background(), convID)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	assert.EqualValues(t, 1, calls.Load())
}

func TestInvalidateCache(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		if contains := r.URL.Query().Get("contains"); contains != "" {
			writeJSON(w, http.StatusOK, map[string]any{"removed": 3, "contains": contains})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
	}), WithToken("admin-token"))

	n, err := c.InvalidateCache(context.Background(), "portfolio")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = c.InvalidateCache(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, -1, n)
}

func TestWatch(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chat/conversations/"+convID+"/stream", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: connected\ndata: {}\n\n")
		fmt.Fprint(w, "event: heartbeat\ndata: {\"timestamp\":\"2026-01-01T00:00:00Z\"}\n\n")
		fmt.Fprintf(w, "id: e1\nevent: message.created\ndata: {\"id\":\"e1\",\"type\":\"message.created\",\"conversation_id\":%q,\"message\":{\"id\":\"m1\",\"content\":\"hello\"}}\n\n", convID)
		fmt.Fprint(w, "event: message.created\ndata: not-json\n\n")
	}))

	var got []model.ChatEvent
	err := c.Watch(context.Background(), convID, func(ev model.ChatEvent) {
		got = append(got, ev)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream closed")

	require.Len(t, got, 1)
	assert.Equal(t, model.EventMessageCreated, got[0].Type)
	require.NotNil(t, got[0].Message)
	assert.Equal(t, "hello", got[0].Message.Content)
}

func TestWatchStopsOnCancel(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: connected\ndata: {}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Watch(ctx, convID, func(model.ChatEvent) {})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatchUnknownConversation(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "conversation not found", "code": "NOT_FOUND"})
	}))

	err := c.Watch(context.Background(), convID, func(model.ChatEvent) {})
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}
