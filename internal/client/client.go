// Package client talks to the workshop API over HTTP. Client implements
// chat.Backend so a Synchronizer can run against a remote server.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/heirloom-restoration/workshop/internal/apperr"
	"github.com/heirloom-restoration/workshop/internal/cache"
	"github.com/heirloom-restoration/workshop/internal/chat"
	"github.com/heirloom-restoration/workshop/internal/model"
	"github.com/heirloom-restoration/workshop/internal/retry"
	"github.com/heirloom-restoration/workshop/pkg/logger"
)

// Client is an API client. With an admin token it acts as staff: it sees
// every conversation and replies through the admin routes. Without one it
// acts as a customer of the conversations it was handed.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	retry      retry.Config
	logger     *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the admin bearer token.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetry sets how idempotent reads are retried.
func WithRetry(cfg retry.Config) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithLogger sets the client logger.
func WithLogger(log *logger.Logger) Option {
	return func(c *Client) {
		c.logger = log
	}
}

// New creates a client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      retry.Config{MaxAttempts: 3, Delay: 500 * time.Millisecond},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.OrGlobal(c.logger).Named("client")
	return c
}

// IsStaff reports whether the client carries an admin token.
func (c *Client) IsStaff() bool {
	return c.token != ""
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable at %s: %w", c.baseURL, err)
	}
	return resp, nil
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	_, err := retry.Do(ctx, c.retry, "client.get", c.logger, func(ctx context.Context) (struct{}, error) {
		resp, err := c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, decodeJSON(resp, v)
	})
	return err
}

func (c *Client) post(ctx context.Context, path string, body, v any) error {
	resp, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	return decodeJSON(resp, v)
}

func (c *Client) delete(ctx context.Context, path string, v any) error {
	resp, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	return decodeJSON(resp, v)
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// decodeJSON decodes a success body into v, or turns the error envelope
// into an *apperr.Error.
func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
		}
		var body errorBody
		if json.Unmarshal(data, &body) != nil || body.Code == "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return apperr.Wrap(apperr.Code(body.Code), body.Error, fmt.Errorf("server returned %d", resp.StatusCode))
	}
	if v == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func conversationPath(id string) string {
	return "/api/v1/chat/conversations/" + url.PathEscape(id)
}

func adminConversationPath(id string) string {
	return "/api/v1/admin/conversations/" + url.PathEscape(id)
}

// CreateConversation implements chat.Backend.
func (c *Client) CreateConversation(ctx context.Context, req model.StartConversationRequest) (*model.Conversation, error) {
	var conv model.Conversation
	if err := c.post(ctx, "/api/v1/chat/conversations", req, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListConversations implements chat.Backend. Customers cannot list
// conversations, so without a token it reports none.
func (c *Client) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	if !c.IsStaff() {
		return nil, nil
	}

	var resp model.ListConversationsResponse
	if err := c.get(ctx, "/api/v1/admin/conversations", &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// ListMessages implements chat.Backend.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var resp model.ListMessagesResponse
	if err := c.get(ctx, conversationPath(conversationID)+"/messages", &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// SendMessage implements chat.Backend.
func (c *Client) SendMessage(ctx context.Context, conversationID string, req model.SendMessageRequest) (*model.Message, error) {
	path := conversationPath(conversationID) + "/messages"
	if c.IsStaff() {
		path = adminConversationPath(conversationID) + "/messages"
	}

	var msg model.Message
	if err := c.post(ctx, path, req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkRead implements chat.Backend.
func (c *Client) MarkRead(ctx context.Context, conversationID, viewerID string) error {
	if c.IsStaff() {
		return c.post(ctx, adminConversationPath(conversationID)+"/read", nil, nil)
	}
	return c.post(ctx, conversationPath(conversationID)+"/read", model.MarkReadRequest{ViewerID: viewerID}, nil)
}

// InvalidateCache drops server cache entries whose key contains substr, or
// every entry when substr is empty. It returns the number removed, or -1
// when the whole cache was cleared.
func (c *Client) InvalidateCache(ctx context.Context, substr string) (int, error) {
	path := "/api/v1/admin/cache"
	if substr != "" {
		path += "?contains=" + url.QueryEscape(substr)
	}

	var resp struct {
		Removed int  `json:"removed"`
		Cleared bool `json:"cleared"`
	}
	if err := c.delete(ctx, path, &resp); err != nil {
		return 0, err
	}
	if resp.Cleared {
		return -1, nil
	}
	return resp.Removed, nil
}

// CacheStats reports the server cache counters.
func (c *Client) CacheStats(ctx context.Context) (cache.Stats, error) {
	var stats cache.Stats
	err := c.get(ctx, "/api/v1/admin/cache", &stats)
	return stats, err
}

// Watch streams chat events until ctx ends or the server closes the stream.
// An empty conversationID watches every conversation and needs a token.
func (c *Client) Watch(ctx context.Context, conversationID string, fn func(model.ChatEvent)) error {
	path := "/api/v1/admin/stream"
	if conversationID != "" {
		path = conversationPath(conversationID) + "/stream"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	// The stream outlives any request timeout.
	hc := *c.httpClient
	hc.Timeout = 0
	resp, err := hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("server not reachable at %s: %w", c.baseURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		return decodeJSON(resp, nil)
	}
	defer resp.Body.Close()

	err = readEvents(resp.Body, func(event, data string) {
		switch model.EventType(event) {
		case model.EventMessageCreated, model.EventMessagesRead, model.EventConversation:
		default:
			return
		}
		var ev model.ChatEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			c.logger.Warn("skipping malformed event", zap.String("event", event), zap.Error(err))
			return
		}
		fn(ev)
	})
	if ctx.Err() != nil {
		return nil
	}
	if err == nil {
		err = errors.New("stream closed by server")
	}
	return err
}

// readEvents parses a server-sent event stream, calling fn once per event.
func readEvents(r io.Reader, fn func(event, data string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var event string
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				fn(event, strings.Join(data, "\n"))
			}
			event, data = "", nil
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return scanner.Err()
}

var _ chat.Backend = (*Client)(nil)
