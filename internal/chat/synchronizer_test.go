package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heirloom-restoration/workshop/internal/apperr"
	"github.com/heirloom-restoration/workshop/internal/model"
	"github.com/heirloom-restoration/workshop/pkg/logger"
)

// fakeBackend is an in-memory chat.Backend. sendGate, when set, is called
// before a message is stored so tests can control response order.
type fakeBackend struct {
	mu            sync.Mutex
	conversations map[string]model.Conversation
	messages      map[string][]model.Message
	created       int
	listCalls     int
	markedRead    []string
	sendGate      func(req model.SendMessageRequest)
	failSend      error
	failList      error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		conversations: map[string]model.Conversation{},
		messages:      map[string][]model.Message{},
	}
}

func (f *fakeBackend) CreateConversation(_ context.Context, req model.StartConversationRequest) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	c := model.Conversation{
		ID:            uuid.NewString(),
		Title:         "Chat with " + req.Name,
		CustomerName:  req.Name,
		CustomerEmail: req.Email,
		Status:        model.StatusActive,
		Priority:      model.PriorityNormal,
		CreatedAt:     time.Now().UTC(),
	}
	f.conversations[c.ID] = c
	return &c, nil
}

func (f *fakeBackend) ListConversations(context.Context) ([]model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Conversation, 0, len(f.conversations))
	for _, c := range f.conversations {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeBackend) ListMessages(_ context.Context, id string) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.failList != nil {
		return nil, f.failList
	}
	return append([]model.Message(nil), f.messages[id]...), nil
}

func (f *fakeBackend) SendMessage(_ context.Context, id string, req model.SendMessageRequest) (*model.Message, error) {
	if f.sendGate != nil {
		f.sendGate(req)
	}
	if f.failSend != nil {
		return nil, f.failSend
	}
	m := model.Message{
		ID:             req.ID,
		ConversationID: id,
		SenderName:     req.SenderName,
		SenderID:       req.SenderID,
		Content:        req.Content,
		MessageType:    req.MessageType,
		CreatedAt:      *req.CreatedAt,
	}
	f.mu.Lock()
	f.messages[id] = append(f.messages[id], m)
	f.mu.Unlock()
	return &m, nil
}

func (f *fakeBackend) MarkRead(_ context.Context, id, viewerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedRead = append(f.markedRead, id)
	for i := range f.messages[id] {
		if f.messages[id][i].SenderID != viewerID {
			f.messages[id][i].IsRead = true
		}
	}
	return nil
}

func (f *fakeBackend) addMessage(m model.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[m.ConversationID] = append(f.messages[m.ConversationID], m)
}

func contents(msgs []model.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

func TestStartNewChat_Validation(t *testing.T) {
	b := newFakeBackend()
	s := New(b, logger.NewNop())

	_, err := s.StartNewChat(context.Background(), "", "x@example.com")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
	assert.Zero(t, b.created)

	_, err = s.StartNewChat(context.Background(), "Ada", "   ")
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
	assert.Zero(t, b.created)

	st := s.State()
	assert.Empty(t, st.Conversations)
	assert.NotEmpty(t, st.Error)
}

func TestStartNewChat_SetsCurrent(t *testing.T) {
	b := newFakeBackend()
	s := New(b, logger.NewNop())

	conv, err := s.StartNewChat(context.Background(), "Ada", "Ada@Example.com")
	require.NoError(t, err)

	st := s.State()
	require.NotNil(t, st.CurrentConversation)
	assert.Equal(t, conv.ID, st.CurrentConversation.ID)
	assert.True(t, st.IsOpen)
	assert.False(t, st.IsLoading)
	assert.Empty(t, st.Error)
	assert.Equal(t, "ada@example.com", s.Viewer().ID)
}

func TestSendMessage_RequiresContentAndConversation(t *testing.T) {
	b := newFakeBackend()
	s := New(b, logger.NewNop())
	ctx := context.Background()

	_, err := s.SendMessage(ctx, SendInput{Content: "hello"})
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	_, err = s.StartNewChat(ctx, "Ada", "ada@example.com")
	require.NoError(t, err)

	_, err = s.SendMessage(ctx, SendInput{Content: "  \n"})
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestSendMessage_KeepsCallOrderWhenResponsesReorder(t *testing.T) {
	b := newFakeBackend()
	s := New(b, logger.NewNop())
	ctx := context.Background()

	_, err := s.StartNewChat(ctx, "Ada", "ada@example.com")
	require.NoError(t, err)

	aReceived := make(chan struct{})
	bDone := make(chan struct{})
	b.sendGate = func(req model.SendMessageRequest) {
		if req.Content == "a" {
			close(aReceived)
			<-bDone
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := s.SendMessage(ctx, SendInput{Content: "a"})
		assert.NoError(t, err)
	}()

	<-aReceived
	_, err = s.SendMessage(ctx, SendInput{Content: "b"})
	require.NoError(t, err)

	// "b" is already applied while "a" is still in flight.
	assert.Equal(t, []string{"b"}, contents(s.State().CurrentConversation.Messages))

	close(bDone)
	wg.Wait()

	assert.Equal(t, []string{"a", "b"}, contents(s.State().CurrentConversation.Messages))
}

func TestSendMessage_StampsIncreasingTimes(t *testing.T) {
	b := newFakeBackend()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(b, logger.NewNop(), WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	_, err := s.StartNewChat(ctx, "Ada", "ada@example.com")
	require.NoError(t, err)

	first, err := s.SendMessage(ctx, SendInput{Content: "one"})
	require.NoError(t, err)
	second, err := s.SendMessage(ctx, SendInput{Content: "two"})
	require.NoError(t, err)

	assert.True(t, second.CreatedAt.After(first.CreatedAt))
	assert.Equal(t, "ada@example.com", first.SenderID)
}

func TestSendMessage_BackendError(t *testing.T) {
	b := newFakeBackend()
	s := New(b, logger.NewNop())
	ctx := context.Background()

	_, err := s.StartNewChat(ctx, "Ada", "ada@example.com")
	require.NoError(t, err)

	b.failSend = apperr.Database("failed to insert", errors.New("down"))
	_, err = s.SendMessage(ctx, SendInput{Content: "hi"})
	require.Error(t, err)

	st := s.State()
	assert.Equal(t, "failed to insert", st.Error)
	assert.Empty(t, st.CurrentConversation.Messages)
}

func TestSetCurrentConversation_LoadsOnceAndMarksRead(t *testing.T) {
	b := newFakeBackend()
	conv, err := b.CreateConversation(context.Background(), model.StartConversationRequest{Name: "Bo", Email: "bo@example.com"})
	require.NoError(t, err)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b.addMessage(model.Message{ID: "m2", ConversationID: conv.ID, SenderID: "bo@example.com", Content: "second", CreatedAt: base.Add(time.Minute)})
	b.addMessage(model.Message{ID: "m1", ConversationID: conv.ID, SenderID: "bo@example.com", Content: "first", CreatedAt: base})
	b.addMessage(model.Message{ID: "m3", ConversationID: conv.ID, SenderID: "staff-1", Content: "reply", CreatedAt: base.Add(2 * time.Minute)})

	s := New(b, logger.NewNop(), WithViewer(Viewer{ID: "staff-1", Name: "Staff"}))
	ctx := context.Background()

	require.NoError(t, s.SetCurrentConversation(ctx, *conv))

	st := s.State()
	require.NotNil(t, st.CurrentConversation)
	assert.Equal(t, []string{"first", "second", "reply"}, contents(st.CurrentConversation.Messages))
	assert.Zero(t, st.UnreadCount)
	assert.Equal(t, []string{conv.ID}, b.markedRead)

	require.NoError(t, s.SetCurrentConversation(ctx, *conv))
	assert.Equal(t, 1, b.listCalls)
	assert.Len(t, b.markedRead, 1)
}

func TestSendMessage_AfterFailedLoadKeepsMessage(t *testing.T) {
	b := newFakeBackend()
	conv, err := b.CreateConversation(context.Background(), model.StartConversationRequest{Name: "Bo", Email: "bo@example.com"})
	require.NoError(t, err)
	b.failList = errors.New("connection reset")

	s := New(b, logger.NewNop(), WithViewer(Viewer{ID: "bo@example.com", Name: "Bo"}))
	ctx := context.Background()
	require.Error(t, s.SetCurrentConversation(ctx, *conv))

	msg, err := s.SendMessage(ctx, SendInput{Content: "hello"})
	require.NoError(t, err)

	st := s.State()
	require.NotNil(t, st.CurrentConversation)
	require.Len(t, st.CurrentConversation.Messages, 1)
	assert.Equal(t, msg.ID, st.CurrentConversation.Messages[0].ID)
	require.NotNil(t, st.CurrentConversation.LastMessageAt)
	assert.Equal(t, msg.CreatedAt, *st.CurrentConversation.LastMessageAt)

	b.failList = nil
	require.NoError(t, s.SetCurrentConversation(ctx, *conv))
	assert.Equal(t, []string{"hello"}, contents(s.State().CurrentConversation.Messages))
}

func TestApply_DeduplicatesAndCountsUnread(t *testing.T) {
	b := newFakeBackend()
	s := New(b, logger.NewNop())
	ctx := context.Background()

	conv, err := s.StartNewChat(ctx, "Ada", "ada@example.com")
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reply := model.Message{ID: "r1", ConversationID: conv.ID, SenderID: "staff-1", Content: "hello", CreatedAt: base}
	s.Apply(reply)
	s.Apply(reply)
	s.Apply(model.Message{ID: "other", ConversationID: "unknown", Content: "dropped"})

	st := s.State()
	assert.Len(t, st.CurrentConversation.Messages, 1)
	assert.Equal(t, 1, st.UnreadCount)
	require.NotNil(t, st.CurrentConversation.LastMessageAt)
	assert.True(t, st.CurrentConversation.LastMessageAt.Equal(base))

	s.ApplyEvent(model.ChatEvent{Type: model.EventMessagesRead, ConversationID: conv.ID, ViewerID: "ada@example.com"})
	assert.Zero(t, s.State().UnreadCount)
}

func TestRefresh_MarksVisibleConversationRead(t *testing.T) {
	b := newFakeBackend()
	s := New(b, logger.NewNop())
	ctx := context.Background()

	conv, err := s.StartNewChat(ctx, "Ada", "ada@example.com")
	require.NoError(t, err)
	b.addMessage(model.Message{ID: "r1", ConversationID: conv.ID, SenderID: "staff-1", Content: "hello", CreatedAt: time.Now()})

	s.ToggleMinimize()
	require.NoError(t, s.Refresh(ctx))
	assert.Equal(t, 1, s.State().UnreadCount)

	s.ToggleMinimize()
	require.NoError(t, s.Refresh(ctx))
	assert.Zero(t, s.State().UnreadCount)
	assert.Equal(t, []string{conv.ID}, b.markedRead)
}

func TestWidgetToggles(t *testing.T) {
	s := New(newFakeBackend(), logger.NewNop())

	var snapshots []State
	unsubscribe := s.Subscribe(func(st State) { snapshots = append(snapshots, st) })

	s.ToggleChat()
	assert.True(t, s.State().IsOpen)
	s.ToggleMinimize()
	assert.True(t, s.State().IsMinimized)
	s.ToggleChat()
	assert.False(t, s.State().IsOpen)
	s.ToggleChat()
	assert.False(t, s.State().IsMinimized)
	s.CloseChat()
	assert.False(t, s.State().IsOpen)

	unsubscribe()
	s.ToggleChat()
	assert.Len(t, snapshots, 5)
}

func TestPoll_StopsOnCancel(t *testing.T) {
	s := New(newFakeBackend(), logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Poll(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Poll did not return after cancel")
	}
}

func TestMergeMessages(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	existing := []model.Message{
		{ID: "b", Content: "b", CreatedAt: base.Add(time.Second), IsRead: true},
		{ID: "a", Content: "a", CreatedAt: base},
	}
	incoming := []model.Message{
		{ID: "c", Content: "c", CreatedAt: base.Add(time.Second)},
		{ID: "b", Content: "b", CreatedAt: base.Add(time.Second)},
	}

	merged := MergeMessages(existing, incoming)
	assert.Equal(t, []string{"a", "b", "c"}, contents(merged))
	assert.True(t, merged[1].IsRead)

	again := MergeMessages(merged, incoming)
	assert.Equal(t, merged, again)
}
