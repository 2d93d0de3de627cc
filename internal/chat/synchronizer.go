package chat

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/heirloom-restoration/workshop/internal/apperr"
	"github.com/heirloom-restoration/workshop/internal/model"
	"github.com/heirloom-restoration/workshop/pkg/logger"
)

type conversationState struct {
	conv     model.Conversation
	messages []model.Message
	loaded   bool
}

// Synchronizer holds conversations, the open conversation and widget state,
// and reconciles updates from the backend into them. It is safe for
// concurrent use; subscribers are notified after every change.
type Synchronizer struct {
	backend Backend
	logger  *logger.Logger
	now     func() time.Time

	mu            sync.Mutex
	viewer        Viewer
	isOpen        bool
	isMinimized   bool
	isLoading     bool
	lastErr       string
	conversations map[string]*conversationState
	currentID     string
	lastStamp     time.Time

	subMu   sync.Mutex
	nextSub int
	subs    map[int]func(State)
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithClock overrides the time source used to stamp outgoing messages.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) {
		s.now = now
	}
}

// WithViewer sets who the synchronizer acts for. StartNewChat replaces it.
func WithViewer(v Viewer) Option {
	return func(s *Synchronizer) {
		s.viewer = v
	}
}

// New creates a Synchronizer over backend.
func New(backend Backend, log *logger.Logger, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		backend:       backend,
		logger:        logger.OrGlobal(log).Named("chat"),
		now:           time.Now,
		conversations: make(map[string]*conversationState),
		subs:          make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers fn to receive a snapshot after every change.
func (s *Synchronizer) Subscribe(fn func(State)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Synchronizer) notify() {
	s.subMu.Lock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	if len(fns) == 0 {
		return
	}

	st := s.State()
	for _, fn := range fns {
		fn(st)
	}
}

// State returns a copy of the current state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		IsOpen:        s.isOpen,
		IsMinimized:   s.isMinimized,
		IsLoading:     s.isLoading,
		Error:         s.lastErr,
		Conversations: make([]model.Conversation, 0, len(s.conversations)),
	}
	for _, cs := range s.conversations {
		c := s.snapshot(cs)
		st.UnreadCount += c.UnreadCount
		st.Conversations = append(st.Conversations, c)
		if cs.conv.ID == s.currentID {
			cur := c
			st.CurrentConversation = &cur
		}
	}
	sort.Slice(st.Conversations, func(i, j int) bool {
		ai, aj := activity(st.Conversations[i]), activity(st.Conversations[j])
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return st.Conversations[i].ID < st.Conversations[j].ID
	})
	return st
}

// Viewer returns who the synchronizer acts for.
func (s *Synchronizer) Viewer() Viewer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewer
}

func (s *Synchronizer) snapshot(cs *conversationState) model.Conversation {
	c := cs.conv
	c.Messages = append([]model.Message(nil), cs.messages...)
	if cs.loaded {
		c.UnreadCount = unreadFor(cs.messages, s.viewer.ID)
	}
	return c
}

func activity(c model.Conversation) time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

// ToggleChat opens or closes the widget. Opening restores a minimized widget.
func (s *Synchronizer) ToggleChat() {
	s.mu.Lock()
	s.isOpen = !s.isOpen
	if s.isOpen {
		s.isMinimized = false
	}
	s.mu.Unlock()
	s.notify()
}

// CloseChat closes the widget.
func (s *Synchronizer) CloseChat() {
	s.mu.Lock()
	s.isOpen = false
	s.isMinimized = false
	s.mu.Unlock()
	s.notify()
}

// ToggleMinimize minimizes or restores the widget.
func (s *Synchronizer) ToggleMinimize() {
	s.mu.Lock()
	s.isMinimized = !s.isMinimized
	s.mu.Unlock()
	s.notify()
}

// StartNewChat opens a conversation for the named customer and makes it current.
func (s *Synchronizer) StartNewChat(ctx context.Context, name, email string) (*model.Conversation, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" {
		err := apperr.Validation("name and email are required")
		s.fail(err)
		return nil, err
	}

	s.setLoading(true)
	conv, err := s.backend.CreateConversation(ctx, model.StartConversationRequest{Name: name, Email: email})
	if err != nil {
		s.fail(err)
		return nil, err
	}

	s.mu.Lock()
	s.viewer = Viewer{ID: strings.ToLower(email), Name: name}
	cs := s.upsert(*conv)
	cs.messages = MergeMessages(cs.messages, conv.Messages)
	cs.loaded = true
	s.currentID = conv.ID
	s.isOpen = true
	s.isMinimized = false
	s.isLoading = false
	s.lastErr = ""
	out := s.snapshot(cs)
	s.mu.Unlock()

	s.logger.Info("chat started", zap.String("conversation_id", conv.ID))
	s.notify()
	return &out, nil
}

// SetCurrentConversation selects conv, loading its messages if needed and
// marking messages from others as read.
func (s *Synchronizer) SetCurrentConversation(ctx context.Context, conv model.Conversation) error {
	s.mu.Lock()
	cs := s.upsert(conv)
	s.currentID = conv.ID
	needsLoad := !cs.loaded
	if needsLoad {
		s.isLoading = true
	}
	s.mu.Unlock()
	s.notify()

	if needsLoad {
		msgs, err := s.backend.ListMessages(ctx, conv.ID)
		if err != nil {
			s.fail(err)
			return err
		}
		s.mu.Lock()
		cs.messages = MergeMessages(cs.messages, msgs)
		cs.loaded = true
		s.isLoading = false
		s.mu.Unlock()
	}

	return s.markCurrentRead(ctx)
}

// SendMessage posts content to a conversation. The message id and creation
// time are assigned here, so messages keep the order of SendMessage calls
// even when the backend answers out of order.
func (s *Synchronizer) SendMessage(ctx context.Context, in SendInput) (*model.Message, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		err := apperr.Validation("message content is required")
		s.fail(err)
		return nil, err
	}

	s.mu.Lock()
	convID := in.ConversationID
	if convID == "" {
		convID = s.currentID
	}
	if convID == "" || s.conversations[convID] == nil {
		s.mu.Unlock()
		err := apperr.Validation("no conversation selected")
		s.fail(err)
		return nil, err
	}
	createdAt := s.stamp()
	req := model.SendMessageRequest{
		ID:          uuid.Must(uuid.NewV7()).String(),
		SenderName:  s.viewer.Name,
		SenderID:    s.viewer.ID,
		Content:     content,
		MessageType: model.MessageTypeUser,
		CreatedAt:   &createdAt,
	}
	s.mu.Unlock()

	msg, err := s.backend.SendMessage(ctx, convID, req)
	if err != nil {
		s.fail(err)
		return nil, err
	}

	// Not Apply: the conversation may still be unloaded after a failed load.
	s.mu.Lock()
	cs := s.conversations[convID]
	if cs == nil {
		cs = s.upsert(model.Conversation{ID: convID})
	}
	s.merge(cs, []model.Message{*msg})
	s.mu.Unlock()
	s.notify()
	return msg, nil
}

// stamp returns a strictly increasing creation time at microsecond
// precision, which is what the database keeps. Callers hold s.mu.
func (s *Synchronizer) stamp() time.Time {
	t := s.now().UTC().Truncate(time.Microsecond)
	if !t.After(s.lastStamp) {
		t = s.lastStamp.Add(time.Microsecond)
	}
	s.lastStamp = t
	return t
}

// Refresh reloads the conversation list and the current conversation's messages.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	convs, err := s.backend.ListConversations(ctx)
	if err != nil {
		s.fail(err)
		return err
	}

	s.mu.Lock()
	for _, c := range convs {
		s.upsert(c)
	}
	currentID := s.currentID
	s.mu.Unlock()

	if currentID != "" {
		msgs, err := s.backend.ListMessages(ctx, currentID)
		if err != nil {
			s.fail(err)
			return err
		}
		s.mu.Lock()
		if cs := s.conversations[currentID]; cs != nil {
			cs.messages = MergeMessages(cs.messages, msgs)
			cs.loaded = true
		}
		s.mu.Unlock()

		if s.visible() {
			if err := s.markCurrentRead(ctx); err != nil {
				return err
			}
		}
	}

	s.clearError()
	s.notify()
	return nil
}

// Apply merges messages received from a subscription or poll. Messages for
// conversations that are not loaded are dropped; they arrive with the next load.
func (s *Synchronizer) Apply(msgs ...model.Message) {
	if len(msgs) == 0 {
		return
	}

	byConv := make(map[string][]model.Message)
	for _, m := range msgs {
		byConv[m.ConversationID] = append(byConv[m.ConversationID], m)
	}

	s.mu.Lock()
	for id, batch := range byConv {
		cs := s.conversations[id]
		if cs == nil || !cs.loaded {
			s.logger.Debug("ignoring messages for unloaded conversation", zap.String("conversation_id", id))
			continue
		}
		s.merge(cs, batch)
	}
	s.mu.Unlock()
	s.notify()
}

// merge folds msgs into cs and advances its last activity. Callers hold s.mu.
func (s *Synchronizer) merge(cs *conversationState, msgs []model.Message) {
	cs.messages = MergeMessages(cs.messages, msgs)
	if len(cs.messages) == 0 {
		return
	}
	last := cs.messages[len(cs.messages)-1].CreatedAt
	if cs.conv.LastMessageAt == nil || last.After(*cs.conv.LastMessageAt) {
		cs.conv.LastMessageAt = &last
	}
}

// ApplyEvent reconciles a live chat event.
func (s *Synchronizer) ApplyEvent(ev model.ChatEvent) {
	switch ev.Type {
	case model.EventMessageCreated:
		if ev.Message != nil {
			s.Apply(*ev.Message)
		}
	case model.EventMessagesRead:
		s.mu.Lock()
		if cs := s.conversations[ev.ConversationID]; cs != nil {
			markReadFor(cs.messages, ev.ViewerID)
		}
		s.mu.Unlock()
		s.notify()
	case model.EventConversation:
		if ev.Conversation != nil {
			s.mu.Lock()
			s.upsert(*ev.Conversation)
			s.mu.Unlock()
			s.notify()
		}
	}
}

// Poll calls Refresh every interval until ctx is done.
func (s *Synchronizer) Poll(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("chat refresh failed", zap.Error(err))
			}
		}
	}
}

// upsert stores conv's fields, keeping loaded messages. Callers hold s.mu.
func (s *Synchronizer) upsert(conv model.Conversation) *conversationState {
	cs := s.conversations[conv.ID]
	if cs == nil {
		cs = &conversationState{}
		s.conversations[conv.ID] = cs
	}
	msgs := conv.Messages
	conv.Messages = nil
	cs.conv = conv
	if len(msgs) > 0 && cs.loaded {
		cs.messages = MergeMessages(cs.messages, msgs)
	}
	return cs
}

func (s *Synchronizer) markCurrentRead(ctx context.Context) error {
	s.mu.Lock()
	cs := s.conversations[s.currentID]
	changed := 0
	if cs != nil {
		changed = markReadFor(cs.messages, s.viewer.ID)
	}
	convID, viewerID := s.currentID, s.viewer.ID
	s.mu.Unlock()

	s.notify()
	if changed == 0 {
		return nil
	}

	if err := s.backend.MarkRead(ctx, convID, viewerID); err != nil {
		s.fail(err)
		return err
	}
	return nil
}

func (s *Synchronizer) visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isOpen && !s.isMinimized
}

func (s *Synchronizer) setLoading(loading bool) {
	s.mu.Lock()
	s.isLoading = loading
	s.mu.Unlock()
	s.notify()
}

func (s *Synchronizer) clearError() {
	s.mu.Lock()
	s.lastErr = ""
	s.mu.Unlock()
}

func (s *Synchronizer) fail(err error) {
	s.mu.Lock()
	s.isLoading = false
	s.lastErr = apperr.Message(err)
	s.mu.Unlock()

	s.logger.Debug("chat operation failed", zap.String("code", string(apperr.CodeOf(err))), zap.Error(err))
	s.notify()
}
