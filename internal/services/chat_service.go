package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/carecircle/internal/metrics"
	"github.com/example/carecircle/internal/models"
)

const chatsKey = "chats"

// MessagePublisher pushes appended messages to connected participants.
type MessagePublisher interface {
	PublishMessage(msg models.Message, recipients []string)
}

// ChatOptions tunes the synthetic reply that keeps a conversation alive in
// demo deployments.
type ChatOptions struct {
	AutoReply  bool
	ReplyDelay time.Duration
}

// ChatService is the conversation registry and message log.
type ChatService struct {
	mu        sync.Mutex
	store     StateStore
	log       logrus.FieldLogger
	now       func() time.Time
	notifier  Notifier
	publisher MessagePublisher
	opts      ChatOptions

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	conversations map[string]*models.Conversation
	byKey         map[string]string
	messages      map[string][]models.Message
	blocks        map[string]map[string]bool
}

type chatState struct {
	Conversations []*models.Conversation      `json:"conversations"`
	Messages      map[string][]models.Message `json:"messages"`
	Blocks        map[string][]string         `json:"blocks"`
}

// SendMessageInput is one outgoing message.
type SendMessageInput struct {
	ConversationID string                  `json:"conversation_id"`
	SenderID       string                  `json:"sender_id"`
	SenderName     string                  `json:"sender_name"`
	Text           string                  `json:"text"`
	Type           models.MessageType      `json:"type"`
	Metadata       *models.MessageMetadata `json:"metadata"`
}

var autoReplies = []string{
	"Thanks for the message! I'll get back to you shortly.",
	"Sounds good, see you then.",
	"Noted. Let me know if anything changes.",
	"Got it, thank you!",
}

// NewChatService builds the registry and rehydrates it from store.
func NewChatService(ctx context.Context, store StateStore, logger logrus.FieldLogger, notifier Notifier, opts ChatOptions) (*ChatService, error) {
	runCtx, cancel := context.WithCancel(context.Background())
	s := &ChatService{
		store:         store,
		log:           logger.WithField("component", "chat"),
		now:           time.Now,
		notifier:      notifier,
		opts:          opts,
		ctx:           runCtx,
		cancel:        cancel,
		conversations: make(map[string]*models.Conversation),
		byKey:         make(map[string]string),
		messages:      make(map[string][]models.Message),
		blocks:        make(map[string]map[string]bool),
	}

	if store != nil {
		var state chatState
		if _, err := store.Load(ctx, chatsKey, &state); err != nil {
			cancel()
			return nil, fmt.Errorf("load chats: %w", err)
		}
		for _, conv := range state.Conversations {
			if conv == nil || len(conv.Participants) < 2 {
				continue
			}
			s.conversations[conv.ID] = conv
			s.byKey[conversationKey(conv.Participants[0].ID, conv.Participants[1].ID, conv.RelatedID)] = conv.ID
		}
		for id, msgs := range state.Messages {
			s.messages[id] = msgs
		}
		for user, others := range state.Blocks {
			set := make(map[string]bool, len(others))
			for _, other := range others {
				set[other] = true
			}
			s.blocks[user] = set
		}
	}

	return s, nil
}

// SetPublisher wires the realtime feed.
func (s *ChatService) SetPublisher(p MessagePublisher) {
	s.publisher = p
}

// Close stops pending synthetic replies and waits for them to exit.
func (s *ChatService) Close() {
	s.cancel()
	s.wg.Wait()
}

func conversationKey(a, b, relatedID string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0] + "|" + pair[1] + "|" + relatedID
}

func (s *ChatService) snapshotLocked() chatState {
	state := chatState{
		Conversations: make([]*models.Conversation, 0, len(s.conversations)),
		Messages:      s.messages,
		Blocks:        make(map[string][]string, len(s.blocks)),
	}
	for _, conv := range s.conversations {
		state.Conversations = append(state.Conversations, conv)
	}
	sort.Slice(state.Conversations, func(i, j int) bool {
		return state.Conversations[i].CreatedAt.Before(state.Conversations[j].CreatedAt)
	})
	for user, set := range s.blocks {
		others := make([]string, 0, len(set))
		for other := range set {
			others = append(others, other)
		}
		sort.Strings(others)
		state.Blocks[user] = others
	}
	return state
}

func (s *ChatService) saveLocked(ctx context.Context) {
	persist(ctx, s.store, s.log, chatsKey, s.snapshotLocked())
}

// CreateConversation returns the conversation between self and other for
// relatedID, creating it on first contact. The bool reports creation.
func (s *ChatService) CreateConversation(ctx context.Context, self, other models.Participant, relatedID string) (models.Conversation, bool, error) {
	const op = "chat.CreateConversation"

	if self.ID == "" || other.ID == "" || self.ID == other.ID {
		return models.Conversation{}, false, ledgerErr(op, ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := conversationKey(self.ID, other.ID, relatedID)
	if id, ok := s.byKey[key]; ok {
		return cloneConversation(s.conversations[id]), false, nil
	}

	now := s.now()
	conv := &models.Conversation{
		ID:              newID(),
		Participants:    []models.Participant{self, other},
		LastMessageTime: now,
		RelatedID:       relatedID,
		CreatedAt:       now,
	}
	s.conversations[conv.ID] = conv
	s.byKey[key] = conv.ID
	s.messages[conv.ID] = []models.Message{}
	s.saveLocked(ctx)

	s.log.WithFields(logrus.Fields{"conversation_id": conv.ID, "related_id": relatedID}).Info("conversation created")
	return cloneConversation(conv), true, nil
}

// Get returns one conversation.
func (s *ChatService) Get(id string) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return models.Conversation{}, ledgerErr("chat.Get", ErrNotFound)
	}
	return cloneConversation(conv), nil
}

// Conversations lists the conversations userID takes part in, most recent first.
func (s *ChatService) Conversations(userID string) []models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Conversation, 0)
	for _, conv := range s.conversations {
		if conv.Has(userID) {
			out = append(out, cloneConversation(conv))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageTime.After(out[j].LastMessageTime)
	})
	return out
}

// Messages returns the message log of a conversation in send order.
func (s *ChatService) Messages(conversationID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, ledgerErr("chat.Messages", ErrNotFound)
	}
	msgs := s.messages[conversationID]
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *ChatService) blockedLocked(a, b string) bool {
	return s.blocks[a][b] || s.blocks[b][a]
}

// SendMessage appends a message from a participant. Either side having blocked
// the other rejects the message.
func (s *ChatService) SendMessage(ctx context.Context, in SendMessageInput) (models.Message, error) {
	const op = "chat.SendMessage"

	if in.Type == "" {
		in.Type = models.MessageText
	}
	if !in.Type.Valid() {
		return models.Message{}, ledgerErr(op, ErrInvalidInput)
	}
	if in.Type == models.MessageText && strings.TrimSpace(in.Text) == "" {
		return models.Message{}, ledgerErr(op, ErrInvalidInput)
	}

	s.mu.Lock()
	conv, ok := s.conversations[in.ConversationID]
	if !ok {
		s.mu.Unlock()
		return models.Message{}, ledgerErr(op, ErrNotFound)
	}
	if !conv.Has(in.SenderID) {
		s.mu.Unlock()
		return models.Message{}, ledgerErr(op, ErrNotParticipant)
	}
	other, _ := conv.Other(in.SenderID)
	if s.blockedLocked(in.SenderID, other.ID) {
		s.mu.Unlock()
		return models.Message{}, ledgerErr(op, ErrBlocked)
	}

	msg := models.Message{
		ID:             newID(),
		ConversationID: conv.ID,
		SenderID:       in.SenderID,
		SenderName:     in.SenderName,
		ReceiverID:     other.ID,
		Text:           in.Text,
		Type:           in.Type,
		Timestamp:      s.now(),
		Metadata:       in.Metadata,
	}
	s.appendLocked(conv, msg)
	s.saveLocked(ctx)
	sender, _ := participant(conv, in.SenderID)
	s.mu.Unlock()

	metrics.RecordChatMessage(string(msg.Type), "user")
	s.publish(msg)

	if s.opts.AutoReply {
		s.scheduleReply(conv.ID, other, sender)
	}
	return msg, nil
}

func (s *ChatService) appendLocked(conv *models.Conversation, msg models.Message) {
	s.messages[conv.ID] = append(s.messages[conv.ID], msg)
	conv.LastMessage = preview(msg)
	conv.LastMessageTime = msg.Timestamp
}

func participant(conv *models.Conversation, id string) (models.Participant, bool) {
	for _, p := range conv.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return models.Participant{}, false
}

func preview(msg models.Message) string {
	switch msg.Type {
	case models.MessageImage:
		return "📷 Photo"
	case models.MessageFile:
		return "📎 File"
	case models.MessageLocation:
		return "📍 Location"
	case models.MessageAudio:
		return "🎤 Voice message"
	}
	return msg.Text
}

func (s *ChatService) publish(msg models.Message) {
	if s.publisher != nil {
		s.publisher.PublishMessage(msg, []string{msg.SenderID, msg.ReceiverID})
	}
}

func (s *ChatService) scheduleReply(conversationID string, from, to models.Participant) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(s.opts.ReplyDelay)
		defer timer.Stop()

		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
		}

		s.appendReply(s.ctx, conversationID, from, to)
	}()
}

func (s *ChatService) appendReply(ctx context.Context, conversationID string, from, to models.Participant) {
	s.mu.Lock()
	conv, ok := s.conversations[conversationID]
	if !ok || s.blockedLocked(from.ID, to.ID) {
		s.mu.Unlock()
		return
	}

	msg := models.Message{
		ID:             newID(),
		ConversationID: conversationID,
		SenderID:       from.ID,
		SenderName:     from.Name,
		ReceiverID:     to.ID,
		Text:           autoReplies[len(s.messages[conversationID])%len(autoReplies)],
		Type:           models.MessageText,
		Timestamp:      s.now(),
	}
	s.appendLocked(conv, msg)
	conv.UnreadCount++
	s.saveLocked(ctx)
	s.mu.Unlock()

	metrics.RecordChatMessage(string(msg.Type), "auto_reply")
	s.publish(msg)

	if to.Role.Valid() {
		notify(ctx, s.notifier, s.log, NotificationInput{
			Title:        "New message from " + from.Name,
			Message:      msg.Text,
			Type:         models.NotifMessage,
			ReceiverRole: to.Role,
			ReceiverID:   to.ID,
			ActionRoute:  "/chat/" + conversationID,
			RelatedID:    conversationID,
		})
	}
}

// MarkAsRead zeroes the unread counter and marks every message read.
func (s *ChatService) MarkAsRead(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return ledgerErr("chat.MarkAsRead", ErrNotFound)
	}
	conv.UnreadCount = 0
	msgs := s.messages[conversationID]
	for i := range msgs {
		msgs[i].Read = true
	}
	s.saveLocked(ctx)
	return nil
}

// ToggleBlockUser flips whether userID blocks otherID and returns the new state.
func (s *ChatService) ToggleBlockUser(ctx context.Context, userID, otherID string) (bool, error) {
	if userID == "" || otherID == "" || userID == otherID {
		return false, ledgerErr("chat.ToggleBlockUser", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.blocks[userID]
	if set == nil {
		set = make(map[string]bool)
		s.blocks[userID] = set
	}

	blocked := !set[otherID]
	if blocked {
		set[otherID] = true
	} else {
		delete(set, otherID)
	}
	s.saveLocked(ctx)
	return blocked, nil
}

// IsUserBlocked reports whether userID has blocked otherID.
func (s *ChatService) IsUserBlocked(userID, otherID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocks[userID][otherID]
}

// StartCall flags an active audio or video call on the conversation.
func (s *ChatService) StartCall(ctx context.Context, conversationID, callType string) (models.Conversation, error) {
	const op = "chat.StartCall"

	if callType != "audio" && callType != "video" {
		return models.Conversation{}, ledgerErr(op, ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return models.Conversation{}, ledgerErr(op, ErrNotFound)
	}
	if conv.ActiveCall {
		return models.Conversation{}, ledgerErr(op, ErrInvalidTransition)
	}
	conv.ActiveCall = true
	conv.CallType = callType
	s.saveLocked(ctx)
	return cloneConversation(conv), nil
}

// EndCall clears the active call flag.
func (s *ChatService) EndCall(ctx context.Context, conversationID string) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return models.Conversation{}, ledgerErr("chat.EndCall", ErrNotFound)
	}
	conv.ActiveCall = false
	conv.CallType = ""
	s.saveLocked(ctx)
	return cloneConversation(conv), nil
}

func cloneConversation(c *models.Conversation) models.Conversation {
	out := *c
	out.Participants = append([]models.Participant(nil), c.Participants...)
	return out
}
