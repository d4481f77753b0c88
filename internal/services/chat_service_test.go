package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/carecircle/internal/models"
)

type recordingPublisher struct {
	mu         sync.Mutex
	recipients [][]string
}

func (p *recordingPublisher) PublishMessage(_ models.Message, recipients []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recipients = append(p.recipients, recipients)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.recipients)
}

var (
	familyP = models.Participant{ID: "fam-1", Name: "Meera", Role: models.RoleFamily}
	palP    = models.Participant{ID: "pal-1", Name: "Arjun", Role: models.RolePal}
)

func openConversation(t *testing.T, l *ledgers) models.Conversation {
	t.Helper()
	conv, _, err := l.chats.CreateConversation(context.Background(), familyP, palP, "gig-1")
	require.NoError(t, err)
	return conv
}

func TestCreateConversationIsIdempotent(t *testing.T) {
	l := newLedgers(t, ChatOptions{})
	ctx := context.Background()

	first, created, err := l.chats.CreateConversation(ctx, familyP, palP, "gig-1")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := l.chats.CreateConversation(ctx, palP, familyP, "gig-1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	other, created, err := l.chats.CreateConversation(ctx, familyP, palP, "gig-2")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, other.ID)

	_, _, err = l.chats.CreateConversation(ctx, familyP, familyP, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Len(t, l.chats.Conversations(palP.ID), 2)
}

func TestSendMessageChecks(t *testing.T) {
	l := newLedgers(t, ChatOptions{})
	pub := &recordingPublisher{}
	l.chats.SetPublisher(pub)
	ctx := context.Background()
	conv := openConversation(t, l)

	_, err := l.chats.SendMessage(ctx, SendMessageInput{ConversationID: "missing", SenderID: familyP.ID, Text: "hi"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.chats.SendMessage(ctx, SendMessageInput{ConversationID: conv.ID, SenderID: "stranger", Text: "hi"})
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = l.chats.SendMessage(ctx, SendMessageInput{ConversationID: conv.ID, SenderID: familyP.ID, Text: "   "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	msg, err := l.chats.SendMessage(ctx, SendMessageInput{ConversationID: conv.ID, SenderID: familyP.ID, SenderName: familyP.Name, Text: "See you at 10"})
	require.NoError(t, err)
	assert.Equal(t, palP.ID, msg.ReceiverID)
	assert.Equal(t, models.MessageText, msg.Type)

	stored, err := l.chats.Get(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "See you at 10", stored.LastMessage)

	require.Equal(t, 1, pub.count())
	assert.ElementsMatch(t, []string{familyP.ID, palP.ID}, pub.recipients[0])
}

func TestBlockedUsersCannotMessage(t *testing.T) {
	l := newLedgers(t, ChatOptions{})
	ctx := context.Background()
	conv := openConversation(t, l)

	blocked, err := l.chats.ToggleBlockUser(ctx, palP.ID, familyP.ID)
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.True(t, l.chats.IsUserBlocked(palP.ID, familyP.ID))
	assert.False(t, l.chats.IsUserBlocked(familyP.ID, palP.ID))

	_, err = l.chats.SendMessage(ctx, SendMessageInput{ConversationID: conv.ID, SenderID: familyP.ID, Text: "hello?"})
	assert.ErrorIs(t, err, ErrBlocked)
	_, err = l.chats.SendMessage(ctx, SendMessageInput{ConversationID: conv.ID, SenderID: palP.ID, Text: "hello"})
	assert.ErrorIs(t, err, ErrBlocked)

	msgs, err := l.chats.Messages(conv.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	blocked, err = l.chats.ToggleBlockUser(ctx, palP.ID, familyP.ID)
	require.NoError(t, err)
	assert.False(t, blocked)

	_, err = l.chats.SendMessage(ctx, SendMessageInput{ConversationID: conv.ID, SenderID: familyP.ID, Text: "hello again"})
	assert.NoError(t, err)
}

func TestAutoReplyBumpsUnreadAndNotifies(t *testing.T) {
	l := newLedgers(t, ChatOptions{AutoReply: true, ReplyDelay: 10 * time.Millisecond})
	ctx := context.Background()
	conv := openConversation(t, l)

	_, err := l.chats.SendMessage(ctx, SendMessageInput{ConversationID: conv.ID, SenderID: familyP.ID, SenderName: familyP.Name, Text: "Are you coming?"})
	require.NoError(t, err)

	waitFor(t, func() bool {
		msgs, err := l.chats.Messages(conv.ID)
		return err == nil && len(msgs) == 2
	})

	msgs, err := l.chats.Messages(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, palP.ID, msgs[1].SenderID)
	assert.Equal(t, familyP.ID, msgs[1].ReceiverID)

	stored, err := l.chats.Get(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UnreadCount)

	inbox, err := l.notifications.FetchNotifications(ctx, models.RoleFamily, familyP.ID)
	require.NoError(t, err)
	require.NotEmpty(t, inbox)
	assert.Equal(t, models.NotifMessage, inbox[0].Type)
	assert.Equal(t, conv.ID, inbox[0].RelatedID)

	require.NoError(t, l.chats.MarkAsRead(ctx, conv.ID))
	stored, err = l.chats.Get(conv.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.UnreadCount)
	msgs, err = l.chats.Messages(conv.ID)
	require.NoError(t, err)
	for _, m := range msgs {
		assert.True(t, m.Read)
	}
}

func TestCloseCancelsPendingReplies(t *testing.T) {
	l := newLedgers(t, ChatOptions{AutoReply: true, ReplyDelay: time.Hour})
	ctx := context.Background()
	conv := openConversation(t, l)

	_, err := l.chats.SendMessage(ctx, SendMessageInput{ConversationID: conv.ID, SenderID: familyP.ID, Text: "ping"})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		l.chats.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}

	msgs, err := l.chats.Messages(conv.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestCallLifecycle(t *testing.T) {
	l := newLedgers(t, ChatOptions{})
	ctx := context.Background()
	conv := openConversation(t, l)

	_, err := l.chats.StartCall(ctx, conv.ID, "hologram")
	assert.ErrorIs(t, err, ErrInvalidInput)

	started, err := l.chats.StartCall(ctx, conv.ID, "video")
	require.NoError(t, err)
	assert.True(t, started.ActiveCall)
	assert.Equal(t, "video", started.CallType)

	_, err = l.chats.StartCall(ctx, conv.ID, "audio")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	ended, err := l.chats.EndCall(ctx, conv.ID)
	require.NoError(t, err)
	assert.False(t, ended.ActiveCall)
	assert.Empty(t, ended.CallType)
}
