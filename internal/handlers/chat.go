package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/example/carecircle/internal/models"
	"github.com/example/carecircle/internal/services"
)

// ChatHandler manages conversations, messages, calls and blocks.
type ChatHandler struct {
	chats    *services.ChatService
	accounts *services.AccountService
}

// NewChatHandler constructs ChatHandler.
func NewChatHandler(chats *services.ChatService, accounts *services.AccountService) *ChatHandler {
	return &ChatHandler{chats: chats, accounts: accounts}
}

func participantOf(acct models.Account) models.Participant {
	return models.Participant{ID: acct.ID, Name: acct.Name, Role: acct.Role, Avatar: acct.Avatar}
}

// conversationFor loads a conversation the caller takes part in.
func (h *ChatHandler) conversationFor(c *fiber.Ctx, userID string) (models.Conversation, error) {
	conv, err := h.chats.Get(c.Params("id"))
	if err != nil {
		return models.Conversation{}, ledgerError(err)
	}
	if !conv.Has(userID) {
		return models.Conversation{}, fiber.NewError(fiber.StatusForbidden, "not a participant of this conversation")
	}
	return conv, nil
}

// ListConversations returns the caller's conversations.
func (h *ChatHandler) ListConversations(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": h.chats.Conversations(userID)})
}

type createConversationRequest struct {
	OtherID   string `json:"other_id"`
	RelatedID string `json:"related_id"`
}

// CreateConversation opens, or returns the existing, conversation with another account.
func (h *ChatHandler) CreateConversation(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req createConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	self, err := h.accounts.Get(userID)
	if err != nil {
		return ledgerError(err)
	}
	other, err := h.accounts.Get(req.OtherID)
	if err != nil {
		return ledgerError(err)
	}

	conv, created, err := h.chats.CreateConversation(c.UserContext(), participantOf(self), participantOf(other), req.RelatedID)
	if err != nil {
		return ledgerError(err)
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"success": true, "data": conv})
}

// ListMessages returns the message log of a conversation.
func (h *ChatHandler) ListMessages(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	conv, err := h.conversationFor(c, userID)
	if err != nil {
		return err
	}

	msgs, err := h.chats.Messages(conv.ID)
	if err != nil {
		return ledgerError(err)
	}
	return c.JSON(fiber.Map{"success": true, "data": msgs})
}

type sendMessageRequest struct {
	Text     string                  `json:"text"`
	Type     models.MessageType      `json:"type"`
	Metadata *models.MessageMetadata `json:"metadata"`
}

// SendMessage appends a message from the caller.
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	acct, err := h.accounts.Get(userID)
	if err != nil {
		return ledgerError(err)
	}

	msg, err := h.chats.SendMessage(c.UserContext(), services.SendMessageInput{
		ConversationID: utils.CopyString(c.Params("id")),
		SenderID:       acct.ID,
		SenderName:     acct.Name,
		Text:           req.Text,
		Type:           req.Type,
		Metadata:       req.Metadata,
	})
	if err != nil {
		return ledgerError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": msg})
}

// MarkRead clears the unread counter of a conversation.
func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	conv, err := h.conversationFor(c, userID)
	if err != nil {
		return err
	}

	if err := h.chats.MarkAsRead(c.UserContext(), conv.ID); err != nil {
		return ledgerError(err)
	}
	return c.JSON(fiber.Map{"success": true})
}

type startCallRequest struct {
	Type string `json:"type"`
}

// StartCall flags an audio or video call on the conversation.
func (h *ChatHandler) StartCall(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	conv, err := h.conversationFor(c, userID)
	if err != nil {
		return err
	}

	var req startCallRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	updated, err := h.chats.StartCall(c.UserContext(), conv.ID, req.Type)
	if err != nil {
		return ledgerError(err)
	}
	return c.JSON(fiber.Map{"success": true, "data": updated})
}

// EndCall clears the active call.
func (h *ChatHandler) EndCall(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	conv, err := h.conversationFor(c, userID)
	if err != nil {
		return err
	}

	updated, err := h.chats.EndCall(c.UserContext(), conv.ID)
	if err != nil {
		return ledgerError(err)
	}
	return c.JSON(fiber.Map{"success": true, "data": updated})
}

// ToggleBlock flips whether the caller blocks another account.
func (h *ChatHandler) ToggleBlock(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	// The blocked id outlives the request, so it must not alias fiber's buffer.
	blocked, err := h.chats.ToggleBlockUser(c.UserContext(), userID, utils.CopyString(c.Params("userId")))
	if err != nil {
		return ledgerError(err)
	}
	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"blocked": blocked}})
}

// IsBlocked reports whether the caller blocks another account.
func (h *ChatHandler) IsBlocked(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	blocked := h.chats.IsUserBlocked(userID, c.Params("userId"))
	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"blocked": blocked}})
}
