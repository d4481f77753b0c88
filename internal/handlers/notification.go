package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/carecircle/internal/middleware"
	"github.com/example/carecircle/internal/services"
)

// NotificationHandler manages the role inbox.
type NotificationHandler struct {
	notifications *services.NotificationService
}

// NewNotificationHandler constructs NotificationHandler.
func NewNotificationHandler(notifications *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// ListNotifications returns the caller's inbox, newest first.
func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	session, ok := middleware.GetSession(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	items, err := h.notifications.FetchNotifications(c.UserContext(), session.Role, session.AccountID)
	if err != nil {
		return ledgerError(err)
	}

	return c.JSON(fiber.Map{
		"success":      true,
		"data":         items,
		"unread_count": h.notifications.UnreadCount(session.Role, session.AccountID),
	})
}

// CreateNotification appends a notification.
func (h *NotificationHandler) CreateNotification(c *fiber.Ctx) error {
	var req services.NotificationInput
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	n, err := h.notifications.AddNotification(c.UserContext(), req)
	if err != nil {
		return ledgerError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": n})
}

// MarkRead flips one notification to read.
func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	session, ok := middleware.GetSession(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	if err := h.notifications.MarkAsRead(c.UserContext(), c.Params("id"), session.Role, session.AccountID); err != nil {
		return ledgerError(err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// MarkAllRead marks the caller's role inbox read.
func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	session, ok := middleware.GetSession(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	changed, err := h.notifications.MarkAllAsRead(c.UserContext(), session.Role, session.AccountID)
	if err != nil {
		return ledgerError(err)
	}
	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"updated": changed}})
}
