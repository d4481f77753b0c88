package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/carecircle/internal/middleware"
	"github.com/example/carecircle/internal/models"
	"github.com/example/carecircle/internal/services"
	"github.com/example/carecircle/internal/utils"
)

// ProfileHandler manages profile, verification, support and wallet endpoints.
type ProfileHandler struct {
	accounts *services.AccountService
}

// NewProfileHandler constructs ProfileHandler.
func NewProfileHandler(accounts *services.AccountService) *ProfileHandler {
	return &ProfileHandler{accounts: accounts}
}

func currentUserID(c *fiber.Ctx) (string, error) {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return "", fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	return userID, nil
}

// GetProfile returns the authenticated account.
func (h *ProfileHandler) GetProfile(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	acct, err := h.accounts.Get(userID)
	if err != nil {
		return ledgerError(err)
	}

	return c.JSON(fiber.Map{"success": true, "data": accountView(acct)})
}

type updateProfileRequest struct {
	Name    *string `json:"name"`
	Email   *string `json:"email"`
	Address *string `json:"address"`
	Avatar  *string `json:"avatar"`
}

func (r updateProfileRequest) patch() models.AccountPatch {
	return models.AccountPatch{
		Name:    r.Name,
		Email:   r.Email,
		Address: r.Address,
		Avatar:  r.Avatar,
	}
}

// UpdateProfile merges the provided profile fields.
func (h *ProfileHandler) UpdateProfile(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req updateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	acct, err := h.accounts.UpdateUser(c.UserContext(), userID, req.patch())
	if err != nil {
		return ledgerError(err)
	}

	return c.JSON(fiber.Map{"success": true, "data": accountView(acct)})
}

// CompleteProfile finishes onboarding.
func (h *ProfileHandler) CompleteProfile(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req updateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	acct, err := h.accounts.CompleteProfile(c.UserContext(), userID, req.patch())
	if err != nil {
		return ledgerError(err)
	}

	return c.JSON(fiber.Map{"success": true, "data": accountView(acct)})
}

type deviceTokenRequest struct {
	Token string `json:"token"`
}

// SetDeviceToken registers the push token of the current device.
func (h *ProfileHandler) SetDeviceToken(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req deviceTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.accounts.SetDeviceToken(c.UserContext(), userID, req.Token); err != nil {
		return ledgerError(err)
	}

	return c.JSON(fiber.Map{"success": true})
}

type uploadDocumentRequest struct {
	Type    string `json:"type"`
	FileRef string `json:"file_ref"`
}

// UploadDocument records a verification document for review.
func (h *ProfileHandler) UploadDocument(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req uploadDocumentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.FileRef) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "file_ref is required")
	}

	doc, err := h.accounts.UploadVerificationDoc(c.UserContext(), userID, req.Type, req.FileRef)
	if err != nil {
		return ledgerError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": doc})
}

type reviewDocumentRequest struct {
	Status models.DocumentStatus `json:"status"`
}

// ReviewDocument records an operator's verdict on an account's document.
func (h *ProfileHandler) ReviewDocument(c *fiber.Ctx) error {
	var req reviewDocumentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	doc, err := h.accounts.ReviewVerificationDoc(c.UserContext(), c.Params("id"), c.Params("type"), req.Status)
	if err != nil {
		return ledgerError(err)
	}

	return c.JSON(fiber.Map{"success": true, "data": doc})
}

// ListTickets returns the account's support tickets.
func (h *ProfileHandler) ListTickets(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	tickets, err := h.accounts.Tickets(userID)
	if err != nil {
		return ledgerError(err)
	}

	return c.JSON(fiber.Map{"success": true, "data": tickets})
}

type createTicketRequest struct {
	Category    string `json:"category"`
	Description string `json:"description"`
}

// CreateTicket files a support ticket.
func (h *ProfileHandler) CreateTicket(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req createTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ticket, err := h.accounts.CreateSupportTicket(c.UserContext(), userID, req.Category, req.Description)
	if err != nil {
		return ledgerError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": ticket})
}

// Wallet returns balance and totals.
func (h *ProfileHandler) Wallet(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	acct, err := h.accounts.Get(userID)
	if err != nil {
		return ledgerError(err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"balance":             acct.WalletBalance,
			"total_earnings":      acct.TotalEarnings,
			"total_withdrawals":   acct.TotalWithdrawals,
			"withdrawal_verified": acct.WithdrawalVerified(),
		},
	})
}

// Transactions returns the paginated wallet history, newest first.
func (h *ProfileHandler) Transactions(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	txns, err := h.accounts.Transactions(userID)
	if err != nil {
		return ledgerError(err)
	}

	if kind := strings.TrimSpace(c.Query("type")); kind != "" {
		filtered := txns[:0]
		for _, tx := range txns {
			if string(tx.Type) == kind {
				filtered = append(filtered, tx)
			}
		}
		txns = filtered
	}

	pg := utils.ParsePagination(c)
	return c.JSON(fiber.Map{
		"success":    true,
		"data":       utils.Page(txns, pg),
		"pagination": pg.Meta(len(txns)),
	})
}

type withdrawRequest struct {
	Amount float64 `json:"amount"`
}

// Withdraw moves funds out to the verified bank account.
func (h *ProfileHandler) Withdraw(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req withdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	tx, err := h.accounts.WithdrawFunds(c.UserContext(), userID, req.Amount)
	if err != nil {
		return ledgerError(err)
	}

	return c.JSON(fiber.Map{"success": true, "data": tx})
}
