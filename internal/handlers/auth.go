package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/carecircle/internal/config"
	"github.com/example/carecircle/internal/middleware"
	"github.com/example/carecircle/internal/models"
	"github.com/example/carecircle/internal/services"
	"github.com/example/carecircle/internal/utils"
)

// AuthHandler bundles dependencies for authentication endpoints.
type AuthHandler struct {
	accounts *services.AccountService
	cfg      *config.Config
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(accounts *services.AccountService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{accounts: accounts, cfg: cfg}
}

type registerRequest struct {
	Name     string      `json:"name"`
	Phone    string      `json:"phone"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
}

// Register creates a new account and signs it in.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if strings.TrimSpace(req.Phone) == "" || req.Password == "" || strings.TrimSpace(req.Name) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing required fields")
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if errors.Is(err, utils.ErrPasswordTooShort) {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
	}

	acct, err := h.accounts.Register(c.UserContext(), services.RegisterInput{
		Phone:        req.Phone,
		PasswordHash: passwordHash,
		Role:         req.Role,
		Name:         req.Name,
	})
	if err != nil {
		return ledgerError(err)
	}

	token, err := utils.GenerateToken(h.cfg.JWTSecret, acct.ID, acct.Role, h.cfg.TokenExpires)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"user":    accountView(acct),
		"token":   token,
	})
}

type loginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// Login authenticates an existing account.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	acct, err := h.accounts.GetByPhone(req.Phone)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
	}

	if !utils.CheckPassword(acct.PasswordHash, req.Password) {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
	}

	if err := h.accounts.StartSession(c.UserContext(), acct.ID); err != nil {
		return ledgerError(err)
	}

	token, err := utils.GenerateToken(h.cfg.JWTSecret, acct.ID, acct.Role, h.cfg.TokenExpires)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"user":    accountView(acct),
		"token":   token,
	})
}

// Logout ends the session of the signed-in device.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	if err := h.accounts.Logout(c.UserContext(), userID); err != nil {
		return ledgerError(err)
	}

	return c.JSON(fiber.Map{"success": true})
}

func accountView(acct models.Account) fiber.Map {
	return fiber.Map{
		"id":               acct.ID,
		"role":             acct.Role,
		"name":             acct.Name,
		"phone":            acct.Phone,
		"email":            acct.Email,
		"address":          acct.Address,
		"avatar":           acct.Avatar,
		"profile_complete": acct.ProfileComplete,
		"wallet_balance":   acct.WalletBalance,
		"documents":        acct.Documents,
	}
}
