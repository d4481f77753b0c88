package handlers

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/example/carecircle/internal/services"
)

const (
	paymeCodeParseError     = -32700
	paymeCodeMethodNotFound = -32601
	paymeCodeInvalidParams  = -32600
)

// PaymeHandler manages wallet top-ups through Payme.
type PaymeHandler struct {
	payme *services.PaymeService
	log   logrus.FieldLogger
}

// NewPaymeHandler constructs PaymeHandler.
func NewPaymeHandler(payme *services.PaymeService, logger logrus.FieldLogger) *PaymeHandler {
	return &PaymeHandler{payme: payme, log: logger.WithField("component", "payme-rpc")}
}

type paymeRPCRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	ID     any             `json:"id"`
}

type paymeCheckoutRequest struct {
	Amount int64 `json:"amount"`
}

// Pay handles Payme JSON-RPC calls.
func (h *PaymeHandler) Pay(c *fiber.Ctx) error {
	var req paymeRPCRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		h.log.WithError(err).Warn("unparseable rpc body")
		return writeRPCError(c, paymeCodeParseError, "parse error", nil)
	}

	h.log.WithField("method", req.Method).Debug("rpc call")

	ctx := c.UserContext()
	decode := func(v any) bool {
		return json.Unmarshal(req.Params, v) == nil
	}

	switch req.Method {
	case "CheckPerformTransaction":
		var params services.CheckPerformParams
		if !decode(&params) {
			return writeRPCError(c, paymeCodeInvalidParams, "invalid params", req.ID)
		}
		if err := h.payme.CheckPerformTransaction(ctx, params, req.ID); err != nil {
			return writePaymeError(c, err)
		}
		return c.JSON(fiber.Map{"result": fiber.Map{"allow": true}, "id": req.ID})
	case "CheckTransaction":
		var params services.CheckTransactionParams
		if !decode(&params) {
			return writeRPCError(c, paymeCodeInvalidParams, "invalid params", req.ID)
		}
		result, err := h.payme.CheckTransaction(ctx, params, req.ID)
		if err != nil {
			return writePaymeError(c, err)
		}
		return c.JSON(fiber.Map{"result": result, "id": req.ID})
	case "CreateTransaction":
		var params services.CreateTransactionParams
		if !decode(&params) {
			return writeRPCError(c, paymeCodeInvalidParams, "invalid params", req.ID)
		}
		result, err := h.payme.CreateTransaction(ctx, params, req.ID)
		if err != nil {
			return writePaymeError(c, err)
		}
		return c.JSON(fiber.Map{"result": result, "id": req.ID})
	case "PerformTransaction":
		var params services.PerformTransactionParams
		if !decode(&params) {
			return writeRPCError(c, paymeCodeInvalidParams, "invalid params", req.ID)
		}
		result, err := h.payme.PerformTransaction(ctx, params, req.ID)
		if err != nil {
			return writePaymeError(c, err)
		}
		return c.JSON(fiber.Map{"result": result, "id": req.ID})
	case "CancelTransaction":
		var params services.CancelTransactionParams
		if !decode(&params) {
			return writeRPCError(c, paymeCodeInvalidParams, "invalid params", req.ID)
		}
		result, err := h.payme.CancelTransaction(ctx, params, req.ID)
		if err != nil {
			return writePaymeError(c, err)
		}
		return c.JSON(fiber.Map{"result": result, "id": req.ID})
	case "GetStatement":
		var params services.StatementParams
		if !decode(&params) {
			return writeRPCError(c, paymeCodeInvalidParams, "invalid params", req.ID)
		}
		result, err := h.payme.GetStatement(ctx, params)
		if err != nil {
			return writePaymeError(c, err)
		}
		return c.JSON(fiber.Map{"result": fiber.Map{"transactions": result}, "id": req.ID})
	default:
		return writeRPCError(c, paymeCodeMethodNotFound, "method not found", req.ID)
	}
}

// Checkout opens a wallet top-up for the caller and returns the payment URL.
func (h *PaymeHandler) Checkout(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req paymeCheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	checkout, err := h.payme.CreateCheckout(c.UserContext(), userID, req.Amount)
	if err != nil {
		return ledgerError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": checkout})
}

// ListTopUps returns the caller's top-up history.
func (h *PaymeHandler) ListTopUps(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	topUps, err := h.payme.TopUps(c.UserContext(), userID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": topUps})
}

func writePaymeError(c *fiber.Ctx, err error) error {
	var txErr *services.TransactionError
	if !errors.As(err, &txErr) {
		return err
	}
	info := txErr.Info
	return c.JSON(fiber.Map{
		"error": fiber.Map{
			"code": info.Code,
			"message": fiber.Map{
				"uz": info.Message["uz"],
				"ru": info.Message["ru"],
				"en": info.Message["en"],
			},
			"data": txErr.Data,
		},
		"id": txErr.ID,
	})
}

func writeRPCError(c *fiber.Ctx, code int, message string, id any) error {
	return c.JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": fiber.Map{"uz": message, "ru": message, "en": message},
			"data":    nil,
		},
		"id": id,
	})
}
