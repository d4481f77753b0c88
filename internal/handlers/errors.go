package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/example/carecircle/internal/services"
)

// ledgerError turns a ledger failure into the matching HTTP error. Errors that
// did not come from a ledger pass through as 500s.
func ledgerError(err error) error {
	var le *services.LedgerError
	if !errors.As(err, &le) {
		return err
	}

	status := fiber.StatusBadRequest
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrVersionConflict),
		errors.Is(err, services.ErrBlocked),
		errors.Is(err, services.ErrAlreadyExists):
		status = fiber.StatusConflict
	case errors.Is(err, services.ErrInsufficientFunds),
		errors.Is(err, services.ErrVerificationIncomplete):
		status = fiber.StatusUnprocessableEntity
	case errors.Is(err, services.ErrNotParticipant):
		status = fiber.StatusForbidden
	}
	return fiber.NewError(status, le.Code+": "+le.Err.Error())
}

// ErrorHandler renders fiber errors in the API envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "internal server error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}
