package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/carecircle/internal/middleware"
	"github.com/example/carecircle/internal/models"
	"github.com/example/carecircle/internal/services"
)

// GigHandler manages the gig board.
type GigHandler struct {
	gigs     *services.BookingService
	accounts *services.AccountService
}

// NewGigHandler constructs GigHandler.
func NewGigHandler(gigs *services.BookingService, accounts *services.AccountService) *GigHandler {
	return &GigHandler{gigs: gigs, accounts: accounts}
}

// ListGigs refreshes the board and returns gigs filtered by status and, with
// mine=true, by the calling pal.
func (h *GigHandler) ListGigs(c *fiber.Ctx) error {
	session, ok := middleware.GetSession(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	h.gigs.FetchGigs(c.UserContext())

	palID := ""
	if c.QueryBool("mine") {
		palID = session.AccountID
	}
	gigs := h.gigs.List(models.GigStatus(c.Query("status")), palID)

	return c.JSON(fiber.Map{"success": true, "data": gigs})
}

type createGigRequest struct {
	Service      string   `json:"service"`
	Date         string   `json:"date"`
	Day          string   `json:"day"`
	Time         string   `json:"time"`
	Duration     string   `json:"duration"`
	Price        float64  `json:"price"`
	Location     string   `json:"location"`
	Requirements []string `json:"requirements"`
}

// CreateGig posts a new request on behalf of the caller.
func (h *GigHandler) CreateGig(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req createGigRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	acct, err := h.accounts.Get(userID)
	if err != nil {
		return ledgerError(err)
	}

	gig, err := h.gigs.AddGig(c.UserContext(), models.Gig{
		RequesterID:   acct.ID,
		RequesterName: acct.Name,
		Service:       req.Service,
		Date:          req.Date,
		Day:           req.Day,
		Time:          req.Time,
		Duration:      req.Duration,
		Price:         req.Price,
		Location:      req.Location,
		Requirements:  req.Requirements,
	})
	if err != nil {
		return ledgerError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": gig})
}

type gigTransitionRequest struct {
	ExpectedVersion int `json:"expected_version"`
}

func parseGigTransition(c *fiber.Ctx) (gigTransitionRequest, error) {
	var req gigTransitionRequest
	if len(c.Body()) == 0 {
		return req, nil
	}
	if err := c.BodyParser(&req); err != nil {
		return req, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return req, nil
}

// AcceptGig books the gig for the calling pal and opens the conversation.
func (h *GigHandler) AcceptGig(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	req, err := parseGigTransition(c)
	if err != nil {
		return err
	}
	acct, err := h.accounts.Get(userID)
	if err != nil {
		return ledgerError(err)
	}

	result, err := h.gigs.AcceptGig(c.UserContext(), c.Params("id"), acct.ID, acct.Name, req.ExpectedVersion)
	if err != nil {
		return ledgerError(err)
	}

	return c.JSON(fiber.Map{"success": true, "data": result})
}

// DeclineGig takes a pending gig off the board.
func (h *GigHandler) DeclineGig(c *fiber.Ctx) error {
	req, err := parseGigTransition(c)
	if err != nil {
		return err
	}

	gig, err := h.gigs.DeclineGig(c.UserContext(), c.Params("id"), req.ExpectedVersion)
	if err != nil {
		return ledgerError(err)
	}

	return c.JSON(fiber.Map{"success": true, "data": gig})
}

// CompleteGig closes the caller's accepted gig and pays them.
func (h *GigHandler) CompleteGig(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	req, err := parseGigTransition(c)
	if err != nil {
		return err
	}

	existing, err := h.gigs.Get(c.Params("id"))
	if err != nil {
		return ledgerError(err)
	}
	if existing.PalID != userID {
		return fiber.NewError(fiber.StatusForbidden, "gig is assigned to another pal")
	}

	gig, err := h.gigs.CompleteGig(c.UserContext(), existing.ID, req.ExpectedVersion)
	if err != nil {
		return ledgerError(err)
	}

	return c.JSON(fiber.Map{"success": true, "data": gig})
}
