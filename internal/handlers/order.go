package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/carecircle/internal/middleware"
	"github.com/example/carecircle/internal/models"
	"github.com/example/carecircle/internal/services"
	"github.com/example/carecircle/internal/utils"
)

// OrderHandler manages cart and order endpoints.
type OrderHandler struct {
	orders   *services.OrderService
	accounts *services.AccountService
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(orders *services.OrderService, accounts *services.AccountService) *OrderHandler {
	return &OrderHandler{orders: orders, accounts: accounts}
}

func cartKind(c *fiber.Ctx) (models.OrderKind, error) {
	kind := models.OrderKind(c.Params("kind"))
	if !kind.Valid() {
		return "", fiber.NewError(fiber.StatusBadRequest, "kind must be pharmacy or grocery")
	}
	return kind, nil
}

func cartResponse(c *fiber.Ctx, items []models.CartItem) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"items":                 items,
			"total":                 models.CartTotal(items),
			"requires_prescription": models.CartNeedsPrescription(items),
		},
	})
}

// GetCart returns the caller's cart of the given kind.
func (h *OrderHandler) GetCart(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	kind, err := cartKind(c)
	if err != nil {
		return err
	}

	items, err := h.orders.Cart(userID, kind)
	if err != nil {
		return ledgerError(err)
	}
	return cartResponse(c, items)
}

// AddCartItem adds a line to the cart.
func (h *OrderHandler) AddCartItem(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	kind, err := cartKind(c)
	if err != nil {
		return err
	}

	var item models.CartItem
	if err := c.BodyParser(&item); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	items, err := h.orders.AddToCart(c.UserContext(), userID, kind, item)
	if err != nil {
		return ledgerError(err)
	}
	return cartResponse(c, items)
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// UpdateCartItem sets a line's quantity; zero removes it.
func (h *OrderHandler) UpdateCartItem(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	kind, err := cartKind(c)
	if err != nil {
		return err
	}

	var req updateQuantityRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	items, err := h.orders.UpdateQuantity(c.UserContext(), userID, kind, c.Params("itemId"), req.Quantity)
	if err != nil {
		return ledgerError(err)
	}
	return cartResponse(c, items)
}

// RemoveCartItem drops a line.
func (h *OrderHandler) RemoveCartItem(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	kind, err := cartKind(c)
	if err != nil {
		return err
	}

	items, err := h.orders.RemoveFromCart(c.UserContext(), userID, kind, c.Params("itemId"))
	if err != nil {
		return ledgerError(err)
	}
	return cartResponse(c, items)
}

// ClearCart empties the cart.
func (h *OrderHandler) ClearCart(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	kind, err := cartKind(c)
	if err != nil {
		return err
	}

	if err := h.orders.ClearCart(c.UserContext(), userID, kind); err != nil {
		return ledgerError(err)
	}
	return cartResponse(c, []models.CartItem{})
}

type createOrderRequest struct {
	Kind            models.OrderKind `json:"kind"`
	SeniorID        string           `json:"senior_id"`
	SeniorName      string           `json:"senior_name"`
	FamilyID        string           `json:"family_id"`
	PrescriptionRef string           `json:"prescription_ref"`
}

// CreateOrder turns the caller's cart into an order.
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	session, ok := middleware.GetSession(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	acct, err := h.accounts.Get(session.AccountID)
	if err != nil {
		return ledgerError(err)
	}

	in := services.CreateOrderInput{
		Kind:            req.Kind,
		CreatorID:       acct.ID,
		CreatorName:     acct.Name,
		CreatorRole:     acct.Role,
		SeniorID:        req.SeniorID,
		SeniorName:      req.SeniorName,
		FamilyID:        req.FamilyID,
		PrescriptionRef: strings.TrimSpace(req.PrescriptionRef),
	}
	if acct.Role == models.RoleSenior {
		in.SeniorID = acct.ID
		in.SeniorName = acct.Name
	}
	if acct.Role == models.RoleFamily {
		in.FamilyID = acct.ID
	}

	order, err := h.orders.CreateOrder(c.UserContext(), in)
	if err != nil {
		return ledgerError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": order})
}

// ListOrders returns the caller's orders. Seniors and family see the orders
// they are party to; pals see what is assigned to them or still open.
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	session, ok := middleware.GetSession(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	filter := services.OrderFilter{
		Kind:   models.OrderKind(c.Query("kind")),
		Status: models.OrderStatus(c.Query("status")),
	}
	switch session.Role {
	case models.RoleSenior:
		filter.SeniorID = session.AccountID
	case models.RoleFamily:
		filter.FamilyID = session.AccountID
	case models.RolePal:
		if c.QueryBool("mine") {
			filter.PalID = session.AccountID
		}
	}

	orders := h.orders.List(filter)
	if session.Role == models.RolePal && filter.PalID == "" {
		visible := orders[:0]
		for _, o := range orders {
			if visibleTo(session, o) {
				visible = append(visible, o)
			}
		}
		orders = visible
	}

	pg := utils.ParsePagination(c)
	return c.JSON(fiber.Map{
		"success":    true,
		"data":       utils.Page(orders, pg),
		"pagination": pg.Meta(len(orders)),
	})
}

// partyOrder loads the order in the id param when the caller is its senior,
// its family or its creator.
func (h *OrderHandler) partyOrder(c *fiber.Ctx) (models.Order, error) {
	userID, err := currentUserID(c)
	if err != nil {
		return models.Order{}, err
	}
	order, err := h.orders.Get(c.Params("id"))
	if err != nil {
		return models.Order{}, ledgerError(err)
	}
	if userID != order.SeniorID && userID != order.FamilyID && userID != order.CreatorID {
		return models.Order{}, fiber.NewError(fiber.StatusForbidden, "not a party to this order")
	}
	return order, nil
}

// visibleTo reports whether the caller may see order. Parties always do; pals
// do while it is unassigned or assigned to them.
func visibleTo(session utils.Session, order models.Order) bool {
	id := session.AccountID
	if id == order.SeniorID || id == order.FamilyID || id == order.CreatorID {
		return true
	}
	return session.Role == models.RolePal && (order.PalID == "" || order.PalID == id)
}

// GetOrder returns one order the caller may see.
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	session, ok := middleware.GetSession(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	order, err := h.orders.Get(c.Params("id"))
	if err != nil {
		return ledgerError(err)
	}
	if !visibleTo(session, order) {
		return fiber.NewError(fiber.StatusForbidden, "not allowed to view this order")
	}
	return c.JSON(fiber.Map{"success": true, "data": order})
}

type orderTransitionRequest struct {
	ExpectedVersion int    `json:"expected_version"`
	PalID           string `json:"pal_id"`
}

func parseTransition(c *fiber.Ctx) (orderTransitionRequest, error) {
	var req orderTransitionRequest
	if len(c.Body()) == 0 {
		return req, nil
	}
	if err := c.BodyParser(&req); err != nil {
		return req, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return req, nil
}

func orderResponse(c *fiber.Ctx, order models.Order, err error) error {
	if err != nil {
		return ledgerError(err)
	}
	return c.JSON(fiber.Map{"success": true, "data": order})
}

// ForwardOrder sends a senior's request on to the pal pool.
func (h *OrderHandler) ForwardOrder(c *fiber.Ctx) error {
	req, err := parseTransition(c)
	if err != nil {
		return err
	}
	existing, err := h.partyOrder(c)
	if err != nil {
		return err
	}
	order, err := h.orders.ForwardToPal(c.UserContext(), existing.ID, req.PalID, req.ExpectedVersion)
	return orderResponse(c, order, err)
}

// AcceptOrder assigns the calling pal.
func (h *OrderHandler) AcceptOrder(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	req, err := parseTransition(c)
	if err != nil {
		return err
	}
	acct, err := h.accounts.Get(userID)
	if err != nil {
		return ledgerError(err)
	}

	order, err := h.orders.AcceptOrder(c.UserContext(), c.Params("id"), acct.ID, acct.Name, req.ExpectedVersion)
	return orderResponse(c, order, err)
}

// RejectOrder turns a forwarded or accepted order down. The assigned pal or the
// order's family may do so.
func (h *OrderHandler) RejectOrder(c *fiber.Ctx) error {
	req, err := parseTransition(c)
	if err != nil {
		return err
	}
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	existing, err := h.orders.Get(c.Params("id"))
	if err != nil {
		return ledgerError(err)
	}
	assignedPal := existing.PalID != "" && existing.PalID == userID
	if !assignedPal && existing.FamilyID != userID {
		return fiber.NewError(fiber.StatusForbidden, "only the assigned pal or the family may reject this order")
	}
	order, err := h.orders.RejectOrder(c.UserContext(), existing.ID, req.ExpectedVersion)
	return orderResponse(c, order, err)
}

// CancelOrder withdraws a request still waiting for family review.
func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	req, err := parseTransition(c)
	if err != nil {
		return err
	}
	existing, err := h.partyOrder(c)
	if err != nil {
		return err
	}
	order, err := h.orders.CancelOrder(c.UserContext(), existing.ID, req.ExpectedVersion)
	return orderResponse(c, order, err)
}

// CompleteOrder marks an accepted order delivered. Only the assigned pal may do so.
func (h *OrderHandler) CompleteOrder(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	req, err := parseTransition(c)
	if err != nil {
		return err
	}

	existing, err := h.orders.Get(c.Params("id"))
	if err != nil {
		return ledgerError(err)
	}
	if existing.PalID != userID {
		return fiber.NewError(fiber.StatusForbidden, "order is assigned to another pal")
	}

	order, err := h.orders.CompleteOrder(c.UserContext(), existing.ID, req.ExpectedVersion)
	return orderResponse(c, order, err)
}
