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

const ordersKey = "orders"

// Wallet is the slice of the account ledger the order and booking ledgers use.
type Wallet interface {
	Debit(ctx context.Context, id string, amount float64, relatedID, description string) (models.WalletTransaction, error)
	Credit(ctx context.Context, id string, amount float64, txType models.TransactionType, relatedID, description string) (models.WalletTransaction, error)
}

// OpsNotifier gets a heads-up about every new order.
type OpsNotifier interface {
	NotifyNewOrder(order models.Order) error
}

var _ Wallet = (*AccountService)(nil)

// OrderService is the pharmacy and grocery request ledger, including carts.
type OrderService struct {
	mu       sync.Mutex
	store    StateStore
	log      logrus.FieldLogger
	now      func() time.Time
	wallet   Wallet
	notifier Notifier
	ops      OpsNotifier
	palBonus float64

	orders []*models.Order
	carts  map[string][]models.CartItem
}

type orderState struct {
	Orders []*models.Order               `json:"orders"`
	Carts  map[string][]models.CartItem `json:"carts"`
}

// CreateOrderInput is everything CreateOrder needs besides the cart.
type CreateOrderInput struct {
	Kind            models.OrderKind `json:"kind"`
	CreatorID       string           `json:"creator_id"`
	CreatorName     string           `json:"creator_name"`
	CreatorRole     models.Role      `json:"creator_role"`
	SeniorID        string           `json:"senior_id"`
	SeniorName      string           `json:"senior_name"`
	FamilyID        string           `json:"family_id"`
	PrescriptionRef string           `json:"prescription_ref"`
}

// OrderFilter narrows List. Zero fields match everything.
type OrderFilter struct {
	Kind     models.OrderKind
	Status   models.OrderStatus
	SeniorID string
	FamilyID string
	PalID    string
}

// NewOrderService builds the ledger and rehydrates it from store.
func NewOrderService(ctx context.Context, store StateStore, logger logrus.FieldLogger, wallet Wallet, notifier Notifier, palBonus float64) (*OrderService, error) {
	s := &OrderService{
		store:    store,
		log:      logger.WithField("component", "orders"),
		now:      time.Now,
		wallet:   wallet,
		notifier: notifier,
		palBonus: palBonus,
		carts:    make(map[string][]models.CartItem),
	}

	if store != nil {
		var state orderState
		if _, err := store.Load(ctx, ordersKey, &state); err != nil {
			return nil, fmt.Errorf("load orders: %w", err)
		}
		s.orders = state.Orders
		for k, v := range state.Carts {
			s.carts[k] = v
		}
	}

	return s, nil
}

// SetOpsNotifier wires the operator alert channel.
func (s *OrderService) SetOpsNotifier(ops OpsNotifier) {
	s.ops = ops
}

func (s *OrderService) saveLocked(ctx context.Context) {
	persist(ctx, s.store, s.log, ordersKey, orderState{Orders: s.orders, Carts: s.carts})
}

func cartKey(owner string, kind models.OrderKind) string {
	return owner + "|" + string(kind)
}

// Cart returns the lines of owner's cart of the given kind.
func (s *OrderService) Cart(owner string, kind models.OrderKind) ([]models.CartItem, error) {
	if !kind.Valid() {
		return nil, ledgerErr("orders.Cart", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.CartItem{}, s.carts[cartKey(owner, kind)]...), nil
}

// AddToCart adds a line, or bumps its quantity when the item is already there.
func (s *OrderService) AddToCart(ctx context.Context, owner string, kind models.OrderKind, item models.CartItem) ([]models.CartItem, error) {
	const op = "orders.AddToCart"

	if !kind.Valid() || owner == "" || strings.TrimSpace(item.ID) == "" || item.Price < 0 {
		return nil, ledgerErr(op, ErrInvalidInput)
	}
	if item.Quantity <= 0 {
		item.Quantity = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := cartKey(owner, kind)
	cart := s.carts[key]
	found := false
	for i := range cart {
		if cart[i].ID == item.ID {
			cart[i].Quantity += item.Quantity
			found = true
			break
		}
	}
	if !found {
		cart = append(cart, item)
	}
	s.carts[key] = cart
	s.saveLocked(ctx)
	return append([]models.CartItem{}, cart...), nil
}

// UpdateQuantity sets the quantity of a line. A quantity of zero or less
// removes it.
func (s *OrderService) UpdateQuantity(ctx context.Context, owner string, kind models.OrderKind, itemID string, qty int) ([]models.CartItem, error) {
	const op = "orders.UpdateQuantity"

	if !kind.Valid() {
		return nil, ledgerErr(op, ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := cartKey(owner, kind)
	cart := s.carts[key]
	idx := -1
	for i := range cart {
		if cart[i].ID == itemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ledgerErr(op, ErrNotFound)
	}

	if qty <= 0 {
		cart = append(cart[:idx], cart[idx+1:]...)
	} else {
		cart[idx].Quantity = qty
	}
	s.carts[key] = cart
	s.saveLocked(ctx)
	return append([]models.CartItem{}, cart...), nil
}

// RemoveFromCart drops a line.
func (s *OrderService) RemoveFromCart(ctx context.Context, owner string, kind models.OrderKind, itemID string) ([]models.CartItem, error) {
	return s.UpdateQuantity(ctx, owner, kind, itemID, 0)
}

// ClearCart empties owner's cart of the given kind.
func (s *OrderService) ClearCart(ctx context.Context, owner string, kind models.OrderKind) error {
	if !kind.Valid() {
		return ledgerErr("orders.ClearCart", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, cartKey(owner, kind))
	s.saveLocked(ctx)
	return nil
}

// CreateOrder turns the creator's cart into an order. Orders from a senior wait
// for family review; orders from family are paid from the family wallet and go
// straight to a pal.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (models.Order, error) {
	const op = "orders.CreateOrder"

	if !in.Kind.Valid() {
		return models.Order{}, ledgerErr(op, ErrInvalidInput)
	}
	if in.CreatorRole != models.RoleSenior && in.CreatorRole != models.RoleFamily {
		return models.Order{}, ledgerErr(op, ErrInvalidRole)
	}
	if in.CreatorRole == models.RoleFamily && in.FamilyID == "" {
		in.FamilyID = in.CreatorID
	}
	if in.CreatorRole == models.RoleSenior && in.SeniorID == "" {
		in.SeniorID = in.CreatorID
		in.SeniorName = in.CreatorName
	}

	s.mu.Lock()
	key := cartKey(in.CreatorID, in.Kind)
	items := append([]models.CartItem{}, s.carts[key]...)

	if len(items) == 0 && in.PrescriptionRef == "" {
		s.mu.Unlock()
		return models.Order{}, ledgerErr(op, ErrEmptyCart)
	}
	if in.Kind == models.OrderPharmacy && models.CartNeedsPrescription(items) && in.PrescriptionRef == "" {
		s.mu.Unlock()
		return models.Order{}, ledgerErr(op, ErrPrescriptionRequired)
	}

	now := s.now()
	order := &models.Order{
		ID:              newID(),
		Kind:            in.Kind,
		CreatorID:       in.CreatorID,
		CreatorName:     in.CreatorName,
		CreatorRole:     in.CreatorRole,
		SeniorID:        in.SeniorID,
		SeniorName:      in.SeniorName,
		FamilyID:        in.FamilyID,
		Items:           items,
		TotalAmount:     models.CartTotal(items),
		Status:          models.StatusSentToFamily,
		PrescriptionRef: in.PrescriptionRef,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if in.CreatorRole == models.RoleFamily {
		order.Status = in.Kind.ForwardedStatus()
		if order.TotalAmount > 0 {
			if _, err := s.wallet.Debit(ctx, in.FamilyID, order.TotalAmount, order.ID, orderDescription(order)); err != nil {
				s.mu.Unlock()
				return models.Order{}, ledgerErr(op, err)
			}
		}
		order.Paid = true
		order.PaidBy = in.FamilyID
	}

	delete(s.carts, key)
	s.orders = append(s.orders, order)
	s.saveLocked(ctx)
	out := cloneOrder(order)
	s.mu.Unlock()

	metrics.RecordOrderTransition(string(out.Kind), string(out.Status))
	s.log.WithFields(logrus.Fields{"order_id": out.ID, "kind": out.Kind, "status": out.Status}).Info("order created")

	if in.CreatorRole == models.RoleSenior {
		notify(ctx, s.notifier, s.log, NotificationInput{
			Title:        "New " + string(out.Kind) + " request",
			Message:      fmt.Sprintf("%s sent a request of %s for your review.", out.SeniorName, formatAmount(out.TotalAmount)),
			Type:         models.NotifOrder,
			ReceiverRole: models.RoleFamily,
			ReceiverID:   out.FamilyID,
			ActionRoute:  "/orders/" + out.ID,
			RelatedID:    out.ID,
		})
	} else {
		notify(ctx, s.notifier, s.log, NotificationInput{
			Title:        "New " + string(out.Kind) + " order",
			Message:      fmt.Sprintf("A paid order of %s is waiting for a pal.", formatAmount(out.TotalAmount)),
			Type:         models.NotifOrder,
			ReceiverRole: models.RolePal,
			ActionRoute:  "/orders/" + out.ID,
			RelatedID:    out.ID,
		})
	}

	if s.ops != nil {
		if err := s.ops.NotifyNewOrder(out); err != nil {
			s.log.WithError(err).WithField("order_id", out.ID).Warn("ops alert failed")
		}
	}
	return out, nil
}

func orderDescription(o *models.Order) string {
	label := "Pharmacy"
	if o.Kind == models.OrderGrocery {
		label = "Grocery"
	}
	return fmt.Sprintf("%s order %s", label, shortID(o.ID))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (s *OrderService) lookupLocked(id string) (*models.Order, error) {
	for _, o := range s.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, ErrNotFound
}

func (s *OrderService) touchLocked(o *models.Order, status models.OrderStatus) {
	o.Status = status
	o.Version++
	o.UpdatedAt = s.now()
}

// ForwardToPal hands a senior's request to the pal pool, paying for it from
// the family wallet unless it is already paid.
func (s *OrderService) ForwardToPal(ctx context.Context, orderID, palID string, expectedVersion int) (models.Order, error) {
	const op = "orders.ForwardToPal"

	s.mu.Lock()
	order, err := s.lookupLocked(orderID)
	if err != nil {
		s.mu.Unlock()
		return models.Order{}, ledgerErr(op, err)
	}
	if err := checkVersion(expectedVersion, order.Version); err != nil {
		s.mu.Unlock()
		return models.Order{}, ledgerErr(op, err)
	}
	if order.Status != models.StatusSentToFamily || order.PalID != "" {
		s.mu.Unlock()
		return models.Order{}, ledgerErr(op, ErrInvalidTransition)
	}

	if !order.Paid && order.TotalAmount > 0 {
		if _, err := s.wallet.Debit(ctx, order.FamilyID, order.TotalAmount, order.ID, orderDescription(order)); err != nil {
			s.mu.Unlock()
			return models.Order{}, ledgerErr(op, err)
		}
		order.Paid = true
		order.PaidBy = order.FamilyID
	}

	order.PalID = palID
	s.touchLocked(order, order.Kind.ForwardedStatus())
	s.saveLocked(ctx)
	out := cloneOrder(order)
	s.mu.Unlock()

	metrics.RecordOrderTransition(string(out.Kind), string(out.Status))
	notify(ctx, s.notifier, s.log, NotificationInput{
		Title:        "New " + string(out.Kind) + " order",
		Message:      fmt.Sprintf("An order of %s for %s is waiting for you.", formatAmount(out.TotalAmount), out.SeniorName),
		Type:         models.NotifOrder,
		ReceiverRole: models.RolePal,
		ReceiverID:   palID,
		ActionRoute:  "/orders/" + out.ID,
		RelatedID:    out.ID,
	})
	return out, nil
}

// AcceptOrder assigns a pal to a forwarded order.
func (s *OrderService) AcceptOrder(ctx context.Context, orderID, palID, palName string, expectedVersion int) (models.Order, error) {
	const op = "orders.AcceptOrder"

	if palID == "" {
		return models.Order{}, ledgerErr(op, ErrInvalidInput)
	}

	s.mu.Lock()
	order, err := s.lookupLocked(orderID)
	if err != nil {
		s.mu.Unlock()
		return models.Order{}, ledgerErr(op, err)
	}
	if err := checkVersion(expectedVersion, order.Version); err != nil {
		s.mu.Unlock()
		return models.Order{}, ledgerErr(op, err)
	}
	if order.Status != order.Kind.ForwardedStatus() || (order.PalID != "" && order.PalID != palID) {
		s.mu.Unlock()
		return models.Order{}, ledgerErr(op, ErrInvalidTransition)
	}
	if order.Kind == models.OrderPharmacy && order.NeedsPrescription() && order.PrescriptionRef == "" {
		s.mu.Unlock()
		return models.Order{}, ledgerErr(op, ErrPrescriptionRequired)
	}

	order.PalID = palID
	order.PalName = palName
	s.touchLocked(order, order.Kind.AcceptedStatus())
	s.saveLocked(ctx)
	out := cloneOrder(order)
	s.mu.Unlock()

	metrics.RecordOrderTransition(string(out.Kind), string(out.Status))
	notify(ctx, s.notifier, s.log, NotificationInput{
		Title:        "Order accepted",
		Message:      fmt.Sprintf("%s accepted the %s order for %s.", palName, out.Kind, out.SeniorName),
		Type:         models.NotifOrder,
		ReceiverRole: models.RoleFamily,
		ReceiverID:   out.FamilyID,
		ActionRoute:  "/orders/" + out.ID,
		RelatedID:    out.ID,
	})
	return out, nil
}

// RejectOrder closes a forwarded or accepted order and refunds the payer.
func (s *OrderService) RejectOrder(ctx context.Context, orderID string, expectedVersion int) (models.Order, error) {
	const op = "orders.RejectOrder"
	return s.closeWithRefund(ctx, op, orderID, expectedVersion, func(o *models.Order) (models.OrderStatus, bool) {
		if o.Status != o.Kind.ForwardedStatus() && o.Status != o.Kind.AcceptedStatus() {
			return "", false
		}
		return o.Kind.RejectedStatus(), true
	}, "Order rejected", "The %s order for %s was rejected.")
}

// CancelOrder withdraws a request that is still waiting for family review.
func (s *OrderService) CancelOrder(ctx context.Context, orderID string, expectedVersion int) (models.Order, error) {
	const op = "orders.CancelOrder"
	return s.closeWithRefund(ctx, op, orderID, expectedVersion, func(o *models.Order) (models.OrderStatus, bool) {
		if o.Status != models.StatusSentToFamily {
			return "", false
		}
		return models.StatusCancelled, true
	}, "Order cancelled", "The %s order for %s was cancelled.")
}

func (s *OrderService) closeWithRefund(ctx context.Context, op, orderID string, expectedVersion int, next func(*models.Order) (models.OrderStatus, bool), title, format string) (models.Order, error) {
	s.mu.Lock()
	order, err := s.lookupLocked(orderID)
	if err != nil {
		s.mu.Unlock()
		return models.Order{}, ledgerErr(op, err)
	}
	if err := checkVersion(expectedVersion, order.Version); err != nil {
		s.mu.Unlock()
		return models.Order{}, ledgerErr(op, err)
	}
	status, ok := next(order)
	if !ok {
		s.mu.Unlock()
		return models.Order{}, ledgerErr(op, ErrInvalidTransition)
	}

	if order.Paid && order.TotalAmount > 0 {
		if _, err := s.wallet.Credit(ctx, order.PaidBy, order.TotalAmount, models.TxRefund, order.ID, "Refund for "+orderDescription(order)); err != nil {
			s.mu.Unlock()
			return models.Order{}, ledgerErr(op, err)
		}
		order.Paid = false
	}

	s.touchLocked(order, status)
	s.saveLocked(ctx)
	out := cloneOrder(order)
	s.mu.Unlock()

	metrics.RecordOrderTransition(string(out.Kind), string(out.Status))
	notify(ctx, s.notifier, s.log, NotificationInput{
		Title:        title,
		Message:      fmt.Sprintf(format, out.Kind, out.SeniorName),
		Type:         models.NotifOrder,
		ReceiverRole: models.RoleFamily,
		ReceiverID:   out.FamilyID,
		ActionRoute:  "/orders/" + out.ID,
		RelatedID:    out.ID,
	})
	return out, nil
}

// CompleteOrder marks an accepted order delivered and pays the pal the order
// total plus the completion bonus.
func (s *OrderService) CompleteOrder(ctx context.Context, orderID string, expectedVersion int) (models.Order, error) {
	const op = "orders.CompleteOrder"

	s.mu.Lock()
	order, err := s.lookupLocked(orderID)
	if err != nil {
		s.mu.Unlock()
		return models.Order{}, ledgerErr(op, err)
	}
	if err := checkVersion(expectedVersion, order.Version); err != nil {
		s.mu.Unlock()
		return models.Order{}, ledgerErr(op, err)
	}
	if order.Status != order.Kind.AcceptedStatus() || order.PalID == "" {
		s.mu.Unlock()
		return models.Order{}, ledgerErr(op, ErrInvalidTransition)
	}

	if payout := order.TotalAmount + s.palBonus; payout > 0 {
		if _, err := s.wallet.Credit(ctx, order.PalID, payout, models.TxEarning, order.ID, "Earnings for "+orderDescription(order)); err != nil {
			s.mu.Unlock()
			return models.Order{}, ledgerErr(op, err)
		}
	}

	s.touchLocked(order, models.StatusCompleted)
	s.saveLocked(ctx)
	out := cloneOrder(order)
	s.mu.Unlock()

	metrics.RecordOrderTransition(string(out.Kind), string(out.Status))
	notify(ctx, s.notifier, s.log, NotificationInput{
		Title:        "Order delivered",
		Message:      fmt.Sprintf("%s completed the %s order for %s.", out.PalName, out.Kind, out.SeniorName),
		Type:         models.NotifOrder,
		ReceiverRole: models.RoleFamily,
		ReceiverID:   out.FamilyID,
		ActionRoute:  "/orders/" + out.ID,
		RelatedID:    out.ID,
	})
	return out, nil
}

// Get returns one order.
func (s *OrderService) Get(orderID string) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, err := s.lookupLocked(orderID)
	if err != nil {
		return models.Order{}, ledgerErr("orders.Get", err)
	}
	return cloneOrder(order), nil
}

// List returns matching orders, newest first.
func (s *OrderService) List(f OrderFilter) []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Order, 0)
	for _, o := range s.orders {
		if f.Kind != "" && o.Kind != f.Kind {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.SeniorID != "" && o.SeniorID != f.SeniorID {
			continue
		}
		if f.FamilyID != "" && o.FamilyID != f.FamilyID {
			continue
		}
		if f.PalID != "" && o.PalID != f.PalID {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func cloneOrder(o *models.Order) models.Order {
	out := *o
	out.Items = append([]models.CartItem(nil), o.Items...)
	return out
}
