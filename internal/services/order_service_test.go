package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/carecircle/internal/models"
)

type recordingOps struct {
	orders []models.Order
}

func (r *recordingOps) NotifyNewOrder(order models.Order) error {
	r.orders = append(r.orders, order)
	return nil
}

func fillCart(t *testing.T, l *ledgers, owner string, kind models.OrderKind, items ...models.CartItem) {
	t.Helper()
	for _, item := range items {
		_, err := l.orders.AddToCart(context.Background(), owner, kind, item)
		require.NoError(t, err)
	}
}

func TestCartMergesAndRemovesLines(t *testing.T) {
	l := newLedgers(t, ChatOptions{})
	ctx := context.Background()

	fillCart(t, l, "fam-1", models.OrderGrocery,
		models.CartItem{ID: "rice", Name: "Rice", Price: 80, Quantity: 1},
		models.CartItem{ID: "rice", Name: "Rice", Price: 80, Quantity: 2},
		models.CartItem{ID: "milk", Name: "Milk", Price: 30},
	)

	cart, err := l.orders.Cart("fam-1", models.OrderGrocery)
	require.NoError(t, err)
	require.Len(t, cart, 2)
	assert.Equal(t, 3, cart[0].Quantity)
	assert.Equal(t, 1, cart[1].Quantity)

	cart, err = l.orders.UpdateQuantity(ctx, "fam-1", models.OrderGrocery, "rice", 0)
	require.NoError(t, err)
	require.Len(t, cart, 1)
	assert.Equal(t, "milk", cart[0].ID)

	_, err = l.orders.RemoveFromCart(ctx, "fam-1", models.OrderGrocery, "bread")
	assert.ErrorIs(t, err, ErrNotFound)

	other, err := l.orders.Cart("fam-1", models.OrderPharmacy)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestFamilyOrderDebitsWalletOnce(t *testing.T) {
	l := newLedgers(t, ChatOptions{})
	ops := &recordingOps{}
	l.orders.SetOpsNotifier(ops)
	ctx := context.Background()

	family := l.register(t, models.RoleFamily, "Meera", "+911")
	l.fund(t, family.ID, 1000)

	fillCart(t, l, family.ID, models.OrderPharmacy,
		models.CartItem{ID: "p1", Name: "Paracetamol", Price: 50, Quantity: 2},
		models.CartItem{ID: "p2", Name: "Vitamin D", Price: 110, Quantity: 1},
	)

	order, err := l.orders.CreateOrder(ctx, CreateOrderInput{
		Kind:        models.OrderPharmacy,
		CreatorID:   family.ID,
		CreatorName: family.Name,
		CreatorRole: models.RoleFamily,
		SeniorName:  "Ravi",
	})
	require.NoError(t, err)

	assert.Equal(t, 210.0, order.TotalAmount)
	assert.Equal(t, models.StatusProcessing, order.Status)
	assert.True(t, order.Paid)
	assert.Equal(t, family.ID, order.PaidBy)
	assert.Equal(t, 1, order.Version)
	assert.Equal(t, 790.0, l.balance(t, family.ID))
	require.Len(t, ops.orders, 1)

	cart, err := l.orders.Cart(family.ID, models.OrderPharmacy)
	require.NoError(t, err)
	assert.Empty(t, cart)

	_, err = l.orders.ForwardToPal(ctx, order.ID, "", 0)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 790.0, l.balance(t, family.ID))
}

func TestSeniorOrderForwardRejectRefunds(t *testing.T) {
	l := newLedgers(t, ChatOptions{})
	ctx := context.Background()

	family := l.register(t, models.RoleFamily, "Meera", "+911")
	senior := l.register(t, models.RoleSenior, "Ravi", "+912")
	l.fund(t, family.ID, 1000)

	fillCart(t, l, senior.ID, models.OrderPharmacy,
		models.CartItem{ID: "p1", Name: "Insulin", Price: 500, Quantity: 1},
	)

	order, err := l.orders.CreateOrder(ctx, CreateOrderInput{
		Kind:        models.OrderPharmacy,
		CreatorID:   senior.ID,
		CreatorName: senior.Name,
		CreatorRole: models.RoleSenior,
		FamilyID:    family.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSentToFamily, order.Status)
	assert.False(t, order.Paid)
	assert.Equal(t, senior.ID, order.SeniorID)
	assert.Equal(t, 1000.0, l.balance(t, family.ID))

	inbox, err := l.notifications.FetchNotifications(ctx, models.RoleFamily, family.ID)
	require.NoError(t, err)
	require.NotEmpty(t, inbox)
	assert.Equal(t, order.ID, inbox[0].RelatedID)

	forwarded, err := l.orders.ForwardToPal(ctx, order.ID, "", order.Version)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, forwarded.Status)
	assert.Equal(t, 2, forwarded.Version)
	assert.Equal(t, 500.0, l.balance(t, family.ID))

	rejected, err := l.orders.RejectOrder(ctx, order.ID, forwarded.Version)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)
	assert.False(t, rejected.Paid)
	assert.Equal(t, 1000.0, l.balance(t, family.ID))

	txs, err := l.accounts.Transactions(family.ID)
	require.NoError(t, err)
	var refunds []models.WalletTransaction
	for _, tx := range txs {
		if tx.Type == models.TxRefund {
			refunds = append(refunds, tx)
		}
	}
	require.Len(t, refunds, 1)
	assert.Equal(t, 500.0, refunds[0].Amount)
	assert.Equal(t, order.ID, refunds[0].RelatedID)
}

func TestGroceryRejectEndsCancelled(t *testing.T) {
	l := newLedgers(t, ChatOptions{})
	ctx := context.Background()

	family := l.register(t, models.RoleFamily, "Meera", "+911")
	l.fund(t, family.ID, 300)
	fillCart(t, l, family.ID, models.OrderGrocery, models.CartItem{ID: "g1", Name: "Atta", Price: 120})

	order, err := l.orders.CreateOrder(ctx, CreateOrderInput{Kind: models.OrderGrocery, CreatorID: family.ID, CreatorRole: models.RoleFamily})
	require.NoError(t, err)
	assert.Equal(t, models.StatusForwardedToPal, order.Status)

	rejected, err := l.orders.RejectOrder(ctx, order.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, rejected.Status)
	assert.Equal(t, 300.0, l.balance(t, family.ID))
}

func TestCreateOrderPreconditions(t *testing.T) {
	l := newLedgers(t, ChatOptions{})
	ctx := context.Background()

	family := l.register(t, models.RoleFamily, "Meera", "+911")
	l.fund(t, family.ID, 100)

	_, err := l.orders.CreateOrder(ctx, CreateOrderInput{Kind: models.OrderGrocery, CreatorID: family.ID, CreatorRole: models.RoleFamily})
	assert.ErrorIs(t, err, ErrEmptyCart)

	fillCart(t, l, family.ID, models.OrderPharmacy,
		models.CartItem{ID: "abx", Name: "Amoxicillin", Price: 210, RequiresPrescription: true},
	)
	_, err = l.orders.CreateOrder(ctx, CreateOrderInput{Kind: models.OrderPharmacy, CreatorID: family.ID, CreatorRole: models.RoleFamily})
	assert.ErrorIs(t, err, ErrPrescriptionRequired)

	_, err = l.orders.CreateOrder(ctx, CreateOrderInput{Kind: models.OrderPharmacy, CreatorID: family.ID, CreatorRole: models.RolePal})
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = l.orders.CreateOrder(ctx, CreateOrderInput{
		Kind:            models.OrderPharmacy,
		CreatorID:       family.ID,
		CreatorRole:     models.RoleFamily,
		PrescriptionRef: "rx-1",
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	cart, err := l.orders.Cart(family.ID, models.OrderPharmacy)
	require.NoError(t, err)
	assert.Len(t, cart, 1)
	assert.Empty(t, l.orders.List(OrderFilter{}))
	assert.Equal(t, 100.0, l.balance(t, family.ID))
}

func TestVersionConflictLeavesOrderUntouched(t *testing.T) {
	l := newLedgers(t, ChatOptions{})
	ctx := context.Background()

	family := l.register(t, models.RoleFamily, "Meera", "+911")
	senior := l.register(t, models.RoleSenior, "Ravi", "+912")
	l.fund(t, family.ID, 1000)
	fillCart(t, l, senior.ID, models.OrderGrocery, models.CartItem{ID: "g1", Name: "Dal", Price: 90})

	order, err := l.orders.CreateOrder(ctx, CreateOrderInput{Kind: models.OrderGrocery, CreatorID: senior.ID, CreatorRole: models.RoleSenior, FamilyID: family.ID})
	require.NoError(t, err)

	_, err = l.orders.ForwardToPal(ctx, order.ID, "", 7)
	require.ErrorIs(t, err, ErrVersionConflict)

	var lerr *LedgerError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, "VERSION_CONFLICT", lerr.Code)

	stored, err := l.orders.Get(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSentToFamily, stored.Status)
	assert.Equal(t, 1, stored.Version)
	assert.Equal(t, 1000.0, l.balance(t, family.ID))
}

func TestCompleteOrderPaysPalWithBonus(t *testing.T) {
	l := newLedgers(t, ChatOptions{})
	ctx := context.Background()

	family := l.register(t, models.RoleFamily, "Meera", "+911")
	pal := l.register(t, models.RolePal, "Arjun", "+913")
	l.fund(t, family.ID, 1000)
	fillCart(t, l, family.ID, models.OrderGrocery, models.CartItem{ID: "g1", Name: "Vegetables", Price: 210})

	order, err := l.orders.CreateOrder(ctx, CreateOrderInput{Kind: models.OrderGrocery, CreatorID: family.ID, CreatorRole: models.RoleFamily})
	require.NoError(t, err)

	_, err = l.orders.CompleteOrder(ctx, order.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	accepted, err := l.orders.AcceptOrder(ctx, order.ID, pal.ID, pal.Name, order.Version)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAcceptedByPal, accepted.Status)

	_, err = l.orders.AcceptOrder(ctx, order.ID, "someone-else", "X", 0)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	done, err := l.orders.CompleteOrder(ctx, order.ID, accepted.Version)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)

	palAcct, err := l.accounts.Get(pal.ID)
	require.NoError(t, err)
	assert.Equal(t, 260.0, palAcct.WalletBalance)
	assert.Equal(t, 260.0, palAcct.TotalEarnings)

	mine := l.orders.List(OrderFilter{PalID: pal.ID})
	require.Len(t, mine, 1)
	assert.Equal(t, order.ID, mine[0].ID)
}

func TestCancelUnpaidRequest(t *testing.T) {
	l := newLedgers(t, ChatOptions{})
	ctx := context.Background()

	senior := l.register(t, models.RoleSenior, "Ravi", "+912")
	fillCart(t, l, senior.ID, models.OrderGrocery, models.CartItem{ID: "g1", Name: "Bread", Price: 40})

	order, err := l.orders.CreateOrder(ctx, CreateOrderInput{Kind: models.OrderGrocery, CreatorID: senior.ID, CreatorRole: models.RoleSenior, FamilyID: "fam-x"})
	require.NoError(t, err)

	cancelled, err := l.orders.CancelOrder(ctx, order.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	_, err = l.orders.CancelOrder(ctx, order.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
