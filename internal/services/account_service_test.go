package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/carecircle/internal/models"
)

type chanMailer struct {
	sent chan models.SupportTicket
}

func (m *chanMailer) SendSupportTicket(_ models.Account, ticket models.SupportTicket) error {
	m.sent <- ticket
	return nil
}

func TestRegisterRejectsDuplicatesAndBadRoles(t *testing.T) {
	l := newLedgers(t, ChatOptions{})
	ctx := context.Background()

	l.register(t, models.RoleFamily, "Meera", "+911")

	_, err := l.accounts.Register(ctx, RegisterInput{Phone: "+911", PasswordHash: "x", Role: models.RolePal})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = l.accounts.Register(ctx, RegisterInput{Phone: "+919", PasswordHash: "x", Role: "admin"})
	assert.ErrorIs(t, err, ErrInvalidRole)

	acct, err := l.accounts.GetByPhone(" +911 ")
	require.NoError(t, err)
	assert.Equal(t, "Meera", acct.Name)
}

func TestWithdrawRequiresVerifiedDocuments(t *testing.T) {
	l := newLedgers(t, ChatOptions{})
	ctx := context.Background()

	pal := l.register(t, models.RolePal, "Arjun", "+913")
	pal, err := l.accounts.CompleteProfile(ctx, pal.ID, models.AccountPatch{})
	require.NoError(t, err)
	require.True(t, pal.ProfileComplete)
	require.Equal(t, 2500.0, pal.WalletBalance)

	_, err = l.accounts.WithdrawFunds(ctx, pal.ID, 500)
	assert.ErrorIs(t, err, ErrVerificationIncomplete)
	assert.Equal(t, 2500.0, l.balance(t, pal.ID))

	_, err = l.accounts.ReviewVerificationDoc(ctx, pal.ID, models.DocBankDetails, models.DocumentVerified)
	require.NoError(t, err)

	_, err = l.accounts.WithdrawFunds(ctx, pal.ID, 9000)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	tx, err := l.accounts.WithdrawFunds(ctx, pal.ID, 500)
	require.NoError(t, err)
	assert.Equal(t, models.TxWithdrawal, tx.Type)

	acct, err := l.accounts.Get(pal.ID)
	require.NoError(t, err)
	assert.Equal(t, 2000.0, acct.WalletBalance)
	assert.Equal(t, 2500.0, acct.TotalWithdrawals)
}

func TestReuploadResetsVerification(t *testing.T) {
	l := newLedgers(t, ChatOptions{})
	ctx := context.Background()

	pal := l.register(t, models.RolePal, "Arjun", "+913")
	_, err := l.accounts.CompleteProfile(ctx, pal.ID, models.AccountPatch{})
	require.NoError(t, err)

	doc, err := l.accounts.UploadVerificationDoc(ctx, pal.ID, models.DocIDProof, "s3://id.png")
	require.NoError(t, err)
	assert.Equal(t, models.DocumentPending, doc.Status)

	acct, err := l.accounts.Get(pal.ID)
	require.NoError(t, err)
	assert.Len(t, acct.Documents, 3)
	assert.False(t, acct.WithdrawalVerified())

	_, err = l.accounts.ReviewVerificationDoc(ctx, pal.ID, "passport", models.DocumentVerified)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = l.accounts.ReviewVerificationDoc(ctx, pal.ID, models.DocIDProof, models.DocumentPending)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDebitNeverOverdraws(t *testing.T) {
	l := newLedgers(t, ChatOptions{})
	ctx := context.Background()

	family := l.register(t, models.RoleFamily, "Meera", "+911")
	l.fund(t, family.ID, 100)

	_, err := l.accounts.Debit(ctx, family.ID, 100.01, "o1", "order")
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	_, err = l.accounts.Debit(ctx, family.ID, 0, "o1", "order")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = l.accounts.Debit(ctx, family.ID, 100, "o1", "order")
	require.NoError(t, err)
	assert.Zero(t, l.balance(t, family.ID))
}

func TestLogoutKeepsWallet(t *testing.T) {
	l := newLedgers(t, ChatOptions{})
	ctx := context.Background()

	family := l.register(t, models.RoleFamily, "Meera", "+911")
	l.fund(t, family.ID, 250)
	require.NoError(t, l.accounts.SetDeviceToken(ctx, family.ID, "tok-1"))
	assert.Equal(t, []string{"tok-1"}, l.accounts.DeviceTokens(models.RoleFamily, ""))

	require.NoError(t, l.accounts.Logout(ctx, family.ID))

	acct, err := l.accounts.Get(family.ID)
	require.NoError(t, err)
	assert.False(t, acct.SessionActive)
	assert.Equal(t, 250.0, acct.WalletBalance)
	assert.Empty(t, l.accounts.DeviceTokens(models.RoleFamily, ""))
}

func TestSupportTicketIsMailed(t *testing.T) {
	l := newLedgers(t, ChatOptions{})
	mailer := &chanMailer{sent: make(chan models.SupportTicket, 1)}
	l.accounts.SetMailer(mailer)

	family := l.register(t, models.RoleFamily, "Meera", "+911")

	_, err := l.accounts.CreateSupportTicket(context.Background(), family.ID, "", "help")
	assert.ErrorIs(t, err, ErrInvalidInput)

	ticket, err := l.accounts.CreateSupportTicket(context.Background(), family.ID, "Payments", "Top-up not credited")
	require.NoError(t, err)
	assert.Equal(t, "Open", ticket.Status)

	select {
	case got := <-mailer.sent:
		assert.Equal(t, ticket.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("ticket was not mailed")
	}

	tickets, err := l.accounts.Tickets(family.ID)
	require.NoError(t, err)
	assert.Len(t, tickets, 1)
}

func TestLedgersSurviveRestart(t *testing.T) {
	l := newLedgers(t, ChatOptions{})
	ctx := context.Background()

	family := l.register(t, models.RoleFamily, "Meera", "+911")
	l.fund(t, family.ID, 1000)
	fillCart(t, l, family.ID, models.OrderGrocery, models.CartItem{ID: "g1", Name: "Rice", Price: 210})
	order, err := l.orders.CreateOrder(ctx, CreateOrderInput{Kind: models.OrderGrocery, CreatorID: family.ID, CreatorRole: models.RoleFamily})
	require.NoError(t, err)
	fillCart(t, l, family.ID, models.OrderPharmacy, models.CartItem{ID: "p1", Name: "Syrup", Price: 60})
	conv := openConversation(t, l)
	_, err = l.chats.ToggleBlockUser(ctx, palP.ID, familyP.ID)
	require.NoError(t, err)

	reloaded := loadLedgers(t, l.store, ChatOptions{})

	acct, err := reloaded.accounts.Get(family.ID)
	require.NoError(t, err)
	assert.Equal(t, 790.0, acct.WalletBalance)
	assert.Len(t, acct.Transactions, 2)

	stored, err := reloaded.orders.Get(order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.Status, stored.Status)
	assert.Equal(t, order.Version, stored.Version)

	cart, err := reloaded.orders.Cart(family.ID, models.OrderPharmacy)
	require.NoError(t, err)
	assert.Len(t, cart, 1)

	again, created, err := reloaded.chats.CreateConversation(ctx, familyP, palP, "gig-1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, conv.ID, again.ID)
	assert.True(t, reloaded.chats.IsUserBlocked(palP.ID, familyP.ID))
}
