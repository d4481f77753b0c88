package services

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/example/carecircle/internal/database"
	"github.com/example/carecircle/internal/models"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type ledgers struct {
	store         *database.MemoryStore
	accounts      *AccountService
	notifications *NotificationService
	chats         *ChatService
	orders        *OrderService
	bookings      *BookingService
}

func newLedgers(t *testing.T, chatOpts ChatOptions) *ledgers {
	t.Helper()
	return loadLedgers(t, database.NewMemoryStore(), chatOpts)
}

func loadLedgers(t *testing.T, store *database.MemoryStore, chatOpts ChatOptions) *ledgers {
	t.Helper()
	ctx := context.Background()
	log := quietLogger()

	accounts, err := NewAccountService(ctx, store, log)
	require.NoError(t, err)
	notifications, err := NewNotificationService(ctx, store, log)
	require.NoError(t, err)
	accounts.SetNotifier(notifications)

	chats, err := NewChatService(ctx, store, log, notifications, chatOpts)
	require.NoError(t, err)
	t.Cleanup(chats.Close)

	orders, err := NewOrderService(ctx, store, log, accounts, notifications, 50)
	require.NoError(t, err)
	bookings, err := NewBookingService(ctx, store, log, accounts, notifications, chats)
	require.NoError(t, err)

	return &ledgers{
		store:         store,
		accounts:      accounts,
		notifications: notifications,
		chats:         chats,
		orders:        orders,
		bookings:      bookings,
	}
}

func (l *ledgers) register(t *testing.T, role models.Role, name, phone string) models.Account {
	t.Helper()
	acct, err := l.accounts.Register(context.Background(), RegisterInput{
		Phone:        phone,
		PasswordHash: "hash",
		Role:         role,
		Name:         name,
	})
	require.NoError(t, err)
	return acct
}

func (l *ledgers) fund(t *testing.T, id string, amount float64) {
	t.Helper()
	_, err := l.accounts.Credit(context.Background(), id, amount, models.TxTopUp, "", "seed")
	require.NoError(t, err)
}

func (l *ledgers) balance(t *testing.T, id string) float64 {
	t.Helper()
	acct, err := l.accounts.Get(id)
	require.NoError(t, err)
	return acct.WalletBalance
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}
