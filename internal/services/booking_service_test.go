package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/carecircle/internal/models"
)

func countPending(gigs []models.Gig) int {
	n := 0
	for _, g := range gigs {
		if g.Status == models.GigPending {
			n++
		}
	}
	return n
}

func TestFetchGigsSeedsOnlyWhenPoolIsLow(t *testing.T) {
	l := newLedgers(t, ChatOptions{})
	ctx := context.Background()

	gigs := l.bookings.FetchGigs(ctx)
	require.Len(t, gigs, 3)
	assert.Equal(t, "Priya Sharma", gigs[0].RequesterName)
	for _, g := range gigs {
		assert.Equal(t, models.GigPending, g.Status)
		assert.Equal(t, 1, g.Version)
		assert.NotEmpty(t, g.ID)
	}

	assert.Len(t, l.bookings.FetchGigs(ctx), 3)
}

func TestAcceptGigOnlyOnce(t *testing.T) {
	l := newLedgers(t, ChatOptions{})
	ctx := context.Background()

	pal := l.register(t, models.RolePal, "Arjun", "+913")
	other := l.register(t, models.RolePal, "Kiran", "+914")
	gig := l.bookings.FetchGigs(ctx)[0]

	result, err := l.bookings.AcceptGig(ctx, gig.ID, pal.ID, pal.Name, gig.Version)
	require.NoError(t, err)
	assert.Equal(t, models.GigAccepted, result.Gig.Status)
	assert.Equal(t, pal.ID, result.Gig.PalID)
	assert.Equal(t, gig.ID, result.Conversation.RelatedID)
	assert.True(t, result.Conversation.Has(pal.ID))
	assert.True(t, result.Conversation.Has("family-"+gig.ID))

	_, err = l.bookings.AcceptGig(ctx, gig.ID, other.ID, other.Name, 0)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	stored, err := l.bookings.Get(gig.ID)
	require.NoError(t, err)
	assert.Equal(t, pal.ID, stored.PalID)
	assert.Equal(t, 2, stored.Version)

	inbox, err := l.notifications.FetchNotifications(ctx, models.RolePal, pal.ID)
	require.NoError(t, err)
	titles := make([]string, 0, len(inbox))
	for _, n := range inbox {
		titles = append(titles, n.Title)
	}
	assert.Contains(t, titles, "Gig confirmed")
}

func TestAcceptGigReusesConversation(t *testing.T) {
	l := newLedgers(t, ChatOptions{})
	ctx := context.Background()

	pal := l.register(t, models.RolePal, "Arjun", "+913")
	family := l.register(t, models.RoleFamily, "Meera", "+911")

	gig, err := l.bookings.AddGig(ctx, models.Gig{
		RequesterID:   family.ID,
		RequesterName: family.Name,
		Service:       "Evening walk",
		Date:          "2026-10-20",
		Price:         400,
	})
	require.NoError(t, err)

	existing, created, err := l.chats.CreateConversation(ctx,
		models.Participant{ID: family.ID, Name: family.Name, Role: models.RoleFamily},
		models.Participant{ID: pal.ID, Name: pal.Name, Role: models.RolePal},
		gig.ID,
	)
	require.NoError(t, err)
	require.True(t, created)

	result, err := l.bookings.AcceptGig(ctx, gig.ID, pal.ID, pal.Name, 0)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, result.Conversation.ID)
	assert.Len(t, l.chats.Conversations(pal.ID), 1)
}

func TestCompleteGigCreditsPal(t *testing.T) {
	l := newLedgers(t, ChatOptions{})
	ctx := context.Background()

	pal := l.register(t, models.RolePal, "Arjun", "+913")
	gig := l.bookings.FetchGigs(ctx)[0]

	_, err := l.bookings.CompleteGig(ctx, gig.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	accepted, err := l.bookings.AcceptGig(ctx, gig.ID, pal.ID, pal.Name, 0)
	require.NoError(t, err)

	_, err = l.bookings.CompleteGig(ctx, gig.ID, accepted.Gig.Version+3)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, 0.0, l.balance(t, pal.ID))

	done, err := l.bookings.CompleteGig(ctx, gig.ID, accepted.Gig.Version)
	require.NoError(t, err)
	assert.Equal(t, models.GigCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	acct, err := l.accounts.Get(pal.ID)
	require.NoError(t, err)
	assert.Equal(t, gig.Price, acct.WalletBalance)
	assert.Equal(t, gig.Price, acct.TotalEarnings)

	mine := l.bookings.List(models.GigCompleted, pal.ID)
	require.Len(t, mine, 1)
}

func TestDeclineGig(t *testing.T) {
	l := newLedgers(t, ChatOptions{})
	ctx := context.Background()

	gigs := l.bookings.FetchGigs(ctx)
	declined, err := l.bookings.DeclineGig(ctx, gigs[1].ID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.GigDeclined, declined.Status)

	_, err = l.bookings.AcceptGig(ctx, gigs[1].ID, "pal-1", "Arjun", 0)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = l.bookings.DeclineGig(ctx, "missing", 0)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.GreaterOrEqual(t, countPending(l.bookings.FetchGigs(ctx)), minPendingGigs)
}

func TestAddGigValidates(t *testing.T) {
	l := newLedgers(t, ChatOptions{})

	_, err := l.bookings.AddGig(context.Background(), models.Gig{RequesterName: "Priya"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = l.bookings.AddGig(context.Background(), models.Gig{RequesterName: "Priya", Service: "Visit", Price: -1})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
