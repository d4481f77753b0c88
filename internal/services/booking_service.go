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

const gigsKey = "gigs"

// minPendingGigs is the pending pool size below which FetchGigs tops up the
// pool from the canned templates.
const minPendingGigs = 2

// ConversationOpener opens the chat between a pal and the family that booked them.
type ConversationOpener interface {
	CreateConversation(ctx context.Context, self, other models.Participant, relatedID string) (models.Conversation, bool, error)
}

var _ ConversationOpener = (*ChatService)(nil)

// BookingService is the gig ledger.
type BookingService struct {
	mu       sync.Mutex
	store    StateStore
	log      logrus.FieldLogger
	now      func() time.Time
	wallet   Wallet
	notifier Notifier
	chats    ConversationOpener

	gigs []*models.Gig
}

type gigState struct {
	Gigs []*models.Gig `json:"gigs"`
}

// AcceptedGig is the outcome of AcceptGig.
type AcceptedGig struct {
	Gig          models.Gig          `json:"gig"`
	Conversation models.Conversation `json:"conversation"`
}

// NewBookingService builds the ledger and rehydrates it from store.
func NewBookingService(ctx context.Context, store StateStore, logger logrus.FieldLogger, wallet Wallet, notifier Notifier, chats ConversationOpener) (*BookingService, error) {
	s := &BookingService{
		store:    store,
		log:      logger.WithField("component", "gigs"),
		now:      time.Now,
		wallet:   wallet,
		notifier: notifier,
		chats:    chats,
	}

	if store != nil {
		var state gigState
		if _, err := store.Load(ctx, gigsKey, &state); err != nil {
			return nil, fmt.Errorf("load gigs: %w", err)
		}
		s.gigs = state.Gigs
	}

	return s, nil
}

func (s *BookingService) saveLocked(ctx context.Context) {
	persist(ctx, s.store, s.log, gigsKey, gigState{Gigs: s.gigs})
}

// FetchGigs tops up the pending pool from canned requests while it holds fewer
// than two gigs and returns every gig. Templates whose requester already has a
// pending gig are skipped.
func (s *BookingService) FetchGigs(ctx context.Context) []models.Gig {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := 0
	requesters := make(map[string]bool)
	for _, g := range s.gigs {
		if g.Status == models.GigPending {
			pending++
			requesters[g.RequesterName] = true
		}
	}

	if pending < minPendingGigs {
		added := 0
		for _, g := range gigTemplates(s.now()) {
			if requesters[g.RequesterName] {
				continue
			}
			g.ID = newID()
			g.Version = 1
			s.gigs = append(s.gigs, g)
			requesters[g.RequesterName] = true
			added++
		}
		if added > 0 {
			s.saveLocked(ctx)
			s.log.WithField("added", added).Debug("seeded pending gigs")
		}
	}

	return s.listLocked("", "")
}

// AddGig appends a new pending gig.
func (s *BookingService) AddGig(ctx context.Context, gig models.Gig) (models.Gig, error) {
	const op = "gigs.AddGig"

	if strings.TrimSpace(gig.RequesterName) == "" || strings.TrimSpace(gig.Service) == "" || gig.Price < 0 {
		return models.Gig{}, ledgerErr(op, ErrInvalidInput)
	}

	s.mu.Lock()
	gig.ID = newID()
	gig.Status = models.GigPending
	gig.PalID = ""
	gig.PalName = ""
	gig.CompletedAt = nil
	gig.Version = 1
	gig.Timestamp = s.now()
	if gig.Requirements == nil {
		gig.Requirements = []string{}
	}
	stored := gig
	s.gigs = append(s.gigs, &stored)
	s.saveLocked(ctx)
	s.mu.Unlock()

	metrics.RecordGigTransition(string(gig.Status))
	notify(ctx, s.notifier, s.log, NotificationInput{
		Title:        "New gig request",
		Message:      fmt.Sprintf("%s needs help with %s on %s.", gig.RequesterName, gig.Service, gig.Date),
		Type:         models.NotifGig,
		ReceiverRole: models.RolePal,
		ActionRoute:  "/gigs/" + gig.ID,
		RelatedID:    gig.ID,
	})
	return gig, nil
}

func (s *BookingService) lookupLocked(id string) (*models.Gig, error) {
	for _, g := range s.gigs {
		if g.ID == id {
			return g, nil
		}
	}
	return nil, ErrNotFound
}

// guardLocked resolves a gig and checks its version and current status.
func (s *BookingService) guardLocked(id string, expectedVersion int, from models.GigStatus) (*models.Gig, error) {
	gig, err := s.lookupLocked(id)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(expectedVersion, gig.Version); err != nil {
		return nil, err
	}
	if gig.Status != from {
		return nil, ErrInvalidTransition
	}
	return gig, nil
}

// AcceptGig books a pending gig for a pal and opens their conversation with
// the requester.
func (s *BookingService) AcceptGig(ctx context.Context, id, palID, palName string, expectedVersion int) (AcceptedGig, error) {
	const op = "gigs.AcceptGig"

	if palID == "" {
		return AcceptedGig{}, ledgerErr(op, ErrInvalidInput)
	}

	s.mu.Lock()
	gig, err := s.guardLocked(id, expectedVersion, models.GigPending)
	if err != nil {
		s.mu.Unlock()
		return AcceptedGig{}, ledgerErr(op, err)
	}
	gig.Status = models.GigAccepted
	gig.PalID = palID
	gig.PalName = palName
	gig.Version++
	s.saveLocked(ctx)
	out := cloneGig(gig)
	s.mu.Unlock()

	metrics.RecordGigTransition(string(out.Status))
	result := AcceptedGig{Gig: out}

	if s.chats != nil {
		requesterID := out.RequesterID
		if requesterID == "" {
			requesterID = "family-" + out.ID
		}
		conv, created, err := s.chats.CreateConversation(ctx,
			models.Participant{ID: palID, Name: palName, Role: models.RolePal},
			models.Participant{ID: requesterID, Name: out.RequesterName, Role: models.RoleFamily},
			out.ID,
		)
		if err != nil {
			s.log.WithError(err).WithField("gig_id", out.ID).Warn("open gig conversation failed")
		} else {
			result.Conversation = conv
			s.log.WithFields(logrus.Fields{"gig_id": out.ID, "conversation_id": conv.ID, "created": created}).Info("gig accepted")
		}
	}

	notify(ctx, s.notifier, s.log, NotificationInput{
		Title:        "Gig confirmed",
		Message:      fmt.Sprintf("You're booked for %s with %s on %s at %s.", out.Service, out.RequesterName, out.Date, out.Time),
		Type:         models.NotifGig,
		ReceiverRole: models.RolePal,
		ReceiverID:   palID,
		ActionRoute:  "/gigs/" + out.ID,
		RelatedID:    out.ID,
	})
	return result, nil
}

// DeclineGig takes a pending gig off the board.
func (s *BookingService) DeclineGig(ctx context.Context, id string, expectedVersion int) (models.Gig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gig, err := s.guardLocked(id, expectedVersion, models.GigPending)
	if err != nil {
		return models.Gig{}, ledgerErr("gigs.DeclineGig", err)
	}
	gig.Status = models.GigDeclined
	gig.Version++
	s.saveLocked(ctx)

	metrics.RecordGigTransition(string(gig.Status))
	return cloneGig(gig), nil
}

// CompleteGig closes an accepted gig and credits the pal with its price.
func (s *BookingService) CompleteGig(ctx context.Context, id string, expectedVersion int) (models.Gig, error) {
	const op = "gigs.CompleteGig"

	s.mu.Lock()
	gig, err := s.guardLocked(id, expectedVersion, models.GigAccepted)
	if err != nil {
		s.mu.Unlock()
		return models.Gig{}, ledgerErr(op, err)
	}

	if gig.Price > 0 {
		desc := fmt.Sprintf("%s for %s", gig.Service, gig.RequesterName)
		if _, err := s.wallet.Credit(ctx, gig.PalID, gig.Price, models.TxEarning, gig.ID, desc); err != nil {
			s.mu.Unlock()
			return models.Gig{}, ledgerErr(op, err)
		}
	}

	completedAt := s.now()
	gig.Status = models.GigCompleted
	gig.CompletedAt = &completedAt
	gig.Version++
	s.saveLocked(ctx)
	out := cloneGig(gig)
	s.mu.Unlock()

	metrics.RecordGigTransition(string(out.Status))
	notify(ctx, s.notifier, s.log, NotificationInput{
		Title:        "Gig completed",
		Message:      fmt.Sprintf("%s was added to your wallet for %s.", formatAmount(out.Price), out.Service),
		Type:         models.NotifGig,
		ReceiverRole: models.RolePal,
		ReceiverID:   out.PalID,
		ActionRoute:  "/wallet",
		RelatedID:    out.ID,
	})
	return out, nil
}

// Get returns one gig.
func (s *BookingService) Get(id string) (models.Gig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gig, err := s.lookupLocked(id)
	if err != nil {
		return models.Gig{}, ledgerErr("gigs.Get", err)
	}
	return cloneGig(gig), nil
}

// List returns gigs filtered by status and pal, newest first.
func (s *BookingService) List(status models.GigStatus, palID string) []models.Gig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(status, palID)
}

func (s *BookingService) listLocked(status models.GigStatus, palID string) []models.Gig {
	out := make([]models.Gig, 0, len(s.gigs))
	for _, g := range s.gigs {
		if status != "" && g.Status != status {
			continue
		}
		if palID != "" && g.PalID != palID {
			continue
		}
		out = append(out, cloneGig(g))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

func cloneGig(g *models.Gig) models.Gig {
	out := *g
	out.Requirements = append([]string(nil), g.Requirements...)
	if g.CompletedAt != nil {
		t := *g.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

func gigTemplates(now time.Time) []*models.Gig {
	day := func(offset int) (string, string) {
		d := now.AddDate(0, 0, offset)
		return d.Format("2006-01-02"), d.Format("Monday")
	}

	d1, w1 := day(1)
	d2, w2 := day(2)
	d3, w3 := day(3)

	return []*models.Gig{
		{
			RequesterName: "Priya Sharma",
			Service:       "Companionship visit",
			Date:          d1,
			Day:           w1,
			Time:          "10:00 AM",
			Duration:      "2 hours",
			Status:        models.GigPending,
			Price:         600,
			Location:      "Koramangala, Bengaluru",
			Requirements:  []string{"Conversational Hindi", "Light walking assistance"},
			Timestamp:     now,
		},
		{
			RequesterName: "Rahul Mehta",
			Service:       "Doctor appointment escort",
			Date:          d2,
			Day:           w2,
			Time:          "4:30 PM",
			Duration:      "3 hours",
			Status:        models.GigPending,
			Price:         900,
			Location:      "Indiranagar, Bengaluru",
			Requirements:  []string{"Own two-wheeler", "Punctual"},
			Timestamp:     now.Add(-time.Minute),
		},
		{
			RequesterName: "Anita Rao",
			Service:       "Grocery run and meal prep",
			Date:          d3,
			Day:           w3,
			Time:          "9:00 AM",
			Duration:      "2.5 hours",
			Status:        models.GigPending,
			Price:         750,
			Location:      "Jayanagar, Bengaluru",
			Requirements:  []string{"Basic cooking"},
			Timestamp:     now.Add(-2 * time.Minute),
		},
	}
}
