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

const notificationsKey = "notifications"

// NotificationSink receives every appended notification, e.g. the realtime hub
// or the push gateway. Deliver must not block.
type NotificationSink interface {
	Deliver(n models.Notification)
}

// NotificationService is the append-only, role-addressed inbox.
type NotificationService struct {
	mu    sync.Mutex
	store StateStore
	log   logrus.FieldLogger
	now   func() time.Time
	sinks []NotificationSink

	items []models.Notification
}

type notificationState struct {
	Items []models.Notification `json:"items"`
}

var _ Notifier = (*NotificationService)(nil)

// NewNotificationService builds the router and rehydrates it from store.
func NewNotificationService(ctx context.Context, store StateStore, logger logrus.FieldLogger, sinks ...NotificationSink) (*NotificationService, error) {
	s := &NotificationService{
		store: store,
		log:   logger.WithField("component", "notifications"),
		now:   time.Now,
		sinks: sinks,
	}

	if store != nil {
		var state notificationState
		if _, err := store.Load(ctx, notificationsKey, &state); err != nil {
			return nil, fmt.Errorf("load notifications: %w", err)
		}
		s.items = state.Items
	}

	return s, nil
}

// AddSink registers another delivery target.
func (s *NotificationService) AddSink(sink NotificationSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

func (s *NotificationService) saveLocked(ctx context.Context) {
	persist(ctx, s.store, s.log, notificationsKey, notificationState{Items: s.items})
}

// AddNotification appends a notification with a generated id and timestamp.
func (s *NotificationService) AddNotification(ctx context.Context, in NotificationInput) (models.Notification, error) {
	const op = "notifications.AddNotification"

	if !in.ReceiverRole.Valid() {
		return models.Notification{}, ledgerErr(op, ErrInvalidRole)
	}
	if strings.TrimSpace(in.Title) == "" {
		return models.Notification{}, ledgerErr(op, ErrInvalidInput)
	}
	if in.Type == "" {
		in.Type = models.NotifSystem
	}

	n := models.Notification{
		ID:           newID(),
		Title:        in.Title,
		Message:      in.Message,
		Type:         in.Type,
		ReceiverRole: in.ReceiverRole,
		ReceiverID:   in.ReceiverID,
		ActionRoute:  in.ActionRoute,
		RelatedID:    in.RelatedID,
	}

	s.mu.Lock()
	n.CreatedAt = s.now()
	s.items = append(s.items, n)
	s.saveLocked(ctx)
	sinks := append([]NotificationSink(nil), s.sinks...)
	s.mu.Unlock()

	metrics.RecordNotification(string(n.ReceiverRole))
	for _, sink := range sinks {
		sink.Deliver(n)
	}
	return n, nil
}

// FetchNotifications returns the inbox of role, newest first, seeding it with
// canned entries when it is empty. A non-empty accountID hides entries
// addressed to other accounts of the same role.
func (s *NotificationService) FetchNotifications(ctx context.Context, role models.Role, accountID string) ([]models.Notification, error) {
	if !role.Valid() {
		return nil, ledgerErr("notifications.FetchNotifications", ErrInvalidRole)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasRoleLocked(role) {
		s.items = append(s.items, seedNotifications(role, s.now())...)
		s.saveLocked(ctx)
	}

	var out []models.Notification
	for _, n := range s.items {
		if visible(n, role, accountID) {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *NotificationService) hasRoleLocked(role models.Role) bool {
	for _, n := range s.items {
		if n.ReceiverRole == role {
			return true
		}
	}
	return false
}

// MarkAsRead flips the read flag of one notification in the inbox of role as
// seen by accountID. Entries outside that inbox are reported as not found.
func (s *NotificationService) MarkAsRead(ctx context.Context, id string, role models.Role, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID == id && visible(s.items[i], role, accountID) {
			if !s.items[i].Read {
				s.items[i].Read = true
				s.saveLocked(ctx)
			}
			return nil
		}
	}
	return ledgerErr("notifications.MarkAsRead", ErrNotFound)
}

// visible reports whether n sits in the inbox of role as seen by
// accountID. An empty accountID sees the whole role.
func visible(n models.Notification, role models.Role, accountID string) bool {
	if n.ReceiverRole != role {
		return false
	}
	return accountID == "" || n.ReceiverID == "" || n.ReceiverID == accountID
}

// MarkAllAsRead marks every notification in the inbox of role, as seen by
// accountID, read and returns how many changed. Other roles and entries
// addressed to other accounts are untouched.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, role models.Role, accountID string) (int, error) {
	if !role.Valid() {
		return 0, ledgerErr("notifications.MarkAllAsRead", ErrInvalidRole)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for i := range s.items {
		if visible(s.items[i], role, accountID) && !s.items[i].Read {
			s.items[i].Read = true
			changed++
		}
	}
	if changed > 0 {
		s.saveLocked(ctx)
	}
	return changed, nil
}

// UnreadCount counts the unread notifications FetchNotifications would show.
func (s *NotificationService) UnreadCount(role models.Role, accountID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, n := range s.items {
		if visible(n, role, accountID) && !n.Read {
			count++
		}
	}
	return count
}

func seedNotifications(role models.Role, now time.Time) []models.Notification {
	type seed struct {
		title, message, route string
		kind                  models.NotificationType
		age                   time.Duration
	}

	var seeds []seed
	switch role {
	case models.RoleSenior:
		seeds = []seed{
			{"Welcome to CareCircle", "Your family can now see your requests and help right away.", "/home", models.NotifSystem, 48 * time.Hour},
			{"Medicine reminder", "Don't forget your evening medicines.", "/pharmacy", models.NotifSystem, 2 * time.Hour},
		}
	case models.RoleFamily:
		seeds = []seed{
			{"Welcome to CareCircle", "Review your senior's requests and book trusted pals.", "/home", models.NotifSystem, 48 * time.Hour},
			{"Top up your wallet", "Keep your wallet funded so pals can start on requests immediately.", "/wallet", models.NotifWallet, 6 * time.Hour},
		}
	case models.RolePal:
		seeds = []seed{
			{"Welcome aboard", "Complete your verification to start withdrawing earnings.", "/verification", models.NotifVerification, 48 * time.Hour},
			{"New gigs nearby", "Families near you are looking for help this week.", "/gigs", models.NotifGig, 3 * time.Hour},
		}
	}

	out := make([]models.Notification, 0, len(seeds))
	for _, sd := range seeds {
		out = append(out, models.Notification{
			ID:           newID(),
			Title:        sd.title,
			Message:      sd.message,
			Type:         sd.kind,
			ReceiverRole: role,
			CreatedAt:    now.Add(-sd.age),
			ActionRoute:  sd.route,
		})
	}
	return out
}
