package push

import (
	"context"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"github.com/example/carecircle/internal/models"
)

const sendTimeout = 10 * time.Second

// Sender is the part of the FCM client the sink needs.
type Sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// TokenDirectory resolves which devices should receive a notification.
type TokenDirectory interface {
	DeviceTokens(role models.Role, receiverID string) []string
}

// FirebaseService pushes inbox notifications to registered devices.
type FirebaseService struct {
	sender Sender
	tokens TokenDirectory
	log    logrus.FieldLogger
}

// NewFirebaseService initializes the Firebase app from a service account file.
func NewFirebaseService(ctx context.Context, credentialsPath string, tokens TokenDirectory, logger logrus.FieldLogger) (*FirebaseService, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting Messaging client: %w", err)
	}

	logger.WithField("component", "push").Info("firebase messaging initialized")
	return NewSink(client, tokens, logger), nil
}

// NewSink builds the push sink on top of an existing sender.
func NewSink(sender Sender, tokens TokenDirectory, logger logrus.FieldLogger) *FirebaseService {
	return &FirebaseService{
		sender: sender,
		tokens: tokens,
		log:    logger.WithField("component", "push"),
	}
}

// Deliver sends n to every matching device in the background.
func (s *FirebaseService) Deliver(n models.Notification) {
	tokens := s.tokens.DeviceTokens(n.ReceiverRole, n.ReceiverID)
	if len(tokens) == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		for _, token := range tokens {
			if _, err := s.sender.Send(ctx, buildMessage(token, n)); err != nil {
				s.log.WithError(err).WithField("notification_id", n.ID).Warn("push failed")
			}
		}
	}()
}

func buildMessage(token string, n models.Notification) *messaging.Message {
	return &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Message,
		},
		Data: map[string]string{
			"type":            string(n.Type),
			"notification_id": n.ID,
			"action_route":    n.ActionRoute,
			"related_id":      n.RelatedID,
			"timestamp":       fmt.Sprintf("%d", n.CreatedAt.Unix()),
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound:     "default",
				ChannelID: "carecircle_" + string(n.Type),
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		},
	}
}
