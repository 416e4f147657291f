// README: Off-route push alerts delivered through Firebase Cloud Messaging.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"firebase.google.com/go/v4/messaging"

	"stride/internal/infra"
	"stride/internal/modules/session"
)

var ErrNoDevice = errors.New("notify: empty device token")

// Sender is the part of *messaging.Client used here.
type Sender interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
}

type FCM struct {
	sender Sender
}

func NewFCM(sender Sender) *FCM {
	return &FCM{sender: sender}
}

// Dial initialises the Admin SDK and its messaging client.
func Dial(ctx context.Context, projectID, credentialsFile string) (*FCM, error) {
	app, err := infra.NewFirebaseApp(ctx, projectID, credentialsFile)
	if err != nil {
		return nil, err
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialising firebase messaging client: %w", err)
	}
	return NewFCM(client), nil
}

// ForDevice binds the sender to one device so it can serve as a session alerter.
func (f *FCM) ForDevice(token string) session.Alerter {
	return &deviceAlerter{fcm: f, token: token}
}

type deviceAlerter struct {
	fcm   *FCM
	token string
}

func (a *deviceAlerter) OffRoute(ctx context.Context, u session.Update) error {
	if a.token == "" {
		return ErrNoDevice
	}
	data := map[string]string{
		"type":            "off_route",
		"session_id":      u.SessionID,
		"elapsed_seconds": strconv.Itoa(u.ElapsedSeconds),
		"covered_km":      strconv.FormatFloat(u.CoveredKm, 'f', 2, 64),
	}
	if u.Position != nil {
		data["lat"] = strconv.FormatFloat(u.Position.Lat, 'f', 6, 64)
		data["lng"] = strconv.FormatFloat(u.Position.Lng, 'f', 6, 64)
	}
	msg := &messaging.Message{
		Token: a.token,
		Data:  data,
		Notification: &messaging.Notification{
			Title: "Off route",
			Body:  "You have left the planned route",
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}

	messageID, err := a.fcm.sender.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("sending FCM for session %s: %w", u.SessionID, err)
	}
	log.Printf("FCM off-route alert for session %s, message_id=%s", u.SessionID, messageID)
	return nil
}
