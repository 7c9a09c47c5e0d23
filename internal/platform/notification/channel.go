package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rotations/rotations/internal/platform/websocket"
)

// Alert is one rendered notification and its delivery state.
type Alert struct {
	ID           string            `json:"id"`
	TemplateID   string            `json:"template_id"`
	Subject      string            `json:"subject"`
	Body         string            `json:"body"`
	Recipients   []string          `json:"recipients,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
	AssignmentID string            `json:"assignment_id,omitempty"`
	Status       string            `json:"status"`
	Deliveries   map[string]string `json:"deliveries"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Alert statuses.
const (
	StatusSent    = "sent"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// StatusSkipped marks a channel that had nothing to deliver for an alert.
const StatusSkipped = "skipped"

// ErrSkipped is returned by a channel with nothing to deliver. The dispatcher
// records it as skipped, not failed.
var ErrSkipped = errors.New("nothing to deliver")

// Channel delivers a rendered alert to one destination.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, a *Alert) error
}

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// LogEmailSender writes e-mails to the log instead of an SMTP relay. It is the
// default sink until a mail provider is configured.
type LogEmailSender struct {
	logger zerolog.Logger
}

func NewLogEmailSender(logger zerolog.Logger) *LogEmailSender {
	return &LogEmailSender{logger: logger.With().Str("component", "email").Logger()}
}

func (s *LogEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.logger.Info().Str("to", to).Str("subject", subject).Str("body", body).Msg("email queued")
	return nil
}

// EmailChannel sends the alert to each recipient. Alerts without recipients
// are skipped.
type EmailChannel struct {
	sender EmailSender
}

func NewEmailChannel(sender EmailSender) *EmailChannel {
	return &EmailChannel{sender: sender}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Deliver(ctx context.Context, a *Alert) error {
	if len(a.Recipients) == 0 {
		return ErrSkipped
	}

	var errs []error
	for _, to := range a.Recipients {
		if err := c.sender.SendEmail(ctx, to, a.Subject, a.Body); err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", to, err))
		}
	}
	return errors.Join(errs...)
}

// EventPublisher is satisfied by *websocket.Hub.
type EventPublisher interface {
	Publish(ctx context.Context, event websocket.Event) error
}

// HubChannel pushes alerts to websocket dashboards subscribed to topic.
type HubChannel struct {
	publisher EventPublisher
	topic     string
	eventType string
}

func NewHubChannel(publisher EventPublisher, topic, eventType string) *HubChannel {
	return &HubChannel{publisher: publisher, topic: topic, eventType: eventType}
}

func (c *HubChannel) Name() string { return "websocket" }

func (c *HubChannel) Deliver(ctx context.Context, a *Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	return c.publisher.Publish(ctx, websocket.Event{
		Type:         c.eventType,
		Topic:        c.topic,
		AssignmentID: a.AssignmentID,
		Timestamp:    a.CreatedAt,
		Data:         data,
	})
}
