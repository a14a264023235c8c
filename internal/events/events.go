// Package events fans auth activity out to the Kafka topic and the local
// audit trail.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	LoginSuccess     Type = "login_success"
	LoginFailed      Type = "login_failed"
	OTPRequired      Type = "otp_required"
	OTPVerified      Type = "otp_verified"
	OTPFailed        Type = "otp_failed"
	OTPResent        Type = "otp_resent"
	SessionRefreshed Type = "session_refreshed"
	Registered       Type = "user_registered"
	Logout           Type = "logout"
)

type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	Username   string    `json:"username,omitempty"`
	Role       string    `json:"role,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	RemoteIP   string    `json:"remote_ip,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func New(typ Type, username string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		Username:   username,
		OccurredAt: time.Now().UTC(),
	}
}

func (e Event) WithReason(reason string) Event {
	e.Reason = reason
	return e
}

func (e Event) WithRole(role string) Event {
	e.Role = role
	return e
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi delivers to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type kafkaWriter interface {
	PublishEvent(ctx context.Context, key string, event any) error
}

// Kafka keys events by username so one user's history stays ordered.
type Kafka struct {
	producer kafkaWriter
}

func NewKafka(p kafkaWriter) *Kafka {
	return &Kafka{producer: p}
}

func (k *Kafka) Publish(ctx context.Context, e Event) error {
	key := e.Username
	if key == "" {
		key = e.ID
	}
	return k.producer.PublishEvent(ctx, key, e)
}

type remoteIPKey struct{}

// WithRemoteIP tags ctx with the client address recorded on events.
func WithRemoteIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, remoteIPKey{}, ip)
}

func RemoteIPFrom(ctx context.Context) string {
	ip, _ := ctx.Value(remoteIPKey{}).(string)
	return ip
}
