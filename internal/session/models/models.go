package models

import (
	"time"

	id "github.com/genialityco/gen-live-web-sub000/pkg/domain"
)

// Session is an anonymous identity-provider session.
type Session struct {
	ID        id.SessionID
	Email     string
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Binding ties a device to the session created for it and every email
// that has been associated with that session.
type Binding struct {
	DeviceID  id.DeviceID  `json:"deviceId"`
	SessionID id.SessionID `json:"sessionId"`
	Token     string       `json:"token"`
	Emails    []string     `json:"emails"`
	CreatedAt time.Time    `json:"createdAt"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

func (b *Binding) HasEmail(email string) bool {
	for _, e := range b.Emails {
		if e == email {
			return true
		}
	}
	return false
}

// IsExpired reports whether the binding's session has lapsed at now. A zero
// ExpiresAt never expires.
func (b *Binding) IsExpired(now time.Time) bool {
	return !b.ExpiresAt.IsZero() && !now.Before(b.ExpiresAt)
}
