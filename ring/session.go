package ring

import (
	"strings"
	"time"
)

// Session is the vendor-issued credential pair standing in for the user's
// login. A session is either absent or complete: all three fields populated.
// Partial sessions are never constructed or persisted.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Valid reports whether the access token can still be used at the given time,
// allowing for a safety margin before the actual expiry.
func (s *Session) Valid(margin time.Duration, now time.Time) bool {
	if s == nil || s.AccessToken == "" {
		return false
	}
	return now.Add(margin).Before(s.ExpiresAt)
}

// PendingLoginAttempt holds the state between the first-factor login call and
// the two-factor code submission. It lives in process memory only; the
// password is never persisted.
type PendingLoginAttempt struct {
	Email    string
	Password string
	PromptID string // opaque handle returned with the two-factor challenge
}

// Device is an ephemeral handle to a device from the vendor's listing. Device
// topology can change between requests, so handles are re-resolved per unlock.
type Device struct {
	ID         string
	Kind       string
	Name       string
	LocationID string
}

// IsIntercom reports whether the device is an intercom-kind device.
func (d Device) IsIntercom() bool {
	return strings.Contains(strings.ToLower(d.Kind), "intercom")
}
