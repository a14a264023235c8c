package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	PendingTTL     = 10 * time.Minute
	AccessTokenTTL = 24 * time.Hour
	MinPasswordLen = 4
	OTPLength      = 6
	MinNamePartLen = 3
)

// PendingIdentity bridges the credential step and the OTP step.
type PendingIdentity struct {
	Username  string    `json:"user"`
	Message   string    `json:"message,omitempty"`
	Email     string    `json:"email,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (p PendingIdentity) Expired(now time.Time) bool {
	return !p.ExpiresAt.After(now)
}

// Incomplete reports whether the backend left out the message or the
// destination email, which the OTP page surfaces as a warning.
func (p PendingIdentity) Incomplete() bool {
	return p.Message == "" || p.Email == ""
}

type SessionIdentity struct {
	UserID       int64   `json:"id"`
	Name         string  `json:"name"`
	Role         Role    `json:"role"`
	LocationID   *int64  `json:"location_id"`
	LocationName *string `json:"location_name"`
}

func (s SessionIdentity) HasRole() bool { return s.Role != "" }

type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

func NewAccessToken(value string, now time.Time) AccessToken {
	return AccessToken{Value: value, ExpiresAt: now.Add(AccessTokenTTL)}
}

// Session is written and destroyed as one unit.
type Session struct {
	Identity SessionIdentity
	Token    AccessToken
}

type Credentials struct {
	Username string
	Password string
}

// CredentialsFromNames maps the first/last name sign-in variant onto the
// canonical single username.
func CredentialsFromNames(firstname, lastname, password string) Credentials {
	name := strings.TrimSpace(strings.TrimSpace(firstname) + " " + strings.TrimSpace(lastname))
	return Credentials{Username: name, Password: password}
}

func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Username) == "" {
		return Validation("Username is required")
	}
	if c.Password == "" {
		return Validation("Password is required")
	}
	if utf8.RuneCountInString(c.Password) < MinPasswordLen {
		return Validation(fmt.Sprintf("Password must be at least %d characters", MinPasswordLen))
	}
	return nil
}

type OTPSubmission struct {
	Username string
	Code     string
}

// NormalizeOTP drops every non-digit character.
func NormalizeOTP(code string) string {
	var b strings.Builder
	for _, r := range code {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Normalized returns the submission with a trimmed username and a digits-only code.
func (s OTPSubmission) Normalized() OTPSubmission {
	return OTPSubmission{Username: strings.TrimSpace(s.Username), Code: NormalizeOTP(s.Code)}
}

func (s OTPSubmission) Validate() error {
	if strings.TrimSpace(s.Username) == "" {
		return Validation("Username is required")
	}
	if len(NormalizeOTP(s.Code)) != OTPLength {
		return Validation("Please enter a valid 6-digit OTP")
	}
	return nil
}
