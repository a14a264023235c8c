package domain

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	DefaultSignUpStatus = "active"
	DefaultSignUpRole   = RoleFeeder
)

type SignUp struct {
	Firstname string
	Lastname  string
	Email     string
	Password  string
}

func (s SignUp) Validate() error {
	if utf8.RuneCountInString(strings.TrimSpace(s.Firstname)) < MinNamePartLen {
		return Validation(fmt.Sprintf("First name must be at least %d characters", MinNamePartLen))
	}
	if utf8.RuneCountInString(strings.TrimSpace(s.Lastname)) < MinNamePartLen {
		return Validation(fmt.Sprintf("Last name must be at least %d characters", MinNamePartLen))
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(s.Email))
	if err != nil || addr.Name != "" {
		return Validation("Please enter a valid email address")
	}
	if utf8.RuneCountInString(s.Password) < MinPasswordLen {
		return Validation(fmt.Sprintf("Password must be at least %d characters", MinPasswordLen))
	}
	return nil
}

// Username is the canonical identity the account signs in with.
func (s SignUp) Username() string {
	return CredentialsFromNames(s.Firstname, s.Lastname, "").Username
}
