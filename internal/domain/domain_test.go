package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentials_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		creds Credentials
		ok    bool
	}{
		{name: "valid", creds: Credentials{Username: "jane", Password: "pass1"}, ok: true},
		{name: "min length password", creds: Credentials{Username: "jane", Password: "abcd"}, ok: true},
		{name: "empty username", creds: Credentials{Username: "  ", Password: "pass1"}},
		{name: "empty password", creds: Credentials{Username: "jane"}},
		{name: "short password", creds: Credentials{Username: "jane", Password: "abc"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.creds.Validate()
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}
}

func TestCredentialsFromNames(t *testing.T) {
	t.Parallel()

	c := CredentialsFromNames(" Jane ", "Doe", "secret")
	assert.Equal(t, "Jane Doe", c.Username)
	assert.Equal(t, "secret", c.Password)

	c = CredentialsFromNames("", "", "secret")
	assert.Equal(t, "", c.Username)
}

func TestOTPSubmission_StripsNonDigits(t *testing.T) {
	t.Parallel()

	sub := OTPSubmission{Username: "jane", Code: "12a456"}.Normalized()
	assert.Equal(t, "12456", sub.Code)

	err := sub.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)

	ok := OTPSubmission{Username: " jane ", Code: "123-456"}.Normalized()
	assert.Equal(t, "jane", ok.Username)
	assert.Equal(t, "123456", ok.Code)
	require.NoError(t, ok.Validate())
}

func TestOTPSubmission_RequiresUsername(t *testing.T) {
	t.Parallel()

	err := OTPSubmission{Code: "123456"}.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRole_Landing(t *testing.T) {
	t.Parallel()

	assert.Equal(t, RouteAdmin, RoleAdmin.Landing())
	assert.Equal(t, RouteDashboard, RoleFeeder.Landing())
	assert.Equal(t, RouteDashboard, RoleManager.Landing())
	assert.Equal(t, RouteHome, Role("visitor").Landing())
	assert.Equal(t, RouteHome, Role("").Landing())
	assert.Equal(t, RoleAdmin, ParseRole(" Admin "))
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		kind   ErrorKind
		target error
	}{
		{http.StatusUnauthorized, KindInvalidCredentials, ErrInvalidCredentials},
		{http.StatusNotFound, KindNotFound, ErrNotFound},
		{http.StatusGone, KindExpired, ErrExpired},
		{http.StatusInternalServerError, KindServer, ErrServer},
		{http.StatusBadRequest, KindServer, ErrServer},
	}

	for _, tt := range tests {
		err := Classify(tt.status, "boom")
		assert.Equal(t, tt.kind, err.Kind)
		assert.Equal(t, tt.status, err.Status)
		assert.ErrorIs(t, err, tt.target)
	}
}

func TestKindOf_WrappedErrors(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("login: %w", Classify(http.StatusGone, ""))
	assert.Equal(t, KindExpired, KindOf(wrapped))
	assert.Equal(t, KindMissingToken, KindOf(fmt.Errorf("x: %w", ErrMissingToken)))
	assert.Equal(t, KindServer, KindOf(errors.New("anything")))
}

func TestPendingIdentity_Expiry(t *testing.T) {
	t.Parallel()

	now := time.Now()
	p := PendingIdentity{Username: "jane", ExpiresAt: now.Add(PendingTTL)}
	assert.False(t, p.Expired(now))
	assert.True(t, p.Expired(now.Add(PendingTTL)))
	assert.True(t, p.Incomplete())

	p.Message, p.Email = "sent", "j***@x.com"
	assert.False(t, p.Incomplete())
}

func TestSignUp_Validate(t *testing.T) {
	t.Parallel()

	valid := SignUp{Firstname: "Jane", Lastname: "Doe", Email: "jane@farm.io", Password: "pass"}
	require.NoError(t, valid.Validate())
	assert.Equal(t, "Jane Doe", valid.Username())

	tests := []struct {
		name   string
		mutate func(*SignUp)
	}{
		{"short firstname", func(s *SignUp) { s.Firstname = "Jo" }},
		{"short lastname", func(s *SignUp) { s.Lastname = " D " }},
		{"bad email", func(s *SignUp) { s.Email = "jane.farm.io" }},
		{"named email", func(s *SignUp) { s.Email = "Jane <jane@farm.io>" }},
		{"short password", func(s *SignUp) { s.Password = "abc" }},
	}
	for _, tt := range tests {
		s := valid
		tt.mutate(&s)
		err := s.Validate()
		assert.ErrorIs(t, err, ErrValidation, tt.name)
	}
}
