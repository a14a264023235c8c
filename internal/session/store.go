// Package session keeps the browser-side auth state: the pending identity
// between the credential and OTP steps, and the established session.
package session

import (
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/farm_dashboard/internal/domain"
)

const (
	TokenCookie    = "token"
	UserDataCookie = "user_data"
	PendingCookie  = "otpData"
	RefreshCookie  = "refresh_token"
)

// legacyCookies were written by earlier dashboard versions and are purged on
// every Clear.
var legacyCookies = []string{
	"auth_token",
	"authUser",
	"userName",
	"userId",
	"locationId",
	"locationName",
	"userRole",
}

// Store is one session slot and one pending slot per browser. Read returns
// nil without error when there is no usable session.
type Store interface {
	Read(c echo.Context) (*domain.Session, error)
	Set(c echo.Context, s domain.Session) error
	Clear(c echo.Context)

	// AccessToken returns the raw bearer even when the identity half of
	// the session is missing or unreadable.
	AccessToken(c echo.Context) string

	ReadPending(c echo.Context) (*domain.PendingIdentity, error)
	SetPending(c echo.Context, p domain.PendingIdentity) error
	ClearPending(c echo.Context)

	RefreshCredential(c echo.Context) string
	SetRefreshCredential(c echo.Context, value string)
}

// ClearedCookies lists every cookie name Clear deletes.
func ClearedCookies() []string {
	names := []string{TokenCookie, UserDataCookie, RefreshCookie, PendingCookie}
	return append(names, legacyCookies...)
}
