package session

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/farm_dashboard/internal/domain"
	"github.com/Skotchmaster/farm_dashboard/internal/logging"
)

const (
	RefreshTTL = 7 * 24 * time.Hour

	ctxSession = "session.current"
	ctxPending = "session.pending"
	ctxCleared = "session.cleared"
)

var ErrNoSecret = errors.New("session: empty signing secret")

// CookieStore keeps the session in browser cookies. The token cookie is
// HttpOnly; user_data is signed but left readable for page scripts.
type CookieStore struct {
	secret []byte
	secure bool
	now    func() time.Time
}

func NewCookieStore(secret []byte, secure bool) *CookieStore {
	return &CookieStore{secret: secret, secure: secure, now: time.Now}
}

// WithClock swaps the time source, used by tests.
func (s *CookieStore) WithClock(now func() time.Time) *CookieStore {
	s.now = now
	return s
}

func (s *CookieStore) createCookie(name, value string, exp time.Time, httpOnly bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  exp,
		MaxAge:   int(exp.Sub(s.now()).Seconds()),
		HttpOnly: httpOnly,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *CookieStore) deleteCookie(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func cookieValue(c echo.Context, name string) string {
	ck, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}

func cleared(c echo.Context, slot string) bool {
	v, _ := c.Get(ctxCleared + slot).(bool)
	return v
}

func (s *CookieStore) Read(c echo.Context) (*domain.Session, error) {
	if sess, ok := c.Get(ctxSession).(*domain.Session); ok && sess != nil {
		return sess, nil
	}
	if cleared(c, ctxSession) {
		return nil, nil
	}

	token := cookieValue(c, TokenCookie)
	data := cookieValue(c, UserDataCookie)
	if token == "" || data == "" {
		return nil, nil
	}

	var claims identityClaims
	if err := parse(data, &claims, s.secret, s.now); err != nil {
		logging.FromContext(c.Request().Context()).Warn("session_read_failed",
			"cookie", UserDataCookie,
			"reason", err.Error(),
		)
		return nil, nil
	}

	sess := &domain.Session{
		Identity: claims.SessionIdentity,
		Token: domain.AccessToken{
			Value:     token,
			ExpiresAt: claims.ExpiresAt.Time,
		},
	}
	c.Set(ctxSession, sess)
	return sess, nil
}

// Set writes both halves of the session in one response. Nothing is written
// when signing fails.
func (s *CookieStore) Set(c echo.Context, sess domain.Session) error {
	if len(s.secret) == 0 {
		return ErrNoSecret
	}
	now := s.now()
	exp := sess.Token.ExpiresAt
	if exp.IsZero() {
		exp = now.Add(domain.AccessTokenTTL)
		sess.Token.ExpiresAt = exp
	}

	data, err := sign(newIdentityClaims(sess.Identity, now, exp), s.secret)
	if err != nil {
		return err
	}

	c.SetCookie(s.createCookie(TokenCookie, sess.Token.Value, exp, true))
	c.SetCookie(s.createCookie(UserDataCookie, data, exp, false))

	c.Set(ctxCleared+ctxSession, false)
	c.Set(ctxSession, &sess)
	return nil
}

func (s *CookieStore) Clear(c echo.Context) {
	for _, name := range ClearedCookies() {
		c.SetCookie(s.deleteCookie(name))
	}
	c.Set(ctxSession, (*domain.Session)(nil))
	c.Set(ctxPending, (*domain.PendingIdentity)(nil))
	c.Set(ctxCleared+ctxSession, true)
	c.Set(ctxCleared+ctxPending, true)
}

func (s *CookieStore) AccessToken(c echo.Context) string {
	if sess, _ := s.Read(c); sess != nil {
		return sess.Token.Value
	}
	if cleared(c, ctxSession) {
		return ""
	}
	return cookieValue(c, TokenCookie)
}

func (s *CookieStore) ReadPending(c echo.Context) (*domain.PendingIdentity, error) {
	if p, ok := c.Get(ctxPending).(*domain.PendingIdentity); ok && p != nil {
		return p, nil
	}
	if cleared(c, ctxPending) {
		return nil, nil
	}

	raw := cookieValue(c, PendingCookie)
	if raw == "" {
		return nil, nil
	}

	var claims pendingClaims
	if err := parse(raw, &claims, s.secret, s.now); err != nil {
		logging.FromContext(c.Request().Context()).Warn("pending_read_failed",
			"cookie", PendingCookie,
			"reason", err.Error(),
		)
		return nil, nil
	}
	p := claims.Pending
	if p.Username == "" || p.Expired(s.now()) {
		return nil, nil
	}
	c.Set(ctxPending, &p)
	return &p, nil
}

func (s *CookieStore) SetPending(c echo.Context, p domain.PendingIdentity) error {
	if len(s.secret) == 0 {
		return ErrNoSecret
	}
	now := s.now()
	if p.ExpiresAt.IsZero() {
		p.ExpiresAt = now.Add(domain.PendingTTL)
	}

	raw, err := sign(newPendingClaims(p, now), s.secret)
	if err != nil {
		return err
	}
	c.SetCookie(s.createCookie(PendingCookie, raw, p.ExpiresAt, true))

	c.Set(ctxCleared+ctxPending, false)
	c.Set(ctxPending, &p)
	return nil
}

func (s *CookieStore) ClearPending(c echo.Context) {
	c.SetCookie(s.deleteCookie(PendingCookie))
	c.Set(ctxPending, (*domain.PendingIdentity)(nil))
	c.Set(ctxCleared+ctxPending, true)
}

func (s *CookieStore) RefreshCredential(c echo.Context) string {
	if cleared(c, ctxSession) {
		return ""
	}
	return cookieValue(c, RefreshCookie)
}

func (s *CookieStore) SetRefreshCredential(c echo.Context, value string) {
	if value == "" {
		return
	}
	c.SetCookie(s.createCookie(RefreshCookie, value, s.now().Add(RefreshTTL), true))
}

var _ Store = (*CookieStore)(nil)
