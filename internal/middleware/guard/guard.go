// Package guard decides, on every request, whether the browser may see a
// protected area and where to send it otherwise.
package guard

import (
	"context"
	"html"
	"net/http"
	"slices"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/farm_dashboard/internal/backend"
	"github.com/Skotchmaster/farm_dashboard/internal/domain"
	"github.com/Skotchmaster/farm_dashboard/internal/events"
	"github.com/Skotchmaster/farm_dashboard/internal/logging"
	"github.com/Skotchmaster/farm_dashboard/internal/session"
)

type State string

const (
	StateLoading         State = "loading"
	StateUnauthenticated State = "unauthenticated"
	StateUnauthorized    State = "unauthorized"
	StateAuthorized      State = "authorized"
)

const (
	DefaultPlaceholder = "Checking permissions…"

	ctxIdentity     = "identity"
	ctxSession      = "guard.session"
	ctxBootstrapped = "guard.bootstrapped"
)

type Decision struct {
	State    State
	Redirect string
}

// Decide is the pure part of the guard. With no required roles any signed
// in user passes.
func Decide(identity *domain.SessionIdentity, required ...domain.Role) Decision {
	if identity == nil {
		return Decision{State: StateUnauthenticated, Redirect: domain.RouteSignIn}
	}
	if len(required) == 0 {
		return Decision{State: StateAuthorized}
	}
	if !identity.HasRole() || !slices.Contains(required, identity.Role) {
		return Decision{State: StateUnauthorized, Redirect: identity.Role.Landing()}
	}
	return Decision{State: StateAuthorized}
}

// Bootstrapper rebuilds a session from what the browser still holds.
type Bootstrapper interface {
	Me(ctx context.Context, token string) (*backend.MeResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*backend.SessionPayload, error)
}

type Guard struct {
	Store       session.Store
	Backend     Bootstrapper
	Events      events.Publisher
	Placeholder string

	now func() time.Time
}

func New(store session.Store, b Bootstrapper, pub events.Publisher) *Guard {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Guard{
		Store:       store,
		Backend:     b,
		Events:      pub,
		Placeholder: DefaultPlaceholder,
		now:         time.Now,
	}
}

// Resolve returns the current session, bootstrapping it at most once per
// request when only a bare token or a refresh credential is present.
func (g *Guard) Resolve(c echo.Context) *domain.Session {
	if sess, ok := c.Get(ctxSession).(*domain.Session); ok && sess != nil {
		return sess
	}

	sess, _ := g.Store.Read(c)
	if sess == nil && g.state(c) == StateLoading {
		sess = g.bootstrap(c)
	}
	if sess != nil {
		c.Set(ctxSession, sess)
		c.Set(ctxIdentity, &sess.Identity)
	}
	return sess
}

func (g *Guard) state(c echo.Context) State {
	if done, _ := c.Get(ctxBootstrapped).(bool); done || g.Backend == nil {
		return StateUnauthenticated
	}
	if g.Store.AccessToken(c) != "" || g.Store.RefreshCredential(c) != "" {
		return StateLoading
	}
	return StateUnauthenticated
}

func (g *Guard) bootstrap(c echo.Context) *domain.Session {
	c.Set(ctxBootstrapped, true)
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("mw", "guard.bootstrap")
	now := g.now()

	if token := g.Store.AccessToken(c); token != "" {
		me, err := g.Backend.Me(ctx, token)
		if err == nil {
			identity, ierr := me.Identity()
			if ierr == nil {
				sess := domain.Session{Identity: identity, Token: domain.NewAccessToken(token, now)}
				if serr := g.Store.Set(c, sess); serr != nil {
					l.Error("session_write_failed", "error", serr)
				}
				l.Info("bootstrap_success", "source", "me", "role", identity.Role)
				return &sess
			}
			err = ierr
		}
		l.Warn("bootstrap_failed", "source", "me", "reason", string(domain.KindOf(err)))
		if backend.IsUnauthorized(err) {
			g.Store.Clear(c)
			return nil
		}
	}

	refresh := g.Store.RefreshCredential(c)
	if refresh == "" {
		return nil
	}
	payload, err := g.Backend.Refresh(ctx, refresh)
	if err != nil {
		l.Warn("bootstrap_failed", "source", "refresh", "reason", string(domain.KindOf(err)))
		g.Store.Clear(c)
		return nil
	}
	sess, err := payload.Session("", now)
	if err != nil {
		l.Warn("bootstrap_failed", "source", "refresh", "reason", string(domain.KindOf(err)))
		g.Store.Clear(c)
		return nil
	}
	if serr := g.Store.Set(c, sess); serr != nil {
		l.Error("session_write_failed", "error", serr)
	}
	if payload.RefreshToken != "" {
		g.Store.SetRefreshCredential(c, payload.RefreshToken)
	}

	e := events.New(events.SessionRefreshed, sess.Identity.Name).WithRole(string(sess.Identity.Role))
	e.RemoteIP = c.RealIP()
	if perr := g.Events.Publish(ctx, e); perr != nil {
		l.Warn("event_publish_failed", "type", e.Type, "error", perr)
	}
	l.Info("bootstrap_success", "source", "refresh", "role", sess.Identity.Role)
	return &sess
}

func (g *Guard) redirect(c echo.Context, to string) error {
	c.Response().Header().Set(echo.HeaderLocation, to)
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.HTML(http.StatusSeeOther, `<p class="placeholder">`+html.EscapeString(g.Placeholder)+`</p>`)
}

// Require lets the request through only for the given roles. It runs on
// every request, so a changed identity or route is always re-evaluated.
func (g *Guard) Require(roles ...domain.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var identity *domain.SessionIdentity
			if sess := g.Resolve(c); sess != nil {
				identity = &sess.Identity
			}

			d := Decide(identity, roles...)
			if d.State == StateAuthorized {
				return next(c)
			}

			logging.FromContext(c.Request().Context()).Info("guard_denied",
				"state", string(d.State),
				"path", c.Request().URL.Path,
				"redirect", d.Redirect,
			)
			return g.redirect(c, d.Redirect)
		}
	}
}

// RedirectAuthenticated keeps signed-in users off the auth screens.
func (g *Guard) RedirectAuthenticated() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess := g.Resolve(c)
			if sess == nil {
				return next(c)
			}
			return g.redirect(c, sess.Identity.Role.Landing())
		}
	}
}

// IdentityFrom returns the identity the guard resolved for this request.
func IdentityFrom(c echo.Context) *domain.SessionIdentity {
	id, _ := c.Get(ctxIdentity).(*domain.SessionIdentity)
	return id
}

func SessionFrom(c echo.Context) *domain.Session {
	sess, _ := c.Get(ctxSession).(*domain.Session)
	return sess
}
