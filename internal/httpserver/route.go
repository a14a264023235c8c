package httpserver

import (
	"context"
	"fmt"
	"net"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	ecM "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/Skotchmaster/farm_dashboard/internal/domain"
	"github.com/Skotchmaster/farm_dashboard/internal/middleware"
	"github.com/Skotchmaster/farm_dashboard/internal/middleware/csrf"
	"github.com/Skotchmaster/farm_dashboard/internal/middleware/guard"
	loggingmw "github.com/Skotchmaster/farm_dashboard/internal/middleware/logging"
)

type Deps struct {
	Auth  *AuthHTTP
	Pages *PagesHTTP
	Guard *guard.Guard

	BackendURL string
	CSRFConfig csrf.Config
	Logger     *slog.Logger

	// AuthRateLimit is requests per second per client IP on the auth posts.
	AuthRateLimit float64

	Ready func(ctx context.Context) error
}

func authLimiter(perSecond float64) echo.MiddlewareFunc {
	burst := max(int(perSecond), 1)
	return ecM.RateLimiterWithConfig(ecM.RateLimiterConfig{
		Store: ecM.NewRateLimiterMemoryStoreWithConfig(ecM.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(perSecond),
			Burst:     burst,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many attempts, please wait a moment")
		},
	})
}

// ClientIP picks how c.RealIP resolves the caller. Without trusted proxies
// it is the socket peer; forwarded headers are honoured only when the hop
// that set them falls in one of the given CIDR ranges.
func ClientIP(trustedProxies []string) (echo.IPExtractor, error) {
	if len(trustedProxies) == 0 {
		return echo.ExtractIPDirect(), nil
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, cidr := range trustedProxies {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", cidr, err)
		}
		opts = append(opts, echo.TrustIPRange(ipNet))
	}
	return echo.ExtractIPFromXFFHeader(opts...), nil
}

func Register(e *echo.Echo, d *Deps) error {
	// rate limiting and the audit trail key on c.RealIP
	if e.IPExtractor == nil {
		e.IPExtractor = echo.ExtractIPDirect()
	}

	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				return c.NoContent(http.StatusServiceUnavailable)
			}
		}
		return c.NoContent(http.StatusOK)
	})

	renderer, err := NewRenderer()
	if err != nil {
		return err
	}
	e.Renderer = renderer

	for _, m := range middleware.Common() {
		e.Use(m)
	}
	if d.Logger != nil {
		e.Use(loggingmw.RequestLogger(d.Logger))
	}

	apiProxy, err := newProxy(d.BackendURL, "/api", d.Auth.Store)
	if err != nil {
		return err
	}

	csrfMW := csrf.Middleware(d.CSRFConfig)

	// The proxy turns the session cookie into a bearer, so unsafe API calls
	// need the X-CSRF-Token header like any form post.
	api := e.Group("/api")
	api.Use(csrfMW, d.Guard.Require())
	api.Any("/*", apiProxy)

	web := e.Group("")
	web.Use(csrfMW)

	web.GET(domain.RouteHome, d.Pages.Home)

	limited := authLimiter(d.AuthRateLimit)
	signedOut := d.Guard.RedirectAuthenticated()

	web.GET(domain.RouteSignIn, d.Auth.SignInPage, signedOut)
	web.POST(domain.RouteSignIn, d.Auth.SignIn, limited)
	web.GET("/sign-up", d.Auth.SignUpPage, signedOut)
	web.POST("/sign-up", d.Auth.SignUp, limited)
	web.GET(domain.RouteOTP, d.Auth.OTPPage, signedOut)
	web.POST(domain.RouteOTP, d.Auth.VerifyOTP, limited)
	web.POST(domain.RouteOTP+"/resend", d.Auth.ResendOTP, limited)
	web.POST("/logout", d.Auth.Logout)

	admin := web.Group(domain.RouteAdmin, d.Guard.Require(domain.RoleAdmin))
	admin.GET("", d.Pages.Admin)
	admin.GET("/audit", d.Pages.AuditLog)

	dash := web.Group(domain.RouteDashboard, d.Guard.Require(domain.RoleFeeder, domain.RoleManager))
	dash.GET("", d.Pages.Dashboard)
	dash.GET("/coops/performance", d.Pages.CoopPerformance)

	return nil
}
