package httpserver

import (
	"context"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	echo "github.com/labstack/echo/v4"

	"github.com/Skotchmaster/farm_dashboard/internal/logging"
	"github.com/Skotchmaster/farm_dashboard/internal/middleware/guard"
	"github.com/Skotchmaster/farm_dashboard/internal/session"
)

type echoCtxKey struct{}

// newProxy forwards signed-in browser calls to the backend with the session
// token as a bearer. A backend 401 destroys the session on the way back.
func newProxy(target, stripPrefix string, store session.Store) (echo.HandlerFunc, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}

	baseTransport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 60 * time.Second,
		}).DialContext,
		MaxIdleConns:          200,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	p := httputil.NewSingleHostReverseProxy(u)
	p.Transport = baseTransport

	origDirector := p.Director
	p.Director = func(req *http.Request) {
		originalHost := req.Host
		originalProto := "http"
		if req.TLS != nil {
			originalProto = "https"
		} else if xf := req.Header.Get("X-Forwarded-Proto"); xf != "" {
			originalProto = xf
		}

		if stripPrefix != "" && strings.HasPrefix(req.URL.Path, stripPrefix) {
			req.URL.Path = strings.TrimPrefix(req.URL.Path, stripPrefix)
			if rp := req.URL.RawPath; rp != "" && strings.HasPrefix(rp, stripPrefix) {
				req.URL.RawPath = strings.TrimPrefix(rp, stripPrefix)
			}
		}

		origDirector(req)
		req.Host = u.Host

		// dashboard cookies stay on this side
		req.Header.Del("Cookie")
		if c, ok := req.Context().Value(echoCtxKey{}).(echo.Context); ok {
			if sess := guard.SessionFrom(c); sess != nil {
				req.Header.Set("Authorization", "Bearer "+sess.Token.Value)
			}
		}

		if req.Header.Get("X-Forwarded-Proto") == "" {
			req.Header.Set("X-Forwarded-Proto", originalProto)
		}
		if req.Header.Get("X-Forwarded-Host") == "" && originalHost != "" {
			req.Header.Set("X-Forwarded-Host", originalHost)
		}
	}

	p.ModifyResponse = func(resp *http.Response) error {
		resp.Header.Del("Set-Cookie")
		if resp.StatusCode != http.StatusUnauthorized {
			return nil
		}
		if c, ok := resp.Request.Context().Value(echoCtxKey{}).(echo.Context); ok {
			logging.FromContext(c.Request().Context()).Warn("proxy_unauthorized",
				"status", 401,
				"path", c.Request().URL.Path,
				"reason", "backend rejected session",
			)
			store.Clear(c)
		}
		return nil
	}

	p.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logging.FromContext(r.Context()).Error("proxy_error", "status", 502, "error", err)
		w.WriteHeader(http.StatusBadGateway)
	}

	p.FlushInterval = 100 * time.Millisecond

	return func(c echo.Context) error {
		req := c.Request()
		req = req.WithContext(context.WithValue(req.Context(), echoCtxKey{}, c))
		p.ServeHTTP(c.Response(), req)
		return nil
	}, nil
}
