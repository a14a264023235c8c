package csrf

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exec(t *testing.T, req *http.Request, cfg Config) (*httptest.ResponseRecorder, string, error) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen string
	h := Middleware(cfg)(func(c echo.Context) error {
		seen = TokenFrom(c)
		return c.NoContent(http.StatusOK)
	})
	return rec, seen, h(c)
}

func TestGet_IssuesTokenInContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/sign-in", nil)
	rec, seen, err := exec(t, req, DefaultConfig())
	require.NoError(t, err)

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-CSRF-Token"))

	var cookie *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "XSRF-TOKEN" {
			cookie = ck
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, seen, cookie.Value)
	assert.False(t, cookie.HttpOnly)
}

func formPost(token, field, origin string) *http.Request {
	form := url.Values{"csrf_token": {field}}
	req := httptest.NewRequest(http.MethodPost, "http://example.com/sign-in", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "XSRF-TOKEN", Value: token})
	}
	return req
}

func TestPost(t *testing.T) {
	tests := []struct {
		name   string
		req    *http.Request
		status int
	}{
		{"matching form field", formPost("abc", "abc", "http://example.com"), 0},
		{"mismatch", formPost("abc", "abd", "http://example.com"), http.StatusForbidden},
		{"no cookie", formPost("", "abc", "http://example.com"), http.StatusForbidden},
		{"foreign origin", formPost("abc", "abc", "http://evil.com"), http.StatusForbidden},
		{"missing origin", formPost("abc", "abc", ""), http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := exec(t, tt.req, DefaultConfig())
			if tt.status == 0 {
				require.NoError(t, err)
				return
			}
			var he *echo.HTTPError
			require.ErrorAs(t, err, &he)
			assert.Equal(t, tt.status, he.Code)
		})
	}
}

func TestPost_HeaderAndSkip(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://example.com/api/x", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("X-CSRF-Token", "tok")
	req.AddCookie(&http.Cookie{Name: "XSRF-TOKEN", Value: "tok"})
	_, _, err := exec(t, req, DefaultConfig())
	require.NoError(t, err)

	skipped := httptest.NewRequest(http.MethodPost, "http://example.com/health/live", nil)
	_, seen, err := exec(t, skipped, Config{SkipPaths: []string{"/health/live"}})
	require.NoError(t, err)
	assert.Empty(t, seen)
}
