package httpserver

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/farm_dashboard/internal/audit"
	"github.com/Skotchmaster/farm_dashboard/internal/backend"
	"github.com/Skotchmaster/farm_dashboard/internal/coops"
	"github.com/Skotchmaster/farm_dashboard/internal/domain"
	"github.com/Skotchmaster/farm_dashboard/internal/logging"
	"github.com/Skotchmaster/farm_dashboard/internal/middleware/guard"
	"github.com/Skotchmaster/farm_dashboard/internal/models"
	"github.com/Skotchmaster/farm_dashboard/internal/session"
)

type CoopSource interface {
	Coops(ctx context.Context, token string) ([]coops.Record, error)
}

type AuditSource interface {
	List(ctx context.Context, q audit.Query) ([]models.AuthEvent, error)
}

type auditPage struct {
	Items []models.AuthEvent
	Page  int
	Prev  int
	Next  int
}

type PagesHTTP struct {
	Store session.Store
	Guard *guard.Guard
	Coops CoopSource
	Audit AuditSource
}

func (h *PagesHTTP) Home(c echo.Context) error {
	v := newView(c, "Home")
	if sess := h.Guard.Resolve(c); sess != nil {
		v.Identity = &sess.Identity
		v.Data = sess.Identity.Role.Landing()
	}
	return c.Render(http.StatusOK, "home.html", v)
}

func (h *PagesHTTP) Admin(c echo.Context) error {
	return c.Render(http.StatusOK, "admin.html", newView(c, "Administration"))
}

func (h *PagesHTTP) Dashboard(c echo.Context) error {
	return c.Render(http.StatusOK, "dashboard.html", newView(c, "Dashboard"))
}

func (h *PagesHTTP) AuditLog(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.audit")

	q := audit.Query{Username: strings.TrimSpace(c.QueryParam("username"))}
	q.Page, _ = strconv.Atoi(c.QueryParam("page"))
	q.Size, _ = strconv.Atoi(c.QueryParam("size"))
	q.Page = max(q.Page, 1)

	items, err := h.Audit.List(ctx, q)
	if err != nil {
		l.Error("audit_list_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	if strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON) {
		return c.JSON(http.StatusOK, items)
	}
	v := newView(c, "Audit")
	v.Form["username"] = q.Username
	page := auditPage{Items: items, Page: q.Page}
	if q.Page > 1 {
		page.Prev = q.Page - 1
	}
	if _, limit := q.Window(); len(items) == limit {
		page.Next = q.Page + 1
	}
	v.Data = page
	return c.Render(http.StatusOK, "audit.html", v)
}

// CoopPerformance serves one week of the egg production summary. week=0 is
// the most recent week.
func (h *PagesHTTP) CoopPerformance(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "coops.performance")

	week := 0
	if raw := c.QueryParam("week"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"message": "week must be a non-negative integer"})
		}
		week = n
	}

	sess := guard.SessionFrom(c)
	if sess == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
	}

	records, err := h.Coops.Coops(ctx, sess.Token.Value)
	if err != nil {
		if backend.IsUnauthorized(err) {
			l.Warn("coops_fetch_error", "status", 401, "reason", "session rejected by backend")
			h.Store.Clear(c)
			return c.JSON(http.StatusUnauthorized, map[string]string{"message": "session expired"})
		}
		l.Error("coops_fetch_error", "status", 502, "reason", string(domain.KindOf(err)), "error", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"message": "Failed to load coops. Please try again."})
	}

	summary, ok := coops.Summarize(records, week)
	if !ok && summary.Pages > 0 {
		return c.JSON(http.StatusNotFound, map[string]string{"message": "no data for this week"})
	}
	return c.JSON(http.StatusOK, summary)
}
