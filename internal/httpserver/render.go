package httpserver

import (
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/farm_dashboard/internal/domain"
	"github.com/Skotchmaster/farm_dashboard/internal/middleware/csrf"
	"github.com/Skotchmaster/farm_dashboard/internal/middleware/guard"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = []string{
	"home.html",
	"sign_in.html",
	"sign_up.html",
	"otp.html",
	"admin.html",
	"dashboard.html",
	"audit.html",
}

// Renderer executes one layout-wrapped template set per page.
type Renderer struct {
	templates map[string]*template.Template
}

func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*template.Template, len(pages))}
	for _, p := range pages {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+p)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", p, err)
		}
		r.templates[p] = t
	}
	return r, nil
}

func (r *Renderer) Render(w io.Writer, name string, data any, _ echo.Context) error {
	t, ok := r.templates[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	return t.ExecuteTemplate(w, "layout", data)
}

// view is the data every page template receives.
type view struct {
	Title    string
	CSRF     string
	Identity *domain.SessionIdentity
	Error    string
	Notice   string
	Warning  string
	Form     map[string]string
	Data     any
}

func newView(c echo.Context, title string) view {
	return view{
		Title:    title,
		CSRF:     csrf.TokenFrom(c),
		Identity: guard.IdentityFrom(c),
		Form:     map[string]string{},
	}
}
