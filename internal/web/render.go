// Package web renders the HTML pages and carries one-shot status messages
// between a form post and the page it redirects to.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/market-permanences/internal/model"
	"github.com/iliyamo/market-permanences/internal/service"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page names.
const (
	PageCalendar           = "calendar.html"
	PageMyRegistrations    = "my_registrations.html"
	PageAdminRegistrations = "admin_registrations.html"
	PageAdminSlots         = "admin_slots.html"
	PageLogin              = "login.html"
	PageError              = "error.html"
)

var pages = []string{
	PageCalendar,
	PageMyRegistrations,
	PageAdminRegistrations,
	PageAdminSlots,
	PageLogin,
	PageError,
}

// Page is the value every template is executed with.
type Page struct {
	Title string
	Actor service.Actor
	Flash *Flash
	CSRF  string
	Data  any
}

// Renderer implements echo.Renderer over the embedded templates.  Each
// page is parsed together with layout.html.
type Renderer struct {
	tmpls map[string]*template.Template
}

var funcs = template.FuncMap{
	"iso":     func(t time.Time) string { return t.Format(model.DateLayout) },
	"day":     func(t time.Time) string { return t.Format("Mon 02/01") },
	"longDay": func(t time.Time) string { return t.Format("Monday 2 January 2006") },
	"weekday": model.WeekdayName,
	"sameDay": func(a, b time.Time) bool { return a.Format(model.DateLayout) == b.Format(model.DateLayout) },
}

// NewRenderer parses all pages.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{tmpls: make(map[string]*template.Template, len(pages))}
	for _, name := range pages {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		r.tmpls[name] = t
	}
	return r, nil
}

// Render executes the layout with the named page's content block.
func (r *Renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	t, ok := r.tmpls[name]
	if !ok {
		return fmt.Errorf("unknown template %q", name)
	}
	return t.ExecuteTemplate(w, "layout", data)
}

// AdminSlotsData feeds the slot generation page.  Rows holds one entry per
// weekday, Monday first.
type AdminSlotsData struct {
	WeekStart       time.Time
	DefaultCapacity int
	Rows            []model.OpeningHours
}

// LoginData refills the login form.
type LoginData struct {
	Username string
	Next     string
}

// ErrorData is shown for 403, 404 and 500 on HTML routes.
type ErrorData struct {
	Status  int
	Message string
}
