package httpserver

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"finitefield.org/storefront/internal/format"
	"finitefield.org/storefront/internal/observability"
	"finitefield.org/storefront/templates"
)

// renderer executes page and fragment templates. In dev mode (dir set),
// templates are reparsed from disk on each request.
type renderer struct {
	dir   string
	funcs template.FuncMap
	cache *templates.Set
}

func newRenderer(dir string, funcs template.FuncMap) (*renderer, error) {
	r := &renderer{dir: strings.TrimSpace(dir), funcs: funcs}
	if r.dir != "" {
		if _, err := r.set(); err != nil {
			return nil, fmt.Errorf("parse templates from %s: %w", r.dir, err)
		}
		return r, nil
	}
	set, err := templates.Parse(templates.FS(), funcs)
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	r.cache = set
	return r, nil
}

func (r *renderer) set() (*templates.Set, error) {
	if r.dir == "" {
		return r.cache, nil
	}
	return templates.Parse(os.DirFS(r.dir), r.funcs)
}

// page renders a full page in the base layout.
func (r *renderer) page(w http.ResponseWriter, req *http.Request, name string, data any) {
	r.execute(w, req, func(set *templates.Set, buf *bytes.Buffer) error {
		return set.Page(buf, name, data)
	})
}

// fragment renders a partial for htmx swaps.
func (r *renderer) fragment(w http.ResponseWriter, req *http.Request, name string, data any) {
	r.execute(w, req, func(set *templates.Set, buf *bytes.Buffer) error {
		return set.Fragment(buf, name, data)
	})
}

func (r *renderer) execute(w http.ResponseWriter, req *http.Request, run func(*templates.Set, *bytes.Buffer) error) {
	set, err := r.set()
	if err != nil {
		observability.FromContext(req.Context()).Error("template parse failed", zap.Error(err))
		http.Error(w, "template parse error", http.StatusInternalServerError)
		return
	}
	// render fully before touching w
	var buf bytes.Buffer
	if err := run(set, &buf); err != nil {
		observability.FromContext(req.Context()).Error("template exec failed", zap.Error(err))
		http.Error(w, "template exec error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (h *handlers) funcs() template.FuncMap {
	return template.FuncMap{
		"t":     h.locales.T,
		"count": format.Count,
	}
}
