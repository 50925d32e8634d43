// Package templates parses the storefront's html/template files. Pages share
// the "base" layout; fragments are rendered on their own for htmx swaps.
package templates

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"
)

//go:embed *.tmpl
var files embed.FS

// FS returns the bundled template files.
func FS() fs.FS { return files }

// Set holds one template tree per page plus a shared fragment tree.
type Set struct {
	pages     map[string]*template.Template
	fragments *template.Template
}

// Parse builds a Set from fsys. Files named page_<name>.tmpl become pages;
// every other file is shared by all pages and fragments.
func Parse(fsys fs.FS, funcs template.FuncMap) (*Set, error) {
	names, err := fs.Glob(fsys, "*.tmpl")
	if err != nil {
		return nil, err
	}
	var shared, pages []string
	for _, n := range names {
		if strings.HasPrefix(n, "page_") {
			pages = append(pages, n)
		} else {
			shared = append(shared, n)
		}
	}
	if len(shared) == 0 {
		return nil, fmt.Errorf("no shared templates found")
	}
	root, err := template.New("_root").Funcs(funcs).ParseFS(fsys, shared...)
	if err != nil {
		return nil, fmt.Errorf("parse shared templates: %w", err)
	}
	set := &Set{pages: map[string]*template.Template{}, fragments: root}
	for _, p := range pages {
		clone, err := root.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := clone.ParseFS(fsys, p); err != nil {
			return nil, fmt.Errorf("parse %s: %w", p, err)
		}
		name := strings.TrimSuffix(strings.TrimPrefix(path.Base(p), "page_"), ".tmpl")
		set.pages[name] = clone
	}
	return set, nil
}

// Page renders the named page inside the base layout.
func (s *Set) Page(w io.Writer, name string, data any) error {
	t, ok := s.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	return t.ExecuteTemplate(w, "base", data)
}

// Fragment renders a named shared template.
func (s *Set) Fragment(w io.Writer, name string, data any) error {
	return s.fragments.ExecuteTemplate(w, name, data)
}
