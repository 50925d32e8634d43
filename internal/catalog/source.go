package catalog

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrUnavailable reports that the catalog resource could not be read.
	ErrUnavailable = errors.New("catalog: resource unavailable")
	// ErrMalformed reports that the catalog resource could not be decoded.
	ErrMalformed = errors.New("catalog: malformed resource")
)

const maxResourceBytes = 4 << 20

//go:embed stock.json
var defaultFS embed.FS

// Source fetches the catalog resource.
type Source interface {
	Load(ctx context.Context) (*Catalog, error)
}

// Open resolves a catalog reference: empty selects the bundled stock,
// http(s) URLs are fetched with client, anything else is a file path.
func Open(ref string, client *http.Client) Source {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return Embedded()
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return &HTTPSource{URL: ref, Client: client}
	default:
		return NewFileSource(ref)
	}
}

// FSSource reads the catalog from a file inside an fs.FS.
type FSSource struct {
	FS   fs.FS
	Path string
}

// Embedded returns the stock bundled with the binary.
func Embedded() FSSource {
	return FSSource{FS: defaultFS, Path: "stock.json"}
}

// NewFileSource reads the catalog from a path on the local filesystem.
func NewFileSource(p string) FSSource {
	dir, name := filepath.Split(filepath.Clean(p))
	if dir == "" {
		dir = "."
	}
	return FSSource{FS: os.DirFS(dir), Path: name}
}

// Load implements Source.
func (s FSSource) Load(ctx context.Context) (*Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if s.FS == nil {
		return nil, fmt.Errorf("%w: no filesystem configured", ErrUnavailable)
	}
	raw, err := fs.ReadFile(s.FS, s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrUnavailable, s.Path, err)
	}
	return decode(raw, formatFor(s.Path, ""))
}

// HTTPSource fetches the catalog from a URL. Requests are not retried.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

// Load implements Source.
func (s *HTTPSource) Load(ctx context.Context) (*Catalog, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %w", ErrUnavailable, s.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetch %s: unexpected status %d", ErrUnavailable, s.URL, resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResourceBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrUnavailable, err)
	}
	return decode(raw, formatFor(urlPath(s.URL), resp.Header.Get("Content-Type")))
}

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

func formatFor(name, contentType string) string {
	if strings.Contains(strings.ToLower(contentType), "yaml") {
		return formatYAML
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml":
		return formatYAML
	default:
		return formatJSON
	}
}

func urlPath(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i != -1 {
		raw = raw[:i]
	}
	return raw
}

// decode parses a catalog document. The top level must be a list.
func decode(raw []byte, format string) (*Catalog, error) {
	var products []Product
	switch format {
	case formatYAML:
		if err := yaml.Unmarshal(raw, &products); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
	default:
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || trimmed[0] != '[' {
			return nil, fmt.Errorf("%w: expected a JSON array", ErrMalformed)
		}
		if err := json.Unmarshal(trimmed, &products); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
	}
	if products == nil {
		products = []Product{}
	}
	return New(products)
}
