package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

const assetCacheControl = "public, max-age=604800, stale-while-revalidate=86400"

// assetServer serves an embedded asset tree with weak content ETags.
type assetServer struct {
	files http.Handler
	etags map[string]string
}

// AssetsWithCache serves fsys with long-lived caching and ETag revalidation.
// Mount it behind http.StripPrefix so request paths are relative to fsys.
func AssetsWithCache(fsys fs.FS) http.Handler {
	return &assetServer{files: http.FileServer(http.FS(fsys)), etags: contentETags(fsys)}
}

func contentETags(fsys fs.FS) map[string]string {
	etags := make(map[string]string)
	_ = fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if raw, err := fs.ReadFile(fsys, name); err == nil {
			sum := sha256.Sum256(raw)
			etags[name] = `W/"` + hex.EncodeToString(sum[:16]) + `"`
		}
		return nil
	})
	return etags
}

func (a *assetServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Vary", "Accept-Encoding")
	h.Set("Cache-Control", assetCacheControl)
	etag, ok := a.etags[strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")]
	if ok {
		h.Set("ETag", etag)
		if etagMatches(r.Header.Get("If-None-Match"), etag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	a.files.ServeHTTP(w, r)
}

// etagMatches handles the comma-separated list and "*" forms of If-None-Match.
func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}
