package middleware

import (
	"encoding/json"
	"net/http"
)

// errorEnvelope is the body of JSON error replies. Status repeats the HTTP
// status text so htmx error handlers can show it without a lookup.
type errorEnvelope struct {
	Error  string `json:"error"`
	Status string `json:"status"`
}

// WriteError answers htmx requests with a JSON envelope and everything else
// with plain text.
func WriteError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	if !IsHTMX(r.Context()) {
		http.Error(w, msg, status)
		return
	}
	body, err := json.Marshal(errorEnvelope{Error: msg, Status: http.StatusText(status)})
	if err != nil {
		http.Error(w, msg, status)
		return
	}
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
