package handler

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

var shareURLPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

// ShareHandler implements the PWA share target.
type ShareHandler struct{}

// NewShareHandler creates a new share handler.
func NewShareHandler() *ShareHandler {
	return &ShareHandler{}
}

// Receive handles POST /share. Share sheets put the link in any of the
// url, text or title fields, often with surrounding prose.
func (h *ShareHandler) Receive(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil && err != http.ErrNotMultipart {
		http.Redirect(w, r, "/?error=no_url", http.StatusSeeOther)
		return
	}

	shared := ExtractSharedURL(r.FormValue("url"), r.FormValue("text"), r.FormValue("title"))
	if shared == "" {
		http.Redirect(w, r, "/?error=no_url", http.StatusSeeOther)
		return
	}

	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	if host == "" {
		http.Redirect(w, r, "/?error=no_host", http.StatusSeeOther)
		return
	}

	proto := r.Header.Get("X-Forwarded-Proto")
	if proto == "" {
		proto = "http"
		if r.TLS != nil {
			proto = "https"
		}
	}

	q := url.Values{}
	q.Set("url", shared)
	q.Set("autostart", "1")
	http.Redirect(w, r, proto+"://"+host+"/?"+q.Encode(), http.StatusSeeOther)
}

// Home handles GET /share, which share sheets hit when opened directly.
func (h *ShareHandler) Home(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ExtractSharedURL returns the first http(s) URL in fields, trimmed of
// trailing punctuation.
func ExtractSharedURL(fields ...string) string {
	for _, f := range fields {
		if m := shareURLPattern.FindString(f); m != "" {
			return strings.TrimRight(m, ")],.")
		}
	}
	return ""
}
