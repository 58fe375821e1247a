package handler

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func shareRequest(form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/share", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestShareHandler_Receive(t *testing.T) {
	h := NewShareHandler()

	req := shareRequest(url.Values{
		"title": {"Look at this"},
		"text":  {"Best noodles ever (https://www.instagram.com/reel/abc/)."},
	})
	req.Host = "recipes.local:9848"
	w := httptest.NewRecorder()

	h.Receive(w, req)

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	want := "http://recipes.local:9848/?autostart=1&url=" + url.QueryEscape("https://www.instagram.com/reel/abc/")
	if got := w.Header().Get("Location"); got != want {
		t.Errorf("Location = %q, want %q", got, want)
	}
}

func TestShareHandler_ForwardedHeaders(t *testing.T) {
	h := NewShareHandler()

	req := shareRequest(url.Values{"url": {"https://youtu.be/xyz"}})
	req.Header.Set("X-Forwarded-Host", "recipes.example.com")
	req.Header.Set("X-Forwarded-Proto", "https")
	w := httptest.NewRecorder()

	h.Receive(w, req)

	loc := w.Header().Get("Location")
	if !strings.HasPrefix(loc, "https://recipes.example.com/?") {
		t.Errorf("Location = %q", loc)
	}
}

func TestShareHandler_NoURL(t *testing.T) {
	h := NewShareHandler()
	w := httptest.NewRecorder()

	h.Receive(w, shareRequest(url.Values{"text": {"no link here"}}))

	if got := w.Header().Get("Location"); got != "/?error=no_url" {
		t.Errorf("Location = %q", got)
	}
}

func TestShareHandler_NoHost(t *testing.T) {
	h := NewShareHandler()
	req := shareRequest(url.Values{"url": {"https://youtu.be/xyz"}})
	req.Host = ""
	w := httptest.NewRecorder()

	h.Receive(w, req)

	if got := w.Header().Get("Location"); got != "/?error=no_host" {
		t.Errorf("Location = %q", got)
	}
}

func TestShareHandler_Home(t *testing.T) {
	w := httptest.NewRecorder()
	NewShareHandler().Home(w, httptest.NewRequest(http.MethodGet, "/share", nil))

	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/" {
		t.Errorf("status = %d, Location = %q", w.Code, w.Header().Get("Location"))
	}
}

func TestExtractSharedURL(t *testing.T) {
	tests := []struct {
		fields []string
		want   string
	}{
		{[]string{"https://a.com/x"}, "https://a.com/x"},
		{[]string{"", "see https://a.com/x, and more"}, "https://a.com/x"},
		{[]string{"", "", "[http://b.org/y]"}, "http://b.org/y"},
		{[]string{"https://first.com/1", "https://second.com/2"}, "https://first.com/1"},
		{[]string{"ftp://nope", "plain text"}, ""},
	}
	for _, tt := range tests {
		if got := ExtractSharedURL(tt.fields...); got != tt.want {
			t.Errorf("ExtractSharedURL(%q) = %q, want %q", tt.fields, got, tt.want)
		}
	}
}
