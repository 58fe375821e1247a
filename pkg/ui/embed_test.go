package ui

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestIndexHTMLEmbedded(t *testing.T) {
	if len(IndexHTML) == 0 {
		t.Fatal("IndexHTML should not be empty")
	}

	html := string(IndexHTML)

	if !strings.HasPrefix(html, "<!DOCTYPE html>") {
		t.Error("IndexHTML should start with DOCTYPE declaration")
	}
	for _, want := range []string{"/api/v1/imports/url", "/api/v1/imports/image", "text/event-stream", "autostart", "manifest.json"} {
		if !strings.Contains(html, want) {
			t.Errorf("IndexHTML should reference %q", want)
		}
	}
}

func TestManifestShareTarget(t *testing.T) {
	var manifest struct {
		ShareTarget struct {
			Action string            `json:"action"`
			Method string            `json:"method"`
			Params map[string]string `json:"params"`
		} `json:"share_target"`
	}
	if err := json.Unmarshal(ManifestJSON, &manifest); err != nil {
		t.Fatalf("manifest is not valid JSON: %v", err)
	}
	if manifest.ShareTarget.Action != "/share" || manifest.ShareTarget.Method != "POST" {
		t.Errorf("share_target = %+v", manifest.ShareTarget)
	}
	if manifest.ShareTarget.Params["url"] != "url" {
		t.Errorf("share_target params = %v", manifest.ShareTarget.Params)
	}
}
