// Package ui provides the embedded web UI for recipegrabba.
//
// The page submits imports to the API and renders the progress event
// stream. The manifest registers the app as a share target so links can be
// sent from a phone's share sheet straight to POST /share.
package ui

import (
	_ "embed"
)

// IndexHTML is the import page.
// It reads ?url= and ?autostart=1 written by the share target redirect.
//
//go:embed index.html
var IndexHTML []byte

// ManifestJSON is the web app manifest with the share_target entry.
//
//go:embed manifest.json
var ManifestJSON []byte
