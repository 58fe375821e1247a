package domain

import "time"

// ImportSource names the entry point an import came through.
type ImportSource string

const (
	ImportSourceURL      ImportSource = "url"
	ImportSourceImage    ImportSource = "image"
	ImportSourceImageURL ImportSource = "image_url"
)

// ImportStatus is the terminal outcome of an import.
type ImportStatus string

const (
	ImportStatusOK        ImportStatus = "ok"
	ImportStatusError     ImportStatus = "error"
	ImportStatusDuplicate ImportStatus = "duplicate"
)

// ImportRecord is one finished import in the history.
type ImportRecord struct {
	ID         string       `json:"id"`
	Source     ImportSource `json:"source"`
	Target     string       `json:"target"` // post URL, image URL or upload filename
	Status     ImportStatus `json:"status"`
	Slug       string       `json:"slug,omitempty"`
	RecipeName string       `json:"recipe_name,omitempty"`
	Error      string       `json:"error,omitempty"`
	DurationMS int64        `json:"duration_ms"`
	CreatedAt  time.Time    `json:"created_at"`
}

// ImportStats counts history records by status.
type ImportStats struct {
	Total      int       `json:"total"`
	OK         int       `json:"ok"`
	Failed     int       `json:"failed"`
	Duplicates int       `json:"duplicates"`
	LastImport time.Time `json:"last_import,omitzero"`
}
