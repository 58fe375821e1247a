package domain

import "errors"

// Acquisition error kinds. Every failure leaving the acquisition core
// matches exactly one of these through errors.Is.
var (
	// ErrMetadataFetch is returned when the post cannot be resolved at all
	// (private, deleted, unsupported platform, malformed URL).
	ErrMetadataFetch = errors.New("failed to fetch post metadata")

	// ErrNoVideoInPost is returned when the platform reports the post has no
	// video. The remedy is importing it as an image.
	ErrNoVideoInPost = errors.New("there is no video in this post, try the image import instead")

	// ErrDownload is returned when media bytes could not be fetched after
	// every fallback strategy.
	ErrDownload = errors.New("failed to download media")

	// ErrNoAudioTrack is returned by the normalizer when the media has no
	// speakable audio. The orchestrator folds it into a successful result.
	ErrNoAudioTrack = errors.New("media contains no audio track")

	// ErrTranscode is returned when the transcoder fails or produces an
	// invalid WAV.
	ErrTranscode = errors.New("failed to convert audio to WAV")
)

// Import errors.
var (
	// ErrInvalidURL is returned when a submitted URL is not http(s).
	ErrInvalidURL = errors.New("invalid URL")

	// ErrDuplicateRecipe is returned when a recipe for the source URL
	// already exists and the import was not forced.
	ErrDuplicateRecipe = errors.New("recipe already exists")

	// ErrNoRecipeText is returned when neither a transcript nor a
	// description is available to build a recipe from.
	ErrNoRecipeText = errors.New("no recipe text found (neither transcription nor description)")

	// ErrTranscription is returned when the transcription API call fails.
	ErrTranscription = errors.New("failed to transcribe audio")

	// ErrGeneration is returned when the recipe generation call fails.
	ErrGeneration = errors.New("failed to generate recipe structure")

	// ErrPublish is returned when the recipe manager rejects a recipe.
	ErrPublish = errors.New("failed to create recipe")

	// ErrImageDownload is returned when an image URL cannot be loaded.
	ErrImageDownload = errors.New("image could not be loaded")
)

// maxDiagnosticLen bounds tool diagnostics carried inside errors.
const maxDiagnosticLen = 800

// AcquisitionError tags a low-level failure with its user-facing kind.
type AcquisitionError struct {
	Kind   error
	Op     string
	Detail string
	Err    error
}

func (e *AcquisitionError) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return Truncate(msg, maxDiagnosticLen)
}

// Unwrap exposes both the kind and the underlying cause.
func (e *AcquisitionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewAcquisitionError creates a new AcquisitionError. The detail is
// truncated so raw tool output never crosses the core boundary unbounded.
func NewAcquisitionError(kind error, op, detail string, err error) *AcquisitionError {
	return &AcquisitionError{
		Kind:   kind,
		Op:     op,
		Detail: Truncate(detail, maxDiagnosticLen),
		Err:    err,
	}
}

// KindOf returns the acquisition kind carried by err, or nil.
func KindOf(err error) error {
	for _, kind := range []error{ErrNoVideoInPost, ErrMetadataFetch, ErrDownload, ErrNoAudioTrack, ErrTranscode} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Truncate shortens s to at most n bytes, marking the cut with "…".
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := n
	// Avoid splitting a UTF-8 sequence.
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut] + "…"
}
