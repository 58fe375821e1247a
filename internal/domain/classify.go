package domain

import "strings"

// ClassificationKind is the tagged decision about what a post contains.
type ClassificationKind string

const (
	KindImage             ClassificationKind = "image"
	KindVideoWithAudio    ClassificationKind = "video-with-audio"
	KindVideoWithoutAudio ClassificationKind = "video-without-audio"
)

// MediaClassification is derived from PostMetadata by Classify.
// ImageURL is only set for KindImage.
type MediaClassification struct {
	Kind     ClassificationKind `json:"kind"`
	ImageURL string             `json:"image_url,omitempty"`
}

// IsImage reports whether the post is a still image.
func (c MediaClassification) IsImage() bool { return c.Kind == KindImage }

// MediaType maps the classification onto the coarse result type.
func (c MediaClassification) MediaType() MediaType {
	if c.Kind == KindImage {
		return MediaTypeImage
	}
	return MediaTypeVideo
}

var imageExtensions = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"webp": true,
	"gif":  true,
}

// IsImageExtension reports whether ext names a known still-image container.
func IsImageExtension(ext string) bool {
	return imageExtensions[normalizeToken(strings.TrimPrefix(strings.TrimSpace(ext), "."))]
}

// Classify decides whether a post is an image, a video with audio, or a
// silent video. It is pure: no network or filesystem access.
func Classify(meta PostMetadata) MediaClassification {
	if IsImageExtension(meta.ContainerExtension) && !isRealCodec(meta.VideoCodec) {
		imageURL := meta.MediaURL
		if imageURL == "" {
			imageURL = meta.ThumbnailURL
		}
		return MediaClassification{Kind: KindImage, ImageURL: imageURL}
	}
	if HasAudio(meta) {
		return MediaClassification{Kind: KindVideoWithAudio}
	}
	return MediaClassification{Kind: KindVideoWithoutAudio}
}

// HasAudio reports whether the primary format or any alternate format
// advertises a real audio codec.
func HasAudio(meta PostMetadata) bool {
	if isRealCodec(meta.AudioCodec) {
		return true
	}
	for _, f := range meta.AlternateFormats {
		if isRealCodec(f.AudioCodec) {
			return true
		}
	}
	return false
}

// isRealCodec treats "" and "none" as absent.
func isRealCodec(codec string) bool {
	c := normalizeToken(codec)
	return c != "" && c != "none"
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsPlaceholderDescription reports whether desc is empty or the default
// placeholder.
func IsPlaceholderDescription(desc string) bool {
	d := strings.TrimSpace(desc)
	return d == "" || strings.EqualFold(d, DefaultDescription)
}
