package service

import (
	"net/url"
	"path"
	"strings"
)

// hostAliases maps short-link hosts onto their platform name.
var hostAliases = map[string]string{
	"youtu": "youtube",
}

// SourceTag derives a platform tag such as "#Instagram" from a post URL.
// It returns "" when the URL has no host.
func SourceTag(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return ""
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")

	labels := strings.Split(host, ".")
	name := labels[0]
	if len(labels) > 2 {
		// vm.tiktok.com and the like
		name = labels[len(labels)-2]
	}
	if alias, ok := hostAliases[name]; ok {
		name = alias
	}
	if name == "" {
		return ""
	}
	return "#" + strings.ToUpper(name[:1]) + name[1:]
}

// AddSourceTag appends the source tag of rawURL unless a tag already
// matches it case-insensitively.
func AddSourceTag(tags []string, rawURL string) []string {
	out := cleanTags(tags)
	tag := SourceTag(rawURL)
	if tag == "" {
		return out
	}
	for _, t := range out {
		if strings.EqualFold(strings.TrimPrefix(t, "#"), strings.TrimPrefix(tag, "#")) {
			return out
		}
	}
	return append(out, tag)
}

// mergeKeywords appends tags missing from keywords, preserving order.
func mergeKeywords(keywords, tags []string) []string {
	seen := make(map[string]bool, len(keywords)+len(tags))
	out := make([]string, 0, len(keywords)+len(tags))
	for _, k := range append(append([]string{}, keywords...), tags...) {
		k = strings.TrimSpace(k)
		key := strings.ToLower(k)
		if k == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, k)
	}
	return out
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags)+1)
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// filenameFromURL returns the last path segment of rawURL, or upload.jpg.
func filenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "upload.jpg"
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "upload.jpg"
	}
	return name
}
