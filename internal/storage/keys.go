package storage

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const maxNameLen = 100

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// NewObjectKey returns a unique key of the form arts/<uuid>/<name> for the
// staged file at localPath.
func NewObjectKey(localPath string) string {
	return "arts/" + uuid.NewString() + "/" + SafeName(filepath.Base(localPath))
}

// SafeName reduces a client supplied filename to a conservative character
// set. The stem and extension are cleaned separately so a stem made only of
// unsafe characters becomes "image" and keeps its extension. Names never end
// in the filesystem store's sidecar suffix.
func SafeName(name string) string {
	name = strings.TrimSpace(filepath.Base(strings.ReplaceAll(name, "\\", "/")))
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	ext = strings.Trim(unsafeNameChars.ReplaceAllString(strings.TrimPrefix(ext, "."), "_"), "._")
	switch {
	case ext == "":
	case len(ext) > 10:
		stem, ext = name, ""
	default:
		ext = "." + ext
	}
	stem = strings.Trim(unsafeNameChars.ReplaceAllString(stem, "_"), "._")
	if stem == "" {
		stem = "image"
	}
	if len(stem)+len(ext) > maxNameLen {
		stem = stem[:maxNameLen-len(ext)]
	}

	name = stem + ext
	if strings.HasSuffix(name, metaSuffix) {
		name = strings.TrimSuffix(name, metaSuffix) + "_meta.json"
	}
	return name
}

// DownloadURL builds the public URL for key: the whole key is escaped as one
// path segment and the token travels as a query parameter.
func DownloadURL(baseURL, key, token string) string {
	q := url.Values{}
	q.Set("alt", "media")
	q.Set("token", token)
	return strings.TrimRight(baseURL, "/") + "/" + url.PathEscape(key) + "?" + q.Encode()
}
