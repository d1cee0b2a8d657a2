package domain

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
)

const defaultFileName = "file"

// FileNameFromURL derives a storage-safe file name from the URL path.
func FileNameFromURL(raw string, now time.Time) string {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Sprintf("file_%d.bin", now.UnixMilli())
	}

	name := defaultFileName
	segments := strings.Split(u.EscapedPath(), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			name = segments[i]
			break
		}
	}

	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	name = sanitizeFileName(name)
	if name == "" || name == "." || name == ".." {
		name = defaultFileName
	}

	if path.Ext(name) == "" {
		name += ".bin"
	}
	return name
}

func sanitizeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r < 0x20 || r == 0x7f {
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
}

// StorageKey is the object key joining a download record to its payload.
func StorageKey(downloadID, fileName string) string {
	return fmt.Sprintf("downloads/%s/%s", downloadID, fileName)
}

// ValidateSourceURL requires a well-formed absolute URL.
func ValidateSourceURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", InvalidInput("URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return "", InvalidInput("Invalid URL format")
	}
	return raw, nil
}
