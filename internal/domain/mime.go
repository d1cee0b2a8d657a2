package domain

import (
	"path"
	"strings"
)

// mimeTypes maps lowercase file extensions (without dot) to MIME types.
var mimeTypes = map[string]string{
	"pdf":  "application/pdf",
	"zip":  "application/zip",
	"rar":  "application/x-rar-compressed",
	"7z":   "application/x-7z-compressed",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"svg":  "image/svg+xml",
	"mp4":  "video/mp4",
	"mkv":  "video/x-matroska",
	"avi":  "video/x-msvideo",
	"webm": "video/webm",
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"flac": "audio/flac",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"ppt":  "application/vnd.ms-powerpoint",
	"pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"txt":  "text/plain",
	"csv":  "text/csv",
	"html": "text/html",
	"css":  "text/css",
	"js":   "application/javascript",
	"json": "application/json",
	"xml":  "application/xml",
	"exe":  "application/x-msdownload",
	"iso":  "application/x-iso9660-image",
	"tar":  "application/x-tar",
	"gz":   "application/gzip",
}

// ContentTypeForFileName looks up the MIME type for the file's extension.
func ContentTypeForFileName(fileName string) (string, bool) {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(fileName)), ".")
	if ext == "" {
		return "", false
	}
	ct, ok := mimeTypes[ext]
	return ct, ok
}

// ResolveContentType prefers an explicit, non-generic header value, then the
// extension table, then the generic binary type.
func ResolveContentType(header, fileName string) string {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(header, ";", 2)[0]))
	if ct != "" && ct != DefaultContentType {
		return ct
	}
	if byExt, ok := ContentTypeForFileName(fileName); ok {
		return byExt
	}
	return DefaultContentType
}
