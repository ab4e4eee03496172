package attachment

import (
	"net/http"
	"path"
	"strings"
)

// Receipt kinds.
const (
	KindImage    = "image"
	KindDocument = "document"
)

// NormalizeMime normalizes MIME to lowercase token form.
func NormalizeMime(raw string) string {
	mime := strings.ToLower(strings.TrimSpace(raw))
	if mime == "" {
		return ""
	}
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = strings.TrimSpace(mime[:idx])
	}
	return mime
}

// ResolveMime resolves source MIME and sniffed MIME into final MIME.
func ResolveMime(kind, sourceMime, sniffedMime string) string {
	source := NormalizeMime(sourceMime)
	sniffed := NormalizeMime(sniffedMime)
	sourceGeneric := source == "" || source == "application/octet-stream"

	if kind == KindImage {
		if strings.HasPrefix(source, "image/") {
			return source
		}
		if strings.HasPrefix(sniffed, "image/") {
			return sniffed
		}
	}
	if !sourceGeneric {
		return source
	}
	if sniffed != "" {
		return sniffed
	}
	return "application/octet-stream"
}

// DetectMime sniffs data and resolves it against the declared MIME.
func DetectMime(kind, sourceMime string, data []byte) string {
	sniffed := ""
	if len(data) > 0 {
		head := data
		if len(head) > 512 {
			head = head[:512]
		}
		sniffed = NormalizeMime(http.DetectContentType(head))
	}
	return ResolveMime(kind, sourceMime, sniffed)
}

var extensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/gif":       ".gif",
	"application/pdf": ".pdf",
}

// FileName builds a receipt file name from base, keeping an existing
// extension and otherwise deriving one from mime.
func FileName(base, mime string) string {
	base = strings.TrimSpace(strings.ReplaceAll(base, "/", "_"))
	if base == "" {
		base = "receipt"
	}
	if path.Ext(base) != "" {
		return base
	}
	if ext, ok := extensions[NormalizeMime(mime)]; ok {
		return base + ext
	}
	return base
}
