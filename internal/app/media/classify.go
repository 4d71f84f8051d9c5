package media

import (
	"fmt"
	"mime"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/dmendiola/wagate/internal/domain"
)

// KindFromMime classifies an attachment by its mimetype prefix.
func KindFromMime(mimetype string) domain.MediaKind {
	switch {
	case strings.HasPrefix(mimetype, "image/"):
		return domain.KindImage
	case strings.HasPrefix(mimetype, "video/"):
		return domain.KindVideo
	case strings.HasPrefix(mimetype, "application/"):
		return domain.KindDocument
	case strings.HasPrefix(mimetype, "audio/"):
		return domain.KindAudio
	default:
		return domain.KindSticker
	}
}

// KindFromURL infers the media kind of an outbound send from the URL's
// file extension. Unknown extensions fall back to document.
func KindFromURL(rawURL string) domain.MediaKind {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(stripQuery(rawURL)), "."))
	switch ext {
	case "jpg", "jpeg", "png", "webp":
		return domain.KindImage
	case "mp4", "mov", "avi":
		return domain.KindVideo
	case "pdf", "doc", "docx", "xls", "xlsx":
		return domain.KindDocument
	case "mp3", "ogg", "aac":
		return domain.KindAudio
	default:
		return domain.KindDocument
	}
}

func stripQuery(rawURL string) string {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SanitizeFilename strips everything outside [A-Za-z0-9._-]. With no
// usable name it synthesizes one from the clock and the mimetype's
// extension.
func SanitizeFilename(name, mimetype string) string {
	clean := unsafeFilenameChars.ReplaceAllString(name, "")
	clean = strings.Trim(clean, ".")
	if clean != "" {
		return clean
	}
	return fmt.Sprintf("%d%s", time.Now().UnixNano(), extensionFor(mimetype))
}

func extensionFor(mimetype string) string {
	// strip parameters like "; codecs=opus"
	if i := strings.Index(mimetype, ";"); i >= 0 {
		mimetype = strings.TrimSpace(mimetype[:i])
	}
	if exts, err := mime.ExtensionsByType(mimetype); err == nil && len(exts) > 0 {
		// prefer the plain subtype extension when present
		if i := strings.Index(mimetype, "/"); i >= 0 {
			want := "." + mimetype[i+1:]
			for _, e := range exts {
				if e == want {
					return e
				}
			}
		}
		return exts[0]
	}
	if i := strings.Index(mimetype, "/"); i >= 0 && i+1 < len(mimetype) {
		return "." + mimetype[i+1:]
	}
	return ".bin"
}
