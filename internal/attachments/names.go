package attachments

import (
	"path"
	"regexp"
	"strings"
	"time"
)

// DefaultImageExtension is used when a media type maps to no known extension.
const DefaultImageExtension = "png"

var fileSanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SanitizeFileName converts a dropped or pasted filename into a filesystem-safe
// value. Media type is used to backfill extensions when missing.
func SanitizeFileName(name, mediaType string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	name = fileSanitizer.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if name == "" {
		return ""
	}
	if idx := strings.LastIndex(name, "."); idx == -1 {
		if ext := InferExtension(mediaType); ext != "" {
			name = name + "." + ext
		}
	}
	return name
}

// InferExtension attempts to infer a suitable extension based on the media type.
func InferExtension(mediaType string) string {
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = strings.TrimSpace(mediaType[:idx])
	}
	switch mediaType {
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return "jpg"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	case "image/bmp", "image/x-ms-bmp":
		return "bmp"
	case "image/svg+xml":
		return "svg"
	case "image/tiff":
		return "tiff"
	case "image/avif":
		return "avif"
	case "image/heic":
		return "heic"
	case "image/x-icon", "image/vnd.microsoft.icon":
		return "ico"
	default:
		return ""
	}
}

// ImageExtension is InferExtension with DefaultImageExtension as fallback.
func ImageExtension(mediaType string) string {
	if ext := InferExtension(mediaType); ext != "" {
		return ext
	}
	return DefaultImageExtension
}

// IsImageType reports whether a media type denotes an image.
func IsImageType(mediaType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mediaType)), "image/")
}

// TimestampedName synthesises a filename for an image that has no allocated path.
func TimestampedName(mediaType string, now time.Time) string {
	return "pasted-image-" + now.Format("20060102150405") + "." + ImageExtension(mediaType)
}
