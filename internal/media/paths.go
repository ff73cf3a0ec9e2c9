package media

import (
	"fmt"
	"path"
	"strings"
)

// Derived objects live under a fixed prefix that replaces the first component
// of the capture's storage path, so reprocessing a capture overwrites the
// same keys:
//
//	image/user_1/2025-01-01/123.png -> thumbnails/user_1/2025-01-01/123.jpg
//	video/user_1/2025-01-01/123.mp4 -> frames/user_1/2025-01-01/123/
const (
	thumbnailPrefix = "thumbnails"
	framesPrefix    = "frames"
	manifestName    = "manifest.json"
)

func derivedStem(prefix, storagePath string) string {
	clean := strings.Trim(storagePath, "/")
	parts := strings.Split(clean, "/")
	if len(parts) < 2 {
		return path.Join(prefix, clean)
	}

	rest := parts[1:]
	name := rest[len(rest)-1]
	stem := strings.TrimSuffix(name, path.Ext(name))
	return path.Join(prefix, path.Join(rest[:len(rest)-1]...), stem)
}

func ThumbnailPath(storagePath string) string {
	return derivedStem(thumbnailPrefix, storagePath) + ".jpg"
}

func FramesDir(storagePath string) string {
	return derivedStem(framesPrefix, storagePath)
}

func FrameName(index int) string {
	return fmt.Sprintf("frame_%d.jpg", index)
}

func ManifestPath(framesDir string) string {
	return path.Join(framesDir, manifestName)
}
