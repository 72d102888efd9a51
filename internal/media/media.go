package media

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Type is the kind of a stored media item. It is never stored as metadata;
// it is always derived from the filename prefix.
type Type string

const (
	TypeImage Type = "image"
	TypeVideo Type = "video"
)

const (
	// Root is the top-level namespace of every stored object.
	Root = "weeks"
	// ThemeFile is the per-week control file. It shares the media namespace
	// but is never listed or counted as media.
	ThemeFile = "theme.json"
)

// Item is one uploaded photo or video.
type Item struct {
	URL        string    `json:"url"`
	Pathname   string    `json:"pathname"` // weeks/{weekKey}/{type}_{ms}.{ext}
	Type       Type      `json:"type"`
	UploadedAt time.Time `json:"uploadedAt"`
	CapturedAt time.Time `json:"capturedAt"`
	Size       int64     `json:"size"`
}

// DisplayTime is the instant an item is ordered and labelled by.
func (i Item) DisplayTime() time.Time {
	if !i.CapturedAt.IsZero() {
		return i.CapturedAt
	}
	return i.UploadedAt
}

// Week aggregates every item stored under one week key.
type Week struct {
	WeekKey string `json:"weekKey"`
	Label   string `json:"label"`
	Count   int    `json:"count"`
	Items   []Item `json:"items"`
}

var (
	pathPattern     = regexp.MustCompile(`^weeks/\d{4}-\d{2}-\d{2}/(image|video)_\d+(-\d+)?\.\w+$`)
	filenamePattern = regexp.MustCompile(`^(?:image|video)_(\d+)(?:-\d+)?\.`)
	extPattern      = regexp.MustCompile(`^\w+$`)
)

// WeekPrefix is the listing prefix of a week bucket.
func WeekPrefix(weekKey string) string {
	return Root + "/" + weekKey + "/"
}

// Path joins a week key and filename into a logical pathname.
func Path(weekKey, filename string) string {
	return WeekPrefix(weekKey) + filename
}

// ThemePath is the logical pathname of a week's theme record.
func ThemePath(weekKey string) string {
	return Path(weekKey, ThemeFile)
}

// SplitPath splits weeks/{weekKey}/{filename}. Deeper or shallower paths
// are rejected.
func SplitPath(p string) (weekKey, filename string, ok bool) {
	parts := strings.Split(p, "/")
	if len(parts) != 3 || parts[0] != Root || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// IsControlFile reports whether filename is a non-media artifact.
func IsControlFile(filename string) bool {
	return filename == ThemeFile
}

// ValidPath reports whether p is a well-formed media pathname.
func ValidPath(p string) bool {
	return pathPattern.MatchString(p)
}

// TypeOf derives the item type from a filename.
func TypeOf(filename string) Type {
	if strings.HasPrefix(filename, string(TypeVideo)+"_") {
		return TypeVideo
	}
	return TypeImage
}

// ParseType accepts the declared type form field.
func ParseType(s string) (Type, bool) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case TypeImage:
		return TypeImage, true
	case TypeVideo:
		return TypeVideo, true
	}
	return "", false
}

// TypeFromContentType maps image/* and video/* to a media type.
func TypeFromContentType(ct string) (Type, bool) {
	ct = strings.ToLower(ct)
	switch {
	case strings.HasPrefix(ct, "image/"):
		return TypeImage, true
	case strings.HasPrefix(ct, "video/"):
		return TypeVideo, true
	}
	return "", false
}

// Ext returns the lowercase extension of the original filename, falling back
// to jpg for images and mp4 for videos.
func Ext(original string, t Type) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(original), "."))
	if ext != "" && extPattern.MatchString(ext) {
		return ext
	}
	if t == TypeVideo {
		return "mp4"
	}
	return "jpg"
}

// Filename builds {type}_{unixMillis}[-{seq}].{ext}.
func Filename(t Type, ts time.Time, seq int, ext string) string {
	if seq > 0 {
		return fmt.Sprintf("%s_%d-%d.%s", t, ts.UnixMilli(), seq, ext)
	}
	return fmt.Sprintf("%s_%d.%s", t, ts.UnixMilli(), ext)
}

// TimestampOf recovers the capture instant embedded in a filename.
func TimestampOf(filename string) (time.Time, bool) {
	m := filenamePattern.FindStringSubmatch(filename)
	if m == nil {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
