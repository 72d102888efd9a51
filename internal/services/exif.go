package service

import (
	"bytes"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

const exifTimeLayout = "2006:01:02 15:04:05"

// captureTime extracts the original capture time from image metadata,
// preferring DateTimeOriginal over DateTime. The wall clock is read in loc.
func captureTime(data []byte, loc *time.Location) (time.Time, bool) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return time.Time{}, false
	}
	for _, name := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTime} {
		tag, err := x.Get(name)
		if err != nil {
			continue
		}
		raw, err := tag.StringVal()
		if err != nil {
			continue
		}
		t, err := time.ParseInLocation(exifTimeLayout, strings.TrimSpace(strings.TrimRight(raw, "\x00")), loc)
		if err != nil {
			continue
		}
		return t, true
	}
	return time.Time{}, false
}
