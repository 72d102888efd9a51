package media

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSplitPath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		week     string
		filename string
		ok       bool
	}{
		{name: "media", path: "weeks/2025-02-23/image_1.jpg", week: "2025-02-23", filename: "image_1.jpg", ok: true},
		{name: "theme", path: "weeks/2025-02-23/theme.json", week: "2025-02-23", filename: "theme.json", ok: true},
		{name: "too shallow", path: "weeks/2025-02-23", ok: false},
		{name: "too deep", path: "weeks/2025-02-23/a/b.jpg", ok: false},
		{name: "wrong root", path: "other/2025-02-23/image_1.jpg", ok: false},
		{name: "empty week", path: "weeks//image_1.jpg", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			week, filename, ok := SplitPath(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.week, week)
			assert.Equal(t, tt.filename, filename)
		})
	}
}

func TestValidPath(t *testing.T) {
	assert.True(t, ValidPath("weeks/2025-02-23/image_1709123456789.jpg"))
	assert.True(t, ValidPath("weeks/2025-02-23/video_1709123456789-2.mov"))
	assert.False(t, ValidPath("weeks/2025-02-23/theme.json"))
	assert.False(t, ValidPath("weeks/2025-02-23/../x/image_1.jpg"))
	assert.False(t, ValidPath("weeks/25-02-23/image_1.jpg"))
	assert.False(t, ValidPath("weeks/2025-02-23/audio_1.mp3"))
}

func TestFilenameRoundTripsTimestamp(t *testing.T) {
	ts := time.Date(2024, 3, 10, 14, 22, 0, 0, time.UTC)

	name := Filename(TypeImage, ts, 0, "jpg")
	assert.Equal(t, "image_1710080520000.jpg", name)
	got, ok := TimestampOf(name)
	assert.True(t, ok)
	assert.True(t, ts.Equal(got))

	name = Filename(TypeVideo, ts, 3, "mp4")
	assert.Equal(t, "video_1710080520000-3.mp4", name)
	got, ok = TimestampOf(name)
	assert.True(t, ok)
	assert.True(t, ts.Equal(got))

	_, ok = TimestampOf("IMG_0001.jpg")
	assert.False(t, ok)
}

func TestTypeDerivation(t *testing.T) {
	assert.Equal(t, TypeVideo, TypeOf("video_1.mp4"))
	assert.Equal(t, TypeImage, TypeOf("image_1.jpg"))
	assert.Equal(t, TypeImage, TypeOf("whatever.bin"))

	typ, ok := TypeFromContentType("video/quicktime")
	assert.True(t, ok)
	assert.Equal(t, TypeVideo, typ)
	_, ok = TypeFromContentType("application/pdf")
	assert.False(t, ok)

	typ, ok = ParseType(" Image ")
	assert.True(t, ok)
	assert.Equal(t, TypeImage, typ)
	_, ok = ParseType("audio")
	assert.False(t, ok)
}

func TestExt(t *testing.T) {
	assert.Equal(t, "png", Ext("IMG1.PNG", TypeImage))
	assert.Equal(t, "jpg", Ext("IMG1", TypeImage))
	assert.Equal(t, "mp4", Ext("clip", TypeVideo))
	assert.Equal(t, "jpg", Ext("weird.j-p", TypeImage))
}

func TestItemDisplayTime(t *testing.T) {
	up := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	captured := up.Add(-time.Hour)
	assert.Equal(t, captured, Item{UploadedAt: up, CapturedAt: captured}.DisplayTime())
	assert.Equal(t, up, Item{UploadedAt: up}.DisplayTime())
}
