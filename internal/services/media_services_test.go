package service

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/tinytalk/internal/cache"
	"github.com/fathima-sithara/tinytalk/internal/media"
	"github.com/fathima-sithara/tinytalk/internal/storage"
	"github.com/fathima-sithara/tinytalk/internal/utils"
	"github.com/fathima-sithara/tinytalk/internal/week"
)

// Wednesday inside the week of Sunday 2025-02-23.
var fixedNow = time.Date(2025, 2, 26, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *MediaService
	store storage.Store
	fs    afero.Fs
}

func newFixture(t *testing.T, opts ...func(*Options)) fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	store := storage.NewFSStore(fs, "/uploads/")
	o := Options{
		Calendar:       week.NewCalendar(time.UTC),
		MaxUploadBytes: 100 << 20,
		Now:            func() time.Time { return fixedNow },
	}
	for _, fn := range opts {
		fn(&o)
	}
	return fixture{svc: NewMediaService(store, o), store: store, fs: fs}
}

// exifJPEG builds a minimal JPEG whose APP1 segment carries an IFD0 DateTime.
func exifJPEG(stamp string) []byte {
	val := append([]byte(stamp), 0)
	tiff := new(bytes.Buffer)
	tiff.WriteString("II")
	_ = binary.Write(tiff, binary.LittleEndian, uint16(42))
	_ = binary.Write(tiff, binary.LittleEndian, uint32(8))
	_ = binary.Write(tiff, binary.LittleEndian, uint16(1))
	_ = binary.Write(tiff, binary.LittleEndian, uint16(0x0132)) // DateTime
	_ = binary.Write(tiff, binary.LittleEndian, uint16(2))      // ASCII
	_ = binary.Write(tiff, binary.LittleEndian, uint32(len(val)))
	_ = binary.Write(tiff, binary.LittleEndian, uint32(26))
	_ = binary.Write(tiff, binary.LittleEndian, uint32(0))
	tiff.Write(val)

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)
	out := new(bytes.Buffer)
	out.Write([]byte{0xFF, 0xD8, 0xFF, 0xE1})
	_ = binary.Write(out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write([]byte{0xFF, 0xD9})
	return out.Bytes()
}

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCaptureTime_ReadsExifDateTime(t *testing.T) {
	ts, ok := captureTime(exifJPEG("2024:03:10 14:22:00"), time.UTC)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 10, 14, 22, 0, 0, time.UTC), ts)

	_, ok = captureTime([]byte("not an image"), time.UTC)
	assert.False(t, ok)
}

func TestUpload_ImageUsesExifCaptureTime(t *testing.T) {
	f := newFixture(t)
	item, err := f.svc.Upload(context.Background(), UploadRequest{
		Filename:    "IMG_0001.JPG",
		ContentType: "image/jpeg",
		WeekKey:     "2024-03-10",
		Data:        exifJPEG("2024:03:10 14:22:00"),
	})
	require.NoError(t, err)

	captured := time.Date(2024, 3, 10, 14, 22, 0, 0, time.UTC)
	assert.Equal(t, captured, item.CapturedAt)
	assert.Equal(t, fixedNow, item.UploadedAt)
	assert.Equal(t, media.TypeImage, item.Type)
	assert.Equal(t, media.Path("2024-03-10", media.Filename(media.TypeImage, captured, 0, "jpg")), item.Pathname)
	assert.True(t, media.ValidPath(item.Pathname))
}

func TestUpload_ImageWithoutMetadataUsesNow(t *testing.T) {
	f := newFixture(t)
	item, err := f.svc.Upload(context.Background(), UploadRequest{
		Filename:     "IMG1.jpg",
		ContentType:  "image/jpeg",
		DeclaredType: "image",
		WeekKey:      "2025-02-23",
		Data:         []byte("plain jpeg bytes"),
	})
	require.NoError(t, err)
	assert.Equal(t, "weeks/2025-02-23/image_1740564000000.jpg", item.Pathname)
	assert.Equal(t, fixedNow, item.CapturedAt)
	assert.Equal(t, "/uploads/"+item.Pathname, item.URL)

	items := f.svc.ListWeek(context.Background(), "2025-02-23")
	require.Len(t, items, 1)
	assert.Equal(t, item.Pathname, items[0].Pathname)
}

func TestUpload_VideoAlwaysUsesNow(t *testing.T) {
	f := newFixture(t)
	item, err := f.svc.Upload(context.Background(), UploadRequest{
		Filename:     "clip.MOV",
		ContentType:  "video/quicktime",
		DeclaredType: "video",
		WeekKey:      "2025-02-23",
		Data:         exifJPEG("2024:03:10 14:22:00"),
	})
	require.NoError(t, err)
	assert.Equal(t, media.TypeVideo, item.Type)
	assert.Equal(t, fixedNow, item.CapturedAt)
	assert.Equal(t, "weeks/2025-02-23/video_1740564000000.mov", item.Pathname)
}

func TestUpload_SameMillisecondGetsSuffix(t *testing.T) {
	f := newFixture(t)
	req := UploadRequest{Filename: "a.jpg", ContentType: "image/jpeg", WeekKey: "2025-02-23", Data: []byte("x")}

	first, err := f.svc.Upload(context.Background(), req)
	require.NoError(t, err)
	second, err := f.svc.Upload(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "weeks/2025-02-23/image_1740564000000.jpg", first.Pathname)
	assert.Equal(t, "weeks/2025-02-23/image_1740564000000-1.jpg", second.Pathname)
	assert.True(t, media.ValidPath(second.Pathname))
	assert.Len(t, f.svc.ListWeek(context.Background(), "2025-02-23"), 2)
}

func TestUpload_Rejections(t *testing.T) {
	cases := []struct {
		name string
		req  UploadRequest
		want error
	}{
		{"no data", UploadRequest{WeekKey: "2025-02-23", ContentType: "image/jpeg"}, utils.ErrValidation},
		{"no week", UploadRequest{Data: []byte("x"), ContentType: "image/jpeg"}, utils.ErrValidation},
		{"bad week", UploadRequest{Data: []byte("x"), ContentType: "image/jpeg", WeekKey: "next-week"}, utils.ErrValidation},
		{"unknown declared type", UploadRequest{Data: []byte("x"), DeclaredType: "audio", WeekKey: "2025-02-23"}, utils.ErrUnsupportedType},
		{"non-media content", UploadRequest{Data: []byte("hello"), ContentType: "text/plain", WeekKey: "2025-02-23"}, utils.ErrUnsupportedType},
		{"declared image over pdf content", UploadRequest{Filename: "report.pdf", Data: []byte("%PDF-1.4"), ContentType: "application/pdf", DeclaredType: "image", WeekKey: "2025-02-23"}, utils.ErrUnsupportedType},
		{"declared image over sniffed pdf", UploadRequest{Filename: "report.pdf", Data: []byte("%PDF-1.4"), DeclaredType: "image", WeekKey: "2025-02-23"}, utils.ErrUnsupportedType},
		{"undetectable bytes without declared type", UploadRequest{Data: []byte{0x00, 0x01, 0x02, 0x03, 0xfe}, WeekKey: "2025-02-23"}, utils.ErrUnsupportedType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Upload(context.Background(), tc.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, 400, utils.StatusFor(err))
		})
	}
}

func TestUpload_DeclaredTypeCoversUndetectableBytes(t *testing.T) {
	f := newFixture(t)
	item, err := f.svc.Upload(context.Background(), UploadRequest{
		Filename:     "clip.mkv",
		DeclaredType: "video",
		WeekKey:      "2025-02-23",
		Data:         []byte{0x00, 0x01, 0x02, 0x03, 0xfe},
	})
	require.NoError(t, err)
	assert.Equal(t, media.TypeVideo, item.Type)
	assert.Equal(t, "weeks/2025-02-23/video_1740564000000.mkv", item.Pathname)
}

func TestUpload_TooLarge(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.MaxUploadBytes = 4 })
	_, err := f.svc.Upload(context.Background(), UploadRequest{Data: []byte("12345"), ContentType: "image/png", WeekKey: "2025-02-23"})
	assert.ErrorIs(t, err, utils.ErrTooLarge)
}

func TestUploadBatch_ContinuesPastFailures(t *testing.T) {
	f := newFixture(t)
	var progress [][2]int
	res := f.svc.UploadBatch(context.Background(), []UploadRequest{
		{Filename: "a.jpg", ContentType: "image/jpeg", WeekKey: "2025-02-23", Data: []byte("a")},
		{Filename: "notes.txt", ContentType: "text/plain", WeekKey: "2025-02-23", Data: []byte("b")},
		{Filename: "c.mp4", ContentType: "video/mp4", WeekKey: "2025-02-23", Data: []byte("c")},
	}, func(done, total int) { progress = append(progress, [2]int{done, total}) })

	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, progress)
	assert.Len(t, res.Items, 2)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "notes.txt", res.Failed[0].Filename)
}

func TestListWeek_ExcludesThemeAndOrdersByDisplayTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, p := range []string{
		"weeks/2025-02-23/image_1740600000000.jpg",
		"weeks/2025-02-23/video_1740400000000.mp4",
		"weeks/2025-02-23/image_1740500000000.png",
	} {
		_, err := f.store.Put(ctx, p, []byte("x"), "")
		require.NoError(t, err)
	}
	require.NoError(t, f.svc.SetTheme(ctx, "2025-02-23", "ocean"))

	items := f.svc.ListWeek(ctx, "2025-02-23")
	require.Len(t, items, 3)
	assert.Equal(t, "weeks/2025-02-23/video_1740400000000.mp4", items[0].Pathname)
	assert.Equal(t, media.TypeVideo, items[0].Type)
	assert.Equal(t, "weeks/2025-02-23/image_1740500000000.png", items[1].Pathname)
	assert.Equal(t, "weeks/2025-02-23/image_1740600000000.jpg", items[2].Pathname)
	for _, it := range items {
		assert.NotContains(t, it.Pathname, media.ThemeFile)
	}
}

func TestListWeek_EmptyAndStorageFailure(t *testing.T) {
	f := newFixture(t)
	items := f.svc.ListWeek(context.Background(), "2020-01-05")
	assert.NotNil(t, items)
	assert.Empty(t, items)

	broken := NewMediaService(failingStore{}, Options{Calendar: week.NewCalendar(time.UTC)})
	assert.Empty(t, broken.ListWeek(context.Background(), "2025-02-23"))
	assert.Empty(t, broken.ListWeeks(context.Background()))
	assert.Equal(t, "none", broken.GetTheme(context.Background(), "2025-02-23"))
}

func TestListWeeks_GroupsNewestWeekFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, p := range []string{
		"weeks/2025-02-16/image_1.jpg",
		"weeks/2025-02-23/image_2.jpg",
		"weeks/2025-02-23/video_3.mp4",
		"weeks/2025-02-23/theme.json",
		"weeks/2025-03-02/image_4.jpg",
		"stray.txt",
	} {
		_, err := f.store.Put(ctx, p, []byte("x"), "")
		require.NoError(t, err)
	}

	weeks := f.svc.ListWeeks(ctx)
	require.Len(t, weeks, 3)
	assert.Equal(t, []string{"2025-03-02", "2025-02-23", "2025-02-16"},
		[]string{weeks[0].WeekKey, weeks[1].WeekKey, weeks[2].WeekKey})
	assert.Equal(t, 2, weeks[1].Count)
	assert.Len(t, weeks[1].Items, 2)
	assert.Equal(t, "Week of Feb 23 – Mar 1", weeks[1].Label)
}

func TestListing_CacheInvalidatedOnMutation(t *testing.T) {
	mem := cache.NewMemory()
	f := newFixture(t, func(o *Options) { o.Cache = mem })
	ctx := context.Background()

	assert.Empty(t, f.svc.ListWeek(ctx, "2025-02-23"))
	_, err := mem.Get(ctx, weekCacheKey("2025-02-23"))
	require.NoError(t, err, "listing is cached")

	item, err := f.svc.Upload(ctx, UploadRequest{Filename: "a.jpg", ContentType: "image/jpeg", WeekKey: "2025-02-23", Data: []byte("a")})
	require.NoError(t, err)
	require.Len(t, f.svc.ListWeek(ctx, "2025-02-23"), 1)
	require.Len(t, f.svc.ListWeeks(ctx), 1)

	require.NoError(t, f.svc.Delete(ctx, item.Pathname))
	assert.Empty(t, f.svc.ListWeek(ctx, "2025-02-23"))
	assert.Empty(t, f.svc.ListWeeks(ctx))
}

func TestListing_FillDuringUploadIsNotCached(t *testing.T) {
	ctx := context.Background()
	fsStore := storage.NewFSStore(afero.NewMemMapFs(), "/uploads/")
	slow := &stallingStore{Store: fsStore, listing: make(chan struct{}), release: make(chan struct{})}
	svc := NewMediaService(slow, Options{
		Calendar: week.NewCalendar(time.UTC),
		Cache:    cache.NewMemory(),
		Now:      func() time.Time { return fixedNow },
	})

	done := make(chan []media.Item, 1)
	go func() { done <- svc.ListWeek(ctx, "2025-02-23") }()
	<-slow.listing

	_, err := svc.Upload(ctx, UploadRequest{Filename: "a.jpg", ContentType: "image/jpeg", WeekKey: "2025-02-23", Data: []byte("a")})
	require.NoError(t, err)
	close(slow.release)
	assert.Empty(t, <-done, "listing started before the upload")

	assert.Len(t, svc.ListWeek(ctx, "2025-02-23"), 1)
	weeks := svc.ListWeeks(ctx)
	require.Len(t, weeks, 1)
	assert.Equal(t, 1, weeks[0].Count)
}

func TestTheme_DefaultSetAndOverwrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, "none", f.svc.GetTheme(ctx, "2025-02-23"))
	require.NoError(t, f.svc.SetTheme(ctx, "2025-02-23", "dinosaur"))
	assert.Equal(t, "dinosaur", f.svc.GetTheme(ctx, "2025-02-23"))
	require.NoError(t, f.svc.SetTheme(ctx, "2025-02-23", "space"))
	assert.Equal(t, "space", f.svc.GetTheme(ctx, "2025-02-23"))

	err := f.svc.SetTheme(ctx, "2025-02-23", "volcano")
	assert.ErrorIs(t, err, utils.ErrUnknownTheme)
	assert.Equal(t, "space", f.svc.GetTheme(ctx, "2025-02-23"))
}

func TestTheme_CorruptRecordReadsAsNone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.Put(ctx, media.ThemePath("2025-02-23"), []byte("{oops"), "application/json")
	require.NoError(t, err)
	assert.Equal(t, "none", f.svc.GetTheme(ctx, "2025-02-23"))

	_, err = f.store.Put(ctx, media.ThemePath("2025-02-23"), []byte(`{"theme":"volcano"}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, "none", f.svc.GetTheme(ctx, "2025-02-23"))
}

func TestDelete_MissingIsNotFoundEveryTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	missing := "weeks/2025-02-23/image_1.jpg"

	for i := 0; i < 2; i++ {
		err := f.svc.Delete(ctx, missing)
		assert.ErrorIs(t, err, utils.ErrNotFound)
	}

	assert.ErrorIs(t, f.svc.Delete(ctx, ""), utils.ErrValidation)
	assert.ErrorIs(t, f.svc.Delete(ctx, "nope"), utils.ErrValidation)
}

func TestDelete_RemovesExactPathOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, p := range []string{"weeks/2025-02-23/image_1.jpg", "weeks/2025-02-23/image_10.jpg"} {
		_, err := f.store.Put(ctx, p, []byte("x"), "")
		require.NoError(t, err)
	}
	require.NoError(t, f.svc.Delete(ctx, "weeks/2025-02-23/image_1.jpg"))

	items := f.svc.ListWeek(ctx, "2025-02-23")
	require.Len(t, items, 1)
	assert.Equal(t, "weeks/2025-02-23/image_10.jpg", items[0].Pathname)
}

func TestThumbnail_ScalesDownToJPEG(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item, err := f.svc.Upload(ctx, UploadRequest{Filename: "big.png", ContentType: "image/png", WeekKey: "2025-02-23", Data: pngImage(t, 640, 480)})
	require.NoError(t, err)

	thumb, err := f.svc.Thumbnail(ctx, item.Pathname, 0)
	require.NoError(t, err)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.Equal(t, ThumbnailWidth, cfg.Width)
	assert.Equal(t, 240, cfg.Height)

	_, err = f.svc.Thumbnail(ctx, "weeks/2025-02-23/video_1.mp4", 0)
	assert.ErrorIs(t, err, utils.ErrValidation)
	_, err = f.svc.Thumbnail(ctx, "weeks/2025-02-23/image_1.jpg", 0)
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestIsMediaFile(t *testing.T) {
	assert.True(t, IsMediaFile("IMG_1.HEIC"))
	assert.True(t, IsMediaFile("clip.mov"))
	assert.False(t, IsMediaFile("notes.txt"))
	assert.False(t, IsMediaFile("README"))

	typ, ok := MediaTypeOf("b.MP4")
	assert.True(t, ok)
	assert.Equal(t, media.TypeVideo, typ)
}

type failingStore struct{}

var errBackend = errors.New("backend down")

func (failingStore) List(context.Context, string) ([]storage.Object, error) {
	return nil, utils.Storage("list", errBackend)
}

func (failingStore) Put(context.Context, string, []byte, string) (storage.Object, error) {
	return storage.Object{}, utils.Storage("put", errBackend)
}

func (failingStore) Delete(context.Context, string) error { return utils.Storage("delete", errBackend) }

func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, utils.Storage("get", errBackend)
}

// stallingStore parks its first List until release is closed, after reading
// the store, so a write can land between the read and the cache fill.
type stallingStore struct {
	storage.Store
	calls   atomic.Int32
	listing chan struct{}
	release chan struct{}
}

func (s *stallingStore) List(ctx context.Context, prefix string) ([]storage.Object, error) {
	objs, err := s.Store.List(ctx, prefix)
	if s.calls.Add(1) == 1 {
		close(s.listing)
		<-s.release
	}
	return objs, err
}
