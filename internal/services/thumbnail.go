package service

import (
	"bytes"
	"context"

	"github.com/disintegration/imaging"

	"github.com/fathima-sithara/tinytalk/internal/media"
	utils "github.com/fathima-sithara/tinytalk/internal/utils"
)

const ThumbnailWidth = 320

// Open returns the raw bytes stored under a media pathname.
func (s *MediaService) Open(ctx context.Context, pathname string) ([]byte, error) {
	if !media.ValidPath(pathname) {
		return nil, utils.Validationf("malformed pathname %q", pathname)
	}
	return s.store.Get(ctx, pathname)
}

// Thumbnail renders a JPEG preview of a stored image scaled to width.
func (s *MediaService) Thumbnail(ctx context.Context, pathname string, width int) ([]byte, error) {
	if width <= 0 || width > ThumbnailWidth*4 {
		width = ThumbnailWidth
	}
	_, name, ok := media.SplitPath(pathname)
	if !ok || !media.ValidPath(pathname) {
		return nil, utils.Validationf("malformed pathname %q", pathname)
	}
	if media.TypeOf(name) != media.TypeImage {
		return nil, utils.Validationf("no thumbnail for videos")
	}
	data, err := s.store.Get(ctx, pathname)
	if err != nil {
		return nil, err
	}
	return generateThumbnail(data, width)
}

func generateThumbnail(data []byte, width int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, utils.Validationf("undecodable image: %v", err)
	}
	if img.Bounds().Dx() > width {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
