package service

import (
	"context"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/fathima-sithara/tinytalk/internal/media"
	utils "github.com/fathima-sithara/tinytalk/internal/utils"
)

// UploadRequest is one file handed to Upload.
type UploadRequest struct {
	Filename     string // original client filename, used for the extension
	ContentType  string
	DeclaredType string // "image" or "video"; optional
	WeekKey      string
	Data         []byte
}

// resolveType classifies an upload. Content that is known to be neither
// image/* nor video/* is always rejected; the declared type only picks
// between image and video, and supplies a content type when none can be
// determined from the bytes.
func (s *MediaService) resolveType(req UploadRequest) (media.Type, string, error) {
	var declared media.Type
	if req.DeclaredType != "" {
		t, ok := media.ParseType(req.DeclaredType)
		if !ok {
			return "", "", utils.ErrUnsupportedType
		}
		declared = t
	}

	ct := req.ContentType
	if ct == "" || ct == octetStream {
		ct = http.DetectContentType(req.Data)
	}
	if ct == octetStream {
		if declared == "" {
			return "", "", utils.ErrUnsupportedType
		}
		return declared, defaultContentType(declared), nil
	}
	t, ok := media.TypeFromContentType(ct)
	if !ok {
		return "", "", utils.ErrUnsupportedType
	}
	if declared != "" {
		t = declared
	}
	return t, ct, nil
}

const octetStream = "application/octet-stream"

func defaultContentType(t media.Type) string {
	if t == media.TypeVideo {
		return "video/mp4"
	}
	return "image/jpeg"
}

// Upload stores one file in its week bucket. Images are keyed by their
// capture time when the metadata carries one, everything else by now.
// Exactly one object is written per call.
func (s *MediaService) Upload(ctx context.Context, req UploadRequest) (*media.Item, error) {
	if len(req.Data) == 0 {
		return nil, utils.Validationf("file missing")
	}
	if req.WeekKey == "" {
		return nil, utils.Validationf("week missing")
	}
	if !s.cal.Valid(req.WeekKey) {
		return nil, utils.Validationf("invalid week %q", req.WeekKey)
	}
	if s.maxBytes > 0 && int64(len(req.Data)) > s.maxBytes {
		return nil, utils.ErrTooLarge
	}
	t, ct, err := s.resolveType(req)
	if err != nil {
		return nil, err
	}

	now := s.now()
	captured := now
	if t == media.TypeImage {
		if ts, ok := captureTime(req.Data, s.cal.Location()); ok {
			captured = ts
		} else {
			s.log.Debugw("no capture time in metadata", "file", req.Filename)
		}
	}

	pathname, err := s.freePath(ctx, req.WeekKey, t, captured, media.Ext(path.Base(req.Filename), t))
	if err != nil {
		return nil, err
	}
	obj, err := s.store.Put(ctx, pathname, req.Data, ct)
	if err != nil {
		s.log.Errorw("upload failed", "pathname", pathname, "error", err)
		return nil, err
	}
	s.invalidate(ctx, req.WeekKey)

	return &media.Item{
		URL:        obj.URL,
		Pathname:   pathname,
		Type:       t,
		UploadedAt: now,
		CapturedAt: captured,
		Size:       int64(len(req.Data)),
	}, nil
}

// freePath picks the first unused {type}_{ms}[-n].{ext} in the week so two
// files with the same capture millisecond never overwrite each other.
func (s *MediaService) freePath(ctx context.Context, weekKey string, t media.Type, ts time.Time, ext string) (string, error) {
	objs, err := s.store.List(ctx, media.WeekPrefix(weekKey))
	if err != nil {
		return "", err
	}
	taken := make(map[string]struct{}, len(objs))
	for _, o := range objs {
		taken[o.Path] = struct{}{}
	}
	for seq := 0; ; seq++ {
		p := media.Path(weekKey, media.Filename(t, ts, seq, ext))
		if _, ok := taken[p]; !ok {
			return p, nil
		}
	}
}

// BatchFailure records one file the batch loop skipped.
type BatchFailure struct {
	Filename string
	Err      error
}

type BatchResult struct {
	Items  []media.Item
	Failed []BatchFailure
}

// UploadBatch uploads files one at a time in order. A failure is recorded
// and the loop moves on; progress is reported after every file.
func (s *MediaService) UploadBatch(ctx context.Context, reqs []UploadRequest, progress func(done, total int)) BatchResult {
	var res BatchResult
	total := len(reqs)
	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			for _, rest := range reqs[i:] {
				res.Failed = append(res.Failed, BatchFailure{Filename: rest.Filename, Err: err})
			}
			return res
		}
		item, err := s.Upload(ctx, req)
		if err != nil {
			s.log.Warnw("batch upload skipped file", "file", req.Filename, "error", err)
			res.Failed = append(res.Failed, BatchFailure{Filename: req.Filename, Err: err})
		} else {
			res.Items = append(res.Items, *item)
		}
		if progress != nil {
			progress(i+1, total)
		}
	}
	return res
}

// MediaTypeOf classifies a local filename by extension.
func MediaTypeOf(name string) (media.Type, bool) {
	switch strings.ToLower(strings.TrimPrefix(path.Ext(name), ".")) {
	case "jpg", "jpeg", "png", "gif", "webp", "heic", "heif":
		return media.TypeImage, true
	case "mp4", "mov", "m4v", "webm", "3gp":
		return media.TypeVideo, true
	}
	return "", false
}

// IsMediaFile reports whether a local filename looks like a photo or video.
func IsMediaFile(name string) bool {
	_, ok := MediaTypeOf(name)
	return ok
}
