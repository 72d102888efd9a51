package service

import (
	"context"
	"sort"

	"github.com/fathima-sithara/tinytalk/internal/media"
	"github.com/fathima-sithara/tinytalk/internal/storage"
)

// itemFromObject turns a stored object into a media item. Control files and
// paths outside the weeks/{key}/{file} layout are skipped.
func itemFromObject(o storage.Object) (string, media.Item, bool) {
	weekKey, name, ok := media.SplitPath(o.Path)
	if !ok || media.IsControlFile(name) {
		return "", media.Item{}, false
	}
	captured, ok := media.TimestampOf(name)
	if !ok {
		captured = o.ModifiedAt
	}
	return weekKey, media.Item{
		URL:        o.URL,
		Pathname:   o.Path,
		Type:       media.TypeOf(name),
		UploadedAt: o.ModifiedAt,
		CapturedAt: captured,
		Size:       o.Size,
	}, true
}

// ListWeek returns a week's items ordered by display time. Storage failures
// degrade to an empty list.
func (s *MediaService) ListWeek(ctx context.Context, weekKey string) []media.Item {
	items := []media.Item{}
	if s.cached(ctx, weekCacheKey(weekKey), &items) {
		return items
	}
	gen := s.generation()
	objs, err := s.store.List(ctx, media.WeekPrefix(weekKey))
	if err != nil {
		s.log.Warnw("list week failed", "week", weekKey, "error", err)
		return []media.Item{}
	}
	for _, o := range objs {
		key, item, ok := itemFromObject(o)
		if !ok || key != weekKey {
			continue
		}
		items = append(items, item)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].DisplayTime().Before(items[j].DisplayTime())
	})
	s.remember(ctx, weekCacheKey(weekKey), items, gen)
	return items
}

// ListWeeks groups every stored item by week, newest week first. Items
// inside a week are ordered by upload time.
func (s *MediaService) ListWeeks(ctx context.Context) []media.Week {
	weeks := []media.Week{}
	if s.cached(ctx, weeksCacheKey, &weeks) {
		return weeks
	}
	gen := s.generation()
	objs, err := s.store.List(ctx, media.Root+"/")
	if err != nil {
		s.log.Warnw("list weeks failed", "error", err)
		return []media.Week{}
	}
	byKey := map[string]int{}
	for _, o := range objs {
		key, item, ok := itemFromObject(o)
		if !ok {
			continue
		}
		idx, seen := byKey[key]
		if !seen {
			idx = len(weeks)
			byKey[key] = idx
			weeks = append(weeks, media.Week{WeekKey: key, Label: s.cal.Label(key)})
		}
		weeks[idx].Items = append(weeks[idx].Items, item)
	}
	for i := range weeks {
		w := &weeks[i]
		sort.SliceStable(w.Items, func(a, b int) bool {
			return w.Items[a].UploadedAt.Before(w.Items[b].UploadedAt)
		})
		w.Count = len(w.Items)
	}
	sort.SliceStable(weeks, func(i, j int) bool { return weeks[i].WeekKey > weeks[j].WeekKey })
	s.remember(ctx, weeksCacheKey, weeks, gen)
	return weeks
}
