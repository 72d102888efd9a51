package service

import (
	"context"
	"encoding/json"

	"github.com/fathima-sithara/tinytalk/internal/media"
	"github.com/fathima-sithara/tinytalk/internal/themes"
	utils "github.com/fathima-sithara/tinytalk/internal/utils"
)

type themeRecord struct {
	Theme string `json:"theme"`
}

// GetTheme returns the week's theme, or "none" when there is no record or
// it cannot be read.
func (s *MediaService) GetTheme(ctx context.Context, weekKey string) string {
	data, err := s.store.Get(ctx, media.ThemePath(weekKey))
	if err != nil {
		if !isNotFound(err) {
			s.log.Warnw("read theme failed", "week", weekKey, "error", err)
		}
		return themes.None
	}
	var rec themeRecord
	if err := json.Unmarshal(data, &rec); err != nil || rec.Theme == "" {
		return themes.None
	}
	if !s.catalog.Has(rec.Theme) {
		return themes.None
	}
	return rec.Theme
}

// SetTheme overwrites the week's theme record.
func (s *MediaService) SetTheme(ctx context.Context, weekKey, theme string) error {
	if !s.cal.Valid(weekKey) {
		return utils.Validationf("invalid week %q", weekKey)
	}
	if theme == "" {
		return utils.Validationf("theme missing")
	}
	if !s.catalog.Has(theme) {
		return utils.ErrUnknownTheme
	}
	body, err := json.Marshal(themeRecord{Theme: theme})
	if err != nil {
		return err
	}
	if _, err := s.store.Put(ctx, media.ThemePath(weekKey), body, "application/json"); err != nil {
		s.log.Errorw("save theme failed", "week", weekKey, "error", err)
		return err
	}
	return nil
}
