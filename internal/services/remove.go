package service

import (
	"context"
	"errors"

	"github.com/fathima-sithara/tinytalk/internal/media"
	"github.com/fathima-sithara/tinytalk/internal/storage"
	utils "github.com/fathima-sithara/tinytalk/internal/utils"
)

func isNotFound(err error) bool { return errors.Is(err, utils.ErrNotFound) }

// Delete removes the object stored under pathname. The pathname is resolved
// with a list-then-match; an absent object is ErrNotFound.
func (s *MediaService) Delete(ctx context.Context, pathname string) error {
	if pathname == "" {
		return utils.Validationf("Missing pathname")
	}
	weekKey, _, ok := media.SplitPath(pathname)
	if !ok {
		return utils.Validationf("malformed pathname %q", pathname)
	}
	obj, found, err := storage.Find(ctx, s.store, pathname)
	if err != nil {
		s.log.Errorw("delete lookup failed", "pathname", pathname, "error", err)
		return err
	}
	if !found {
		return utils.ErrNotFound
	}
	if err := s.store.Delete(ctx, obj.Locator); err != nil {
		if isNotFound(err) {
			return err
		}
		s.log.Errorw("delete failed", "pathname", pathname, "error", err)
		return err
	}
	s.invalidate(ctx, weekKey)
	return nil
}
