package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/fathima-sithara/tinytalk/internal/utils"
)

// FSStore keeps objects as files on an afero filesystem. Locators are the
// logical pathnames themselves.
type FSStore struct {
	fs        afero.Fs
	urlPrefix string
}

func NewFSStore(fs afero.Fs, urlPrefix string) *FSStore {
	return &FSStore{fs: fs, urlPrefix: strings.TrimSuffix(urlPrefix, "/")}
}

// NewLocalStore roots an FSStore at dir on the host filesystem.
func NewLocalStore(dir, urlPrefix string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads root: %w", err)
	}
	return NewFSStore(afero.NewBasePathFs(afero.NewOsFs(), dir), urlPrefix), nil
}

// fsPath anchors p at the filesystem root; cleaning a rooted path drops any
// ".." that would escape it.
func fsPath(p string) string {
	return path.Clean("/" + p)
}

func (s *FSStore) url(p string) string {
	return s.urlPrefix + "/" + p
}

func (s *FSStore) List(ctx context.Context, prefix string) ([]Object, error) {
	dir := prefix
	if !strings.HasSuffix(prefix, "/") {
		dir = path.Dir(prefix)
	}
	root := fsPath(dir)

	var out []Object
	err := afero.Walk(s.fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		logical := strings.TrimPrefix(filepath.ToSlash(p), "/")
		if !strings.HasPrefix(logical, prefix) {
			return nil
		}
		out = append(out, Object{
			Path:       logical,
			Locator:    logical,
			URL:        s.url(logical),
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, utils.Storage("list "+prefix, err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *FSStore) Put(ctx context.Context, p string, data []byte, _ string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	fp := fsPath(p)
	if err := s.fs.MkdirAll(path.Dir(fp), 0o755); err != nil {
		return Object{}, utils.Storage("put "+p, err)
	}
	if err := afero.WriteFile(s.fs, fp, data, 0o644); err != nil {
		return Object{}, utils.Storage("put "+p, err)
	}
	info, err := s.fs.Stat(fp)
	if err != nil {
		return Object{}, utils.Storage("put "+p, err)
	}
	logical := strings.TrimPrefix(fp, "/")
	return Object{
		Path:       logical,
		Locator:    logical,
		URL:        s.url(logical),
		Size:       info.Size(),
		ModifiedAt: info.ModTime(),
	}, nil
}

func (s *FSStore) Delete(ctx context.Context, locator string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fs.Remove(fsPath(locator)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("delete %s: %w", locator, utils.ErrNotFound)
		}
		return utils.Storage("delete "+locator, err)
	}
	return nil
}

func (s *FSStore) Get(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := afero.ReadFile(s.fs, fsPath(p))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("get %s: %w", p, utils.ErrNotFound)
		}
		return nil, utils.Storage("get "+p, err)
	}
	return b, nil
}
