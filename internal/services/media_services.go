package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/tinytalk/internal/storage"
	"github.com/fathima-sithara/tinytalk/internal/themes"
	"github.com/fathima-sithara/tinytalk/internal/week"
)

// Cache fronts the listing reads. Implementations return an error on a miss.
type Cache interface {
	Set(ctx context.Context, key string, val string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, keys ...string) error
}

type Options struct {
	Calendar       week.Calendar
	Catalog        *themes.Catalog
	Cache          Cache // optional
	CacheTTL       time.Duration
	MaxUploadBytes int64 // 0 disables the limit
	Logger         *zap.SugaredLogger
	Now            func() time.Time
}

// MediaService implements uploads, listings, themes and deletes over a
// single blob store.
type MediaService struct {
	store    storage.Store
	cal      week.Calendar
	catalog  *themes.Catalog
	cache    Cache
	cacheTTL time.Duration
	maxBytes int64
	log      *zap.SugaredLogger
	now      func() time.Time

	// fillMu orders listing fills against invalidations; gen counts the
	// invalidations seen so far.
	fillMu sync.Mutex
	gen    uint64
}

func NewMediaService(store storage.Store, opts Options) *MediaService {
	if opts.Catalog == nil {
		opts.Catalog = themes.Default()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Minute
	}
	return &MediaService{
		store:    store,
		cal:      opts.Calendar,
		catalog:  opts.Catalog,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		maxBytes: opts.MaxUploadBytes,
		log:      opts.Logger,
		now:      opts.Now,
	}
}

// CurrentWeek is the key of the week containing now.
func (s *MediaService) CurrentWeek() string {
	return s.cal.Key(s.now())
}

func (s *MediaService) Calendar() week.Calendar { return s.cal }

func (s *MediaService) Catalog() *themes.Catalog { return s.catalog }

const weeksCacheKey = "weeks"

func weekCacheKey(weekKey string) string { return "week:" + weekKey }

func (s *MediaService) cached(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		s.log.Warnw("drop undecodable cache entry", "key", key, "error", err)
		return false
	}
	return true
}

// generation is read before a listing is built and handed back to remember.
func (s *MediaService) generation() uint64 {
	s.fillMu.Lock()
	defer s.fillMu.Unlock()
	return s.gen
}

// remember caches val unless a mutation invalidated the listings after gen
// was read, in which case val may predate that write and is dropped.
func (s *MediaService) remember(ctx context.Context, key string, val any, gen uint64) {
	if s.cache == nil {
		return
	}
	b, err := json.Marshal(val)
	if err != nil {
		return
	}
	s.fillMu.Lock()
	defer s.fillMu.Unlock()
	if s.gen != gen {
		s.log.Debugw("skip stale listing fill", "key", key)
		return
	}
	if err := s.cache.Set(ctx, key, string(b), s.cacheTTL); err != nil {
		s.log.Warnw("cache write failed", "key", key, "error", err)
	}
}

// invalidate drops the listings a mutation of weekKey can change.
func (s *MediaService) invalidate(ctx context.Context, weekKey string) {
	if s.cache == nil {
		return
	}
	s.fillMu.Lock()
	defer s.fillMu.Unlock()
	s.gen++
	if err := s.cache.Delete(ctx, weekCacheKey(weekKey), weeksCacheKey); err != nil {
		s.log.Warnw("cache invalidation failed", "week", weekKey, "error", err)
	}
}
