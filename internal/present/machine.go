// Package present drives a presentation session: the PIN gate, the tab bar,
// and the viewer that walks a week's media from collage through countdown,
// single view and slideshow to the finale.
package present

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/tinytalk/internal/media"
	service "github.com/fathima-sithara/tinytalk/internal/services"
	"github.com/fathima-sithara/tinytalk/internal/themes"
	utils "github.com/fathima-sithara/tinytalk/internal/utils"
	"github.com/fathima-sithara/tinytalk/internal/week"
)

type Phase string

const (
	PhaseLocked    Phase = "locked"
	PhaseTabs      Phase = "tabs"
	PhaseCollage   Phase = "collage"
	PhaseCountdown Phase = "countdown"
	PhaseSingle    Phase = "single"
	PhaseSlideshow Phase = "slideshow"
	PhaseFinale    Phase = "finale"
	PhaseTV        Phase = "tv"
)

type Tab string

const (
	TabAdd     Tab = "add"
	TabPresent Tab = "present"
	TabHistory Tab = "history"
)

const (
	MsgWrongPIN = "Wrong PIN, try again"
	MsgFailed   = "Something went wrong"
)

var countdownScript = []string{"3", "2", "1", "Showtime!"}

// Library is the media backend a session reads and mutates.
type Library interface {
	CurrentWeek() string
	ListWeek(ctx context.Context, weekKey string) []media.Item
	ListWeeks(ctx context.Context) []media.Week
	GetTheme(ctx context.Context, weekKey string) string
	SetTheme(ctx context.Context, weekKey, theme string) error
	Delete(ctx context.Context, pathname string) error
	UploadBatch(ctx context.Context, reqs []service.UploadRequest, progress func(done, total int)) service.BatchResult
}

// Gate checks the household PIN.
type Gate interface {
	Login(pin string) (string, error)
}

type Options struct {
	Calendar          week.Calendar
	Catalog           *themes.Catalog
	CountdownStep     time.Duration
	SlideshowInterval time.Duration
	Scheduler         Scheduler
	Logger            *zap.SugaredLogger
	// OnChange receives a snapshot after every state change. It is called
	// without the machine lock held.
	OnChange func(Snapshot)
}

type Progress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// Snapshot is the renderable state of a session.
type Snapshot struct {
	Phase       Phase        `json:"phase"`
	Tab         Tab          `json:"tab,omitempty"`
	PIN         string       `json:"pin"`
	PINError    string       `json:"pinError,omitempty"`
	WeekKey     string       `json:"weekKey,omitempty"`
	WeekLabel   string       `json:"weekLabel,omitempty"`
	ViewingPast bool         `json:"viewingPast"`
	Theme       string       `json:"theme"`
	ThemeStyle  themes.Theme `json:"themeStyle"`
	Items       []media.Item `json:"items"`
	Columns     int          `json:"columns"`
	Index       int          `json:"index"`
	Current     *media.Item  `json:"current,omitempty"`
	DayName     string       `json:"dayName,omitempty"`
	Countdown   string       `json:"countdown,omitempty"`
	Weeks       []media.Week `json:"weeks,omitempty"`
	Upload      *Progress    `json:"upload,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// Machine is one presentation session. All methods are safe for concurrent
// use; transitions are serialized.
type Machine struct {
	mu    sync.Mutex
	lib   Library
	gate  Gate
	opts  Options
	sched Scheduler
	log   *zap.SugaredLogger

	phase       Phase
	tab         Tab
	pin         string
	pinError    string
	weekKey     string
	viewingPast bool
	theme       string
	items       []media.Item
	weeks       []media.Week
	index       int
	step        int
	upload      *Progress
	errMsg      string

	timer Timer
	gen   uint64 // bumped whenever the pending timer is invalidated
}

func NewMachine(lib Library, gate Gate, opts Options) *Machine {
	if opts.CountdownStep <= 0 {
		opts.CountdownStep = 800 * time.Millisecond
	}
	if opts.SlideshowInterval <= 0 {
		opts.SlideshowInterval = 4 * time.Second
	}
	if opts.Scheduler == nil {
		opts.Scheduler = WallClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Catalog == nil {
		opts.Catalog = themes.Default()
	}
	return &Machine{
		lib:   lib,
		gate:  gate,
		opts:  opts,
		sched: opts.Scheduler,
		log:   opts.Logger,
		phase: PhaseLocked,
		theme: themes.None,
	}
}

// apply runs fn under the lock and publishes the resulting snapshot when fn
// reports a change.
func (m *Machine) apply(fn func() bool) {
	m.mu.Lock()
	changed := fn()
	var snap Snapshot
	if changed {
		snap = m.snapshotLocked()
	}
	m.mu.Unlock()
	if changed && m.opts.OnChange != nil {
		m.opts.OnChange(snap)
	}
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	s := Snapshot{
		Phase:       m.phase,
		PIN:         m.pin,
		PINError:    m.pinError,
		Theme:       m.theme,
		ThemeStyle:  m.opts.Catalog.Lookup(m.theme),
		Items:       append([]media.Item(nil), m.items...),
		Columns:     gridColumns(len(m.items)),
		Index:       m.index,
		ViewingPast: m.viewingPast,
		Error:       m.errMsg,
	}
	if s.Items == nil {
		s.Items = []media.Item{}
	}
	if m.phase == PhaseLocked {
		return s
	}
	s.Tab = m.tab
	s.WeekKey = m.weekKey
	s.WeekLabel = m.opts.Calendar.Label(m.weekKey)
	if m.tab == TabHistory {
		s.Weeks = append([]media.Week(nil), m.weeks...)
	}
	if m.upload != nil {
		p := *m.upload
		s.Upload = &p
	}
	switch m.phase {
	case PhaseCountdown:
		s.Countdown = countdownScript[m.step]
	case PhaseSingle, PhaseSlideshow:
		if m.index < len(m.items) {
			cur := m.items[m.index]
			s.Current = &cur
			s.DayName = cur.DisplayTime().In(m.opts.Calendar.Location()).Weekday().String()
		}
	}
	return s
}

// gridColumns is the collage column count for n items.
func gridColumns(n int) int {
	if n <= 0 {
		return 0
	}
	return int(math.Ceil(math.Sqrt(float64(n))))
}

func (m *Machine) cancelTimerLocked() {
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Machine) scheduleLocked(d time.Duration, fire func()) {
	m.cancelTimerLocked()
	gen := m.gen
	m.timer = m.sched.AfterFunc(d, func() {
		m.apply(func() bool {
			if gen != m.gen {
				return false
			}
			m.timer = nil
			fire()
			return true
		})
	})
}

// Close stops any pending timer.
func (m *Machine) Close() {
	m.mu.Lock()
	m.cancelTimerLocked()
	m.mu.Unlock()
}

// EnterPIN unlocks the session on a matching PIN. A wrong PIN keeps the
// session locked, shows the retry message and clears the input.
func (m *Machine) EnterPIN(ctx context.Context, pin string) {
	m.mu.Lock()
	if m.phase != PhaseLocked {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	_, err := m.gate.Login(pin)
	if err != nil {
		msg := MsgFailed
		if errors.Is(err, utils.ErrUnauthorized) {
			msg = MsgWrongPIN
		} else {
			m.log.Warnw("pin check failed", "error", err)
		}
		m.apply(func() bool {
			m.pin = ""
			m.pinError = msg
			return true
		})
		return
	}

	weekKey := m.lib.CurrentWeek()
	items, theme := m.fetchWeek(ctx, weekKey)
	m.apply(func() bool {
		if m.phase != PhaseLocked {
			return false
		}
		m.phase = PhaseTabs
		m.tab = TabAdd
		m.pin = ""
		m.pinError = ""
		m.weekKey = weekKey
		m.viewingPast = false
		m.setItemsLocked(items)
		m.theme = theme
		return true
	})
}

// TypePIN mirrors the PIN input field.
func (m *Machine) TypePIN(pin string) {
	m.apply(func() bool {
		if m.phase != PhaseLocked {
			return false
		}
		m.pin = pin
		return true
	})
}

func (m *Machine) fetchWeek(ctx context.Context, weekKey string) ([]media.Item, string) {
	return m.lib.ListWeek(ctx, weekKey), m.lib.GetTheme(ctx, weekKey)
}

func (m *Machine) setItemsLocked(items []media.Item) {
	m.items = items
	if m.index >= len(m.items) {
		m.index = len(m.items) - 1
	}
	if m.index < 0 {
		m.index = 0
	}
	if len(m.items) == 0 {
		switch m.phase {
		case PhaseSingle, PhaseSlideshow, PhaseFinale, PhaseTV:
			m.cancelTimerLocked()
			m.phase = PhaseCollage
		}
	}
}

// SelectTab switches tabs. The Present tab opens the collage; the History
// tab refetches the week index.
func (m *Machine) SelectTab(ctx context.Context, tab Tab) {
	switch tab {
	case TabAdd, TabPresent, TabHistory:
	default:
		return
	}
	var weeks []media.Week
	if tab == TabHistory {
		weeks = m.lib.ListWeeks(ctx)
	}
	m.apply(func() bool {
		if m.phase != PhaseTabs && m.phase != PhaseCollage {
			return false
		}
		m.tab = tab
		m.errMsg = ""
		if tab == TabPresent {
			m.phase = PhaseCollage
		} else {
			m.phase = PhaseTabs
		}
		if tab == TabHistory {
			m.weeks = weeks
		}
		return true
	})
}

// Open starts the countdown in front of item i.
func (m *Machine) Open(i int) {
	m.apply(func() bool {
		if m.phase != PhaseCollage || i < 0 || i >= len(m.items) {
			return false
		}
		m.phase = PhaseCountdown
		m.index = i
		m.step = 0
		m.scheduleLocked(m.opts.CountdownStep, m.countdownTickLocked)
		return true
	})
}

func (m *Machine) countdownTickLocked() {
	if m.phase != PhaseCountdown {
		return
	}
	m.step++
	if m.step < len(countdownScript) {
		m.scheduleLocked(m.opts.CountdownStep, m.countdownTickLocked)
		return
	}
	m.step = 0
	m.phase = PhaseSingle
}

// Next moves forward one item. Past the last item the finale shows. Manual
// navigation stops a running slideshow.
func (m *Machine) Next() {
	m.apply(func() bool {
		if m.phase != PhaseSingle && m.phase != PhaseSlideshow {
			return false
		}
		m.cancelTimerLocked()
		if m.index >= len(m.items)-1 {
			m.phase = PhaseFinale
			return true
		}
		m.phase = PhaseSingle
		m.index++
		return true
	})
}

// Prev moves back one item, stopping at the first.
func (m *Machine) Prev() {
	m.apply(func() bool {
		if m.phase != PhaseSingle && m.phase != PhaseSlideshow {
			return false
		}
		m.cancelTimerLocked()
		m.phase = PhaseSingle
		if m.index > 0 {
			m.index--
		}
		return true
	})
}

// StartSlideshow auto-advances from the current item, or from the first
// item when started from the collage.
func (m *Machine) StartSlideshow() {
	m.apply(func() bool {
		switch m.phase {
		case PhaseCollage:
			if len(m.items) == 0 {
				return false
			}
			m.index = 0
		case PhaseSingle:
		default:
			return false
		}
		m.phase = PhaseSlideshow
		m.scheduleLocked(m.opts.SlideshowInterval, m.advanceLocked)
		return true
	})
}

// advanceLocked wraps around and reschedules itself while the slideshow runs.
func (m *Machine) advanceLocked() {
	if m.phase != PhaseSlideshow || len(m.items) == 0 {
		return
	}
	m.index = (m.index + 1) % len(m.items)
	m.scheduleLocked(m.opts.SlideshowInterval, m.advanceLocked)
}

// TV shows the full-viewport grid.
func (m *Machine) TV() {
	m.apply(func() bool {
		if m.phase != PhaseCollage || len(m.items) == 0 {
			return false
		}
		m.phase = PhaseTV
		return true
	})
}

// Escape collapses any viewer state back to the collage. It is ignored
// while the countdown runs.
func (m *Machine) Escape() {
	m.apply(func() bool {
		switch m.phase {
		case PhaseSingle, PhaseSlideshow, PhaseFinale, PhaseTV:
			m.cancelTimerLocked()
			m.phase = PhaseCollage
			return true
		}
		return false
	})
}

// Back is the explicit exit button; it behaves like Escape.
func (m *Machine) Back() { m.Escape() }

// ViewWeek opens a past week in the Present tab.
func (m *Machine) ViewWeek(ctx context.Context, weekKey string) {
	if !m.opts.Calendar.Valid(weekKey) {
		return
	}
	items, theme := m.fetchWeek(ctx, weekKey)
	m.apply(func() bool {
		if m.phase != PhaseTabs && m.phase != PhaseCollage {
			return false
		}
		m.cancelTimerLocked()
		m.weekKey = weekKey
		m.viewingPast = weekKey != m.lib.CurrentWeek()
		m.index = 0
		m.setItemsLocked(items)
		m.theme = theme
		m.tab = TabPresent
		m.phase = PhaseCollage
		return true
	})
}

// BackToCurrentWeek returns to this week's Add tab.
func (m *Machine) BackToCurrentWeek(ctx context.Context) {
	weekKey := m.lib.CurrentWeek()
	items, theme := m.fetchWeek(ctx, weekKey)
	m.apply(func() bool {
		if m.phase != PhaseTabs && m.phase != PhaseCollage {
			return false
		}
		m.weekKey = weekKey
		m.viewingPast = false
		m.index = 0
		m.setItemsLocked(items)
		m.theme = theme
		m.tab = TabAdd
		m.phase = PhaseTabs
		return true
	})
}

// Reload refetches the week on display, and the week index when the
// History tab is open.
func (m *Machine) Reload(ctx context.Context) {
	m.mu.Lock()
	if m.phase == PhaseLocked {
		m.mu.Unlock()
		return
	}
	weekKey, tab := m.weekKey, m.tab
	m.mu.Unlock()

	items, theme := m.fetchWeek(ctx, weekKey)
	var weeks []media.Week
	if tab == TabHistory {
		weeks = m.lib.ListWeeks(ctx)
	}
	m.apply(func() bool {
		if m.weekKey != weekKey {
			return false
		}
		m.setItemsLocked(items)
		m.theme = theme
		if weeks != nil {
			m.weeks = weeks
		}
		return true
	})
}

// SetTheme saves the theme for the week on display.
func (m *Machine) SetTheme(ctx context.Context, theme string) {
	m.mu.Lock()
	if m.phase == PhaseLocked {
		m.mu.Unlock()
		return
	}
	weekKey := m.weekKey
	m.mu.Unlock()

	err := m.lib.SetTheme(ctx, weekKey, theme)
	m.apply(func() bool {
		if err != nil {
			m.log.Warnw("theme save failed", "week", weekKey, "theme", theme, "error", err)
			m.errMsg = MsgFailed
			return true
		}
		if m.weekKey == weekKey {
			m.theme = theme
		}
		m.errMsg = ""
		return true
	})
}

// Delete drops the item from the session at once, then deletes it from
// storage and reloads so a failed delete reappears.
func (m *Machine) Delete(ctx context.Context, pathname string) {
	removed := false
	m.apply(func() bool {
		if m.phase == PhaseLocked {
			return false
		}
		kept := m.items[:0:0]
		for _, it := range m.items {
			if it.Pathname == pathname {
				removed = true
				continue
			}
			kept = append(kept, it)
		}
		if !removed {
			return false
		}
		m.setItemsLocked(kept)
		return true
	})
	if !removed {
		return
	}
	if err := m.lib.Delete(ctx, pathname); err != nil {
		m.log.Warnw("delete failed", "pathname", pathname, "error", err)
		m.apply(func() bool {
			m.errMsg = MsgFailed
			return true
		})
	}
	m.Reload(ctx)
}

// Upload sends files one at a time into the week on display, publishing
// completed/total progress after each.
func (m *Machine) Upload(ctx context.Context, reqs []service.UploadRequest) service.BatchResult {
	m.mu.Lock()
	if m.phase == PhaseLocked || len(reqs) == 0 {
		m.mu.Unlock()
		return service.BatchResult{}
	}
	weekKey := m.weekKey
	m.mu.Unlock()

	batch := make([]service.UploadRequest, len(reqs))
	copy(batch, reqs)
	for i := range batch {
		batch[i].WeekKey = weekKey
	}
	m.apply(func() bool {
		m.upload = &Progress{Total: len(batch)}
		return true
	})
	res := m.lib.UploadBatch(ctx, batch, func(done, total int) {
		m.apply(func() bool {
			m.upload = &Progress{Done: done, Total: total}
			return true
		})
	})
	m.apply(func() bool {
		m.upload = nil
		if len(res.Failed) > 0 {
			m.errMsg = MsgFailed
		}
		return true
	})
	m.Reload(ctx)
	return res
}

// Lock returns the session to the PIN gate.
func (m *Machine) Lock() {
	m.apply(func() bool {
		m.cancelTimerLocked()
		m.phase = PhaseLocked
		m.tab = ""
		m.pin = ""
		m.pinError = ""
		m.items = nil
		m.weeks = nil
		m.index = 0
		m.errMsg = ""
		m.theme = themes.None
		return true
	})
}
