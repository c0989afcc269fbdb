// Package monitor turns raw mouse events into selection events: a
// drag-release of at least the configured distance, debounced, and
// suppressed inside excluded applications. The decision logic is pure so it
// can be tested without an OS hook; the production event source lives in
// hook.go.
package monitor

import (
	"log"
	"math"
	"strings"
	"time"
)

// maxDragDistancePx filters very long drags, which are usually file drags
// or window moves, not text selections.
const maxDragDistancePx = 1000

// ActiveWindowFunc reports the title of the foreground window. Looking it
// up is OS-specific and injected; a nil func disables exclusion checks.
type ActiveWindowFunc func() string

type Config struct {
	DragThresholdPx  int
	DebounceInterval time.Duration
	ExcludedWindows  []string
	ActiveWindow     ActiveWindowFunc
}

type Callbacks struct {
	// OnSelection fires on a qualifying drag-release, with the release
	// position in screen coordinates.
	OnSelection func(x, y int)
	// OnClick fires on every button press; the UI closes the overlay when
	// a click lands outside it.
	OnClick func(x, y int)
}

type Monitor struct {
	cfg Config
	cb  Callbacks

	pressX, pressY int
	pressed        bool
	lastTrigger    time.Time

	now func() time.Time
}

func New(cfg Config, cb Callbacks) *Monitor {
	log.Printf("Selection monitor configured: threshold=%dpx, debounce=%s, excluded_windows=%d",
		cfg.DragThresholdPx, cfg.DebounceInterval, len(cfg.ExcludedWindows))
	return &Monitor{cfg: cfg, cb: cb, now: time.Now}
}

// HandleMouseDown records the press position and reports the click.
func (m *Monitor) HandleMouseDown(x, y int) {
	m.pressX, m.pressY = x, y
	m.pressed = true
	if m.cb.OnClick != nil {
		m.cb.OnClick(x, y)
	}
}

// HandleMouseUp decides whether the press-release pair was a selection.
func (m *Monitor) HandleMouseUp(x, y int) {
	if !m.pressed {
		return
	}
	m.pressed = false

	dx := float64(x - m.pressX)
	dy := float64(y - m.pressY)
	distance := math.Sqrt(dx*dx + dy*dy)

	if !m.shouldTrigger(distance) {
		return
	}

	m.lastTrigger = m.now()
	log.Printf("Selection detected at (%d,%d), drag distance %.1fpx", x, y, distance)
	if m.cb.OnSelection != nil {
		m.cb.OnSelection(x, y)
	}
}

func (m *Monitor) shouldTrigger(distance float64) bool {
	if since := m.now().Sub(m.lastTrigger); since < m.cfg.DebounceInterval {
		log.Printf("Debounced: last trigger was %s ago", since)
		return false
	}
	if distance < float64(m.cfg.DragThresholdPx) {
		return false
	}
	if distance > maxDragDistancePx {
		log.Printf("Drag of %.0fpx exceeds %dpx, ignoring (likely a file drag)", distance, maxDragDistancePx)
		return false
	}
	if m.isExcludedWindow() {
		return false
	}
	return true
}

func (m *Monitor) isExcludedWindow() bool {
	if m.cfg.ActiveWindow == nil {
		return false
	}
	title := m.cfg.ActiveWindow()
	if title == "" {
		return false
	}
	for _, excluded := range m.cfg.ExcludedWindows {
		if strings.Contains(strings.ToLower(title), strings.ToLower(excluded)) {
			log.Printf("Excluded window active: %s", title)
			return true
		}
	}
	return false
}
