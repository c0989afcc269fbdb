package monitor

import (
	"log"

	gohook "github.com/robotn/gohook"
)

const leftButton = 1

// dispatch maps one gohook event onto the monitor. gohook keeps libuiohook's
// event enum: the button press arrives as MouseHold (EVENT_MOUSE_PRESSED)
// and the release as MouseUp (EVENT_MOUSE_RELEASED); MouseDown is
// EVENT_MOUSE_CLICKED, which fires only after a drag-free click and must not
// be treated as the press.
func (m *Monitor) dispatch(ev gohook.Event) {
	if ev.Button != leftButton {
		return
	}
	switch ev.Kind {
	case gohook.MouseHold:
		m.HandleMouseDown(int(ev.X), int(ev.Y))
	case gohook.MouseUp:
		m.HandleMouseUp(int(ev.X), int(ev.Y))
	}
}

// Listen starts the global mouse hook and feeds left-button press/release
// events into the monitor. It returns immediately; the hook runs in its own
// goroutine.
func (m *Monitor) Listen() {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("PANIC in mouse hook goroutine: %v", r)
			}
		}()

		log.Printf("Starting gohook event loop...")
		evChan := gohook.Start()
		if evChan == nil {
			log.Printf("ERROR: gohook.Start() returned nil channel")
			return
		}

		for ev := range evChan {
			m.dispatch(ev)
		}
		log.Printf("Mouse event channel closed")
	}()
}

// Stop tears down the global hook. Safe to call once at shutdown.
func (m *Monitor) Stop() {
	gohook.End()
}
