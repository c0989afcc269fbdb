// Package extractor pulls the current selection out of the foreground
// application with a clipboard round-trip: back up the clipboard, trigger a
// copy, read the result, and always restore the backup.
package extractor

import (
	"log"
	"time"

	"select-explain-llm/src/clipboard"
	"select-explain-llm/src/logutil"
)

// maxSelectionChars guards against a selection that covers a whole document.
const maxSelectionChars = 10000

// Clipboard is the clipboard surface the extractor needs. The production
// implementation wraps the system clipboard; tests inject a fake.
type Clipboard interface {
	Read() string
	Write(text string) error
}

// CopyTrigger synthesizes the platform copy gesture (Ctrl+C / Cmd+C) in the
// foreground application. Keystroke synthesis is OS territory, so it is
// injected rather than implemented here.
type CopyTrigger func() error

type Extractor struct {
	Clipboard Clipboard
	Copy      CopyTrigger
	// Delay is how long the OS gets to service the copy before we read.
	// Slow hosts (VMs, remote desktop) need more.
	Delay time.Duration
}

// systemClipboard adapts the clipboard package to the Clipboard interface.
type systemClipboard struct{}

func (systemClipboard) Read() string            { return clipboard.Read() }
func (systemClipboard) Write(text string) error { return clipboard.Write(text) }

// New builds an extractor over the system clipboard.
func New(copy CopyTrigger, delay time.Duration) *Extractor {
	return &Extractor{Clipboard: systemClipboard{}, Copy: copy, Delay: delay}
}

// Extract attempts to copy and retrieve the currently selected text.
// It returns ("", nil) when nothing new was selected — an unchanged or blank
// clipboard is not an error. The original clipboard content is restored on
// every path; a failed restore is logged as critical but never aborts the
// flow.
func (e *Extractor) Extract() (text string, err error) {
	backup := e.Clipboard.Read()
	log.Printf("Clipboard backed up: %d chars", len(backup))

	defer func() {
		if restoreErr := e.Clipboard.Write(backup); restoreErr != nil {
			log.Printf("CRITICAL: failed to restore clipboard: %v", restoreErr)
		}
	}()

	if copyErr := e.Copy(); copyErr != nil {
		log.Printf("Failed to trigger copy: %v", copyErr)
		return "", copyErr
	}

	// Give the OS time to process the copy.
	time.Sleep(e.Delay)

	current := e.Clipboard.Read()
	if current == backup {
		log.Printf("Clipboard unchanged, no new selection detected")
		return "", nil
	}
	if isBlank(current) {
		log.Printf("New clipboard content is empty or whitespace only")
		return "", nil
	}

	if runes := []rune(current); len(runes) > maxSelectionChars {
		log.Printf("Selected text is very large (%d chars), truncating to %d", len(runes), maxSelectionChars)
		current = string(runes[:maxSelectionChars]) + "\n...(truncated)"
	}

	log.Printf("Text extracted: %d chars: %q", len(current), logutil.TruncateForLog(current, 50))
	return current, nil
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
