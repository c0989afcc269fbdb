package clipboard

import (
	"sync"

	"golang.design/x/clipboard"
)

var mu sync.Mutex

func Init() error {
	return clipboard.Init()
}

// Read returns the current text clipboard content.
func Read() string {
	mu.Lock()
	defer mu.Unlock()
	return string(clipboard.Read(clipboard.FmtText))
}

// Write performs a mutex-guarded clipboard write to prevent corruption under
// parallel writes.
func Write(text string) error {
	mu.Lock()
	defer mu.Unlock()
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}
