package main

import (
	"fmt"
	"os/exec"
	"strings"
)

// triggerCopy asks the focused application to copy its selection by sending
// Ctrl+C through xdotool. Keystroke synthesis stays out of process; the
// extractor treats an unchanged clipboard as "no selection" when the tool is
// missing or the keystroke goes nowhere.
func triggerCopy() error {
	if _, err := exec.LookPath("xdotool"); err != nil {
		return fmt.Errorf("xdotool not found: %w", err)
	}
	return exec.Command("xdotool", "key", "--clearmodifiers", "ctrl+c").Run()
}

// activeWindowTitle returns the focused window's title, or "" when it cannot
// be determined. Exclusion checks fail open.
func activeWindowTitle() string {
	out, err := exec.Command("xdotool", "getactivewindow", "getwindowname").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
