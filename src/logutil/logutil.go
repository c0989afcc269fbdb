package logutil

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
)

const logFileName = "select_explain.log"

// Options controls file logging. Zero values fall back to the historical
// 10 MB / 5 archive policy.
type Options struct {
	Enable      bool
	Dir         string
	MaxSizeMB   int
	BackupCount int
}

// Setup enables file logging with basic size-based rotation.
// When disabled, logs are discarded (keeps stdout clean).
// Every line is passed through sanitize before reaching disk so secrets that
// slip into log statements never land in the file.
func Setup(opts Options) {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if !opts.Enable {
		log.SetOutput(io.Discard)
		return
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	if opts.BackupCount <= 0 {
		opts.BackupCount = 5
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
		return
	}
	w := &rotatingWriter{
		path:     filepath.Join(opts.Dir, logFileName),
		maxBytes: int64(opts.MaxSizeMB) * 1024 * 1024,
		archives: opts.BackupCount,
	}
	w.rotateIfNeeded()
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		return
	}
	w.f = f
	log.SetOutput(w)
}

type rotatingWriter struct {
	f        *os.File
	path     string
	maxBytes int64
	archives int
}

func (w *rotatingWriter) Write(p []byte) (int, error) {
	p = []byte(Sanitize(string(p)))
	// naive rotation check per write
	if st, err := w.f.Stat(); err == nil && st.Size()+int64(len(p)) > w.maxBytes {
		_ = w.f.Close()
		w.rotateIfNeeded()
		nf, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return 0, err
		}
		w.f = nf
	}
	return w.f.Write(p)
}

func (w *rotatingWriter) rotateIfNeeded() {
	// If base exceeds max size, rotate: .1, .2, ... .N (oldest discarded)
	if st, err := os.Stat(w.path); err == nil && st.Size() > w.maxBytes {
		_ = os.Remove(w.archiveName(w.archives))
		for i := w.archives - 1; i >= 1; i-- {
			_ = os.Rename(w.archiveName(i), w.archiveName(i+1))
		}
		_ = os.Rename(w.path, w.archiveName(1))
	}
}

func (w *rotatingWriter) archiveName(n int) string {
	return fmt.Sprintf("%s.%d", w.path, n)
}

// sanitizeRules redact secrets from log lines. This intentionally duplicates
// part of the privacy package's pattern list: log sanitation must keep
// working even when the selection-side privacy filter is disabled.
var sanitizeRules = []struct {
	re          *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)(api[_-]?key['"]?\s*[:=]\s*['"]?)[^'"\s]+`), "${1}***REDACTED***"},
	{regexp.MustCompile(`(?i)(password['"]?\s*[:=]\s*['"]?)[^'"\s]+`), "${1}***REDACTED***"},
	{regexp.MustCompile(`\bsk-[a-zA-Z0-9]{48}\b`), "sk-***REDACTED***"},
	{regexp.MustCompile(`(?i)(bearer\s+)[a-zA-Z0-9\-_.]{20,}`), "${1}***REDACTED***"},
	{regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`), "****-****-****-****"},
	{regexp.MustCompile(`\b[a-zA-Z0-9._%+-]+@([a-zA-Z0-9.-]+\.[A-Za-z]{2,})\b`), "***@${1}"},
	{regexp.MustCompile(`\b1[3-9]\d{9}\b`), "***-****-****"},
}

// Sanitize redacts API keys, passwords, tokens, card numbers, emails and
// phone numbers from a log message.
func Sanitize(message string) string {
	for _, rule := range sanitizeRules {
		message = rule.re.ReplaceAllString(message, rule.replacement)
	}
	return message
}

// RedactKey masks an API key, leaving first/last 4 chars: xxxx...yyyy
func RedactKey(k string) string {
	if len(k) <= 8 {
		return "********"
	}
	return fmt.Sprintf("%s...%s", k[:4], k[len(k)-4:])
}

// TruncateForLog bounds a value so one noisy string cannot flood the log,
// and strips control characters that would allow log injection.
func TruncateForLog(s string, maxLen int) string {
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r':
			out = append(out, '\\', 'n')
		case r == '\t':
			out = append(out, '\\', 't')
		case r < 32 || r == 127:
			out = append(out, '?')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
