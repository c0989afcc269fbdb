package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNormalizeLegacyArgs(t *testing.T) {
	in := []string{"explain-tool", "-file", "notes.txt", "-json", "-no-follow-ups", "-verbose=true"}
	want := []string{"explain-tool", "--file", "notes.txt", "--json", "--no-follow-ups", "--verbose=true"}
	got := normalizeLegacyArgs(in)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("arg[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNewRootCmdParsesFlags(t *testing.T) {
	opts := &cliOptions{}
	cmd := newRootCmd(opts)
	if err := cmd.ParseFlags([]string{"--file", "-", "--json", "--no-follow-ups", "--api-key-path", "/tmp/key"}); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	if opts.filePath != "-" || !opts.jsonOutput || !opts.noFollowUps || opts.apiKeyPath != "/tmp/key" {
		t.Fatalf("parsed options = %+v", opts)
	}
}

func TestReadInputFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.txt")
	if err := os.WriteFile(path, []byte("要解释的文本"), 0o600); err != nil {
		t.Fatal(err)
	}

	text, err := readInput(path, false)
	if err != nil {
		t.Fatalf("readInput: %v", err)
	}
	if text != "要解释的文本" {
		t.Errorf("text = %q", text)
	}
}

func TestReadInputRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(path, []byte("  \n\t"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := readInput(path, false); err == nil {
		t.Fatalf("expected error for blank input")
	}
}

func TestReadInputRejectsOversized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.txt")
	if err := os.WriteFile(path, make([]byte, maxFileSize+1), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := readInput(path, false)
	if err == nil || !strings.Contains(err.Error(), "maximum size") {
		t.Fatalf("err = %v", err)
	}
}

func TestOutputResultJSON(t *testing.T) {
	var sb strings.Builder
	err := outputResult(&sb, "解释文本", []string{"问题A"}, "notes.txt", 1500*time.Millisecond, true)
	if err != nil {
		t.Fatalf("outputResult: %v", err)
	}

	var result ExplainResult
	if err := json.Unmarshal([]byte(sb.String()), &result); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if result.Text != "解释文本" || result.Source != "notes.txt" {
		t.Errorf("result = %+v", result)
	}
	if len(result.Questions) != 1 || result.Questions[0] != "问题A" {
		t.Errorf("questions = %v", result.Questions)
	}
	if result.CharCount != len("解释文本") {
		t.Errorf("char count = %d", result.CharCount)
	}
	if result.Duration != 1.5 {
		t.Errorf("duration = %v", result.Duration)
	}
}

func TestOutputResultPlainListsQuestions(t *testing.T) {
	var sb strings.Builder
	err := outputResult(&sb, "ignored in plain mode", []string{"问题A", "问题B"}, "-", time.Second, false)
	if err != nil {
		t.Fatalf("outputResult: %v", err)
	}
	out := sb.String()
	if !strings.Contains(out, "1. 问题A") || !strings.Contains(out, "2. 问题B") {
		t.Errorf("output = %q", out)
	}
}
