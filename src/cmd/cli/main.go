package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"select-explain-llm/src/config"
	"select-explain-llm/src/llm"
)

const (
	maxFileSizeMB = 10
	maxFileSize   = maxFileSizeMB * 1024 * 1024
)

type cliOptions struct {
	filePath    string
	jsonOutput  bool
	verbose     bool
	apiKeyPath  string
	noFollowUps bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return runWithArgs(normalizeLegacyArgs(os.Args))
}

func runWithArgs(args []string) error {
	if len(args) == 0 {
		args = []string{"explain-tool"}
	}

	opts := &cliOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "explain-tool",
		Short:         "Explain text from a file or stdin",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithOptions(*opts)
		},
	}

	cmd.Flags().StringVar(&opts.filePath, "file", "", "Path to text file (use '-' for stdin)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output to stderr")
	cmd.Flags().StringVar(&opts.apiKeyPath, "api-key-path", "", "Path to API key file (highest precedence)")
	cmd.Flags().BoolVar(&opts.noFollowUps, "no-follow-ups", false, "Skip follow-up question generation")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runWithOptions(opts cliOptions) error {
	// Configure logging BEFORE any other operations.
	if !opts.verbose {
		log.SetOutput(io.Discard)
	} else {
		log.SetOutput(os.Stderr)
		fmt.Fprintf(os.Stderr, "[verbose] Starting explain tool\n")
	}

	loadOptions := config.LoadOptions{APIKeyPathOverride: opts.apiKeyPath}
	cfg, err := config.LoadWithOptions(loadOptions)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if opts.verbose {
		fmt.Fprintf(os.Stderr, "[verbose] Config loaded: Model=%s\n", cfg.Model)
		fmt.Fprintf(os.Stderr, "[verbose] Effective API key path: %s\n", cfg.APIKeyPath)
	}

	if cfg.APIKey == "" {
		return fmt.Errorf("API key not found. Checked key file %s and OPENAI_API_KEY env var", cfg.APIKeyPath)
	}

	client := llm.New(llm.Config{
		APIKey:              cfg.APIKey,
		BaseURL:             cfg.BaseURL,
		Model:               cfg.Model,
		Timeout:             time.Duration(cfg.TimeoutSec) * time.Second,
		MaxTokens:           cfg.MaxTokens,
		Temperature:         float32(cfg.Temperature),
		EnableCache:         cfg.EnableCache,
		CacheMaxSize:        cfg.CacheMaxSize,
		EnablePrivacyFilter: cfg.EnablePrivacyFilter,
	})

	if opts.verbose {
		fmt.Fprintf(os.Stderr, "[verbose] LLM client initialized\n")
	}

	text, err := readInput(opts.filePath, opts.verbose)
	if err != nil {
		return err
	}

	return explain(client, text, opts)
}

func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}

	normalized := make([]string, len(args))
	copy(normalized, args)

	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		switch {
		case arg == "-file":
			normalized[i] = "--file"
		case strings.HasPrefix(arg, "-file="):
			normalized[i] = "--file=" + arg[len("-file="):]
		case arg == "-json":
			normalized[i] = "--json"
		case strings.HasPrefix(arg, "-json="):
			normalized[i] = "--json=" + arg[len("-json="):]
		case arg == "-verbose":
			normalized[i] = "--verbose"
		case strings.HasPrefix(arg, "-verbose="):
			normalized[i] = "--verbose=" + arg[len("-verbose="):]
		case arg == "-api-key-path":
			normalized[i] = "--api-key-path"
		case strings.HasPrefix(arg, "-api-key-path="):
			normalized[i] = "--api-key-path=" + arg[len("-api-key-path="):]
		case arg == "-no-follow-ups":
			normalized[i] = "--no-follow-ups"
		case strings.HasPrefix(arg, "-no-follow-ups="):
			normalized[i] = "--no-follow-ups=" + arg[len("-no-follow-ups="):]
		}
	}

	return normalized
}

func readInput(filePath string, verbose bool) (string, error) {
	var data []byte
	var err error

	if filePath == "-" {
		if verbose {
			fmt.Fprintf(os.Stderr, "[verbose] Reading text from stdin\n")
		}
		data, err = io.ReadAll(io.LimitReader(os.Stdin, maxFileSize+1))
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		if verbose {
			fmt.Fprintf(os.Stderr, "[verbose] Reading text from file: %s\n", filePath)
		}
		data, err = os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("failed to read file %s: %w", filePath, err)
		}
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return "", fmt.Errorf("input is empty")
	}
	if len(data) > maxFileSize {
		return "", fmt.Errorf("input exceeds maximum size of %d MB", maxFileSizeMB)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "[verbose] Read %d bytes\n", len(data))
	}

	return string(data), nil
}

func explain(client llm.Client, text string, opts cliOptions) error {
	ctx := context.Background()
	startTime := time.Now()

	var sb strings.Builder
	emit := func(chunk string) {
		sb.WriteString(chunk)
		if !opts.jsonOutput {
			// Stream as it arrives.
			fmt.Print(chunk)
		}
	}

	err := client.StreamExplanation(ctx, text, emit)
	elapsed := time.Since(startTime)
	if err != nil {
		if opts.verbose {
			fmt.Fprintf(os.Stderr, "[verbose] Explanation failed after %v: %v\n", elapsed, err)
		}
		if !opts.jsonOutput {
			fmt.Println()
		}
		return fmt.Errorf("explanation failed: %w", err)
	}

	if opts.verbose {
		fmt.Fprintf(os.Stderr, "[verbose] Explanation completed in %v, %d characters\n", elapsed, sb.Len())
	}

	var questions []string
	if !opts.noFollowUps {
		questions = client.GenerateFollowUpQuestions(ctx, text, sb.String())
		if opts.verbose {
			fmt.Fprintf(os.Stderr, "[verbose] Generated %d follow-up questions\n", len(questions))
		}
	}

	return outputResult(os.Stdout, sb.String(), questions, opts.filePath, elapsed, opts.jsonOutput)
}

type ExplainResult struct {
	Text      string   `json:"text"`
	Questions []string `json:"questions,omitempty"`
	Source    string   `json:"source"`
	Timestamp string   `json:"timestamp"`
	Duration  float64  `json:"duration_seconds"`
	CharCount int      `json:"character_count"`
}

func outputResult(w io.Writer, text string, questions []string, sourcePath string, elapsed time.Duration, jsonOutput bool) error {
	if jsonOutput {
		result := ExplainResult{
			Text:      text,
			Questions: questions,
			Source:    sourcePath,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Duration:  elapsed.Seconds(),
			CharCount: len(text),
		}

		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(result); err != nil {
			return fmt.Errorf("failed to encode JSON output: %w", err)
		}
		return nil
	}

	// Plain mode already streamed the text; append the questions.
	fmt.Fprintln(w)
	for i, q := range questions {
		fmt.Fprintf(w, "%d. %s\n", i+1, q)
	}
	return nil
}
