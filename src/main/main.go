package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"select-explain-llm/src/clipboard"
	"select-explain-llm/src/config"
	"select-explain-llm/src/eventloop"
	"select-explain-llm/src/extractor"
	"select-explain-llm/src/llm"
	"select-explain-llm/src/logutil"
	"select-explain-llm/src/messages"
	"select-explain-llm/src/monitor"
	"select-explain-llm/src/overlay"
	"select-explain-llm/src/session"
	"select-explain-llm/src/singleinstance"
)

type mainOptions struct {
	explainOnce    bool
	explainOnceStd bool
	apiKeyPath     string
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
		args = []string{"select-explain"}
	}

	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "select-explain",
		Short:         "Explain selected text with an LLM",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithOptions(*opts)
		},
	}

	cmd.Flags().BoolVar(&opts.explainOnce, "explain-once", false, "Explain the current selection in the resident overlay and exit")
	cmd.Flags().BoolVar(&opts.explainOnceStd, "explain-once-std", false, "Explain the current selection, print to stdout, and exit")
	cmd.Flags().StringVar(&opts.apiKeyPath, "api-key-path", "", "Path to API key file (highest precedence)")

	return cmd
}

// normalizeLegacyArgs maps single-dash long flags to cobra's double-dash form.
func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}

	normalized := make([]string, len(args))
	copy(normalized, args)

	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		switch {
		case arg == "-explain-once":
			normalized[i] = "--explain-once"
		case strings.HasPrefix(arg, "-explain-once="):
			normalized[i] = "--explain-once=" + arg[len("-explain-once="):]
		case arg == "-explain-once-std":
			normalized[i] = "--explain-once-std"
		case strings.HasPrefix(arg, "-explain-once-std="):
			normalized[i] = "--explain-once-std=" + arg[len("-explain-once-std="):]
		case arg == "-api-key-path":
			normalized[i] = "--api-key-path"
		case strings.HasPrefix(arg, "-api-key-path="):
			normalized[i] = "--api-key-path=" + arg[len("-api-key-path="):]
		}
	}

	return normalized
}

func runWithOptions(opts mainOptions) error {
	if opts.explainOnce || opts.explainOnceStd {
		// Load .env early so SELECT_EXPLAIN_PORT_* are applied before the
		// delegation scan.
		_, _ = config.Load()
		stdout := opts.explainOnceStd
		handleRunOnceWithDelegation(opts.apiKeyPath, singleinstance.NewClient(), stdout, func() {
			if err := runExplainOnce(opts.apiKeyPath, stdout); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		})
		return nil
	}

	return runResident(opts)
}

// handleRunOnceWithDelegation prefers a resident instance; fallback runs a
// standalone session when no resident answers or delegation fails.
func handleRunOnceWithDelegation(apiKeyPath string, client singleinstance.Client, outputToStdout bool, fallback func()) {
	delegated, text, err := client.TryRunOnce(context.Background(), outputToStdout)
	if err != nil {
		log.Printf("Delegation error: %v; falling back to standalone", err)
		fallback()
		return
	}
	if delegated {
		log.Printf("Delegated to resident")
		if outputToStdout && text != "" {
			fmt.Print(text)
		}
		return
	}
	log.Printf("No resident detected, running standalone")
	fallback()
}

func runExplainOnce(apiKeyPath string, outputToStdout bool) error {
	cfg, err := config.LoadWithOptions(config.LoadOptions{APIKeyPathOverride: apiKeyPath})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := clipboard.Init(); err != nil {
		return fmt.Errorf("failed to initialize clipboard: %w", err)
	}

	client := newLLMClient(cfg)
	ext := extractor.New(triggerCopy, selectionDelay(cfg))

	opts := session.Options{
		Deadline: time.Duration(cfg.TimeoutSec) * time.Second,
		Extract:  ext.Extract,
		Client:   client,
		Target:   session.StdoutTarget{},
	}
	if !outputToStdout {
		// Standalone has no resident overlay; render on the console instead.
		opts.Sink = overlay.NewConsole()
		opts.Target = nullTarget{}
	}

	_, err = session.Execute(context.Background(), opts)
	return err
}

// nullTarget discards the terminal outcome; the sink already rendered it.
type nullTarget struct{}

func (nullTarget) OnSuccess(text string) error { return nil }
func (nullTarget) OnFailure(err error) error   { return nil }

func runResident(opts mainOptions) error {
	// Load .env early so SELECT_EXPLAIN_PORT_* are available for pre-flight.
	_, _ = config.Load()
	// ---------- SINGLE-INSTANCE NUKE ----------
	startPort, _ := singleinstance.GetPortRangeForDebug()
	addr := fmt.Sprintf("127.0.0.1:%d", startPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Printf("Pre-flight: port %d busy, resident already exists", startPort)
		return fmt.Errorf("one is already running on port %d", startPort)
	}
	// We claimed the port; release it so the event loop can re-bind.
	_ = listener.Close()
	log.Printf("Pre-flight: port %d free, we are the one true resident", startPort)
	// ------------------------------------------

	cfg, err := config.LoadWithOptions(config.LoadOptions{APIKeyPathOverride: opts.apiKeyPath})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logutil.Setup(logutil.Options{
		Enable:      cfg.EnableFileLogging,
		Dir:         cfg.ResolveLogDir(),
		MaxSizeMB:   cfg.LogMaxSizeMB,
		BackupCount: cfg.LogBackupCount,
	})

	if cfg.APIKey == "" {
		return fmt.Errorf("API key not found. Checked key file %s and OPENAI_API_KEY env var", cfg.APIKeyPath)
	}

	client := newLLMClient(cfg)

	// Validate connectivity before installing hooks.
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = client.Ping(pingCtx)
	pingCancel()
	if err != nil {
		return fmt.Errorf("startup check failed: %w\n\nPlease verify your API key and network connectivity", err)
	}
	log.Printf("LLM ping succeeded")

	if err := clipboard.Init(); err != nil {
		return fmt.Errorf("failed to initialize clipboard: %w", err)
	}

	log.Printf("Select Explain Tool initialized")
	log.Printf("Using model: %s", cfg.Model)
	log.Printf("Drag threshold: %dpx, debounce: %.2fs", cfg.DragThresholdPx, cfg.DebounceInterval)

	ext := extractor.New(triggerCopy, selectionDelay(cfg))
	loop := eventloop.New(client, overlay.NewConsole(), ext.Extract,
		time.Duration(cfg.TimeoutSec)*time.Second, true)

	mon := monitor.New(monitor.Config{
		DragThresholdPx:  cfg.DragThresholdPx,
		DebounceInterval: time.Duration(cfg.DebounceInterval * float64(time.Second)),
		ExcludedWindows:  cfg.ExcludedWindows,
		ActiveWindow:     activeWindowTitle,
	}, monitor.Callbacks{
		OnSelection: func(x, y int) { loop.Post(messages.SelectionDetected{X: x, Y: y}) },
		OnClick:     func(x, y int) { loop.Post(messages.ClickDetected{X: x, Y: y}) },
	})
	mon.Listen()
	defer mon.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle SIGINT/SIGTERM
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	if err := loop.Run(ctx); err != nil && err != context.Canceled {
		log.Printf("event loop stopped: %v", err)
		return err
	}
	return nil
}

func newLLMClient(cfg *config.Config) *llm.OpenAIClient {
	return llm.New(llm.Config{
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
}

func selectionDelay(cfg *config.Config) time.Duration {
	return time.Duration(cfg.SelectionDelaySec * float64(time.Second))
}
