package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/ohta-d/barcode-scan-api/internal/decode"
	"github.com/ohta-d/barcode-scan-api/internal/mlscore"
	"github.com/ohta-d/barcode-scan-api/internal/ticket"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("barcode-api")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbPath         = fs.StringLong("db", "barcode-api.db", "Decode store file path")
		variantTags    = fs.StringLong("variants", strings.Join(ticket.DefaultConfig().VariantTags, ","), "Comma-separated preprocessing variants in priority order")
		maxVariants    = fs.IntLong("max-variants", 6, "Maximum preprocessing variants per scan")
		highConfidence = fs.Float64Long("high-confidence", 0.9, "Native confidence that allows early exit when corroborated")
		engineTimeout  = fs.DurationLong("engine-timeout", 2*time.Second, "Timeout per engine invocation")
		itemTimeout    = fs.DurationLong("item-timeout", 10*time.Second, "Timeout per scanned image")
		batchWorkers   = fs.IntLong("batch-concurrency", 4, "Concurrent scans per batch request")
		batchTimeout   = fs.DurationLong("batch-timeout", 30*time.Second, "Total wall-time budget per batch request")
		strict         = fs.BoolLong("strict", "Omit provider info when the checksum does not validate")
		enableML       = fs.BoolLong("enable-ml", "Enable ML re-scoring by default (requests can override)")
		mlBackend      = fs.StringLong("ml-backend", "off", "ML re-scoring backend: 'gemini', 'ollama' or 'off'")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "llava", "Ollama vision model name")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("BARCODE_API"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	cfg := ticket.Config{
		VariantTags:      splitTags(*variantTags),
		MaxVariants:      *maxVariants,
		HighConfidence:   *highConfidence,
		EngineTimeout:    *engineTimeout,
		ItemTimeout:      *itemTimeout,
		BatchConcurrency: *batchWorkers,
		BatchTimeout:     *batchTimeout,
		Strict:           *strict,
		EnableML:         *enableML,
	}

	// Initialize decode store
	slog.Info("Initializing decode store...")
	store, err := ticket.NewBoltStore(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize decode store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Initialize ML ranker based on backend
	var ranker decode.Ranker
	switch *mlBackend {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini ranker...", "model", *geminiModel)
		ranker, err = mlscore.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama ranker...", "url", *ollamaURL, "model", *ollamaModel)
		ranker, err = mlscore.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	case "off":
		slog.Info("ML re-scoring disabled")
	default:
		slog.Error("Invalid ML backend", "backend", *mlBackend, "valid", "gemini, ollama or off")
		os.Exit(1)
	}
	if ranker != nil {
		defer ranker.Close()
	}

	// Engine registration order is fixed for reproducible scans.
	engines := []decode.Engine{
		decode.NewZXing(),
		decode.NewZXingTryHarder(),
	}

	pipeline := ticket.NewPipeline(engines, ranker, cfg)
	service := ticket.NewService(pipeline, store)

	basicAuth := ticket.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := ticket.NewServer(service, basicAuth)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}

func splitTags(raw string) []string {
	var tags []string
	for _, tag := range strings.Split(raw, ",") {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
