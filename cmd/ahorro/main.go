package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/ahorro/internal/media"
	"github.com/zombor/ahorro/internal/receipt"
	"github.com/zombor/ahorro/internal/scanning"
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

	// A missing .env file is fine; real environment variables still apply
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	fs := ff.NewFlagSet("ahorro")
	var (
		port         = fs.IntLong("port", 8080, "HTTP server port")
		root         = fs.StringLong("root", "", "Receipt store directory (default: user config dir/ahorro)")
		provider     = fs.StringLong("provider", scanning.ProviderOpenAI, "Analysis provider: 'openai', 'gemini', 'ollama' or 'offline'")
		apiKey       = fs.StringLong("api-key", "", "Analysis provider API key (or set OPENAI_API_KEY / GEMINI_API_KEY)")
		organization = fs.StringLong("organization", "", "OpenAI organization (optional)")
		baseURL      = fs.StringLong("base-url", "", "OpenAI-compatible API base URL")
		model        = fs.StringLong("model", "", "Model name (provider default when empty)")
		ollamaURL    = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		timeout      = fs.DurationLong("timeout", 60*time.Second, "Analysis request timeout")
		currency     = fs.StringLong("currency", "CLP", "Currency used when a receipt does not state one")
		authUser     = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass     = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion  = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("AHORRO"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config{
		port: *port,
		root: *root,
		scanning: scanning.Config{
			Provider:        *provider,
			APIKey:          resolveAPIKey(*provider, *apiKey),
			Organization:    *organization,
			BaseURL:         *baseURL,
			Model:           *model,
			OllamaURL:       *ollamaURL,
			Timeout:         *timeout,
			DefaultCurrency: *currency,
			Categories:      receipt.CategoryNames(),
		},
		auth: receipt.BasicAuth{Username: *authUser, Password: *authPass},
	}); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}

type config struct {
	port     int
	root     string
	scanning scanning.Config
	auth     receipt.BasicAuth
}

func run(ctx context.Context, cfg config) error {
	slog.Info("Opening receipt store...", "root", cfg.root)
	store, err := receipt.Open(cfg.root)
	if err != nil {
		return fmt.Errorf("opening receipt store: %w", err)
	}
	defer store.Close()

	analyzer := scanning.Select(cfg.scanning, slog.Default())
	defer analyzer.Close()

	processor := receipt.NewProcessor(analyzer, media.NewThumbnailer(slog.Default()), cfg.scanning.DefaultCurrency)
	service := receipt.NewService(processor, store, analyzer)
	server := receipt.NewServer(service, cfg.auth)

	addr := fmt.Sprintf(":%d", cfg.port)
	slog.Info("Ahorro ready", "url", fmt.Sprintf("http://localhost%s", addr), "version", version, "receipts", len(store.List()))
	if cfg.auth.Username != "" || cfg.auth.Password != "" {
		slog.Info("Basic auth enabled", "user", cfg.auth.Username)
	}

	if err := server.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("Shutting down...")
	return nil
}

// resolveAPIKey falls back to the provider's conventional environment variable
func resolveAPIKey(provider, apiKey string) string {
	if apiKey != "" {
		return apiKey
	}
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case scanning.ProviderGemini:
		return os.Getenv("GEMINI_API_KEY")
	case "", scanning.ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	}
	return ""
}
