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

	"github.com/kmckee/sheetscribe/internal/csvstore"
	"github.com/kmckee/sheetscribe/internal/sheet"
	"github.com/kmckee/sheetscribe/internal/vision"
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

	fs := ff.NewFlagSet("sheetscribe")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		csvPath     = fs.StringLong("csv", "data/results.csv", "CSV store file path")
		dbPath      = fs.StringLong("db", "sheetscribe.db", "Extraction history database path")
		backendType = fs.StringLong("backend", "ollama", "Vision backend: 'ollama' or 'gemini'")
		ollamaURL   = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaUser  = fs.StringLong("ollama-user", "", "Ollama basic auth username (optional)")
		ollamaPass  = fs.StringLong("ollama-pass", "", "Ollama basic auth password (optional)")
		model       = fs.StringLong("model", "", "Default model name (backend-specific default when empty)")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		threshold   = fs.Float64Long("threshold", sheet.DefaultThreshold, "Default confidence threshold for review flagging")
		timeout     = fs.DurationLong("timeout", 120*time.Second, "Inference call timeout")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("SHEETSCRIBE"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Initialize history database
	slog.Info("Initializing history database...")
	history, err := sheet.NewBoltHistory(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize history database", "error", err)
		os.Exit(1)
	}
	defer history.Close()

	// Initialize vision client based on backend type
	var client vision.Client
	switch *backendType {
	case "ollama":
		slog.Info("Initializing Ollama backend...", "url", *ollamaURL, "model", *model)
		client, err = vision.NewOllama(*ollamaURL, *model, *ollamaUser, *ollamaPass, *timeout)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini backend...", "model", *model)
		client, err = vision.NewGemini(apiKey, *model)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid backend type", "type", *backendType, "valid", "ollama or gemini")
		os.Exit(1)
	}
	defer client.Close()

	// Initialize service
	service := sheet.NewService(client, csvstore.New(), history, *csvPath, *threshold)

	// Initialize server
	basicAuth := sheet.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := sheet.NewServer(service, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "csv", *csvPath)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
