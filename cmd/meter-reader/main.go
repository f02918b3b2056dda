package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/abkmadni/smart-meter-ocr/internal/meter"
	"github.com/abkmadni/smart-meter-ocr/internal/ocr"
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

	fs := ff.NewFlagSet("meter-reader")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "meter-reader.db", "Database file path")
		storagePath = fs.StringLong("storage", "./photos", "Photo storage directory path")
		ocrBackend  = fs.StringLong("ocr", "space", "OCR backend: 'space' or 'gemini'")
		spaceKey    = fs.StringLong("ocr-space-key", "", "OCR.space API key (or set OCR_SPACE_API_KEY env var)")
		spaceURL    = fs.StringLong("ocr-space-url", ocr.DefaultSpaceURL, "OCR.space API endpoint")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("METER_READER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	slog.Info("Initializing database...")
	db, err := meter.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize the OCR backend
	var recognizer ocr.Recognizer
	switch *ocrBackend {
	case "space":
		apiKey := *spaceKey
		if apiKey == "" {
			apiKey = os.Getenv("OCR_SPACE_API_KEY")
		}
		if apiKey == "" {
			slog.Error("OCR.space API key is required. Set --ocr-space-key flag or OCR_SPACE_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing OCR.space recognizer...", "url", *spaceURL)
		recognizer, err = ocr.NewSpace(*spaceURL, apiKey)
		if err != nil {
			slog.Error("Failed to initialize OCR.space", "error", err)
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
		slog.Info("Initializing Gemini recognizer...", "model", *geminiModel)
		recognizer, err = ocr.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid OCR backend", "backend", *ocrBackend, "valid", "space or gemini")
		os.Exit(1)
	}

	session := ocr.NewSession(recognizer)
	defer session.Close()

	slog.Info("Initializing photo storage...")
	store, err := meter.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	service := meter.NewService(db, store)

	basicAuth := meter.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := meter.NewServer(service, session, basicAuth)

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
