package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-index/internal/batch"
	"github.com/zombor/invoice-index/internal/export"
	"github.com/zombor/invoice-index/internal/extraction"
	"github.com/zombor/invoice-index/internal/invoice"
	"github.com/zombor/invoice-index/internal/logging"
	"github.com/zombor/invoice-index/internal/scanning"
	"github.com/zombor/invoice-index/internal/source"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

type config struct {
	input     string
	recursive bool
	out       string
	format    string
	workers   int
	locale    string
	tolerance string
	required  string
	rules     string

	extractor   string
	transcribe  string
	timeout     time.Duration
	geminiKey   string
	geminiModel string
	ollamaURL   string
	ollamaModel string
	openaiKey   string
	openaiModel string
	openaiURL   string

	dbPath      string
	serve       bool
	port        int
	storagePath string
	authUser    string
	authPass    string
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("invoice-index")
	var (
		input       = fs.StringLong("input", "", "Invoice file or directory")
		recursive   = fs.BoolLong("recursive", "Descend into subdirectories")
		out         = fs.StringLong("out", "-", "Output file, '-' for stdout")
		format      = fs.StringLong("format", "", "Output format: csv or xlsx (default: from --out extension)")
		workers     = fs.IntLong("workers", 4, "Documents processed concurrently")
		locale      = fs.StringLong("locale", "auto", "Decimal separator: auto, comma or point")
		tolerance   = fs.StringLong("tolerance", "0.01", "Allowed gap between subtotal + vat and total")
		required    = fs.StringLong("required", "invoice_number,total,supplier", "Comma separated required fields")
		rules       = fs.StringLong("rules", "", "YAML file with extra or replacement rules")
		extractor   = fs.StringLong("extractor", "rules", "Field extractor: rules, gemini, ollama or openai")
		transcribe  = fs.StringLong("transcribe", "", "Model used to transcribe scans and images: gemini, ollama or openai")
		timeout     = fs.DurationLong("timeout", 0, "Model request timeout (default: per model)")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL   = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = fs.StringLong("ollama-model", "llama3.1", "Ollama model name (use a vision model such as llava for --transcribe)")
		openaiKey   = fs.StringLong("openai-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
		openaiModel = fs.StringLong("openai-model", "gpt-4o-mini", "OpenAI model name")
		openaiURL   = fs.StringLong("openai-url", "", "OpenAI compatible API base URL (optional)")
		dbPath      = fs.StringLong("db", "", "Database file for the record cache and run history")
		serveAPI    = fs.BoolLong("serve", "Run the HTTP API instead of a one-off extraction")
		port        = fs.IntLong("port", 8080, "HTTP server port")
		storagePath = fs.StringLong("storage", "./uploads", "Directory for uploaded documents")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel    = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		logFormat   = fs.StringLong("log-format", "text", "Log format: text or json")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("INVOICE_INDEX"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := logging.Setup(os.Stderr, *logLevel, *logFormat); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg := config{
		input:       *input,
		recursive:   *recursive,
		out:         *out,
		format:      *format,
		workers:     *workers,
		locale:      *locale,
		tolerance:   *tolerance,
		required:    *required,
		rules:       *rules,
		extractor:   *extractor,
		transcribe:  *transcribe,
		timeout:     *timeout,
		geminiKey:   *geminiKey,
		geminiModel: *geminiModel,
		ollamaURL:   *ollamaURL,
		ollamaModel: *ollamaModel,
		openaiKey:   *openaiKey,
		openaiModel: *openaiModel,
		openaiURL:   *openaiURL,
		dbPath:      *dbPath,
		serve:       *serveAPI,
		port:        *port,
		storagePath: *storagePath,
		authUser:    *authUser,
		authPass:    *authPass,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config) error {
	scanners := make(map[string]scanning.Scanner)
	defer func() {
		for _, s := range scanners {
			s.Close()
		}
	}()

	engine, transcriber, err := buildEngine(cfg, scanners)
	if err != nil {
		return err
	}

	loader := source.NewLoader(transcriber)

	if cfg.serve {
		return serve(ctx, cfg, engine, loader)
	}
	return extract(ctx, cfg, engine, loader)
}

// buildEngine assembles the pipeline and, if requested, the transcriber for scans
func buildEngine(cfg config, scanners map[string]scanning.Scanner) (*extraction.Engine, source.Transcriber, error) {
	locale, err := extraction.ParseLocale(cfg.locale)
	if err != nil {
		return nil, nil, err
	}

	tolerance, err := decimal.NewFromString(cfg.tolerance)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid tolerance %q: %w", cfg.tolerance, err)
	}

	var required []extraction.Field
	if cfg.required != "" {
		if required, err = extraction.ParseRequired(strings.Split(cfg.required, ",")); err != nil {
			return nil, nil, err
		}
	}
	validator := extraction.NewValidator(required, tolerance)

	var fields extraction.FieldSource
	if cfg.extractor == "rules" {
		rules := extraction.DefaultRules()
		if cfg.rules != "" {
			if rules, err = extraction.LoadRules(cfg.rules, rules); err != nil {
				return nil, nil, err
			}
			slog.Info("Loaded rules", "path", cfg.rules)
		}
		fields = extraction.NewRuleSource(extraction.NewExtractor(rules), extraction.NewCoercer(locale))
	} else {
		if fields, err = scanner(cfg, cfg.extractor, locale, scanners); err != nil {
			return nil, nil, err
		}
	}

	var transcriber source.Transcriber
	if cfg.transcribe != "" {
		if transcriber, err = scanner(cfg, cfg.transcribe, locale, scanners); err != nil {
			return nil, nil, err
		}
	}

	return extraction.NewEngine(fields, validator), transcriber, nil
}

// scanner returns the named model client, creating it once
func scanner(cfg config, name string, locale extraction.Locale, scanners map[string]scanning.Scanner) (scanning.Scanner, error) {
	if s, ok := scanners[name]; ok {
		return s, nil
	}

	opts := []scanning.Option{scanning.WithLocale(locale), scanning.WithTimeout(cfg.timeout)}
	var (
		s   scanning.Scanner
		err error
	)
	switch name {
	case "gemini":
		apiKey := cfg.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
		}
		slog.Info("Initializing Gemini scanner...", "model", cfg.geminiModel)
		s, err = scanning.NewGemini(apiKey, cfg.geminiModel, opts...)
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", cfg.ollamaURL, "model", cfg.ollamaModel)
		s, err = scanning.NewOllama(cfg.ollamaURL, cfg.ollamaModel, opts...)
	case "openai":
		apiKey := cfg.openaiKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		slog.Info("Initializing OpenAI scanner...", "model", cfg.openaiModel)
		s, err = scanning.NewOpenAI(apiKey, cfg.openaiModel, cfg.openaiURL, opts...)
	default:
		return nil, fmt.Errorf("invalid scanner type %q: valid are rules, gemini, ollama or openai", name)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s: %w", name, err)
	}
	scanners[name] = s
	return s, nil
}

// extract processes every document under --input and writes one row per document
func extract(ctx context.Context, cfg config, engine *extraction.Engine, loader *source.Loader) error {
	if cfg.input == "" {
		return errors.New("--input is required")
	}

	format := export.FormatFromPath(cfg.out)
	if cfg.format != "" {
		var err error
		if format, err = export.ParseFormat(cfg.format); err != nil {
			return err
		}
	}

	paths, err := source.Discover(cfg.input, cfg.recursive)
	if err != nil {
		return err
	}
	slog.Info("Discovered documents", "input", cfg.input, "count", len(paths), "method", engine.Method(), "fingerprint", engine.Fingerprint())

	progress := batch.WithProgress(func(done, total int, rec extraction.InvoiceRecord) {
		slog.Debug("Processed document", "done", done, "total", total, "source", rec.Source, "status", rec.Status)
	})
	opts := []batch.Option{batch.WithWorkers(cfg.workers), progress}

	var records []extraction.InvoiceRecord
	if cfg.dbPath != "" {
		db, err := invoice.NewBoltDB(cfg.dbPath)
		if err != nil {
			return fmt.Errorf("initializing database: %w", err)
		}
		defer db.Close()

		// no uploads outside server mode, so no storage
		service := invoice.NewService(db, engine, loader, nil, opts...)
		r, err := service.RunPaths(ctx, paths, loader)
		if err != nil {
			return err
		}
		slog.Info("Saved run", "id", r.ID, "db", cfg.dbPath)
		records = r.Records
	} else {
		records = batch.NewRunner(engine, opts...).RunPaths(ctx, paths, loader)
	}

	var w io.Writer = os.Stdout
	if cfg.out != "-" {
		f, err := os.Create(cfg.out)
		if err != nil {
			return fmt.Errorf("creating output: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := export.Write(w, format, records); err != nil {
		return err
	}

	summary := batch.Summarize(records)
	slog.Info("Extraction finished",
		"out", cfg.out,
		"format", format,
		"total", summary.Total,
		"complete", summary.Complete,
		"partial", summary.Partial,
		"failed", summary.Failed,
		"needs_review", summary.NeedsReview,
	)
	return nil
}

// serve runs the HTTP API until ctx is cancelled
func serve(ctx context.Context, cfg config, engine *extraction.Engine, loader *source.Loader) error {
	dbPath := cfg.dbPath
	if dbPath == "" {
		dbPath = "invoice-index.db"
	}

	slog.Info("Initializing database...", "path", dbPath)
	db, err := invoice.NewBoltDB(dbPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	slog.Info("Initializing storage...", "path", cfg.storagePath)
	store, err := invoice.NewLocalStorage(cfg.storagePath)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	service := invoice.NewService(db, engine, loader, store, batch.WithWorkers(cfg.workers))
	server := invoice.NewServer(service, invoice.BasicAuth{
		Username: cfg.authUser,
		Password: cfg.authPass,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", httpServer.Addr), "method", engine.Method(), "fingerprint", engine.Fingerprint())
		errCh <- httpServer.ListenAndServe()
	}()
	if cfg.authUser != "" || cfg.authPass != "" {
		slog.Info("Basic auth enabled", "user", cfg.authUser)
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
