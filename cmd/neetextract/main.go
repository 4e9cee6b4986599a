// Command neetextract extracts multiple-choice questions from NEET exam PDFs.
//
// Usage:
//
//	neetextract -pdf paper.pdf                    # extract, print JSON result
//	neetextract -pdf paper.pdf -analyze           # classify only
//	neetextract -pdf paper.pdf -db neet.db        # extract and store the run
//	neetextract -config neet.yaml -listen :8080   # HTTP API + job worker
//	neetextract -config neet.yaml -mcp            # MCP tools over stdio
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/neetextract/dbopen"
	"github.com/hazyhaar/neetextract/neetpipe"
	"github.com/hazyhaar/neetextract/neetpipe/ocr"
	"github.com/hazyhaar/neetextract/neetpipe/ocr/fitz"
	"github.com/hazyhaar/neetextract/neetpipe/ocr/tesseract"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	pdfPath := flag.String("pdf", "", "PDF to process (one-shot, JSON result on stdout)")
	analyzeOnly := flag.Bool("analyze", false, "with -pdf: print the document analysis only")
	dbPath := flag.String("db", "", "SQLite database for runs and jobs (overrides config)")
	listen := flag.String("listen", "", "serve the HTTP API and job worker on this address")
	mcpStdio := flag.Bool("mcp", false, "serve MCP tools over stdio")
	noOCR := flag.Bool("no-ocr", false, "disable the OCR fallback")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := options{
		configPath: *configPath,
		pdfPath:    *pdfPath,
		analyze:    *analyzeOnly,
		dbPath:     *dbPath,
		listen:     *listen,
		mcp:        *mcpStdio,
		noOCR:      *noOCR,
	}
	if err := run(ctx, logger, opts); err != nil {
		logger.Error("neetextract: fatal", "error", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	pdfPath    string
	analyze    bool
	dbPath     string
	listen     string
	mcp        bool
	noOCR      bool
}

func run(ctx context.Context, logger *slog.Logger, o options) error {
	fc := neetpipe.DefaultFileConfig()
	if o.configPath != "" {
		var err error
		if fc, err = neetpipe.LoadConfigFile(o.configPath); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if o.dbPath != "" {
		fc.Daemon.DBPath = o.dbPath
	}
	if o.listen != "" {
		fc.Daemon.Listen = o.listen
	}

	cfg := fc.Pipeline
	cfg.Logger = logger
	if o.noOCR {
		cfg.UseOCR = false
	}
	if cfg.UseOCR {
		cfg.NewRasterizer = func(path string) (ocr.Rasterizer, error) { return fitz.Open(path) }
		cfg.NewRecognizer = tesseract.Factory(fc.Languages...)
	}
	pipe := neetpipe.New(cfg)

	switch {
	case o.pdfPath != "" && o.analyze:
		a, err := pipe.Analyze(ctx, o.pdfPath)
		if err != nil {
			return err
		}
		return printJSON(a)

	case o.pdfPath != "" && o.dbPath == "":
		res := pipe.ProcessFile(ctx, o.pdfPath)
		if err := printJSON(struct {
			*neetpipe.Result
			QualityScore float64 `json:"qualityScore"`
		}{res, res.QualityScore()}); err != nil {
			return err
		}
		if len(res.Errors) > 0 {
			return errors.New(res.Errors[0])
		}
		return nil
	}

	db, err := dbopen.Open(fc.Daemon.DBPath, dbopen.WithMkdirAll())
	if err != nil {
		return err
	}
	defer db.Close()

	svc, err := neetpipe.NewService(ctx, pipe, db, fc.Daemon)
	if err != nil {
		return err
	}

	switch {
	case o.pdfPath != "":
		out, err := svc.Process(ctx, o.pdfPath)
		if err != nil {
			return err
		}
		return printJSON(out)

	case o.mcp:
		srv := mcp.NewServer(&mcp.Implementation{Name: "neetextract", Version: version}, nil)
		svc.RegisterMCP(srv)
		go svc.RunWorker(ctx)
		logger.Info("neetextract: mcp on stdio", "db", fc.Daemon.DBPath)
		return srv.Run(ctx, &mcp.StdioTransport{})

	default:
		return serve(ctx, logger, svc, fc.Daemon.Listen)
	}
}

// serve runs the HTTP API and the job worker until ctx is cancelled.
func serve(ctx context.Context, logger *slog.Logger, svc *neetpipe.Service, addr string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{
		Addr:              addr,
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		svc.RunWorker(ctx)
	}()

	errc := make(chan error, 1)
	go func() {
		logger.Info("neetextract: listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	var err error
	select {
	case err = <-errc:
	case <-ctx.Done():
		logger.Info("neetextract: shutting down")
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		err = srv.Shutdown(shutdownCtx)
	}
	cancel()
	<-workerDone
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
