// Command forumlens-ingest loads CSV/TSV forum exports into the annotation
// store from the command line.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/scrypster/forumlens/internal/config"
	"github.com/scrypster/forumlens/internal/ingest"
	"github.com/scrypster/forumlens/internal/logging"
	"github.com/scrypster/forumlens/internal/notify"
	"github.com/scrypster/forumlens/internal/storage/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	configPath string
	dbPath     string
	userID     int64
	name       string
	comment    string
	overwrite  bool
	preview    int
	asJSON     bool
	quiet      bool
	files      []string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("forumlens-ingest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := &options{}
	fs.StringVar(&opts.configPath, "config", "", "Path to YAML config file (optional, uses env vars by default)")
	fs.StringVar(&opts.dbPath, "db", "", "Path to database file (overrides config)")
	fs.Int64Var(&opts.userID, "user", 0, "Id of the user the upload belongs to (required)")
	fs.StringVar(&opts.name, "name", "", "Readable name of the upload (single file only; default: file name)")
	fs.StringVar(&opts.comment, "comment", "", "Comment stored with the upload")
	fs.BoolVar(&opts.overwrite, "overwrite", false, "Update posts that already exist instead of skipping them")
	fs.IntVar(&opts.preview, "preview", 0, "Validate and show this many rows without writing anything")
	fs.BoolVar(&opts.asJSON, "json", false, "Print results as JSON")
	fs.BoolVar(&opts.quiet, "no-notify", false, "Do not notify a running forumlens-web about new uploads")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: forumlens-ingest -user ID [flags] FILE...")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	opts.files = fs.Args()
	if len(opts.files) == 0 {
		fs.Usage()
		return nil, fmt.Errorf("no input files")
	}
	if opts.userID <= 0 && opts.preview == 0 {
		return nil, fmt.Errorf("-user is required")
	}
	if opts.name != "" && len(opts.files) > 1 {
		return nil, fmt.Errorf("-name applies to a single file")
	}
	return opts, nil
}

// run returns the process exit code: 0 when every file was accepted, 1 when
// any was rejected, 2 on usage or setup errors.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "forumlens-ingest: %v\n", err)
		return 2
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 2
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to build logger: %v\n", err)
		return 2
	}
	defer func() { _ = logger.Sync() }()

	dbPath := cfg.Storage.DSN()
	if opts.dbPath != "" {
		dbPath = opts.dbPath
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		fmt.Fprintf(stderr, "Failed to create data directory: %v\n", err)
		return 2
	}
	store, err := sqlite.Open(ctx, dbPath, sqlite.Options{BusyTimeout: cfg.Storage.BusyTimeoutMS, Logger: logger})
	if err != nil {
		fmt.Fprintf(stderr, "Failed to open store: %v\n", err)
		return 2
	}
	defer func() { _ = store.Close() }()

	seeds, err := ingest.LoadSeedTags(cfg.Ingest.SeedTagsPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load seed tags: %v\n", err)
		return 2
	}
	// A running forumlens-web picks these up and tells open dashboards.
	var events notify.Publisher
	if !opts.quiet {
		events = notify.NewEventWriter(filepath.Dir(dbPath))
	}
	pipeline := ingest.NewPipeline(store, ingest.Options{
		MaxBytes:     cfg.Ingest.MaxUploadBytes,
		ModelVersion: cfg.Ingest.ModelVersion,
		Seeds:        seeds,
		Events:       events,
		Logger:       logger,
	})

	code := 0
	for _, path := range opts.files {
		req, err := readRequest(path, opts)
		if err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", path, err)
			code = 1
			continue
		}

		if opts.preview > 0 {
			pv, err := pipeline.Preview(ctx, req, opts.preview)
			if err != nil {
				fmt.Fprintf(stderr, "%s: %v\n", path, err)
				code = 1
				continue
			}
			printPreview(stdout, path, pv, opts.asJSON)
			if !pv.Valid {
				code = 1
			}
			continue
		}

		res, err := pipeline.Run(ctx, req)
		printResult(stdout, path, res, opts.asJSON)
		if err != nil {
			logger.Debug("Upload rejected", zap.String("file", path), zap.Error(err))
			code = 1
		}
	}
	return code
}

func readRequest(path string, opts *options) (ingest.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ingest.Request{}, err
	}
	return ingest.Request{
		UserID:       opts.userID,
		Filename:     filepath.Base(path),
		ReadableName: opts.name,
		Comment:      opts.comment,
		Data:         data,
		MIMEType:     mimeFor(path),
		Overwrite:    opts.overwrite,
	}, nil
}

func mimeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsv", ".tab":
		return "text/tab-separated-values"
	default:
		return "text/csv"
	}
}

func printResult(w io.Writer, path string, res *ingest.Result, asJSON bool) {
	if asJSON {
		_ = json.NewEncoder(w).Encode(struct {
			File string `json:"file"`
			*ingest.Result
		}{path, res})
		return
	}
	fmt.Fprintf(w, "%s: %s\n", path, res.Message)
	if res.UploadID != nil {
		fmt.Fprintf(w, "  upload id: %d\n", *res.UploadID)
	}
}

func printPreview(w io.Writer, path string, pv *ingest.Preview, asJSON bool) {
	if asJSON {
		_ = json.NewEncoder(w).Encode(struct {
			File string `json:"file"`
			*ingest.Preview
		}{path, pv})
		return
	}
	fmt.Fprintf(w, "%s: %d rows, columns: %s\n", path, pv.TotalRows, strings.Join(pv.Columns, ", "))
	if !pv.Valid {
		for _, line := range pv.ValidationErrors {
			fmt.Fprintf(w, "  %s\n", line)
		}
		return
	}
	fmt.Fprintf(w, "  valid, %d already stored\n", pv.ExistingRows)
	for i, row := range pv.Rows {
		fmt.Fprintf(w, "  %d. [%s] %s\n", i+1, row["forum"], row["original_title"])
	}
}
