package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/davidlu1001/file-combiner/internal/archive"
	"github.com/davidlu1001/file-combiner/internal/config"
	"github.com/davidlu1001/file-combiner/internal/engine"
	"github.com/davidlu1001/file-combiner/internal/event"
	"github.com/davidlu1001/file-combiner/internal/filter"
	"github.com/davidlu1001/file-combiner/internal/stats"
	"github.com/davidlu1001/file-combiner/internal/ui"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// filterFlag is a custom pflag.Value that preserves CLI ordering of
// --exclude and --include rules by appending to a shared filter.Chain.
type filterFlag struct {
	chain   *filter.Chain
	include bool
}

func (*filterFlag) String() string { return "" }
func (*filterFlag) Type() string   { return "string" }

func (f *filterFlag) Set(val string) error {
	if f.include {
		return f.chain.AddInclude(val)
	}
	return f.chain.AddExclude(val)
}

// displayFlags are the output-control flags shared by combine and split.
type displayFlags struct {
	verbose    bool
	quiet      bool
	forceFeed  bool
	forceRate  bool
	noProgress bool
	logFile    string
}

func (d *displayFlags) register(flags *pflag.FlagSet) {
	flags.BoolVarP(&d.verbose, "verbose", "v", false, "verbose output")
	flags.BoolVarP(&d.quiet, "quiet", "q", false, "suppress all output except errors")
	flags.BoolVar(&d.forceFeed, "feed", false, "force feed mode (one line per file)")
	flags.BoolVar(&d.forceRate, "rate", false, "force rate mode (sparkline + throughput)")
	flags.BoolVar(&d.noProgress, "no-progress", false, "disable progress display")
	flags.StringVar(&d.logFile, "log", "", "write structured JSON log to FILE")
}

func run() int {
	var showVersion bool

	rootCmd := &cobra.Command{
		Use:           "file-combiner",
		Short:         "Pack a directory tree into one text archive and restore it back",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				fmt.Fprintf(os.Stdout, "file-combiner %s\n", version)
				return nil
			}
			return cmd.Help()
		},
	}
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")

	rootCmd.AddCommand(newCombineCmd())
	rootCmd.AddCommand(newSplitCmd())
	rootCmd.AddCommand(docsCmd)

	if err := rootCmd.Execute(); err != nil {
		if exitErr, ok := err.(*exitError); ok {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	return 0
}

//nolint:gocyclo,revive // cyclomatic,cognitive-complexity: flag parsing and defaults resolution
func newCombineCmd() *cobra.Command {
	var (
		formatStr         string
		compressStr       string
		workers           int
		maxSizeStr        string
		maxDepth          int
		followSymlinks    bool
		ignoreBinary      bool
		preserve          bool
		checksum          bool
		dryRun            bool
		noDefaultExcludes bool
		noGitignore       bool
		bwLimitStr        string
		display           displayFlags
	)

	chain := filter.NewChain()

	cmd := &cobra.Command{
		Use:   "combine [flags] <source-dir> <output-archive>",
		Short: "Pack a directory tree into a single text archive",
		Long: `Combine walks a directory tree and packs every admitted file into one
self-describing archive. The archive format is taken from --format, or
inferred from the output filename, falling back to txt. Passing "-" as
the output writes the archive to stdout.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, out := args[0], args[1]

			if remoteSource(src) {
				return fmt.Errorf(
					"remote source %q is not supported; clone it to a local directory first", src)
			}

			// Load optional config file.
			cfg, err := config.Load()
			if err != nil {
				slog.Warn("failed to load config", "error", err)
			}

			// Apply config defaults for flags not explicitly set on CLI.
			flags := cmd.Flags()
			if !flags.Changed("format") && cfg.Defaults.Format != nil {
				formatStr = *cfg.Defaults.Format
			}
			if !flags.Changed("compress") && cfg.Defaults.Compression != nil {
				compressStr = *cfg.Defaults.Compression
			}
			if !flags.Changed("workers") && cfg.Defaults.Workers != nil {
				workers = *cfg.Defaults.Workers
			}
			if !flags.Changed("checksum") && cfg.Defaults.Checksum != nil {
				checksum = *cfg.Defaults.Checksum
			}
			if !flags.Changed("preserve") && cfg.Defaults.Preserve != nil {
				preserve = *cfg.Defaults.Preserve
			}
			if !flags.Changed("ignore-binary") && cfg.Defaults.IgnoreBinary != nil {
				ignoreBinary = *cfg.Defaults.IgnoreBinary
			}
			if !flags.Changed("max-size") && cfg.Defaults.MaxSize != nil {
				maxSizeStr = *cfg.Defaults.MaxSize
			}
			if !flags.Changed("bwlimit") && cfg.Defaults.BWLimit != nil {
				bwLimitStr = *cfg.Defaults.BWLimit
			}

			closeLog, err := setupLogging(display.verbose, display.quiet, display.logFile)
			if err != nil {
				return err
			}
			defer closeLog()

			format, err := archive.ParseFormat(formatStr)
			if err != nil {
				return fmt.Errorf("invalid --format: %w", err)
			}
			if format == archive.FormatUnknown {
				if format = archive.FormatForPath(out); format == archive.FormatUnknown {
					format = archive.FormatTxt
				}
			}

			compression, err := archive.ParseCompression(compressStr)
			if err != nil {
				return fmt.Errorf("invalid --compress: %w", err)
			}
			if !flags.Changed("compress") && compression == archive.CompressionNone {
				compression = archive.CompressionForPath(out)
			}

			var maxSize int64
			if maxSizeStr != "" {
				maxSize, err = filter.ParseSize(maxSizeStr)
				if err != nil {
					return fmt.Errorf("invalid --max-size: %w", err)
				}
			}

			var bwLimit int64
			if bwLimitStr != "" {
				bwLimit, err = filter.ParseSize(bwLimitStr)
				if err != nil {
					return fmt.Errorf("invalid --bwlimit: %w", err)
				}
			}

			if !noDefaultExcludes {
				if err := chain.AddDefaultExcludes(); err != nil {
					return fmt.Errorf("default excludes: %w", err)
				}
			}

			if dryRun {
				slog.Info("dry run mode")
			}

			// Set up context with signal handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			engineCfg := engine.CombineConfig{
				Src:            src,
				Out:            out,
				Format:         format,
				Compression:    compression,
				Workers:        workers,
				MaxFileSize:    maxSize,
				MaxDepth:       maxDepth,
				FollowSymlinks: followSymlinks,
				IgnoreBinary:   ignoreBinary,
				Preserve:       preserve,
				Checksum:       checksum,
				Gitignore:      !noGitignore,
				DryRun:         dryRun,
				SourceLabel:    src,
				Generator:      "file-combiner/" + version,
				BWLimit:        bwLimit,
			}

			// Only set filter if it has rules.
			if !chain.Empty() {
				engineCfg.Filter = chain
			}

			slog.Debug("starting combine",
				"src", src,
				"out", out,
				"format", format.String(),
				"compression", compression,
				"workers", workers,
			)

			// With the archive on stdout, feed lines move to stderr.
			feedW := io.Writer(os.Stdout)
			if out == "-" {
				feedW = os.Stderr
			}

			return runEngine(ctx, presenterOpts{
				op:         "combine",
				writer:     feedW,
				quiet:      display.quiet,
				forceFeed:  display.forceFeed,
				forceRate:  display.forceRate,
				noProgress: display.noProgress,
				logEvents:  display.logFile != "",
			}, func(ctx context.Context, events chan<- event.Event, st *stats.Collector) engine.Result {
				engineCfg.Events = events
				engineCfg.Stats = st
				return engine.Combine(ctx, engineCfg)
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&formatStr, "format", "f", "",
		"archive format: txt, xml, json, markdown, yaml (default: from output extension)")
	flags.StringVarP(&compressStr, "compress", "z", "",
		"compress the archive: none, gzip, zstd (default: from output extension)")
	flags.IntVarP(&workers, "workers", "n", 0,
		"metadata workers (default: min(NumCPU*2, 32))")
	flags.StringVarP(&maxSizeStr, "max-size", "s", "50M",
		"skip files larger than SIZE (e.g. 1G, 500K)")
	flags.IntVarP(&maxDepth, "max-depth", "d", 50, "maximum directory depth")
	flags.BoolVarP(&followSymlinks, "follow-symlinks", "L", false,
		"descend into symlinked directories")
	flags.BoolVar(&ignoreBinary, "ignore-binary", false, "skip binary files")
	flags.BoolVarP(&preserve, "preserve", "p", false, "record file mode and mtime")
	flags.BoolVar(&checksum, "checksum", false, "record BLAKE3 checksums")
	flags.BoolVar(&dryRun, "dry-run", false, "list what would be archived without writing")
	flags.Var(&filterFlag{chain: chain, include: false}, "exclude",
		"exclude files matching PATTERN (repeatable)")
	flags.Var(&filterFlag{chain: chain, include: true}, "include",
		"include only files matching PATTERN (repeatable)")
	flags.BoolVar(&noDefaultExcludes, "no-default-excludes", false,
		"do not apply the built-in exclude patterns")
	flags.BoolVar(&noGitignore, "no-gitignore", false, "do not honor .gitignore files")
	flags.StringVar(&bwLimitStr, "bwlimit", "", "source read throttle (e.g. 100M)")
	display.register(flags)

	return cmd
}

func newSplitCmd() *cobra.Command {
	var (
		formatStr  string
		workers    int
		preserve   bool
		verify     bool
		lenient    bool
		dryRun     bool
		bwLimitStr string
		display    displayFlags
	)

	cmd := &cobra.Command{
		Use:   "split [flags] <input-archive> <output-dir>",
		Short: "Restore a combined archive back into a directory tree",
		Long: `Split reads a combined archive and recreates the original tree under the
output directory. The archive format is detected from the content and
the filename; --format overrides detection. Passing "-" as the input
reads the archive from stdin. Compressed archives are recognized by
their leading bytes regardless of filename.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, dst := args[0], args[1]

			// Load optional config file.
			cfg, err := config.Load()
			if err != nil {
				slog.Warn("failed to load config", "error", err)
			}

			// Apply config defaults for flags not explicitly set on CLI.
			flags := cmd.Flags()
			if !flags.Changed("workers") && cfg.Defaults.Workers != nil {
				workers = *cfg.Defaults.Workers
			}
			if !flags.Changed("preserve") && cfg.Defaults.Preserve != nil {
				preserve = *cfg.Defaults.Preserve
			}
			if !flags.Changed("verify") && cfg.Defaults.Checksum != nil {
				verify = *cfg.Defaults.Checksum
			}
			if !flags.Changed("bwlimit") && cfg.Defaults.BWLimit != nil {
				bwLimitStr = *cfg.Defaults.BWLimit
			}

			closeLog, err := setupLogging(display.verbose, display.quiet, display.logFile)
			if err != nil {
				return err
			}
			defer closeLog()

			format, err := archive.ParseFormat(formatStr)
			if err != nil {
				return fmt.Errorf("invalid --format: %w", err)
			}

			var bwLimit int64
			if bwLimitStr != "" {
				bwLimit, err = filter.ParseSize(bwLimitStr)
				if err != nil {
					return fmt.Errorf("invalid --bwlimit: %w", err)
				}
			}

			if dryRun {
				slog.Info("dry run mode")
			}

			// Set up context with signal handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			engineCfg := engine.SplitConfig{
				In:       in,
				Dst:      dst,
				Format:   format,
				Workers:  workers,
				Preserve: preserve,
				Verify:   verify,
				Lenient:  lenient,
				DryRun:   dryRun,
				BWLimit:  bwLimit,
			}

			slog.Debug("starting split",
				"in", in,
				"dst", dst,
				"workers", workers,
				"verify", verify,
			)

			return runEngine(ctx, presenterOpts{
				op:         "split",
				writer:     os.Stdout,
				dstRoot:    dst,
				quiet:      display.quiet,
				forceFeed:  display.forceFeed,
				forceRate:  display.forceRate,
				noProgress: display.noProgress,
				logEvents:  display.logFile != "",
			}, func(ctx context.Context, events chan<- event.Event, st *stats.Collector) engine.Result {
				engineCfg.Events = events
				engineCfg.Stats = st
				return engine.Split(ctx, engineCfg)
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&formatStr, "format", "f", "",
		"archive format: txt, xml, json, markdown, yaml (default: auto-detect)")
	flags.IntVarP(&workers, "workers", "n", 0,
		"restore write workers (default: min(NumCPU*2, 32))")
	flags.BoolVarP(&preserve, "preserve", "p", false, "restore recorded mode and mtime")
	flags.BoolVar(&verify, "verify", false, "verify BLAKE3 checksums against the manifest")
	flags.BoolVar(&lenient, "lenient", false,
		"skip entries with unsafe paths instead of aborting")
	flags.BoolVar(&dryRun, "dry-run", false, "list what would be restored without writing")
	flags.StringVar(&bwLimitStr, "bwlimit", "", "archive read throttle (e.g. 100M)")
	display.register(flags)

	return cmd
}

// remoteSource reports whether src looks like a remote repository
// reference rather than a local directory.
func remoteSource(src string) bool {
	return strings.Contains(src, "://") ||
		strings.HasPrefix(src, "git@") ||
		strings.HasPrefix(src, "github.com/")
}

// setupLogging installs the default slog logger. The returned func closes
// the JSON log file when --log is set.
func setupLogging(verbose, quiet bool, logFile string) (func(), error) {
	logLevel := slog.LevelWarn
	if verbose {
		logLevel = slog.LevelDebug
	} else if !quiet {
		logLevel = slog.LevelInfo
	}
	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	var logHandler slog.Handler = textHandler
	closer := func() {}
	if logFile != "" {
		lf, err := os.Create(logFile)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		closer = func() { lf.Close() }
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
		logHandler = ui.NewMultiHandler(textHandler, jsonHandler)
	}
	slog.SetDefault(slog.New(logHandler))
	return closer, nil
}

// presenterOpts configures the event display for one engine run.
type presenterOpts struct {
	op         string // "combine" or "split", used in log lines
	writer     io.Writer
	dstRoot    string
	quiet      bool
	forceFeed  bool
	forceRate  bool
	noProgress bool
	logEvents  bool
}

// runEngine drives op in the foreground with a presenter consuming events
// in the background, then maps the result onto the process exit code.
func runEngine(
	ctx context.Context,
	opts presenterOpts,
	op func(context.Context, chan<- event.Event, *stats.Collector) engine.Result,
) error {
	collector := stats.NewCollector()
	events := make(chan event.Event, 256)

	// When --log is set, tee events through a logging goroutine
	// that writes structured records before forwarding to the presenter.
	presenterEvents := (<-chan event.Event)(events)
	if opts.logEvents {
		teed := make(chan event.Event, 256)
		go func() {
			for ev := range events {
				attrs := []slog.Attr{
					slog.String("type", ev.Type.String()),
					slog.String("path", ev.Path),
					slog.Int64("size", ev.Size),
				}
				if ev.Reason != "" {
					attrs = append(attrs, slog.String("reason", ev.Reason))
				}
				if ev.Error != nil {
					attrs = append(attrs, slog.String("error", ev.Error.Error()))
				}
				slog.LogAttrs(context.Background(), slog.LevelInfo, "combiner.event", attrs...)
				teed <- ev
			}
			close(teed)
		}()
		presenterEvents = teed
	}

	// Create presenter.
	presenter := ui.NewPresenter(ui.Config{
		Writer:     opts.writer,
		ErrWriter:  os.Stderr,
		IsTTY:      ui.IsTTY(os.Stderr.Fd()),
		Quiet:      opts.quiet,
		ForceFeed:  opts.forceFeed,
		ForceRate:  opts.forceRate,
		NoProgress: opts.noProgress,
		Stats:      collector,
		DstRoot:    opts.dstRoot,
	})

	// Presenter in background, engine in foreground.
	var presenterErr error
	var presenterWg sync.WaitGroup
	presenterWg.Add(1)
	go func() {
		defer presenterWg.Done()
		presenterErr = presenter.Run(presenterEvents)
	}()

	result := op(ctx, events, collector)
	close(events)
	presenterWg.Wait()
	if presenterErr != nil {
		fmt.Fprintf(os.Stderr, "presenter: %v\n", presenterErr)
	}

	// Sweep any temp files an aborted run left registered.
	engine.CleanupTmpFiles()

	if !opts.quiet {
		if summary := presenter.Summary(); summary != "" {
			fmt.Fprintln(os.Stderr, summary)
		}
	}

	if result.Err != nil {
		slog.Error(opts.op+" failed", "error", result.Err)
		if result.Stats.FilesWritten > 0 {
			return &exitError{code: 1} // partial failure
		}
		return &exitError{code: 2} // total failure
	}

	return nil
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
