// Package main is the entry point for the fridayx editor.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/canakyuz-co/fridayx/internal/app"
	"github.com/canakyuz-co/fridayx/internal/backend/remote"
	"github.com/canakyuz-co/fridayx/internal/config"
	"github.com/canakyuz-co/fridayx/internal/logging"
	"github.com/canakyuz-co/fridayx/internal/tui"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// shutdownTimeout bounds the final drain of queued edits and saves.
const shutdownTimeout = 10 * time.Second

type editOptions struct {
	app       app.Options
	workspace string
	files     []string
}

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			return runServe(os.Args[2:])
		case "token":
			return runToken(os.Args[2:])
		}
	}

	opts := parseFlags()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, opts.app)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}

	// Ensure queued edits reach the backend on all exit paths
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := application.Shutdown(sctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: shutdown: %v\n", err)
		}
	}()

	if _, err := application.OpenWorkspace(ctx, opts.workspace, opts.files...); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create terminal: %v\n", err)
		return 1
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize terminal: %v\n", err)
		return 1
	}
	defer screen.Fini()
	screen.EnablePaste()

	if err := tui.New(screen, application.Editor()).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		screen.Fini()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func parseFlags() editOptions {
	var opts editOptions
	var showVersion bool
	var showHelp bool

	// glog owns -v, so version has no shorthand.
	flag.StringVar(&opts.app.ConfigPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.app.ConfigPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.workspace, "workspace", "", "Workspace directory")
	flag.StringVar(&opts.workspace, "w", "", "Workspace directory (shorthand)")
	flag.StringVar(&opts.app.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "fridayx - editor with a synchronized buffer backend\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  fridayx [options] [files...]\n")
		fmt.Fprintf(os.Stderr, "  fridayx serve [options] [roots...]\n")
		fmt.Fprintf(os.Stderr, "  fridayx token [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nKeys:\n")
		fmt.Fprintf(os.Stderr, "  Ctrl-S save, Ctrl-R reload, Ctrl-F search, Ctrl-W close, Ctrl-N/Ctrl-P next/previous file, Ctrl-Q quit\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  fridayx                     Open the current directory\n")
		fmt.Fprintf(os.Stderr, "  fridayx main.go             Open a file\n")
		fmt.Fprintf(os.Stderr, "  fridayx -w ./project        Open a workspace\n")
		fmt.Fprintf(os.Stderr, "  fridayx serve ./project     Serve a workspace to remote editors\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		printVersion()
		os.Exit(0)
	}

	if opts.app.LogLevel != "" {
		if _, err := logging.ParseLevel(opts.app.LogLevel); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	// Remaining arguments are files to open
	opts.files = flag.Args()

	// Without a workspace, use the directory of the first file, then the
	// working directory
	if opts.workspace == "" && len(opts.files) > 0 {
		if abs, err := filepath.Abs(opts.files[0]); err == nil {
			opts.workspace = filepath.Dir(abs)
		}
	}
	if opts.workspace == "" {
		opts.workspace = "."
	}
	return opts
}

func printVersion() {
	fmt.Printf("fridayx %s\n", version)
	fmt.Printf("Commit: %s\n", commit)
	fmt.Printf("Built: %s\n", date)
}

// newFlagSet creates a subcommand flag set that also accepts the glog flags.
func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	flag.CommandLine.VisitAll(func(f *flag.Flag) {
		fs.Var(f.Value, f.Name, f.Usage)
	})
	return fs
}

func runServe(args []string) int {
	fs := newFlagSet("serve")
	configPath := fs.String("config", "", "Path to configuration file")
	fs.StringVar(configPath, "c", "", "Path to configuration file (shorthand)")
	listen := fs.String("listen", "", "Listen address (default from config)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: fridayx serve [options] [roots...]\n\n")
		fmt.Fprintf(os.Stderr, "Serves each root as a workspace over %s. Roots default to the working directory.\n\n", app.RPCPath)
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	log := logging.New(logging.Config{Level: level})
	defer logging.Flush()

	roots := fs.Args()
	if len(roots) == 0 {
		roots = []string{"."}
	}
	addr := *listen
	if addr == "" {
		addr = cfg.Backend.Listen
	}

	srv, err := app.NewServer(cfg, log, roots...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.ListenAndServe(ctx, addr); err != nil {
		log.Error("serve: %v", err)
		return 1
	}
	return 0
}

func runToken(args []string) int {
	fs := newFlagSet("token")
	configPath := fs.String("config", "", "Path to configuration file")
	fs.StringVar(configPath, "c", "", "Path to configuration file (shorthand)")
	subject := fs.String("subject", "fridayx", "Token subject")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: fridayx token [options]\n\n")
		fmt.Fprintf(os.Stderr, "Prints a client token signed with the configured backend secret.\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if cfg.Backend.Secret == "" {
		fmt.Fprintf(os.Stderr, "Error: backend.secret is not configured\n")
		return 1
	}

	token, err := remote.NewToken([]byte(cfg.Backend.Secret), *subject, time.Now(), *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Println(token)
	return 0
}
