// Command clipkeep keeps a bounded history of what is copied on watched pages.
//
// Usage:
//
//	clipkeep -config clipkeep.yaml                  # watch configured pages, serve the panel
//	clipkeep -url https://example.com/ -serve       # watch one page, serve the panel
//	clipkeep -list [-page-url https://example.com/] # print the history and exit
//	clipkeep -export out.doc [-format md]           # write the export document and exit
//	clipkeep -restore page.html -page-url <url>     # print page.html with stored highlights
//	clipkeep -mcp                                   # MCP tools over stdio
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
	"sync"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/clipkeep/clipkeep"
	"github.com/hazyhaar/clipkeep/export"
)

type pageList []string

func (p *pageList) String() string     { return fmt.Sprint(*p) }
func (p *pageList) Set(v string) error { *p = append(*p, v); return nil }

type options struct {
	configPath string
	dbPath     string
	storage    string
	pages      pageList
	serve      bool
	addr       string
	list       bool
	pageURL    string
	exportPath string
	format     string
	restore    string
	mcp        bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to clipkeep.yaml config file")
	flag.StringVar(&o.dbPath, "db", "", "path to SQLite database")
	flag.StringVar(&o.storage, "storage", "", "storage backend: sqlite, file, memory")
	flag.Var(&o.pages, "url", "page to watch (repeatable)")
	flag.BoolVar(&o.serve, "serve", false, "serve the history panel")
	flag.StringVar(&o.addr, "addr", "", "panel listen address")
	flag.BoolVar(&o.list, "list", false, "print the history as JSON and exit")
	flag.StringVar(&o.pageURL, "page-url", "", "page URL for -list filtering and -restore")
	flag.StringVar(&o.exportPath, "export", "", "write the export document to this path (- for stdout) and exit")
	flag.StringVar(&o.format, "format", "doc", "export format: doc, md")
	flag.StringVar(&o.restore, "restore", "", "HTML file to re-highlight from the history and print")
	flag.BoolVar(&o.mcp, "mcp", false, "serve MCP tools over stdio")
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, o); err != nil {
		logger.Error("clipkeep: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, o options) error {
	cfg, err := resolveConfig(o)
	if err != nil {
		return err
	}

	k, err := clipkeep.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer k.Close()

	// One-shot: list.
	if o.list {
		list, err := k.Store().List(ctx)
		if o.pageURL != "" {
			list, err = k.Store().ForURL(ctx, o.pageURL)
		}
		if err != nil {
			return fmt.Errorf("list: %w", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	// One-shot: export.
	if o.exportPath != "" {
		return writeExport(ctx, k, o.exportPath, o.format)
	}

	// One-shot: restore highlights into a saved page.
	if o.restore != "" {
		if o.pageURL == "" {
			return errors.New("restore: -page-url is required")
		}
		f, err := os.Open(o.restore)
		if err != nil {
			return err
		}
		defer f.Close()
		out, n, err := k.RestoreDocument(ctx, f, o.pageURL)
		if err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		logger.Info("clipkeep: restored", "highlights", n)
		_, err = fmt.Fprintln(os.Stdout, out)
		return err
	}

	if o.mcp {
		srv := mcp.NewServer(&mcp.Implementation{Name: "clipkeep", Version: "1.0.0"}, nil)
		k.RegisterMCP(srv)
		logger.Info("clipkeep: mcp on stdio")
		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			return fmt.Errorf("mcp: %w", err)
		}
		return nil
	}

	// Daemon mode.
	if len(cfg.Pages) == 0 && !o.serve {
		return errors.New("nothing to do: pass -url, -serve or a config with pages")
	}

	var wg sync.WaitGroup
	for _, u := range cfg.Pages {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := k.Watch(ctx, u); err != nil {
				logger.Error("clipkeep: watch", "url", u, "error", err)
			}
		}()
	}

	if o.serve {
		if err := servePanel(ctx, logger, k, cfg.Panel.Addr); err != nil {
			return err
		}
	} else {
		<-ctx.Done()
	}
	logger.Info("clipkeep: shutting down")
	wg.Wait()
	return nil
}

func servePanel(ctx context.Context, logger *slog.Logger, k *clipkeep.Keeper, addr string) error {
	p, err := k.Panel()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           p.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("clipkeep: panel listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("panel: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("clipkeep: panel shutdown", "error", err)
	}
	return nil
}

func writeExport(ctx context.Context, k *clipkeep.Keeper, path, format string) error {
	f, err := export.ParseFormat(format)
	if err != nil {
		return err
	}
	doc, name, err := k.Export(ctx, f)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if path == "-" {
		_, err = os.Stdout.Write(doc)
		return err
	}
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s (suggested name %s)\n", path, name)
	return nil
}

func resolveConfig(o options) (*clipkeep.Config, error) {
	cfg := &clipkeep.Config{}
	if o.configPath != "" {
		var err error
		if cfg, err = clipkeep.LoadConfigFile(o.configPath); err != nil {
			return nil, err
		}
	}
	if o.dbPath != "" {
		cfg.DBPath = o.dbPath
	}
	if o.storage != "" {
		cfg.Storage = o.storage
	}
	if o.addr != "" {
		cfg.Panel.Addr = o.addr
	}
	cfg.Pages = append(cfg.Pages, o.pages...)
	return cfg, nil
}
