// Command digraph edits and inspects DGML directed graphs.
//
// Usage:
//
//	digraph [-config path] <command> [flags] [args]
//
// Commands:
//
//	serve     run the HTTP editing API and SSE event stream
//	stats     print node, pin and edge counts of a document
//	validate  check a document for dangling edges and bad pin indices
//	export    write a document as dgml, yaml or json
//	convert   convert between formats chosen by file extension
//	recover   list or restore autosaved documents
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"digraph/internal/codec"
	"digraph/internal/config"
	"digraph/internal/domain"
	"digraph/internal/editor"
	"digraph/internal/handler"
	"digraph/internal/hub"
	"digraph/internal/logging"
	"digraph/internal/persistence"
	"digraph/internal/repository/sqlite"
	"digraph/internal/watcher"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var errUsage = errors.New("usage: digraph [-config path] <serve|stats|validate|export|convert|recover> [flags] [args]")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "digraph:", err)
		os.Exit(1)
	}
}

// app carries what every subcommand needs
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	out    io.Writer
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("digraph", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", "", "config file (default: search $DIGRAPH_CONFIG, ./digraph.yaml, XDG, /etc)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() == 0 {
		return errUsage
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a := &app{cfg: cfg, logger: logger, out: out}
	name, rest := fs.Arg(0), fs.Args()[1:]
	switch name {
	case "serve":
		return a.serve(rest)
	case "stats":
		return a.stats(rest)
	case "validate":
		return a.validate(rest)
	case "export":
		return a.export(rest)
	case "convert":
		return a.convert(rest)
	case "recover":
		return a.recover(rest)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, _, err := config.LoadFromPath(path)
		return cfg, err
	}
	cfg, _, err := config.Load()
	return cfg, err
}

func (a *app) graphOptions() []domain.GraphOption {
	return []domain.GraphOption{
		domain.WithEdgeIDScheme(domain.EdgeIDScheme(a.cfg.Graph.EdgeIDScheme)),
		domain.WithDefaultPinCapacity(a.cfg.Graph.DefaultPinCapacity),
	}
}

func (a *app) fileStore() *persistence.FileStore {
	return persistence.NewFileStore(
		persistence.WithExtensions(a.cfg.Persistence.StructureExt, a.cfg.Persistence.LayoutExt),
		persistence.WithGraphOptions(a.graphOptions()...),
		persistence.WithLogger(a.logger),
	)
}

// readSnapshot loads a document in any supported format. DGML documents go
// through the file store so their layout overlay is applied.
func (a *app) readSnapshot(path string) (*domain.Snapshot, error) {
	store := a.fileStore()
	if store.IsDocument(path) {
		g, err := store.Load(path)
		if err != nil {
			return nil, err
		}
		return g.Snapshot(), nil
	}

	c, err := codec.Lookup(codec.FormatFromPath(path), a.graphOptions()...)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, err := c.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return s, nil
}

func (a *app) serve(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", a.cfg.Server.Addr, "HTTP listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var w *watcher.Watcher
	opts := []editor.Option{
		editor.WithLogger(a.logger),
		editor.WithDocumentStore(a.fileStore()),
		editor.WithGraphOptions(a.graphOptions()...),
		editor.WithHistoryLimit(a.cfg.History.Limit),
	}
	if a.cfg.Autosave.Enabled {
		repo, err := sqlite.New(a.cfg.Autosave.Database)
		if err != nil {
			return err
		}
		defer repo.Close()
		opts = append(opts, editor.WithSnapshotStore(repo))
		a.logger.Info("autosave enabled", zap.String("database", a.cfg.Autosave.Database))
	}

	var session *editor.Session
	if a.cfg.Watch.Enabled {
		var err error
		w, err = watcher.New(func(path string) {
			if _, err := session.ExternalChange(path); err != nil {
				a.logger.Warn("reload after external change failed", zap.String("path", path), zap.Error(err))
			}
		}, watcher.WithDebounce(a.cfg.Watch.Debounce.Duration()), watcher.WithLogger(a.logger))
		if err != nil {
			return err
		}
		opts = append(opts, editor.WithPathObserver(func(paths []string) {
			if err := w.Set(paths...); err != nil {
				a.logger.Warn("failed to watch document", zap.Strings("paths", paths), zap.Error(err))
			}
		}))
	}
	session = editor.NewSession(opts...)

	if fs.NArg() > 0 {
		if err := session.Open(fs.Arg(0)); err != nil {
			return err
		}
	}

	sseHub := hub.New(hub.WithLogger(a.logger))
	sub := sseHub.Attach(session.Events())
	defer sub.Unsubscribe()

	mux := http.NewServeMux()
	handler.NewGraphHandler(session, handler.WithLogger(a.logger)).Register(mux)
	mux.Handle("GET /events", sseHub)

	server := &http.Server{
		Addr:         *addr,
		Handler:      handler.Chain(mux, handler.Recover(a.logger), handler.Logger(a.logger)),
		ReadTimeout:  a.cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: a.cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("server listening", zap.String("addr", *addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := sseHub.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if w != nil {
		g.Go(func() error {
			if err := w.Watch(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (a *app) stats(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: stats <file>", errUsage)
	}
	s, err := a.readSnapshot(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "nodes: %d\npins:  %d\nedges: %d\n", len(s.Nodes), s.PinCount(), len(s.Edges))
	return nil
}

func (a *app) validate(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: validate <file>", errUsage)
	}
	s, err := a.readSnapshot(args[0])
	if err != nil {
		return err
	}
	g, err := domain.FromSnapshot(s, a.graphOptions()...)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", args[0], err)
	}
	if err := g.Validate(); err != nil {
		return fmt.Errorf("invalid %s: %w", args[0], err)
	}
	fmt.Fprintf(a.out, "%s: ok\n", args[0])
	return nil
}

func (a *app) export(args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	format := fs.String("format", "yaml", "output format: "+strings.Join(codec.Formats(), ", "))
	output := fs.String("o", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: export [-format f] [-o file] <file>", errUsage)
	}

	c, err := codec.Lookup(*format)
	if err != nil {
		return err
	}
	s, err := a.readSnapshot(fs.Arg(0))
	if err != nil {
		return err
	}
	if *output == "" {
		return c.Export(s, a.out)
	}
	f, err := os.Create(*output)
	if err != nil {
		return err
	}
	if err := c.Export(s, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (a *app) convert(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: convert <in> <out>", errUsage)
	}
	in, out := args[0], args[1]

	s, err := a.readSnapshot(in)
	if err != nil {
		return err
	}
	if err := a.writeSnapshot(s, out); err != nil {
		return err
	}
	a.logger.Info("converted", zap.String("from", in), zap.String("to", out))
	return nil
}

// writeSnapshot writes s to path in the format named by its extension. DGML
// targets get a layout overlay as well.
func (a *app) writeSnapshot(s *domain.Snapshot, path string) error {
	store := a.fileStore()
	if store.IsDocument(path) {
		g, err := domain.FromSnapshot(s, a.graphOptions()...)
		if err != nil {
			return err
		}
		_, err = store.Save(g, path)
		return err
	}

	c, err := codec.Lookup(codec.FormatFromPath(path))
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := c.Export(s, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (a *app) recover(args []string) error {
	fs := flag.NewFlagSet("recover", flag.ContinueOnError)
	db := fs.String("db", a.cfg.Autosave.Database, "autosave database")
	key := fs.String("key", editor.UntitledKey, "document key to restore")
	output := fs.String("o", "", "write the restored document here; without it, list documents")
	if err := fs.Parse(args); err != nil {
		return err
	}

	repo, err := sqlite.New(*db)
	if err != nil {
		return err
	}
	defer repo.Close()

	ctx := context.Background()
	if *output == "" {
		docs, err := repo.ListDocuments(ctx)
		if err != nil {
			return err
		}
		for _, d := range docs {
			fmt.Fprintf(a.out, "%s\t%d nodes\t%d edges\t%s\n", d.Key, d.Nodes, d.Edges, d.SavedAt.Format(time.RFC3339))
		}
		return nil
	}

	s, err := repo.LoadSnapshot(ctx, *key)
	if err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("recover %s: %w", *key, editor.ErrNothingToRecover)
	}
	if abs, err := filepath.Abs(*output); err == nil {
		*output = abs
	}
	if err := a.writeSnapshot(s, *output); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "restored %s to %s\n", *key, *output)
	return nil
}
