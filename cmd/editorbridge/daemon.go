package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kingrea/editorbridge/internal/bridge"
	"github.com/kingrea/editorbridge/internal/catalog"
	"github.com/kingrea/editorbridge/internal/collect"
	"github.com/kingrea/editorbridge/internal/command"
	"github.com/kingrea/editorbridge/internal/config"
	"github.com/kingrea/editorbridge/internal/host"
	"github.com/kingrea/editorbridge/internal/hostui"
	"github.com/kingrea/editorbridge/internal/logbook"
	"github.com/kingrea/editorbridge/internal/logging"
	"github.com/kingrea/editorbridge/internal/process"
	"github.com/kingrea/editorbridge/internal/sink"
)

type options struct {
	projectDir      string
	configPath      string
	addresses       []string
	workers         int
	verbose         bool
	mirror          io.Writer
	shutdownTimeout time.Duration
}

// daemon is the assembled process: every component is built up front so a
// bad config fails before anything listens.
type daemon struct {
	cfg     *config.Config
	logger  *logging.Logger
	loop    *host.Loop
	pool    *process.Pool
	index   *sink.SQLiteIndex
	orch    *collect.Orchestrator
	server  *bridge.Server
	timeout time.Duration
	ready   chan struct{}
}

func newDaemon(opts options) (*daemon, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	if opts.workers > 0 {
		cfg.Project.Collect.Workers = opts.workers
	}

	logger, err := logging.New(cfg.ProjectDir)
	if err != nil {
		return nil, err
	}
	if opts.mirror != nil {
		logger.Mirror(opts.mirror)
	}
	journal, err := logbook.New(cfg.JournalPath())
	if err != nil {
		_ = logger.Close()
		return nil, err
	}
	out, index, err := buildSink(cfg)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	loop := host.New()
	pool := process.NewPool(cfg.Project.Collect.Workers)
	root := cfg.ContentRoot()
	orch := collect.New(loop,
		catalog.FileSource{Root: root},
		catalog.ExtensionClassifier{InspectPrefabs: true},
		process.NewFingerprinter(pool),
		out,
		collect.WithLogger(logger),
		collect.WithJournal(journal),
		collect.WithLimit(cfg.Project.Collect.Limit),
		collect.WithHistory(cfg.Project.Collect.History),
	)

	registry := command.NewRegistry()
	registry.MustRegister(command.Navigate(loop, hostui.NewCatalogSelector(root), hostui.ForegroundFor(cfg.Project.Foreground.Command), logger))
	registry.MustRegister(command.Collect(orch, command.CollectOptions{
		DefaultOutput: cfg.OutputDir(),
		Resolve:       cfg.Resolve,
	}))

	settings := bridge.SettingsFromConfig(cfg)
	if len(opts.addresses) > 0 {
		settings.Addresses = opts.addresses
	}
	server := bridge.NewServer(settings,
		bridge.WithRegistry(registry),
		bridge.WithRuns(orch),
		bridge.WithLogger(logger),
	)
	timeout := opts.shutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &daemon{
		cfg:     cfg,
		logger:  logger,
		loop:    loop,
		pool:    pool,
		index:   index,
		orch:    orch,
		server:  server,
		timeout: timeout,
		ready:   make(chan struct{}),
	}, nil
}

func loadConfig(opts options) (*config.Config, error) {
	if opts.configPath != "" {
		return config.LoadFile(opts.projectDir, opts.configPath)
	}
	if err := config.InitDir(opts.projectDir); err != nil {
		return nil, err
	}
	return config.Load(opts.projectDir)
}

// buildSink assembles the configured sinks in config order. The SQLite
// index is returned separately so it can be closed on exit.
func buildSink(cfg *config.Config) (sink.Sink, *sink.SQLiteIndex, error) {
	compression, err := sink.ParseCompression(cfg.Project.Sink.Compression)
	if err != nil {
		return nil, nil, err
	}
	var (
		sinks sink.Multi
		index *sink.SQLiteIndex
	)
	for _, name := range cfg.Project.Sink.Kinds {
		kind, err := sink.ParseKind(name)
		if err != nil {
			return nil, nil, err
		}
		switch kind {
		case sink.KindJSON:
			sinks = append(sinks, sink.JSONFile{Compression: compression})
		case sink.KindSQLite:
			if index == nil {
				index = sink.NewSQLiteIndex()
				sinks = append(sinks, index)
			}
		}
	}
	return sinks, index, nil
}

// serve runs until ctx ends. The bridge is drained first so parked collect
// requests can still be finalized on the loop, then the loop and pool stop.
func (d *daemon) serve(ctx context.Context) error {
	defer d.logger.Close()
	if d.index != nil {
		defer d.index.Close()
	}

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()
	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error { return d.loop.Run(groupCtx) })
	group.Go(func() error { return d.pool.Run(groupCtx) })

	serveErr := d.server.Start(context.Background())
	switch {
	case errors.Is(serveErr, bridge.ErrDisabled):
		d.logger.Printf("editorbridge: bridge disabled, idling until signalled")
	case serveErr != nil:
		stopRun()
		_ = group.Wait()
		return serveErr
	default:
		d.logger.Printf("editorbridge: serving %s (content root %s)", strings.Join(d.server.Addrs(), ", "), d.cfg.ContentRoot())
	}
	close(d.ready)

	select {
	case <-ctx.Done():
	case <-groupCtx.Done():
	}
	d.logger.Printf("editorbridge: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	var errs []error
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown bridge: %w", err))
	}
	stopRun()
	if err := group.Wait(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
