package services

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/conneroisu/sitepipe/internal/build"
	"github.com/conneroisu/sitepipe/internal/config"
	"github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/conneroisu/sitepipe/internal/server"
	"github.com/conneroisu/sitepipe/internal/watcher"
)

// LiveService builds once, then serves the output with live reload while
// watching the sources.
type LiveService struct {
	config   *config.Config
	logger   logging.Logger
	reporter errors.Reporter
}

// NewLiveService creates a live service. A nil reporter logs failures and
// rings the terminal bell.
func NewLiveService(cfg *config.Config, logger logging.Logger, reporter errors.Reporter) *LiveService {
	if logger == nil {
		logger = logging.Nop()
	}
	if reporter == nil {
		reporter = errors.NewConsoleReporter(logger, nil)
	}
	return &LiveService{config: cfg, logger: logger, reporter: reporter}
}

// LiveOptions contains options for the live process
type LiveOptions struct {
	// OnListening is called with the server URL once it accepts requests
	// and the watcher is registered.
	OnListening func(url string)
}

// Live runs series(html, styles, images, parallel(server, watch)) until
// ctx is cancelled or the process receives SIGINT or SIGTERM. Port
// exhaustion and watcher setup failures are returned.
func (s *LiveService) Live(ctx context.Context, opts LiveOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(server.Options{
		Root:         s.config.Paths.HTML.Dest,
		Host:         s.config.Server.Host,
		Port:         s.config.Server.Port,
		PortAttempts: s.config.Server.PortAttempts,
		Notify:       s.config.Server.Notify,
		Open:         s.config.Server.Open,
	}, s.logger)

	deps := build.Deps{
		Reporter:    s.reporter,
		Logger:      s.logger,
		Notifier:    srv,
		Concurrency: s.config.Concurrency,
	}
	st, err := newStages(s.config, deps)
	if err != nil {
		return err
	}

	fw, err := watcher.NewFileWatcher(st.table, s.config.Watch.Debounce, s.logger)
	if err != nil {
		return err
	}
	defer fw.Stop()

	dispatcher := watcher.NewDispatcher(s.reporter, s.logger)
	dispatcher.Register(st.html.Name(), st.html)
	dispatcher.Register(st.styles.Name(), st.styles)
	dispatcher.Register(st.images.Name(), st.images)

	serve := build.Func("server", func(ctx context.Context) error {
		if opts.OnListening != nil {
			go notifyListening(ctx, srv, fw, opts.OnListening)
		}
		return srv.Start(ctx)
	})
	watch := build.Func("watch", func(ctx context.Context) error {
		return dispatcher.Watch(ctx, fw)
	})

	steps := append(st.steps(), build.Parallel("dev", serve, watch))
	pipeline := build.Series("live", steps...)
	s.logger.Debug(ctx, "Running pipeline", "steps", pipeline.Describe())

	err = pipeline.Run(ctx)
	if err != nil && ctx.Err() != nil {
		// Interrupted during the initial build.
		return nil
	}
	return err
}

func notifyListening(ctx context.Context, srv *server.DevServer, fw *watcher.FileWatcher, fn func(url string)) {
	for _, ready := range []<-chan struct{}{srv.Ready(), fw.Ready()} {
		select {
		case <-ready:
		case <-ctx.Done():
			return
		}
	}
	fn(srv.URL())
}
