package serverrun

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cfgpkg "github.com/idlab-discover/pointcast/internal/config"
	"github.com/idlab-discover/pointcast/internal/runtime"
	httpserver "github.com/idlab-discover/pointcast/internal/server/http"
	logpkg "github.com/idlab-discover/pointcast/pkg/log"
)

// Options for the serve command.
type Options struct {
	HTTPAddr string
	Config   cfgpkg.Config
}

// Run starts the control plane and blocks until ctx is cancelled, then
// drains jobs and tears the runtime down.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := opts.Config
	if opts.HTTPAddr != "" {
		cfg.HTTPAddr = opts.HTTPAddr
	}

	formatter := logpkg.Formatter(&logpkg.TextFormatter{})
	if cfg.LogFormat == "json" {
		formatter = &logpkg.JSONFormatter{}
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(logpkg.ParseLevel(cfg.LogLevel)),
		logpkg.WithFormatter(formatter),
	)

	rt, err := runtime.Open(runtime.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.Info("starting pointcast server",
		logpkg.Str("http", cfg.HTTPAddr),
		logpkg.Str("flute", cfg.Flute.Addr),
		logpkg.Str("datasets", cfg.DatasetsRoot))

	srv := httpserver.New(rt)
	defer srv.Close()
	return srv.ListenAndServe(sctx, cfg.HTTPAddr)
}
