package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"modelrunner/internal/config"
	"modelrunner/internal/httpapi"
	"modelrunner/internal/manager"
)

const shutdownTimeout = 5 * time.Second

// fnServe is swapped in tests.
var fnServe = serve

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Serve the HTTP API",
		Example: "  modelrunner serve --addr :8080 --registry model_registry.json",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return fnServe(ctx, a.cfg, a.log)
		},
	}
	fs := cmd.Flags()
	b := a.flags
	b.str(fs, "addr", func(c *config.Config) *string { return &c.Addr }, "HTTP listen address")
	b.list(fs, "cors-origins", func(c *config.Config) *[]string { return &c.CORSOrigins }, "Allowed CORS origins; enables CORS when set")
	b.float(fs, "generate-rps", func(c *config.Config) *float64 { return &c.GenerateRPS }, "Rate limit for /generate in requests per second (0 = unlimited)")
	b.num(fs, "generate-burst", func(c *config.Config) *int { return &c.GenerateBurst }, "Burst allowed above --generate-rps")
	b.num(fs, "generate-timeout-sec", func(c *config.Config) *int { return &c.GenerateTimeoutSec }, "Deadline for one /generate request (0 = none)")
	b.str(fs, "request-log", func(c *config.Config) *string { return &c.RequestLog }, "Per-request log level: off|error|info|debug")
	b.str(fs, "nats-url", func(c *config.Config) *string { return &c.NATSURL }, "Publish manager events to this NATS server")
	b.str(fs, "nats-subject-prefix", func(c *config.Config) *string { return &c.NATSSubjectPrefix }, "Subject prefix for published events")
	return cmd
}

// serve listens on cfg.Addr and runs the API until ctx is done.
func serve(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	return runServer(ctx, cfg, log, ln)
}

// runServer serves on ln until ctx is done, then drains requests and unloads
// every runner.
func runServer(ctx context.Context, cfg config.Config, log zerolog.Logger, ln net.Listener) error {
	pub, closePub := eventPublisher(cfg, log)
	defer closePub()

	mcfg := managerConfig(cfg, log)
	mcfg.Publisher = pub
	mgr := manager.New(mcfg)
	n := mgr.LoadRegistry()

	httpapi.SetLogger(log)
	if cfg.RequestLog != "" {
		httpapi.SetDefaultRequestLogLevel(cfg.RequestLog)
	}
	httpapi.SetCORSOptions(len(cfg.CORSOrigins) > 0, cfg.CORSOrigins, nil, nil)
	httpapi.SetGenerateRateLimit(cfg.GenerateRPS, cfg.GenerateBurst)
	httpapi.SetGenerateTimeout(time.Duration(cfg.GenerateTimeoutSec) * time.Second)
	httpapi.SetBaseContext(ctx)

	srv := &http.Server{
		Handler:           httpapi.NewMux(mgr),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Str("registry", cfg.RegistryPath).Int("models", n).Msg("server event=listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
	}

	log.Info().Msg("server event=shutdown")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("server event=shutdown_error")
	}
	if err := mgr.Close(); err != nil {
		log.Warn().Err(err).Msg("server event=unload_error")
	}
	if serveErr != nil {
		return fmt.Errorf("serve: %w", serveErr)
	}
	return nil
}

// eventPublisher always logs events at debug level and also forwards them to
// NATS when a server is configured. A NATS connection failure is logged and
// the service runs without it.
func eventPublisher(cfg config.Config, log zerolog.Logger) (manager.EventPublisher, func()) {
	pubs := manager.MultiPublisher{logPublisher{log: log}}
	if cfg.NATSURL == "" {
		return pubs, func() {}
	}
	np, err := manager.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, log)
	if err != nil {
		log.Warn().Err(err).Str("url", cfg.NATSURL).Msg("server event=nats_unavailable")
		return pubs, func() {}
	}
	log.Info().Str("url", cfg.NATSURL).Msg("server event=nats_connected")
	return append(pubs, np), func() {
		if err := np.Close(); err != nil {
			log.Debug().Err(err).Msg("server event=nats_close_error")
		}
	}
}

// logPublisher writes manager events to the process log.
type logPublisher struct {
	log zerolog.Logger
}

func (p logPublisher) Publish(e manager.Event) {
	ev := p.log.Debug().Str("event", e.Name)
	if e.ModelID != "" {
		ev = ev.Str("model_id", e.ModelID)
	}
	if len(e.Fields) > 0 {
		ev = ev.Fields(e.Fields)
	}
	ev.Msg("manager event=published")
}
