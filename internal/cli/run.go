package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/buildtall-systems/printq/internal/config"
	"github.com/buildtall-systems/printq/internal/db"
	"github.com/buildtall-systems/printq/internal/documents"
	"github.com/buildtall-systems/printq/internal/identity"
	"github.com/buildtall-systems/printq/internal/lifecycle"
	"github.com/buildtall-systems/printq/internal/metrics"
	"github.com/buildtall-systems/printq/internal/realtime"
	"github.com/buildtall-systems/printq/internal/session"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the shop console",
	Long: `Start an interactive shop console as the given user. The role comes from
the configured admin and operator lists, then the staff roster; anyone else is
a customer. Type help for the commands your role may use.`,
	RunE: runConsole,
}

func init() {
	runCmd.Flags().String("as", "", "email of the user to act as")
	_ = runCmd.MarkFlagRequired("as")
	rootCmd.AddCommand(runCmd)
}

func runConsole(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := newLogger(cfg)

	loc, err := cfg.Revenue.Location()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	transport, err := newTransport(cfg.Realtime, logger)
	if err != nil {
		return err
	}
	client := realtime.NewClient(transport, realtime.WithLogger(logger), realtime.WithMetrics(m))
	defer func() { _ = client.Close() }()

	database, err := db.Open(cfg.Database.Path, db.WithPublisher(client), db.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = database.Close() }()

	if err := database.Migrate(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("database ready", "path", cfg.Database.Path, "driver", cfg.Realtime.Driver)

	docs, err := documents.NewDir(cfg.Documents.Dir)
	if err != nil {
		return fmt.Errorf("opening document store: %w", err)
	}

	if cfg.Metrics.Addr != "" {
		srv := serveMetrics(cfg.Metrics.Addr, reg, logger)
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	sched, err := scheduleDigest(ctx, cfg.Revenue.DigestSchedule, database, loc, logger)
	if err != nil {
		return err
	}
	if sched != nil {
		defer sched.Stop()
	}

	resolver := identity.NewResolver(cfg.Roles.Admins, cfg.Roles.Operators, database)
	as, _ := cmd.Flags().GetString("as")
	actor, err := resolver.Resolve(ctx, as)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", as, err)
	}

	c := &console{
		deps: session.Deps{
			Store:     database,
			Client:    client,
			Documents: docs,
			Tokens:    lifecycle.NewTokenIssuer(cfg.Tokens.TTL),
			Logger:    logger,
			Metrics:   m,
			Location:  loc,
		},
		roster:   database,
		resolver: resolver,
		provider: identity.NewStaticProvider(actor),
		loc:      loc,
		in:       cmd.InOrStdin(),
		out:      cmd.OutOrStdout(),
		logger:   logger,
	}
	return c.run(ctx)
}

func newTransport(cfg config.RealtimeConfig, logger *slog.Logger) (realtime.Transport, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return realtime.NewMemory(), nil
	case config.DriverRedis:
		return realtime.NewRedis(realtime.NewRedisClient(cfg.Redis.Addr), cfg.Redis.ChannelPrefix, logger), nil
	case config.DriverKafka:
		return realtime.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix, logger), nil
	default:
		return nil, fmt.Errorf("unknown realtime driver %q", cfg.Driver)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener stopped", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return srv
}
