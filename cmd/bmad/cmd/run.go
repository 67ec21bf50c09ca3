package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/core/api"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/core/auth"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/core/config"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/core/configstore"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/core/db"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/core/publish"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/core/server"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/pipeline"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/processor"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/registry"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/sensor"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/thresholds"
)

const Version = "0.1.0"

const shutdownTimeout = 10 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sensor pipeline",
	Long: `Read sentences from stdin, a file or a UDP socket and keep live sensor state.
Optionally serve the gRPC sensor API, Prometheus metrics and event publishers.
SIGHUP reloads thresholds from the profile or database.`,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("input", "", "read sentences from file (default stdin)")
	runCmd.Flags().String("udp", "", "listen for sentences on UDP address")
	runCmd.Flags().String("profile", "", "YAML threshold profile")
	runCmd.Flags().Bool("api", false, "serve the gRPC sensor API")
	runCmd.Flags().String("host", "0.0.0.0", "gRPC server host")
	runCmd.Flags().Int("port", 50051, "gRPC server port")
	runCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on address")
}

// applyRunFlags lets explicitly set flags override the loaded config.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("input") {
		cfg.Input.Path, _ = flags.GetString("input")
	}
	if flags.Changed("udp") {
		cfg.Input.UDPAddr, _ = flags.GetString("udp")
	}
	if flags.Changed("profile") {
		cfg.Alarms.Profile, _ = flags.GetString("profile")
	}
	if flags.Changed("api") {
		cfg.API.Enabled, _ = flags.GetBool("api")
	}
	if flags.Changed("host") {
		cfg.API.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.API.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr, _ = flags.GetString("metrics-addr")
	}
	if dbURL != "" {
		cfg.DBURL = dbURL
	}
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyRunFlags(cmd, cfg)
	if cfg.Input.Path != "" && cfg.Input.UDPAddr != "" {
		return fmt.Errorf("--input and --udp are mutually exclusive")
	}

	logger, err := newLogger(cmd.ErrOrStderr(), logLevel, logFormat)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var queries *db.Queries
	if cfg.DBURL != "" {
		database, err := db.Open(cfg.DBURL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()
		if err := requireMigrated(database); err != nil {
			return err
		}
		if queries, err = db.LoadQueries(database); err != nil {
			return fmt.Errorf("failed to load queries: %w", err)
		}
	}

	source, err := loadConfigSource(ctx, cfg, queries)
	if err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	reg := registry.New(registry.Options{
		SeriesPolicy: sensor.SeriesPolicy{
			InitialCapacity: cfg.History.InitialCapacity,
			MaxCapacity:     cfg.History.MaxCapacity,
			Window:          cfg.History.Window,
		},
		ClaimTTL: cfg.Pipeline.ClaimTTL,
		Resolver: thresholds.NewResolver(logger),
		Config:   source,
	})
	proc := processor.New(processor.Options{Talkers: cfg.Talkers, Owners: reg})
	runner := pipeline.NewRunner(reg, proc, pipeline.Options{
		QueueSize:            cfg.Pipeline.QueueSize,
		StaleCheckInterval:   cfg.Pipeline.StaleCheckInterval,
		AllowMissingChecksum: cfg.Pipeline.AllowMissingChecksum,
		Logger:               logger,
		Metrics:              pipeline.NewMetrics(promReg),
	})
	defer runner.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(gctx) })

	serving := false

	if cfg.API.Enabled {
		if err := startAPI(gctx, g, cfg, reg, queries, logger); err != nil {
			return err
		}
		serving = true
	}

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{Addr: cfg.Metrics.Addr, ReadHeaderTimeout: 5 * time.Second}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{Registry: promReg}))
		srv.Handler = mux
		g.Go(func() error { return serveHTTP(gctx, srv) })
		logger.Info("metrics listening", "addr", cfg.Metrics.Addr)
		serving = true
	}

	sinks, err := startPublishers(gctx, g, cfg.Publish, logger)
	if err != nil {
		return err
	}
	if len(sinks) > 0 {
		fanout := publish.NewFanout(sinks, publish.Options{
			Buffer:  cfg.Publish.Buffer,
			Logger:  logger,
			Metrics: publish.NewMetrics(promReg),
		})
		sub := fanout.Attach(reg)
		defer reg.Unsubscribe(sub)
		g.Go(func() error { return fanout.Run(gctx) })
		serving = true
	}

	g.Go(func() error { return watchReload(gctx, cfg, queries, reg, logger) })

	g.Go(func() error {
		err := readInput(gctx, runner, cfg.Input, cmd.InOrStdin())
		if err == nil && cfg.Input.UDPAddr == "" && !serving {
			// Finite input and nothing else to serve: drain and exit.
			cancel()
		}
		return err
	})

	logger.Info("bmad started", "version", Version,
		"queue_size", cfg.Pipeline.QueueSize, "api", cfg.API.Enabled, "publishers", len(sinks))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("bmad stopped", "sensors", len(reg.Keys()), "queue_dropped", runner.Queue().Dropped())
	return nil
}

// requireMigrated refuses to start against a database with pending migrations.
func requireMigrated(database *sqlx.DB) error {
	statuses, err := db.MigrateStatus(database)
	if err != nil {
		return fmt.Errorf("failed to check migrations: %w", err)
	}
	for _, s := range statuses {
		if !s.Applied {
			return fmt.Errorf("migration %s not applied - run 'bmad migrate' first", s.ID)
		}
	}
	return nil
}

// loadConfigSource builds the threshold provider. A profile file takes
// precedence over the database; with neither, no thresholds are configured.
func loadConfigSource(ctx context.Context, cfg *config.Config, queries *db.Queries) (*configstore.Static, error) {
	switch {
	case cfg.Alarms.Profile != "":
		src, err := configstore.LoadProfile(cfg.Alarms.Profile, cfg.Alarms.DefaultStaleAfter)
		if err != nil {
			return nil, fmt.Errorf("failed to load threshold profile: %w", err)
		}
		return src, nil
	case queries != nil:
		src, err := configstore.LoadSQL(ctx, queries, cfg.Alarms.DefaultStaleAfter)
		if err != nil {
			return nil, fmt.Errorf("failed to load thresholds from database: %w", err)
		}
		return src, nil
	default:
		return configstore.NewStatic(), nil
	}
}

// watchReload re-reads thresholds on SIGHUP. A failed reload keeps the
// previous configuration.
func watchReload(ctx context.Context, cfg *config.Config, queries *db.Queries, reg *registry.Registry, logger *slog.Logger) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			src, err := loadConfigSource(ctx, cfg, queries)
			if err != nil {
				logger.Error("threshold reload failed, keeping previous configuration", "error", err)
				continue
			}
			reg.Reconfigure(src)
			logger.Info("thresholds reloaded", "entries", src.Len())
		}
	}
}

func startAPI(ctx context.Context, g *errgroup.Group, cfg *config.Config, reg *registry.Registry, queries *db.Queries, logger *slog.Logger) error {
	service, err := api.NewSensorService(reg, cfg.API.WatchBuffer, logger)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	authenticator, err := newAuthenticator(queries, logger)
	if err != nil {
		return err
	}

	grpcServer, err := server.NewGRPCServer(cfg.API, service, authenticator)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	g.Go(func() error {
		if err := grpcServer.Start(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		service.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return grpcServer.Shutdown(shutdownCtx)
	})

	logger.Info("sensor API listening", "host", cfg.API.Host, "port", cfg.API.Port, "auth", authenticator != nil)
	return nil
}

// newAuthenticator returns nil when no secrets are configured, leaving the API open.
func newAuthenticator(queries *db.Queries, logger *slog.Logger) (*auth.Authenticator, error) {
	secrets, err := config.HMACSecrets()
	if err != nil {
		return nil, fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		logger.Warn("no HMAC secrets configured, sensor API is unauthenticated (set BM_HMAC_SECRET)")
		return nil, nil
	}
	if queries == nil {
		return nil, fmt.Errorf("API key authentication needs a database (--db-url)")
	}
	return auth.NewAuthenticator(secrets, queries), nil
}

// startPublishers connects every configured sink. On failure the sinks
// already connected are closed.
func startPublishers(ctx context.Context, g *errgroup.Group, cfg config.PublishConfig, logger *slog.Logger) ([]publish.Sink, error) {
	var sinks []publish.Sink
	fail := func(err error) ([]publish.Sink, error) {
		for _, s := range sinks {
			_ = s.Close()
		}
		return nil, err
	}

	if cfg.RedisAddr != "" {
		sink, err := publish.NewRedisSink(ctx, cfg.RedisAddr, cfg.RedisChannel)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, sink)
		logger.Info("publishing to redis", "addr", cfg.RedisAddr, "channel", cfg.RedisChannel)
	}
	if cfg.NATSURL != "" {
		sink, err := publish.NewNATSSink(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, sink)
		logger.Info("publishing to nats", "url", cfg.NATSURL, "subject", cfg.NATSSubject)
	}
	if cfg.MQTTBroker != "" {
		sink, err := publish.NewMQTTSink(cfg.MQTTBroker, cfg.MQTTTopic, byte(cfg.MQTTQoS), logger)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, sink)
		logger.Info("publishing to mqtt", "broker", cfg.MQTTBroker, "topic", cfg.MQTTTopic, "qos", cfg.MQTTQoS)
	}
	if cfg.WebsocketAddr != "" {
		hub := publish.NewWebsocketHub(logger, 0)
		sinks = append(sinks, hub)
		g.Go(func() error { return hub.ListenAndServe(ctx, cfg.WebsocketAddr) })
		logger.Info("websocket feed listening", "addr", cfg.WebsocketAddr, "path", "/events")
	}
	return sinks, nil
}

// serveHTTP runs srv until ctx is done.
func serveHTTP(ctx context.Context, srv *http.Server) error {
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server %s: %w", srv.Addr, err)
	}
	return nil
}

// readInput feeds the runner from UDP, a file or stdin. File and stdin
// return at EOF.
func readInput(ctx context.Context, runner *pipeline.Runner, in config.InputConfig, stdin io.Reader) error {
	switch {
	case in.UDPAddr != "":
		return runner.ListenUDP(ctx, in.UDPAddr)
	case in.Path != "":
		f, err := os.Open(in.Path)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		stop := context.AfterFunc(ctx, func() { f.Close() })
		defer stop()
		if err := runner.ReadLines(ctx, f); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	default:
		// A blocked stdin read cannot be interrupted; stop waiting for it instead.
		done := make(chan error, 1)
		go func() { done <- runner.ReadLines(ctx, stdin) }()
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return nil
		}
	}
}
