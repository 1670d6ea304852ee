package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/saltyorg/routedb/internal/config"
	"github.com/saltyorg/routedb/internal/database"
	"github.com/saltyorg/routedb/internal/dbrouter"
	"github.com/saltyorg/routedb/internal/logging"
	"github.com/saltyorg/routedb/internal/metrics"
	"github.com/saltyorg/routedb/internal/monitor"
	"github.com/saltyorg/routedb/internal/tutorials"
	"github.com/saltyorg/routedb/internal/web"
	"github.com/saltyorg/routedb/internal/web/handlers"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// CLI flags
var (
	configPath  string
	port        int
	bind        string
	allowSubnet string
	verbosity   int

	migrateAll     bool
	maintainTarget string
	maintainVacuum bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "routedb",
		Short: "routedb - primary/replica routing tutorial service",
		Long:  `routedb serves a tutorial API and routes every database operation to the primary or replica pool selected for it.`,
		RunE:  run,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file (or set ROUTEDB_CONFIG env var)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")

	rootCmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP server port (overrides config and ROUTEDB_PORT)")
	rootCmd.Flags().StringVarP(&bind, "bind", "b", "", "IP address to bind to (e.g., 127.0.0.1, 0.0.0.0)")
	rootCmd.Flags().StringVarP(&allowSubnet, "allow-subnet", "a", "", "CIDR subnet allowed to connect (e.g., 192.168.1.0/24)")

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations to the primary, or every target when database.migrateAll is set",
		RunE:  runMigrate,
	}
	migrateCmd.Flags().BoolVar(&migrateAll, "all", false, "Migrate every configured target, for setups without replication")
	rootCmd.AddCommand(migrateCmd)

	maintainCmd := &cobra.Command{
		Use:   "maintain",
		Short: "Optimize or vacuum a SQLite pool",
		RunE:  runMaintain,
	}
	maintainCmd.Flags().StringVarP(&maintainTarget, "target", "t", string(dbrouter.Primary), "Target to maintain")
	maintainCmd.Flags().BoolVar(&maintainVacuum, "vacuum", false, "Run VACUUM after optimizing")
	rootCmd.AddCommand(maintainCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "targets",
		Short: "Ping every configured pool and print its statistics",
		RunE:  runTargets,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("routedb %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads file and environment settings, applies flags that were
// set explicitly and configures logging.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if configPath == "" {
		configPath = os.Getenv(config.EnvPrefix + "CONFIG")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port = port
	}
	if flags.Changed("bind") {
		cfg.Server.Bind = bind
	}
	if flags.Changed("allow-subnet") {
		cfg.Server.AllowSubnet = allowSubnet
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logging.Apply(cfg.Log, verbosity)
	return cfg, nil
}

func openDatabase(ctx context.Context, cfg *config.Config, opts ...dbrouter.RouterOption) (*database.DB, error) {
	openCtx, cancel := context.WithTimeout(ctx, cfg.Timeouts.Ping)
	defer cancel()
	return database.Open(openCtx, cfg.Database, opts...)
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	allowedNet, err := cfg.AllowedNet()
	if err != nil {
		return err
	}

	// Warn if binding to all interfaces without an allow list
	if (cfg.Server.Bind == "" || cfg.Server.Bind == "0.0.0.0" || cfg.Server.Bind == "::") && cfg.Server.AllowSubnet == "" {
		log.Warn().Msg("Server is accessible from all interfaces without subnet restrictions. Consider using --bind or --allow-subnet for security.")
	}

	log.Info().
		Str("version", version).
		Int("port", cfg.Server.Port).
		Str("bind", cfg.Server.Bind).
		Str("allow_subnet", cfg.Server.AllowSubnet).
		Str("default_target", cfg.Database.DefaultTarget).
		Msg("Starting routedb")

	routingMetrics := metrics.NewRoutingMetrics()

	db, err := openDatabase(context.Background(), cfg, dbrouter.WithObserver(routingMetrics))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := db.MigrateTargets(context.Background(), cfg.Database.MigrateAll); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	h := handlers.New(tutorials.New(db), db)
	h.SetVersionInfo(handlers.VersionInfo{Version: version, Commit: commit, Date: date})

	if cfg.Monitor.Enabled {
		poolMonitor := monitor.NewManager(db, routingMetrics, cfg.Monitor.Schedule)
		poolMonitor.SampleNow()
		if err := poolMonitor.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start pool monitor")
		} else {
			defer poolMonitor.Stop()
			h.SetMonitor(poolMonitor)
		}
	}

	server := web.NewServer(h, cfg.Server, cfg.Timeouts, allowedNet, promhttp.Handler())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}

	log.Info().Msg("routedb stopped")
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := openDatabase(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.MigrateTargets(cmd.Context(), migrateAll || cfg.Database.MigrateAll)
}

func runMaintain(cmd *cobra.Command, args []string) error {
	target, err := dbrouter.ParseTarget(maintainTarget)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := openDatabase(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	return dbrouter.Run(cmd.Context(), dbrouter.On(target), func(ctx context.Context) error {
		start := time.Now()
		if err := db.Optimize(ctx); err != nil {
			return err
		}
		if maintainVacuum {
			if err := db.Vacuum(ctx); err != nil {
				return err
			}
		}
		log.Info().
			Str("target", target.String()).
			Bool("vacuum", maintainVacuum).
			Dur("duration", time.Since(start)).
			Msg("Maintenance complete")
		return nil
	})
}

func runTargets(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := openDatabase(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	pings := db.Ping(cmd.Context())
	stats := db.Stats()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TARGET\tDEFAULT\tSTATUS\tOPEN\tIN USE\tIDLE\tWAIT COUNT")
	for _, target := range db.Targets() {
		status := "ok"
		if err := pings[target]; err != nil {
			status = err.Error()
		}
		s := stats[target]
		fmt.Fprintf(w, "%s\t%t\t%s\t%d\t%d\t%d\t%d\n",
			target, target == db.DefaultTarget(), status, s.OpenConnections, s.InUse, s.Idle, s.WaitCount)
	}
	return w.Flush()
}
