package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/TobiSchelling/resultsdash/internal/cache"
	"github.com/TobiSchelling/resultsdash/internal/config"
	"github.com/TobiSchelling/resultsdash/internal/dashboard"
	"github.com/TobiSchelling/resultsdash/internal/logging"
	"github.com/TobiSchelling/resultsdash/internal/query"
	"github.com/TobiSchelling/resultsdash/internal/server"
	"github.com/TobiSchelling/resultsdash/internal/warehouse"
)

var version = "dev"

var (
	verbose     bool
	configPath  string
	secretsPath string
	cfg         *config.Config
	logger      *zap.SugaredLogger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "resultsdash",
	Short:   "Results-based management dashboard",
	Long:    "resultsdash renders the upstream results and enabling environment dashboard from warehouse data.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = logging.Nop()

		// Skip config loading for commands that work without one
		switch cmd.Name() {
		case "init", "version", "seed":
			logger = logging.New(os.Stderr, os.Stderr, levelFor(zapcore.InfoLevel))
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		level, err := logging.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logger = logging.New(os.Stderr, os.Stderr, levelFor(level))
		logger.Debugw("loaded config", "path", path)
		return nil
	},
}

func levelFor(level zapcore.Level) zapcore.Level {
	if verbose {
		return zapcore.DebugLevel
	}
	return level
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringVarP(&secretsPath, "secrets", "s", "", "Path to secrets file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(seedCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("resultsdash", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/resultsdash/",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		files := []struct {
			name string
			data []byte
			mode os.FileMode
		}{
			{"config.yaml", config.DefaultConfigYAML, 0o644},
			{"secrets.toml", config.ExampleSecretsTOML, 0o600},
		}
		for _, f := range files {
			target := filepath.Join(config.ConfigDir(), f.name)
			if _, err := os.Stat(target); err == nil {
				fmt.Printf("Already exists: %s\n", target)
				continue
			}
			if err := os.WriteFile(target, f.data, f.mode); err != nil {
				return fmt.Errorf("writing %s: %w", f.name, err)
			}
			fmt.Printf("Created: %s\n", target)
		}

		fmt.Println("Edit secrets.toml to add warehouse credentials, or run 'resultsdash seed' for local demo data.")
		return nil
	},
}

// stack is everything a render pass needs, wired from config and secrets.
type stack struct {
	provider *warehouse.Provider
	executor *query.Executor
	builder  *dashboard.Builder
}

func newStack(ctx context.Context, reg prometheus.Registerer) (*stack, error) {
	path, err := config.ResolveSecretsPath(secretsPath)
	if err != nil {
		return nil, err
	}
	secrets, err := config.LoadSecrets(path)
	if err != nil {
		return nil, err
	}

	provider := warehouse.NewProvider(secrets.Connections, logger)
	// Fail fast on a broken profile instead of on the first page view.
	conn, err := provider.Get(cfg.Dashboard.Connection)
	if err != nil {
		provider.Close()
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		provider.Close()
		return nil, fmt.Errorf("connecting to %q: %w", conn.Name(), err)
	}

	executor := query.NewExecutor(
		provider.Source(cfg.Dashboard.Connection),
		cache.New[*warehouse.Table](nil, cfg.Dashboard.CacheTTL.Duration),
		query.WithLogger(logger),
		query.WithMetrics(query.NewMetrics(reg)),
	)
	return &stack{
		provider: provider,
		executor: executor,
		builder:  dashboard.NewBuilder(executor, cfg.Dashboard, logger),
	}, nil
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		st, err := newStack(cmd.Context(), reg)
		if err != nil {
			return err
		}
		defer st.provider.Close()

		srv, err := server.New(st.builder, reg, logger)
		if err != nil {
			return err
		}

		if servePort > 0 {
			cfg.Server.Port = servePort
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Dashboard at http://%s\n", cfg.Server.Addr())
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, srv, cfg.Server.Addr(), logger)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (overrides config)")
}

// --- status command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query the warehouse once and print the dashboard figures",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := newStack(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer st.provider.Close()

		view, err := st.builder.Build(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Println(view.Title)
		fmt.Printf("Connection: %s (cache ttl %s)\n", cfg.Dashboard.Connection, st.executor.TTL())
		fmt.Printf("Data as of: %s\n", view.DataAsOf.Local().Format("2 Jan 2006 15:04:05"))
		for _, q := range []struct{ name, text string }{
			{"impact", cfg.Dashboard.Queries.Impact},
			{"policy", cfg.Dashboard.Queries.Policy},
		} {
			if age, ok := st.executor.Age(q.text); ok {
				fmt.Printf("  %s query cached %s ago\n", q.name, age.Round(time.Millisecond))
			}
		}
		fmt.Println()

		fmt.Println("Indicators:")
		for _, c := range view.Cards {
			if c.Missing {
				fmt.Printf("  %-34s %s (no data)\n", c.Label, c.Value)
				continue
			}
			fmt.Printf("  %-34s %-8s %s %s\n", c.Label, c.Value, arrow(c.Direction), c.Delta)
		}

		fmt.Println("\nPolicy progress:")
		for _, b := range view.Chart.Bars {
			fmt.Printf("  %-40s %5s%%  %s\n", b.Label, dashboard.FormatNumber(b.Value), b.Text)
		}

		fmt.Printf("\n%s: %s\n", view.Progress.Label, view.Progress.Text)
		return nil
	},
}

func arrow(d dashboard.Direction) string {
	switch d {
	case dashboard.DirectionUp:
		return "↑"
	case dashboard.DirectionDown:
		return "↓"
	default:
		return "→"
	}
}

// --- seed command ---

var seedCmd = &cobra.Command{
	Use:   "seed [path]",
	Short: "Create a local SQLite warehouse with sample data",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join(config.DataDir(), "warehouse.db")
		if len(args) == 1 {
			path = config.ExpandPath(args[0])
		}

		if err := warehouse.SeedDemo(path, logger); err != nil {
			return err
		}

		fmt.Printf("Demo warehouse ready: %s\n", path)
		fmt.Println("To use it, point a sqlite profile at this path and set in config.yaml:")
		fmt.Println("  connection: local")
		fmt.Println("  queries:")
		fmt.Printf("    impact: %q\n", warehouse.DemoQueries.Impact)
		fmt.Printf("    policy: %q\n", warehouse.DemoQueries.Policy)
		return nil
	},
}
