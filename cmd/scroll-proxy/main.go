package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/eve-esi-scroll/internal/config"
	"github.com/Sternrassler/eve-esi-scroll/pkg/httpsource"
	"github.com/Sternrassler/eve-esi-scroll/pkg/logging"
	"github.com/Sternrassler/eve-esi-scroll/pkg/persist"
	"github.com/Sternrassler/eve-esi-scroll/pkg/ratelimit"
)

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "scroll-proxy",
		Short: "Serve paginated upstream lists as resumable scroll sessions",
		Long: `scroll-proxy keeps one pagination state machine per session in front of a
paginated HTTP upstream (ESI by default). Clients load, extend, refresh and
reset their list over HTTP; snapshots are kept in Redis when configured.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "path to YAML config file")
	rootCmd.AddCommand(newServeCommand(), newConfigCommand())
	return rootCmd
}

// flagOverrides applies explicitly set flags on top of file and environment values.
func flagOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	strs := map[string]*string{
		"listen":     &cfg.Server.Listen,
		"upstream":   &cfg.Upstream.BaseURL,
		"endpoint":   &cfg.Upstream.Endpoint,
		"mode":       &cfg.Upstream.Mode,
		"user-agent": &cfg.Upstream.UserAgent,
		"redis":      &cfg.Redis.Addr,
		"log-level":  &cfg.Logging.Level,
	}
	for name, field := range strs {
		if flags.Changed(name) {
			v, err := flags.GetString(name)
			if err != nil {
				return err
			}
			*field = v
		}
	}

	ints := map[string]*int{
		"page-size": &cfg.Scroll.PageSize,
		"threshold": &cfg.Scroll.Threshold,
	}
	for name, field := range ints {
		if flags.Changed(name) {
			v, err := flags.GetInt(name)
			if err != nil {
				return err
			}
			*field = v
		}
	}

	bools := map[string]*bool{
		"auto-load": &cfg.Scroll.AutoLoad,
		"pretty":    &cfg.Logging.Pretty,
	}
	for name, field := range bools {
		if flags.Changed(name) {
			v, err := flags.GetBool(name)
			if err != nil {
				return err
			}
			*field = v
		}
	}
	return nil
}

func addConfigFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("listen", "", "listen address (default :8080)")
	flags.String("upstream", "", "upstream base URL")
	flags.String("endpoint", "", "paginated upstream endpoint")
	flags.String("mode", "", "pagination mode: page or cursor")
	flags.String("user-agent", "", "User-Agent sent upstream")
	flags.String("redis", "", "Redis address; enables snapshot persistence and the shared error budget")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.Int("page-size", 0, "items per batch")
	flags.Int("threshold", 0, "distance from the end that triggers loading more")
	flags.Bool("auto-load", true, "load the first batch when a session is created")
	flags.Bool("pretty", false, "human-readable log output")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := flagOverrides(cmd, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			return enc.Close()
		},
	}
	addConfigFlags(cmd)
	return cmd
}

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the scroll session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	addConfigFlags(cmd)
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Logging.Level),
		Pretty: cfg.Logging.Pretty,
	}).With().Str("component", "proxy").Logger()

	clientCfg := httpsource.DefaultConfig(cfg.Upstream.BaseURL, cfg.Upstream.UserAgent)
	clientCfg.Timeout = cfg.Upstream.Timeout
	clientCfg.Retry.MaxRetries = cfg.Upstream.MaxRetries

	var store *persist.Store[Item]
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")

		store = persist.NewStore[Item](redisClient, cfg.Redis.Namespace, cfg.Redis.SnapshotTTL)
		clientCfg.Gate = ratelimit.NewTracker(redisClient,
			ratelimit.DefaultConfig(cfg.Redis.Namespace),
			logging.NewLogger("ratelimit"))
	} else {
		logger.Warn().Msg("No Redis configured - sessions are kept in memory only")
	}

	client, err := httpsource.New(clientCfg)
	if err != nil {
		return fmt.Errorf("create upstream client: %w", err)
	}

	srv := newServer(cfg, client, store, logger)
	defer srv.closeAll()

	httpServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.Server.Listen).
			Str("upstream", cfg.Upstream.BaseURL+cfg.Upstream.Endpoint).
			Str("mode", cfg.Upstream.Mode).
			Msg("Starting scroll proxy")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down scroll proxy")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
