package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshdurbin/offgate/internal/cachestore"
	cacheleveldb "github.com/joshdurbin/offgate/internal/cachestore/leveldb"
	cachememory "github.com/joshdurbin/offgate/internal/cachestore/memory"
	"github.com/joshdurbin/offgate/internal/config"
	"github.com/joshdurbin/offgate/internal/metrics"
	"github.com/joshdurbin/offgate/internal/netstatus"
	queuesqlite "github.com/joshdurbin/offgate/internal/queue/sqlite"
	"github.com/joshdurbin/offgate/internal/service"
	"github.com/joshdurbin/offgate/internal/strategy"
	"github.com/joshdurbin/offgate/internal/transport/client"
	httpTransport "github.com/joshdurbin/offgate/internal/transport/http"
)

var rootCmd = &cobra.Command{
	Use:   "offgate",
	Short: "An offline-resilience gateway for the DevOps dashboard",
	Long:  "A caching gateway that serves dashboard reads through cache-first, network-first and stale-while-revalidate strategies, and queues writes for replay while the upstream is unreachable",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway",
	RunE:  runServe,
}

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Client commands for interacting with the gateway admin API",
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show gateway state, connectivity and queue depth",
	RunE:  runStatus,
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List pending mutations awaiting replay",
	RunE:  runQueue,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Trigger a queue drain",
	RunE:  runSync,
}

var forgetCmd = &cobra.Command{
	Use:   "forget [ID]",
	Short: "Drop a pending mutation without replaying it",
	Args:  cobra.ExactArgs(1),
	RunE:  runForget,
}

func init() {
	// Serve command flags
	serveCmd.Flags().StringP("port", "p", "8090", "Gateway port")
	serveCmd.Flags().String("upstream", "http://localhost:8080", "Upstream dashboard API base URL")
	serveCmd.Flags().String("routes-file", "", "YAML file with strategy route tables and precache list")
	serveCmd.Flags().String("db-path", "offgate.db", "Mutation queue database file path")
	serveCmd.Flags().String("cache-backend", "memory", "Cache store backend (memory or leveldb)")
	serveCmd.Flags().String("cache-dir", "offgate-cache", "Cache store directory (leveldb backend)")

	// Replay configuration flags
	serveCmd.Flags().Int("max-retries", 3, "Replay attempts per queued mutation")
	serveCmd.Flags().Duration("retry-delay", time.Second, "Delay between failed replay attempts")
	serveCmd.Flags().Duration("replay-timeout", 10*time.Second, "Timeout per replay attempt")

	// Background task flags
	serveCmd.Flags().Duration("sweep-interval", time.Minute, "Data cache expiry sweep interval")
	serveCmd.Flags().Duration("probe-interval", 15*time.Second, "Connectivity probe interval (0 disables probing)")

	// Logging configuration flags
	serveCmd.Flags().BoolP("verbose", "v", false, "Enable verbose logging (HTTP requests/responses)")

	// Client command flags
	clientCmd.PersistentFlags().StringP("server-url", "u", "http://localhost:8090", "Gateway URL")

	// Add subcommands
	clientCmd.AddCommand(statusCmd, queueCmd, syncCmd, forgetCmd)
	rootCmd.AddCommand(serveCmd, clientCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Get configuration from CLI flags
	port, _ := cmd.Flags().GetString("port")
	upstream, _ := cmd.Flags().GetString("upstream")
	routesFile, _ := cmd.Flags().GetString("routes-file")
	dbPath, _ := cmd.Flags().GetString("db-path")
	cacheBackend, _ := cmd.Flags().GetString("cache-backend")
	cacheDir, _ := cmd.Flags().GetString("cache-dir")
	maxRetries, _ := cmd.Flags().GetInt("max-retries")
	retryDelay, _ := cmd.Flags().GetDuration("retry-delay")
	replayTimeout, _ := cmd.Flags().GetDuration("replay-timeout")
	sweepInterval, _ := cmd.Flags().GetDuration("sweep-interval")
	probeInterval, _ := cmd.Flags().GetDuration("probe-interval")
	verbose, _ := cmd.Flags().GetBool("verbose")

	// Create configuration
	cfg, err := config.New(port, upstream, dbPath, cacheBackend, cacheDir, routesFile,
		maxRetries, retryDelay, replayTimeout, sweepInterval, probeInterval, verbose)
	if err != nil {
		return fmt.Errorf("failed to create configuration: %w", err)
	}

	log.Printf("Starting offgate with config: port=%s upstream=%s cache=%s",
		cfg.Server.Port, cfg.Server.UpstreamURL, cfg.Cache.Backend)

	// Initialize the mutation queue
	mutationQueue, err := queuesqlite.New(cfg.Queue.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize mutation queue: %w", err)
	}

	// Initialize the cache store
	var store cachestore.Store
	switch cfg.Cache.Backend {
	case "leveldb":
		store, err = cacheleveldb.New(cfg.Cache.Dir)
		if err != nil {
			return fmt.Errorf("failed to initialize cache store: %w", err)
		}
		log.Printf("Using leveldb cache store at %s", cfg.Cache.Dir)
	default:
		store = cachememory.New()
		log.Printf("Using in-memory cache store")
	}

	// Initialize remaining collaborators and the gateway
	m := metrics.New()
	observer := netstatus.New()
	fetcher := strategy.NewUpstreamFetcher(cfg.Server.UpstreamURL)
	gateway := service.New(cfg, store, mutationQueue, fetcher, observer, m)

	defer func() {
		if err := gateway.Close(); err != nil {
			log.Printf("Error closing gateway: %v", err)
		}
	}()

	// Install and activate: precache static assets, then drop partitions
	// from older cache versions
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	installCtx, installCancel := context.WithTimeout(ctx, 30*time.Second)
	defer installCancel()

	if err := gateway.Install(installCtx); err != nil {
		return fmt.Errorf("failed to install: %w", err)
	}
	if err := gateway.Activate(installCtx); err != nil {
		return fmt.Errorf("failed to activate: %w", err)
	}

	// Start probing, the sweeper and reconnect-triggered sync
	if err := gateway.Start(ctx); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	// Create and start HTTP server
	server := httpTransport.NewServer(gateway, m.Registry, cfg.Server.Port, cfg.Logging.Verbose)

	// Set up graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in a goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-sigChan:
		log.Printf("Received signal %v, shutting down gracefully...", sig)

		// Create shutdown context with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		// Shutdown server
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error during server shutdown: %v", err)
		}
	}

	log.Println("Gateway stopped")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	serverURL, _ := cmd.Flags().GetString("server-url")
	c := client.NewClient(serverURL)
	commands := client.NewCommands(c)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return commands.Status(ctx)
}

func runQueue(cmd *cobra.Command, args []string) error {
	serverURL, _ := cmd.Flags().GetString("server-url")
	c := client.NewClient(serverURL)
	commands := client.NewCommands(c)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return commands.Queue(ctx)
}

func runSync(cmd *cobra.Command, args []string) error {
	serverURL, _ := cmd.Flags().GetString("server-url")
	c := client.NewClient(serverURL)
	commands := client.NewCommands(c)

	// Sync can take a while with a deep queue and slow upstream
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	return commands.Sync(ctx)
}

func runForget(cmd *cobra.Command, args []string) error {
	serverURL, _ := cmd.Flags().GetString("server-url")
	c := client.NewClient(serverURL)
	commands := client.NewCommands(c)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return commands.Forget(ctx, args[0])
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
