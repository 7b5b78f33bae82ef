package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	httpApi "github.com/kd17290/workflow-automation/internal/api"
	"github.com/kd17290/workflow-automation/internal/cache"
	"github.com/kd17290/workflow-automation/internal/config"
	"github.com/kd17290/workflow-automation/internal/db"
	"github.com/kd17290/workflow-automation/internal/messaging"
	"github.com/kd17290/workflow-automation/internal/service"
	"github.com/kd17290/workflow-automation/internal/storage"
	"github.com/kd17290/workflow-automation/internal/worker"

	// Import connector packages to register them.
	_ "github.com/kd17290/workflow-automation/pkg/connector/delay"
	_ "github.com/kd17290/workflow-automation/pkg/connector/webhook"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "workflow-automation",
	Short: "Workflow automation service",
	Long: `Workflow automation service.

Users register declarative, linear workflows composed of typed steps;
triggers create runs that execute asynchronously on a worker fleet, with
final state durably recorded and queryable.`,
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server with an embedded worker",
	Long: `Start the API server with an embedded worker.

The server will:
- Connect to the configured storage backend (and run migrations on Postgres)
- Serve the API under /api/v1
- Consume trigger events and execute workflow runs in-process
- Provide health checks at /health`,
	Run: func(cmd *cobra.Command, args []string) {
		run(true, true)
	},
}

var apiServerCmd = &cobra.Command{
	Use:   "api-server",
	Short: "Start the API server only",
	Long: `Start the API server without an embedded worker.

This mode is designed for horizontal scaling of API servers separate from
worker processes; runs stay PENDING until a worker picks them up.`,
	Run: func(cmd *cobra.Command, args []string) {
		run(true, false)
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start a workflow worker",
	Long: `Start a worker process that consumes trigger events from the bus,
executes workflow runs, and publishes completion events. Workers scale
horizontally by joining the same consumer group.`,
	Run: func(cmd *cobra.Command, args []string) {
		run(false, true)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(apiServerCmd)
	rootCmd.AddCommand(workerCmd)

	serverCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	apiServerCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	// Bind PORT to the flag of the command that actually runs; a second
	// BindPFlag on the same key would replace the first.
	bindPort := func(cmd *cobra.Command, args []string) {
		viper.BindPFlag("PORT", cmd.Flags().Lookup("port"))
	}
	serverCmd.PreRun = bindPort
	apiServerCmd.PreRun = bindPort
}

// run wires storage, cache, bus, service, and the selected frontends, then
// blocks until a shutdown signal drains everything.
func run(withAPI, withWorker bool) {
	cfg := config.Load()

	var conn *sql.DB
	if storage.StorageType(cfg.StorageBackend) == storage.TypePostgres {
		var err error
		conn, err = db.Connect(cfg.Postgres.DSN())
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer conn.Close()
	}

	backends, err := storage.NewBackends(storage.StorageType(cfg.StorageBackend), cfg.DataDir, conn)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	c := cache.New(cfg.Redis.Addr())
	defer c.Close()

	producer := messaging.NewProducer(cfg.Kafka.BootstrapServers)
	defer func() {
		if err := producer.Stop(); err != nil {
			log.Printf("Warning: stop producer: %v", err)
		}
	}()

	svc := service.New(backends, c, producer, cfg.Kafka.TopicWorkflowTrigger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workerDone := make(chan struct{})
	if withWorker {
		consumer := messaging.NewConsumer(
			cfg.Kafka.BootstrapServers,
			cfg.Kafka.TopicWorkflowTrigger,
			cfg.Kafka.ConsumerGroup,
		)
		wrk := worker.New(consumer, producer, svc, cfg.Kafka.TopicWorkflowCompleted)
		go func() {
			defer close(workerDone)
			if err := wrk.Start(ctx); err != nil {
				log.Printf("Workflow worker error: %v", err)
			}
		}()
	} else {
		close(workerDone)
	}

	var server *http.Server
	if withAPI {
		server = &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      httpApi.NewRouter(svc, cfg.DefaultPageLimit),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			log.Printf("server listening on :%s", cfg.Port)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Server failed to start: %v", err)
			}
		}()
	}

	// Wait for interrupt signal to gracefully shut down.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	// Stop pulling new messages; an in-flight run completes normally.
	cancel()
	<-workerDone

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server forced to shutdown: %v", err)
		} else {
			log.Println("Server exited gracefully")
		}
	}
}
