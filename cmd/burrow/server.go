package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/manager"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/runtime"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the control plane",
	Long: `Run the burrow control plane: the HTTP API, the failure detector,
the pending pod retry loop and, if configured, the gRPC health service,
the event journal and the Kafka event sink.

Configuration is read from --config (YAML), then BURROW_* environment
variables and PORT, then flags.`,
	RunE: runServer,
}

func init() {
	serverCmd.Flags().StringP("config", "c", "", "Path to a YAML configuration file")
	serverCmd.Flags().String("api-addr", "", "HTTP API listen address (default :3001)")
	serverCmd.Flags().String("grpc-addr", "", "gRPC health listen address (default :3002)")
	serverCmd.Flags().String("runtime", "", "Node runtime: docker, containerd or none")
	serverCmd.Flags().String("journal", "", "Path of the bbolt event journal")
	serverCmd.Flags().StringSlice("kafka-brokers", nil, "Kafka brokers receiving cluster events")
	serverCmd.Flags().String("log-level", "", "Log level: debug, info, warn, error")
	serverCmd.Flags().Bool("log-json", false, "Log as JSON instead of console output")
	serverCmd.Flags().Bool("strict", false, "Panic on any cluster invariant violation")
}

func loadServerConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()

	flags := cmd.Flags()
	if flags.Changed("api-addr") {
		cfg.API.Addr, _ = flags.GetString("api-addr")
	}
	if flags.Changed("grpc-addr") {
		cfg.API.GRPCAddr, _ = flags.GetString("grpc-addr")
	}
	if flags.Changed("runtime") {
		cfg.Runtime.Type, _ = flags.GetString("runtime")
	}
	if flags.Changed("journal") {
		cfg.Journal.Path, _ = flags.GetString("journal")
	}
	if flags.Changed("kafka-brokers") {
		cfg.Kafka.Brokers, _ = flags.GetStringSlice("kafka-brokers")
	}
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-json") {
		cfg.Log.JSON, _ = flags.GetBool("log-json")
	}
	if flags.Changed("strict") {
		cfg.Strict, _ = flags.GetBool("strict")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newRuntime(cfg config.RuntimeConfig) (runtime.Provisioner, error) {
	switch cfg.Type {
	case config.RuntimeDocker:
		return runtime.NewDockerRuntime(cfg.Image)
	case config.RuntimeContainerd:
		return runtime.NewContainerdRuntime(cfg.Socket, cfg.Namespace, cfg.Image)
	default:
		return runtime.NewSimulatedRuntime(), nil
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadServerConfig(cmd)
	if err != nil {
		return err
	}

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})
	logger := log.WithComponent("server")
	metrics.SetVersion(Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(cfg.Runtime)
	if err != nil {
		metrics.UpdateComponent("runtime", false, err.Error())
		return fmt.Errorf("failed to initialize %s runtime: %w", cfg.Runtime.Type, err)
	}
	defer rt.Close()
	metrics.UpdateComponent("runtime", true, rt.Name())

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	// Sinks are closed only after their forwarder has exited
	forwardCtx, stopForwarding := context.WithCancel(context.Background())
	defer stopForwarding()

	// A nil *Journal must not become a non-nil EventSource
	var eventSource api.EventSource
	if cfg.Journal.Path != "" {
		journal, err := storage.OpenJournal(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer closeAfterForward(stopForwarding, broker.Forward(forwardCtx, journal, logger), journal)()
		eventSource = journal
		logger.Info().Str("path", cfg.Journal.Path).Msg("Event journal enabled")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		sink, err := events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return err
		}
		defer closeAfterForward(stopForwarding, broker.Forward(forwardCtx, sink, logger), sink)()
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Kafka event sink enabled")
	}

	mgr := manager.NewManager(&manager.Config{
		Runtime:          rt,
		Broker:           broker,
		ProbeInterval:    cfg.Timing.ProbeInterval,
		RetryInterval:    cfg.Timing.RetryInterval,
		FailureThreshold: cfg.Timing.FailureThreshold,
		StrictInvariants: cfg.Strict,
	})
	mgr.Start(ctx)
	defer mgr.Stop()

	var observers []metrics.Observer
	if cfg.API.GRPCAddr != "" {
		grpcHealth := api.NewHealthServer()
		if err := grpcHealth.Start(cfg.API.GRPCAddr); err != nil {
			return err
		}
		defer grpcHealth.Stop()
		observers = append(observers, grpcHealth.Observe)
	}

	collector := metrics.NewCollector(mgr, cfg.Timing.MetricsInterval, observers...)
	collector.Start()
	defer collector.Stop()

	server := api.NewServer(mgr, eventSource)
	if err := server.Start(cfg.API.Addr, cfg.API.PortFallback); err != nil {
		metrics.UpdateComponent("api", false, err.Error())
		return err
	}
	metrics.UpdateComponent("api", true, server.Addr())

	logger.Info().
		Str("api", server.Addr()).
		Str("runtime", rt.Name()).
		Dur("failure_threshold", cfg.Timing.FailureThreshold).
		Msg("Control plane running")
	fmt.Printf("✓ Burrow is running on %s. Press Ctrl+C to stop.\n", server.Addr())

	<-ctx.Done()
	fmt.Println("\nShutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP API did not shut down cleanly")
	}
	metrics.UpdateComponent("api", false, "shutting down")
	return nil
}

// closeAfterForward returns a func that cancels forwarding, waits for the
// forwarder to exit and only then closes the sink
func closeAfterForward(stop context.CancelFunc, done <-chan struct{}, sink io.Closer) func() {
	return func() {
		stop()
		<-done
		_ = sink.Close()
	}
}
