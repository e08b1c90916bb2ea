package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/burrow/pkg/client"
	"github.com/cuemby/burrow/pkg/health"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/spf13/cobra"
)

var agentCmd = &cobra.Command{
	Use:   "agent --node-id ID",
	Short: "Send heartbeats for a node until stopped",
	Long: `Run on (or for) a node to keep it alive. A node that sends no heartbeat
for longer than the server's failure threshold is failed and its pods are
rescheduled. The agent exits when the node is no longer registered.

With --check the agent runs local HTTP or TCP checks before every
heartbeat and withholds heartbeats once they fail --retries times in a
row, so a node whose workload is down gets failed and drained.`,
	RunE: runAgent,
}

func init() {
	agentCmd.Flags().String("node-id", "", "ID of the node to keep alive")
	agentCmd.Flags().Duration("interval", 10*time.Second, "Heartbeat interval")
	agentCmd.Flags().StringSlice("check", nil, "Local check gating heartbeats (http://..., https://... or tcp://host:port)")
	agentCmd.Flags().Int("retries", health.DefaultRetries, "Consecutive failed check rounds before heartbeats stop")
	agentCmd.Flags().String("log-level", "info", "Log level: debug, info, warn, error")
	_ = agentCmd.MarkFlagRequired("node-id")
}

// heartbeater is the client surface the agent needs
type heartbeater interface {
	Heartbeat(nodeID string) error
}

func runAgent(cmd *cobra.Command, args []string) error {
	nodeID, _ := cmd.Flags().GetString("node-id")
	interval, _ := cmd.Flags().GetDuration("interval")
	level, _ := cmd.Flags().GetString("log-level")
	specs, _ := cmd.Flags().GetStringSlice("check")
	retries, _ := cmd.Flags().GetInt("retries")
	if interval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}

	var gate *health.Gate
	if len(specs) > 0 {
		checkers := make([]health.Checker, 0, len(specs))
		for _, spec := range specs {
			checker, err := health.ParseCheck(spec)
			if err != nil {
				return err
			}
			checkers = append(checkers, checker)
		}
		gate = health.NewGate(retries, checkers...)
	}

	log.Init(log.Config{Level: log.ParseLevel(level)})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return heartbeatLoop(ctx, newClient(cmd), nodeID, interval, gate)
}

// heartbeatLoop sends a heartbeat immediately and then every interval.
// A closed gate skips the heartbeat. Transient errors are logged and
// retried on the next tick; it returns an error once the node is unknown
// to the server.
func heartbeatLoop(ctx context.Context, hb heartbeater, nodeID string, interval time.Duration, gate *health.Gate) error {
	logger := log.WithNodeID(nodeID)
	logger.Info().Dur("interval", interval).Msg("Heartbeat agent started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if gate != nil && !gate.Evaluate(ctx) {
			logger.Warn().
				Int("failures", gate.Failures()).
				Str("reason", gate.LastResult().Message).
				Msg("Local checks failing, withholding heartbeat")
			if !waitTick(ctx, ticker.C) {
				logger.Info().Msg("Heartbeat agent stopped")
				return nil
			}
			continue
		}

		err := hb.Heartbeat(nodeID)
		switch {
		case client.IsNotFound(err):
			return fmt.Errorf("node %s is not registered", nodeID)
		case err != nil:
			logger.Warn().Err(err).Msg("Heartbeat failed")
		default:
			logger.Debug().Msg("Heartbeat sent")
		}

		if !waitTick(ctx, ticker.C) {
			logger.Info().Msg("Heartbeat agent stopped")
			return nil
		}
	}
}

func waitTick(ctx context.Context, tick <-chan time.Time) bool {
	select {
	case <-ctx.Done():
		return false
	case <-tick:
		return true
	}
}
