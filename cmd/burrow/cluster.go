package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cuemby/burrow/pkg/client"
	"github.com/spf13/cobra"
)

func newClient(cmd *cobra.Command) *client.Client {
	addr, _ := cmd.Flags().GetString("api")
	return client.NewClient(addr)
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}

// Node commands
var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Manage nodes",
}

var nodeAddCmd = &cobra.Command{
	Use:   "add --cpu N",
	Short: "Provision a node offering N CPU cores",
	RunE: func(cmd *cobra.Command, args []string) error {
		cores, _ := cmd.Flags().GetFloat64("cpu")

		node, err := newClient(cmd).AddNode(cores)
		if err != nil {
			return fmt.Errorf("failed to add node: %w", err)
		}
		fmt.Printf("✓ Node added: %s (%.2f cores)\n", node.ID, node.TotalCPUCores)
		return nil
	},
}

var nodeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List nodes in the cluster",
	RunE: func(cmd *cobra.Command, args []string) error {
		nodes, err := newClient(cmd).ListNodes()
		if err != nil {
			return fmt.Errorf("failed to list nodes: %w", err)
		}
		if len(nodes) == 0 {
			fmt.Println("No nodes")
			return nil
		}

		w := newTable()
		fmt.Fprintln(w, "ID\tSTATUS\tCPU (AVAIL/TOTAL)\tPODS\tCONTAINER")
		for _, node := range nodes {
			fmt.Fprintf(w, "%s\t%s\t%.2f/%.2f\t%d\t%s\n",
				node.ID, node.Status, node.AvailableCPUCores, node.TotalCPUCores, len(node.Pods), dash(node.ContainerID))
		}
		return w.Flush()
	},
}

var nodeGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show the detailed status of a node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		detail, err := newClient(cmd).GetNode(args[0])
		if err != nil {
			return fmt.Errorf("failed to get node: %w", err)
		}

		fmt.Printf("ID:         %s\n", detail.ID)
		fmt.Printf("Status:     %s\n", detail.Status)
		fmt.Printf("CPU:        %.2f used, %.2f available, %.2f total\n",
			detail.CPU.Used, detail.CPU.Available, detail.CPU.Total)
		fmt.Printf("Container:  %s\n", detail.ContainerID)
		if detail.LastHeartbeat != nil {
			fmt.Printf("Heartbeat:  %s\n", detail.LastHeartbeat.Format(time.RFC3339))
		}
		if len(detail.Pods) > 0 {
			fmt.Printf("Pods:       %s\n", strings.Join(detail.Pods, ", "))
		}
		return nil
	},
}

var nodeRemoveCmd = &cobra.Command{
	Use:     "rm ID",
	Aliases: []string{"remove"},
	Short:   "Remove a node and reschedule its pods",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newClient(cmd).RemoveNode(args[0])
		if err != nil {
			return fmt.Errorf("failed to remove node: %w", err)
		}
		fmt.Printf("✓ %s\n", resp.Message)
		if len(resp.OrphanedPods) > 0 {
			fmt.Printf("  Rescheduled %d of %d pods, %d pending\n",
				resp.Rescheduled, len(resp.OrphanedPods), resp.Pending)
		}
		return nil
	},
}

func init() {
	nodeCmd.AddCommand(nodeAddCmd)
	nodeCmd.AddCommand(nodeListCmd)
	nodeCmd.AddCommand(nodeGetCmd)
	nodeCmd.AddCommand(nodeRemoveCmd)

	nodeAddCmd.Flags().Float64("cpu", 0, "CPU cores the node offers")
	_ = nodeAddCmd.MarkFlagRequired("cpu")
}

// Pod commands
var podCmd = &cobra.Command{
	Use:   "pod",
	Short: "Manage pods",
}

var podCreateCmd = &cobra.Command{
	Use:   "create --cpu N",
	Short: "Create a pod requesting N CPU cores",
	RunE: func(cmd *cobra.Command, args []string) error {
		cores, _ := cmd.Flags().GetFloat64("cpu")

		resp, err := newClient(cmd).CreatePod(cores)
		if err != nil {
			return fmt.Errorf("failed to create pod: %w", err)
		}
		if resp.NodeID == nil {
			fmt.Printf("✓ Pod created: %s (pending, no node has %.2f free cores)\n", resp.Pod.ID, cores)
			return nil
		}
		fmt.Printf("✓ Pod created: %s (node %s)\n", resp.Pod.ID, *resp.NodeID)
		return nil
	},
}

var podListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pods",
	RunE: func(cmd *cobra.Command, args []string) error {
		pods, err := newClient(cmd).ListPods()
		if err != nil {
			return fmt.Errorf("failed to list pods: %w", err)
		}
		if len(pods) == 0 {
			fmt.Println("No pods")
			return nil
		}

		w := newTable()
		fmt.Fprintln(w, "ID\tSTATUS\tCPU\tNODE\tNODE STATUS")
		for _, pod := range pods {
			host, hostStatus := "-", "-"
			if pod.Bound() {
				host = pod.HostID()
			}
			if pod.NodeStatus != nil {
				hostStatus = string(*pod.NodeStatus)
			}
			fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%s\n", pod.ID, pod.Status, pod.RequiredCPUCores, host, hostStatus)
		}
		return w.Flush()
	},
}

var podRemoveCmd = &cobra.Command{
	Use:     "rm ID",
	Aliases: []string{"delete"},
	Short:   "Delete a pod and release its cores",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := newClient(cmd).DeletePod(args[0])
		if err != nil {
			return fmt.Errorf("failed to delete pod: %w", err)
		}
		fmt.Printf("✓ %s\n", msg)
		return nil
	},
}

func init() {
	podCmd.AddCommand(podCreateCmd)
	podCmd.AddCommand(podListCmd)
	podCmd.AddCommand(podRemoveCmd)

	podCreateCmd.Flags().Float64("cpu", 0, "CPU cores the pod requires")
	_ = podCreateCmd.MarkFlagRequired("cpu")
}

var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat NODE_ID",
	Short: "Send a single heartbeat for a node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient(cmd).Heartbeat(args[0]); err != nil {
			return fmt.Errorf("heartbeat failed: %w", err)
		}
		fmt.Printf("✓ Heartbeat recorded for %s\n", args[0])
		return nil
	},
}

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "Show cluster-wide capacity",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := newClient(cmd).Resources()
		if err != nil {
			return fmt.Errorf("failed to get resources: %w", err)
		}
		fmt.Printf("Nodes:  %d (%d healthy)\n", res.NodeCount, res.HealthyNodes)
		fmt.Printf("CPU:    %.2f available of %.2f\n", res.AvailableCPUCores, res.TotalCPUCores)
		fmt.Printf("Pods:   %d (%d pending)\n", res.PodCount, res.PendingPods)
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent cluster events from the journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		list, err := newClient(cmd).Events(limit)
		if err != nil {
			return fmt.Errorf("failed to get events: %w", err)
		}
		if len(list) == 0 {
			fmt.Println("No events (is the journal enabled?)")
			return nil
		}

		w := newTable()
		fmt.Fprintln(w, "TIME\tTYPE\tNODE\tPOD\tMESSAGE")
		for _, e := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				e.Timestamp.Format(time.RFC3339), e.Type, dash(e.NodeID), dash(e.PodID), e.Message)
		}
		return w.Flush()
	},
}

func init() {
	eventsCmd.Flags().Int("limit", 20, "Maximum number of events to show")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
