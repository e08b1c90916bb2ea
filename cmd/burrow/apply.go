package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a manifest of nodes and pods",
	Long: `Create the nodes and pods described in a YAML manifest.

A manifest holds one or more documents separated by '---':

  kind: Node
  metadata:
    name: workers
  spec:
    cpuCores: 4
    replicas: 2
  ---
  kind: Pod
  metadata:
    name: web
  spec:
    cpuCores: 1.5
    replicas: 3

All nodes are created before any pod so pods are placed on the new
capacity. Examples:
  burrow apply -f cluster.yaml`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")
}

// Resource is one document of a manifest
type Resource struct {
	APIVersion string           `yaml:"apiVersion"`
	Kind       string           `yaml:"kind"`
	Metadata   ResourceMetadata `yaml:"metadata"`
	Spec       ResourceSpec     `yaml:"spec"`
}

type ResourceMetadata struct {
	Name string `yaml:"name"`
}

type ResourceSpec struct {
	CPUCores float64 `yaml:"cpuCores"`
	Replicas int     `yaml:"replicas"`
}

// applier is the client surface apply needs
type applier interface {
	AddNode(cpuCores float64) (*types.Node, error)
	CreatePod(cpuCores float64) (*api.CreatePodResponse, error)
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()

	resources, err := parseManifest(f)
	if err != nil {
		return err
	}
	return applyResources(newClient(cmd), resources, cmd.OutOrStdout())
}

// parseManifest decodes every document and validates it. Replicas
// defaults to 1.
func parseManifest(r io.Reader) ([]Resource, error) {
	dec := yaml.NewDecoder(r)

	var resources []Resource
	for i := 1; ; i++ {
		var res Resource
		err := dec.Decode(&res)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML document %d: %w", i, err)
		}

		if res.Kind != "Node" && res.Kind != "Pod" {
			return nil, fmt.Errorf("document %d: unsupported resource kind: %q", i, res.Kind)
		}
		if res.Spec.CPUCores <= 0 {
			return nil, fmt.Errorf("document %d: spec.cpuCores must be a positive number", i)
		}
		if res.Spec.Replicas < 0 {
			return nil, fmt.Errorf("document %d: spec.replicas must not be negative", i)
		}
		if res.Spec.Replicas == 0 {
			res.Spec.Replicas = 1
		}
		resources = append(resources, res)
	}

	if len(resources) == 0 {
		return nil, errors.New("manifest contains no resources")
	}
	return resources, nil
}

func applyResources(c applier, resources []Resource, out io.Writer) error {
	for _, kind := range []string{"Node", "Pod"} {
		for _, res := range resources {
			if res.Kind != kind {
				continue
			}
			for i := 0; i < res.Spec.Replicas; i++ {
				if err := applyOne(c, res, out); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func applyOne(c applier, res Resource, out io.Writer) error {
	name := res.Metadata.Name
	if name == "" {
		name = res.Kind
	}

	switch res.Kind {
	case "Node":
		node, err := c.AddNode(res.Spec.CPUCores)
		if err != nil {
			return fmt.Errorf("failed to create node %s: %w", name, err)
		}
		fmt.Fprintf(out, "✓ Node created: %s (ID: %s, %.2f cores)\n", name, node.ID, node.TotalCPUCores)
	case "Pod":
		resp, err := c.CreatePod(res.Spec.CPUCores)
		if err != nil {
			return fmt.Errorf("failed to create pod %s: %w", name, err)
		}
		placement := "pending"
		if resp.NodeID != nil {
			placement = "node " + *resp.NodeID
		}
		fmt.Fprintf(out, "✓ Pod created: %s (ID: %s, %s)\n", name, resp.Pod.ID, placement)
	}
	return nil
}
