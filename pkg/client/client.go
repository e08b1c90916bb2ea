package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/types"
)

// DefaultTimeout bounds every request made by the client
const DefaultTimeout = 10 * time.Second

// APIError is returned for any 4xx/5xx response
type APIError struct {
	StatusCode int
	Message    string
	Suggestion string
}

func (e *APIError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Message, e.StatusCode, e.Suggestion)
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.StatusCode)
}

// IsNotFound reports whether err is a 404 from the API
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to the burrow HTTP API
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

// NewClient creates a client for the API at addr. A bare host:port is
// treated as plain HTTP.
func NewClient(addr string) *Client {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return &Client{
		baseURL: strings.TrimRight(addr, "/"),
		http:    &http.Client{},
		timeout: DefaultTimeout,
	}
}

// AddNode provisions a node with the given capacity
func (c *Client) AddNode(cpuCores float64) (*types.Node, error) {
	var node types.Node
	if err := c.do(http.MethodPost, "/nodes", map[string]float64{"cpuCores": cpuCores}, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// ListNodes lists all nodes in registration order
func (c *Client) ListNodes() ([]types.Node, error) {
	var nodes []types.Node
	if err := c.do(http.MethodGet, "/nodes", nil, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// GetNode gets the detailed status of a node
func (c *Client) GetNode(id string) (*types.NodeDetail, error) {
	var detail types.NodeDetail
	if err := c.do(http.MethodGet, "/nodes/"+url.PathEscape(id), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// RemoveNode removes a node and reschedules its pods. Removing an unknown
// node succeeds; the response message says so.
func (c *Client) RemoveNode(id string) (*api.RemoveNodeResponse, error) {
	var resp api.RemoveNodeResponse
	if err := c.do(http.MethodDelete, "/nodes/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreatePod creates a pod. The returned NodeID is nil when the pod is pending.
func (c *Client) CreatePod(cpuCores float64) (*api.CreatePodResponse, error) {
	var resp api.CreatePodResponse
	if err := c.do(http.MethodPost, "/pods", map[string]float64{"cpuCores": cpuCores}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListPods lists all pods, pending ones included
func (c *Client) ListPods() ([]types.PodView, error) {
	var pods []types.PodView
	if err := c.do(http.MethodGet, "/pods", nil, &pods); err != nil {
		return nil, err
	}
	return pods, nil
}

// DeletePod deletes a pod and returns the server's message
func (c *Client) DeletePod(id string) (string, error) {
	var resp api.MessageResponse
	if err := c.do(http.MethodDelete, "/pods/"+url.PathEscape(id), nil, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// Heartbeat reports that a node is alive
func (c *Client) Heartbeat(nodeID string) error {
	return c.do(http.MethodPost, "/heartbeat", map[string]string{"nodeId": nodeID}, nil)
}

// Resources returns the cluster-wide capacity totals
func (c *Client) Resources() (*types.ClusterResources, error) {
	var res types.ClusterResources
	if err := c.do(http.MethodGet, "/cluster/resources", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Events returns up to limit recent events, newest first. A limit of 0
// uses the server default.
func (c *Client) Events(limit int) ([]events.Event, error) {
	path := "/events"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var list []events.Event
	if err := c.do(http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) do(method, path string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
			apiErr.Message = payload.Error
			apiErr.Suggestion = payload.Suggestion
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
