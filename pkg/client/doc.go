/*
Package client provides a Go client for the burrow HTTP API.

It is used by the burrow CLI and by node agents that send heartbeats. Every
call runs with DefaultTimeout. Responses with a 4xx/5xx status are returned
as *APIError carrying the server's error and suggestion.

# Usage

	c := client.NewClient("localhost:3001")

	node, err := c.AddNode(4)
	if err != nil {
		return err
	}

	resp, err := c.CreatePod(1.5)
	if err != nil {
		return err
	}
	if resp.NodeID == nil {
		fmt.Println("pod is pending")
	}

	if err := c.Heartbeat(node.ID); client.IsNotFound(err) {
		// node was removed
	}
*/
package client
