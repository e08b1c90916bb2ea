package health

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCPChecker passes when a TCP connection to Address can be opened
type TCPChecker struct {
	Address string
	Timeout time.Duration
}

// NewTCPChecker creates a new TCP checker with a 5s dial timeout
func NewTCPChecker(address string) *TCPChecker {
	return &TCPChecker{Address: address, Timeout: 5 * time.Second}
}

// Check dials the address and closes the connection right away
func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()
	result := Result{CheckedAt: start}

	conn, err := (&net.Dialer{Timeout: t.Timeout}).DialContext(ctx, "tcp", t.Address)
	if err != nil {
		result.Message = fmt.Sprintf("dial %s failed: %v", t.Address, err)
	} else {
		_ = conn.Close()
		result.Healthy = true
		result.Message = "dial " + t.Address + " succeeded"
	}

	result.Duration = time.Since(start)
	return result
}

// Type returns CheckTypeTCP
func (t *TCPChecker) Type() CheckType {
	return CheckTypeTCP
}
