package health

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// CheckType represents the type of local check
type CheckType string

const (
	CheckTypeHTTP CheckType = "http"
	CheckTypeTCP  CheckType = "tcp"
)

// Result represents the outcome of a check
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is implemented by every local check
type Checker interface {
	Check(ctx context.Context) Result
	Type() CheckType
}

// DefaultRetries is how many consecutive failed rounds close the gate
const DefaultRetries = 3

// Gate decides whether a node agent keeps sending heartbeats. It opens
// after any fully passing round and closes after retries consecutive
// rounds with a failing check. A Gate is not safe for concurrent use.
type Gate struct {
	checkers []Checker
	retries  int
	failures int
	open     bool
	last     Result
}

// NewGate creates a gate over the checkers. A gate without checkers is
// always open.
func NewGate(retries int, checkers ...Checker) *Gate {
	if retries < 1 {
		retries = DefaultRetries
	}
	return &Gate{
		checkers: checkers,
		retries:  retries,
		open:     true,
	}
}

// Evaluate runs every checker once and reports whether the gate is open
func (g *Gate) Evaluate(ctx context.Context) bool {
	start := time.Now()
	var failed []string
	for _, c := range g.checkers {
		if r := c.Check(ctx); !r.Healthy {
			failed = append(failed, fmt.Sprintf("%s: %s", c.Type(), r.Message))
		}
	}

	g.last = Result{
		Healthy:   len(failed) == 0,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
	if len(failed) == 0 {
		g.last.Message = fmt.Sprintf("%d checks passed", len(g.checkers))
		g.failures = 0
		g.open = true
		return true
	}

	g.last.Message = strings.Join(failed, "; ")
	g.failures++
	if g.failures >= g.retries {
		g.open = false
	}
	return g.open
}

// Open reports the gate state after the last Evaluate
func (g *Gate) Open() bool {
	return g.open
}

// Failures returns the number of consecutive failed rounds
func (g *Gate) Failures() int {
	return g.failures
}

// LastResult returns the combined result of the last round
func (g *Gate) LastResult() Result {
	return g.last
}

// ParseCheck builds a checker from a URL: http:// and https:// URLs are
// probed with GET, tcp://host:port is dialed.
func ParseCheck(spec string) (Checker, error) {
	switch {
	case strings.HasPrefix(spec, "http://"), strings.HasPrefix(spec, "https://"):
		return NewHTTPChecker(spec), nil
	case strings.HasPrefix(spec, "tcp://"):
		addr := strings.TrimPrefix(spec, "tcp://")
		if addr == "" {
			return nil, fmt.Errorf("tcp check %q has no address", spec)
		}
		return NewTCPChecker(addr), nil
	default:
		return nil, fmt.Errorf("unsupported check %q: use http://, https:// or tcp://", spec)
	}
}
