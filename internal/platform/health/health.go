package health

import (
	"context"
	"time"
)

type Check func(ctx context.Context) error

// Node is a named check with dependents. Dependents only run when the node's
// own check passes; a node without a Check only groups its Deps.
type Node struct {
	Name  string
	Check Check
	Deps  []*Node
}

type Result struct {
	Name     string
	Healthy  bool
	Skipped  bool
	Error    error
	Duration time.Duration
}

// Observer is notified around every check that actually runs.
// The returned context is passed to the check; done receives its result.
type Observer interface {
	Start(ctx context.Context, name string) (context.Context, func(Result))
}

// Add appends a named dependency node to n and returns the created node.
func (n *Node) Add(name string, check Check) *Node {
	child := &Node{Name: name, Check: check}
	n.Deps = append(n.Deps, child)
	return child
}

// Evaluate walks the graph depth-first in declaration order and returns one
// Result per node that has a Check. Siblings always run; descendants of a
// failed node are reported as skipped.
func Evaluate(ctx context.Context, n *Node, obs Observer) []Result {
	var out []Result
	evaluate(ctx, n, obs, &out)
	return out
}

func evaluate(ctx context.Context, n *Node, obs Observer, out *[]Result) {
	if n == nil {
		return
	}
	if n.Check != nil {
		res := run(ctx, n, obs)
		*out = append(*out, res)
		if !res.Healthy {
			for _, d := range n.Deps {
				skip(d, out)
			}
			return
		}
	}
	for _, d := range n.Deps {
		evaluate(ctx, d, obs, out)
	}
}

func run(ctx context.Context, n *Node, obs Observer) Result {
	done := func(Result) {}
	if obs != nil {
		ctx, done = obs.Start(ctx, n.Name)
	}

	start := time.Now()
	err := n.Check(ctx)
	res := Result{
		Name:     n.Name,
		Healthy:  err == nil,
		Error:    err,
		Duration: time.Since(start),
	}
	done(res)
	return res
}

func skip(n *Node, out *[]Result) {
	if n == nil {
		return
	}
	if n.Check != nil {
		*out = append(*out, Result{Name: n.Name, Skipped: true})
	}
	for _, d := range n.Deps {
		skip(d, out)
	}
}

// Failed returns the results whose check ran and returned an error.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Skipped && !r.Healthy {
			out = append(out, r)
		}
	}
	return out
}
