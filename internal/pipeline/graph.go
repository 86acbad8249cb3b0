package pipeline

import (
	"context"
	"fmt"

	"resume-agent-go/internal/logger"
)

// End is the terminal marker of every graph.
const End = "__end__"

// StageResult is what a stage hands back to the engine. Delta is the partial
// state to merge. A non-nil Cause marks the delta as fallback output: the
// stage's external call or parse failed and the delta carries degraded
// values. Fallback is a first-class value, not an error; execution continues.
type StageResult struct {
	Delta State
	Cause error
}

// OK wraps a successful partial state.
func OK(delta State) StageResult {
	return StageResult{Delta: delta}
}

// Fallback wraps a degraded partial state together with the failure that
// forced it.
func Fallback(delta State, cause error) StageResult {
	return StageResult{Delta: delta, Cause: cause}
}

// StageFunc transforms the accumulated state into a partial update. The
// error return is reserved for defects and configuration failures; every
// expected failure (provider down, bad model output) must be absorbed into a
// Fallback result instead.
type StageFunc func(ctx context.Context, state State) (StageResult, error)

type stageNode struct {
	name string
	fn   StageFunc
	next string
}

// Graph is a named linear chain of stages with one entry and one terminal
// marker. Graphs are built once and are immutable during execution.
type Graph struct {
	name   string
	entry  string
	stages map[string]*stageNode
}

// NewGraph creates an empty graph.
func NewGraph(name string) *Graph {
	return &Graph{
		name:   name,
		stages: make(map[string]*stageNode),
	}
}

// AddStage registers a named stage.
func (g *Graph) AddStage(name string, fn StageFunc) *Graph {
	g.stages[name] = &stageNode{name: name, fn: fn}
	return g
}

// SetEntry declares the first stage.
func (g *Graph) SetEntry(name string) *Graph {
	g.entry = name
	return g
}

// AddEdge declares the single outgoing edge of from. Use End to terminate.
func (g *Graph) AddEdge(from, to string) *Graph {
	if node, ok := g.stages[from]; ok {
		node.next = to
	}
	return g
}

// Validate checks that the declared chain starts at the entry, visits each
// stage at most once and terminates at End.
func (g *Graph) Validate() error {
	if g.entry == "" {
		return fmt.Errorf("graph %s: no entry stage", g.name)
	}
	visited := make(map[string]bool, len(g.stages))
	current := g.entry
	for current != End {
		node, ok := g.stages[current]
		if !ok {
			return fmt.Errorf("graph %s: stage %q is not registered", g.name, current)
		}
		if visited[current] {
			return fmt.Errorf("graph %s: stage %q appears twice in the chain", g.name, current)
		}
		visited[current] = true
		if node.next == "" {
			return fmt.Errorf("graph %s: stage %q has no outgoing edge", g.name, current)
		}
		current = node.next
	}
	if len(visited) != len(g.stages) {
		return fmt.Errorf("graph %s: %d stages registered but chain visits %d", g.name, len(g.stages), len(visited))
	}
	return nil
}

// Execute runs the chain over a copy of initial. Stages run strictly in
// declared order; each delta is merged before the next stage starts. The
// engine retries nothing. A stage error aborts the run and is treated as a
// defect or configuration failure, never as a normal outcome.
func (g *Graph) Execute(ctx context.Context, initial State) (State, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	current := initial.Clone()
	name := g.entry
	for name != End {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("graph %s: %w", g.name, err)
		}

		node := g.stages[name]
		result, err := node.fn(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("graph %s, stage %s: %w", g.name, name, err)
		}
		if result.Cause != nil {
			logger.Ctx(ctx).Warn().
				Str("graph", g.name).
				Str("stage", name).
				Err(result.Cause).
				Msg("stage produced fallback output")
		}
		current.Merge(result.Delta)
		name = node.next
	}
	return current, nil
}
