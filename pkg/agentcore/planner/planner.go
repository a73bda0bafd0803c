// Package planner computes the parallel execution schedule for a batch of
// tool calls: a sequence of Phases where every call in a Phase may run
// concurrently because none of them conflict over a read/write path.
//
// Grounded on the teacher's pkg/orchestration/dependencies.go
// (sortStepsByDependencies's cycle-safe DFS topological sort, with its
// fall-back-to-original-order behavior on a detected cycle) and
// original_source/crates/Layer2-core/src/tool/parallel.rs's
// DependencyGraph/topological-levels algorithm, which groups nodes into
// levels instead of a single flat order -- the shape this package follows,
// since a Phase is exactly one of those levels.
package planner

import (
	"sort"

	"github.com/forgecore/agentrt/pkg/agentcore/types"
)

// writeArgKeys and readArgKeys are the closed sets of argument field names
// the planner inspects to learn which paths a call writes or reads.
// Read-only and write tools whose arguments don't use these keys are
// treated as path-independent and never conflict with anything;
// state-mutating tools are serialized regardless (see Plan).
var (
	writeArgKeys = []string{"path", "file_path", "target"}
	readArgKeys  = []string{"path", "file_path", "pattern", "source"}
)

// ToolClassifier answers what kind of tool a call invokes, so the planner
// knows whether to treat its paths as reads, writes, or both.
type ToolClassifier func(toolName string) types.ToolKind

// callInfo is the planner's internal view of one call in the batch.
type callInfo struct {
	index  int
	reads  map[string]bool
	writes map[string]bool
}

func extractPaths(call types.ToolCall, keys []string) map[string]bool {
	out := map[string]bool{}
	args := call.Args()
	for _, k := range keys {
		if v, ok := args[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				out[s] = true
			}
		}
	}
	return out
}

func buildCallInfo(calls []types.ToolCall, classify ToolClassifier) []callInfo {
	infos := make([]callInfo, len(calls))
	for i, c := range calls {
		kind := classify(c.Name)
		info := callInfo{index: i, reads: map[string]bool{}, writes: map[string]bool{}}
		switch kind {
		case types.ToolWrite, types.ToolStateMutating:
			info.writes = extractPaths(c, writeArgKeys)
			// A write tool may also read its target's prior contents (edit).
			for p := range extractPaths(c, readArgKeys) {
				info.reads[p] = true
			}
		default:
			info.reads = extractPaths(c, readArgKeys)
		}
		infos[i] = info
	}
	return infos
}

// conflicts reports whether b must wait for a: true when they touch the
// same path and at least one of the touches is a write (write-after-write,
// read-after-write, or write-after-read).
func conflicts(a, b callInfo) bool {
	for p := range a.writes {
		if b.writes[p] || b.reads[p] {
			return true
		}
	}
	for p := range a.reads {
		if b.writes[p] {
			return true
		}
	}
	return false
}

// Plan computes the ordered Phases for calls, given a classifier that maps
// tool names to ToolKind. State-mutating tools (process spawns, permission
// grants) are always serialized relative to every other call in the batch,
// matching the teacher's conservative default of treating an unknown step
// as blocking until proven otherwise.
func Plan(calls []types.ToolCall, classify ToolClassifier) []types.Phase {
	if len(calls) == 0 {
		return nil
	}
	infos := buildCallInfo(calls, classify)
	mutating := make([]bool, len(calls))
	for i, c := range calls {
		mutating[i] = classify(c.Name) == types.ToolStateMutating
	}

	// dependsOn[i] holds the indices that must complete before i may run.
	dependsOn := make([][]int, len(calls))
	for i := range infos {
		for j := 0; j < i; j++ {
			if mutating[i] || mutating[j] || conflicts(infos[j], infos[i]) {
				dependsOn[i] = append(dependsOn[i], j)
			}
		}
	}

	level, ok := levelize(dependsOn)
	if !ok {
		// Cycle detected (shouldn't happen for acyclic path-conflict graphs,
		// but mirrors the teacher's fall-back-to-original-order safety net
		// and spec §4.3's stall rule).
		return []types.Phase{cycleFallbackPhase(len(calls))}
	}

	maxLevel := 0
	for _, l := range level {
		if l > maxLevel {
			maxLevel = l
		}
	}

	phases := make([]types.Phase, maxLevel+1)
	for i := range phases {
		phases[i] = types.Phase{Parallel: true}
	}
	for i, l := range level {
		phases[l].ToolIndices = append(phases[l].ToolIndices, i)
	}
	for i := range phases {
		sort.Ints(phases[i].ToolIndices)
		if len(phases[i].ToolIndices) <= 1 {
			phases[i].Parallel = false
		}
	}
	return phases
}

// cycleFallbackPhase builds the single sequential phase emitted when the
// dependency graph stalls with nodes remaining: the entire remainder, in
// input order, serialized, with a diagnostic explaining why -- spec §4.3's
// "emit the entire remainder as a single sequential phase and record a
// diagnostic" rather than risking a parallel run whose ordering can't be
// proven conflict-free.
func cycleFallbackPhase(n int) types.Phase {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return types.Phase{
		ToolIndices: indices,
		Parallel:    false,
		Diagnostic:  "planner: dependency cycle detected, serializing entire batch",
	}
}

// levelize assigns each node the level one greater than the max level of
// its dependencies (longest-path layering), detecting cycles via
// recursion-stack tracking exactly as the teacher's sortStepsByDependencies
// does for its DFS-based topological sort.
func levelize(dependsOn [][]int) ([]int, bool) {
	n := len(dependsOn)
	level := make([]int, n)
	state := make([]int8, n) // 0 unvisited, 1 in-progress, 2 done

	var visit func(i int) bool
	visit = func(i int) bool {
		if state[i] == 2 {
			return true
		}
		if state[i] == 1 {
			return false // cycle
		}
		state[i] = 1
		max := -1
		for _, dep := range dependsOn[i] {
			if !visit(dep) {
				return false
			}
			if level[dep] > max {
				max = level[dep]
			}
		}
		level[i] = max + 1
		state[i] = 2
		return true
	}

	for i := 0; i < n; i++ {
		if state[i] == 0 {
			if !visit(i) {
				return nil, false
			}
		}
	}
	return level, true
}
