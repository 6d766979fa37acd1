package plan

import (
	"fmt"
	"strings"
)

// dependencyGraph maps a node to the nodes it depends on.
type dependencyGraph map[string][]string

// stableTopoSort orders nodes so that every node comes after its
// dependencies. Among ready nodes the one declared first wins, so an input
// that is already a valid order is returned unchanged.
func stableTopoSort(nodes []string, graph dependencyGraph) ([]string, error) {
	placed := make(map[string]bool, len(nodes))
	order := make([]string, 0, len(nodes))

	for len(order) < len(nodes) {
		progressed := false
		for _, n := range nodes {
			if placed[n] || !depsPlaced(graph[n], placed) {
				continue
			}
			placed[n] = true
			order = append(order, n)
			progressed = true
			break
		}
		if !progressed {
			cycle := findCycle(nodes, graph, placed)
			return nil, fmt.Errorf("%w: %s", ErrDependencyCycle, strings.Join(cycle, " -> "))
		}
	}
	return order, nil
}

func depsPlaced(deps []string, placed map[string]bool) bool {
	for _, d := range deps {
		if !placed[d] {
			return false
		}
	}
	return true
}

// findCycle returns one cycle among the unplaced nodes as a closed path,
// e.g. [A B A].
func findCycle(nodes []string, graph dependencyGraph, placed map[string]bool) []string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(nodes))
	var stack []string
	var cycle []string

	var visit func(n string) bool
	visit = func(n string) bool {
		state[n] = visiting
		stack = append(stack, n)
		for _, dep := range graph[n] {
			if placed[dep] {
				continue
			}
			switch state[dep] {
			case visiting:
				for i, s := range stack {
					if s == dep {
						cycle = append(append([]string{}, stack[i:]...), dep)
						return true
					}
				}
			case unvisited:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[n] = done
		return false
	}

	for _, n := range nodes {
		if placed[n] || state[n] != unvisited {
			continue
		}
		if visit(n) {
			return cycle
		}
	}
	return nil
}
