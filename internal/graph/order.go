package graph

import (
	"errors"
	"fmt"
	"strings"
)

// Output is the sentinel id of the final output bus.
const Output = "output"

var (
	ErrUnknownKind        = errors.New("graph: unknown node kind")
	ErrDuplicateNode      = errors.New("graph: duplicate node id")
	ErrUnresolvedEndpoint = errors.New("graph: unresolved connection endpoint")
)

// CyclicConnectionError names the nodes of one cycle, in signal order.
type CyclicConnectionError struct {
	NodeIDs []string
}

func (e *CyclicConnectionError) Error() string {
	return fmt.Sprintf("graph: cyclic connection %s -> %s", strings.Join(e.NodeIDs, " -> "), e.NodeIDs[0])
}

// Connection routes the output of From into the input of To. To may be
// Output.
type Connection struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// Order returns ids in a topological order of conns using Kahn's
// algorithm. Ties keep declaration order, so the result is deterministic.
// Edges into Output are ignored.
func Order(ids []string, conns []Connection) ([]string, error) {
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		if id == Output {
			return nil, fmt.Errorf("%w: %q is reserved", ErrDuplicateNode, Output)
		}
		if _, dup := index[id]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateNode, id)
		}
		index[id] = i
	}

	outgoing := make([][]int, len(ids))
	incoming := make([][]int, len(ids))
	indegree := make([]int, len(ids))
	for _, c := range conns {
		from, ok := index[c.From]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnresolvedEndpoint, c.From)
		}
		if c.To == Output {
			continue
		}
		to, ok := index[c.To]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnresolvedEndpoint, c.To)
		}
		outgoing[from] = append(outgoing[from], to)
		incoming[to] = append(incoming[to], from)
		indegree[to]++
	}

	queue := make([]int, 0, len(ids))
	for i := range ids {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}
	order := make([]string, 0, len(ids))
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		order = append(order, ids[i])
		for _, j := range outgoing[i] {
			indegree[j]--
			if indegree[j] == 0 {
				queue = append(queue, j)
			}
		}
	}
	if len(order) == len(ids) {
		return order, nil
	}
	return nil, &CyclicConnectionError{NodeIDs: findCycle(ids, incoming, indegree)}
}

// findCycle walks predecessors among the nodes Kahn could not emit. Every
// such node has a remaining predecessor, so the walk must revisit a node.
func findCycle(ids []string, incoming [][]int, indegree []int) []string {
	start := -1
	for i, d := range indegree {
		if d > 0 {
			start = i
			break
		}
	}
	seenAt := map[int]int{}
	var path []int
	for cur := start; ; {
		if at, ok := seenAt[cur]; ok {
			path = path[at:]
			break
		}
		seenAt[cur] = len(path)
		path = append(path, cur)
		for _, p := range incoming[cur] {
			if indegree[p] > 0 {
				cur = p
				break
			}
		}
	}
	// path runs against the signal; reverse it.
	out := make([]string, len(path))
	for i, n := range path {
		out[len(path)-1-i] = ids[n]
	}
	return out
}
