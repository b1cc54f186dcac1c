package graph

import (
	"time"

	"github.com/revred/sharc/internal/logging"
)

// Direction selects which adjacency a traversal follows.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
	Both
)

// TraversalOptions bound a BFS. Zero values mean: depth 1, unlimited fanout,
// outgoing edges, no kind or weight filter, no token budget, no timeout, no
// target short-circuit, no path tracking.
type TraversalOptions struct {
	MaxDepth  int
	MaxFanout int
	Direction Direction

	Kind    int64
	HasKind bool

	MinWeight    float64
	HasMinWeight bool

	// MaxTokens caps the accumulated token estimate over traversed edges
	// (approximated as edge data length / 4, minimum 1 per edge); 0 means no
	// budget.
	MaxTokens int64
	// Timeout bounds wall-clock time, checked between edge iterations; 0
	// means none.
	Timeout time.Duration

	// Target short-circuits the walk as soon as the target key is reached.
	Target    int64
	HasTarget bool

	// TrackPaths records each visit's path from the start node.
	TrackPaths bool
}

// Visit is one traversal result: the node's record, its BFS depth, and (when
// tracked) the key path from the start node inclusive.
type Visit struct {
	Concept *Concept
	Depth   int
	Path    []int64
}

// edgeTokens estimates an edge's token cost from its payload size.
func edgeTokens(e *Edge) int64 {
	t := int64(len(e.Data)) / 4
	if t < 1 {
		t = 1
	}
	return t
}

// Traverse runs the two-phase bounded BFS from startKey. Phase one walks
// edges only — the relation B-tree stays hot in the page cache — collecting
// visited keys, depths, and parents. Phase two batch-fetches the node record
// for every visited key from the concept B-tree. Results are ordered by
// depth, ties broken by discovery order.
func (s *Store) Traverse(startKey int64, opts TraversalOptions) ([]Visit, error) {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 1
	}

	var deadline time.Time
	if opts.Timeout > 0 {
		deadline = time.Now().Add(opts.Timeout)
	}

	type nodeAt struct {
		key   int64
		depth int
	}
	visited := map[int64]bool{startKey: true}
	parent := map[int64]int64{}
	order := []nodeAt{{startKey, 0}}
	queue := []nodeAt{{startKey, 0}}

	var outCur, inCur EdgeCursor
	var err error
	if opts.Direction == Outgoing || opts.Direction == Both {
		outCur, err = s.Relations.Outgoing(startKey, opts.Kind, opts.HasKind)
		if err != nil {
			return nil, err
		}
	}
	if opts.Direction == Incoming || opts.Direction == Both {
		inCur, err = s.Relations.Incoming(startKey, opts.Kind, opts.HasKind)
		if err != nil {
			return nil, err
		}
	}

	var tokens int64
	stopped := false

walk:
	for len(queue) > 0 && !stopped {
		node := queue[0]
		queue = queue[1:]
		if node.depth >= opts.MaxDepth {
			continue
		}

		// The fan-out bound is per node, shared across both directions.
		fanout := 0
		for _, cur := range []EdgeCursor{outCur, inCur} {
			if cur == nil {
				continue
			}
			if err := cur.Reset(node.key, opts.Kind, opts.HasKind); err != nil {
				return nil, err
			}
			for {
				if opts.MaxFanout > 0 && fanout >= opts.MaxFanout {
					break
				}
				if !deadline.IsZero() && time.Now().After(deadline) {
					stopped = true
					break walk
				}
				ok, err := cur.MoveNext()
				if err != nil {
					return nil, err
				}
				if !ok {
					break
				}
				e := cur.Edge()
				if opts.HasMinWeight && e.Weight < opts.MinWeight {
					continue
				}

				tokens += edgeTokens(e)
				if opts.MaxTokens > 0 && tokens > opts.MaxTokens {
					stopped = true
					break walk
				}

				next := e.Target
				if cur == inCur {
					next = e.Origin
				}
				if visited[next] {
					continue
				}
				visited[next] = true
				fanout++
				parent[next] = node.key
				order = append(order, nodeAt{next, node.depth + 1})
				queue = append(queue, nodeAt{next, node.depth + 1})

				if opts.HasTarget && next == opts.Target {
					stopped = true
					break walk
				}
			}
		}
	}

	// Phase two: batch node lookups in discovery order.
	results := make([]Visit, 0, len(order))
	for _, node := range order {
		concept, found, err := s.Concepts.GetByKey(node.key)
		if err != nil {
			return nil, err
		}
		if !found {
			// Dangling edge endpoint with no node row.
			continue
		}
		v := Visit{Concept: concept, Depth: node.depth}
		if opts.TrackPaths {
			v.Path = reconstructPath(parent, startKey, node.key)
		}
		results = append(results, v)
	}

	logging.BFSSummary(startKey, len(results), opts.MaxDepth, "tokens", tokens)
	return results, nil
}

// reconstructPath walks the parent map from key back to start, returning the
// start→key sequence.
func reconstructPath(parent map[int64]int64, start, key int64) []int64 {
	var rev []int64
	for at := key; ; {
		rev = append(rev, at)
		if at == start {
			break
		}
		p, ok := parent[at]
		if !ok {
			break
		}
		at = p
	}
	path := make([]int64, len(rev))
	for i, k := range rev {
		path[len(rev)-1-i] = k
	}
	return path
}
