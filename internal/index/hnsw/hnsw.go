// Package hnsw implements a hierarchical navigable small world graph for
// approximate nearest neighbor search over float32 vectors.
//
// The graph is layered: every node lives in layers 0 through its sampled top
// layer, layer 0 holds every node, and per-layer neighbor lists are bounded
// by M (2*M at layer 0). Insertion descends greedily from the entry point,
// then links the new node layer by layer using a best-first candidate search
// and a diversity heuristic for neighbor selection. Search descends the same
// way and runs a bounded best-first search at layer 0.
//
// An Index is not safe for concurrent mutation. Callers serialize Insert and
// Delete against each other and against Search; concurrent Searches are safe
// because search takes per-call scratch state from a pool and only reads the
// graph.
package hnsw

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/kailas-cloud/annex/internal/distance"
)

const (
	// mmax0Multiplier is the multiplier for maximum connections at layer 0.
	mmax0Multiplier = 2

	// minimumM is the minimum valid value for M.
	minimumM = 2

	// DefaultM is the default number of bidirectional links per node per layer.
	DefaultM = 16

	// DefaultEFConstruction is the default construction-time beam width.
	DefaultEFConstruction = 200
)

var (
	// ErrCapacityExceeded is returned when the graph already holds MaxElements nodes.
	ErrCapacityExceeded = errors.New("hnsw: capacity exceeded")

	// ErrZeroVector is returned when a zero-magnitude vector is inserted under
	// a metric that requires normalization.
	ErrZeroVector = errors.New("hnsw: cannot normalize zero vector")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("hnsw: k must be positive")
)

// DimensionMismatchError indicates a vector/query dimensionality mismatch.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("hnsw: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Options configures an Index.
type Options struct {
	// Dimension is the fixed vector length.
	Dimension int
	// M bounds the neighbor list of every node per layer (2*M at layer 0).
	M int
	// EFConstruction is the beam width used while linking a new node.
	EFConstruction int
	// MaxElements is the hard node capacity; insertion past it fails.
	MaxElements int
	// Metric selects the distance variant.
	Metric distance.Metric
	// RandomSeed pins the level sampler for deterministic tests.
	// Nil seeds from the clock.
	RandomSeed *int64
}

// neighbor is one directed edge with its cached distance from the owning node.
type neighbor struct {
	ID   uint32
	Dist float32
}

// node holds the per-layer neighbor lists of one inserted vector.
type node struct {
	level int
	conns [][]neighbor
}

// Result is one search hit: internal node id and distance to the query.
type Result struct {
	ID       uint32
	Distance float32
}

// Stats is a point-in-time summary of the graph.
type Stats struct {
	Nodes    int // all inserted nodes, including tombstoned
	Live     int // nodes visible to search
	MaxLevel int
}

// Index is the hierarchical navigable small world graph.
type Index struct {
	opts      Options
	distFunc  distance.Func
	normalize bool

	maxConns  int
	maxConns0 int
	levelMult float64
	levelCap  int
	rng       *rand.Rand

	vectors    [][]float32
	nodes      []node
	entryPoint uint32
	maxLevel   int
	live       int

	// tombstones marks logically deleted nodes. They stay in the graph for
	// connectivity and keep their id forever; ids are never reused.
	tombstones *roaring.Bitmap
}

// New creates an Index.
func New(opts Options) (*Index, error) {
	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("hnsw: invalid dimension: %d", opts.Dimension)
	}
	if opts.MaxElements <= 0 {
		return nil, fmt.Errorf("hnsw: invalid max elements: %d", opts.MaxElements)
	}
	if opts.M < minimumM {
		opts.M = minimumM
	}
	if opts.EFConstruction <= 0 {
		opts.EFConstruction = DefaultEFConstruction
	}

	distFunc, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, err
	}

	seed := time.Now().UnixNano()
	if opts.RandomSeed != nil {
		seed = *opts.RandomSeed
	}

	levelMult := 1 / math.Log(float64(opts.M))
	h := &Index{
		opts:       opts,
		distFunc:   distFunc,
		normalize:  opts.Metric == distance.MetricCosine,
		maxConns:   opts.M,
		maxConns0:  mmax0Multiplier * opts.M,
		levelMult:  levelMult,
		levelCap:   int(math.Log(float64(opts.MaxElements))*levelMult) + 1,
		rng:        rand.New(rand.NewSource(seed)),
		vectors:    make([][]float32, 0, opts.MaxElements),
		nodes:      make([]node, 0, opts.MaxElements),
		maxLevel:   -1,
		tombstones: roaring.New(),
	}
	return h, nil
}

// Len returns the number of live (searchable) nodes.
func (h *Index) Len() int { return h.live }

// Stats returns a snapshot of graph counters.
func (h *Index) Stats() Stats {
	return Stats{Nodes: len(h.nodes), Live: h.live, MaxLevel: h.maxLevel}
}

// Insert adds a vector and returns its internal node id.
// Ids are dense, assigned in insertion order, and never reused.
func (h *Index) Insert(v []float32) (uint32, error) {
	if len(h.nodes) >= h.opts.MaxElements {
		return 0, ErrCapacityExceeded
	}

	vec, err := h.prepareVector(v)
	if err != nil {
		return 0, err
	}

	id := uint32(len(h.nodes))
	level := h.randomLevel()
	wasEmpty := h.live == 0

	conns := make([][]neighbor, level+1)
	for l := range conns {
		conns[l] = make([]neighbor, 0, h.maxConnsFor(l))
	}
	h.vectors = append(h.vectors, vec)
	h.nodes = append(h.nodes, node{level: level, conns: conns})
	h.live++

	if len(h.nodes) == 1 {
		h.entryPoint = id
		h.maxLevel = level
		return id, nil
	}

	curr := h.entryPoint
	currDist := h.distFunc(vec, h.vectors[curr])
	for l := h.maxLevel; l > level; l-- {
		curr, currDist = h.greedyDescend(vec, curr, currDist, l)
	}

	s := getSearcher()
	defer putSearcher(s)

	for l := min(level, h.maxLevel); l >= 0; l-- {
		h.searchLayer(s, vec, curr, currDist, l, h.opts.EFConstruction)
		cands := s.extractAscending()
		if len(cands) > 0 {
			curr, currDist = cands[0].Node, cands[0].Distance
		}

		m := h.maxConnsFor(l)
		for _, n := range h.selectNeighbors(cands, m) {
			h.nodes[id].conns[l] = append(h.nodes[id].conns[l], neighbor{ID: n.Node, Dist: n.Distance})
			h.linkBack(n.Node, id, l, n.Distance)
		}
	}

	if wasEmpty || level > h.maxLevel {
		h.entryPoint = id
		h.maxLevel = level
	}
	return id, nil
}

// Delete tombstones a node. The node stays in the graph for connectivity but
// never appears in search results. Returns false if the id is unknown or
// already deleted.
func (h *Index) Delete(id uint32) bool {
	if int(id) >= len(h.nodes) || h.tombstones.Contains(id) {
		return false
	}
	h.tombstones.Add(id)
	h.live--
	return true
}

// Search returns up to k live nodes nearest to q, sorted ascending by
// distance with ties broken by smaller id. ef is the beam width and is
// clamped up to k. An empty graph yields an empty result, not an error.
func (h *Index) Search(q []float32, k, ef int) ([]Result, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if len(q) != h.opts.Dimension {
		return nil, &DimensionMismatchError{Expected: h.opts.Dimension, Actual: len(q)}
	}
	if h.live == 0 {
		return []Result{}, nil
	}
	if ef < k {
		ef = k
	}

	qv := q
	if h.normalize {
		// A zero-magnitude query cannot be normalized; searched as-is its
		// dot product is 0 against every stored vector, i.e. maximum
		// cosine distance.
		if nq, ok := distance.NormalizeL2Copy(q); ok {
			qv = nq
		}
	}

	curr := h.entryPoint
	currDist := h.distFunc(qv, h.vectors[curr])
	for l := h.maxLevel; l >= 1; l-- {
		curr, currDist = h.greedyDescend(qv, curr, currDist, l)
	}

	s := getSearcher()
	defer putSearcher(s)
	h.searchLayer(s, qv, curr, currDist, 0, ef)

	items := s.extractAscending()
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Distance != items[j].Distance {
			return items[i].Distance < items[j].Distance
		}
		return items[i].Node < items[j].Node
	})
	if len(items) > k {
		items = items[:k]
	}

	out := make([]Result, len(items))
	for i, it := range items {
		out[i] = Result{ID: it.Node, Distance: it.Distance}
	}
	return out, nil
}

// prepareVector validates the dimension and returns the vector the graph
// will own (normalized copy under cosine, plain copy otherwise).
func (h *Index) prepareVector(v []float32) ([]float32, error) {
	if len(v) != h.opts.Dimension {
		return nil, &DimensionMismatchError{Expected: h.opts.Dimension, Actual: len(v)}
	}
	if h.normalize {
		vec, ok := distance.NormalizeL2Copy(v)
		if !ok {
			return nil, ErrZeroVector
		}
		return vec, nil
	}
	vec := make([]float32, len(v))
	copy(vec, v)
	return vec, nil
}

// randomLevel samples a top layer from the exponential distribution with
// multiplier 1/ln(M), capped so layers grow sub-logarithmically with
// capacity.
func (h *Index) randomLevel() int {
	r := h.rng.Float64()
	for r == 0 {
		r = h.rng.Float64()
	}
	level := int(math.Floor(-math.Log(r) * h.levelMult))
	if level > h.levelCap {
		level = h.levelCap
	}
	return level
}

func (h *Index) maxConnsFor(level int) int {
	if level == 0 {
		return h.maxConns0
	}
	return h.maxConns
}

// greedyDescend performs a single-path greedy walk toward q at one layer:
// move to the neighbor minimizing distance until no neighbor improves.
func (h *Index) greedyDescend(q []float32, curr uint32, currDist float32, level int) (uint32, float32) {
	for changed := true; changed; {
		changed = false
		for _, nb := range h.nodes[curr].conns[level] {
			if d := h.distFunc(q, h.vectors[nb.ID]); d < currDist {
				curr, currDist = nb.ID, d
				changed = true
			}
		}
	}
	return curr, currDist
}

// searchLayer runs a bounded best-first search at one layer, leaving the best
// ef live nodes in s.results. Tombstoned nodes are traversed for navigation
// but excluded from results. Expansion stops once the closest unexplored
// candidate is farther than the current worst of the best ef found.
func (h *Index) searchLayer(s *searcher, q []float32, ep uint32, epDist float32, level, ef int) {
	s.visited.Reset()
	s.candidates.Reset()
	s.results.Reset()

	s.visited.Visit(ep)
	s.candidates.Push(queueItem{Node: ep, Distance: epDist})
	if !h.tombstones.Contains(ep) {
		s.results.Push(queueItem{Node: ep, Distance: epDist})
	}

	for s.candidates.Len() > 0 {
		curr, _ := s.candidates.Pop()

		if s.results.Len() >= ef {
			worst, _ := s.results.Top()
			if curr.Distance > worst.Distance {
				break
			}
		}

		for _, nb := range h.nodes[curr.Node].conns[level] {
			if s.visited.Visited(nb.ID) {
				continue
			}
			s.visited.Visit(nb.ID)

			d := h.distFunc(q, h.vectors[nb.ID])
			if s.results.Len() >= ef {
				if worst, _ := s.results.Top(); d > worst.Distance {
					continue
				}
			}

			s.candidates.Push(queueItem{Node: nb.ID, Distance: d})
			if !h.tombstones.Contains(nb.ID) {
				s.results.PushBounded(queueItem{Node: nb.ID, Distance: d}, ef)
			}
		}
	}
}

// selectNeighbors picks up to m diverse neighbors from candidates sorted
// nearest first. A candidate is kept only if it is closer to the new vector
// than to every already-selected neighbor (relative neighborhood property);
// remaining slots are filled with the nearest rejected candidates.
func (h *Index) selectNeighbors(cands []queueItem, m int) []queueItem {
	if len(cands) <= m {
		return cands
	}

	result := make([]queueItem, 0, m)
	for _, cand := range cands {
		if len(result) >= m {
			break
		}
		good := true
		for _, sel := range result {
			if h.distFunc(h.vectors[cand.Node], h.vectors[sel.Node]) < cand.Distance {
				good = false
				break
			}
		}
		if good {
			result = append(result, cand)
		}
	}

	// Fill up from the nearest rejected candidates.
	for _, cand := range cands {
		if len(result) >= m {
			break
		}
		found := false
		for _, sel := range result {
			if sel.Node == cand.Node {
				found = true
				break
			}
		}
		if !found {
			result = append(result, cand)
		}
	}
	return result
}

// linkBack adds the reverse edge src -> tgt, pruning src's neighbor list
// with the diversity heuristic if it overflows its degree bound.
func (h *Index) linkBack(src, tgt uint32, level int, dist float32) {
	conns := h.nodes[src].conns[level]
	for _, c := range conns {
		if c.ID == tgt {
			return
		}
	}

	m := h.maxConnsFor(level)
	if len(conns) < m {
		h.nodes[src].conns[level] = append(conns, neighbor{ID: tgt, Dist: dist})
		return
	}

	// Prune back to the best m using cached distances to src.
	cands := make([]queueItem, 0, len(conns)+1)
	for _, c := range conns {
		cands = append(cands, queueItem{Node: c.ID, Distance: c.Dist})
	}
	cands = append(cands, queueItem{Node: tgt, Distance: dist})
	sort.Slice(cands, func(i, j int) bool { return cands[i].Distance < cands[j].Distance })

	selected := h.selectNeighbors(cands, m)
	pruned := make([]neighbor, 0, m)
	for _, n := range selected {
		pruned = append(pruned, neighbor{ID: n.Node, Dist: n.Distance})
	}
	h.nodes[src].conns[level] = pruned
}
