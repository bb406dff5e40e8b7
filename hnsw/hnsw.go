// Package hnsw implements a hierarchical navigable small-world graph:
// an approximate nearest-neighbor index over fixed-dimension vectors,
// incrementally maintained as vectors are inserted and deleted.
package hnsw

import (
	"container/heap"
	"math"
	"math/rand"
	"sync"

	"github.com/inputlayer/inputlayer/value"
)

// Metric names a distance function. Smaller is always "closer",
// including for Dot (stored as its negation so every metric shares the
// same "smaller wins" ordering the search and pruning code relies on).
type Metric uint8

const (
	MetricEuclidean Metric = iota
	MetricCosine
	MetricDot
	MetricManhattan
)

const defaultMaxLevel = 16

// Item is one indexed vector, tagged with the Value that identifies
// its owning row (returned to the caller on a Search hit, not used in
// distance computation).
type Item struct {
	ID     value.Value
	Vector []float32
}

// SearchResult is one neighbor found by Search.
type SearchResult struct {
	Row      value.Value
	Distance float64
}

type node struct {
	id         uint64
	item       Item
	level      int
	neighbors  [][]uint64 // neighbors[l] = neighbor node ids at layer l
	tombstoned bool
}

// Index is a single HNSW graph over one vector column. It is safe for
// concurrent use.
type Index struct {
	mu             sync.RWMutex
	metric         Metric
	m              int
	efConstruction int
	levelMult      float64
	rng            *rand.Rand

	nodes      map[uint64]*node
	byRowHash  map[uint64]uint64
	nextID     uint64
	entryPoint uint64
	hasEntry   bool
}

// New builds an empty index. m bounds the number of neighbors a node
// keeps per layer; efConstruction bounds the candidate list size used
// while linking a freshly inserted node (a larger value trades insert
// cost for recall).
func New(metric Metric, m, efConstruction int) *Index {
	if m < 2 {
		m = 2
	}
	if efConstruction < m {
		efConstruction = m
	}
	return &Index{
		metric:         metric,
		m:              m,
		efConstruction: efConstruction,
		levelMult:      1 / math.Log(float64(m)),
		rng:            rand.New(rand.NewSource(1)),
		nodes:          map[uint64]*node{},
		byRowHash:      map[uint64]uint64{},
	}
}

func (ix *Index) randomLevel() int {
	r := ix.rng.Float64()
	if r <= 0 {
		r = 1e-12
	}
	level := int(math.Floor(-math.Log(r) * ix.levelMult))
	if level > defaultMaxLevel {
		level = defaultMaxLevel
	}
	return level
}

func (ix *Index) distance(a, b []float32) float64 {
	switch ix.metric {
	case MetricCosine:
		return cosineDistance(a, b)
	case MetricDot:
		return -dotProduct(a, b)
	case MetricManhattan:
		return manhattanDistance(a, b)
	default:
		return euclideanDistance(a, b)
	}
}

func euclideanDistance(a, b []float32) float64 {
	var sum float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func manhattanDistance(a, b []float32) float64 {
	var sum float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum
}

func dotProduct(a, b []float32) float64 {
	var sum float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func cosineDistance(a, b []float32) float64 {
	dot := dotProduct(a, b)
	na := math.Sqrt(dotProduct(a, a))
	nb := math.Sqrt(dotProduct(b, b))
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(na*nb)
}

// candidate is one node under consideration during a layer search.
type candidate struct {
	id   uint64
	dist float64
}

// candidateHeap is a container/heap.Interface implementation shared by
// the "nearest so far" min-heap (max=false) and the "worst of the
// current best ef" max-heap (max=true) that searchLayer maintains.
type candidateHeap struct {
	items []candidate
	max   bool
}

func (h candidateHeap) Len() int { return len(h.items) }
func (h candidateHeap) Less(i, j int) bool {
	if h.max {
		return h.items[i].dist > h.items[j].dist
	}
	return h.items[i].dist < h.items[j].dist
}
func (h candidateHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *candidateHeap) Push(x interface{}) { h.items = append(h.items, x.(candidate)) }
func (h *candidateHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	it := old[n-1]
	h.items = old[:n-1]
	return it
}

// searchLayer performs a greedy best-first search over one graph layer
// starting from entryIDs, keeping at most ef candidates, and returns
// them sorted nearest-first. Tombstoned nodes are skipped entirely,
// both as results and as traversal hops — they are swept out of the
// graph structure on the next compaction.
func (ix *Index) searchLayer(entryIDs []uint64, query []float32, ef, level int) []candidate {
	visited := map[uint64]bool{}
	candidates := &candidateHeap{}
	results := &candidateHeap{max: true}

	for _, id := range entryIDs {
		n, ok := ix.nodes[id]
		if !ok || n.tombstoned || visited[id] {
			continue
		}
		visited[id] = true
		d := ix.distance(query, n.item.Vector)
		heap.Push(candidates, candidate{id, d})
		heap.Push(results, candidate{id, d})
	}

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(candidate)
		if results.Len() >= ef && c.dist > results.items[0].dist {
			break
		}
		cur := ix.nodes[c.id]
		if cur.level < level {
			continue
		}
		for _, neighborID := range cur.neighbors[level] {
			if visited[neighborID] {
				continue
			}
			visited[neighborID] = true
			neighbor, ok := ix.nodes[neighborID]
			if !ok || neighbor.tombstoned {
				continue
			}
			d := ix.distance(query, neighbor.item.Vector)
			if results.Len() < ef || d < results.items[0].dist {
				heap.Push(candidates, candidate{neighborID, d})
				heap.Push(results, candidate{neighborID, d})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]candidate, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(candidate)
	}
	return out
}

func idsOf(cs []candidate) []uint64 {
	out := make([]uint64, len(cs))
	for i, c := range cs {
		out[i] = c.id
	}
	return out
}

// Insert links item into the graph: greedy descent to the insertion
// level's neighborhood, then M-nearest-neighbor linking at every layer
// from the insertion level down to the base layer, with stochastic
// promotion of the entry point when the new node's level exceeds it.
func (ix *Index) Insert(item Item) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	id := ix.nextID
	ix.nextID++
	level := ix.randomLevel()
	n := &node{id: id, item: item, level: level, neighbors: make([][]uint64, level+1)}
	ix.nodes[id] = n
	ix.byRowHash[rowHash(item.ID)] = id

	if !ix.hasEntry {
		ix.entryPoint = id
		ix.hasEntry = true
		return
	}

	entryLevel := ix.nodes[ix.entryPoint].level
	cur := []uint64{ix.entryPoint}
	for l := entryLevel; l > level; l-- {
		if res := ix.searchLayer(cur, item.Vector, 1, l); len(res) > 0 {
			cur = []uint64{res[0].id}
		}
	}

	top := level
	if entryLevel < top {
		top = entryLevel
	}
	for l := top; l >= 0; l-- {
		res := ix.searchLayer(cur, item.Vector, ix.efConstruction, l)
		if len(res) > ix.m {
			res = res[:ix.m]
		}
		for _, c := range res {
			n.neighbors[l] = append(n.neighbors[l], c.id)
			other := ix.nodes[c.id]
			other.neighbors[l] = append(other.neighbors[l], id)
			if len(other.neighbors[l]) > ix.m {
				ix.pruneNeighbors(other, l)
			}
		}
		if len(res) > 0 {
			cur = idsOf(res)
		}
	}

	if level > entryLevel {
		ix.entryPoint = id
	}
}

// pruneNeighbors keeps only the m closest neighbors (to n's own
// vector) at layer l, dropping the rest.
func (ix *Index) pruneNeighbors(n *node, l int) {
	type scored struct {
		id   uint64
		dist float64
	}
	scores := make([]scored, 0, len(n.neighbors[l]))
	for _, id := range n.neighbors[l] {
		other, ok := ix.nodes[id]
		if !ok {
			continue
		}
		scores = append(scores, scored{id, ix.distance(n.item.Vector, other.item.Vector)})
	}
	for i := 1; i < len(scores); i++ {
		for j := i; j > 0 && scores[j].dist < scores[j-1].dist; j-- {
			scores[j], scores[j-1] = scores[j-1], scores[j]
		}
	}
	if len(scores) > ix.m {
		scores = scores[:ix.m]
	}
	kept := make([]uint64, len(scores))
	for i, s := range scores {
		kept[i] = s.id
	}
	n.neighbors[l] = kept
}

func rowHash(id value.Value) uint64 { return value.NewTuple(id).Hash64() }

// Delete tombstones the node indexed under rowKey, if any. Tombstoned
// nodes are excluded from every subsequent search and traversal; their
// storage and edge lists are reclaimed on the next Compact.
func (ix *Index) Delete(rowKey value.Value) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	id, ok := ix.byRowHash[rowHash(rowKey)]
	if !ok {
		return false
	}
	n, ok := ix.nodes[id]
	if !ok || n.tombstoned {
		return false
	}
	n.tombstoned = true
	delete(ix.byRowHash, rowHash(rowKey))
	return true
}

// Compact drops every tombstoned node and the edges pointing to it.
// Amortizes the cost of Delete, which only flips a flag.
func (ix *Index) Compact() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for id, n := range ix.nodes {
		if n.tombstoned {
			delete(ix.nodes, id)
		}
	}
	for _, n := range ix.nodes {
		for l := range n.neighbors {
			kept := n.neighbors[l][:0]
			for _, nb := range n.neighbors[l] {
				if other, ok := ix.nodes[nb]; ok && !other.tombstoned {
					kept = append(kept, nb)
				}
			}
			n.neighbors[l] = kept
		}
	}
	if ix.hasEntry {
		if n, ok := ix.nodes[ix.entryPoint]; !ok || n.tombstoned {
			ix.hasEntry = false
			for id, n := range ix.nodes {
				if !n.tombstoned {
					ix.entryPoint = id
					ix.hasEntry = true
					break
				}
			}
		}
	}
}

// Search descends the graph greedily from the top layer to layer 1
// (ef=1, the standard HNSW routing phase), then performs a widened
// search at the base layer with ef = max(k, efConstruction) and
// returns the nearest k results, nearest first. If hasRadius is set,
// results farther than radius are excluded before the k-cutoff.
func (ix *Index) Search(query []float32, k int64, radius float64, hasRadius bool) ([]SearchResult, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if !ix.hasEntry {
		return nil, nil
	}

	cur := []uint64{ix.entryPoint}
	topLevel := ix.nodes[ix.entryPoint].level
	for l := topLevel; l > 0; l-- {
		if res := ix.searchLayer(cur, query, 1, l); len(res) > 0 {
			cur = []uint64{res[0].id}
		}
	}

	ef := int(k)
	if ef < ix.efConstruction {
		ef = ix.efConstruction
	}
	res := ix.searchLayer(cur, query, ef, 0)

	out := make([]SearchResult, 0, len(res))
	for _, c := range res {
		if hasRadius && c.dist > radius {
			continue
		}
		out = append(out, SearchResult{Row: ix.nodes[c.id].item.ID, Distance: c.dist})
		if k > 0 && int64(len(out)) == k {
			break
		}
	}
	return out, nil
}
