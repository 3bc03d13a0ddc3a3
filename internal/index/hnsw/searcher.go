package hnsw

import "sync"

// searcher is a reusable execution context for one graph traversal.
// It owns all scratch memory required for search, eliminating heap
// allocations in the steady state. Not safe for concurrent use; it is
// owned by a single goroutine for the duration of one operation.
type searcher struct {
	// visited tracks visited nodes during graph traversal.
	visited *visitedSet

	// candidates is a min-heap of nodes still to explore.
	candidates *priorityQueue

	// results is a max-heap of the best ef nodes found so far
	// (top is the current worst).
	results *priorityQueue

	// scratch is a reusable buffer for extracting heap contents.
	scratch []queueItem
}

var searcherPool = sync.Pool{
	New: func() any {
		return &searcher{
			visited:    newVisitedSet(1024),
			candidates: newPriorityQueue(false),
			results:    newPriorityQueue(true),
			scratch:    make([]queueItem, 0, 128),
		}
	},
}

func getSearcher() *searcher {
	s := searcherPool.Get().(*searcher)
	s.Reset()
	return s
}

func putSearcher(s *searcher) {
	searcherPool.Put(s)
}

// Reset clears the searcher state for reuse.
func (s *searcher) Reset() {
	s.visited.Reset()
	s.candidates.Reset()
	s.results.Reset()
	s.scratch = s.scratch[:0]
}

// extractAscending drains the results max-heap into the scratch buffer,
// ordered nearest first.
func (s *searcher) extractAscending() []queueItem {
	out := s.scratch[:0]
	for s.results.Len() > 0 {
		item, _ := s.results.Pop()
		out = append(out, item)
	}
	// Popping a max-heap yields farthest first; reverse for nearest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	s.scratch = out
	return out
}
