package hnsw

// queueItem is a (node, distance) pair held in a priority queue.
type queueItem struct {
	Node     uint32
	Distance float32
}

// priorityQueue implements a binary heap of queueItems.
// Value-based storage, no container/heap interface overhead.
type priorityQueue struct {
	isMaxHeap bool
	items     []queueItem
}

func newPriorityQueue(isMaxHeap bool) *priorityQueue {
	return &priorityQueue{
		isMaxHeap: isMaxHeap,
		items:     make([]queueItem, 0, 16),
	}
}

// Reset clears the queue for reuse.
func (pq *priorityQueue) Reset() {
	pq.items = pq.items[:0]
}

// Len returns the number of elements in the heap.
func (pq *priorityQueue) Len() int {
	return len(pq.items)
}

// Top returns the top element of the heap without removing it.
func (pq *priorityQueue) Top() (queueItem, bool) {
	if len(pq.items) == 0 {
		return queueItem{}, false
	}
	return pq.items[0], true
}

// Push inserts an item while maintaining the heap invariant.
func (pq *priorityQueue) Push(item queueItem) {
	pq.items = append(pq.items, item)
	pq.siftUp(len(pq.items) - 1)
}

// PushBounded inserts an item into a heap bounded to capacity elements.
// On a full max-heap the worst (farthest) item is replaced when the new
// item is closer; otherwise the item is skipped.
func (pq *priorityQueue) PushBounded(item queueItem, capacity int) {
	if len(pq.items) < capacity {
		pq.Push(item)
		return
	}
	top, _ := pq.Top()
	if pq.isMaxHeap && item.Distance < top.Distance {
		pq.items[0] = item
		pq.siftDown(0)
	}
}

// Pop removes and returns the top element from the heap.
func (pq *priorityQueue) Pop() (queueItem, bool) {
	n := len(pq.items)
	if n == 0 {
		return queueItem{}, false
	}
	item := pq.items[0]
	pq.items[0] = pq.items[n-1]
	pq.items = pq.items[:n-1]
	if len(pq.items) > 0 {
		pq.siftDown(0)
	}
	return item, true
}

func (pq *priorityQueue) less(i, j int) bool {
	if pq.isMaxHeap {
		return pq.items[i].Distance > pq.items[j].Distance
	}
	return pq.items[i].Distance < pq.items[j].Distance
}

func (pq *priorityQueue) swap(i, j int) {
	pq.items[i], pq.items[j] = pq.items[j], pq.items[i]
}

func (pq *priorityQueue) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !pq.less(i, parent) {
			break
		}
		pq.swap(i, parent)
		i = parent
	}
}

func (pq *priorityQueue) siftDown(i int) {
	n := len(pq.items)
	for {
		left := 2*i + 1
		if left >= n {
			break
		}
		child := left
		if right := left + 1; right < n && pq.less(right, left) {
			child = right
		}
		if !pq.less(child, i) {
			break
		}
		pq.swap(i, child)
		i = child
	}
}
