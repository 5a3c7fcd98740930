package kdtree

// MinHeap is a binary min-heap over comparable values keyed by a float64
// priority, with an index back into the heap slice so that Prim's MST can
// decrease a node's key in O(log n) instead of re-scanning the frontier.
type MinHeap[T comparable] struct {
	items []*heapItem[T]
	pos   map[T]int
}

type heapItem[T comparable] struct {
	value T
	key   float64
}

// NewMinHeap returns an empty heap.
func NewMinHeap[T comparable]() *MinHeap[T] {
	return &MinHeap[T]{pos: make(map[T]int)}
}

// Len returns the number of values in the heap.
func (h *MinHeap[T]) Len() int { return len(h.items) }

func (h *MinHeap[T]) less(i, j int) bool { return h.items[i].key < h.items[j].key }

func (h *MinHeap[T]) swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.pos[h.items[i].value] = i
	h.pos[h.items[j].value] = j
}

// Insert adds value with the given key. Inserting a value already present
// is a no-op if the existing key is lower, otherwise behaves like DecreaseKey.
func (h *MinHeap[T]) Insert(value T, key float64) {
	if i, ok := h.pos[value]; ok {
		h.DecreaseKey(value, key)
		_ = i
		return
	}
	h.items = append(h.items, &heapItem[T]{value: value, key: key})
	i := len(h.items) - 1
	h.pos[value] = i
	h.up(i)
}

// Has reports whether value is currently in the heap.
func (h *MinHeap[T]) Has(value T) bool {
	_, ok := h.pos[value]
	return ok
}

// GetKey returns the current key for value and whether it is present.
func (h *MinHeap[T]) GetKey(value T) (float64, bool) {
	i, ok := h.pos[value]
	if !ok {
		return 0, false
	}
	return h.items[i].key, true
}

// Peek returns the minimum-key value without removing it.
func (h *MinHeap[T]) Peek() (T, float64, bool) {
	var zero T
	if len(h.items) == 0 {
		return zero, 0, false
	}
	return h.items[0].value, h.items[0].key, true
}

// ExtractMin removes and returns the minimum-key value.
func (h *MinHeap[T]) ExtractMin() (T, float64, bool) {
	var zero T
	if len(h.items) == 0 {
		return zero, 0, false
	}
	top := h.items[0]
	last := len(h.items) - 1
	h.swap(0, last)
	delete(h.pos, top.value)
	h.items = h.items[:last]
	if len(h.items) > 0 {
		h.down(0)
	}
	return top.value, top.key, true
}

// DecreaseKey lowers value's key. It is a no-op if newKey >= the current key
// or if value is not present.
func (h *MinHeap[T]) DecreaseKey(value T, newKey float64) {
	i, ok := h.pos[value]
	if !ok {
		return
	}
	if newKey >= h.items[i].key {
		return
	}
	h.items[i].key = newKey
	h.up(i)
}

func (h *MinHeap[T]) up(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h.less(i, parent) {
			break
		}
		h.swap(i, parent)
		i = parent
	}
}

func (h *MinHeap[T]) down(i int) {
	n := len(h.items)
	for {
		left, right := 2*i+1, 2*i+2
		smallest := i
		if left < n && h.less(left, smallest) {
			smallest = left
		}
		if right < n && h.less(right, smallest) {
			smallest = right
		}
		if smallest == i {
			return
		}
		h.swap(i, smallest)
		i = smallest
	}
}
