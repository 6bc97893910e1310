package bpdecoder

import "sort"

// history is a fixed capacity window of single-row candidates. The oldest
// value is evicted first.
type history struct {
	values []int
	size   int
}

func newHistory(size int) *history {
	if size < 1 {
		size = 1
	}
	return &history{values: make([]int, 0, size), size: size}
}

func (h *history) push(v int) {
	if len(h.values) == h.size {
		copy(h.values, h.values[1:])
		h.values = h.values[:h.size-1]
	}
	h.values = append(h.values, v)
}

// median returns the middle element of the sorted window, the upper one
// for even lengths.
func (h *history) median() int {
	if len(h.values) == 0 {
		return 0
	}
	sorted := append([]int(nil), h.values...)
	sort.Ints(sorted)
	return sorted[len(sorted)/2]
}

// medianWith is the median the window would have after push(v), without
// changing it.
func (h *history) medianWith(v int) int {
	trial := &history{values: append(make([]int, 0, h.size), h.values...), size: h.size}
	trial.push(v)
	return trial.median()
}

func (h *history) len() int {
	return len(h.values)
}

func (h *history) snapshot() []int {
	return append([]int(nil), h.values...)
}

func (h *history) clear() {
	h.values = h.values[:0]
}
