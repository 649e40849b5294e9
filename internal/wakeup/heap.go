package wakeup

import (
	"container/heap"
	"time"
)

type entry struct {
	tabID string
	at    time.Time
	seq   uint64
	index int
}

// deadlineHeap orders entries by deadline, then by arm order.
type deadlineHeap []*entry

func (h deadlineHeap) Len() int { return len(h) }
func (h deadlineHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *deadlineHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

func (h *deadlineHeap) remove(e *entry) {
	if e.index < 0 || e.index >= h.Len() || (*h)[e.index] != e {
		return
	}
	heap.Remove(h, e.index)
}
