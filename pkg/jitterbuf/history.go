package jitterbuf

import (
	"math"

	"github.com/samber/lo"
)

// history keeps a sliding window of delay samples and derives jitter and
// minimum delay from it, ignoring the drop most extreme samples on either
// side, drop being DropPct of the window capacity rounded up. The sorted
// extremes are rebuilt lazily.
type history struct {
	samples []int64
	ptr     int64 // samples ever recorded
	drop    int

	maxbuf []int64 // descending
	minbuf []int64 // ascending
	valid  bool
}

func newHistory(size, dropPct int) *history {
	dropPct = lo.Clamp(dropPct, 0, MaxDropPct)
	drop := (size*dropPct + 99) / 100
	return &history{
		samples: make([]int64, size),
		drop:    drop,
		maxbuf:  make([]int64, drop+1),
		minbuf:  make([]int64, drop+1),
	}
}

func (h *history) count() int {
	return int(lo.Min([]int64{h.ptr, int64(len(h.samples))}))
}

func (h *history) reset() {
	h.ptr = 0
	h.valid = false
}

func (h *history) record(delay int64) {
	size := int64(len(h.samples))
	full := h.ptr >= size
	slot := h.ptr % size
	kicked := h.samples[slot]
	h.samples[slot] = delay
	h.ptr++

	if !h.valid {
		return
	}
	last := len(h.maxbuf) - 1
	switch {
	case !full:
		h.valid = false
	case delay < h.minbuf[last] || delay > h.maxbuf[last]:
		// the new sample enters the retained extremes
		h.valid = false
	case kicked <= h.minbuf[last] || kicked >= h.maxbuf[last]:
		// an extreme left the window
		h.valid = false
	}
}

func (h *history) calc() {
	for i := range h.maxbuf {
		h.maxbuf[i] = math.MinInt64
		h.minbuf[i] = math.MaxInt64
	}
	n := h.count()
	for i := 0; i < n; i++ {
		insertSorted(h.maxbuf, h.samples[i], func(a, b int64) bool { return a > b })
		insertSorted(h.minbuf, h.samples[i], func(a, b int64) bool { return a < b })
	}
	h.valid = true
}

// insertSorted places v into the fixed-size sorted buf if it belongs there,
// shifting the tail out.
func insertSorted(buf []int64, v int64, before func(a, b int64) bool) {
	for j := range buf {
		if before(v, buf[j]) {
			copy(buf[j+1:], buf[j:len(buf)-1])
			buf[j] = v
			return
		}
	}
}

// stats returns jitter (spread between the retained extremes) and the
// minimum delay. Both are zero when no sample has been recorded. Until the
// window holds 2*drop+1 samples nothing is trimmed.
func (h *history) stats() (jitter, minDelay int64) {
	n := h.count()
	if n == 0 {
		return 0, 0
	}
	if !h.valid {
		h.calc()
	}
	idx := h.drop
	if n < 2*h.drop+1 {
		idx = 0
	}
	return h.maxbuf[idx] - h.minbuf[idx], h.minbuf[idx]
}
