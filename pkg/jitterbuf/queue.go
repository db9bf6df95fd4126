package jitterbuf

import (
	"github.com/huandu/skiplist"

	"github.com/cloudwebrtc/go-jitterbuf/pkg/frame"
)

type queueKey struct {
	ts  int64
	seq uint64
}

var compareKeys = skiplist.GreaterThanFunc(func(lhs, rhs interface{}) int {
	l, r := lhs.(queueKey), rhs.(queueKey)
	switch {
	case l.ts > r.ts:
		return 1
	case l.ts < r.ts:
		return -1
	case l.seq > r.seq:
		return 1
	case l.seq < r.seq:
		return -1
	}
	return 0
})

// queue holds frames ordered by their schedule timestamp. That is the frame's
// own timestamp until the timeline is rebased. Frames with equal schedule
// timestamps keep their insertion order.
type queue struct {
	list *skiplist.SkipList
	seq  uint64

	lastRemovedTS int64
	removedAny    bool
}

func newQueue() *queue {
	return &queue{list: skiplist.New(compareKeys)}
}

func (q *queue) len() int {
	return q.list.Len()
}

// hasVoiceAt reports whether a voice frame is scheduled at ts.
func (q *queue) hasVoiceAt(ts int64) bool {
	for e := q.list.Find(queueKey{ts: ts}); e != nil; e = e.Next() {
		if e.Key().(queueKey).ts != ts {
			return false
		}
		if e.Value.(*frame.Frame).Kind == frame.Voice {
			return true
		}
	}
	return false
}

// insert schedules f at ts. head reports whether f became the first frame;
// ooo whether it arrived behind a frame already queued or already removed.
// A voice frame duplicating a queued voice timestamp is refused.
func (q *queue) insert(f *frame.Frame, ts int64) (head, ooo, dup bool) {
	if f.Kind == frame.Voice && q.hasVoiceAt(ts) {
		return false, false, true
	}
	if q.removedAny && ts < q.lastRemovedTS {
		ooo = true
	}
	if back := q.list.Back(); back != nil && ts < back.Key().(queueKey).ts {
		ooo = true
	}
	e := q.list.Set(queueKey{ts: ts, seq: q.seq}, f)
	q.seq++
	return q.list.Front() == e, ooo, false
}

// peek returns the head and its schedule timestamp, or nil.
func (q *queue) peek() (*frame.Frame, int64) {
	if e := q.list.Front(); e != nil {
		return e.Value.(*frame.Frame), e.Key().(queueKey).ts
	}
	return nil, 0
}

// peekDue returns the head without removing it if it is scheduled at or
// before ts.
func (q *queue) peekDue(ts int64) *frame.Frame {
	if f, at := q.peek(); f != nil && at <= ts {
		return f
	}
	return nil
}

// first and last return the schedule timestamps at both ends; ok is false
// when empty.
func (q *queue) first() (ts int64, ok bool) {
	if e := q.list.Front(); e != nil {
		return e.Key().(queueKey).ts, true
	}
	return 0, false
}

func (q *queue) last() (ts int64, ok bool) {
	if e := q.list.Back(); e != nil {
		return e.Key().(queueKey).ts, true
	}
	return 0, false
}

// span is the distance between the oldest and newest scheduled timestamps.
func (q *queue) span() int64 {
	first, ok := q.first()
	if !ok {
		return 0
	}
	last, _ := q.last()
	return last - first
}

func (q *queue) removeFirst() (*frame.Frame, int64) {
	e := q.list.RemoveFront()
	if e == nil {
		return nil, 0
	}
	ts := e.Key().(queueKey).ts
	q.lastRemovedTS = ts
	q.removedAny = true
	return e.Value.(*frame.Frame), ts
}

// removeDue removes the head if it is scheduled at or before ts.
func (q *queue) removeDue(ts int64) (*frame.Frame, int64) {
	if first, ok := q.first(); !ok || first > ts {
		return nil, 0
	}
	return q.removeFirst()
}

// rebase moves every scheduled timestamp by shift, keeping order.
func (q *queue) rebase(shift int64) {
	if shift == 0 {
		return
	}
	type entry struct {
		key queueKey
		f   *frame.Frame
	}
	entries := make([]entry, 0, q.len())
	for e := q.list.Front(); e != nil; e = e.Next() {
		entries = append(entries, entry{key: e.Key().(queueKey), f: e.Value.(*frame.Frame)})
	}
	q.list.Init()
	for _, en := range entries {
		en.key.ts += shift
		q.list.Set(en.key, en.f)
	}
	q.lastRemovedTS += shift
}

// drain empties the queue, returning the frames in playout order.
func (q *queue) drain() []*frame.Frame {
	frames := make([]*frame.Frame, 0, q.len())
	for f, _ := q.removeFirst(); f != nil; f, _ = q.removeFirst() {
		frames = append(frames, f)
	}
	return frames
}
