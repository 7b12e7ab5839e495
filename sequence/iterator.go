package sequence

import (
	"container/heap"
	"iter"
	"math"

	"github.com/google/btree"

	"go-midimodel/midi"
	"go-midimodel/temporal"
)

// ControlSampleTicks is the minimum spacing of interpolated controller
// samples.
const ControlSampleTicks = 256

// IterOptions configures Begin.
type IterOptions[T temporal.Time[T]] struct {
	// ForceDiscrete emits only controller breakpoints, no interpolation.
	ForceDiscrete bool
	// Filter skips the listed controller parameters.
	Filter map[midi.Parameter]bool
	// ActiveNotes are candidate notes already sounding at the start time.
	// Only those that start at or before it and end after it have their
	// note-offs delivered.
	ActiveNotes []*midi.Note[T]
}

// Iterator merges notes, sysex, patch changes and controller data in time
// order. It holds a read lock until it reaches the end or is closed.
//
// At equal times the order is note-off, controller, patch change, note-on,
// sysex.
type Iterator[T temporal.Time[T]] struct {
	r        *Reader[T]
	ownsLock bool
	done     bool
	ev       *midi.Event[T]

	note    noteKey[T]
	hasNote bool
	active  activeNotes[T]

	sysex    sysexKey[T]
	hasSysEx bool

	patch     patchKey[T]
	hasPatch  bool
	patchMsgs []*midi.Event[T]

	controls []*controlCursor[T]
}

type source int

const (
	srcNoteOff source = iota
	srcControl
	srcPatch
	srcNoteOn
	srcSysEx
	srcNone
)

// Begin acquires a read lock and positions a new iterator at t.
func (s *Sequence[T]) Begin(t T, opts IterOptions[T]) *Iterator[T] {
	it := s.ReadLock().Begin(t, opts)
	it.ownsLock = true
	if it.done {
		it.r.Release()
	}
	return it
}

// Events iterates every event from t under a read lock.
func (s *Sequence[T]) Events(t T, opts IterOptions[T]) iter.Seq[*midi.Event[T]] {
	return func(yield func(*midi.Event[T]) bool) {
		it := s.Begin(t, opts)
		defer it.Close()
		for it.Next() {
			if !yield(it.Event()) {
				return
			}
		}
	}
}

// Begin positions an iterator at t using the lock r already holds. Closing
// the iterator does not release r.
func (r *Reader[T]) Begin(t T, opts IterOptions[T]) *Iterator[T] {
	r.check()
	s := r.seq
	it := &Iterator[T]{r: r}

	s.notes.AscendGreaterOrEqual(noteKey[T]{time: t}, func(k noteKey[T]) bool {
		it.note, it.hasNote = k, true
		return false
	})
	s.sysexes.AscendGreaterOrEqual(sysexKey[T]{time: t}, func(k sysexKey[T]) bool {
		it.sysex, it.hasSysEx = k, true
		return false
	})
	s.patchChanges.AscendGreaterOrEqual(patchKey[T]{time: t}, func(k patchKey[T]) bool {
		it.patch, it.hasPatch = k, true
		return false
	})
	for _, n := range opts.ActiveNotes {
		// only notes sounding at t; later ones get their off from their own on
		if n.Time().Compare(t) <= 0 && n.EndTime().Compare(t) > 0 {
			heap.Push(&it.active, n)
		}
	}
	for _, snap := range s.controls.snapshot(opts.Filter) {
		it.controls = append(it.controls, newControlCursor(snap, t, opts.ForceDiscrete))
	}
	if it.pick() == srcNone {
		it.done = true
	}
	return it
}

// Next advances to the next event. It returns false at the end, at which
// point an owned lock has been released.
func (it *Iterator[T]) Next() bool {
	if it.done {
		return false
	}
	s := it.r.seq
	switch it.pick() {
	case srcNoteOff:
		n := heap.Pop(&it.active).(*midi.Note[T])
		it.ev = n.OffEvent()
	case srcControl:
		c := it.earliestControl()
		p, _ := c.peek()
		c.pop()
		it.ev = midi.ControlEvent(c.snap.param, p.Time, p.Value)
	case srcPatch:
		if len(it.patchMsgs) == 0 {
			it.patchMsgs = it.patch.item.Messages()
			it.patch, it.hasPatch = nextKey(s.patchChanges, it.patch, lessEvent[T, *midi.PatchChange[T]])
		}
		it.ev = it.patchMsgs[0]
		it.patchMsgs = it.patchMsgs[1:]
	case srcNoteOn:
		n := it.note.note
		heap.Push(&it.active, n)
		it.ev = n.OnEvent()
		it.note, it.hasNote = nextKey(s.notes, it.note, lessByTime[T])
	case srcSysEx:
		it.ev = it.sysex.item
		it.sysex, it.hasSysEx = nextKey(s.sysexes, it.sysex, lessEvent[T, *midi.Event[T]])
	default:
		it.Close()
		return false
	}
	return true
}

// Event returns the current event. Callers must not modify it.
func (it *Iterator[T]) Event() *midi.Event[T] { return it.ev }

// Done reports whether the iterator is exhausted or closed.
func (it *Iterator[T]) Done() bool { return it.done }

// ActiveNotes returns notes whose note-on has been delivered but whose
// note-off has not, so playback can resume with Begin.
func (it *Iterator[T]) ActiveNotes() []*midi.Note[T] {
	out := make([]*midi.Note[T], len(it.active))
	copy(out, it.active)
	return out
}

// Close releases the lock if the iterator owns it. Safe to call twice.
func (it *Iterator[T]) Close() {
	it.done = true
	if it.ownsLock {
		it.r.Release()
	}
}

func (it *Iterator[T]) pick() source {
	best, bestSrc := temporal.Zero[T](), srcNone
	consider := func(t T, src source) {
		if bestSrc == srcNone || t.Compare(best) < 0 {
			best, bestSrc = t, src
		}
	}
	// candidates are offered in tie-break order, so equal times keep the first
	if len(it.active) > 0 {
		consider(it.active[0].EndTime(), srcNoteOff)
	}
	if c := it.earliestControl(); c != nil {
		p, _ := c.peek()
		consider(p.Time, srcControl)
	}
	if len(it.patchMsgs) > 0 {
		consider(it.patchMsgs[0].Time(), srcPatch)
	} else if it.hasPatch {
		consider(it.patch.time, srcPatch)
	}
	if it.hasNote {
		consider(it.note.time, srcNoteOn)
	}
	if it.hasSysEx {
		consider(it.sysex.time, srcSysEx)
	}
	return bestSrc
}

func (it *Iterator[T]) earliestControl() *controlCursor[T] {
	var best *controlCursor[T]
	var bestTime T
	for _, c := range it.controls {
		p, ok := c.peek()
		if !ok {
			continue
		}
		if best == nil || p.Time.Compare(bestTime) < 0 {
			best, bestTime = c, p.Time
		}
	}
	return best
}

func nextKey[K any](tr *btree.BTreeG[K], cur K, less func(a, b K) bool) (K, bool) {
	var out K
	found := false
	tr.AscendGreaterOrEqual(cur, func(k K) bool {
		if less(cur, k) {
			out, found = k, true
			return false
		}
		return true
	})
	return out, found
}

type activeNotes[T temporal.Time[T]] []*midi.Note[T]

func (h activeNotes[T]) Len() int { return len(h) }
func (h activeNotes[T]) Less(i, j int) bool {
	if c := h[i].EndTime().Compare(h[j].EndTime()); c != 0 {
		return c < 0
	}
	return h[i].Serial() < h[j].Serial()
}
func (h activeNotes[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *activeNotes[T]) Push(x any)   { *h = append(*h, x.(*midi.Note[T])) }
func (h *activeNotes[T]) Pop() any {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}

// controlCursor walks one control list snapshot, producing breakpoints and,
// for linear lists, interpolated samples where the integer value changes.
type controlCursor[T temporal.Time[T]] struct {
	snap     controlSnapshot[T]
	discrete bool
	idx      int
	at       T
	last     int
	next     ControlPoint[T]
	has      bool
	step     T
}

func newControlCursor[T temporal.Time[T]](snap controlSnapshot[T], t T, forceDiscrete bool) *controlCursor[T] {
	c := &controlCursor[T]{
		snap:     snap,
		discrete: forceDiscrete || snap.interp == Discrete,
		at:       t,
		last:     -1,
		step:     temporal.Zero[T]().FromTicks(ControlSampleTicks),
	}
	for c.idx < len(snap.points) && snap.points[c.idx].Time.Compare(t) < 0 {
		c.idx++
	}
	return c
}

func (c *controlCursor[T]) peek() (ControlPoint[T], bool) {
	if !c.has {
		c.next, c.has = c.advance()
	}
	return c.next, c.has
}

func (c *controlCursor[T]) pop() { c.has = false }

func (c *controlCursor[T]) advance() (ControlPoint[T], bool) {
	pts := c.snap.points
	for c.idx < len(pts) {
		p := pts[c.idx]
		if c.discrete || c.idx == 0 || c.at.Compare(p.Time) >= 0 {
			c.idx++
			c.at = p.Time.Add(c.step)
			c.last = roundValue(p.Value)
			return p, true
		}
		at := c.at
		v := lerp(pts[c.idx-1], p, at)
		c.at = at.Add(c.step)
		if rv := roundValue(v); rv != c.last {
			c.last = rv
			return ControlPoint[T]{Time: at, Value: v}, true
		}
	}
	return ControlPoint[T]{}, false
}

func roundValue(v float64) int { return int(math.Round(v)) }
