package sequence

import (
	"slices"
	"sync"
	"sync/atomic"

	"go-midimodel/midi"
	"go-midimodel/seqerr"
	"go-midimodel/temporal"
)

// Reader is proof of holding the shared lock. Release it exactly once;
// further calls are no-ops.
type Reader[T temporal.Time[T]] struct {
	seq    *Sequence[T]
	unlock func()
	once   sync.Once
	live   atomic.Bool
}

// Writer is proof of holding the exclusive lock. It can do everything a
// Reader can.
type Writer[T temporal.Time[T]] struct {
	Reader[T]
}

func (r *Reader[T]) Release() {
	r.once.Do(func() {
		r.live.Store(false)
		r.unlock()
	})
}

// Sequence returns the locked sequence.
func (r *Reader[T]) Sequence() *Sequence[T] { return r.seq }

func (r *Reader[T]) check() {
	if !r.live.Load() {
		panic(seqerr.ContractViolation("sequence accessed through a released lock"))
	}
}

func (r *Reader[T]) Empty() bool {
	r.check()
	s := r.seq
	return s.notes.Len() == 0 && s.sysexes.Len() == 0 && s.patchChanges.Len() == 0 && s.controls.Empty()
}

func (r *Reader[T]) NoteCount() int {
	r.check()
	return r.seq.notes.Len()
}

// Writing reports whether the sequence is in streaming write mode.
func (r *Reader[T]) Writing() bool {
	r.check()
	return r.seq.writing
}

// Notes returns all notes in time order.
func (r *Reader[T]) Notes() []*midi.Note[T] {
	r.check()
	out := make([]*midi.Note[T], 0, r.seq.notes.Len())
	r.seq.notes.Ascend(func(k noteKey[T]) bool {
		out = append(out, k.note)
		return true
	})
	return out
}

// ChannelNotes returns the notes of one channel ordered by pitch then time.
func (r *Reader[T]) ChannelNotes(channel uint8) []*midi.Note[T] {
	r.check()
	if channel >= midi.NumChannels {
		return nil
	}
	var out []*midi.Note[T]
	r.seq.pitches[channel].Ascend(func(k noteKey[T]) bool {
		out = append(out, k.note)
		return true
	})
	return out
}

func (r *Reader[T]) SysExes() []*midi.Event[T] {
	r.check()
	out := make([]*midi.Event[T], 0, r.seq.sysexes.Len())
	r.seq.sysexes.Ascend(func(k sysexKey[T]) bool {
		out = append(out, k.item)
		return true
	})
	return out
}

func (r *Reader[T]) PatchChanges() []*midi.PatchChange[T] {
	r.check()
	out := make([]*midi.PatchChange[T], 0, r.seq.patchChanges.Len())
	r.seq.patchChanges.Ascend(func(k patchKey[T]) bool {
		out = append(out, k.item)
		return true
	})
	return out
}

// LowestNote and HighestNote are only meaningful when there are notes.
func (r *Reader[T]) LowestNote() uint8 {
	r.check()
	return r.seq.lowest
}

func (r *Reader[T]) HighestNote() uint8 {
	r.check()
	return r.seq.highest
}

// NoteLowerBound returns the first note starting at or after t.
func (r *Reader[T]) NoteLowerBound(t T) (*midi.Note[T], bool) {
	r.check()
	var found *midi.Note[T]
	r.seq.notes.AscendGreaterOrEqual(noteKey[T]{time: t}, func(k noteKey[T]) bool {
		found = k.note
		return false
	})
	return found, found != nil
}

// NotesFrom returns notes starting at or after t, in time order.
func (r *Reader[T]) NotesFrom(t T) []*midi.Note[T] {
	r.check()
	var out []*midi.Note[T]
	r.seq.notes.AscendGreaterOrEqual(noteKey[T]{time: t}, func(k noteKey[T]) bool {
		out = append(out, k.note)
		return true
	})
	return out
}

func (r *Reader[T]) SysExLowerBound(t T) (*midi.Event[T], bool) {
	r.check()
	var found *midi.Event[T]
	r.seq.sysexes.AscendGreaterOrEqual(sysexKey[T]{time: t}, func(k sysexKey[T]) bool {
		found = k.item
		return false
	})
	return found, found != nil
}

func (r *Reader[T]) PatchChangeLowerBound(t T) (*midi.PatchChange[T], bool) {
	r.check()
	var found *midi.PatchChange[T]
	r.seq.patchChanges.AscendGreaterOrEqual(patchKey[T]{time: t}, func(k patchKey[T]) bool {
		found = k.item
		return false
	})
	return found, found != nil
}

// Present reports whether this exact note is stored.
func (r *Reader[T]) Present(n *midi.Note[T]) bool {
	r.check()
	_, ok := r.seq.noteKeys[n]
	return ok
}

func (r *Reader[T]) SysExPresent(e *midi.Event[T]) bool {
	r.check()
	_, ok := r.seq.sysexKeys[e]
	return ok
}

func (r *Reader[T]) PatchChangePresent(p *midi.PatchChange[T]) bool {
	r.check()
	_, ok := r.seq.patchKeys[p]
	return ok
}

// FindNote looks a note up by id.
func (r *Reader[T]) FindNote(id int64) (*midi.Note[T], bool) {
	r.check()
	n, ok := r.seq.noteByID[id]
	return n, ok
}

func (r *Reader[T]) FindSysEx(id int64) (*midi.Event[T], bool) {
	r.check()
	for e := range r.seq.sysexKeys {
		if e.ID() == id {
			return e, true
		}
	}
	return nil, false
}

func (r *Reader[T]) FindPatchChange(id int64) (*midi.PatchChange[T], bool) {
	r.check()
	for p := range r.seq.patchKeys {
		if p.ID() == id {
			return p, true
		}
	}
	return nil, false
}

// Contains reports whether a note equal to n (ignoring id) is stored.
func (r *Reader[T]) Contains(n *midi.Note[T]) bool {
	r.check()
	found := false
	r.seq.ascendPitch(n.Channel(), n.Pitch(), func(o *midi.Note[T]) bool {
		if o.Equal(n) {
			found = true
			return false
		}
		return true
	})
	return found
}

// Overlaps reports whether any stored note other than n and ignore shares
// n's channel and pitch and overlaps its [time, end) interval.
func (r *Reader[T]) Overlaps(n, ignore *midi.Note[T]) bool {
	r.check()
	return len(r.seq.overlapping(n, ignore)) > 0
}

// OverlappingNotes returns the stored notes Overlaps would report, in time
// order.
func (r *Reader[T]) OverlappingNotes(n, ignore *midi.Note[T]) []*midi.Note[T] {
	r.check()
	return r.seq.overlapping(n, ignore)
}

// NoteOperator is a relational test used by GetNotes.
type NoteOperator int

const (
	PitchEqual NoteOperator = iota
	PitchLessThan
	PitchLessThanOrEqual
	PitchGreater
	PitchGreaterThanOrEqual
	VelocityEqual
	VelocityLessThan
	VelocityLessThanOrEqual
	VelocityGreater
	VelocityGreaterThanOrEqual
)

func (op NoteOperator) pitchOp() bool { return op <= PitchGreaterThanOrEqual }

func (op NoteOperator) match(v, want uint8) bool {
	switch op {
	case PitchEqual, VelocityEqual:
		return v == want
	case PitchLessThan, VelocityLessThan:
		return v < want
	case PitchLessThanOrEqual, VelocityLessThanOrEqual:
		return v <= want
	case PitchGreater, VelocityGreater:
		return v > want
	case PitchGreaterThanOrEqual, VelocityGreaterThanOrEqual:
		return v >= want
	}
	return false
}

// GetNotes returns notes matching op against value, in time order.
// chanMask is a bit per channel; zero means every channel.
func (r *Reader[T]) GetNotes(op NoteOperator, value uint8, chanMask uint16) []*midi.Note[T] {
	r.check()
	var out []*midi.Note[T]
	if op.pitchOp() {
		for ch := range r.seq.pitches {
			if chanMask != 0 && chanMask&(1<<ch) == 0 {
				continue
			}
			r.seq.pitches[ch].Ascend(func(k noteKey[T]) bool {
				if op.match(k.pitch, value) {
					out = append(out, k.note)
					return true
				}
				// pitch order: once past the range nothing later matches
				return k.pitch < value || op == PitchGreater || op == PitchGreaterThanOrEqual
			})
		}
		slices.SortFunc(out, compareNotes[T])
		return out
	}
	r.seq.notes.Ascend(func(k noteKey[T]) bool {
		if chanMask != 0 && chanMask&(1<<k.channel) == 0 {
			return true
		}
		if op.match(k.note.Velocity(), value) {
			out = append(out, k.note)
		}
		return true
	})
	return out
}

func compareNotes[T temporal.Time[T]](a, b *midi.Note[T]) int {
	if c := a.Time().Compare(b.Time()); c != 0 {
		return c
	}
	switch {
	case a.Serial() < b.Serial():
		return -1
	case a.Serial() > b.Serial():
		return 1
	}
	return 0
}

// ascendPitch visits the notes of one channel and pitch in time order.
func (s *Sequence[T]) ascendPitch(ch, pitch uint8, fn func(*midi.Note[T]) bool) {
	if ch >= midi.NumChannels {
		return
	}
	s.pitches[ch].AscendGreaterOrEqual(noteKey[T]{pitch: pitch, time: minTime[T]()}, func(k noteKey[T]) bool {
		if k.pitch != pitch {
			return false
		}
		return fn(k.note)
	})
}

func (s *Sequence[T]) overlapping(n, ignore *midi.Note[T]) []*midi.Note[T] {
	var out []*midi.Note[T]
	sa, ea := n.Time(), n.EndTime()
	s.ascendPitch(n.Channel(), n.Pitch(), func(o *midi.Note[T]) bool {
		if o == n || o == ignore {
			return true
		}
		sb, eb := o.Time(), o.EndTime()
		if sb.Compare(ea) >= 0 {
			return false
		}
		if sa.Compare(eb) < 0 {
			out = append(out, o)
		}
		return true
	})
	return out
}

// overlapsInterval uses half-open intervals.
func overlapsInterval[T temporal.Time[T]](a, b *midi.Note[T]) bool {
	return a.Time().Compare(b.EndTime()) < 0 && b.Time().Compare(a.EndTime()) < 0
}

func minTime[T temporal.Time[T]]() T {
	var z T
	return z.FromTicks(-1 << 63)
}
