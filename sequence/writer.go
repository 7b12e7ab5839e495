package sequence

import (
	"go-midimodel/debug"
	"go-midimodel/midi"
	"go-midimodel/temporal"
)

// AddNote inserts n, first letting the overlap resolver veto or make room
// for it when overlapping pitches are not accepted. Returns false when the
// note was refused. A note without an id gets one.
func (w *Writer[T]) AddNote(n *midi.Note[T], fx SideEffects[T]) bool {
	w.check()
	s := w.seq
	if _, ok := s.noteKeys[n]; ok {
		return true
	}
	if !s.overlapAccepted.Load() && !s.writing && s.resolver != nil {
		if !s.resolver(w, n, fx) {
			debug.Log("sequence", "add refused by overlap resolver: %s", n)
			return false
		}
	}
	s.insertNote(n)
	return true
}

// InsertNote inserts n without consulting the overlap resolver.
func (w *Writer[T]) InsertNote(n *midi.Note[T]) {
	w.check()
	if _, ok := w.seq.noteKeys[n]; ok {
		return
	}
	w.seq.insertNote(n)
}

// RemoveNote removes n from every index. A note that is not stored is
// matched by id instead; if nothing matches this is a no-op.
func (w *Writer[T]) RemoveNote(n *midi.Note[T]) bool {
	w.check()
	s := w.seq
	if _, ok := s.noteKeys[n]; ok {
		s.removeNote(n)
		return true
	}
	if n.ID() == midi.NoID {
		return false
	}
	if o, ok := s.noteByID[n.ID()]; ok {
		s.removeNote(o)
		return true
	}
	return false
}

// UpdateNote removes n, lets fn mutate it, then reinserts it without
// consulting the overlap resolver. Any change to time, channel or pitch
// must go through here.
func (w *Writer[T]) UpdateNote(n *midi.Note[T], fn func(n *midi.Note[T])) bool {
	w.check()
	s := w.seq
	if _, ok := s.noteKeys[n]; !ok {
		fn(n)
		return false
	}
	s.removeNote(n)
	fn(n)
	s.insertNote(n)
	return true
}

func (w *Writer[T]) AddSysEx(e *midi.Event[T]) {
	w.check()
	if _, ok := w.seq.sysexKeys[e]; ok {
		return
	}
	w.seq.insertSysEx(e)
}

func (w *Writer[T]) RemoveSysEx(e *midi.Event[T]) bool {
	w.check()
	s := w.seq
	k, ok := s.sysexKeys[e]
	if !ok {
		return false
	}
	s.sysexes.Delete(k)
	delete(s.sysexKeys, e)
	s.edited.Store(true)
	return true
}

// UpdateSysEx is UpdateNote for sysex events.
func (w *Writer[T]) UpdateSysEx(e *midi.Event[T], fn func(e *midi.Event[T])) bool {
	present := w.RemoveSysEx(e)
	fn(e)
	if present {
		w.seq.insertSysEx(e)
	}
	return present
}

func (w *Writer[T]) AddPatchChange(p *midi.PatchChange[T]) {
	w.check()
	if _, ok := w.seq.patchKeys[p]; ok {
		return
	}
	w.seq.insertPatchChange(p)
}

// RemovePatchChange removes p, or a value-equal patch change at the same
// time when p itself is not stored.
func (w *Writer[T]) RemovePatchChange(p *midi.PatchChange[T]) bool {
	w.check()
	s := w.seq
	target := p
	if _, ok := s.patchKeys[p]; !ok {
		target = nil
		s.patchChanges.AscendGreaterOrEqual(patchKey[T]{time: p.Time()}, func(k patchKey[T]) bool {
			if k.time != p.Time() {
				return false
			}
			if k.item.Equal(p) {
				target = k.item
				return false
			}
			return true
		})
		if target == nil {
			return false
		}
	}
	s.patchChanges.Delete(s.patchKeys[target])
	delete(s.patchKeys, target)
	s.edited.Store(true)
	return true
}

func (w *Writer[T]) UpdatePatchChange(p *midi.PatchChange[T], fn func(p *midi.PatchChange[T])) bool {
	w.check()
	s := w.seq
	k, ok := s.patchKeys[p]
	if ok {
		s.patchChanges.Delete(k)
		delete(s.patchKeys, p)
	}
	fn(p)
	if ok {
		s.insertPatchChange(p)
	}
	return ok
}

// Clear removes all notes, sysex events, patch changes and controller data.
func (w *Writer[T]) Clear() {
	w.check()
	s := w.seq
	s.reset()
	s.controls.Clear()
	s.edited.Store(true)
}

// Shift moves every event, including controller breakpoints, by d.
func (w *Writer[T]) Shift(d T) {
	w.check()
	s := w.seq
	notes, sysexes, patches := w.Notes(), w.SysExes(), w.PatchChanges()
	for _, n := range notes {
		s.removeNote(n)
		n.SetTime(n.Time().Add(d))
	}
	for _, n := range notes {
		s.insertNote(n)
	}
	for _, e := range sysexes {
		w.UpdateSysEx(e, func(e *midi.Event[T]) { e.SetTime(e.Time().Add(d)) })
	}
	for _, p := range patches {
		w.UpdatePatchChange(p, func(p *midi.PatchChange[T]) { p.SetTime(p.Time().Add(d)) })
	}
	s.controls.Shift(d)
}

func (s *Sequence[T]) insertNote(n *midi.Note[T]) {
	if n.ID() == midi.NoID {
		n.SetID(midi.NextEventID())
	} else {
		midi.EnsureEventIDAbove(n.ID())
	}
	k := noteKey[T]{
		time:    n.Time(),
		pitch:   n.Pitch(),
		channel: n.Channel(),
		serial:  n.Serial(),
		note:    n,
	}
	s.notes.ReplaceOrInsert(k)
	s.pitches[k.channel].ReplaceOrInsert(k)
	s.noteKeys[n] = k
	s.noteByID[n.ID()] = n

	if s.notes.Len() == 1 {
		s.lowest, s.highest = k.pitch, k.pitch
	} else {
		s.lowest = min(s.lowest, k.pitch)
		s.highest = max(s.highest, k.pitch)
	}
	s.edited.Store(true)
}

func (s *Sequence[T]) removeNote(n *midi.Note[T]) {
	k := s.noteKeys[n]
	s.notes.Delete(k)
	s.pitches[k.channel].Delete(k)
	delete(s.noteKeys, n)
	if s.noteByID[n.ID()] == n {
		delete(s.noteByID, n.ID())
	}
	if k.pitch == s.lowest || k.pitch == s.highest {
		s.recomputeExtremes()
	}
	s.edited.Store(true)
}

func (s *Sequence[T]) recomputeExtremes() {
	s.lowest, s.highest = 127, 0
	for _, idx := range s.pitches {
		if lo, ok := idx.Min(); ok {
			s.lowest = min(s.lowest, lo.pitch)
		}
		if hi, ok := idx.Max(); ok {
			s.highest = max(s.highest, hi.pitch)
		}
	}
}

func (s *Sequence[T]) insertSysEx(e *midi.Event[T]) {
	if e.ID() == midi.NoID {
		e.SetID(midi.NextEventID())
	} else {
		midi.EnsureEventIDAbove(e.ID())
	}
	k := sysexKey[T]{time: e.Time(), serial: e.Serial(), item: e}
	s.sysexes.ReplaceOrInsert(k)
	s.sysexKeys[e] = k
	s.edited.Store(true)
}

func (s *Sequence[T]) insertPatchChange(p *midi.PatchChange[T]) {
	if p.ID() == midi.NoID {
		p.SetID(midi.NextEventID())
	} else {
		midi.EnsureEventIDAbove(p.ID())
	}
	k := patchKey[T]{time: p.Time(), serial: p.Serial(), item: p}
	s.patchChanges.ReplaceOrInsert(k)
	s.patchKeys[p] = k
	s.edited.Store(true)
}

// LastTime is the latest start or finite end of any stored event, or zero.
func (r *Reader[T]) LastTime() T {
	r.check()
	s := r.seq
	last := temporal.Zero[T]()
	s.notes.Ascend(func(k noteKey[T]) bool {
		if !temporal.IsMax(k.note.EndTime()) {
			last = temporal.Later(last, k.note.EndTime())
		}
		last = temporal.Later(last, k.time)
		return true
	})
	if k, ok := s.sysexes.Max(); ok {
		last = temporal.Later(last, k.time)
	}
	if k, ok := s.patchChanges.Max(); ok {
		last = temporal.Later(last, k.time)
	}
	return last
}
