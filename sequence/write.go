package sequence

import (
	"go-midimodel/debug"
	"go-midimodel/midi"
	"go-midimodel/seqerr"
)

// StuckNoteOption says what EndWrite does with notes still waiting for
// their note-off.
type StuckNoteOption int

const (
	// Relax leaves pending notes ending at the maximum time.
	Relax StuckNoteOption = iota
	DeleteStuckNotes
	// ResolveStuckNotes ends pending notes at the time passed to EndWrite.
	ResolveStuckNotes
)

func (o StuckNoteOption) String() string {
	switch o {
	case DeleteStuckNotes:
		return "delete"
	case ResolveStuckNotes:
		return "resolve"
	}
	return "relax"
}

// ParseStuckNoteOption is the inverse of String.
func ParseStuckNoteOption(s string) (StuckNoteOption, bool) {
	for o := Relax; o <= ResolveStuckNotes; o++ {
		if o.String() == s {
			return o, true
		}
	}
	return Relax, false
}

// StartWrite enters streaming write mode. Events must then arrive through
// Append in time order.
func (w *Writer[T]) StartWrite() {
	w.check()
	s := w.seq
	s.writing = true
	s.pending = make(map[pendingKey][]*midi.Note[T])
	for ch := range s.bankMSB {
		s.bankMSB[ch] = midi.NoBank
		s.bankLSB[ch] = midi.NoBank
	}
	if last, ok := s.notes.Max(); ok {
		s.lastNoteTime = last.time
	}
	debug.Log("sequence", "start write")
}

// Append adds one event from a chronological stream. Note-ons open a
// pending note, note-offs close the oldest pending note of the same
// channel and pitch. Invalid events are logged and dropped.
func (w *Writer[T]) Append(ev *midi.Event[T]) error {
	w.check()
	s := w.seq
	if !s.writing {
		return seqerr.ContractViolation("append outside write mode")
	}
	if !ev.Valid() {
		debug.For("sequence").Warn("ignoring invalid event", "event", ev.String())
		return nil
	}
	if ev.Time().Compare(s.lastNoteTime) < 0 {
		return seqerr.ContractViolation("append at %s before last note at %s", ev.Time(), s.lastNoteTime)
	}

	ch := ev.Channel()
	switch {
	case ev.IsNoteOn():
		return w.appendNoteOn(ev)
	case ev.IsNoteOff():
		w.appendNoteOff(ev)
	case ev.IsCC() && ev.CCNumber() == midi.BankMSB:
		s.bankMSB[ch] = int(ev.CCValue())
	case ev.IsCC() && ev.CCNumber() == midi.BankLSB:
		s.bankLSB[ch] = int(ev.CCValue())
	case ev.IsProgram():
		pc, err := midi.NewPatchChange(ev.Time(), ch, ev.Program(), s.pendingBank(ch))
		if err != nil {
			return err
		}
		pc.SetID(ev.ID())
		s.insertPatchChange(pc)
	case ev.IsSysEx():
		s.insertSysEx(ev.Clone())
	default:
		p, v, ok := midi.ParameterOf(ev)
		if !ok {
			debug.Log("sequence", "ignoring unsupported event %s", ev)
			return nil
		}
		s.controls.Add(p, ev.Time(), v)
		s.edited.Store(true)
	}
	return nil
}

func (s *Sequence[T]) pendingBank(ch uint8) int {
	msb, lsb := s.bankMSB[ch], s.bankLSB[ch]
	switch {
	case msb == midi.NoBank && lsb == midi.NoBank:
		return midi.NoBank
	case msb == midi.NoBank:
		return lsb
	case lsb == midi.NoBank:
		return msb << 7
	}
	return msb<<7 | lsb
}

func (w *Writer[T]) appendNoteOn(ev *midi.Event[T]) error {
	s := w.seq
	n, err := midi.NoteFromEvents(ev, nil)
	if err != nil {
		return err
	}
	s.insertNote(n)
	s.lastNoteTime = n.Time()
	k := pendingKey{channel: n.Channel(), pitch: n.Pitch()}
	s.pending[k] = append(s.pending[k], n)
	return nil
}

func (w *Writer[T]) appendNoteOff(ev *midi.Event[T]) {
	s := w.seq
	k := pendingKey{channel: ev.Channel(), pitch: ev.Note()}
	queue := s.pending[k]
	if len(queue) == 0 {
		debug.For("sequence").Warn("spurious note-off", "channel", k.channel, "pitch", k.pitch, "time", ev.Time().String())
		return
	}
	n := queue[0]
	if len(queue) == 1 {
		delete(s.pending, k)
	} else {
		s.pending[k] = queue[1:]
	}
	n.SetEndTime(ev.Time())
	if ev.Status() == midi.NoteOff {
		n.SetOffVelocity(int(ev.Velocity()))
	}
	s.edited.Store(true)
}

// PendingNotes returns the notes still waiting for a note-off.
func (r *Reader[T]) PendingNotes() []*midi.Note[T] {
	r.check()
	var out []*midi.Note[T]
	for _, q := range r.seq.pending {
		out = append(out, q...)
	}
	return out
}

// EndWrite leaves write mode, dealing with pending notes per opt. With
// ResolveStuckNotes a pending note that starts at or after when is deleted.
func (w *Writer[T]) EndWrite(opt StuckNoteOption, when T) {
	w.check()
	s := w.seq
	if !s.writing {
		return
	}
	log := debug.For("sequence")
	for _, queue := range s.pending {
		for _, n := range queue {
			switch opt {
			case Relax:
			case DeleteStuckNotes:
				log.Debug("deleting stuck note", "note", n.String())
				s.removeNote(n)
			case ResolveStuckNotes:
				if when.Compare(n.Time()) <= 0 {
					log.Debug("stuck note starts after resolve time, deleting", "note", n.String(), "when", when.String())
					s.removeNote(n)
					continue
				}
				log.Debug("resolving stuck note", "note", n.String(), "when", when.String())
				n.SetEndTime(when)
			}
		}
	}
	if opt != Relax {
		s.pending = make(map[pendingKey][]*midi.Note[T])
	}
	s.writing = false
	debug.Log("sequence", "end write (%s), %d notes", opt, s.notes.Len())
}
