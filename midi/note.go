package midi

import (
	"fmt"

	"go-midimodel/seqerr"
	"go-midimodel/temporal"
)

// DefaultVelocity is used when a note is created without one.
const DefaultVelocity uint8 = 0x40

// Note is a paired note-on/note-off. The off event always sits at
// on.time + length and shares the on event's channel, pitch and id.
type Note[T temporal.Time[T]] struct {
	on  *Event[T]
	off *Event[T]
}

// NewNote builds a note. A channel outside 0..15 is a contract violation.
func NewNote[T temporal.Time[T]](channel uint8, t, length T, pitch, velocity uint8) (*Note[T], error) {
	if channel >= NumChannels {
		return nil, seqerr.ContractViolation("note channel %d out of range", channel)
	}
	pitch = clamp7(int(pitch))
	velocity = onVelocity(int(velocity))
	return &Note[T]{
		on:  NoteOnEvent(t, channel, pitch, velocity),
		off: NoteOffEvent(t.Add(length), channel, pitch, 0x40),
	}, nil
}

// MustNote is NewNote for callers with a known-good channel.
func MustNote[T temporal.Time[T]](channel uint8, t, length T, pitch, velocity uint8) *Note[T] {
	n, err := NewNote(channel, t, length, pitch, velocity)
	if err != nil {
		panic(err)
	}
	return n
}

// NoteFromEvents pairs an on and off event read from a stream. The events
// are copied.
func NoteFromEvents[T temporal.Time[T]](on, off *Event[T]) (*Note[T], error) {
	if on == nil || !on.IsNoteOn() {
		return nil, seqerr.ContractViolation("note needs a note-on event")
	}
	n := &Note[T]{on: on.Clone()}
	if off == nil {
		n.off = NoteOffEvent(on.Time().Max(), on.Channel(), on.Note(), 0x40)
	} else {
		if off.Channel() != on.Channel() || off.Note() != on.Note() {
			return nil, seqerr.ContractViolation("note-off %s does not match note-on %s", off, on)
		}
		n.off = NoteOffEvent(off.Time(), off.Channel(), off.Note(), off.Velocity())
	}
	n.off.SetID(n.on.ID())
	return n, nil
}

func (n *Note[T]) Time() T             { return n.on.Time() }
func (n *Note[T]) EndTime() T          { return n.off.Time() }
func (n *Note[T]) Length() T           { return n.off.Time().Sub(n.on.Time()) }
func (n *Note[T]) Channel() uint8      { return n.on.Channel() }
func (n *Note[T]) Pitch() uint8        { return n.on.Note() }
func (n *Note[T]) Velocity() uint8     { return n.on.Velocity() }
func (n *Note[T]) OffVelocity() uint8  { return n.off.Velocity() }
func (n *Note[T]) ID() int64           { return n.on.ID() }
func (n *Note[T]) OnEvent() *Event[T]  { return n.on }
func (n *Note[T]) OffEvent() *Event[T] { return n.off }

// Serial orders notes that share a start time by creation.
func (n *Note[T]) Serial() uint64 { return n.on.Serial() }

func (n *Note[T]) SetID(id int64) {
	n.on.SetID(id)
	n.off.SetID(id)
}

// SetTime moves the note, preserving its length.
func (n *Note[T]) SetTime(t T) {
	length := n.Length()
	n.on.SetTime(t)
	n.off.SetTime(t.Add(length))
}

// SetLength moves only the off event.
func (n *Note[T]) SetLength(l T) {
	n.off.SetTime(n.on.Time().Add(l))
}

// SetEndTime moves only the off event to t.
func (n *Note[T]) SetEndTime(t T) {
	n.off.SetTime(t)
}

func (n *Note[T]) SetPitch(p int) {
	v := clamp7(p)
	n.on.setData(1, v)
	n.off.setData(1, v)
}

// SetVelocity clamps to 1..127. A note-on with velocity 0 reads back as a
// note-off.
func (n *Note[T]) SetVelocity(v int) { n.on.setData(2, onVelocity(v)) }

func (n *Note[T]) SetOffVelocity(v int) { n.off.setData(2, clamp7(v)) }

// SetChannel panics on an out of range channel; validate with ValidChannel.
func (n *Note[T]) SetChannel(ch uint8) {
	if ch >= NumChannels {
		panic(seqerr.ContractViolation("note channel %d out of range", ch))
	}
	n.on.buf[0] = NoteOn | ch
	n.off.buf[0] = NoteOff | ch
}

// Equal compares everything except the id.
func (n *Note[T]) Equal(o *Note[T]) bool {
	if n == o {
		return true
	}
	if n == nil || o == nil {
		return false
	}
	return n.Time() == o.Time() &&
		n.Pitch() == o.Pitch() &&
		n.Length() == o.Length() &&
		n.Velocity() == o.Velocity() &&
		n.OffVelocity() == o.OffVelocity() &&
		n.Channel() == o.Channel()
}

// Clone deep-copies the note, keeping its id.
func (n *Note[T]) Clone() *Note[T] {
	return &Note[T]{on: n.on.Clone(), off: n.off.Clone()}
}

func (n *Note[T]) String() string {
	return fmt.Sprintf("Note #%d ch=%d pitch=%d vel=%d/%d %s..%s",
		n.ID(), n.Channel(), n.Pitch(), n.Velocity(), n.OffVelocity(), n.Time(), n.EndTime())
}

// ValidChannel reports whether ch addresses one of the 16 MIDI channels.
func ValidChannel(ch int) bool {
	return ch >= 0 && ch < NumChannels
}

func onVelocity(v int) uint8 {
	return max(clamp7(v), 1)
}

func clamp7(v int) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 127:
		return 127
	}
	return uint8(v)
}
