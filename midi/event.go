package midi

import (
	"bytes"
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"

	"go-midimodel/temporal"
)

// MIDI status bytes (channel nibble cleared)
const (
	NoteOff         uint8 = 0x80
	NoteOn          uint8 = 0x90
	PolyPressure    uint8 = 0xA0
	CC              uint8 = 0xB0
	ProgramChange   uint8 = 0xC0
	ChannelPressure uint8 = 0xD0
	PitchBend       uint8 = 0xE0
	SysExStart      uint8 = 0xF0
	SysExEnd        uint8 = 0xF7
)

// Bank select controller numbers
const (
	BankMSB uint8 = 0x00
	BankLSB uint8 = 0x20
)

// NumChannels is the number of MIDI channels.
const NumChannels = 16

// EventType classifies an Event.
type EventType uint8

const (
	EventNone EventType = iota
	EventNoteOn
	EventNoteOff
	EventController
	EventSysEx
	EventPatchChange
)

func (t EventType) String() string {
	switch t {
	case EventNoteOn:
		return "note-on"
	case EventNoteOff:
		return "note-off"
	case EventController:
		return "controller"
	case EventSysEx:
		return "sysex"
	case EventPatchChange:
		return "patch-change"
	}
	return "none"
}

// NoID marks an event that has not been assigned an id yet.
const NoID int64 = -1

// Event is a timestamped raw MIDI message with an identity.
type Event[T temporal.Time[T]] struct {
	time   T
	buf    []byte
	id     int64
	serial uint64
}

// NewEvent copies buf into a new event at time t.
func NewEvent[T temporal.Time[T]](t T, buf []byte) *Event[T] {
	return &Event[T]{
		time:   t,
		buf:    bytes.Clone(buf),
		id:     NoID,
		serial: nextSerial(),
	}
}

// NewEventFromMessage wraps a gomidi message.
func NewEventFromMessage[T temporal.Time[T]](t T, msg gomidi.Message) *Event[T] {
	return NewEvent(t, msg.Bytes())
}

// SysExEvent builds a sysex event; data excludes the F0/F7 framing.
func SysExEvent[T temporal.Time[T]](t T, data []byte) *Event[T] {
	return NewEventFromMessage(t, gomidi.SysEx(data))
}

// ControlChangeEvent builds a controller event.
func ControlChangeEvent[T temporal.Time[T]](t T, channel, controller, value uint8) *Event[T] {
	return NewEventFromMessage(t, gomidi.ControlChange(channel, controller, value))
}

// ProgramChangeEvent builds a program change event.
func ProgramChangeEvent[T temporal.Time[T]](t T, channel, program uint8) *Event[T] {
	return NewEventFromMessage(t, gomidi.ProgramChange(channel, program))
}

// NoteOnEvent builds a note-on event.
func NoteOnEvent[T temporal.Time[T]](t T, channel, key, velocity uint8) *Event[T] {
	return NewEventFromMessage(t, gomidi.NoteOn(channel, key, velocity))
}

// NoteOffEvent builds a note-off event carrying a release velocity.
func NoteOffEvent[T temporal.Time[T]](t T, channel, key, velocity uint8) *Event[T] {
	return NewEventFromMessage(t, gomidi.NoteOffVelocity(channel, key, velocity))
}

func (e *Event[T]) Time() T            { return e.time }
func (e *Event[T]) SetTime(t T)        { e.time = t }
func (e *Event[T]) ID() int64          { return e.id }
func (e *Event[T]) SetID(id int64)     { e.id = id }
func (e *Event[T]) Serial() uint64     { return e.serial }
func (e *Event[T]) Buffer() []byte     { return e.buf }
func (e *Event[T]) Size() int          { return len(e.buf) }
func (e *Event[T]) SetBuffer(b []byte) { e.buf = bytes.Clone(b) }

// Message returns the payload as a gomidi message.
func (e *Event[T]) Message() gomidi.Message {
	return gomidi.Message(e.buf)
}

// Status returns the status byte with the channel nibble cleared.
func (e *Event[T]) Status() uint8 {
	if len(e.buf) == 0 {
		return 0
	}
	if e.buf[0] >= SysExStart {
		return e.buf[0]
	}
	return e.buf[0] & 0xF0
}

// Channel returns the channel of a channel message, 0 otherwise.
func (e *Event[T]) Channel() uint8 {
	if len(e.buf) == 0 || e.buf[0] >= SysExStart {
		return 0
	}
	return e.buf[0] & 0x0F
}

// Type classifies the payload.
func (e *Event[T]) Type() EventType {
	switch e.Status() {
	case NoteOn:
		if e.Velocity() == 0 {
			return EventNoteOff
		}
		return EventNoteOn
	case NoteOff:
		return EventNoteOff
	case ProgramChange:
		return EventPatchChange
	case CC:
		if n := e.CCNumber(); n == BankMSB || n == BankLSB {
			return EventPatchChange
		}
		return EventController
	case PitchBend, ChannelPressure, PolyPressure:
		return EventController
	case SysExStart:
		return EventSysEx
	}
	return EventNone
}

func (e *Event[T]) IsNoteOn() bool {
	var ch, key, vel uint8
	return e.Message().GetNoteStart(&ch, &key, &vel)
}

func (e *Event[T]) IsNoteOff() bool {
	var ch, key uint8
	return e.Message().GetNoteEnd(&ch, &key)
}

func (e *Event[T]) IsNote() bool     { return e.Status() == NoteOn || e.Status() == NoteOff }
func (e *Event[T]) IsCC() bool       { return e.Status() == CC }
func (e *Event[T]) IsSysEx() bool    { return e.Status() == SysExStart }
func (e *Event[T]) IsProgram() bool  { return e.Status() == ProgramChange }
func (e *Event[T]) IsBender() bool   { return e.Status() == PitchBend }
func (e *Event[T]) IsPressure() bool { return e.Status() == ChannelPressure }
func (e *Event[T]) IsPolyPressure() bool {
	return e.Status() == PolyPressure
}

// Note returns the key of a note or poly pressure message.
func (e *Event[T]) Note() uint8 { return e.data(1) }

// Velocity returns the velocity of a note message.
func (e *Event[T]) Velocity() uint8 { return e.data(2) }

func (e *Event[T]) CCNumber() uint8 { return e.data(1) }
func (e *Event[T]) CCValue() uint8  { return e.data(2) }
func (e *Event[T]) Program() uint8  { return e.data(1) }

// ChannelPressureValue returns the pressure of a channel pressure message.
func (e *Event[T]) ChannelPressureValue() uint8 { return e.data(1) }

// PolyPressureValue returns the pressure of a poly pressure message.
func (e *Event[T]) PolyPressureValue() uint8 { return e.data(2) }

// BenderValue returns the 14-bit absolute pitch bend value.
func (e *Event[T]) BenderValue() uint16 {
	var ch uint8
	var rel int16
	var abs uint16
	if !e.Message().GetPitchBend(&ch, &rel, &abs) {
		return 0
	}
	return abs
}

// SysExData returns the sysex body without framing.
func (e *Event[T]) SysExData() []byte {
	var data []byte
	if !e.Message().GetSysEx(&data) {
		return nil
	}
	return data
}

func (e *Event[T]) data(i int) uint8 {
	if i >= len(e.buf) {
		return 0
	}
	return e.buf[i]
}

func (e *Event[T]) setData(i int, v uint8) {
	if i < len(e.buf) {
		e.buf[i] = v
	}
}

// Valid reports whether the payload is a complete channel or sysex message.
func (e *Event[T]) Valid() bool {
	return ValidMessage(e.buf)
}

// ValidMessage checks that buf is a single complete channel or sysex message.
func ValidMessage(buf []byte) bool {
	if len(buf) == 0 || buf[0] < 0x80 {
		return false
	}
	if buf[0] == SysExStart {
		if len(buf) < 2 || buf[len(buf)-1] != SysExEnd {
			return false
		}
		for _, b := range buf[1 : len(buf)-1] {
			if b >= 0x80 {
				return false
			}
		}
		return true
	}
	var want int
	switch buf[0] & 0xF0 {
	case NoteOff, NoteOn, PolyPressure, CC, PitchBend:
		want = 3
	case ProgramChange, ChannelPressure:
		want = 2
	default:
		return false
	}
	if len(buf) != want {
		return false
	}
	for _, b := range buf[1:] {
		if b >= 0x80 {
			return false
		}
	}
	return true
}

// Clone returns a deep copy keeping id and time. The copy gets a new serial.
func (e *Event[T]) Clone() *Event[T] {
	c := NewEvent(e.time, e.buf)
	c.id = e.id
	return c
}

// Equal compares time and payload, ignoring id.
func (e *Event[T]) Equal(o *Event[T]) bool {
	return e.time == o.time && bytes.Equal(e.buf, o.buf)
}

func (e *Event[T]) String() string {
	return fmt.Sprintf("%s @ %s ch=%d % X id=%d", e.Type(), e.time, e.Channel(), e.buf, e.id)
}
