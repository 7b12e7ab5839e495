package midi

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"go-midimodel/temporal"
)

func TestEventTypes(t *testing.T) {
	tests := []struct {
		name string
		ev   *Event[temporal.Beats]
		want EventType
	}{
		{"note on", NoteOnEvent(beats(0), 0, 60, 100), EventNoteOn},
		{"note on zero velocity", NewEvent(beats(0), []byte{0x90, 60, 0}), EventNoteOff},
		{"note off", NoteOffEvent(beats(0), 0, 60, 0), EventNoteOff},
		{"cc", ControlChangeEvent(beats(0), 2, 7, 100), EventController},
		{"bank msb", ControlChangeEvent(beats(0), 2, BankMSB, 1), EventPatchChange},
		{"program", ProgramChangeEvent(beats(0), 2, 5), EventPatchChange},
		{"sysex", SysExEvent(beats(0), []byte{0x7E, 0x01}), EventSysEx},
		{"bend", NewEvent(beats(0), []byte{0xE0, 0, 0x40}), EventController},
		{"clock", NewEvent(beats(0), []byte{0xF8}), EventNone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.ev.Type(), tt.name)
	}
}

func TestEventValid(t *testing.T) {
	assert.True(t, NoteOnEvent(beats(0), 0, 60, 100).Valid())
	assert.True(t, SysExEvent(beats(0), []byte{1, 2, 3}).Valid())
	assert.False(t, NewEvent(beats(0), []byte{0x90, 60}).Valid())
	assert.False(t, NewEvent(beats(0), []byte{60, 60, 60}).Valid())
	assert.False(t, NewEvent(beats(0), []byte{0xF0, 0x01}).Valid())
	assert.False(t, NewEvent(beats(0), nil).Valid())
}

func TestEventAccessors(t *testing.T) {
	bend := NewEvent(beats(0), []byte{0xE3, 0x00, 0x40})
	assert.Equal(t, uint8(3), bend.Channel())
	assert.Equal(t, uint16(0x2000), bend.BenderValue())

	sx := SysExEvent(beats(1), []byte{0x7E, 0x01})
	assert.Equal(t, []byte{0x7E, 0x01}, sx.SysExData())

	c := sx.Clone()
	assert.True(t, c.Equal(sx))
	assert.NotEqual(t, c.Serial(), sx.Serial())
}

func TestPatchChangeMessages(t *testing.T) {
	pc, err := NewPatchChange(beats(2), 1, 10, 130)
	if !assert.NoError(t, err) {
		return
	}
	msgs := pc.Messages()
	if assert.Len(t, msgs, 3) {
		assert.Equal(t, BankMSB, msgs[0].CCNumber())
		assert.Equal(t, uint8(1), msgs[0].CCValue())
		assert.Equal(t, BankLSB, msgs[1].CCNumber())
		assert.Equal(t, uint8(2), msgs[1].CCValue())
		assert.Equal(t, uint8(10), msgs[2].Program())
	}

	pc.SetBank(NoBank)
	assert.Len(t, pc.Messages(), 1)
}

func TestParameterRoundTrip(t *testing.T) {
	p := Parameter{Type: ParamControl, Channel: 4, ID: 74}
	ev := ControlEvent(p, beats(1), 99.6)
	got, v, ok := ParameterOf(ev)
	assert.True(t, ok)
	assert.Equal(t, p, got)
	assert.Equal(t, 100.0, v)

	bend := Parameter{Type: ParamPitchBend, Channel: 1}
	got, v, ok = ParameterOf(ControlEvent(bend, beats(1), 0x2000))
	assert.True(t, ok)
	assert.Equal(t, bend, got)
	assert.Equal(t, float64(0x2000), v)

	_, _, ok = ParameterOf(ControlChangeEvent(beats(0), 0, BankLSB, 3))
	assert.False(t, ok)
}

func TestEnsureEventIDAbove(t *testing.T) {
	EnsureEventIDAbove(1000)
	assert.Greater(t, NextEventID(), int64(1000))
}
