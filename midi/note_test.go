package midi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"go-midimodel/seqerr"
	"go-midimodel/temporal"
)

func beats(v float64) temporal.Beats { return temporal.FromDouble(v) }

func TestNoteLengthAndCopy(t *testing.T) {
	n, err := NewNote(0, beats(1), beats(2), 60, DefaultVelocity)
	require.NoError(t, err)

	assert.Equal(t, beats(1), n.Time())
	assert.Equal(t, beats(3), n.EndTime())
	assert.Equal(t, beats(2), n.Length())

	c := n.Clone()
	assert.True(t, c.Equal(n))

	n.SetLength(beats(5))
	assert.Equal(t, beats(6), n.EndTime())
	assert.Equal(t, beats(3), c.EndTime())
	assert.False(t, c.Equal(n))
}

func TestNoteRejectsBadChannel(t *testing.T) {
	_, err := NewNote(16, beats(0), beats(1), 60, 64)
	require.Error(t, err)
	assert.True(t, errors.Is(err, seqerr.ErrContractViolation))
}

func TestNoteSettersClamp(t *testing.T) {
	n := MustNote(3, beats(0), beats(1), 60, 64)

	n.SetPitch(200)
	assert.Equal(t, uint8(127), n.Pitch())
	assert.Equal(t, uint8(127), n.OffEvent().Note())
	n.SetPitch(-4)
	assert.Equal(t, uint8(0), n.Pitch())

	n.SetVelocity(300)
	assert.Equal(t, uint8(127), n.Velocity())
	n.SetVelocity(0)
	assert.Equal(t, uint8(1), n.Velocity())
	assert.True(t, n.OnEvent().IsNoteOn())
	silent := MustNote(3, beats(0), beats(1), 60, 0)
	assert.Equal(t, uint8(1), silent.Velocity())
	n.SetOffVelocity(-1)
	assert.Equal(t, uint8(0), n.OffVelocity())
}

func TestNoteSetTimeKeepsLength(t *testing.T) {
	n := MustNote(0, beats(1), beats(2), 60, 64)
	n.SetTime(beats(10))
	assert.Equal(t, beats(10), n.Time())
	assert.Equal(t, beats(12), n.EndTime())
}

func TestNoteIDPropagatesToOff(t *testing.T) {
	n := MustNote(0, beats(0), beats(1), 60, 64)
	assert.Equal(t, NoID, n.ID())
	n.SetID(77)
	assert.Equal(t, int64(77), n.OnEvent().ID())
	assert.Equal(t, int64(77), n.OffEvent().ID())

	o := n.Clone()
	o.SetID(78)
	assert.True(t, o.Equal(n), "id is not part of equality")
}

func TestNoteSetChannel(t *testing.T) {
	n := MustNote(0, beats(0), beats(1), 60, 64)
	n.SetChannel(9)
	assert.Equal(t, uint8(9), n.Channel())
	assert.Equal(t, uint8(9), n.OffEvent().Channel())
	assert.True(t, n.OnEvent().IsNoteOn())
	assert.True(t, n.OffEvent().IsNoteOff())
	assert.Panics(t, func() { n.SetChannel(16) })
}

func TestNoteFromEvents(t *testing.T) {
	on := NoteOnEvent(beats(0), 1, 64, 90)
	off := NoteOffEvent(beats(4), 1, 64, 10)
	n, err := NoteFromEvents(on, off)
	require.NoError(t, err)
	assert.Equal(t, beats(4), n.EndTime())
	assert.Equal(t, uint8(10), n.OffVelocity())

	_, err = NoteFromEvents(on, NoteOffEvent(beats(4), 2, 64, 0))
	assert.Error(t, err)

	pending, err := NoteFromEvents(on, nil)
	require.NoError(t, err)
	assert.True(t, temporal.IsMax(pending.EndTime()))
}

func TestNoteEndNeverBeforeStart(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		start := temporal.BeatTicks(rapid.Int64Range(0, 1<<30).Draw(t, "start"))
		length := temporal.BeatTicks(rapid.Int64Range(0, 1<<30).Draw(t, "length"))
		n := MustNote(uint8(rapid.IntRange(0, 15).Draw(t, "ch")), start, length,
			uint8(rapid.IntRange(0, 127).Draw(t, "pitch")), 64)

		if rapid.Bool().Draw(t, "move") {
			n.SetTime(temporal.BeatTicks(rapid.Int64Range(0, 1<<30).Draw(t, "to")))
		}
		if n.EndTime().Compare(n.Time()) < 0 {
			t.Fatalf("end %s before start %s", n.EndTime(), n.Time())
		}
		if n.Length() != length {
			t.Fatalf("length changed: %s != %s", n.Length(), length)
		}
	})
}
