package sequence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-midimodel/midi"
	"go-midimodel/temporal"
)

func collect(s *beatSeq, from temporal.Beats, opts IterOptions[temporal.Beats]) []*midi.Event[temporal.Beats] {
	var out []*midi.Event[temporal.Beats]
	for ev := range s.Events(from, opts) {
		out = append(out, ev)
	}
	return out
}

func TestIteratorTieBreakOrder(t *testing.T) {
	s := New[temporal.Beats]()
	first := note(0, 0, 1, 60)
	second := note(0, 1, 1, 62)
	addAll(t, s, first, second)
	pc, _ := midi.NewPatchChange(b(1), 0, 7, midi.NoBank)
	sx := midi.SysExEvent(b(1), []byte{0x01})
	s.Write(func(w *Writer[temporal.Beats]) error {
		w.AddPatchChange(pc)
		w.AddSysEx(sx)
		return nil
	})
	s.Controls().Add(midi.Parameter{Type: midi.ParamControl, ID: 7}, b(1), 90)

	evs := collect(s, b(0), IterOptions[temporal.Beats]{})
	types := make([]midi.EventType, len(evs))
	for i, ev := range evs {
		types[i] = ev.Type()
	}
	assert.Equal(t, []midi.EventType{
		midi.EventNoteOn,      // 0
		midi.EventNoteOff,     // 1: off first
		midi.EventController,  // 1
		midi.EventPatchChange, // 1
		midi.EventNoteOn,      // 1
		midi.EventSysEx,       // 1
		midi.EventNoteOff,     // 2
	}, types)
}

func TestIteratorExpandsPatchChanges(t *testing.T) {
	s := New[temporal.Beats]()
	pc, _ := midi.NewPatchChange(b(0), 3, 12, 129)
	s.Write(func(w *Writer[temporal.Beats]) error { w.AddPatchChange(pc); return nil })

	evs := collect(s, b(0), IterOptions[temporal.Beats]{})
	require.Len(t, evs, 3)
	assert.Equal(t, midi.BankMSB, evs[0].CCNumber())
	assert.Equal(t, midi.BankLSB, evs[1].CCNumber())
	assert.True(t, evs[2].IsProgram())
	for _, ev := range evs {
		assert.Equal(t, uint8(3), ev.Channel())
		assert.Equal(t, pc.ID(), ev.ID())
	}
}

func TestIteratorInterpolatesLinearControllers(t *testing.T) {
	s := New[temporal.Beats]()
	p := midi.Parameter{Type: midi.ParamControl, ID: 1}
	s.Controls().Add(p, b(0), 0)
	s.Controls().Add(p, temporal.BeatTicks(1024), 4)

	evs := collect(s, b(0), IterOptions[temporal.Beats]{})
	var ticks []int64
	var values []uint8
	for _, ev := range evs {
		ticks = append(ticks, ev.Time().Ticks())
		values = append(values, ev.CCValue())
	}
	assert.Equal(t, []int64{0, 256, 512, 768, 1024}, ticks)
	assert.Equal(t, []uint8{0, 1, 2, 3, 4}, values)

	discrete := collect(s, b(0), IterOptions[temporal.Beats]{ForceDiscrete: true})
	assert.Len(t, discrete, 2)

	filtered := collect(s, b(0), IterOptions[temporal.Beats]{Filter: map[midi.Parameter]bool{p: true}})
	assert.Empty(t, filtered)
}

func TestIteratorSkipsUnchangedSamples(t *testing.T) {
	s := New[temporal.Beats]()
	p := midi.Parameter{Type: midi.ParamControl, ID: 1}
	s.Controls().Add(p, b(0), 10)
	s.Controls().Add(p, b(4), 10)

	evs := collect(s, b(0), IterOptions[temporal.Beats]{})
	assert.Len(t, evs, 2)
}

func TestIteratorBeginMidSequence(t *testing.T) {
	s := New[temporal.Beats]()
	a, c := note(0, 0, 4, 60), note(0, 2, 1, 64)
	addAll(t, s, a, c)

	it := s.Begin(b(1), IterOptions[temporal.Beats]{ActiveNotes: []*midi.Note[temporal.Beats]{a}})
	defer it.Close()
	var got []*midi.Event[temporal.Beats]
	for it.Next() {
		got = append(got, it.Event())
	}
	require.Len(t, got, 3)
	assert.Equal(t, c.OnEvent(), got[0])
	assert.Equal(t, c.OffEvent(), got[1])
	assert.Equal(t, a.OffEvent(), got[2])
}

func TestIteratorIgnoresInactiveNotes(t *testing.T) {
	s := New[temporal.Beats]()
	ended, later := note(0, 0, 1, 60), note(0, 10, 2, 62)
	addAll(t, s, ended, later)

	evs := collect(s, b(8), IterOptions[temporal.Beats]{
		ActiveNotes: []*midi.Note[temporal.Beats]{ended, later},
	})
	require.Len(t, evs, 2)
	assert.Equal(t, later.OnEvent(), evs[0])
	assert.Equal(t, later.OffEvent(), evs[1])
	for _, ev := range evs {
		assert.GreaterOrEqual(t, ev.Time().Compare(b(8)), 0)
	}
}

func TestIteratorHoldsReadLock(t *testing.T) {
	s := New[temporal.Beats]()
	addAll(t, s, note(0, 0, 1, 60))

	it := s.Begin(b(0), IterOptions[temporal.Beats]{})
	assert.True(t, it.Next())
	assert.Len(t, it.ActiveNotes(), 1)
	assert.False(t, s.mu.TryLock(), "writers block while the iterator is alive")
	it.Close()
	it.Close()
	assert.True(t, s.mu.TryLock())
	s.mu.Unlock()
}

func TestIteratorReleasesAtEnd(t *testing.T) {
	s := New[temporal.Beats]()
	addAll(t, s, note(0, 0, 1, 60))

	it := s.Begin(b(0), IterOptions[temporal.Beats]{})
	for it.Next() {
	}
	assert.True(t, it.Done())
	assert.True(t, s.mu.TryLock())
	s.mu.Unlock()

	empty := New[temporal.Beats]().Begin(b(0), IterOptions[temporal.Beats]{})
	assert.False(t, empty.Next())
}

func TestIteratorFromHeldReader(t *testing.T) {
	s := New[temporal.Beats]()
	addAll(t, s, note(0, 0, 1, 60))

	w := s.WriteLock()
	defer w.Release()
	it := w.Begin(b(0), IterOptions[temporal.Beats]{})
	n := 0
	for it.Next() {
		n++
	}
	it.Close()
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, w.NoteCount(), "the writer's lock is still usable")
}
