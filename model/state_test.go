package model

import (
	"errors"
	"testing"

	"github.com/Southclaws/fault/ftag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-midimodel/midi"
	"go-midimodel/seqerr"
	"go-midimodel/sequence"
	"go-midimodel/state"
)

// reload pushes a node through its JSON encoding.
func reload(t *testing.T, n *state.Node) *state.Node {
	t.Helper()
	data, err := state.Marshal(n)
	require.NoError(t, err)
	out, err := state.Unmarshal(data)
	require.NoError(t, err)
	return out
}

func populated(t *testing.T) *Model {
	t.Helper()
	m := New(WithOverlappingPitches(false), WithInsertMergePolicy(TruncateExisting),
		WithOverlapResolution(sequence.FirstOnFirstOff))
	n := note(0, 1, 60)
	n.SetOffVelocity(12)
	insertNotes(m, n, midi.MustNote(3, b(1.5), b(0.25), 64, 90))

	p, err := midi.NewPatchChange(b(0), 3, 40, 129)
	require.NoError(t, err)
	w := m.WriteLock()
	w.AddSysEx(midi.SysExEvent(b(2), []byte{0x7E, 0x7F, 0x09, 0x01}))
	w.AddPatchChange(p)
	w.Release()

	cs := m.Controls()
	cs.Add(midi.Parameter{Type: midi.ParamControl, Channel: 3, ID: 7}, b(0), 100)
	cs.Add(midi.Parameter{Type: midi.ParamControl, Channel: 3, ID: 7}, b(4), 20)
	bend := cs.Control(midi.Parameter{Type: midi.ParamPitchBend, Channel: 1}, true)
	bend.SetInterpolation(sequence.Linear)
	bend.Add(b(0.5), 8192)
	return m
}

func TestModelStateRoundTrip(t *testing.T) {
	src := populated(t)
	saved := src.GetState()

	dst := New()
	changed := 0
	dst.OnContentsChanged(func() { changed++ })
	require.NoError(t, dst.SetState(reload(t, saved)))

	assert.Equal(t, 1, changed)
	assert.False(t, dst.Edited())
	assert.False(t, dst.OverlappingPitchesAccepted())
	assert.Equal(t, TruncateExisting, dst.InsertMergePolicy())
	assert.Equal(t, sequence.FirstOnFirstOff, dst.OverlapPitchResolution())
	assert.Equal(t, snapshot(src), snapshot(dst))

	want, err := state.Marshal(saved)
	require.NoError(t, err)
	got, err := state.Marshal(dst.GetState())
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))

	l := dst.Controls().Control(midi.Parameter{Type: midi.ParamPitchBend, Channel: 1}, false)
	require.NotNil(t, l)
	assert.Equal(t, sequence.Linear, l.Interpolation())
}

func TestModelSetStateRejectsMalformedTree(t *testing.T) {
	m := populated(t)
	before := snapshot(m)

	bad := m.GetState()
	bad.Child("Notes").ChildrenNamed("Note")[1].SetInt("note", 200)
	err := m.SetState(bad)
	assert.True(t, errors.Is(err, seqerr.ErrMalformedState))
	assert.Equal(t, before, snapshot(m))

	bad = m.GetState()
	bad.Set("insert-merge-policy", "shuffle")
	assert.True(t, errors.Is(m.SetState(bad), seqerr.ErrMalformedState))

	bad = m.GetState()
	bad.Child("SysExes").ChildrenNamed("SysEx")[0].Set("data", "zz")
	assert.True(t, errors.Is(m.SetState(bad), seqerr.ErrMalformedState))

	assert.True(t, errors.Is(m.SetState(state.New("Session")), seqerr.ErrMalformedState))
	assert.Equal(t, before, snapshot(m))
}

func TestNoteDiffStateRoundTrip(t *testing.T) {
	m := New()
	keep, gone := note(0, 1, 60), note(1, 1, 62)
	insertNotes(m, keep, gone)
	before := snapshot(m)

	c := m.NewNoteDiffCommand("mixed")
	c.Add(note(4, 2, 67))
	c.Remove(gone)
	c.ChangeVelocity(keep, 99)
	c.ChangeTime(keep, b(2))
	require.NoError(t, c.Apply())
	after := snapshot(m)

	restored, err := m.NoteDiffCommandFromState(reload(t, c.GetState()))
	require.NoError(t, err)
	assert.Equal(t, c.ID(), restored.ID())
	assert.Equal(t, "mixed", restored.Name())
	assert.Equal(t, Applied, restored.State())
	require.Len(t, restored.Changes(), 2)
	assert.Same(t, keep, restored.Changes()[0].Note)
	assert.Equal(t, VInt(64), restored.Changes()[0].Old)

	require.NoError(t, restored.Undo())
	assert.Equal(t, before, snapshot(m))
	require.NoError(t, restored.Apply())
	assert.Equal(t, after, snapshot(m))
}

func TestNoteDiffStateKeepsSideEffects(t *testing.T) {
	m := New(WithOverlappingPitches(false), WithInsertMergePolicy(TruncateExisting))
	long, later := note(0, 4, 60), note(3, 1, 60)
	insertNotes(m, long, later)
	before := snapshot(m)

	c := m.NewNoteDiffCommand("insert")
	c.Add(note(2, 2, 60))
	require.NoError(t, c.Apply())
	require.Len(t, c.SideEffectChanges(), 1)
	require.Len(t, c.SideEffectRemovals(), 1)

	restored, err := m.NoteDiffCommandFromState(reload(t, c.GetState()))
	require.NoError(t, err)
	require.Len(t, restored.SideEffectChanges(), 1)
	assert.Same(t, long, restored.SideEffectChanges()[0].Note)

	require.NoError(t, restored.Undo())
	assert.Equal(t, before, snapshot(m))
}

func TestNoteDiffStateUnknownNote(t *testing.T) {
	m := New()
	n := note(0, 1, 60)
	insertNotes(m, n)
	c := m.NewNoteDiffCommand("vel")
	c.ChangeVelocity(n, 1)

	_, err := New().NoteDiffCommandFromState(c.GetState())
	require.Error(t, err)
	assert.True(t, errors.Is(err, seqerr.ErrUnknownEvent))
	assert.Equal(t, ftag.NotFound, ftag.Get(err))

	_, err = m.NoteDiffCommandFromState(state.New("SysExDiffCommand"))
	assert.True(t, errors.Is(err, seqerr.ErrMalformedState))

	bad := c.GetState()
	bad.Child("ChangedNotes").ChildrenNamed("Change")[0].Set("property", "Colour")
	_, err = m.NoteDiffCommandFromState(bad)
	assert.True(t, errors.Is(err, seqerr.ErrMalformedState))
}

func TestSysExDiffStateRoundTrip(t *testing.T) {
	m := New()
	e := midi.SysExEvent(b(1), []byte{0x43, 0x10})
	add := m.NewSysExDiffCommand("add")
	add.Add(e)
	require.NoError(t, add.Apply())

	move := m.NewSysExDiffCommand("move")
	move.ChangeTime(e, b(5))
	restored, err := m.SysExDiffCommandFromState(reload(t, move.GetState()))
	require.NoError(t, err)
	assert.Equal(t, Built, restored.State())
	require.NoError(t, restored.Apply())
	assert.Equal(t, b(5), e.Time())

	restoredAdd, err := New().SysExDiffCommandFromState(reload(t, add.GetState()))
	require.NoError(t, err)
	require.Len(t, restoredAdd.Added(), 1)
	assert.Equal(t, e.Buffer(), restoredAdd.Added()[0].Buffer())
	assert.Equal(t, e.ID(), restoredAdd.Added()[0].ID())
}

func TestPatchChangeDiffStateRoundTrip(t *testing.T) {
	m := New()
	p, err := midi.NewPatchChange(b(0), 2, 7, midi.NoBank)
	require.NoError(t, err)
	w := m.WriteLock()
	w.AddPatchChange(p)
	w.Release()

	c := m.NewPatchChangeDiffCommand("edit")
	c.ChangeProgram(p, 12)
	c.ChangeTime(p, b(1))
	restored, err := m.PatchChangeDiffCommandFromState(reload(t, c.GetState()))
	require.NoError(t, err)
	require.NoError(t, restored.Apply())
	assert.EqualValues(t, 12, p.Program())
	assert.Equal(t, b(1), p.Time())

	_, err = New().PatchChangeDiffCommandFromState(c.GetState())
	assert.True(t, errors.Is(err, seqerr.ErrUnknownEvent))
}
