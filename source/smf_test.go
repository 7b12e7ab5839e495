package source

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"go-midimodel/midi"
	"go-midimodel/model"
	"go-midimodel/seqerr"
	"go-midimodel/sequence"
	"go-midimodel/temporal"
)

func b(v float64) temporal.Beats { return temporal.FromDouble(v) }

// twoTracks is a 480 ppqn file: a held C on channel 0 in one track, and a
// program change plus two short notes on channel 1 in the other. The
// second note of track two is never released.
func twoTracks(t *testing.T) []byte {
	t.Helper()
	file := smf.New()
	file.TimeFormat = smf.MetricTicks(480)

	var one smf.Track
	one.Add(0, smf.MetaTrackSequenceName("lead"))
	one.Add(0, gomidi.NoteOn(0, 60, 100))
	one.Add(960, gomidi.NoteOffVelocity(0, 60, 30))
	one.Close(0)

	var two smf.Track
	two.Add(0, gomidi.ControlChange(1, 0, 1))
	two.Add(0, gomidi.ProgramChange(1, 5))
	two.Add(480, gomidi.NoteOn(1, 64, 90))
	two.Add(240, gomidi.NoteOn(1, 64, 0))
	two.Add(0, gomidi.NoteOn(1, 67, 80))
	two.Add(480, gomidi.Pitchbend(1, 100))
	two.Close(0)

	require.NoError(t, file.Add(one))
	require.NoError(t, file.Add(two))
	var buf bytes.Buffer
	_, err := file.WriteTo(&buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func describe(m *model.Model) []string {
	r := m.ReadLock()
	defer r.Release()
	var out []string
	for _, n := range r.Notes() {
		out = append(out, fmt.Sprintf("ch%d p%d %g-%g v%d",
			n.Channel(), n.Pitch(), n.Time().ToDouble(), n.EndTime().ToDouble(), n.Velocity()))
	}
	return out
}

func TestLoadReaderMergesTracks(t *testing.T) {
	m := model.New()
	s := New("song.mid", 0)
	require.NoError(t, s.LoadReader(bytes.NewReader(twoTracks(t)), m))

	assert.EqualValues(t, 480, s.TicksPerQuarter())
	assert.False(t, m.Edited())
	assert.Equal(t, []string{
		"ch0 p60 0-2 v100",
		"ch1 p64 1-1.5 v90",
		// never released, closed at the last event
		"ch1 p67 1.5-2.5 v80",
	}, describe(m))

	r := m.ReadLock()
	patches := r.PatchChanges()
	notes := r.Notes()
	r.Release()
	require.Len(t, patches, 1)
	assert.EqualValues(t, 5, patches[0].Program())
	assert.Equal(t, 1<<7, patches[0].Bank())
	assert.EqualValues(t, 30, notes[0].OffVelocity())

	bend := m.Controls().Control(midi.Parameter{Type: midi.ParamPitchBend, Channel: 1}, false)
	require.NotNil(t, bend)
	assert.Len(t, bend.Events(), 1)
}

func TestLoadReaderDeletesStuckNotes(t *testing.T) {
	m := model.New()
	s := New("song.mid", 0)
	s.SetStuckNotes(sequence.DeleteStuckNotes)
	require.NoError(t, s.LoadReader(bytes.NewReader(twoTracks(t)), m))
	assert.Equal(t, []string{
		"ch0 p60 0-2 v100",
		"ch1 p64 1-1.5 v90",
	}, describe(m))
}

func TestLoadReaderRejectsGarbage(t *testing.T) {
	m := model.New()
	err := New("x.mid", 0).LoadReader(bytes.NewReader([]byte("not a midi file")), m)
	assert.Error(t, err)
}

func TestWriteModelRoundTrip(t *testing.T) {
	m := model.New()
	s := New("song.mid", 0)
	require.NoError(t, s.LoadReader(bytes.NewReader(twoTracks(t)), m))
	m.SetSource(s)

	lock := s.Lock()
	var buf bytes.Buffer
	require.NoError(t, m.WriteModelTo(lock, &buf))
	lock.Release()
	assert.True(t, errors.Is(m.WriteModelTo(lock, &bytes.Buffer{}), seqerr.ErrContractViolation))

	again := model.New()
	require.NoError(t, New("copy.mid", 0).LoadReader(&buf, again))
	assert.Equal(t, describe(m), describe(again))
}

func TestQuietNoteSurvivesRoundTrip(t *testing.T) {
	m := model.New()
	s := New("song.mid", 0)
	require.NoError(t, s.LoadReader(bytes.NewReader(twoTracks(t)), m))
	m.SetSource(s)

	r := m.ReadLock()
	first := r.Notes()[0]
	r.Release()
	c := m.NewNoteDiffCommand("mute")
	c.ChangeVelocity(first, 0)
	require.NoError(t, m.ApplyCommand(c))

	lock := s.Lock()
	var buf bytes.Buffer
	require.NoError(t, m.WriteModelTo(lock, &buf))
	lock.Release()

	again := model.New()
	require.NoError(t, New("copy.mid", 0).LoadReader(&buf, again))
	got := describe(again)
	require.Len(t, got, 3)
	assert.Equal(t, "ch0 p60 0-2 v1", got[0])
}

func TestWriteSectionRebasesAndClosesNotes(t *testing.T) {
	m := model.New()
	s := New("song.mid", 0)
	require.NoError(t, s.LoadReader(bytes.NewReader(twoTracks(t)), m))
	m.SetSource(s)

	lock := s.Lock()
	var buf bytes.Buffer
	require.NoError(t, m.WriteSectionTo(lock, &buf, b(1), b(2)))
	lock.Release()

	section := model.New()
	require.NoError(t, New("section.mid", 0).LoadReader(&buf, section))
	assert.Equal(t, []string{
		"ch1 p64 0-0.5 v90",
		"ch1 p67 0.5-1 v80",
	}, describe(section))
}

func TestSourceLockChecks(t *testing.T) {
	s := New("a.mid", 0)
	other := New("b.mid", 0)
	m := model.New(model.WithSource(s))
	var buf bytes.Buffer

	l := other.Lock()
	assert.True(t, errors.Is(m.WriteModelTo(l, &buf), seqerr.ErrContractViolation))
	assert.True(t, errors.Is(s.WriteModel(l, m, &buf), seqerr.ErrContractViolation))
	l.Release()

	l = s.Lock()
	l.Release()
	l.Release()
	assert.True(t, errors.Is(s.WriteModel(l, m, &buf), seqerr.ErrContractViolation))
	assert.True(t, errors.Is(s.WriteModel(nil, m, &buf), seqerr.ErrContractViolation))

	l = s.Lock()
	defer l.Release()
	assert.True(t, errors.Is(s.WriteModelSection(l, m, &buf, b(2), b(1)), seqerr.ErrContractViolation))
}

func TestSyncToSourceRewritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.mid")
	require.NoError(t, os.WriteFile(path, twoTracks(t), 0644))

	m := model.New()
	s, err := Open(path, m)
	require.NoError(t, err)
	assert.Same(t, model.Source(s), m.Source())

	notes := m.ReadLock()
	first := notes.Notes()[0]
	notes.Release()
	c := m.NewNoteDiffCommand("louder")
	c.ChangeVelocity(first, 127)
	require.NoError(t, m.ApplyCommand(c))
	require.True(t, m.Edited())

	lock := s.Lock()
	require.NoError(t, m.SyncToSource(lock))
	lock.Release()
	assert.False(t, m.Edited())

	reloaded := model.New()
	_, err = Open(path, reloaded)
	require.NoError(t, err)
	assert.Equal(t, describe(m), describe(reloaded))
	assert.True(t, slices.Contains(describe(reloaded), "ch0 p60 0-2 v127"))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
