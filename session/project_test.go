package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Southclaws/fault/ftag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-midimodel/midi"
	"go-midimodel/model"
	"go-midimodel/seqerr"
	"go-midimodel/temporal"
)

// home points the projects directory at a temp dir and pins the clock.
func home(t *testing.T) *time.Time {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	clock := time.Date(2024, 1, 15, 14, 30, 0, 0, time.Local)
	now = func() time.Time { return clock }
	t.Cleanup(func() { now = time.Now })
	return &clock
}

func withNotes(pitches ...uint8) *model.Model {
	m := model.New()
	w := m.WriteLock()
	defer w.Release()
	for i, p := range pitches {
		w.InsertNote(midi.MustNote(0, temporal.FromDouble(float64(i)), temporal.FromDouble(1), p, 90))
	}
	return m
}

func pitches(m *model.Model) []uint8 {
	r := m.ReadLock()
	defer r.Release()
	var out []uint8
	for _, n := range r.Notes() {
		out = append(out, n.Pitch())
	}
	return out
}

func TestSaveAndLoadModel(t *testing.T) {
	home(t)

	filename, err := SaveModel("demo", "first take", withNotes(60, 64, 67))
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15_14-30-00_first-take.json", filename)

	m := model.New()
	info, err := LoadModel("demo", filename, m)
	require.NoError(t, err)
	assert.Equal(t, "first-take", info.Name)
	assert.Equal(t, []uint8{60, 64, 67}, pitches(m))
	assert.False(t, m.Edited())
}

func TestLoadModelPicksNewest(t *testing.T) {
	clock := home(t)

	_, err := SaveModel("demo", "", withNotes(60))
	require.NoError(t, err)
	*clock = clock.Add(time.Minute)
	newest, err := SaveModel("demo", "", withNotes(72))
	require.NoError(t, err)

	saves, err := ListSaves("demo")
	require.NoError(t, err)
	require.Len(t, saves, 2)
	assert.Equal(t, newest, saves[0].Filename)
	assert.True(t, saves[0].Timestamp.After(saves[1].Timestamp))

	m := model.New()
	_, err = LoadModel("demo", "", m)
	require.NoError(t, err)
	assert.Equal(t, []uint8{72}, pitches(m))
}

func TestLoadModelErrors(t *testing.T) {
	home(t)

	_, err := LoadModel("empty", "", model.New())
	assert.Equal(t, ftag.NotFound, ftag.Get(err))

	_, err = LoadModel("demo", "2024-01-15_14-30-00.json", model.New())
	assert.Equal(t, ftag.NotFound, ftag.Get(err))

	_, err = LoadModel("demo", "../escape.json", model.New())
	assert.True(t, errors.Is(err, seqerr.ErrContractViolation))

	_, err = LoadModel("../demo", "", model.New())
	assert.True(t, errors.Is(err, seqerr.ErrContractViolation))
}

func TestListSavesSkipsForeignFiles(t *testing.T) {
	home(t)
	_, err := SaveModel("demo", "keep", withNotes(60))
	require.NoError(t, err)

	dir, err := ProjectDir("demo")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), nil, 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "2024-01-15_14-30-00.json"+".d"), 0755))

	saves, err := ListSaves("demo")
	require.NoError(t, err)
	require.Len(t, saves, 1)
	assert.Equal(t, "keep", saves[0].Name)

	none, err := ListSaves("missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRenameAndDeleteSave(t *testing.T) {
	home(t)
	filename, err := SaveModel("demo", "", withNotes(60))
	require.NoError(t, err)

	renamed, err := RenameSave("demo", filename, "verse: a/b?")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15_14-30-00_verse--a-b.json", renamed)

	saves, err := ListSaves("demo")
	require.NoError(t, err)
	require.Len(t, saves, 1)
	assert.Equal(t, "verse--a-b", saves[0].Name)

	_, err = RenameSave("demo", "bogus.json", "x")
	assert.True(t, errors.Is(err, seqerr.ErrContractViolation))

	require.NoError(t, DeleteSave("demo", renamed))
	saves, err = ListSaves("demo")
	require.NoError(t, err)
	assert.Empty(t, saves)
	assert.Error(t, DeleteSave("demo", renamed))
}

func TestProjects(t *testing.T) {
	home(t)

	projects, err := ListProjects()
	require.NoError(t, err)
	assert.Empty(t, projects)

	require.NoError(t, CreateProject("b"))
	_, err = SaveModel("", "", withNotes(60))
	require.NoError(t, err)
	require.NoError(t, CreateProject("a"))

	projects, err = ListProjects()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "untitled"}, projects)

	require.NoError(t, RenameProject("a", "c"))
	assert.True(t, errors.Is(RenameProject("b", "c"), seqerr.ErrContractViolation))

	require.NoError(t, DeleteProject("untitled"))
	projects, err = ListProjects()
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, projects)
}
