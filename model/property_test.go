package model

import (
	"slices"
	"testing"

	"pgregory.net/rapid"

	"go-midimodel/midi"
	"go-midimodel/temporal"
)

func drawNote(t *rapid.T, label string) *Note {
	ch := rapid.IntRange(0, 1).Draw(t, label+"/ch")
	start := rapid.Int64Range(0, 8*temporal.PPQN).Draw(t, label+"/start")
	length := rapid.Int64Range(1, 4*temporal.PPQN).Draw(t, label+"/len")
	pitch := rapid.IntRange(58, 62).Draw(t, label+"/pitch")
	vel := rapid.IntRange(1, 127).Draw(t, label+"/vel")
	return midi.MustNote(uint8(ch), temporal.BeatTicks(start), temporal.BeatTicks(length), uint8(pitch), uint8(vel))
}

func drawModel(t *rapid.T) *Model {
	m := New(
		WithOverlappingPitches(rapid.Bool().Draw(t, "accepted")),
		WithInsertMergePolicy(rapid.SampledFrom([]InsertMergePolicy{
			Reject, Relax, Replace, TruncateExisting, TruncateAddition, Extend,
		}).Draw(t, "policy")))
	w := m.WriteLock()
	defer w.Release()
	n := rapid.IntRange(0, 12).Draw(t, "notes")
	for i := 0; i < n; i++ {
		w.InsertNote(drawNote(t, "note"))
	}
	return m
}

func drawValue(t *rapid.T, prop Property) Variant {
	switch prop {
	case NoteNumber:
		return VInt(int32(rapid.IntRange(58, 62).Draw(t, "pitch")))
	case Velocity:
		return VInt(int32(rapid.IntRange(0, 127).Draw(t, "velocity")))
	case StartTime:
		return VBeats(temporal.BeatTicks(rapid.Int64Range(0, 8*temporal.PPQN).Draw(t, "time")))
	case Length:
		return VBeats(temporal.BeatTicks(rapid.Int64Range(1, 4*temporal.PPQN).Draw(t, "length")))
	default:
		return VInt(int32(rapid.IntRange(0, 1).Draw(t, "channel")))
	}
}

// drawCommand records a random mix of edits against the notes m holds now.
func drawCommand(t *rapid.T, m *Model) *NoteDiffCommand {
	existing := notesOf(m)
	c := m.NewNoteDiffCommand("random")
	ops := rapid.IntRange(1, 8).Draw(t, "ops")
	for i := 0; i < ops; i++ {
		op := rapid.IntRange(0, 2).Draw(t, "op")
		if len(existing) == 0 {
			op = 0
		}
		switch op {
		case 0:
			c.Add(drawNote(t, "added"))
		case 1:
			c.Remove(rapid.SampledFrom(existing).Draw(t, "removed"))
		case 2:
			n := rapid.SampledFrom(existing).Draw(t, "changed")
			prop := rapid.SampledFrom([]Property{NoteNumber, Velocity, StartTime, Length, Channel}).Draw(t, "prop")
			if err := c.Change(n, prop, drawValue(t, prop)); err != nil {
				t.Fatalf("change %s: %v", prop, err)
			}
		}
	}
	return c
}

func checkIndexed(t *rapid.T, m *Model) {
	r := m.ReadLock()
	defer r.Release()
	notes := r.Notes()
	for i := 1; i < len(notes); i++ {
		if notes[i].Time().Compare(notes[i-1].Time()) < 0 {
			t.Fatalf("notes out of order: %s before %s", notes[i-1], notes[i])
		}
	}
	for _, n := range notes {
		if got, ok := r.FindNote(n.ID()); !ok || got != n {
			t.Fatalf("%s not found by id", n)
		}
		if !slices.Contains(r.ChannelNotes(n.Channel()), n) {
			t.Fatalf("%s missing from channel %d index", n, n.Channel())
		}
	}
}

func TestUndoRestoresModel(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := drawModel(t)
		before := snapshot(m)
		c := drawCommand(t, m)

		if err := c.Apply(); err != nil {
			t.Fatal(err)
		}
		checkIndexed(t, m)
		applied := snapshot(m)

		if err := c.Undo(); err != nil {
			t.Fatal(err)
		}
		checkIndexed(t, m)
		if got := snapshot(m); !slices.Equal(before, got) {
			t.Fatalf("undo:\nwant %v\ngot  %v", before, got)
		}

		if err := c.Apply(); err != nil {
			t.Fatal(err)
		}
		if got := snapshot(m); !slices.Equal(applied, got) {
			t.Fatalf("redo:\nwant %v\ngot  %v", applied, got)
		}
		if err := c.Undo(); err != nil {
			t.Fatal(err)
		}
		if got := snapshot(m); !slices.Equal(before, got) {
			t.Fatalf("second undo:\nwant %v\ngot  %v", before, got)
		}
	})
}

func TestStateRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		src := drawModel(t)
		dst := New()
		if err := dst.SetState(src.GetState()); err != nil {
			t.Fatal(err)
		}
		if want, got := snapshot(src), snapshot(dst); !slices.Equal(want, got) {
			t.Fatalf("want %v\ngot  %v", want, got)
		}
		if src.InsertMergePolicy() != dst.InsertMergePolicy() ||
			src.OverlappingPitchesAccepted() != dst.OverlappingPitchesAccepted() {
			t.Fatalf("policies not restored")
		}
	})
}
