// Package operators turns note selections into undoable edits.
package operators

import (
	"fmt"
	"math"
	"slices"

	"go-midimodel/model"
	"go-midimodel/seqerr"
	"go-midimodel/temporal"
)

type Note = model.Note

// Operator builds an unapplied NoteDiffCommand for the notes in seqs.
// Times are measured from position, so grids line up with it.
type Operator interface {
	Name() string
	Apply(m *model.Model, position temporal.Beats, seqs [][]*Note) (*model.NoteDiffCommand, error)
}

// Transpose shifts pitches, clamping to 0..127.
type Transpose struct {
	Semitones int
}

func (o Transpose) Name() string { return fmt.Sprintf("transpose %+d", o.Semitones) }

func (o Transpose) Apply(m *model.Model, _ temporal.Beats, seqs [][]*Note) (*model.NoteDiffCommand, error) {
	c := m.NewNoteDiffCommand(o.Name())
	for _, seq := range seqs {
		for _, n := range seq {
			p := max(0, min(127, int(n.Pitch())+o.Semitones))
			c.ChangeNumber(n, uint8(p))
		}
	}
	return c, nil
}

// Quantize moves note starts and/or ends towards a grid. Strength is the
// fraction of the distance to the grid line moved, 0..1. Notes already
// within Threshold of the grid are left alone.
type Quantize struct {
	Grid      temporal.Beats
	Strength  float64
	Threshold temporal.Beats
	Start     bool
	End       bool
}

func (o Quantize) Name() string { return "quantize" }

func (o Quantize) snap(t, position temporal.Beats) temporal.Beats {
	rel := t.Sub(position)
	target := rel.RoundTo(o.Grid)
	delta := target.Ticks() - rel.Ticks()
	if abs(delta) <= o.Threshold.Ticks() {
		return t
	}
	moved := int64(math.Round(float64(delta) * o.Strength))
	return t.Add(temporal.BeatTicks(moved))
}

func (o Quantize) Apply(m *model.Model, position temporal.Beats, seqs [][]*Note) (*model.NoteDiffCommand, error) {
	if o.Grid.Ticks() <= 0 {
		return nil, seqerr.ContractViolation("quantize grid must be positive, got %s", o.Grid)
	}
	if o.Strength < 0 || o.Strength > 1 {
		return nil, seqerr.ContractViolation("quantize strength %g outside 0..1", o.Strength)
	}
	c := m.NewNoteDiffCommand(o.Name())
	for _, seq := range seqs {
		for _, n := range seq {
			start, end := n.Time(), n.EndTime()
			if o.Start {
				start = temporal.Later(o.snap(start, position), position)
			}
			if o.End {
				end = o.snap(end, position)
			}
			// never collapse a note
			if end.Compare(start) <= 0 {
				end = start.Add(temporal.Beats{}.FromTicks(max(n.Length().Ticks(), 1)))
			}
			c.ChangeTime(n, start)
			c.ChangeLength(n, end.Sub(start))
		}
	}
	return c, nil
}

// Legatize stretches each note to the start of the next note in its
// sequence. With ShrinkOnly notes are only shortened where they overlap
// the next one.
type Legatize struct {
	ShrinkOnly bool
}

func (o Legatize) Name() string {
	if o.ShrinkOnly {
		return "remove overlap"
	}
	return "legatize"
}

func (o Legatize) Apply(m *model.Model, _ temporal.Beats, seqs [][]*Note) (*model.NoteDiffCommand, error) {
	c := m.NewNoteDiffCommand(o.Name())
	for _, seq := range seqs {
		sorted := slices.Clone(seq)
		slices.SortStableFunc(sorted, func(a, b *Note) int { return a.Time().Compare(b.Time()) })
		for i, n := range sorted {
			// the next note that starts strictly later
			j := i + 1
			for j < len(sorted) && sorted[j].Time() == n.Time() {
				j++
			}
			if j == len(sorted) {
				continue
			}
			length := sorted[j].Time().Sub(n.Time())
			switch d := length.Compare(n.Length()); {
			case d == 0, d > 0 && o.ShrinkOnly:
				continue
			}
			c.ChangeLength(n, length)
		}
	}
	return c, nil
}

// VelocityScale multiplies velocities, keeping them within 1..127.
type VelocityScale struct {
	Factor float64
}

func (o VelocityScale) Name() string { return fmt.Sprintf("velocity x%g", o.Factor) }

func (o VelocityScale) Apply(m *model.Model, _ temporal.Beats, seqs [][]*Note) (*model.NoteDiffCommand, error) {
	if o.Factor < 0 {
		return nil, seqerr.ContractViolation("velocity factor %g is negative", o.Factor)
	}
	c := m.NewNoteDiffCommand(o.Name())
	for _, seq := range seqs {
		for _, n := range seq {
			v := int(math.Round(float64(n.Velocity()) * o.Factor))
			c.ChangeVelocity(n, uint8(max(1, min(127, v))))
		}
	}
	return c, nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
