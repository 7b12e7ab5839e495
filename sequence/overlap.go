package sequence

import (
	"go-midimodel/midi"
	"go-midimodel/temporal"
)

// Trim shortens Note to Length.
type Trim[T temporal.Time[T]] struct {
	Note   *midi.Note[T]
	Length T
}

// OverlapPlan lists the edits that would normalize overlapping notes.
type OverlapPlan[T temporal.Time[T]] struct {
	Remove []*midi.Note[T]
	Trim   []Trim[T]
}

func (p OverlapPlan[T]) Empty() bool { return len(p.Remove) == 0 && len(p.Trim) == 0 }

// eachPitchRun calls fn with the notes of every (channel, pitch) in time
// order.
func (s *Sequence[T]) eachPitchRun(fn func(run []*midi.Note[T])) {
	for ch := range s.pitches {
		var run []*midi.Note[T]
		cur := -1
		s.pitches[ch].Ascend(func(k noteKey[T]) bool {
			if int(k.pitch) != cur {
				if len(run) > 0 {
					fn(run)
				}
				run = run[:0]
				cur = int(k.pitch)
			}
			run = append(run, k.note)
			return true
		})
		if len(run) > 0 {
			fn(run)
		}
	}
}

// PlanRemoveOverlaps resolves overlaps pairwise in time order. The kept note
// is the latest-starting survivor under LastOnFirstOff and the earliest under
// FirstOnFirstOff. Zero-length notes never overlap anything.
func (r *Reader[T]) PlanRemoveOverlaps() OverlapPlan[T] {
	r.check()
	var plan OverlapPlan[T]
	res := r.seq.OverlapPitchResolution()
	r.seq.eachPitchRun(func(run []*midi.Note[T]) {
		var prev *midi.Note[T]
		for _, n := range run {
			if n.Length().Ticks() <= 0 {
				continue
			}
			if prev == nil || !overlapsInterval(prev, n) {
				prev = n
				continue
			}
			if res == FirstOnFirstOff {
				plan.Remove = append(plan.Remove, n)
			} else {
				plan.Remove = append(plan.Remove, prev)
				prev = n
			}
		}
	})
	return plan
}

// PlanTrimOverlaps shortens each note that overlaps the next one of the same
// pitch so it ends where the next starts. Nothing is removed.
func (r *Reader[T]) PlanTrimOverlaps() OverlapPlan[T] {
	r.check()
	var plan OverlapPlan[T]
	r.seq.eachPitchRun(func(run []*midi.Note[T]) {
		var prev *midi.Note[T]
		for _, n := range run {
			if n.Length().Ticks() <= 0 {
				continue
			}
			if prev != nil && overlapsInterval(prev, n) {
				plan.Trim = append(plan.Trim, Trim[T]{Note: prev, Length: n.Time().Sub(prev.Time())})
			}
			prev = n
		}
	})
	return plan
}

// PlanRemoveDuplicates lists notes equal to an earlier note at the same
// position. The first of each group is kept.
func (r *Reader[T]) PlanRemoveDuplicates() []*midi.Note[T] {
	r.check()
	var out []*midi.Note[T]
	r.seq.eachPitchRun(func(run []*midi.Note[T]) {
		for i := 0; i < len(run); i++ {
			if run[i] == nil {
				continue
			}
			for j := i + 1; j < len(run); j++ {
				if run[j] == nil {
					continue
				}
				if run[j].Time() != run[i].Time() {
					break
				}
				if run[j].Equal(run[i]) {
					out = append(out, run[j])
					run[j] = nil
				}
			}
		}
	})
	return out
}

// ApplyPlan carries out an overlap plan.
func (w *Writer[T]) ApplyPlan(p OverlapPlan[T]) {
	w.check()
	for _, n := range p.Remove {
		w.RemoveNote(n)
	}
	for _, t := range p.Trim {
		t.Note.SetLength(t.Length)
	}
	if !p.Empty() {
		w.seq.edited.Store(true)
	}
}

// RemoveOverlappingNotes deletes notes per the overlap resolution and
// returns how many were removed.
func (w *Writer[T]) RemoveOverlappingNotes() int {
	p := w.PlanRemoveOverlaps()
	w.ApplyPlan(p)
	return len(p.Remove)
}

// TrimOverlappingNotes shortens overlapping notes and returns how many were
// trimmed.
func (w *Writer[T]) TrimOverlappingNotes() int {
	p := w.PlanTrimOverlaps()
	w.ApplyPlan(p)
	return len(p.Trim)
}

// RemoveDuplicateNotes deletes notes equal to another at the same position.
func (w *Writer[T]) RemoveDuplicateNotes() int {
	dups := w.PlanRemoveDuplicates()
	for _, n := range dups {
		w.RemoveNote(n)
	}
	return len(dups)
}
