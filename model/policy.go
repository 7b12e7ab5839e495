package model

import (
	"go-midimodel/debug"
	"go-midimodel/sequence"
	"go-midimodel/temporal"
)

// InsertMergePolicy decides what happens when an added note overlaps
// existing notes of the same channel and pitch while overlapping pitches
// are not accepted.
type InsertMergePolicy uint8

const (
	// Reject refuses the new note.
	Reject InsertMergePolicy = iota
	// Relax keeps both notes as they are.
	Relax
	// Replace removes the existing notes.
	Replace
	// TruncateExisting shortens earlier notes to end where the new one
	// starts and removes the ones starting at or after it.
	TruncateExisting
	// TruncateAddition shortens the new note to end where the next existing
	// note starts. The new note is refused when an existing note already
	// covers its start.
	TruncateAddition
	// Extend merges the overlapping notes into one covering all of them.
	Extend
)

var policyNames = [...]string{"reject", "relax", "replace", "truncate-existing", "truncate-addition", "extend"}

func (p InsertMergePolicy) String() string {
	if int(p) < len(policyNames) {
		return policyNames[p]
	}
	return "unknown"
}

func ParseInsertMergePolicy(s string) (InsertMergePolicy, bool) {
	for i, name := range policyNames {
		if name == s {
			return InsertMergePolicy(i), true
		}
	}
	return Relax, false
}

type noEffects struct{}

func (noEffects) SideEffectRemove(*Note)                                 {}
func (noEffects) SideEffectLength(*Note, temporal.Beats, temporal.Beats) {}

// resolveOverlaps is the sequence's overlap resolver. Edits to existing
// notes are reported to fx so the command being applied can undo them.
func (m *Model) resolveOverlaps(w *Writer, n *Note, fx sequence.SideEffects[temporal.Beats]) bool {
	if fx == nil {
		fx = noEffects{}
	}
	overlaps := w.OverlappingNotes(n, nil)
	if len(overlaps) == 0 {
		return true
	}
	policy := m.InsertMergePolicy()
	log := debug.For("model")

	switch policy {
	case Reject:
		log.Debug("overlap rejected", "note", n, "overlaps", len(overlaps))
		return false

	case Relax:
		return true

	case Replace:
		for _, o := range overlaps {
			w.RemoveNote(o)
			fx.SideEffectRemove(o)
		}
		return true

	case TruncateExisting:
		for _, o := range overlaps {
			if o.Time().Compare(n.Time()) < 0 {
				from := o.Length()
				o.SetEndTime(n.Time())
				fx.SideEffectLength(o, from, o.Length())
				continue
			}
			w.RemoveNote(o)
			fx.SideEffectRemove(o)
		}
		return true

	case TruncateAddition:
		end := n.EndTime()
		for _, o := range overlaps {
			if o.Time().Compare(n.Time()) <= 0 {
				log.Debug("addition covered by existing note", "note", n, "existing", o)
				return false
			}
			end = temporal.Earlier(end, o.Time())
		}
		from := n.Length()
		n.SetEndTime(end)
		fx.SideEffectLength(n, from, n.Length())
		return true

	case Extend:
		end := n.EndTime()
		var head *Note
		for _, o := range overlaps {
			end = temporal.Later(end, o.EndTime())
			if head == nil && o.Time().Compare(n.Time()) <= 0 {
				head = o
			}
		}
		keep := n
		if head != nil {
			keep = head
		}
		for _, o := range overlaps {
			if o == keep {
				continue
			}
			w.RemoveNote(o)
			fx.SideEffectRemove(o)
		}
		from := keep.Length()
		keep.SetEndTime(end)
		if keep.Length() != from {
			fx.SideEffectLength(keep, from, keep.Length())
		}
		// the merged note lives on in head; n itself is not added
		return keep == n
	}
	return true
}
