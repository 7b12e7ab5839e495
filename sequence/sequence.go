// Package sequence stores time-ordered notes, sysex events, patch changes
// and controller data behind a single reader/writer lock.
package sequence

import (
	"sync"
	"sync/atomic"

	"github.com/google/btree"

	"go-midimodel/midi"
	"go-midimodel/temporal"
)

// OverlapResolution picks the survivor when two notes of the same pitch and
// channel overlap.
type OverlapResolution int32

const (
	// LastOnFirstOff keeps the later-starting note.
	LastOnFirstOff OverlapResolution = iota
	// FirstOnFirstOff keeps the earlier-starting note.
	FirstOnFirstOff
)

func (r OverlapResolution) String() string {
	if r == FirstOnFirstOff {
		return "first-on-first-off"
	}
	return "last-on-first-off"
}

// ParseOverlapResolution is the inverse of String.
func ParseOverlapResolution(s string) (OverlapResolution, bool) {
	switch s {
	case "last-on-first-off", "LastOnFirstOff":
		return LastOnFirstOff, true
	case "first-on-first-off", "FirstOnFirstOff":
		return FirstOnFirstOff, true
	}
	return LastOnFirstOff, false
}

// SideEffects receives changes an overlap resolver makes to notes other
// than the one being added.
type SideEffects[T temporal.Time[T]] interface {
	SideEffectRemove(n *midi.Note[T])
	SideEffectLength(n *midi.Note[T], from, to T)
}

// OverlapResolver decides whether n may be added when overlapping pitches are
// not accepted. It runs under the write lock before n is inserted and may
// edit or remove existing notes through w. fx may be nil.
type OverlapResolver[T temporal.Time[T]] func(w *Writer[T], n *midi.Note[T], fx SideEffects[T]) bool

type noteKey[T temporal.Time[T]] struct {
	time    T
	pitch   uint8
	channel uint8
	serial  uint64
	note    *midi.Note[T]
}

func lessByTime[T temporal.Time[T]](a, b noteKey[T]) bool {
	if c := a.time.Compare(b.time); c != 0 {
		return c < 0
	}
	return a.serial < b.serial
}

func lessByPitch[T temporal.Time[T]](a, b noteKey[T]) bool {
	if a.pitch != b.pitch {
		return a.pitch < b.pitch
	}
	return lessByTime(a, b)
}

type eventKey[T temporal.Time[T], E any] struct {
	time   T
	serial uint64
	item   E
}

func lessEvent[T temporal.Time[T], E any](a, b eventKey[T, E]) bool {
	if c := a.time.Compare(b.time); c != 0 {
		return c < 0
	}
	return a.serial < b.serial
}

type (
	sysexKey[T temporal.Time[T]] = eventKey[T, *midi.Event[T]]
	patchKey[T temporal.Time[T]] = eventKey[T, *midi.PatchChange[T]]
)

const degree = 16

// Sequence is the note, sysex, patch change and controller store. Reads go
// through a Reader, mutations through a Writer.
type Sequence[T temporal.Time[T]] struct {
	mu sync.RWMutex

	notes    *btree.BTreeG[noteKey[T]]
	pitches  [midi.NumChannels]*btree.BTreeG[noteKey[T]]
	noteKeys map[*midi.Note[T]]noteKey[T]
	noteByID map[int64]*midi.Note[T]

	sysexes   *btree.BTreeG[sysexKey[T]]
	sysexKeys map[*midi.Event[T]]sysexKey[T]

	patchChanges *btree.BTreeG[patchKey[T]]
	patchKeys    map[*midi.PatchChange[T]]patchKey[T]

	lowest, highest uint8

	writing      bool
	pending      map[pendingKey][]*midi.Note[T]
	bankMSB      [midi.NumChannels]int
	bankLSB      [midi.NumChannels]int
	lastNoteTime T

	overlapAccepted atomic.Bool
	resolution      atomic.Int32
	percussive      atomic.Bool
	edited          atomic.Bool

	resolver OverlapResolver[T]
	controls *ControlSet[T]
}

type pendingKey struct {
	channel uint8
	pitch   uint8
}

// Option configures a Sequence.
type Option[T temporal.Time[T]] func(*Sequence[T])

// WithOverlappingPitches sets whether same-pitch overlaps are kept as is.
func WithOverlappingPitches[T temporal.Time[T]](accepted bool) Option[T] {
	return func(s *Sequence[T]) { s.overlapAccepted.Store(accepted) }
}

func WithOverlapResolution[T temporal.Time[T]](r OverlapResolution) Option[T] {
	return func(s *Sequence[T]) { s.resolution.Store(int32(r)) }
}

func WithPercussive[T temporal.Time[T]](p bool) Option[T] {
	return func(s *Sequence[T]) { s.percussive.Store(p) }
}

// WithOverlapResolver installs the hook consulted when notes are added.
func WithOverlapResolver[T temporal.Time[T]](r OverlapResolver[T]) Option[T] {
	return func(s *Sequence[T]) { s.resolver = r }
}

// New returns an empty sequence. Overlapping pitches are accepted unless an
// option says otherwise.
func New[T temporal.Time[T]](opts ...Option[T]) *Sequence[T] {
	s := &Sequence[T]{controls: newControlSet[T]()}
	s.reset()
	s.overlapAccepted.Store(true)
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Sequence[T]) reset() {
	s.notes = btree.NewG(degree, lessByTime[T])
	for i := range s.pitches {
		s.pitches[i] = btree.NewG(degree, lessByPitch[T])
	}
	s.noteKeys = make(map[*midi.Note[T]]noteKey[T])
	s.noteByID = make(map[int64]*midi.Note[T])
	s.sysexes = btree.NewG(degree, lessEvent[T, *midi.Event[T]])
	s.sysexKeys = make(map[*midi.Event[T]]sysexKey[T])
	s.patchChanges = btree.NewG(degree, lessEvent[T, *midi.PatchChange[T]])
	s.patchKeys = make(map[*midi.PatchChange[T]]patchKey[T])
	s.lowest, s.highest = 127, 0
	s.pending = make(map[pendingKey][]*midi.Note[T])
	for ch := range s.bankMSB {
		s.bankMSB[ch] = midi.NoBank
		s.bankLSB[ch] = midi.NoBank
	}
	s.lastNoteTime = temporal.Zero[T]()
}

// SetOverlapResolver replaces the hook consulted when notes are added.
func (s *Sequence[T]) SetOverlapResolver(r OverlapResolver[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolver = r
}

func (s *Sequence[T]) OverlappingPitchesAccepted() bool { return s.overlapAccepted.Load() }

func (s *Sequence[T]) SetOverlappingPitchesAccepted(v bool) { s.overlapAccepted.Store(v) }

func (s *Sequence[T]) OverlapPitchResolution() OverlapResolution {
	return OverlapResolution(s.resolution.Load())
}

func (s *Sequence[T]) SetOverlapPitchResolution(r OverlapResolution) {
	s.resolution.Store(int32(r))
}

func (s *Sequence[T]) Percussive() bool     { return s.percussive.Load() }
func (s *Sequence[T]) SetPercussive(v bool) { s.percussive.Store(v) }

// Edited is set by every mutation and cleared by SetEdited(false).
func (s *Sequence[T]) Edited() bool     { return s.edited.Load() }
func (s *Sequence[T]) SetEdited(v bool) { s.edited.Store(v) }

// Controls returns the controller store. It is locked separately.
func (s *Sequence[T]) Controls() *ControlSet[T] { return s.controls }

// ReadLock blocks until a shared lock is held.
func (s *Sequence[T]) ReadLock() *Reader[T] {
	s.mu.RLock()
	r := &Reader[T]{seq: s, unlock: s.mu.RUnlock}
	r.live.Store(true)
	return r
}

// TryReadLock returns nil instead of blocking when a writer holds the lock.
func (s *Sequence[T]) TryReadLock() *Reader[T] {
	if !s.mu.TryRLock() {
		return nil
	}
	r := &Reader[T]{seq: s, unlock: s.mu.RUnlock}
	r.live.Store(true)
	return r
}

// WriteLock blocks until the exclusive lock is held.
func (s *Sequence[T]) WriteLock() *Writer[T] {
	s.mu.Lock()
	w := &Writer[T]{Reader: Reader[T]{seq: s, unlock: s.mu.Unlock}}
	w.live.Store(true)
	return w
}

// Read runs fn under a shared lock.
func (s *Sequence[T]) Read(fn func(r *Reader[T])) {
	r := s.ReadLock()
	defer r.Release()
	fn(r)
}

// Write runs fn under the exclusive lock.
func (s *Sequence[T]) Write(fn func(w *Writer[T]) error) error {
	w := s.WriteLock()
	defer w.Release()
	return fn(w)
}

// Clone deep-copies the sequence contents and settings. The overlap resolver
// is not carried over.
func (s *Sequence[T]) Clone() *Sequence[T] {
	r := s.ReadLock()
	defer r.Release()

	c := New[T](
		WithOverlappingPitches[T](s.OverlappingPitchesAccepted()),
		WithOverlapResolution[T](s.OverlapPitchResolution()),
		WithPercussive[T](s.Percussive()),
	)
	for _, n := range r.Notes() {
		c.insertNote(n.Clone())
	}
	for _, e := range r.SysExes() {
		c.insertSysEx(e.Clone())
	}
	for _, p := range r.PatchChanges() {
		c.insertPatchChange(p.Clone())
	}
	c.controls = s.controls.clone()
	return c
}
