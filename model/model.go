// Package model wraps a beat-timed sequence with undoable diff commands,
// overlap merge policies, change notifications and state persistence.
package model

import (
	"io"
	"sync"
	"sync/atomic"

	"go-midimodel/debug"
	"go-midimodel/history"
	"go-midimodel/seqerr"
	"go-midimodel/sequence"
	"go-midimodel/temporal"
)

// UndoHistory receives applied commands. *history.History satisfies it.
type UndoHistory interface {
	Push(cmd history.Command)
	AddSubcommand(cmd history.Command) error
	BeginTransaction(name string) error
	CommitTransaction() error
	InTransaction() bool
}

// Source is the backing store a model is synced to. Every call carries the
// caller's lock on that store.
type Source interface {
	Name() string
	SyncModel(lock SourceLock, m *Model) error
	WriteModel(lock SourceLock, m *Model, w io.Writer) error
	WriteModelSection(lock SourceLock, m *Model, w io.Writer, begin, end temporal.Beats) error
}

// SourceLock is proof that the caller holds a source's lock.
type SourceLock interface {
	Source() Source
}

// Model is a Sequence in beats with command-based editing.
type Model struct {
	*sequence.Sequence[temporal.Beats]

	policy atomic.Uint32

	mu      sync.Mutex
	history UndoHistory
	source  Source
	changed []func()
	shifted []func(temporal.Beats)
}

// Option configures a Model.
type Option func(*Model)

func WithOverlappingPitches(accepted bool) Option {
	return func(m *Model) { m.SetOverlappingPitchesAccepted(accepted) }
}

func WithOverlapResolution(r sequence.OverlapResolution) Option {
	return func(m *Model) { m.SetOverlapPitchResolution(r) }
}

func WithInsertMergePolicy(p InsertMergePolicy) Option {
	return func(m *Model) { m.SetInsertMergePolicy(p) }
}

func WithPercussive(p bool) Option {
	return func(m *Model) { m.SetPercussive(p) }
}

// WithHistory makes ApplyCommand record into h.
func WithHistory(h UndoHistory) Option {
	return func(m *Model) { m.history = h }
}

func WithSource(s Source) Option {
	return func(m *Model) { m.source = s }
}

// New returns an empty model. Overlapping pitches are accepted and the merge
// policy is Relax unless options say otherwise.
func New(opts ...Option) *Model {
	m := &Model{Sequence: sequence.New[temporal.Beats]()}
	m.policy.Store(uint32(Relax))
	m.Sequence.SetOverlapResolver(m.resolveOverlaps)
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Model) InsertMergePolicy() InsertMergePolicy {
	return InsertMergePolicy(m.policy.Load())
}

func (m *Model) SetInsertMergePolicy(p InsertMergePolicy) {
	m.policy.Store(uint32(p))
}

func (m *Model) History() UndoHistory {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history
}

func (m *Model) SetHistory(h UndoHistory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = h
}

func (m *Model) Source() Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.source
}

func (m *Model) SetSource(s Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.source = s
}

func (m *Model) NewNoteDiffCommand(name string) *NoteDiffCommand {
	return newNoteDiffCommand(m, name)
}

func (m *Model) NewSysExDiffCommand(name string) *SysExDiffCommand {
	return newSysExDiffCommand(m, name)
}

func (m *Model) NewPatchChangeDiffCommand(name string) *PatchChangeDiffCommand {
	return newPatchChangeDiffCommand(m, name)
}

// ApplyCommand applies cmd and pushes it onto the undo history.
func (m *Model) ApplyCommand(cmd Command) error {
	if err := cmd.Apply(); err != nil {
		return err
	}
	if h := m.History(); h != nil {
		h.Push(cmd)
	}
	return nil
}

// ApplyCommandAsSubcommand applies cmd as part of the transaction the
// caller has open on the history.
func (m *Model) ApplyCommandAsSubcommand(cmd Command) error {
	if err := cmd.Apply(); err != nil {
		return err
	}
	if h := m.History(); h != nil {
		return h.AddSubcommand(cmd)
	}
	return nil
}

// ApplyCommandAsCommit applies cmd in a transaction of its own.
func (m *Model) ApplyCommandAsCommit(cmd Command) error {
	h := m.History()
	if h == nil {
		return cmd.Apply()
	}
	if err := h.BeginTransaction(cmd.Name()); err != nil {
		return err
	}
	if err := m.ApplyCommandAsSubcommand(cmd); err != nil {
		_ = h.CommitTransaction()
		return err
	}
	return h.CommitTransaction()
}

func (m *Model) FindNote(id int64) (*Note, bool) {
	r := m.ReadLock()
	defer r.Release()
	return r.FindNote(id)
}

func (m *Model) FindSysEx(id int64) (*Event, bool) {
	r := m.ReadLock()
	defer r.Release()
	return r.FindSysEx(id)
}

func (m *Model) FindPatchChange(id int64) (*PatchChange, bool) {
	r := m.ReadLock()
	defer r.Release()
	return r.FindPatchChange(id)
}

// NoteIDs returns the ids of every stored note in time order.
func (m *Model) NoteIDs() []int64 {
	r := m.ReadLock()
	defer r.Release()
	notes := r.Notes()
	ids := make([]int64, len(notes))
	for i, n := range notes {
		ids[i] = n.ID()
	}
	return ids
}

// Transpose records a pitch shift for every note starting in [from, to).
// Pitches are clamped to 0..127.
func (m *Model) Transpose(cmd *NoteDiffCommand, from, to temporal.Beats, semitones int) {
	r := m.ReadLock()
	notes := r.NotesFrom(from)
	r.Release()
	for _, n := range notes {
		if n.Time().Compare(to) >= 0 {
			break
		}
		p := max(0, min(127, int(n.Pitch())+semitones))
		cmd.ChangeNumber(n, uint8(p))
	}
}

// InsertSilenceAtStart moves every event later by t through undoable
// commands, shifts controller data and then fires ContentsShifted.
func (m *Model) InsertSilenceAtStart(t temporal.Beats) error {
	if t.Ticks() <= 0 {
		return nil
	}
	r := m.ReadLock()
	notes, sysexes, patches := r.Notes(), r.SysExes(), r.PatchChanges()
	r.Release()

	h := m.History()
	if h != nil && !h.InTransaction() {
		if err := h.BeginTransaction("insert silence"); err != nil {
			return err
		}
		defer func() { _ = h.CommitTransaction() }()
	}

	if len(notes) > 0 {
		c := m.NewNoteDiffCommand("insert silence")
		for _, n := range notes {
			c.ChangeTime(n, n.Time().Add(t))
		}
		if err := m.ApplyCommandAsSubcommand(c); err != nil {
			return err
		}
	}
	if len(sysexes) > 0 {
		c := m.NewSysExDiffCommand("insert silence")
		for _, e := range sysexes {
			c.ChangeTime(e, e.Time().Add(t))
		}
		if err := m.ApplyCommandAsSubcommand(c); err != nil {
			return err
		}
	}
	if len(patches) > 0 {
		c := m.NewPatchChangeDiffCommand("insert silence")
		for _, p := range patches {
			c.ChangeTime(p, p.Time().Add(t))
		}
		if err := m.ApplyCommandAsSubcommand(c); err != nil {
			return err
		}
	}
	m.Controls().Shift(t)
	m.contentsShifted(t)
	return nil
}

// NormalizeOverlaps returns an unapplied command that removes, or with trim
// shortens, notes overlapping others of the same channel and pitch.
func (m *Model) NormalizeOverlaps(trim bool) *NoteDiffCommand {
	c := m.NewNoteDiffCommand("normalize overlaps")
	r := m.ReadLock()
	defer r.Release()
	var plan sequence.OverlapPlan[temporal.Beats]
	if trim {
		plan = r.PlanTrimOverlaps()
	} else {
		plan = r.PlanRemoveOverlaps()
	}
	for _, n := range plan.Remove {
		c.Remove(n)
	}
	for _, t := range plan.Trim {
		c.ChangeLength(t.Note, t.Length)
	}
	return c
}

// ControlListMarkedDirty checks every controller list for edits and fires
// ContentsChanged when any list changed. It reports whether one did.
func (m *Model) ControlListMarkedDirty() bool {
	dirty := m.Controls().Dirty()
	if dirty {
		m.SetEdited(true)
		m.contentsChanged()
	}
	return dirty
}

// OnContentsChanged registers fn to run after every committed edit.
func (m *Model) OnContentsChanged(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changed = append(m.changed, fn)
}

// OnContentsShifted registers fn to run after InsertSilenceAtStart.
func (m *Model) OnContentsShifted(fn func(temporal.Beats)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shifted = append(m.shifted, fn)
}

func (m *Model) contentsChanged() {
	m.mu.Lock()
	fns := append([]func(){}, m.changed...)
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (m *Model) contentsShifted(t temporal.Beats) {
	m.mu.Lock()
	fns := append([]func(temporal.Beats){}, m.shifted...)
	m.mu.Unlock()
	for _, fn := range fns {
		fn(t)
	}
}

func (m *Model) checkSourceLock(lock SourceLock) (Source, error) {
	src := m.Source()
	if src == nil {
		return nil, seqerr.ContractViolation("model has no source")
	}
	if lock == nil || lock.Source() != src {
		return nil, seqerr.ContractViolation("lock does not belong to source %q", src.Name())
	}
	return src, nil
}

// SyncToSource writes the whole model to its source. lock must be held on
// that source.
func (m *Model) SyncToSource(lock SourceLock) error {
	src, err := m.checkSourceLock(lock)
	if err != nil {
		return err
	}
	if err := src.SyncModel(lock, m); err != nil {
		return seqerr.Wrap(err, "sync to "+src.Name())
	}
	debug.For("model").Info("synced to source", "source", src.Name())
	m.SetEdited(false)
	return nil
}

// WriteModelTo writes the whole model to w in the source's format.
func (m *Model) WriteModelTo(lock SourceLock, w io.Writer) error {
	src, err := m.checkSourceLock(lock)
	if err != nil {
		return err
	}
	return src.WriteModel(lock, m, w)
}

// WriteSectionTo writes the events in [begin, end) to w, rebased to begin.
func (m *Model) WriteSectionTo(lock SourceLock, w io.Writer, begin, end temporal.Beats) error {
	src, err := m.checkSourceLock(lock)
	if err != nil {
		return err
	}
	return src.WriteModelSection(lock, m, w, begin, end)
}
