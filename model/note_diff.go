package model

import (
	"slices"

	"go-midimodel/debug"
	"go-midimodel/midi"
	"go-midimodel/seqerr"
	"go-midimodel/state"
	"go-midimodel/temporal"
)

// Property names a mutable note field.
type Property uint8

const (
	NoteNumber Property = iota
	Velocity
	StartTime
	Length
	Channel
)

var propertyNames = [...]string{"NoteNumber", "Velocity", "StartTime", "Length", "Channel"}

func (p Property) String() string {
	if int(p) < len(propertyNames) {
		return propertyNames[p]
	}
	return "Unknown"
}

func ParseProperty(s string) (Property, bool) {
	for i, name := range propertyNames {
		if name == s {
			return Property(i), true
		}
	}
	return 0, false
}

// keyed properties decide where a note sits in the indexes.
func (p Property) keyed() bool {
	return p == NoteNumber || p == StartTime || p == Channel
}

func (p Property) valueType() VariantType {
	if p == StartTime || p == Length {
		return BeatsType
	}
	return IntType
}

// NoteValue reads the current value of prop from n.
func NoteValue(n *Note, prop Property) Variant {
	switch prop {
	case NoteNumber:
		return VInt(int32(n.Pitch()))
	case Velocity:
		return VInt(int32(n.Velocity()))
	case StartTime:
		return VBeats(n.Time())
	case Length:
		return VBeats(n.Length())
	case Channel:
		return VInt(int32(n.Channel()))
	}
	return VNothing()
}

// setNoteValue writes v, already type checked, into n.
func setNoteValue(n *Note, prop Property, v Variant) {
	switch prop {
	case NoteNumber:
		i, _ := v.GetInt()
		n.SetPitch(int(i))
	case Velocity:
		i, _ := v.GetInt()
		n.SetVelocity(int(i))
	case StartTime:
		t, _ := v.GetBeats()
		n.SetTime(t)
	case Length:
		l, _ := v.GetBeats()
		n.SetLength(l)
	case Channel:
		i, _ := v.GetInt()
		n.SetChannel(uint8(i))
	}
}

// NoteChange is one recorded property edit. Old is read when the change is
// recorded, not when it is applied.
type NoteChange struct {
	Property Property
	Note     *Note
	Old      Variant
	New      Variant
}

// LengthChange is a length edit made to a note as a consequence of applying
// the command, usually by overlap resolution.
type LengthChange struct {
	Note     *Note
	From, To temporal.Beats
}

// NoteDiffCommand records note additions, removals and property changes as
// one undoable step.
//
// Apply runs adds, then changes, then explicit removes, then side-effect
// removes. Undo re-adds explicit removes, reverts changes and side-effect
// length edits in reverse order of occurrence, removes adds, and finally
// re-adds side-effect removals.
type NoteDiffCommand struct {
	command
	changes            []NoteChange
	added              []*Note
	removed            []*Note
	sideEffectRemovals []*Note
	sideEffectChanges  []LengthChange

	// sideEffectChanges[:changeMark] happened before the recorded changes
	changeMark int
}

func newNoteDiffCommand(m *Model, name string) *NoteDiffCommand {
	return &NoteDiffCommand{command: newCommand(m, name)}
}

// Add records n for insertion. A pending removal of n is dropped. A note
// without an id gets one now so the command can refer to it.
func (c *NoteDiffCommand) Add(n *Note) {
	if n.ID() == midi.NoID {
		n.SetID(midi.NextEventID())
	}
	c.removed = deleteNote(c.removed, n)
	if !slices.Contains(c.added, n) {
		c.added = append(c.added, n)
	}
}

// Remove records n for removal. A pending addition of n is dropped.
func (c *NoteDiffCommand) Remove(n *Note) {
	c.added = deleteNote(c.added, n)
	if !slices.Contains(c.removed, n) {
		c.removed = append(c.removed, n)
	}
}

// SideEffectRemove records a removal caused by another edit in this command.
func (c *NoteDiffCommand) SideEffectRemove(n *Note) {
	if !slices.Contains(c.sideEffectRemovals, n) {
		c.sideEffectRemovals = append(c.sideEffectRemovals, n)
	}
}

// SideEffectLength records a length edit caused by another edit in this
// command.
func (c *NoteDiffCommand) SideEffectLength(n *Note, from, to temporal.Beats) {
	c.sideEffectChanges = append(c.sideEffectChanges, LengthChange{Note: n, From: from, To: to})
}

// Change records setting prop of n to v. The value type must match the
// property: Int for NoteNumber, Velocity and Channel, Beats for StartTime and
// Length. A change to the current value is not recorded.
func (c *NoteDiffCommand) Change(n *Note, prop Property, v Variant) error {
	if want := prop.valueType(); v.Type() != want {
		return seqerr.TypeMismatch("%s takes %s, got %s", prop, want, v.Type())
	}
	switch prop {
	case Channel:
		ch, _ := v.GetInt()
		if !midi.ValidChannel(int(ch)) {
			return seqerr.ContractViolation("channel %d out of range", ch)
		}
	case NoteNumber, Velocity:
		i, _ := v.GetInt()
		if i < 0 || i > 127 {
			return seqerr.ContractViolation("%s %d out of range", prop, i)
		}
	case Length:
		l, _ := v.GetBeats()
		if l.Ticks() < 0 {
			return seqerr.ContractViolation("negative length %s", l)
		}
	}
	c.record(n, prop, v)
	return nil
}

func (c *NoteDiffCommand) record(n *Note, prop Property, v Variant) {
	old := NoteValue(n, prop)
	if old == v {
		return
	}
	c.changes = append(c.changes, NoteChange{Property: prop, Note: n, Old: old, New: v})
}

func (c *NoteDiffCommand) ChangeNumber(n *Note, pitch uint8) {
	c.record(n, NoteNumber, VInt(int32(min(pitch, 127))))
}

func (c *NoteDiffCommand) ChangeVelocity(n *Note, velocity uint8) {
	c.record(n, Velocity, VInt(int32(min(max(velocity, 1), 127))))
}

func (c *NoteDiffCommand) ChangeTime(n *Note, t temporal.Beats) {
	c.record(n, StartTime, VBeats(t))
}

// ChangeLength clamps negative lengths to zero.
func (c *NoteDiffCommand) ChangeLength(n *Note, l temporal.Beats) {
	if l.Ticks() < 0 {
		l = temporal.Beats{}
	}
	c.record(n, Length, VBeats(l))
}

func (c *NoteDiffCommand) ChangeChannel(n *Note, ch uint8) error {
	return c.Change(n, Channel, VInt(int32(ch)))
}

func (c *NoteDiffCommand) Changes() []NoteChange             { return c.changes }
func (c *NoteDiffCommand) AddedNotes() []*Note               { return c.added }
func (c *NoteDiffCommand) RemovedNotes() []*Note             { return c.removed }
func (c *NoteDiffCommand) SideEffectRemovals() []*Note       { return c.sideEffectRemovals }
func (c *NoteDiffCommand) SideEffectChanges() []LengthChange { return c.sideEffectChanges }

// Empty reports whether the command records nothing.
func (c *NoteDiffCommand) Empty() bool {
	return len(c.changes) == 0 && len(c.added) == 0 && len(c.removed) == 0 && len(c.sideEffectRemovals) == 0
}

// Merge folds o into c so both apply as one step. Both must be unapplied
// commands of the same model.
func (c *NoteDiffCommand) Merge(o *NoteDiffCommand) error {
	if c.model != o.model {
		return seqerr.ContractViolation("merging commands of different models")
	}
	if c.state != Built || o.state != Built {
		return seqerr.InvalidCommandState("merge needs unapplied commands, have %s and %s", c.state, o.state)
	}
	c.changes = append(c.changes, o.changes...)
	for _, n := range o.added {
		c.Add(n)
	}
	for _, n := range o.removed {
		c.Remove(n)
	}
	for _, n := range o.sideEffectRemovals {
		c.SideEffectRemove(n)
	}
	return nil
}

// Apply performs the recorded edits under the model's write lock.
func (c *NoteDiffCommand) Apply() error {
	if err := c.beginApply(); err != nil {
		return err
	}
	m := c.model
	w := m.WriteLock()
	c.apply(w)
	w.Release()
	m.SetEdited(true)

	c.state = Applied
	debug.For("model").Debug("applied note diff",
		"name", c.name, "added", len(c.added), "removed", len(c.removed),
		"changes", len(c.changes), "side_effects", len(c.sideEffectRemovals))
	m.contentsChanged()
	return nil
}

func (c *NoteDiffCommand) apply(w *Writer) {
	// side-effect lengths are recomputed by the overlap resolver each time
	c.sideEffectChanges = nil

	for _, n := range c.added {
		if !w.AddNote(n, c) {
			debug.Log("model", "%s: add of %s refused", c.name, n)
		}
	}
	c.changeMark = len(c.sideEffectChanges)

	// lengths are re-added too when overlaps have to be resolved
	resolveLengths := !c.model.OverlappingPitchesAccepted()
	var moved []*Note
	for _, ch := range c.changes {
		n := ch.Note
		reinsert := ch.Property.keyed() || (resolveLengths && ch.Property == Length)
		if reinsert && !slices.Contains(moved, n) && w.Present(n) {
			w.RemoveNote(n)
			moved = append(moved, n)
		}
		setNoteValue(n, ch.Property, ch.New)
	}
	for _, n := range moved {
		if !w.AddNote(n, c) {
			c.SideEffectRemove(n)
		}
	}

	for _, n := range c.removed {
		w.RemoveNote(n)
	}
	for _, n := range c.sideEffectRemovals {
		w.RemoveNote(n)
	}
}

// Undo reverts an applied command.
func (c *NoteDiffCommand) Undo() error {
	if err := c.beginUndo(); err != nil {
		return err
	}
	m := c.model
	w := m.WriteLock()
	c.undo(w)
	w.Release()
	m.SetEdited(true)

	c.state = Undone
	debug.For("model").Debug("undid note diff", "name", c.name)
	m.contentsChanged()
	return nil
}

func (c *NoteDiffCommand) undo(w *Writer) {
	for _, n := range c.removed {
		w.InsertNote(n)
	}
	revertLengths := func(lcs []LengthChange) {
		for i := len(lcs) - 1; i >= 0; i-- {
			lc := lcs[i]
			w.UpdateNote(lc.Note, func(n *Note) { n.SetLength(lc.From) })
		}
	}
	mark := min(c.changeMark, len(c.sideEffectChanges))
	revertLengths(c.sideEffectChanges[mark:])
	for i := len(c.changes) - 1; i >= 0; i-- {
		ch := c.changes[i]
		w.UpdateNote(ch.Note, func(n *Note) { setNoteValue(n, ch.Property, ch.Old) })
	}
	revertLengths(c.sideEffectChanges[:mark])
	for _, n := range c.added {
		w.RemoveNote(n)
	}
	for _, n := range c.sideEffectRemovals {
		if slices.Contains(c.added, n) {
			continue
		}
		w.InsertNote(n)
	}
}

// GetState serializes the command. Notes are identified by id.
func (c *NoteDiffCommand) GetState() *state.Node {
	root := c.stateNode("NoteDiffCommand")

	changes := root.AddChild("ChangedNotes")
	for _, ch := range c.changes {
		changes.AddChild("Change").
			Set("property", ch.Property.String()).
			SetInt("id", ch.Note.ID()).
			Set("old", ch.Old.Encode()).
			Set("new", ch.New.Encode())
	}
	addNotes(root.AddChild("AddedNotes"), c.added)
	addNotes(root.AddChild("RemovedNotes"), c.removed)
	addNotes(root.AddChild("SideEffectRemovals"), c.sideEffectRemovals)

	lengths := root.AddChild("SideEffectChanges").SetInt("mark", int64(c.changeMark))
	for _, lc := range c.sideEffectChanges {
		lengths.AddChild("LengthChange").
			SetInt("id", lc.Note.ID()).
			Set("from", encodeBeats(lc.From)).
			Set("to", encodeBeats(lc.To))
	}
	return root
}

func addNotes(parent *state.Node, notes []*Note) {
	for _, n := range notes {
		parent.Add(noteNode(n))
	}
}

// NoteDiffCommandFromState rebuilds a command serialized by GetState.
// Changed notes are looked up among the command's own notes first, then in
// the model.
func (m *Model) NoteDiffCommandFromState(node *state.Node) (*NoteDiffCommand, error) {
	if node == nil || node.Name != "NoteDiffCommand" {
		return nil, seqerr.MalformedState("expected NoteDiffCommand node")
	}
	c := newNoteDiffCommand(m, "")
	if err := c.restore(node); err != nil {
		return nil, err
	}

	var err error
	if c.added, err = notesFrom(node.Child("AddedNotes")); err != nil {
		return nil, err
	}
	if c.removed, err = notesFrom(node.Child("RemovedNotes")); err != nil {
		return nil, err
	}
	if c.sideEffectRemovals, err = notesFrom(node.Child("SideEffectRemovals")); err != nil {
		return nil, err
	}

	find := func(id int64) (*Note, error) {
		for _, list := range [][]*Note{c.added, c.removed, c.sideEffectRemovals} {
			for _, n := range list {
				if n.ID() == id {
					return n, nil
				}
			}
		}
		if n, ok := m.FindNote(id); ok {
			return n, nil
		}
		return nil, seqerr.UnknownEvent("note", id)
	}

	if changes := node.Child("ChangedNotes"); changes != nil {
		for _, cn := range changes.ChildrenNamed("Change") {
			ch, err := noteChangeFrom(cn, find)
			if err != nil {
				return nil, err
			}
			c.changes = append(c.changes, ch)
		}
	}
	if lengths := node.Child("SideEffectChanges"); lengths != nil {
		mark, err := lengths.IntOr("mark", 0)
		if err != nil {
			return nil, err
		}
		c.changeMark = int(mark)
		for _, ln := range lengths.ChildrenNamed("LengthChange") {
			id, err := ln.Int("id")
			if err != nil {
				return nil, err
			}
			n, err := find(id)
			if err != nil {
				return nil, err
			}
			from, err := beatsAttr(ln, "from")
			if err != nil {
				return nil, err
			}
			to, err := beatsAttr(ln, "to")
			if err != nil {
				return nil, err
			}
			c.sideEffectChanges = append(c.sideEffectChanges, LengthChange{Note: n, From: from, To: to})
		}
	}
	return c, nil
}

func noteChangeFrom(node *state.Node, find func(int64) (*Note, error)) (NoteChange, error) {
	s, _ := node.Get("property")
	prop, ok := ParseProperty(s)
	if !ok {
		return NoteChange{}, seqerr.MalformedState("Change: unknown property %q", s)
	}
	id, err := node.Int("id")
	if err != nil {
		return NoteChange{}, err
	}
	n, err := find(id)
	if err != nil {
		return NoteChange{}, err
	}
	oldText, _ := node.Get("old")
	newText, _ := node.Get("new")
	oldV, err := ParseVariant(prop.valueType(), oldText)
	if err != nil {
		return NoteChange{}, err
	}
	newV, err := ParseVariant(prop.valueType(), newText)
	if err != nil {
		return NoteChange{}, err
	}
	return NoteChange{Property: prop, Note: n, Old: oldV, New: newV}, nil
}

func notesFrom(parent *state.Node) ([]*Note, error) {
	if parent == nil {
		return nil, nil
	}
	var out []*Note
	for _, child := range parent.ChildrenNamed("Note") {
		n, err := noteFrom(child)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func deleteNote(list []*Note, n *Note) []*Note {
	return slices.DeleteFunc(list, func(o *Note) bool { return o == n })
}
