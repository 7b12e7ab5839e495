package model

import (
	"slices"
	"strconv"

	"go-midimodel/debug"
	"go-midimodel/midi"
	"go-midimodel/seqerr"
	"go-midimodel/state"
	"go-midimodel/temporal"
)

// PatchProperty names a mutable patch change field.
type PatchProperty uint8

const (
	PatchTime PatchProperty = iota
	PatchChannel
	PatchProgram
	PatchBank
)

var patchPropertyNames = [...]string{"Time", "Channel", "Program", "Bank"}

func (p PatchProperty) String() string {
	if int(p) < len(patchPropertyNames) {
		return patchPropertyNames[p]
	}
	return "Unknown"
}

func parsePatchProperty(s string) (PatchProperty, bool) {
	for i, name := range patchPropertyNames {
		if name == s {
			return PatchProperty(i), true
		}
	}
	return 0, false
}

// PatchChangeChange is one recorded patch change edit. OldTime and NewTime
// are used for PatchTime, Old and New for the integer properties.
type PatchChangeChange struct {
	Property PatchProperty
	Patch    *PatchChange
	OldTime  temporal.Beats
	NewTime  temporal.Beats
	Old, New int
}

func (ch PatchChangeChange) set(p *PatchChange, undo bool) {
	t, v := ch.NewTime, ch.New
	if undo {
		t, v = ch.OldTime, ch.Old
	}
	switch ch.Property {
	case PatchTime:
		p.SetTime(t)
	case PatchChannel:
		p.SetChannel(uint8(v))
	case PatchProgram:
		p.SetProgram(v)
	case PatchBank:
		p.SetBank(v)
	}
}

// PatchChangeDiffCommand records patch change additions, removals and typed
// property changes.
type PatchChangeDiffCommand struct {
	command
	changes []PatchChangeChange
	added   []*PatchChange
	removed []*PatchChange
}

func newPatchChangeDiffCommand(m *Model, name string) *PatchChangeDiffCommand {
	return &PatchChangeDiffCommand{command: newCommand(m, name)}
}

func (c *PatchChangeDiffCommand) Add(p *PatchChange) {
	if p.ID() == midi.NoID {
		p.SetID(midi.NextEventID())
	}
	c.removed = slices.DeleteFunc(c.removed, func(o *PatchChange) bool { return o == p })
	if !slices.Contains(c.added, p) {
		c.added = append(c.added, p)
	}
}

func (c *PatchChangeDiffCommand) Remove(p *PatchChange) {
	c.added = slices.DeleteFunc(c.added, func(o *PatchChange) bool { return o == p })
	if !slices.Contains(c.removed, p) {
		c.removed = append(c.removed, p)
	}
}

func (c *PatchChangeDiffCommand) ChangeTime(p *PatchChange, t temporal.Beats) {
	if p.Time() == t {
		return
	}
	c.changes = append(c.changes, PatchChangeChange{Property: PatchTime, Patch: p, OldTime: p.Time(), NewTime: t})
}

func (c *PatchChangeDiffCommand) ChangeChannel(p *PatchChange, ch uint8) error {
	if !midi.ValidChannel(int(ch)) {
		return seqerr.ContractViolation("patch change channel %d out of range", ch)
	}
	c.changeInt(p, PatchChannel, int(p.Channel()), int(ch))
	return nil
}

func (c *PatchChangeDiffCommand) ChangeProgram(p *PatchChange, program uint8) {
	c.changeInt(p, PatchProgram, int(p.Program()), int(min(program, 127)))
}

// ChangeBank takes midi.NoBank or 0..16383; anything else clears the bank.
func (c *PatchChangeDiffCommand) ChangeBank(p *PatchChange, bank int) {
	if bank < midi.NoBank || bank > 0x3FFF {
		bank = midi.NoBank
	}
	c.changeInt(p, PatchBank, p.Bank(), bank)
}

func (c *PatchChangeDiffCommand) changeInt(p *PatchChange, prop PatchProperty, old, v int) {
	if old == v {
		return
	}
	c.changes = append(c.changes, PatchChangeChange{Property: prop, Patch: p, Old: old, New: v})
}

func (c *PatchChangeDiffCommand) Changes() []PatchChangeChange { return c.changes }
func (c *PatchChangeDiffCommand) Added() []*PatchChange        { return c.added }
func (c *PatchChangeDiffCommand) Removed() []*PatchChange      { return c.removed }

func (c *PatchChangeDiffCommand) Empty() bool {
	return len(c.changes) == 0 && len(c.added) == 0 && len(c.removed) == 0
}

func (c *PatchChangeDiffCommand) Apply() error {
	if err := c.beginApply(); err != nil {
		return err
	}
	w := c.model.WriteLock()
	for _, p := range c.added {
		w.AddPatchChange(p)
	}
	for _, ch := range c.changes {
		w.UpdatePatchChange(ch.Patch, func(p *PatchChange) { ch.set(p, false) })
	}
	for _, p := range c.removed {
		w.RemovePatchChange(p)
	}
	w.Release()

	c.state = Applied
	debug.Log("model", "applied patch change diff %q", c.name)
	c.model.contentsChanged()
	return nil
}

func (c *PatchChangeDiffCommand) Undo() error {
	if err := c.beginUndo(); err != nil {
		return err
	}
	w := c.model.WriteLock()
	for _, p := range c.removed {
		w.AddPatchChange(p)
	}
	for i := len(c.changes) - 1; i >= 0; i-- {
		ch := c.changes[i]
		w.UpdatePatchChange(ch.Patch, func(p *PatchChange) { ch.set(p, true) })
	}
	for _, p := range c.added {
		w.RemovePatchChange(p)
	}
	w.Release()

	c.state = Undone
	debug.Log("model", "undid patch change diff %q", c.name)
	c.model.contentsChanged()
	return nil
}

func (c *PatchChangeDiffCommand) GetState() *state.Node {
	root := c.stateNode("PatchChangeDiffCommand")
	changes := root.AddChild("Changes")
	for _, ch := range c.changes {
		cn := changes.AddChild("Change").
			Set("property", ch.Property.String()).
			SetInt("id", ch.Patch.ID())
		if ch.Property == PatchTime {
			cn.Set("old", encodeBeats(ch.OldTime)).Set("new", encodeBeats(ch.NewTime))
		} else {
			cn.SetInt("old", int64(ch.Old)).SetInt("new", int64(ch.New))
		}
	}
	added := root.AddChild("AddedPatchChanges")
	for _, p := range c.added {
		added.Add(patchNode(p))
	}
	removed := root.AddChild("RemovedPatchChanges")
	for _, p := range c.removed {
		removed.Add(patchNode(p))
	}
	return root
}

// PatchChangeDiffCommandFromState rebuilds a command serialized by GetState.
func (m *Model) PatchChangeDiffCommandFromState(node *state.Node) (*PatchChangeDiffCommand, error) {
	if node == nil || node.Name != "PatchChangeDiffCommand" {
		return nil, seqerr.MalformedState("expected PatchChangeDiffCommand node")
	}
	c := newPatchChangeDiffCommand(m, "")
	if err := c.restore(node); err != nil {
		return nil, err
	}
	var err error
	if c.added, err = patchesFrom(node.Child("AddedPatchChanges")); err != nil {
		return nil, err
	}
	if c.removed, err = patchesFrom(node.Child("RemovedPatchChanges")); err != nil {
		return nil, err
	}
	changes := node.Child("Changes")
	if changes == nil {
		return c, nil
	}
	for _, cn := range changes.ChildrenNamed("Change") {
		s, _ := cn.Get("property")
		prop, ok := parsePatchProperty(s)
		if !ok {
			return nil, seqerr.MalformedState("Change: unknown patch property %q", s)
		}
		id, err := cn.Int("id")
		if err != nil {
			return nil, err
		}
		p := findPatch(id, c.added, c.removed)
		if p == nil {
			if p, ok = m.FindPatchChange(id); !ok {
				return nil, seqerr.UnknownEvent("patch change", id)
			}
		}
		ch := PatchChangeChange{Property: prop, Patch: p}
		if prop == PatchTime {
			if ch.OldTime, err = beatsAttr(cn, "old"); err != nil {
				return nil, err
			}
			if ch.NewTime, err = beatsAttr(cn, "new"); err != nil {
				return nil, err
			}
		} else {
			oldV, err := cn.Int("old")
			if err != nil {
				return nil, err
			}
			newV, err := cn.Int("new")
			if err != nil {
				return nil, err
			}
			ch.Old, ch.New = int(oldV), int(newV)
		}
		c.changes = append(c.changes, ch)
	}
	return c, nil
}

func patchNode(p *PatchChange) *state.Node {
	return state.New("PatchChange").
		SetInt("id", p.ID()).
		Set("time", encodeBeats(p.Time())).
		SetInt("channel", int64(p.Channel())).
		SetInt("program", int64(p.Program())).
		Set("bank", strconv.Itoa(p.Bank()))
}

func patchFrom(n *state.Node) (*PatchChange, error) {
	id, err := n.Int("id")
	if err != nil {
		return nil, err
	}
	t, err := beatsAttr(n, "time")
	if err != nil {
		return nil, err
	}
	ch, err := n.Int("channel")
	if err != nil {
		return nil, err
	}
	prog, err := n.Int("program")
	if err != nil {
		return nil, err
	}
	bank, err := n.IntOr("bank", midi.NoBank)
	if err != nil {
		return nil, err
	}
	if !midi.ValidChannel(int(ch)) || prog < 0 || prog > 127 {
		return nil, seqerr.MalformedState("PatchChange %d: channel %d program %d", id, ch, prog)
	}
	p, err := midi.NewPatchChange(t, uint8(ch), uint8(prog), int(bank))
	if err != nil {
		return nil, err
	}
	p.SetID(id)
	return p, nil
}

func patchesFrom(parent *state.Node) ([]*PatchChange, error) {
	if parent == nil {
		return nil, nil
	}
	var out []*PatchChange
	for _, child := range parent.ChildrenNamed("PatchChange") {
		p, err := patchFrom(child)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func findPatch(id int64, lists ...[]*PatchChange) *PatchChange {
	for _, list := range lists {
		for _, p := range list {
			if p.ID() == id {
				return p
			}
		}
	}
	return nil
}
