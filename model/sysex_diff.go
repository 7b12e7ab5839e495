package model

import (
	"encoding/hex"
	"slices"

	"go-midimodel/debug"
	"go-midimodel/midi"
	"go-midimodel/seqerr"
	"go-midimodel/state"
	"go-midimodel/temporal"
)

// SysExChange moves a sysex event. Time is the only mutable sysex property.
type SysExChange struct {
	Event    *Event
	Old, New temporal.Beats
}

// SysExDiffCommand records sysex additions, removals and time changes.
type SysExDiffCommand struct {
	command
	changes []SysExChange
	added   []*Event
	removed []*Event
}

func newSysExDiffCommand(m *Model, name string) *SysExDiffCommand {
	return &SysExDiffCommand{command: newCommand(m, name)}
}

func (c *SysExDiffCommand) Add(e *Event) {
	if e.ID() == midi.NoID {
		e.SetID(midi.NextEventID())
	}
	c.removed = slices.DeleteFunc(c.removed, func(o *Event) bool { return o == e })
	if !slices.Contains(c.added, e) {
		c.added = append(c.added, e)
	}
}

func (c *SysExDiffCommand) Remove(e *Event) {
	c.added = slices.DeleteFunc(c.added, func(o *Event) bool { return o == e })
	if !slices.Contains(c.removed, e) {
		c.removed = append(c.removed, e)
	}
}

func (c *SysExDiffCommand) ChangeTime(e *Event, t temporal.Beats) {
	if e.Time() == t {
		return
	}
	c.changes = append(c.changes, SysExChange{Event: e, Old: e.Time(), New: t})
}

func (c *SysExDiffCommand) Changes() []SysExChange { return c.changes }
func (c *SysExDiffCommand) Added() []*Event        { return c.added }
func (c *SysExDiffCommand) Removed() []*Event      { return c.removed }

func (c *SysExDiffCommand) Empty() bool {
	return len(c.changes) == 0 && len(c.added) == 0 && len(c.removed) == 0
}

func (c *SysExDiffCommand) Apply() error {
	if err := c.beginApply(); err != nil {
		return err
	}
	w := c.model.WriteLock()
	for _, e := range c.added {
		w.AddSysEx(e)
	}
	for _, ch := range c.changes {
		w.UpdateSysEx(ch.Event, func(e *Event) { e.SetTime(ch.New) })
	}
	for _, e := range c.removed {
		w.RemoveSysEx(e)
	}
	w.Release()

	c.state = Applied
	debug.Log("model", "applied sysex diff %q", c.name)
	c.model.contentsChanged()
	return nil
}

func (c *SysExDiffCommand) Undo() error {
	if err := c.beginUndo(); err != nil {
		return err
	}
	w := c.model.WriteLock()
	for _, e := range c.removed {
		w.AddSysEx(e)
	}
	for i := len(c.changes) - 1; i >= 0; i-- {
		ch := c.changes[i]
		w.UpdateSysEx(ch.Event, func(e *Event) { e.SetTime(ch.Old) })
	}
	for _, e := range c.added {
		w.RemoveSysEx(e)
	}
	w.Release()

	c.state = Undone
	debug.Log("model", "undid sysex diff %q", c.name)
	c.model.contentsChanged()
	return nil
}

func (c *SysExDiffCommand) GetState() *state.Node {
	root := c.stateNode("SysExDiffCommand")
	changes := root.AddChild("Changes")
	for _, ch := range c.changes {
		changes.AddChild("Change").
			Set("property", "Time").
			SetInt("id", ch.Event.ID()).
			Set("old", encodeBeats(ch.Old)).
			Set("new", encodeBeats(ch.New))
	}
	added := root.AddChild("AddedSysExes")
	for _, e := range c.added {
		added.Add(sysexNode(e))
	}
	removed := root.AddChild("RemovedSysExes")
	for _, e := range c.removed {
		removed.Add(sysexNode(e))
	}
	return root
}

// SysExDiffCommandFromState rebuilds a command serialized by GetState.
func (m *Model) SysExDiffCommandFromState(node *state.Node) (*SysExDiffCommand, error) {
	if node == nil || node.Name != "SysExDiffCommand" {
		return nil, seqerr.MalformedState("expected SysExDiffCommand node")
	}
	c := newSysExDiffCommand(m, "")
	if err := c.restore(node); err != nil {
		return nil, err
	}
	var err error
	if c.added, err = sysexesFrom(node.Child("AddedSysExes")); err != nil {
		return nil, err
	}
	if c.removed, err = sysexesFrom(node.Child("RemovedSysExes")); err != nil {
		return nil, err
	}
	changes := node.Child("Changes")
	if changes == nil {
		return c, nil
	}
	for _, cn := range changes.ChildrenNamed("Change") {
		id, err := cn.Int("id")
		if err != nil {
			return nil, err
		}
		e := findEvent(id, c.added, c.removed)
		if e == nil {
			var ok bool
			if e, ok = m.FindSysEx(id); !ok {
				return nil, seqerr.UnknownEvent("sysex", id)
			}
		}
		oldT, err := beatsAttr(cn, "old")
		if err != nil {
			return nil, err
		}
		newT, err := beatsAttr(cn, "new")
		if err != nil {
			return nil, err
		}
		c.changes = append(c.changes, SysExChange{Event: e, Old: oldT, New: newT})
	}
	return c, nil
}

func sysexNode(e *Event) *state.Node {
	return state.New("SysEx").
		SetInt("id", e.ID()).
		Set("time", encodeBeats(e.Time())).
		Set("data", hex.EncodeToString(e.Buffer()))
}

func sysexFrom(n *state.Node) (*Event, error) {
	id, err := n.Int("id")
	if err != nil {
		return nil, err
	}
	t, err := beatsAttr(n, "time")
	if err != nil {
		return nil, err
	}
	s, _ := n.Get("data")
	buf, err := hex.DecodeString(s)
	if err != nil || !midi.ValidMessage(buf) || buf[0] != midi.SysExStart {
		return nil, seqerr.MalformedState("SysEx %d: bad data %q", id, s)
	}
	e := midi.NewEvent(t, buf)
	e.SetID(id)
	return e, nil
}

func sysexesFrom(parent *state.Node) ([]*Event, error) {
	if parent == nil {
		return nil, nil
	}
	var out []*Event
	for _, child := range parent.ChildrenNamed("SysEx") {
		e, err := sysexFrom(child)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func findEvent(id int64, lists ...[]*Event) *Event {
	for _, list := range lists {
		for _, e := range list {
			if e.ID() == id {
				return e
			}
		}
	}
	return nil
}
