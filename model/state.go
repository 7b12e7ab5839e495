package model

import (
	"strconv"

	"go-midimodel/debug"
	"go-midimodel/midi"
	"go-midimodel/seqerr"
	"go-midimodel/sequence"
	"go-midimodel/state"
	"go-midimodel/temporal"
)

func encodeBeats(b temporal.Beats) string {
	text, _ := b.MarshalText()
	return string(text)
}

func beatsAttr(n *state.Node, key string) (temporal.Beats, error) {
	s, ok := n.Get(key)
	if !ok {
		return temporal.Beats{}, seqerr.MalformedState("%s: missing %q", n.Name, key)
	}
	b, err := temporal.ParseBeats(s)
	if err != nil {
		return temporal.Beats{}, seqerr.MalformedState("%s: %q=%q is not a time", n.Name, key, s)
	}
	return b, nil
}

func noteNode(n *Note) *state.Node {
	return state.New("Note").
		SetInt("id", n.ID()).
		SetInt("channel", int64(n.Channel())).
		SetInt("note", int64(n.Pitch())).
		Set("time", encodeBeats(n.Time())).
		Set("length", encodeBeats(n.Length())).
		SetInt("velocity", int64(n.Velocity())).
		SetInt("off-velocity", int64(n.OffVelocity()))
}

func noteFrom(node *state.Node) (*Note, error) {
	id, err := node.Int("id")
	if err != nil {
		return nil, err
	}
	ch, err := node.Int("channel")
	if err != nil {
		return nil, err
	}
	pitch, err := node.Int("note")
	if err != nil {
		return nil, err
	}
	vel, err := node.IntOr("velocity", int64(midi.DefaultVelocity))
	if err != nil {
		return nil, err
	}
	offVel, err := node.IntOr("off-velocity", int64(midi.DefaultVelocity))
	if err != nil {
		return nil, err
	}
	t, err := beatsAttr(node, "time")
	if err != nil {
		return nil, err
	}
	length, err := beatsAttr(node, "length")
	if err != nil {
		return nil, err
	}
	if pitch < 0 || pitch > 127 || vel < 0 || vel > 127 || length.Ticks() < 0 {
		return nil, seqerr.MalformedState("Note %d: pitch %d velocity %d length %s", id, pitch, vel, length)
	}
	if !midi.ValidChannel(int(ch)) {
		return nil, seqerr.MalformedState("Note %d: channel %d", id, ch)
	}
	n := midi.MustNote(uint8(ch), t, length, uint8(pitch), uint8(vel))
	n.SetOffVelocity(int(offVel))
	n.SetID(id)
	return n, nil
}

// GetState serializes the model's contents and editing policies.
func (m *Model) GetState() *state.Node {
	root := state.New("Model").
		SetBool("overlapping-pitches-accepted", m.OverlappingPitchesAccepted()).
		Set("overlap-resolution", m.OverlapPitchResolution().String()).
		Set("insert-merge-policy", m.InsertMergePolicy().String()).
		SetBool("percussive", m.Percussive())

	r := m.ReadLock()
	notes := root.AddChild("Notes")
	for _, n := range r.Notes() {
		notes.Add(noteNode(n))
	}
	sysexes := root.AddChild("SysExes")
	for _, e := range r.SysExes() {
		sysexes.Add(sysexNode(e))
	}
	patches := root.AddChild("PatchChanges")
	for _, p := range r.PatchChanges() {
		patches.Add(patchNode(p))
	}
	r.Release()

	controls := root.AddChild("Controls")
	cs := m.Controls()
	for _, p := range cs.Parameters() {
		l := cs.Control(p, false)
		ln := controls.AddChild("ControlList").
			Set("type", p.Type.String()).
			SetInt("channel", int64(p.Channel)).
			SetInt("id", int64(p.ID)).
			Set("interpolation", l.Interpolation().String())
		for _, pt := range l.Events() {
			ln.AddChild("Point").
				Set("time", encodeBeats(pt.Time)).
				Set("value", strconv.FormatFloat(pt.Value, 'g', -1, 64))
		}
	}
	return root
}

type controlState struct {
	param  midi.Parameter
	interp sequence.Interpolation
	points []sequence.ControlPoint[temporal.Beats]
}

// SetState replaces the model's contents with a tree produced by GetState.
// The tree is fully decoded before anything is changed, so a malformed tree
// leaves the model untouched. Fires ContentsChanged.
func (m *Model) SetState(root *state.Node) error {
	if root == nil || root.Name != "Model" {
		return seqerr.MalformedState("expected Model node")
	}
	accepted := m.OverlappingPitchesAccepted()
	if _, ok := root.Get("overlapping-pitches-accepted"); ok {
		v, err := root.Bool("overlapping-pitches-accepted")
		if err != nil {
			return err
		}
		accepted = v
	}
	resolution := m.OverlapPitchResolution()
	if s, ok := root.Get("overlap-resolution"); ok {
		if resolution, ok = sequence.ParseOverlapResolution(s); !ok {
			return seqerr.MalformedState("Model: overlap-resolution %q", s)
		}
	}
	policy := m.InsertMergePolicy()
	if s, ok := root.Get("insert-merge-policy"); ok {
		if policy, ok = ParseInsertMergePolicy(s); !ok {
			return seqerr.MalformedState("Model: insert-merge-policy %q", s)
		}
	}
	percussive := false
	if _, ok := root.Get("percussive"); ok {
		v, err := root.Bool("percussive")
		if err != nil {
			return err
		}
		percussive = v
	}

	notes, err := notesFrom(root.Child("Notes"))
	if err != nil {
		return err
	}
	sysexes, err := sysexesFrom(root.Child("SysExes"))
	if err != nil {
		return err
	}
	patches, err := patchesFrom(root.Child("PatchChanges"))
	if err != nil {
		return err
	}
	controls, err := controlsFrom(root.Child("Controls"))
	if err != nil {
		return err
	}

	w := m.WriteLock()
	w.Clear()
	for _, n := range notes {
		w.InsertNote(n)
	}
	for _, e := range sysexes {
		w.AddSysEx(e)
	}
	for _, p := range patches {
		w.AddPatchChange(p)
	}
	w.Release()

	cs := m.Controls()
	for _, c := range controls {
		l := cs.Control(c.param, true)
		l.SetInterpolation(c.interp)
		for _, pt := range c.points {
			l.Add(pt.Time, pt.Value)
		}
	}

	m.SetOverlappingPitchesAccepted(accepted)
	m.SetOverlapPitchResolution(resolution)
	m.SetInsertMergePolicy(policy)
	m.SetPercussive(percussive)
	m.SetEdited(false)
	cs.Dirty()

	debug.For("model").Debug("state restored",
		"notes", len(notes), "sysexes", len(sysexes), "patches", len(patches), "controls", len(controls))
	m.contentsChanged()
	return nil
}

func controlsFrom(parent *state.Node) ([]controlState, error) {
	if parent == nil {
		return nil, nil
	}
	var out []controlState
	for _, ln := range parent.ChildrenNamed("ControlList") {
		s, _ := ln.Get("type")
		typ, ok := midi.ParseParameterType(s)
		if !ok {
			return nil, seqerr.MalformedState("ControlList: unknown type %q", s)
		}
		ch, err := ln.Int("channel")
		if err != nil {
			return nil, err
		}
		id, err := ln.IntOr("id", 0)
		if err != nil {
			return nil, err
		}
		if !midi.ValidChannel(int(ch)) || id < 0 || id > 127 {
			return nil, seqerr.MalformedState("ControlList: channel %d id %d", ch, id)
		}
		c := controlState{param: midi.Parameter{Type: typ, Channel: uint8(ch), ID: uint8(id)}}
		c.interp = sequence.Discrete
		if s, _ := ln.Get("interpolation"); s == sequence.Linear.String() {
			c.interp = sequence.Linear
		}
		for _, pn := range ln.ChildrenNamed("Point") {
			t, err := beatsAttr(pn, "time")
			if err != nil {
				return nil, err
			}
			vs, _ := pn.Get("value")
			v, err := strconv.ParseFloat(vs, 64)
			if err != nil {
				return nil, seqerr.MalformedState("Point: value %q", vs)
			}
			c.points = append(c.points, sequence.ControlPoint[temporal.Beats]{Time: t, Value: v})
		}
		out = append(out, c)
	}
	return out, nil
}
