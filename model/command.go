package model

import (
	"github.com/google/uuid"

	"go-midimodel/history"
	"go-midimodel/midi"
	"go-midimodel/seqerr"
	"go-midimodel/sequence"
	"go-midimodel/state"
	"go-midimodel/temporal"
)

type (
	Note        = midi.Note[temporal.Beats]
	Event       = midi.Event[temporal.Beats]
	PatchChange = midi.PatchChange[temporal.Beats]
	Writer      = sequence.Writer[temporal.Beats]
	Reader      = sequence.Reader[temporal.Beats]
)

// CommandState is the lifecycle of a diff command. A command is applied
// from Built or Undone and undone only from Applied.
type CommandState uint8

const (
	Built CommandState = iota
	Applied
	Undone
)

func (s CommandState) String() string {
	switch s {
	case Applied:
		return "applied"
	case Undone:
		return "undone"
	}
	return "built"
}

func parseCommandState(s string) CommandState {
	switch s {
	case "applied":
		return Applied
	case "undone":
		return Undone
	}
	return Built
}

// Command is an undoable edit of a Model.
type Command interface {
	history.Command
	State() CommandState
	GetState() *state.Node
}

type command struct {
	id    uuid.UUID
	name  string
	state CommandState
	model *Model
}

func newCommand(m *Model, name string) command {
	return command{id: uuid.New(), name: name, model: m}
}

func (c *command) ID() uuid.UUID       { return c.id }
func (c *command) Name() string        { return c.name }
func (c *command) State() CommandState { return c.state }
func (c *command) Model() *Model       { return c.model }

func (c *command) beginApply() error {
	if c.state == Applied {
		return seqerr.InvalidCommandState("%q is already applied", c.name)
	}
	return nil
}

func (c *command) beginUndo() error {
	if c.state != Applied {
		return seqerr.InvalidCommandState("%q is %s, not applied", c.name, c.state)
	}
	return nil
}

func (c *command) stateNode(name string) *state.Node {
	return state.New(name).
		Set("name", c.name).
		Set("id", c.id.String()).
		Set("state", c.state.String())
}

func (c *command) restore(n *state.Node) error {
	if s, ok := n.Get("name"); ok {
		c.name = s
	}
	if s, ok := n.Get("id"); ok {
		id, err := uuid.Parse(s)
		if err != nil {
			return seqerr.MalformedState("%s: bad id %q", n.Name, s)
		}
		c.id = id
	}
	if s, ok := n.Get("state"); ok {
		c.state = parseCommandState(s)
	}
	return nil
}
