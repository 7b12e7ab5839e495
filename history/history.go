// Package history keeps applied commands for undo and redo.
package history

import (
	"sync"

	"github.com/google/uuid"

	"go-midimodel/debug"
	"go-midimodel/seqerr"
)

// Command is a reversible edit. Apply is called again on redo.
type Command interface {
	ID() uuid.UUID
	Name() string
	Apply() error
	Undo() error
}

// Transaction groups subcommands into one undo step.
type Transaction struct {
	id   uuid.UUID
	name string
	cmds []Command
}

func NewTransaction(name string) *Transaction {
	return &Transaction{id: uuid.New(), name: name}
}

func (t *Transaction) ID() uuid.UUID       { return t.id }
func (t *Transaction) Name() string        { return t.name }
func (t *Transaction) Commands() []Command { return t.cmds }
func (t *Transaction) Empty() bool         { return len(t.cmds) == 0 }
func (t *Transaction) Add(cmd Command)     { t.cmds = append(t.cmds, cmd) }

func (t *Transaction) Apply() error {
	for _, c := range t.cmds {
		if err := c.Apply(); err != nil {
			return seqerr.Wrap(err, "redo "+t.name)
		}
	}
	return nil
}

func (t *Transaction) Undo() error {
	for i := len(t.cmds) - 1; i >= 0; i-- {
		if err := t.cmds[i].Undo(); err != nil {
			return seqerr.Wrap(err, "undo "+t.name)
		}
	}
	return nil
}

// History is an undo/redo stack of applied commands. Depth zero keeps
// everything.
type History struct {
	mu       sync.Mutex
	undo     []Command
	redo     []Command
	depth    int
	current  *Transaction
	onChange func()
}

func New(depth int) *History {
	return &History{depth: depth}
}

// OnChange registers a callback run after every stack change.
func (h *History) OnChange(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = fn
}

// Push records an applied command. Inside a transaction it becomes a
// subcommand instead.
func (h *History) Push(cmd Command) {
	h.mu.Lock()
	if h.current != nil {
		h.current.Add(cmd)
		h.mu.Unlock()
		return
	}
	h.pushLocked(cmd)
	h.mu.Unlock()
	h.changed()
}

func (h *History) pushLocked(cmd Command) {
	h.undo = append(h.undo, cmd)
	if h.depth > 0 && len(h.undo) > h.depth {
		h.undo = h.undo[len(h.undo)-h.depth:]
	}
	h.redo = nil
	debug.Log("history", "push %s (%s)", cmd.Name(), cmd.ID())
}

// BeginTransaction opens a transaction. Only one can be open.
func (h *History) BeginTransaction(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current != nil {
		return seqerr.ContractViolation("transaction %q already open", h.current.name)
	}
	h.current = NewTransaction(name)
	return nil
}

// InTransaction reports whether a transaction is open.
func (h *History) InTransaction() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current != nil
}

// AddSubcommand adds an applied command to the open transaction.
func (h *History) AddSubcommand(cmd Command) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return seqerr.ContractViolation("no open transaction for %q", cmd.Name())
	}
	h.current.Add(cmd)
	return nil
}

// CommitTransaction pushes the open transaction as one undo step. Empty
// transactions are dropped.
func (h *History) CommitTransaction() error {
	h.mu.Lock()
	t := h.current
	if t == nil {
		h.mu.Unlock()
		return seqerr.ContractViolation("commit without open transaction")
	}
	h.current = nil
	if t.Empty() {
		h.mu.Unlock()
		return nil
	}
	h.pushLocked(t)
	h.mu.Unlock()
	h.changed()
	return nil
}

// AbortTransaction undoes the open transaction's subcommands and drops it.
func (h *History) AbortTransaction() error {
	h.mu.Lock()
	t := h.current
	h.current = nil
	h.mu.Unlock()
	if t == nil {
		return nil
	}
	return t.Undo()
}

func (h *History) Undo() error {
	h.mu.Lock()
	if len(h.undo) == 0 {
		h.mu.Unlock()
		return nil
	}
	cmd := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	h.mu.Unlock()

	if err := cmd.Undo(); err != nil {
		// leave it where it was so the step is not lost
		h.mu.Lock()
		h.undo = append(h.undo, cmd)
		h.mu.Unlock()
		return err
	}
	h.mu.Lock()
	h.redo = append(h.redo, cmd)
	h.mu.Unlock()
	debug.Log("history", "undo %s", cmd.Name())
	h.changed()
	return nil
}

func (h *History) Redo() error {
	h.mu.Lock()
	if len(h.redo) == 0 {
		h.mu.Unlock()
		return nil
	}
	cmd := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	h.mu.Unlock()

	if err := cmd.Apply(); err != nil {
		h.mu.Lock()
		h.redo = append(h.redo, cmd)
		h.mu.Unlock()
		return err
	}
	h.mu.Lock()
	h.undo = append(h.undo, cmd)
	h.mu.Unlock()
	debug.Log("history", "redo %s", cmd.Name())
	h.changed()
	return nil
}

func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo) > 0
}

func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.redo) > 0
}

// UndoName is the name of the command Undo would revert, or "".
func (h *History) UndoName() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.undo) == 0 {
		return ""
	}
	return h.undo[len(h.undo)-1].Name()
}

func (h *History) RedoName() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.redo) == 0 {
		return ""
	}
	return h.redo[len(h.redo)-1].Name()
}

// Depth returns the number of undo steps held.
func (h *History) Depth() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo)
}

func (h *History) Clear() {
	h.mu.Lock()
	h.undo, h.redo, h.current = nil, nil, nil
	h.mu.Unlock()
	h.changed()
}

func (h *History) changed() {
	h.mu.Lock()
	fn := h.onChange
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}
