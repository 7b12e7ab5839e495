package history

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-midimodel/seqerr"
)

type counter struct {
	id    uuid.UUID
	name  string
	value *int
	by    int
}

func inc(v *int, by int) *counter {
	*v += by
	return &counter{id: uuid.New(), name: "inc", value: v, by: by}
}

func (c *counter) ID() uuid.UUID { return c.id }
func (c *counter) Name() string  { return c.name }
func (c *counter) Apply() error  { *c.value += c.by; return nil }
func (c *counter) Undo() error   { *c.value -= c.by; return nil }

func TestUndoRedo(t *testing.T) {
	v := 0
	h := New(0)
	changes := 0
	h.OnChange(func() { changes++ })

	h.Push(inc(&v, 1))
	h.Push(inc(&v, 10))
	assert.Equal(t, 11, v)
	assert.Equal(t, "inc", h.UndoName())

	require.NoError(t, h.Undo())
	assert.Equal(t, 1, v)
	assert.True(t, h.CanRedo())
	require.NoError(t, h.Redo())
	assert.Equal(t, 11, v)
	assert.False(t, h.CanRedo())

	require.NoError(t, h.Undo())
	h.Push(inc(&v, 100))
	assert.False(t, h.CanRedo(), "a new push drops the redo stack")
	assert.Equal(t, 6, changes)
}

type flaky struct {
	counter
	fail error
}

func (f *flaky) Apply() error {
	if f.fail != nil {
		return f.fail
	}
	return f.counter.Apply()
}

func (f *flaky) Undo() error {
	if f.fail != nil {
		return f.fail
	}
	return f.counter.Undo()
}

func TestFailedStepStaysOnStack(t *testing.T) {
	v := 0
	h := New(0)
	cmd := &flaky{counter: *inc(&v, 5)}
	h.Push(cmd)

	cmd.fail = errors.New("locked")
	assert.Error(t, h.Undo())
	assert.Equal(t, 1, h.Depth())
	assert.Equal(t, 5, v)

	cmd.fail = nil
	require.NoError(t, h.Undo())
	assert.Zero(t, v)

	cmd.fail = errors.New("locked")
	assert.Error(t, h.Redo())
	assert.True(t, h.CanRedo())
	assert.Zero(t, h.Depth())

	cmd.fail = nil
	require.NoError(t, h.Redo())
	assert.Equal(t, 5, v)
}

func TestTransactionsAreOneStep(t *testing.T) {
	v := 0
	h := New(0)
	require.NoError(t, h.BeginTransaction("pair"))
	assert.Error(t, h.BeginTransaction("nested"))
	require.NoError(t, h.AddSubcommand(inc(&v, 1)))
	h.Push(inc(&v, 2))
	require.NoError(t, h.CommitTransaction())

	assert.Equal(t, 1, h.Depth())
	assert.Equal(t, "pair", h.UndoName())
	require.NoError(t, h.Undo())
	assert.Equal(t, 0, v)
	require.NoError(t, h.Redo())
	assert.Equal(t, 3, v)
}

func TestTransactionMisuse(t *testing.T) {
	v := 0
	h := New(0)
	err := h.AddSubcommand(inc(&v, 1))
	assert.True(t, errors.Is(err, seqerr.ErrContractViolation))
	assert.Error(t, h.CommitTransaction())

	require.NoError(t, h.BeginTransaction("empty"))
	require.NoError(t, h.CommitTransaction())
	assert.False(t, h.CanUndo())
}

func TestAbortTransactionRevertsSubcommands(t *testing.T) {
	v := 0
	h := New(0)
	require.NoError(t, h.BeginTransaction("drag"))
	require.NoError(t, h.AddSubcommand(inc(&v, 4)))
	require.NoError(t, h.AbortTransaction())
	assert.Equal(t, 0, v)
	assert.False(t, h.InTransaction())
	assert.False(t, h.CanUndo())
}

func TestDepthLimit(t *testing.T) {
	v := 0
	h := New(2)
	for i := 0; i < 5; i++ {
		h.Push(inc(&v, 1))
	}
	assert.Equal(t, 2, h.Depth())
	h.Clear()
	assert.False(t, h.CanUndo())
}
