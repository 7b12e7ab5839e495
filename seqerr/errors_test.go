package seqerr

import (
	"errors"
	"testing"

	"github.com/Southclaws/fault/ftag"
	"github.com/stretchr/testify/assert"
)

func TestKindsAndSentinels(t *testing.T) {
	err := ContractViolation("channel %d out of range", 16)
	assert.True(t, errors.Is(err, ErrContractViolation))
	assert.Equal(t, KindContractViolation, Kind(err))

	err = TypeMismatch("want bool")
	assert.True(t, errors.Is(err, ErrTypeMismatch))
	assert.Equal(t, KindTypeMismatch, Kind(err))

	err = InvalidCommandState("already applied")
	assert.True(t, errors.Is(err, ErrInvalidCommandState))

	err = UnknownEvent("note", 42)
	assert.True(t, errors.Is(err, ErrUnknownEvent))
	assert.Equal(t, ftag.NotFound, Kind(err))

	assert.Nil(t, Wrap(nil, "nothing"))
}
