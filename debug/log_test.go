package debug

import (
	"bytes"
	"context"
	"testing"

	charmlog "github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

func TestLogWritesWhenEnabled(t *testing.T) {
	var buf bytes.Buffer
	EnableWriter(&buf)
	defer Disable()

	Log("sequence", "stuck note %d", 60)
	assert.Contains(t, buf.String(), "stuck note 60")
	assert.Contains(t, buf.String(), "category=sequence")

	For("model").Debug("applied", "cmd", "transpose")
	assert.Contains(t, buf.String(), "cmd=transpose")
}

func TestLogDiscardsWhenDisabled(t *testing.T) {
	var buf bytes.Buffer
	EnableWriter(&buf)
	Disable()

	Log("sequence", "ignored")
	For("sequence").Debug("ignored too")
	assert.Empty(t, buf.String())
}

func TestLogEvery(t *testing.T) {
	var buf bytes.Buffer
	EnableWriter(&buf)
	defer Disable()

	for i := 0; i < 5; i++ {
		LogEvery(5, "capture", "tick")
	}
	assert.Contains(t, buf.String(), "count=5")
}

func TestContextCarriesLogger(t *testing.T) {
	var buf bytes.Buffer
	EnableWriter(&buf)
	defer Disable()

	ctx := Context(context.Background())
	charmlog.FromContext(ctx).Debug("from context", "category", "capture")
	assert.Contains(t, buf.String(), "from context")
}
