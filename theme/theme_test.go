package theme

import (
	"errors"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-midimodel/seqerr"
)

const gpl = `GIMP Palette
Name: Two Tone
Columns: 2
# comment
  0   0   0	black
255 128  64	orange
300   0   0	out of range
`

func TestParseGPL(t *testing.T) {
	p, err := ParseGPL(strings.NewReader(gpl))
	require.NoError(t, err)
	assert.Equal(t, "Two Tone", p.Name)
	assert.Equal(t, []RGB{{0, 0, 0}, {255, 128, 64}}, p.Colors)

	_, err = ParseGPL(strings.NewReader("GIMP Palette\nName: empty\n"))
	assert.True(t, errors.Is(err, seqerr.ErrMalformedState))
}

func TestLookupInterpolates(t *testing.T) {
	p := &Palette{Colors: []RGB{{0, 0, 0}, {200, 100, 50}}}
	assert.Equal(t, RGB{0, 0, 0}, p.Lookup(-1))
	assert.Equal(t, RGB{100, 50, 25}, p.Lookup(0.5))
	assert.Equal(t, RGB{200, 100, 50}, p.Lookup(2))

	one := &Palette{Colors: []RGB{{1, 2, 3}}}
	assert.Equal(t, RGB{1, 2, 3}, one.Lookup(0.5))
}

func TestThemeColors(t *testing.T) {
	th := New(&Palette{Colors: []RGB{{0, 0, 0}, {255, 255, 255}}})
	assert.Equal(t, lipgloss.Color("#000000"), th.BG())
	assert.Equal(t, lipgloss.Color("#ffffff"), th.Success())
	assert.Equal(t, lipgloss.Color("#ffffff"), th.Velocity(127))
	assert.Equal(t, th.Muted(), th.Velocity(0))

	assert.Equal(t, "default", New(nil).Palette.Name)
}
