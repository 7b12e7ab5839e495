// Package theme maps palette positions to piano-roll colors and glyphs.
package theme

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	Palette *Palette
	Symbols Symbols
}

type Symbols struct {
	NoteHead rune // █ first cell of a note
	NoteBody rune // ▆ the rest of it
	Empty    rune // · nothing sounding
	BeatLine rune // ┊ empty cell on a beat
	Cursor   rune // ▸ row marker for the selected note
}

func New(palette *Palette) *Theme {
	if palette == nil {
		palette = Default()
	}
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			NoteHead: '█',
			NoteBody: '▆',
			Empty:    '·',
			BeatLine: '┊',
			Cursor:   '▸',
		},
	}
}

// Color roles mapped to palette positions (0-1)
const (
	RoleBG      = 0.0  // deep purple
	RoleMuted   = 0.2  // purple-magenta
	RoleFG      = 0.4  // pink-purple (readable)
	RoleAccent  = 0.5  // vivid magenta
	RoleCursor  = 0.6  // rose pink
	RoleWarning = 0.8  // orange
	RoleSuccess = 1.0  // bright yellow
)

func (t *Theme) BG() lipgloss.Color      { return t.Color(RoleBG) }
func (t *Theme) FG() lipgloss.Color      { return t.Color(RoleFG) }
func (t *Theme) Accent() lipgloss.Color  { return t.Color(RoleAccent) }
func (t *Theme) Muted() lipgloss.Color   { return t.Color(RoleMuted) }
func (t *Theme) Cursor() lipgloss.Color  { return t.Color(RoleCursor) }
func (t *Theme) Warning() lipgloss.Color { return t.Color(RoleWarning) }
func (t *Theme) Success() lipgloss.Color { return t.Color(RoleSuccess) }

// Color returns lipgloss color for any normalized value 0-1
func (t *Theme) Color(norm float64) lipgloss.Color {
	c := t.Palette.Lookup(norm)
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))
}

// Velocity colors a note by its velocity, keeping quiet notes visible
// against the background.
func (t *Theme) Velocity(v uint8) lipgloss.Color {
	return t.Color(RoleMuted + (1-RoleMuted)*float64(v)/127)
}
