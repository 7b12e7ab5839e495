// Package tui is a terminal piano-roll over a model.
package tui

import (
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-midimodel/debug"
	"go-midimodel/history"
	"go-midimodel/model"
	"go-midimodel/operators"
	"go-midimodel/source"
	"go-midimodel/temporal"
	"go-midimodel/theme"
)

const (
	cols        = 64
	rows        = 13
	beatsPerCol = 0.25
)

var noteNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// QuantizeGrid is the grid used by the Q key.
var QuantizeGrid = temporal.FromDouble(0.25)

type Model struct {
	Doc     *model.Model
	History *history.History
	Source  *source.SMFSource // may be nil
	Theme   *theme.Theme

	selected *model.Note
	changes  chan struct{}
	status   string
	quitting bool
}

// ChangedMsg reports an edit made outside the UI, e.g. by a recorder.
type ChangedMsg struct{}

func NewModel(doc *model.Model, h *history.History, src *source.SMFSource, th *theme.Theme) Model {
	changes := make(chan struct{}, 1)
	doc.OnContentsChanged(func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	if doc.History() == nil {
		doc.SetHistory(h)
	}
	m := Model{Doc: doc, History: h, Source: src, Theme: th, changes: changes}
	if notes := m.notes(); len(notes) > 0 {
		m.selected = notes[0]
	}
	return m
}

func ListenForChanges(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return ChangedMsg{}
	}
}

func (m Model) Init() tea.Cmd {
	return ListenForChanges(m.changes)
}

// Selected is the note under the cursor, nil when the model is empty.
func (m Model) Selected() *model.Note { return m.selected }

func (m Model) notes() []*model.Note {
	r := m.Doc.ReadLock()
	defer r.Release()
	return r.Notes()
}

func (m Model) indexOf(notes []*model.Note) int {
	for i, n := range notes {
		if n == m.selected {
			return i
		}
	}
	return -1
}

// fixSelection keeps the cursor on a note that is still in the model.
func (m *Model) fixSelection(notes []*model.Note) {
	if len(notes) == 0 {
		m.selected = nil
		return
	}
	if m.indexOf(notes) >= 0 {
		return
	}
	m.selected = notes[0]
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		m.status = ""
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "h", "left":
			m.selectByTime(-1)
		case "l", "right":
			m.selectByTime(1)
		case "k", "up":
			m.selectByPitch(1)
		case "j", "down":
			m.selectByPitch(-1)

		case "+", "=":
			m.applySelected(operators.Transpose{Semitones: 1})
		case "-", "_":
			m.applySelected(operators.Transpose{Semitones: -1})

		case "Q":
			m.apply(operators.Quantize{Grid: QuantizeGrid, Strength: 1, Start: true}, [][]*model.Note{m.notes()})
		case "L":
			m.apply(operators.Legatize{}, [][]*model.Note{m.notes()})

		case "x":
			m.deleteSelected()

		case "u":
			name := m.History.UndoName()
			if name == "" {
				m.status = "nothing to undo"
			} else if err := m.History.Undo(); err != nil {
				m.status = err.Error()
			} else {
				m.status = "undo " + name
			}
		case "r":
			name := m.History.RedoName()
			if name == "" {
				m.status = "nothing to redo"
			} else if err := m.History.Redo(); err != nil {
				m.status = err.Error()
			} else {
				m.status = "redo " + name
			}

		case "s":
			m.sync()
		}
		m.fixSelection(m.notes())

	case ChangedMsg:
		m.fixSelection(m.notes())
		return m, ListenForChanges(m.changes)
	}

	return m, nil
}

func (m *Model) selectByTime(direction int) {
	notes := m.notes()
	i := m.indexOf(notes)
	if i < 0 {
		return
	}
	if j := i + direction; j >= 0 && j < len(notes) {
		m.selected = notes[j]
	}
}

// selectByPitch moves to the closest pitch above or below, preferring the
// note nearest in time.
func (m *Model) selectByPitch(direction int) {
	if m.selected == nil {
		return
	}
	cur := m.selected
	var best *model.Note
	bestPitch, bestTime := math.MaxInt, math.MaxFloat64
	for _, n := range m.notes() {
		dp := (int(n.Pitch()) - int(cur.Pitch())) * direction
		if dp <= 0 {
			continue
		}
		dt := math.Abs(n.Time().ToDouble() - cur.Time().ToDouble())
		if dp < bestPitch || (dp == bestPitch && dt < bestTime) {
			best, bestPitch, bestTime = n, dp, dt
		}
	}
	if best != nil {
		m.selected = best
	}
}

func (m *Model) apply(op operators.Operator, seqs [][]*model.Note) {
	c, err := op.Apply(m.Doc, temporal.Beats{}, seqs)
	if err != nil {
		m.status = err.Error()
		return
	}
	if c.Empty() {
		m.status = op.Name() + ": nothing to change"
		return
	}
	if err := m.Doc.ApplyCommand(c); err != nil {
		m.status = err.Error()
		return
	}
	debug.Log("tui", "applied %s", op.Name())
	m.status = op.Name()
}

func (m *Model) applySelected(op operators.Operator) {
	if m.selected == nil {
		return
	}
	m.apply(op, [][]*model.Note{{m.selected}})
}

func (m *Model) deleteSelected() {
	if m.selected == nil {
		return
	}
	notes := m.notes()
	i := m.indexOf(notes)

	c := m.Doc.NewNoteDiffCommand("delete note")
	c.Remove(m.selected)
	if err := m.Doc.ApplyCommand(c); err != nil {
		m.status = err.Error()
		return
	}
	m.status = "deleted " + describe(m.selected)

	// Select the neighbour that took its place
	switch {
	case i+1 < len(notes):
		m.selected = notes[i+1]
	case i > 0:
		m.selected = notes[i-1]
	default:
		m.selected = nil
	}
}

func (m *Model) sync() {
	if m.Source == nil {
		m.status = "no file to sync to"
		return
	}
	lock := m.Source.Lock()
	defer lock.Release()
	if err := m.Doc.SyncToSource(lock); err != nil {
		m.status = err.Error()
		return
	}
	m.status = "saved " + m.Source.Name()
}

func noteName(pitch uint8) string {
	return fmt.Sprintf("%s%d", noteNames[pitch%12], int(pitch)/12-1)
}

func describe(n *model.Note) string {
	return fmt.Sprintf("%s ch%d %s+%s v%d", noteName(n.Pitch()), n.Channel()+1, n.Time(), n.Length(), n.Velocity())
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	// Styles
	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	cursorStyle := lipgloss.NewStyle().Foreground(m.Theme.Cursor())
	statusStyle := lipgloss.NewStyle().Foreground(m.Theme.Warning())

	notes := m.notes()

	name := "untitled"
	if m.Source != nil {
		name = m.Source.Name()
	}
	if m.Doc.Edited() {
		name += "*"
	}
	header := headerStyle.Render(fmt.Sprintf("go-midimodel  %s  notes:%d  undo:%d", name, len(notes), m.History.Depth()))

	selInfo := "no notes"
	centerPitch := 60
	startBeat := 0.0
	if m.selected != nil {
		selInfo = describe(m.selected)
		centerPitch = int(m.selected.Pitch())
		// page so the selected note start is always visible
		span := cols * beatsPerCol
		startBeat = math.Floor(m.selected.Time().ToDouble()/span) * span
	}

	byPitch := map[uint8][]*model.Note{}
	for _, n := range notes {
		byPitch[n.Pitch()] = append(byPitch[n.Pitch()], n)
	}

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n")
	out.WriteString(dimStyle.Render(fmt.Sprintf("from beat %g  %s", startBeat, selInfo)))
	out.WriteString("\n\n")

	top := centerPitch + rows/2
	for row := 0; row < rows; row++ {
		p := top - row
		if p < 0 || p > 127 {
			continue
		}
		pitch := uint8(p)
		marker := " "
		if m.selected != nil && m.selected.Pitch() == pitch {
			marker = cursorStyle.Render(string(m.Theme.Symbols.Cursor))
		}
		out.WriteString(fmt.Sprintf("%s%-4s ", marker, noteName(pitch)))

		for col := 0; col < cols; col++ {
			colBeat := startBeat + float64(col)*beatsPerCol
			colEnd := colBeat + beatsPerCol
			out.WriteString(m.cell(byPitch[pitch], colBeat, colEnd))
		}
		out.WriteString("\n")
	}

	out.WriteString("\n")
	if m.status != "" {
		out.WriteString(statusStyle.Render(m.status))
		out.WriteString("\n")
	}
	out.WriteString(dimStyle.Render("hjkl:select  +/-:transpose  Q:quantize  L:legato  x:delete  u/r:undo/redo  s:save  q:quit"))

	return out.String()
}

// cell draws one column of one pitch row.
func (m Model) cell(notes []*model.Note, from, to float64) string {
	sym := m.Theme.Symbols
	for _, n := range notes {
		start, end := n.Time().ToDouble(), n.EndTime().ToDouble()
		if start >= to || (end <= from && !(start == end && start >= from)) {
			continue
		}
		ch := sym.NoteBody
		if start >= from {
			ch = sym.NoteHead
		}
		color := m.Theme.Velocity(n.Velocity())
		if n == m.selected {
			color = m.Theme.Cursor()
		}
		return lipgloss.NewStyle().Foreground(color).Render(string(ch))
	}
	if math.Mod(from, 1) == 0 {
		return lipgloss.NewStyle().Foreground(m.Theme.Muted()).Render(string(sym.BeatLine))
	}
	return lipgloss.NewStyle().Foreground(m.Theme.Muted()).Render(string(sym.Empty))
}
