package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"go-midimodel/config"
	"go-midimodel/debug"
	"go-midimodel/history"
	"go-midimodel/session"
	"go-midimodel/source"
	"go-midimodel/theme"
	"go-midimodel/tui"
)

const undoDepth = 100

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Debug {
		if err := debug.Enable(); err != nil {
			fmt.Printf("Warning: debug log unavailable: %v\n", err)
		}
		defer debug.Disable()
	}

	// Load theme
	palette := theme.Default()
	if cfg.UI.Palette != "" {
		p, err := theme.LoadGPL(cfg.UI.Palette)
		if err != nil {
			fmt.Printf("Warning: %v, using default palette\n", err)
		} else {
			palette = p
		}
	}
	th := theme.New(palette)

	// Create the model with an undo history
	hist := history.New(undoDepth)
	doc, err := cfg.NewModel()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	doc.SetHistory(hist)

	// Open a file, or fall back to the last saved snapshot
	var src *source.SMFSource
	if len(os.Args) > 1 {
		stuck, err := cfg.StuckNotes()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		src = source.New(os.Args[1], cfg.Source.TicksPerQuarter)
		src.SetStuckNotes(stuck)
		if err := src.Load(doc); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	} else if cfg.UI.LastProject != "" {
		if _, err := session.LoadModel(cfg.UI.LastProject, "", doc); err != nil {
			fmt.Printf("Warning: %v\n", err)
		}
	}

	// Create and run TUI
	m := tui.NewModel(doc, hist, src, th)
	p := tea.NewProgram(m, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	// Keep unsynced edits as a snapshot
	if doc.Edited() {
		project := cfg.UI.LastProject
		if project == "" {
			project = "untitled"
		}
		filename, err := session.SaveModel(project, "autosave", doc)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Unsaved edits kept in %s/%s\n", project, filename)
	}
}
