package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"

	"go-midimodel/capture"
	"go-midimodel/config"
	"go-midimodel/debug"
	"go-midimodel/model"
	"go-midimodel/seqerr"
	"go-midimodel/source"
	"go-midimodel/temporal"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stdout)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Debug || os.Getenv("SEQTOOL_DEBUG") != "" {
		debug.EnableWriter(os.Stderr)
	}

	if err := run(cfg, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "list":
		return listPorts(out)
	case "dump":
		return dump(cfg, args, out)
	case "record":
		return record(cfg, args, out)
	case "normalize":
		return normalize(cfg, args, out)
	default:
		usage(out)
	}
	return nil
}

func usage(out io.Writer) {
	fmt.Fprintln(out, "seqtool - MIDI model tools")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  list                              - List MIDI ports")
	fmt.Fprintln(out, "  dump <file.mid> [from] [limit]    - Print merged events from beat <from>")
	fmt.Fprintln(out, "  record <port> <out.mid> [seconds] - Record an input (ctrl+c stops)")
	fmt.Fprintln(out, "  normalize <file.mid> [trim]       - Remove (or trim) overlapping notes")
}

func listPorts(out io.Writer) error {
	fmt.Fprintf(out, "=== MIDI Input Ports ===\n(waiting up to %s...)\n", capture.PortTimeout)
	ins, err := capture.InPorts(capture.PortTimeout)
	if err != nil {
		fmt.Fprintln(out, "\nTIMEOUT! CoreMIDI is hung.")
		fmt.Fprintln(out, "Fix: sudo killall coreaudiod midiserver")
		return err
	}
	for i, p := range ins {
		fmt.Fprintf(out, "  %d: %s\n", i, p.String())
	}

	fmt.Fprintln(out, "\n=== MIDI Output Ports ===")
	for i, p := range gomidi.GetOutPorts() {
		fmt.Fprintf(out, "  %d: %s\n", i, p.String())
	}
	return nil
}

func open(cfg *config.Config, path string) (*model.Model, *source.SMFSource, error) {
	m, err := cfg.NewModel()
	if err != nil {
		return nil, nil, err
	}
	stuck, err := cfg.StuckNotes()
	if err != nil {
		return nil, nil, err
	}
	s := source.New(path, 0)
	s.SetStuckNotes(stuck)
	if err := s.Load(m); err != nil {
		return nil, nil, err
	}
	return m, s, nil
}

func dump(cfg *config.Config, args []string, out io.Writer) error {
	if len(args) < 1 {
		usage(out)
		return nil
	}
	from := temporal.Beats{}
	if len(args) > 1 {
		b, err := temporal.ParseBeats(args[1])
		if err != nil {
			return err
		}
		from = b
	}
	limit := 0
	if len(args) > 2 {
		n, err := strconv.Atoi(args[2])
		if err != nil {
			return seqerr.Wrap(err, "bad limit "+args[2])
		}
		limit = n
	}

	m, s, err := open(cfg, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %d ticks per quarter\n", s.Name(), s.TicksPerQuarter())
	return m.Dump(out, from, limit)
}

func record(cfg *config.Config, args []string, out io.Writer) error {
	if len(args) < 2 {
		usage(out)
		return nil
	}

	ins, err := capture.InPorts(capture.PortTimeout)
	if err != nil {
		return err
	}
	in, err := capture.FindInPort(ins, args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(debug.Context(context.Background()), os.Interrupt)
	defer stop()
	if len(args) > 2 {
		secs, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return seqerr.Wrap(err, "bad duration "+args[2])
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(secs*float64(time.Second)))
		defer cancel()
	}

	m, err := cfg.NewModel()
	if err != nil {
		return err
	}
	stuck, err := cfg.StuckNotes()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Recording from %s at %g bpm...\n", in.String(), cfg.Capture.BPM)
	rec := capture.NewRecorder(m.Sequence, cfg.Capture.BPM, temporal.Beats{})
	rec.SetStuckNotes(stuck)
	n, err := rec.Run(ctx, in)
	if err != nil {
		return err
	}

	s := source.New(args[1], cfg.Source.TicksPerQuarter)
	m.SetSource(s)
	lock := s.Lock()
	defer lock.Release()
	if err := m.SyncToSource(lock); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d messages written to %s\n", n, args[1])
	return nil
}

func normalize(cfg *config.Config, args []string, out io.Writer) error {
	if len(args) < 1 {
		usage(out)
		return nil
	}
	trim := len(args) > 1 && args[1] == "trim"

	m, s, err := open(cfg, args[0])
	if err != nil {
		return err
	}
	c := m.NormalizeOverlaps(trim)
	if c.Empty() {
		fmt.Fprintln(out, "no overlapping notes")
		return nil
	}
	if err := m.ApplyCommand(c); err != nil {
		return err
	}

	lock := s.Lock()
	defer lock.Release()
	if err := m.SyncToSource(lock); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: removed %d, trimmed %d\n", s.Name(), len(c.RemovedNotes()), len(c.Changes()))
	return nil
}
