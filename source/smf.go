// Package source backs a model with a Standard MIDI File.
package source

import (
	"cmp"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"go-midimodel/debug"
	"go-midimodel/midi"
	"go-midimodel/model"
	"go-midimodel/seqerr"
	"go-midimodel/sequence"
	"go-midimodel/temporal"
)

// DefaultTicksPerQuarter is the resolution used for files this package
// creates.
const DefaultTicksPerQuarter = 960

// SMFSource reads and writes one SMF file. Writes require a Lock.
type SMFSource struct {
	path  string
	ppqn  uint16
	stuck sequence.StuckNoteOption
	mu    sync.Mutex
}

// Lock is proof that the caller holds an SMFSource's lock.
type Lock struct {
	src      *SMFSource
	released bool
}

// Source returns the source this lock belongs to.
func (l *Lock) Source() model.Source {
	if l == nil {
		return nil
	}
	return l.src
}

// Release gives the lock back. Calling it twice is a no-op.
func (l *Lock) Release() {
	if l.released {
		return
	}
	l.released = true
	l.src.mu.Unlock()
}

// New returns a source for path. ticksPerQuarter of zero selects
// DefaultTicksPerQuarter. The file is not read.
func New(path string, ticksPerQuarter uint16) *SMFSource {
	if ticksPerQuarter == 0 {
		ticksPerQuarter = DefaultTicksPerQuarter
	}
	return &SMFSource{path: path, ppqn: ticksPerQuarter, stuck: sequence.ResolveStuckNotes}
}

// SetStuckNotes picks what a load does with notes that never get a
// note-off. The default closes them at the last event.
func (s *SMFSource) SetStuckNotes(o sequence.StuckNoteOption) {
	s.mu.Lock()
	s.stuck = o
	s.mu.Unlock()
}

// Open reads path into m and makes the file m's source.
func Open(path string, m *model.Model) (*SMFSource, error) {
	s := New(path, 0)
	if err := s.Load(m); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SMFSource) Name() string { return filepath.Base(s.path) }
func (s *SMFSource) Path() string { return s.path }

// TicksPerQuarter is the file resolution, updated by Load.
func (s *SMFSource) TicksPerQuarter() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ppqn
}

// Lock blocks until the source is free.
func (s *SMFSource) Lock() *Lock {
	s.mu.Lock()
	return &Lock{src: s}
}

func (s *SMFSource) check(lock model.SourceLock) error {
	l, ok := lock.(*Lock)
	if !ok || l == nil || l.src != s {
		return seqerr.ContractViolation("lock is not held on %s", s.Name())
	}
	if l.released {
		return seqerr.ContractViolation("lock on %s used after release", s.Name())
	}
	return nil
}

// Load replaces m's contents with the file and sets the source on m.
func (s *SMFSource) Load(m *model.Model) error {
	f, err := os.Open(s.path)
	if err != nil {
		return seqerr.Wrap(err, "open "+s.path)
	}
	defer f.Close()
	if err := s.LoadReader(f, m); err != nil {
		return err
	}
	m.SetSource(s)
	return nil
}

type timedMessage struct {
	tick int64
	msg  smf.Message
}

// LoadReader replaces m's contents with an SMF read from r. Tracks are
// merged by absolute tick with note-offs ahead of other events at the same
// tick. Notes still sounding at the end are handled per the stuck note
// option.
func (s *SMFSource) LoadReader(r io.Reader, m *model.Model) error {
	file, err := smf.ReadFrom(r)
	if err != nil {
		return seqerr.Wrap(err, "read smf")
	}
	mt, ok := file.TimeFormat.(smf.MetricTicks)
	if !ok || mt.Resolution() == 0 {
		return seqerr.ContractViolation("%s: only metric time formats are supported", s.Name())
	}
	ppqn := int64(mt.Resolution())

	var msgs []timedMessage
	for _, track := range file.Tracks {
		var tick int64
		for _, ev := range track {
			tick += int64(ev.Delta)
			if ev.Message.IsMeta() {
				continue
			}
			msgs = append(msgs, timedMessage{tick: tick, msg: ev.Message})
		}
	}
	slices.SortStableFunc(msgs, func(a, b timedMessage) int {
		if c := cmp.Compare(a.tick, b.tick); c != 0 {
			return c
		}
		aOff, bOff := a.msg.GetNoteEnd(nil, nil), b.msg.GetNoteEnd(nil, nil)
		switch {
		case aOff && !bOff:
			return -1
		case bOff && !aOff:
			return 1
		}
		return 0
	})

	s.mu.Lock()
	s.ppqn = uint16(ppqn)
	stuck := s.stuck
	s.mu.Unlock()

	w := m.WriteLock()
	defer w.Release()
	w.Clear()
	w.StartWrite()
	last := temporal.Beats{}
	for _, tm := range msgs {
		t := temporal.BeatTicks(tm.tick * temporal.PPQN / ppqn)
		if err := w.Append(midi.NewEventFromMessage(t, gomidi.Message(tm.msg))); err != nil {
			w.EndWrite(sequence.DeleteStuckNotes, t)
			return err
		}
		last = t
	}
	w.EndWrite(stuck, last)
	m.SetEdited(false)
	m.Controls().Dirty()

	debug.For("source").Info("loaded smf",
		"file", s.Name(), "tracks", len(file.Tracks), "events", len(msgs), "notes", w.NoteCount())
	return nil
}

// SyncModel rewrites the file from m.
func (s *SMFSource) SyncModel(lock model.SourceLock, m *model.Model) error {
	if err := s.check(lock); err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return seqerr.Wrap(err, "create "+dir)
	}
	tmp, err := os.CreateTemp(dir, ".smf-*")
	if err != nil {
		return seqerr.Wrap(err, "create temp file")
	}
	defer os.Remove(tmp.Name())

	if err := s.write(m, tmp, temporal.Beats{}, temporal.MaxBeats()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return seqerr.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return seqerr.Wrap(err, "replace "+s.path)
	}
	debug.Log("source", "synced %s", s.path)
	return nil
}

// WriteModel writes all of m to w as an SMF.
func (s *SMFSource) WriteModel(lock model.SourceLock, m *model.Model, w io.Writer) error {
	if err := s.check(lock); err != nil {
		return err
	}
	return s.write(m, w, temporal.Beats{}, temporal.MaxBeats())
}

// WriteModelSection writes the events in [begin, end) with times rebased to
// begin. Notes still sounding at end get a note-off there; notes that
// started before begin are left out.
func (s *SMFSource) WriteModelSection(lock model.SourceLock, m *model.Model, w io.Writer, begin, end temporal.Beats) error {
	if err := s.check(lock); err != nil {
		return err
	}
	if end.Compare(begin) < 0 {
		return seqerr.ContractViolation("section end %s before begin %s", end, begin)
	}
	return s.write(m, w, begin, end)
}

func (s *SMFSource) toTicks(b temporal.Beats) int64 {
	return (b.Ticks()*int64(s.ppqn) + temporal.PPQN/2) / temporal.PPQN
}

func (s *SMFSource) write(m *model.Model, out io.Writer, begin, end temporal.Beats) error {
	var track smf.Track
	track.Add(0, smf.MetaTrackSequenceName(s.Name()))

	type key struct{ ch, pitch uint8 }
	sounding := map[key]int{}
	var last int64
	add := func(t temporal.Beats, buf []byte) {
		tick := s.toTicks(t.Sub(begin))
		track.Add(uint32(tick-last), buf)
		last = tick
	}

	it := m.Begin(begin, sequence.IterOptions[temporal.Beats]{ForceDiscrete: true})
	for it.Next() {
		ev := it.Event()
		if ev.Time().Compare(end) >= 0 {
			break
		}
		if ev.IsNote() {
			k := key{ev.Channel(), ev.Note()}
			if ev.IsNoteOn() {
				sounding[k]++
			} else if sounding[k] > 0 {
				sounding[k]--
			}
		}
		add(ev.Time(), ev.Buffer())
	}
	it.Close()

	if !temporal.IsMax(end) {
		keys := make([]key, 0, len(sounding))
		for k, n := range sounding {
			if n > 0 {
				keys = append(keys, k)
			}
		}
		slices.SortFunc(keys, func(a, b key) int {
			if a.ch != b.ch {
				return int(a.ch) - int(b.ch)
			}
			return int(a.pitch) - int(b.pitch)
		})
		for _, k := range keys {
			for range sounding[k] {
				add(end, gomidi.NoteOff(k.ch, k.pitch))
			}
		}
	}
	track.Close(0)

	file := smf.New()
	file.TimeFormat = smf.MetricTicks(s.ppqn)
	if err := file.Add(track); err != nil {
		return seqerr.Wrap(err, "add track")
	}
	if _, err := file.WriteTo(out); err != nil {
		return seqerr.Wrap(err, "write smf")
	}
	return nil
}
