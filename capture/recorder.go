// Package capture records live MIDI input into a sequence.
package capture

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	charmlog "github.com/charmbracelet/log"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver

	"go-midimodel/debug"
	"go-midimodel/midi"
	"go-midimodel/seqerr"
	"go-midimodel/sequence"
	"go-midimodel/temporal"
)

// PortTimeout bounds port enumeration. CoreMIDI can hang.
const PortTimeout = 3 * time.Second

// InPorts lists the MIDI inputs.
func InPorts(timeout time.Duration) ([]drivers.In, error) {
	ch := make(chan []drivers.In, 1)
	go func() {
		ch <- gomidi.GetInPorts()
	}()

	select {
	case ins := <-ch:
		return ins, nil
	case <-time.After(timeout):
		return nil, seqerr.ContractViolation("listing MIDI inputs timed out after %s", timeout)
	}
}

// FindInPort picks an input by index or by case-insensitive name fragment.
func FindInPort(ins []drivers.In, name string) (drivers.In, error) {
	if i, err := strconv.Atoi(name); err == nil {
		if i < 0 || i >= len(ins) {
			return nil, seqerr.ContractViolation("no MIDI input %d (have %d)", i, len(ins))
		}
		return ins[i], nil
	}
	want := strings.ToLower(name)
	for _, in := range ins {
		if strings.Contains(strings.ToLower(in.String()), want) {
			return in, nil
		}
	}
	return nil, seqerr.ContractViolation("no MIDI input matching %q", name)
}

type Seq = sequence.Sequence[temporal.Beats]

// Recorder appends incoming messages to a sequence in write mode. Each
// message takes the write lock only for its own append, so readers keep
// working while recording.
type Recorder struct {
	seq    *Seq
	bpm    float64
	offset temporal.Beats
	stuck  sequence.StuckNoteOption

	mu       sync.Mutex
	stop     func()
	active   bool
	last     temporal.Beats
	received int
	dropped  int
}

// NewRecorder records into seq at bpm. Times start at offset.
func NewRecorder(seq *Seq, bpm float64, offset temporal.Beats) *Recorder {
	if bpm <= 0 {
		bpm = 120
	}
	return &Recorder{seq: seq, bpm: bpm, offset: offset, stuck: sequence.ResolveStuckNotes}
}

// SetStuckNotes picks what Stop does with notes still held. The default
// resolves them at the last message time.
func (r *Recorder) SetStuckNotes(o sequence.StuckNoteOption) {
	r.mu.Lock()
	r.stuck = o
	r.mu.Unlock()
}

// Start puts the sequence in write mode and listens to in.
func (r *Recorder) Start(in drivers.In) error {
	r.begin()
	stop, err := gomidi.ListenTo(in, r.Handle, gomidi.UseSysEx())
	if err != nil {
		r.end()
		return seqerr.Wrap(err, "listen to "+in.String())
	}
	r.mu.Lock()
	r.stop = stop
	r.mu.Unlock()
	debug.For("capture").Info("recording", "port", in.String(), "bpm", r.bpm)
	return nil
}

// Run records from in until ctx is done. It logs through the logger stored
// in ctx by debug.Context.
func (r *Recorder) Run(ctx context.Context, in drivers.In) (int, error) {
	log := charmlog.FromContext(ctx).With("category", "capture")
	if err := r.Start(in); err != nil {
		return 0, err
	}
	<-ctx.Done()
	log.Debug("stopping", "port", in.String(), "cause", context.Cause(ctx))
	n := r.Stop()
	log.Debug("stopped", "messages", n)
	return n, nil
}

func (r *Recorder) begin() {
	w := r.seq.WriteLock()
	w.StartWrite()
	w.Release()

	r.mu.Lock()
	r.active = true
	r.last = r.offset
	r.received, r.dropped = 0, 0
	r.mu.Unlock()
}

// Time converts a driver timestamp to a sequence time.
func (r *Recorder) Time(ms int32) temporal.Beats {
	beats := float64(ms) / 1000 * r.bpm / 60
	return r.offset.Add(temporal.FromDouble(beats))
}

// Handle appends one message. It is the ListenTo callback and can be fed
// directly when messages come from elsewhere.
func (r *Recorder) Handle(msg gomidi.Message, ms int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return
	}
	t := r.Time(ms)
	// drivers are not required to deliver strictly increasing timestamps
	t = temporal.Later(t, r.last)

	w := r.seq.WriteLock()
	err := w.Append(midi.NewEventFromMessage(t, msg))
	w.Release()
	if err != nil {
		r.dropped++
		debug.For("capture").Warn("dropped message", "msg", msg.String(), "err", err)
		return
	}
	r.last = t
	r.received++
	debug.LogEvery(100, "capture", "%d messages recorded", r.received)
}

// Stop ends the recording, dealing with notes still held per the stuck
// note option, and returns the number of messages recorded.
func (r *Recorder) Stop() int {
	r.mu.Lock()
	stop := r.stop
	r.stop = nil
	r.mu.Unlock()
	if stop != nil {
		stop()
	}
	return r.end()
}

func (r *Recorder) end() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return r.received
	}
	r.active = false

	w := r.seq.WriteLock()
	w.EndWrite(r.stuck, r.last)
	notes := w.NoteCount()
	w.Release()

	debug.For("capture").Info("recording stopped",
		"messages", r.received, "dropped", r.dropped, "notes", notes, "end", r.last.String(), "stuck", r.stuck.String())
	return r.received
}
