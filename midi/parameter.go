package midi

import (
	"fmt"
	"math"

	gomidi "gitlab.com/gomidi/midi/v2"

	"go-midimodel/temporal"
)

// ParameterType identifies the kind of continuous data a controller list
// holds.
type ParameterType uint8

const (
	ParamControl ParameterType = iota
	ParamProgram
	ParamPitchBend
	ParamChannelPressure
	ParamPolyPressure
)

func (t ParameterType) String() string {
	switch t {
	case ParamControl:
		return "cc"
	case ParamProgram:
		return "program"
	case ParamPitchBend:
		return "bend"
	case ParamChannelPressure:
		return "pressure"
	case ParamPolyPressure:
		return "poly-pressure"
	}
	return "unknown"
}

// ParseParameterType is the inverse of ParameterType.String.
func ParseParameterType(s string) (ParameterType, bool) {
	for t := ParamControl; t <= ParamPolyPressure; t++ {
		if t.String() == s {
			return t, true
		}
	}
	return 0, false
}

// Parameter addresses one controller stream. ID is the CC number for
// ParamControl and the key for ParamPolyPressure, otherwise zero.
type Parameter struct {
	Type    ParameterType
	Channel uint8
	ID      uint8
}

// Discrete reports whether values of p step rather than ramp by default.
func (p Parameter) Discrete() bool {
	return p.Type == ParamProgram
}

// Range returns the value bounds of p.
func (p Parameter) Range() (lo, hi float64) {
	if p.Type == ParamPitchBend {
		return 0, 0x3FFF
	}
	return 0, 127
}

// Message renders a controller value. Values are rounded and clamped to the
// parameter's range.
func (p Parameter) Message(v float64) gomidi.Message {
	lo, hi := p.Range()
	iv := int(math.Round(math.Max(lo, math.Min(hi, v))))
	switch p.Type {
	case ParamControl:
		return gomidi.ControlChange(p.Channel, p.ID, uint8(iv))
	case ParamProgram:
		return gomidi.ProgramChange(p.Channel, uint8(iv))
	case ParamPitchBend:
		return gomidi.Pitchbend(p.Channel, int16(iv-0x2000))
	case ParamChannelPressure:
		return gomidi.AfterTouch(p.Channel, uint8(iv))
	case ParamPolyPressure:
		return gomidi.PolyAfterTouch(p.Channel, p.ID, uint8(iv))
	}
	return nil
}

func (p Parameter) String() string {
	return fmt.Sprintf("%s/%d/%d", p.Type, p.Channel, p.ID)
}

// ControlEvent builds an Event[T] for p at t with value v.
func ControlEvent[T temporal.Time[T]](p Parameter, t T, v float64) *Event[T] {
	return NewEventFromMessage(t, p.Message(v))
}

// ParameterOf returns the controller stream e belongs to and its value.
// ok is false for notes, sysex and bank selects.
func ParameterOf[T temporal.Time[T]](e *Event[T]) (p Parameter, v float64, ok bool) {
	ch := e.Channel()
	switch e.Status() {
	case CC:
		n := e.CCNumber()
		if n == BankMSB || n == BankLSB {
			return p, 0, false
		}
		return Parameter{Type: ParamControl, Channel: ch, ID: n}, float64(e.CCValue()), true
	case PitchBend:
		return Parameter{Type: ParamPitchBend, Channel: ch}, float64(e.BenderValue()), true
	case ChannelPressure:
		return Parameter{Type: ParamChannelPressure, Channel: ch}, float64(e.ChannelPressureValue()), true
	case PolyPressure:
		return Parameter{Type: ParamPolyPressure, Channel: ch, ID: e.Note()}, float64(e.PolyPressureValue()), true
	}
	return p, 0, false
}
