package midi

import (
	"fmt"

	"go-midimodel/seqerr"
	"go-midimodel/temporal"
)

// NoBank means the patch change carries no bank select.
const NoBank = -1

// PatchChange is a program change with an optional 14-bit bank.
type PatchChange[T temporal.Time[T]] struct {
	time    T
	channel uint8
	program uint8
	bank    int
	id      int64
	serial  uint64
}

// NewPatchChange builds a patch change. bank is NoBank or 0..16383.
func NewPatchChange[T temporal.Time[T]](t T, channel, program uint8, bank int) (*PatchChange[T], error) {
	if channel >= NumChannels {
		return nil, seqerr.ContractViolation("patch change channel %d out of range", channel)
	}
	if bank < NoBank || bank > 0x3FFF {
		bank = NoBank
	}
	return &PatchChange[T]{
		time:    t,
		channel: channel,
		program: clamp7(int(program)),
		bank:    bank,
		id:      NoID,
		serial:  nextSerial(),
	}, nil
}

func (p *PatchChange[T]) Time() T          { return p.time }
func (p *PatchChange[T]) Channel() uint8   { return p.channel }
func (p *PatchChange[T]) Program() uint8   { return p.program }
func (p *PatchChange[T]) Bank() int        { return p.bank }
func (p *PatchChange[T]) ID() int64        { return p.id }
func (p *PatchChange[T]) Serial() uint64   { return p.serial }
func (p *PatchChange[T]) SetID(id int64)   { p.id = id }
func (p *PatchChange[T]) SetTime(t T)      { p.time = t }
func (p *PatchChange[T]) SetProgram(v int) { p.program = clamp7(v) }

func (p *PatchChange[T]) SetChannel(ch uint8) {
	if ch >= NumChannels {
		panic(seqerr.ContractViolation("patch change channel %d out of range", ch))
	}
	p.channel = ch
}

func (p *PatchChange[T]) SetBank(b int) {
	if b < NoBank || b > 0x3FFF {
		b = NoBank
	}
	p.bank = b
}

func (p *PatchChange[T]) BankMSB() uint8 { return uint8((p.bank >> 7) & 0x7F) }
func (p *PatchChange[T]) BankLSB() uint8 { return uint8(p.bank & 0x7F) }

// Messages expands the patch change into bank MSB, bank LSB and program
// events. Bank messages are omitted when no bank is set.
func (p *PatchChange[T]) Messages() []*Event[T] {
	var out []*Event[T]
	if p.bank != NoBank {
		out = append(out,
			ControlChangeEvent(p.time, p.channel, BankMSB, p.BankMSB()),
			ControlChangeEvent(p.time, p.channel, BankLSB, p.BankLSB()))
	}
	out = append(out, ProgramChangeEvent(p.time, p.channel, p.program))
	for _, e := range out {
		e.SetID(p.id)
	}
	return out
}

// Equal compares time, channel, program and bank.
func (p *PatchChange[T]) Equal(o *PatchChange[T]) bool {
	return p.time == o.time && p.channel == o.channel && p.program == o.program && p.bank == o.bank
}

func (p *PatchChange[T]) Clone() *PatchChange[T] {
	c := *p
	c.serial = nextSerial()
	return &c
}

func (p *PatchChange[T]) String() string {
	return fmt.Sprintf("Patch #%d ch=%d prog=%d bank=%d @ %s", p.id, p.channel, p.program, p.bank, p.time)
}
