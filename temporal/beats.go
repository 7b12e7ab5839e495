package temporal

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PPQN is the number of ticks in one beat.
const PPQN = 1920

// Beats is musical time in fixed-point ticks (PPQN per beat).
type Beats struct {
	ticks int64
}

// BeatTicks returns a Beats value of n ticks.
func BeatTicks(n int64) Beats {
	return Beats{ticks: n}
}

// NewBeats returns beats whole beats plus ticks.
func NewBeats(beats, ticks int64) Beats {
	return Beats{ticks: beats*PPQN + ticks}
}

// FromDouble converts a (possibly fractional) beat count, rounding to the
// nearest tick.
func FromDouble(beats float64) Beats {
	if beats >= float64(math.MaxInt64)/PPQN {
		return MaxBeats()
	}
	return Beats{ticks: int64(math.Round(beats * PPQN))}
}

// MaxBeats is the largest representable Beats value.
func MaxBeats() Beats {
	return Beats{ticks: math.MaxInt64}
}

func (b Beats) Ticks() int64 { return b.ticks }

func (b Beats) FromTicks(n int64) Beats { return Beats{ticks: n} }

func (b Beats) Max() Beats { return MaxBeats() }

// Beats returns the whole-beat part.
func (b Beats) Beats() int64 { return b.ticks / PPQN }

// Remainder returns the tick part below one beat.
func (b Beats) Remainder() int64 { return b.ticks % PPQN }

// ToDouble returns the beat count as a float.
func (b Beats) ToDouble() float64 { return float64(b.ticks) / PPQN }

func (b Beats) IsZero() bool { return b.ticks == 0 }

func (b Beats) Compare(o Beats) int {
	switch {
	case b.ticks < o.ticks:
		return -1
	case b.ticks > o.ticks:
		return 1
	}
	return 0
}

// Add saturates at MaxBeats.
func (b Beats) Add(o Beats) Beats {
	if o.ticks > 0 && b.ticks > math.MaxInt64-o.ticks {
		return MaxBeats()
	}
	if o.ticks < 0 && b.ticks < math.MinInt64-o.ticks {
		return Beats{ticks: math.MinInt64}
	}
	return Beats{ticks: b.ticks + o.ticks}
}

func (b Beats) Sub(o Beats) Beats {
	if o.ticks == math.MinInt64 {
		return MaxBeats()
	}
	return b.Add(Beats{ticks: -o.ticks})
}

// Scale multiplies by f, rounding to the nearest tick.
func (b Beats) Scale(f float64) Beats {
	return Beats{ticks: int64(math.Round(float64(b.ticks) * f))}
}

// RoundTo snaps b to the nearest multiple of grid. A non-positive grid
// leaves b unchanged.
func (b Beats) RoundTo(grid Beats) Beats {
	if grid.ticks <= 0 {
		return b
	}
	q := b.ticks / grid.ticks
	r := b.ticks % grid.ticks
	if r < 0 {
		q--
		r += grid.ticks
	}
	if 2*r >= grid.ticks {
		q++
	}
	return Beats{ticks: q * grid.ticks}
}

// String formats as beats:ticks, or "max".
func (b Beats) String() string {
	if b.ticks == math.MaxInt64 {
		return "max"
	}
	if b.ticks < 0 {
		n := Beats{ticks: -b.ticks}
		return "-" + n.String()
	}
	return fmt.Sprintf("%d:%d", b.Beats(), b.Remainder())
}

// MarshalText encodes the raw tick count.
func (b Beats) MarshalText() ([]byte, error) {
	return []byte(strconv.FormatInt(b.ticks, 10)), nil
}

func (b *Beats) UnmarshalText(text []byte) error {
	v, err := ParseBeats(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// ParseBeats accepts a raw tick count ("3840"), beats:ticks ("2:0") or "max".
func ParseBeats(s string) (Beats, error) {
	s = strings.TrimSpace(s)
	if s == "max" {
		return MaxBeats(), nil
	}
	if whole, frac, ok := strings.Cut(s, ":"); ok {
		neg := strings.HasPrefix(whole, "-")
		whole = strings.TrimPrefix(whole, "-")
		bt, err := strconv.ParseInt(whole, 10, 64)
		if err != nil {
			return Beats{}, fmt.Errorf("parse beats %q: %w", s, err)
		}
		tk, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return Beats{}, fmt.Errorf("parse beats %q: %w", s, err)
		}
		v := NewBeats(bt, tk)
		if neg {
			v.ticks = -v.ticks
		}
		return v, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return Beats{}, fmt.Errorf("parse beats %q: %w", s, err)
	}
	return Beats{ticks: n}, nil
}
