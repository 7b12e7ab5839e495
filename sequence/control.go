package sequence

import (
	"cmp"
	"math"
	"slices"
	"sync"

	"github.com/google/btree"

	"go-midimodel/midi"
	"go-midimodel/temporal"
)

// Interpolation says how a control list is evaluated between breakpoints.
type Interpolation uint8

const (
	Discrete Interpolation = iota
	Linear
)

func (i Interpolation) String() string {
	if i == Linear {
		return "linear"
	}
	return "discrete"
}

// ControlPoint is one breakpoint.
type ControlPoint[T temporal.Time[T]] struct {
	Time  T
	Value float64
}

// ControlList is the breakpoint list for one parameter.
type ControlList[T temporal.Time[T]] struct {
	param  midi.Parameter
	interp Interpolation
	points *btree.BTreeG[ControlPoint[T]]
	dirty  bool
}

func newControlList[T temporal.Time[T]](p midi.Parameter) *ControlList[T] {
	interp := Linear
	if p.Discrete() {
		interp = Discrete
	}
	return &ControlList[T]{
		param:  p,
		interp: interp,
		points: btree.NewG(8, func(a, b ControlPoint[T]) bool {
			return a.Time.Compare(b.Time) < 0
		}),
	}
}

func (l *ControlList[T]) Parameter() midi.Parameter        { return l.param }
func (l *ControlList[T]) Interpolation() Interpolation     { return l.interp }
func (l *ControlList[T]) SetInterpolation(i Interpolation) { l.interp = i }
func (l *ControlList[T]) Len() int                         { return l.points.Len() }
func (l *ControlList[T]) Empty() bool                      { return l.points.Len() == 0 }

// Add sets a breakpoint, replacing any existing one at t.
func (l *ControlList[T]) Add(t T, v float64) {
	lo, hi := l.param.Range()
	l.points.ReplaceOrInsert(ControlPoint[T]{Time: t, Value: math.Max(lo, math.Min(hi, v))})
	l.dirty = true
}

// Erase removes the breakpoint at t, if any.
func (l *ControlList[T]) Erase(t T) bool {
	_, ok := l.points.Delete(ControlPoint[T]{Time: t})
	if ok {
		l.dirty = true
	}
	return ok
}

func (l *ControlList[T]) Clear() {
	l.points.Clear(false)
	l.dirty = true
}

// Shift moves every breakpoint by d.
func (l *ControlList[T]) Shift(d T) {
	pts := l.Events()
	l.points.Clear(false)
	for _, p := range pts {
		l.points.ReplaceOrInsert(ControlPoint[T]{Time: p.Time.Add(d), Value: p.Value})
	}
	l.dirty = true
}

// Events returns a copy of the breakpoints in time order.
func (l *ControlList[T]) Events() []ControlPoint[T] {
	out := make([]ControlPoint[T], 0, l.points.Len())
	l.points.Ascend(func(p ControlPoint[T]) bool {
		out = append(out, p)
		return true
	})
	return out
}

// Eval returns the value at t. Before the first breakpoint the first value
// holds, after the last the last value holds.
func (l *ControlList[T]) Eval(t T) (float64, bool) {
	return evalPoints(l.Events(), l.interp, t)
}

// Dirty reports and clears the modification flag.
func (l *ControlList[T]) Dirty() bool {
	d := l.dirty
	l.dirty = false
	return d
}

func (l *ControlList[T]) clone() *ControlList[T] {
	return &ControlList[T]{param: l.param, interp: l.interp, points: l.points.Clone()}
}

func evalPoints[T temporal.Time[T]](pts []ControlPoint[T], interp Interpolation, t T) (float64, bool) {
	if len(pts) == 0 {
		return 0, false
	}
	i, found := slices.BinarySearchFunc(pts, t, func(p ControlPoint[T], t T) int {
		return p.Time.Compare(t)
	})
	switch {
	case found:
		return pts[i].Value, true
	case i == 0:
		return pts[0].Value, true
	case i == len(pts):
		return pts[len(pts)-1].Value, true
	}
	a, b := pts[i-1], pts[i]
	if interp == Discrete {
		return a.Value, true
	}
	return lerp(a, b, t), true
}

func lerp[T temporal.Time[T]](a, b ControlPoint[T], t T) float64 {
	span := float64(b.Time.Sub(a.Time).Ticks())
	if span <= 0 {
		return b.Value
	}
	f := float64(t.Sub(a.Time).Ticks()) / span
	return a.Value + (b.Value-a.Value)*f
}

// ControlSet owns the control lists of a sequence. It has its own lock so
// controller writes do not contend with note edits.
type ControlSet[T temporal.Time[T]] struct {
	mu    sync.Mutex
	lists map[midi.Parameter]*ControlList[T]
}

func newControlSet[T temporal.Time[T]]() *ControlSet[T] {
	return &ControlSet[T]{lists: make(map[midi.Parameter]*ControlList[T])}
}

// Do runs fn with the set locked.
func (c *ControlSet[T]) Do(fn func(c *ControlSet[T])) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}

// Add appends a breakpoint, creating the list on first use.
func (c *ControlSet[T]) Add(p midi.Parameter, t T, v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listLocked(p).Add(t, v)
}

// Control returns the list for p, creating it when create is set.
func (c *ControlSet[T]) Control(p midi.Parameter, create bool) *ControlList[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !create {
		return c.lists[p]
	}
	return c.listLocked(p)
}

func (c *ControlSet[T]) listLocked(p midi.Parameter) *ControlList[T] {
	l, ok := c.lists[p]
	if !ok {
		l = newControlList[T](p)
		c.lists[p] = l
	}
	return l
}

// Parameters returns every parameter with a list, in a stable order.
func (c *ControlSet[T]) Parameters() []midi.Parameter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parametersLocked()
}

func (c *ControlSet[T]) parametersLocked() []midi.Parameter {
	out := make([]midi.Parameter, 0, len(c.lists))
	for p := range c.lists {
		out = append(out, p)
	}
	slices.SortFunc(out, compareParameters)
	return out
}

// Empty reports whether every list is empty.
func (c *ControlSet[T]) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range c.lists {
		if !l.Empty() {
			return false
		}
	}
	return true
}

// Clear empties every list.
func (c *ControlSet[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range c.lists {
		l.Clear()
	}
}

// Shift moves every breakpoint of every list by d.
func (c *ControlSet[T]) Shift(d T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range c.lists {
		l.Shift(d)
	}
}

// Dirty reports whether any list changed since the last call, clearing
// every list's flag.
func (c *ControlSet[T]) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	dirty := false
	for _, l := range c.lists {
		if l.Dirty() {
			dirty = true
		}
	}
	return dirty
}

// controlSnapshot is a consistent copy of one list taken for iteration.
type controlSnapshot[T temporal.Time[T]] struct {
	param  midi.Parameter
	interp Interpolation
	points []ControlPoint[T]
}

func (c *ControlSet[T]) snapshot(filter map[midi.Parameter]bool) []controlSnapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []controlSnapshot[T]
	for _, p := range c.parametersLocked() {
		if filter[p] {
			continue
		}
		l := c.lists[p]
		if l.Empty() {
			continue
		}
		out = append(out, controlSnapshot[T]{param: p, interp: l.interp, points: l.Events()})
	}
	return out
}

func (c *ControlSet[T]) clone() *ControlSet[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := newControlSet[T]()
	for p, l := range c.lists {
		out.lists[p] = l.clone()
	}
	return out
}

func compareParameters(a, b midi.Parameter) int {
	return cmp.Or(
		cmp.Compare(a.Type, b.Type),
		cmp.Compare(a.Channel, b.Channel),
		cmp.Compare(a.ID, b.ID),
	)
}
