package temporal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeatsArithmetic(t *testing.T) {
	a := FromDouble(1.0)
	b := FromDouble(2.5)

	assert.Equal(t, int64(PPQN), a.Ticks())
	assert.Equal(t, FromDouble(3.5), a.Add(b))
	assert.Equal(t, FromDouble(1.5), b.Sub(a))
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(NewBeats(1, 0)))
	assert.Equal(t, BeatTicks(1), Tick[Beats]())
}

func TestBeatsAddSaturatesAtMax(t *testing.T) {
	start := FromDouble(4)
	length := MaxBeats().Sub(start)

	assert.True(t, IsMax(start.Add(length)))
	assert.True(t, IsMax(MaxBeats().Add(FromDouble(1))))
}

func TestBeatsRoundTo(t *testing.T) {
	grid := FromDouble(0.25)

	tests := []struct {
		in   float64
		want float64
	}{
		{0.1, 0.0},
		{0.13, 0.25},
		{0.125, 0.25},
		{1.9, 2.0},
		{-0.1, 0.0},
	}
	for _, tt := range tests {
		assert.Equal(t, FromDouble(tt.want), FromDouble(tt.in).RoundTo(grid), "round %v", tt.in)
	}
	assert.Equal(t, FromDouble(0.3), FromDouble(0.3).RoundTo(Beats{}))
}

func TestParseBeats(t *testing.T) {
	v, err := ParseBeats("2:960")
	require.NoError(t, err)
	assert.Equal(t, FromDouble(2.5), v)

	v, err = ParseBeats("3840")
	require.NoError(t, err)
	assert.Equal(t, FromDouble(2), v)

	v, err = ParseBeats("max")
	require.NoError(t, err)
	assert.True(t, IsMax(v))

	_, err = ParseBeats("abc")
	assert.Error(t, err)
}

func TestBeatsTextRoundTrip(t *testing.T) {
	for _, b := range []Beats{{}, FromDouble(1.75), FromDouble(-3), MaxBeats()} {
		text, err := b.MarshalText()
		require.NoError(t, err)
		var got Beats
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, b, got)
	}
}

func TestEarlierLater(t *testing.T) {
	a, b := FromDouble(1), FromDouble(2)
	assert.Equal(t, a, Earlier(a, b))
	assert.Equal(t, b, Later(a, b))
	assert.True(t, Less(a, b))
	assert.Equal(t, "1:0", a.String())
	assert.Equal(t, "max", MaxBeats().String())
}
