package model

import (
	"fmt"
	"math"
	"strconv"

	"go-midimodel/seqerr"
	"go-midimodel/temporal"
)

// VariantType tags the value a Variant holds.
type VariantType uint8

const (
	Nothing VariantType = iota
	BeatsType
	BoolType
	DoubleType
	FloatType
	IntType
	LongType
	PathType
	StringType
	URIType
)

var variantTypeNames = [...]string{"nothing", "beats", "bool", "double", "float", "int", "long", "path", "string", "uri"}

func (t VariantType) String() string {
	if int(t) < len(variantTypeNames) {
		return variantTypeNames[t]
	}
	return "unknown"
}

// ParseVariantType is the inverse of VariantType.String.
func ParseVariantType(s string) (VariantType, bool) {
	for i, name := range variantTypeNames {
		if name == s {
			return VariantType(i), true
		}
	}
	return Nothing, false
}

// Variant is a tagged value. Reading it as the wrong type is an error.
type Variant struct {
	typ   VariantType
	i     int64
	f     float64
	b     bool
	s     string
	beats temporal.Beats
}

func VNothing() Variant               { return Variant{} }
func VBeats(v temporal.Beats) Variant { return Variant{typ: BeatsType, beats: v} }
func VBool(v bool) Variant            { return Variant{typ: BoolType, b: v} }
func VDouble(v float64) Variant       { return Variant{typ: DoubleType, f: v} }
func VFloat(v float32) Variant        { return Variant{typ: FloatType, f: float64(v)} }
func VInt(v int32) Variant            { return Variant{typ: IntType, i: int64(v)} }
func VLong(v int64) Variant           { return Variant{typ: LongType, i: v} }
func VPath(v string) Variant          { return Variant{typ: PathType, s: v} }
func VString(v string) Variant        { return Variant{typ: StringType, s: v} }
func VURI(v string) Variant           { return Variant{typ: URIType, s: v} }

func (v Variant) Type() VariantType { return v.typ }
func (v Variant) IsNothing() bool   { return v.typ == Nothing }

func (v Variant) mismatch(want VariantType) error {
	return seqerr.TypeMismatch("variant is %s, not %s", v.typ, want)
}

func (v Variant) GetBeats() (temporal.Beats, error) {
	if v.typ != BeatsType {
		return temporal.Beats{}, v.mismatch(BeatsType)
	}
	return v.beats, nil
}

func (v Variant) GetBool() (bool, error) {
	if v.typ != BoolType {
		return false, v.mismatch(BoolType)
	}
	return v.b, nil
}

func (v Variant) GetDouble() (float64, error) {
	if v.typ != DoubleType {
		return 0, v.mismatch(DoubleType)
	}
	return v.f, nil
}

func (v Variant) GetFloat() (float32, error) {
	if v.typ != FloatType {
		return 0, v.mismatch(FloatType)
	}
	return float32(v.f), nil
}

func (v Variant) GetInt() (int32, error) {
	if v.typ != IntType {
		return 0, v.mismatch(IntType)
	}
	return int32(v.i), nil
}

func (v Variant) GetLong() (int64, error) {
	if v.typ != LongType {
		return 0, v.mismatch(LongType)
	}
	return v.i, nil
}

func (v Variant) GetPath() (string, error) {
	if v.typ != PathType {
		return "", v.mismatch(PathType)
	}
	return v.s, nil
}

func (v Variant) GetString() (string, error) {
	if v.typ != StringType {
		return "", v.mismatch(StringType)
	}
	return v.s, nil
}

func (v Variant) GetURI() (string, error) {
	if v.typ != URIType {
		return "", v.mismatch(URIType)
	}
	return v.s, nil
}

// ToDouble converts numeric variants. ok is false for other types.
func (v Variant) ToDouble() (float64, bool) {
	switch v.typ {
	case BeatsType:
		return v.beats.ToDouble(), true
	case BoolType:
		if v.b {
			return 1, true
		}
		return 0, true
	case DoubleType, FloatType:
		return v.f, true
	case IntType, LongType:
		return float64(v.i), true
	}
	return 0, false
}

// FromDouble builds a variant of type t from a number. The conversion is
// lossy and yields Nothing when v cannot be represented.
func FromDouble(t VariantType, v float64) Variant {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return VNothing()
	}
	switch t {
	case BeatsType:
		return VBeats(temporal.FromDouble(v))
	case BoolType:
		return VBool(v >= 0.5)
	case DoubleType:
		return VDouble(v)
	case FloatType:
		if math.Abs(v) > math.MaxFloat32 {
			return VNothing()
		}
		return VFloat(float32(v))
	case IntType:
		r := math.Round(v)
		if r < math.MinInt32 || r > math.MaxInt32 {
			return VNothing()
		}
		return VInt(int32(r))
	case LongType:
		r := math.Round(v)
		if r < math.MinInt64 || r >= math.MaxInt64 {
			return VNothing()
		}
		return VLong(int64(r))
	}
	return VNothing()
}

func (v Variant) Equal(o Variant) bool {
	return v == o
}

// Encode renders the payload for a state attribute. The type is stored
// separately.
func (v Variant) Encode() string {
	switch v.typ {
	case BeatsType:
		text, _ := v.beats.MarshalText()
		return string(text)
	case BoolType:
		return strconv.FormatBool(v.b)
	case DoubleType:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case FloatType:
		return strconv.FormatFloat(v.f, 'g', -1, 32)
	case IntType, LongType:
		return strconv.FormatInt(v.i, 10)
	case PathType, StringType, URIType:
		return v.s
	}
	return ""
}

// ParseVariant decodes a payload written by Encode.
func ParseVariant(t VariantType, s string) (Variant, error) {
	bad := func(err error) (Variant, error) {
		return VNothing(), seqerr.MalformedState("%s value %q: %v", t, s, err)
	}
	switch t {
	case Nothing:
		return VNothing(), nil
	case BeatsType:
		b, err := temporal.ParseBeats(s)
		if err != nil {
			return bad(err)
		}
		return VBeats(b), nil
	case BoolType:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return bad(err)
		}
		return VBool(b), nil
	case DoubleType:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return bad(err)
		}
		return VDouble(f), nil
	case FloatType:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return bad(err)
		}
		return VFloat(float32(f)), nil
	case IntType:
		i, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return bad(err)
		}
		return VInt(int32(i)), nil
	case LongType:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return bad(err)
		}
		return VLong(i), nil
	case PathType:
		return VPath(s), nil
	case StringType:
		return VString(s), nil
	case URIType:
		return VURI(s), nil
	}
	return bad(fmt.Errorf("unknown type"))
}

func (v Variant) String() string {
	if v.typ == Nothing {
		return "nothing"
	}
	if v.typ == BeatsType {
		return v.beats.String()
	}
	return v.typ.String() + ":" + v.Encode()
}
