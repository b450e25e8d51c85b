// Package value implements the runtime value representation for timidvm.
//
// A Value is a tagged union over the five kinds the language knows about:
// integers, floats, booleans, null, and heap-allocated objects (currently
// only strings). The package also owns the object subsystem — String, the
// intrusive object free-list, and the open-addressed Table used both as
// the VM's global-variable store and as its string intern pool — because
// those three pieces are as tightly coupled here as they are in the
// original C implementation's value.h/object.h/table.h header trio: a
// Value can hold a *String, a *String can only be constructed through the
// intern Table, and the Table's probe sequence relies on pointer identity
// that only interning guarantees. Splitting them across packages would
// just relocate that coupling behind an import cycle.
package value

import (
	"fmt"
	"math"
	"strconv"
)

// Kind discriminates the variant a Value currently holds.
type Kind byte

const (
	// Int holds a signed 64-bit integer.
	Int Kind = iota
	// Float holds a 64-bit IEEE-754 double.
	Float
	// Bool holds a boolean.
	Bool
	// Null carries no payload.
	Null
	// Object holds a reference to a heap-allocated Object (currently
	// always a *String).
	Object
)

// Value is a compact tagged union over the language's scalar and
// heap-object variants. Values are copied by value except the Object
// variant, which holds a non-owning reference into the VM's object
// free-list — copying a Value never copies or releases the String it
// points at.
type Value struct {
	Kind Kind
	num  int64   // backing store for Int, and for Bool (0/1)
	flt  float64 // backing store for Float
	obj  *String // backing store for Object
}

// Int64 builds an integer Value.
func Int64(n int64) Value { return Value{Kind: Int, num: n} }

// Float64 builds a float Value.
func Float64(f float64) Value { return Value{Kind: Float, flt: f} }

// Boolean builds a boolean Value.
func Boolean(b bool) Value {
	v := Value{Kind: Bool}
	if b {
		v.num = 1
	}
	return v
}

// NullValue is the single null Value.
var NullValue = Value{Kind: Null}

// FromString wraps a *String as an Object-kind Value.
func FromString(s *String) Value { return Value{Kind: Object, obj: s} }

// AsInt returns the raw int64 payload of an Int Value. Only meaningful
// when Kind == Int.
func (v Value) AsInt() int64 { return v.num }

// AsFloat returns the raw float64 payload of a Float Value. Only
// meaningful when Kind == Float.
func (v Value) AsFloat() float64 { return v.flt }

// AsBool returns the raw bool payload of a Bool Value. Only meaningful
// when Kind == Bool.
func (v Value) AsBool() bool { return v.num != 0 }

// AsString returns the *String payload of an Object Value. Only
// meaningful when Kind == Object, and only ever non-nil for a String
// object in this revision (the only object kind there is).
func (v Value) AsString() *String { return v.obj }

// IsString reports whether v holds a String object.
func (v Value) IsString() bool { return v.Kind == Object && v.obj != nil }

// ToInt coerces v to a signed 64-bit integer: Int is itself, Float
// truncates toward zero, Bool is 0 or 1, Null is 0.
func (v Value) ToInt() int64 {
	switch v.Kind {
	case Int:
		return v.num
	case Float:
		return int64(v.flt)
	case Bool:
		return v.num
	case Null:
		return 0
	default:
		return 0
	}
}

// ToFloat coerces v to a 64-bit float, mirroring ToInt.
func (v Value) ToFloat() float64 {
	switch v.Kind {
	case Int:
		return float64(v.num)
	case Float:
		return v.flt
	case Bool:
		return float64(v.num)
	case Null:
		return 0.0
	default:
		return 0.0
	}
}

// ToString formats v the way the language's to-string coercion does:
// numerics get their shortest human form, Bool becomes "tru"/"fls", Null
// becomes "nul", and an Object Value returns its own String unchanged.
// The returned String is interned through in (building a fresh owned
// buffer for anything that isn't already a String).
func (v Value) ToString(in *Interner) *String {
	switch v.Kind {
	case Object:
		return v.obj
	case Int:
		return in.MakeOwned([]byte(strconv.FormatInt(v.num, 10)))
	case Float:
		return in.MakeOwned([]byte(formatFloat(v.flt)))
	case Bool:
		if v.num != 0 {
			return in.MakeOwned([]byte("tru"))
		}
		return in.MakeOwned([]byte("fls"))
	case Null:
		return in.MakeOwned([]byte("nul"))
	default:
		return in.MakeOwned(nil)
	}
}

// formatFloat renders a finite f with %g semantics, matching the C
// printf("%g", ...) the original VM uses: six significant digits,
// trailing zeros dropped, exponent form for very large or small
// magnitudes. Infinities and NaN use Go's spellings.
func formatFloat(f float64) string {
	if math.IsInf(f, 1) {
		return "+Inf"
	}
	if math.IsInf(f, -1) {
		return "-Inf"
	}
	if math.IsNaN(f) {
		return "NaN"
	}
	return strconv.FormatFloat(f, 'g', 6, 64)
}

// Truth is the boolean projection used by conditional jumps and the
// logical operators: numerics are truthy when non-zero, Null is always
// false, and a String is truthy when non-empty.
func (v Value) Truth() bool {
	switch v.Kind {
	case Int:
		return v.num != 0
	case Float:
		return v.flt != 0.0
	case Bool:
		return v.num != 0
	case Null:
		return false
	case Object:
		if v.obj != nil {
			return len(v.obj.Bytes) > 0
		}
		return false
	default:
		return false
	}
}

// IsNumeric reports whether v participates in numeric coercion: Int,
// Float, Bool, and Null are all numeric (Bool/Null coerce to 0/1/0).
func (v Value) IsNumeric() bool {
	switch v.Kind {
	case Int, Float, Bool, Null:
		return true
	default:
		return false
	}
}

// IsIntegral reports whether v is Int, Bool, or Null — the set of kinds
// that participate in integer-only arithmetic without forcing a float.
func (v Value) IsIntegral() bool {
	switch v.Kind {
	case Int, Bool, Null:
		return true
	default:
		return false
	}
}

// AsNumber is the ordering projection: numerics go through ToFloat,
// Strings contribute their byte length, and anything else contributes
// zero. Comparisons built on this are therefore always defined, even
// when they are not especially meaningful — kept for fidelity with the
// original VM's asNumber.
func (v Value) AsNumber() float64 {
	if v.IsNumeric() {
		return v.ToFloat()
	}
	if v.IsString() {
		return float64(len(v.obj.Bytes))
	}
	return 0
}

// Equals implements the language's == operator: integral values compare
// as int64, any remaining numeric pair compares as float64, Null equals
// Null, Strings compare by length/hash/bytes, and a type mismatch outside
// of the numeric group is always false.
func Equals(a, b Value) bool {
	if a.IsIntegral() && b.IsIntegral() {
		return a.ToInt() == b.ToInt()
	}
	if a.IsNumeric() && b.IsNumeric() {
		return a.ToFloat() == b.ToFloat()
	}
	if a.Kind == Null && b.Kind == Null {
		return true
	}
	if a.IsString() && b.IsString() {
		return stringsEqual(a.obj, b.obj)
	}
	return false
}

func stringsEqual(a, b *String) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return a.Length() == b.Length() && a.Hash == b.Hash && string(a.Bytes) == string(b.Bytes)
}

// LessThan and GreaterThan compare through AsNumber, per the original
// VM's asNumber-based ordering.
func LessThan(a, b Value) bool    { return a.AsNumber() < b.AsNumber() }
func GreaterThan(a, b Value) bool { return a.AsNumber() > b.AsNumber() }

// Format implements fmt.Formatter so Values print the same way OP_PRINT
// does, which is convenient for logging and test failure messages.
func (v Value) Format(f fmt.State, verb rune) {
	fmt.Fprint(f, v.Display())
}

// Display renders v exactly as OP_PRINT would, without allocating a
// String object or touching the intern table.
func (v Value) Display() string {
	switch v.Kind {
	case Int:
		return strconv.FormatInt(v.num, 10)
	case Float:
		return formatFloat(v.flt)
	case Bool:
		if v.num != 0 {
			return "tru"
		}
		return "fls"
	case Null:
		return "nul"
	case Object:
		if v.obj != nil {
			return string(v.obj.Bytes)
		}
		return ""
	default:
		return "NaN"
	}
}
