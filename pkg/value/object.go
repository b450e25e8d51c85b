package value

import "hash/fnv"

// ObjType tags the kind of heap object an Object header describes.
// String is the only object kind this revision supports — the original
// C VM's ObjType enum had the same single member for the same reason.
type ObjType byte

// ObjString marks an Object as a String.
const ObjString ObjType = 0

// Object is the common header every heap entity carries: a type tag.
// In the original C VM this header also carries the intrusive
// free-list's forward link; since String is the only object kind that
// exists, the link itself lives directly on String (see String.next)
// rather than behind a second indirection Go has no cheap way to
// recover a concrete type from.
type Object struct {
	Type ObjType
}

// String is the only heap object kind. Bytes is immutable once
// constructed; OwnsBytes records whether Release should consider the
// backing array exclusively owned by this String (as opposed to a slice
// borrowed from the loader's scratch buffer or a literal source). next
// is this String's link in the Interner's intrusive object free-list.
//
// Invariant: every String reachable from the VM is also present in the
// Interner's intern table, and no two live Strings ever hold identical
// byte content — see Interner.MakeString.
type String struct {
	Object
	Bytes     []byte
	Hash      uint32
	OwnsBytes bool
	next      *String
}

// Length returns the byte length of the string content.
func (s *String) Length() int { return len(s.Bytes) }

// hashBytes computes the 32-bit FNV-1a hash of data using the exact
// offset basis (0x811c9dc5) and prime (0x01000193) spec'd for string
// interning; hash/fnv's New32a implements this algorithm precisely, so
// there is no reason to hand-roll the multiply-xor loop here.
func hashBytes(data []byte) uint32 {
	h := fnv.New32a()
	h.Write(data)
	return h.Sum32()
}

// Interner owns both the VM's string intern table and its object
// free-list. Every String in the system — constant-pool strings loaded
// from bytecode, and strings produced by concatenation, multiplication,
// input, numeric coercion, or subscript — is constructed through it.
type Interner struct {
	Strings *Table
	objects *String // head of the intrusive object free-list
}

// NewInterner creates an Interner with an empty intern table and an
// empty object free-list.
func NewInterner() *Interner {
	return &Interner{Strings: NewTable()}
}

// MakeString is the core interning constructor: given ownership of
// data (ownsBytes) and its content, it hashes the bytes, looks them up
// in the intern table, and either returns the existing String
// (discarding data, since the caller relinquished it) or allocates,
// registers, and interns a new one.
func (in *Interner) MakeString(ownsBytes bool, data []byte) *String {
	hash := hashBytes(data)
	if existing := in.Strings.findString(data, hash); existing != nil {
		return existing
	}

	s := &String{
		Object:    Object{Type: ObjString},
		Bytes:     data,
		Hash:      hash,
		OwnsBytes: ownsBytes,
		next:      in.objects,
	}
	in.objects = s
	in.Strings.Set(s, NullValue)
	return s
}

// MakeBorrowed interns data as a String that does not own its backing
// array (the bytes live in a literal or a loader scratch buffer that
// outlives the VM run).
func (in *Interner) MakeBorrowed(data []byte) *String { return in.MakeString(false, data) }

// MakeOwned interns data as a String that owns its backing array —
// used by every string-producing opcode (concatenation, multiplication,
// input, numeric-to-string coercion, subscript).
func (in *Interner) MakeOwned(data []byte) *String { return in.MakeString(true, data) }

// Empty returns the interned empty string, used by string
// multiplication with a non-positive repeat count.
func (in *Interner) Empty() *String { return in.MakeBorrowed(nil) }

// Release walks the object free-list once, as the VM does at shutdown.
// Go's garbage collector reclaims the backing memory regardless of what
// happens here; this walk exists to preserve the spec's "single release
// path, ownership respected" invariant in a form that's testable — each
// owned String's Bytes is cleared, so a use-after-release bug in the VM
// would show up as a zero-length read instead of silently working.
func (in *Interner) Release() {
	for s := in.objects; s != nil; s = s.next {
		if s.OwnsBytes {
			s.Bytes = nil
		}
	}
	in.objects = nil
}
