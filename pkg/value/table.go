package value

// Table is an open-addressed hash map from *String keys to Values,
// using linear probing and tombstones. It backs two things in the
// VM: the string intern pool (through Interner) and the globals store.
// There is no user-defined local-variable table, since locals live on
// the operand stack by slot.
//
// An entry with a nil key and NullValue is empty. An entry with a nil
// key and any other value (by convention Boolean(true)) is a tombstone:
// a slot that once held a live entry, kept non-empty so probe chains
// that ran through it still terminate correctly.
type Table struct {
	entries  []entry
	count    int // live entries plus tombstones
	occupied int // live entries only
}

type entry struct {
	key   *String
	value Value
}

const tableMaxLoad = 0.75

// NewTable returns an empty Table. Storage is allocated lazily on the
// first Set, mirroring the original VM's capacity-0 initial state.
func NewTable() *Table {
	return &Table{}
}

// Len reports the number of live entries (tombstones are not counted).
func (t *Table) Len() int { return t.occupied }

// findEntry locates the slot key belongs in: the first empty slot or
// matching key found while probing linearly from key's home bucket,
// preferring the earliest tombstone seen along the way so repeated
// insert/delete cycles reclaim space. Key comparison is by pointer
// identity, which is sound only because every key reaching this
// function has gone through interning (see Interner.MakeString).
func findEntry(entries []entry, key *String) *entry {
	capacity := len(entries)
	index := int(key.Hash) % capacity
	var tombstone *entry

	for {
		e := &entries[index]
		if e.key == nil {
			if e.value.Kind == Null {
				if tombstone != nil {
					return tombstone
				}
				return e
			}
			if tombstone == nil {
				tombstone = e
			}
		} else if e.key == key {
			return e
		}
		index = (index + 1) % capacity
	}
}

// Get returns the value stored under key, and whether it was found.
func (t *Table) Get(key *String) (Value, bool) {
	if t.occupied == 0 || len(t.entries) == 0 {
		return NullValue, false
	}
	e := findEntry(t.entries, key)
	if e.key == nil {
		return NullValue, false
	}
	return e.value, true
}

// Set stores value under key, growing the table first if doing so
// would push the load factor past 0.75. Returns true iff key was not
// already present as a live entry, whether it lands in an empty slot or
// reuses a tombstone; only the empty-slot case increments count.
func (t *Table) Set(key *String, val Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*tableMaxLoad {
		t.grow(growCapacity(len(t.entries)))
	}

	e := findEntry(t.entries, key)
	isNewKey := e.key == nil
	if isNewKey {
		if e.value.Kind == Null {
			t.count++
		}
		t.occupied++
	}

	e.key = key
	e.value = val
	return isNewKey
}

// Delete replaces key's entry with a tombstone. Returns false if key
// was not present. The live count (occupied) decreases; count (live +
// tombstones) does not, since the slot remains non-empty.
func (t *Table) Delete(key *String) bool {
	if t.occupied == 0 || len(t.entries) == 0 {
		return false
	}
	e := findEntry(t.entries, key)
	if e.key == nil {
		return false
	}
	e.key = nil
	e.value = Boolean(true)
	t.occupied--
	return true
}

// findString looks up an entry by content rather than pointer identity
// — the only place content comparison is needed, since interning must
// be able to find a prior String before one exists to compare against
// by pointer. Terminates at the first true-empty slot; tombstones do
// not stop the probe.
func (t *Table) findString(data []byte, hash uint32) *String {
	if len(t.entries) == 0 {
		return nil
	}
	capacity := len(t.entries)
	index := int(hash) % capacity

	for {
		e := &t.entries[index]
		if e.key == nil {
			if e.value.Kind == Null {
				return nil
			}
		} else if e.key.Hash == hash && len(e.key.Bytes) == len(data) && string(e.key.Bytes) == string(data) {
			return e.key
		}
		index = (index + 1) % capacity
	}
}

// grow reallocates the entry array at the given capacity, dropping
// tombstones and re-placing every live entry via findEntry, then resets
// count to the number of live entries.
func (t *Table) grow(capacity int) {
	fresh := make([]entry, capacity)
	for i := range fresh {
		fresh[i].value = NullValue
	}

	live := 0
	for _, e := range t.entries {
		if e.key == nil {
			continue
		}
		dst := findEntry(fresh, e.key)
		dst.key = e.key
		dst.value = e.value
		live++
	}

	t.entries = fresh
	t.count = live
	t.occupied = live
}

// growCapacity doubles oldCapacity, with a floor of 8 — the same
// growth policy Block uses for its instruction stream.
func growCapacity(oldCapacity int) int {
	if oldCapacity < 8 {
		return 8
	}
	return oldCapacity * 2
}
