package gpu

import "sync"

// StringTable assigns a dense, stable float id to every string literal
// it sees. GLSL has no string type, so string values travel through
// shaders as these floats and string equality becomes float equality.
//
// Ids are assigned on first sight and never change or get reclaimed:
// the same string always encodes to the same float for the lifetime of
// the table. Share one table across every compilation whose outputs
// may be compared against each other.
type StringTable struct {
	mu  sync.Mutex
	ids map[string]float64
}

// NewStringTable returns an empty string table.
func NewStringTable() *StringTable {
	return &StringTable{
		ids: make(map[string]float64),
	}
}

// Float returns the stable float id of the string, assigning the next
// dense id if the string has not been seen before.
func (t *StringTable) Float(s string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.ids[s]; ok {
		return id
	}
	id := float64(len(t.ids))
	t.ids[s] = id
	return id
}

// Len is the number of distinct strings in the table.
func (t *StringTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ids)
}
