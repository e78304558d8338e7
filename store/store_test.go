package store

import "testing"

func TestMemoryReadAbsent(t *testing.T) {
	m := NewMemory()
	v, ok, err := m.Read("missing")
	if err != nil || ok || v != nil {
		t.Fatalf("Read(missing) = %v, %v, %v", v, ok, err)
	}
}

func TestMemoryWriteThenRead(t *testing.T) {
	m := NewMemory()
	if err := m.Write("k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	v, ok, err := m.Read("k")
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("Read(k) = %q, %v, %v", v, ok, err)
	}
}

// TestMemoryWriteCopies checks the store is not aliasing the caller's
// backing array, so later mutation of the slice the caller passed in
// doesn't corrupt a stored value.
func TestMemoryWriteCopies(t *testing.T) {
	m := NewMemory()
	buf := []byte{1, 2, 3}
	if err := m.Write("k", buf); err != nil {
		t.Fatal(err)
	}
	buf[0] = 0xff

	v, ok, err := m.Read("k")
	if err != nil || !ok {
		t.Fatalf("Read(k) = %v, %v, %v", v, ok, err)
	}
	if v[0] != 1 {
		t.Fatalf("stored value mutated by caller: got %x", v)
	}
}

func TestMemoryReadCopies(t *testing.T) {
	m := NewMemory()
	if err := m.Write("k", []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	v, _, err := m.Read("k")
	if err != nil {
		t.Fatal(err)
	}
	v[0] = 0xff

	v2, _, err := m.Read("k")
	if err != nil {
		t.Fatal(err)
	}
	if v2[0] != 1 {
		t.Fatalf("stored value mutated by a previous Read's result: got %x", v2)
	}
}

func TestMemoryLen(t *testing.T) {
	m := NewMemory()
	if m.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", m.Len())
	}
	if err := m.Write("a", []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := m.Write("b", []byte("2")); err != nil {
		t.Fatal(err)
	}
	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}
	if err := m.Write("a", []byte("3")); err != nil {
		t.Fatal(err)
	}
	if m.Len() != 2 {
		t.Fatalf("Len() after overwrite = %d, want 2", m.Len())
	}
}
