package badgerstore

import (
	"path/filepath"
	"testing"
)

func TestOpenWriteReadClose(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Write("k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	v, ok, err := s.Read("k")
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("Read(k) = %q, %v, %v", v, ok, err)
	}
}

func TestReadAbsentKey(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	v, ok, err := s.Read("missing")
	if err != nil || ok || v != nil {
		t.Fatalf("Read(missing) = %v, %v, %v", v, ok, err)
	}
}

func TestReopenPersistsData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db")

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Write("k", []byte("persisted")); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	v, ok, err := reopened.Read("k")
	if err != nil || !ok || string(v) != "persisted" {
		t.Fatalf("Read(k) after reopen = %q, %v, %v", v, ok, err)
	}
}
