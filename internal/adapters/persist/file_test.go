package persist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileSinkSaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data", "rooms.json")
	s, err := NewFileSink(path)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Load(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.Save(context.Background(), []byte(`[1]`)); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(context.Background(), []byte(`[2]`)); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(context.Background())
	if err != nil || string(got) != `[2]` {
		t.Fatalf("expected last save, got %q %v", got, err)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestFileSinkWithPersister(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rooms.json")
	s, err := NewFileSink(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := NewPersister(s, seeded(), 0).Save(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}
	p := NewPersister(s, seeded(), 0)
	if n := p.Load(context.Background()); n != 0 {
		t.Fatalf("corrupt file must be tolerated, got %d rooms", n)
	}
}
