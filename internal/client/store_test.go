package client

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "session.json")
	fs := NewFileStore(path)

	// Missing file reads as "no session", not an error.
	sess, err := fs.Load()
	if err != nil || sess != nil {
		t.Fatalf("Load() on empty store = %v, %v", sess, err)
	}

	want := &Session{
		AccessToken:  "acc",
		RefreshToken: "ref",
		User:         &User{ID: 7, Username: "carol"},
	}
	if err := fs.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := fs.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.AccessToken != "acc" || got.RefreshToken != "ref" || got.User.Username != "carol" {
		t.Fatalf("loaded session = %+v", got)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("session file mode = %o, want 600", perm)
	}

	if err := fs.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if sess, _ := fs.Load(); sess != nil {
		t.Fatal("session survived Clear")
	}
	// Clearing twice is fine.
	if err := fs.Clear(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(path).Load(); err == nil {
		t.Fatal("expected error for corrupt session file")
	}
}

func TestMemStoreCopies(t *testing.T) {
	ms := NewMemStore()
	s := &Session{AccessToken: "a"}
	if err := ms.Save(s); err != nil {
		t.Fatal(err)
	}
	s.AccessToken = "mutated"

	got, err := ms.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got.AccessToken != "a" {
		t.Fatalf("store shared memory with caller: %+v", got)
	}
}
