package tokenstore

import (
	"os"
	"path/filepath"
	"testing"
)

type store interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

func TestStores(t *testing.T) {
	tests := []struct {
		name  string
		store store
	}{
		{name: "file", store: NewFile(filepath.Join(t.TempDir(), "nested", "session"))},
		{name: "memory", store: &Memory{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tok, err := tt.store.Load(); err != nil || tok != "" {
				t.Fatalf("Load() = %q, %v; want empty token", tok, err)
			}
			if err := tt.store.Save("tok-1"); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if err := tt.store.Save("tok-2"); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if tok, err := tt.store.Load(); err != nil || tok != "tok-2" {
				t.Fatalf("Load() = %q, %v; want %q", tok, err, "tok-2")
			}
			if err := tt.store.Clear(); err != nil {
				t.Fatalf("Clear() error = %v", err)
			}
			if err := tt.store.Clear(); err != nil {
				t.Fatalf("second Clear() error = %v", err)
			}
			if tok, err := tt.store.Load(); err != nil || tok != "" {
				t.Fatalf("Load() after Clear() = %q, %v; want empty token", tok, err)
			}
		})
	}
}

func TestFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session")
	if err := NewFile(path).Save("tok"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("session file mode = %o, want 600", perm)
	}
}
