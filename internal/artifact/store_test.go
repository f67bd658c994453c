package artifact

import (
	"os"
	"testing"
)

func TestPutPathRelease(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	h, err := s.Put([]byte("jpeg-bytes"), 3)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if h.ID == "" || h.Ordinal != 3 {
		t.Fatalf("handle = %+v", h)
	}

	path, err := s.Path(h)
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Fatalf("artifact bytes = %q", data)
	}

	s.Release(h)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("artifact file still present after release: %v", err)
	}
	if _, err := s.Path(h); err == nil {
		t.Fatal("released handle still resolves")
	}
	if s.Len() != 0 {
		t.Fatalf("len = %d after release", s.Len())
	}

	// Releasing twice must be harmless.
	s.Release(h)
}

func TestReleaseUnknownHandle(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	s.Release(Handle{ID: "missing"})
	if s.Len() != 0 {
		t.Fatalf("len = %d", s.Len())
	}
}
