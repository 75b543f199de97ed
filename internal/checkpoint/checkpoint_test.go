package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStoreAt(t.TempDir())
}

func TestSaveAndLoad(t *testing.T) {
	s := testStore(t)
	cp := &Checkpoint{
		Timestamp: time.Now().UTC(),
		PlanHash:  "abc123",
		Completed: []string{"install:ripgrep", "install:python-venv"},
		Failed:    []string{"install:black"},
	}

	if err := s.Save("/repo", cp); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, ok, err := s.Load("/repo", "abc123")
	if err != nil || !ok {
		t.Fatalf("Load() = %v, %v, %v, want checkpoint", got, ok, err)
	}
	if got.PlanHash != "abc123" || len(got.Completed) != 2 || len(got.Failed) != 1 {
		t.Errorf("Load() = %+v, round trip mismatch", got)
	}
	if !got.Done("install:ripgrep") {
		t.Error("Done(install:ripgrep) = false, want true")
	}
	if got.Done("install:black") {
		t.Error("Done(install:black) = true for a failed step")
	}
}

func TestLoadHashMismatch(t *testing.T) {
	s := testStore(t)
	if err := s.Save("/repo", &Checkpoint{PlanHash: "old"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	_, ok, err := s.Load("/repo", "new")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ok {
		t.Error("Load() honored a checkpoint with a stale plan hash")
	}
}

func TestLoadMissing(t *testing.T) {
	s := testStore(t)
	_, ok, err := s.Load("/repo", "any")
	if err != nil || ok {
		t.Errorf("Load() = %v, %v, want absent without error", ok, err)
	}
}

func TestLoadCorrupt(t *testing.T) {
	s := testStore(t)
	if err := os.MkdirAll(filepath.Dir(s.Path("/repo")), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.Path("/repo"), []byte("not json{"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, ok, err := s.Load("/repo", "any")
	if err != nil || ok {
		t.Errorf("Load() = %v, %v, corrupt checkpoint must be treated as absent", ok, err)
	}
}

func TestDistinctReposDistinctFiles(t *testing.T) {
	s := testStore(t)
	if s.Path("/repo/a") == s.Path("/repo/b") {
		t.Error("two repositories share a checkpoint path")
	}

	if err := s.Save("/repo/a", &Checkpoint{PlanHash: "ha"}); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Load("/repo/b", "ha"); ok {
		t.Error("checkpoint for /repo/a visible to /repo/b")
	}
}

func TestClear(t *testing.T) {
	s := testStore(t)
	if err := s.Save("/repo", &Checkpoint{PlanHash: "h"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear("/repo"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, ok, _ := s.Load("/repo", "h"); ok {
		t.Error("checkpoint survived Clear()")
	}
	if err := s.Clear("/repo"); err != nil {
		t.Errorf("Clear() of absent checkpoint error = %v, want nil", err)
	}
}
