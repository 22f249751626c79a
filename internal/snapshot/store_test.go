package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgnsrekt/media_sniffer/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "snap"))
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveGetDelete(t *testing.T) {
	s := newTestStore(t)
	st := types.TabMediaState{
		TabID:   "8F3A1C",
		PageURL: "https://www.youtube.com/watch?v=abc",
		Media: []types.MediaCandidate{
			{URL: "https://cdn.example.com/a.mp4", Type: types.MediaVideo, Size: 42},
		},
		LastUpdated: time.Now().UTC().Truncate(time.Second),
	}
	if err := s.Save(st); err != nil {
		t.Fatalf("Save() = %v; want nil", err)
	}

	got, ok, err := s.Get("8F3A1C")
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v; want found", ok, err)
	}
	if got.PageURL != st.PageURL || len(got.Media) != 1 || got.Media[0].Size != 42 {
		t.Fatalf("Get() = %+v; want %+v", got, st)
	}
	if !got.LastUpdated.Equal(st.LastUpdated) {
		t.Fatalf("LastUpdated = %v; want %v", got.LastUpdated, st.LastUpdated)
	}

	if err := s.Delete("8F3A1C"); err != nil {
		t.Fatalf("Delete() = %v; want nil", err)
	}
	if _, ok, _ := s.Get("8F3A1C"); ok {
		t.Fatal("expected state to be gone after Delete")
	}
	if err := s.Delete("8F3A1C"); err != nil {
		t.Fatalf("second Delete() = %v; want nil", err)
	}
}

func TestInvalidTabIDRejected(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []types.TabID{"", "../etc", "a b"} {
		if err := s.Save(types.TabMediaState{TabID: id}); err == nil {
			t.Fatalf("Save(%q) = nil; want error", id)
		}
		if _, _, err := s.Get(id); !errors.Is(err, ErrInvalidID) {
			t.Fatalf("Get(%q) error = %v; want ErrInvalidID", id, err)
		}
	}
}

func TestListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []types.TabID{"A", "B", "C"} {
		if err := s.Save(types.TabMediaState{TabID: id, LastUpdated: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("Save(%s) failed: %v", id, err)
		}
	}
	list, err := s.List()
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(list) != 3 || list[0].TabID != "C" || list[2].TabID != "A" {
		t.Fatalf("List() order = %v", list)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	_ = s.Save(types.TabMediaState{TabID: "old", LastUpdated: now.Add(-time.Hour)})
	_ = s.Save(types.TabMediaState{TabID: "new", LastUpdated: now})

	n, err := s.DeleteOlderThan(now.Add(-30 * time.Minute))
	if err != nil {
		t.Fatalf("DeleteOlderThan() failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("DeleteOlderThan() = %d; want 1", n)
	}
	if _, ok, _ := s.Get("old"); ok {
		t.Fatal("expected old state to be pruned")
	}
	if _, ok, _ := s.Get("new"); !ok {
		t.Fatal("expected new state to survive")
	}
}

func TestReopenKeepsState(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}
	if err := s.Save(types.TabMediaState{TabID: "T1", PageURL: "https://example.com/"}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, DBFile)); err != nil {
		t.Fatalf("expected %s on disk: %v", DBFile, err)
	}

	s2, err := NewStore(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()
	got, ok, err := s2.Get("T1")
	if err != nil || !ok || got.PageURL != "https://example.com/" {
		t.Fatalf("Get() after reopen = %+v, %v, %v", got, ok, err)
	}
}
