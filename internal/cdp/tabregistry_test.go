package cdp

import (
	"testing"
	"time"

	"github.com/dgnsrekt/media_sniffer/internal/types"
)

var _ types.TabInfoProvider = (*TabRegistry)(nil)

func TestTabRegistryKeepsAttachTime(t *testing.T) {
	r := NewTabRegistry()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	r.Register("B", "https://example.com/b", "B page")
	now = now.Add(time.Minute)
	r.Register("A", "https://example.com/a", "")
	now = now.Add(time.Minute)
	got := r.Register("B", "https://example.com/b2", "")

	if !got.AttachedAt.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("AttachedAt = %v; want first registration time", got.AttachedAt)
	}
	if got.Title != "B page" || got.URL != "https://example.com/b2" {
		t.Fatalf("Register() = %+v; want updated URL and kept title", got)
	}

	list := r.List()
	if len(list) != 2 || list[0].TargetID != "B" || list[1].TargetID != "A" {
		t.Fatalf("List() = %+v; want B then A", list)
	}

	info, ok := r.GetByStringID("A")
	if !ok || info.URL != "https://example.com/a" {
		t.Fatalf("GetByStringID(A) = %+v, %v", info, ok)
	}
	info.URL = "mutated"
	if again, _ := r.GetByStringID("A"); again.URL == "mutated" {
		t.Fatal("GetByStringID returned shared state")
	}
}

func TestTabRegistryRemove(t *testing.T) {
	r := NewTabRegistry()
	r.Register("A", "https://example.com", "")
	if !r.Remove("A") {
		t.Fatal("Remove(A) = false; want true")
	}
	if r.Remove("A") {
		t.Fatal("second Remove(A) = true; want false")
	}
	if r.Count() != 0 {
		t.Fatalf("Count() = %d; want 0", r.Count())
	}
	if _, ok := r.GetByStringID("A"); ok {
		t.Fatal("removed tab still found")
	}
}
