package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgnsrekt/media_sniffer/internal/types"
)

func TestJournalWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(dir, 16, 1)

	cand := &types.MediaCandidate{URL: "https://cdn.example.com/a.mp4", Type: types.MediaVideo}
	if err := j.Write(NewRecord(KindAccepted, "T1", "https://example.com/", cand)); err != nil {
		t.Fatalf("Write() = %v", err)
	}
	if err := j.Write(NewRecord(KindClosed, "T1", "", nil)); err != nil {
		t.Fatalf("Write() = %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*", "journal", "*.jsonl"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("journal files = %v, %v; want exactly one", matches, err)
	}

	f, err := os.Open(matches[0])
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer f.Close()

	var recs []Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("line %q is not JSON: %v", sc.Text(), err)
		}
		recs = append(recs, r)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records; want 2", len(recs))
	}
	if recs[0].Kind != KindAccepted || recs[0].Candidate == nil || recs[0].Candidate.URL != cand.URL {
		t.Fatalf("first record = %+v", recs[0])
	}
	if recs[0].ID == "" || recs[0].ID == recs[1].ID {
		t.Fatalf("record IDs = %q, %q; want distinct non-empty", recs[0].ID, recs[1].ID)
	}
	if recs[1].Candidate != nil {
		t.Fatalf("closed record carries a candidate: %+v", recs[1])
	}
}

func TestJournalRejectsWritesAfterClose(t *testing.T) {
	j := NewJournal(t.TempDir(), 4, 1)
	if err := j.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if err := j.Write(NewRecord(KindCleared, "T1", "", nil)); err == nil {
		t.Fatal("expected error writing to closed journal")
	}
	if err := j.Close(); err != nil {
		t.Fatalf("second Close() = %v", err)
	}
}
