// Package storage writes the observation journal: one JSON line per accepted
// candidate or tab lifecycle event, rotated by date and size.
package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/media_sniffer/internal/types"
)

// Kind labels a journal record.
type Kind string

const (
	KindAccepted  Kind = "accepted"
	KindNavigated Kind = "navigated"
	KindCleared   Kind = "cleared"
	KindClosed    Kind = "closed"
)

// Record is one journal line.
type Record struct {
	ID        string                `json:"id"`
	Timestamp time.Time             `json:"timestamp"`
	Kind      Kind                  `json:"kind"`
	TabID     types.TabID           `json:"tab_id"`
	PageURL   string                `json:"page_url,omitempty"`
	Candidate *types.MediaCandidate `json:"candidate,omitempty"`
}

// NewRecord stamps a record with a fresh ID and the current UTC time.
func NewRecord(kind Kind, tabID types.TabID, pageURL string, cand *types.MediaCandidate) Record {
	return Record{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		TabID:     tabID,
		PageURL:   pageURL,
		Candidate: cand,
	}
}

// Journal handles async writing of JSON lines to date-organized files.
type Journal struct {
	baseDir     string
	maxSizeMB   int
	session     string
	writeCh     chan Record
	done        chan struct{}
	wg          sync.WaitGroup
	closeOnce   sync.Once
	currentDate string
	logger      *lumberjack.Logger
	mu          sync.Mutex
}

// NewJournal starts a journal writing under baseDir/<date>/journal/. Each
// process writes its own file named after a random session ID.
func NewJournal(baseDir string, bufferSize int, maxSizeMB int) *Journal {
	if bufferSize < 1 {
		bufferSize = 1
	}
	j := &Journal{
		baseDir:   baseDir,
		maxSizeMB: maxSizeMB,
		session:   uuid.NewString()[:8],
		writeCh:   make(chan Record, bufferSize),
		done:      make(chan struct{}),
	}

	j.wg.Add(1)
	go j.writeLoop()

	return j
}

// Write queues a record. It never blocks; a full buffer drops the record.
func (j *Journal) Write(rec Record) error {
	select {
	case <-j.done:
		return fmt.Errorf("journal is closed")
	default:
	}
	select {
	case j.writeCh <- rec:
		return nil
	default:
		slog.Warn("journal buffer full, dropping record", "kind", rec.Kind, "tab_id", rec.TabID)
		return fmt.Errorf("buffer full")
	}
}

// Close stops the writer and flushes pending records.
func (j *Journal) Close() error {
	j.closeOnce.Do(func() { close(j.done) })
	j.wg.Wait()

	timeout := time.After(5 * time.Second)
drain:
	for {
		select {
		case rec := <-j.writeCh:
			j.writeRecord(rec)
		case <-timeout:
			slog.Warn("journal close timeout, some records may be lost")
			break drain
		default:
			break drain
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.logger != nil {
		return j.logger.Close()
	}
	return nil
}

func (j *Journal) writeLoop() {
	defer j.wg.Done()

	for {
		select {
		case rec := <-j.writeCh:
			j.writeRecord(rec)
		case <-j.done:
			return
		}
	}
}

func (j *Journal) writeRecord(rec Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		slog.Error("journal marshal failed", "error", err)
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	currentDate := time.Now().UTC().Format("2006-01-02")
	if currentDate != j.currentDate || j.logger == nil {
		j.rotateForDate(currentDate)
	}
	if j.logger == nil {
		return
	}

	if _, err := j.logger.Write(append(data, '\n')); err != nil {
		slog.Error("journal write failed", "error", err)
	}
}

func (j *Journal) rotateForDate(date string) {
	if j.logger != nil {
		j.logger.Close()
		j.logger = nil
	}

	dir := filepath.Join(j.baseDir, date, "journal")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Error("journal mkdir failed", "error", err, "dir", dir)
		return
	}

	filename := filepath.Join(dir, j.session+".jsonl")
	j.logger = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    j.maxSizeMB,
		MaxBackups: 100,
		MaxAge:     30,
		Compress:   false,
		LocalTime:  false,
	}

	j.currentDate = date
	slog.Info("opened journal file", "file", filename)
}

// Path returns the file the journal is currently writing to, or "" before
// the first record.
func (j *Journal) Path() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.logger == nil {
		return ""
	}
	return j.logger.Filename
}
