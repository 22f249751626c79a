// Package snapshot persists per-tab media state so a reopened popup, or a
// restarted daemon, still sees what was detected.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/dgnsrekt/media_sniffer/internal/types"
)

var tabIDRe = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

var bucketTabs = []byte("tabs")

// DBFile is the database filename inside the store directory.
const DBFile = "tabs.db"

// Store is a bbolt-backed map of tab ID to its last media state.
type Store struct {
	db *bbolt.DB
}

// NewStore opens (or creates) the database under dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot store: mkdir %s: %w", dir, err)
	}
	db, err := bbolt.Open(filepath.Join(dir, DBFile), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("snapshot store: open: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTabs)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("snapshot store: create bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// ErrInvalidID is returned for tab IDs that cannot be used as keys.
var ErrInvalidID = errors.New("snapshot store: invalid tab id")

func validateID(id types.TabID) error {
	if !tabIDRe.MatchString(string(id)) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// Save replaces the stored state for st.TabID.
func (s *Store) Save(st types.TabMediaState) error {
	if err := validateID(st.TabID); err != nil {
		return err
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("snapshot store: marshal: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketTabs).Put([]byte(st.TabID), data); err != nil {
			return fmt.Errorf("snapshot store: put: %w", err)
		}
		return nil
	})
}

// Get returns the stored state for id. The bool is false when nothing is
// stored.
func (s *Store) Get(id types.TabID) (types.TabMediaState, bool, error) {
	if err := validateID(id); err != nil {
		return types.TabMediaState{}, false, err
	}
	var st types.TabMediaState
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketTabs).Get([]byte(id))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &st)
	})
	if err != nil {
		return types.TabMediaState{}, false, fmt.Errorf("snapshot store: read %s: %w", id, err)
	}
	return st, found, nil
}

// List returns every stored state, most recently updated first. Entries that
// fail to decode are skipped.
func (s *Store) List() ([]types.TabMediaState, error) {
	var out []types.TabMediaState
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTabs).ForEach(func(k, v []byte) error {
			var st types.TabMediaState
			if err := json.Unmarshal(v, &st); err != nil {
				return nil
			}
			out = append(out, st)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot store: list: %w", err)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastUpdated.After(out[j].LastUpdated)
	})
	return out, nil
}

// Delete removes the stored state for id. Deleting a missing entry is not an
// error.
func (s *Store) Delete(id types.TabID) error {
	if err := validateID(id); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTabs).Delete([]byte(id))
	})
}

// DeleteOlderThan removes states last updated before cutoff and returns how
// many were removed.
func (s *Store) DeleteOlderThan(cutoff time.Time) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTabs)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var st types.TabMediaState
			if err := json.Unmarshal(v, &st); err != nil || st.LastUpdated.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("snapshot store: prune: %w", err)
	}
	return removed, nil
}
