package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio"
	"golang.org/x/sync/singleflight"

	qerrors "github.com/quarrylabs/quarry/internal/errors"
)

// Store persists snapshot documents under the corpus artifact root as
// <snapshot_id>.snapshot.json. Documents are written once and never
// mutated; hybrid queries reload child snapshots through the store.
type Store struct {
	root string

	// group deduplicates concurrent in-process builds of one snapshot id.
	group singleflight.Group
}

// NewStore creates a store rooted at the corpus artifact directory.
func NewStore(root string) *Store {
	return &Store{root: root}
}

var (
	storesMu sync.Mutex
	stores   = map[string]*Store{}
)

// StoreFor returns the process-wide store for an artifact root.
// Sharing one store per root is what lets BuildOnce collapse concurrent
// builds of the same snapshot id onto a single execution.
func StoreFor(root string) *Store {
	key := filepath.Clean(root)
	storesMu.Lock()
	defer storesMu.Unlock()
	s, ok := stores[key]
	if !ok {
		s = NewStore(key)
		stores[key] = s
	}
	return s
}

// Path returns the document path for a snapshot id.
func (s *Store) Path(snapshotID string) string {
	return filepath.Join(s.root, snapshotID+".snapshot.json")
}

// Save writes the snapshot document atomically.
func (s *Store) Save(snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return qerrors.Wrap(qerrors.ErrCodeBuildFailed, err)
	}
	if err := renameio.WriteFile(s.Path(snap.SnapshotID), data, 0o644); err != nil {
		return qerrors.Wrap(qerrors.ErrCodeBuildFailed, err)
	}
	return nil
}

// Load reads a snapshot document by id.
func (s *Store) Load(snapshotID string) (*Snapshot, error) {
	data, err := os.ReadFile(s.Path(snapshotID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, qerrors.New(qerrors.ErrCodeSnapshotNotFound,
				fmt.Sprintf("snapshot %s not found under %s", snapshotID, s.root), err)
		}
		return nil, qerrors.Wrap(qerrors.ErrCodeArtifactCorrupt, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, qerrors.Newf(qerrors.ErrCodeArtifactCorrupt,
			"snapshot document %s: %v", s.Path(snapshotID), err)
	}
	return &snap, nil
}

// Exists reports whether a snapshot document is already materialized.
func (s *Store) Exists(snapshotID string) bool {
	_, err := os.Stat(s.Path(snapshotID))
	return err == nil
}

// BuildOnce runs fn at most once per snapshot id among concurrent
// in-process callers; losers receive the winner's snapshot.
func (s *Store) BuildOnce(snapshotID string, fn func() (*Snapshot, error)) (*Snapshot, error) {
	v, err, _ := s.group.Do(snapshotID, func() (any, error) {
		return fn()
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}
