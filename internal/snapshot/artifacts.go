package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/google/renameio"

	"github.com/quarrylabs/quarry/internal/chunk"
	qerrors "github.com/quarrylabs/quarry/internal/errors"
)

// WriteRecords atomically persists chunk records as JSONL, one object
// per line, in chunk order (parallel to the matrix rows).
func WriteRecords(path string, records []chunk.Record) error {
	t, err := renameio.TempFile("", path)
	if err != nil {
		return qerrors.Wrap(qerrors.ErrCodeBuildFailed, err)
	}
	defer t.Cleanup()

	w := bufio.NewWriter(t)
	enc := json.NewEncoder(w)
	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			return qerrors.ConsistencyError("chunk record %d: %v", i, err)
		}
		if err := enc.Encode(rec); err != nil {
			return qerrors.Wrap(qerrors.ErrCodeBuildFailed, err)
		}
	}
	if err := w.Flush(); err != nil {
		return qerrors.Wrap(qerrors.ErrCodeBuildFailed, err)
	}

	if err := t.CloseAtomicallyReplace(); err != nil {
		return qerrors.Wrap(qerrors.ErrCodeBuildFailed, err)
	}
	return nil
}

// ReadRecords loads and validates the chunk-record artifact.
func ReadRecords(path string) ([]chunk.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, qerrors.New(qerrors.ErrCodeArtifactMissing,
				fmt.Sprintf("chunk record artifact %s is missing", path), err)
		}
		return nil, qerrors.Wrap(qerrors.ErrCodeArtifactCorrupt, err)
	}
	defer f.Close()

	var records []chunk.Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for scanner.Scan() {
		line++
		var rec chunk.Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, qerrors.Newf(qerrors.ErrCodeArtifactCorrupt,
				"artifact %s line %d: %v", path, line, err)
		}
		if err := rec.Validate(); err != nil {
			return nil, qerrors.Newf(qerrors.ErrCodeArtifactCorrupt,
				"artifact %s line %d: %v", path, line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeArtifactCorrupt, err)
	}
	return records, nil
}

// WithBuildLock serializes builds of the same snapshot id across
// processes. Artifacts are content-addressed and published atomically,
// so a lost race simply re-produces identical bytes; the lock keeps
// concurrent builders from duplicating the work.
func WithBuildLock(root, snapshotID string, fn func() error) error {
	lock := flock.New(filepath.Join(root, snapshotID+".lock"))
	if err := lock.Lock(); err != nil {
		return qerrors.Wrap(qerrors.ErrCodeBuildFailed, err)
	}
	defer func() { _ = lock.Unlock() }()
	return fn()
}
