// Package snapshot provides deterministic identity and persistence
// scaffolding shared by all retrieval backends: configuration manifests,
// content-addressed snapshot documents, and the artifact codecs
// (float32 matrix and chunk-record list) with atomic publication.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quarrylabs/quarry/internal/corpus"
	qerrors "github.com/quarrylabs/quarry/internal/errors"
)

// idHexLen truncates sha256 digests for artifact file names. 24 hex
// chars (96 bits) is collision-safe for any realistic snapshot count.
const idHexLen = 24

// ConfigurationManifest identifies one backend configuration. Immutable
// once created; ConfigurationID is the cache key for "did this
// configuration change".
type ConfigurationManifest struct {
	ConfigurationID string         `json:"configuration_id"`
	RetrieverID     string         `json:"retriever_id"`
	Name            string         `json:"name"`
	CreatedAt       time.Time      `json:"created_at"`
	Configuration   map[string]any `json:"configuration"`
}

// NewManifest derives the deterministic configuration id from the
// retriever id and the canonicalized configuration JSON. encoding/json
// marshals map keys in sorted order, which provides the canonical form.
func NewManifest(retrieverID, name string, configuration map[string]any) (ConfigurationManifest, error) {
	if configuration == nil {
		configuration = map[string]any{}
	}
	canonical, err := json.Marshal(configuration)
	if err != nil {
		return ConfigurationManifest{}, qerrors.Wrap(qerrors.ErrCodeConfigInvalid, err)
	}

	sum := sha256.Sum256([]byte(retrieverID + "\x00" + string(canonical)))
	return ConfigurationManifest{
		ConfigurationID: hex.EncodeToString(sum[:])[:idHexLen],
		RetrieverID:     retrieverID,
		Name:            name,
		CreatedAt:       time.Now().UTC(),
		Configuration:   configuration,
	}, nil
}

// Snapshot is an immutable, content-addressed materialization of a
// retrieval index for one configuration against one catalog state.
// Written once, read many times; a changed catalog or configuration
// produces a new snapshot id.
type Snapshot struct {
	SnapshotID         string                `json:"snapshot_id"`
	Configuration      ConfigurationManifest `json:"configuration"`
	CorpusURI          string                `json:"corpus_uri"`
	CatalogGeneratedAt time.Time             `json:"catalog_generated_at"`
	CreatedAt          time.Time             `json:"created_at"`
	Artifacts          []string              `json:"snapshot_artifacts"`
	Stats              map[string]string     `json:"stats"`
}

// New derives the snapshot for a configuration against the corpus's
// current catalog state. The id hashes configuration id plus the catalog
// timestamp, so rebuilding from an unchanged catalog reuses the same id
// and byte-identical artifacts.
func New(manifest ConfigurationManifest, c corpus.Corpus) Snapshot {
	catalogAt := c.CatalogGeneratedAt().UTC()
	sum := sha256.Sum256([]byte(manifest.ConfigurationID + "\x00" + catalogAt.Format(time.RFC3339Nano)))
	return Snapshot{
		SnapshotID:         hex.EncodeToString(sum[:])[:idHexLen],
		Configuration:      manifest,
		CorpusURI:          c.URI(),
		CatalogGeneratedAt: catalogAt,
		CreatedAt:          time.Now().UTC(),
		Stats:              map[string]string{},
	}
}

// CheckFresh errors when the corpus catalog moved past the snapshot's
// pinned state. Callers must rebuild rather than query a stale snapshot.
func (s *Snapshot) CheckFresh(c corpus.Corpus) error {
	if !c.CatalogGeneratedAt().UTC().Equal(s.CatalogGeneratedAt) {
		return qerrors.Newf(qerrors.ErrCodeSnapshotStale,
			"snapshot %s is pinned to catalog %s but the corpus catalog is now %s; rebuild required",
			s.SnapshotID,
			s.CatalogGeneratedAt.Format(time.RFC3339Nano),
			c.CatalogGeneratedAt().UTC().Format(time.RFC3339Nano))
	}
	return nil
}

// ArtifactName builds the conventional artifact file name
// <snapshot_id>.<backend_id>.<suffix>.
func (s *Snapshot) ArtifactName(backendID, suffix string) string {
	return fmt.Sprintf("%s.%s.%s", s.SnapshotID, backendID, suffix)
}

// IndexName builds the lexical index file name <snapshot_id>.sqlite.
func (s *Snapshot) IndexName() string {
	return s.SnapshotID + ".sqlite"
}
