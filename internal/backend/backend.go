// Package backend implements the retrieval backend family: scan,
// tfvector, lexical (SQLite FTS5), the embedding-index variants, and
// hybrid weighted fusion. Backends share the chunking, embedding,
// snapshot, and budget primitives and differ only in how they rank.
package backend

import (
	"context"
	"sort"
	"strings"

	"github.com/quarrylabs/quarry/internal/budget"
	"github.com/quarrylabs/quarry/internal/corpus"
	"github.com/quarrylabs/quarry/internal/embed"
	qerrors "github.com/quarrylabs/quarry/internal/errors"
	"github.com/quarrylabs/quarry/internal/evidence"
	"github.com/quarrylabs/quarry/internal/snapshot"
)

// Backend is one retrieval strategy. BuildSnapshot materializes
// persistent artifacts keyed by a deterministic snapshot id; Query runs
// any number of times against that snapshot.
type Backend interface {
	// ID returns the registry id.
	ID() string

	// BuildSnapshot validates the configuration eagerly, materializes
	// the backend's artifacts under the corpus root, and persists the
	// snapshot document.
	BuildSnapshot(ctx context.Context, c corpus.Corpus, name string, configuration map[string]any) (*snapshot.Snapshot, error)

	// Query returns ranked, budget-constrained evidence for the query
	// text against a previously built snapshot.
	Query(ctx context.Context, c corpus.Corpus, snap *snapshot.Snapshot, queryText string, b budget.Budget) (*evidence.Result, error)
}

// Registry maps backend ids to implementations. It is constructed once
// at startup and passed by reference; there is no import-time global
// registry.
type Registry struct {
	backends map[string]Backend
}

// NewRegistry builds the default registry over the given embedding
// provider. Hybrid resolves its children through the same registry.
func NewRegistry(embedder embed.Embedder) *Registry {
	r := &Registry{backends: make(map[string]Backend)}
	r.Register(NewScanBackend())
	r.Register(NewTFVectorBackend())
	r.Register(NewLexicalBackend())
	r.Register(NewEmbedFileBackend(embedder))
	r.Register(NewEmbedMemBackend(embedder))
	r.Register(NewEmbedHNSWBackend(embedder))
	r.Register(NewHybridBackend(r))
	return r
}

// Register adds a backend, replacing any existing entry with the same id.
func (r *Registry) Register(b Backend) {
	r.backends[b.ID()] = b
}

// Get resolves a backend id. Unknown ids fail with a lookup error
// naming every registered id.
func (r *Registry) Get(id string) (Backend, error) {
	b, ok := r.backends[id]
	if !ok {
		return nil, qerrors.Newf(qerrors.ErrCodeUnknownBackend,
			"unknown backend %q, known backends: %s", id, strings.Join(r.IDs(), ", "))
	}
	return b, nil
}

// IDs returns the registered backend ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.backends))
	for id := range r.backends {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
