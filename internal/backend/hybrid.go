package backend

import (
	"context"
	"log/slog"
	"math"

	"github.com/quarrylabs/quarry/internal/budget"
	"github.com/quarrylabs/quarry/internal/corpus"
	qerrors "github.com/quarrylabs/quarry/internal/errors"
	"github.com/quarrylabs/quarry/internal/evidence"
	"github.com/quarrylabs/quarry/internal/snapshot"
)

const (
	hybridID = "hybrid"

	lexicalStageKey   = "lexical"
	embeddingStageKey = "embedding"

	defaultExpansionMultiplier = 5
	weightSumTolerance         = 0.01
)

// HybridBackend composes a lexical child and an embedding child via
// weighted score fusion. It builds no artifacts of its own; the child
// snapshot ids are recorded in the hybrid snapshot's stats and the
// children are reloaded from the snapshot store at query time.
type HybridBackend struct {
	registry *Registry
}

var _ Backend = (*HybridBackend)(nil)

// NewHybridBackend creates the fusion backend resolving children
// through the given registry.
func NewHybridBackend(registry *Registry) *HybridBackend {
	return &HybridBackend{registry: registry}
}

// ID returns "hybrid".
func (h *HybridBackend) ID() string { return hybridID }

type hybridConfig struct {
	LexicalBackend   string
	EmbeddingBackend string

	LexicalWeight   float64
	EmbeddingWeight float64

	// ExpansionMultiplier scales the child budgets so enough raw
	// candidates exist for fusion.
	ExpansionMultiplier int

	LexicalConfiguration   map[string]any
	EmbeddingConfiguration map[string]any
}

func parseHybridConfig(configuration map[string]any) (hybridConfig, error) {
	cfg := hybridConfig{}
	var err error
	if cfg.LexicalBackend, err = cfgString(configuration, "lexical_backend", lexicalID); err != nil {
		return cfg, err
	}
	if cfg.EmbeddingBackend, err = cfgString(configuration, "embedding_backend", embedFileID); err != nil {
		return cfg, err
	}
	if cfg.LexicalBackend == hybridID || cfg.EmbeddingBackend == hybridID {
		return cfg, qerrors.ConfigError("hybrid cannot compose itself as a child backend")
	}
	if cfg.LexicalWeight, err = cfgFloat(configuration, "lexical_weight", 0.5); err != nil {
		return cfg, err
	}
	if cfg.EmbeddingWeight, err = cfgFloat(configuration, "embedding_weight", 0.5); err != nil {
		return cfg, err
	}
	if cfg.LexicalWeight < 0 || cfg.EmbeddingWeight < 0 {
		return cfg, qerrors.ConfigError("fusion weights must be >= 0, got lexical %v and embedding %v",
			cfg.LexicalWeight, cfg.EmbeddingWeight)
	}
	if sum := cfg.LexicalWeight + cfg.EmbeddingWeight; math.Abs(sum-1.0) > weightSumTolerance {
		return cfg, qerrors.ConfigError("fusion weights must sum to 1.0, got %v", sum)
	}
	if cfg.ExpansionMultiplier, err = cfgInt(configuration, "expansion_multiplier", defaultExpansionMultiplier); err != nil {
		return cfg, err
	}
	if cfg.ExpansionMultiplier < 1 {
		return cfg, qerrors.ConfigError("expansion_multiplier must be >= 1, got %d", cfg.ExpansionMultiplier)
	}
	if cfg.LexicalConfiguration, err = cfgMap(configuration, "lexical_configuration"); err != nil {
		return cfg, err
	}
	if cfg.EmbeddingConfiguration, err = cfgMap(configuration, "embedding_configuration"); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// BuildSnapshot builds both child snapshots and records their ids in the
// hybrid snapshot's stats.
func (h *HybridBackend) BuildSnapshot(ctx context.Context, c corpus.Corpus, name string, configuration map[string]any) (*snapshot.Snapshot, error) {
	cfg, err := parseHybridConfig(configuration)
	if err != nil {
		return nil, err
	}
	lexBackend, err := h.registry.Get(cfg.LexicalBackend)
	if err != nil {
		return nil, err
	}
	embBackend, err := h.registry.Get(cfg.EmbeddingBackend)
	if err != nil {
		return nil, err
	}

	manifest, err := snapshot.NewManifest(hybridID, name, configuration)
	if err != nil {
		return nil, err
	}
	snap := snapshot.New(manifest, c)
	store := snapshot.StoreFor(c.Root())

	return store.BuildOnce(snap.SnapshotID, func() (*snapshot.Snapshot, error) {
		lexSnap, err := lexBackend.BuildSnapshot(ctx, c, name, cfg.LexicalConfiguration)
		if err != nil {
			return nil, err
		}
		embSnap, err := embBackend.BuildSnapshot(ctx, c, name, cfg.EmbeddingConfiguration)
		if err != nil {
			return nil, err
		}

		snap.Stats["lexical_backend"] = cfg.LexicalBackend
		snap.Stats["embedding_backend"] = cfg.EmbeddingBackend
		snap.Stats["lexical_snapshot_id"] = lexSnap.SnapshotID
		snap.Stats["embedding_snapshot_id"] = embSnap.SnapshotID

		if err := store.Save(&snap); err != nil {
			return nil, err
		}
		slog.Debug("hybrid_snapshot_built",
			slog.String("snapshot_id", snap.SnapshotID),
			slog.String("lexical_snapshot_id", lexSnap.SnapshotID),
			slog.String("embedding_snapshot_id", embSnap.SnapshotID))
		return &snap, nil
	})
}

// Query runs both children with an expanded budget, merges candidates by
// item id with per-stage scores, fuses as a weighted sum, and applies
// the original budget.
func (h *HybridBackend) Query(ctx context.Context, c corpus.Corpus, snap *snapshot.Snapshot, queryText string, b budget.Budget) (*evidence.Result, error) {
	cfg, err := parseHybridConfig(snap.Configuration.Configuration)
	if err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if err := snap.CheckFresh(c); err != nil {
		return nil, err
	}

	lexBackend, err := h.registry.Get(cfg.LexicalBackend)
	if err != nil {
		return nil, err
	}
	embBackend, err := h.registry.Get(cfg.EmbeddingBackend)
	if err != nil {
		return nil, err
	}

	store := snapshot.StoreFor(c.Root())
	lexSnap, err := h.childSnapshot(store, snap, "lexical_snapshot_id")
	if err != nil {
		return nil, err
	}
	embSnap, err := h.childSnapshot(store, snap, "embedding_snapshot_id")
	if err != nil {
		return nil, err
	}

	expanded := b.Expand(cfg.ExpansionMultiplier)
	lexRes, err := lexBackend.Query(ctx, c, lexSnap, queryText, expanded)
	if err != nil {
		return nil, err
	}
	embRes, err := embBackend.Query(ctx, c, embSnap, queryText, expanded)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]evidence.Evidence)
	lexScores := make(map[string]float64)
	embScores := make(map[string]float64)
	for _, ev := range lexRes.Evidence {
		if score, seen := lexScores[ev.ItemID]; !seen || ev.Score > score {
			lexScores[ev.ItemID] = ev.Score
		}
		if _, exists := merged[ev.ItemID]; !exists {
			merged[ev.ItemID] = ev
		}
	}
	for _, ev := range embRes.Evidence {
		if score, seen := embScores[ev.ItemID]; !seen || ev.Score > score {
			embScores[ev.ItemID] = ev.Score
		}
		if _, exists := merged[ev.ItemID]; !exists {
			merged[ev.ItemID] = ev
		}
	}

	candidates := make([]evidence.Evidence, 0, len(merged))
	for itemID, base := range merged {
		lexScore := lexScores[itemID]
		embScore := embScores[itemID]

		fused := base
		fused.Score = lexScore*cfg.LexicalWeight + embScore*cfg.EmbeddingWeight
		fused.Rank = 0
		fused.Stage = hybridID
		fused.StageScores = map[string]float64{
			lexicalStageKey:   lexScore,
			embeddingStageKey: embScore,
		}
		fused.ConfigurationID = snap.Configuration.ConfigurationID
		fused.SnapshotID = snap.SnapshotID
		candidates = append(candidates, fused)
	}

	evidence.SortCandidates(candidates)
	kept := b.Apply(candidates)
	res := evidence.NewResult(queryText, snap.SnapshotID, snap.Configuration.ConfigurationID, hybridID, len(candidates), kept)
	res.Budget = b
	return res, nil
}

func (h *HybridBackend) childSnapshot(store *snapshot.Store, snap *snapshot.Snapshot, statKey string) (*snapshot.Snapshot, error) {
	id, ok := snap.Stats[statKey]
	if !ok || id == "" {
		return nil, qerrors.ConsistencyError(
			"hybrid snapshot %s is missing the %s stat; rebuild required", snap.SnapshotID, statKey)
	}
	return store.Load(id)
}
