package knowledge

import (
	"context"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Filter narrows a retrieval to documents matching the given metadata.
// Empty fields match everything; QuestStage/Location may be WildcardAny to
// select wildcard-scoped documents explicitly.
type Filter struct {
	NPCID      string
	QuestStage string
	Location   string
	Type       DocType
}

// Retriever is the knowledge-retrieval collaborator contract. A query of ""
// requests a filterless listing capped at topK.
type Retriever interface {
	Retrieve(ctx context.Context, query string, filter Filter, topK int) ([]Document, error)
}

// DefaultBundleTopK caps each of the four retrieval variants on a bundle load.
const DefaultBundleTopK = 50

// Bundler loads and caches per-NPC knowledge bundles. The cache is a bounded
// LRU keyed by (npc_id, quest_stage, location); concurrent first loads of the
// same key are idempotent, so no singleflight is needed.
type Bundler struct {
	retriever Retriever
	cache     *lru.Cache[string, Bundle]
	topK      int
	logger    *slog.Logger
}

// NewBundler creates a bundler with a bounded cache. cacheSize must be
// positive; topK <= 0 selects DefaultBundleTopK.
func NewBundler(retriever Retriever, cacheSize int, topK int, logger *slog.Logger) (*Bundler, error) {
	if retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	cache, err := lru.New[string, Bundle](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create bundle cache: %w", err)
	}
	if topK <= 0 {
		topK = DefaultBundleTopK
	}
	return &Bundler{
		retriever: retriever,
		cache:     cache,
		topK:      topK,
		logger:    logger,
	}, nil
}

// LoadBundle returns the knowledge bundle for the NPC at the given quest
// stage and location. A cache miss issues four retrievals: exact match,
// stage-wildcard, location-wildcard, and both-wildcard, concatenated and
// grouped by document type.
func (b *Bundler) LoadBundle(ctx context.Context, npcID, questStage, location string) (Bundle, error) {
	key := bundleKey(npcID, questStage, location)
	if bundle, ok := b.cache.Get(key); ok {
		b.logger.Debug("Bundle cache hit", "key", key, "docs", bundle.Size())
		return bundle, nil
	}

	variants := []Filter{
		{NPCID: npcID, QuestStage: questStage, Location: location},
		{NPCID: npcID, QuestStage: WildcardAny, Location: location},
		{NPCID: npcID, QuestStage: questStage, Location: WildcardAny},
		{NPCID: npcID, QuestStage: WildcardAny, Location: WildcardAny},
	}

	query := fmt.Sprintf("%s:bundle", npcID)
	bundle := make(Bundle)
	total := 0
	for _, filter := range variants {
		docs, err := b.retriever.Retrieve(ctx, query, filter, b.topK)
		if err != nil {
			return nil, fmt.Errorf("failed to load bundle %s: %w", key, err)
		}
		for _, doc := range docs {
			bundle[doc.Type] = append(bundle[doc.Type], doc)
			total++
		}
	}

	b.cache.Add(key, bundle)
	b.logger.Debug("Bundle loaded", "key", key, "docs", total, "types", len(bundle))
	return bundle, nil
}

func bundleKey(npcID, questStage, location string) string {
	return fmt.Sprintf("%s:%s:%s", npcID, questStage, location)
}
