// Package storage provides the persistent backends of the dialogue engine:
// a pgvector-backed knowledge store and a Redis-backed session turn log.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/questforge/dialogue-engine/pkg/embeddings"
	"github.com/questforge/dialogue-engine/pkg/knowledge"
)

// KnowledgeStore is a knowledge.Retriever backed by a PostgreSQL documents
// table with a pgvector index. Document bodies are stored as jsonb alongside
// denormalized routing metadata columns used for filtering.
//
// All methods are safe for concurrent use.
type KnowledgeStore struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
	logger   *slog.Logger
}

// NewKnowledgeStore creates a knowledge store over an existing pool. The
// embedder is used to vectorize retrieval queries; a nil embedder restricts
// the store to filter-ordered listings.
func NewKnowledgeStore(pool *pgxpool.Pool, embedder embeddings.Provider, logger *slog.Logger) *KnowledgeStore {
	return &KnowledgeStore{
		pool:     pool,
		embedder: embedder,
		logger:   logger,
	}
}

var _ knowledge.Retriever = (*KnowledgeStore)(nil)

// EnsureSchema creates the documents table and its vector index. dimensions
// must match the embedding provider in use.
func (s *KnowledgeStore) EnsureSchema(ctx context.Context, dimensions int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS knowledge_documents (
			id          TEXT PRIMARY KEY,
			npc_id      TEXT NOT NULL,
			quest_stage TEXT NOT NULL DEFAULT 'any',
			location    TEXT NOT NULL DEFAULT 'any',
			doc_type    TEXT NOT NULL,
			body        JSONB NOT NULL,
			embedding   vector(%d)
		)`, dimensions),
		`CREATE INDEX IF NOT EXISTS knowledge_documents_npc_idx
			ON knowledge_documents (npc_id, quest_stage, location)`,
		`CREATE INDEX IF NOT EXISTS knowledge_documents_embedding_idx
			ON knowledge_documents USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("knowledge store: ensure schema: %w", err)
		}
	}
	return nil
}

// Upsert stores a document with its precomputed embedding. A document with
// the same ID is completely replaced.
func (s *KnowledgeStore) Upsert(ctx context.Context, doc knowledge.Document, embedding []float32) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("knowledge store: upsert: %w", err)
	}
	body, err := json.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("knowledge store: marshal document: %w", err)
	}

	questStage := doc.QuestStage
	if questStage == "" {
		questStage = knowledge.WildcardAny
	}
	location := doc.Location
	if location == "" {
		location = knowledge.WildcardAny
	}

	const q = `
		INSERT INTO knowledge_documents
		    (id, npc_id, quest_stage, location, doc_type, body, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
		    npc_id      = EXCLUDED.npc_id,
		    quest_stage = EXCLUDED.quest_stage,
		    location    = EXCLUDED.location,
		    doc_type    = EXCLUDED.doc_type,
		    body        = EXCLUDED.body,
		    embedding   = EXCLUDED.embedding`

	var vec any
	if embedding != nil {
		vec = pgvector.NewVector(embedding)
	}
	_, err = s.pool.Exec(ctx, q, doc.ID, doc.NPCID, questStage, location, string(doc.Type), body, vec)
	if err != nil {
		return fmt.Errorf("knowledge store: upsert document: %w", err)
	}
	return nil
}

// Retrieve implements knowledge.Retriever. A non-empty query is embedded and
// results are ordered by ascending cosine distance; an empty query yields a
// filter-ordered listing. Empty filter fields match everything.
func (s *KnowledgeStore) Retrieve(ctx context.Context, query string, filter knowledge.Filter, topK int) ([]knowledge.Document, error) {
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	orderBy := "id"
	if query != "" && s.embedder != nil {
		vec, err := s.embedder.Embed(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("knowledge store: embed query: %w", err)
		}
		orderBy = "embedding <=> " + next(pgvector.NewVector(vec))
	}

	var conditions []string
	if filter.NPCID != "" {
		conditions = append(conditions, "npc_id = "+next(filter.NPCID))
	}
	if filter.QuestStage != "" {
		conditions = append(conditions, "quest_stage = "+next(filter.QuestStage))
	}
	if filter.Location != "" {
		conditions = append(conditions, "location = "+next(filter.Location))
	}
	if filter.Type != "" {
		conditions = append(conditions, "doc_type = "+next(string(filter.Type)))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, "\n  AND ")
	}

	limitArg := next(topK)

	q := fmt.Sprintf(`
		SELECT body
		FROM   knowledge_documents
		%s
		ORDER  BY %s
		LIMIT  %s`, whereClause, orderBy, limitArg)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("knowledge store: retrieve: %w", err)
	}

	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (knowledge.Document, error) {
		var body []byte
		if err := row.Scan(&body); err != nil {
			return knowledge.Document{}, err
		}
		var doc knowledge.Document
		if err := json.Unmarshal(body, &doc); err != nil {
			return knowledge.Document{}, fmt.Errorf("decode document body: %w", err)
		}
		return doc, nil
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge store: scan rows: %w", err)
	}
	if docs == nil {
		docs = []knowledge.Document{}
	}
	return docs, nil
}

// DeleteByNPC removes all documents for one NPC. Used by ingest re-runs.
func (s *KnowledgeStore) DeleteByNPC(ctx context.Context, npcID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM knowledge_documents WHERE npc_id = $1`, npcID)
	if err != nil {
		return 0, fmt.Errorf("knowledge store: delete by npc: %w", err)
	}
	return tag.RowsAffected(), nil
}
