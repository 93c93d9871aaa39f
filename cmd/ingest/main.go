// Command ingest loads authored knowledge packs (JSON or YAML document
// lists) into the pgvector-backed knowledge store, embedding each document
// on the way in.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"

	"github.com/questforge/dialogue-engine/internal/config"
	"github.com/questforge/dialogue-engine/internal/logger"
	"github.com/questforge/dialogue-engine/internal/storage"
	"github.com/questforge/dialogue-engine/pkg/embeddings"
	embollama "github.com/questforge/dialogue-engine/pkg/embeddings/ollama"
	embopenai "github.com/questforge/dialogue-engine/pkg/embeddings/openai"
	"github.com/questforge/dialogue-engine/pkg/knowledge"
)

func main() {
	var (
		path    = flag.String("path", "", "knowledge pack file or directory (.json/.yaml)")
		replace = flag.Bool("replace", false, "delete existing documents for each NPC in the pack first")
		dryRun  = flag.Bool("dry-run", false, "parse and validate without writing")
	)
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg)

	if *path == "" {
		log.Error("Missing -path argument")
		os.Exit(1)
	}

	docs, err := loadPack(*path)
	if err != nil {
		log.Error("Failed to load knowledge pack", "path", *path, "error", err)
		os.Exit(1)
	}
	log.Info("Knowledge pack loaded", "path", *path, "documents", len(docs))

	if *dryRun {
		log.Info("Dry run complete")
		return
	}

	var embedder embeddings.Provider
	switch strings.ToLower(cfg.EmbeddingProvider) {
	case "openai":
		embedder, err = embopenai.New(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.OpenAIBaseURL, 30*time.Second)
	default:
		embedder, err = embollama.New(cfg.OllamaURL, cfg.EmbeddingModel, 30*time.Second)
	}
	if err != nil {
		log.Error("Failed to initialize embedding provider", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Error("Failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := storage.NewKnowledgeStore(pool, embedder, log)
	if err := store.EnsureSchema(ctx, embedder.Dimensions()); err != nil {
		log.Error("Failed to ensure schema", "error", err)
		os.Exit(1)
	}

	if *replace {
		for _, npcID := range npcIDs(docs) {
			deleted, err := store.DeleteByNPC(ctx, npcID)
			if err != nil {
				log.Error("Failed to delete existing documents", "npc_id", npcID, "error", err)
				os.Exit(1)
			}
			log.Info("Existing documents deleted", "npc_id", npcID, "count", deleted)
		}
	}

	for i, doc := range docs {
		if doc.ID == "" {
			doc.ID = fmt.Sprintf("%s:%s:%d", doc.NPCID, doc.Type, i)
		}
		vec, err := embedder.Embed(ctx, embedText(doc))
		if err != nil {
			log.Error("Failed to embed document", "id", doc.ID, "error", err)
			os.Exit(1)
		}
		if err := store.Upsert(ctx, doc, vec); err != nil {
			log.Error("Failed to store document", "id", doc.ID, "error", err)
			os.Exit(1)
		}
	}

	log.Info("Ingest complete", "documents", len(docs))
}

// loadPack reads one file or every .json/.yaml/.yml file in a directory.
func loadPack(path string) ([]knowledge.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return loadFile(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var docs []knowledge.Document
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".json", ".yaml", ".yml":
		default:
			continue
		}
		fileDocs, err := loadFile(filepath.Join(path, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Name(), err)
		}
		docs = append(docs, fileDocs...)
	}
	return docs, nil
}

func loadFile(path string) ([]knowledge.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// YAML packs are decoded generically and routed through the JSON
	// unmarshaler so document validation applies uniformly.
	if ext := filepath.Ext(path); ext == ".yaml" || ext == ".yml" {
		var generic any
		if err := yaml.Unmarshal(raw, &generic); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		raw, err = json.Marshal(generic)
		if err != nil {
			return nil, fmt.Errorf("convert yaml: %w", err)
		}
	}

	var docs []knowledge.Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("parse documents: %w", err)
	}
	return docs, nil
}

// embedText picks the text a document is indexed under.
func embedText(doc knowledge.Document) string {
	if doc.Text != "" {
		return doc.Text
	}
	parts := []string{doc.NPCID, string(doc.Type)}
	switch {
	case doc.Trigger != nil:
		parts = append(parts, doc.Trigger.Name)
		parts = append(parts, doc.Trigger.RequiredText...)
	case doc.Flag != nil:
		parts = append(parts, doc.Flag.Name)
		parts = append(parts, doc.Flag.ExamplesPositive...)
	case doc.Meta != nil:
		parts = append(parts, doc.Meta.Trigger, doc.Meta.NPCAction, doc.Meta.NPCEmotion)
	case doc.Forbidden != nil:
		parts = append(parts, doc.Forbidden.Keywords...)
		parts = append(parts, doc.Forbidden.Texts...)
	case doc.Dialogue != nil:
		parts = append(parts, doc.Dialogue.Player, doc.Dialogue.NPC)
	case doc.Policy != nil:
		parts = append(parts, doc.Policy.Policy)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func npcIDs(docs []knowledge.Document) []string {
	seen := map[string]bool{}
	var ids []string
	for _, doc := range docs {
		if doc.NPCID != "" && !seen[doc.NPCID] {
			seen[doc.NPCID] = true
			ids = append(ids, doc.NPCID)
		}
	}
	return ids
}
