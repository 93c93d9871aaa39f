package knowledge

import (
	"context"
	"sync"
)

// MemStore is an in-memory Retriever for tests and offline tooling. It
// applies metadata filters but no semantic ranking; documents are returned in
// insertion order.
type MemStore struct {
	mu   sync.Mutex
	docs []Document

	// RetrieveCalls records the filters of every Retrieve invocation.
	RetrieveCalls []Filter

	// RetrieveErr, when set, is returned by every Retrieve call.
	RetrieveErr error
}

var _ Retriever = (*MemStore)(nil)

// NewMemStore creates a store seeded with the given documents.
func NewMemStore(docs ...Document) *MemStore {
	return &MemStore{docs: docs}
}

// Add appends documents to the store.
func (m *MemStore) Add(docs ...Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = append(m.docs, docs...)
}

// Retrieve implements Retriever with exact metadata matching.
func (m *MemStore) Retrieve(_ context.Context, _ string, filter Filter, topK int) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RetrieveCalls = append(m.RetrieveCalls, filter)
	if m.RetrieveErr != nil {
		return nil, m.RetrieveErr
	}

	var out []Document
	for _, doc := range m.docs {
		if filter.NPCID != "" && doc.NPCID != filter.NPCID {
			continue
		}
		if filter.QuestStage != "" && doc.QuestStage != filter.QuestStage {
			continue
		}
		if filter.Location != "" && doc.Location != filter.Location {
			continue
		}
		if filter.Type != "" && doc.Type != filter.Type {
			continue
		}
		out = append(out, doc)
		if topK > 0 && len(out) >= topK {
			break
		}
	}
	return out, nil
}
