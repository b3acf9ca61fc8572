package index

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/markdave123-py/Procura/internal/core"
)

type fakeEmbedder struct {
	err error
}

func (f fakeEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, float32(len(text))}, nil
}

type indexedDoc struct {
	content  string
	metadata map[string]string
	writes   int
}

type fakeVectorStore struct {
	mu   sync.Mutex
	docs map[string]*indexedDoc
	err  error
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{docs: make(map[string]*indexedDoc)}
}

func (f *fakeVectorStore) UpsertDocumentVector(ctx context.Context, key, content string, embedding []float32, metadata map[string]string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[key]
	if !ok {
		d = &indexedDoc{}
		f.docs[key] = d
	}
	d.content = content
	d.metadata = metadata
	d.writes++
	return nil
}

func TestDocumentKey(t *testing.T) {
	if got := DocumentKey("notice-1", "specs.pdf"); got != "notice-1/specs.pdf" {
		t.Errorf("DocumentKey = %q", got)
	}
}

func TestIndexStoresEmbeddedContent(t *testing.T) {
	store := newFakeVectorStore()
	idx := NewVectorIndexer(fakeEmbedder{}, store)

	meta := map[string]string{"document_type": "government_contract"}
	if err := idx.Index(context.Background(), "notice-1", "specs.pdf", "title: Paving", meta); err != nil {
		t.Fatalf("Index: %v", err)
	}

	doc, ok := store.docs["notice-1/specs.pdf"]
	if !ok {
		t.Fatal("Document not stored under composite key")
	}
	if doc.content != "title: Paving" {
		t.Errorf("Stored content = %q", doc.content)
	}
	if doc.metadata["document_type"] != "government_contract" {
		t.Errorf("Metadata not propagated: %v", doc.metadata)
	}
}

func TestIndexIsIdempotentPerKey(t *testing.T) {
	store := newFakeVectorStore()
	idx := NewVectorIndexer(fakeEmbedder{}, store)

	for i := 0; i < 3; i++ {
		if err := idx.Index(context.Background(), "notice-1", "specs.pdf", "updated content", nil); err != nil {
			t.Fatalf("Index %d: %v", i, err)
		}
	}

	if len(store.docs) != 1 {
		t.Fatalf("Expected 1 document, got %d", len(store.docs))
	}
	if store.docs["notice-1/specs.pdf"].writes != 3 {
		t.Errorf("Expected 3 overwrites of the same key")
	}
}

func TestIndexEmbedFailure(t *testing.T) {
	store := newFakeVectorStore()
	idx := NewVectorIndexer(fakeEmbedder{err: errors.New("quota exceeded")}, store)

	err := idx.Index(context.Background(), "n", "f.pdf", "content", nil)
	if !errors.Is(err, core.ErrIndexingFailed) {
		t.Fatalf("Expected ErrIndexingFailed, got %v", err)
	}
	if len(store.docs) != 0 {
		t.Error("Nothing must be stored when embedding fails")
	}
}

func TestIndexUpsertFailure(t *testing.T) {
	store := newFakeVectorStore()
	store.err = errors.New("connection refused")
	idx := NewVectorIndexer(fakeEmbedder{}, store)

	err := idx.Index(context.Background(), "n", "f.pdf", "content", nil)
	if !errors.Is(err, core.ErrIndexingFailed) {
		t.Fatalf("Expected ErrIndexingFailed, got %v", err)
	}
}
