package index

import (
	"context"
	"fmt"

	"github.com/markdave123-py/Procura/internal/core"
)

// DocumentKey builds the composite search-store key. Re-indexing the same
// contract/filename pair overwrites rather than duplicates.
func DocumentKey(noticeID, filename string) string {
	return noticeID + "/" + filename
}

// VectorIndexer embeds the processed content and upserts it into the
// vector store. A best-effort side channel: failures are surfaced to the
// caller as ErrIndexingFailed but never fail the document task.
type VectorIndexer struct {
	embedder core.EmbeddingProvider
	store    core.VectorStore
}

var _ core.Indexer = (*VectorIndexer)(nil)

func NewVectorIndexer(embedder core.EmbeddingProvider, store core.VectorStore) *VectorIndexer {
	return &VectorIndexer{embedder: embedder, store: store}
}

func (i *VectorIndexer) Index(ctx context.Context, noticeID, filename, content string, metadata map[string]string) error {
	embedding, err := i.embedder.EmbedText(ctx, content)
	if err != nil {
		return fmt.Errorf("%w: embed: %v", core.ErrIndexingFailed, err)
	}

	key := DocumentKey(noticeID, filename)
	if err := i.store.UpsertDocumentVector(ctx, key, content, embedding, metadata); err != nil {
		return fmt.Errorf("%w: upsert %s: %v", core.ErrIndexingFailed, key, err)
	}
	return nil
}
