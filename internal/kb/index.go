// Package kb wraps the vector store behind the retrieval contract of the
// review pipeline: a text query in, ranked knowledge snippets out.
package kb

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/sevigo/goframe/schema"

	"github.com/sevigo/patchlens/internal/core"
	"github.com/sevigo/patchlens/internal/storage"
)

// Index retrieves knowledge snippets relevant to a piece of diff content.
// Retrieval augmentation is an enhancement, not a precondition for review:
// implementations degrade to an empty result instead of failing.
type Index interface {
	Query(ctx context.Context, text string, k int) []core.KnowledgeSnippet
}

const queryTimeout = 15 * time.Second

type vectorIndex struct {
	store          storage.VectorStore
	collectionName string
	maxQueryChars  int
	logger         *slog.Logger
}

// NewIndex creates an Index over an existing vector store collection. The
// query text is head-truncated to maxQueryChars before embedding: the head of
// a chunk carries the hunk header and the first changed lines, whose file and
// symbol names dominate the relevance signal.
func NewIndex(store storage.VectorStore, collectionName string, maxQueryChars int, logger *slog.Logger) Index {
	if maxQueryChars <= 0 {
		maxQueryChars = 2000
	}
	return &vectorIndex{
		store:          store,
		collectionName: collectionName,
		maxQueryChars:  maxQueryChars,
		logger:         logger,
	}
}

// Query performs a similarity search and maps the results to snippets ordered
// by descending relevance. Any failure (store unreachable, missing collection,
// empty index) degrades to an empty result.
func (v *vectorIndex) Query(ctx context.Context, text string, k int) []core.KnowledgeSnippet {
	if k <= 0 || strings.TrimSpace(text) == "" {
		return nil
	}

	query := headTruncate(text, v.maxQueryChars)

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	docs, err := v.store.SimilaritySearch(ctx, v.collectionName, query, k)
	if err != nil {
		v.logger.Warn("knowledge base query failed, proceeding without context",
			"collection", v.collectionName, "error", err)
		return nil
	}

	snippets := make([]core.KnowledgeSnippet, 0, len(docs))
	for i, doc := range docs {
		if strings.TrimSpace(doc.PageContent) == "" {
			continue
		}
		snippets = append(snippets, core.KnowledgeSnippet{
			SourceID:  docSourceID(doc),
			Text:      doc.PageContent,
			Relevance: docScore(doc, i, len(docs)),
		})
	}
	return snippets
}

// docSourceID extracts a stable identifier for the snippet's origin.
func docSourceID(doc schema.Document) string {
	source, _ := doc.Metadata["source"].(string)
	identifier, _ := doc.Metadata["identifier"].(string)
	if identifier != "" {
		return fmt.Sprintf("%s:%s", source, identifier)
	}
	return source
}

// docScore prefers the store-reported similarity score and falls back to a
// rank-derived value so ordering always implies descending relevance.
func docScore(doc schema.Document, rank, total int) float64 {
	if score, ok := doc.Metadata["score"].(float64); ok && score > 0 {
		return score
	}
	return float64(total-rank) / float64(total)
}

// headTruncate keeps the head of text up to max characters, cutting at a line
// boundary when one is close enough.
func headTruncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := text[:max]
	if idx := strings.LastIndexByte(cut, '\n'); idx > max/2 {
		cut = cut[:idx]
	}
	return cut
}

var collectionNameRegex = regexp.MustCompile("[^a-z0-9_-]+")

// CollectionName builds a valid Qdrant collection name from a repository full
// name and an embedder model name.
func CollectionName(repoFullName, embedderName string) string {
	safeRepoName := strings.ToLower(strings.ReplaceAll(repoFullName, "/", "-"))
	safeEmbedderName := strings.ToLower(strings.Split(embedderName, ":")[0])

	safeRepoName = collectionNameRegex.ReplaceAllString(safeRepoName, "")
	safeEmbedderName = collectionNameRegex.ReplaceAllString(safeEmbedderName, "")

	collectionName := fmt.Sprintf("kb-%s-%s", safeRepoName, safeEmbedderName)
	if len(collectionName) > 255 {
		collectionName = collectionName[:255]
	}
	return collectionName
}
