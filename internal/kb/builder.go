package kb

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sevigo/goframe/parsers"
	"github.com/sevigo/goframe/schema"
	"github.com/sevigo/goframe/textsplitter"
	"golang.org/x/sync/errgroup"

	"github.com/sevigo/patchlens/internal/core"
	"github.com/sevigo/patchlens/internal/storage"
)

const indexWorkers = 8

// Builder populates a knowledge-base collection from a checked-out
// repository. Builds are incremental: file hashes are tracked in the
// relational store and unchanged files are skipped on re-runs.
type Builder struct {
	vectorStore    storage.VectorStore
	store          storage.Store
	parserRegistry parsers.ParserRegistry
	logger         *slog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(vectorStore storage.VectorStore, store storage.Store, pr parsers.ParserRegistry, logger *slog.Logger) *Builder {
	return &Builder{
		vectorStore:    vectorStore,
		store:          store,
		parserRegistry: pr,
		logger:         logger,
	}
}

// Build indexes the repository at repoPath into the named collection.
func (b *Builder) Build(ctx context.Context, collectionName, repoPath string, repoConfig *core.RepoConfig) error {
	if repoConfig == nil {
		repoConfig = core.DefaultRepoConfig()
	}

	b.logger.Info("indexing repository into knowledge base",
		"path", repoPath,
		"collection", collectionName,
	)
	startTime := time.Now()

	existing, err := b.store.GetDocumentsForCollection(ctx, collectionName)
	if err != nil {
		b.logger.Warn("failed to fetch tracked documents, proceeding with full scan", "error", err)
		existing = make(map[string]storage.DocumentRecord)
	}

	filesOnDisk, err := listFiles(repoPath, repoConfig.ExcludeDirs, repoConfig.ExcludeExts)
	if err != nil {
		return fmt.Errorf("failed to scan repository %s: %w", repoPath, err)
	}

	filesToProcess := make([]string, 0, len(filesOnDisk))
	records := make([]storage.DocumentRecord, 0)
	skipped := 0

	for _, file := range filesOnDisk {
		hash, err := computeFileHash(filepath.Join(repoPath, file))
		if err != nil {
			b.logger.Warn("failed to hash file, will process", "file", file, "error", err)
			filesToProcess = append(filesToProcess, file)
			continue
		}
		if rec, ok := existing[file]; ok && rec.FileHash == hash {
			skipped++
			continue
		}
		filesToProcess = append(filesToProcess, file)
		records = append(records, storage.DocumentRecord{
			CollectionName: collectionName,
			FilePath:       file,
			FileHash:       hash,
		})
	}

	b.logger.Info("incremental scan complete",
		"total_files", len(filesOnDisk),
		"unchanged_skipped", skipped,
		"to_index", len(filesToProcess),
	)

	docs := b.processFilesParallel(ctx, repoPath, filesToProcess)
	if len(docs) > 0 {
		if err := b.vectorStore.AddDocuments(ctx, collectionName, docs); err != nil {
			return fmt.Errorf("failed to add documents to vector store: %w", err)
		}
	} else if len(filesToProcess) > 0 {
		b.logger.Warn("files marked for processing produced no documents", "count", len(filesToProcess))
	}

	if len(records) > 0 {
		if err := b.store.UpsertDocuments(ctx, collectionName, records); err != nil {
			// Non-critical, the next build re-scans these files.
			b.logger.Error("failed to update document tracking records", "error", err)
		}
	}

	b.pruneStale(ctx, collectionName, existing, filesOnDisk)

	b.logger.Info("knowledge base build complete",
		"collection", collectionName,
		"indexed_files", len(filesToProcess),
		"duration", time.Since(startTime).Round(time.Second),
	)
	return nil
}

// pruneStale drops tracking records for files that no longer exist on disk.
func (b *Builder) pruneStale(ctx context.Context, collectionName string, existing map[string]storage.DocumentRecord, filesOnDisk []string) {
	onDisk := make(map[string]struct{}, len(filesOnDisk))
	for _, f := range filesOnDisk {
		onDisk[f] = struct{}{}
	}

	var stale []string
	for path := range existing {
		if _, ok := onDisk[path]; !ok {
			stale = append(stale, path)
		}
	}
	if len(stale) == 0 {
		return
	}

	b.logger.Info("pruning deleted files from tracking", "count", len(stale))
	if err := b.store.DeleteDocuments(ctx, collectionName, stale); err != nil {
		b.logger.Warn("failed to delete stale document records", "error", err)
	}
}

// processFilesParallel chunks files concurrently using a bounded worker pool.
func (b *Builder) processFilesParallel(ctx context.Context, repoPath string, files []string) []schema.Document {
	if len(files) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(indexWorkers)

	var mu sync.Mutex
	var allDocs []schema.Document

	for _, file := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			docs := b.processFile(repoPath, file)
			if len(docs) == 0 {
				return nil
			}
			mu.Lock()
			allDocs = append(allDocs, docs...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		b.logger.Warn("file processing interrupted", "error", err)
	}
	return allDocs
}

// processFile reads, parses, and chunks a single file into documents.
func (b *Builder) processFile(repoPath, file string) []schema.Document {
	fullPath := filepath.Join(repoPath, file)
	contentBytes, err := os.ReadFile(fullPath)
	if err != nil {
		b.logger.Error("failed to read file, skipping", "file", file, "error", err)
		return nil
	}

	parser, err := b.parserRegistry.GetParserForFile(fullPath, nil)
	if err != nil {
		b.logger.Warn("no suitable parser found for file, skipping", "file", file, "error", err)
		return nil
	}

	// Qdrant rejects payloads with invalid UTF-8.
	validContent := strings.ToValidUTF8(string(contentBytes), "")

	chunks, err := parser.Chunk(validContent, file, nil)
	if err != nil {
		b.logger.Error("failed to chunk file", "file", file, "error", err)
		return nil
	}

	var docs []schema.Document
	for _, chunk := range chunks {
		doc := schema.NewDocument(chunk.Content, map[string]any{
			"id":               documentID(file, chunk.LineStart, chunk.LineEnd),
			"source":           file,
			"identifier":       chunk.Identifier,
			"chunk_type":       chunk.Type,
			"line_start":       chunk.LineStart,
			"line_end":         chunk.LineEnd,
			"parent_id":        chunk.ParentID,
			"full_parent_text": textsplitter.TruncateParentText(chunk.FullParentText, 2000),
		})
		for k, v := range chunk.Annotations {
			doc.Metadata[k] = v
		}
		docs = append(docs, doc)
	}
	return docs
}

// documentID derives a deterministic UUID-shaped ID so re-indexing a file
// upserts instead of duplicating.
func documentID(file string, lineStart, lineEnd int) string {
	h := sha256.New()
	h.Write([]byte(file))
	fmt.Fprintf(h, ":%d:%d", lineStart, lineEnd)
	sum := h.Sum(nil)
	return fmt.Sprintf("%x-%x-%x-%x-%x", sum[0:4], sum[4:6], sum[6:8], sum[8:10], sum[10:16])
}

// computeFileHash calculates the SHA256 hash of a file's content.
func computeFileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// listFiles walks the repository and returns repo-relative paths, skipping
// hidden and excluded directories and excluded extensions.
func listFiles(root string, excludeDirs, excludeExts []string) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if isExcludedDir(info.Name(), excludeDirs) {
				return filepath.SkipDir
			}
			return nil
		}
		if isExcludedExt(info.Name(), excludeExts) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	return files, err
}

func isExcludedDir(name string, excludes []string) bool {
	if strings.HasPrefix(name, ".") && name != "." {
		return true
	}
	for _, ex := range excludes {
		if name == ex {
			return true
		}
	}
	return false
}

func isExcludedExt(name string, excludes []string) bool {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	for _, ex := range excludes {
		if ext == ex {
			return true
		}
	}
	return false
}
