package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	// import db drivers
	_ "github.com/lib/pq"
)

// DocumentRecord tracks one indexed knowledge-base file, keyed by collection
// and path. The hash enables incremental re-indexing: unchanged files are
// skipped on subsequent builds.
type DocumentRecord struct {
	ID             int64     `db:"id"`
	CollectionName string    `db:"collection_name"`
	FilePath       string    `db:"file_path"`
	FileHash       string    `db:"file_hash"`
	IndexedAt      time.Time `db:"indexed_at"`
}

// CollectionStat summarizes one knowledge-base collection for status output.
type CollectionStat struct {
	CollectionName string    `db:"collection_name"`
	FileCount      int       `db:"file_count"`
	LastIndexedAt  time.Time `db:"last_indexed_at"`
}

// Store defines the database operations for knowledge-base bookkeeping.
type Store interface {
	GetDocumentsForCollection(ctx context.Context, collectionName string) (map[string]DocumentRecord, error)
	UpsertDocuments(ctx context.Context, collectionName string, records []DocumentRecord) error
	DeleteDocuments(ctx context.Context, collectionName string, paths []string) error
	ListCollections(ctx context.Context) ([]CollectionStat, error)
}

type postgresStore struct {
	db *sqlx.DB
}

// NewStore creates a new Store backed by Postgres.
func NewStore(db *sqlx.DB) Store {
	return &postgresStore{db: db}
}

// GetDocumentsForCollection returns all tracked documents of a collection,
// keyed by file path.
func (s *postgresStore) GetDocumentsForCollection(ctx context.Context, collectionName string) (map[string]DocumentRecord, error) {
	var records []DocumentRecord
	query := `SELECT id, collection_name, file_path, file_hash, indexed_at FROM kb_documents WHERE collection_name = $1`
	if err := s.db.SelectContext(ctx, &records, query, collectionName); err != nil {
		return nil, fmt.Errorf("failed to load document records for %s: %w", collectionName, err)
	}

	out := make(map[string]DocumentRecord, len(records))
	for _, r := range records {
		out[r.FilePath] = r
	}
	return out, nil
}

// UpsertDocuments inserts or updates tracking records for indexed files.
func (s *postgresStore) UpsertDocuments(ctx context.Context, collectionName string, records []DocumentRecord) error {
	if len(records) == 0 {
		return nil
	}

	query := `
		INSERT INTO kb_documents (collection_name, file_path, file_hash, indexed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (collection_name, file_path)
		DO UPDATE SET file_hash = EXCLUDED.file_hash, indexed_at = EXCLUDED.indexed_at`

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	for _, r := range records {
		if _, err := tx.ExecContext(ctx, query, collectionName, r.FilePath, r.FileHash, now); err != nil {
			return fmt.Errorf("failed to upsert document record %s: %w", r.FilePath, err)
		}
	}
	return tx.Commit()
}

// ListCollections returns per-collection summaries, newest first.
func (s *postgresStore) ListCollections(ctx context.Context) ([]CollectionStat, error) {
	var stats []CollectionStat
	query := `
		SELECT collection_name, COUNT(*) AS file_count, MAX(indexed_at) AS last_indexed_at
		FROM kb_documents
		GROUP BY collection_name
		ORDER BY last_indexed_at DESC`
	if err := s.db.SelectContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	return stats, nil
}

// DeleteDocuments removes tracking records for files no longer present.
func (s *postgresStore) DeleteDocuments(ctx context.Context, collectionName string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	query, args, err := sqlx.In(
		`DELETE FROM kb_documents WHERE collection_name = ? AND file_path IN (?)`,
		collectionName, paths,
	)
	if err != nil {
		return fmt.Errorf("failed to build delete query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to delete document records: %w", err)
	}
	return nil
}
