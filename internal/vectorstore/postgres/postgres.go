// Package postgres backs the collection store with Supabase/Postgres and
// pgvector, one table per collection. The bigserial id doubles as insertion
// order for deterministic tie-breaking.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/pgvector/pgvector-go"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"studybuddy/internal/vectorstore"
)

type entryRow struct {
	ID            int64           `bun:"id,pk,autoincrement"`
	EntryID       string          `bun:"entry_id,notnull"`
	DocumentID    string          `bun:"document_id,notnull"`
	DocumentName  string          `bun:"document_name,notnull"`
	SequenceIndex int             `bun:"sequence_index,notnull"`
	ContentType   string          `bun:"content_type,notnull"`
	DocSeq        int64           `bun:"doc_seq,notnull"`
	Content       string          `bun:"content,notnull"`
	Embedding     pgvector.Vector `bun:"embedding,notnull"`
}

type searchRow struct {
	Content       string  `bun:"content"`
	DocumentID    string  `bun:"document_id"`
	DocumentName  string  `bun:"document_name"`
	SequenceIndex int     `bun:"sequence_index"`
	ContentType   string  `bun:"content_type"`
	DocSeq        int64   `bun:"doc_seq"`
	Score         float32 `bun:"score"`
}

type Store struct {
	db *bun.DB

	mu   sync.RWMutex
	dims map[string]int
}

// New connects to Postgres through the pgdriver connector.
func New(supabaseURL, supabaseKey string, debug bool) *Store {
	dsn := supabaseURL + "?sslmode=disable"
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn), pgdriver.WithPassword(supabaseKey)))
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return &Store{db: db, dims: make(map[string]int)}
}

func tableName(collection string) string {
	return "rag_entries_" + collection
}

func (s *Store) CreateCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("collection %s: dimension must be positive, got %d", name, dimension)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if dim, ok := s.dims[name]; ok {
		if dim != dimension {
			return fmt.Errorf("collection %s declared with dimension %d, requested %d: %w",
				name, dim, dimension, vectorstore.ErrDimensionMismatch)
		}
		return nil
	}

	table := tableName(name)
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return wrapBackendErr(fmt.Errorf("failed to enable pgvector: %w", err))
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id BIGSERIAL PRIMARY KEY,
		entry_id TEXT NOT NULL UNIQUE,
		document_id TEXT NOT NULL,
		document_name TEXT NOT NULL,
		sequence_index INT NOT NULL,
		content_type TEXT NOT NULL,
		doc_seq BIGINT NOT NULL,
		content TEXT NOT NULL,
		embedding vector(%d) NOT NULL
	)`, table, dimension)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return wrapBackendErr(fmt.Errorf("failed to create table %s: %w", table, err))
	}
	idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_document_id_idx ON %s (document_id)", table, table)
	if _, err := s.db.ExecContext(ctx, idx); err != nil {
		return wrapBackendErr(fmt.Errorf("failed to index table %s: %w", table, err))
	}

	s.dims[name] = dimension
	return nil
}

func (s *Store) dimension(name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dim, ok := s.dims[name]
	if !ok {
		return 0, fmt.Errorf("collection %s: %w", name, vectorstore.ErrUnknownCollection)
	}
	return dim, nil
}

func (s *Store) Insert(ctx context.Context, collection string, entries []vectorstore.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	dim, err := s.dimension(collection)
	if err != nil {
		return err
	}

	rows := make([]entryRow, 0, len(entries))
	for _, e := range entries {
		if len(e.Vector) != dim {
			return fmt.Errorf("collection %s expects %d dimensions, entry %s has %d: %w",
				collection, dim, e.ID, len(e.Vector), vectorstore.ErrDimensionMismatch)
		}
		rows = append(rows, entryRow{
			EntryID:       e.ID,
			DocumentID:    e.Metadata.DocumentID,
			DocumentName:  e.Metadata.DocumentName,
			SequenceIndex: e.Metadata.SequenceIndex,
			ContentType:   e.Metadata.ContentType,
			DocSeq:        e.Metadata.DocSeq,
			Content:       e.Text,
			Embedding:     pgvector.NewVector(e.Vector),
		})
	}

	// single statement, so a unique violation writes nothing
	_, err = s.db.NewInsert().
		Model(&rows).
		ModelTableExpr(tableName(collection)).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("collection %s: %w", collection, vectorstore.ErrDuplicateID)
		}
		return wrapBackendErr(fmt.Errorf("failed to insert entries: %w", err))
	}
	return nil
}

func (s *Store) Search(ctx context.Context, collection string, queryVector []float32, k int, allowedDocs []string) ([]vectorstore.Result, error) {
	dim, err := s.dimension(collection)
	if err != nil {
		return nil, err
	}
	if len(queryVector) != dim {
		return nil, fmt.Errorf("collection %s expects %d dimensions, query has %d: %w",
			collection, dim, len(queryVector), vectorstore.ErrDimensionMismatch)
	}
	if len(allowedDocs) == 0 || k <= 0 {
		return nil, nil
	}

	var rows []searchRow
	err = s.db.NewRaw(
		`SELECT content, document_id, document_name, sequence_index, content_type, doc_seq,
			1 - (embedding <=> ?) AS score
		FROM ?
		WHERE document_id IN (?)
		ORDER BY score DESC, doc_seq ASC, sequence_index ASC
		LIMIT ?`,
		pgvector.NewVector(queryVector), bun.Ident(tableName(collection)), bun.In(allowedDocs), k,
	).Scan(ctx, &rows)
	if err != nil {
		return nil, wrapBackendErr(fmt.Errorf("failed to execute search query: %w", err))
	}

	results := make([]vectorstore.Result, 0, len(rows))
	for _, r := range rows {
		results = append(results, vectorstore.Result{
			Text: r.Content,
			Metadata: vectorstore.Metadata{
				DocumentID:    r.DocumentID,
				DocumentName:  r.DocumentName,
				SequenceIndex: r.SequenceIndex,
				ContentType:   r.ContentType,
				DocSeq:        r.DocSeq,
			},
			Score: r.Score,
		})
	}
	return results, nil
}

func (s *Store) Delete(ctx context.Context, collection string, documentIDs []string) (int, error) {
	if _, err := s.dimension(collection); err != nil {
		return 0, err
	}
	if len(documentIDs) == 0 {
		return 0, nil
	}

	res, err := s.db.NewDelete().
		Model((*entryRow)(nil)).
		ModelTableExpr(tableName(collection)).
		Where("document_id IN (?)", bun.In(documentIDs)).
		Exec(ctx)
	if err != nil {
		return 0, wrapBackendErr(fmt.Errorf("failed to delete entries: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "23505"
}

// wrapBackendErr marks driver failures as distinguishable backend errors
// while keeping the cause (and any context timeout) in the chain, so an
// unreachable database never looks like "no matches".
func wrapBackendErr(err error) error {
	return fmt.Errorf("%w: %w", vectorstore.ErrBackendUnavailable, err)
}
