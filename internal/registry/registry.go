// Package registry is the durable bookkeeping for ingested documents:
// identifiers, display names, ingestion time and committed entry counts.
// The vector backends never own this data; they read counts through it.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
	_ "modernc.org/sqlite"

	"studybuddy/internal/models"
	"studybuddy/internal/vectorstore"
)

// Document is one registry row. Seq is the global ingestion order used for
// score tie-breaking.
type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`

	Seq        int64     `bun:"seq,pk,autoincrement"`
	DocumentID string    `bun:"document_id,notnull,unique"`
	Name       string    `bun:"name,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
	TextChunks int       `bun:"text_chunks,notnull,default:0"`
	ImageCount int       `bun:"image_count,notnull,default:0"`
}

type Registry struct {
	db *bun.DB
}

// NewSQLite opens an embedded registry under dataDir.
func NewSQLite(dataDir string) (*Registry, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dsn := "file:" + filepath.Join(dataDir, "registry.db") + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}
	return &Registry{db: bun.NewDB(sqldb, sqlitedialect.New())}, nil
}

// NewPostgres connects the registry to the same Supabase/Postgres instance
// the vector backend may use.
func NewPostgres(supabaseURL, supabaseKey string, debug bool) *Registry {
	dsn := supabaseURL + "?sslmode=disable"
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn), pgdriver.WithPassword(supabaseKey)))
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return &Registry{db: db}
}

func (r *Registry) Init(ctx context.Context) error {
	_, err := r.db.NewCreateTable().Model((*Document)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	return nil
}

// Create stages a document row with zero counts and returns its sequence.
// A reused document id fails with ErrDuplicateID.
func (r *Registry) Create(ctx context.Context, documentID, name string) (int64, error) {
	doc := &Document{
		DocumentID: documentID,
		Name:       name,
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := r.db.NewInsert().Model(doc).Exec(ctx); err != nil {
		if isDuplicateErr(err) {
			return 0, fmt.Errorf("document %s: %w", documentID, vectorstore.ErrDuplicateID)
		}
		return 0, fmt.Errorf("failed to create document %s: %w", documentID, err)
	}
	return doc.Seq, nil
}

// SetCounts is the ingestion commit point: a document becomes visible to
// searches once its counts are non-zero.
func (r *Registry) SetCounts(ctx context.Context, documentID string, textChunks, imageCount int) error {
	res, err := r.db.NewUpdate().
		Model((*Document)(nil)).
		Set("text_chunks = ?", textChunks).
		Set("image_count = ?", imageCount).
		Where("document_id = ?", documentID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update counts for document %s: %w", documentID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("document %s not found", documentID)
	}
	return nil
}

// Delete removes registry rows. Absent ids are a no-op.
func (r *Registry) Delete(ctx context.Context, documentIDs []string) (int, error) {
	if len(documentIDs) == 0 {
		return 0, nil
	}
	res, err := r.db.NewDelete().
		Model((*Document)(nil)).
		Where("document_id IN (?)", bun.In(documentIDs)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete documents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// List enumerates documents in ingestion order.
func (r *Registry) List(ctx context.Context) ([]models.DocumentInfo, error) {
	var docs []Document
	if err := r.db.NewSelect().Model(&docs).Order("seq ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	infos := make([]models.DocumentInfo, 0, len(docs))
	for _, d := range docs {
		infos = append(infos, models.DocumentInfo{
			DocumentID: d.DocumentID,
			Name:       d.Name,
			CreatedAt:  d.CreatedAt,
			TextChunks: d.TextChunks,
			ImageCount: d.ImageCount,
		})
	}
	return infos, nil
}

// EntryCount reports the committed entry count of a document in a
// collection. Unknown documents and staging rows report zero.
func (r *Registry) EntryCount(ctx context.Context, collection, documentID string) (int, error) {
	var doc Document
	err := r.db.NewSelect().Model(&doc).Where("document_id = ?", documentID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up document %s: %w", documentID, err)
	}
	switch collection {
	case models.TextCollection:
		return doc.TextChunks, nil
	case models.ImageCollection:
		return doc.ImageCount, nil
	default:
		return 0, fmt.Errorf("collection %s: %w", collection, vectorstore.ErrUnknownCollection)
	}
}

func (r *Registry) Close() error {
	return r.db.Close()
}

func isDuplicateErr(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	// modernc.org/sqlite reports constraint violations by message
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
