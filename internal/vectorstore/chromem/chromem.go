// Package chromem backs the collection store with an embedded chromem-go
// database, persisted on disk and optionally exportable as an encrypted
// snapshot.
package chromem

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"sync"

	chromemgo "github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"studybuddy/internal/models"
	"studybuddy/internal/vectorstore"
)

// Counter reports how many committed entries a document owns in a
// collection. Documents still being ingested count as zero, which keeps
// them invisible to searches until their ingestion commits.
type Counter interface {
	EntryCount(ctx context.Context, collection, documentID string) (int, error)
}

// Store encapsulates the chromem-go database operations.
type Store struct {
	db            *chromemgo.DB
	counts        Counter
	dbPath        string
	compress      bool
	encryptionKey string

	mu          sync.RWMutex
	collections map[string]*chromemgo.Collection
	dims        map[string]int
}

// New opens (or creates) a chromem database. With inMemory set the store
// lives only for the process lifetime, which the tests rely on.
func New(dbPath string, inMemory, compress bool, encryptionKey string, counts Counter) (*Store, error) {
	var db *chromemgo.DB
	var err error
	if inMemory {
		db = chromemgo.NewDB()
	} else {
		db, err = chromemgo.NewPersistentDB(dbPath, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	return &Store{
		db:            db,
		counts:        counts,
		dbPath:        dbPath,
		compress:      compress,
		encryptionKey: encryptionKey,
		collections:   make(map[string]*chromemgo.Collection),
		dims:          make(map[string]int),
	}, nil
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

	c, err := s.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to create/get collection %s: %w", name, err)
	}
	s.collections[name] = c
	s.dims[name] = dimension
	return nil
}

func (s *Store) collection(name string) (*chromemgo.Collection, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, 0, fmt.Errorf("collection %s: %w", name, vectorstore.ErrUnknownCollection)
	}
	return c, s.dims[name], nil
}

func (s *Store) Insert(ctx context.Context, collection string, entries []vectorstore.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	c, dim, err := s.collection(collection)
	if err != nil {
		return err
	}

	docs := make([]chromemgo.Document, 0, len(entries))
	for _, e := range entries {
		if len(e.Vector) != dim {
			return fmt.Errorf("collection %s expects %d dimensions, entry %s has %d: %w",
				collection, dim, e.ID, len(e.Vector), vectorstore.ErrDimensionMismatch)
		}
		if _, err := c.GetByID(ctx, e.ID); err == nil {
			return fmt.Errorf("collection %s already has entry %s: %w",
				collection, e.ID, vectorstore.ErrDuplicateID)
		}
		docs = append(docs, chromemgo.Document{
			ID:        e.ID,
			Content:   e.Text,
			Metadata:  encodeMetadata(e.Metadata),
			Embedding: e.Vector,
		})
	}

	if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, collection string, queryVector []float32, k int, allowedDocs []string) ([]vectorstore.Result, error) {
	c, dim, err := s.collection(collection)
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

	var merged []vectorstore.Result
	for _, docID := range allowedDocs {
		n, err := s.counts.EntryCount(ctx, collection, docID)
		if err != nil {
			return nil, fmt.Errorf("failed to count entries for document %s: %w", docID, err)
		}
		if n > c.Count() {
			n = c.Count()
		}
		if n > k {
			n = k
		}
		if n == 0 {
			continue
		}

		results, err := c.QueryWithOptions(ctx, chromemgo.QueryOptions{
			QueryEmbedding: queryVector,
			NResults:       n,
			Where:          map[string]string{models.MetaDocumentID: docID},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query by similarity: %w", err)
		}
		for _, r := range results {
			merged = append(merged, vectorstore.Result{
				Text:     r.Content,
				Metadata: decodeMetadata(r.Metadata),
				Score:    r.Similarity,
			})
		}
	}

	sortResults(merged)
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}

func (s *Store) Delete(ctx context.Context, collection string, documentIDs []string) (int, error) {
	c, _, err := s.collection(collection)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, docID := range documentIDs {
		before := c.Count()
		err := c.Delete(ctx, map[string]string{models.MetaDocumentID: docID}, nil)
		if err != nil {
			return removed, fmt.Errorf("failed to delete entries for document %s: %w", docID, err)
		}
		removed += before - c.Count()
	}
	return removed, nil
}

func (s *Store) Close() error {
	return nil
}

// Export writes an encrypted snapshot of all collections next to the
// database directory.
func (s *Store) Export(ctx context.Context) error {
	if s.encryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}
	path := filepath.Join(s.dbPath, "backup.chromem")
	log.Debug().Str("path", path).Bool("compress", s.compress).Msg("exporting collections")
	if err := s.db.ExportToFile(path, s.compress, s.encryptionKey); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import restores a snapshot previously written by Export.
func (s *Store) Import(ctx context.Context) error {
	path := filepath.Join(s.dbPath, "backup.chromem")
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.ImportFromFile(path, s.encryptionKey); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	// the import rebuilds the underlying collections, so the cached handles
	// point at pre-import state and must be re-resolved
	for name := range s.collections {
		c, err := s.db.GetOrCreateCollection(name, nil, nil)
		if err != nil {
			return fmt.Errorf("failed to reopen collection %s after import: %w", name, err)
		}
		s.collections[name] = c
	}
	return nil
}

// sortResults orders by descending similarity, then by insertion order so
// equal scores are deterministic.
func sortResults(results []vectorstore.Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Metadata.DocSeq != results[j].Metadata.DocSeq {
			return results[i].Metadata.DocSeq < results[j].Metadata.DocSeq
		}
		return results[i].Metadata.SequenceIndex < results[j].Metadata.SequenceIndex
	})
}

func encodeMetadata(m vectorstore.Metadata) map[string]string {
	return map[string]string{
		models.MetaDocumentID:    m.DocumentID,
		models.MetaDocumentName:  m.DocumentName,
		models.MetaSequenceIndex: strconv.Itoa(m.SequenceIndex),
		models.MetaContentType:   m.ContentType,
		models.MetaDocSeq:        strconv.FormatInt(m.DocSeq, 10),
	}
}

func decodeMetadata(m map[string]string) vectorstore.Metadata {
	seq, _ := strconv.Atoi(m[models.MetaSequenceIndex])
	docSeq, _ := strconv.ParseInt(m[models.MetaDocSeq], 10, 64)
	return vectorstore.Metadata{
		DocumentID:    m[models.MetaDocumentID],
		DocumentName:  m[models.MetaDocumentName],
		SequenceIndex: seq,
		ContentType:   m[models.MetaContentType],
		DocSeq:        docSeq,
	}
}
