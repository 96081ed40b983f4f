package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/itish2003/ragkb/models"
)

// IndexingService owns the write path: chunking, embedding and storing
// documents, and keeping a watched directory in sync with the index.
type IndexingService struct {
	embedder EmbeddingProvider
	store    VectorStore
	files    *DocumentFiles
	loader   Loader

	uploadSize, uploadOverlap int
}

func NewIndexingService(embedder EmbeddingProvider, store VectorStore, files *DocumentFiles) *IndexingService {
	return &IndexingService{
		embedder:      embedder,
		store:         store,
		files:         files,
		uploadSize:    DefaultChunkSize,
		uploadOverlap: DefaultChunkOverlap,
	}
}

// SetUploadChunking changes the parameters used for uploaded and watched files.
func (s *IndexingService) SetUploadChunking(size, overlap int) error {
	if _, err := NewRecursiveChunker(size, overlap); err != nil {
		return err
	}
	s.uploadSize, s.uploadOverlap = size, overlap
	return nil
}

// Ingest replaces whatever the index holds for doc.ID with freshly embedded
// chunks. Every chunk is embedded and the batch validated before the store is
// touched, so an embedding failure or a wrong-sized vector leaves the previous
// state of the document intact.
func (s *IndexingService) Ingest(ctx context.Context, doc models.Document, chunkSize, chunkOverlap int) error {
	if doc.ID == "" {
		return fmt.Errorf("%w: document id is empty", ErrConfiguration)
	}
	chunker, err := NewRecursiveChunker(chunkSize, chunkOverlap)
	if err != nil {
		return err
	}
	chunks := chunker.Split(doc.Text)
	log.Printf("INDEXER: Split %s into %d chunks (size %d, overlap %d).", doc.ID, len(chunks), chunkSize, chunkOverlap)

	entries := make([]models.IndexEntry, len(chunks))
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vectors, err := s.embedder.EmbedMany(ctx, texts)
		if err != nil {
			if !errors.Is(err, ErrEmbedding) {
				err = fmt.Errorf("%w: %v", ErrEmbedding, err)
			}
			return fmt.Errorf("ingesting %s: %w", doc.ID, err)
		}
		if len(vectors) != len(chunks) {
			return fmt.Errorf("ingesting %s: %w: got %d vectors for %d chunks", doc.ID, ErrEmbedding, len(vectors), len(chunks))
		}
		for i, c := range chunks {
			entries[i] = models.IndexEntry{
				ID:         models.EntryID(doc.ID, c.Index),
				Vector:     vectors[i],
				Text:       c.Text,
				DocumentID: doc.ID,
				ChunkIndex: c.Index,
			}
		}
	}

	// The previous version is only dropped once the new batch is known to fit.
	if err := validateBatch(entries, s.store.Dimension()); err != nil {
		return fmt.Errorf("storing %s: %w", doc.ID, err)
	}
	if r, ok := s.store.(DocumentReplacer); ok {
		if err := r.ReplaceDocument(ctx, doc.ID, entries); err != nil {
			return fmt.Errorf("storing %s: %w", doc.ID, err)
		}
	} else {
		if err := s.store.Delete(ctx, models.ByDocument(doc.ID)); err != nil {
			return fmt.Errorf("clearing previous entries of %s: %w", doc.ID, err)
		}
		if err := s.store.Add(ctx, entries); err != nil {
			return fmt.Errorf("storing %s: %w", doc.ID, err)
		}
	}
	log.Printf("INDEXER: Indexed %s with %d entries.", doc.ID, len(entries))
	return nil
}

// IngestReader stores an uploaded file in the data directory and indexes it
// with the upload chunking parameters.
func (s *IndexingService) IngestReader(ctx context.Context, filename string, r io.Reader) (*models.DocumentMetadata, error) {
	path, meta, err := s.files.Save(filename, r)
	if err != nil {
		return nil, err
	}
	if err := s.indexStoredFile(ctx, path, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// IngestFile indexes a file from anywhere on disk. Files outside the data
// directory are copied into it first.
func (s *IndexingService) IngestFile(ctx context.Context, path string) (*models.DocumentMetadata, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if filepath.Dir(abs) != s.files.Dir {
		f, err := os.Open(abs)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return s.IngestReader(ctx, filepath.Base(abs), f)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	hash, err := calculateFileHash(abs)
	if err != nil {
		return nil, err
	}
	meta := metadataFor(abs, info.Size(), hash)
	if err := writeSidecar(abs, meta); err != nil {
		return nil, err
	}
	if err := s.indexStoredFile(ctx, abs, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func (s *IndexingService) indexStoredFile(ctx context.Context, path string, meta *models.DocumentMetadata) error {
	text, err := s.loader.Load(ctx, path)
	if err != nil {
		return err
	}
	doc := models.Document{ID: meta.DocumentID(), Text: text, Metadata: *meta}
	return s.Ingest(ctx, doc, s.uploadSize, s.uploadOverlap)
}

// Remove deletes the document's entries, file and sidecar. Removing an
// unknown document is not an error.
func (s *IndexingService) Remove(ctx context.Context, documentID string) error {
	if _, err := s.files.Path(documentID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, models.ByDocument(documentID)); err != nil {
		return fmt.Errorf("removing %s from index: %w", documentID, err)
	}
	if err := s.files.Remove(documentID); err != nil {
		return err
	}
	log.Printf("INDEXER: Removed %s.", documentID)
	return nil
}

// WatchDirectory re-indexes supported files of dirPath as they change, until
// ctx is cancelled.
func (s *IndexingService) WatchDirectory(ctx context.Context, dirPath string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("WATCHER ERROR: Failed to create file watcher: %v", err)
		return
	}
	defer watcher.Close()

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !IsSupportedFile(event.Name) {
					continue
				}
				log.Printf("WATCHER EVENT: %s", event)

				// Editors that save via temp file and rename produce Create rather than Write.
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					if _, err := s.IngestFile(ctx, event.Name); err != nil {
						log.Printf("WATCHER ERROR: Failed to index %s: %v", event.Name, err)
					}
				} else if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					if err := s.Remove(ctx, filepath.Base(event.Name)); err != nil {
						log.Printf("WATCHER ERROR: Failed to remove %s: %v", event.Name, err)
					}
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("WATCHER ERROR: %v", err)
			case <-ctx.Done():
				log.Println("WATCHER: Context cancelled, shutting down watcher.")
				return
			}
		}
	}()

	log.Printf("WATCHER: Watching directory: %s", dirPath)
	if err := watcher.Add(dirPath); err != nil {
		log.Printf("WATCHER ERROR: Failed to add path to watcher: %v", err)
	}
	<-ctx.Done()
}

// ScanAndIndexDirectory indexes every supported file of dirPath whose
// checksum differs from the one recorded in its sidecar.
func (s *IndexingService) ScanAndIndexDirectory(ctx context.Context, dirPath string) {
	log.Printf("INDEXER: Starting directory scan for: %s", dirPath)
	indexed, skipped := 0, 0
	err := filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !IsSupportedFile(path) {
			return nil
		}
		hash, err := calculateFileHash(path)
		if err != nil {
			log.Printf("INDEXER WARN: Could not hash file %s: %v", path, err)
			return nil
		}
		if meta, err := s.files.Metadata(filepath.Base(path)); err == nil && meta.Checksum == hash {
			skipped++
			return nil
		}
		log.Printf("INDEXER: Indexing new/modified file: %s", path)
		if _, err := s.IngestFile(ctx, path); err != nil {
			log.Printf("INDEXER ERROR: Failed to process file %s: %v", path, err)
			return nil
		}
		indexed++
		return nil
	})
	if err != nil {
		log.Printf("INDEXER ERROR: Error walking the path %s: %v", dirPath, err)
	}
	log.Printf("INDEXER: Directory scan finished: %d indexed, %d unchanged.", indexed, skipped)
}
