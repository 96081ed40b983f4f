package services

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/itish2003/ragkb/models"
)

const sidecarSuffix = ".json"

// DocumentFiles stores document files and their metadata sidecars in one
// flat directory.
type DocumentFiles struct {
	Dir string // absolute path of the data directory
}

func NewDocumentFiles(dir string) (*DocumentFiles, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: data directory not set", ErrConfiguration)
	}
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("could not determine absolute path for %s: %w", dir, err)
	}
	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &DocumentFiles{Dir: absPath}, nil
}

// sanitizeFilename ensures the filename is safe and within the data directory.
func (d *DocumentFiles) sanitizeFilename(filename string) (string, error) {
	base := filepath.Base(filename)
	if base == "." || base == string(filepath.Separator) || strings.HasPrefix(base, ".") {
		return "", fmt.Errorf("%w: invalid file name %q", ErrConfiguration, filename)
	}
	cleanPath := filepath.Join(d.Dir, base)
	if !strings.HasPrefix(cleanPath, d.Dir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: file name %q escapes the data directory", ErrConfiguration, filename)
	}
	return cleanPath, nil
}

// Path returns where the document with the given id is stored. Ids are bare
// file names; anything with a directory component is rejected.
func (d *DocumentFiles) Path(documentID string) (string, error) {
	if documentID == "" || filepath.Base(documentID) != documentID {
		return "", fmt.Errorf("%w: invalid document id %q", ErrConfiguration, documentID)
	}
	return d.sanitizeFilename(documentID)
}

// Save copies r into the data directory under filename and writes its sidecar.
func (d *DocumentFiles) Save(filename string, r io.Reader) (string, *models.DocumentMetadata, error) {
	if !IsSupportedFile(filename) {
		return "", nil, fmt.Errorf("%w: unsupported file type %q", ErrConfiguration, filepath.Ext(filename))
	}
	path, err := d.sanitizeFilename(filename)
	if err != nil {
		return "", nil, err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", nil, fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, hash), r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return "", nil, fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}

	meta := metadataFor(path, size, hex.EncodeToString(hash.Sum(nil)))
	if err := writeSidecar(path, meta); err != nil {
		return "", nil, err
	}
	return path, meta, nil
}

// WriteText stores crawled text under documentID and records the visited URLs.
func (d *DocumentFiles) WriteText(documentID, text string, crawledURLs []string) (string, *models.DocumentMetadata, error) {
	path, err := d.Path(documentID)
	if err != nil {
		return "", nil, err
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", nil, fmt.Errorf("writing %s: %w", documentID, err)
	}
	sum := sha256.Sum256([]byte(text))
	meta := metadataFor(path, int64(len(text)), hex.EncodeToString(sum[:]))
	meta.CrawledURLs = crawledURLs
	if err := writeSidecar(path, meta); err != nil {
		return "", nil, err
	}
	return path, meta, nil
}

// Remove deletes a document file and its sidecar. Missing files are ignored.
func (d *DocumentFiles) Remove(documentID string) error {
	path, err := d.Path(documentID)
	if err != nil {
		return err
	}
	for _, p := range []string{path, path + sidecarSuffix} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", filepath.Base(p), err)
		}
	}
	return nil
}

// Metadata reads the sidecar of one document.
func (d *DocumentFiles) Metadata(documentID string) (*models.DocumentMetadata, error) {
	path, err := d.Path(documentID)
	if err != nil {
		return nil, err
	}
	return readSidecar(path + sidecarSuffix)
}

// List returns the metadata of every stored document, sorted by id.
func (d *DocumentFiles) List() ([]models.DocumentMetadata, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return nil, fmt.Errorf("reading data directory: %w", err)
	}
	docs := make([]models.DocumentMetadata, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, sidecarSuffix) || !IsSupportedFile(strings.TrimSuffix(name, sidecarSuffix)) {
			continue
		}
		meta, err := readSidecar(filepath.Join(d.Dir, name))
		if err != nil {
			return nil, err
		}
		docs = append(docs, *meta)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].DocumentID() < docs[j].DocumentID() })
	return docs, nil
}

func metadataFor(path string, size int64, checksum string) *models.DocumentMetadata {
	name, ext := models.SplitDocumentID(filepath.Base(path))
	return &models.DocumentMetadata{
		FileName:      name,
		FileExtension: ext,
		Date:          time.Now().UTC().Truncate(time.Second),
		Size:          size,
		Checksum:      checksum,
	}
}

func writeSidecar(path string, meta *models.DocumentMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	if err := os.WriteFile(path+sidecarSuffix, data, 0o644); err != nil {
		return fmt.Errorf("writing metadata for %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readSidecar(path string) (*models.DocumentMetadata, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, strings.TrimSuffix(filepath.Base(path), sidecarSuffix))
	}
	if err != nil {
		return nil, err
	}
	var meta models.DocumentMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return &meta, nil
}

func calculateFileHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
