package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
)

// SupportedExtensions lists the file types the knowledge base accepts.
var SupportedExtensions = []string{".txt", ".pdf"}

// IsSupportedFile reports whether path has an accepted extension.
func IsSupportedFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// SetPDFLicense registers the UniDoc metered key. Without it PDF extraction
// fails at load time, while text files keep working.
func SetPDFLicense(key string) {
	if key == "" {
		log.Println("SERVICE: UNIDOC_LICENSE_KEY not set, PDF processing will fail.")
		return
	}
	if err := license.SetMeteredKey(key); err != nil {
		log.Printf("SERVICE: Failed to set Unidoc license key: %v. PDF processing will fail.", err)
	}
}

// Loader extracts plain text from stored document files.
type Loader struct{}

// Load returns the text of the file at path, dispatching on its extension.
func (Loader) Load(ctx context.Context, path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".txt":
		return loadText(ctx, path)
	case ".pdf":
		return extractTextFromPDF(path)
	default:
		return "", fmt.Errorf("%w: unsupported file type %q", ErrConfiguration, ext)
	}
}

func loadText(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	docs, err := documentloaders.NewText(f).Load(ctx)
	if err != nil {
		return "", fmt.Errorf("loading %s: %w", filepath.Base(path), err)
	}
	var sb strings.Builder
	for _, d := range docs {
		sb.WriteString(d.PageContent)
	}
	return sb.String(), nil
}

// extractTextFromPDF uses UniPDF to get all text from a PDF file.
func extractTextFromPDF(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	pdfReader, err := model.NewPdfReader(f)
	if err != nil {
		return "", fmt.Errorf("reading pdf %s: %w", filepath.Base(path), err)
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for i := 1; i <= numPages; i++ {
		page, err := pdfReader.GetPage(i)
		if err != nil {
			return "", fmt.Errorf("pdf page %d: %w", i, err)
		}
		ex, err := extractor.New(page)
		if err != nil {
			return "", fmt.Errorf("pdf page %d: %w", i, err)
		}
		text, err := ex.ExtractText()
		if err != nil {
			return "", fmt.Errorf("pdf page %d: %w", i, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n\n") // pages become paragraphs for the chunker
	}
	return sb.String(), nil
}
