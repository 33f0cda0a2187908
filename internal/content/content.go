// Package content turns a paperless document into the plain text sent to the
// model: HTML bodies are reduced to text, and documents without OCR content
// can fall back to the text layer of their archived PDF.
package content

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/paperllm/internal/paperless"
)

// Downloader fetches the stored file of a document.
type Downloader interface {
	Download(ctx context.Context, id int) ([]byte, error)
}

// Extractor resolves the text of a document.
type Extractor struct {
	downloader  Downloader
	pdfFallback bool
	logger      *slog.Logger
}

// NewExtractor creates an Extractor. With pdfFallback set, documents whose
// content is blank are downloaded and their PDF text layer is used instead.
func NewExtractor(d Downloader, pdfFallback bool) *Extractor {
	return &Extractor{
		downloader:  d,
		pdfFallback: pdfFallback,
		logger:      slog.Default(),
	}
}

// Text returns the model input for doc.
func (e *Extractor) Text(ctx context.Context, doc paperless.Document) (string, error) {
	text := doc.Content
	if IsHTML(text) {
		t, err := HTMLText(text)
		if err != nil {
			return "", fmt.Errorf("converting html: %w", err)
		}
		text = t
	}

	if strings.TrimSpace(text) != "" || !e.pdfFallback || e.downloader == nil {
		return text, nil
	}

	data, err := e.downloader.Download(ctx, doc.ID)
	if err != nil {
		return "", err
	}
	if !IsPDF(data) {
		e.logger.Debug("empty content and no pdf archive", "doc_id", doc.ID)
		return text, nil
	}

	t, err := PDFText(data)
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	e.logger.Info("using pdf text layer for empty content", "doc_id", doc.ID, "chars", len(t))
	return t, nil
}

// IsPDF reports whether data starts with the PDF magic bytes.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}
