package extract

import (
	"errors"
	"fmt"

	"mediqcm/internal/models"
)

var (
	// ErrUnsupportedInput is returned before any parsing when the file kind
	// is not one of the two supported containers.
	ErrUnsupportedInput = errors.New("unsupported file kind")
	// ErrExtraction wraps container-level parse failures (corrupt archive or
	// PDF stream). Per-image failures never produce it; they are skipped.
	ErrExtraction = errors.New("document extraction failed")
)

const (
	// maxImages bounds how many embedded images are collected per document.
	// Text collection continues past the cap.
	maxImages = 10
)

// Extract converts an uploaded file into plain text plus a bounded set of
// normalized images. Ordering of both follows source document order, so two
// calls on identical bytes yield identical output.
func Extract(data []byte, kind models.FileKind) (*models.ExtractedDocument, error) {
	switch kind {
	case models.FileKindWord:
		return extractWord(data)
	case models.FileKindPDF:
		return extractPDF(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedInput, kind)
	}
}
