package extract

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"mediqcm/internal/models"
)

func extractPDF(data []byte) (doc *models.ExtractedDocument, err error) {
	// The pdf reader panics on some malformed cross-reference tables;
	// convert that into a container-level extraction failure.
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("%w: parse pdf: %v", ErrExtraction, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: open pdf: %v", ErrExtraction, err)
	}

	var pages []string
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			log.Printf("pdf: extract text page %d: %v", pageNum, err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, fmt.Sprintf("--- Page %d ---\n%s", pageNum, text))
	}

	images := collectPDFImages(data)

	return &models.ExtractedDocument{
		Text:   strings.Join(pages, "\n\n"),
		Images: images,
	}, nil
}

// collectPDFImages pulls embedded raster XObjects out of each page in page
// order and normalizes them. Any image that fails to extract or decode is
// skipped; a fully image-less result is fine.
func collectPDFImages(data []byte) []models.DocumentImage {
	pageImages, err := pdfapi.ExtractImagesRaw(bytes.NewReader(data), nil, pdfmodel.NewDefaultConfiguration())
	if err != nil {
		log.Printf("pdf: extract images: %v", err)
		return nil
	}

	var images []models.DocumentImage
	for _, byObjNr := range pageImages {
		// Map iteration order is random; object numbers give a stable
		// per-page ordering.
		objNrs := make([]int, 0, len(byObjNr))
		for nr := range byObjNr {
			objNrs = append(objNrs, nr)
		}
		sort.Ints(objNrs)

		for _, nr := range objNrs {
			if len(images) >= maxImages {
				return images
			}
			raw, err := io.ReadAll(byObjNr[nr])
			if err != nil {
				log.Printf("pdf: read image object %d: %v", nr, err)
				continue
			}
			img, err := normalizeImage(raw)
			if err != nil {
				log.Printf("pdf: normalize image object %d: %v", nr, err)
				continue
			}
			images = append(images, img)
		}
	}
	return images
}
