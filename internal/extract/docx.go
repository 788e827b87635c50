package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"path"
	"sort"
	"strconv"
	"strings"

	"mediqcm/internal/models"
)

// A .docx file is a zip archive. Text lives in word/document.xml as a flat
// sequence of paragraphs (w:p) and tables (w:tbl); embedded images are
// referenced through word/_rels/document.xml.rels and stored under word/.

func extractWord(data []byte) (*models.ExtractedDocument, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: open docx archive: %v", ErrExtraction, err)
	}

	docXML, err := readZipFile(zr, "word/document.xml")
	if err != nil {
		return nil, fmt.Errorf("%w: read word/document.xml: %v", ErrExtraction, err)
	}

	blocks, err := walkDocumentXML(docXML)
	if err != nil {
		return nil, fmt.Errorf("%w: parse word/document.xml: %v", ErrExtraction, err)
	}

	images := collectWordImages(zr)

	return &models.ExtractedDocument{
		Text:   strings.Join(blocks, "\n\n"),
		Images: images,
	}, nil
}

// walkDocumentXML streams through the document body collecting paragraph and
// table text in document order. Paragraphs inside tables belong to their
// cell, not to the top-level sequence.
func walkDocumentXML(docXML []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(docXML))

	var (
		blocks []string

		tableDepth int
		paraDepth  int
		para       strings.Builder

		rows     []string
		rowCells []string
		cell     strings.Builder
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth++
				if tableDepth == 1 {
					rows = rows[:0]
				}
			case "tr":
				if tableDepth == 1 {
					rowCells = rowCells[:0]
				}
			case "tc":
				if tableDepth == 1 {
					cell.Reset()
				}
			case "p":
				paraDepth++
				if tableDepth == 0 && paraDepth == 1 {
					para.Reset()
				}
			case "t":
				var text string
				if err := dec.DecodeElement(&text, &t); err != nil {
					return nil, err
				}
				switch {
				case tableDepth > 0:
					cell.WriteString(text)
				case paraDepth > 0:
					para.WriteString(text)
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth--
				if tableDepth == 0 && len(rows) > 0 {
					blocks = append(blocks, strings.Join(rows, "\n"))
				}
			case "tr":
				if tableDepth == 1 {
					row := strings.TrimSpace(strings.Join(rowCells, " | "))
					if row != "" {
						rows = append(rows, strings.Join(rowCells, " | "))
					}
				}
			case "tc":
				if tableDepth == 1 {
					rowCells = append(rowCells, strings.TrimSpace(cell.String()))
				}
			case "p":
				paraDepth--
				if tableDepth == 0 && paraDepth == 0 {
					if text := strings.TrimSpace(para.String()); text != "" {
						blocks = append(blocks, text)
					}
				}
			}
		}
	}

	return blocks, nil
}

type relationships struct {
	Relationships []relationship `xml:"Relationship"`
}

type relationship struct {
	ID     string `xml:"Id,attr"`
	Type   string `xml:"Type,attr"`
	Target string `xml:"Target,attr"`
}

// collectWordImages resolves image relationships and normalizes each target.
// A single unreadable image is skipped, not fatal.
func collectWordImages(zr *zip.Reader) []models.DocumentImage {
	relXML, err := readZipFile(zr, "word/_rels/document.xml.rels")
	if err != nil {
		return nil
	}

	var rels relationships
	if err := xml.Unmarshal(relXML, &rels); err != nil {
		log.Printf("docx: parse relationships: %v", err)
		return nil
	}

	var imageRels []relationship
	for _, rel := range rels.Relationships {
		if strings.HasSuffix(rel.Type, "/image") {
			imageRels = append(imageRels, rel)
		}
	}
	// Relationship IDs are "rId<n>"; sort numerically so the sequence is
	// stable across identical inputs.
	sort.SliceStable(imageRels, func(i, j int) bool {
		return relOrdinal(imageRels[i].ID) < relOrdinal(imageRels[j].ID)
	})

	var images []models.DocumentImage
	for _, rel := range imageRels {
		if len(images) >= maxImages {
			break
		}
		target := path.Clean("word/" + strings.TrimPrefix(rel.Target, "/"))
		raw, err := readZipFile(zr, target)
		if err != nil {
			log.Printf("docx: read image %s: %v", target, err)
			continue
		}
		img, err := normalizeImage(raw)
		if err != nil {
			log.Printf("docx: normalize image %s: %v", target, err)
			continue
		}
		images = append(images, img)
	}
	return images
}

func relOrdinal(id string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(id, "rId"))
	if err != nil {
		return 1 << 30
	}
	return n
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	f, err := zr.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
