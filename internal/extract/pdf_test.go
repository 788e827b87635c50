package extract

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"testing"

	"mediqcm/internal/models"
)

func jpegBytes(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

// makePDF assembles a one-page PDF with the given page text, the given
// streams embedded as DCTDecode image XObjects, and a correct
// cross-reference table.
func makePDF(t *testing.T, text string, images ...[]byte) []byte {
	t.Helper()

	var content bytes.Buffer
	fmt.Fprintf(&content, "BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
	for i := range images {
		fmt.Fprintf(&content, "\nq 50 0 0 50 %d 500 cm /Im%d Do Q", 72+i*55, i+1)
	}

	var xobjects strings.Builder
	for i := range images {
		fmt.Fprintf(&xobjects, "/Im%d %d 0 R ", i+1, 6+i)
	}

	objects := [][]byte{
		[]byte("<< /Type /Catalog /Pages 2 0 R >>"),
		[]byte("<< /Type /Pages /Kids [3 0 R] /Count 1 >>"),
		[]byte(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> /XObject << %s>> >> /Contents 5 0 R >>", xobjects.String())),
		[]byte("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>"),
		[]byte(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", content.Len(), content.Bytes())),
	}
	for _, img := range images {
		var obj bytes.Buffer
		fmt.Fprintf(&obj, "<< /Type /XObject /Subtype /Image /Width 8 /Height 8 /ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter /DCTDecode /Length %d >>\nstream\n", len(img))
		obj.Write(img)
		obj.WriteString("\nendstream")
		objects = append(objects, obj.Bytes())
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n", i+1)
		buf.Write(obj)
		buf.WriteString("\nendobj\n")
	}

	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xrefOffset)
	return buf.Bytes()
}

func TestExtractPDFText(t *testing.T) {
	doc, err := Extract(makePDF(t, "Cardiology basics"), models.FileKindPDF)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.HasPrefix(doc.Text, "--- Page 1 ---") {
		t.Errorf("text must carry the page marker, got %q", doc.Text)
	}
	if !strings.Contains(doc.Text, "Cardiology basics") {
		t.Errorf("text = %q, want page content", doc.Text)
	}
}

func TestExtractPDFEmbeddedImages(t *testing.T) {
	data := makePDF(t, "ECG traces",
		jpegBytes(t, color.RGBA{R: 200, A: 255}),
		jpegBytes(t, color.RGBA{G: 200, A: 255}),
	)

	doc, err := Extract(data, models.FileKindPDF)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(doc.Images) != 2 {
		t.Fatalf("len(images) = %d, want 2", len(doc.Images))
	}
	for i, img := range doc.Images {
		if img.Format != "jpeg" {
			t.Errorf("image %d format = %q, want jpeg after normalization", i, img.Format)
		}
		decoded, err := jpeg.Decode(bytes.NewReader(img.Data))
		if err != nil {
			t.Fatalf("image %d does not decode: %v", i, err)
		}
		if b := decoded.Bounds(); b.Dx() != 8 || b.Dy() != 8 {
			t.Errorf("image %d bounds = %dx%d, want 8x8", i, b.Dx(), b.Dy())
		}
	}
	if !strings.Contains(doc.Text, "ECG traces") {
		t.Error("text extraction must run alongside image extraction")
	}
}

func TestExtractPDFImageCap(t *testing.T) {
	images := make([][]byte, maxImages+2)
	for i := range images {
		images[i] = jpegBytes(t, color.RGBA{R: uint8(i * 15), A: 255})
	}

	doc, err := Extract(makePDF(t, "Radiology atlas", images...), models.FileKindPDF)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(doc.Images) != maxImages {
		t.Errorf("len(images) = %d, want cap %d", len(doc.Images), maxImages)
	}
	if !strings.Contains(doc.Text, "Radiology atlas") {
		t.Error("text must be collected regardless of the image cap")
	}
}

func TestExtractPDFSkipsUndecodableImage(t *testing.T) {
	data := makePDF(t, "Histology slides",
		jpegBytes(t, color.RGBA{B: 200, A: 255}),
		[]byte("not a jpeg stream"),
	)

	doc, err := Extract(data, models.FileKindPDF)
	if err != nil {
		t.Fatalf("an undecodable image must not abort extraction: %v", err)
	}
	if len(doc.Images) != 1 {
		t.Errorf("len(images) = %d, want 1 (bad stream skipped)", len(doc.Images))
	}
}

func TestExtractPDFDeterministic(t *testing.T) {
	data := makePDF(t, "Hello World",
		jpegBytes(t, color.RGBA{R: 120, G: 40, A: 255}),
		jpegBytes(t, color.RGBA{B: 90, A: 255}),
		jpegBytes(t, color.RGBA{G: 60, B: 60, A: 255}),
	)

	a, err := Extract(data, models.FileKindPDF)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	b, err := Extract(data, models.FileKindPDF)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if a.Text != b.Text {
		t.Error("text must be identical across calls on identical bytes")
	}
	if len(a.Images) != len(b.Images) {
		t.Fatalf("image counts differ: %d vs %d", len(a.Images), len(b.Images))
	}
	for i := range a.Images {
		if !bytes.Equal(a.Images[i].Data, b.Images[i].Data) {
			t.Errorf("image %d bytes differ between runs", i)
		}
	}
}

func TestExtractPDFCorrupt(t *testing.T) {
	_, err := Extract([]byte("%PDF-1.4 truncated garbage"), models.FileKindPDF)
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
}
