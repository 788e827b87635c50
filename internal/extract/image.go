package extract

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	xdraw "golang.org/x/image/draw"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"mediqcm/internal/models"
)

const (
	// maxImageDimension bounds the larger side of every forwarded image.
	maxImageDimension = 1024
	// jpegQuality is the re-encode quality for normalized images.
	jpegQuality = 85
)

// normalizeImage decodes an embedded image, flattens transparency onto an
// opaque white background, downscales it so neither dimension exceeds
// maxImageDimension, and re-encodes it as JPEG. This keeps the LLM payload
// within service limits regardless of source format.
func normalizeImage(raw []byte) (models.DocumentImage, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return models.DocumentImage{}, fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return models.DocumentImage{}, fmt.Errorf("decode image: empty bounds")
	}

	// Flatten alpha or palette onto white. JPEG has no alpha channel, so a
	// plain re-encode would turn transparent regions black.
	flat := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(flat, flat.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(flat, flat.Bounds(), src, bounds.Min, draw.Over)

	out := downscale(flat)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return models.DocumentImage{}, fmt.Errorf("encode jpeg: %w", err)
	}

	return models.DocumentImage{Data: buf.Bytes(), Format: "jpeg"}, nil
}

func downscale(src *image.RGBA) image.Image {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if w <= maxImageDimension && h <= maxImageDimension {
		return src
	}

	scale := float64(maxImageDimension) / float64(w)
	if h > w {
		scale = float64(maxImageDimension) / float64(h)
	}
	dw := int(float64(w) * scale)
	dh := int(float64(h) * scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}
