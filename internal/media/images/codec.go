// Package images decodes, scales and encodes the cover images handled by the
// passport compositor and the submission flow.
package images

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// SubmissionJPEGQuality is the quality submitted covers are re-encoded with.
const SubmissionJPEGQuality = 80

// Decode decodes JPEG, PNG, GIF or WebP data.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// EncodeJPEG encodes img as JPEG.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Thumbnail scales img so its longest side is at most size, keeping the
// aspect ratio. Smaller images are returned as they are.
func Thumbnail(img image.Image, size int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= size && h <= size {
		return img
	}

	dw, dh := size, size
	if w > h {
		dh = max(1, h*size/w)
	} else {
		dw = max(1, w*size/h)
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Fill scales img to exactly w x h, cropping the longer axis around the
// centre.
func Fill(img image.Image, w, h int) *image.RGBA {
	b := img.Bounds()
	src := b
	if b.Dx()*h > b.Dy()*w {
		cw := b.Dy() * w / h
		x0 := b.Min.X + (b.Dx()-cw)/2
		src = image.Rect(x0, b.Min.Y, x0+cw, b.Max.Y)
	} else if b.Dx()*h < b.Dy()*w {
		ch := b.Dx() * h / w
		y0 := b.Min.Y + (b.Dy()-ch)/2
		src = image.Rect(b.Min.X, y0, b.Max.X, y0+ch)
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
	return dst
}
