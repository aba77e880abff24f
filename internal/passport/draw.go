package passport

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Cover shadow: offset downwards, blurred, translucent black.
const (
	shadowOffsetY = 2
	shadowBlur    = 4
	shadowAlpha   = 0.3

	tileMargin = shadowBlur*2 + shadowOffsetY
	tileSize   = CoverSize + 2*tileMargin
)

var shadowColor = image.NewUniform(color.NRGBA{A: uint8(math.Round(255 * shadowAlpha))})

// coverMask is the shared anti-aliased rounded-rectangle mask of a cover.
var coverMask = roundedMask(CoverSize, CornerRadius)

// coverTile draws a cover scaled to CoverSize with rounded corners over its
// shadow, on a transparent tile with room for the blur.
func coverTile(cover image.Image) *image.RGBA {
	tile := image.NewRGBA(image.Rect(0, 0, tileSize, tileSize))
	coverRect := image.Rect(tileMargin, tileMargin, tileMargin+CoverSize, tileMargin+CoverSize)

	shadow := image.NewAlpha(tile.Bounds())
	draw.Draw(shadow, coverRect.Add(image.Pt(0, shadowOffsetY)), coverMask, image.Point{}, draw.Src)
	boxBlur(shadow, shadowBlur/2, 3)
	draw.DrawMask(tile, tile.Bounds(), shadowColor, image.Point{}, shadow, image.Point{}, draw.Over)

	scaled := image.NewRGBA(image.Rect(0, 0, CoverSize, CoverSize))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), cover, cover.Bounds(), draw.Src, nil)
	draw.DrawMask(tile, coverRect, scaled, image.Point{}, coverMask, image.Point{}, draw.Over)
	return tile
}

// placeTile draws tile onto dst centred at p and rotated by p.Rotation.
func placeTile(dst draw.Image, tile image.Image, p Placement) {
	sin, cos := math.Sincos(p.Rotation)
	c := float64(tileSize) / 2
	m := f64.Aff3{
		cos, -sin, p.X - (cos*c - sin*c),
		sin, cos, p.Y - (sin*c + cos*c),
	}
	draw.BiLinear.Transform(dst, m, tile, tile.Bounds(), draw.Over, nil)
}

// roundedMask returns a size x size alpha mask of a rounded square with
// one pixel of anti-aliasing on the corners.
func roundedMask(size, radius int) *image.Alpha {
	mask := image.NewAlpha(image.Rect(0, 0, size, size))
	r := float64(radius)
	for y := range size {
		for x := range size {
			px, py := float64(x)+0.5, float64(y)+0.5
			cx := math.Max(r, math.Min(px, float64(size)-r))
			cy := math.Max(r, math.Min(py, float64(size)-r))
			d := math.Hypot(px-cx, py-cy)
			a := math.Max(0, math.Min(1, r+0.5-d))
			mask.SetAlpha(x, y, color.Alpha{A: uint8(math.Round(a * 255))})
		}
	}
	return mask
}

// boxBlur blurs an alpha image in place. Three passes of a box blur
// approximate a Gaussian.
func boxBlur(img *image.Alpha, radius, passes int) {
	if radius <= 0 {
		return
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	tmp := make([]uint8, len(img.Pix))

	for range passes {
		blurLine(img.Pix, tmp, w, h, img.Stride, 1, radius)
		blurLine(tmp, img.Pix, h, w, 1, img.Stride, radius)
	}
}

// blurLine runs a sliding-window average along lines of n samples. Each line
// starts at line*lineStep and advances by step.
func blurLine(src, dst []uint8, n, lines, lineStep, step, radius int) {
	window := 2*radius + 1
	for line := range lines {
		base := line * lineStep
		sum := 0
		for i := -radius; i <= radius; i++ {
			sum += int(src[base+clamp(i, 0, n-1)*step])
		}
		for i := range n {
			dst[base+i*step] = uint8(sum / window)
			sum += int(src[base+clamp(i+radius+1, 0, n-1)*step])
			sum -= int(src[base+clamp(i-radius, 0, n-1)*step])
		}
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
