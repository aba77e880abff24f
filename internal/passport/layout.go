// Package passport renders the shareable collage of read issue covers.
package passport

import (
	"math"
	"math/rand/v2"
)

// Canvas and cover geometry, in pixels.
const (
	CanvasWidth  = 1200
	CanvasHeight = 1560
	CoverSize    = 180
	CornerRadius = 12
	Padding      = 20

	// MaxRotation bounds each cover's tilt, in radians.
	MaxRotation = 0.2
)

// Placement is where one cover goes: its centre and its rotation.
type Placement struct {
	X, Y     float64
	Rotation float64
}

// Layout places count covers on the canvas. Covers sit in a grid of
// int(sqrt(count))+1 columns, each nudged by up to a quarter cell from its
// cell centre, and the placements are shuffled so reading order does not map
// to grid order.
func Layout(count int, rng *rand.Rand) []Placement {
	if count <= 0 {
		return nil
	}

	half := float64(CoverSize) / 2
	minX, maxX := half+Padding, CanvasWidth-half-Padding
	minY, maxY := half+Padding, CanvasHeight-half-Padding

	cols := int(math.Sqrt(float64(count))) + 1
	rows := (count + cols - 1) / cols
	cellW := (maxX - minX) / float64(cols)
	cellH := (maxY - minY) / float64(rows)

	out := make([]Placement, count)
	for i := range out {
		row, col := i/cols, i%cols
		baseX := minX + cellW*float64(col) + cellW/2
		baseY := minY + cellH*float64(row) + cellH/2
		out[i] = Placement{
			X:        baseX + jitter(rng, cellW/4),
			Y:        baseY + jitter(rng, cellH/4),
			Rotation: jitter(rng, MaxRotation),
		}
	}
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// jitter returns a value in [-r, r].
func jitter(rng *rand.Rand, r float64) float64 {
	return (rng.Float64()*2 - 1) * r
}
