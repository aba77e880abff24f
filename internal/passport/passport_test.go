package passport

import (
	"context"
	"errors"
	"image"
	"image/color"
	"log/slog"
	"math/rand/v2"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tellmeastory/zine-server/internal/media/images"
	"github.com/tellmeastory/zine-server/internal/metrics"
)

type fakeImages map[string]image.Image

func (f fakeImages) Image(_ context.Context, url string) (image.Image, error) {
	img, ok := f[url]
	if !ok {
		return nil, errors.New("404")
	}
	return img, nil
}

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	return img
}

func seeded() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func TestLayout_StaysOnCanvas(t *testing.T) {
	for _, n := range []int{1, 2, 5, 12, 40} {
		got := Layout(n, seeded())
		require.Len(t, got, n)
		for _, p := range got {
			assert.GreaterOrEqual(t, p.X, float64(CoverSize)/2+Padding-1)
			assert.LessOrEqual(t, p.X, float64(CanvasWidth-CoverSize/2-Padding)+1)
			assert.GreaterOrEqual(t, p.Y, float64(CoverSize)/2+Padding-1)
			assert.LessOrEqual(t, p.Y, float64(CanvasHeight-CoverSize/2-Padding)+1)
			assert.LessOrEqual(t, p.Rotation, MaxRotation)
			assert.GreaterOrEqual(t, p.Rotation, -MaxRotation)
		}
	}
	assert.Nil(t, Layout(0, seeded()))
}

func TestLayout_Deterministic(t *testing.T) {
	assert.Equal(t, Layout(7, seeded()), Layout(7, seeded()))
}

func TestLayout_OnePerCell(t *testing.T) {
	// 4 covers: 3 columns, 2 rows. Jitter stays inside a cell, so the column
	// index of each placement is distinct within a row.
	got := Layout(4, seeded())
	half := float64(CoverSize) / 2
	cellW := (CanvasWidth - 2*(half+Padding)) / 3
	cellH := (CanvasHeight - 2*(half+Padding)) / 2

	seen := map[[2]int]bool{}
	for _, p := range got {
		cell := [2]int{int((p.X - half - Padding) / cellW), int((p.Y - half - Padding) / cellH)}
		assert.False(t, seen[cell], "two covers in cell %v", cell)
		seen[cell] = true
	}
}

func TestRoundedMask(t *testing.T) {
	m := roundedMask(CoverSize, CornerRadius)
	assert.Equal(t, uint8(0), m.AlphaAt(0, 0).A)
	assert.Equal(t, uint8(255), m.AlphaAt(CoverSize/2, CoverSize/2).A)
	assert.Equal(t, uint8(255), m.AlphaAt(CoverSize/2, 0).A)
	assert.Equal(t, uint8(0), m.AlphaAt(CoverSize-1, CoverSize-1).A)
}

func TestBoxBlur_SpreadsAlpha(t *testing.T) {
	img := image.NewAlpha(image.Rect(0, 0, 9, 9))
	img.SetAlpha(4, 4, color.Alpha{A: 255})
	boxBlur(img, 1, 1)

	assert.Less(t, img.AlphaAt(4, 4).A, uint8(255))
	assert.Greater(t, img.AlphaAt(3, 3).A, uint8(0))
	assert.Equal(t, uint8(0), img.AlphaAt(0, 0).A)
}

func TestRender(t *testing.T) {
	src := fakeImages{
		"canvas": solid(300, 390, color.RGBA{0, 0, 255, 255}),
		"c1":     solid(60, 80, color.RGBA{255, 0, 0, 255}),
		"c2":     solid(90, 90, color.RGBA{0, 255, 0, 255}),
	}
	m := metrics.New()
	comp := NewCompositor(src, m, slog.Default())

	res, err := comp.Render(context.Background(), Request{
		CanvasURL: "canvas",
		Covers:    []Cover{{IssueID: "i1", ImageURL: "c1"}, {IssueID: "i2", ImageURL: "c2"}},
		Rand:      seeded(),
	})
	require.NoError(t, err)
	assert.Equal(t, CanvasWidth, res.Width)
	assert.NotEmpty(t, res.BlurHash)

	img, format, err := images.Decode(res.PNG)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, image.Rect(0, 0, CanvasWidth, CanvasHeight), img.Bounds())

	r, g, b, _ := img.At(2, 2).RGBA()
	assert.Less(t, r, uint32(0x1000), "corner shows the canvas")
	assert.Less(t, g, uint32(0x1000))
	assert.Greater(t, b, uint32(0xF000))

	assert.Equal(t, 1, testutil.CollectAndCount(m.PassportRender))
}

func TestRender_BackgroundWithoutCanvas(t *testing.T) {
	comp := NewCompositor(fakeImages{}, nil, slog.Default())

	res, err := comp.Render(context.Background(), Request{Background: color.RGBA{0x1A, 0x1A, 0x1A, 0xFF}, Rand: seeded()})
	require.NoError(t, err)

	img, _, err := images.Decode(res.PNG)
	require.NoError(t, err)
	r, _, _, _ := img.At(600, 700).RGBA()
	assert.Equal(t, uint32(0x1A1A), r)
}

func TestRender_LoadErrors(t *testing.T) {
	src := fakeImages{"c1": solid(10, 10, color.White)}
	comp := NewCompositor(src, nil, slog.Default())
	ctx := context.Background()

	_, err := comp.Render(ctx, Request{CanvasURL: "missing"})
	assert.ErrorIs(t, err, ErrCanvasLoading)

	_, err = comp.Render(ctx, Request{Covers: []Cover{{IssueID: "i1", ImageURL: "c1"}, {IssueID: "i9", ImageURL: "gone"}}})
	var coverErr *CoverLoadingError
	require.ErrorAs(t, err, &coverErr)
	assert.Equal(t, "i9", coverErr.IssueID)
	assert.Equal(t, "failed to load cover for issue: i9", coverErr.Error())
}
