package passport

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math/rand/v2"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/tellmeastory/zine-server/internal/media/images"
	"github.com/tellmeastory/zine-server/internal/metrics"
)

// maxConcurrentLoads bounds parallel cover downloads for one render.
const maxConcurrentLoads = 8

// ErrCanvasLoading is returned when the canvas background cannot be loaded.
var ErrCanvasLoading = errors.New("failed to load canvas background")

// CoverLoadingError reports the issue whose cover could not be loaded.
type CoverLoadingError struct {
	Err     error
	IssueID string
}

func (e *CoverLoadingError) Error() string {
	return fmt.Sprintf("failed to load cover for issue: %s", e.IssueID)
}

func (e *CoverLoadingError) Unwrap() error { return e.Err }

// ImageSource resolves image URLs, normally the image cache.
type ImageSource interface {
	Image(ctx context.Context, url string) (image.Image, error)
}

// Cover is one read issue to place on the passport.
type Cover struct {
	IssueID  string
	ImageURL string
}

// Request describes one render.
type Request struct {
	// Background fills the canvas when CanvasURL is empty.
	Background color.Color
	// Rand drives the layout. Nil uses a fresh random source.
	Rand      *rand.Rand
	CanvasURL string
	Covers    []Cover
}

// Result is a rendered passport.
type Result struct {
	PNG      []byte
	BlurHash string
	Width    int
	Height   int
}

// Compositor renders passports.
type Compositor struct {
	images  ImageSource
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewCompositor creates a compositor. m may be nil.
func NewCompositor(src ImageSource, m *metrics.Metrics, logger *slog.Logger) *Compositor {
	return &Compositor{images: src, metrics: m, logger: logger}
}

// Render loads the canvas and every cover concurrently, then draws the covers
// over the canvas. Any failed load fails the whole render.
func (c *Compositor) Render(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	canvas, covers, err := c.load(ctx, req)
	if err != nil {
		return nil, err
	}

	rng := req.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // layout jitter
	}

	dst := image.NewRGBA(image.Rect(0, 0, CanvasWidth, CanvasHeight))
	if canvas != nil {
		draw.CatmullRom.Scale(dst, dst.Bounds(), canvas, canvas.Bounds(), draw.Src, nil)
	} else {
		bg := req.Background
		if bg == nil {
			bg = color.White
		}
		draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	}

	for i, p := range Layout(len(covers), rng) {
		placeTile(dst, coverTile(covers[i]), p)
	}

	png, err := images.EncodePNG(dst)
	if err != nil {
		return nil, err
	}
	hash, err := images.BlurHash(dst)
	if err != nil {
		c.logger.Warn("failed to compute passport blurhash", "error", err)
	}

	elapsed := time.Since(start)
	if c.metrics != nil {
		c.metrics.PassportRender.Observe(elapsed.Seconds())
	}
	c.logger.Debug("rendered passport", "covers", len(covers), "bytes", len(png), "duration", elapsed)

	return &Result{PNG: png, BlurHash: hash, Width: CanvasWidth, Height: CanvasHeight}, nil
}

func (c *Compositor) load(ctx context.Context, req Request) (image.Image, []image.Image, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLoads)

	var canvas image.Image
	if req.CanvasURL != "" {
		g.Go(func() error {
			img, err := c.images.Image(gctx, req.CanvasURL)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrCanvasLoading, err)
			}
			canvas = img
			return nil
		})
	}

	covers := make([]image.Image, len(req.Covers))
	for i, cv := range req.Covers {
		g.Go(func() error {
			if cv.ImageURL == "" {
				return &CoverLoadingError{IssueID: cv.IssueID, Err: errors.New("issue has no cover")}
			}
			img, err := c.images.Image(gctx, cv.ImageURL)
			if err != nil {
				return &CoverLoadingError{IssueID: cv.IssueID, Err: err}
			}
			covers[i] = img
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return canvas, covers, nil
}
