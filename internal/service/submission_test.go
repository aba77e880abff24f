package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/tellmeastory/zine-server/internal/errors"
	"github.com/tellmeastory/zine-server/internal/media/images"
	"github.com/tellmeastory/zine-server/internal/objectstore"
	"github.com/tellmeastory/zine-server/internal/store"
	"github.com/tellmeastory/zine-server/internal/store/sqlite"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func setupTestSubmissions(t *testing.T) (*SubmissionService, *sqlite.Store, *objectstore.Local) {
	t.Helper()
	docs := setupTestDocs(t)
	objects, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	return NewSubmissionService(docs, objects, staticCatalog{alpha, beta}, discardLogger()), docs, objects
}

func TestSubmissions_SubmitZine(t *testing.T) {
	svc, docs, objects := setupTestSubmissions(t)
	ctx := context.Background()

	sub, err := svc.SubmitZine(ctx, "u1", ZineSubmissionRequest{
		Name:         "Delta",
		Bio:          "A new zine",
		InstagramURL: "https://instagram.com/delta",
		Cover:        pngBytes(t, 40, 60),
	})
	require.NoError(t, err)
	assert.Equal(t, "submissions/zines/"+sub.ID+"/cover.jpg", sub.CoverImagePath)

	doc, err := docs.Get(ctx, store.CollectionZineSubmissions, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "Delta", doc.Data["name"])
	assert.Equal(t, "u1", doc.Data["userId"])

	stored, err := objects.Get(ctx, sub.CoverImagePath)
	require.NoError(t, err)
	_, format, err := images.Decode(stored)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestSubmissions_SubmitZineRejectsBadInput(t *testing.T) {
	svc, docs, _ := setupTestSubmissions(t)
	ctx := context.Background()

	_, err := svc.SubmitZine(ctx, "u1", ZineSubmissionRequest{Name: "", Bio: "x", Cover: pngBytes(t, 4, 4)})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, err = svc.SubmitZine(ctx, "u1", ZineSubmissionRequest{Name: "Delta", Bio: "x", Cover: []byte("not an image")})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, err = svc.SubmitZine(ctx, "", ZineSubmissionRequest{Name: "Delta", Bio: "x", Cover: pngBytes(t, 4, 4)})
	assert.ErrorIs(t, err, domainerrors.ErrNotAuthenticated)

	assert.Equal(t, 0, countDocs(t, docs, store.CollectionZineSubmissions))
}

func TestSubmissions_SubmitIssue(t *testing.T) {
	svc, docs, _ := setupTestSubmissions(t)
	ctx := context.Background()

	req := IssueSubmissionRequest{
		ZineID:        "z2",
		Title:         "Issue 2",
		PublishedDate: "2024-06-01",
		LinkURL:       "https://example.com/beta/2",
		Cover:         pngBytes(t, 20, 20),
	}
	sub, err := svc.SubmitIssue(ctx, "u1", req)
	require.NoError(t, err)
	assert.Equal(t, "z2", sub.ZineID)
	assert.Equal(t, 1, countDocs(t, docs, store.CollectionIssueSubmissions))

	req.ZineID = "missing"
	_, err = svc.SubmitIssue(ctx, "u1", req)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	req.ZineID = "z2"
	req.PublishedDate = "June 1st"
	_, err = svc.SubmitIssue(ctx, "u1", req)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}
