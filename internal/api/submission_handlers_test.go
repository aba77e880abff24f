package api

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tellmeastory/zine-server/internal/domain"
)

func coverPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 30, 40))
	for y := range 40 {
		for x := range 30 {
			img.Set(x, y, color.RGBA{R: 240, G: 20, B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, path, token string, fields map[string]string, cover []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if cover != nil {
		part, err := w.CreateFormFile("cover", "cover.png")
		require.NoError(t, err)
		_, err = part.Write(cover)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	return rec
}

func TestSubmissions_Zine(t *testing.T) {
	ts := setupTestServer(t, true)
	token, userID := ts.register(t, "maker@example.com")

	resp := ts.do(multipartRequest(t, "/api/v1/submissions/zines", token, map[string]string{
		"name":          "Gamma",
		"bio":           "Risograph poetry",
		"instagram_url": "https://instagram.com/gamma",
	}, coverPNG(t)))
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	env := decodeEnvelope[domain.ZineSubmission](t, resp)
	assert.True(t, env.Success)
	assert.Equal(t, userID, env.Data.UserID)
	assert.Equal(t, "submissions/zines/"+env.Data.ID+"/cover.jpg", env.Data.CoverImagePath)
}

func TestSubmissions_Issue(t *testing.T) {
	ts := setupTestServer(t, true)
	token, _ := ts.register(t, "maker@example.com")

	fields := map[string]string{
		"zine_id":        "z2",
		"title":          "Second Wave",
		"published_date": "2024-07-01",
	}
	resp := ts.do(multipartRequest(t, "/api/v1/submissions/issues", token, fields, coverPNG(t)))
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	fields["zine_id"] = "z9"
	resp = ts.do(multipartRequest(t, "/api/v1/submissions/issues", token, fields, coverPNG(t)))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestSubmissions_Errors(t *testing.T) {
	ts := setupTestServer(t, true)
	token, _ := ts.register(t, "maker@example.com")
	fields := map[string]string{"name": "Gamma", "bio": "Poetry"}

	resp := ts.do(multipartRequest(t, "/api/v1/submissions/zines", "", fields, coverPNG(t)))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = ts.do(multipartRequest(t, "/api/v1/submissions/zines", token, fields, nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = ts.do(multipartRequest(t, "/api/v1/submissions/zines", token, fields, []byte("not an image")))
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	var env map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env))
	assert.Equal(t, "VALIDATION", env["code"])
	assert.Equal(t, float64(EnvelopeVersion), env["v"])
}
