package validation_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/tellmeastory/zine-server/internal/errors"
	"github.com/tellmeastory/zine-server/internal/validation"
)

type issueRequest struct {
	ZineID        string `json:"zine_id" validate:"notblank"`
	Title         string `json:"title" validate:"required,max=200"`
	PublishedDate string `json:"published_date" validate:"ymd"`
	LinkURL       string `json:"link_url" validate:"required,url"`
}

type fanMailRequest struct {
	Text string `json:"text" validate:"fanmail"`
}

func validIssue() issueRequest {
	return issueRequest{
		ZineID:        "z1",
		Title:         "Issue #4",
		PublishedDate: "2024-03-09",
		LinkURL:       "https://example.com/4",
	}
}

func TestValidator_Success(t *testing.T) {
	v := validation.New()

	assert.NoError(t, v.Validate(validIssue()))
	assert.NoError(t, v.Validate(fanMailRequest{Text: "love this issue"}))
}

func TestValidator_FieldErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name      string
		mutate    func(*issueRequest)
		wantField string
		wantMsg   string
	}{
		{"blank zine id", func(r *issueRequest) { r.ZineID = "   " }, "zine_id", "is required"},
		{"bad date", func(r *issueRequest) { r.PublishedDate = "03/09/2024" }, "published_date", "YYYY-MM-DD"},
		{"impossible date", func(r *issueRequest) { r.PublishedDate = "2024-02-31" }, "published_date", "YYYY-MM-DD"},
		{"bad link", func(r *issueRequest) { r.LinkURL = "not a url" }, "link_url", "valid URL"},
		{"long title", func(r *issueRequest) { r.Title = strings.Repeat("a", 201) }, "title", "must not exceed 200"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validIssue()
			tt.mutate(&req)

			err := v.Validate(req)
			require.Error(t, err)

			var derr *domainerrors.Error
			require.ErrorAs(t, err, &derr)
			assert.Equal(t, http.StatusBadRequest, derr.HTTPStatus())

			details, ok := derr.Details.(map[string]string)
			require.True(t, ok)
			assert.Contains(t, details[tt.wantField], tt.wantMsg)
		})
	}
}

func TestValidator_FanMailText(t *testing.T) {
	v := validation.New()

	assert.Error(t, v.Validate(fanMailRequest{Text: ""}))
	assert.Error(t, v.Validate(fanMailRequest{Text: strings.Repeat("x", 141)}))
	assert.NoError(t, v.Validate(fanMailRequest{Text: strings.Repeat("é", 140)}))
}
