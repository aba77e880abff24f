package api

import (
	"errors"
	"io"
	"net/http"

	domainerrors "github.com/tellmeastory/zine-server/internal/errors"
	"github.com/tellmeastory/zine-server/internal/http/response"
	"github.com/tellmeastory/zine-server/internal/service"
)

// Submissions carry a cover image, so they are plain multipart handlers rather
// than huma operations.

// handleSubmitZine accepts name, bio, instagram_url and a cover file.
func (s *Server) handleSubmitZine(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserID(r.Context())
	if err != nil {
		response.Error(w, domainerrors.CodeNotAuthenticated, "Authentication required", s.logger)
		return
	}

	cover, ok := s.readSubmissionForm(w, r)
	if !ok {
		return
	}

	sub, err := s.services.Submissions.SubmitZine(r.Context(), userID, service.ZineSubmissionRequest{
		Name:         r.FormValue("name"),
		Bio:          r.FormValue("bio"),
		InstagramURL: r.FormValue("instagram_url"),
		Cover:        cover,
	})
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Created(w, sub, s.logger)
}

// handleSubmitIssue accepts zine_id, title, published_date, link_url and a cover file.
func (s *Server) handleSubmitIssue(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserID(r.Context())
	if err != nil {
		response.Error(w, domainerrors.CodeNotAuthenticated, "Authentication required", s.logger)
		return
	}

	cover, ok := s.readSubmissionForm(w, r)
	if !ok {
		return
	}

	sub, err := s.services.Submissions.SubmitIssue(r.Context(), userID, service.IssueSubmissionRequest{
		ZineID:        r.FormValue("zine_id"),
		Title:         r.FormValue("title"),
		PublishedDate: r.FormValue("published_date"),
		LinkURL:       r.FormValue("link_url"),
		Cover:         cover,
	})
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Created(w, sub, s.logger)
}

// readSubmissionForm parses the form and returns the cover bytes. On failure the
// error response has been written.
func (s *Server) readSubmissionForm(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, domainerrors.CodeValidation, "Upload too large", s.logger)
			return nil, false
		}
		response.Error(w, domainerrors.CodeValidation, "Failed to parse form data", s.logger)
		return nil, false
	}

	file, header, err := r.FormFile("cover")
	if err != nil {
		response.Error(w, domainerrors.CodeValidation, "No cover uploaded. Use the 'cover' field in a multipart form", s.logger)
		return nil, false
	}
	defer file.Close()

	if header.Size > service.MaxCoverUploadBytes {
		response.Error(w, domainerrors.CodeValidation, "Cover too large. Maximum size is 10MB", s.logger)
		return nil, false
	}

	data, err := io.ReadAll(io.LimitReader(file, service.MaxCoverUploadBytes+1))
	if err != nil {
		s.logger.Error("failed to read uploaded cover", "error", err)
		response.Error(w, domainerrors.CodeInternal, "Failed to read uploaded cover", s.logger)
		return nil, false
	}
	return data, true
}
