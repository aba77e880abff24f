package api

import (
	"net/http"

	domainerrors "github.com/tellmeastory/zine-server/internal/errors"
	"github.com/tellmeastory/zine-server/internal/http/response"
)

// handleEvents streams the caller's events over SSE. Opening the stream also
// opens the user's session so its listeners start pushing changes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserID(r.Context())
	if err != nil {
		response.Error(w, domainerrors.CodeNotAuthenticated, "Authentication required", s.logger)
		return
	}
	if s.sseHandler == nil {
		response.Error(w, domainerrors.CodeInternal, "Event stream not available", s.logger)
		return
	}
	if _, err := s.services.Sessions.Get(r.Context(), userID); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	s.sseHandler.Stream(w, r, userID)
}
