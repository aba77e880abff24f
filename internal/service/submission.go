package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tellmeastory/zine-server/internal/domain"
	domainerrors "github.com/tellmeastory/zine-server/internal/errors"
	"github.com/tellmeastory/zine-server/internal/media/images"
	"github.com/tellmeastory/zine-server/internal/objectstore"
	"github.com/tellmeastory/zine-server/internal/store"
)

// MaxCoverUploadBytes bounds an uploaded cover before decoding.
const MaxCoverUploadBytes = 10 << 20

// ZineSubmissionRequest proposes a new zine.
type ZineSubmissionRequest struct {
	Name         string `json:"name" validate:"required,notblank,max=120"`
	Bio          string `json:"bio" validate:"required,notblank,max=2000"`
	InstagramURL string `json:"instagram_url" validate:"omitempty,url,max=500"`
	Cover        []byte `json:"-" validate:"required"`
}

// IssueSubmissionRequest proposes a new issue of a catalog zine.
type IssueSubmissionRequest struct {
	ZineID        string `json:"zine_id" validate:"required"`
	Title         string `json:"title" validate:"required,notblank,max=200"`
	PublishedDate string `json:"published_date" validate:"required,ymd"`
	LinkURL       string `json:"link_url" validate:"omitempty,url,max=500"`
	Cover         []byte `json:"-" validate:"required"`
}

// SubmissionService stores zine and issue submissions for review.
type SubmissionService struct {
	docs    store.DocumentStore
	objects objectstore.Store
	catalog CatalogReader
	logger  *slog.Logger
	now     func() time.Time
}

// NewSubmissionService creates the service.
func NewSubmissionService(docs store.DocumentStore, objects objectstore.Store, catalog CatalogReader, logger *slog.Logger) *SubmissionService {
	return &SubmissionService{docs: docs, objects: objects, catalog: catalog, logger: logger, now: time.Now}
}

// SubmitZine uploads the cover and records the submission.
func (s *SubmissionService) SubmitZine(ctx context.Context, userID string, req ZineSubmissionRequest) (domain.ZineSubmission, error) {
	if userID == "" {
		return domain.ZineSubmission{}, domainerrors.NotAuthenticated()
	}
	if err := validate.Validate(req); err != nil {
		return domain.ZineSubmission{}, err
	}

	subID := uuid.NewString()
	path, err := s.storeCover(ctx, "submissions/zines/"+subID+"/cover.jpg", req.Cover)
	if err != nil {
		return domain.ZineSubmission{}, err
	}

	sub := domain.ZineSubmission{
		ID:             subID,
		UserID:         userID,
		Timestamp:      s.now().UTC(),
		Name:           req.Name,
		Bio:            req.Bio,
		InstagramURL:   req.InstagramURL,
		CoverImagePath: path,
	}
	data := map[string]any{
		"userId":         sub.UserID,
		"timestamp":      sub.Timestamp,
		"name":           sub.Name,
		"bio":            sub.Bio,
		"instagramUrl":   sub.InstagramURL,
		"coverImagePath": sub.CoverImagePath,
	}
	if err := s.docs.Set(ctx, store.CollectionZineSubmissions, subID, data, false); err != nil {
		return domain.ZineSubmission{}, persistence(err)
	}

	s.logger.Info("zine submitted", "submission_id", subID, "user_id", userID)
	return sub, nil
}

// SubmitIssue uploads the cover and records the submission. The zine must be in the catalog.
func (s *SubmissionService) SubmitIssue(ctx context.Context, userID string, req IssueSubmissionRequest) (domain.IssueSubmission, error) {
	if userID == "" {
		return domain.IssueSubmission{}, domainerrors.NotAuthenticated()
	}
	if err := validate.Validate(req); err != nil {
		return domain.IssueSubmission{}, err
	}
	if _, ok := s.catalog.Zine(req.ZineID); !ok {
		return domain.IssueSubmission{}, domainerrors.NotFoundf("zine %s not found", req.ZineID)
	}

	subID := uuid.NewString()
	path, err := s.storeCover(ctx, "submissions/issues/"+subID+"/cover.jpg", req.Cover)
	if err != nil {
		return domain.IssueSubmission{}, err
	}

	sub := domain.IssueSubmission{
		ID:             subID,
		UserID:         userID,
		Timestamp:      s.now().UTC(),
		ZineID:         req.ZineID,
		Title:          req.Title,
		PublishedDate:  req.PublishedDate,
		CoverImagePath: path,
		LinkURL:        req.LinkURL,
	}
	data := map[string]any{
		"userId":         sub.UserID,
		"timestamp":      sub.Timestamp,
		"zineId":         sub.ZineID,
		"title":          sub.Title,
		"publishedDate":  sub.PublishedDate,
		"coverImagePath": sub.CoverImagePath,
		"linkUrl":        sub.LinkURL,
	}
	if err := s.docs.Set(ctx, store.CollectionIssueSubmissions, subID, data, false); err != nil {
		return domain.IssueSubmission{}, persistence(err)
	}

	s.logger.Info("issue submitted", "submission_id", subID, "zine_id", req.ZineID, "user_id", userID)
	return sub, nil
}

// storeCover re-encodes any supported image as JPEG and uploads it.
func (s *SubmissionService) storeCover(ctx context.Context, path string, data []byte) (string, error) {
	if len(data) > MaxCoverUploadBytes {
		return "", domainerrors.Validationf("cover is %d bytes, the limit is %d", len(data), MaxCoverUploadBytes)
	}
	img, format, err := images.Decode(data)
	if err != nil {
		return "", domainerrors.Validation("cover is not a supported image").WithCause(err)
	}
	jpeg, err := images.EncodeJPEG(img, images.SubmissionJPEGQuality)
	if err != nil {
		return "", domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to encode cover")
	}
	stored, err := s.objects.Put(ctx, path, jpeg, "image/jpeg")
	if err != nil {
		return "", persistence(err)
	}
	s.logger.Debug("cover stored", "path", stored, "source_format", format, "bytes", len(jpeg))
	return stored, nil
}
