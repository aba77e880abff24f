package api

import (
	"github.com/tellmeastory/zine-server/internal/catalog"
	"github.com/tellmeastory/zine-server/internal/service"
)

// Services groups the business logic the API server calls into.
type Services struct {
	Catalog       *catalog.Service
	Sessions      *service.SessionRegistry
	Feed          *service.FeedService
	FanMail       *service.FanMailService
	Notifications *service.NotificationService
	Passport      *service.PassportService
	Submissions   *service.SubmissionService
	Accounts      *service.AccountService
}
