package domain

import "time"

// Account is a locally registered user. Only used when the server issues its own tokens.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Device is a push-capable installation of the app, stored at users/{uid}/devices/{id}.
type Device struct {
	ID           string    `json:"id"`
	Token        string    `json:"token"`
	Platform     string    `json:"platform"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// ZineSubmission proposes a new zine for the catalog.
type ZineSubmission struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Timestamp      time.Time `json:"timestamp"`
	Name           string    `json:"name"`
	Bio            string    `json:"bio"`
	InstagramURL   string    `json:"instagramUrl"`
	CoverImagePath string    `json:"coverImagePath"`
}

// IssueSubmission proposes a new issue of an existing zine.
type IssueSubmission struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Timestamp      time.Time `json:"timestamp"`
	ZineID         string    `json:"zineId"`
	Title          string    `json:"title"`
	PublishedDate  string    `json:"publishedDate"`
	CoverImagePath string    `json:"coverImagePath"`
	LinkURL        string    `json:"linkUrl"`
}
