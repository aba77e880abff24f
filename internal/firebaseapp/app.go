// Package firebaseapp builds the shared Firebase app behind the firestore, fcm,
// Cloud Storage and Firebase Auth backends.
package firebaseapp

import (
	"context"
	"errors"
	"fmt"
	"os"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"github.com/tellmeastory/zine-server/internal/config"
)

// New initializes a Firebase app. Credentials come from inline service account
// JSON, then a credentials file, then application default credentials.
func New(ctx context.Context, cfg config.FirebaseConfig) (*firebase.App, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firebase project id is required")
	}

	opts, err := ClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID:     cfg.ProjectID,
		StorageBucket: cfg.StorageBucket,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase init: %w", err)
	}
	return app, nil
}

// ClientOptions returns the credential options for cfg.
func ClientOptions(cfg config.FirebaseConfig) ([]option.ClientOption, error) {
	switch {
	case cfg.CredentialsJSON != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(cfg.CredentialsJSON))}, nil
	case cfg.CredentialsFile != "":
		if _, err := os.Stat(cfg.CredentialsFile); err != nil {
			return nil, fmt.Errorf("credentials file %q not readable: %w", cfg.CredentialsFile, err)
		}
		return []option.ClientOption{option.WithCredentialsFile(cfg.CredentialsFile)}, nil
	default:
		return nil, nil
	}
}
