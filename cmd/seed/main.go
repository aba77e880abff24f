// Package main seeds the configured document store with demo fan mail.
//
// The catalog is loaded the same way the server loads it, so the messages
// reference real zines.
//
// Usage:
//
//	go run ./cmd/seed -catalog-file ./testdata/catalog.json -messages 30
//	STORAGE_BACKEND=firestore FIREBASE_PROJECT_ID=my-project go run ./cmd/seed
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/samber/do/v2"

	"github.com/tellmeastory/zine-server/internal/catalog"
	"github.com/tellmeastory/zine-server/internal/di"
	"github.com/tellmeastory/zine-server/internal/di/providers"
	"github.com/tellmeastory/zine-server/internal/logger"
)

var (
	messages = flag.Int("messages", 20, "Number of fan mail messages to create")
	users    = flag.Int("users", 8, "Number of demo users posting and voting")
	seed     = flag.Uint64("seed", 1, "Random seed")
)

var demoTexts = []string{
	"Picked this up at the fest and read it twice on the bus home.",
	"The collage work in the last issue is unreal.",
	"Finally a zine that gets what this scene is about.",
	"Please never stop making these.",
	"Shared my copy with the whole house. Nobody gave it back.",
	"That interview made my week.",
	"Can we get a reprint of the first issue?",
	"The hand lettering alone is worth it.",
	"Found you through a friend, now I have every issue.",
	"This one hit close to home. Thank you for writing it.",
}

func main() {
	injector := di.NewContainer()
	if err := run(injector); err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		_ = injector.Shutdown()
		os.Exit(1)
	}
	_ = injector.Shutdown()
}

func run(injector *do.RootScope) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	log, err := do.Invoke[*logger.Logger](injector)
	if err != nil {
		return err
	}
	catalogService, err := do.Invoke[*catalog.Service](injector)
	if err != nil {
		return err
	}
	fanMail, err := do.Invoke[*providers.FanMailServiceHandle](injector)
	if err != nil {
		return err
	}

	if _, err := catalogService.Refresh(ctx); err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	zines := catalogService.Zines()
	if len(zines) == 0 {
		return errors.New("catalog has no zines")
	}
	if *users < 1 {
		return errors.New("need at least one user")
	}

	rng := rand.New(rand.NewPCG(*seed, *seed))
	userIDs := make([]string, *users)
	for i := range userIDs {
		userIDs[i] = fmt.Sprintf("demo-user-%02d", i+1)
	}

	posted, votes := 0, 0
	for n := range *messages {
		author := userIDs[n%len(userIDs)]
		zine := zines[rng.IntN(len(zines))]
		text := demoTexts[rng.IntN(len(demoTexts))]

		msg, err := fanMail.Post(ctx, author, zine, text)
		if err != nil {
			log.WithUser(author).WithError(err).Warn("Skipping message", "zine_id", zine.ID)
			continue
		}
		posted++

		for _, voter := range userIDs {
			if voter == author || rng.IntN(3) != 0 {
				continue
			}
			// Mostly upvotes, with the odd downvote.
			if _, err := fanMail.Vote(ctx, voter, msg.ID, rng.IntN(5) != 0); err != nil {
				log.WithUser(voter).WithError(err).Warn("Vote failed", "message_id", msg.ID)
				continue
			}
			votes++
		}
	}

	log.Info("Seeded fan mail", "messages", posted, "votes", votes, "zines", len(zines))
	return nil
}
