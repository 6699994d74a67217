// Package main provides a tool to seed the databases with test exchange data.
//
// This creates test attendees and simulates card scans between them so the
// contact lists, inbox handshake, and connection tally have realistic data.
//
// Usage:
//
//	DATA_PATH=~/CardLink/data go run ./cmd/seed
//	DATA_PATH=~/CardLink/data go run ./cmd/seed --scans=10
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/cardlinkapp/cardlink-server/internal/auth"
	"github.com/cardlinkapp/cardlink-server/internal/domain"
	"github.com/cardlinkapp/cardlink-server/internal/id"
	"github.com/cardlinkapp/cardlink-server/internal/mirror"
	"github.com/cardlinkapp/cardlink-server/internal/service"
	"github.com/cardlinkapp/cardlink-server/internal/store"
)

var scansPerUser = flag.Int("scans", 4, "Number of scans to simulate per attendee")

// testAttendees are the profiles for generated test users.
var testAttendees = []struct {
	firstName string
	lastName  string
	title     string
	company   string
}{
	{"Alex", "Rivera", "Platform Engineer", "Northwind"},
	{"Jordan", "Chen", "Staff Engineer", "Initech"},
	{"Sam", "Taylor", "Developer Advocate", "Globex"},
	{"Casey", "Morgan", "Engineering Manager", "Umbrella"},
	{"Riley", "Kim", "SRE", "Hooli"},
	{"Morgan", "Patel", "CTO", "Pied Piper"},
}

func main() {
	flag.Parse()

	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("Failed to resolve home directory: %v", err)
		}
		dataPath = filepath.Join(home, "CardLink", "data")
	}

	fmt.Printf("Opening databases under: %s\n", dataPath)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := store.New(filepath.Join(dataPath, "snapshots"), logger)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	m, err := mirror.Open(filepath.Join(dataPath, "mirror.db"), logger)
	if err != nil {
		log.Fatalf("Failed to open mirror: %v", err)
	}
	defer m.Close()

	ctx := context.Background()

	instanceService := service.NewInstanceService(s, logger)
	instance, err := instanceService.GetInstance(ctx)
	if err != nil {
		log.Fatalf("Failed to load instance: %v", err)
	}
	fmt.Printf("Event: %s\n", instance.EventID)

	exchange := service.NewExchangeService(s, m, service.NoopEmitter{}, nil, logger)

	users := createTestUsers(ctx, s)
	if len(users) == 0 {
		log.Fatal("No test users available to seed")
	}

	// Give every attendee an own card and an active exchange session.
	for _, user := range users {
		scope := domain.Scope{EventID: instance.EventID, UserID: user.ID}

		if _, err := exchange.StartSession(ctx, scope); err != nil {
			log.Printf("Failed to start session for %s: %v", user.Email, err)
			continue
		}
		if err := exchange.EditOwnCard(ctx, scope, user.card); err != nil {
			log.Printf("Failed to set own card for %s: %v", user.Email, err)
		}
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	// Simulate scans: each attendee scans a few random others. The scan adds
	// the scanned card locally and queues the reciprocal message for the
	// other side's inbox.
	totalScans := 0
	for _, scanner := range users {
		scope := domain.Scope{EventID: instance.EventID, UserID: scanner.ID}

		shuffled := make([]*seededUser, len(users))
		copy(shuffled, users)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		scanned := 0
		for _, other := range shuffled {
			if other.ID == scanner.ID || scanned >= *scansPerUser {
				continue
			}
			if err := exchange.AddCard(ctx, scope, other.card, false); err != nil {
				// Duplicates are expected when scans overlap
				continue
			}
			scanned++
			totalScans++
		}

		fmt.Printf("  %s scanned %d attendees\n", scanner.card.FullName(), scanned)
	}

	// Drain every inbox so the reciprocal cards land in contact lists.
	for _, user := range users {
		scope := domain.Scope{EventID: instance.EventID, UserID: user.ID}
		processed, err := exchange.ProcessInboundMessages(ctx, scope)
		if err != nil {
			log.Printf("Failed to process inbox for %s: %v", user.Email, err)
			continue
		}
		if processed > 0 {
			fmt.Printf("  %s received %d reciprocal cards\n", user.card.FullName(), processed)
		}
	}

	count, err := exchange.ConnectionCount(ctx, instance.EventID)
	if err != nil {
		log.Printf("Failed to read connection tally: %v", err)
	} else {
		fmt.Printf("\nEvent connection tally: %d (%d new scans this run)\n", count, totalScans)
	}

	fmt.Println("\nSeeding complete!")
}

// seededUser pairs a created account with the card it shares.
type seededUser struct {
	*domain.User
	card domain.Card
}

// createTestUsers creates the test attendee accounts, skipping any that
// already exist, and returns all of them with their cards.
func createTestUsers(ctx context.Context, s *store.Store) []*seededUser {
	fmt.Println("\n=== Creating Test Attendees ===")

	passwordHash, err := auth.HashPassword("testpass123")
	if err != nil {
		log.Printf("Failed to hash password: %v", err)
		return nil
	}

	now := time.Now()
	users := make([]*seededUser, 0, len(testAttendees))

	for i, profile := range testAttendees {
		email := fmt.Sprintf("test%d@example.com", i+1)

		user, _ := s.GetUserByEmail(ctx, email)
		if user != nil {
			fmt.Printf("  User %s already exists, reusing\n", email)
		} else {
			user = &domain.User{
				Syncable: domain.Syncable{
					ID:        id.MustGenerate("usr"),
					CreatedAt: now,
					UpdatedAt: now,
				},
				Email:        email,
				PasswordHash: passwordHash,
				Role:         domain.RoleAttendee,
				DisplayName:  profile.firstName + " " + profile.lastName,
				FirstName:    profile.firstName,
				LastName:     profile.lastName,
			}
			if err := s.CreateUser(ctx, user); err != nil {
				log.Printf("  Failed to create user %s: %v", email, err)
				continue
			}
			fmt.Printf("  Created user: %s %s (%s)\n", profile.firstName, profile.lastName, email)
		}

		card := user.SeedCard()
		card.Title = profile.title
		card.Company = profile.company
		card.Mobile = fmt.Sprintf("555-01%02d", i)

		users = append(users, &seededUser{User: user, card: card})
	}

	fmt.Println("=== Test Attendees Ready ===")
	return users
}
