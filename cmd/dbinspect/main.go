package main

import (
	"encoding/json/v2"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/cardlinkapp/cardlink-server/internal/domain"
)

func main() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("Failed to resolve home directory: %v", err)
		}
		dbPath = filepath.Join(home, "CardLink", "data", "snapshots")
	}

	opts := badger.DefaultOptions(dbPath).
		WithReadOnly(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	fmt.Println("=== Database Inspection ===")
	fmt.Println()

	userCount := 0
	adminCount := 0
	sessionCount := 0
	snapshotCount := 0
	totalContacts := 0
	snapshotsWithOwnCard := 0

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())

			switch {
			case strings.HasPrefix(key, "user:idx:"):
				// Index keys, nothing to decode
			case strings.HasPrefix(key, "user:"):
				err := item.Value(func(val []byte) error {
					var user domain.User
					if err := json.Unmarshal(val, &user); err != nil {
						return err
					}
					userCount++
					if user.IsAdmin() {
						adminCount++
					}
					if userCount <= 5 {
						fmt.Printf("User: %s %s\n", user.FirstName, user.LastName)
						fmt.Printf("  ID: %s\n", user.ID)
						fmt.Printf("  Email: %s\n", user.Email)
						fmt.Printf("  Role: %s (root=%v)\n", user.Role, user.IsRoot)
						fmt.Println()
					}
					return nil
				})
				if err != nil {
					log.Printf("Error reading user %s: %v", key, err)
				}
			case strings.HasPrefix(key, "session:idx:"):
				// Index keys
			case strings.HasPrefix(key, "session:"):
				sessionCount++
			case strings.HasPrefix(key, "leads_") && strings.HasSuffix(key, "_sendOnScan"):
				// Preference key, counted with its snapshot
			case strings.HasPrefix(key, "leads_"):
				err := item.Value(func(val []byte) error {
					var snapshot domain.Snapshot
					if err := json.Unmarshal(val, &snapshot); err != nil {
						return err
					}
					snapshotCount++
					totalContacts += len(snapshot.Cards)
					if snapshot.MyCard.HasFullName() {
						snapshotsWithOwnCard++
					}
					if snapshotCount <= 5 {
						fmt.Printf("Snapshot: %s\n", strings.TrimPrefix(key, "leads_"))
						fmt.Printf("  Own card: %s\n", snapshot.MyCard.FullName())
						fmt.Printf("  Contacts: %d\n", len(snapshot.Cards))
						for i := range snapshot.Cards {
							if i < 5 {
								c := &snapshot.Cards[i]
								fmt.Printf("    [%d] %s (%s)\n", i, c.FullName(), c.Company)
							}
						}
						if len(snapshot.Cards) > 5 {
							fmt.Printf("    ... and %d more contacts\n", len(snapshot.Cards)-5)
						}
						fmt.Println()
					}
					return nil
				})
				if err != nil {
					log.Printf("Error reading snapshot %s: %v", key, err)
				}
			}
		}
		return nil
	})

	if err != nil {
		log.Fatalf("Error iterating database: %v", err)
	}

	fmt.Println("=== Summary ===")
	fmt.Printf("Total users: %d (%d admins)\n", userCount, adminCount)
	fmt.Printf("Total sessions: %d\n", sessionCount)
	fmt.Printf("Total snapshots: %d\n", snapshotCount)
	fmt.Printf("Snapshots with a complete own card: %d\n", snapshotsWithOwnCard)
	fmt.Printf("Total stored contacts: %d\n", totalContacts)
	if snapshotCount > 0 {
		fmt.Printf("Average contacts per snapshot: %.1f\n", float64(totalContacts)/float64(snapshotCount))
	}
}
