// Command migrate applies the database schema.
package main

import (
	"log"

	"pawhaven/internal/config"
	"pawhaven/internal/database"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Connect automigrates outside production; run explicitly so this
	// command also works against production databases.
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("migrations applied")
}
