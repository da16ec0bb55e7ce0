package seed

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pawhaven/internal/models"
)

// builtinRooms are the community rooms every deployment ships with. Seeding
// is idempotent: slugs already present are left untouched.
var builtinRooms = []models.ChatRoom{
	{Name: "General", Slug: "general", Description: "Anything pet related"},
	{Name: "Dog Training", Slug: "dog-training", Description: "Obedience, tricks, and behavior help"},
	{Name: "Cat Corner", Slug: "cat-corner", Description: "For the feline-inclined"},
	{Name: "Vet Questions", Slug: "vet-questions", Description: "Health questions answered by verified experts"},
	{Name: "Adoption Board", Slug: "adoption-board", Description: "Shelter partners post adoptable animals here"},
	{Name: "Small Pets", Slug: "small-pets", Description: "Rabbits, hamsters, birds, and reptiles"},
	{Name: "Lost and Found", Slug: "lost-and-found", Description: "Report and reunite lost pets"},
}

// Rooms ensures the built-in community rooms exist.
func Rooms(db *gorm.DB) error {
	for _, room := range builtinRooms {
		room.IsActive = true
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&room)
		if res.Error != nil && !errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("seed room %q: %w", room.Slug, res.Error)
		}
	}
	return nil
}
