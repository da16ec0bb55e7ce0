// Package seed creates demo data for development environments. None of this
// runs in production.
package seed

import (
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"pawhaven/internal/models"
	"pawhaven/internal/permissions"
)

// DefaultPassword is the password every seeded account gets.
const DefaultPassword = "password123"

var petTopics = []string{
	"anyone else's dog terrified of the vacuum?",
	"finally got my cat to use the new scratching post",
	"what kibble brands do you all trust?",
	"our shelter has three bonded rabbit pairs looking for homes",
	"puppy teething survival tips please",
	"my parrot learned to imitate the microwave beep",
	"heartworm prevention schedule question",
	"best harness for a dog that pulls?",
	"senior cat suddenly drinking a lot of water, vet visit booked",
	"foster fail number four, no regrets",
}

// Seeder populates the database with demo data.
type Seeder struct {
	db   *gorm.DB
	rand *rand.Rand
}

// NewSeeder returns a Seeder bound to db.
func NewSeeder(db *gorm.DB) *Seeder {
	gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{
		db:   db,
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ClearAll removes all seedable data. Order matters for foreign keys.
func (s *Seeder) ClearAll() error {
	tables := []string{
		"message_mentions", "message_reactions", "room_messages",
		"moderation_actions", "moderation_log_entries", "role_assignments",
		"presence_records", "dm_messages", "dm_conversations",
		"user_public_keys", "chat_rooms", "users",
	}
	for _, table := range tables {
		if err := s.db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	log.Println("cleared existing data")
	return nil
}

// SeedUsers creates n demo accounts plus one site admin. The admin is the
// first user returned.
func (s *Seeder) SeedUsers(n int) ([]*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash seed password: %w", err)
	}

	users := make([]*models.User, 0, n+1)

	admin := &models.User{
		Username:     "pawhaven_admin",
		Email:        "admin@pawhaven.local",
		PasswordHash: string(hash),
		DisplayName:  "Pawhaven Admin",
		IsSiteAdmin:  true,
	}
	if err := s.db.Create(admin).Error; err != nil {
		return nil, fmt.Errorf("create admin: %w", err)
	}
	users = append(users, admin)

	for i := 0; i < n; i++ {
		first := gofakeit.FirstName()
		last := gofakeit.LastName()
		username := strings.ToLower(fmt.Sprintf("%s%s%d", first, last, s.rand.Intn(1000)))
		u := &models.User{
			Username:     username,
			Email:        fmt.Sprintf("%s@%s", username, gofakeit.DomainName()),
			PasswordHash: string(hash),
			DisplayName:  first + " " + last,
			AvatarURL:    fmt.Sprintf("https://picsum.photos/seed/%s/200/200", username),
		}
		if err := s.db.Create(u).Error; err != nil {
			return nil, fmt.Errorf("create user %s: %w", username, err)
		}
		users = append(users, u)
	}

	log.Printf("created %d users (admin: %s)", len(users), admin.Username)
	return users, nil
}

// SeedRoles hands out community roles: a couple of moderators, a vet expert,
// a shelter partner, and room guides, all granted by the admin.
func (s *Seeder) SeedRoles(users []*models.User) error {
	if len(users) < 6 {
		return nil
	}
	admin := users[0]
	grants := map[uint]string{
		users[1].ID: "moderator",
		users[2].ID: "moderator",
		users[3].ID: "vet_expert",
		users[4].ID: "shelter_partner",
		users[5].ID: "room_guide",
	}
	registry := permissions.NewRegistry()
	for userID, role := range grants {
		if _, ok := registry.Lookup(role); !ok {
			return fmt.Errorf("unknown seed role %q", role)
		}
		assignment := models.RoleAssignment{
			UserID:    userID,
			RoleName:  role,
			GrantedBy: admin.ID,
		}
		if err := s.db.Create(&assignment).Error; err != nil {
			return fmt.Errorf("assign %s to user %d: %w", role, userID, err)
		}
	}
	log.Printf("assigned %d community roles", len(grants))
	return nil
}

// SeedMessages scatters n messages from random users across the rooms, with
// creation times spread over the past two weeks.
func (s *Seeder) SeedMessages(users []*models.User, n int) error {
	var rooms []models.ChatRoom
	if err := s.db.Where("is_active = ?", true).Find(&rooms).Error; err != nil {
		return fmt.Errorf("load rooms: %w", err)
	}
	if len(rooms) == 0 || len(users) == 0 {
		return nil
	}

	emojis := []string{"🐶", "🐱", "❤️", "😂", "👍"}
	for i := 0; i < n; i++ {
		author := users[s.rand.Intn(len(users))]
		room := rooms[s.rand.Intn(len(rooms))]

		content := petTopics[s.rand.Intn(len(petTopics))]
		if s.rand.Intn(3) == 0 {
			content = gofakeit.Sentence(8 + s.rand.Intn(10))
		}

		msg := models.RoomMessage{
			RoomID:    room.ID,
			AuthorID:  author.ID,
			Content:   content,
			CreatedAt: time.Now().Add(-time.Duration(s.rand.Intn(14*24)) * time.Hour),
		}
		if err := s.db.Create(&msg).Error; err != nil {
			return fmt.Errorf("create message: %w", err)
		}

		if s.rand.Intn(4) == 0 {
			reactor := users[s.rand.Intn(len(users))]
			reaction := models.MessageReaction{
				MessageID: msg.ID,
				UserID:    reactor.ID,
				Emoji:     emojis[s.rand.Intn(len(emojis))],
			}
			// Duplicate (message, user, emoji) rows are possible with random
			// picks; ignore them.
			_ = s.db.Create(&reaction).Error
		}
	}
	log.Printf("created %d room messages", n)
	return nil
}

// SeedCommunity runs the full demo pipeline.
func (s *Seeder) SeedCommunity(numUsers, numMessages int) error {
	if err := Rooms(s.db); err != nil {
		return err
	}
	users, err := s.SeedUsers(numUsers)
	if err != nil {
		return err
	}
	if err := s.SeedRoles(users); err != nil {
		return err
	}
	return s.SeedMessages(users, numMessages)
}
