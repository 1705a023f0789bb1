package cmd

import (
	"fmt"
	"log"
	"time"

	conversationDatamodel "github.com/frahmantamala/ops-console/internal/core/datamodel/conversation"
	userDatamodel "github.com/frahmantamala/ops-console/internal/core/datamodel/user"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample operators and conversation messages for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := gorm.Open(postgres.Open(cfg.Database.GetDSN()), &gorm.Config{
			Logger: gormLogger.Default.LogMode(gormLogger.Warn),
		})
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}

		if err := seed(db, clearData); err != nil {
			log.Fatalf("seed failed: %v", err)
		}
		fmt.Println("Seeding complete")
	},
}

func strPtr(s string) *string { return &s }

func seedUsers(password string) ([]userDatamodel.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	return []userDatamodel.User{
		{
			ID:           "u-admin",
			Email:        "admin@mail.com",
			Name:         "Console Admin",
			PasswordHash: string(hash),
			Department:   "Operations",
			Role:         "Super Admin",
			IsActive:     true,
		},
		{
			ID:           "u-sales",
			Email:        "sales@mail.com",
			Name:         "Sales Agent",
			PasswordHash: string(hash),
			Department:   "Sales",
			Role:         "Agent",
			PageAccess:   strPtr(`["/sales"]`),
			IsActive:     true,
		},
		{
			ID:           "u-support",
			Email:        "support@mail.com",
			Name:         "Support Agent",
			PasswordHash: string(hash),
			Department:   "Support",
			Role:         "Agent",
			PageAccess:   strPtr(`["/tickets", "/knowledge-base"]`),
			IsActive:     true,
		},
	}, nil
}

func seedMessages(now time.Time) []conversationDatamodel.Message {
	return []conversationDatamodel.Message{
		{ID: "msg-1", ConversationID: "conv-1", SenderID: "u-support", Body: "Hello, how can we help?", CreatedAt: now.Add(-10 * time.Minute)},
		{ID: "msg-2", ConversationID: "conv-1", SenderID: "customer-1", Body: "My invoice looks wrong.", CreatedAt: now.Add(-9 * time.Minute)},
		{ID: "msg-3", ConversationID: "conv-2", SenderID: "customer-2", Body: "Can I renew early?", CreatedAt: now.Add(-time.Minute)},
	}
}

// seed inserts the sample rows. Existing rows are left untouched so the
// command can be re-run.
func seed(db *gorm.DB, clear bool) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if clear {
			if err := tx.Exec("DELETE FROM conversation_messages").Error; err != nil {
				return fmt.Errorf("failed to clear conversation messages: %w", err)
			}
			if err := tx.Exec("DELETE FROM users").Error; err != nil {
				return fmt.Errorf("failed to clear users: %w", err)
			}
			fmt.Println("Cleared existing data")
		}

		users, err := seedUsers("password")
		if err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&users)
		if res.Error != nil {
			return fmt.Errorf("failed to seed users: %w", res.Error)
		}
		fmt.Printf("Seeded %d users\n", res.RowsAffected)

		messages := seedMessages(time.Now().UTC())
		res = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&messages)
		if res.Error != nil {
			return fmt.Errorf("failed to seed conversation messages: %w", res.Error)
		}
		fmt.Printf("Seeded %d conversation messages\n", res.RowsAffected)
		return nil
	})
}
