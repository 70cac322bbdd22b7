package database

import (
	"fmt"
	"log"

	config "github.com/Kyria-Zaire/Roomshare-sub000/configs"
	"github.com/Kyria-Zaire/Roomshare-sub000/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func ConnectDB() {
	var err error
	dsn := config.Config("DATABASE_URL")

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt:            false,
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		log.Fatalf("🔥 Failed to connect to database: %v", err)
	}

	fmt.Println("✅ Database connected successfully")
}

func Migrate() {
	err := DB.AutoMigrate(
		&models.User{},
		&models.Conversation{},
		&models.Message{},
	)
	if err != nil {
		log.Fatalf("🔥 Failed to migrate database: %v", err)
	}
	fmt.Println("✅ Database migration successful")
}

// SeedDemo creates two demo accounts so the messaging flow can be exercised
// against a fresh database. No-op when they already exist.
func SeedDemo() {
	demoUsers := []struct {
		fullName string
		email    string
		role     string
	}{
		{"Demo Tenant", config.Config("DEMO_TENANT_EMAIL"), "tenant"},
		{"Demo Landlord", config.Config("DEMO_LANDLORD_EMAIL"), "landlord"},
	}

	for _, d := range demoUsers {
		if d.email == "" {
			continue
		}

		var count int64
		if err := DB.Model(&models.User{}).Where("email = ?", d.email).Count(&count).Error; err != nil {
			log.Fatalf("🔥 Failed to check for demo user: %v", err)
			return
		}
		if count > 0 {
			continue
		}

		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(config.Config("DEMO_PASSWORD")), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("🔥 Failed to hash demo password: %v", err)
			return
		}

		user := models.User{
			FullName: d.fullName,
			Email:    d.email,
			Password: string(hashedPassword),
			Role:     d.role,
		}
		if err := DB.Create(&user).Error; err != nil {
			log.Fatalf("🔥 Failed to seed demo user: %v", err)
			return
		}
		log.Printf("✅ Demo user %s seeded successfully", d.email)
	}
}
