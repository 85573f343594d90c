package db

import (
	"errors"
	"fmt"

	"go_agentos/internal/auth"
	"go_agentos/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Migrate runs database migrations for all models
func Migrate(db *gorm.DB) error {
	logrus.Info("Starting database migration...")

	models := []interface{}{
		&model.User{},
		&model.AgentVersion{},
		&model.AgentVote{},
		&model.SystemLog{},
	}

	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	logrus.Infof("Database migration completed successfully (%d tables)", len(models))
	return nil
}

// SeedAdmin creates the admin account if username is set and no such user exists
func SeedAdmin(db *gorm.DB, tenantID, username, password string) error {
	if username == "" {
		return nil
	}
	if password == "" {
		return fmt.Errorf("admin password is required when admin username is set")
	}

	var existing model.User
	err := db.Where("username = ?", username).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to query admin user: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	user := model.User{
		TenantID:     tenantID,
		Username:     username,
		PasswordHash: hash,
		Role:         model.UserRoleAdmin,
		Status:       model.UserStatusActive,
	}
	if err := db.Create(&user).Error; err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logrus.WithField("username", username).Info("Admin user seeded")
	return nil
}
